package sqlstore

import (
	"fmt"
	"strconv"
	"strings"

	"microerp/pkg/domain"
)

// Dialect captures the syntax differences between the supported databases.
type Dialect struct {
	Name string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// NoLimit is the LIMIT value used when only an offset is requested.
	NoLimit string
	// IsConflict reports whether err is a uniqueness violation.
	IsConflict func(err error) bool
}

// QuestionPlaceholder renders "?" for every parameter.
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder renders "$n".
func DollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

type statement struct {
	sql  string
	args []any
}

type builder struct {
	d    Dialect
	sb   strings.Builder
	args []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

func (b *builder) statement() statement {
	return statement{sql: b.sb.String(), args: b.args}
}

// where appends a WHERE clause for filters. Filters must already be
// normalised against the table schema.
func (b *builder) where(filters []domain.Filter) {
	if len(filters) == 0 {
		return
	}
	b.sb.WriteString(" WHERE ")
	for i, f := range filters {
		if i > 0 {
			b.sb.WriteString(" AND ")
		}
		b.condition(f)
	}
}

func (b *builder) condition(f domain.Filter) {
	col := quoteIdent(f.Column)
	switch f.Op {
	case domain.OpIsNull:
		b.sb.WriteString(col + " IS NULL")
	case domain.OpNotNull:
		b.sb.WriteString(col + " IS NOT NULL")
	case domain.OpIn:
		set, _ := f.Value.([]any)
		if len(set) == 0 {
			b.sb.WriteString("1 = 0")
			return
		}
		parts := make([]string, len(set))
		for i, v := range set {
			parts[i] = b.bind(v)
		}
		b.sb.WriteString(col + " IN (" + strings.Join(parts, ", ") + ")")
	default:
		b.sb.WriteString(col + " " + sqlOp(f.Op) + " " + b.bind(f.Value))
	}
}

func sqlOp(op domain.Op) string {
	switch op {
	case domain.OpLt:
		return "<"
	case domain.OpLte:
		return "<="
	case domain.OpGt:
		return ">"
	case domain.OpGte:
		return ">="
	}
	return "="
}

// quoteIdent double-quotes an identifier. Column names are validated against
// the schema before they reach the builder, so no escaping is required.
func quoteIdent(name string) string { return `"` + name + `"` }

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func buildSelect(d Dialect, schema domain.TableSchema, filters []domain.Filter, q domain.Query) statement {
	b := &builder{d: d}
	fmt.Fprintf(&b.sb, "SELECT %s FROM %s", quoteList(schema.ColumnNames()), quoteIdent(string(schema.Table)))
	b.where(filters)
	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&b.sb, " ORDER BY %s %s NULLS LAST", quoteIdent(q.OrderBy), dir)
	}
	switch {
	case q.Limit > 0:
		fmt.Fprintf(&b.sb, " LIMIT %d", q.Limit)
	case q.Offset > 0:
		fmt.Fprintf(&b.sb, " LIMIT %s", d.NoLimit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(&b.sb, " OFFSET %d", q.Offset)
	}
	return b.statement()
}

func buildCount(d Dialect, schema domain.TableSchema, filters []domain.Filter) statement {
	b := &builder{d: d}
	fmt.Fprintf(&b.sb, "SELECT COUNT(*) FROM %s", quoteIdent(string(schema.Table)))
	b.where(filters)
	return b.statement()
}

func buildInsert(d Dialect, schema domain.TableSchema, row domain.Row) statement {
	b := &builder{d: d}
	cols := schema.ColumnNames()
	marks := make([]string, len(cols))
	for i, c := range cols {
		marks[i] = b.bind(row[c])
	}
	fmt.Fprintf(&b.sb, "INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(string(schema.Table)), quoteList(cols), strings.Join(marks, ", "))
	return b.statement()
}

func buildUpdate(d Dialect, schema domain.TableSchema, filters []domain.Filter, patch domain.Row) statement {
	b := &builder{d: d}
	fmt.Fprintf(&b.sb, "UPDATE %s SET ", quoteIdent(string(schema.Table)))
	first := true
	for _, col := range schema.ColumnNames() {
		v, ok := patch[col]
		if !ok {
			continue
		}
		if !first {
			b.sb.WriteString(", ")
		}
		first = false
		b.sb.WriteString(quoteIdent(col) + " = " + b.bind(v))
	}
	b.where(filters)
	return b.statement()
}

func buildDelete(d Dialect, schema domain.TableSchema, filters []domain.Filter) statement {
	b := &builder{d: d}
	fmt.Fprintf(&b.sb, "DELETE FROM %s", quoteIdent(string(schema.Table)))
	b.where(filters)
	return b.statement()
}
