package domain

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the storage type of a column.
type Kind int

// Column kinds. Every backend stores the canonical Go value listed alongside.
const (
	KindText      Kind = iota // string
	KindDate                  // string in DateLayout
	KindTimestamp             // string in TimestampLayout
	KindDecimal               // string, decimal.Decimal.String()
	KindInt                   // int64
	KindBool                  // bool
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	case KindDecimal:
		return "decimal"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Column describes one column of a table.
type Column struct {
	Name     string
	Kind     Kind
	Nullable bool
}

// TableSchema lists the columns and uniqueness constraints of a table. A
// unique key whose columns include a null value does not constrain the row,
// matching SQL semantics.
type TableSchema struct {
	Table   Table
	Columns []Column
	Unique  [][]string
}

// Column returns the named column.
func (s TableSchema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns column names in declaration order.
func (s TableSchema) ColumnNames() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Column names shared across tables.
const (
	ColID        = "id"
	ColCreatedAt = "created_at"
)

func baseColumns() []Column {
	return []Column{
		{Name: ColID, Kind: KindText},
		{Name: ColCreatedAt, Kind: KindTimestamp},
	}
}

func withBase(cols ...Column) []Column {
	return append(baseColumns(), cols...)
}

var schemas = map[Table]TableSchema{
	TableInvoiceTemplates: {
		Table: TableInvoiceTemplates,
		Columns: withBase(
			Column{Name: "client_name", Kind: KindText},
			Column{Name: "amount", Kind: KindDecimal},
			Column{Name: "period", Kind: KindText},
			Column{Name: "day_of_month", Kind: KindInt},
			Column{Name: "last_generated_at", Kind: KindDate, Nullable: true},
		),
	},
	TableInvoices: {
		Table: TableInvoices,
		Columns: withBase(
			Column{Name: "invoice_number", Kind: KindText},
			Column{Name: "client_name", Kind: KindText},
			Column{Name: "issue_date", Kind: KindDate},
			Column{Name: "due_date", Kind: KindDate},
			Column{Name: "amount", Kind: KindDecimal},
			Column{Name: "status", Kind: KindText},
			Column{Name: "comment", Kind: KindText, Nullable: true},
			Column{Name: "template_id", Kind: KindText, Nullable: true},
			Column{Name: "period_start", Kind: KindDate, Nullable: true},
		),
		Unique: [][]string{{"invoice_number"}, {"template_id", "period_start"}},
	},
	TableTasks: {
		Table: TableTasks,
		Columns: withBase(
			Column{Name: "title", Kind: KindText},
			Column{Name: "description", Kind: KindText, Nullable: true},
			Column{Name: "status", Kind: KindText},
			Column{Name: "priority", Kind: KindText},
			Column{Name: "deadline", Kind: KindDate, Nullable: true},
			Column{Name: "is_urgent", Kind: KindBool},
		),
	},
	TableNotifications: {
		Table: TableNotifications,
		Columns: withBase(
			Column{Name: "type", Kind: KindText},
			Column{Name: "related_id", Kind: KindText},
			Column{Name: "message", Kind: KindText},
			Column{Name: "date", Kind: KindDate},
			Column{Name: "read", Kind: KindBool},
		),
		Unique: [][]string{{"type", "related_id"}},
	},
	TableDocuments: {
		Table: TableDocuments,
		Columns: withBase(
			Column{Name: "title", Kind: KindText},
			Column{Name: "type", Kind: KindText},
			Column{Name: "related_to", Kind: KindText, Nullable: true},
			Column{Name: "file_url", Kind: KindText, Nullable: true},
		),
	},
	TableTransactions: {
		Table: TableTransactions,
		Columns: withBase(
			Column{Name: "type", Kind: KindText},
			Column{Name: "amount", Kind: KindDecimal},
			Column{Name: "category", Kind: KindText},
			Column{Name: "date", Kind: KindDate},
			Column{Name: "comment", Kind: KindText, Nullable: true},
		),
	},
	TableSalaries: {
		Table: TableSalaries,
		Columns: withBase(
			Column{Name: "month", Kind: KindText},
			Column{Name: "base", Kind: KindDecimal},
			Column{Name: "bonus", Kind: KindDecimal},
			Column{Name: "penalty", Kind: KindDecimal},
			Column{Name: "total", Kind: KindDecimal},
			Column{Name: "paid", Kind: KindBool},
		),
	},
	TableNotes: {
		Table:   TableNotes,
		Columns: withBase(Column{Name: "content", Kind: KindText}),
	},
	TableCalendarEvents: {
		Table: TableCalendarEvents,
		Columns: withBase(
			Column{Name: "title", Kind: KindText},
			Column{Name: "date", Kind: KindDate},
			Column{Name: "related_type", Kind: KindText},
			Column{Name: "related_id", Kind: KindText, Nullable: true},
		),
	},
}

// SchemaFor returns the schema of table.
func SchemaFor(table Table) (TableSchema, error) {
	s, ok := schemas[table]
	if !ok {
		return TableSchema{}, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return s, nil
}

// Tables lists all known tables in name order.
func Tables() []Table {
	out := make([]Table, 0, len(schemas))
	for t := range schemas {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Coerce converts v into the canonical value for kind. nil passes through.
// Drivers hand back a variety of Go types for the same column; Coerce is the
// single place that folds them.
func Coerce(kind Kind, v any) (any, error) {
	v = plain(v)
	if v == nil {
		return nil, nil
	}
	switch kind {
	case KindText:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		case fmt.Stringer:
			return x.String(), nil
		}
	case KindDate:
		switch x := v.(type) {
		case time.Time:
			return FormatDate(x), nil
		case string:
			t, err := ParseDate(x)
			if err != nil {
				return nil, err
			}
			return FormatDate(t), nil
		case []byte:
			return Coerce(kind, string(x))
		}
	case KindTimestamp:
		switch x := v.(type) {
		case time.Time:
			return FormatTimestamp(x), nil
		case string:
			t, err := ParseTimestamp(x)
			if err != nil {
				return nil, err
			}
			return FormatTimestamp(t), nil
		case []byte:
			return Coerce(kind, string(x))
		}
	case KindDecimal:
		switch x := v.(type) {
		case decimal.Decimal:
			return x.String(), nil
		case string:
			d, err := decimal.NewFromString(strings.TrimSpace(x))
			if err != nil {
				return nil, fmt.Errorf("parse decimal %q: %w", x, err)
			}
			return d.String(), nil
		case []byte:
			return Coerce(kind, string(x))
		case float64:
			return decimal.NewFromFloat(x).String(), nil
		case int:
			return decimal.NewFromInt(int64(x)).String(), nil
		case int64:
			return decimal.NewFromInt(x).String(), nil
		}
	case KindInt:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case float64:
			if x != math.Trunc(x) {
				return nil, fmt.Errorf("non-integral value %v", x)
			}
			return int64(x), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse int %q: %w", x, err)
			}
			return n, nil
		case []byte:
			return Coerce(kind, string(x))
		}
	case KindBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case int:
			return x != 0, nil
		case string:
			b, err := strconv.ParseBool(x)
			if err != nil {
				return nil, fmt.Errorf("parse bool %q: %w", x, err)
			}
			return b, nil
		}
	}
	return nil, fmt.Errorf("cannot store %T as %s", v, kind)
}

// plain dereferences pointers and unwraps named scalar types such as
// InvoiceStatus so the type switches in Coerce see their underlying kind.
func plain(v any) any {
	if v == nil {
		return nil
	}
	switch v.(type) {
	case string, []byte, bool, int, int32, int64, float64, time.Time, decimal.Decimal:
		return v
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return rv.Interface()
}

// Compare orders two canonical values of kind. It returns -1, 0 or 1.
func Compare(kind Kind, a, b any) (int, error) {
	switch kind {
	case KindDecimal:
		da, err := decimal.NewFromString(fmt.Sprint(a))
		if err != nil {
			return 0, err
		}
		db, err := decimal.NewFromString(fmt.Sprint(b))
		if err != nil {
			return 0, err
		}
		return da.Cmp(db), nil
	case KindInt:
		ia, okA := a.(int64)
		ib, okB := b.(int64)
		if !okA || !okB {
			return 0, fmt.Errorf("compare %T with %T as int", a, b)
		}
		switch {
		case ia < ib:
			return -1, nil
		case ia > ib:
			return 1, nil
		}
		return 0, nil
	case KindBool:
		ba, okA := a.(bool)
		bb, okB := b.(bool)
		if !okA || !okB {
			return 0, fmt.Errorf("compare %T with %T as bool", a, b)
		}
		switch {
		case ba == bb:
			return 0, nil
		case !ba:
			return -1, nil
		}
		return 1, nil
	default:
		sa, okA := a.(string)
		sb, okB := b.(string)
		if !okA || !okB {
			return 0, fmt.Errorf("compare %T with %T as %s", a, b, kind)
		}
		return strings.Compare(sa, sb), nil
	}
}

// NormalizeFilter checks f against the schema and coerces its value(s) into
// canonical form.
func (s TableSchema) NormalizeFilter(f Filter) (Filter, Column, error) {
	col, ok := s.Column(f.Column)
	if !ok {
		return Filter{}, Column{}, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, s.Table, f.Column)
	}
	switch f.Op {
	case OpIsNull, OpNotNull:
		return Filter{Column: f.Column, Op: f.Op}, col, nil
	case OpIn:
		set, ok := f.Value.([]any)
		if !ok {
			return Filter{}, Column{}, fmt.Errorf("%w: %s expects []any, got %T", ErrInvalidFilter, f, f.Value)
		}
		out := make([]any, 0, len(set))
		for _, v := range set {
			cv, err := Coerce(col.Kind, v)
			if err != nil {
				return Filter{}, Column{}, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, f.Column, err)
			}
			if cv == nil {
				continue
			}
			out = append(out, cv)
		}
		return Filter{Column: f.Column, Op: OpIn, Value: out}, col, nil
	case OpEq, OpLt, OpLte, OpGt, OpGte:
		cv, err := Coerce(col.Kind, f.Value)
		if err != nil {
			return Filter{}, Column{}, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, f.Column, err)
		}
		if cv == nil {
			return Filter{}, Column{}, fmt.Errorf("%w: %s compares against nil", ErrInvalidFilter, f)
		}
		return Filter{Column: f.Column, Op: f.Op, Value: cv}, col, nil
	}
	return Filter{}, Column{}, fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, f.Op)
}
