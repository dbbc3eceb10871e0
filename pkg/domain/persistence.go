package domain

import (
	"context"
	"errors"
	"fmt"
)

// Table names a record collection in the store.
type Table string

// Tables of the application. The automation engine only touches the first
// four; the rest exist so the store covers the whole application.
const (
	TableInvoiceTemplates Table = "invoice_templates"
	TableInvoices         Table = "invoices"
	TableTasks            Table = "tasks"
	TableNotifications    Table = "notifications"
	TableDocuments        Table = "documents"
	TableTransactions     Table = "transactions"
	TableSalaries         Table = "salaries"
	TableNotes            Table = "notes"
	TableCalendarEvents   Table = "calendar_events"
)

// Sentinel errors reported by RecordStore implementations.
var (
	// ErrConflict reports a uniqueness constraint violation.
	ErrConflict = errors.New("record conflicts with an existing row")
	// ErrNotFound reports a missing row where one was required.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownTable reports a table that is not part of the schema.
	ErrUnknownTable = errors.New("unknown table")
	// ErrUnknownColumn reports a column that is not part of the table.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrInvalidFilter reports a filter with an unusable operator or value.
	ErrInvalidFilter = errors.New("invalid filter")
)

// Op is a filter comparison operator.
type Op string

// Supported filter operators.
const (
	OpEq      Op = "eq"
	OpIn      Op = "in"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
)

// Filter restricts a select or update to rows whose column matches.
// For OpIn, Value holds a []any.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

func (f Filter) String() string {
	switch f.Op {
	case OpIsNull, OpNotNull:
		return fmt.Sprintf("%s %s", f.Column, f.Op)
	}
	return fmt.Sprintf("%s %s %v", f.Column, f.Op, f.Value)
}

// Eq matches rows where column equals value.
func Eq(column string, value any) Filter { return Filter{Column: column, Op: OpEq, Value: value} }

// Lt matches rows where column is strictly less than value.
func Lt(column string, value any) Filter { return Filter{Column: column, Op: OpLt, Value: value} }

// Lte matches rows where column is less than or equal to value.
func Lte(column string, value any) Filter { return Filter{Column: column, Op: OpLte, Value: value} }

// Gt matches rows where column is strictly greater than value.
func Gt(column string, value any) Filter { return Filter{Column: column, Op: OpGt, Value: value} }

// Gte matches rows where column is greater than or equal to value.
func Gte(column string, value any) Filter { return Filter{Column: column, Op: OpGte, Value: value} }

// IsNull matches rows where column is absent.
func IsNull(column string) Filter { return Filter{Column: column, Op: OpIsNull} }

// NotNull matches rows where column is set.
func NotNull(column string) Filter { return Filter{Column: column, Op: OpNotNull} }

// In matches rows where column equals any of values. An empty set matches
// nothing.
func In[T any](column string, values ...T) Filter {
	set := make([]any, len(values))
	for i, v := range values {
		set[i] = v
	}
	return Filter{Column: column, Op: OpIn, Value: set}
}

// Query describes a select.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	// Limit caps the number of rows; zero means unbounded.
	Limit  int
	Offset int
}

// RecordStore is the generic row store all automation routines run against.
// Implementations assign "id" and "created_at" on insert when absent and
// report uniqueness violations as ErrConflict.
type RecordStore interface {
	Select(ctx context.Context, table Table, q Query) ([]Row, error)
	Count(ctx context.Context, table Table, filters []Filter) (int64, error)
	Insert(ctx context.Context, table Table, row Row) (Row, error)
	// InsertMany inserts all rows or none.
	InsertMany(ctx context.Context, table Table, rows []Row) error
	// Update applies patch to every row matching filters and returns the
	// number of rows touched.
	Update(ctx context.Context, table Table, filters []Filter, patch Row) (int64, error)
	Delete(ctx context.Context, table Table, filters []Filter) (int64, error)
	Close() error
}

// Locker is implemented by stores that can serialise work across processes.
// The returned unlock function must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
