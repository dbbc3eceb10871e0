// Package sqlstore implements domain.RecordStore on top of database/sql. The
// sqlite and postgres packages supply the driver, DDL and dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"microerp/internal/infra/persistence/sqlbundle"
	"microerp/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.RecordStore = (*Store)(nil)

// Store maps RecordStore calls onto SQL statements.
type Store struct {
	db      *sql.DB
	dialect Dialect
	nowFn   func() time.Time
	newID   func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithIDGenerator overrides the id generator used on insert.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New wraps db. The caller owns schema setup; see ApplyDDL.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		db:      db,
		dialect: dialect,
		nowFn:   func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString() },
	}
	if s.dialect.IsConflict == nil {
		s.dialect.IsConflict = func(error) bool { return false }
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplyDDL executes every statement of ddl in order.
func ApplyDDL(ctx context.Context, db *sql.DB, ddl string) error {
	for _, stmt := range sqlbundle.SplitStatements(ddl) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the dialect the store was built with.
func (s *Store) Dialect() Dialect { return s.dialect }

// Select returns the rows matching q.
func (s *Store) Select(ctx context.Context, table domain.Table, q domain.Query) ([]domain.Row, error) {
	schema, filters, err := normalize(table, q.Filters)
	if err != nil {
		return nil, err
	}
	if q.OrderBy != "" {
		if _, ok := schema.Column(q.OrderBy); !ok {
			return nil, fmt.Errorf("order %s: %w: %s", table, domain.ErrUnknownColumn, q.OrderBy)
		}
	}
	stmt := buildSelect(s.dialect, schema, filters, q)
	rows, err := s.db.QueryContext(ctx, stmt.sql, stmt.args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Row
	for rows.Next() {
		row, err := scanRow(schema, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

// Count returns how many rows match filters.
func (s *Store) Count(ctx context.Context, table domain.Table, filters []domain.Filter) (int64, error) {
	schema, normalized, err := normalize(table, filters)
	if err != nil {
		return 0, err
	}
	stmt := buildCount(s.dialect, schema, normalized)
	var n int64
	if err := s.db.QueryRowContext(ctx, stmt.sql, stmt.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Insert stores a single row and returns it with generated fields filled.
func (s *Store) Insert(ctx context.Context, table domain.Table, row domain.Row) (domain.Row, error) {
	schema, err := domain.SchemaFor(table)
	if err != nil {
		return nil, err
	}
	prepared, err := s.prepare(schema, row)
	if err != nil {
		return nil, err
	}
	stmt := buildInsert(s.dialect, schema, prepared)
	if _, err := s.db.ExecContext(ctx, stmt.sql, stmt.args...); err != nil {
		return nil, s.wrap("insert", table, err)
	}
	return prepared, nil
}

// InsertMany stores all rows in one transaction.
func (s *Store) InsertMany(ctx context.Context, table domain.Table, rows []domain.Row) error {
	schema, err := domain.SchemaFor(table)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	prepared := make([]domain.Row, 0, len(rows))
	for _, row := range rows {
		p, err := s.prepare(schema, row)
		if err != nil {
			return err
		}
		prepared = append(prepared, p)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, p := range prepared {
		stmt := buildInsert(s.dialect, schema, p)
		if _, err := tx.ExecContext(ctx, stmt.sql, stmt.args...); err != nil {
			return s.wrap("insert", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return s.wrap("commit", table, err)
	}
	committed = true
	return nil
}

// Update applies patch to every row matching filters.
func (s *Store) Update(ctx context.Context, table domain.Table, filters []domain.Filter, patch domain.Row) (int64, error) {
	schema, normalized, err := normalize(table, filters)
	if err != nil {
		return 0, err
	}
	values, err := domain.NormalizeRow(schema, patch)
	if err != nil {
		return 0, err
	}
	delete(values, domain.ColID)
	if len(values) == 0 {
		return s.Count(ctx, table, filters)
	}
	stmt := buildUpdate(s.dialect, schema, normalized, values)
	res, err := s.db.ExecContext(ctx, stmt.sql, stmt.args...)
	if err != nil {
		return 0, s.wrap("update", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update %s: rows affected: %w", table, err)
	}
	return n, nil
}

// Delete removes every row matching filters.
func (s *Store) Delete(ctx context.Context, table domain.Table, filters []domain.Filter) (int64, error) {
	schema, normalized, err := normalize(table, filters)
	if err != nil {
		return 0, err
	}
	stmt := buildDelete(s.dialect, schema, normalized)
	res, err := s.db.ExecContext(ctx, stmt.sql, stmt.args...)
	if err != nil {
		return 0, s.wrap("delete", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete %s: rows affected: %w", table, err)
	}
	return n, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) prepare(schema domain.TableSchema, row domain.Row) (domain.Row, error) {
	p, err := domain.NormalizeRow(schema, row)
	if err != nil {
		return nil, err
	}
	if id, _ := p[domain.ColID].(string); id == "" {
		p[domain.ColID] = s.newID()
	}
	if p[domain.ColCreatedAt] == nil {
		p[domain.ColCreatedAt] = domain.FormatTimestamp(s.nowFn())
	}
	for _, col := range schema.Columns {
		if _, ok := p[col.Name]; !ok {
			p[col.Name] = nil
		}
	}
	return p, nil
}

func (s *Store) wrap(op string, table domain.Table, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if s.dialect.IsConflict(err) {
		return fmt.Errorf("%s %s: %w: %v", op, table, domain.ErrConflict, err)
	}
	return fmt.Errorf("%s %s: %w", op, table, err)
}

func normalize(table domain.Table, filters []domain.Filter) (domain.TableSchema, []domain.Filter, error) {
	schema, err := domain.SchemaFor(table)
	if err != nil {
		return domain.TableSchema{}, nil, err
	}
	out := make([]domain.Filter, 0, len(filters))
	for _, f := range filters {
		nf, _, err := schema.NormalizeFilter(f)
		if err != nil {
			return domain.TableSchema{}, nil, err
		}
		out = append(out, nf)
	}
	return schema, out, nil
}

func scanRow(schema domain.TableSchema, rows *sql.Rows) (domain.Row, error) {
	raw := make([]any, len(schema.Columns))
	dest := make([]any, len(schema.Columns))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	row := make(domain.Row, len(schema.Columns))
	for i, col := range schema.Columns {
		v, err := domain.Coerce(col.Kind, raw[i])
		if err != nil {
			// keep the stored text so the entity decoder rejects only this row
			v = rawText(raw[i])
		}
		row[col.Name] = v
	}
	return row, nil
}

func rawText(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}
