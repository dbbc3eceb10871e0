// Package memory implements domain.RecordStore in process memory. It enforces
// the schema's uniqueness constraints so tests observe the same conflict
// behaviour as the SQL backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"microerp/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.RecordStore = (*Store)(nil)

// Store keeps every table as an insertion-ordered slice of rows.
type Store struct {
	mu     sync.RWMutex
	tables map[domain.Table][]domain.Row
	nowFn  func() time.Time
	newID  func() string
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

// NewStore constructs an empty in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		tables: make(map[domain.Table][]domain.Row),
		nowFn:  func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns copies of the rows matching q.
func (s *Store) Select(ctx context.Context, table domain.Table, q domain.Query) ([]domain.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	schema, err := domain.SchemaFor(table)
	if err != nil {
		return nil, err
	}
	preds, err := compileFilters(schema, q.Filters)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Row
	for _, row := range s.tables[table] {
		if preds.match(row) {
			out = append(out, row.Clone())
		}
	}
	if q.OrderBy != "" {
		col, ok := schema.Column(q.OrderBy)
		if !ok {
			return nil, fmt.Errorf("order %s: %w: %s", table, domain.ErrUnknownColumn, q.OrderBy)
		}
		sortRows(out, col, q.Descending)
	}
	return paginate(out, q.Offset, q.Limit), nil
}

// Count returns how many rows match filters.
func (s *Store) Count(ctx context.Context, table domain.Table, filters []domain.Filter) (int64, error) {
	rows, err := s.Select(ctx, table, domain.Query{Filters: filters})
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// Insert stores a single row and returns it with generated fields filled.
func (s *Store) Insert(ctx context.Context, table domain.Table, row domain.Row) (domain.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	schema, err := domain.SchemaFor(table)
	if err != nil {
		return nil, err
	}
	prepared, err := s.prepare(schema, row)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkUnique(schema, s.tables[table], prepared, -1); err != nil {
		return nil, err
	}
	s.tables[table] = append(s.tables[table], prepared)
	return prepared.Clone(), nil
}

// InsertMany stores all rows or none of them.
func (s *Store) InsertMany(ctx context.Context, table domain.Table, rows []domain.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	schema, err := domain.SchemaFor(table)
	if err != nil {
		return err
	}
	prepared := make([]domain.Row, 0, len(rows))
	for _, row := range rows {
		p, err := s.prepare(schema, row)
		if err != nil {
			return err
		}
		prepared = append(prepared, p)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := append([]domain.Row(nil), s.tables[table]...)
	for _, p := range prepared {
		if err := checkUnique(schema, staged, p, -1); err != nil {
			return err
		}
		staged = append(staged, p)
	}
	s.tables[table] = staged
	return nil
}

// Update patches every row matching filters. The whole update is rejected if
// any patched row would violate a unique key.
func (s *Store) Update(ctx context.Context, table domain.Table, filters []domain.Filter, patch domain.Row) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	schema, err := domain.SchemaFor(table)
	if err != nil {
		return 0, err
	}
	preds, err := compileFilters(schema, filters)
	if err != nil {
		return 0, err
	}
	normalized, err := domain.NormalizeRow(schema, patch)
	if err != nil {
		return 0, err
	}
	delete(normalized, domain.ColID)

	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.tables[table]
	staged := make([]domain.Row, len(current))
	var touched []int
	for i, row := range current {
		if !preds.match(row) {
			staged[i] = row
			continue
		}
		next := row.Clone()
		for k, v := range normalized {
			next[k] = v
		}
		staged[i] = next
		touched = append(touched, i)
	}
	// rows the patch leaves keyed as before cannot introduce a conflict
	if patchesUniqueKey(schema, normalized) {
		for _, i := range touched {
			if err := checkUnique(schema, staged, staged[i], i); err != nil {
				return 0, err
			}
		}
	}
	s.tables[table] = staged
	return int64(len(touched)), nil
}

func patchesUniqueKey(schema domain.TableSchema, patch domain.Row) bool {
	for _, key := range schema.Unique {
		for _, col := range key {
			if _, ok := patch[col]; ok {
				return true
			}
		}
	}
	return false
}

// Delete removes every row matching filters.
func (s *Store) Delete(ctx context.Context, table domain.Table, filters []domain.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	schema, err := domain.SchemaFor(table)
	if err != nil {
		return 0, err
	}
	preds, err := compileFilters(schema, filters)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []domain.Row
	var removed int64
	for _, row := range s.tables[table] {
		if preds.match(row) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	s.tables[table] = kept
	return removed, nil
}

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

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

// checkUnique rejects candidate when another row (other than index skip)
// shares its id or any fully non-null unique key.
func checkUnique(schema domain.TableSchema, rows []domain.Row, candidate domain.Row, skip int) error {
	keys := append([][]string{{domain.ColID}}, schema.Unique...)
	for i, existing := range rows {
		if i == skip {
			continue
		}
		for _, key := range keys {
			if sameKey(key, existing, candidate) {
				return fmt.Errorf("insert %s (%s): %w", schema.Table, strings.Join(key, ", "), domain.ErrConflict)
			}
		}
	}
	return nil
}

func sameKey(key []string, a, b domain.Row) bool {
	for _, col := range key {
		av, bv := a[col], b[col]
		if av == nil || bv == nil || av != bv {
			return false
		}
	}
	return true
}

func sortRows(rows []domain.Row, col domain.Column, desc bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i][col.Name], rows[j][col.Name]
		// nulls sort last in both directions
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		c, err := domain.Compare(col.Kind, a, b)
		if err != nil {
			return false
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func paginate(rows []domain.Row, offset, limit int) []domain.Row {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
