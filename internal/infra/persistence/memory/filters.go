package memory

import (
	"microerp/pkg/domain"
)

type predicate struct {
	filter domain.Filter
	col    domain.Column
}

type predicates []predicate

func compileFilters(schema domain.TableSchema, filters []domain.Filter) (predicates, error) {
	out := make(predicates, 0, len(filters))
	for _, f := range filters {
		nf, col, err := schema.NormalizeFilter(f)
		if err != nil {
			return nil, err
		}
		out = append(out, predicate{filter: nf, col: col})
	}
	return out, nil
}

func (ps predicates) match(row domain.Row) bool {
	for _, p := range ps {
		if !p.match(row) {
			return false
		}
	}
	return true
}

// match follows SQL three-valued logic: comparisons against a null column
// never match.
func (p predicate) match(row domain.Row) bool {
	v := row[p.filter.Column]
	switch p.filter.Op {
	case domain.OpIsNull:
		return v == nil
	case domain.OpNotNull:
		return v != nil
	}
	if v == nil {
		return false
	}
	if p.filter.Op == domain.OpIn {
		set, _ := p.filter.Value.([]any)
		for _, candidate := range set {
			if c, err := domain.Compare(p.col.Kind, v, candidate); err == nil && c == 0 {
				return true
			}
		}
		return false
	}
	c, err := domain.Compare(p.col.Kind, v, p.filter.Value)
	if err != nil {
		return false
	}
	switch p.filter.Op {
	case domain.OpEq:
		return c == 0
	case domain.OpLt:
		return c < 0
	case domain.OpLte:
		return c <= 0
	case domain.OpGt:
		return c > 0
	case domain.OpGte:
		return c >= 0
	}
	return false
}
