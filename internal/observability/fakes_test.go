package observability

import (
	"context"

	"microerp/pkg/domain"
)

// emptyStore is a RecordStore with no rows.
type emptyStore struct{}

func (emptyStore) Select(context.Context, domain.Table, domain.Query) ([]domain.Row, error) {
	return nil, nil
}

func (emptyStore) Count(context.Context, domain.Table, []domain.Filter) (int64, error) {
	return 0, nil
}

func (emptyStore) Insert(_ context.Context, _ domain.Table, row domain.Row) (domain.Row, error) {
	return row, nil
}

func (emptyStore) InsertMany(context.Context, domain.Table, []domain.Row) error { return nil }

func (emptyStore) Update(context.Context, domain.Table, []domain.Filter, domain.Row) (int64, error) {
	return 0, nil
}

func (emptyStore) Delete(context.Context, domain.Table, []domain.Filter) (int64, error) {
	return 0, nil
}

func (emptyStore) Close() error { return nil }
