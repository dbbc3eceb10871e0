// Package postgres provides a Postgres-backed record store that applies the
// bundled DDL on startup.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"microerp/internal/infra/persistence/sqlbundle"
	"microerp/internal/infra/persistence/sqlstore"
	"microerp/pkg/domain"
)

// Compile-time contract assertions ensuring the store satisfies the domain interfaces.
var (
	_ domain.RecordStore = (*Store)(nil)
	_ domain.Locker      = (*Store)(nil)
)

const (
	defaultDriver = "pgx"
	// DefaultDSN keeps parity with the storage factory defaults while allowing overrides via env.
	DefaultDSN = "postgres://localhost/microerp?sslmode=disable"

	uniqueViolation = "23505"
)

// Dialect is the Postgres query dialect.
var Dialect = sqlstore.Dialect{
	Name:        string(sqlbundle.DialectPostgres),
	Placeholder: sqlstore.DollarPlaceholder,
	NoLimit:     "ALL",
	IsConflict:  isConflict,
}

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists records to Postgres.
type Store struct {
	*sqlstore.Store
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to
// DefaultDSN) and applies the bundled DDL.
func NewStore(ctx context.Context, dsn string, opts ...sqlstore.Option) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := sqlstore.ApplyDDL(ctx, db, sqlbundle.Postgres()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: sqlstore.New(db, Dialect, opts...)}, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}

func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
