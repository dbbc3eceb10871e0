// Package persistence selects a concrete domain.RecordStore backend.
package persistence

import (
	"context"
	"fmt"

	"microerp/internal/infra/persistence/memory"
	"microerp/internal/infra/persistence/postgres"
	"microerp/internal/infra/persistence/sqlite"
	"microerp/pkg/domain"
)

// Driver identifies a concrete record store implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Settings carries the backend selection. An empty Driver means sqlite.
type Settings struct {
	Driver      Driver
	SQLitePath  string
	PostgresDSN string
}

// Open returns the record store described by settings. SQL backends apply
// the bundled schema before returning.
func Open(ctx context.Context, settings Settings) (domain.RecordStore, error) {
	driver := settings.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite:
		return sqlite.NewStore(ctx, settings.SQLitePath)
	case DriverPostgres:
		ps, err := postgres.NewStore(ctx, settings.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return ps, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
