package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"microerp/internal/infra/persistence/memory"
	"microerp/internal/infra/persistence/postgres"
	"microerp/internal/infra/persistence/postgres/testutil"
	"microerp/internal/infra/persistence/sqlite"
	"microerp/pkg/domain"
)

func TestOpenMemory(t *testing.T) {
	store, err := Open(context.Background(), Settings{Driver: DriverMemory})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	defer func() { _ = store.Close() }()
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenDefaultsToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "erp.db")
	store, err := Open(context.Background(), Settings{SQLitePath: path})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() { _ = store.Close() }()
	if _, ok := store.(*sqlite.Store); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	if _, err := store.Count(context.Background(), domain.TableInvoices, nil); err != nil {
		t.Fatalf("expected schema applied: %v", err)
	}
}

func TestOpenPostgres(t *testing.T) {
	db, _ := testutil.NewStubDB()
	restore := postgres.OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := Open(context.Background(), Settings{Driver: DriverPostgres, PostgresDSN: "postgres://stub"})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer func() { _ = store.Close() }()
	if _, ok := store.(domain.Locker); !ok {
		t.Fatalf("expected postgres store to provide a lock")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Settings{Driver: "mongo"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
