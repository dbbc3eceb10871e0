package sqlstore

import (
	"reflect"
	"testing"

	"microerp/pkg/domain"
)

var (
	pgDialect     = Dialect{Name: "postgres", Placeholder: DollarPlaceholder, NoLimit: "ALL"}
	sqliteDialect = Dialect{Name: "sqlite", Placeholder: QuestionPlaceholder, NoLimit: "-1"}
)

func mustSchema(t *testing.T, table domain.Table) domain.TableSchema {
	t.Helper()
	s, err := domain.SchemaFor(table)
	if err != nil {
		t.Fatalf("schema %s: %v", table, err)
	}
	return s
}

func TestBuildUpdateNumbersPlaceholders(t *testing.T) {
	schema := mustSchema(t, domain.TableInvoices)
	stmt := buildUpdate(pgDialect, schema,
		[]domain.Filter{
			{Column: "due_date", Op: domain.OpLt, Value: "2024-05-02"},
			{Column: "status", Op: domain.OpIn, Value: []any{"draft", "sent"}},
		},
		domain.Row{"status": "overdue"})
	want := `UPDATE "invoices" SET "status" = $1 WHERE "due_date" < $2 AND "status" IN ($3, $4)`
	if stmt.sql != want {
		t.Fatalf("unexpected sql:\n got %s\nwant %s", stmt.sql, want)
	}
	if !reflect.DeepEqual(stmt.args, []any{"overdue", "2024-05-02", "draft", "sent"}) {
		t.Fatalf("unexpected args %v", stmt.args)
	}
}

func TestBuildSelectOrderingAndPaging(t *testing.T) {
	schema := mustSchema(t, domain.TableNotes)
	stmt := buildSelect(sqliteDialect, schema, nil, domain.Query{OrderBy: "created_at", Descending: true, Offset: 5})
	want := `SELECT "id", "created_at", "content" FROM "notes" ORDER BY "created_at" DESC NULLS LAST LIMIT -1 OFFSET 5`
	if stmt.sql != want {
		t.Fatalf("unexpected sql:\n got %s\nwant %s", stmt.sql, want)
	}
	stmt = buildSelect(pgDialect, schema, nil, domain.Query{Limit: 10})
	if stmt.sql != `SELECT "id", "created_at", "content" FROM "notes" LIMIT 10` {
		t.Fatalf("unexpected sql %s", stmt.sql)
	}
}

func TestEmptyInSetMatchesNothing(t *testing.T) {
	schema := mustSchema(t, domain.TableNotifications)
	stmt := buildCount(sqliteDialect, schema, []domain.Filter{
		{Column: "related_id", Op: domain.OpIn, Value: []any{}},
		{Column: "read", Op: domain.OpIsNull},
	})
	want := `SELECT COUNT(*) FROM "notifications" WHERE 1 = 0 AND "read" IS NULL`
	if stmt.sql != want || len(stmt.args) != 0 {
		t.Fatalf("unexpected statement %q %v", stmt.sql, stmt.args)
	}
}

func TestBuildInsertBindsEveryColumn(t *testing.T) {
	schema := mustSchema(t, domain.TableNotes)
	stmt := buildInsert(pgDialect, schema, domain.Row{"id": "n1", "created_at": "ts", "content": "hi"})
	want := `INSERT INTO "notes" ("id", "created_at", "content") VALUES ($1, $2, $3)`
	if stmt.sql != want {
		t.Fatalf("unexpected sql %s", stmt.sql)
	}
	if !reflect.DeepEqual(stmt.args, []any{"n1", "ts", "hi"}) {
		t.Fatalf("unexpected args %v", stmt.args)
	}
}

func TestBuildDelete(t *testing.T) {
	schema := mustSchema(t, domain.TableTasks)
	stmt := buildDelete(sqliteDialect, schema, []domain.Filter{{Column: "deadline", Op: domain.OpNotNull}, {Column: "status", Op: domain.OpEq, Value: "done"}})
	want := `DELETE FROM "tasks" WHERE "deadline" IS NOT NULL AND "status" = ?`
	if stmt.sql != want {
		t.Fatalf("unexpected sql %s", stmt.sql)
	}
}
