package database

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jittakal/poolstore/pkg/mutation"
)

var testSchema = Schema{Columns: []Column{
	{Name: "id", Type: TypeInteger, PrimaryKey: true},
	{Name: "name", Type: TypeString, NotNull: true},
	{Name: "amount", Type: TypeReal},
}}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig("sqlite3", filepath.Join(t.TempDir(), "engine.db"))
	cfg.MaxOpenConns = 1
	cfg.MaxIdleConns = 1

	engine, err := Open(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig("pgx", "postgres://localhost/db"), false},
		{"missing driver", Config{DSN: "x", MaxOpenConns: 1}, true},
		{"missing dsn", Config{Driver: "pgx", MaxOpenConns: 1}, true},
		{"zero max open", Config{Driver: "pgx", DSN: "x"}, true},
		{"idle above open", Config{Driver: "pgx", DSN: "x", MaxOpenConns: 1, MaxIdleConns: 2}, true},
		{"negative lifetime", Config{Driver: "pgx", DSN: "x", MaxOpenConns: 1, ConnMaxLifetime: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), DefaultConfig("oracle", "x"), nil)
	if err == nil {
		t.Error("Open() should reject unknown drivers")
	}
}

func TestEngine_CreateAndListTables(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	for _, table := range []string{"orders-u1-20250101", "orders-u1-20250201", "orders_x-u2-20250101", "users-u1-20250101"} {
		if err := e.CreateTable(ctx, table, testSchema); err != nil {
			t.Fatalf("CreateTable(%s) error = %v", table, err)
		}
	}
	// Creating twice is a no-op.
	if err := e.CreateTable(ctx, "orders-u1-20250101", testSchema); err != nil {
		t.Fatalf("CreateTable() repeat error = %v", err)
	}

	got, err := e.ListTables(ctx, "orders-")
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	want := []string{"orders-u1-20250101", "orders-u1-20250201"}
	if len(got) != len(want) {
		t.Fatalf("ListTables() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListTables()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEngine_ExecBatchCommits(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	if err := e.CreateTable(ctx, "t1", testSchema); err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}

	var stmts []Statement
	for i := 1; i <= 3; i++ {
		st, err := StatementFor(e.Dialect(), &mutation.Mutation{
			Table:   "t1",
			Columns: []string{"id", "name", "amount"},
			Values:  []any{int64(i), "row", 1.5},
		})
		if err != nil {
			t.Fatalf("StatementFor() error = %v", err)
		}
		stmts = append(stmts, st)
	}

	if err := e.ExecBatch(ctx, stmts); err != nil {
		t.Fatalf("ExecBatch() error = %v", err)
	}
	n, err := e.CountRows(ctx, "t1")
	if err != nil {
		t.Fatalf("CountRows() error = %v", err)
	}
	if n != 3 {
		t.Errorf("CountRows() = %v, want 3", n)
	}
}

func TestEngine_ExecBatchRollsBackOnFailure(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	if err := e.CreateTable(ctx, "t1", testSchema); err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}

	insert := InsertSQL(e.Dialect(), "t1", []string{"id", "name"})
	stmts := []Statement{
		{Query: insert, Args: []any{int64(1), "ok"}},
		{Query: insert, Args: []any{int64(2), "ok"}},
		{Query: insert, Args: []any{int64(1), "duplicate key"}},
	}

	if err := e.ExecBatch(ctx, stmts); err == nil {
		t.Fatal("ExecBatch() should fail on a duplicate key")
	}
	n, err := e.CountRows(ctx, "t1")
	if err != nil {
		t.Fatalf("CountRows() error = %v", err)
	}
	if n != 0 {
		t.Errorf("CountRows() = %v, want 0 after rollback", n)
	}
}

func TestEngine_ExecBatchEmpty(t *testing.T) {
	e := newTestEngine(t)
	if err := e.ExecBatch(context.Background(), nil); err != nil {
		t.Errorf("ExecBatch(nil) error = %v", err)
	}
}

func TestEngine_RawStatement(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	if err := e.CreateTable(ctx, "t1", testSchema); err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}

	st, err := StatementFor(e.Dialect(), &mutation.Mutation{
		Statement: `INSERT INTO "t1" ("id", "name") VALUES (?, ?)`,
		Args:      []any{int64(5), "raw"},
	})
	if err != nil {
		t.Fatalf("StatementFor() error = %v", err)
	}
	if err := e.ExecBatch(ctx, []Statement{st}); err != nil {
		t.Fatalf("ExecBatch() error = %v", err)
	}

	var name string
	if err := e.DB().QueryRowContext(ctx, `SELECT name FROM "t1" WHERE id = 5`).Scan(&name); err != nil {
		t.Fatalf("QueryRow() error = %v", err)
	}
	if name != "raw" {
		t.Errorf("name = %v, want raw", name)
	}
}

func TestEngine_CountRowsMissingTable(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.CountRows(context.Background(), "missing"); err == nil {
		t.Error("CountRows() should fail for a missing table")
	}
}
