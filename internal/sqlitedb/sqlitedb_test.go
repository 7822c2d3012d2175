package sqlitedb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

const testSchemaSQL = `
CREATE TABLE schema_version (version INTEGER NOT NULL);
CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL);
`

func TestOpenCreatesAndVerifiesSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := Open(ctx, path, Schema{Name: "test", SQL: testSchemaSQL, Version: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := Exec(ctx, db, "INSERT INTO notes (body) VALUES (?)", "hello"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_ = db.Close()

	db, err = Open(ctx, path, Schema{Name: "test", SQL: testSchemaSQL, Version: 1})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notes").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row after reopen, got %d", count)
	}
	_ = db.Close()

	if _, err := Open(ctx, path, Schema{Name: "test", SQL: testSchemaSQL, Version: 2}); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestRetryOnBusyStopsOnOtherErrors(t *testing.T) {
	calls := 0
	want := errors.New("constraint failed")
	err := RetryOnBusy(context.Background(), func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) || calls != 1 {
		t.Fatalf("expected single attempt returning %v, got %v after %d calls", want, err, calls)
	}
}

func TestRetryOnBusyRetries(t *testing.T) {
	calls := 0
	err := RetryOnBusy(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (SQLITE_BUSY)")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third attempt, got %v after %d calls", err, calls)
	}
}
