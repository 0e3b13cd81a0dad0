package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"
)

func setupEventsDB(t *testing.T) *DB {
	t.Helper()
	db := setupTestDB(t)
	t.Cleanup(func() { _ = db.Close() })

	_, err := db.Conn().ExecContext(context.Background(),
		`CREATE TABLE device_events (id INTEGER PRIMARY KEY AUTOINCREMENT, event TEXT NOT NULL)`)
	if err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	return db
}

func countEvents(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	if err := db.Conn().QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM device_events`).Scan(&n); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return n
}

func TestTransactionWithRetryRecoversFromLockedStore(t *testing.T) {
	db := setupEventsDB(t)
	ctx := context.Background()

	attempts := 0
	err := db.TransactionWithRetry(ctx, RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
		func(tx *sql.Tx) error {
			attempts++
			if attempts < 3 {
				return errors.New("database is locked (5) (SQLITE_BUSY)")
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO device_events (event) VALUES ('queued-1')`)
			return err
		})
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if n := countEvents(t, db); n != 1 {
		t.Fatalf("expected the final attempt to commit 1 event, got %d", n)
	}
}

func TestTransactionWithRetryGivesUpOnRealErrors(t *testing.T) {
	db := setupEventsDB(t)

	attempts := 0
	wantErr := errors.New("malformed event payload")
	err := db.TransactionWithRetry(context.Background(),
		RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
		func(tx *sql.Tx) error {
			attempts++
			return wantErr
		})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the fn error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("non-contention errors must not retry, got %d attempts", attempts)
	}
}

func TestTransactionWithRetryHonorsMaxAttempts(t *testing.T) {
	db := setupEventsDB(t)

	attempts := 0
	err := db.TransactionWithRetry(context.Background(),
		RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond},
		func(tx *sql.Tx) error {
			attempts++
			return errors.New("database is busy")
		})
	if err == nil {
		t.Fatal("expected the last contention error to surface")
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	if n := countEvents(t, db); n != 0 {
		t.Fatalf("failed attempts must not commit, got %d rows", n)
	}
}

func TestTransactionWithRetryStopsOnCancelledContext(t *testing.T) {
	db := setupEventsDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := db.TransactionWithRetry(ctx, DefaultRetryPolicy(), func(tx *sql.Tx) error {
		attempts++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 0 {
		t.Fatalf("cancelled context must short-circuit, got %d attempts", attempts)
	}
}

func TestLockContention(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{errors.New("database is busy"), true},
		{errors.New("constraint failed: device_events.event"), false},
		{context.Canceled, false},
		{context.DeadlineExceeded, false},
	}
	for _, tc := range cases {
		if got := lockContention(tc.err); got != tc.want {
			t.Fatalf("lockContention(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
