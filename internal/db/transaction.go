// Package db provides SQLite database access for parley's embedded stores.
package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// RetryPolicy bounds how long a writer waits on a locked store. The state
// and crypto stores live in the same directory and the stream dispatcher
// races interactive writes, so short transactions can hit SQLITE_BUSY even
// with the busy_timeout pragma set.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// Backoff is the wait before the second attempt; it doubles after
	// every further failure.
	Backoff time.Duration
}

// DefaultRetryPolicy suits the small single-row writes the stores do.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 50 * time.Millisecond}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = DefaultRetryPolicy().Backoff
	}
	return p
}

// TransactionWithRetry runs fn inside a transaction, retrying the whole
// transaction with doubling backoff while the store reports lock
// contention. Errors from fn itself are returned on the first attempt.
func (db *DB) TransactionWithRetry(ctx context.Context, policy RetryPolicy, fn func(*sql.Tx) error) error {
	policy = policy.normalized()
	backoff := policy.Backoff

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := db.Transaction(ctx, fn)
		if err == nil {
			return nil
		}
		if !lockContention(err) || attempt >= policy.MaxAttempts {
			return err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
}

// lockContention reports whether err is sqlite signalling that another
// writer holds the store. Context errors never qualify: a cancelled caller
// must not be kept waiting through backoff.
func lockContention(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// modernc.org/sqlite reports busy conditions as text, e.g.
	// "database is locked (5) (SQLITE_BUSY)".
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "database is locked") ||
		strings.Contains(message, "database is busy") ||
		strings.Contains(message, "sqlite_busy")
}
