package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/tOgg1/parley/internal/db"
)

// The two embedded stores under the storage directory: protocol state and
// cryptographic material.
const (
	stateStoreFile  = "state.db"
	cryptoStoreFile = "crypto.db"
)

// stateStore persists protocol state (sync positions and the like) between
// runs.
type stateStore struct {
	db *db.DB
}

func openStateStore(dir string, busyTimeoutMs int) (*stateStore, error) {
	d, err := db.Open(filepath.Join(dir, stateStoreFile), db.Options{BusyTimeoutMs: busyTimeoutMs})
	if err != nil {
		return nil, err
	}
	s := &stateStore{db: d}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = d.Close()
		return nil, err
	}
	return s, nil
}

func (s *stateStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sync_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Conn().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure state schema: %w", err)
		}
	}
	return nil
}

// SyncPosition returns the last persisted sync position, or "" when the
// store is fresh.
func (s *stateStore) SyncPosition(ctx context.Context) (string, error) {
	var value string
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT value FROM sync_state WHERE key = 'position'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read sync position: %w", err)
	}
	return value, nil
}

// SetSyncPosition persists the sync position.
func (s *stateStore) SetSyncPosition(ctx context.Context, position string) error {
	_, err := s.db.Conn().ExecContext(ctx,
		`INSERT INTO sync_state (key, value, updated_at) VALUES ('position', ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		position, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("write sync position: %w", err)
	}
	return nil
}

func (s *stateStore) Close() error {
	return s.db.Close()
}

// cryptoStore persists sealed device key material and queued encrypted
// events for rehydrated devices.
type cryptoStore struct {
	db *db.DB
}

func openCryptoStore(dir string, busyTimeoutMs int) (*cryptoStore, error) {
	d, err := db.Open(filepath.Join(dir, cryptoStoreFile), db.Options{BusyTimeoutMs: busyTimeoutMs})
	if err != nil {
		return nil, err
	}
	s := &cryptoStore{db: d}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = d.Close()
		return nil, err
	}
	return s, nil
}

func (s *cryptoStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS dehydrated_devices (
			device_id TEXT PRIMARY KEY,
			salt BLOB NOT NULL,
			nonce BLOB NOT NULL,
			sealed BLOB NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS device_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			event TEXT NOT NULL,
			received_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS device_events_device_idx ON device_events(device_id, id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Conn().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure crypto schema: %w", err)
		}
	}
	return nil
}

type dehydratedRecord struct {
	DeviceID  string
	Salt      []byte
	Nonce     []byte
	Sealed    []byte
	CreatedAt time.Time
}

func (s *cryptoStore) SaveDehydratedDevice(ctx context.Context, rec dehydratedRecord) error {
	_, err := s.db.Conn().ExecContext(ctx,
		`INSERT INTO dehydrated_devices (device_id, salt, nonce, sealed, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(device_id) DO UPDATE SET
			salt = excluded.salt, nonce = excluded.nonce,
			sealed = excluded.sealed, created_at = excluded.created_at`,
		rec.DeviceID, rec.Salt, rec.Nonce, rec.Sealed, rec.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save dehydrated device: %w", err)
	}
	return nil
}

// LatestDehydratedDevice returns the most recently created local record.
// It backs rehydration when the server copy cannot be fetched.
func (s *cryptoStore) LatestDehydratedDevice(ctx context.Context) (dehydratedRecord, error) {
	var rec dehydratedRecord
	var createdAt string
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT device_id, salt, nonce, sealed, created_at FROM dehydrated_devices
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`).
		Scan(&rec.DeviceID, &rec.Salt, &rec.Nonce, &rec.Sealed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, errNoDehydratedRecord
	}
	if err != nil {
		return rec, fmt.Errorf("read dehydrated device: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return rec, nil
}

func (s *cryptoStore) SaveDeviceEvents(ctx context.Context, deviceID string, events []string) error {
	if len(events) == 0 {
		return nil
	}
	// Event batches can race the stream writer on the same store; retry
	// through transient lock contention.
	return s.db.TransactionWithRetry(ctx, db.DefaultRetryPolicy(), func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339)
		for _, ev := range events {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO device_events (device_id, event, received_at) VALUES (?, ?, ?)`,
				deviceID, ev, now); err != nil {
				return fmt.Errorf("save device event: %w", err)
			}
		}
		return nil
	})
}

func (s *cryptoStore) Close() error {
	return s.db.Close()
}

var errNoDehydratedRecord = errors.New("no dehydrated device record")
