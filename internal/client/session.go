package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// sessionFileName is the structured credential record under the storage
// directory. Its absence triggers the interactive login flow.
const sessionFileName = "session.json"

// Session is the persisted credential record for a logged-in device.
type Session struct {
	UserID      string    `json:"user_id"`
	DeviceID    string    `json:"device_id"`
	AccessToken string    `json:"access_token"`
	Server      string    `json:"server"`
	CreatedAt   time.Time `json:"created_at"`
}

// Valid reports whether the record carries enough to authenticate.
func (s *Session) Valid() bool {
	return s != nil && s.UserID != "" && s.DeviceID != "" && s.AccessToken != ""
}

// loadSession reads the session record from dir. A missing file is reported
// as (nil, nil); any other failure is an error.
func loadSession(dir string) (*Session, error) {
	raw, err := os.ReadFile(filepath.Join(dir, sessionFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	if !session.Valid() {
		return nil, fmt.Errorf("session file is missing credentials")
	}
	return &session, nil
}

// saveSession writes the session record with owner-only permissions.
func saveSession(dir string, session *Session) error {
	raw, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, sessionFileName), raw, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}
