// Package client implements the chat services parley consumes: login and
// session persistence, the live diff-stream connection, room and timeline
// handles, and the dehydrated-device operations. The view-synchronization
// engine only sees the contracts in internal/chat.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/parley/internal/logging"
)

const defaultHTTPTimeout = 30 * time.Second

// ErrDeviceManagementUnavailable is returned when a device-management
// operation is attempted without an authenticated session.
var ErrDeviceManagementUnavailable = errors.New("device management unavailable: no active session")

// ErrNotLoggedIn is returned when an operation requires credentials and no
// session is present.
var ErrNotLoggedIn = errors.New("not logged in")

// Builder assembles a Client. Construction failures (store open, bad server
// name) are fatal at startup.
type Builder struct {
	serverName    string
	storageDir    string
	busyTimeoutMs int
	httpClient    *http.Client
}

// NewBuilder creates a Builder with defaults.
func NewBuilder() *Builder {
	return &Builder{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// ServerName sets the server the client talks to. A bare name is reached
// over https; an explicit http:// or https:// prefix is honored as-is.
func (b *Builder) ServerName(name string) *Builder {
	b.serverName = name
	return b
}

// StorageDir sets where the session file and the embedded stores live.
func (b *Builder) StorageDir(dir string) *Builder {
	b.storageDir = dir
	return b
}

// BusyTimeoutMs sets the store lock wait.
func (b *Builder) BusyTimeoutMs(ms int) *Builder {
	b.busyTimeoutMs = ms
	return b
}

// HTTPClient overrides the HTTP client, mainly for tests.
func (b *Builder) HTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// Build opens the embedded stores and restores a persisted session if one
// exists.
func (b *Builder) Build() (*Client, error) {
	name := strings.TrimSpace(b.serverName)
	if name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if b.storageDir == "" {
		return nil, fmt.Errorf("storage directory is required")
	}

	baseURL := name
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	state, err := openStateStore(b.storageDir, b.busyTimeoutMs)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	crypto, err := openCryptoStore(b.storageDir, b.busyTimeoutMs)
	if err != nil {
		_ = state.Close()
		return nil, fmt.Errorf("open crypto store: %w", err)
	}

	session, err := loadSession(b.storageDir)
	if err != nil {
		// A corrupt session file degrades to a fresh login, not a crash.
		clientLog := logging.Component("client")
		clientLog.Warn().Err(err).Msg("ignoring unreadable session file")
		session = nil
	}

	return &Client{
		baseURL:    baseURL,
		serverName: name,
		storageDir: b.storageDir,
		http:       b.httpClient,
		state:      state,
		crypto:     crypto,
		session:    session,
		log:        logging.Component("client"),
	}, nil
}

// Client is the concrete service implementation behind the chat contracts.
type Client struct {
	baseURL    string
	serverName string
	storageDir string
	http       *http.Client
	state      *stateStore
	crypto     *cryptoStore
	log        zerolog.Logger

	mu      sync.Mutex
	session *Session
}

// Restored reports whether a persisted session was found at build time.
func (c *Client) Restored() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Valid()
}

// Session returns a copy of the active session, if any.
func (c *Client) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.session.Valid() {
		return Session{}, false
	}
	return *c.session, true
}

// UserID returns the logged-in user, or "".
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.UserID
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserID      string `json:"user_id"`
	DeviceID    string `json:"device_id"`
	AccessToken string `json:"access_token"`
}

// Login authenticates with username and password and persists the resulting
// session record to disk.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp loginResponse
	err := c.postJSON(ctx, "/_parley/client/v1/login",
		loginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return err
	}
	if resp.AccessToken == "" {
		return fmt.Errorf("login response is missing an access token")
	}

	session := &Session{
		UserID:      resp.UserID,
		DeviceID:    resp.DeviceID,
		AccessToken: resp.AccessToken,
		Server:      c.serverName,
		CreatedAt:   time.Now().UTC(),
	}
	if err := saveSession(c.storageDir, session); err != nil {
		return err
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	c.log.Info().Str("user_id", resp.UserID).Msg("logged in")
	return nil
}

// DehydratedDevices returns the device-management submodule. Without an
// authenticated session this is the typed, recoverable
// ErrDeviceManagementUnavailable.
func (c *Client) DehydratedDevices() (*DehydratedDevices, error) {
	if !c.Restored() {
		return nil, ErrDeviceManagementUnavailable
	}
	return &DehydratedDevices{client: c}, nil
}

// Close releases the embedded stores.
func (c *Client) Close() error {
	stateErr := c.state.Close()
	cryptoErr := c.crypto.Close()
	if stateErr != nil {
		return stateErr
	}
	return cryptoErr
}

func (c *Client) accessToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.session.Valid() {
		return "", ErrNotLoggedIn
	}
	return c.session.AccessToken, nil
}

// apiError is a structured failure from the HTTP API.
type apiError struct {
	Status  int
	Code    string `json:"errcode"`
	Message string `json:"error"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) putJSON(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, body, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, err := c.accessToken(); err == nil {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
