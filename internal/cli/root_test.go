package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/parley/internal/client"
)

func loginTestClient(t *testing.T, server *httptest.Server) *client.Client {
	t.Helper()
	c, err := client.NewBuilder().
		ServerName(server.URL).
		StorageDir(t.TempDir()).
		HTTPClient(server.Client()).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLoginLoopRetriesBadCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.Password != "hunter2" {
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"errcode": "FORBIDDEN", "error": "bad credentials"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"user_id": "@alice:example.org", "device_id": "D", "access_token": "t",
		})
	}))
	defer server.Close()

	c := loginTestClient(t, server)

	attempts := [][2]string{
		{"alice", "wrong"},
		{"", "irrelevant"},
		{"alice", "hunter2"},
	}
	var prompts int
	prompt := func() (string, string, error) {
		require.Less(t, prompts, len(attempts), "loop kept prompting after a successful login")
		creds := attempts[prompts]
		prompts++
		return creds[0], creds[1], nil
	}

	require.NoError(t, loginLoop(context.Background(), c, prompt))
	require.Equal(t, len(attempts), prompts, "rejected and empty credentials must be re-prompted")
	require.True(t, c.Restored())
	require.Equal(t, "@alice:example.org", c.UserID())
}

func TestLoginLoopAbortsOnPromptError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no login attempt expected")
	}))
	defer server.Close()

	c := loginTestClient(t, server)

	promptErr := errors.New("stdin closed")
	err := loginLoop(context.Background(), c, func() (string, string, error) {
		return "", "", promptErr
	})
	require.ErrorIs(t, err, promptErr)
}

func TestLoginLoopStopsOnCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	c := loginTestClient(t, server)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := loginLoop(ctx, c, func() (string, string, error) {
		t.Fatal("prompt must not run after cancellation")
		return "", "", nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
