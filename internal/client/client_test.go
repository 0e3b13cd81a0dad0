package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	c, err := NewBuilder().
		ServerName(server.URL).
		StorageDir(t.TempDir()).
		HTTPClient(server.Client()).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBuilderRequiresServerName(t *testing.T) {
	_, err := NewBuilder().StorageDir(t.TempDir()).Build()
	require.ErrorContains(t, err, "server name")
}

func TestLoginPersistsSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/_parley/client/v1/login", r.URL.Path)

		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "alice", req.Username)

		json.NewEncoder(w).Encode(loginResponse{
			UserID:      "@alice:example.org",
			DeviceID:    "DEVICE1",
			AccessToken: "token-123",
		})
	}))
	defer server.Close()

	c := buildTestClient(t, server)
	require.False(t, c.Restored())

	require.NoError(t, c.Login(context.Background(), "alice", "hunter2"))
	require.True(t, c.Restored())
	require.Equal(t, "@alice:example.org", c.UserID())

	// A second client over the same storage directory restores the session.
	restored, err := NewBuilder().
		ServerName(server.URL).
		StorageDir(c.storageDir).
		HTTPClient(server.Client()).
		Build()
	require.NoError(t, err)
	defer restored.Close()
	require.True(t, restored.Restored())

	session, ok := restored.Session()
	require.True(t, ok)
	require.Equal(t, "token-123", session.AccessToken)
}

func TestLoginSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{
			"errcode": "FORBIDDEN",
			"error":   "bad credentials",
		})
	}))
	defer server.Close()

	c := buildTestClient(t, server)
	err := c.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.Status)
	require.Equal(t, "FORBIDDEN", apiErr.Code)
}

func TestDehydratedDevicesRequiresSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	c := buildTestClient(t, server)
	_, err := c.DehydratedDevices()
	require.ErrorIs(t, err, ErrDeviceManagementUnavailable)
}

func TestSyncServiceRequiresSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	c := buildTestClient(t, server)
	_, err := c.SyncService()
	require.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestRequestsCarryBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/_parley/client/v1/login" {
			json.NewEncoder(w).Encode(loginResponse{
				UserID: "@alice:example.org", DeviceID: "D", AccessToken: "token-123",
			})
			return
		}
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	c := buildTestClient(t, server)
	require.NoError(t, c.Login(context.Background(), "alice", "pw"))
	require.NoError(t, c.getJSON(context.Background(), "/_parley/client/v1/whoami", &struct{}{}))
	require.Equal(t, "Bearer token-123", gotAuth)
}
