package client

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/secretbox"
)

func TestSealRoundTrip(t *testing.T) {
	pickleKey := []byte("correct horse battery staple")
	salt := make([]byte, sealSaltSize)
	_, err := rand.Read(salt)
	require.NoError(t, err)

	var nonce [sealNonceSize]byte
	_, err = rand.Read(nonce[:])
	require.NoError(t, err)

	payload := []byte("device key material")
	sealed := secretbox.Seal(nil, payload, &nonce, deriveSealKey(pickleKey, salt))

	opened, ok := openSealed(sealed, nonce[:], pickleKey, salt)
	require.True(t, ok)
	require.Equal(t, payload, opened)

	_, ok = openSealed(sealed, nonce[:], []byte("wrong key"), salt)
	require.False(t, ok)
}

func TestCreateAndRehydrate(t *testing.T) {
	var stored dehydratedDeviceUpload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/_parley/client/v1/login":
			json.NewEncoder(w).Encode(loginResponse{
				UserID: "@alice:example.org", DeviceID: "D", AccessToken: "t",
			})
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/_parley/client/v1/dehydrated_device/"):
			require.NoError(t, json.NewDecoder(r.Body).Decode(&stored))
			w.Write([]byte("{}"))
		case r.Method == http.MethodGet && r.URL.Path == "/_parley/client/v1/dehydrated_device":
			json.NewEncoder(w).Encode(dehydratedDeviceRecord(stored))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := buildTestClient(t, server)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "alice", "pw"))

	devices, err := c.DehydratedDevices()
	require.NoError(t, err)

	pickleKey := []byte("pickle key")
	deviceID, err := devices.Create(ctx, pickleKey)
	require.NoError(t, err)
	require.NotEmpty(t, deviceID)
	require.Equal(t, deviceID, stored.DeviceID)

	rehydrated, err := devices.Rehydrate(ctx, pickleKey)
	require.NoError(t, err)
	require.Equal(t, deviceID, rehydrated.DeviceID())
}

func TestRehydrateFallsBackToLocalRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/_parley/client/v1/login":
			json.NewEncoder(w).Encode(loginResponse{
				UserID: "@alice:example.org", DeviceID: "D", AccessToken: "t",
			})
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/_parley/client/v1/dehydrated_device/"):
			w.Write([]byte("{}"))
		case r.Method == http.MethodGet && r.URL.Path == "/_parley/client/v1/dehydrated_device":
			http.Error(w, `{"errcode":"UNAVAILABLE","error":"try later"}`, http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := buildTestClient(t, server)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "alice", "pw"))

	devices, err := c.DehydratedDevices()
	require.NoError(t, err)

	pickleKey := []byte("pickle key")
	deviceID, err := devices.Create(ctx, pickleKey)
	require.NoError(t, err)

	rehydrated, err := devices.Rehydrate(ctx, pickleKey)
	require.NoError(t, err, "local record should cover a failing server fetch")
	require.Equal(t, deviceID, rehydrated.DeviceID())

	// The local record path still rejects a wrong key the typed way.
	_, err = devices.Rehydrate(ctx, []byte("wrong key"))
	var dehydrationErr *DehydrationError
	require.ErrorAs(t, err, &dehydrationErr)
	require.Equal(t, "rehydrate", dehydrationErr.Op)
}

func TestRehydrateWithoutAnyRecordFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/_parley/client/v1/login":
			json.NewEncoder(w).Encode(loginResponse{
				UserID: "@alice:example.org", DeviceID: "D", AccessToken: "t",
			})
		default:
			http.Error(w, `{"errcode":"UNAVAILABLE","error":"try later"}`, http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	c := buildTestClient(t, server)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "alice", "pw"))

	devices, err := c.DehydratedDevices()
	require.NoError(t, err)

	_, err = devices.Rehydrate(ctx, []byte("pickle key"))
	require.ErrorContains(t, err, "fetch dehydrated device")
}

func TestRehydrateWrongKeyIsTyped(t *testing.T) {
	var stored dehydratedDeviceUpload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/_parley/client/v1/login":
			json.NewEncoder(w).Encode(loginResponse{
				UserID: "@alice:example.org", DeviceID: "D", AccessToken: "t",
			})
		case r.Method == http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&stored))
			w.Write([]byte("{}"))
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(dehydratedDeviceRecord(stored))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := buildTestClient(t, server)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "alice", "pw"))

	devices, err := c.DehydratedDevices()
	require.NoError(t, err)

	_, err = devices.Create(ctx, []byte("right key"))
	require.NoError(t, err)

	_, err = devices.Rehydrate(ctx, []byte("wrong key"))
	require.Error(t, err)

	var dehydrationErr *DehydrationError
	require.ErrorAs(t, err, &dehydrationErr)
	require.Equal(t, "rehydrate", dehydrationErr.Op)
}

func TestEventsPaging(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/_parley/client/v1/login":
			json.NewEncoder(w).Encode(loginResponse{
				UserID: "@alice:example.org", DeviceID: "D", AccessToken: "t",
			})
		case strings.HasSuffix(r.URL.Path, "/events"):
			if r.URL.Query().Get("since") == "" {
				json.NewEncoder(w).Encode(deviceEventsResponse{
					Events:    []string{"event-1", "event-2"},
					NextBatch: "batch-2",
				})
				return
			}
			json.NewEncoder(w).Encode(deviceEventsResponse{NextBatch: "batch-2"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := buildTestClient(t, server)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "alice", "pw"))

	device := &RehydratedDevice{client: c, deviceID: "DEVICE1"}

	events, next, err := device.Events(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"event-1", "event-2"}, events)
	require.Equal(t, "batch-2", next)

	events, next, err = device.Events(ctx, next)
	require.NoError(t, err)
	require.Empty(t, events)
	require.Equal(t, "batch-2", next)
}
