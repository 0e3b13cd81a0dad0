package client

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

// Sealing parameters for dehydrated device payloads. The key is derived
// from the caller's pickle key with argon2id and the payload sealed with
// secretbox.
const (
	sealSaltSize  = 16
	sealNonceSize = 24
	sealKeySize   = 32

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4

	devicePayloadSize = 32
)

// DehydrationError is a failure of the dehydration machinery itself, most
// commonly a wrong pickle key during rehydration.
type DehydrationError struct {
	Op  string
	Err error
}

func (e *DehydrationError) Error() string {
	return fmt.Sprintf("dehydration %s: %v", e.Op, e.Err)
}

func (e *DehydrationError) Unwrap() error {
	return e.Err
}

var errSealOpen = errors.New("could not open sealed payload (wrong pickle key?)")

// DehydratedDevices manages the account's dehydrated device: a sealed
// device record parked server-side so another login can pick up queued
// encrypted traffic.
type DehydratedDevices struct {
	client *Client
}

type dehydratedDeviceUpload struct {
	DeviceID string `json:"device_id"`
	Salt     string `json:"salt"`
	Nonce    string `json:"nonce"`
	Sealed   string `json:"sealed"`
}

type dehydratedDeviceRecord struct {
	DeviceID string `json:"device_id"`
	Salt     string `json:"salt"`
	Nonce    string `json:"nonce"`
	Sealed   string `json:"sealed"`
}

// Create generates a fresh dehydrated device sealed under pickleKey,
// persists the record locally and uploads it. It returns the new device id.
func (d *DehydratedDevices) Create(ctx context.Context, pickleKey []byte) (string, error) {
	if len(pickleKey) == 0 {
		return "", &DehydrationError{Op: "create", Err: errors.New("empty pickle key")}
	}

	deviceID := uuid.NewString()

	salt := make([]byte, sealSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", &DehydrationError{Op: "create", Err: err}
	}
	payload := make([]byte, devicePayloadSize)
	if _, err := rand.Read(payload); err != nil {
		return "", &DehydrationError{Op: "create", Err: err}
	}

	var nonce [sealNonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", &DehydrationError{Op: "create", Err: err}
	}

	key := deriveSealKey(pickleKey, salt)
	sealed := secretbox.Seal(nil, payload, &nonce, key)

	rec := dehydratedRecord{
		DeviceID:  deviceID,
		Salt:      salt,
		Nonce:     nonce[:],
		Sealed:    sealed,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.client.crypto.SaveDehydratedDevice(ctx, rec); err != nil {
		return "", err
	}

	upload := dehydratedDeviceUpload{
		DeviceID: deviceID,
		Salt:     base64.StdEncoding.EncodeToString(salt),
		Nonce:    base64.StdEncoding.EncodeToString(nonce[:]),
		Sealed:   base64.StdEncoding.EncodeToString(sealed),
	}
	path := "/_parley/client/v1/dehydrated_device/" + url.PathEscape(deviceID)
	if err := d.client.putJSON(ctx, path, upload, nil); err != nil {
		return "", fmt.Errorf("upload dehydrated device: %w", err)
	}

	d.client.log.Info().Str("device_id", deviceID).Msg("created dehydrated device")
	return deviceID, nil
}

// Rehydrate fetches the account's dehydrated device and unseals it with
// pickleKey. When the server copy cannot be fetched the locally persisted
// record from Create is used instead, so a flaky server does not block
// rehydration on the machine that made the device. A wrong key is reported
// as a *DehydrationError.
func (d *DehydratedDevices) Rehydrate(ctx context.Context, pickleKey []byte) (*RehydratedDevice, error) {
	rec, err := d.fetchRecord(ctx)
	if err != nil {
		return nil, err
	}

	payload, ok := openSealed(rec.Sealed, rec.Nonce, pickleKey, rec.Salt)
	if !ok {
		return nil, &DehydrationError{Op: "rehydrate", Err: errSealOpen}
	}

	d.client.log.Info().Str("device_id", rec.DeviceID).Msg("rehydrated device")
	return &RehydratedDevice{
		client:   d.client,
		deviceID: rec.DeviceID,
		payload:  payload,
	}, nil
}

func (d *DehydratedDevices) fetchRecord(ctx context.Context) (dehydratedRecord, error) {
	var wire dehydratedDeviceRecord
	fetchErr := d.client.getJSON(ctx, "/_parley/client/v1/dehydrated_device", &wire)
	if fetchErr == nil {
		return decodeDehydratedRecord(wire)
	}

	local, localErr := d.client.crypto.LatestDehydratedDevice(ctx)
	if localErr != nil {
		return dehydratedRecord{}, fmt.Errorf("fetch dehydrated device: %w", fetchErr)
	}
	d.client.log.Warn().Err(fetchErr).Str("device_id", local.DeviceID).
		Msg("server fetch failed, rehydrating from the local record")
	return local, nil
}

func decodeDehydratedRecord(wire dehydratedDeviceRecord) (dehydratedRecord, error) {
	salt, err := base64.StdEncoding.DecodeString(wire.Salt)
	if err != nil {
		return dehydratedRecord{}, &DehydrationError{Op: "rehydrate", Err: fmt.Errorf("decode salt: %w", err)}
	}
	nonce, err := base64.StdEncoding.DecodeString(wire.Nonce)
	if err != nil {
		return dehydratedRecord{}, &DehydrationError{Op: "rehydrate", Err: fmt.Errorf("decode nonce: %w", err)}
	}
	sealed, err := base64.StdEncoding.DecodeString(wire.Sealed)
	if err != nil {
		return dehydratedRecord{}, &DehydrationError{Op: "rehydrate", Err: fmt.Errorf("decode payload: %w", err)}
	}
	if len(nonce) != sealNonceSize {
		return dehydratedRecord{}, &DehydrationError{Op: "rehydrate", Err: errors.New("malformed nonce")}
	}
	return dehydratedRecord{
		DeviceID: wire.DeviceID,
		Salt:     salt,
		Nonce:    nonce,
		Sealed:   sealed,
	}, nil
}

func deriveSealKey(pickleKey, salt []byte) *[sealKeySize]byte {
	derived := argon2.IDKey(pickleKey, salt, argonTime, argonMemory, argonThreads, sealKeySize)
	var key [sealKeySize]byte
	copy(key[:], derived)
	return &key
}

func openSealed(sealed, nonceRaw, pickleKey, salt []byte) ([]byte, bool) {
	var nonce [sealNonceSize]byte
	copy(nonce[:], nonceRaw)
	return secretbox.Open(nil, sealed, &nonce, deriveSealKey(pickleKey, salt))
}

// RehydratedDevice is an unsealed dehydrated device able to drain its
// queued events.
type RehydratedDevice struct {
	client   *Client
	deviceID string
	payload  []byte
}

// DeviceID returns the rehydrated device's id.
func (r *RehydratedDevice) DeviceID() string {
	return r.deviceID
}

type deviceEventsResponse struct {
	Events    []string `json:"events"`
	NextBatch string   `json:"next_batch"`
}

// Events pulls the next page of queued events for this device, persisting
// them locally. An empty since fetches from the start of the queue; the
// returned token resumes from after this page.
func (r *RehydratedDevice) Events(ctx context.Context, since string) ([]string, string, error) {
	path := "/_parley/client/v1/dehydrated_device/" + url.PathEscape(r.deviceID) + "/events"
	if since != "" {
		path += "?since=" + url.QueryEscape(since)
	}

	var resp deviceEventsResponse
	if err := r.client.getJSON(ctx, path, &resp); err != nil {
		return nil, "", fmt.Errorf("fetch device events: %w", err)
	}

	if err := r.client.crypto.SaveDeviceEvents(ctx, r.deviceID, resp.Events); err != nil {
		return nil, "", err
	}
	return resp.Events, resp.NextBatch, nil
}
