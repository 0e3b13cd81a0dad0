package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatusNotifierExpires(t *testing.T) {
	n := NewStatusNotifier(30 * time.Millisecond)
	defer n.Close()

	n.Set("saved")
	text, ok := n.Read()
	require.True(t, ok)
	require.Equal(t, "saved", text)

	require.Eventually(t, func() bool {
		_, ok := n.Read()
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestStatusNotifierLastWriteWins(t *testing.T) {
	n := NewStatusNotifier(60 * time.Millisecond)
	defer n.Close()

	n.Set("saved")
	time.Sleep(20 * time.Millisecond)
	n.Set("sync error")

	// The first timer's window elapses; only the second message remains.
	time.Sleep(50 * time.Millisecond)
	text, ok := n.Read()
	require.True(t, ok)
	require.Equal(t, "sync error", text)

	// The second timer eventually clears it.
	require.Eventually(t, func() bool {
		_, ok := n.Read()
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestStatusNotifierCloseCancelsExpiry(t *testing.T) {
	n := NewStatusNotifier(20 * time.Millisecond)
	n.Set("shutting down")
	n.Close()

	time.Sleep(40 * time.Millisecond)
	text, ok := n.Read()
	require.True(t, ok)
	require.Equal(t, "shutting down", text)
}
