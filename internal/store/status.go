package store

import (
	"sync"
	"time"
)

// DefaultStatusTTL is how long a status message stays visible unless
// superseded first.
const DefaultStatusTTL = 4 * time.Second

// StatusNotifier holds at most one transient status message with a
// single-shot expiry timer. Setting a new message cancels the in-flight
// timer; a superseding call always wins over an in-flight expiry.
type StatusNotifier struct {
	mu    sync.Mutex
	text  string
	set   bool
	gen   uint64
	ttl   time.Duration
	timer *time.Timer
}

// NewStatusNotifier creates a notifier clearing messages after ttl. A
// non-positive ttl uses DefaultStatusTTL.
func NewStatusNotifier(ttl time.Duration) *StatusNotifier {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &StatusNotifier{ttl: ttl}
}

// Set installs text as the current status and arms a fresh expiry timer.
func (n *StatusNotifier) Set(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.timer != nil {
		n.timer.Stop()
	}

	n.gen++
	gen := n.gen
	n.text = text
	n.set = true

	// The generation check resolves the race where an expiry fires after
	// it was superseded but before its Stop: last write wins.
	n.timer = time.AfterFunc(n.ttl, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.gen != gen {
			return
		}
		n.text = ""
		n.set = false
	})
}

// Read returns the current status text, if one is set.
func (n *StatusNotifier) Read() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.text, n.set
}

// Close cancels any outstanding expiry timer.
func (n *StatusNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.gen++
}
