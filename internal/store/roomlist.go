// Package store holds the shared projection of the room list and the open
// room timelines. Every container has its own exclusive guard; guards are
// held only across pure in-memory mutation, never across calls that may
// suspend. Lock order across containers is room list, then room map, then
// timeline map.
package store

import (
	"sync"

	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/diff"
)

// RoomList is the ordered, index-addressed sequence of room list entries.
// It is mutated exclusively through diff application.
type RoomList struct {
	mu      sync.RWMutex
	entries []chat.RoomEntry
}

// NewRoomList creates a list seeded with the initial server snapshot.
func NewRoomList(initial []chat.RoomEntry) *RoomList {
	entries := make([]chat.RoomEntry, len(initial))
	copy(entries, initial)
	return &RoomList{entries: entries}
}

// ApplyBatch applies a diff batch atomically with respect to readers. If any
// operation in the batch is out of range the whole batch is refused, the
// error is returned, and the list keeps its pre-batch state. Later batches
// still apply.
func (l *RoomList) ApplyBatch(batch []diff.Diff[chat.RoomEntry]) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, err := diff.ApplyAll(l.entries, batch)
	if err != nil {
		return err
	}
	l.entries = next
	return nil
}

// Snapshot returns a point-in-time copy of the entries. The copy is never
// mutated by later diff applications.
func (l *RoomList) Snapshot() []chat.RoomEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]chat.RoomEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the current number of entries.
func (l *RoomList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// At returns the entry at index i, if it exists.
func (l *RoomList) At(i int) (chat.RoomEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.entries) {
		return chat.RoomEntry{}, false
	}
	return l.entries[i], true
}

// RoomIDs returns the identifiers currently resolvable from the list, in
// list order.
func (l *RoomList) RoomIDs() []chat.RoomID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]chat.RoomID, 0, len(l.entries))
	for _, entry := range l.entries {
		if id, ok := entry.AsRoomID(); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
