package store

import (
	"sync"

	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/diff"
)

// Timeline is one room's ordered item sequence plus the stop handle of the
// consumer feeding it. The consumer is the sole writer of the items.
type Timeline struct {
	mu    sync.RWMutex
	items []chat.TimelineItem

	stopOnce sync.Once
	stop     func()
}

// NewTimeline creates a timeline seeded with the initial item snapshot.
// stop cancels the consumer feeding it; it may be nil.
func NewTimeline(initial []chat.TimelineItem, stop func()) *Timeline {
	items := make([]chat.TimelineItem, len(initial))
	copy(items, initial)
	return &Timeline{items: items, stop: stop}
}

// ApplyBatch applies a diff batch atomically with respect to readers, with
// the same whole-batch refusal policy as RoomList.ApplyBatch.
func (t *Timeline) ApplyBatch(batch []diff.Diff[chat.TimelineItem]) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	next, err := diff.ApplyAll(t.items, batch)
	if err != nil {
		return err
	}
	t.items = next
	return nil
}

// Snapshot returns a point-in-time copy of the items.
func (t *Timeline) Snapshot() []chat.TimelineItem {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]chat.TimelineItem, len(t.items))
	copy(out, t.items)
	return out
}

// Stop cancels the consumer feeding this timeline. Idempotent.
func (t *Timeline) Stop() {
	t.stopOnce.Do(func() {
		if t.stop != nil {
			t.stop()
		}
	})
}

// RoomMap maps room ids to service handles. A handle is inserted at most
// once per id; re-insertion is a no-op.
type RoomMap struct {
	mu    sync.RWMutex
	rooms map[chat.RoomID]chat.Room
}

// NewRoomMap creates an empty room map.
func NewRoomMap() *RoomMap {
	return &RoomMap{rooms: make(map[chat.RoomID]chat.Room)}
}

// Contains reports whether id already has a handle.
func (m *RoomMap) Contains(id chat.RoomID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[id]
	return ok
}

// Get returns the handle for id, if present.
func (m *RoomMap) Get(id chat.RoomID) (chat.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

// MergeNew inserts every absent (id, handle) pair in one lock hold. Present
// ids are left untouched.
func (m *RoomMap) MergeNew(batch map[chat.RoomID]chat.Room) {
	if len(batch) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, room := range batch {
		if _, ok := m.rooms[id]; !ok {
			m.rooms[id] = room
		}
	}
}

// Len returns the number of resolved rooms.
func (m *RoomMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// TimelineMap maps room ids to their timelines, one per room for the life of
// the process.
type TimelineMap struct {
	mu        sync.RWMutex
	timelines map[chat.RoomID]*Timeline
}

// NewTimelineMap creates an empty timeline map.
func NewTimelineMap() *TimelineMap {
	return &TimelineMap{timelines: make(map[chat.RoomID]*Timeline)}
}

// Get returns the timeline for id, if present.
func (m *TimelineMap) Get(id chat.RoomID) (*Timeline, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.timelines[id]
	return t, ok
}

// MergeNew inserts every absent (id, timeline) pair in one lock hold.
// Present ids are left untouched.
func (m *TimelineMap) MergeNew(batch map[chat.RoomID]*Timeline) {
	if len(batch) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range batch {
		if _, ok := m.timelines[id]; !ok {
			m.timelines[id] = t
		}
	}
}

// Len returns the number of timelines.
func (m *TimelineMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.timelines)
}

// StopAll cancels every timeline consumer. Used at shutdown only.
func (m *TimelineMap) StopAll() {
	m.mu.RLock()
	timelines := make([]*Timeline, 0, len(m.timelines))
	for _, t := range m.timelines {
		timelines = append(timelines, t)
	}
	m.mu.RUnlock()

	for _, t := range timelines {
		t.Stop()
	}
}
