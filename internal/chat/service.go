package chat

import (
	"context"

	"github.com/tOgg1/parley/internal/diff"
)

// RoomListStream is the ordered diff stream of the room list. Batches must
// be applied in receipt order.
type RoomListStream = <-chan []diff.Diff[RoomEntry]

// TimelineStream is the ordered diff stream of one room's timeline.
type TimelineStream = <-chan []diff.Diff[TimelineItem]

// CancelFunc releases a subscription or stream. Safe to call more than once.
type CancelFunc = func()

// SyncService drives synchronization with the server. The engine only needs
// start/stop and a way to observe the transition away from running during
// shutdown.
type SyncService interface {
	// Start begins (or resumes) syncing. Idempotent while running.
	Start(ctx context.Context) error
	// Stop halts syncing. The state stream reports the transition.
	Stop(ctx context.Context) error
	// State subscribes to sync state transitions. The current state is
	// delivered first. Each caller gets its own channel.
	State() (<-chan SyncState, CancelFunc)
	// RoomList returns the room list service backed by this sync session.
	RoomList() RoomListService
}

// RoomListService exposes the ranked room list.
type RoomListService interface {
	// AllRooms returns the initial ordered entries and the live diff
	// stream. The stream is closed when the service shuts down.
	AllRooms(ctx context.Context) ([]RoomEntry, RoomListStream, CancelFunc, error)
	// Room resolves a handle for a room visible in the list.
	Room(ctx context.Context, id RoomID) (Room, error)
}

// TimelineBuilder configures how a room timeline is assembled before
// initialization.
type TimelineBuilder interface {
	// TrackReadMarker enables the virtual read-marker item.
	TrackReadMarker() TimelineBuilder
	// DayDividers enables virtual day-divider items.
	DayDividers() TimelineBuilder
}

// RoomSubscription narrows what a room subscription asks the server to
// prioritize. A nil subscription uses server defaults.
type RoomSubscription struct {
	TimelineLimit int
}

// Room is a handle on one room from the room list service.
type Room interface {
	// ID returns the room identifier.
	ID() RoomID
	// DefaultTimelineBuilder returns the builder preconfigured with the
	// client defaults.
	DefaultTimelineBuilder(ctx context.Context) (TimelineBuilder, error)
	// InitTimeline assembles the live timeline. Must be called once before
	// Timeline returns a handle.
	InitTimeline(ctx context.Context, b TimelineBuilder) error
	// Timeline returns the live timeline, if initialized.
	Timeline() (Timeline, bool)
	// Subscribe asks the server to prioritize this room.
	Subscribe(sub *RoomSubscription)
	// Unsubscribe drops the priority subscription.
	Unsubscribe()
	// ReadReceipts returns the receipt summary for this room.
	ReadReceipts() ReadReceipts
}

// Timeline is the live item sequence of one room.
type Timeline interface {
	// Subscribe returns the initial ordered items and the live diff
	// stream, plus a cancel releasing the subscription.
	Subscribe(ctx context.Context) ([]TimelineItem, TimelineStream, CancelFunc)
	// MarkAsRead sends a receipt up to the latest item. The bool reports
	// whether a receipt was actually sent.
	MarkAsRead(ctx context.Context, kind ReceiptKind) (bool, error)
}
