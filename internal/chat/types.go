// Package chat defines the data model and service contracts the view
// synchronization engine consumes. Implementations live elsewhere (see
// internal/client); the engine only depends on these shapes.
package chat

import "time"

// RoomID identifies a room on the server.
type RoomID string

// EntryKind discriminates RoomEntry variants.
type EntryKind int

const (
	// EntryEmpty is a placeholder slot whose content has not arrived yet.
	EntryEmpty EntryKind = iota
	// EntryInvalidated is a slot whose previous content is stale; it may
	// still carry the last known room id.
	EntryInvalidated
	// EntryFilled is a slot resolved to a room.
	EntryFilled
)

// RoomEntry is one slot in the ranked room list. Order in the list is
// meaningful; it maps to ranking from the server.
type RoomEntry struct {
	Kind   EntryKind
	RoomID RoomID
}

// AsRoomID returns the room id for filled or invalidated-with-id entries.
func (e RoomEntry) AsRoomID() (RoomID, bool) {
	switch e.Kind {
	case EntryFilled:
		return e.RoomID, true
	case EntryInvalidated:
		if e.RoomID != "" {
			return e.RoomID, true
		}
	}
	return "", false
}

// ContentKind discriminates event content variants.
type ContentKind int

const (
	// ContentMessage is a regular message; Body holds the text.
	ContentMessage ContentKind = iota
	// ContentRedacted is a message removed by redaction.
	ContentRedacted
	// ContentUndecryptable is an encrypted event the session cannot read.
	ContentUndecryptable
	// ContentOther covers event kinds the client does not render.
	ContentOther
)

// VirtualKind discriminates virtual timeline items.
type VirtualKind int

const (
	// VirtualDayDivider separates items by day; Timestamp carries the day.
	VirtualDayDivider VirtualKind = iota
	// VirtualReadMarker marks the user's fully-read position.
	VirtualReadMarker
)

// TimelineItem is one displayable entry of a room timeline: either a real
// event or a virtual marker injected for display.
type TimelineItem struct {
	// Virtual is true for day dividers and read markers; the event fields
	// are then unset.
	Virtual     bool
	VirtualKind VirtualKind
	Timestamp   time.Time

	Sender  string
	Content ContentKind
	Body    string
}

// EventItem builds a real event item.
func EventItem(sender string, content ContentKind, body string) TimelineItem {
	return TimelineItem{Sender: sender, Content: content, Body: body}
}

// DayDivider builds a virtual day-divider item.
func DayDivider(ts time.Time) TimelineItem {
	return TimelineItem{Virtual: true, VirtualKind: VirtualDayDivider, Timestamp: ts}
}

// ReadMarker builds a virtual read-marker item.
func ReadMarker() TimelineItem {
	return TimelineItem{Virtual: true, VirtualKind: VirtualReadMarker}
}

// ReceiptKind selects which receipt a mark-as-read call sends.
type ReceiptKind string

const (
	// ReceiptRead is a public read receipt.
	ReceiptRead ReceiptKind = "read"
	// ReceiptReadPrivate is a receipt not shared with other users.
	ReceiptReadPrivate ReceiptKind = "read-private"
)

// ReadReceipts summarizes the receipt state of a room as computed by the
// server.
type ReadReceipts struct {
	Unread        int
	Notifications int
	Mentions      int
}

// SyncState is the observable state of the synchronization service.
type SyncState int

const (
	// SyncIdle means the service is constructed but not running.
	SyncIdle SyncState = iota
	// SyncRunning means the service is actively syncing.
	SyncRunning
	// SyncTerminated means the service was stopped and will not resume on
	// its own.
	SyncTerminated
	// SyncError means the service stopped after a failure.
	SyncError
)

// String returns a human-readable state name.
func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncRunning:
		return "running"
	case SyncTerminated:
		return "terminated"
	case SyncError:
		return "error"
	default:
		return "unknown"
	}
}
