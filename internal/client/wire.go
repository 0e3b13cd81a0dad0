package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/diff"
)

// Stream frame types. The server pushes diff frames per stream; the client
// sends command frames on the same connection.
const (
	frameWelcome   = "welcome"
	frameRoomList  = "room_list"
	frameTimeline  = "timeline"
	frameReceipts  = "receipts"
	framePosition  = "position"
	frameSubscribe = "subscribe"
	frameUnsub     = "unsubscribe"
	frameInitTL    = "init_timeline"
)

// frame is a raw stream frame. Only the fields for its Type are set.
type frame struct {
	Type   string      `json:"type"`
	RoomID chat.RoomID `json:"room_id,omitempty"`

	// Diff frames
	Ops []wireOp `json:"ops,omitempty"`

	// Receipt summary frames
	Unread        int `json:"unread,omitempty"`
	Notifications int `json:"notifications,omitempty"`
	Mentions      int `json:"mentions,omitempty"`

	// Sync position frames
	Position string `json:"position,omitempty"`

	// Subscribe commands
	TimelineLimit int `json:"timeline_limit,omitempty"`

	// Timeline init commands
	TrackReadMarker bool `json:"track_read_marker,omitempty"`
	DayDividers     bool `json:"day_dividers,omitempty"`
}

// wireOp is one structural operation as carried on the wire. Value/Values
// decode lazily depending on the stream the frame belongs to.
type wireOp struct {
	Op     string            `json:"op"`
	Index  int               `json:"index,omitempty"`
	Value  json.RawMessage   `json:"value,omitempty"`
	Values []json.RawMessage `json:"values,omitempty"`
}

// wireEntry is a room-list entry on the wire.
type wireEntry struct {
	Kind   string      `json:"kind"`
	RoomID chat.RoomID `json:"room_id,omitempty"`
}

// wireItem is a timeline item on the wire.
type wireItem struct {
	Virtual   string `json:"virtual,omitempty"` // day_divider | read_marker
	Timestamp int64  `json:"ts,omitempty"`      // unix millis for day dividers

	Sender string `json:"sender,omitempty"`
	Kind   string `json:"kind,omitempty"` // message | redacted | undecryptable | other
	Body   string `json:"body,omitempty"`
}

func parseOp(name string) (diff.Op, error) {
	switch name {
	case "append":
		return diff.OpAppend, nil
	case "clear":
		return diff.OpClear, nil
	case "pushFront":
		return diff.OpPushFront, nil
	case "pushBack":
		return diff.OpPushBack, nil
	case "popFront":
		return diff.OpPopFront, nil
	case "popBack":
		return diff.OpPopBack, nil
	case "insert":
		return diff.OpInsert, nil
	case "set":
		return diff.OpSet, nil
	case "remove":
		return diff.OpRemove, nil
	case "truncate":
		return diff.OpTruncate, nil
	case "reset":
		return diff.OpReset, nil
	default:
		return 0, fmt.Errorf("unknown diff op %q", name)
	}
}

func decodeEntry(raw json.RawMessage) (chat.RoomEntry, error) {
	var we wireEntry
	if err := json.Unmarshal(raw, &we); err != nil {
		return chat.RoomEntry{}, fmt.Errorf("decode room entry: %w", err)
	}
	switch we.Kind {
	case "empty":
		return chat.RoomEntry{Kind: chat.EntryEmpty}, nil
	case "invalidated":
		return chat.RoomEntry{Kind: chat.EntryInvalidated, RoomID: we.RoomID}, nil
	case "filled":
		if we.RoomID == "" {
			return chat.RoomEntry{}, fmt.Errorf("filled room entry without room_id")
		}
		return chat.RoomEntry{Kind: chat.EntryFilled, RoomID: we.RoomID}, nil
	default:
		return chat.RoomEntry{}, fmt.Errorf("unknown room entry kind %q", we.Kind)
	}
}

func decodeItem(raw json.RawMessage) (chat.TimelineItem, error) {
	var wi wireItem
	if err := json.Unmarshal(raw, &wi); err != nil {
		return chat.TimelineItem{}, fmt.Errorf("decode timeline item: %w", err)
	}

	switch wi.Virtual {
	case "day_divider":
		return chat.DayDivider(time.UnixMilli(wi.Timestamp).UTC()), nil
	case "read_marker":
		return chat.ReadMarker(), nil
	case "":
	default:
		return chat.TimelineItem{}, fmt.Errorf("unknown virtual item %q", wi.Virtual)
	}

	content := chat.ContentOther
	switch wi.Kind {
	case "message":
		content = chat.ContentMessage
	case "redacted":
		content = chat.ContentRedacted
	case "undecryptable":
		content = chat.ContentUndecryptable
	case "other", "":
		content = chat.ContentOther
	default:
		return chat.TimelineItem{}, fmt.Errorf("unknown content kind %q", wi.Kind)
	}
	return chat.EventItem(wi.Sender, content, wi.Body), nil
}

// decodeOps decodes a wire op batch into typed diffs using decode for the
// element payloads. Receipt order is preserved.
func decodeOps[T any](ops []wireOp, decode func(json.RawMessage) (T, error)) ([]diff.Diff[T], error) {
	out := make([]diff.Diff[T], 0, len(ops))
	for i, op := range ops {
		parsed, err := parseOp(op.Op)
		if err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}

		d := diff.Diff[T]{Op: parsed, Index: op.Index}
		switch parsed {
		case diff.OpPushFront, diff.OpPushBack, diff.OpInsert, diff.OpSet:
			value, err := decode(op.Value)
			if err != nil {
				return nil, fmt.Errorf("op %d: %w", i, err)
			}
			d.Value = value
		case diff.OpAppend, diff.OpReset:
			values := make([]T, 0, len(op.Values))
			for j, raw := range op.Values {
				value, err := decode(raw)
				if err != nil {
					return nil, fmt.Errorf("op %d value %d: %w", i, j, err)
				}
				values = append(values, value)
			}
			d.Values = values
		}
		out = append(out, d)
	}
	return out, nil
}

func decodeEntryOps(ops []wireOp) ([]diff.Diff[chat.RoomEntry], error) {
	return decodeOps(ops, decodeEntry)
}

func decodeItemOps(ops []wireOp) ([]diff.Diff[chat.TimelineItem], error) {
	return decodeOps(ops, decodeItem)
}
