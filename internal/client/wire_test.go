package client

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/diff"
)

func TestDecodeEntryOps(t *testing.T) {
	var f frame
	raw := `{
		"type": "room_list",
		"ops": [
			{"op": "reset", "values": [{"kind": "empty"}, {"kind": "empty"}]},
			{"op": "set", "index": 0, "value": {"kind": "filled", "room_id": "room:1"}},
			{"op": "pushBack", "value": {"kind": "invalidated", "room_id": "room:2"}}
		]
	}`
	require.NoError(t, json.Unmarshal([]byte(raw), &f))
	require.Equal(t, frameRoomList, f.Type)

	batch, err := decodeEntryOps(f.Ops)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	require.Equal(t, diff.OpReset, batch[0].Op)
	require.Len(t, batch[0].Values, 2)
	require.Equal(t, chat.EntryEmpty, batch[0].Values[0].Kind)

	require.Equal(t, diff.OpSet, batch[1].Op)
	require.Equal(t, 0, batch[1].Index)
	require.Equal(t, chat.EntryFilled, batch[1].Value.Kind)
	require.Equal(t, chat.RoomID("room:1"), batch[1].Value.RoomID)

	require.Equal(t, diff.OpPushBack, batch[2].Op)
	require.Equal(t, chat.EntryInvalidated, batch[2].Value.Kind)
}

func TestDecodeEntryOpsRejectsFilledWithoutRoomID(t *testing.T) {
	ops := []wireOp{{Op: "pushBack", Value: json.RawMessage(`{"kind": "filled"}`)}}
	_, err := decodeEntryOps(ops)
	require.Error(t, err)
}

func TestDecodeEntryOpsRejectsUnknownOp(t *testing.T) {
	ops := []wireOp{{Op: "swap", Value: json.RawMessage(`{"kind": "empty"}`)}}
	_, err := decodeEntryOps(ops)
	require.ErrorContains(t, err, "unknown diff op")
}

func TestDecodeItemOps(t *testing.T) {
	ops := []wireOp{
		{Op: "append", Values: []json.RawMessage{
			json.RawMessage(`{"virtual": "day_divider", "ts": 1700000000000}`),
			json.RawMessage(`{"sender": "@alice:example.org", "kind": "message", "body": "hi"}`),
			json.RawMessage(`{"sender": "@bob:example.org", "kind": "redacted"}`),
			json.RawMessage(`{"virtual": "read_marker"}`),
		}},
	}
	batch, err := decodeItemOps(ops)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	items := batch[0].Values
	require.Len(t, items, 4)

	require.True(t, items[0].Virtual)
	require.Equal(t, chat.VirtualDayDivider, items[0].VirtualKind)
	require.Equal(t, time.UnixMilli(1700000000000).UTC(), items[0].Timestamp)

	require.False(t, items[1].Virtual)
	require.Equal(t, chat.ContentMessage, items[1].Content)
	require.Equal(t, "@alice:example.org", items[1].Sender)
	require.Equal(t, "hi", items[1].Body)

	require.Equal(t, chat.ContentRedacted, items[2].Content)

	require.True(t, items[3].Virtual)
	require.Equal(t, chat.VirtualReadMarker, items[3].VirtualKind)
}

func TestDecodeItemOpsRejectsUnknownVirtual(t *testing.T) {
	ops := []wireOp{{Op: "pushBack", Value: json.RawMessage(`{"virtual": "typing"}`)}}
	_, err := decodeItemOps(ops)
	require.ErrorContains(t, err, "unknown virtual item")
}

func TestDecodedBatchAppliesInOrder(t *testing.T) {
	ops := []wireOp{
		{Op: "pushBack", Value: json.RawMessage(`{"kind": "filled", "room_id": "room:1"}`)},
		{Op: "pushFront", Value: json.RawMessage(`{"kind": "filled", "room_id": "room:2"}`)},
		{Op: "remove", Index: 1},
	}
	batch, err := decodeEntryOps(ops)
	require.NoError(t, err)

	entries, err := diff.ApplyAll(nil, batch)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, chat.RoomID("room:2"), entries[0].RoomID)
}
