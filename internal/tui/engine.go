// Package tui renders the chat interface and runs the view synchronization
// engine behind it: one consumer applies room list diffs to the shared
// projection, one supervisor per open room applies timeline diffs, and the
// model polls projection snapshots every frame.
package tui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/diff"
	"github.com/tOgg1/parley/internal/logging"
	"github.com/tOgg1/parley/internal/store"
)

// Options tune the engine.
type Options struct {
	// TimelineLimit is the server-side timeline depth requested when a room
	// gains focus. Zero keeps the server default.
	TimelineLimit int
	// StatusTTL is how long transient status messages stay visible.
	StatusTTL time.Duration
}

// Engine owns the shared projection and the consumers feeding it. The
// rendering model reads the projection through snapshot accessors only.
type Engine struct {
	syncSvc chat.SyncService
	rooms   chat.RoomListService
	log     zerolog.Logger

	timelineLimit int

	list      *store.RoomList
	roomMap   *store.RoomMap
	timelines *store.TimelineMap
	selection *store.Selection
	status    *store.StatusNotifier

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	cancelList chat.CancelFunc

	stateMu     sync.Mutex
	syncState   chat.SyncState
	cancelState chat.CancelFunc

	selMu        sync.Mutex
	selectedRoom chat.RoomID
}

// NewEngine creates an engine over the given sync service.
func NewEngine(svc chat.SyncService, opts Options) *Engine {
	return &Engine{
		syncSvc:       svc,
		rooms:         svc.RoomList(),
		log:           logging.Component("engine"),
		timelineLimit: opts.TimelineLimit,
		list:          store.NewRoomList(nil),
		roomMap:       store.NewRoomMap(),
		timelines:     store.NewTimelineMap(),
		selection:     &store.Selection{},
		status:        store.NewStatusNotifier(opts.StatusTTL),
		syncState:     chat.SyncIdle,
	}
}

// Start begins syncing and spawns the projection consumers. The engine runs
// until Shutdown.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	if err := e.syncSvc.Start(ctx); err != nil {
		e.cancel()
		return fmt.Errorf("start sync service: %w", err)
	}

	stateCh, cancelState := e.syncSvc.State()
	e.cancelState = cancelState
	e.wg.Add(1)
	go e.watchSyncState(stateCh)

	entries, stream, cancelList, err := e.rooms.AllRooms(e.ctx)
	if err != nil {
		e.cancel()
		return fmt.Errorf("subscribe to room list: %w", err)
	}
	e.cancelList = cancelList

	// The initial snapshot flows through the same path as live batches so
	// its rooms are resolved and supervised identically.
	if len(entries) > 0 {
		e.applyListBatch([]diff.Diff[chat.RoomEntry]{{Op: diff.OpReset, Values: entries}})
	}

	e.wg.Add(1)
	go e.consumeRoomList(stream)
	return nil
}

func (e *Engine) watchSyncState(stream <-chan chat.SyncState) {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case state, ok := <-stream:
			if !ok {
				return
			}
			e.stateMu.Lock()
			e.syncState = state
			e.stateMu.Unlock()
		}
	}
}

func (e *Engine) consumeRoomList(stream chat.RoomListStream) {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case batch, ok := <-stream:
			if !ok {
				return
			}
			e.applyListBatch(batch)
		}
	}
}

// applyListBatch applies one room list batch and resolves any rooms the list
// now names that have no handle yet. Runs only on the list consumer
// goroutine (and once during Start, before it exists).
func (e *Engine) applyListBatch(batch []diff.Diff[chat.RoomEntry]) {
	if err := e.list.ApplyBatch(batch); err != nil {
		e.log.Error().Err(err).Int("ops", len(batch)).Msg("refusing room list batch")
		return
	}
	e.resolveNewRooms()
}

func (e *Engine) resolveNewRooms() {
	for _, id := range e.list.RoomIDs() {
		if e.roomMap.Contains(id) {
			continue
		}
		if err := e.openRoom(id); err != nil {
			e.log.Error().Err(err).Str("room_id", string(id)).Msg("could not open room")
		}
	}
}

// openRoom resolves the room handle, initializes its timeline and starts
// the supervisor feeding the projection. No projection guard is held across
// the service calls.
func (e *Engine) openRoom(id chat.RoomID) error {
	room, err := e.rooms.Room(e.ctx, id)
	if err != nil {
		return fmt.Errorf("resolve room: %w", err)
	}

	if _, ok := room.Timeline(); !ok {
		builder, err := room.DefaultTimelineBuilder(e.ctx)
		if err != nil {
			return fmt.Errorf("timeline builder: %w", err)
		}
		if err := room.InitTimeline(e.ctx, builder); err != nil {
			return fmt.Errorf("init timeline: %w", err)
		}
	}

	liveTimeline, ok := room.Timeline()
	if !ok {
		return fmt.Errorf("timeline missing after init")
	}
	items, stream, cancelStream := liveTimeline.Subscribe(e.ctx)

	projected := store.NewTimeline(items, cancelStream)
	e.roomMap.MergeNew(map[chat.RoomID]chat.Room{id: room})
	e.timelines.MergeNew(map[chat.RoomID]*store.Timeline{id: projected})

	e.wg.Add(1)
	go e.superviseTimeline(id, projected, stream)

	e.log.Debug().Str("room_id", string(id)).Msg("room opened")
	return nil
}

func (e *Engine) superviseTimeline(id chat.RoomID, projected *store.Timeline, stream chat.TimelineStream) {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case batch, ok := <-stream:
			if !ok {
				return
			}
			if err := projected.ApplyBatch(batch); err != nil {
				e.log.Error().Err(err).Str("room_id", string(id)).
					Msg("refusing timeline batch")
			}
		}
	}
}

// FocusNext moves the highlight down one entry, wrapping at the end, and
// moves the priority subscription to the newly focused room.
func (e *Engine) FocusNext() {
	idx, changed := e.selection.Next(e.list.Len())
	if changed {
		e.moveSubscription(idx)
	}
}

// FocusPrevious moves the highlight up one entry, wrapping at the start.
func (e *Engine) FocusPrevious() {
	idx, changed := e.selection.Previous(e.list.Len())
	if changed {
		e.moveSubscription(idx)
	}
}

// moveSubscription drops the previous room's priority subscription before
// raising the new one, so the server never sees both held at once.
func (e *Engine) moveSubscription(idx int) {
	var next chat.RoomID
	if entry, ok := e.list.At(idx); ok {
		next, _ = entry.AsRoomID()
	}

	e.selMu.Lock()
	previous := e.selectedRoom
	e.selectedRoom = next
	e.selMu.Unlock()

	if previous != "" && previous != next {
		if room, ok := e.roomMap.Get(previous); ok {
			room.Unsubscribe()
		}
	}
	if next != "" && next != previous {
		if room, ok := e.roomMap.Get(next); ok {
			room.Subscribe(&chat.RoomSubscription{TimelineLimit: e.timelineLimit})
		}
	}
}

// MarkSelectedRead sends a read receipt for the focused room.
func (e *Engine) MarkSelectedRead(ctx context.Context, kind chat.ReceiptKind) (bool, error) {
	id, ok := e.SelectedRoomID()
	if !ok {
		return false, fmt.Errorf("no room focused")
	}
	room, ok := e.roomMap.Get(id)
	if !ok {
		return false, fmt.Errorf("room %s is not open", id)
	}
	liveTimeline, ok := room.Timeline()
	if !ok {
		return false, fmt.Errorf("room %s has no timeline", id)
	}
	return liveTimeline.MarkAsRead(ctx, kind)
}

// StartSync resumes synchronization.
func (e *Engine) StartSync(ctx context.Context) error {
	return e.syncSvc.Start(ctx)
}

// StopSync pauses synchronization; the projection keeps its state.
func (e *Engine) StopSync(ctx context.Context) error {
	return e.syncSvc.Stop(ctx)
}

// Entries returns a snapshot of the room list projection.
func (e *Engine) Entries() []chat.RoomEntry {
	return e.list.Snapshot()
}

// SelectionIndex returns the highlighted index, if any.
func (e *Engine) SelectionIndex() (int, bool) {
	return e.selection.Current()
}

// SelectedRoomID returns the focused room id, if the focused entry resolves
// to one.
func (e *Engine) SelectedRoomID() (chat.RoomID, bool) {
	idx, ok := e.selection.Current()
	if !ok {
		return "", false
	}
	entry, ok := e.list.At(idx)
	if !ok {
		return "", false
	}
	return entry.AsRoomID()
}

// SelectedTimeline returns a snapshot of the focused room's projected
// timeline items.
func (e *Engine) SelectedTimeline() []chat.TimelineItem {
	id, ok := e.SelectedRoomID()
	if !ok {
		return nil
	}
	projected, ok := e.timelines.Get(id)
	if !ok {
		return nil
	}
	return projected.Snapshot()
}

// SelectedReceipts returns the receipt summary of the focused room.
func (e *Engine) SelectedReceipts() (chat.ReadReceipts, bool) {
	id, ok := e.SelectedRoomID()
	if !ok {
		return chat.ReadReceipts{}, false
	}
	room, ok := e.roomMap.Get(id)
	if !ok {
		return chat.ReadReceipts{}, false
	}
	return room.ReadReceipts(), true
}

// SyncState returns the last observed sync service state.
func (e *Engine) SyncState() chat.SyncState {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.syncState
}

// SetStatus installs a transient status message.
func (e *Engine) SetStatus(text string) {
	e.status.Set(text)
}

// Status returns the current status message, if one is set.
func (e *Engine) Status() (string, bool) {
	return e.status.Read()
}

// Shutdown stops the engine in order: the sync service is stopped first and
// its state observed to leave running, then the projection consumers are
// cancelled. ctx bounds the wait at each stage.
func (e *Engine) Shutdown(ctx context.Context) error {
	stateCh, cancelState := e.syncSvc.State()
	defer cancelState()

	final := e.SyncState()
	if err := e.syncSvc.Stop(ctx); err != nil {
		e.log.Warn().Err(err).Msg("sync stop failed, cancelling consumers anyway")
	} else {
		final = e.awaitSyncStopped(ctx, stateCh)
	}

	if e.cancelList != nil {
		e.cancelList()
	}
	e.timelines.StopAll()
	if e.cancelState != nil {
		e.cancelState()
	}
	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		e.status.Close()
		return fmt.Errorf("consumers did not stop: %w", ctx.Err())
	}

	// The watcher goroutine is gone; record the state observed during the
	// stop wait as the engine's last word.
	e.stateMu.Lock()
	e.syncState = final
	e.stateMu.Unlock()

	e.status.Close()
	return nil
}

// awaitSyncStopped drains the state stream until the service reports a
// non-running state, and returns that state.
func (e *Engine) awaitSyncStopped(ctx context.Context, stream <-chan chat.SyncState) chat.SyncState {
	last := chat.SyncRunning
	for {
		select {
		case <-ctx.Done():
			e.log.Warn().Msg("timed out waiting for sync to stop")
			return last
		case state, ok := <-stream:
			if !ok {
				return last
			}
			last = state
			if state != chat.SyncRunning {
				return state
			}
		}
	}
}
