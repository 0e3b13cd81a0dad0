package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/diff"
	"github.com/tOgg1/parley/internal/logging"
)

// subscriberBuffer is the channel depth for diff stream subscribers. A full
// subscriber drops the frame rather than stalling the stream reader.
const subscriberBuffer = 256

// maxFrameSize caps a single stream frame at 1 MB; diff frames are small
// JSON and anything larger is likely malformed.
const maxFrameSize = 1 << 20

// SyncService drives the live connection and fans stream frames out to the
// room list and per-room timelines. It implements chat.SyncService.
type SyncService struct {
	client *Client
	log    zerolog.Logger

	roomList *roomListService

	mu        sync.Mutex
	state     chat.SyncState
	observers map[int]chan chat.SyncState
	nextObs   int
	conn      *websocket.Conn
	writeMu   sync.Mutex
	stopping  bool
	connGen   int
}

// SyncService constructs the synchronization service for the logged-in
// session.
func (c *Client) SyncService() (*SyncService, error) {
	if !c.Restored() {
		return nil, ErrNotLoggedIn
	}
	s := &SyncService{
		client:    c,
		log:       logging.Component("sync"),
		state:     chat.SyncIdle,
		observers: make(map[int]chan chat.SyncState),
	}
	s.roomList = newRoomListService(s)
	return s, nil
}

// RoomList returns the room list service backed by this sync session.
func (s *SyncService) RoomList() chat.RoomListService {
	return s.roomList
}

// Start dials the stream and begins syncing. Idempotent while running.
func (s *SyncService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == chat.SyncRunning {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	position, err := s.client.state.SyncPosition(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("could not read sync position, starting fresh")
		position = ""
	}

	conn, err := s.dial(ctx, position)
	if err != nil {
		return fmt.Errorf("start sync: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.stopping = false
	s.connGen++
	gen := s.connGen
	s.setStateLocked(chat.SyncRunning)
	s.mu.Unlock()

	go s.readLoop(conn, gen)
	return nil
}

// Stop halts syncing. The state stream reports the transition away from
// running.
func (s *SyncService) Stop(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		if s.state == chat.SyncRunning {
			s.setStateLocked(chat.SyncTerminated)
		}
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	s.conn = nil
	s.setStateLocked(chat.SyncTerminated)
	s.mu.Unlock()

	if err := conn.Close(websocket.StatusNormalClosure, "sync stopped"); err != nil {
		// The peer may already be gone; stopping still succeeded locally.
		s.log.Debug().Err(err).Msg("close on stop")
	}
	return nil
}

// State subscribes to sync state transitions. The current state is
// delivered first; each caller gets its own channel.
func (s *SyncService) State() (<-chan chat.SyncState, chat.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan chat.SyncState, 8)
	ch <- s.state
	id := s.nextObs
	s.nextObs++
	s.observers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if obs, ok := s.observers[id]; ok {
			delete(s.observers, id)
			close(obs)
		}
	}
	return ch, cancel
}

// CurrentState returns the state without subscribing.
func (s *SyncService) CurrentState() chat.SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SyncService) setStateLocked(state chat.SyncState) {
	if s.state == state {
		return
	}
	s.state = state
	for _, obs := range s.observers {
		select {
		case obs <- state:
		default:
			// Slow observer; it will catch up on the next transition.
		}
	}
}

func (s *SyncService) dial(ctx context.Context, position string) (*websocket.Conn, error) {
	token, err := s.client.accessToken()
	if err != nil {
		return nil, err
	}

	streamURL := s.client.baseURL + "/_parley/client/v1/stream"
	streamURL = "ws" + strings.TrimPrefix(streamURL, "http")
	if position != "" {
		streamURL += "?position=" + url.QueryEscape(position)
	}

	headers := make(http.Header)
	headers.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.Dial(ctx, streamURL, &websocket.DialOptions{
		HTTPClient: s.client.http,
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxFrameSize)

	// The server greets with a welcome frame before any diffs.
	var welcome frame
	if err := readFrame(ctx, conn, &welcome); err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "no welcome")
		return nil, fmt.Errorf("await welcome: %w", err)
	}
	if welcome.Type != frameWelcome {
		_ = conn.Close(websocket.StatusProtocolError, "unexpected frame")
		return nil, fmt.Errorf("expected welcome frame, got %q", welcome.Type)
	}
	return conn, nil
}

func (s *SyncService) readLoop(conn *websocket.Conn, gen int) {
	ctx := context.Background()
	for {
		var f frame
		if err := readFrame(ctx, conn, &f); err != nil {
			s.mu.Lock()
			// A stale reader from a previous connection must not touch
			// the state of its replacement.
			if gen == s.connGen {
				if s.stopping {
					s.setStateLocked(chat.SyncTerminated)
				} else {
					s.log.Error().Err(err).Msg("stream read failed")
					s.conn = nil
					s.setStateLocked(chat.SyncError)
				}
			}
			s.mu.Unlock()
			return
		}
		s.dispatch(f)
	}
}

func (s *SyncService) dispatch(f frame) {
	switch f.Type {
	case frameRoomList:
		batch, err := decodeEntryOps(f.Ops)
		if err != nil {
			s.log.Error().Err(err).Msg("dropping malformed room list frame")
			return
		}
		s.roomList.push(batch)

	case frameTimeline:
		batch, err := decodeItemOps(f.Ops)
		if err != nil {
			s.log.Error().Err(err).Str("room_id", string(f.RoomID)).
				Msg("dropping malformed timeline frame")
			return
		}
		s.roomList.pushTimeline(f.RoomID, batch)

	case frameReceipts:
		s.roomList.setReceipts(f.RoomID, chat.ReadReceipts{
			Unread:        f.Unread,
			Notifications: f.Notifications,
			Mentions:      f.Mentions,
		})

	case framePosition:
		if err := s.client.state.SetSyncPosition(context.Background(), f.Position); err != nil {
			s.log.Warn().Err(err).Msg("could not persist sync position")
		}

	default:
		s.log.Debug().Str("type", f.Type).Msg("ignoring unknown frame")
	}
}

// sendFrame writes a command frame on the live connection.
func (s *SyncService) sendFrame(f frame) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("sync is not running")
	}

	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.Write(context.Background(), websocket.MessageText, raw)
}

func readFrame(ctx context.Context, conn *websocket.Conn, f *frame) error {
	_, raw, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, f); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}

// roomListService owns the authoritative entry sequence and the room handle
// registry. It implements chat.RoomListService.
type roomListService struct {
	svc *SyncService
	log zerolog.Logger

	mu          sync.Mutex
	entries     []chat.RoomEntry
	subscribers map[int]chan []diff.Diff[chat.RoomEntry]
	nextSub     int
	rooms       map[chat.RoomID]*room
	receipts    map[chat.RoomID]chat.ReadReceipts
}

func newRoomListService(svc *SyncService) *roomListService {
	return &roomListService{
		svc:         svc,
		log:         logging.Component("room-list"),
		subscribers: make(map[int]chan []diff.Diff[chat.RoomEntry]),
		rooms:       make(map[chat.RoomID]*room),
		receipts:    make(map[chat.RoomID]chat.ReadReceipts),
	}
}

// AllRooms returns the current ordered entries and a live diff stream.
func (r *roomListService) AllRooms(ctx context.Context) ([]chat.RoomEntry, chat.RoomListStream, chat.CancelFunc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make([]chat.RoomEntry, len(r.entries))
	copy(snapshot, r.entries)

	ch := make(chan []diff.Diff[chat.RoomEntry], subscriberBuffer)
	id := r.nextSub
	r.nextSub++
	r.subscribers[id] = ch

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if sub, ok := r.subscribers[id]; ok {
			delete(r.subscribers, id)
			close(sub)
		}
	}
	return snapshot, ch, cancel, nil
}

// Room resolves (creating on first use) the handle for a room. One handle
// exists per id for the life of the service.
func (r *roomListService) Room(ctx context.Context, id chat.RoomID) (chat.Room, error) {
	if id == "" {
		return nil, fmt.Errorf("empty room id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.rooms[id]; ok {
		return existing, nil
	}
	rm := &room{id: id, svc: r.svc}
	r.rooms[id] = rm
	return rm, nil
}

// push applies a room list diff batch to the authoritative sequence and
// fans it out to subscribers in receipt order.
func (r *roomListService) push(batch []diff.Diff[chat.RoomEntry]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := diff.ApplyAll(r.entries, batch)
	if err != nil {
		r.log.Error().Err(err).Msg("refusing room list batch")
		return
	}
	r.entries = next

	for id, sub := range r.subscribers {
		select {
		case sub <- batch:
		default:
			r.log.Warn().Int("subscriber", id).Msg("room list subscriber is full, dropping batch")
		}
	}
}

func (r *roomListService) pushTimeline(id chat.RoomID, batch []diff.Diff[chat.TimelineItem]) {
	r.mu.Lock()
	rm := r.rooms[id]
	r.mu.Unlock()

	if rm == nil {
		r.log.Debug().Str("room_id", string(id)).Msg("timeline frame for unknown room")
		return
	}
	if tl, ok := rm.Timeline(); ok {
		tl.(*timeline).push(batch)
	}
}

func (r *roomListService) setReceipts(id chat.RoomID, receipts chat.ReadReceipts) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts[id] = receipts
}

func (r *roomListService) readReceipts(id chat.RoomID) chat.ReadReceipts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.receipts[id]
}

// timelineBuilder carries the timeline assembly options. It implements
// chat.TimelineBuilder.
type timelineBuilder struct {
	trackReadMarker bool
	dayDividers     bool
}

func (b *timelineBuilder) TrackReadMarker() chat.TimelineBuilder {
	b.trackReadMarker = true
	return b
}

func (b *timelineBuilder) DayDividers() chat.TimelineBuilder {
	b.dayDividers = true
	return b
}

// room is the handle for one room. It implements chat.Room.
type room struct {
	id  chat.RoomID
	svc *SyncService

	mu       sync.Mutex
	timeline *timeline
}

func (r *room) ID() chat.RoomID {
	return r.id
}

// DefaultTimelineBuilder returns the builder preconfigured with the client
// defaults: virtual items enabled.
func (r *room) DefaultTimelineBuilder(ctx context.Context) (chat.TimelineBuilder, error) {
	return (&timelineBuilder{}).TrackReadMarker().DayDividers(), nil
}

// InitTimeline asks the server to start streaming this room's timeline and
// installs the live handle.
func (r *room) InitTimeline(ctx context.Context, b chat.TimelineBuilder) error {
	r.mu.Lock()
	if r.timeline != nil {
		r.mu.Unlock()
		return fmt.Errorf("timeline already initialized for %s", r.id)
	}
	r.mu.Unlock()

	init := frame{Type: frameInitTL, RoomID: r.id}
	if opts, ok := b.(*timelineBuilder); ok {
		init.TrackReadMarker = opts.trackReadMarker
		init.DayDividers = opts.dayDividers
	}
	if err := r.svc.sendFrame(init); err != nil {
		return fmt.Errorf("init timeline for %s: %w", r.id, err)
	}

	r.mu.Lock()
	r.timeline = newTimeline(r.id, r.svc)
	r.mu.Unlock()
	return nil
}

func (r *room) Timeline() (chat.Timeline, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timeline == nil {
		return nil, false
	}
	return r.timeline, true
}

// Subscribe asks the server to prioritize this room. Failures are logged;
// the subscription is best-effort by contract.
func (r *room) Subscribe(sub *chat.RoomSubscription) {
	f := frame{Type: frameSubscribe, RoomID: r.id}
	if sub != nil {
		f.TimelineLimit = sub.TimelineLimit
	}
	if err := r.svc.sendFrame(f); err != nil {
		r.svc.log.Warn().Err(err).Str("room_id", string(r.id)).Msg("subscribe failed")
	}
}

func (r *room) Unsubscribe() {
	if err := r.svc.sendFrame(frame{Type: frameUnsub, RoomID: r.id}); err != nil {
		r.svc.log.Warn().Err(err).Str("room_id", string(r.id)).Msg("unsubscribe failed")
	}
}

func (r *room) ReadReceipts() chat.ReadReceipts {
	return r.svc.roomList.readReceipts(r.id)
}

// timeline is the live item sequence of one room on the client side. It
// implements chat.Timeline.
type timeline struct {
	roomID chat.RoomID
	svc    *SyncService

	mu          sync.Mutex
	items       []chat.TimelineItem
	subscribers map[int]chan []diff.Diff[chat.TimelineItem]
	nextSub     int
}

func newTimeline(roomID chat.RoomID, svc *SyncService) *timeline {
	return &timeline{
		roomID:      roomID,
		svc:         svc,
		subscribers: make(map[int]chan []diff.Diff[chat.TimelineItem]),
	}
}

// Subscribe returns the current items and the live diff stream.
func (t *timeline) Subscribe(ctx context.Context) ([]chat.TimelineItem, chat.TimelineStream, chat.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := make([]chat.TimelineItem, len(t.items))
	copy(snapshot, t.items)

	ch := make(chan []diff.Diff[chat.TimelineItem], subscriberBuffer)
	id := t.nextSub
	t.nextSub++
	t.subscribers[id] = ch

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if sub, ok := t.subscribers[id]; ok {
			delete(t.subscribers, id)
			close(sub)
		}
	}
	return snapshot, ch, cancel
}

type markAsReadRequest struct {
	Receipt chat.ReceiptKind `json:"receipt"`
}

type markAsReadResponse struct {
	Updated bool `json:"updated"`
}

// MarkAsRead sends a receipt up to the latest item.
func (t *timeline) MarkAsRead(ctx context.Context, kind chat.ReceiptKind) (bool, error) {
	var resp markAsReadResponse
	path := "/_parley/client/v1/rooms/" + url.PathEscape(string(t.roomID)) + "/read"
	if err := t.svc.client.postJSON(ctx, path, markAsReadRequest{Receipt: kind}, &resp); err != nil {
		return false, err
	}
	return resp.Updated, nil
}

func (t *timeline) push(batch []diff.Diff[chat.TimelineItem]) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next, err := diff.ApplyAll(t.items, batch)
	if err != nil {
		t.svc.log.Error().Err(err).Str("room_id", string(t.roomID)).
			Msg("refusing timeline batch")
		return
	}
	t.items = next

	for id, sub := range t.subscribers {
		select {
		case sub <- batch:
		default:
			t.svc.log.Warn().Int("subscriber", id).Str("room_id", string(t.roomID)).
				Msg("timeline subscriber is full, dropping batch")
		}
	}
}
