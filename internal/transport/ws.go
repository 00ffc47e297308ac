package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/castmir/vaultmesh/internal/common"
	"github.com/castmir/vaultmesh/internal/logging"
)

// WSJoiner joins rooms over a websocket tracker.
type WSJoiner struct {
	cfg    Config
	selfID string
	dialer *websocket.Dialer
	log    logging.Logger
}

func NewWSJoiner(cfg Config, log logging.Logger) *WSJoiner {
	if log == nil {
		log = logging.Nop()
	}
	return &WSJoiner{
		cfg:    cfg,
		selfID: uuid.NewString(),
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.probeTimeout()},
		log:    log,
	}
}

func (j *WSJoiner) SelfID() string { return j.selfID }

// Probe opens and immediately closes a control connection against the
// tracker list, bounded by the probe timeout. The first reachable tracker
// wins.
func (j *WSJoiner) Probe(ctx context.Context) error {
	if len(j.cfg.TrackerURLs) == 0 {
		return common.ErrNoTrackers
	}

	var lastErr error
	for _, raw := range j.cfg.TrackerURLs {
		probeCtx, cancel := context.WithTimeout(ctx, j.cfg.probeTimeout())
		conn, resp, err := j.dialer.DialContext(probeCtx, raw, nil)
		cancel()
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("%w: %v", common.ErrTrackerUnreachable, lastErr)
}

// Join connects to the first reachable tracker and enters roomID.
func (j *WSJoiner) Join(ctx context.Context, roomID string) (Room, error) {
	if len(j.cfg.TrackerURLs) == 0 {
		return nil, common.ErrNoTrackers
	}

	var lastErr error
	for _, raw := range j.cfg.TrackerURLs {
		conn, err := j.dial(ctx, raw, roomID)
		if err != nil {
			lastErr = err
			continue
		}
		room := newWSRoom(conn, roomID, j.selfID, j.log)
		if err := room.join(); err != nil {
			_ = conn.Close()
			lastErr = err
			continue
		}
		go room.readPump()
		return room, nil
	}
	return nil, fmt.Errorf("%w: %v", common.ErrTrackerUnreachable, lastErr)
}

func (j *WSJoiner) dial(ctx context.Context, trackerURL, roomID string) (*websocket.Conn, error) {
	u, err := url.Parse(trackerURL)
	if err != nil {
		return nil, fmt.Errorf("bad tracker url %q: %w", trackerURL, err)
	}
	q := u.Query()
	q.Set("app", j.cfg.AppID)
	q.Set("room", roomID)
	q.Set("peer", j.selfID)
	u.RawQuery = q.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, j.cfg.probeTimeout())
	defer cancel()

	conn, resp, err := j.dialer.DialContext(dialCtx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// wsRoom is a Room over one tracker websocket.
type wsRoom struct {
	conn   *websocket.Conn
	roomID string
	selfID string

	writeMu sync.Mutex // gorilla allows a single concurrent writer

	mu        sync.Mutex
	peers     map[string]struct{}
	joinSubs  []func(string)
	leaveSubs []func(string)
	actions   map[string][]ReceiveFunc
	// Frames that arrived before any handler was registered for their
	// action, replayed on registration.
	pending map[string][]pendingFrame

	closeOnce sync.Once
	closed    chan struct{}

	log logging.Logger
}

func newWSRoom(conn *websocket.Conn, roomID, selfID string, log logging.Logger) *wsRoom {
	return &wsRoom{
		conn:    conn,
		roomID:  roomID,
		selfID:  selfID,
		peers:   make(map[string]struct{}),
		actions: make(map[string][]ReceiveFunc),
		closed:  make(chan struct{}),
		log:     log.With("room", roomID),
	}
}

func (r *wsRoom) join() error {
	return r.writeFrame(Frame{V: FrameVersion, Type: FrameJoin, Room: r.roomID, From: r.selfID})
}

func (r *wsRoom) writeFrame(f Frame) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	select {
	case <-r.closed:
		return common.ErrRoomClosed
	default:
	}
	return r.conn.WriteJSON(f)
}

func (r *wsRoom) readPump() {
	ctx := context.Background()
	for {
		var f Frame
		if err := r.conn.ReadJSON(&f); err != nil {
			select {
			case <-r.closed:
			default:
				r.log.Warn(ctx, "room connection lost", "err", err)
				r.shutdown()
			}
			return
		}
		r.dispatch(&f)
	}
}

func (r *wsRoom) dispatch(f *Frame) {
	switch f.Type {
	case FramePeers:
		for _, p := range f.Peers {
			if p != r.selfID {
				r.peerJoined(p)
			}
		}
	case FramePeerJoin:
		if f.From != "" && f.From != r.selfID {
			r.peerJoined(f.From)
		}
	case FramePeerLeave:
		if f.From != "" {
			r.peerLeft(f.From)
		}
	case FrameAction:
		r.mu.Lock()
		handlers := append([]ReceiveFunc(nil), r.actions[f.Action]...)
		if len(handlers) == 0 {
			if r.pending == nil {
				r.pending = make(map[string][]pendingFrame)
			}
			r.pending[f.Action] = append(r.pending[f.Action], pendingFrame{from: f.From, payload: f.Payload})
		}
		r.mu.Unlock()
		for _, h := range handlers {
			h(f.From, f.Payload)
		}
	}
}

func (r *wsRoom) peerJoined(peerID string) {
	r.mu.Lock()
	if _, ok := r.peers[peerID]; ok {
		r.mu.Unlock()
		return
	}
	r.peers[peerID] = struct{}{}
	subs := append([]func(string){}, r.joinSubs...)
	r.mu.Unlock()
	for _, fn := range subs {
		fn(peerID)
	}
}

func (r *wsRoom) peerLeft(peerID string) {
	r.mu.Lock()
	if _, ok := r.peers[peerID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.peers, peerID)
	subs := append([]func(string){}, r.leaveSubs...)
	r.mu.Unlock()
	for _, fn := range subs {
		fn(peerID)
	}
}

func (r *wsRoom) MakeAction(name string) (SendFunc, func(ReceiveFunc)) {
	send := func(ctx context.Context, payload []byte) error {
		return r.writeFrame(Frame{
			V:       FrameVersion,
			Type:    FrameAction,
			Room:    r.roomID,
			From:    r.selfID,
			Action:  name,
			Payload: payload,
		})
	}
	receive := func(fn ReceiveFunc) {
		r.mu.Lock()
		r.actions[name] = append(r.actions[name], fn)
		backlog := r.pending[name]
		delete(r.pending, name)
		r.mu.Unlock()
		for _, f := range backlog {
			fn(f.from, f.payload)
		}
	}
	return send, receive
}

func (r *wsRoom) OnPeerJoin(fn func(peerID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joinSubs = append(r.joinSubs, fn)
}

func (r *wsRoom) OnPeerLeave(fn func(peerID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveSubs = append(r.leaveSubs, fn)
}

func (r *wsRoom) Peers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers := make([]string, 0, len(r.peers))
	for p := range r.peers {
		peers = append(peers, p)
	}
	return peers
}

func (r *wsRoom) SelfID() string { return r.selfID }

// Leave announces departure and closes the socket. Safe to call twice.
func (r *wsRoom) Leave() error {
	var err error
	r.closeOnce.Do(func() {
		_ = r.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leaving"),
			time.Now().Add(time.Second))
		close(r.closed)
		err = r.conn.Close()
	})
	return err
}

func (r *wsRoom) shutdown() {
	r.closeOnce.Do(func() {
		close(r.closed)
		_ = r.conn.Close()
	})
}
