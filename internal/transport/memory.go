package transport

import (
	"context"
	"sync"

	"github.com/castmir/vaultmesh/internal/common"
)

// Network is an in-process transport: every joiner attached to the same
// Network sees the same rooms, and action payloads fan out synchronously.
// It exists for tests, which also use its connection accounting to pin the
// "at most one live handle" invariants.
type Network struct {
	mu       sync.Mutex
	rooms    map[string]map[*MemoryRoom]struct{}
	created  []*MemoryRoom
	open     int
	joins    int
	probeErr error
}

func NewNetwork() *Network {
	return &Network{rooms: make(map[string]map[*MemoryRoom]struct{})}
}

// SetProbeError makes every subsequent probe (and join) fail, simulating
// an unreachable tracker.
func (n *Network) SetProbeError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.probeErr = err
}

// OpenConns returns the number of currently live room handles.
func (n *Network) OpenConns() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.open
}

// TotalJoins returns how many room handles were ever created.
func (n *Network) TotalJoins() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.joins
}

// Rooms returns every handle ever created, in creation order.
func (n *Network) Rooms() []*MemoryRoom {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*MemoryRoom(nil), n.created...)
}

// Joiner returns a Joiner identifying itself as selfID on this network.
func (n *Network) Joiner(selfID string) *MemoryJoiner {
	return &MemoryJoiner{net: n, selfID: selfID}
}

type MemoryJoiner struct {
	net    *Network
	selfID string
}

func (j *MemoryJoiner) Probe(ctx context.Context) error {
	j.net.mu.Lock()
	defer j.net.mu.Unlock()
	return j.net.probeErr
}

func (j *MemoryJoiner) Join(ctx context.Context, roomID string) (Room, error) {
	n := j.net

	n.mu.Lock()
	if n.probeErr != nil {
		n.mu.Unlock()
		return nil, n.probeErr
	}

	room := &MemoryRoom{
		net:     n,
		roomID:  roomID,
		selfID:  j.selfID,
		actions: make(map[string][]ReceiveFunc),
	}
	members := n.rooms[roomID]
	if members == nil {
		members = make(map[*MemoryRoom]struct{})
		n.rooms[roomID] = members
	}
	existing := make([]*MemoryRoom, 0, len(members))
	for m := range members {
		existing = append(existing, m)
	}
	members[room] = struct{}{}
	n.created = append(n.created, room)
	n.open++
	n.joins++
	n.mu.Unlock()

	// Tell existing members about the newcomer and vice versa.
	for _, m := range existing {
		m.firePeerJoin(j.selfID)
		room.firePeerJoin(m.selfID)
	}
	return room, nil
}

// MemoryRoom is the in-process Room implementation.
type MemoryRoom struct {
	net    *Network
	roomID string
	selfID string

	mu        sync.Mutex
	left      bool
	peers     []string
	joinSubs  []func(string)
	leaveSubs []func(string)
	actions   map[string][]ReceiveFunc
	pending   map[string][]pendingFrame
}

// pendingFrame holds a payload that arrived before any handler was
// registered for its action. Replayed on registration so a message sent
// in the gap between join and handler setup is not lost.
type pendingFrame struct {
	from    string
	payload []byte
}

func (r *MemoryRoom) ID() string     { return r.roomID }
func (r *MemoryRoom) SelfID() string { return r.selfID }

// Left reports whether Leave has been called on this handle.
func (r *MemoryRoom) Left() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.left
}

func (r *MemoryRoom) Leave() error {
	r.mu.Lock()
	if r.left {
		r.mu.Unlock()
		return nil
	}
	r.left = true
	r.mu.Unlock()

	n := r.net
	n.mu.Lock()
	members := n.rooms[r.roomID]
	delete(members, r)
	if len(members) == 0 {
		delete(n.rooms, r.roomID)
	}
	survivors := make([]*MemoryRoom, 0, len(members))
	for m := range members {
		survivors = append(survivors, m)
	}
	n.open--
	n.mu.Unlock()

	for _, m := range survivors {
		m.firePeerLeave(r.selfID)
	}
	return nil
}

func (r *MemoryRoom) MakeAction(name string) (SendFunc, func(ReceiveFunc)) {
	send := func(ctx context.Context, payload []byte) error {
		r.mu.Lock()
		left := r.left
		r.mu.Unlock()
		if left {
			return common.ErrRoomClosed
		}

		n := r.net
		n.mu.Lock()
		others := make([]*MemoryRoom, 0)
		for m := range n.rooms[r.roomID] {
			if m != r {
				others = append(others, m)
			}
		}
		n.mu.Unlock()

		for _, m := range others {
			m.deliver(name, r.selfID, payload)
		}
		return nil
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

func (r *MemoryRoom) deliver(action, from string, payload []byte) {
	r.mu.Lock()
	handlers := append([]ReceiveFunc(nil), r.actions[action]...)
	if len(handlers) == 0 {
		if r.pending == nil {
			r.pending = make(map[string][]pendingFrame)
		}
		r.pending[action] = append(r.pending[action], pendingFrame{from: from, payload: payload})
	}
	r.mu.Unlock()
	for _, h := range handlers {
		h(from, payload)
	}
}

func (r *MemoryRoom) firePeerJoin(peerID string) {
	r.mu.Lock()
	r.peers = append(r.peers, peerID)
	subs := append([]func(string){}, r.joinSubs...)
	r.mu.Unlock()
	for _, fn := range subs {
		fn(peerID)
	}
}

func (r *MemoryRoom) firePeerLeave(peerID string) {
	r.mu.Lock()
	for i, p := range r.peers {
		if p == peerID {
			r.peers = append(r.peers[:i], r.peers[i+1:]...)
			break
		}
	}
	subs := append([]func(string){}, r.leaveSubs...)
	r.mu.Unlock()
	for _, fn := range subs {
		fn(peerID)
	}
}

func (r *MemoryRoom) OnPeerJoin(fn func(peerID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joinSubs = append(r.joinSubs, fn)
}

func (r *MemoryRoom) OnPeerLeave(fn func(peerID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveSubs = append(r.leaveSubs, fn)
}

func (r *MemoryRoom) Peers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.peers...)
}
