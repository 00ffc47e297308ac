// Package tracker implements the rendezvous daemon peers use to find each
// other. It relays room-scoped frames and emits peer lifecycle events; it
// never interprets application payloads.
package tracker

import (
	"context"
	"sync"

	"github.com/castmir/vaultmesh/internal/logging"
	"github.com/castmir/vaultmesh/internal/transport"
)

// Hub is the room registry. Rooms appear when the first peer joins and
// disappear with the last one.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room
	log   logging.Logger
}

type room struct {
	id      string
	members map[string]*client
}

func NewHub(log logging.Logger) *Hub {
	if log == nil {
		log = logging.Nop()
	}
	return &Hub{rooms: make(map[string]*room), log: log}
}

// Join registers the client in roomID, sends it the current roster, and
// announces it to the other members. A peer id already present in the
// room bumps the old connection (stale handles from an unclean reconnect
// must not shadow the live one).
func (h *Hub) Join(roomID string, cl *client) {
	var evicted *client

	h.mu.Lock()
	rm := h.rooms[roomID]
	if rm == nil {
		rm = &room{id: roomID, members: make(map[string]*client)}
		h.rooms[roomID] = rm
	}
	if old, ok := rm.members[cl.id]; ok {
		evicted = old
		delete(rm.members, cl.id)
	}

	roster := make([]string, 0, len(rm.members))
	others := make([]*client, 0, len(rm.members))
	for id, m := range rm.members {
		roster = append(roster, id)
		others = append(others, m)
	}
	rm.members[cl.id] = cl
	h.mu.Unlock()

	if evicted != nil {
		evicted.shutdown()
	}

	cl.send(transport.Frame{V: transport.FrameVersion, Type: transport.FramePeers, Room: roomID, Peers: roster})
	joinFrame := transport.Frame{V: transport.FrameVersion, Type: transport.FramePeerJoin, Room: roomID, From: cl.id}
	for _, m := range others {
		m.send(joinFrame)
	}

	h.log.Debug(context.Background(), "peer joined", "room", roomID, "peer", cl.id, "members", len(roster)+1)
}

// Leave removes the client and announces its departure. Safe to call for
// a client that was already evicted.
func (h *Hub) Leave(roomID string, cl *client) {
	h.mu.Lock()
	rm := h.rooms[roomID]
	if rm == nil || rm.members[cl.id] != cl {
		h.mu.Unlock()
		return
	}
	delete(rm.members, cl.id)
	if len(rm.members) == 0 {
		delete(h.rooms, roomID)
	}
	survivors := make([]*client, 0, len(rm.members))
	for _, m := range rm.members {
		survivors = append(survivors, m)
	}
	h.mu.Unlock()

	leaveFrame := transport.Frame{V: transport.FrameVersion, Type: transport.FramePeerLeave, Room: roomID, From: cl.id}
	for _, m := range survivors {
		m.send(leaveFrame)
	}

	h.log.Debug(context.Background(), "peer left", "room", roomID, "peer", cl.id)
}

// Relay forwards an action frame to every other member of the room. From
// is always overwritten with the sender's registered id so a peer cannot
// impersonate another.
func (h *Hub) Relay(roomID string, sender *client, f transport.Frame) {
	f.From = sender.id
	f.Room = roomID

	h.mu.Lock()
	rm := h.rooms[roomID]
	if rm == nil {
		h.mu.Unlock()
		return
	}
	others := make([]*client, 0, len(rm.members))
	for _, m := range rm.members {
		if m != sender {
			others = append(others, m)
		}
	}
	h.mu.Unlock()

	for _, m := range others {
		m.send(f)
	}
}

// RoomSize returns the member count of roomID. Zero means the room does
// not exist.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	rm := h.rooms[roomID]
	if rm == nil {
		return 0
	}
	return len(rm.members)
}
