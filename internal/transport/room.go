// Package transport wraps rendezvous-based peer discovery behind a small
// room abstraction: join a named room through a tracker, then exchange
// named, typed message actions with the peers that show up.
//
// The tracker is used for rendezvous and frame relay only; it carries no
// application semantics. Delivery is at-most-once best-effort, with no
// ordering across actions and no guarantee a message beats the peer-join
// event for its sender, so every consumer of this package keeps its
// handlers idempotent.
package transport

import (
	"context"
	"encoding/json"
	"time"
)

// SendFunc broadcasts one payload on an action channel to every peer in
// the room.
type SendFunc func(ctx context.Context, payload []byte) error

// ReceiveFunc handles one inbound payload from the given peer.
type ReceiveFunc func(peerID string, payload []byte)

// Room is a live connection to a named rendezvous scope.
type Room interface {
	// Leave tears the connection down. Idempotent; errors are advisory
	// and must never gate a subsequent Join.
	Leave() error

	// MakeAction registers a named message channel and returns its
	// sender plus a registrar for receive handlers.
	MakeAction(name string) (SendFunc, func(ReceiveFunc))

	// OnPeerJoin registers a callback for peers entering the room. It
	// also fires for peers already present at join time.
	OnPeerJoin(fn func(peerID string))

	// OnPeerLeave registers a callback for peers leaving the room.
	OnPeerLeave(fn func(peerID string))

	// Peers returns the current roster, excluding self.
	Peers() []string

	// SelfID returns this process's peer id.
	SelfID() string
}

// Joiner establishes rooms. Probe must be called (and succeed) before a
// full join so that "no network" fails fast instead of hanging in a
// connecting state.
type Joiner interface {
	Probe(ctx context.Context) error
	Join(ctx context.Context, roomID string) (Room, error)
}

// Config identifies the application on the tracker and bounds the
// reachability probe.
type Config struct {
	AppID        string
	TrackerURLs  []string
	ProbeTimeout time.Duration
}

// DefaultProbeTimeout bounds a reachability probe when Config leaves it
// zero. Hot paths (discovery bootstrap) pass a shorter context deadline.
const DefaultProbeTimeout = 10 * time.Second

func (c Config) probeTimeout() time.Duration {
	if c.ProbeTimeout > 0 {
		return c.ProbeTimeout
	}
	return DefaultProbeTimeout
}

// Frame is the JSON envelope relayed through the tracker.
type Frame struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	Room    string          `json:"room,omitempty"`
	From    string          `json:"from,omitempty"`
	Peers   []string        `json:"peers,omitempty"`
	Action  string          `json:"action,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Frame types.
const (
	FrameJoin      = "join"       // client -> tracker: enter a room
	FramePeers     = "peers"      // tracker -> client: initial roster
	FramePeerJoin  = "peer-join"  // tracker -> client: a peer entered
	FramePeerLeave = "peer-leave" // tracker -> client: a peer left
	FrameAction    = "action"     // both directions: application payload
	FrameLeave     = "leave"      // client -> tracker: exit the room
)

// FrameVersion is the current wire protocol version.
const FrameVersion = 1
