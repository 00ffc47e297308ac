// Package discovery implements the public lobby where GMs announce their
// published campaigns and players browse what is online.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/castmir/vaultmesh/internal/common"
	"github.com/castmir/vaultmesh/internal/limiter"
	"github.com/castmir/vaultmesh/internal/logging"
	"github.com/castmir/vaultmesh/internal/model"
	"github.com/castmir/vaultmesh/internal/transport"
)

const (
	actionDiscovery = "discovery"

	// Announcements older than the staleness window are treated as
	// offline and evicted.
	stalenessWindow = 120 * time.Second
	sweepInterval   = 60 * time.Second

	defaultHeartbeat = 30 * time.Second
	defaultCooldown  = 2 * time.Second
)

// AnnounceFunc reports what this process wants to announce in the lobby.
// Returning nil means nothing is published right now.
type AnnounceFunc func() *model.Announcement

// Lobby is the single handle to the discovery room. A process keeps at
// most one lobby connection; repeated Join calls reuse it.
type Lobby struct {
	joiner    transport.Joiner
	cooldown  *limiter.Cooldown
	heartbeat time.Duration
	log       logging.Logger

	mu       sync.Mutex
	room     transport.Room
	send     transport.SendFunc
	announce AnnounceFunc
	stopBeat chan struct{}

	seen *cache.Cache

	nowFn func() time.Time
}

type Option func(*Lobby)

// WithHeartbeat overrides the announcement interval, for tests.
func WithHeartbeat(d time.Duration) Option {
	return func(l *Lobby) { l.heartbeat = d }
}

// WithCooldown overrides the minimum interval between join attempts.
func WithCooldown(d time.Duration) Option {
	return func(l *Lobby) { l.cooldown = limiter.NewCooldown(d) }
}

func NewLobby(joiner transport.Joiner, log logging.Logger, opts ...Option) *Lobby {
	if log == nil {
		log = logging.Nop()
	}
	l := &Lobby{
		joiner:    joiner,
		cooldown:  limiter.NewCooldown(defaultCooldown),
		heartbeat: defaultHeartbeat,
		log:       log,
		seen:      cache.New(stalenessWindow, sweepInterval),
		nowFn:     time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Join connects to the lobby room. It reports whether a new connection
// was made: an existing connection is reused and a rate-limited attempt
// is silently skipped, both returning (false, nil).
func (l *Lobby) Join(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.room != nil {
		return false, nil
	}
	if !l.cooldown.Allow() {
		l.log.Debug(ctx, "lobby join rate limited")
		return false, nil
	}

	if err := l.joiner.Probe(ctx); err != nil {
		return false, fmt.Errorf("lobby unreachable: %w", err)
	}
	room, err := l.joiner.Join(ctx, common.LobbyRoomID)
	if err != nil {
		return false, err
	}

	send, recv := room.MakeAction(actionDiscovery)
	recv(l.onDiscovery)
	room.OnPeerJoin(func(string) { l.announceNow(context.Background()) })

	l.room = room
	l.send = send
	l.stopBeat = make(chan struct{})
	go l.beat(l.stopBeat)

	l.log.Info(ctx, "joined lobby")
	return true, nil
}

// Announce sets what the heartbeat broadcasts and pushes one immediately.
// Pass nil to stop announcing.
func (l *Lobby) Announce(ctx context.Context, fn AnnounceFunc) {
	l.mu.Lock()
	l.announce = fn
	l.mu.Unlock()
	l.announceNow(ctx)
}

// Joined reports whether the lobby connection is up.
func (l *Lobby) Joined() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.room != nil
}

// Campaigns lists the currently visible announcements, freshest metadata
// included, sorted by name. Staleness is enforced both by cache TTL and
// an explicit window check so a just-expired entry never slips through.
func (l *Lobby) Campaigns() []model.Announcement {
	cutoff := l.now().Add(-stalenessWindow).UnixMilli()
	items := l.seen.Items()
	out := make([]model.Announcement, 0, len(items))
	for _, it := range items {
		a, ok := it.Object.(model.Announcement)
		if !ok || a.LastSeen < cutoff {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Leave disconnects from the lobby and stops the heartbeat. Safe to call
// when not joined.
func (l *Lobby) Leave() error {
	l.mu.Lock()
	room := l.room
	stop := l.stopBeat
	l.room = nil
	l.send = nil
	l.stopBeat = nil
	l.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if room == nil {
		return nil
	}
	return room.Leave()
}

func (l *Lobby) onDiscovery(peerID string, payload []byte) {
	var p model.DiscoveryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		l.log.Debug(context.Background(), "dropping malformed announcement", "peer", peerID, "error", err)
		return
	}
	if err := p.Validate(); err != nil {
		l.log.Debug(context.Background(), "dropping invalid announcement", "peer", peerID, "error", err)
		return
	}
	l.seen.Set(p.Id, model.Announcement{
		Id:           p.Id,
		Name:         p.Name,
		GmName:       p.GmName,
		Description:  p.Description,
		System:       p.System,
		PasswordHash: p.PasswordHash,
		LastSeen:     l.now().UnixMilli(),
	}, cache.DefaultExpiration)
}

func (l *Lobby) beat(stop chan struct{}) {
	ticker := time.NewTicker(l.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.announceNow(context.Background())
		}
	}
}

func (l *Lobby) announceNow(ctx context.Context) {
	l.mu.Lock()
	send := l.send
	fn := l.announce
	l.mu.Unlock()

	if send == nil || fn == nil {
		return
	}
	a := fn()
	if a == nil {
		return
	}
	raw, err := json.Marshal(model.DiscoveryPayload{
		Id:           a.Id,
		Name:         a.Name,
		GmName:       a.GmName,
		Description:  a.Description,
		System:       a.System,
		PasswordHash: a.PasswordHash,
	})
	if err != nil {
		return
	}
	if err := send(ctx, raw); err != nil {
		l.log.Debug(ctx, "announcement send failed", "error", err)
	}
}

func (l *Lobby) now() time.Time { return l.nowFn() }

// SetNow installs a clock for tests.
func (l *Lobby) SetNow(fn func() time.Time) {
	l.nowFn = fn
	l.cooldown.SetNow(fn)
}
