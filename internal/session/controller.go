// Package session runs the live campaign room: the join/leave lifecycle,
// the four message actions, roster tracking, and the GM-authoritative
// merge of player-submitted character state.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/castmir/vaultmesh/internal/common"
	"github.com/castmir/vaultmesh/internal/limiter"
	"github.com/castmir/vaultmesh/internal/logging"
	"github.com/castmir/vaultmesh/internal/model"
	"github.com/castmir/vaultmesh/internal/transport"
	"github.com/castmir/vaultmesh/internal/vault"
)

// Status is the connection state of the campaign room handle.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
)

const (
	actionCombat     = "combat"
	actionHistory    = "history"
	actionCharUpdate = "charUpdate"
	actionCampaign   = "campaign"

	// A GM that has not been heard from for this long counts as offline.
	gmLivenessWindow = 60 * time.Second

	defaultHeartbeat = 30 * time.Second
	defaultMonitor   = 2 * time.Minute
	defaultCooldown  = 2 * time.Second
)

// State is the externally visible session snapshot. Mutated only by the
// Controller; callers get copies.
type State struct {
	RoomID             string
	CampaignID         string
	Peers              []string
	CurrentCharacterID string
	LastGMUpdate       int64
	IsGM               bool
	Connected          bool
	Status             Status
}

// Controller owns the process-wide campaign room handle. At most one
// room connection exists at a time; switching campaigns is always
// leave-then-join.
type Controller struct {
	joiner   transport.Joiner
	store    *vault.Store
	cooldown *limiter.Cooldown
	log      logging.Logger

	heartbeatEvery time.Duration
	monitorEvery   time.Duration

	mu    sync.Mutex
	state State
	room  transport.Room
	stop  chan struct{}

	sendCombat     transport.SendFunc
	sendHistory    transport.SendFunc
	sendCharUpdate transport.SendFunc
	sendCampaign   transport.SendFunc

	history []model.RollEntry
	seen    map[string]struct{}

	// applying suppresses the store-change rebroadcast while an inbound
	// message is being merged, so echoes do not loop.
	applying bool

	nowFn func() time.Time
}

type Option func(*Controller)

func WithHeartbeat(d time.Duration) Option {
	return func(c *Controller) { c.heartbeatEvery = d }
}

func WithMonitor(d time.Duration) Option {
	return func(c *Controller) { c.monitorEvery = d }
}

func WithCooldown(d time.Duration) Option {
	return func(c *Controller) { c.cooldown = limiter.NewCooldown(d) }
}

func NewController(joiner transport.Joiner, store *vault.Store, log logging.Logger, opts ...Option) *Controller {
	if log == nil {
		log = logging.Nop()
	}
	c := &Controller{
		joiner:         joiner,
		store:          store,
		cooldown:       limiter.NewCooldown(defaultCooldown),
		log:            log,
		heartbeatEvery: defaultHeartbeat,
		monitorEvery:   defaultMonitor,
		seen:           make(map[string]struct{}),
		nowFn:          time.Now,
	}
	c.state.Status = StatusDisconnected
	for _, o := range opts {
		o(c)
	}
	store.OnChange(c.onStoreChange)
	return c
}

// SetNow installs a clock for tests.
func (c *Controller) SetNow(fn func() time.Time) {
	c.nowFn = fn
	c.cooldown.SetNow(fn)
}

// State returns a copy of the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	st.Peers = append([]string(nil), c.state.Peers...)
	return st
}

// GMOnline reports whether a campaign broadcast from the GM was received
// within the liveness window.
func (c *Controller) GMOnline() bool {
	c.mu.Lock()
	last := c.state.LastGMUpdate
	c.mu.Unlock()
	if last == 0 {
		return false
	}
	return c.nowFn().UnixMilli()-last < gmLivenessWindow.Milliseconds()
}

// History returns a copy of the session's roll log.
func (c *Controller) History() []model.RollEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.RollEntry(nil), c.history...)
}

// Join connects to the campaign's room. Joining the room already held
// updates the role and character in place without a reconnect and returns
// (false, nil). A rate-limited attempt for a different room is a silent
// no-op, also (false, nil). A true join reports (true, nil).
func (c *Controller) Join(ctx context.Context, campaignID string, isGM bool, characterID string) (bool, error) {
	roomID := common.CampaignRoomPrefix + campaignID

	c.mu.Lock()
	if c.room != nil && c.state.RoomID == roomID {
		c.state.IsGM = isGM
		c.state.CurrentCharacterID = characterID
		c.mu.Unlock()
		return false, nil
	}
	if !c.cooldown.Allow() {
		c.mu.Unlock()
		c.log.Debug(ctx, "campaign join rate limited", "campaign", campaignID)
		return false, nil
	}

	// Leave-before-join: no overlapping handles, ever.
	oldRoom, oldStop := c.room, c.stop
	c.room, c.stop = nil, nil
	c.state = State{Status: StatusConnecting}
	c.mu.Unlock()

	c.teardown(oldRoom, oldStop)

	if err := c.joiner.Probe(ctx); err != nil {
		c.setStatus(StatusError)
		return false, fmt.Errorf("campaign %s: %w", campaignID, err)
	}
	room, err := c.joiner.Join(ctx, roomID)
	if err != nil {
		c.setStatus(StatusError)
		return false, fmt.Errorf("campaign %s: %w", campaignID, err)
	}

	sendCombat, recvCombat := room.MakeAction(actionCombat)
	sendHistory, recvHistory := room.MakeAction(actionHistory)
	sendCharUpdate, recvCharUpdate := room.MakeAction(actionCharUpdate)
	sendCampaign, recvCampaign := room.MakeAction(actionCampaign)

	stop := make(chan struct{})

	// State goes in before the receive handlers: a message delivered the
	// instant a handler registers must see the joined session, not a
	// half-initialized one.
	c.mu.Lock()
	c.room = room
	c.stop = stop
	c.sendCombat = sendCombat
	c.sendHistory = sendHistory
	c.sendCharUpdate = sendCharUpdate
	c.sendCampaign = sendCampaign
	c.state = State{
		RoomID:             roomID,
		CampaignID:         campaignID,
		Peers:              room.Peers(),
		CurrentCharacterID: characterID,
		IsGM:               isGM,
		Connected:          true,
		Status:             StatusConnected,
	}
	c.mu.Unlock()

	recvCombat(c.onCombat)
	recvHistory(c.onHistory)
	recvCharUpdate(c.onCharUpdate)
	recvCampaign(c.onCampaign)
	room.OnPeerJoin(c.onPeerJoin)
	room.OnPeerLeave(c.onPeerLeave)

	go c.heartbeat(stop)
	go c.monitor(stop)

	if isGM {
		c.pushAuthoritative(ctx)
	}
	c.log.Info(ctx, "joined campaign room", "campaign", campaignID, "gm", isGM)
	return true, nil
}

// Leave tears down the room handle and zeroes the session state. Safe to
// call repeatedly or when nothing is connected.
func (c *Controller) Leave() error {
	c.mu.Lock()
	room, stop := c.room, c.stop
	c.room, c.stop = nil, nil
	c.sendCombat, c.sendHistory, c.sendCharUpdate, c.sendCampaign = nil, nil, nil, nil
	c.history = nil
	c.seen = make(map[string]struct{})
	c.state = State{Status: StatusDisconnected}
	c.mu.Unlock()

	c.teardown(room, stop)
	return nil
}

func (c *Controller) teardown(room transport.Room, stop chan struct{}) {
	if stop != nil {
		close(stop)
	}
	if room != nil {
		if err := room.Leave(); err != nil {
			c.log.Debug(context.Background(), "room leave failed", "error", err)
		}
	}
}

func (c *Controller) setStatus(s Status) {
	c.mu.Lock()
	c.state.Status = s
	c.state.Connected = s == StatusConnected
	c.mu.Unlock()
}

// ShareRoll appends a roll to the local history and broadcasts it. The
// local append marks the id as seen so the entry survives being echoed
// back by a peer without duplicating.
func (c *Controller) ShareRoll(ctx context.Context, e model.RollEntry) error {
	c.mu.Lock()
	if _, dup := c.seen[e.Id]; !dup {
		c.seen[e.Id] = struct{}{}
		c.history = append(c.history, e)
	}
	send := c.sendHistory
	c.mu.Unlock()

	if send == nil {
		return nil
	}
	raw, err := json.Marshal(historyPayloadFrom(e))
	if err != nil {
		return err
	}
	return send(ctx, raw)
}

// ProposeCharacter sends the player's current character sheet to the
// room as a state proposal.
func (c *Controller) ProposeCharacter(ctx context.Context) error {
	c.mu.Lock()
	send := c.sendCharUpdate
	charID := c.state.CurrentCharacterID
	c.mu.Unlock()

	if send == nil || charID == "" {
		return nil
	}
	char, ok := c.store.Characters().Get(charID)
	if !ok {
		return fmt.Errorf("character %s: %w", charID, common.ErrNotFound)
	}
	raw, err := json.Marshal(charUpdatePayloadFrom(char))
	if err != nil {
		return err
	}
	return send(ctx, raw)
}

// BroadcastCombat pushes the campaign's combat state to the room. GM only;
// a no-op for players.
func (c *Controller) BroadcastCombat(ctx context.Context) error {
	c.mu.Lock()
	send := c.sendCombat
	campaignID := c.state.CampaignID
	gm := c.state.IsGM
	c.mu.Unlock()

	if send == nil || !gm {
		return nil
	}
	camp, ok := c.store.Campaigns().Get(campaignID)
	if !ok {
		return nil
	}
	raw, err := json.Marshal(model.CombatPayload{Round: camp.Combat.Round, Active: camp.Combat.Active})
	if err != nil {
		return err
	}
	return send(ctx, raw)
}

// pushAuthoritative sends combat state and campaign metadata. Used by the
// GM on its own join, on peer join, and from the heartbeat.
func (c *Controller) pushAuthoritative(ctx context.Context) {
	c.mu.Lock()
	sendCombat := c.sendCombat
	sendCampaign := c.sendCampaign
	campaignID := c.state.CampaignID
	gm := c.state.IsGM
	c.mu.Unlock()

	if !gm || sendCampaign == nil {
		return
	}
	camp, ok := c.store.Campaigns().Get(campaignID)
	if !ok {
		return
	}

	if raw, err := json.Marshal(model.CombatPayload{Round: camp.Combat.Round, Active: camp.Combat.Active}); err == nil {
		if err := sendCombat(ctx, raw); err != nil {
			c.log.Debug(ctx, "combat push failed", "error", err)
		}
	}
	meta := model.CampaignPayload{
		Name:         camp.Name,
		GmName:       camp.GmName,
		PasswordHash: camp.PasswordHash,
		System:       camp.System,
	}
	if raw, err := json.Marshal(meta); err == nil {
		if err := sendCampaign(ctx, raw); err != nil {
			c.log.Debug(ctx, "campaign push failed", "error", err)
		}
	}

	// The GM is its own liveness source.
	c.mu.Lock()
	c.state.LastGMUpdate = c.nowFn().UnixMilli()
	c.mu.Unlock()
}

func (c *Controller) heartbeat(stop chan struct{}) {
	ticker := time.NewTicker(c.heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.pushAuthoritative(context.Background())
		}
	}
}

// monitor probes the tracker in the background. Losing reachability while
// connected degrades to reconnecting; a later success restores connected.
func (c *Controller) monitor(stop chan struct{}) {
	ticker := time.NewTicker(c.monitorEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.checkLiveness()
		}
	}
}

func (c *Controller) checkLiveness() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err := c.joiner.Probe(ctx)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return
	}
	switch {
	case err != nil && c.state.Status == StatusConnected:
		c.state.Status = StatusReconnecting
		c.state.Connected = false
	case err == nil && c.state.Status == StatusReconnecting:
		c.state.Status = StatusConnected
		c.state.Connected = true
	}
}

func (c *Controller) onPeerJoin(peerID string) {
	c.mu.Lock()
	c.state.Peers = appendUnique(c.state.Peers, peerID)
	gm := c.state.IsGM
	c.mu.Unlock()

	// New joiners must not wait a heartbeat to learn the campaign.
	if gm {
		c.pushAuthoritative(context.Background())
	}
}

func (c *Controller) onPeerLeave(peerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	peers := c.state.Peers[:0]
	for _, p := range c.state.Peers {
		if p != peerID {
			peers = append(peers, p)
		}
	}
	c.state.Peers = peers
}

// onStoreChange rebroadcasts local edits relevant to the active campaign.
func (c *Controller) onStoreChange(collection, id string) {
	c.mu.Lock()
	if c.room == nil || c.applying {
		c.mu.Unlock()
		return
	}
	gm := c.state.IsGM
	charID := c.state.CurrentCharacterID
	campaignID := c.state.CampaignID
	c.mu.Unlock()

	ctx := context.Background()
	switch {
	case !gm && collection == vault.CollectionCharacters && id == charID:
		if err := c.ProposeCharacter(ctx); err != nil {
			c.log.Debug(ctx, "character proposal failed", "error", err)
		}
	case gm && collection == vault.CollectionCampaigns && id == campaignID:
		c.pushAuthoritative(ctx)
	}
}

func appendUnique(peers []string, id string) []string {
	for _, p := range peers {
		if p == id {
			return peers
		}
	}
	return append(peers, id)
}
