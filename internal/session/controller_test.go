package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castmir/vaultmesh/internal/model"
	"github.com/castmir/vaultmesh/internal/transport"
	"github.com/castmir/vaultmesh/internal/vault"
)

func fakeClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

// newGM returns a connected GM controller with one campaign in its store.
func newGM(t *testing.T, net *transport.Network, campaignID string) (*Controller, *vault.Store) {
	t.Helper()
	store := vault.New(nil)
	ctx := context.Background()
	camp := model.Campaign{
		Id:     campaignID,
		Name:   "Tomb of Ash",
		GmName: "Rae",
		System: "sotdl",
		Combat: model.CombatState{Round: 3, Active: true},
	}
	require.NoError(t, store.Campaigns().Set(ctx, camp, 1))

	c := NewController(net.Joiner("gm"), store, nil)
	joined, err := c.Join(ctx, campaignID, true, "")
	require.NoError(t, err)
	require.True(t, joined)
	return c, store
}

// newPlayer returns a connected player controller with its character.
func newPlayer(t *testing.T, net *transport.Network, peerID, campaignID, charID string) (*Controller, *vault.Store) {
	t.Helper()
	store := vault.New(nil)
	ctx := context.Background()
	char := model.Character{
		Id:               charID,
		Name:             "Vel",
		CampaignId:       campaignID,
		CampaignApproval: model.ApprovalPending,
		Health:           10,
	}
	require.NoError(t, store.Characters().Set(ctx, char, 1))

	c := NewController(net.Joiner(peerID), store, nil)
	joined, err := c.Join(ctx, campaignID, false, charID)
	require.NoError(t, err)
	require.True(t, joined)
	return c, store
}

func TestJoin_SameRoomUpdatesInPlace(t *testing.T) {
	net := transport.NewNetwork()
	store := vault.New(nil)
	c := NewController(net.Joiner("p1"), store, nil)
	ctx := context.Background()

	joined, err := c.Join(ctx, "c1", false, "char-1")
	require.NoError(t, err)
	require.True(t, joined)
	require.Equal(t, 1, net.OpenConns())

	// Re-joining the held room must not reconnect, even repeatedly and
	// with no cooldown spacing.
	for i := 0; i < 5; i++ {
		joined, err = c.Join(ctx, "c1", true, "char-2")
		require.NoError(t, err)
		assert.False(t, joined)
	}
	assert.Equal(t, 1, net.OpenConns())
	assert.Equal(t, 1, net.TotalJoins())

	st := c.State()
	assert.True(t, st.IsGM)
	assert.Equal(t, "char-2", st.CurrentCharacterID)
	assert.Equal(t, StatusConnected, st.Status)
}

func TestJoin_DifferentRoomLeavesFirst(t *testing.T) {
	net := transport.NewNetwork()
	store := vault.New(nil)
	c := NewController(net.Joiner("p1"), store, nil)
	nowFn, advance := fakeClock(time.Unix(1700000000, 0))
	c.SetNow(nowFn)
	ctx := context.Background()

	joined, err := c.Join(ctx, "c1", false, "char-1")
	require.NoError(t, err)
	require.True(t, joined)

	advance(3 * time.Second)
	joined, err = c.Join(ctx, "c2", false, "char-1")
	require.NoError(t, err)
	require.True(t, joined)

	// Never two live handles: the old room was left before the new join.
	assert.Equal(t, 1, net.OpenConns())
	assert.Equal(t, 2, net.TotalJoins())
	assert.Equal(t, "campaign-c2", c.State().RoomID)
}

func TestJoin_RateLimitedIsSilentNoop(t *testing.T) {
	net := transport.NewNetwork()
	store := vault.New(nil)
	c := NewController(net.Joiner("p1"), store, nil)
	nowFn, advance := fakeClock(time.Unix(1700000000, 0))
	c.SetNow(nowFn)
	ctx := context.Background()

	joined, err := c.Join(ctx, "c1", false, "")
	require.NoError(t, err)
	require.True(t, joined)

	// A different-room join inside the cooldown window does nothing.
	joined, err = c.Join(ctx, "c2", false, "")
	require.NoError(t, err)
	assert.False(t, joined)
	assert.Equal(t, "campaign-c1", c.State().RoomID)
	assert.Equal(t, 1, net.OpenConns())

	advance(3 * time.Second)
	joined, err = c.Join(ctx, "c2", false, "")
	require.NoError(t, err)
	assert.True(t, joined)
}

func TestJoin_ProbeFailureSetsError(t *testing.T) {
	net := transport.NewNetwork()
	net.SetProbeError(assert.AnError)
	store := vault.New(nil)
	c := NewController(net.Joiner("p1"), store, nil)

	joined, err := c.Join(context.Background(), "c1", false, "")
	require.Error(t, err)
	assert.False(t, joined)
	assert.Equal(t, StatusError, c.State().Status)
	assert.Equal(t, 0, net.OpenConns())
}

func TestLeave_IdempotentAndZeroesState(t *testing.T) {
	net := transport.NewNetwork()
	store := vault.New(nil)
	c := NewController(net.Joiner("p1"), store, nil)
	ctx := context.Background()

	require.NoError(t, c.Leave()) // nothing connected yet

	joined, err := c.Join(ctx, "c1", false, "char-1")
	require.NoError(t, err)
	require.True(t, joined)

	require.NoError(t, c.Leave())
	require.NoError(t, c.Leave())

	st := c.State()
	assert.Equal(t, StatusDisconnected, st.Status)
	assert.Empty(t, st.RoomID)
	assert.Empty(t, st.CurrentCharacterID)
	assert.False(t, st.Connected)
	assert.Empty(t, c.History())
	assert.Equal(t, 0, net.OpenConns())
}

func TestHistory_DeduplicatedById(t *testing.T) {
	net := transport.NewNetwork()
	gm, _ := newGM(t, net, "c1")
	player, _ := newPlayer(t, net, "p1", "c1", "char-1")
	ctx := context.Background()

	roll := model.RollEntry{Id: "r1", Timestamp: 42, CharName: "Vel", Formula: "1d20", Total: 17}
	require.NoError(t, player.ShareRoll(ctx, roll))

	// The sender recorded it once; the GM received it once.
	require.Len(t, player.History(), 1)
	require.Len(t, gm.History(), 1)
	assert.Equal(t, "r1", gm.History()[0].Id)
	assert.Equal(t, 17.0, gm.History()[0].Total)

	// The GM echoing the same entry back must not duplicate it on the
	// player, and sharing it again must not duplicate it on the GM.
	require.NoError(t, gm.ShareRoll(ctx, roll))
	require.NoError(t, player.ShareRoll(ctx, roll))
	assert.Len(t, player.History(), 1)
	assert.Len(t, gm.History(), 1)
}

func TestGMOnline_SixtySecondWindow(t *testing.T) {
	net := transport.NewNetwork()
	ctx := context.Background()

	// Player joins an empty room first so the liveness clock starts
	// unstamped and under the fake clock.
	store := vault.New(nil)
	require.NoError(t, store.Characters().Set(ctx, model.Character{Id: "char-1"}, 1))
	player := NewController(net.Joiner("p1"), store, nil)
	nowFn, advance := fakeClock(time.Unix(1700000000, 0))
	player.SetNow(nowFn)
	joined, err := player.Join(ctx, "c1", false, "char-1")
	require.NoError(t, err)
	require.True(t, joined)
	assert.False(t, player.GMOnline())

	// The GM's join-time push stamps liveness.
	gm, _ := newGM(t, net, "c1")
	require.True(t, player.GMOnline())

	advance(59 * time.Second)
	assert.True(t, player.GMOnline())
	advance(2 * time.Second)
	assert.False(t, player.GMOnline())

	// Any later campaign broadcast refreshes it.
	gm.pushAuthoritative(ctx)
	assert.True(t, player.GMOnline())
}

func TestGMPushesStateToNewJoiner(t *testing.T) {
	net := transport.NewNetwork()
	_, _ = newGM(t, net, "c1")

	player, store := newPlayer(t, net, "p1", "c1", "char-1")

	// The GM pushed combat and campaign on the player's join; no
	// heartbeat tick was needed.
	assert.True(t, player.GMOnline())
	char, ok := store.Characters().Get("char-1")
	require.True(t, ok)
	assert.Equal(t, 3, char.CurrentRound)
	assert.True(t, char.CombatActive)

	camp, ok := store.Campaigns().Get("c1")
	if ok {
		assert.Equal(t, "Tomb of Ash", camp.Name)
	}
}

func TestCombatBroadcastAppliesToPlayerCharacter(t *testing.T) {
	net := transport.NewNetwork()
	gm, gmStore := newGM(t, net, "c1")
	_, playerStore := newPlayer(t, net, "p1", "c1", "char-1")
	ctx := context.Background()

	camp, _ := gmStore.Campaigns().Get("c1")
	camp.Combat = model.CombatState{Round: 7, Active: false}
	require.NoError(t, gmStore.Campaigns().Set(ctx, camp, 2))
	require.NoError(t, gm.BroadcastCombat(ctx))

	char, ok := playerStore.Characters().Get("char-1")
	require.True(t, ok)
	assert.Equal(t, 7, char.CurrentRound)
	assert.False(t, char.CombatActive)
}

func TestPeerRosterTracksJoinAndLeave(t *testing.T) {
	net := transport.NewNetwork()
	gm, _ := newGM(t, net, "c1")
	player, _ := newPlayer(t, net, "p1", "c1", "char-1")

	assert.Contains(t, gm.State().Peers, "p1")
	assert.Contains(t, player.State().Peers, "gm")

	require.NoError(t, player.Leave())
	assert.NotContains(t, gm.State().Peers, "p1")
}

func TestMonitor_DegradesAndRecovers(t *testing.T) {
	net := transport.NewNetwork()
	store := vault.New(nil)
	c := NewController(net.Joiner("p1"), store, nil)
	ctx := context.Background()

	joined, err := c.Join(ctx, "c1", false, "")
	require.NoError(t, err)
	require.True(t, joined)
	require.Equal(t, StatusConnected, c.State().Status)

	net.SetProbeError(assert.AnError)
	c.checkLiveness()
	assert.Equal(t, StatusReconnecting, c.State().Status)
	assert.False(t, c.State().Connected)

	net.SetProbeError(nil)
	c.checkLiveness()
	assert.Equal(t, StatusConnected, c.State().Status)
	assert.True(t, c.State().Connected)
}

func TestLocalCharacterEditRebroadcast(t *testing.T) {
	net := transport.NewNetwork()
	_, gmStore := newGM(t, net, "c1")
	_, playerStore := newPlayer(t, net, "p1", "c1", "char-1")
	ctx := context.Background()

	// An edit to the active character flows to the GM's roster without an
	// explicit proposal call.
	char, _ := playerStore.Characters().Get("char-1")
	char.Health = 4
	require.NoError(t, playerStore.Characters().Set(ctx, char, 5))

	camp, ok := gmStore.Campaigns().Get("c1")
	require.True(t, ok)
	require.Len(t, camp.Members, 1)
	assert.Equal(t, "char-1", camp.Members[0].Id)
	assert.Equal(t, 4, camp.Members[0].Health)
}
