package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castmir/vaultmesh/internal/model"
	"github.com/castmir/vaultmesh/internal/transport"
)

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }

func TestApprovalRatchet(t *testing.T) {
	net := transport.NewNetwork()
	gm, gmStore := newGM(t, net, "c1")
	ctx := context.Background()

	// Seed the roster with an approved member.
	camp, _ := gmStore.Campaigns().Get("c1")
	camp.Members = []model.Character{{
		Id:               "char-1",
		Name:             "Vel",
		CampaignId:       "c1",
		CampaignApproval: model.ApprovalApproved,
	}}
	require.NoError(t, gmStore.Campaigns().Set(ctx, camp, 2))

	// A player proposal carrying pending must not downgrade the approval,
	// while its other fields still land.
	gm.onCharUpdate("p1", []byte(`{"id":"char-1","campaignApproval":"pending","health":6}`))

	camp, _ = gmStore.Campaigns().Get("c1")
	require.Len(t, camp.Members, 1)
	assert.Equal(t, model.ApprovalApproved, camp.Members[0].CampaignApproval)
	assert.Equal(t, 6, camp.Members[0].Health)

	// The GM's own explicit rejection is the only way back down.
	gm.onCharUpdate("p1", []byte(`{"id":"char-1","campaignApproval":"rejected"}`))
	camp, _ = gmStore.Campaigns().Get("c1")
	assert.Equal(t, model.ApprovalRejected, camp.Members[0].CampaignApproval)
}

func TestUnknownProposerJoinsRoster(t *testing.T) {
	net := transport.NewNetwork()
	gm, gmStore := newGM(t, net, "c1")

	gm.onCharUpdate("p9", []byte(`{"id":"char-9","name":"Moro","campaignApproval":"pending","health":12}`))

	camp, _ := gmStore.Campaigns().Get("c1")
	require.Len(t, camp.Members, 1)
	assert.Equal(t, "char-9", camp.Members[0].Id)
	assert.Equal(t, "Moro", camp.Members[0].Name)
	assert.Equal(t, "c1", camp.Members[0].CampaignId)
	assert.Equal(t, model.ApprovalPending, camp.Members[0].CampaignApproval)
}

func TestProposalMirroredIntoEncounter(t *testing.T) {
	net := transport.NewNetwork()
	gm, gmStore := newGM(t, net, "c1")
	ctx := context.Background()

	camp, _ := gmStore.Campaigns().Get("c1")
	camp.Members = []model.Character{{Id: "char-1", Name: "Vel", CampaignApproval: model.ApprovalApproved}}
	require.NoError(t, gmStore.Campaigns().Set(ctx, camp, 2))
	require.NoError(t, gmStore.Encounters().Set(ctx, model.Encounter{
		Id:         "e1",
		CampaignId: "c1",
		Combatants: []model.Combatant{
			{Id: "char-1", Type: "player", Name: "Vel", Health: 10},
			{Id: "gob-1", Type: "enemy", Name: "Goblin", Health: 8},
		},
	}, 2))
	require.NoError(t, gmStore.Encounters().Set(ctx, model.Encounter{
		Id:         "e2",
		CampaignId: "other",
		Combatants: []model.Combatant{{Id: "char-1", Type: "player", Health: 10}},
	}, 2))

	gm.onCharUpdate("p1", []byte(`{"id":"char-1","campaignApproval":"pending","health":3,"damage":7}`))

	// Roster and encounter agree, and the mirrored approval is the
	// post-ratchet value, not the raw pending proposal.
	enc, _ := gmStore.Encounters().Get("e1")
	assert.Equal(t, 3, enc.Combatants[0].Health)
	assert.Equal(t, 7, enc.Combatants[0].Damage)
	assert.Equal(t, model.ApprovalApproved, enc.Combatants[0].CampaignApproval)

	// Enemies and other campaigns' encounters are untouched.
	assert.Equal(t, 8, enc.Combatants[1].Health)
	other, _ := gmStore.Encounters().Get("e2")
	assert.Equal(t, 10, other.Combatants[0].Health)
}

func TestRejectionOverridesOtherFields(t *testing.T) {
	net := transport.NewNetwork()
	_, _ = newGM(t, net, "c1")
	player, playerStore := newPlayer(t, net, "p1", "c1", "char-1")

	// Rejection detaches unconditionally even though the same message
	// carries other field edits.
	player.onCharUpdate("gm", []byte(`{"id":"char-1","campaignApproval":"rejected","name":"Renamed","health":99}`))

	char, _ := playerStore.Characters().Get("char-1")
	assert.Empty(t, char.CampaignId)
	assert.Empty(t, char.CampaignApproval)
	assert.NotEqual(t, "Renamed", char.Name)
	assert.NotEqual(t, 99, char.Health)
}

func TestEvictionViaNullCampaignId(t *testing.T) {
	net := transport.NewNetwork()
	_, _ = newGM(t, net, "c1")
	player, playerStore := newPlayer(t, net, "p1", "c1", "char-1")

	player.onCharUpdate("gm", []byte(`{"id":"char-1","campaignId":null,"health":99}`))

	char, _ := playerStore.Characters().Get("char-1")
	assert.Empty(t, char.CampaignId)
	assert.Empty(t, char.CampaignApproval)
	assert.NotEqual(t, 99, char.Health)
}

func TestGMCorrectionMergesPerField(t *testing.T) {
	net := transport.NewNetwork()
	_, _ = newGM(t, net, "c1")
	player, playerStore := newPlayer(t, net, "p1", "c1", "char-1")

	player.onCharUpdate("gm", []byte(`{"id":"char-1","campaignApproval":"approved","health":8}`))

	char, _ := playerStore.Characters().Get("char-1")
	assert.Equal(t, model.ApprovalApproved, char.CampaignApproval)
	assert.Equal(t, 8, char.Health)
	// Absent fields mean "no change", never "clear to empty".
	assert.Equal(t, "Vel", char.Name)
	assert.Equal(t, "c1", char.CampaignId)
}

func TestCorrectionForOtherCharacterIgnored(t *testing.T) {
	net := transport.NewNetwork()
	_, _ = newGM(t, net, "c1")
	player, playerStore := newPlayer(t, net, "p1", "c1", "char-1")

	player.onCharUpdate("gm", []byte(`{"id":"char-2","health":1}`))

	char, _ := playerStore.Characters().Get("char-1")
	assert.Equal(t, 10, char.Health)
}

func TestMalformedCharUpdateDropped(t *testing.T) {
	net := transport.NewNetwork()
	gm, gmStore := newGM(t, net, "c1")

	gm.onCharUpdate("p1", []byte(`not json`))
	gm.onCharUpdate("p1", []byte(`{"health":5}`)) // missing id

	camp, _ := gmStore.Campaigns().Get("c1")
	assert.Empty(t, camp.Members)
}

func TestMergeSheet_LastMessageWinsPerField(t *testing.T) {
	dst := model.Character{Id: "c", Name: "Vel", Health: 10, Damage: 2}

	mergeSheet(&dst, &model.CharUpdatePayload{Id: "c", Health: intp(6)})
	assert.Equal(t, 6, dst.Health)
	assert.Equal(t, "Vel", dst.Name)
	assert.Equal(t, 2, dst.Damage)

	mergeSheet(&dst, &model.CharUpdatePayload{Id: "c", Name: strp("Moro"), Damage: intp(0)})
	assert.Equal(t, "Moro", dst.Name)
	assert.Equal(t, 0, dst.Damage)
	assert.Equal(t, 6, dst.Health)
}
