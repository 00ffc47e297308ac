package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castmir/vaultmesh/internal/common"
)

func TestCharUpdatePayload_AbsentVsNullCampaignId(t *testing.T) {
	var absent CharUpdatePayload
	require.NoError(t, json.Unmarshal([]byte(`{"id":"c1","damage":3}`), &absent))
	assert.False(t, absent.CampaignId.Set)
	assert.False(t, absent.Evicted())

	var null CharUpdatePayload
	require.NoError(t, json.Unmarshal([]byte(`{"id":"c1","campaignId":null}`), &null))
	assert.True(t, null.CampaignId.Set)
	assert.False(t, null.CampaignId.Valid)
	assert.True(t, null.Evicted())

	var set CharUpdatePayload
	require.NoError(t, json.Unmarshal([]byte(`{"id":"c1","campaignId":"camp-9"}`), &set))
	assert.True(t, set.CampaignId.Valid)
	assert.Equal(t, "camp-9", set.CampaignId.Value)
	assert.False(t, set.Evicted())
}

func TestCharUpdatePayload_MarshalOmitsUnsetCampaignId(t *testing.T) {
	b, err := json.Marshal(&CharUpdatePayload{Id: "c1"})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "campaignId")

	evict := &CharUpdatePayload{Id: "c1", CampaignId: OptString{Set: true}}
	b, err = json.Marshal(evict)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"campaignId":null`)
}

func TestCharUpdatePayload_Rejected(t *testing.T) {
	approval := ApprovalRejected
	p := &CharUpdatePayload{Id: "c1", CampaignApproval: &approval}
	assert.True(t, p.Rejected())

	pending := ApprovalPending
	p = &CharUpdatePayload{Id: "c1", CampaignApproval: &pending}
	assert.False(t, p.Rejected())
}

func TestPayloadValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload interface{ Validate() error }
		wantErr bool
	}{
		{"discovery ok", &DiscoveryPayload{Id: "a", Name: "n"}, false},
		{"discovery missing name", &DiscoveryPayload{Id: "a"}, true},
		{"combat ok", &CombatPayload{Round: 2, Active: true}, false},
		{"combat negative round", &CombatPayload{Round: -1}, true},
		{"campaign ok", &CampaignPayload{Name: "n"}, false},
		{"campaign empty", &CampaignPayload{}, true},
		{"history ok", &HistoryPayload{Id: "h1"}, false},
		{"history missing id", &HistoryPayload{}, true},
		{"charUpdate ok", &CharUpdatePayload{Id: "c1"}, false},
		{"charUpdate missing id", &CharUpdatePayload{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.payload.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, common.ErrInvalidPayload)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHistoryPayload_Entry(t *testing.T) {
	formula := "2d6+3"
	total := 11.0
	crit := true
	p := &HistoryPayload{
		Id:        "h1",
		Timestamp: 42,
		CharName:  "Grim",
		Source:    "attack",
		Name:      "Sword",
		Formula:   &formula,
		Total:     &total,
		Crit:      &crit,
	}
	e := p.Entry()
	assert.Equal(t, "h1", e.Id)
	assert.Equal(t, int64(42), e.Timestamp)
	assert.Equal(t, "2d6+3", e.Formula)
	assert.Equal(t, 11.0, e.Total)
	assert.True(t, e.Crit)
	assert.Empty(t, e.Description)
}
