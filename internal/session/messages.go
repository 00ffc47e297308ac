package session

import (
	"context"
	"encoding/json"

	"github.com/castmir/vaultmesh/internal/logging"
	"github.com/castmir/vaultmesh/internal/model"
)

// Inbound message handlers. Every handler is idempotent: delivery is
// at-most-once best-effort with no ordering across actions, so a
// duplicate must reconverge to the same state.

func decode[T interface{ Validate() error }](log logging.Logger, action, peerID string, payload []byte, into T) bool {
	if err := json.Unmarshal(payload, into); err != nil {
		log.Debug(context.Background(), "dropping malformed message", "action", action, "peer", peerID, "error", err)
		return false
	}
	if err := into.Validate(); err != nil {
		log.Debug(context.Background(), "dropping invalid message", "action", action, "peer", peerID, "error", err)
		return false
	}
	return true
}

// onCombat applies GM combat broadcasts onto the player's character. The
// GM ignores it; combat state originates from its own campaign record.
func (c *Controller) onCombat(peerID string, payload []byte) {
	var p model.CombatPayload
	if !decode(c.log, actionCombat, peerID, payload, &p) {
		return
	}

	c.mu.Lock()
	if c.state.IsGM || c.state.CurrentCharacterID == "" {
		c.mu.Unlock()
		return
	}
	charID := c.state.CurrentCharacterID
	c.applying = true
	c.mu.Unlock()
	defer c.clearApplying()

	char, ok := c.store.Characters().Get(charID)
	if !ok {
		return
	}
	char.CurrentRound = p.Round
	char.CombatActive = p.Active
	c.persistCharacter(char)
}

// onCampaign stamps GM liveness and refreshes the locally cached campaign
// metadata.
func (c *Controller) onCampaign(peerID string, payload []byte) {
	var p model.CampaignPayload
	if !decode(c.log, actionCampaign, peerID, payload, &p) {
		return
	}

	c.mu.Lock()
	c.state.LastGMUpdate = c.nowFn().UnixMilli()
	campaignID := c.state.CampaignID
	c.applying = true
	c.mu.Unlock()
	defer c.clearApplying()

	camp, ok := c.store.Campaigns().Get(campaignID)
	if !ok {
		return
	}
	camp.Name = p.Name
	if p.GmName != "" {
		camp.GmName = p.GmName
	}
	if p.PasswordHash != "" {
		camp.PasswordHash = p.PasswordHash
	}
	if p.System != "" {
		camp.System = p.System
	}
	now := c.nowFn().UnixMilli()
	camp.LastUpdate = now
	if err := c.store.Campaigns().Set(context.Background(), camp, now); err != nil {
		c.log.Error(context.Background(), "campaign update failed", "error", err)
	}
}

// onHistory appends a shared roll exactly once.
func (c *Controller) onHistory(peerID string, payload []byte) {
	var p model.HistoryPayload
	if !decode(c.log, actionHistory, peerID, payload, &p) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.seen[p.Id]; dup {
		return
	}
	c.seen[p.Id] = struct{}{}
	c.history = append(c.history, p.Entry())
}

func (c *Controller) onCharUpdate(peerID string, payload []byte) {
	var p model.CharUpdatePayload
	if !decode(c.log, actionCharUpdate, peerID, payload, &p) {
		return
	}

	c.mu.Lock()
	gm := c.state.IsGM
	campaignID := c.state.CampaignID
	charID := c.state.CurrentCharacterID
	c.applying = true
	c.mu.Unlock()
	defer c.clearApplying()

	if gm {
		c.mergeProposal(campaignID, &p)
	} else {
		c.applyCorrection(charID, &p)
	}
}

// mergeProposal folds a player's charUpdate into the GM's campaign roster
// and mirrors the merge into any encounter tracking the character.
func (c *Controller) mergeProposal(campaignID string, p *model.CharUpdatePayload) {
	ctx := context.Background()
	camp, ok := c.store.Campaigns().Get(campaignID)
	if !ok {
		return
	}

	var mergedApproval string
	merged := false
	for i := range camp.Members {
		if camp.Members[i].Id == p.Id {
			mergeMember(&camp.Members[i], p)
			mergedApproval = camp.Members[i].CampaignApproval
			merged = true
			break
		}
	}
	if !merged {
		member := model.Character{Id: p.Id, CampaignId: campaignID}
		mergeMember(&member, p)
		mergedApproval = member.CampaignApproval
		camp.Members = append(camp.Members, member)
	}

	// Mirror the post-ratchet approval, not the raw proposal.
	mirror := *p
	if mergedApproval != "" {
		mirror.CampaignApproval = &mergedApproval
	} else {
		mirror.CampaignApproval = nil
	}

	now := c.nowFn().UnixMilli()
	camp.LastUpdate = now
	if err := c.store.Campaigns().Set(ctx, camp, now); err != nil {
		c.log.Error(ctx, "roster merge failed", "error", err)
		return
	}

	// Combat view and roster view must never disagree.
	c.store.Encounters().ForEach(func(enc model.Encounter) bool {
		if enc.CampaignId != campaignID {
			return true
		}
		changed := false
		for i := range enc.Combatants {
			if enc.Combatants[i].Id == p.Id && enc.Combatants[i].Type == "player" {
				mergeCombatant(&enc.Combatants[i], &mirror)
				changed = true
			}
		}
		if changed {
			enc.LastUpdate = now
			if err := c.store.Encounters().Set(ctx, enc, now); err != nil {
				c.log.Error(ctx, "encounter mirror failed", "error", err)
			}
		}
		return true
	})
}

// applyCorrection applies a GM charUpdate to the player's own character.
// Rejection or eviction detaches the character unconditionally and wins
// over every other field in the same message.
func (c *Controller) applyCorrection(charID string, p *model.CharUpdatePayload) {
	if charID == "" || p.Id != charID {
		return
	}
	char, ok := c.store.Characters().Get(charID)
	if !ok {
		return
	}

	if p.Rejected() || p.Evicted() {
		char.CampaignId = ""
		char.CampaignApproval = ""
		c.persistCharacter(char)
		return
	}

	mergeCharacter(&char, p)
	c.persistCharacter(char)
}

func (c *Controller) persistCharacter(char model.Character) {
	ctx := context.Background()
	now := c.nowFn().UnixMilli()
	char.LastUpdate = now
	if err := c.store.Characters().Set(ctx, char, now); err != nil {
		c.log.Error(ctx, "character update failed", "error", err)
	}
}

func (c *Controller) clearApplying() {
	c.mu.Lock()
	c.applying = false
	c.mu.Unlock()
}
