package session

import "github.com/castmir/vaultmesh/internal/model"

// Field merges are last-message-wins per field: an absent field means "no
// change", never "clear to empty".

// mergeCharacter applies every present field, including approval and
// campaign linkage. Used on the player side for GM corrections.
func mergeCharacter(dst *model.Character, p *model.CharUpdatePayload) {
	if p.CampaignApproval != nil {
		dst.CampaignApproval = *p.CampaignApproval
	}
	if p.CampaignId.Set && p.CampaignId.Valid {
		dst.CampaignId = p.CampaignId.Value
	}
	mergeSheet(dst, p)
}

// mergeMember applies a player proposal to the GM's roster copy. The
// approval ratchet holds: a pending proposal never downgrades an approval
// the GM already granted.
func mergeMember(dst *model.Character, p *model.CharUpdatePayload) {
	if p.CampaignApproval != nil {
		proposed := *p.CampaignApproval
		if !(proposed == model.ApprovalPending && dst.CampaignApproval == model.ApprovalApproved) {
			dst.CampaignApproval = proposed
		}
	}
	mergeSheet(dst, p)
}

func mergeSheet(dst *model.Character, p *model.CharUpdatePayload) {
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.System != nil {
		dst.System = *p.System
	}
	if p.Attributes != nil {
		dst.Attributes = p.Attributes
	}
	if p.Damage != nil {
		dst.Damage = *p.Damage
	}
	if p.Health != nil {
		dst.Health = *p.Health
	}
	if p.HealingRate != nil {
		dst.HealingRate = *p.HealingRate
	}
	if p.Insanity != nil {
		dst.Insanity = *p.Insanity
	}
	if p.Corruption != nil {
		dst.Corruption = *p.Corruption
	}
	if p.CurrentRound != nil {
		dst.CurrentRound = *p.CurrentRound
	}
	if p.CombatActive != nil {
		dst.CombatActive = *p.CombatActive
	}
}

// mergeCombatant mirrors the subset of sheet fields an encounter row
// carries. The approval value arrives post-ratchet from the roster merge
// path, so it is applied as-is.
func mergeCombatant(dst *model.Combatant, p *model.CharUpdatePayload) {
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.Health != nil {
		dst.Health = *p.Health
	}
	if p.Damage != nil {
		dst.Damage = *p.Damage
	}
	if p.CampaignApproval != nil {
		dst.CampaignApproval = *p.CampaignApproval
	}
}

func charUpdatePayloadFrom(c model.Character) model.CharUpdatePayload {
	approval := c.CampaignApproval
	p := model.CharUpdatePayload{
		Id:           c.Id,
		Name:         &c.Name,
		System:       &c.System,
		Attributes:   c.Attributes,
		Damage:       &c.Damage,
		Health:       &c.Health,
		HealingRate:  &c.HealingRate,
		Insanity:     &c.Insanity,
		Corruption:   &c.Corruption,
		CurrentRound: &c.CurrentRound,
		CombatActive: &c.CombatActive,
	}
	if approval != "" {
		p.CampaignApproval = &approval
	}
	if c.CampaignId != "" {
		p.CampaignId = model.OptString{Set: true, Valid: true, Value: c.CampaignId}
	}
	return p
}

func historyPayloadFrom(e model.RollEntry) model.HistoryPayload {
	return model.HistoryPayload{
		Id:             e.Id,
		Timestamp:      e.Timestamp,
		CharName:       e.CharName,
		Source:         e.Source,
		Name:           e.Name,
		Description:    &e.Description,
		Formula:        &e.Formula,
		Total:          &e.Total,
		Crit:           &e.Crit,
		EffectsApplied: &e.EffectsApplied,
	}
}
