package model

import (
	"fmt"

	"github.com/castmir/vaultmesh/internal/common"
)

// Wire payloads for the room message actions. Each payload is validated at
// the receive boundary; malformed messages are dropped rather than merged.
//
// Optional fields are pointers: absent means "no change", never "clear to
// empty". CampaignId uses OptString because an explicit null is meaningful
// (eviction) and must be told apart from absence.

// DiscoveryPayload is broadcast in the lobby by GMs of published campaigns.
// PasswordHash lets joiners check a table password before entering the
// campaign room; an empty hash means an open table.
type DiscoveryPayload struct {
	Id           string `json:"id"`
	Name         string `json:"name"`
	GmName       string `json:"gmName,omitempty"`
	Description  string `json:"description,omitempty"`
	System       string `json:"system,omitempty"`
	PasswordHash string `json:"passwordHash,omitempty"`
}

func (p *DiscoveryPayload) Validate() error {
	if p.Id == "" || p.Name == "" {
		return fmt.Errorf("%w: discovery requires id and name", common.ErrInvalidPayload)
	}
	return nil
}

// CombatPayload flows GM -> players only.
type CombatPayload struct {
	Round  int  `json:"round"`
	Active bool `json:"active"`
}

func (p *CombatPayload) Validate() error {
	if p.Round < 0 {
		return fmt.Errorf("%w: negative round", common.ErrInvalidPayload)
	}
	return nil
}

// CampaignPayload carries campaign display metadata, GM -> players.
// Receiving one stamps the GM-liveness clock regardless of role.
type CampaignPayload struct {
	Name         string `json:"name"`
	GmName       string `json:"gmName,omitempty"`
	PasswordHash string `json:"passwordHash,omitempty"`
	System       string `json:"system,omitempty"`
}

func (p *CampaignPayload) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: campaign metadata requires a name", common.ErrInvalidPayload)
	}
	return nil
}

// HistoryPayload is one shared roll-log entry, bidirectional, deduplicated
// by Id on receipt.
type HistoryPayload struct {
	Id             string   `json:"id"`
	Timestamp      int64    `json:"timestamp"`
	CharName       string   `json:"charName,omitempty"`
	Source         string   `json:"source,omitempty"`
	Name           string   `json:"name,omitempty"`
	Description    *string  `json:"description,omitempty"`
	Formula        *string  `json:"formula,omitempty"`
	Total          *float64 `json:"total,omitempty"`
	Crit           *bool    `json:"crit,omitempty"`
	EffectsApplied *bool    `json:"effectsApplied,omitempty"`
}

func (p *HistoryPayload) Validate() error {
	if p.Id == "" {
		return fmt.Errorf("%w: history entry requires an id", common.ErrInvalidPayload)
	}
	return nil
}

// Entry converts the payload into a roll-history record.
func (p *HistoryPayload) Entry() RollEntry {
	e := RollEntry{
		Id:        p.Id,
		Timestamp: p.Timestamp,
		CharName:  p.CharName,
		Source:    p.Source,
		Name:      p.Name,
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Formula != nil {
		e.Formula = *p.Formula
	}
	if p.Total != nil {
		e.Total = *p.Total
	}
	if p.Crit != nil {
		e.Crit = *p.Crit
	}
	if p.EffectsApplied != nil {
		e.EffectsApplied = *p.EffectsApplied
	}
	return e
}

// CharUpdatePayload is a full or partial character view. Player -> GM it is
// a state proposal; GM -> player it is an authoritative correction,
// approval, or rejection.
type CharUpdatePayload struct {
	Id               string         `json:"id"`
	Name             *string        `json:"name,omitempty"`
	System           *string        `json:"system,omitempty"`
	CampaignId       OptString      `json:"campaignId,omitzero"`
	CampaignApproval *string        `json:"campaignApproval,omitempty"`
	Attributes       map[string]int `json:"attributes,omitempty"`
	Damage           *int           `json:"damage,omitempty"`
	Health           *int           `json:"health,omitempty"`
	HealingRate      *int           `json:"healingRate,omitempty"`
	Insanity         *int           `json:"insanity,omitempty"`
	Corruption       *int           `json:"corruption,omitempty"`
	CurrentRound     *int           `json:"currentRound,omitempty"`
	CombatActive     *bool          `json:"combatActive,omitempty"`
}

func (p *CharUpdatePayload) Validate() error {
	if p.Id == "" {
		return fmt.Errorf("%w: charUpdate requires an id", common.ErrInvalidPayload)
	}
	return nil
}

// Rejected reports whether this GM message rejects the character.
func (p *CharUpdatePayload) Rejected() bool {
	return p.CampaignApproval != nil && *p.CampaignApproval == ApprovalRejected
}

// Evicted reports whether this GM message detaches the character from the
// campaign via an explicit campaignId: null.
func (p *CharUpdatePayload) Evicted() bool {
	return p.CampaignId.Set && !p.CampaignId.Valid
}
