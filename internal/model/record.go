// Package model defines the records kept in the local vault, the cloud
// snapshot schema, and the wire payloads exchanged between peers.
package model

// RecordType tags the four record kinds that participate in deletion
// tombstones.
type RecordType string

const (
	RecordCharacter RecordType = "character"
	RecordCampaign  RecordType = "campaign"
	RecordEnemy     RecordType = "enemy"
	RecordEncounter RecordType = "encounter"
)

// Approval states for a character's campaign membership. The GM owns the
// transition to Approved and Rejected; players may only propose Pending.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Entity is anything addressable by a stable string id. Ids are immutable
// once created.
type Entity interface {
	EntityID() string
}

// Character is a player character sheet. Only the fields that travel
// between devices or peers live here; system-specific derivation (damage
// rolls, defense math) happens outside this module.
type Character struct {
	Id               string `json:"id"`
	Name             string `json:"name,omitempty"`
	System           string `json:"system,omitempty"`
	CampaignId       string `json:"campaignId,omitempty"`
	CampaignApproval string `json:"campaignApproval,omitempty"`

	// LastUpdate (epoch millis) arbitrates cloud conflicts only. Peer
	// merges are last-message-wins and never consult it.
	LastUpdate int64 `json:"lastUpdate,omitempty"`

	// Combat-tracking fields mirrored from GM combat broadcasts.
	CurrentRound int  `json:"currentRound,omitempty"`
	CombatActive bool `json:"combatActive,omitempty"`

	// Live-session sheet state.
	Attributes  map[string]int `json:"attributes,omitempty"`
	Damage      int            `json:"damage,omitempty"`
	Health      int            `json:"health,omitempty"`
	HealingRate int            `json:"healingRate,omitempty"`
	Insanity    int            `json:"insanity,omitempty"`
	Corruption  int            `json:"corruption,omitempty"`
}

func (c Character) EntityID() string { return c.Id }

// CombatState is the GM-authoritative round tracker for a campaign.
type CombatState struct {
	Round  int  `json:"round"`
	Active bool `json:"active"`
}

// Campaign is the GM-side record of a campaign, including the member
// roster the GM merges player updates into.
type Campaign struct {
	Id           string      `json:"id"`
	Name         string      `json:"name,omitempty"`
	GmName       string      `json:"gmName,omitempty"`
	Description  string      `json:"description,omitempty"`
	System       string      `json:"system,omitempty"`
	PasswordHash string      `json:"passwordHash,omitempty"`
	Published    bool        `json:"published,omitempty"`
	LastUpdate   int64       `json:"lastUpdate,omitempty"`
	Combat       CombatState `json:"combat"`
	Members      []Character `json:"members,omitempty"`
}

func (c Campaign) EntityID() string { return c.Id }

// Enemy is a GM-owned stat block.
type Enemy struct {
	Id          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Health      int    `json:"health,omitempty"`
	Damage      int    `json:"damage,omitempty"`
	Defense     int    `json:"defense,omitempty"`
	LastUpdate  int64  `json:"lastUpdate,omitempty"`
}

func (e Enemy) EntityID() string { return e.Id }

// Combatant is a row in an encounter's initiative tracking. Type is
// "player" for campaign members and "enemy" otherwise.
type Combatant struct {
	Id               string `json:"id"`
	Type             string `json:"type"`
	Name             string `json:"name,omitempty"`
	Health           int    `json:"health,omitempty"`
	Damage           int    `json:"damage,omitempty"`
	CampaignApproval string `json:"campaignApproval,omitempty"`
}

// Encounter groups combatants for a campaign.
type Encounter struct {
	Id         string      `json:"id"`
	CampaignId string      `json:"campaignId,omitempty"`
	Name       string      `json:"name,omitempty"`
	Combatants []Combatant `json:"combatants,omitempty"`
	LastUpdate int64       `json:"lastUpdate,omitempty"`
}

func (e Encounter) EntityID() string { return e.Id }

// Image is an immutable content-addressed blob (Data is base64). Images
// merge by pure union; the hash is the identity.
type Image struct {
	Hash string `json:"hash"`
	Data string `json:"data"`
}

func (i Image) EntityID() string { return i.Hash }

// Tombstone records that a record was deleted. Once created it is never
// removed automatically; its presence is authoritative proof that the id
// must never be re-materialized from any external source.
type Tombstone struct {
	Id        string     `json:"id"`
	Type      RecordType `json:"type"`
	DeletedAt int64      `json:"deletedAt"`
}

func (t Tombstone) EntityID() string { return t.Id }

// Announcement is a lightweight "campaign is online" beacon exchanged in
// the discovery lobby. Held only in memory and pruned by staleness.
type Announcement struct {
	Id           string `json:"id"`
	Name         string `json:"name"`
	GmName       string `json:"gmName,omitempty"`
	Description  string `json:"description,omitempty"`
	System       string `json:"system,omitempty"`
	PasswordHash string `json:"passwordHash,omitempty"`
	LastSeen     int64  `json:"lastSeen,omitempty"`
}

// RollEntry is one line of the shared roll history. Entries are
// append-only and de-duplicated by Id.
type RollEntry struct {
	Id             string  `json:"id"`
	Timestamp      int64   `json:"timestamp"`
	CharName       string  `json:"charName,omitempty"`
	Source         string  `json:"source,omitempty"`
	Name           string  `json:"name,omitempty"`
	Description    string  `json:"description,omitempty"`
	Formula        string  `json:"formula,omitempty"`
	Total          float64 `json:"total,omitempty"`
	Crit           bool    `json:"crit,omitempty"`
	EffectsApplied bool    `json:"effectsApplied,omitempty"`
}
