package world

import (
	"encoding/json"

	"github.com/google/uuid"
)

// UnlimitedQuota marks a player exempt from the world-creation limit.
const UnlimitedQuota = -1

// ChatMode is the player's chat routing preference.
type ChatMode string

const (
	ChatGlobal ChatMode = "global"
	ChatWorld  ChatMode = "world"
)

// Player is the persisted record for one known player. Snapshot and location
// maps are keyed by instance name, so each environment variant of a world
// keeps its own entry.
type Player struct {
	ID        uuid.UUID
	Name      string
	Quota     int // max owned worlds; UnlimitedQuota = no limit
	Owned     []uuid.UUID
	Chat      ChatMode
	LastWorld uuid.UUID // zero = none

	Locations map[string]Location
	Snapshots map[string]*Snapshot
}

// NewPlayer builds a player record with initialized maps.
func NewPlayer(id uuid.UUID, name string, quota int) *Player {
	return &Player{
		ID:        id,
		Name:      name,
		Quota:     quota,
		Chat:      ChatGlobal,
		Locations: make(map[string]Location),
		Snapshots: make(map[string]*Snapshot),
	}
}

// UnderQuota reports whether the player may create another world.
func (p *Player) UnderQuota() bool {
	return p.Quota == UnlimitedQuota || len(p.Owned) < p.Quota
}

// Owns reports whether the player owns the given world.
func (p *Player) Owns(worldID uuid.UUID) bool {
	for _, id := range p.Owned {
		if id == worldID {
			return true
		}
	}
	return false
}

// Effect is one active status effect captured in a snapshot.
type Effect struct {
	Type      string `json:"type"`
	Amplifier int    `json:"amplifier"`
	Duration  int    `json:"duration"` // remaining ticks
	Ambient   bool   `json:"ambient,omitempty"`
}

// Snapshot is a player's full transient condition for one instance. Each
// container payload is kept opaque so a corrupt field can be skipped on
// restore without losing the rest. A snapshot is overwritten wholesale on
// capture, never merged field by field.
type Snapshot struct {
	Inventory json.RawMessage `json:"inventory,omitempty"`
	Armor     json.RawMessage `json:"armor,omitempty"`
	Offhand   json.RawMessage `json:"offhand,omitempty"`
	Ender     json.RawMessage `json:"ender,omitempty"`

	Health     float64 `json:"health"`
	MaxHealth  float64 `json:"max_health"`
	Hunger     int     `json:"hunger"`
	Saturation float32 `json:"saturation"`
	Exhaustion float32 `json:"exhaustion"`

	XPLevel    int     `json:"xp_level"`
	XPProgress float32 `json:"xp_progress"`

	Effects json.RawMessage `json:"effects,omitempty"` // encoded []Effect

	Location Location `json:"location"`
}
