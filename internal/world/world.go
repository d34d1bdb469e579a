package world

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// Kind selects the terrain preset a world is materialized with.
type Kind string

const (
	KindNormal      Kind = "normal"
	KindFlat        Kind = "flat"
	KindAmplified   Kind = "amplified"
	KindLargeBiomes Kind = "large_biomes"
	KindVoid        Kind = "void"
)

// Kinds lists every valid generation kind.
var Kinds = []Kind{KindNormal, KindFlat, KindAmplified, KindLargeBiomes, KindVoid}

// Valid reports whether k is one of the known generation kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Environment is one dimension variant of a world instance.
type Environment string

const (
	EnvOverworld Environment = "overworld"
	EnvNether    Environment = "nether"
	EnvEnd       Environment = "end"
)

// GameMode is the mode applied to a player inside a world.
type GameMode string

const (
	ModeSurvival  GameMode = "survival"
	ModeCreative  GameMode = "creative"
	ModeAdventure GameMode = "adventure"
	ModeSpectator GameMode = "spectator"
)

// TimeLock freezes a world's daylight cycle at a fixed point.
type TimeLock string

const (
	TimeFree     TimeLock = "none"
	TimeDay      TimeLock = "day"
	TimeNoon     TimeLock = "noon"
	TimeNight    TimeLock = "night"
	TimeMidnight TimeLock = "midnight"
)

// WeatherLock pins a world's weather.
type WeatherLock string

const (
	WeatherFree  WeatherLock = "none"
	WeatherClear WeatherLock = "clear"
	WeatherRain  WeatherLock = "rain"
	WeatherStorm WeatherLock = "storm"
)

// Location is a position inside one instance.
type Location struct {
	Instance string  `json:"instance"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Yaw      float32 `json:"yaw"`
	Pitch    float32 `json:"pitch"`
}

// BorderSettings bounds a world. The zero value is never used: worlds are
// built through NewWorld, which takes the border from the kind's preset.
type BorderSettings struct {
	Size            float64 `json:"size"`
	CenterX         float64 `json:"center_x"`
	CenterZ         float64 `json:"center_z"`
	DamageAmount    float64 `json:"damage_amount"`
	DamageBuffer    float64 `json:"damage_buffer"`
	WarningDistance int     `json:"warning_distance"`
	WarningTime     int     `json:"warning_time"`
}

// World is the persisted record for one player-owned world.
// ID is immutable; everything else mutates only through the Registry.
type World struct {
	ID        uuid.UUID
	Name      string
	OwnerID   uuid.UUID
	OwnerName string
	Kind      Kind
	Seed      *int64 // nil = engine picks
	CreatedAt time.Time
	Enabled   bool

	// Roles never contains the owner: ownership is an implicit, fixed
	// RoleOwner and is resolved before this map is consulted.
	Roles map[uuid.UUID]Role

	// Public grants PublicRole to players absent from Roles.
	Public     bool
	PublicRole Role

	Spawn       Location
	GameMode    GameMode
	TimeLock    TimeLock
	WeatherLock WeatherLock
	Border      BorderSettings
}

// NewWorld builds a world record with an initialized border and role map.
func NewWorld(ownerID uuid.UUID, ownerName, name string, kind Kind, seed *int64, border BorderSettings) *World {
	return &World{
		ID:          uuid.New(),
		Name:        name,
		OwnerID:     ownerID,
		OwnerName:   ownerName,
		Kind:        kind,
		Seed:        seed,
		CreatedAt:   time.Now().UTC(),
		Enabled:     true,
		Roles:       make(map[uuid.UUID]Role),
		PublicRole:  RoleVisitor,
		GameMode:    ModeSurvival,
		TimeLock:    TimeFree,
		WeatherLock: WeatherFree,
		Border:      border,
	}
}

// RoleOf resolves a player's effective role in this world, or false when the
// player has no access at all.
func (w *World) RoleOf(playerID uuid.UUID) (Role, bool) {
	if playerID == w.OwnerID {
		return RoleOwner, true
	}
	if r, ok := w.Roles[playerID]; ok {
		return r, true
	}
	if w.Public {
		return w.PublicRole, true
	}
	return RoleVisitor, false
}

// FoldName normalizes a world name for per-owner uniqueness checks.
func FoldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// InstanceName derives the globally unique, filesystem-safe directory name
// for one environment variant of a world. The owner id fragment keeps two
// owners' same-named worlds apart; the name itself is sanitized to a
// conservative character set.
func InstanceName(ownerID uuid.UUID, worldName string, env Environment) string {
	var b strings.Builder
	b.WriteString("wh_")
	b.WriteString(ownerID.String()[:8])
	b.WriteByte('_')
	for _, r := range FoldName(worldName) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if env != EnvOverworld {
		b.WriteByte('_')
		b.WriteString(string(env))
	}
	return b.String()
}
