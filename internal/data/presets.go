package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/worldhaven/server/internal/world"
)

// Preset defines the per-generation-kind defaults applied to a new world:
// which environment variants get materialized and the initial border and
// spawn settings.
type Preset struct {
	Kind         world.Kind          `yaml:"kind"`
	Environments []world.Environment `yaml:"environments"`
	SpawnY       float64             `yaml:"spawn_y"`
	Border       BorderPreset        `yaml:"border"`
}

type BorderPreset struct {
	Size            float64 `yaml:"size"`
	DamageAmount    float64 `yaml:"damage_amount"`
	DamageBuffer    float64 `yaml:"damage_buffer"`
	WarningDistance int     `yaml:"warning_distance"`
	WarningTime     int     `yaml:"warning_time"`
}

// PresetTable resolves generation kinds to their defaults.
type PresetTable struct {
	presets map[world.Kind]*Preset
}

// LoadPresetTable loads world_presets.yaml.
func LoadPresetTable(path string) (*PresetTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world presets: %w", err)
	}
	var entries []Preset
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse world presets: %w", err)
	}
	t := &PresetTable{presets: make(map[world.Kind]*Preset, len(entries))}
	for i := range entries {
		e := &entries[i]
		if !e.Kind.Valid() {
			return nil, fmt.Errorf("world presets: unknown kind %q", e.Kind)
		}
		if len(e.Environments) == 0 {
			e.Environments = []world.Environment{world.EnvOverworld}
		}
		t.presets[e.Kind] = e
	}
	for _, k := range world.Kinds {
		if _, ok := t.presets[k]; !ok {
			return nil, fmt.Errorf("world presets: kind %q missing", k)
		}
	}
	return t, nil
}

// DefaultPresetTable returns built-in defaults for deployments without a
// presets file.
func DefaultPresetTable() *PresetTable {
	t := &PresetTable{presets: make(map[world.Kind]*Preset, len(world.Kinds))}
	for _, k := range world.Kinds {
		p := &Preset{
			Kind:         k,
			Environments: []world.Environment{world.EnvOverworld},
			SpawnY:       64,
			Border: BorderPreset{
				Size:            10_000,
				DamageAmount:    0.2,
				DamageBuffer:    5,
				WarningDistance: 5,
				WarningTime:     15,
			},
		}
		switch k {
		case world.KindNormal:
			p.Environments = []world.Environment{world.EnvOverworld, world.EnvNether, world.EnvEnd}
		case world.KindLargeBiomes:
			p.Environments = []world.Environment{world.EnvOverworld, world.EnvNether}
		case world.KindVoid:
			p.SpawnY = 72
			p.Border.Size = 1000
		}
		t.presets[k] = p
	}
	return t
}

// Get returns the preset for a kind.
func (t *PresetTable) Get(kind world.Kind) *Preset {
	return t.presets[kind]
}

// Count returns the number of presets loaded.
func (t *PresetTable) Count() int {
	return len(t.presets)
}

// Border builds the initial border settings for a kind.
func (t *PresetTable) Border(kind world.Kind) world.BorderSettings {
	p := t.presets[kind]
	return world.BorderSettings{
		Size:            p.Border.Size,
		DamageAmount:    p.Border.DamageAmount,
		DamageBuffer:    p.Border.DamageBuffer,
		WarningDistance: p.Border.WarningDistance,
		WarningTime:     p.Border.WarningTime,
	}
}
