package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldhaven/server/internal/world"
)

func TestLoadPresetTable(t *testing.T) {
	table, err := LoadPresetTable(filepath.Join("..", "..", "data", "yaml", "world_presets.yaml"))
	require.NoError(t, err)
	assert.Equal(t, len(world.Kinds), table.Count())

	normal := table.Get(world.KindNormal)
	require.NotNil(t, normal)
	assert.Equal(t, []world.Environment{world.EnvOverworld, world.EnvNether, world.EnvEnd}, normal.Environments)

	flat := table.Get(world.KindFlat)
	require.NotNil(t, flat)
	assert.Equal(t, 4.0, flat.SpawnY)
	assert.Equal(t, []world.Environment{world.EnvOverworld}, flat.Environments)

	b := table.Border(world.KindVoid)
	assert.Equal(t, 1000.0, b.Size)
	assert.Equal(t, 0.5, b.DamageAmount)
}

func TestLoadPresetTableRejectsUnknownKind(t *testing.T) {
	path := writePresets(t, `
- kind: moonscape
  environments: [overworld]
  spawn_y: 64
`)
	_, err := LoadPresetTable(path)
	assert.ErrorContains(t, err, "unknown kind")
}

func TestLoadPresetTableRejectsMissingKind(t *testing.T) {
	path := writePresets(t, `
- kind: normal
  environments: [overworld]
  spawn_y: 64
`)
	_, err := LoadPresetTable(path)
	assert.ErrorContains(t, err, "missing")
}

func TestLoadPresetTableDefaultsEnvironments(t *testing.T) {
	var entries string
	for _, k := range world.Kinds {
		entries += "- kind: " + string(k) + "\n  spawn_y: 64\n"
	}
	table, err := LoadPresetTable(writePresets(t, entries))
	require.NoError(t, err)
	assert.Equal(t, []world.Environment{world.EnvOverworld}, table.Get(world.KindNormal).Environments)
}

func TestDefaultPresetTable(t *testing.T) {
	table := DefaultPresetTable()
	assert.Equal(t, len(world.Kinds), table.Count())
	for _, k := range world.Kinds {
		p := table.Get(k)
		require.NotNil(t, p, string(k))
		assert.NotEmpty(t, p.Environments)
		assert.Positive(t, table.Border(k).Size)
	}
}

func writePresets(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}
