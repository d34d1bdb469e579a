package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/worldhaven/server/internal/world"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "arrival.lua"), []byte(body), 0o644))
	return dir
}

func TestArrivalPolicyBuiltInDefault(t *testing.T) {
	p, err := NewArrivalPolicy("", zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	spawn := world.Location{Instance: "inst", Y: 64}
	cond := p.FirstArrival(world.KindNormal, spawn)
	assert.Equal(t, 20.0, cond.Health)
	assert.Equal(t, 20.0, cond.MaxHealth)
	assert.Equal(t, 20, cond.Hunger)
	assert.Equal(t, spawn, cond.Location)
}

func TestArrivalPolicyScriptOverride(t *testing.T) {
	dir := writeScript(t, `
function on_first_arrival(kind)
    if kind == "void" then
        return { health = 10, hunger = 6, xp_level = 2 }
    end
    return {}
end
`)
	p, err := NewArrivalPolicy(dir, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	cond := p.FirstArrival(world.KindVoid, world.Location{Instance: "inst"})
	assert.Equal(t, 10.0, cond.Health)
	assert.Equal(t, 6, cond.Hunger)
	assert.Equal(t, 2, cond.XPLevel)
	assert.Equal(t, 20.0, cond.MaxHealth, "omitted fields keep defaults")

	cond = p.FirstArrival(world.KindNormal, world.Location{Instance: "inst"})
	assert.Equal(t, 20.0, cond.Health)
}

func TestArrivalPolicyScriptErrorFallsBack(t *testing.T) {
	dir := writeScript(t, `
function on_first_arrival(kind)
    error("deployment bug")
end
`)
	p, err := NewArrivalPolicy(dir, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	cond := p.FirstArrival(world.KindNormal, world.Location{Instance: "inst"})
	assert.Equal(t, 20.0, cond.Health, "script errors never break arrival")
}

func TestArrivalPolicyNoHookDefined(t *testing.T) {
	dir := writeScript(t, `local x = 1`)
	p, err := NewArrivalPolicy(dir, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	cond := p.FirstArrival(world.KindNormal, world.Location{Instance: "inst"})
	assert.Equal(t, 20.0, cond.Health)
}

func TestArrivalPolicyBrokenScript(t *testing.T) {
	dir := writeScript(t, `function on_first_arrival( -- unterminated`)
	_, err := NewArrivalPolicy(dir, zap.NewNop())
	assert.Error(t, err)
}
