package world

// ItemStack is one slot's content in a captured container.
type ItemStack struct {
	Item  string         `json:"item"`
	Count int            `json:"count"`
	Slot  int            `json:"slot"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// Condition is a player's decoded live state: what Capture reads off the
// entity and Restore writes back. Only the region executor owning the entity
// may produce or consume one.
type Condition struct {
	Inventory []ItemStack
	Armor     []ItemStack
	Offhand   []ItemStack
	Ender     []ItemStack

	Health     float64
	MaxHealth  float64
	Hunger     int
	Saturation float32
	Exhaustion float32

	XPLevel    int
	XPProgress float32

	Effects []Effect

	Location Location
}

// DefaultCondition is the arrival state applied when no snapshot exists and
// no deployment policy overrides it.
func DefaultCondition(spawn Location) *Condition {
	return &Condition{
		Health:    20,
		MaxHealth: 20,
		Hunger:    20,
		Location:  spawn,
	}
}
