package world

import (
	"context"

	"github.com/google/uuid"
)

// Store is the durable backing for World and Player records. The Registry is
// the only caller; everything else reads and writes through it. Implementations
// must tolerate unknown fields on load and default missing optional ones, so
// records written by newer builds stay readable.
type Store interface {
	Worlds(ctx context.Context) ([]*World, error)
	Players(ctx context.Context) ([]*Player, error)
	SaveWorld(ctx context.Context, w *World) error
	DeleteWorld(ctx context.Context, id uuid.UUID) error
	SavePlayer(ctx context.Context, p *Player) error
}
