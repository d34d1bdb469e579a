package persist

import (
	"context"

	"github.com/google/uuid"
	"github.com/worldhaven/server/internal/world"
)

// Store combines the repos into the world.Store surface the Registry
// consumes.
type Store struct {
	worlds  *WorldRepo
	players *PlayerRepo
}

func NewStore(db *DB) *Store {
	return &Store{
		worlds:  NewWorldRepo(db),
		players: NewPlayerRepo(db),
	}
}

func (s *Store) Worlds(ctx context.Context) ([]*world.World, error) {
	return s.worlds.All(ctx)
}

func (s *Store) Players(ctx context.Context) ([]*world.Player, error) {
	return s.players.All(ctx)
}

func (s *Store) SaveWorld(ctx context.Context, w *world.World) error {
	return s.worlds.Save(ctx, w)
}

func (s *Store) DeleteWorld(ctx context.Context, id uuid.UUID) error {
	return s.worlds.Delete(ctx, id)
}

func (s *Store) SavePlayer(ctx context.Context, p *world.Player) error {
	return s.players.Save(ctx, p)
}
