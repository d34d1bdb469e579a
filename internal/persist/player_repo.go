package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/worldhaven/server/internal/world"
)

type PlayerRepo struct {
	db *DB
}

func NewPlayerRepo(db *DB) *PlayerRepo {
	return &PlayerRepo{db: db}
}

func (r *PlayerRepo) All(ctx context.Context) ([]*world.Player, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, name, quota,
		        COALESCE(owned, '[]'::jsonb),
		        chat, last_world,
		        COALESCE(locations, '{}'::jsonb),
		        COALESCE(snapshots, '{}'::jsonb)
		 FROM players`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*world.Player
	for rows.Next() {
		p := &world.Player{}
		var ownedRaw, locRaw, snapRaw []byte
		var lastWorld *uuid.UUID
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Quota,
			&ownedRaw,
			&p.Chat, &lastWorld,
			&locRaw,
			&snapRaw,
		); err != nil {
			return nil, err
		}
		if lastWorld != nil {
			p.LastWorld = *lastWorld
		}
		if err := json.Unmarshal(ownedRaw, &p.Owned); err != nil {
			return nil, fmt.Errorf("player %s owned: %w", p.ID, err)
		}
		if err := json.Unmarshal(locRaw, &p.Locations); err != nil {
			return nil, fmt.Errorf("player %s locations: %w", p.ID, err)
		}
		if err := json.Unmarshal(snapRaw, &p.Snapshots); err != nil {
			return nil, fmt.Errorf("player %s snapshots: %w", p.ID, err)
		}
		if p.Locations == nil {
			p.Locations = make(map[string]world.Location)
		}
		if p.Snapshots == nil {
			p.Snapshots = make(map[string]*world.Snapshot)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// Save upserts the full player record.
func (r *PlayerRepo) Save(ctx context.Context, p *world.Player) error {
	owned := p.Owned
	if owned == nil {
		owned = []uuid.UUID{}
	}
	ownedRaw, err := json.Marshal(owned)
	if err != nil {
		return fmt.Errorf("encode owned: %w", err)
	}
	locRaw, err := json.Marshal(p.Locations)
	if err != nil {
		return fmt.Errorf("encode locations: %w", err)
	}
	snapRaw, err := json.Marshal(p.Snapshots)
	if err != nil {
		return fmt.Errorf("encode snapshots: %w", err)
	}
	var lastWorld *uuid.UUID
	if p.LastWorld != uuid.Nil {
		lastWorld = &p.LastWorld
	}

	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO players (id, name, quota, owned, chat, last_world, locations, snapshots)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			quota = EXCLUDED.quota,
			owned = EXCLUDED.owned,
			chat = EXCLUDED.chat,
			last_world = EXCLUDED.last_world,
			locations = EXCLUDED.locations,
			snapshots = EXCLUDED.snapshots`,
		p.ID, p.Name, p.Quota, ownedRaw, p.Chat, lastWorld, locRaw, snapRaw,
	)
	return err
}
