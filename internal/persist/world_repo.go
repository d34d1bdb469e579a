package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/worldhaven/server/internal/world"
)

type WorldRepo struct {
	db *DB
}

func NewWorldRepo(db *DB) *WorldRepo {
	return &WorldRepo{db: db}
}

// rolesToJSON flattens the role map to string keys for JSONB storage.
func rolesToJSON(roles map[uuid.UUID]world.Role) ([]byte, error) {
	m := make(map[string]string, len(roles))
	for id, r := range roles {
		m[id.String()] = r.String()
	}
	return json.Marshal(m)
}

func rolesFromJSON(raw []byte) (map[uuid.UUID]world.Role, error) {
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	roles := make(map[uuid.UUID]world.Role, len(m))
	for k, v := range m {
		id, err := uuid.Parse(k)
		if err != nil {
			continue // tolerate unknown keys left by older builds
		}
		r, err := world.ParseRole(v)
		if err != nil {
			continue
		}
		roles[id] = r
	}
	return roles, nil
}

func (r *WorldRepo) All(ctx context.Context) ([]*world.World, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, name, owner_id, owner_name, kind, seed, created_at, enabled,
		        COALESCE(roles, '{}'::jsonb),
		        public, public_role,
		        COALESCE(spawn, '{}'::jsonb),
		        game_mode, time_lock, weather_lock,
		        COALESCE(border, '{}'::jsonb)
		 FROM worlds
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*world.World
	for rows.Next() {
		w := &world.World{}
		var rolesRaw, spawnRaw, borderRaw []byte
		var publicRole string
		if err := rows.Scan(
			&w.ID, &w.Name, &w.OwnerID, &w.OwnerName, &w.Kind, &w.Seed, &w.CreatedAt, &w.Enabled,
			&rolesRaw,
			&w.Public, &publicRole,
			&spawnRaw,
			&w.GameMode, &w.TimeLock, &w.WeatherLock,
			&borderRaw,
		); err != nil {
			return nil, err
		}
		if w.Roles, err = rolesFromJSON(rolesRaw); err != nil {
			return nil, fmt.Errorf("world %s roles: %w", w.ID, err)
		}
		if w.PublicRole, err = world.ParseRole(publicRole); err != nil {
			w.PublicRole = world.RoleVisitor
		}
		if err := json.Unmarshal(spawnRaw, &w.Spawn); err != nil {
			return nil, fmt.Errorf("world %s spawn: %w", w.ID, err)
		}
		if err := json.Unmarshal(borderRaw, &w.Border); err != nil {
			return nil, fmt.Errorf("world %s border: %w", w.ID, err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// Save upserts the full world record.
func (r *WorldRepo) Save(ctx context.Context, w *world.World) error {
	rolesRaw, err := rolesToJSON(w.Roles)
	if err != nil {
		return fmt.Errorf("encode roles: %w", err)
	}
	spawnRaw, err := json.Marshal(w.Spawn)
	if err != nil {
		return fmt.Errorf("encode spawn: %w", err)
	}
	borderRaw, err := json.Marshal(w.Border)
	if err != nil {
		return fmt.Errorf("encode border: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO worlds (
			id, name, owner_id, owner_name, kind, seed, created_at, enabled,
			roles, public, public_role, spawn, game_mode, time_lock, weather_lock, border
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			owner_name = EXCLUDED.owner_name,
			enabled = EXCLUDED.enabled,
			roles = EXCLUDED.roles,
			public = EXCLUDED.public,
			public_role = EXCLUDED.public_role,
			spawn = EXCLUDED.spawn,
			game_mode = EXCLUDED.game_mode,
			time_lock = EXCLUDED.time_lock,
			weather_lock = EXCLUDED.weather_lock,
			border = EXCLUDED.border`,
		w.ID, w.Name, w.OwnerID, w.OwnerName, w.Kind, w.Seed, w.CreatedAt, w.Enabled,
		rolesRaw, w.Public, w.PublicRole.String(), spawnRaw, w.GameMode, w.TimeLock, w.WeatherLock, borderRaw,
	)
	return err
}

func (r *WorldRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM worlds WHERE id = $1`, id)
	return err
}
