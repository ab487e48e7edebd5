package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Respawn kinds, one table each.
const (
	RespawnCreature   uint8 = 0
	RespawnGameObject uint8 = 1
)

// RespawnRow is the absolute respawn time (unix seconds) of one spawn in one
// map copy. Instance 0 is the base map.
type RespawnRow struct {
	Kind        uint8
	SpawnID     uint32
	MapID       uint32
	InstanceID  uint32
	RespawnTime int64
}

func respawnTable(kind uint8) (string, error) {
	switch kind {
	case RespawnCreature:
		return "creature_respawn", nil
	case RespawnGameObject:
		return "gameobject_respawn", nil
	}
	return "", fmt.Errorf("unknown respawn kind %d", kind)
}

type RespawnRepo struct {
	db *DB
}

func NewRespawnRepo(db *DB) *RespawnRepo {
	return &RespawnRepo{db: db}
}

// LoadRespawns returns every pending respawn of one map copy.
func (r *RespawnRepo) LoadRespawns(ctx context.Context, mapID, instanceID uint32) ([]RespawnRow, error) {
	var out []RespawnRow
	for _, kind := range []uint8{RespawnCreature, RespawnGameObject} {
		table, _ := respawnTable(kind)
		rows, err := r.db.Pool.Query(ctx,
			`SELECT spawn_id, respawn_time FROM `+table+` WHERE map_id = $1 AND instance_id = $2`,
			mapID, instanceID,
		)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", table, err)
		}
		for rows.Next() {
			row := RespawnRow{Kind: kind, MapID: mapID, InstanceID: instanceID}
			if err := rows.Scan(&row.SpawnID, &row.RespawnTime); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s: %w", table, err)
			}
			out = append(out, row)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SaveRespawns writes upserts and deletes in a single transaction.
func (r *RespawnRepo) SaveRespawns(ctx context.Context, upserts, deletes []RespawnRow) error {
	if len(upserts) == 0 && len(deletes) == 0 {
		return nil
	}
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		for _, d := range deletes {
			table, err := respawnTable(d.Kind)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				`DELETE FROM `+table+` WHERE spawn_id = $1 AND instance_id = $2`,
				d.SpawnID, d.InstanceID,
			); err != nil {
				return fmt.Errorf("respawn delete: %w", err)
			}
		}
		for _, u := range upserts {
			table, err := respawnTable(u.Kind)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO `+table+` (spawn_id, map_id, instance_id, respawn_time)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT (spawn_id, instance_id) DO UPDATE SET respawn_time = EXCLUDED.respawn_time`,
				u.SpawnID, u.MapID, u.InstanceID, u.RespawnTime,
			); err != nil {
				return fmt.Errorf("respawn upsert: %w", err)
			}
		}
		return nil
	})
}

// DeleteInstanceRespawns wipes the respawn times of one map copy, used when an
// instance is reset. Both tables go in one transaction.
func (r *RespawnRepo) DeleteInstanceRespawns(ctx context.Context, mapID, instanceID uint32) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		for _, table := range []string{"creature_respawn", "gameobject_respawn"} {
			if _, err := tx.Exec(ctx,
				`DELETE FROM `+table+` WHERE map_id = $1 AND instance_id = $2`,
				mapID, instanceID,
			); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		return nil
	})
}
