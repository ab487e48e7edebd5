package persist

import (
	"context"
	"fmt"
)

// InstanceRow is one persisted instance save.
type InstanceRow struct {
	ID         uint32
	MapID      uint32
	Difficulty uint8
	ResetTime  int64 // unix seconds, 0 = never
}

// BindRow ties a player or a group to an instance save.
type BindRow struct {
	Owner      uint64
	Group      bool
	InstanceID uint32
	Permanent  bool
}

type InstanceRepo struct {
	db *DB
}

func NewInstanceRepo(db *DB) *InstanceRepo {
	return &InstanceRepo{db: db}
}

func (r *InstanceRepo) LoadInstances(ctx context.Context) ([]InstanceRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, map_id, difficulty, reset_time FROM instance ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InstanceRow
	for rows.Next() {
		var row InstanceRow
		var diff int16
		if err := rows.Scan(&row.ID, &row.MapID, &diff, &row.ResetTime); err != nil {
			return nil, err
		}
		row.Difficulty = uint8(diff)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *InstanceRepo) LoadBinds(ctx context.Context) ([]BindRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT guid, FALSE, instance, permanent FROM character_instance
		 UNION ALL
		 SELECT group_id, TRUE, instance, permanent FROM group_instance`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BindRow
	for rows.Next() {
		var row BindRow
		var owner int64
		if err := rows.Scan(&owner, &row.Group, &row.InstanceID, &row.Permanent); err != nil {
			return nil, err
		}
		row.Owner = uint64(owner)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *InstanceRepo) SaveInstance(ctx context.Context, row InstanceRow) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO instance (id, map_id, difficulty, reset_time) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET map_id = EXCLUDED.map_id,
		     difficulty = EXCLUDED.difficulty, reset_time = EXCLUDED.reset_time`,
		row.ID, row.MapID, int16(row.Difficulty), row.ResetTime,
	)
	return err
}

// DeleteInstance removes a save; its binds go with it (ON DELETE CASCADE).
func (r *InstanceRepo) DeleteInstance(ctx context.Context, id uint32) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM instance WHERE id = $1`, id)
	return err
}

func bindTable(group bool) (table, owner string) {
	if group {
		return "group_instance", "group_id"
	}
	return "character_instance", "guid"
}

func (r *InstanceRepo) SaveBind(ctx context.Context, row BindRow) error {
	table, owner := bindTable(row.Group)
	_, err := r.db.Pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s, instance, permanent) VALUES ($1, $2, $3)
		 ON CONFLICT (%s, instance) DO UPDATE SET permanent = EXCLUDED.permanent`, table, owner, owner),
		int64(row.Owner), row.InstanceID, row.Permanent,
	)
	return err
}

func (r *InstanceRepo) DeleteBind(ctx context.Context, row BindRow) error {
	table, owner := bindTable(row.Group)
	_, err := r.db.Pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND instance = $2`, table, owner),
		int64(row.Owner), row.InstanceID,
	)
	return err
}
