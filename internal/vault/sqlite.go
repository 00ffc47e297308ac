package vault

import (
	"context"
	"fmt"

	"github.com/castmir/vaultmesh/internal/dbx"
	"github.com/castmir/vaultmesh/internal/model"
)

// sqliteRepo implements the persistence sinks over a DBTX (either *sql.DB
// or *sql.Tx).
type sqliteRepo struct {
	db dbx.DBTX
}

func newSQLiteRepo(db dbx.DBTX) *sqliteRepo {
	return &sqliteRepo{db: db}
}

func (r *sqliteRepo) putRecord(ctx context.Context, collection, id string, data []byte, updatedAt int64) error {
	query := `INSERT INTO records (collection, id, data, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data,
				updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, collection, id, data, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

func (r *sqliteRepo) deleteRecord(ctx context.Context, collection, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (r *sqliteRepo) loadRecords(ctx context.Context, collection string, fn func(id string, data []byte) error) error {
	rows, err := r.db.QueryContext(ctx, `SELECT id, data FROM records WHERE collection = ?`, collection)
	if err != nil {
		return fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return err
		}
		if err := fn(id, data); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *sqliteRepo) putTombstone(ctx context.Context, ts model.Tombstone) error {
	query := `INSERT INTO tombstones (id, type, deleted_at)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, ts.Id, string(ts.Type), ts.DeletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert tombstone: %w", err)
	}
	return nil
}

func (r *sqliteRepo) loadTombstones(ctx context.Context) (map[string]model.Tombstone, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, type, deleted_at FROM tombstones`)
	if err != nil {
		return nil, fmt.Errorf("failed to select tombstones: %w", err)
	}
	defer rows.Close()

	result := make(map[string]model.Tombstone)
	for rows.Next() {
		var ts model.Tombstone
		var typ string
		if err := rows.Scan(&ts.Id, &typ, &ts.DeletedAt); err != nil {
			return nil, err
		}
		ts.Type = model.RecordType(typ)
		result[ts.Id] = ts
	}
	return result, rows.Err()
}

func (r *sqliteRepo) clearTombstones(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tombstones`)
	return err
}

func (r *sqliteRepo) clearRecords(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM records`)
	return err
}
