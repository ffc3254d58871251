package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"nextup/models"
)

// ShowRowRepository persists compact show rows keyed by (user_key, show_id).
// It is the authoritative remote tier when nextup runs as its own sync server.
type ShowRowRepository struct {
	db *sql.DB
}

// NewShowRowRepository creates a repository over the given connection.
func NewShowRowRepository(db *sql.DB) *ShowRowRepository {
	return &ShowRowRepository{db: db}
}

// FetchRows returns all compact rows stored for the user, ordered by show id
// for deterministic output.
func (r *ShowRowRepository) FetchRows(ctx context.Context, userKey string) ([]models.SyncSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT show_id, name, type_code, watched, priority
		FROM show_rows
		WHERE user_key = ?
		ORDER BY show_id`, userKey)
	if err != nil {
		return nil, fmt.Errorf("query show rows: %w", err)
	}
	defer rows.Close()

	var out []models.SyncSummary
	for rows.Next() {
		var s models.SyncSummary
		var watched, priority int
		if err := rows.Scan(&s.ID, &s.Name, &s.TypeCode, &watched, &priority); err != nil {
			return nil, fmt.Errorf("scan show row: %w", err)
		}
		s.Watched = watched != 0
		s.Priority = priority != 0
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate show rows: %w", err)
	}
	return out, nil
}

// UpsertRows writes one row per summary in a single transaction. Existing
// rows for the same (user_key, show_id) are overwritten.
func (r *ShowRowRepository) UpsertRows(ctx context.Context, userKey string, summaries []models.SyncSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO show_rows (user_key, show_id, name, type_code, watched, priority, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_key, show_id) DO UPDATE SET
			name = excluded.name,
			type_code = excluded.type_code,
			watched = excluded.watched,
			priority = excluded.priority,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, s := range summaries {
		if s.ID == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, userKey, s.ID, s.Name, s.TypeCode, boolToInt(s.Watched), boolToInt(s.Priority), now); err != nil {
			return fmt.Errorf("upsert show row %s: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// DeleteRow removes a single row. Missing rows are not an error.
func (r *ShowRowRepository) DeleteRow(ctx context.Context, userKey, showID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM show_rows WHERE user_key = ? AND show_id = ?`, userKey, showID); err != nil {
		return fmt.Errorf("delete show row: %w", err)
	}
	return nil
}

// DeleteRowsNotIn removes every row for the user whose show id is absent from
// keep. Used when a full-list save shrinks the list.
func (r *ShowRowRepository) DeleteRowsNotIn(ctx context.Context, userKey string, keep []string) error {
	existing, err := r.FetchRows(ctx, userKey)
	if err != nil {
		return err
	}
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}
	for _, row := range existing {
		if _, ok := keepSet[row.ID]; ok {
			continue
		}
		if err := r.DeleteRow(ctx, userKey, row.ID); err != nil {
			return err
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
