package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/samber/oops"

	"questlog/internal/server/storage"
)

// ProgressRepository implements storage.ProgressRepository using SQLite.
type ProgressRepository struct {
	db *sql.DB
}

func NewProgressRepository(db *sql.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Upsert keeps the row id stable across repeated reports for a pair.
func (r *ProgressRepository) Upsert(ctx context.Context, email, questID string, progress float64, data json.RawMessage) (int64, error) {
	if len(data) == 0 {
		data = storage.NullData()
	}

	var id int64
	err := r.db.QueryRowContext(ctx, `
INSERT INTO quest_progress (email, quest_id, progress, data)
VALUES (?, ?, ?, json(?))
ON CONFLICT (email, quest_id) DO UPDATE
SET progress = excluded.progress,
    data = excluded.data,
    updated_at = CURRENT_TIMESTAMP
RETURNING id
`, email, questID, progress, string(data)).Scan(&id)
	if err != nil {
		return 0, oops.Code("PROGRESS_UPSERT_FAILED").
			With("operation", "upsert progress").
			With("email", email).
			With("quest_id", questID).
			Wrap(storageErr(err))
	}
	return id, nil
}

func (r *ProgressRepository) ListByEmail(ctx context.Context, email string) ([]storage.QuestProgress, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, email, quest_id, COALESCE(progress, 0.0), COALESCE(data, 'null'), updated_at
FROM quest_progress
WHERE email = ?
ORDER BY quest_id
`, email)
	if err != nil {
		return nil, oops.Code("PROGRESS_LIST_FAILED").
			With("email", email).
			Wrap(storageErr(err))
	}
	defer rows.Close()

	var out []storage.QuestProgress
	for rows.Next() {
		var (
			p    storage.QuestProgress
			data string
		)
		if err := rows.Scan(&p.ID, &p.Email, &p.QuestID, &p.Progress, &data, &p.UpdatedAt); err != nil {
			return nil, oops.Code("PROGRESS_LIST_FAILED").Wrap(storageErr(err))
		}
		p.Data = json.RawMessage(data)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("PROGRESS_LIST_FAILED").Wrap(storageErr(err))
	}
	return out, nil
}
