package postgres

import (
	"context"
	"encoding/json"

	"github.com/samber/oops"

	"questlog/internal/server/storage"
)

// ProgressRepository implements storage.ProgressRepository using PostgreSQL.
type ProgressRepository struct {
	db querier
}

func NewProgressRepository(db querier) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Upsert relies on UNIQUE (email, quest_id) so concurrent reports for the
// same pair converge on one row.
func (r *ProgressRepository) Upsert(ctx context.Context, email, questID string, progress float64, data json.RawMessage) (int64, error) {
	if len(data) == 0 {
		data = storage.NullData()
	}

	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO quest_progress (email, quest_id, progress, data, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, now())
		ON CONFLICT (email, quest_id) DO UPDATE
		SET progress = EXCLUDED.progress,
		    data = EXCLUDED.data,
		    updated_at = now()
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

// ListByEmail returns one user's progress rows ordered by quest id.
func (r *ProgressRepository) ListByEmail(ctx context.Context, email string) ([]storage.QuestProgress, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, email, quest_id, COALESCE(progress, 0)::float8,
		       COALESCE(data, 'null'::jsonb), updated_at
		FROM quest_progress
		WHERE email = $1
		ORDER BY quest_id
	`, email)
	if err != nil {
		return nil, oops.Code("PROGRESS_LIST_FAILED").
			With("operation", "list progress").
			With("email", email).
			Wrap(storageErr(err))
	}
	defer rows.Close()

	var out []storage.QuestProgress
	for rows.Next() {
		var (
			p    storage.QuestProgress
			data []byte
		)
		if err := rows.Scan(&p.ID, &p.Email, &p.QuestID, &p.Progress, &data, &p.UpdatedAt); err != nil {
			return nil, oops.Code("PROGRESS_LIST_FAILED").
				With("operation", "scan progress").
				Wrap(storageErr(err))
		}
		p.Data = json.RawMessage(data)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("PROGRESS_LIST_FAILED").
			With("operation", "iterate progress").
			Wrap(storageErr(err))
	}
	return out, nil
}
