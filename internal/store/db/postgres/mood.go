package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/mindease/companion/backend/internal/store"
)

func (d *DB) CreateMoodEntry(ctx context.Context, create *store.CreateMoodEntry) (*store.MoodEntry, error) {
	entry := &store.MoodEntry{
		UserID:    create.UserID,
		Mood:      create.Mood,
		Notes:     create.Notes,
		Timestamp: orNow(create.Timestamp),
	}
	err := d.db.QueryRowContext(ctx,
		`INSERT INTO mood_entries (user_id, mood, notes, "timestamp")
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		create.UserID, create.Mood, create.Notes, entry.Timestamp,
	).Scan(&entry.ID)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (d *DB) ListMoodEntries(ctx context.Context, find *store.FindMoodEntry) ([]*store.MoodEntry, error) {
	where, args := []string{"user_id = $1"}, []any{find.UserID}
	if !find.Since.IsZero() {
		args = append(args, find.Since.UTC())
		where = append(where, fmt.Sprintf(`"timestamp" >= $%d`, len(args)))
	}
	query := fmt.Sprintf(
		`SELECT id, user_id, mood, notes, "timestamp"
		 FROM mood_entries WHERE %s
		 ORDER BY "timestamp" DESC, seq DESC`,
		strings.Join(where, " AND "),
	)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.MoodEntry
	for rows.Next() {
		e := &store.MoodEntry{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.Mood, &e.Notes, &e.Timestamp); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func (d *DB) DeleteMoodEntries(ctx context.Context, userID string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM mood_entries WHERE user_id = $1`, userID)
	return err
}
