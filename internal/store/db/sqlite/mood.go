package sqlite

import (
	"context"

	"github.com/mindease/companion/backend/internal/store"
)

func (d *DB) CreateMoodEntry(ctx context.Context, create *store.CreateMoodEntry) (*store.MoodEntry, error) {
	entry := &store.MoodEntry{
		UserID:    create.UserID,
		Mood:      create.Mood,
		Notes:     create.Notes,
		Timestamp: fromMillis(toMillis(create.Timestamp)),
	}
	err := d.db.QueryRowContext(ctx,
		`INSERT INTO mood_entries (user_id, mood, notes, "timestamp")
		 VALUES (?, ?, ?, ?)
		 RETURNING id`,
		create.UserID, create.Mood, create.Notes, toMillis(create.Timestamp),
	).Scan(&entry.ID)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (d *DB) ListMoodEntries(ctx context.Context, find *store.FindMoodEntry) ([]*store.MoodEntry, error) {
	query := `SELECT id, user_id, mood, notes, "timestamp" FROM mood_entries WHERE user_id = ?`
	args := []any{find.UserID}
	if !find.Since.IsZero() {
		query += ` AND "timestamp" >= ?`
		args = append(args, find.Since.UnixMilli())
	}
	query += ` ORDER BY "timestamp" DESC, rowid DESC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.MoodEntry
	for rows.Next() {
		var (
			e  store.MoodEntry
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Mood, &e.Notes, &ts); err != nil {
			return nil, err
		}
		e.Timestamp = fromMillis(ts)
		list = append(list, &e)
	}
	return list, rows.Err()
}

func (d *DB) DeleteMoodEntries(ctx context.Context, userID string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM mood_entries WHERE user_id = ?`, userID)
	return err
}
