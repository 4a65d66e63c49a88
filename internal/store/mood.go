package store

import (
	"context"
	"time"

	"github.com/mindease/companion/backend/internal/model/identity"
	"github.com/mindease/companion/backend/internal/model/mood"
)

// CreateMood 持久化一条情绪记录，ID 由存储分配。
func (s *Store) CreateMood(ctx context.Context, owner identity.Identity, entry mood.Entry) (mood.Entry, error) {
	if err := requireAuthenticated(owner); err != nil {
		return mood.Entry{}, err
	}

	row, err := s.driver.CreateMoodEntry(ctx, &CreateMoodEntry{
		UserID:    owner.ID,
		Mood:      entry.Mood,
		Notes:     entry.Notes,
		Timestamp: entry.CreatedAt,
	})
	if err != nil {
		return mood.Entry{}, wrap("create mood entry", err)
	}
	return toEntry(row), nil
}

// ListMood 返回 since 之后（含）的记录，最新的在前；since 为零值时返回全部。
func (s *Store) ListMood(ctx context.Context, owner identity.Identity, since time.Time) ([]mood.Entry, error) {
	if err := requireAuthenticated(owner); err != nil {
		return nil, err
	}

	rows, err := s.driver.ListMoodEntries(ctx, &FindMoodEntry{UserID: owner.ID, Since: since})
	if err != nil {
		return nil, wrap("list mood entries", err)
	}

	entries := make([]mood.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, toEntry(row))
	}
	return entries, nil
}

// DeleteMood 删除身份的全部情绪记录。
func (s *Store) DeleteMood(ctx context.Context, owner identity.Identity) error {
	if err := requireAuthenticated(owner); err != nil {
		return err
	}
	if err := s.driver.DeleteMoodEntries(ctx, owner.ID); err != nil {
		return wrap("delete mood entries", err)
	}
	return nil
}

func toEntry(row *MoodEntry) mood.Entry {
	return mood.Entry{
		ID:         row.ID,
		IdentityID: row.UserID,
		Mood:       row.Mood,
		Notes:      row.Notes,
		CreatedAt:  row.Timestamp.UTC(),
	}
}
