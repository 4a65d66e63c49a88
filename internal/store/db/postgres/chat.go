package postgres

import (
	"context"
	"database/sql"
	"sort"

	"github.com/mindease/companion/backend/internal/store"
)

func (d *DB) CreateChatMessage(ctx context.Context, create *store.CreateChatMessage) (*store.ChatMessage, error) {
	msg := &store.ChatMessage{
		UserID:    create.UserID,
		Content:   create.Content,
		Sender:    create.Sender,
		Timestamp: orNow(create.Timestamp),
	}

	var row *sql.Row
	if create.SessionID == "" {
		row = d.db.QueryRowContext(ctx,
			`INSERT INTO chat_messages (user_id, content, sender, "timestamp")
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, session_id`,
			create.UserID, create.Content, create.Sender, msg.Timestamp)
	} else {
		row = d.db.QueryRowContext(ctx,
			`INSERT INTO chat_messages (user_id, session_id, content, sender, "timestamp")
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id, session_id`,
			create.UserID, create.SessionID, create.Content, create.Sender, msg.Timestamp)
	}
	if err := row.Scan(&msg.ID, &msg.SessionID); err != nil {
		return nil, err
	}
	return msg, nil
}

func (d *DB) ListChatMessages(ctx context.Context, find *store.FindChatMessage) ([]*store.ChatMessage, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, user_id, session_id, content, sender, "timestamp"
		 FROM chat_messages
		 WHERE user_id = $1 AND session_id::text = $2
		 ORDER BY "timestamp" ASC, seq ASC`,
		find.UserID, find.SessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.ChatMessage
	for rows.Next() {
		m := &store.ChatMessage{}
		if err := rows.Scan(&m.ID, &m.UserID, &m.SessionID, &m.Content, &m.Sender, &m.Timestamp); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (d *DB) ListChatSessions(ctx context.Context, userID string) ([]*store.ChatSessionHead, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT DISTINCT ON (session_id) session_id, "timestamp", content
		 FROM chat_messages
		 WHERE user_id = $1
		 ORDER BY session_id, "timestamp" ASC, seq ASC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.ChatSessionHead
	for rows.Next() {
		h := &store.ChatSessionHead{}
		if err := rows.Scan(&h.SessionID, &h.StartedAt, &h.FirstContent); err != nil {
			return nil, err
		}
		list = append(list, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortNewestFirst(list)
	return list, nil
}

func sortNewestFirst(list []*store.ChatSessionHead) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].StartedAt.After(list[j].StartedAt)
	})
}
