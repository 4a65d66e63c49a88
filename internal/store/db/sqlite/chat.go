package sqlite

import (
	"context"
	"database/sql"

	"github.com/mindease/companion/backend/internal/store"
)

var _ store.Driver = (*DB)(nil)

func (d *DB) CreateChatMessage(ctx context.Context, create *store.CreateChatMessage) (*store.ChatMessage, error) {
	msg := &store.ChatMessage{
		UserID:    create.UserID,
		Content:   create.Content,
		Sender:    create.Sender,
		Timestamp: fromMillis(toMillis(create.Timestamp)),
	}

	var row *sql.Row
	if create.SessionID == "" {
		row = d.db.QueryRowContext(ctx,
			`INSERT INTO chat_messages (user_id, content, sender, "timestamp")
			 VALUES (?, ?, ?, ?)
			 RETURNING id, session_id`,
			create.UserID, create.Content, create.Sender, toMillis(create.Timestamp))
	} else {
		row = d.db.QueryRowContext(ctx,
			`INSERT INTO chat_messages (user_id, session_id, content, sender, "timestamp")
			 VALUES (?, ?, ?, ?, ?)
			 RETURNING id, session_id`,
			create.UserID, create.SessionID, create.Content, create.Sender, toMillis(create.Timestamp))
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
		 WHERE user_id = ? AND session_id = ?
		 ORDER BY "timestamp" ASC, rowid ASC`,
		find.UserID, find.SessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.ChatMessage
	for rows.Next() {
		var (
			m  store.ChatMessage
			ts int64
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.SessionID, &m.Content, &m.Sender, &ts); err != nil {
			return nil, err
		}
		m.Timestamp = fromMillis(ts)
		list = append(list, &m)
	}
	return list, rows.Err()
}

func (d *DB) ListChatSessions(ctx context.Context, userID string) ([]*store.ChatSessionHead, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT s.session_id, s.started,
		        COALESCE((SELECT f.content FROM chat_messages f
		                  WHERE f.user_id = s.user_id AND f.session_id = s.session_id
		                  ORDER BY f."timestamp" ASC, f.rowid ASC LIMIT 1), '')
		 FROM (SELECT user_id, session_id, MIN("timestamp") AS started
		       FROM chat_messages WHERE user_id = ?
		       GROUP BY user_id, session_id) s
		 ORDER BY s.started DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.ChatSessionHead
	for rows.Next() {
		var (
			h  store.ChatSessionHead
			ts int64
		)
		if err := rows.Scan(&h.SessionID, &ts, &h.FirstContent); err != nil {
			return nil, err
		}
		h.StartedAt = fromMillis(ts)
		list = append(list, &h)
	}
	return list, rows.Err()
}
