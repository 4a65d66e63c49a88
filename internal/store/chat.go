package store

import (
	"context"

	"github.com/mindease/companion/backend/internal/model/chat"
	"github.com/mindease/companion/backend/internal/model/identity"
)

// AppendTurn 持久化一条消息并返回带有会话 ID 的副本。
// sessionID 为临时 ID 时由存储分配新的会话 ID。
func (s *Store) AppendTurn(ctx context.Context, owner identity.Identity, sessionID string, turn chat.Turn) (chat.Turn, error) {
	if err := requireAuthenticated(owner); err != nil {
		return chat.Turn{}, err
	}

	create := &CreateChatMessage{
		UserID:    owner.ID,
		Content:   turn.Content,
		Sender:    toStoredSender(turn.Sender),
		Timestamp: turn.CreatedAt,
	}
	if !chat.IsProvisional(sessionID) {
		create.SessionID = sessionID
	}

	msg, err := s.driver.CreateChatMessage(ctx, create)
	if err != nil {
		return chat.Turn{}, wrap("append turn", err)
	}

	stored := turn
	stored.ID = msg.ID
	stored.SessionID = msg.SessionID
	return stored, nil
}

// ListTurns 返回会话中的全部消息，按时间升序。
func (s *Store) ListTurns(ctx context.Context, owner identity.Identity, sessionID string) ([]chat.Turn, error) {
	if err := requireAuthenticated(owner); err != nil {
		return nil, err
	}
	if chat.IsProvisional(sessionID) {
		return nil, nil
	}

	rows, err := s.driver.ListChatMessages(ctx, &FindChatMessage{UserID: owner.ID, SessionID: sessionID})
	if err != nil {
		return nil, wrap("list turns", err)
	}

	turns := make([]chat.Turn, 0, len(rows))
	for _, row := range rows {
		turns = append(turns, chat.Turn{
			ID:        row.ID,
			SessionID: row.SessionID,
			Sender:    fromStoredSender(row.Sender),
			Content:   row.Content,
			CreatedAt: row.Timestamp.UTC(),
		})
	}
	return turns, nil
}

// ListSessions 返回身份拥有的会话，最新的在前，标题取自首条消息。
func (s *Store) ListSessions(ctx context.Context, owner identity.Identity) ([]chat.Session, error) {
	if err := requireAuthenticated(owner); err != nil {
		return nil, err
	}

	heads, err := s.driver.ListChatSessions(ctx, owner.ID)
	if err != nil {
		return nil, wrap("list sessions", err)
	}

	sessions := make([]chat.Session, 0, len(heads))
	for _, head := range heads {
		if chat.IsProvisional(head.SessionID) {
			continue
		}
		sessions = append(sessions, chat.Session{
			ID:        head.SessionID,
			Title:     chat.DeriveTitle(head.FirstContent),
			CreatedAt: head.StartedAt.UTC(),
		})
	}
	return sessions, nil
}

func toStoredSender(sender chat.Sender) string {
	if sender == chat.SenderUser {
		return SenderUser
	}
	return SenderBot
}

func fromStoredSender(sender string) chat.Sender {
	if sender == SenderUser {
		return chat.SenderUser
	}
	return chat.SenderAssistant
}
