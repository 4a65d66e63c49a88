package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindease/companion/backend/internal/model/chat"
	"github.com/mindease/companion/backend/internal/model/identity"
)

func TestMemoryStoreAssignsSessionOnProvisionalAppend(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	owner := identity.Anon("k")

	first, err := store.AppendTurn(ctx, owner, chat.NewProvisionalID(), chat.NewTurn(chat.SenderUser, "hi", time.Now()))
	require.NoError(t, err)
	require.False(t, chat.IsProvisional(first.SessionID))

	_, err = store.AppendTurn(ctx, owner, first.SessionID, chat.NewTurn(chat.SenderAssistant, "hello", time.Now()))
	require.NoError(t, err)

	_, err = store.AppendTurn(ctx, owner, "unknown", chat.NewTurn(chat.SenderUser, "x", time.Now()))
	require.ErrorIs(t, err, ErrSessionNotFound)

	turns, err := store.ListTurns(ctx, owner, first.SessionID)
	require.NoError(t, err)
	require.Len(t, turns, 2)

	other, err := store.ListTurns(ctx, identity.Anon("other"), first.SessionID)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryStoreListsSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	owner := identity.Anon("k")
	base := time.Now()

	older, err := store.AppendTurn(ctx, owner, "", chat.NewTurn(chat.SenderUser, "older", base.Add(-time.Hour)))
	require.NoError(t, err)
	newer, err := store.AppendTurn(ctx, owner, "", chat.NewTurn(chat.SenderUser, "newer", base))
	require.NoError(t, err)

	sessions, err := store.ListSessions(ctx, owner)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, newer.SessionID, sessions[0].ID)
	assert.Equal(t, older.SessionID, sessions[1].ID)
}

func TestStoreRouter(t *testing.T) {
	durable := NewMemoryStore()
	memory := NewMemoryStore()
	router := StoreRouter{Durable: durable, Memory: memory}

	assert.Same(t, memory, router.For(identity.Anon("x")))
	assert.Equal(t, TurnStore(durable), router.For(identity.Authenticated("u")))
	assert.Same(t, memory, StoreRouter{Memory: memory}.For(identity.Authenticated("u")))
}

func TestMergeSessionsDedupesAndSorts(t *testing.T) {
	now := time.Now()
	merged := mergeSessions(
		[]chat.Session{{ID: "a", CreatedAt: now.Add(-time.Hour)}, {ID: "b", CreatedAt: now}},
		[]chat.Session{{ID: "b", CreatedAt: now}, {ID: "temp_session_x", CreatedAt: now}, {ID: "c", CreatedAt: now.Add(time.Minute)}},
	)

	ids := make([]string, 0, len(merged))
	for _, s := range merged {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)
}

func TestMemoryStoreCapsSessionsAndTurns(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	owner := identity.Anon("loop")
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	var firstID string
	for i := 0; i < MaxMemorySessionsPerOwner+3; i++ {
		turn, err := store.AppendTurn(ctx, owner, chat.NewProvisionalID(), chat.NewTurn(chat.SenderUser, "hi", base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
		if i == 0 {
			firstID = turn.SessionID
		}
	}
	sessions, err := store.ListSessions(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, sessions, MaxMemorySessionsPerOwner)
	_, err = store.AppendTurn(ctx, owner, firstID, chat.NewTurn(chat.SenderUser, "late", base))
	require.ErrorIs(t, err, ErrSessionNotFound)

	sessionID := sessions[0].ID
	for i := 0; i < MaxMemoryTurnsPerSession+10; i++ {
		_, err := store.AppendTurn(ctx, owner, sessionID, chat.NewTurn(chat.SenderUser, "more", base.Add(time.Hour)))
		require.NoError(t, err)
	}
	turns, err := store.ListTurns(ctx, owner, sessionID)
	require.NoError(t, err)
	assert.Len(t, turns, MaxMemoryTurnsPerSession)
}

func TestMemoryStorePruneDropsIdleOwners(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	_, err := store.AppendTurn(ctx, identity.Anon("stale"), "", chat.NewTurn(chat.SenderUser, "old", now.Add(-48*time.Hour)))
	require.NoError(t, err)
	fresh, err := store.AppendTurn(ctx, identity.Anon("fresh"), "", chat.NewTurn(chat.SenderUser, "new", now.Add(-time.Hour)))
	require.NoError(t, err)
	require.Equal(t, 2, store.Owners())

	assert.Equal(t, 1, store.Prune(now.Add(-24*time.Hour)))
	assert.Equal(t, 1, store.Owners())

	turns, err := store.ListTurns(ctx, identity.Anon("fresh"), fresh.SessionID)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}
