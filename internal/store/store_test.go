package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindease/companion/backend/internal/model/chat"
	"github.com/mindease/companion/backend/internal/model/identity"
	"github.com/mindease/companion/backend/internal/model/mood"
	"github.com/mindease/companion/backend/internal/store"
	"github.com/mindease/companion/backend/internal/store/db/sqlite"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	driver, err := sqlite.NewDB(fmt.Sprintf("file:%s/test.db", t.TempDir()))
	require.NoError(t, err)

	s := store.New(driver)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendTurnAssignsSessionOnOpeningInsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := identity.Authenticated("user-1")
	now := time.Now()

	user, err := s.AppendTurn(ctx, owner, chat.NewProvisionalID(), chat.NewTurn(chat.SenderUser, "I can't sleep", now))
	require.NoError(t, err)
	require.NotEmpty(t, user.SessionID)
	assert.False(t, chat.IsProvisional(user.SessionID))

	reply, err := s.AppendTurn(ctx, owner, user.SessionID, chat.NewTurn(chat.SenderAssistant, "Let's talk about it.", now.Add(time.Millisecond)))
	require.NoError(t, err)
	assert.Equal(t, user.SessionID, reply.SessionID)

	turns, err := s.ListTurns(ctx, owner, user.SessionID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, chat.SenderUser, turns[0].Sender)
	assert.Equal(t, chat.SenderAssistant, turns[1].Sender)
	assert.Equal(t, "Let's talk about it.", turns[1].Content)
	assert.Equal(t, user.ID, turns[0].ID)
	assert.Equal(t, reply.ID, turns[1].ID)
}

func TestListSessionsNewestFirstWithDerivedTitles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := identity.Authenticated("user-1")
	base := time.Now().Add(-time.Hour)

	first, err := s.AppendTurn(ctx, owner, "", chat.NewTurn(chat.SenderUser, "short", base))
	require.NoError(t, err)
	second, err := s.AppendTurn(ctx, owner, "", chat.NewTurn(chat.SenderUser, "This opening message is definitely longer than thirty characters", base.Add(time.Minute)))
	require.NoError(t, err)

	_, err = s.AppendTurn(ctx, identity.Authenticated("someone-else"), "", chat.NewTurn(chat.SenderUser, "not mine", base))
	require.NoError(t, err)

	sessions, err := s.ListSessions(ctx, owner)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.Equal(t, second.SessionID, sessions[0].ID)
	assert.Equal(t, "This opening message is defini...", sessions[0].Title)
	assert.Equal(t, first.SessionID, sessions[1].ID)
	assert.Equal(t, "short", sessions[1].Title)
}

func TestAnonymousIdentityIsRefused(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	guest := identity.Anon("abc")

	_, err := s.AppendTurn(ctx, guest, "", chat.NewTurn(chat.SenderUser, "hi", time.Now()))
	require.ErrorIs(t, err, store.ErrAuthenticationRequired)

	_, err = s.CreateMood(ctx, guest, mood.Entry{Mood: 3})
	require.ErrorIs(t, err, store.ErrAuthenticationRequired)

	require.ErrorIs(t, s.DeleteMood(ctx, guest), store.ErrAuthenticationRequired)
}

func TestMoodRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := identity.Authenticated("user-1")
	now := time.Now()

	old, err := s.CreateMood(ctx, owner, mood.Entry{Mood: 2, CreatedAt: now.AddDate(0, 0, -10)})
	require.NoError(t, err)
	assert.NotEmpty(t, old.ID)

	recent, err := s.CreateMood(ctx, owner, mood.Entry{Mood: 4, Notes: "walked outside", CreatedAt: now})
	require.NoError(t, err)

	all, err := s.ListMood(ctx, owner, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, recent.ID, all[0].ID)
	assert.Equal(t, "walked outside", all[0].Notes)

	week, err := s.ListMood(ctx, owner, now.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Len(t, week, 1)
	assert.Equal(t, 4, week[0].Mood)

	require.NoError(t, s.DeleteMood(ctx, owner))
	all, err = s.ListMood(ctx, owner, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMoodRangeIsEnforcedByStorage(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateMood(context.Background(), identity.Authenticated("user-1"), mood.Entry{Mood: 9})
	require.ErrorIs(t, err, store.ErrPersistence)
}
