package transcript

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client)
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, "Factures 2023")
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "Factures 2023", session.Title)

	got, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)

	_, err = s.GetSession(ctx, "missing")
	assert.Error(t, err)
}

func TestCreateSessionDefaultTitle(t *testing.T) {
	s := newTestStore(t)

	session, err := s.CreateSession(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "Nouvelle conversation", session.Title)
}

func TestAppendAndReadMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, "test")
	require.NoError(t, err)

	_, err = s.Append(ctx, session.ID, Message{Role: "user", Content: "total des factures"})
	require.NoError(t, err)
	_, err = s.Append(ctx, session.ID, Message{Role: "assistant", Type: TypeSQLResult, Content: "Le total est 12450.50"})
	require.NoError(t, err)

	messages, err := s.Messages(ctx, session.ID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, TypeText, messages[0].Type)
	assert.Equal(t, TypeSQLResult, messages[1].Type)
	assert.NotEmpty(t, messages[0].ID)
	assert.False(t, messages[0].CreatedAt.IsZero())
}

func TestAppendValidatesMessage(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Append(context.Background(), "sess", Message{Role: "user"})
	assert.Error(t, err)

	_, err = s.Append(context.Background(), "sess", Message{Content: "hi"})
	assert.Error(t, err)
}

func TestAppendCreatesSessionImplicitly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	longUtterance := strings.Repeat("montant des factures ", 10)
	_, err := s.Append(ctx, "implicit", Message{Role: "user", Content: longUtterance})
	require.NoError(t, err)

	session, err := s.GetSession(ctx, "implicit")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(session.Title, "..."))
}

func TestMessagesLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := s.Append(ctx, "sess", Message{Role: "user", Content: "m"})
		require.NoError(t, err)
	}

	messages, err := s.Messages(ctx, "sess", 3)
	require.NoError(t, err)
	assert.Len(t, messages, 3)
}

func TestListSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateSession(ctx, "first")
	require.NoError(t, err)
	second, err := s.CreateSession(ctx, "second")
	require.NoError(t, err)

	// Appending bumps the session's updated timestamp
	_, err = s.Append(ctx, second.ID, Message{Role: "user", Content: "hi"})
	require.NoError(t, err)

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "second", sessions[0].Title)
}

func TestDeleteSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, "doomed")
	require.NoError(t, err)
	_, err = s.Append(ctx, session.ID, Message{Role: "user", Content: "hi"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteSession(ctx, session.ID))

	_, err = s.GetSession(ctx, session.ID)
	assert.Error(t, err)

	messages, err := s.Messages(ctx, session.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestDeleteAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c"} {
		_, err := s.CreateSession(ctx, title)
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteAll(ctx))

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
