package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestConversationRepository_CreateAndList(t *testing.T) {
	db := openTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, title := range []string{"first", "second", "third"} {
		at := base.Add(time.Duration(i) * time.Minute)
		repo.now = func() time.Time { return at }
		c := &domain.Conversation{UserID: userID, Title: title}
		require.NoError(t, repo.Create(ctx, c))
		assert.NotEqual(t, uuid.Nil, c.ID)
		assert.Equal(t, at, c.CreatedAt)
	}
	require.NoError(t, repo.Create(ctx, &domain.Conversation{UserID: uuid.New(), Title: "someone else"}))

	got, err := repo.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "third", got[0].Title)
	assert.Equal(t, "second", got[1].Title)
	assert.Equal(t, "first", got[2].Title)
}

func TestConversationRepository_DeleteCascadesMessages(t *testing.T) {
	db := openTestDB(t)
	convs := NewConversationRepository(db)
	msgs := NewMessageRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	c := &domain.Conversation{UserID: userID, Title: "doomed"}
	require.NoError(t, convs.Create(ctx, c))
	require.NoError(t, msgs.Create(ctx, &domain.Message{ConversationID: c.ID, UserID: userID, Content: "hi", IsUser: true, Kind: domain.KindText}))

	require.NoError(t, convs.Delete(ctx, c.ID))

	list, err := msgs.ListByConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestConversationRepository_DeleteByUser(t *testing.T) {
	db := openTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	mine, theirs := uuid.New(), uuid.New()

	require.NoError(t, repo.Create(ctx, &domain.Conversation{UserID: mine, Title: "a"}))
	require.NoError(t, repo.Create(ctx, &domain.Conversation{UserID: mine, Title: "b"}))
	require.NoError(t, repo.Create(ctx, &domain.Conversation{UserID: theirs, Title: "c"}))

	require.NoError(t, repo.DeleteByUser(ctx, mine))

	left, err := repo.ListByUser(ctx, mine)
	require.NoError(t, err)
	assert.Empty(t, left)

	other, err := repo.ListByUser(ctx, theirs)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestMessageRepository_ChronologicalOrderAndAudioFields(t *testing.T) {
	db := openTestDB(t)
	convs := NewConversationRepository(db)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	c := &domain.Conversation{UserID: userID, Title: "thread"}
	require.NoError(t, convs.Create(ctx, c))

	// identical timestamps fall back to insertion order
	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	audio := &domain.Message{
		ConversationID: c.ID,
		UserID:         userID,
		Content:        "Voice message",
		IsUser:         true,
		Kind:           domain.KindAudio,
		AudioURL:       "http://cdn/a.webm",
		AudioDuration:  7,
	}
	require.NoError(t, repo.Create(ctx, audio))
	require.NoError(t, repo.Create(ctx, &domain.Message{ConversationID: c.ID, UserID: userID, Content: "ack", Kind: domain.KindText}))

	got, err := repo.ListByConversation(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, audio.ID, got[0].ID)
	assert.Equal(t, domain.KindAudio, got[0].Kind)
	assert.True(t, got[0].IsUser)
	assert.Equal(t, "http://cdn/a.webm", got[0].AudioURL)
	assert.Equal(t, 7, got[0].AudioDuration)
	assert.Equal(t, fixed, got[0].CreatedAt)

	assert.Equal(t, "ack", got[1].Content)
	assert.False(t, got[1].IsUser)
}

func TestUserRepository(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	u := &domain.User{ID: uuid.New(), Email: "a@example.com", PasswordHash: "hash", CreatedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, u))

	exists, err := repo.EmailExists(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	byEmail, err := repo.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.Equal(t, "hash", byEmail.PasswordHash)

	missing, err := repo.GetByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	byID, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", byID.Email)
}
