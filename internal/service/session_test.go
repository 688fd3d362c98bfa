package service

import (
	"context"
	"testing"
	"time"

	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestUserSession_DeliversLatestUser(t *testing.T) {
	first := &domain.User{ID: uuid.New()}
	session := NewUserSession(first)
	assert.Equal(t, first, session.Current())

	changes, unsubscribe := session.Subscribe()
	defer unsubscribe()

	second, third := &domain.User{ID: uuid.New()}, &domain.User{ID: uuid.New()}
	session.Set(second)
	session.Set(third)

	assert.Equal(t, third, <-changes)
	assert.Equal(t, third, session.Current())

	session.Close()
	_, ok := <-changes
	assert.False(t, ok)

	// Unsubscribing after close is harmless
	unsubscribe()
}

func TestChatStore_FollowTracksSession(t *testing.T) {
	convs := new(MockConversationRepository)
	store := NewChatStore(ChatStoreConfig{Conversations: convs, Messages: new(MockMessageRepository)})

	alice := &domain.User{ID: uuid.New()}
	bob := &domain.User{ID: uuid.New()}
	convs.On("ListByUser", mock.Anything, alice.ID).Return([]domain.Conversation{{ID: uuid.New()}}, nil).Once()
	convs.On("ListByUser", mock.Anything, bob.ID).Return([]domain.Conversation{}, nil).Once()

	session := NewUserSession(alice)
	done := make(chan error, 1)
	go func() { done <- store.Follow(context.Background(), session) }()

	require.Eventually(t, func() bool { return len(store.Conversations()) == 1 }, time.Second, 5*time.Millisecond)

	session.Set(bob)
	require.Eventually(t, func() bool {
		u := store.User()
		return u != nil && u.ID == bob.ID
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, store.Conversations())

	session.Set(nil)
	session.Close()
	require.NoError(t, <-done)
	assert.Nil(t, store.User())
	convs.AssertExpectations(t)
}

func TestHub_StoreAndRelease(t *testing.T) {
	convs := new(MockConversationRepository)
	hub := NewHub(func() *ChatStore {
		return NewChatStore(ChatStoreConfig{Conversations: convs, Messages: new(MockMessageRepository)})
	})
	defer hub.Close()

	user := &domain.User{ID: uuid.New()}
	convs.On("ListByUser", mock.Anything, user.ID).Return([]domain.Conversation{{ID: uuid.New()}}, nil).Once()

	store := hub.Store(context.Background(), user)
	assert.Len(t, store.Conversations(), 1, "conversations are loaded before Store returns")
	assert.Same(t, store, hub.Store(context.Background(), user))

	hub.Release(user.ID)
	assert.Nil(t, store.User())
	assert.Empty(t, store.Conversations())

	// Releasing twice is a no-op
	hub.Release(user.ID)
	convs.AssertExpectations(t)
}
