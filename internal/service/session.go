package service

import (
	"context"
	"sync"

	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// UserSession is an in-process SessionSource. Subscribers always receive
// the latest user; intermediate changes may be coalesced.
type UserSession struct {
	mu     sync.Mutex
	user   *domain.User
	subs   map[int]chan *domain.User
	nextID int
	closed bool
}

// NewUserSession creates a session signed in as user (nil for signed out)
func NewUserSession(user *domain.User) *UserSession {
	return &UserSession{
		user: user,
		subs: make(map[int]chan *domain.User),
	}
}

func (s *UserSession) Current() *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *UserSession) Subscribe() (<-chan *domain.User, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan *domain.User, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		})
	}
}

// Set changes the user and notifies subscribers
func (s *UserSession) Set(user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.user = user
	for _, ch := range s.subs {
		// Only Set sends, under the lock, so after draining the send cannot block
		select {
		case <-ch:
		default:
		}
		ch <- user
	}
}

// Close ends every subscription; pending notifications are still delivered
func (s *UserSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

type hubEntry struct {
	store   *ChatStore
	session *UserSession
	done    chan struct{}
}

// Hub keeps one ChatStore per signed-in user
type Hub struct {
	newStore func() *ChatStore
	ctx      context.Context
	cancel   context.CancelFunc

	mu      sync.Mutex
	entries map[uuid.UUID]*hubEntry
}

// NewHub creates a hub that builds stores with newStore
func NewHub(newStore func() *ChatStore) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		newStore: newStore,
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[uuid.UUID]*hubEntry),
	}
}

// Store returns the user's store, creating it and loading conversations on first use
func (h *Hub) Store(ctx context.Context, user *domain.User) *ChatStore {
	h.mu.Lock()
	if e, ok := h.entries[user.ID]; ok {
		h.mu.Unlock()
		return e.store
	}

	e := &hubEntry{
		store:   h.newStore(),
		session: NewUserSession(user),
		done:    make(chan struct{}),
	}
	h.entries[user.ID] = e
	h.mu.Unlock()

	e.store.SetUser(ctx, user)

	go func() {
		defer close(e.done)
		if err := e.store.Follow(h.ctx, e.session); err != nil && h.ctx.Err() == nil {
			log.Error().Err(err).Str("user_id", user.ID.String()).Msg("Session follower stopped")
		}
	}()

	return e.store
}

// Release signs the user's store out and forgets it
func (h *Hub) Release(userID uuid.UUID) {
	h.mu.Lock()
	e, ok := h.entries[userID]
	delete(h.entries, userID)
	h.mu.Unlock()

	if !ok {
		return
	}

	e.session.Set(nil)
	e.session.Close()
	<-e.done
}

// Close releases every store
func (h *Hub) Close() {
	h.mu.Lock()
	ids := make([]uuid.UUID, 0, len(h.entries))
	for id := range h.entries {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.Release(id)
	}
	h.cancel()
}
