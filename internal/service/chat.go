package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/Rrens/kaif-chat/internal/responder"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// AudioAcknowledgment is the fixed reply to a voice message
	AudioAcknowledgment = "I've received your voice message. While I'm still learning to process audio, I appreciate you sharing it!"
	// AudioMessageContent is the stored text of a voice message
	AudioMessageContent = "Voice message"
	// AudioClipboardText is copied in place of an audio message
	AudioClipboardText = "Audio message"

	localAudioScheme = "local:"

	// historyTurns caps the prior turns handed to the responder
	historyTurns = 20
)

// ClipboardWriter receives copied message text
type ClipboardWriter interface {
	WriteText(ctx context.Context, text string) error
}

// ChatStoreConfig holds ChatStore collaborators
type ChatStoreConfig struct {
	Conversations domain.ConversationRepository
	Messages      domain.MessageRepository
	Storage       domain.BlobStorage
	Responder     responder.Responder
	// AudioMimeType and AudioExtension describe uploaded recordings
	AudioMimeType  string
	AudioExtension string
	Now            func() time.Time
}

// ChatStore holds the signed-in user's conversations and the active thread.
// The mutex guards state only and is released around every repository,
// storage and responder call.
type ChatStore struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	storage       domain.BlobStorage
	responder     responder.Responder
	mimeType      string
	extension     string
	now           func() time.Time

	// createMu serializes conversation creation so concurrent sends with
	// no selection share one new conversation
	createMu sync.Mutex

	mu             sync.Mutex
	user           *domain.User
	userEpoch      uint64
	convs          []domain.Conversation
	listVersion    uint64
	selected       uuid.UUID
	generation     uint64
	entries        []entry
	localAudio     map[string][]byte
	inflight       int
	loadingHistory bool
}

// NewChatStore creates a store with no signed-in user
func NewChatStore(cfg ChatStoreConfig) *ChatStore {
	if cfg.AudioMimeType == "" {
		cfg.AudioMimeType = "audio/webm"
	}
	if cfg.AudioExtension == "" {
		cfg.AudioExtension = "webm"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ChatStore{
		conversations: cfg.Conversations,
		messages:      cfg.Messages,
		storage:       cfg.Storage,
		responder:     cfg.Responder,
		mimeType:      cfg.AudioMimeType,
		extension:     cfg.AudioExtension,
		now:           cfg.Now,
		localAudio:    make(map[string][]byte),
	}
}

// Follow tracks session changes until ctx is done or the source stops
func (s *ChatStore) Follow(ctx context.Context, src domain.SessionSource) error {
	changes, unsubscribe := src.Subscribe()
	defer unsubscribe()

	s.SetUser(ctx, src.Current())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case user, ok := <-changes:
			if !ok {
				return nil
			}
			s.SetUser(ctx, user)
		}
	}
}

// SetUser switches the signed-in user. A different user resets all local
// state and reloads conversations; nil signs out.
func (s *ChatStore) SetUser(ctx context.Context, user *domain.User) {
	s.mu.Lock()
	if sameUser(s.user, user) {
		s.mu.Unlock()
		return
	}
	s.user = user
	s.userEpoch++
	s.listVersion++
	s.convs = nil
	s.resetThreadLocked(uuid.Nil)
	s.mu.Unlock()

	if user == nil {
		log.Info().Msg("Session ended, chat state cleared")
		return
	}

	log.Info().Str("user_id", user.ID.String()).Msg("Session changed, loading conversations")
	s.ListConversations(ctx)
}

func sameUser(a, b *domain.User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

// ListConversations reloads the user's conversations, newest first.
// A failed read is logged and yields an empty list. A read that overlaps a
// local create or delete is discarded in favour of the local list.
func (s *ChatStore) ListConversations(ctx context.Context) []domain.Conversation {
	s.mu.Lock()
	user, epoch, version := s.user, s.userEpoch, s.listVersion
	s.mu.Unlock()

	if user == nil {
		return []domain.Conversation{}
	}

	convs, err := s.conversations.ListByUser(ctx, user.ID)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to load conversations")
		convs = []domain.Conversation{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userEpoch != epoch {
		return cloneConversations(convs)
	}
	if s.listVersion != version {
		log.Debug().Str("user_id", user.ID.String()).Msg("Discarding stale conversation list")
		return cloneConversations(s.convs)
	}
	s.convs = convs
	return cloneConversations(convs)
}

// SelectConversation makes id the active conversation and reloads its
// thread. uuid.Nil clears the selection. Only the latest reload is applied.
func (s *ChatStore) SelectConversation(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return domain.ErrNoSession
	}
	if id != uuid.Nil && !s.ownsLocked(id) {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	gen := s.resetThreadLocked(id)
	s.loadingHistory = id != uuid.Nil
	s.mu.Unlock()

	if id == uuid.Nil {
		return nil
	}

	messages, err := s.messages.ListByConversation(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", id.String()).Msg("Failed to load messages")
		messages = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		log.Debug().Str("conversation_id", id.String()).Msg("Discarding superseded thread reload")
		return nil
	}
	s.entries = persistedEntries(messages)
	s.loadingHistory = false
	return nil
}

// NewChat clears the selection and thread without touching durable state
func (s *ChatStore) NewChat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetThreadLocked(uuid.Nil)
}

// SendTextMessage appends the user's message, persists it and appends a
// reply from the responder, or from the local fallback when it fails.
func (s *ChatStore) SendTextMessage(ctx context.Context, content string) error {
	user, err := s.currentUser()
	if err != nil {
		return err
	}

	s.beginResponding()
	defer s.endResponding()

	convID, gen, err := s.ensureConversation(ctx, user, domain.TitleFromContent(content))
	if err != nil {
		return err
	}

	localID := uuid.NewString()
	draft := domain.Message{
		ConversationID: convID,
		UserID:         user.ID,
		Content:        content,
		IsUser:         true,
		Kind:           domain.KindText,
		CreatedAt:      s.now(),
	}
	s.apply(gen, func(e []entry) []entry { return appendPending(e, localID, draft) })

	record := draft
	if err := s.messages.Create(ctx, &record); err != nil {
		log.Error().Err(err).Str("conversation_id", convID.String()).Msg("Failed to save user message")
		s.apply(gen, func(e []entry) []entry { return rollback(e, localID) })
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	s.apply(gen, func(e []entry) []entry { return markPersisted(e, localID, record) })

	reply, err := s.responder.Respond(ctx, responder.Request{
		Message:        content,
		UserID:         user.ID.String(),
		ConversationID: convID.String(),
		History:        s.priorTurns(gen, localID),
	})
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", convID.String()).Msg("Responder failed, using fallback")
		reply = ""
	}
	if reply == "" {
		reply = responder.Fallback(content)
	}

	s.appendReply(ctx, gen, user, convID, reply)
	return nil
}

// SendAudioMessage uploads a finished recording, persists it as an audio
// message and appends the fixed acknowledgment. Upload failure removes the
// optimistic entry and appends nothing.
func (s *ChatStore) SendAudioMessage(ctx context.Context, data []byte, durationSeconds int) error {
	user, err := s.currentUser()
	if err != nil {
		return err
	}

	s.beginResponding()
	defer s.endResponding()

	convID, gen, err := s.ensureConversation(ctx, user, domain.VoiceMessageTitle)
	if err != nil {
		return err
	}

	localID := uuid.NewString()
	now := s.now()
	draft := domain.Message{
		ConversationID: convID,
		UserID:         user.ID,
		Content:        AudioMessageContent,
		IsUser:         true,
		Kind:           domain.KindAudio,
		AudioURL:       localAudioScheme + localID,
		AudioDuration:  durationSeconds,
		CreatedAt:      now,
	}

	s.mu.Lock()
	s.localAudio[localID] = data
	s.mu.Unlock()
	s.apply(gen, func(e []entry) []entry { return appendPending(e, localID, draft) })

	discard := func() {
		s.apply(gen, func(e []entry) []entry { return rollback(e, localID) })
		s.mu.Lock()
		delete(s.localAudio, localID)
		s.mu.Unlock()
	}

	key := fmt.Sprintf("%s/%s/%d.%s", user.ID, convID, now.UnixMilli(), s.extension)
	if err := s.storage.Upload(ctx, key, data, s.mimeType); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to upload voice message")
		discard()
		return fmt.Errorf("%w: %w", domain.ErrUpload, err)
	}

	record := draft
	record.AudioURL = s.storage.PublicURL(key)
	if err := s.messages.Create(ctx, &record); err != nil {
		log.Error().Err(err).Str("conversation_id", convID.String()).Msg("Failed to save voice message")
		discard()
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}

	s.apply(gen, func(e []entry) []entry { return markPersisted(e, localID, record) })
	s.mu.Lock()
	delete(s.localAudio, localID)
	s.mu.Unlock()

	s.appendReply(ctx, gen, user, convID, AudioAcknowledgment)
	return nil
}

// DeleteConversation removes a conversation durably, then locally
func (s *ChatStore) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return domain.ErrNoSession
	}
	if !s.ownsLocked(id) {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	s.mu.Unlock()

	if err := s.conversations.Delete(ctx, id); err != nil {
		log.Error().Err(err).Str("conversation_id", id.String()).Msg("Failed to delete conversation")
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]domain.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	s.convs = kept
	s.listVersion++

	if s.selected == id {
		s.resetThreadLocked(uuid.Nil)
	}
	return nil
}

// DeleteAllChats removes every conversation of the user
func (s *ChatStore) DeleteAllChats(ctx context.Context) error {
	user, err := s.currentUser()
	if err != nil {
		return err
	}

	if err := s.conversations.DeleteByUser(ctx, user.ID); err != nil {
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to delete all conversations")
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs = []domain.Conversation{}
	s.listVersion++
	s.resetThreadLocked(uuid.Nil)
	return nil
}

// CopyMessage writes a thread message to the clipboard. id is either the
// server ID or the local ID of a pending entry.
func (s *ChatStore) CopyMessage(ctx context.Context, id string, clipboard ClipboardWriter) (string, error) {
	msg, ok := s.findMessage(id)
	if !ok {
		return "", domain.ErrNotFound
	}

	text := msg.Content
	if msg.Kind == domain.KindAudio {
		text = AudioClipboardText
	}

	if err := clipboard.WriteText(ctx, text); err != nil {
		return "", fmt.Errorf("failed to write clipboard: %w", err)
	}
	return text, nil
}

// LocalAudio returns the bytes of a voice message that is not stored yet
func (s *ChatStore) LocalAudio(localID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.localAudio[strings.TrimPrefix(localID, localAudioScheme)]
	return data, ok
}

// Messages returns the visible thread, oldest first
func (s *ChatStore) Messages() []ThreadMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return visible(s.entries)
}

// Conversations returns the cached conversation list
func (s *ChatStore) Conversations() []domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneConversations(s.convs)
}

// Selected returns the active conversation ID or uuid.Nil
func (s *ChatStore) Selected() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Responding reports whether a send is waiting for its reply
func (s *ChatStore) Responding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

// LoadingHistory reports whether a thread reload is in flight
func (s *ChatStore) LoadingHistory() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadingHistory
}

// User returns the signed-in user or nil
func (s *ChatStore) User() *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *ChatStore) currentUser() (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil, domain.ErrNoSession
	}
	return s.user, nil
}

// ensureConversation returns the selected conversation, creating and
// selecting a new one when none is active
func (s *ChatStore) ensureConversation(ctx context.Context, user *domain.User, title string) (uuid.UUID, uint64, error) {
	if id, gen, ok := s.selection(); ok {
		return id, gen, nil
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	// a concurrent send may have created one while we waited
	s.mu.Lock()
	if s.selected != uuid.Nil {
		id, gen := s.selected, s.generation
		s.mu.Unlock()
		return id, gen, nil
	}
	epoch := s.userEpoch
	s.mu.Unlock()

	conv := &domain.Conversation{UserID: user.ID, Title: title}
	if err := s.conversations.Create(ctx, conv); err != nil {
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to create conversation")
		return uuid.Nil, 0, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userEpoch != epoch {
		return uuid.Nil, 0, domain.ErrNoSession
	}
	s.convs = append([]domain.Conversation{*conv}, s.convs...)
	s.listVersion++
	gen := s.resetThreadLocked(conv.ID)

	log.Info().Str("conversation_id", conv.ID.String()).Str("title", conv.Title).Msg("Conversation created")
	return conv.ID, gen, nil
}

func (s *ChatStore) selection() (uuid.UUID, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.generation, s.selected != uuid.Nil
}

// priorTurns returns the stored thread of generation gen preceding localID
func (s *ChatStore) priorTurns(gen uint64, localID string) []responder.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	return turnsBefore(s.entries, localID, historyTurns)
}

// appendReply persists and appends an assistant message. A reply that
// cannot be stored is still shown, as a pending entry.
func (s *ChatStore) appendReply(ctx context.Context, gen uint64, user *domain.User, convID uuid.UUID, content string) {
	localID := uuid.NewString()
	record := domain.Message{
		ConversationID: convID,
		UserID:         user.ID,
		Content:        content,
		IsUser:         false,
		Kind:           domain.KindText,
		CreatedAt:      s.now(),
	}

	if err := s.messages.Create(ctx, &record); err != nil {
		log.Error().Err(err).Str("conversation_id", convID.String()).Msg("Failed to save reply")
		s.apply(gen, func(e []entry) []entry { return appendPending(e, localID, record) })
		return
	}
	s.apply(gen, func(e []entry) []entry { return appendPersisted(e, localID, record) })
}

// apply runs a reducer only while the thread still belongs to generation gen
func (s *ChatStore) apply(gen uint64, reduce func([]entry) []entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return false
	}
	s.entries = reduce(s.entries)
	return true
}

// resetThreadLocked selects id with an empty thread and returns the new generation
func (s *ChatStore) resetThreadLocked(id uuid.UUID) uint64 {
	s.generation++
	s.selected = id
	s.entries = nil
	s.loadingHistory = false
	clear(s.localAudio)
	return s.generation
}

func (s *ChatStore) ownsLocked(id uuid.UUID) bool {
	for _, c := range s.convs {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (s *ChatStore) findMessage(id string) (domain.Message, bool) {
	if id == "" {
		return domain.Message{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.state == EntryRolledBack {
			continue
		}
		if e.localID == id || (e.message.ID != uuid.Nil && e.message.ID.String() == id) {
			return e.message, true
		}
	}
	return domain.Message{}, false
}

func (s *ChatStore) beginResponding() {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()
}

func (s *ChatStore) endResponding() {
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
}

func cloneConversations(convs []domain.Conversation) []domain.Conversation {
	out := make([]domain.Conversation, len(convs))
	copy(out, convs)
	return out
}
