package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Rrens/kaif-chat/internal/api/middleware"
	"github.com/Rrens/kaif-chat/internal/api/response"
	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/Rrens/kaif-chat/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ChatHandler exposes the per-user chat store
type ChatHandler struct {
	hub            *service.Hub
	maxUploadBytes int64
	audioMimeType  string
}

// NewChatHandler creates a new chat handler
func NewChatHandler(hub *service.Hub, maxUploadBytes int64, audioMimeType string) *ChatHandler {
	return &ChatHandler{
		hub:            hub,
		maxUploadBytes: maxUploadBytes,
		audioMimeType:  audioMimeType,
	}
}

type threadView struct {
	ConversationID *uuid.UUID              `json:"conversation_id"`
	Messages       []service.ThreadMessage `json:"messages"`
	Responding     bool                    `json:"responding"`
	LoadingHistory bool                    `json:"loading_history"`
}

func (h *ChatHandler) store(w http.ResponseWriter, r *http.Request) (*service.ChatStore, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return nil, false
	}
	email, _ := middleware.GetUserEmail(r.Context())

	return h.hub.Store(r.Context(), &domain.User{ID: userID, Email: email}), true
}

func thread(store *service.ChatStore) threadView {
	view := threadView{
		Messages:       store.Messages(),
		Responding:     store.Responding(),
		LoadingHistory: store.LoadingHistory(),
	}
	if id := store.Selected(); id != uuid.Nil {
		view.ConversationID = &id
	}
	return view
}

// writeStoreError maps chat failure classes to HTTP statuses
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, domain.ErrNoSession):
		response.Unauthorized(w, err.Error())
	case errors.Is(err, domain.ErrUpload):
		response.BadGateway(w, err.Error())
	default:
		response.InternalError(w, err.Error())
	}
}

// ListConversations reloads and returns the user's conversations
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	response.OK(w, store.ListConversations(r.Context()))
}

// DeleteAll removes every conversation of the user
func (h *ChatHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	if err := store.DeleteAllChats(r.Context()); err != nil {
		writeStoreError(w, err)
		return
	}

	response.NoContent(w)
}

// DeleteConversation removes one conversation
func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		response.BadRequest(w, "invalid conversation ID")
		return
	}

	if err := store.DeleteConversation(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}

	response.NoContent(w)
}

// Select makes a conversation active; a null ID clears the selection
func (h *ChatHandler) Select(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	var input struct {
		ConversationID *uuid.UUID `json:"conversation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	id := uuid.Nil
	if input.ConversationID != nil {
		id = *input.ConversationID
	}

	if err := store.SelectConversation(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}

	response.OK(w, thread(store))
}

// NewChat clears the selection
func (h *ChatHandler) NewChat(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	store.NewChat()
	response.OK(w, thread(store))
}

// Thread returns the active thread
func (h *ChatHandler) Thread(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	response.OK(w, thread(store))
}

// SendMessage sends a typed message and waits for the reply
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	var input struct {
		Content string `json:"content" validate:"required,max=4000"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := validate.Struct(input); err != nil {
		response.BadRequest(w, validationErrors(err))
		return
	}

	if err := store.SendTextMessage(r.Context(), input.Content); err != nil {
		writeStoreError(w, err)
		return
	}

	response.Created(w, thread(store))
}

// SendAudio uploads a finished recording as a voice message
func (h *ChatHandler) SendAudio(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		response.BadRequest(w, "recording too large or malformed form")
		return
	}

	duration, err := strconv.Atoi(r.FormValue("duration"))
	if err != nil || duration < 0 {
		response.BadRequest(w, "duration must be a non-negative number of seconds")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		response.BadRequest(w, "failed to read recording")
		return
	}
	if len(data) == 0 {
		response.BadRequest(w, "recording is empty")
		return
	}

	if err := store.SendAudioMessage(r.Context(), data, duration); err != nil {
		writeStoreError(w, err)
		return
	}

	response.Created(w, thread(store))
}

type responseClipboard struct {
	text string
}

func (c *responseClipboard) WriteText(_ context.Context, text string) error {
	c.text = text
	return nil
}

// CopyMessage returns the clipboard text of a thread message
func (h *ChatHandler) CopyMessage(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	clipboard := &responseClipboard{}
	text, err := store.CopyMessage(r.Context(), chi.URLParam(r, "messageID"), clipboard)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	response.OK(w, map[string]string{"text": text})
}

// LocalAudio streams a voice message that has not finished uploading
func (h *ChatHandler) LocalAudio(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	data, found := store.LocalAudio(chi.URLParam(r, "localID"))
	if !found {
		response.NotFound(w, "audio not found")
		return
	}

	w.Header().Set("Content-Type", h.audioMimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
