package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Rrens/kaif-chat/internal/api"
	"github.com/Rrens/kaif-chat/internal/config"
	"github.com/Rrens/kaif-chat/internal/repository/sqlite"
	"github.com/Rrens/kaif-chat/internal/responder"
	"github.com/Rrens/kaif-chat/internal/security"
	"github.com/Rrens/kaif-chat/internal/service"
	"github.com/Rrens/kaif-chat/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const audioBase = "http://chat.test/api/v1/audio"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   any             `json:"error"`
}

type testServer struct {
	t       *testing.T
	handler http.Handler
	hub     *service.Hub
}

func newTestServer(t *testing.T, webhook http.HandlerFunc) *testServer {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	blobs, err := storage.NewLocalStorage(t.TempDir(), audioBase)
	require.NoError(t, err)

	hook := httptest.NewServer(webhook)
	t.Cleanup(hook.Close)

	cfg := &config.Config{
		Server:   config.ServerConfig{MiddlewareTimeout: 10 * time.Second, MaxUploadBytes: 1 << 20},
		Recorder: config.RecorderConfig{MimeType: "audio/webm", Extension: "webm"},
	}
	jwtManager := security.NewJWTManager("router-test-secret", 15*time.Minute, time.Hour)
	conversations := sqlite.NewConversationRepository(db)
	messages := sqlite.NewMessageRepository(db)
	webhookClient := responder.NewWebhookClient(hook.URL, 2*time.Second)

	hub := service.NewHub(func() *service.ChatStore {
		return service.NewChatStore(service.ChatStoreConfig{
			Conversations: conversations,
			Messages:      messages,
			Storage:       blobs,
			Responder:     webhookClient,
		})
	})
	t.Cleanup(hub.Close)

	return &testServer{
		t: t,
		handler: api.NewRouter(api.Dependencies{
			Config:  cfg,
			JWT:     jwtManager,
			Auth:    service.NewAuthService(sqlite.NewUserRepository(db), jwtManager),
			Hub:     hub,
			Storage: blobs,
			DB:      db,
		}),
		hub: hub,
	}
}

func (s *testServer) do(req *http.Request, token string) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && rec.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (s *testServer) json(method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, token)
}

func (s *testServer) login(email string) string {
	s.t.Helper()
	creds := map[string]string{"email": email, "password": "correct-horse"}

	rec, _ := s.json(http.MethodPost, "/api/v1/auth/register", "", creds)
	require.Equal(s.t, http.StatusCreated, rec.Code)

	rec, env := s.json(http.MethodPost, "/api/v1/auth/login", "", creds)
	require.Equal(s.t, http.StatusOK, rec.Code)

	var data struct {
		Tokens struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(s.t, data.Tokens.AccessToken)
	return data.Tokens.AccessToken
}

type threadData struct {
	ConversationID *string `json:"conversation_id"`
	Messages       []struct {
		ID       string `json:"id"`
		Content  string `json:"content"`
		IsUser   bool   `json:"is_user"`
		Type     string `json:"type"`
		AudioURL string `json:"audio_url"`
		Pending  bool   `json:"pending"`
	} `json:"messages"`
	Responding bool `json:"responding"`
}

func decodeThread(t *testing.T, env envelope) threadData {
	t.Helper()
	var th threadData
	require.NoError(t, json.Unmarshal(env.Data, &th))
	return th
}

func echoWebhook(w http.ResponseWriter, r *http.Request) {
	var req responder.Request
	json.NewDecoder(r.Body).Decode(&req)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "echo: " + req.Message})
}

func TestRouter_Health(t *testing.T) {
	srv := newTestServer(t, echoWebhook)

	rec, env := srv.json(http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, _ = srv.json(http.MethodGet, "/api/v1/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t, echoWebhook)

	rec, env := srv.json(http.MethodGet, "/api/v1/thread", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.Success)
}

func TestRouter_RegisterRejectsDuplicateAndInvalid(t *testing.T) {
	srv := newTestServer(t, echoWebhook)
	srv.login("dup@example.com")

	rec, _ := srv.json(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "DUP@example.com", "password": "correct-horse",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env := srv.json(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "not-an-email", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	fields, ok := env.Error.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "Email")
	assert.Contains(t, fields, "Password")
}

func TestRouter_TextConversationFlow(t *testing.T) {
	srv := newTestServer(t, echoWebhook)
	token := srv.login("text@example.com")

	rec, env := srv.json(http.MethodPost, "/api/v1/messages", token, map[string]string{"content": "Hello there"})
	require.Equal(t, http.StatusCreated, rec.Code)

	th := decodeThread(t, env)
	require.NotNil(t, th.ConversationID)
	require.Len(t, th.Messages, 2)
	assert.True(t, th.Messages[0].IsUser)
	assert.Equal(t, "Hello there", th.Messages[0].Content)
	assert.Equal(t, "echo: Hello there", th.Messages[1].Content)
	assert.False(t, th.Responding)

	rec, env = srv.json(http.MethodGet, "/api/v1/conversations", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var convs []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &convs))
	require.Len(t, convs, 1)
	assert.Equal(t, *th.ConversationID, convs[0].ID)
	assert.Equal(t, "Hello there", convs[0].Title)

	rec, env = srv.json(http.MethodGet, "/api/v1/messages/"+th.Messages[1].ID+"/copy", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"text":"echo: Hello there"}`, string(env.Data))

	// a fresh chat clears the thread; selecting reloads it from storage
	rec, env = srv.json(http.MethodPost, "/api/v1/chats/new", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeThread(t, env).Messages)

	rec, env = srv.json(http.MethodPut, "/api/v1/selection", token, map[string]string{"conversation_id": convs[0].ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeThread(t, env).Messages, 2)

	rec, _ = srv.json(http.MethodDelete, "/api/v1/conversations/"+convs[0].ID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = srv.json(http.MethodGet, "/api/v1/thread", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	th = decodeThread(t, env)
	assert.Nil(t, th.ConversationID)
	assert.Empty(t, th.Messages)
}

func TestRouter_ResponderFailureUsesFallback(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	token := srv.login("fallback@example.com")

	rec, env := srv.json(http.MethodPost, "/api/v1/messages", token, map[string]string{"content": "hello"})
	require.Equal(t, http.StatusCreated, rec.Code)

	th := decodeThread(t, env)
	require.Len(t, th.Messages, 2)
	assert.Equal(t, responder.Fallback("hello"), th.Messages[1].Content)
}

func TestRouter_AudioFlow(t *testing.T) {
	srv := newTestServer(t, echoWebhook)
	token := srv.login("audio@example.com")

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	require.NoError(t, form.WriteField("duration", "4"))
	part, err := form.CreateFormFile("file", "clip.webm")
	require.NoError(t, err)
	_, err = part.Write([]byte("webm-bytes"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/audio", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec, env := srv.do(req, token)
	require.Equal(t, http.StatusCreated, rec.Code)

	th := decodeThread(t, env)
	require.Len(t, th.Messages, 2)
	assert.Equal(t, "audio", th.Messages[0].Type)
	assert.Equal(t, service.AudioAcknowledgment, th.Messages[1].Content)
	require.True(t, strings.HasPrefix(th.Messages[0].AudioURL, audioBase+"/"))

	// the public URL is served without a token
	path := strings.TrimPrefix(th.Messages[0].AudioURL, "http://chat.test")
	rec, _ = srv.do(httptest.NewRequest(http.MethodGet, path, nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	got, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "webm-bytes", string(got))

	rec, env = srv.json(http.MethodGet, "/api/v1/messages/"+th.Messages[0].ID+"/copy", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"text":"Audio message"}`, string(env.Data))
}

func TestRouter_AudioRejectsMissingFile(t *testing.T) {
	srv := newTestServer(t, echoWebhook)
	token := srv.login("nofile@example.com")

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	require.NoError(t, form.WriteField("duration", "2"))
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/audio", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec, _ := srv.do(req, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_UnknownConversation(t *testing.T) {
	srv := newTestServer(t, echoWebhook)
	token := srv.login("unknown@example.com")

	rec, _ := srv.json(http.MethodPut, "/api/v1/selection", token, map[string]string{
		"conversation_id": "6b0f7a4e-2d0c-4a55-9d8e-0c6f0d1b2a3c",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = srv.json(http.MethodDelete, "/api/v1/conversations/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_LogoutReleasesStore(t *testing.T) {
	srv := newTestServer(t, echoWebhook)
	token := srv.login("logout@example.com")

	rec, _ := srv.json(http.MethodPost, "/api/v1/messages", token, map[string]string{"content": "keep me"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = srv.json(http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// a new store starts without a selection but still sees the durable list
	rec, env := srv.json(http.MethodGet, "/api/v1/thread", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeThread(t, env).ConversationID)

	rec, env = srv.json(http.MethodGet, "/api/v1/conversations", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var convs []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &convs))
	assert.Len(t, convs, 1)
}
