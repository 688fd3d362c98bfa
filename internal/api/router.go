package api

import (
	"net/http"

	"github.com/Rrens/kaif-chat/internal/api/handler"
	customMiddleware "github.com/Rrens/kaif-chat/internal/api/middleware"
	"github.com/Rrens/kaif-chat/internal/config"
	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/Rrens/kaif-chat/internal/llm"
	"github.com/Rrens/kaif-chat/internal/repository/redis"
	"github.com/Rrens/kaif-chat/internal/security"
	"github.com/Rrens/kaif-chat/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Dependencies are the wired components the router serves
type Dependencies struct {
	Config      *config.Config
	JWT         *security.JWTManager
	Auth        *service.AuthService
	Hub         *service.Hub
	Storage     domain.BlobStorage
	DB          handler.Pinger
	LLM         *llm.Router
	RateLimiter *redis.RateLimiter
	// HistoryCache is nil when Redis is disabled
	HistoryCache *redis.HistoryCache
}

// NewRouter creates and configures the HTTP router
func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	authHandler := handler.NewAuthHandler(deps.Auth, deps.Hub)
	chatHandler := handler.NewChatHandler(deps.Hub, cfg.Server.MaxUploadBytes, cfg.Recorder.MimeType)
	audioHandler := handler.NewAudioHandler(deps.Storage, cfg.Recorder.MimeType)

	authMiddleware := customMiddleware.NewAuthMiddleware(deps.JWT)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(deps.DB))

		// Auth routes (public)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
		})

		// Uploaded voice messages are addressed by their public URL
		r.Get("/audio/*", audioHandler.Get)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)

			if deps.LLM != nil {
				r.Get("/llm-providers", handler.ListLLMProviders(deps.LLM))
			}
			if deps.HistoryCache != nil {
				r.Post("/cache/flush", handler.FlushCache(deps.HistoryCache))
			}

			r.Get("/conversations", chatHandler.ListConversations)
			r.Delete("/conversations", chatHandler.DeleteAll)
			r.Delete("/conversations/{conversationID}", chatHandler.DeleteConversation)
			r.Put("/selection", chatHandler.Select)
			r.Post("/chats/new", chatHandler.NewChat)
			r.Get("/thread", chatHandler.Thread)
			r.Get("/thread/audio/{localID}", chatHandler.LocalAudio)
			r.Get("/messages/{messageID}/copy", chatHandler.CopyMessage)

			// Sends reach the responder and are rate limited when Redis is on
			r.Group(func(r chi.Router) {
				if deps.RateLimiter != nil {
					r.Use(customMiddleware.NewRateLimitMiddleware(deps.RateLimiter, "send").Limit)
				}
				r.Post("/messages", chatHandler.SendMessage)
				r.Post("/messages/audio", chatHandler.SendAudio)
			})
		})
	})

	return r
}
