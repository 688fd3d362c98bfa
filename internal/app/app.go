package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Rrens/kaif-chat/internal/api"
	"github.com/Rrens/kaif-chat/internal/config"
	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/Rrens/kaif-chat/internal/llm"
	"github.com/Rrens/kaif-chat/internal/llm/gemini"
	"github.com/Rrens/kaif-chat/internal/llm/ollama"
	"github.com/Rrens/kaif-chat/internal/llm/openai"
	"github.com/Rrens/kaif-chat/internal/repository/postgres"
	"github.com/Rrens/kaif-chat/internal/repository/redis"
	"github.com/Rrens/kaif-chat/internal/repository/sqlite"
	"github.com/Rrens/kaif-chat/internal/responder"
	"github.com/Rrens/kaif-chat/internal/security"
	"github.com/Rrens/kaif-chat/internal/service"
	"github.com/Rrens/kaif-chat/internal/storage"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// App holds the wired collaborators shared by the server and the terminal client
type App struct {
	Config        *config.Config
	Users         domain.UserRepository
	Conversations domain.ConversationRepository
	Messages      domain.MessageRepository
	Storage       domain.BlobStorage
	Responder     responder.Responder
	LLM           *llm.Router
	JWT           *security.JWTManager
	Auth          *service.AuthService

	db           interface{ Ping(ctx context.Context) error }
	rateLimiter  *redis.RateLimiter
	historyCache *redis.HistoryCache
	closers      []func()
}

// Build connects every backend selected in cfg
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if err := a.openDatabase(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openRedis(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.LLM = newLLMRouter(cfg.LLM)
	res, err := newResponder(cfg.Responder, a.LLM)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Responder = res

	a.JWT = security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	a.Auth = service.NewAuthService(a.Users, a.JWT)

	return a, nil
}

func (a *App) openDatabase(ctx context.Context) error {
	cfg := a.Config.Database
	switch cfg.Driver {
	case "postgres", "":
		if cfg.Migrations != "" {
			if err := postgres.RunMigrations(cfg.DSN(), cfg.Migrations); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
		}
		db, err := postgres.NewDB(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.db = db
		a.Users = postgres.NewUserRepository(db)
		a.Conversations = postgres.NewConversationRepository(db)
		a.Messages = postgres.NewMessageRepository(db)
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		a.closers = append(a.closers, func() { db.Close() })
		a.db = db
		a.Users = sqlite.NewUserRepository(db)
		a.Conversations = sqlite.NewConversationRepository(db)
		a.Messages = sqlite.NewMessageRepository(db)
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	log.Info().Str("driver", cfg.Driver).Msg("Database connected")
	return nil
}

func (a *App) openStorage(ctx context.Context) error {
	cfg := a.Config.Storage
	switch cfg.Driver {
	case "local", "":
		blobs, err := storage.NewLocalStorage(cfg.LocalDir, cfg.PublicBaseURL)
		if err != nil {
			return err
		}
		a.Storage = blobs
	case "gridfs":
		blobs, err := storage.NewGridFSStorage(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Bucket, cfg.PublicBaseURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { blobs.Close() })
		a.Storage = blobs
	default:
		return fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}

	log.Info().Str("driver", cfg.Driver).Str("bucket", cfg.Bucket).Msg("Blob storage ready")
	return nil
}

func (a *App) openRedis(ctx context.Context) error {
	cfg := a.Config.Redis
	if !cfg.Enabled {
		return nil
	}

	client, err := redis.NewClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.closers = append(a.closers, func() { client.Close() })

	a.historyCache = redis.NewHistoryCache(client, cfg.CacheTTL)
	a.Messages = redis.NewCachedMessageRepository(a.Messages, a.historyCache)
	a.rateLimiter = redis.NewRateLimiter(
		client,
		a.Config.Security.RateLimit.RequestsPerMinute,
		a.Config.Security.RateLimit.Burst,
		clockwork.NewRealClock(),
	)

	log.Info().Str("addr", cfg.Addr()).Msg("Redis history cache enabled")
	return nil
}

func newLLMRouter(cfg config.LLMConfig) *llm.Router {
	router := llm.NewRouter(cfg.DefaultProvider)

	if cfg.Ollama.Host != "" {
		log.Info().Str("host", cfg.Ollama.Host).Msg("Registering Ollama provider")
		router.RegisterProvider(ollama.NewProvider(cfg.Ollama.Host, cfg.Ollama.DefaultModel))
	}
	if cfg.OpenAI.APIKey != "" {
		router.RegisterProvider(openai.NewProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model))
	}
	if cfg.Gemini.APIKey != "" {
		router.RegisterProvider(gemini.NewProvider(cfg.Gemini))
	}

	return router
}

func newResponder(cfg config.ResponderConfig, router *llm.Router) (responder.Responder, error) {
	switch cfg.Mode {
	case "webhook", "":
		if cfg.WebhookURL == "" {
			log.Warn().Msg("Responder webhook URL is empty, every reply will use the local fallback")
		}
		return responder.NewWebhookClient(cfg.WebhookURL, cfg.Timeout), nil
	case "llm":
		provider, err := router.GetProvider(cfg.Provider)
		if err != nil {
			return nil, fmt.Errorf("failed to select responder provider: %w", err)
		}
		log.Info().Str("provider", provider.Name()).Msg("Replies generated by LLM provider")
		return responder.NewLLMResponder(provider, cfg.Model, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported responder mode: %s", cfg.Mode)
	}
}

// NewChatStore builds a store with no signed-in user
func (a *App) NewChatStore() *service.ChatStore {
	return service.NewChatStore(service.ChatStoreConfig{
		Conversations:  a.Conversations,
		Messages:       a.Messages,
		Storage:        a.Storage,
		Responder:      a.Responder,
		AudioMimeType:  a.Config.Recorder.MimeType,
		AudioExtension: a.Config.Recorder.Extension,
	})
}

// Handler builds the HTTP API around hub
func (a *App) Handler(hub *service.Hub) http.Handler {
	return api.NewRouter(api.Dependencies{
		Config:       a.Config,
		JWT:          a.JWT,
		Auth:         a.Auth,
		Hub:          hub,
		Storage:      a.Storage,
		DB:           a.db,
		LLM:          a.LLM,
		RateLimiter:  a.rateLimiter,
		HistoryCache: a.historyCache,
	})
}

// Close releases backends in reverse order
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
