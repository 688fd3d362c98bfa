package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	historyCachePrefix     = "history:"
	historyVersionPrefix   = "historyver:"
	defaultHistoryCacheTTL = 5 * time.Minute
)

// errHistoryChanged aborts a cache fill that raced a write
var errHistoryChanged = errors.New("history changed during read")

// HistoryCache caches a conversation's message history in Redis
type HistoryCache struct {
	client *Client
	ttl    time.Duration
}

// NewHistoryCache creates a new history cache
func NewHistoryCache(client *Client, ttl time.Duration) *HistoryCache {
	if ttl <= 0 {
		ttl = defaultHistoryCacheTTL
	}
	return &HistoryCache{client: client, ttl: ttl}
}

func historyKey(conversationID uuid.UUID) string {
	return historyCachePrefix + conversationID.String()
}

func historyVersionKey(conversationID uuid.UUID) string {
	return historyVersionPrefix + conversationID.String()
}

// Get retrieves cached history; a miss returns nil, nil
func (c *HistoryCache) Get(ctx context.Context, conversationID uuid.UUID) ([]domain.Message, error) {
	data, err := c.client.rdb.Get(ctx, historyKey(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history cache: %w", err)
	}

	var messages []domain.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return messages, nil
}

// Version returns the conversation's write version. A conversation with no
// recent writes has version "".
func (c *HistoryCache) Version(ctx context.Context, conversationID uuid.UUID) (string, error) {
	v, err := c.client.rdb.Get(ctx, historyVersionKey(conversationID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read history version: %w", err)
	}
	return v, nil
}

// SetIfVersion caches history read at version. It reports false without
// writing when a write has moved the version since.
func (c *HistoryCache) SetIfVersion(ctx context.Context, conversationID uuid.UUID, version string, messages []domain.Message) (bool, error) {
	data, err := json.Marshal(messages)
	if err != nil {
		return false, fmt.Errorf("failed to marshal history: %w", err)
	}

	versionKey := historyVersionKey(conversationID)
	err = c.client.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errHistoryChanged
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, historyKey(conversationID), data, c.ttl)
			return nil
		})
		return err
	}, versionKey)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errHistoryChanged), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("failed to write history cache: %w", err)
	}
}

// Invalidate bumps the conversation's write version and drops its cached
// history. The version outlives the cache entry so an in-flight fill sees it.
func (c *HistoryCache) Invalidate(ctx context.Context, conversationID uuid.UUID) error {
	versionKey := historyVersionKey(conversationID)
	_, err := c.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey)
		pipe.Expire(ctx, versionKey, 2*c.ttl)
		pipe.Del(ctx, historyKey(conversationID))
		return nil
	})
	return err
}

// FlushAll removes all cached histories
func (c *HistoryCache) FlushAll(ctx context.Context) (int64, error) {
	pattern := historyCachePrefix + "*"
	var cursor uint64
	var deleted int64

	for {
		keys, nextCursor, err := c.client.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			count, err := c.client.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to delete keys: %w", err)
			}
			deleted += count
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return deleted, nil
}

// CachedMessageRepository serves history reads from Redis and falls through
// to the durable repository on a miss. Writes invalidate the conversation key,
// and a fill whose read overlapped a write is dropped.
type CachedMessageRepository struct {
	next  domain.MessageRepository
	cache *HistoryCache
}

// NewCachedMessageRepository wraps a message repository with the history cache
func NewCachedMessageRepository(next domain.MessageRepository, cache *HistoryCache) *CachedMessageRepository {
	return &CachedMessageRepository{next: next, cache: cache}
}

func (r *CachedMessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]domain.Message, error) {
	cached, err := r.cache.Get(ctx, conversationID)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID.String()).Msg("history cache read failed")
	} else if cached != nil {
		return cached, nil
	}

	version, verr := r.cache.Version(ctx, conversationID)

	messages, err := r.next.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if verr != nil {
		log.Warn().Err(verr).Str("conversation_id", conversationID.String()).Msg("history version read failed, skipping cache fill")
		return messages, nil
	}
	stored, err := r.cache.SetIfVersion(ctx, conversationID, version, messages)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID.String()).Msg("history cache write failed")
	} else if !stored {
		log.Debug().Str("conversation_id", conversationID.String()).Msg("history changed during read, not cached")
	}
	return messages, nil
}

func (r *CachedMessageRepository) Create(ctx context.Context, message *domain.Message) error {
	if err := r.next.Create(ctx, message); err != nil {
		return err
	}
	if err := r.cache.Invalidate(ctx, message.ConversationID); err != nil {
		log.Warn().Err(err).Str("conversation_id", message.ConversationID.String()).Msg("history cache invalidation failed")
	}
	return nil
}
