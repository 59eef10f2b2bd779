package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hollowmere/loreforge/internal/character"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "loreforge:memory:"

// RedisStore is the Redis memory backend: one list per character,
// appended on the right so chronological order matches the in-process
// store. Relevance scoring still happens in-process.
type RedisStore struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string, logger *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{rdb: rdb, logger: logger}, nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests.
func NewRedisStoreWithClient(rdb *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, logger: logger}
}

// Close shuts down the Redis connection.
func (s *RedisStore) Close() error { return s.rdb.Close() }

// Add appends a memory to the character's list. A Redis failure is
// logged and the record is still returned to the caller.
func (s *RedisStore) Add(ctx context.Context, characterID, content, kind string, importance int) *Record {
	if kind == "" {
		kind = TypeConversation
	}
	rec := &Record{
		ID:          uuid.New().String(),
		CharacterID: characterID,
		Content:     content,
		Type:        kind,
		Importance:  clampImportance(importance),
		Timestamp:   time.Now(),
	}

	data, err := json.Marshal(rec)
	if err == nil {
		err = s.rdb.RPush(ctx, keyPrefix+characterID, data).Err()
	}
	if err != nil {
		s.logger.Warn("memory append failed",
			zap.String("character", characterID), zap.Error(err))
	}
	return rec
}

// FindRelevant loads the character's log and ranks it in-process.
// Redis failures surface as empty results.
func (s *RedisStore) FindRelevant(ctx context.Context, characterID, contextText string, limit int) []*Record {
	raw, err := s.rdb.LRange(ctx, keyPrefix+characterID, 0, -1).Result()
	if err != nil {
		s.logger.Warn("memory load failed",
			zap.String("character", characterID), zap.Error(err))
		return nil
	}

	records := make([]*Record, 0, len(raw))
	for _, item := range raw {
		var rec Record
		if json.Unmarshal([]byte(item), &rec) != nil {
			continue
		}
		records = append(records, &rec)
	}
	return rankRelevant(records, contextText, limit)
}

// ProcessConversation stores one synthesized memory for the first
// user/character exchange in messages. No-op when either side is absent.
func (s *RedisStore) ProcessConversation(ctx context.Context, characterID string, messages []character.Message) {
	content, ok := summarizeExchange(messages)
	if !ok {
		return
	}
	s.Add(ctx, characterID, content, TypeConversation, ExchangeImportance)
}
