package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hollowmere/loreforge/internal/character"
	"go.uber.org/zap"
)

// Store is the in-process memory backend: an append-only per-character
// log guarded by a mutex. State does not survive a restart.
type Store struct {
	records map[string][]*Record // characterID -> chronological log
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewStore creates an empty in-process memory store.
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		records: make(map[string][]*Record),
		logger:  logger,
	}
}

// Add appends a memory for a character. Empty kind defaults to
// "conversation"; importance is clamped to [1, 10] (0 means default).
func (s *Store) Add(_ context.Context, characterID, content, kind string, importance int) *Record {
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

	s.mu.Lock()
	s.records[characterID] = append(s.records[characterID], rec)
	s.mu.Unlock()

	s.logger.Debug("memory stored",
		zap.String("character", characterID),
		zap.String("type", rec.Type),
		zap.Int("importance", rec.Importance))
	return rec
}

// FindRelevant returns up to limit memories for the character, most
// relevant first. Memories belong to exactly one character; there is no
// cross-character lookup.
func (s *Store) FindRelevant(_ context.Context, characterID, contextText string, limit int) []*Record {
	s.mu.RLock()
	records := s.records[characterID]
	s.mu.RUnlock()

	return rankRelevant(records, contextText, limit)
}

// ProcessConversation stores one synthesized memory for the first
// user/character exchange in messages. No-op when either side is absent.
func (s *Store) ProcessConversation(ctx context.Context, characterID string, messages []character.Message) {
	content, ok := summarizeExchange(messages)
	if !ok {
		return
	}
	s.Add(ctx, characterID, content, TypeConversation, ExchangeImportance)
}
