package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/hollowmere/loreforge/internal/character"
)

// Default values applied when Add is called with zero parameters.
const (
	TypeConversation   = "conversation"
	DefaultImportance  = 5
	ExchangeImportance = 4
	DefaultLimit       = 5

	// RelevanceFloor filters out memories with too little word overlap.
	RelevanceFloor = 0.1

	// minWordLen: shorter context words are too common to signal relevance.
	minWordLen = 4
)

// Record is one stored memory, scoped to a single character.
type Record struct {
	ID          string    `json:"id"`
	CharacterID string    `json:"character_id"`
	Content     string    `json:"content"`
	Type        string    `json:"type"`
	Importance  int       `json:"importance"`
	Timestamp   time.Time `json:"timestamp"`
	Relevance   float64   `json:"relevance,omitempty"`
}

// Service is the memory capability the orchestrator depends on.
// Implementations never fail outward: internal errors are logged and
// surface as empty results.
type Service interface {
	Add(ctx context.Context, characterID, content, kind string, importance int) *Record
	FindRelevant(ctx context.Context, characterID, contextText string, limit int) []*Record
	ProcessConversation(ctx context.Context, characterID string, messages []character.Message)
}

// wordSet tokenizes text into a lowercase set, splitting on anything
// that is not a letter, digit, or underscore.
func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range splitWords(text) {
		set[w] = struct{}{}
	}
	return set
}

func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	})
}

// relevance scores a memory against context words as the fraction of
// significant context words that literally appear in the memory.
// The result is always in [0, 1]. No stemming, no embeddings.
func relevance(contextWords []string, memoryWords map[string]struct{}) float64 {
	if len(contextWords) == 0 {
		return 0
	}
	matches := 0
	for _, w := range contextWords {
		if _, ok := memoryWords[w]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(contextWords))
}

// significantWords keeps context words long enough to carry meaning.
func significantWords(text string) []string {
	var out []string
	for _, w := range splitWords(text) {
		if len(w) >= minWordLen {
			out = append(out, w)
		}
	}
	return out
}

// rankRelevant scores, filters, sorts, and truncates records for a
// context query. Shared by all Service implementations.
func rankRelevant(records []*Record, contextText string, limit int) []*Record {
	if limit <= 0 {
		limit = DefaultLimit
	}
	ctxWords := significantWords(contextText)

	var ranked []*Record
	for _, r := range records {
		score := relevance(ctxWords, wordSet(r.Content))
		if score <= RelevanceFloor {
			continue
		}
		scored := *r
		scored.Relevance = score
		ranked = append(ranked, &scored)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Relevance > ranked[j].Relevance
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// summarizeExchange combines the first user turn and the first character
// turn into one memory body. ok is false when either side is missing.
func summarizeExchange(messages []character.Message) (string, bool) {
	if len(messages) < 2 {
		return "", false
	}
	var userText, charText string
	var haveUser, haveChar bool
	for _, m := range messages {
		switch m.Sender {
		case character.SenderUser:
			if !haveUser {
				userText = m.Text
				haveUser = true
			}
		case character.SenderCharacter:
			if !haveChar {
				charText = m.Text
				haveChar = true
			}
		}
	}
	if !haveUser || !haveChar {
		return "", false
	}
	return "User said: " + userText + " | Character replied: " + charText, true
}

func clampImportance(importance int) int {
	if importance == 0 {
		return DefaultImportance
	}
	if importance < 1 {
		return 1
	}
	if importance > 10 {
		return 10
	}
	return importance
}
