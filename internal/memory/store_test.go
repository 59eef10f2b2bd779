package memory

import (
	"context"
	"testing"

	"github.com/hollowmere/loreforge/internal/character"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(zap.NewNop())
}

func TestAddDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := s.Add(ctx, "c1", "The player found a sword", "", 0)
	if rec.ID == "" {
		t.Error("record should get a generated id")
	}
	if rec.Type != TypeConversation {
		t.Errorf("default type = %q, want %q", rec.Type, TypeConversation)
	}
	if rec.Importance != DefaultImportance {
		t.Errorf("default importance = %d, want %d", rec.Importance, DefaultImportance)
	}
	if rec.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestAddClampsImportance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if got := s.Add(ctx, "c1", "x", "", 15).Importance; got != 10 {
		t.Errorf("importance 15 clamped to %d, want 10", got)
	}
	if got := s.Add(ctx, "c1", "x", "", -3).Importance; got != 1 {
		t.Errorf("importance -3 clamped to %d, want 1", got)
	}
}

func TestFindRelevantRanking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Add(ctx, "c1", "The player found a sword", "", 0)
	s.Add(ctx, "c1", "The tavern keeper owes a debt", "", 0)

	got := s.FindRelevant(ctx, "c1", "Tell me about the sword", 5)
	if len(got) != 1 {
		t.Fatalf("expected 1 relevant memory, got %d", len(got))
	}
	if got[0].Content != "The player found a sword" {
		t.Errorf("wrong memory ranked first: %q", got[0].Content)
	}
	if got[0].Relevance <= RelevanceFloor || got[0].Relevance > 1 {
		t.Errorf("relevance %f out of range (%f, 1]", got[0].Relevance, RelevanceFloor)
	}
}

func TestFindRelevantNoOverlap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Add(ctx, "c1", "The player found a sword", "", 0)
	got := s.FindRelevant(ctx, "c1", "weather forecast tomorrow", 5)
	if len(got) != 0 {
		t.Errorf("no word overlap should return nothing, got %d", len(got))
	}
}

func TestFindRelevantHonorsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		s.Add(ctx, "c1", "dragon sighting near the dragon peaks", "", 0)
	}
	got := s.FindRelevant(ctx, "c1", "where is the dragon", 3)
	if len(got) != 3 {
		t.Errorf("limit 3 returned %d records", len(got))
	}
}

func TestFindRelevantSortedDescending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Add(ctx, "c1", "dragon", "", 0)
	s.Add(ctx, "c1", "dragon hoard gold", "", 0)

	got := s.FindRelevant(ctx, "c1", "dragon hoard legends", 5)
	for i := 1; i < len(got); i++ {
		if got[i].Relevance > got[i-1].Relevance {
			t.Errorf("results not sorted descending at %d: %f > %f",
				i, got[i].Relevance, got[i-1].Relevance)
		}
	}
}

func TestFindRelevantScopedPerCharacter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Add(ctx, "c1", "The player found a sword", "", 0)
	got := s.FindRelevant(ctx, "c2", "Tell me about the sword", 5)
	if len(got) != 0 {
		t.Errorf("memories must not leak across characters, got %d", len(got))
	}
}

func TestProcessConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.ProcessConversation(ctx, "c1", []character.Message{
		{Sender: character.SenderUser, Text: "Where is the hidden temple?"},
		{Sender: character.SenderCharacter, Text: "Beyond the silver falls."},
	})

	got := s.FindRelevant(ctx, "c1", "tell me about the temple", 5)
	if len(got) != 1 {
		t.Fatalf("expected 1 synthesized memory, got %d", len(got))
	}
	if got[0].Importance != ExchangeImportance {
		t.Errorf("importance = %d, want %d", got[0].Importance, ExchangeImportance)
	}
	if got[0].Type != TypeConversation {
		t.Errorf("type = %q, want %q", got[0].Type, TypeConversation)
	}
}

func TestProcessConversationNoOps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Too short.
	s.ProcessConversation(ctx, "c1", []character.Message{
		{Sender: character.SenderUser, Text: "hello"},
	})
	// Missing character turn.
	s.ProcessConversation(ctx, "c1", []character.Message{
		{Sender: character.SenderUser, Text: "hello there friend"},
		{Sender: character.SenderUser, Text: "anyone home today"},
	})

	s.mu.RLock()
	n := len(s.records["c1"])
	s.mu.RUnlock()
	if n != 0 {
		t.Errorf("no-op cases stored %d memories", n)
	}
}
