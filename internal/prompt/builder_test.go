package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/hollowmere/loreforge/internal/character"
	"github.com/hollowmere/loreforge/internal/token"
)

func elwin() *character.Character {
	return &character.Character{
		ID:          "c1",
		Name:        "Elwin",
		Personality: "gruff",
		Background:  "blacksmith",
	}
}

func TestOptimizeContainsCharacterAndMessage(t *testing.T) {
	b := NewBuilder(0)
	got := b.Optimize(elwin(), "", "Hello", nil)

	for _, want := range []string{"Elwin", "gruff", "blacksmith", "Hello"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
	if !strings.HasSuffix(got, "Elwin:") {
		t.Errorf("prompt should end with the character cue, got:\n%s", got)
	}
}

func TestOptimizeEmptyHistoryOmitsSection(t *testing.T) {
	b := NewBuilder(0)
	got := b.Optimize(elwin(), "", "Hello", nil)
	if strings.Contains(got, "Recent conversation") {
		t.Errorf("empty history should not emit a history section:\n%s", got)
	}
}

func TestOptimizeEmptyFieldsRenderPlaceholder(t *testing.T) {
	b := NewBuilder(0)
	got := b.Optimize(&character.Character{Name: "Mira"}, "", "Hi", nil)
	if strings.Count(got, NotSpecified) < 3 {
		t.Errorf("empty fields should render %q:\n%s", NotSpecified, got)
	}
}

func TestOptimizeHistoryStaysUnderBudget(t *testing.T) {
	const budget = 200
	b := NewBuilder(budget)

	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, fmt.Sprintf("User: this is history line number %d with some padding text", i))
	}
	got := b.Optimize(elwin(), strings.Join(lines, "\n"), "Hello", nil)

	historyTokens := 0
	for _, l := range lines {
		if strings.Contains(got, l) {
			historyTokens += token.Estimate(l)
		}
	}
	if historyTokens >= budget {
		t.Errorf("included history estimates to %d tokens, budget %d", historyTokens, budget)
	}
	// A tight budget must still keep the most recent line.
	if !strings.Contains(got, lines[len(lines)-1]) {
		t.Errorf("most recent history line should survive trimming")
	}
}

func TestOptimizePreservesChronologicalOrder(t *testing.T) {
	b := NewBuilder(0)
	history := "User: first\nElwin: second\nUser: third"
	got := b.Optimize(elwin(), history, "Hello", nil)

	i1 := strings.Index(got, "User: first")
	i2 := strings.Index(got, "Elwin: second")
	i3 := strings.Index(got, "User: third")
	if i1 < 0 || i2 < 0 || i3 < 0 {
		t.Fatalf("all history lines should fit under the default budget:\n%s", got)
	}
	if !(i1 < i2 && i2 < i3) {
		t.Errorf("history out of order: %d, %d, %d", i1, i2, i3)
	}
}

func TestOptimizeDropsOldestFirst(t *testing.T) {
	b := NewBuilder(45)
	history := strings.Join([]string{
		"User: an ancient exchange about the weather in the northern mountains",
		"Elwin: recent remark",
	}, "\n")
	got := b.Optimize(elwin(), history, "Hello", nil)

	if !strings.Contains(got, "recent remark") {
		t.Errorf("recent line should survive trimming:\n%s", got)
	}
	if strings.Contains(got, "ancient exchange") {
		t.Errorf("oldest line should be trimmed first:\n%s", got)
	}
}

func TestOptimizeRendersMemories(t *testing.T) {
	b := NewBuilder(0)
	memories := []string{"User said: who forged this | Character replied: I did"}
	got := b.Optimize(elwin(), "", "Hello", memories)

	if !strings.Contains(got, "Things you remember:") {
		t.Errorf("memories section missing:\n%s", got)
	}
	if !strings.Contains(got, "- User said: who forged this | Character replied: I did") {
		t.Errorf("memory entry missing:\n%s", got)
	}
}

func TestBuildBlockOrder(t *testing.T) {
	b := NewBuilder(0)
	char := elwin()
	char.Campaign = &character.CampaignContext{
		Name:         "Shadows of Vel",
		CurrentScene: "the burning docks",
	}
	world := &character.WorldInfo{Name: "Vel", Lore: "old gods sleep below"}
	history := []character.Message{
		{Sender: character.SenderUser, Text: "What happened here?"},
	}

	got := b.Build(char, "Who did this?", history, Options{
		World:    world,
		Memories: []string{"the docks burned once before"},
	})

	idents := []string{
		"You are roleplaying as Elwin",
		"=== CAMPAIGN ===",
		"=== WORLD ===",
		"=== MEMORIES ===",
		"- the docks burned once before",
		"=== CONVERSATION ===",
		"User: Who did this?",
	}
	last := -1
	for _, s := range idents {
		i := strings.Index(got, s)
		if i < 0 {
			t.Fatalf("prompt missing %q:\n%s", s, got)
		}
		if i < last {
			t.Errorf("%q appears out of order", s)
		}
		last = i
	}
	if !strings.HasSuffix(got, "Elwin:") {
		t.Errorf("prompt should end with the character cue")
	}
}

func TestBuildCampaignDetails(t *testing.T) {
	b := NewBuilder(0)
	char := elwin()
	char.Campaign = &character.CampaignContext{
		Name:            "Shadows of Vel",
		Description:     "a grim campaign",
		CurrentScene:    "the burning docks",
		ImportantEvents: []string{"the king died", "the gate fell"},
		OtherCharacters: []string{"Mira", "Toth"},
	}
	got := b.Build(char, "Hello", nil, Options{})

	for _, want := range []string{
		"Campaign: Shadows of Vel", "Current scene: the burning docks",
		"- the king died", "- the gate fell", "Also present: Mira, Toth",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildGameMasterMode(t *testing.T) {
	b := NewBuilder(0)
	char := elwin()
	char.IsGameMaster = true

	got := b.Build(char, "I open the chest", nil, Options{})

	if !strings.Contains(got, "Game Master") {
		t.Errorf("GM mode should emit a game-master role block:\n%s", got)
	}
	if !strings.Contains(got, "Player: I open the chest") {
		t.Errorf("GM mode should rename the human speaker label:\n%s", got)
	}
	if !strings.HasSuffix(got, "Game Master:") {
		t.Errorf("GM mode should end with the GM cue")
	}
	if strings.Contains(got, "You are roleplaying as Elwin") {
		t.Errorf("GM mode should replace the character-identity block")
	}
}

func TestBuildNoContextNoBlocks(t *testing.T) {
	b := NewBuilder(0)
	got := b.Build(elwin(), "Hello", nil, Options{})
	for _, block := range []string{"=== CAMPAIGN ===", "=== WORLD ===", "=== MEMORIES ==="} {
		if strings.Contains(got, block) {
			t.Errorf("absent context must not emit %s:\n%s", block, got)
		}
	}
}

func TestFormatHistory(t *testing.T) {
	history := []character.Message{
		{Sender: character.SenderUser, Text: "hi"},
		{Sender: character.SenderCharacter, Speaker: "Elwin", Text: "hmph"},
	}
	got := FormatHistory(history)
	want := "User: hi\nElwin: hmph"
	if got != want {
		t.Errorf("FormatHistory = %q, want %q", got, want)
	}
}
