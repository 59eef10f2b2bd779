package prompt

import (
	"fmt"
	"strings"

	"github.com/hollowmere/loreforge/internal/character"
	"github.com/hollowmere/loreforge/internal/token"
)

// DefaultBudget is the token budget reserved for an assembled prompt.
const DefaultBudget = 1500

// NotSpecified is rendered for empty character fields so the prompt
// structure stays stable for the model.
const NotSpecified = "Not specified"

// Options carries optional context injected into the rich prompt variant.
// Memories are recalled memory texts, most relevant first.
type Options struct {
	World    *character.WorldInfo
	Memories []string
}

// Builder assembles role-play prompts under a token budget.
type Builder struct {
	budget int
}

// NewBuilder creates a Builder. A non-positive budget falls back to
// DefaultBudget.
func NewBuilder(budget int) *Builder {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Builder{budget: budget}
}

// Budget returns the configured token budget.
func (b *Builder) Budget() int { return b.budget }

// Optimize assembles the flat prompt variant used by the local model:
// identity preamble, recalled memories, budget-trimmed history, the
// current user message, and a closing in-character cue ending with the
// character's name. Memories count against the budget before history.
func (b *Builder) Optimize(char *character.Character, historyText, userMessage string, memories []string) string {
	if char == nil {
		char = &character.Character{}
	}
	name := characterName(char)

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are roleplaying as %s.\n", name)
	fmt.Fprintf(&sb, "Personality: %s\n", orNotSpecified(char.Personality))
	fmt.Fprintf(&sb, "Background: %s\n", orNotSpecified(char.Background))
	fmt.Fprintf(&sb, "Traits: %s\n", orNotSpecified(char.Traits))

	if len(memories) > 0 {
		sb.WriteString("\nThings you remember:\n")
		for _, m := range memories {
			fmt.Fprintf(&sb, "- %s\n", m)
		}
	}

	used := token.Estimate(sb.String()) + token.Estimate(userMessage)
	kept := b.selectRecent(splitLines(historyText), used)
	if len(kept) > 0 {
		sb.WriteString("\nRecent conversation:\n")
		for _, line := range kept {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}

	fmt.Fprintf(&sb, "\nUser: %s\n", userMessage)
	fmt.Fprintf(&sb, "\nStay in character and reply as %s would.\n%s:", name, name)
	return sb.String()
}

// Build assembles the rich prompt variant: instructions, then campaign
// context, then world context, then recalled memories, then trimmed
// conversation history, then the current turn. Campaign context comes
// from the character itself; world context and memories from opts.
func (b *Builder) Build(char *character.Character, userMessage string, history []character.Message, opts Options) string {
	if char == nil {
		char = &character.Character{}
	}
	name := characterName(char)
	playerLabel := "User"
	if char.IsGameMaster {
		name = "Game Master"
		playerLabel = "Player"
	}

	var sb strings.Builder
	b.writeInstructions(&sb, char, name)
	writeCampaign(&sb, char.Campaign)
	writeWorld(&sb, opts.World)
	writeMemories(&sb, opts.Memories)

	turn := fmt.Sprintf("\n%s: %s\n\n%s:", playerLabel, userMessage, name)

	used := token.Estimate(sb.String()) + token.Estimate(turn)
	kept := b.selectRecent(historyLines(history), used)
	if len(kept) > 0 {
		sb.WriteString("\n=== CONVERSATION ===\n")
		for _, line := range kept {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}

	sb.WriteString(turn)
	return sb.String()
}

func (b *Builder) writeInstructions(sb *strings.Builder, char *character.Character, name string) {
	if char.IsGameMaster {
		sb.WriteString("You are the Game Master of this adventure.\n")
		sb.WriteString("Narrate scenes vividly, voice the non-player characters, and keep the story moving.\n")
		fmt.Fprintf(sb, "Style notes: %s\n", orNotSpecified(char.Personality))
		return
	}
	fmt.Fprintf(sb, "You are roleplaying as %s. Never break character.\n", name)
	fmt.Fprintf(sb, "Personality: %s\n", orNotSpecified(char.Personality))
	fmt.Fprintf(sb, "Background: %s\n", orNotSpecified(char.Background))
	fmt.Fprintf(sb, "Appearance: %s\n", orNotSpecified(char.Appearance))
	fmt.Fprintf(sb, "Traits: %s\n", orNotSpecified(char.Traits))
}

func writeCampaign(sb *strings.Builder, camp *character.CampaignContext) {
	if camp == nil {
		return
	}
	sb.WriteString("\n=== CAMPAIGN ===\n")
	fmt.Fprintf(sb, "Campaign: %s\n", orNotSpecified(camp.Name))
	fmt.Fprintf(sb, "Description: %s\n", orNotSpecified(camp.Description))
	fmt.Fprintf(sb, "Current scene: %s\n", orNotSpecified(camp.CurrentScene))
	if len(camp.ImportantEvents) > 0 {
		sb.WriteString("Important events:\n")
		for _, e := range camp.ImportantEvents {
			fmt.Fprintf(sb, "- %s\n", e)
		}
	}
	if len(camp.OtherCharacters) > 0 {
		fmt.Fprintf(sb, "Also present: %s\n", strings.Join(camp.OtherCharacters, ", "))
	}
}

func writeWorld(sb *strings.Builder, w *character.WorldInfo) {
	if w == nil {
		return
	}
	sb.WriteString("\n=== WORLD ===\n")
	fmt.Fprintf(sb, "World: %s\n", orNotSpecified(w.Name))
	fmt.Fprintf(sb, "Description: %s\n", orNotSpecified(w.Description))
	fmt.Fprintf(sb, "Rules: %s\n", orNotSpecified(w.Rules))
	fmt.Fprintf(sb, "Lore: %s\n", orNotSpecified(w.Lore))
}

func writeMemories(sb *strings.Builder, memories []string) {
	if len(memories) == 0 {
		return
	}
	sb.WriteString("\n=== MEMORIES ===\n")
	sb.WriteString("Things this character remembers:\n")
	for _, m := range memories {
		fmt.Fprintf(sb, "- %s\n", m)
	}
}

// selectRecent scans history units newest-first, keeping each unit that
// still fits under the budget, then returns the kept units back in
// chronological order.
func (b *Builder) selectRecent(units []string, used int) []string {
	var kept []string
	for i := len(units) - 1; i >= 0; i-- {
		cost := token.Estimate(units[i])
		if used+cost >= b.budget {
			break
		}
		used += cost
		kept = append(kept, units[i])
	}
	// kept is newest-first; flip back to conversation order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

// FormatHistory renders a conversation as "Speaker: text" lines, one
// message per line, oldest first.
func FormatHistory(history []character.Message) string {
	return strings.Join(historyLines(history), "\n")
}

func historyLines(history []character.Message) []string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", m.Label(), m.Text))
	}
	return lines
}

func splitLines(text string) []string {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func characterName(char *character.Character) string {
	if strings.TrimSpace(char.Name) == "" {
		return "the character"
	}
	return char.Name
}

func orNotSpecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotSpecified
	}
	return s
}
