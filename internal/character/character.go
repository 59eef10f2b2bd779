package character

// Character is a user-authored persona loaded from the document store.
// The AI core treats it as read-only input.
type Character struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Personality  string           `json:"personality"`
	Background   string           `json:"background"`
	Appearance   string           `json:"appearance"`
	Traits       string           `json:"traits"`
	IsGameMaster bool             `json:"is_game_master,omitempty"`
	Campaign     *CampaignContext `json:"campaign,omitempty"`
}

// CampaignContext situates a character inside an ongoing campaign.
type CampaignContext struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	CurrentScene    string   `json:"current_scene"`
	ImportantEvents []string `json:"important_events,omitempty"`
	OtherCharacters []string `json:"other_characters,omitempty"`
}

// WorldInfo describes the setting a conversation takes place in.
type WorldInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Rules       string `json:"rules"`
	Lore        string `json:"lore"`
}

// Sender values for conversation messages.
const (
	SenderUser      = "user"
	SenderCharacter = "character"
)

// Message is one turn of a conversation, oldest first in a history slice.
// Sender is "user" or "character"; Speaker optionally carries a display
// name for multi-character scenes.
type Message struct {
	Sender  string `json:"sender"`
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
}

// Label returns the display name for a message, falling back to the
// sender role when no speaker name is set.
func (m Message) Label() string {
	if m.Speaker != "" {
		return m.Speaker
	}
	if m.Sender == SenderCharacter {
		return "Character"
	}
	return "User"
}
