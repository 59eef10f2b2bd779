package provider

import (
	"context"
	"time"

	"github.com/hollowmere/loreforge/internal/character"
)

// Known provider service identifiers.
const (
	ServiceOllama      = "ollama"
	ServiceFeatherless = "featherless"
)

// Provider is an interchangeable backend capable of producing a
// character's in-character response from a prompt.
type Provider interface {
	ID() string
	Name() string
	GenerateCharacterResponse(ctx context.Context, req *Request) (*Response, error)
	HealthCheck(ctx context.Context) error
}

// Request carries everything needed to generate one character response.
// Memories holds recalled memory texts, most relevant first; the
// orchestrator fills it before dispatch.
type Request struct {
	Character   *character.Character `json:"character"`
	UserMessage string               `json:"user_message"`
	History     []character.Message  `json:"history,omitempty"`
	World       *character.WorldInfo `json:"world,omitempty"`
	Memories    []string             `json:"memories,omitempty"`
	Options     GenerationOptions    `json:"options,omitempty"`
}

// GenerationOptions tune sampling. Zero values mean "use defaults".
type GenerationOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

// Sampling defaults shared by both clients.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500
	DefaultTopP        = 0.9
)

// withDefaults fills in zero-valued options.
func (o GenerationOptions) withDefaults() GenerationOptions {
	if o.Temperature == 0 {
		o.Temperature = DefaultTemperature
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.TopP == 0 {
		o.TopP = DefaultTopP
	}
	return o
}

// Response is a generated character reply. Source names the backend
// that actually answered so callers can observe fallback.
type Response struct {
	Response string `json:"response"`
	Source   string `json:"source"`
}

// Config holds configuration for a provider instance.
type Config struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Endpoint string        `json:"endpoint"`
	APIKey   string        `json:"api_key"`
	Model    string        `json:"model"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}
