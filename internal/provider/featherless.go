package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hollowmere/loreforge/internal/prompt"
	"go.uber.org/zap"
)

// FeatherlessProvider generates character responses through a hosted
// OpenAI-compatible chat-completion API with bearer-token auth.
//
// Both clients return typed errors; degradation to an apology message
// is the gateway's job, not the client's.
type FeatherlessProvider struct {
	config  Config
	prompts *prompt.Builder
	client  *http.Client
	logger  *zap.Logger
}

// NewFeatherlessProvider creates a hosted-API provider.
func NewFeatherlessProvider(cfg Config, prompts *prompt.Builder, logger *zap.Logger) *FeatherlessProvider {
	if cfg.ID == "" {
		cfg.ID = ServiceFeatherless
	}
	if cfg.Name == "" {
		cfg.Name = "Featherless"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.featherless.ai/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &FeatherlessProvider{
		config:  cfg,
		prompts: prompts,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

func (p *FeatherlessProvider) ID() string   { return p.config.ID }
func (p *FeatherlessProvider) Name() string { return p.config.Name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	TopP        float64       `json:"top_p"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateCharacterResponse builds the rich structured prompt (campaign
// and world context, GM mode) and sends it as a single chat message.
func (p *FeatherlessProvider) GenerateCharacterResponse(ctx context.Context, req *Request) (*Response, error) {
	built := p.prompts.Build(req.Character, req.UserMessage, req.History, prompt.Options{
		World:    req.World,
		Memories: req.Memories,
	})

	content, err := p.Complete(ctx, "", built, req.Options)
	if err != nil {
		return nil, err
	}
	return &Response{
		Response: content,
		Source:   p.config.ID,
	}, nil
}

// Complete sends an optional system prompt and a user message to the
// chat-completion endpoint and returns the assistant text.
func (p *FeatherlessProvider) Complete(ctx context.Context, system, user string, opts GenerationOptions) (string, error) {
	if p.config.APIKey == "" {
		return "", &ConfigError{Provider: p.config.ID, Reason: "missing API key"}
	}
	opts = opts.withDefaults()

	var msgs []chatMessage
	if system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: user})

	body, err := json.Marshal(chatCompletionRequest{
		Model:       p.config.Model,
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		TopP:        opts.TopP,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.Endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", classifyTransport(p.config.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &UpstreamError{Provider: p.config.ID, Status: resp.StatusCode, Body: string(respBody)}
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", &UpstreamError{Provider: p.config.ID, Status: resp.StatusCode, Body: "empty choices"}
	}

	p.logger.Debug("hosted API responded",
		zap.String("model", p.config.Model),
		zap.Int("chars", len(out.Choices[0].Message.Content)))

	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// HealthCheck treats a configured credential as available. No network
// probe: hosted availability is checked lazily on first call.
func (p *FeatherlessProvider) HealthCheck(_ context.Context) error {
	if p.config.APIKey == "" {
		return &ConfigError{Provider: p.config.ID, Reason: "missing API key"}
	}
	return nil
}
