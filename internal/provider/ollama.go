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

// OllamaProvider generates character responses from a locally hosted
// model server speaking the Ollama generate API.
type OllamaProvider struct {
	config  Config
	prompts *prompt.Builder
	client  *http.Client
	logger  *zap.Logger
}

// NewOllamaProvider creates a local-model provider.
func NewOllamaProvider(cfg Config, prompts *prompt.Builder, logger *zap.Logger) *OllamaProvider {
	if cfg.ID == "" {
		cfg.ID = ServiceOllama
	}
	if cfg.Name == "" {
		cfg.Name = "Ollama"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:11434"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OllamaProvider{
		config:  cfg,
		prompts: prompts,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

func (p *OllamaProvider) ID() string   { return p.config.ID }
func (p *OllamaProvider) Name() string { return p.config.Name }

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
	TopP        float64 `json:"top_p"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// GenerateCharacterResponse posts one flattened prompt to the local
// generation endpoint.
func (p *OllamaProvider) GenerateCharacterResponse(ctx context.Context, req *Request) (*Response, error) {
	opts := req.Options.withDefaults()
	flat := p.prompts.Optimize(req.Character, prompt.FormatHistory(req.History), req.UserMessage, req.Memories)

	body, err := json.Marshal(ollamaRequest{
		Model:  p.config.Model,
		Prompt: flat,
		Stream: false,
		Options: ollamaOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
			TopP:        opts.TopP,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.Endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(p.config.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &UpstreamError{Provider: p.config.ID, Status: resp.StatusCode, Body: string(respBody)}
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	p.logger.Debug("local model responded",
		zap.String("model", p.config.Model),
		zap.Int("chars", len(out.Response)))

	return &Response{
		Response: strings.TrimSpace(out.Response),
		Source:   p.config.ID,
	}, nil
}

// HealthCheck probes the local server's model list with a short timeout.
func (p *OllamaProvider) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.config.Endpoint+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return classifyTransport(p.config.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return &UpstreamError{Provider: p.config.ID, Status: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}
