package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hollowmere/loreforge/internal/retry"
	"go.uber.org/zap"
)

// DefaultPollInterval is how often a pending prediction is re-checked.
const DefaultPollInterval = 2 * time.Second

// Environment is a map node the user wants drawn.
type Environment struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Connection links two environments on the map.
type Connection struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// MapRequest describes the world map to render.
type MapRequest struct {
	Environments []Environment `json:"environments"`
	Connections  []Connection  `json:"connections"`
}

// Client talks to a prediction-style image generation API: create a
// prediction, then poll its status until a terminal state.
type Client struct {
	endpoint string
	token    string
	interval time.Duration
	client   *http.Client
	logger   *zap.Logger
}

// New creates an image generation client.
func New(endpoint, token string, interval time.Duration, logger *zap.Logger) *Client {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Client{
		endpoint: endpoint,
		token:    token,
		interval: interval,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

type prediction struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Output []string `json:"output"`
	Error  string   `json:"error"`
}

// GenerateMap renders a map image for the given environments and
// returns its URL. It blocks until the prediction reaches a terminal
// state or ctx is cancelled.
func (c *Client) GenerateMap(ctx context.Context, req *MapRequest) (string, error) {
	if c.token == "" {
		return "", fmt.Errorf("image generation not configured: missing token")
	}

	var created prediction
	err := retry.Do(ctx, retry.DefaultConfig, func() error {
		var createErr error
		created, createErr = c.createPrediction(ctx, mapPrompt(req))
		return createErr
	})
	if err != nil {
		return "", fmt.Errorf("create prediction: %w", err)
	}

	c.logger.Info("map prediction started", zap.String("id", created.ID))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		p, err := c.getPrediction(ctx, created.ID)
		if err != nil {
			return "", fmt.Errorf("poll prediction: %w", err)
		}
		switch p.Status {
		case "succeeded":
			if len(p.Output) == 0 {
				return "", fmt.Errorf("prediction succeeded with no output")
			}
			return p.Output[len(p.Output)-1], nil
		case "failed", "canceled":
			return "", fmt.Errorf("map generation failed")
		}
	}
}

func (c *Client) createPrediction(ctx context.Context, promptText string) (prediction, error) {
	body, err := json.Marshal(map[string]any{
		"input": map[string]any{"prompt": promptText},
	})
	if err != nil {
		return prediction{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/predictions", bytes.NewReader(body))
	if err != nil {
		return prediction{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return prediction{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return prediction{}, fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var p prediction
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return prediction{}, err
	}
	return p, nil
}

func (c *Client) getPrediction(ctx context.Context, id string) (prediction, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint+"/predictions/"+id, nil)
	if err != nil {
		return prediction{}, err
	}
	httpReq.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return prediction{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return prediction{}, fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var p prediction
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return prediction{}, err
	}
	return p, nil
}

// mapPrompt flattens the map request into one drawing instruction.
func mapPrompt(req *MapRequest) string {
	var sb strings.Builder
	sb.WriteString("A hand-drawn fantasy world map featuring: ")
	for i, e := range req.Environments {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(e.Name)
		if e.Description != "" {
			sb.WriteString(" (" + e.Description + ")")
		}
	}
	if len(req.Connections) > 0 {
		sb.WriteString(". Paths: ")
		for i, conn := range req.Connections {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(conn.From + " to " + conn.To)
		}
	}
	return sb.String()
}
