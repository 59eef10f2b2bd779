package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hollowmere/loreforge/internal/character"
	"github.com/hollowmere/loreforge/internal/imagegen"
	"github.com/hollowmere/loreforge/internal/orchestrator"
	"github.com/hollowmere/loreforge/internal/provider"
	"github.com/hollowmere/loreforge/internal/store"
	"go.uber.org/zap"
)

// Server-side trim limits applied before forwarding to a provider.
const (
	maxSystemPromptChars = 4000
	maxUserMessageChars  = 500
)

// Responder is the slice of the orchestrator the gateway depends on.
type Responder interface {
	GenerateCharacterResponse(ctx context.Context, req *provider.Request) (*provider.Response, error)
	SetPreferredService(id string) bool
	PreferredService() string
}

// Completer proxies a raw system/user prompt pair to the hosted API.
type Completer interface {
	Complete(ctx context.Context, system, user string, opts provider.GenerationOptions) (string, error)
}

// MapGenerator renders a world map and returns its image URL.
type MapGenerator interface {
	GenerateMap(ctx context.Context, req *imagegen.MapRequest) (string, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	orch   Responder
	proxy  Completer
	docs   *store.Store
	images MapGenerator
	logger *zap.Logger
}

// NewHandler creates a new API handler. docs, proxy, and images may be
// nil; the matching routes then answer 503.
func NewHandler(orch Responder, proxy Completer, docs *store.Store, images MapGenerator, logger *zap.Logger) *Handler {
	return &Handler{
		orch:   orch,
		proxy:  proxy,
		docs:   docs,
		images: images,
		logger: logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
	}))

	r.Post("/chat", h.proxyChat)
	r.Post("/generate-map", h.generateMap)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Post("/chat", h.characterChat)
		r.Get("/service", h.getPreferredService)
		r.Post("/service", h.setPreferredService)

		for _, kind := range []string{
			store.KindCharacter, store.KindWorld, store.KindCampaign,
			store.KindMap, store.KindTimeline,
		} {
			h.mountDocuments(r, kind)
		}
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "loreforge"})
}

type proxyChatRequest struct {
	SystemPrompt string `json:"systemPrompt"`
	UserMessage  string `json:"userMessage"`
}

// proxyChat forwards a raw prompt pair to the hosted LLM with
// server-side trimming.
func (h *Handler) proxyChat(w http.ResponseWriter, r *http.Request) {
	if h.proxy == nil {
		writeJSON(w, http.StatusServiceUnavailable, errBody("Chat is not configured."))
		return
	}
	var req proxyChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SystemPrompt == "" || req.UserMessage == "" {
		writeJSON(w, http.StatusBadRequest, errBody("systemPrompt and userMessage are required."))
		return
	}

	system := truncate(req.SystemPrompt, maxSystemPromptChars)
	user := truncate(req.UserMessage, maxUserMessageChars)

	content, err := h.proxy.Complete(r.Context(), system, user, provider.GenerationOptions{})
	if err != nil {
		h.writeAIFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": content})
}

type characterChatRequest struct {
	Character *character.Character       `json:"character"`
	Messages  []character.Message        `json:"messages"`
	World     *character.WorldInfo       `json:"context,omitempty"`
	Options   provider.GenerationOptions `json:"options,omitempty"`
}

// characterChat runs the orchestrated character-response flow. The last
// user message in messages is the current turn; everything before it is
// history.
func (h *Handler) characterChat(w http.ResponseWriter, r *http.Request) {
	var req characterChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid request body"))
		return
	}
	if req.Character == nil || len(req.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, errBody("character and messages are required."))
		return
	}

	last := req.Messages[len(req.Messages)-1]
	if last.Sender != character.SenderUser {
		writeJSON(w, http.StatusBadRequest, errBody("last message must come from the user."))
		return
	}

	resp, err := h.orch.GenerateCharacterResponse(r.Context(), &provider.Request{
		Character:   req.Character,
		UserMessage: truncate(last.Text, maxUserMessageChars),
		History:     req.Messages[:len(req.Messages)-1],
		World:       req.World,
		Options:     req.Options,
	})
	if err != nil {
		h.writeAIFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getPreferredService(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"preferred": h.orch.PreferredService()})
}

type setServiceRequest struct {
	Service string `json:"service"`
}

func (h *Handler) setPreferredService(w http.ResponseWriter, r *http.Request) {
	var req setServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Service == "" {
		writeJSON(w, http.StatusBadRequest, errBody("service is required."))
		return
	}
	if !h.orch.SetPreferredService(req.Service) {
		writeJSON(w, http.StatusBadRequest, errBody("unknown service."))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"preferred": req.Service})
}

func (h *Handler) generateMap(w http.ResponseWriter, r *http.Request) {
	if h.images == nil {
		writeJSON(w, http.StatusServiceUnavailable, errBody("Map generation is not configured."))
		return
	}
	var req imagegen.MapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Environments) == 0 {
		writeJSON(w, http.StatusBadRequest, errBody("environments are required."))
		return
	}

	url, err := h.images.GenerateMap(r.Context(), &req)
	if err != nil {
		h.logger.Error("map generation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errBody("Map generation failed. Please try again."))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"imageUrl": url})
}

// writeAIFailure maps a provider failure onto a gateway status with a
// short, non-technical message. Raw provider errors are log-only.
func (h *Handler) writeAIFailure(w http.ResponseWriter, err error) {
	h.logger.Error("AI call failed", zap.Error(err))

	var timeoutErr *provider.TimeoutError
	var upstreamErr *provider.UpstreamError
	var configErr *provider.ConfigError
	switch {
	case errors.Is(err, orchestrator.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errBody("Too many requests. Please wait a moment."))
	case errors.As(err, &timeoutErr):
		writeJSON(w, http.StatusGatewayTimeout, errBody("The request timed out. Please try again."))
	case errors.As(err, &upstreamErr) && upstreamErr.Status == http.StatusRequestHeaderFieldsTooLarge:
		writeJSON(w, http.StatusRequestHeaderFieldsTooLarge, errBody("Request too large."))
	case errors.As(err, &configErr):
		writeJSON(w, http.StatusInternalServerError, errBody("Chat is not configured."))
	default:
		writeJSON(w, http.StatusInternalServerError, errBody("The character is lost in thought. Please try again."))
	}
}

// truncate cuts s to at most max bytes without splitting a UTF-8 rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
