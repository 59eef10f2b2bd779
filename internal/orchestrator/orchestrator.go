package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hollowmere/loreforge/internal/character"
	"github.com/hollowmere/loreforge/internal/memory"
	"github.com/hollowmere/loreforge/internal/provider"
	"github.com/hollowmere/loreforge/internal/ratelimit"
	"go.uber.org/zap"
)

// EnvProduction is the environment name that disables fallback unless
// explicitly overridden.
const EnvProduction = "production"

// ErrRateLimited is returned when the outbound call budget is exhausted.
var ErrRateLimited = errors.New("AI request limit reached, try again shortly")

// Config is the explicit orchestration policy, passed at construction
// instead of read from ambient environment state.
type Config struct {
	Environment      string `json:"environment"`
	PreferredService string `json:"preferred_service"`
	AllowFallback    bool   `json:"allow_fallback"`
}

// Orchestrator selects among registered providers, executes character
// response calls, and falls back to the alternate backend under policy.
// Preference and the rate-limit window are the only mutable state and
// both are instance-scoped.
type Orchestrator struct {
	cfg       Config
	providers map[string]provider.Provider
	order     []string // registration order, used to pick the alternate
	preferred string
	limiter   *ratelimit.Limiter
	memories  memory.Service
	mu        sync.RWMutex
	logger    *zap.Logger
}

// New creates an Orchestrator. When cfg.PreferredService is empty the
// preference defaults from the environment: production prefers the
// hosted API, everything else the local model.
func New(cfg Config, limiter *ratelimit.Limiter, memories memory.Service, logger *zap.Logger) *Orchestrator {
	preferred := cfg.PreferredService
	if preferred == "" {
		if cfg.Environment == EnvProduction {
			preferred = provider.ServiceFeatherless
		} else {
			preferred = provider.ServiceOllama
		}
	}
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.DefaultMaxCalls, ratelimit.DefaultWindow)
	}
	return &Orchestrator{
		cfg:       cfg,
		providers: make(map[string]provider.Provider),
		preferred: preferred,
		limiter:   limiter,
		memories:  memories,
		logger:    logger,
	}
}

// Register adds a provider implementation.
func (o *Orchestrator) Register(p provider.Provider) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.providers[p.ID()]; !exists {
		o.order = append(o.order, p.ID())
	}
	o.providers[p.ID()] = p
	o.logger.Info("registered provider",
		zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// PreferredService returns the currently preferred provider id.
func (o *Orchestrator) PreferredService() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.preferred
}

// SetPreferredService switches the preferred provider. Unknown ids are
// rejected and the preference is left unchanged.
func (o *Orchestrator) SetPreferredService(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.providers[id]; !ok {
		o.logger.Warn("ignoring unknown preferred service", zap.String("id", id))
		return false
	}
	o.preferred = id
	o.logger.Info("preferred service changed", zap.String("id", id))
	return true
}

// GenerateCharacterResponse executes one character response call: rate
// gate, memory recall for the current turn, preferred provider, then at
// most one fallback attempt when policy allows. On success the exchange
// is folded into the character's memory and the provider's result is
// returned verbatim.
func (o *Orchestrator) GenerateCharacterResponse(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if !o.limiter.Allow() {
		return nil, ErrRateLimited
	}
	o.limiter.Record()

	primary, alternate := o.pick()
	if primary == nil {
		return nil, fmt.Errorf("no provider registered for %q", o.PreferredService())
	}

	o.recall(ctx, req)

	resp, err := primary.GenerateCharacterResponse(ctx, req)
	if err != nil {
		if !o.fallbackAllowed() || alternate == nil {
			return nil, err
		}
		o.logger.Warn("preferred provider failed, falling back",
			zap.String("preferred", primary.ID()),
			zap.String("fallback", alternate.ID()),
			zap.Error(err))

		fbResp, fbErr := alternate.GenerateCharacterResponse(ctx, req)
		if fbErr != nil {
			return nil, &provider.BothFailedError{Primary: err, Fallback: fbErr}
		}
		resp = fbResp
	}

	o.remember(ctx, req, resp)
	return resp, nil
}

// IsServiceAvailable probes a provider's availability. The local model
// answers a list-models call; the hosted API only checks its credential.
func (o *Orchestrator) IsServiceAvailable(ctx context.Context, id string) bool {
	o.mu.RLock()
	p, ok := o.providers[id]
	o.mu.RUnlock()
	if !ok {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.HealthCheck(ctx) == nil
}

// Initialize verifies the preferred provider and switches preference to
// a reachable alternate when the preferred one is down.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	preferred := o.PreferredService()
	if o.IsServiceAvailable(ctx, preferred) {
		o.logger.Info("AI service ready", zap.String("service", preferred))
		return nil
	}

	o.mu.RLock()
	order := append([]string(nil), o.order...)
	o.mu.RUnlock()

	for _, id := range order {
		if id == preferred {
			continue
		}
		if o.IsServiceAvailable(ctx, id) {
			o.SetPreferredService(id)
			o.logger.Warn("preferred AI service unavailable, switched",
				zap.String("from", preferred), zap.String("to", id))
			return nil
		}
	}
	return fmt.Errorf("no AI service available (preferred %q)", preferred)
}

// pick returns the preferred provider and the first registered
// alternate under the read lock.
func (o *Orchestrator) pick() (primary, alternate provider.Provider) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	primary = o.providers[o.preferred]
	for _, id := range o.order {
		if id != o.preferred {
			alternate = o.providers[id]
			break
		}
	}
	return primary, alternate
}

func (o *Orchestrator) fallbackAllowed() bool {
	return o.cfg.AllowFallback || o.cfg.Environment != EnvProduction
}

// recall fills req.Memories with the memories most relevant to the
// current turn. Callers that already supplied memories are left alone.
func (o *Orchestrator) recall(ctx context.Context, req *provider.Request) {
	if o.memories == nil || req.Character == nil || req.Character.ID == "" || len(req.Memories) > 0 {
		return
	}
	for _, rec := range o.memories.FindRelevant(ctx, req.Character.ID, req.UserMessage, 0) {
		req.Memories = append(req.Memories, rec.Content)
	}
}

// remember folds the completed exchange into the character's memory.
// Memory never fails outward, so this cannot affect the response.
func (o *Orchestrator) remember(ctx context.Context, req *provider.Request, resp *provider.Response) {
	if o.memories == nil || req.Character == nil || req.Character.ID == "" {
		return
	}
	o.memories.ProcessConversation(ctx, req.Character.ID, []character.Message{
		{Sender: character.SenderUser, Text: req.UserMessage},
		{Sender: character.SenderCharacter, Speaker: req.Character.Name, Text: resp.Response},
	})
}
