package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/patientsignal/signal-workflows/internal/config"
	"github.com/patientsignal/signal-workflows/internal/logging"
	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/internal/providers/chatgpt"
	"github.com/patientsignal/signal-workflows/internal/providers/claude"
	"github.com/patientsignal/signal-workflows/internal/providers/common"
	"github.com/patientsignal/signal-workflows/internal/providers/gemini"
	"github.com/patientsignal/signal-workflows/internal/providers/perplexity"
)

// ErrPlatformUnavailable means the platform has no usable credential
var ErrPlatformUnavailable = errors.New("platform unavailable")

// Constructor builds a client for a platform from the current config
type Constructor func(cfg *config.Config, cost common.CostCalculator) PlatformClient

var defaultConstructors = map[models.Platform]Constructor{
	models.PlatformChatGPT: func(cfg *config.Config, cost common.CostCalculator) PlatformClient {
		return chatgpt.NewProvider(cfg, cost)
	},
	models.PlatformClaude: func(cfg *config.Config, cost common.CostCalculator) PlatformClient {
		return claude.NewProvider(cfg, cost)
	},
	models.PlatformPerplexity: func(cfg *config.Config, cost common.CostCalculator) PlatformClient {
		return perplexity.NewProvider(cfg, cost)
	},
	models.PlatformGemini: func(cfg *config.Config, cost common.CostCalculator) PlatformClient {
		return gemini.NewProvider(cfg, cost)
	},
}

// Registry resolves platform availability from config on every call and
// routes queries through a per-platform Guard.
type Registry struct {
	cfg          *config.Config
	cost         common.CostCalculator
	constructors map[models.Platform]Constructor
	logger       zerolog.Logger

	mu     sync.Mutex
	guards map[models.Platform]*common.Guard
}

type RegistryOption func(*Registry)

// WithConstructor replaces the client constructor for one platform
func WithConstructor(p models.Platform, c Constructor) RegistryOption {
	return func(r *Registry) {
		r.constructors[p] = c
	}
}

func NewRegistry(cfg *config.Config, cost common.CostCalculator, opts ...RegistryOption) *Registry {
	r := &Registry{
		cfg:          cfg,
		cost:         cost,
		constructors: make(map[models.Platform]Constructor, len(defaultConstructors)),
		logger:       logging.Component("ProviderRegistry"),
		guards:       make(map[models.Platform]*common.Guard),
	}
	for p, c := range defaultConstructors {
		r.constructors[p] = c
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsAvailable checks the platform credential against its minimum length
func (r *Registry) IsAvailable(p models.Platform) bool {
	pc, minLen, ok := platformSettings(r.cfg, p)
	if !ok {
		return false
	}
	return common.KeyUsable(pc.APIKey, minLen)
}

// Status reports availability for every supported platform
func (r *Registry) Status() map[models.Platform]bool {
	out := make(map[models.Platform]bool, len(models.AllPlatforms))
	for _, p := range models.AllPlatforms {
		out[p] = r.IsAvailable(p)
	}
	return out
}

// Available filters requested down to platforms with usable credentials, keeping order.
// An empty request falls back to the configured default platforms.
func (r *Registry) Available(requested []models.Platform) []models.Platform {
	if len(requested) == 0 {
		requested = r.DefaultPlatforms()
	}
	var out []models.Platform
	seen := make(map[models.Platform]bool)
	for _, p := range requested {
		if seen[p] {
			continue
		}
		seen[p] = true
		if r.IsAvailable(p) {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) DefaultPlatforms() []models.Platform {
	var out []models.Platform
	for _, s := range r.cfg.Crawl.DefaultPlatforms {
		if p, ok := models.ParsePlatform(s); ok {
			out = append(out, p)
		} else {
			r.logger.Warn().Str("platform", s).Msg("ignoring unknown default platform")
		}
	}
	return out
}

// Client builds a client for p using the credentials in config right now
func (r *Registry) Client(p models.Platform) (PlatformClient, error) {
	if !r.IsAvailable(p) {
		return nil, fmt.Errorf("%s: %w", p, ErrPlatformUnavailable)
	}
	ctor, ok := r.constructors[p]
	if !ok {
		return nil, fmt.Errorf("unsupported platform: %s", p)
	}
	return ctor(r.cfg, r.cost), nil
}

func (r *Registry) guard(p models.Platform) *common.Guard {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.guards[p]; ok {
		return g
	}
	pc, _, _ := platformSettings(r.cfg, p)
	g := common.NewGuard(strings.ToLower(string(p)), common.GuardOptions{
		RPS:   pc.RPS,
		Burst: pc.Burst,
		Policy: common.RetryPolicy{
			InitialInterval: r.cfg.Crawl.RetryInitial,
			MaxInterval:     r.cfg.Crawl.RetryMaxInterval,
			MaxElapsedTime:  r.cfg.Crawl.RetryMaxElapsed,
			MaxRetries:      4,
		},
	}, r.logger)
	r.guards[p] = g
	return g
}

// Query sends prompt to one platform through its guard
func (r *Registry) Query(ctx context.Context, p models.Platform, prompt string) PlatformResult {
	client, err := r.Client(p)
	if err != nil {
		return PlatformResult{Platform: p, Err: err}
	}
	resp, err := r.guard(p).Do(ctx, func(ctx context.Context) (*common.QueryResponse, error) {
		return client.Query(ctx, prompt)
	})
	return PlatformResult{Platform: p, Model: client.Model(), Response: resp, Err: err}
}

// QueryAllPlatforms fans prompt out to the available subset of platforms with at most
// Crawl.Concurrency calls in flight. Unavailable platforms produce no result.
// Results come back in platform order; one failure never cancels the others.
func (r *Registry) QueryAllPlatforms(ctx context.Context, prompt string, platforms []models.Platform) []PlatformResult {
	available := r.Available(platforms)
	results := make([]PlatformResult, len(available))
	if len(available) == 0 {
		return results
	}

	var g errgroup.Group
	limit := r.cfg.Crawl.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, p := range available {
		g.Go(func() error {
			results[i] = r.Query(ctx, p, prompt)
			if results[i].Err != nil {
				r.logger.Error().Err(results[i].Err).Str("platform", string(p)).Msg("❌ platform query failed")
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func platformSettings(cfg *config.Config, p models.Platform) (config.PlatformConfig, int, bool) {
	if cfg == nil {
		return config.PlatformConfig{}, 0, false
	}
	switch p {
	case models.PlatformChatGPT:
		return cfg.Platforms.ChatGPT, common.MinOpenAIKeyLength, true
	case models.PlatformClaude:
		return cfg.Platforms.Claude, common.MinAnthropicKeyLength, true
	case models.PlatformPerplexity:
		return cfg.Platforms.Perplexity, common.MinPerplexityKeyLength, true
	case models.PlatformGemini:
		return cfg.Platforms.Gemini, common.MinGeminiKeyLength, true
	}
	return config.PlatformConfig{}, 0, false
}
