package bootstrap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rashenal/navigator/internal/cache"
	"github.com/rashenal/navigator/internal/facade"
	"github.com/rashenal/navigator/internal/ledger"
	"github.com/rashenal/navigator/internal/localmodel"
	"github.com/rashenal/navigator/internal/optimizer"
	"github.com/rashenal/navigator/internal/router"
	"github.com/rashenal/navigator/pkg/llm"
	"github.com/rashenal/navigator/pkg/logging"
	"github.com/rashenal/navigator/pkg/models"
)

// Mode is the supervisor's operating state.
type Mode string

const (
	// ModeNormal is full optimization.
	ModeNormal Mode = "normal"
	// ModeDegraded keeps serving with optimization turned off.
	ModeDegraded Mode = "degraded"
	// ModeSafe is the post-reset quarantine: caches cleared, local model
	// off, optimization off, fallback forced on.
	ModeSafe Mode = "safe"
)

// safeCacheSizeLimit is the shrunken cache ceiling applied by an emergency
// reset.
const safeCacheSizeLimit = 100

// safeSimilarityThreshold all but disables near-duplicate serving.
const safeSimilarityThreshold = 0.98

// ConfigStore persists the optimization config.
type ConfigStore interface {
	Load(ctx context.Context) (models.OptimizationConfig, error)
	Save(ctx context.Context, cfg models.OptimizationConfig) error
}

// Deps are the external connections the supervisor assembles components
// from. KafkaPublisher may be nil.
type Deps struct {
	Ledger          *ledger.Ledger
	ConfigStore     ConfigStore
	LocalProvider   llm.Provider
	LocalBaseURL    string
	LocalModel      string
	CheapProvider   llm.Provider
	PremiumProvider llm.Provider
	FacadeMetrics   *facade.Metrics
	Logger          logging.Logger
}

// MetricsReport is the aggregated metrics surface.
type MetricsReport struct {
	Mode            Mode                   `json:"mode"`
	UsageAggregates models.UsageAggregates `json:"usage_aggregates"`
	CacheStats      cache.Stats            `json:"cache_stats"`
	RoutingStats    router.Stats           `json:"routing_stats"`
	LocalRuntime    localmodel.Status      `json:"local_runtime_status"`
	OptimizerStats  optimizer.Stats        `json:"optimizer_stats"`
}

// Supervisor constructs the optimization components in dependency order,
// owns the mutable config, and runs the operating-mode state machine.
type Supervisor struct {
	deps   Deps
	logger logging.Logger

	ledger    *ledger.Ledger
	cache     *cache.Cache
	optimizer *optimizer.Optimizer
	local     *localmodel.Adapter
	router    *router.Router
	facade    *facade.Facade

	mu   sync.RWMutex
	cfg  models.OptimizationConfig
	mode Mode
}

// New wires the component graph. Initialize must run before serving.
func New(deps Deps) *Supervisor {
	s := &Supervisor{
		deps:   deps,
		logger: deps.Logger,
		ledger: deps.Ledger,
		cfg:    models.DefaultOptimizationConfig(),
		mode:   ModeNormal,
	}

	s.optimizer = optimizer.New()
	s.cache = cache.New(s.cfg.CacheSizeLimit)
	s.local = localmodel.New(deps.LocalProvider, deps.LocalBaseURL, deps.LocalModel, deps.Logger)
	s.router = router.New(
		s.Current,
		s.cache.Contains,
		s.local.CheckHealth,
		s.ledger.SpentToday,
		deps.Logger,
	)
	s.facade = facade.New(
		s,
		s.optimizer,
		s.cache,
		s.router,
		s.local,
		deps.CheapProvider,
		deps.PremiumProvider,
		s.ledger,
		deps.Logger,
		deps.FacadeMetrics,
	)
	return s
}

// Initialize loads persisted config, smoke-tests every component and runs
// the warm-up pass. It is also the re-entry point for Reinitialize.
func (s *Supervisor) Initialize(ctx context.Context) models.ServiceHealth {
	cfg, err := s.deps.ConfigStore.Load(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Config store unreachable at boot; starting with defaults")
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.cache.Resize(cfg.CacheSizeLimit)

	health := s.smokeTest(ctx)
	s.warmUp(ctx)

	s.logger.WithFields(logging.Fields{
		"overall":       health.Overall,
		"ledger":        health.Ledger,
		"local_runtime": health.LocalRuntime,
	}).Info("Bootstrap complete")
	return health
}

// smokeTest probes each component with a trivial exercise. Cache and
// optimizer round-trips run against scratch instances and the router check
// bypasses the outcome counters, so repeated status reads leave production
// state and metrics untouched.
func (s *Supervisor) smokeTest(ctx context.Context) models.ServiceHealth {
	health := models.ServiceHealth{CheckedAt: time.Now().UTC()}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	health.Ledger = s.ledger.Ping(pingCtx) == nil
	cancel()

	scratchCache := cache.New(1)
	scratchCache.Put("health_check", cache.ScopeGlobal, "cache round trip", cache.Entry{Text: "ok"})
	_, hit := scratchCache.Get("health_check", cache.ScopeGlobal, "cache round trip", models.CategoryRoutine, 0)
	health.Cache = hit

	optimized := optimizer.New().Optimize("  smoke   probe  ", "health_check")
	health.Optimizer = optimized.Prompt == "smoke probe"

	health.LocalRuntime = s.local.CheckHealth(ctx)

	health.Router = s.router.SelfCheck(ctx)

	health.Facade = s.facade != nil && s.facade.LedgerHealthy()

	health.ComputeOverall()
	return health
}

// warmUpPrompts are the highest-frequency prompts across the business
// features; warming them avoids cold-start misses.
var warmUpPrompts = []struct {
	operation string
	prompt    string
	reply     string
}{
	{"chat_response", "hello", "Hi! How can I help with your job search today?"},
	{"chat_response", "what can you do", "I can parse CVs, score job matches, summarize postings and suggest next steps."},
	{"chat_response", "help", "Ask me about your applications, saved roles or profile."},
}

// warmUp seeds the cache and exercises the optimizer concurrently.
func (s *Supervisor) warmUp(ctx context.Context) {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		seeds := make([]cache.Seed, 0, len(warmUpPrompts))
		for _, w := range warmUpPrompts {
			seeds = append(seeds, cache.Seed{
				Operation: w.operation,
				Scope:     cache.ScopeGlobal,
				Prompt:    w.prompt,
				Fetch: func(context.Context) (cache.Entry, error) {
					return cache.Entry{Text: w.reply, Tier: models.TierLocal}, nil
				},
			})
		}
		return s.cache.Preload(groupCtx, seeds)
	})

	group.Go(func() error {
		samples := []string{
			"Could you please give me a summary of this job posting",
			"  provide a detailed explanation of   the match score  ",
		}
		s.optimizer.BatchOptimize(samples, "warm_up")
		return nil
	})

	if err := group.Wait(); err != nil {
		s.logger.WithError(err).Warn("Warm-up pass incomplete")
	}
}

// Facade returns the request entry point.
func (s *Supervisor) Facade() *facade.Facade {
	return s.facade
}

// Mode returns the current operating mode.
func (s *Supervisor) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Current returns the config snapshot. Implements facade.Settings.
func (s *Supervisor) Current() models.OptimizationConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Apply mutates the config and re-persists it. The in-memory config is
// authoritative even when persistence fails; the failure is reported as
// ErrConfigPersistence and retried implicitly on the next update.
// Implements facade.Settings.
func (s *Supervisor) Apply(ctx context.Context, patch models.OptimizationConfigPatch) (models.OptimizationConfig, error) {
	s.mu.Lock()
	next := patch.Apply(s.cfg)
	if err := validate(next); err != nil {
		s.mu.Unlock()
		return s.cfg, err
	}
	resize := next.CacheSizeLimit != s.cfg.CacheSizeLimit
	s.cfg = next
	s.mu.Unlock()

	if resize {
		s.cache.Resize(next.CacheSizeLimit)
	}

	if err := s.deps.ConfigStore.Save(ctx, next); err != nil {
		s.logger.WithError(err).Warn("Config persistence failed; in-memory config still applies")
		return next, fmt.Errorf("%w: %v", facade.ErrConfigPersistence, err)
	}
	return next, nil
}

func validate(cfg models.OptimizationConfig) error {
	if cfg.DailyCostLimit < 0 {
		return fmt.Errorf("daily_cost_limit must not be negative")
	}
	if cfg.CacheSizeLimit < 1 {
		return fmt.Errorf("cache_size_limit must be at least 1")
	}
	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be within [0, 1]")
	}
	return nil
}

// Status recomputes component health on demand.
func (s *Supervisor) Status(ctx context.Context) models.ServiceHealth {
	return s.smokeTest(ctx)
}

// Metrics aggregates every component's stats. The ledger summary is
// best-effort; a read failure leaves it empty.
func (s *Supervisor) Metrics(ctx context.Context) MetricsReport {
	report := MetricsReport{
		Mode:           s.Mode(),
		CacheStats:     s.cache.Stats(),
		RoutingStats:   s.router.Stats(),
		LocalRuntime:   s.local.Status(),
		OptimizerStats: s.optimizer.Stats(),
	}
	aggregates, err := s.ledger.Summarize(ctx, models.WindowDay)
	if err != nil {
		s.logger.WithError(err).Warn("Usage summary unavailable")
	} else {
		report.UsageAggregates = aggregates
	}
	return report
}

// EmergencyDisableOptimization turns optimization off and nothing else.
// Valid only from normal mode.
func (s *Supervisor) EmergencyDisableOptimization(ctx context.Context) error {
	s.mu.Lock()
	if s.mode != ModeNormal {
		mode := s.mode
		s.mu.Unlock()
		return fmt.Errorf("cannot disable optimization from %s mode", mode)
	}
	s.mode = ModeDegraded
	s.mu.Unlock()

	s.logger.Warn("Emergency: optimization disabled")
	disabled := false
	_, err := s.Apply(ctx, models.OptimizationConfigPatch{EnableOptimization: &disabled})
	return err
}

// EmergencyReset quarantines the optimization layer: caches cleared, local
// model and optimization off, cache ceiling shrunk, similarity threshold
// raised to its safest value, fallback forced on. Valid from normal or
// degraded mode.
func (s *Supervisor) EmergencyReset(ctx context.Context) error {
	s.mu.Lock()
	if s.mode == ModeSafe {
		s.mu.Unlock()
		return fmt.Errorf("already in safe mode")
	}
	s.mode = ModeSafe
	s.mu.Unlock()

	s.logger.Warn("Emergency: full optimization reset")
	s.cache.Flush()

	off := false
	on := true
	limit := safeCacheSizeLimit
	threshold := safeSimilarityThreshold
	_, err := s.Apply(ctx, models.OptimizationConfigPatch{
		EnableLocalModel:    &off,
		EnableOptimization:  &off,
		CacheSizeLimit:      &limit,
		SimilarityThreshold: &threshold,
		FallbackEnabled:     &on,
	})
	return err
}

// Reinitialize clears all caches and re-runs the bootstrap sequence,
// returning the system to normal mode. Valid from any mode.
func (s *Supervisor) Reinitialize(ctx context.Context) models.ServiceHealth {
	s.logger.Info("Reinitializing optimization layer")
	s.cache.Flush()

	s.mu.Lock()
	s.mode = ModeNormal
	s.mu.Unlock()

	return s.Initialize(ctx)
}
