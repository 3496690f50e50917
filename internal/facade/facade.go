package facade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rashenal/navigator/internal/cache"
	"github.com/rashenal/navigator/internal/extract"
	"github.com/rashenal/navigator/internal/optimizer"
	"github.com/rashenal/navigator/internal/router"
	"github.com/rashenal/navigator/pkg/llm"
	"github.com/rashenal/navigator/pkg/logging"
	"github.com/rashenal/navigator/pkg/models"
)

const degradedText = "The assistant is temporarily unavailable. Your request was received; please try again shortly."

// Settings is the facade's view of the mutable optimization config. The
// bootstrap owns mutation and persistence; the facade only reads snapshots
// and submits patches.
type Settings interface {
	Current() models.OptimizationConfig
	Apply(ctx context.Context, patch models.OptimizationConfigPatch) (models.OptimizationConfig, error)
}

// LocalBackend is the local runtime's generate surface.
type LocalBackend interface {
	Generate(ctx context.Context, prompt string) (llm.Completion, error)
}

// Recorder is the ledger's write surface.
type Recorder interface {
	Record(ctx context.Context, record models.UsageRecord) error
}

// Decider picks a backend for a request.
type Decider interface {
	Decide(ctx context.Context, prompt string, meta router.Metadata) router.Decision
}

// Metrics carries the optional Prometheus instruments. A nil Metrics
// disables instrumentation.
type Metrics struct {
	Decisions    *prometheus.CounterVec   // strategy, operation
	Tokens       *prometheus.CounterVec   // tier, direction
	Latency      *prometheus.HistogramVec // tier
	CacheLookups *prometheus.CounterVec   // result
	CacheEntries *prometheus.GaugeVec     // scope
}

// Facade is the single entry point every business feature calls. It runs
// the per-request pipeline: optimize, check cache, route, call a backend,
// record usage, store the reply. Component failures degrade the pipeline
// but never fail the caller's request; only backend exhaustion or
// cancellation surface as errors.
type Facade struct {
	settings  Settings
	optimizer *optimizer.Optimizer
	cache     *cache.Cache
	router    Decider
	local     LocalBackend
	cheap     llm.Provider
	premium   llm.Provider
	ledger    Recorder
	logger    logging.Logger
	metrics   *Metrics

	mu            sync.Mutex
	ledgerHealthy bool
}

func New(
	settings Settings,
	opt *optimizer.Optimizer,
	responseCache *cache.Cache,
	decider Decider,
	local LocalBackend,
	cheap llm.Provider,
	premium llm.Provider,
	ledger Recorder,
	logger logging.Logger,
	metrics *Metrics,
) *Facade {
	return &Facade{
		settings:      settings,
		optimizer:     opt,
		cache:         responseCache,
		router:        decider,
		local:         local,
		cheap:         cheap,
		premium:       premium,
		ledger:        ledger,
		logger:        logger,
		metrics:       metrics,
		ledgerHealthy: true,
	}
}

// Complete serves one request end to end. The caller always receives either
// a usable response or a single typed error.
func (f *Facade) Complete(ctx context.Context, req models.CompletionRequest) (resp models.CompletionResponse, err error) {
	start := time.Now()

	if req.Operation == "" || req.Prompt == "" {
		return models.CompletionResponse{}, fmt.Errorf("operation and prompt are required")
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	if req.Category == "" {
		req.Category = models.CategoryRoutine
	}
	if !models.ValidPriority(req.Priority) {
		return models.CompletionResponse{}, fmt.Errorf("unknown priority %q", req.Priority)
	}
	if !models.ValidCategory(req.Category) {
		return models.CompletionResponse{}, fmt.Errorf("unknown category %q", req.Category)
	}

	cfg := f.settings.Current()

	// A panic anywhere in the optimization pipeline must not take down the
	// caller's request; recovery funnels into a direct remote call.
	defer func() {
		if r := recover(); r != nil {
			f.logger.WithField("panic", r).Error("Completion pipeline panicked; falling back to remote backend")
			resp, err = f.panicFallback(ctx, req, cfg, start)
		}
	}()

	prompt := req.Prompt
	var applied []string
	if cfg.EnableOptimization {
		optimized := f.optimizer.Optimize(req.Prompt, req.Operation)
		prompt = optimized.Prompt
		applied = optimized.Applied
	}

	scope := router.Scope(req.UserID)
	decision := f.router.Decide(ctx, prompt, router.Metadata{
		Operation: req.Operation,
		UserID:    req.UserID,
		Priority:  req.Priority,
		Category:  req.Category,
	})
	f.countDecision(decision.Strategy, req.Operation)

	if decision.Strategy == router.StrategyCacheHit {
		if entry, ok := f.cache.Get(req.Operation, scope, prompt, req.Category, cfg.SimilarityThreshold); ok {
			f.countCacheLookup("hit")
			f.record(ctx, req, usageParams{
				prompt:   prompt,
				tier:     entry.Tier,
				tokens:   tokenPair{completion: entry.Tokens},
				cacheHit: true,
				applied:  applied,
				latency:  time.Since(start),
				response: entry.Text,
			})
			reply := extract.Parse(entry.Text)
			return models.CompletionResponse{
				Text:        reply.Text,
				Cached:      true,
				BackendUsed: string(entry.Tier),
				ReplyKind:   reply.Kind,
				Fields:      reply.Fields,
			}, nil
		}
		// The entry was evicted between the routing probe and the read.
		f.countCacheLookup("miss")
		decision = router.Decision{
			Strategy:      router.StrategyRemoteCheap,
			Justification: "cached reply evicted before serving; using the balanced default backend",
			Confidence:    0.7,
		}
	} else {
		f.countCacheLookup("miss")
	}

	completion, tierUsed, retries, callErr := f.callWithRetry(ctx, decision.Strategy.Tier(), prompt)
	if callErr != nil {
		return f.failure(ctx, req, cfg, prompt, tierUsed, retries, applied, start, callErr)
	}

	f.observeBackend(tierUsed, completion, time.Since(start))

	cost := router.Cost(tierUsed, completion.PromptTokens, completion.CompletionTokens)
	f.record(ctx, req, usageParams{
		prompt:     prompt,
		tier:       tierUsed,
		tokens:     tokenPair{prompt: completion.PromptTokens, completion: completion.CompletionTokens},
		applied:    applied,
		latency:    time.Since(start),
		retryCount: retries,
		cost:       cost,
		response:   completion.Text,
	})

	if cfg.EnableCaching {
		f.cache.Put(req.Operation, scope, prompt, cache.Entry{
			Text:    completion.Text,
			Tier:    tierUsed,
			Quality: decision.Confidence,
			Tokens:  completion.TotalTokens(),
			CostUSD: cost,
		})
		f.setCacheGauge()
	}

	reply := extract.Parse(completion.Text)
	return models.CompletionResponse{
		Text:        reply.Text,
		Cached:      false,
		BackendUsed: string(tierUsed),
		ReplyKind:   reply.Kind,
		Fields:      reply.Fields,
	}, nil
}

// callWithRetry calls the chosen tier and, on failure, the alternate tier
// exactly once. It reports the tier that produced the result (or the last
// tier attempted) and how many retries were consumed.
func (f *Facade) callWithRetry(ctx context.Context, tier models.Tier, prompt string) (llm.Completion, models.Tier, int, error) {
	completion, err := f.callTier(ctx, tier, prompt)
	if err == nil {
		return completion, tier, 0, nil
	}
	if ctx.Err() != nil {
		return llm.Completion{}, tier, 0, err
	}

	alternate := alternateTier(tier)
	f.logger.WithError(err).WithFields(logging.Fields{
		"tier":      string(tier),
		"alternate": string(alternate),
	}).Warn("Backend call failed; retrying on alternate tier")

	completion, retryErr := f.callTier(ctx, alternate, prompt)
	if retryErr == nil {
		return completion, alternate, 1, nil
	}
	return llm.Completion{}, alternate, 1, fmt.Errorf("%w (retry after: %v)", retryErr, err)
}

func (f *Facade) callTier(ctx context.Context, tier models.Tier, prompt string) (llm.Completion, error) {
	switch tier {
	case models.TierLocal:
		return f.local.Generate(ctx, prompt)
	case models.TierRemotePremium:
		return f.premium.Complete(ctx, llm.UserMessage(prompt))
	default:
		return f.cheap.Complete(ctx, llm.UserMessage(prompt))
	}
}

// alternateTier picks the single cross-tier retry target: local escalates
// to the cheap remote, the cheap remote escalates to premium, and premium
// de-escalates to cheap.
func alternateTier(tier models.Tier) models.Tier {
	switch tier {
	case models.TierLocal:
		return models.TierRemoteCheap
	case models.TierRemoteCheap:
		return models.TierRemotePremium
	default:
		return models.TierRemoteCheap
	}
}

// failure terminates a request whose backends are exhausted. Cancellation
// wins over every other interpretation; otherwise fallback_enabled decides
// between a degraded reply and a typed error.
func (f *Facade) failure(ctx context.Context, req models.CompletionRequest, cfg models.OptimizationConfig, prompt string, tier models.Tier, retries int, applied []string, start time.Time, callErr error) (models.CompletionResponse, error) {
	cancelled := ctx.Err() != nil

	f.record(ctx, req, usageParams{
		prompt:     prompt,
		tier:       tier,
		applied:    applied,
		latency:    time.Since(start),
		retryCount: retries,
		failed:     true,
	})

	if cancelled {
		return models.CompletionResponse{}, fmt.Errorf("%w: %v", ErrCancelled, callErr)
	}
	if cfg.FallbackEnabled {
		f.logger.WithError(callErr).WithField("operation", req.Operation).Warn("All backends failed; serving degraded response")
		return models.CompletionResponse{
			Text:        degradedText,
			BackendUsed: "none",
			ReplyKind:   models.ReplyUnstructured,
			Degraded:    true,
		}, nil
	}
	return models.CompletionResponse{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, callErr)
}

// panicFallback serves a request whose pipeline panicked by calling the
// cheap remote backend directly, skipping every optimization stage.
func (f *Facade) panicFallback(ctx context.Context, req models.CompletionRequest, cfg models.OptimizationConfig, start time.Time) (models.CompletionResponse, error) {
	completion, err := f.cheap.Complete(ctx, llm.UserMessage(req.Prompt))
	if err != nil {
		return f.failure(ctx, req, cfg, req.Prompt, models.TierRemoteCheap, 0, nil, start, err)
	}

	f.record(ctx, req, usageParams{
		prompt:   req.Prompt,
		tier:     models.TierRemoteCheap,
		tokens:   tokenPair{prompt: completion.PromptTokens, completion: completion.CompletionTokens},
		latency:  time.Since(start),
		cost:     router.Cost(models.TierRemoteCheap, completion.PromptTokens, completion.CompletionTokens),
		response: completion.Text,
	})

	reply := extract.Parse(completion.Text)
	return models.CompletionResponse{
		Text:        reply.Text,
		BackendUsed: string(models.TierRemoteCheap),
		ReplyKind:   reply.Kind,
		Fields:      reply.Fields,
	}, nil
}

type tokenPair struct {
	prompt     int
	completion int
}

type usageParams struct {
	prompt     string
	tier       models.Tier
	tokens     tokenPair
	cacheHit   bool
	applied    []string
	latency    time.Duration
	retryCount int
	cost       float64
	failed     bool
	response   string
}

// record writes the usage record best-effort. A ledger failure flips the
// health flag instead of failing the request. The write survives caller
// cancellation on a bounded detached context.
func (f *Facade) record(ctx context.Context, req models.CompletionRequest, p usageParams) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	err := f.ledger.Record(writeCtx, models.UsageRecord{
		Operation:        req.Operation,
		AgentID:          req.AgentID,
		AgentType:        req.AgentType,
		PromptTokens:     p.tokens.prompt,
		CompletionTokens: p.tokens.completion,
		Tier:             p.tier,
		Category:         req.Category,
		Priority:         req.Priority,
		CacheHit:         p.cacheHit,
		Optimizations:    p.applied,
		LatencyMs:        p.latency.Milliseconds(),
		RetryCount:       p.retryCount,
		UserID:           req.UserID,
		RequestBytes:     len(p.prompt),
		ResponseBytes:    len(p.response),
		CostUSD:          p.cost,
		Failed:           p.failed,
	})

	f.mu.Lock()
	f.ledgerHealthy = err == nil
	f.mu.Unlock()
	if err != nil {
		f.logger.WithError(err).Warn("Usage record write failed")
	}
}

// SetOptimizationEnabled toggles optimization for subsequent calls.
func (f *Facade) SetOptimizationEnabled(ctx context.Context, enabled bool) error {
	_, err := f.settings.Apply(ctx, models.OptimizationConfigPatch{EnableOptimization: &enabled})
	return err
}

// SetFallbackEnabled toggles the degraded-response fallback for subsequent
// calls.
func (f *Facade) SetFallbackEnabled(ctx context.Context, enabled bool) error {
	_, err := f.settings.Apply(ctx, models.OptimizationConfigPatch{FallbackEnabled: &enabled})
	return err
}

// LedgerHealthy reports whether the last usage write succeeded.
func (f *Facade) LedgerHealthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ledgerHealthy
}

func (f *Facade) countDecision(strategy router.Strategy, operation string) {
	if f.metrics == nil || f.metrics.Decisions == nil {
		return
	}
	f.metrics.Decisions.WithLabelValues(string(strategy), operation).Inc()
}

func (f *Facade) countCacheLookup(result string) {
	if f.metrics == nil || f.metrics.CacheLookups == nil {
		return
	}
	f.metrics.CacheLookups.WithLabelValues(result).Inc()
}

func (f *Facade) setCacheGauge() {
	if f.metrics == nil || f.metrics.CacheEntries == nil {
		return
	}
	f.metrics.CacheEntries.WithLabelValues("all").Set(float64(f.cache.Len()))
}

func (f *Facade) observeBackend(tier models.Tier, completion llm.Completion, latency time.Duration) {
	if f.metrics == nil {
		return
	}
	if f.metrics.Tokens != nil {
		f.metrics.Tokens.WithLabelValues(string(tier), "prompt").Add(float64(completion.PromptTokens))
		f.metrics.Tokens.WithLabelValues(string(tier), "completion").Add(float64(completion.CompletionTokens))
	}
	if f.metrics.Latency != nil {
		f.metrics.Latency.WithLabelValues(string(tier)).Observe(latency.Seconds())
	}
}
