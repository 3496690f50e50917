package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/rashenal/navigator/pkg/llm"
	"github.com/rashenal/navigator/pkg/logging"
	"github.com/rashenal/navigator/pkg/models"
)

// Strategy is the routing outcome for one request.
type Strategy string

const (
	StrategyCacheHit      Strategy = "cache-hit"
	StrategyLocalModel    Strategy = "local-model"
	StrategyRemoteCheap   Strategy = "remote-cheap"
	StrategyRemotePremium Strategy = "remote-premium"
)

// Tier maps a strategy to the backend tier it consumes.
func (s Strategy) Tier() models.Tier {
	switch s {
	case StrategyLocalModel:
		return models.TierLocal
	case StrategyRemotePremium:
		return models.TierRemotePremium
	default:
		return models.TierRemoteCheap
	}
}

// Decision is ephemeral, produced once per call. Justification is never
// empty; it is the debugging contract for every branch.
type Decision struct {
	Strategy      Strategy `json:"strategy"`
	Justification string   `json:"justification"`
	Confidence    float64  `json:"confidence"`
	EstimatedCost float64  `json:"estimated_cost_usd"`
}

// Metadata is the per-request context the router decides on.
type Metadata struct {
	Operation string
	UserID    string
	Priority  models.Priority
	Category  models.Category
}

// Pricing is USD per 1K tokens, split by direction.
type Pricing struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

// Rates per backend tier. Local inference is free at the margin; remote
// tiers track current list prices for the mapped models.
var tierPricing = map[models.Tier]Pricing{
	models.TierLocal:         {PromptPer1K: 0, CompletionPer1K: 0},
	models.TierRemoteCheap:   {PromptPer1K: 0.00015, CompletionPer1K: 0.0006},
	models.TierRemotePremium: {PromptPer1K: 0.003, CompletionPer1K: 0.015},
}

// expectedCompletionTokens sizes cost estimates when the reply length is
// unknown.
const expectedCompletionTokens = 256

// Cost computes the USD cost of a call at a tier.
func Cost(tier models.Tier, promptTokens, completionTokens int) float64 {
	pricing := tierPricing[tier]
	return float64(promptTokens)/1000*pricing.PromptPer1K +
		float64(completionTokens)/1000*pricing.CompletionPer1K
}

// EstimateCost predicts the cost of routing a prompt to a tier before the
// reply length is known.
func EstimateCost(tier models.Tier, prompt string) float64 {
	return Cost(tier, llm.EstimateTokens(prompt), expectedCompletionTokens)
}

// ConfigSource yields the current optimization config snapshot.
type ConfigSource func() models.OptimizationConfig

// CacheProbe reports whether a cached reply exists for the request without
// serving it.
type CacheProbe func(operation, scope, prompt string, category models.Category, threshold float64) bool

// LocalHealth reports whether the local runtime can take traffic.
type LocalHealth func(ctx context.Context) bool

// SpendReader reads today's accumulated cost from the ledger.
type SpendReader func(ctx context.Context) (float64, error)

// Stats counts routing outcomes for the metrics surface.
type Stats struct {
	Decisions  int64            `json:"decisions"`
	ByStrategy map[string]int64 `json:"by_strategy"`
}

// Router picks a backend per request. All of its inputs are injected reads;
// it owns no state beyond outcome counters.
type Router struct {
	config      ConfigSource
	cacheProbe  CacheProbe
	localHealth LocalHealth
	spendReader SpendReader
	logger      logging.Logger

	mu         sync.Mutex
	decisions  int64
	byStrategy map[Strategy]int64
}

func New(config ConfigSource, cacheProbe CacheProbe, localHealth LocalHealth, spendReader SpendReader, logger logging.Logger) *Router {
	return &Router{
		config:      config,
		cacheProbe:  cacheProbe,
		localHealth: localHealth,
		spendReader: spendReader,
		logger:      logger,
		byStrategy:  make(map[Strategy]int64),
	}
}

// Decide applies the routing rules in fixed order. The first matching rule
// wins. The budget read is best-effort: a ledger error counts as within
// budget because budget enforcement is soft.
func (r *Router) Decide(ctx context.Context, prompt string, meta Metadata) Decision {
	decision := r.decide(ctx, prompt, meta)
	r.count(decision.Strategy)
	r.logger.WithFields(logging.Fields{
		"operation":     meta.Operation,
		"strategy":      string(decision.Strategy),
		"justification": decision.Justification,
	}).Debug("Routing decision")
	return decision
}

// SelfCheck evaluates the decision rules without recording the outcome, so
// health probes never inflate the routing counters. The metadata avoids the
// local-runtime branch; every read the rules perform is side-effect free.
func (r *Router) SelfCheck(ctx context.Context) bool {
	decision := r.decide(ctx, "connectivity check", Metadata{
		Operation: "health_check",
		Priority:  models.PriorityNormal,
		Category:  models.CategoryImportant,
	})
	return decision.Justification != ""
}

func (r *Router) decide(ctx context.Context, prompt string, meta Metadata) Decision {
	cfg := r.config()

	// Rule 1: optimization is opt-in. When disabled, always use the most
	// capable backend.
	if !cfg.EnableOptimization {
		return Decision{
			Strategy:      StrategyRemotePremium,
			Justification: "optimization disabled; defaulting to the most capable backend",
			Confidence:    1.0,
			EstimatedCost: EstimateCost(models.TierRemotePremium, prompt),
		}
	}

	// Rule 2: an existing cached reply wins. The probe enforces the
	// critical-category exact-match restriction itself.
	if cfg.EnableCaching && r.cacheProbe != nil &&
		r.cacheProbe(meta.Operation, Scope(meta.UserID), prompt, meta.Category, cfg.SimilarityThreshold) {
		return Decision{
			Strategy:      StrategyCacheHit,
			Justification: "cached reply available for this prompt",
			Confidence:    0.95,
			EstimatedCost: 0,
		}
	}

	// Rule 3: cheap work goes local when the runtime is up.
	if cfg.EnableLocalModel && r.localHealth != nil && r.localHealth(ctx) &&
		(meta.Category == models.CategoryRoutine || meta.Priority == models.PriorityLow) {
		return Decision{
			Strategy:      StrategyLocalModel,
			Justification: "routine or low-priority request; local runtime healthy",
			Confidence:    0.8,
			EstimatedCost: 0,
		}
	}

	// Rule 4: important work gets the premium backend while budget remains.
	if meta.Category == models.CategoryImportant || meta.Category == models.CategoryCritical {
		if r.withinBudget(ctx, cfg.DailyCostLimit) {
			return Decision{
				Strategy:      StrategyRemotePremium,
				Justification: fmt.Sprintf("%s request within daily budget of $%.2f", meta.Category, cfg.DailyCostLimit),
				Confidence:    0.9,
				EstimatedCost: EstimateCost(models.TierRemotePremium, prompt),
			}
		}
	}

	// Rule 5: balanced default.
	return Decision{
		Strategy:      StrategyRemoteCheap,
		Justification: "no higher-priority rule matched; using the balanced default backend",
		Confidence:    0.7,
		EstimatedCost: EstimateCost(models.TierRemoteCheap, prompt),
	}
}

func (r *Router) withinBudget(ctx context.Context, limit float64) bool {
	if r.spendReader == nil {
		return true
	}
	spent, err := r.spendReader(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("Daily spend read failed; treating as within budget")
		return true
	}
	return spent < limit
}

// Scope picks the cache scope for a caller: per-user when identified,
// global otherwise.
func Scope(userID string) string {
	if userID != "" {
		return userID
	}
	return "global"
}

func (r *Router) count(s Strategy) {
	r.mu.Lock()
	r.decisions++
	r.byStrategy[s]++
	r.mu.Unlock()
}

// Stats snapshots the outcome counters.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{
		Decisions:  r.decisions,
		ByStrategy: make(map[string]int64, len(r.byStrategy)),
	}
	for strategy, count := range r.byStrategy {
		stats.ByStrategy[string(strategy)] = count
	}
	return stats
}
