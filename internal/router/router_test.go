package router

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rashenal/navigator/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type fixture struct {
	config      models.OptimizationConfig
	cacheHit    bool
	localUp     bool
	spent       float64
	spendErr    error
	probeCalled bool
}

func (f *fixture) router() *Router {
	return New(
		func() models.OptimizationConfig { return f.config },
		func(operation, scope, prompt string, category models.Category, threshold float64) bool {
			f.probeCalled = true
			return f.cacheHit
		},
		func(ctx context.Context) bool { return f.localUp },
		func(ctx context.Context) (float64, error) { return f.spent, f.spendErr },
		testLogger(),
	)
}

func defaults() models.OptimizationConfig {
	return models.DefaultOptimizationConfig()
}

func TestOptimizationDisabledAlwaysPremium(t *testing.T) {
	f := &fixture{config: defaults(), cacheHit: true, localUp: true}
	f.config.EnableOptimization = false

	// Premium regardless of every other input.
	for _, meta := range []Metadata{
		{Operation: "chat_response", Priority: models.PriorityLow, Category: models.CategoryRoutine},
		{Operation: "score_match", Priority: models.PriorityHigh, Category: models.CategoryCritical},
	} {
		decision := f.router().Decide(context.Background(), "any prompt", meta)
		assert.Equal(t, StrategyRemotePremium, decision.Strategy)
		assert.NotEmpty(t, decision.Justification)
		assert.Equal(t, 1.0, decision.Confidence)
	}
	assert.False(t, f.probeCalled, "disabled optimization must not consult the cache")
}

func TestCacheHitWins(t *testing.T) {
	f := &fixture{config: defaults(), cacheHit: true, localUp: true}

	decision := f.router().Decide(context.Background(), "hello", Metadata{
		Operation: "chat_response",
		Priority:  models.PriorityNormal,
		Category:  models.CategoryRoutine,
	})
	assert.Equal(t, StrategyCacheHit, decision.Strategy)
	assert.Zero(t, decision.EstimatedCost)
	assert.NotEmpty(t, decision.Justification)
}

func TestCachingDisabledSkipsProbe(t *testing.T) {
	f := &fixture{config: defaults(), cacheHit: true, localUp: true}
	f.config.EnableCaching = false

	decision := f.router().Decide(context.Background(), "hello", Metadata{
		Operation: "chat_response",
		Priority:  models.PriorityLow,
		Category:  models.CategoryRoutine,
	})
	assert.False(t, f.probeCalled)
	assert.Equal(t, StrategyLocalModel, decision.Strategy)
}

func TestRoutineLowGoesLocal(t *testing.T) {
	f := &fixture{config: defaults(), localUp: true}

	decision := f.router().Decide(context.Background(), "hello", Metadata{
		Operation: "chat_response",
		Priority:  models.PriorityLow,
		Category:  models.CategoryRoutine,
	})
	assert.Equal(t, StrategyLocalModel, decision.Strategy)
	assert.Equal(t, models.TierLocal, decision.Strategy.Tier())
}

func TestLocalUnhealthyNeverLocal(t *testing.T) {
	f := &fixture{config: defaults(), localUp: false}

	decision := f.router().Decide(context.Background(), "hello", Metadata{
		Operation: "chat_response",
		Priority:  models.PriorityLow,
		Category:  models.CategoryRoutine,
	})
	assert.NotEqual(t, StrategyLocalModel, decision.Strategy)
	assert.Equal(t, StrategyRemoteCheap, decision.Strategy)
}

func TestLocalDisabledNeverLocal(t *testing.T) {
	f := &fixture{config: defaults(), localUp: true}
	f.config.EnableLocalModel = false

	decision := f.router().Decide(context.Background(), "hello", Metadata{
		Operation: "chat_response",
		Priority:  models.PriorityLow,
		Category:  models.CategoryRoutine,
	})
	assert.NotEqual(t, StrategyLocalModel, decision.Strategy)
}

func TestImportantWithinBudgetGoesPremium(t *testing.T) {
	f := &fixture{config: defaults(), localUp: false, spent: 2.0}

	decision := f.router().Decide(context.Background(), "hello", Metadata{
		Operation: "score_match",
		Priority:  models.PriorityNormal,
		Category:  models.CategoryImportant,
	})
	assert.Equal(t, StrategyRemotePremium, decision.Strategy)
	assert.Positive(t, decision.EstimatedCost)
}

func TestZeroBudgetCriticalFallsToCheap(t *testing.T) {
	f := &fixture{config: defaults(), localUp: true}
	f.config.DailyCostLimit = 0

	decision := f.router().Decide(context.Background(), "hello", Metadata{
		Operation: "score_match",
		Priority:  models.PriorityHigh,
		Category:  models.CategoryCritical,
	})
	assert.Equal(t, StrategyRemoteCheap, decision.Strategy)
}

func TestBudgetReadErrorTreatedAsWithinBudget(t *testing.T) {
	f := &fixture{config: defaults(), spendErr: errors.New("ledger down")}

	decision := f.router().Decide(context.Background(), "hello", Metadata{
		Operation: "score_match",
		Priority:  models.PriorityNormal,
		Category:  models.CategoryCritical,
	})
	assert.Equal(t, StrategyRemotePremium, decision.Strategy)
}

func TestNormalRoutineRemoteCheapWhenLocalBusyCategoryNormal(t *testing.T) {
	f := &fixture{config: defaults(), localUp: true}

	// Normal priority, important category is not local-eligible.
	decision := f.router().Decide(context.Background(), "hello", Metadata{
		Operation: "chat_response",
		Priority:  models.PriorityNormal,
		Category:  models.CategoryImportant,
	})
	assert.Equal(t, StrategyRemotePremium, decision.Strategy)
}

func TestCostModel(t *testing.T) {
	assert.Zero(t, Cost(models.TierLocal, 10_000, 10_000))
	cheap := Cost(models.TierRemoteCheap, 1000, 1000)
	premium := Cost(models.TierRemotePremium, 1000, 1000)
	assert.InDelta(t, 0.00075, cheap, 1e-9)
	assert.InDelta(t, 0.018, premium, 1e-9)
	assert.Greater(t, premium, cheap)
}

func TestStatsCountDecisions(t *testing.T) {
	f := &fixture{config: defaults(), localUp: true}
	r := f.router()

	for i := 0; i < 3; i++ {
		r.Decide(context.Background(), "hello", Metadata{
			Operation: "chat_response",
			Priority:  models.PriorityLow,
			Category:  models.CategoryRoutine,
		})
	}
	stats := r.Stats()
	require.Equal(t, int64(3), stats.Decisions)
	assert.Equal(t, int64(3), stats.ByStrategy[string(StrategyLocalModel)])
}

func TestSelfCheckSkipsCounters(t *testing.T) {
	f := &fixture{config: defaults(), localUp: true}
	r := f.router()

	for i := 0; i < 5; i++ {
		assert.True(t, r.SelfCheck(context.Background()))
	}
	assert.Zero(t, r.Stats().Decisions, "self checks must not count as decisions")
}

func TestScope(t *testing.T) {
	assert.Equal(t, "user-1", Scope("user-1"))
	assert.Equal(t, "global", Scope(""))
}
