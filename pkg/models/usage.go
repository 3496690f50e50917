package models

import "time"

// Tier identifies the class of model backend that served a request.
type Tier string

const (
	TierLocal         Tier = "local"
	TierRemoteCheap   Tier = "remote-cheap"
	TierRemotePremium Tier = "remote-premium"
)

// Category classifies how important an operation's output is.
type Category string

const (
	CategoryRoutine   Category = "routine"
	CategoryImportant Category = "important"
	CategoryCritical  Category = "critical"
)

// Priority is the caller-declared urgency of a request.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryRoutine, CategoryImportant, CategoryCritical:
		return true
	}
	return false
}

// ValidPriority reports whether p is one of the known priorities.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

// UsageRecord is the immutable ledger row written once per completed model
// invocation. TotalTokens always equals PromptTokens + CompletionTokens.
type UsageRecord struct {
	ID               string    `json:"id"`
	Operation        string    `json:"operation"`
	AgentID          string    `json:"agent_id"`
	AgentType        string    `json:"agent_type"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	Tier             Tier      `json:"tier"`
	Category         Category  `json:"category"`
	Priority         Priority  `json:"priority"`
	CacheHit         bool      `json:"cache_hit"`
	Optimizations    []string  `json:"optimizations"`
	LatencyMs        int64     `json:"latency_ms"`
	RetryCount       int       `json:"retry_count"`
	UserID           string    `json:"user_id"`
	RequestBytes     int       `json:"request_bytes"`
	ResponseBytes    int       `json:"response_bytes"`
	CostUSD          float64   `json:"cost_usd"`
	Failed           bool      `json:"failed"`
	CreatedAt        time.Time `json:"created_at"`
}

// UsageWindow selects the aggregation period for usage summaries.
type UsageWindow string

const (
	WindowDay  UsageWindow = "day"
	WindowWeek UsageWindow = "week"
)

// UsageAggregates summarizes ledger activity over a window.
type UsageAggregates struct {
	Window           UsageWindow      `json:"window"`
	Requests         int64            `json:"requests"`
	PromptTokens     int64            `json:"prompt_tokens"`
	CompletionTokens int64            `json:"completion_tokens"`
	TotalTokens      int64            `json:"total_tokens"`
	CostUSD          float64          `json:"cost_usd"`
	CacheHits        int64            `json:"cache_hits"`
	CacheHitRate     float64          `json:"cache_hit_rate"`
	RequestsByTier   map[string]int64 `json:"requests_by_tier"`
}
