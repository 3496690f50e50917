package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/rashenal/navigator/pkg/database"
	"github.com/rashenal/navigator/pkg/kafka"
	"github.com/rashenal/navigator/pkg/logging"
	"github.com/rashenal/navigator/pkg/models"
)

// EventPublisher is the optional analytics sink for usage events.
type EventPublisher interface {
	PublishUsageEvent(event *kafka.UsageEvent) error
}

// Ledger is the append-only record of every model invocation. Writes are
// durable (Postgres); records are never updated or deleted. Duplicate
// records from caller retries inflate reporting but never corrupt it.
type Ledger struct {
	db        database.PostgresConn
	publisher EventPublisher
	logger    logging.Logger
}

func New(db database.PostgresConn, publisher EventPublisher, logger logging.Logger) *Ledger {
	return &Ledger{
		db:        db,
		publisher: publisher,
		logger:    logger,
	}
}

// Record appends one usage record. The token-sum invariant is enforced here
// rather than trusted from the caller. A write failure is returned so the
// facade can flip the ledger health flag, but callers must treat it as
// non-fatal for the business request.
func (l *Ledger) Record(ctx context.Context, record models.UsageRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.TotalTokens = record.PromptTokens + record.CompletionTokens

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO ai_usage_records (
			id, operation, agent_id, agent_type,
			prompt_tokens, completion_tokens, total_tokens,
			tier, category, priority, cache_hit, optimizations,
			latency_ms, retry_count, user_id,
			request_bytes, response_bytes, cost_usd, failed, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`,
		record.ID, record.Operation, record.AgentID, record.AgentType,
		record.PromptTokens, record.CompletionTokens, record.TotalTokens,
		string(record.Tier), string(record.Category), string(record.Priority),
		record.CacheHit, pq.Array(record.Optimizations),
		record.LatencyMs, record.RetryCount, record.UserID,
		record.RequestBytes, record.ResponseBytes, record.CostUSD, record.Failed, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}

	l.publishEvent(record)
	return nil
}

// publishEvent mirrors the record to the analytics topic. Publication is
// best-effort; a broker outage must not surface to business callers.
func (l *Ledger) publishEvent(record models.UsageRecord) {
	if l.publisher == nil {
		return
	}
	event := &kafka.UsageEvent{
		EventID:   record.ID,
		EventType: "model-invocation",
		Timestamp: record.CreatedAt,
		UserID:    record.UserID,
		Operation: record.Operation,
		Data: map[string]interface{}{
			"tier":          string(record.Tier),
			"category":      string(record.Category),
			"total_tokens":  record.TotalTokens,
			"cost_usd":      record.CostUSD,
			"cache_hit":     record.CacheHit,
			"retry_count":   record.RetryCount,
			"latency_ms":    record.LatencyMs,
			"failed":        record.Failed,
			"optimizations": record.Optimizations,
		},
	}
	if err := l.publisher.PublishUsageEvent(event); err != nil {
		l.logger.WithError(err).WithField("record_id", record.ID).Warn("Failed to publish usage event")
	}
}

// Summarize aggregates ledger activity for the trailing day or week.
func (l *Ledger) Summarize(ctx context.Context, window models.UsageWindow) (models.UsageAggregates, error) {
	since := windowStart(window, time.Now().UTC())

	aggregates := models.UsageAggregates{
		Window:         window,
		RequestsByTier: make(map[string]int64),
	}

	row := l.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0),
			COALESCE(SUM(total_tokens), 0),
			COALESCE(SUM(cost_usd), 0),
			COALESCE(SUM(CASE WHEN cache_hit THEN 1 ELSE 0 END), 0)
		FROM ai_usage_records
		WHERE created_at >= $1
	`, since)
	if err := row.Scan(
		&aggregates.Requests,
		&aggregates.PromptTokens,
		&aggregates.CompletionTokens,
		&aggregates.TotalTokens,
		&aggregates.CostUSD,
		&aggregates.CacheHits,
	); err != nil {
		return models.UsageAggregates{}, fmt.Errorf("summarize usage: %w", err)
	}
	if aggregates.Requests > 0 {
		aggregates.CacheHitRate = float64(aggregates.CacheHits) / float64(aggregates.Requests)
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT tier, COUNT(*)
		FROM ai_usage_records
		WHERE created_at >= $1
		GROUP BY tier
	`, since)
	if err != nil {
		return models.UsageAggregates{}, fmt.Errorf("summarize usage by tier: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tier string
		var count int64
		if err := rows.Scan(&tier, &count); err != nil {
			return models.UsageAggregates{}, fmt.Errorf("scan tier row: %w", err)
		}
		aggregates.RequestsByTier[tier] = count
	}
	if err := rows.Err(); err != nil {
		return models.UsageAggregates{}, fmt.Errorf("iterate tier rows: %w", err)
	}

	return aggregates, nil
}

// SpentToday returns the cost accumulated since midnight UTC. The read is
// best-effort and not linearizable across concurrent callers; brief budget
// overshoot under load is tolerated by design.
func (l *Ledger) SpentToday(ctx context.Context) (float64, error) {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)

	var spent float64
	err := l.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost_usd), 0)
		FROM ai_usage_records
		WHERE created_at >= $1 AND NOT cache_hit
	`, midnight).Scan(&spent)
	if err != nil {
		return 0, fmt.Errorf("query daily spend: %w", err)
	}
	return spent, nil
}

// Ping verifies the ledger's storage is reachable.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

func windowStart(window models.UsageWindow, now time.Time) time.Time {
	switch window {
	case models.WindowWeek:
		return now.AddDate(0, 0, -7)
	default:
		return now.Truncate(24 * time.Hour)
	}
}
