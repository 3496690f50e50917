package ledger

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rashenal/navigator/pkg/kafka"
	"github.com/rashenal/navigator/pkg/models"
)

type capturingPublisher struct {
	events []*kafka.UsageEvent
	err    error
}

func (p *capturingPublisher) PublishUsageEvent(event *kafka.UsageEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestRecordInsertsAndEnforcesTokenSum(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	publisher := &capturingPublisher{}
	ledger := New(db, publisher, testLogger())

	mock.ExpectExec("INSERT INTO ai_usage_records").
		WithArgs(
			sqlmock.AnyArg(), "parse_cv", "agent-7", "parser",
			120, 40, 160,
			"local", "routine", "normal",
			false, sqlmock.AnyArg(),
			int64(850), 0, "user-1",
			512, 256, 0.0, false, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ledger.Record(context.Background(), models.UsageRecord{
		Operation:        "parse_cv",
		AgentID:          "agent-7",
		AgentType:        "parser",
		PromptTokens:     120,
		CompletionTokens: 40,
		TotalTokens:      9999, // stale value from caller, must be recomputed
		Tier:             models.TierLocal,
		Category:         models.CategoryRoutine,
		Priority:         models.PriorityNormal,
		LatencyMs:        850,
		UserID:           "user-1",
		RequestBytes:     512,
		ResponseBytes:    256,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "model-invocation", publisher.events[0].EventType)
	assert.Equal(t, "parse_cv", publisher.events[0].Operation)
	assert.Equal(t, 160, publisher.events[0].Data["total_tokens"])
}

func TestRecordSurvivesPublisherFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	publisher := &capturingPublisher{err: assert.AnError}
	ledger := New(db, publisher, testLogger())

	mock.ExpectExec("INSERT INTO ai_usage_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ledger.Record(context.Background(), models.UsageRecord{
		Operation: "chat_reply",
		Tier:      models.TierRemoteCheap,
		Category:  models.CategoryRoutine,
		Priority:  models.PriorityNormal,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordReturnsWriteError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledger := New(db, nil, testLogger())

	mock.ExpectExec("INSERT INTO ai_usage_records").
		WillReturnError(assert.AnError)

	err = ledger.Record(context.Background(), models.UsageRecord{
		Operation: "score_match",
		Tier:      models.TierRemotePremium,
		Category:  models.CategoryCritical,
		Priority:  models.PriorityHigh,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert usage record")
}

func TestSummarizeDayWindow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledger := New(db, nil, testLogger())

	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{
			"count", "prompt", "completion", "total", "cost", "hits",
		}).AddRow(10, 1200, 400, 1600, 0.42, 4))

	mock.ExpectQuery("SELECT tier, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"tier", "count"}).
			AddRow("local", 6).
			AddRow("remote-cheap", 4))

	aggregates, err := ledger.Summarize(context.Background(), models.WindowDay)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, int64(10), aggregates.Requests)
	assert.Equal(t, int64(1600), aggregates.TotalTokens)
	assert.InDelta(t, 0.42, aggregates.CostUSD, 1e-9)
	assert.InDelta(t, 0.4, aggregates.CacheHitRate, 1e-9)
	assert.Equal(t, int64(6), aggregates.RequestsByTier["local"])
	assert.Equal(t, int64(4), aggregates.RequestsByTier["remote-cheap"])
}

func TestSummarizeEmptyLedger(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledger := New(db, nil, testLogger())

	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{
			"count", "prompt", "completion", "total", "cost", "hits",
		}).AddRow(0, 0, 0, 0, 0.0, 0))

	mock.ExpectQuery("SELECT tier, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"tier", "count"}))

	aggregates, err := ledger.Summarize(context.Background(), models.WindowWeek)
	require.NoError(t, err)
	assert.Zero(t, aggregates.Requests)
	assert.Zero(t, aggregates.CacheHitRate)
	assert.Empty(t, aggregates.RequestsByTier)
}

func TestSpentTodayExcludesCacheHits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledger := New(db, nil, testLogger())

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(cost_usd\\), 0\\)").
		WillReturnRows(sqlmock.NewRows([]string{"spent"}).AddRow(3.75))

	spent, err := ledger.SpentToday(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 3.75, spent, 1e-9)
}
