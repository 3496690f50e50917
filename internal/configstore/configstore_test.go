package configstore

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rashenal/navigator/pkg/models"
)

type fakeKV struct {
	data   map[string]string
	getErr error
	setErr error
	sets   int
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}}
}

func (f *fakeKV) Get(ctx context.Context, key string) *goredis.StringCmd {
	if f.getErr != nil {
		return goredis.NewStringResult("", f.getErr)
	}
	value, ok := f.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(value, nil)
}

func (f *fakeKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd {
	f.sets++
	if f.setErr != nil {
		return goredis.NewStatusResult("", f.setErr)
	}
	f.data[key] = string(value.([]byte))
	return goredis.NewStatusResult("OK", nil)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestLoadMissingKeyReturnsDefaults(t *testing.T) {
	store := New(newFakeKV(), testLogger())
	cfg, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultOptimizationConfig(), cfg)
}

func TestLoadMergesPersistedOverDefaults(t *testing.T) {
	kv := newFakeKV()
	kv.data[ConfigKey] = `{"daily_cost_limit": 25.5, "enable_local_model": false}`

	store := New(kv, testLogger())
	cfg, err := store.Load(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 25.5, cfg.DailyCostLimit, 1e-9)
	assert.False(t, cfg.EnableLocalModel)
	// Untouched fields keep their defaults.
	assert.True(t, cfg.EnableCaching)
	assert.InDelta(t, 0.85, cfg.SimilarityThreshold, 1e-9)
}

func TestLoadCorruptPayloadFallsBackToDefaults(t *testing.T) {
	kv := newFakeKV()
	kv.data[ConfigKey] = `{not json`

	store := New(kv, testLogger())
	cfg, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultOptimizationConfig(), cfg)
}

func TestLoadTransportErrorReported(t *testing.T) {
	kv := newFakeKV()
	kv.getErr = errors.New("connection refused")

	store := New(kv, testLogger())
	cfg, err := store.Load(context.Background())
	require.Error(t, err)
	// Defaults still usable alongside the error.
	assert.Equal(t, models.DefaultOptimizationConfig(), cfg)
}

func TestSaveRoundTrip(t *testing.T) {
	kv := newFakeKV()
	store := New(kv, testLogger())

	cfg := models.DefaultOptimizationConfig()
	cfg.SimilarityThreshold = 0.98
	cfg.EnableOptimization = false
	require.NoError(t, store.Save(context.Background(), cfg))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSaveTransportError(t *testing.T) {
	kv := newFakeKV()
	kv.setErr = errors.New("connection refused")

	store := New(kv, testLogger())
	err := store.Save(context.Background(), models.DefaultOptimizationConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist optimization config")
}
