package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/rashenal/navigator/internal/bootstrap"
	"github.com/rashenal/navigator/internal/ledger"
	"github.com/rashenal/navigator/pkg/llm"
	"github.com/rashenal/navigator/pkg/models"
)

type memoryStore struct {
	mu      sync.Mutex
	cfg     *models.OptimizationConfig
	saveErr error
}

func (m *memoryStore) Load(ctx context.Context) (models.OptimizationConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		return models.DefaultOptimizationConfig(), nil
	}
	return *m.cfg, nil
}

func (m *memoryStore) Save(ctx context.Context, cfg models.OptimizationConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.cfg = &cfg
	return nil
}

type stubProvider struct {
	text string
}

func (p *stubProvider) Complete(ctx context.Context, messages []llm.Message) (llm.Completion, error) {
	return llm.Completion{Text: p.text, PromptTokens: 5, CompletionTokens: 5}, nil
}

func setup(t *testing.T) (*gin.Engine, *bootstrap.Supervisor) {
	t.Helper()
	return setupWithStore(t, &memoryStore{})
}

func setupWithStore(t *testing.T, store *memoryStore) (*gin.Engine, *bootstrap.Supervisor) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	supervisor := bootstrap.New(bootstrap.Deps{
		Ledger:          ledger.New(db, nil, logger),
		ConfigStore:     store,
		LocalProvider:   &stubProvider{text: "local reply"},
		LocalBaseURL:    "http://127.0.0.1:1/v1",
		LocalModel:      "llama3.2",
		CheapProvider:   &stubProvider{text: "cheap reply"},
		PremiumProvider: &stubProvider{text: "premium reply"},
		Logger:          logger,
	})
	supervisor.Initialize(context.Background())

	router := gin.New()
	New(supervisor, logger).RegisterRoutes(router)
	return router, supervisor
}

func do(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCompleteEndpoint(t *testing.T) {
	router, _ := setup(t)

	w := do(t, router, http.MethodPost, "/v1/complete", models.CompletionRequest{
		Operation: "chat_response",
		Prompt:    "what roles match my profile",
		UserID:    "user-1",
		Priority:  models.PriorityNormal,
		Category:  models.CategoryRoutine,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := w.Body.String()
	assert.Equal(t, "cheap reply", gjson.Get(body, "text").String())
	assert.Equal(t, "remote-cheap", gjson.Get(body, "backend_used").String())
	assert.False(t, gjson.Get(body, "cached").Bool())
}

func TestCompleteEndpointValidation(t *testing.T) {
	router, _ := setup(t)

	w := do(t, router, http.MethodPost, "/v1/complete", gin.H{"operation": "chat_response"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/v1/complete", gin.H{"prompt": "hello"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetConfig(t *testing.T) {
	router, _ := setup(t)

	w := do(t, router, http.MethodGet, "/v1/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gjson.Get(w.Body.String(), "enable_caching").Bool())
	assert.InDelta(t, 0.85, gjson.Get(w.Body.String(), "similarity_threshold").Float(), 1e-9)
}

func TestUpdateConfig(t *testing.T) {
	router, supervisor := setup(t)

	w := do(t, router, http.MethodPatch, "/v1/config", gin.H{"daily_cost_limit": 20.5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.InDelta(t, 20.5, gjson.Get(w.Body.String(), "config.daily_cost_limit").Float(), 1e-9)
	assert.InDelta(t, 20.5, supervisor.Current().DailyCostLimit, 1e-9)

	// Untouched fields survive a partial update.
	assert.True(t, supervisor.Current().EnableCaching)
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	router, _ := setup(t)

	w := do(t, router, http.MethodPatch, "/v1/config", gin.H{"similarity_threshold": 2.0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStatus(t *testing.T) {
	router, _ := setup(t)

	w := do(t, router, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, "normal", gjson.Get(body, "mode").String())
	assert.True(t, gjson.Get(body, "health.overall").Bool())
}

func TestGetMetrics(t *testing.T) {
	router, _ := setup(t)

	w := do(t, router, http.MethodGet, "/v1/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, "normal", gjson.Get(body, "mode").String())
	assert.True(t, gjson.Get(body, "cache_stats.entries").Exists())
	assert.Equal(t, "llama3.2", gjson.Get(body, "local_runtime_status.model").String())
}

func TestEmergencyDisableSurvivesPersistenceFailure(t *testing.T) {
	store := &memoryStore{saveErr: errors.New("redis unavailable")}
	router, supervisor := setupWithStore(t, store)

	// The mode transition holds in memory even when the config store is
	// down, so the caller gets a success with a warning attached.
	w := do(t, router, http.MethodPost, "/v1/admin/emergency/disable-optimization", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := w.Body.String()
	assert.Equal(t, "degraded", gjson.Get(body, "mode").String())
	assert.NotEmpty(t, gjson.Get(body, "warning").String())
	assert.False(t, supervisor.Current().EnableOptimization)
}

func TestEmergencyFlow(t *testing.T) {
	router, supervisor := setup(t)

	w := do(t, router, http.MethodPost, "/v1/admin/emergency/disable-optimization", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "degraded", gjson.Get(w.Body.String(), "mode").String())

	// Second disable conflicts.
	w = do(t, router, http.MethodPost, "/v1/admin/emergency/disable-optimization", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodPost, "/v1/admin/emergency/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "safe", gjson.Get(w.Body.String(), "mode").String())
	assert.False(t, supervisor.Current().EnableOptimization)
	assert.True(t, supervisor.Current().FallbackEnabled)

	w = do(t, router, http.MethodPost, "/v1/admin/reinitialize", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "normal", gjson.Get(w.Body.String(), "mode").String())
}
