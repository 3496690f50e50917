package localmodel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rashenal/navigator/pkg/llm"
)

type fakeProvider struct {
	completion llm.Completion
	err        error
	calls      int
}

func (p *fakeProvider) Complete(ctx context.Context, messages []llm.Message) (llm.Completion, error) {
	p.calls++
	if p.err != nil {
		return llm.Completion{}, p.err
	}
	return p.completion, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestCheckHealthAgainstRunningServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := New(&fakeProvider{}, server.URL+"/v1", "llama3.2", testLogger())
	assert.True(t, adapter.CheckHealth(context.Background()))

	status := adapter.Status()
	assert.True(t, status.Healthy)
	assert.Zero(t, status.ConsecutiveFailures)
	assert.False(t, status.LastChecked.IsZero())
}

func TestCheckHealthDownServerReturnsFalseNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter := New(&fakeProvider{}, server.URL+"/v1", "llama3.2", testLogger())
	assert.False(t, adapter.CheckHealth(context.Background()))

	status := adapter.Status()
	assert.False(t, status.Healthy)
	assert.Equal(t, 1, status.ConsecutiveFailures)
	assert.NotEmpty(t, status.LastError)
}

func TestCheckHealthUnreachableHost(t *testing.T) {
	adapter := New(&fakeProvider{}, "http://127.0.0.1:1/v1", "llama3.2", testLogger())
	assert.False(t, adapter.CheckHealth(context.Background()))
}

func TestGenerateSuccess(t *testing.T) {
	provider := &fakeProvider{completion: llm.Completion{Text: "hi", Model: "llama3.2", PromptTokens: 3, CompletionTokens: 1}}
	adapter := New(provider, "http://localhost:11434/v1", "llama3.2", testLogger())

	completion, err := adapter.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi", completion.Text)
	assert.Equal(t, 1, provider.calls)
	assert.Zero(t, adapter.Status().ConsecutiveFailures)
}

func TestGenerateFailureCountsAndEventuallyOpensBreaker(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection refused")}
	adapter := New(provider, "http://localhost:11434/v1", "llama3.2", testLogger())

	var lastErr error
	for i := 0; i < 10; i++ {
		_, lastErr = adapter.Generate(context.Background(), "hello")
		require.Error(t, lastErr)
	}

	status := adapter.Status()
	assert.False(t, status.Healthy)
	assert.Positive(t, status.ConsecutiveFailures)
	assert.Equal(t, "open", status.BreakerState)

	// With the breaker open the health probe is short-circuited.
	assert.False(t, adapter.CheckHealth(context.Background()))
	assert.Less(t, provider.calls, 10, "open breaker must stop calls reaching the provider")
}
