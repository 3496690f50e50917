package localmodel

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rashenal/navigator/pkg/clients"
	"github.com/rashenal/navigator/pkg/llm"
	"github.com/rashenal/navigator/pkg/logging"
)

const healthProbeTimeout = 2 * time.Second

// Status summarizes the local runtime for the metrics and status surfaces.
type Status struct {
	Healthy             bool      `json:"healthy"`
	Model               string    `json:"model"`
	BaseURL             string    `json:"base_url"`
	BreakerState        string    `json:"breaker_state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastChecked         time.Time `json:"last_checked"`
	LastError           string    `json:"last_error,omitempty"`
}

// Adapter fronts a locally hosted model runtime (Ollama). Health probing
// never returns an error; generate failures feed a circuit breaker so a
// flapping runtime is reported unhealthy without hammering it.
type Adapter struct {
	provider llm.Provider
	breaker  *clients.CircuitBreaker
	client   *http.Client
	baseURL  string
	model    string
	logger   logging.Logger

	mu                  sync.Mutex
	consecutiveFailures int
	lastChecked         time.Time
	lastHealthy         bool
	lastError           string
}

func New(provider llm.Provider, baseURL, model string, logger logging.Logger) *Adapter {
	breaker := clients.NewCircuitBreaker(clients.CircuitBreakerConfig{
		Name:         "local-model",
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  4,
		Logger:       logger,
	})
	return &Adapter{
		provider: provider,
		breaker:  breaker,
		client:   &http.Client{Timeout: healthProbeTimeout},
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		model:    model,
		logger:   logger,
	}
}

// CheckHealth probes the runtime's model listing endpoint. It never returns
// an error: an unreachable runtime is simply unhealthy. An open breaker
// short-circuits the probe.
func (a *Adapter) CheckHealth(ctx context.Context) bool {
	if a.breaker.IsOpen() {
		a.record(false, "circuit breaker open")
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	// The OpenAI-compatible surface lives under /v1; the native model
	// listing lives at the runtime root.
	url := strings.TrimSuffix(a.baseURL, "/v1") + "/api/tags"
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		a.record(false, err.Error())
		return false
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.record(false, err.Error())
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.record(false, fmt.Sprintf("health probe returned status %d", resp.StatusCode))
		return false
	}

	a.record(true, "")
	return true
}

// Generate runs a prompt through the local runtime via the circuit breaker.
func (a *Adapter) Generate(ctx context.Context, prompt string) (llm.Completion, error) {
	result, err := a.breaker.Execute(func() (any, error) {
		return a.provider.Complete(ctx, llm.UserMessage(prompt))
	})
	if err != nil {
		a.record(false, err.Error())
		return llm.Completion{}, fmt.Errorf("local model generate: %w", err)
	}

	a.record(true, "")
	return result.(llm.Completion), nil
}

func (a *Adapter) record(healthy bool, errMsg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastChecked = time.Now()
	a.lastHealthy = healthy
	a.lastError = errMsg
	if healthy {
		a.consecutiveFailures = 0
	} else {
		a.consecutiveFailures++
	}
}

// Status returns the last observed runtime state without probing.
func (a *Adapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		Healthy:             a.lastHealthy && !a.breaker.IsOpen(),
		Model:               a.model,
		BaseURL:             a.baseURL,
		BreakerState:        a.breaker.State().String(),
		ConsecutiveFailures: a.consecutiveFailures,
		LastChecked:         a.lastChecked,
		LastError:           a.lastError,
	}
}
