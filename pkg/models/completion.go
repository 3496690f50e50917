package models

// CompletionRequest is the single public entry point's payload. Every
// business feature (chat assistants, CV parsing, match scoring, task
// suggestions) funnels through it.
type CompletionRequest struct {
	Operation string   `json:"operation" binding:"required"`
	Prompt    string   `json:"prompt" binding:"required"`
	UserID    string   `json:"user_id"`
	Priority  Priority `json:"priority"`
	Category  Category `json:"category"`
	AgentID   string   `json:"agent_id"`
	AgentType string   `json:"agent_type"`
	TimeoutMs int      `json:"timeout_ms"`
}

// ReplyKind tags how a model reply was interpreted.
type ReplyKind string

const (
	ReplyStructured   ReplyKind = "structured"
	ReplyUnstructured ReplyKind = "unstructured"
)

// CompletionResponse is what callers receive: a usable text plus routing
// provenance. Fields is only populated when the reply parsed as (or was
// heuristically extracted into) structured data.
type CompletionResponse struct {
	Text        string            `json:"text"`
	Cached      bool              `json:"cached"`
	BackendUsed string            `json:"backend_used"`
	ReplyKind   ReplyKind         `json:"reply_kind,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	Degraded    bool              `json:"degraded,omitempty"`
}
