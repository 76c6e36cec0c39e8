package agent

import (
	"time"

	"github.com/rs/zerolog"
)

// Config is the configuration record accepted by NewSession (façade
// §4.3): the recognized options are model, tools, customTools,
// workspacePath, sessionDirectory, authStore, and sessionManager.
type Config struct {
	Model            string
	// Provider selects the backend ("anthropic", "openai", "gemini").
	// Not part of the runtime's abstract capability set, but required by
	// any concrete façade implementation to know which API to speak.
	Provider         string
	Tools            []interface{}
	CustomTools      []interface{}
	WorkspacePath    string
	SessionDirectory string
	AuthStore        *AuthStore
	Temperature      float64
	MaxTokens        int
	SystemPrompt     string
	MaxRetries       int
	// MaxContextTokens bounds GetContextUsage's percent calculation;
	// defaults to 200000 when zero.
	MaxContextTokens int
	// RequestTimeout bounds a single provider call. Zero means no
	// per-call deadline beyond the caller's own context.
	RequestTimeout time.Duration
	// Logger receives one structured event per provider call (latency,
	// token counts, outcome), tagged with the owning agent/session so a
	// multi-agent process can tell its providers' calls apart.
	Logger zerolog.Logger
	// AgentID labels this session's provider-call log lines; typically
	// the owning agent server's id.
	AgentID string
	// ToolExecutor, if set, is invoked for every tool call the provider
	// returns. A nil executor makes prompt() a single-turn call: any
	// tool call in the response is reported back as an unavailable-tool
	// error so the provider's own loop can recover or give up.
	ToolExecutor ToolExecutor
}

// ToolExecutor executes a single opaque tool call and returns its result
// text (or an error message, which is still delivered to the provider as
// tool output rather than as a Go error).
type ToolExecutor interface {
	Execute(name string, params map[string]interface{}) (string, error)
}

// ContextUsage reports how full the underlying conversation context is,
// as a pre-compaction hint for the orchestrator (§4.10).
type ContextUsage struct {
	Percent float64
}

// ToolCall represents a tool invocation returned by a provider.
type ToolCall struct {
	ID         string
	Name       string
	Parameters map[string]interface{}
}

// TokenUsage tracks token consumption for a single provider call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// AuthProfile represents authentication credentials for one LLM provider
// account, with simple priority/cooldown-based failover bookkeeping.
type AuthProfile struct {
	ID            string
	Provider      string // "anthropic", "openai", "gemini"
	APIKey        string
	CooldownUntil *int64
	FailureCount  int
	Priority      int
}

// AgentMessage represents one message in the conversation sent to/from a
// provider.
type AgentMessage struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// IsRetryableError reports whether err looks like a transient failure
// (network hiccup, rate limit, server error) worth retrying.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := err.Error()

	if contains(errMsg, "ECONNRESET") || contains(errMsg, "ETIMEDOUT") {
		return true
	}
	if contains(errMsg, "429") || contains(errMsg, "rate limit") {
		return true
	}
	if contains(errMsg, "500") || contains(errMsg, "502") || contains(errMsg, "503") || contains(errMsg, "504") {
		return true
	}

	return false
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > len(substr) &&
		(s[:len(substr)] == substr || s[len(s)-len(substr):] == substr ||
			findSubstring(s, substr)))
}

func findSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// EstimateTokens provides a rough token count estimation (≈4 chars/token).
func EstimateTokens(messages []AgentMessage) int {
	totalChars := 0
	for _, msg := range messages {
		totalChars += len(msg.Content)
	}
	return (totalChars + 3) / 4
}
