package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes an LLM API call
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// LLMRequest contains the request parameters for LLM call
type LLMRequest struct {
	Model        string
	Messages     []AgentMessage
	Tools        []interface{}
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	// Timeout bounds this one call; zero means the caller's ctx alone
	// governs the deadline.
	Timeout time.Duration
}

// LLMResponse contains the response from LLM
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// ProviderFactory builds one LLMProvider per agent session, wiring every
// provider it creates to the same logger and agent id so a process
// running several agents/providers at once can attribute each call.
type ProviderFactory struct {
	Logger  zerolog.Logger
	AgentID string
}

// NewProvider creates a new LLM provider based on auth profile
func (f *ProviderFactory) NewProvider(profile AuthProfile) (LLMProvider, error) {
	logger := f.Logger.With().Str("agent_id", f.AgentID).Str("provider", profile.Provider).Logger()
	switch profile.Provider {
	case "anthropic":
		return NewAnthropicProvider(profile.APIKey, logger), nil
	case "openai":
		return NewOpenAIProvider(profile.APIKey, logger), nil
	case "gemini":
		return NewGeminiProvider(profile.APIKey, logger), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", profile.Provider)
	}
}
