package agent

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// GeminiProvider implements LLMProvider for Google Gemini. tinycrab has
// no Gemini SDK dependency; this exists so ProviderFactory and
// AuthProfile can name "gemini" as a recognized, if currently
// unimplemented, provider.
type GeminiProvider struct {
	apiKey string
	logger zerolog.Logger
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(apiKey string, logger zerolog.Logger) *GeminiProvider {
	return &GeminiProvider{
		apiKey: apiKey,
		logger: logger,
	}
}

// Provider returns the provider name
func (p *GeminiProvider) Provider() string {
	return "gemini"
}

// Call makes an API call to Google Gemini
func (p *GeminiProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	p.logger.Warn().Str("model", request.Model).Msg("gemini provider called but not implemented")
	return nil, fmt.Errorf("gemini provider not yet implemented - use anthropic or openai")
}
