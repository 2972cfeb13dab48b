package vision

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

const maxParseAttempts = 3

// OpenAIConfig configures the hosted vision model.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// OpenAIAnalyzer calls an OpenAI-compatible chat model with the image attached.
type OpenAIAnalyzer struct {
	client    llms.Model
	maxTokens int
	logger    *zap.Logger
}

// NewOpenAIAnalyzer returns ErrUnavailable when no API key is set.
func NewOpenAIAnalyzer(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key", ErrUnavailable)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return newAnalyzer(client, cfg.MaxTokens, logger), nil
}

func newAnalyzer(client llms.Model, maxTokens int, logger *zap.Logger) *OpenAIAnalyzer {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &OpenAIAnalyzer{client: client, maxTokens: maxTokens, logger: logger}
}

// Analyze sends the extraction prompt with img and decodes the JSON reply.
// Malformed replies are retried; transport errors are not.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, img Image) (*Analysis, error) {
	var part llms.ContentPart
	switch {
	case len(img.Data) > 0:
		mime := img.ContentType
		if mime == "" {
			mime = "image/jpeg"
		}
		part = llms.BinaryPart(mime, img.Data)
	case img.URL != "":
		part = llms.ImageURLPart(img.URL)
	default:
		return nil, fmt.Errorf("no image data or URL")
	}

	content := []llms.MessageContent{{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(extractionPrompt(img.IsVideo)), part},
	}}

	var lastErr error
	for attempt := 1; attempt <= maxParseAttempts; attempt++ {
		resp, err := a.client.GenerateContent(ctx, content,
			llms.WithTemperature(0.0),
			llms.WithJSONMode(),
			llms.WithMaxTokens(a.maxTokens))
		if err != nil {
			return nil, fmt.Errorf("vision request failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("vision model returned no choices")
		}
		an, err := ParseAnalysis(resp.Choices[0].Content)
		if err == nil {
			return an, nil
		}
		lastErr = err
		a.logger.Warn("unparseable vision response", zap.Int("attempt", attempt), zap.Error(err))
	}
	return nil, lastErr
}
