package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// OpenAIConfig configures the hosted embedding adapter.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint through
// langchaingo. Every provider error is reported as ErrUnavailable.
type OpenAIEmbedder struct {
	embedder   embeddings.Embedder
	dimensions int
	logger     *zap.Logger
}

// NewOpenAIEmbedder builds the adapter. A missing API key is reported as ErrUnavailable
// so that composition can fall back to the Unavailable adapter.
func NewOpenAIEmbedder(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key configured", ErrUnavailable)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	embOpts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if cfg.BatchSize > 0 {
		embOpts = append(embOpts, embeddings.WithBatchSize(cfg.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, embOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &OpenAIEmbedder{
		embedder:   embedder,
		dimensions: cfg.Dimensions,
		logger:     logger.With(zap.String("component", "openai-embedder"), zap.String("model", cfg.Model)),
	}, nil
}

func (e *OpenAIEmbedder) Available() bool { return true }

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Debug("embedding request failed", zap.Error(err))
		return nil, unavailable(err)
	}
	if err := checkDimensions([][]float32{vec}, e.dimensions); err != nil {
		return nil, unavailable(err)
	}
	return vec, nil
}

// EmbedBatch embeds texts in provider-sized batches. Callers truncate inputs.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.logger.Debug("generating embeddings", zap.Int("count", len(texts)))
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("batch embedding failed", zap.Int("count", len(texts)), zap.Error(err))
		return nil, unavailable(err)
	}
	if len(vecs) != len(texts) {
		return nil, unavailable(fmt.Errorf("provider returned %d embeddings for %d inputs", len(vecs), len(texts)))
	}
	if err := checkDimensions(vecs, e.dimensions); err != nil {
		return nil, unavailable(err)
	}
	return vecs, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

func (e *OpenAIEmbedder) Close() error { return nil }

func unavailable(err error) error {
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
