// Package embedding turns text into fixed-length vectors. Adapters cover a
// hosted OpenAI-compatible provider, a local ONNX model, a deterministic test
// embedder, and an "unavailable" stand-in used when nothing is configured.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable is the single failure callers see when no provider can serve
// a request: not configured, unreachable, timed out, or over quota.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Embedder produces vector embeddings for text.
type Embedder interface {
	// Available reports whether the adapter is backed by a real provider.
	// Search uses it to choose a scoring mode without attempting a call.
	Available() bool
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Unavailable is the no-op adapter selected when no provider is configured.
type Unavailable struct {
	dimensions int
}

// NewUnavailable returns an adapter that fails every call with ErrUnavailable.
func NewUnavailable(dimensions int) *Unavailable {
	return &Unavailable{dimensions: dimensions}
}

func (u *Unavailable) Available() bool { return false }

func (u *Unavailable) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrUnavailable
}

func (u *Unavailable) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, ErrUnavailable
}

func (u *Unavailable) Dimensions() int { return u.dimensions }

func (u *Unavailable) Close() error { return nil }

func checkDimensions(vectors [][]float32, want int) error {
	for _, v := range vectors {
		if want > 0 && len(v) != want {
			return &DimensionError{Got: len(v), Want: want}
		}
	}
	return nil
}

// DimensionError reports a provider returning vectors of the wrong size.
type DimensionError struct {
	Got, Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: got %d, expected %d", e.Got, e.Want)
}
