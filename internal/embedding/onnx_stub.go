//go:build !cgo

package embedding

import (
	"context"
	"fmt"
)

// ONNXConfig configures the local model adapter.
type ONNXConfig struct {
	ModelPath  string
	Dimensions int
	MaxTokens  int
}

// ONNXEmbedder is unavailable in builds without CGO.
type ONNXEmbedder struct{}

// NewONNXEmbedder always fails without CGO.
func NewONNXEmbedder(ONNXConfig) (*ONNXEmbedder, error) {
	return nil, fmt.Errorf("%w: ONNX embedder requires CGO and onnxruntime", ErrUnavailable)
}

func (*ONNXEmbedder) Available() bool { return false }

func (*ONNXEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, ErrUnavailable }

func (*ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, ErrUnavailable
}

func (*ONNXEmbedder) Dimensions() int { return 0 }

func (*ONNXEmbedder) Close() error { return nil }
