package matching

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/ai"
	"github.com/spigell/cv-matcher/internal/logger"
)

// DefaultFallbackDimensions is used when the model does not report its output shape.
const DefaultFallbackDimensions = 4096

// EmbedderConfig controls the vector length.
type EmbedderConfig struct {
	// Dimensions overrides the length reported by the model when positive.
	Dimensions int
	// FallbackDimensions applies when the model cannot report its length.
	FallbackDimensions int
}

// Embedder maps text to vectors of a fixed length. It never fails: any
// problem with the model yields a zero vector.
type Embedder struct {
	model  ai.EmbeddingModel
	dims   int
	logger *zap.Logger
}

// NewEmbedder resolves the vector length once: the configured override, the
// length the model declares, or the fallback, in that order.
func NewEmbedder(ctx context.Context, model ai.EmbeddingModel, cfg EmbedderConfig, log *zap.Logger) *Embedder {
	log = logger.OrNop(log)

	dims := cfg.Dimensions
	if dims <= 0 {
		declared, err := model.Dimensions(ctx)
		if err == nil && declared > 0 {
			dims = declared
		} else {
			dims = cfg.FallbackDimensions
			if dims <= 0 {
				dims = DefaultFallbackDimensions
			}
			log.Warn("embedding dimensions unknown, using fallback",
				zap.String(logger.FieldModel, model.Model()),
				zap.Int("dimensions", dims),
				zap.Error(err),
			)
		}
	}

	log.Info("embedding dimensions resolved", zap.String(logger.FieldModel, model.Model()), zap.Int("dimensions", dims))

	return &Embedder{model: model, dims: dims, logger: log}
}

// Dimensions is the length of every vector returned by Embed.
func (e *Embedder) Dimensions() int {
	return e.dims
}

// Embed returns the embedding of text, or a zero vector when text is blank or
// the model fails or answers with a vector of the wrong length.
func (e *Embedder) Embed(ctx context.Context, text string) []float32 {
	if strings.TrimSpace(text) == "" {
		return e.zero()
	}

	vector, err := e.model.Embed(ctx, text)
	if err == nil && len(vector) != e.dims {
		err = fmt.Errorf("embedding has %d dimensions, expected %d", len(vector), e.dims)
	}
	if err != nil {
		e.logger.Warn("embedding failed, using zero vector", zap.Error(err))
		return e.zero()
	}

	return vector
}

func (e *Embedder) zero() []float32 {
	return make([]float32, e.dims)
}
