package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/cv-matcher/internal/ai"
	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/utils"
)

const (
	defaultModel          = "gemini-2.5-flash"
	defaultEmbeddingModel = "text-embedding-004"

	dimensionProbe = "dimension probe"
)

// Config selects the Gemini models used for summaries and embeddings.
type Config struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	// OutputDimensionality truncates embeddings when positive.
	OutputDimensionality int
	MaxLogLength         int
	Call                 ai.CallOptions
}

type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

func newModels(ctx context.Context, apiKey string) (modelsAPI, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return client.Models, nil
}

// Generator wraps the Google GenAI client to provide simple prompt-based interactions.
type Generator struct {
	models       modelsAPI
	modelName    string
	maxLogLength int
	call         ai.CallOptions
	logger       *zap.Logger
}

// NewGenerator creates a new Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, cfg Config, log *zap.Logger) (*Generator, error) {
	models, err := newModels(ctx, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	log = logger.WithCommonFields(log, ai.ProviderGemini, model)
	cfg.Call.Logger = log

	return &Generator{
		models:       models,
		modelName:    model,
		maxLogLength: cfg.MaxLogLength,
		call:         withRetryable(cfg.Call),
		logger:       log,
	}, nil
}

// GenerateContent sends the prompt to Gemini and returns the textual response.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	g.logger.Debug("sending generate request", zap.String("prompt", utils.TruncateForLog(prompt, g.maxLogLength)))

	resp, err := ai.Call(ctx, g.call, "gemini generate", func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return g.models.GenerateContent(ctx, g.modelName, genai.Text(prompt), nil)
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	output := responseText(resp)
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	g.logger.Debug("received generate response", zap.String("response", utils.TruncateForLog(output, g.maxLogLength)))

	return output, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.modelName
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}

// Embedder requests embeddings through Models.EmbedContent.
type Embedder struct {
	models     modelsAPI
	modelName  string
	outputDims int
	call       ai.CallOptions
	logger     *zap.Logger
}

// NewEmbedder creates an Embedder for cfg.EmbeddingModel.
func NewEmbedder(ctx context.Context, cfg Config, log *zap.Logger) (*Embedder, error) {
	models, err := newModels(ctx, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	model := strings.TrimSpace(cfg.EmbeddingModel)
	if model == "" {
		model = defaultEmbeddingModel
	}

	log = logger.WithCommonFields(log, ai.ProviderGemini, model)
	cfg.Call.Logger = log

	return &Embedder{
		models:     models,
		modelName:  model,
		outputDims: cfg.OutputDimensionality,
		call:       withRetryable(cfg.Call),
		logger:     log,
	}, nil
}

// Embed returns the embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var config *genai.EmbedContentConfig
	if e.outputDims > 0 {
		dims := int32(e.outputDims)
		config = &genai.EmbedContentConfig{OutputDimensionality: &dims}
	}

	resp, err := ai.Call(ctx, e.call, "gemini embed", func(ctx context.Context) (*genai.EmbedContentResponse, error) {
		return e.models.EmbedContent(ctx, e.modelName, genai.Text(text), config)
	})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}

	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("gemini api returned empty embedding")
	}

	return resp.Embeddings[0].Values, nil
}

// Dimensions returns the configured output dimensionality, or the length of a probe embedding.
func (e *Embedder) Dimensions(ctx context.Context) (int, error) {
	if e.outputDims > 0 {
		return e.outputDims, nil
	}

	probe, err := e.Embed(ctx, dimensionProbe)
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimensions: %w", err)
	}

	return len(probe), nil
}

func (e *Embedder) Model() string { return e.modelName }

func withRetryable(opts ai.CallOptions) ai.CallOptions {
	opts.Retryable = isTemporary
	return opts
}

func isTemporary(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return ai.RetryableStatus(apiErr.Code)
	}
	return ai.IsTemporary(err)
}
