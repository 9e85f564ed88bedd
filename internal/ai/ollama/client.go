package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/ai"
	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/utils"
)

const (
	defaultHost  = "http://localhost:11434"
	defaultModel = "llama3.1"

	embeddingLengthSuffix = ".embedding_length"
)

// Config selects the Ollama server and models.
type Config struct {
	Host           string
	Model          string
	EmbeddingModel string
	MaxLogLength   int
	Call           ai.CallOptions
}

type apiClient interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
	Embed(ctx context.Context, req *api.EmbedRequest) (*api.EmbedResponse, error)
	Show(ctx context.Context, req *api.ShowRequest) (*api.ShowResponse, error)
}

func newAPIClient(host string) (*api.Client, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		host = defaultHost
	}

	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host %q: %w", host, err)
	}

	return api.NewClient(base, http.DefaultClient), nil
}

func (c Config) chatModel() string {
	if m := strings.TrimSpace(c.Model); m != "" {
		return m
	}
	return defaultModel
}

func (c Config) embeddingModel() string {
	if m := strings.TrimSpace(c.EmbeddingModel); m != "" {
		return m
	}
	return c.chatModel()
}

// Generator sends single-message chat requests to Ollama.
type Generator struct {
	client       apiClient
	model        string
	maxLogLength int
	call         ai.CallOptions
	logger       *zap.Logger
}

// NewGenerator creates a Generator for cfg.Model.
func NewGenerator(cfg Config, log *zap.Logger) (*Generator, error) {
	client, err := newAPIClient(cfg.Host)
	if err != nil {
		return nil, err
	}

	model := cfg.chatModel()
	log = logger.WithCommonFields(log, ai.ProviderOllama, model)
	cfg.Call.Logger = log

	return &Generator{
		client:       client,
		model:        model,
		maxLogLength: cfg.MaxLogLength,
		call:         withRetryable(cfg.Call),
		logger:       log,
	}, nil
}

// GenerateContent returns the assistant reply for prompt.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	g.logger.Debug("sending chat request", zap.String("prompt", utils.TruncateForLog(prompt, g.maxLogLength)))

	output, err := ai.Call(ctx, g.call, "ollama chat", func(ctx context.Context) (string, error) {
		stream := false
		req := &api.ChatRequest{
			Model:    g.model,
			Messages: []api.Message{{Role: "user", Content: prompt}},
			Stream:   &stream,
		}

		var builder strings.Builder
		err := g.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			builder.WriteString(resp.Message.Content)
			return nil
		})
		if err != nil {
			return "", err
		}

		return strings.TrimSpace(builder.String()), nil
	})
	if err != nil {
		return "", err
	}

	if output == "" {
		return "", errors.New("ollama returned empty response")
	}

	g.logger.Debug("received chat response", zap.String("response", utils.TruncateForLog(output, g.maxLogLength)))

	return output, nil
}

func (g *Generator) Model() string { return g.model }

// Embedder requests embeddings from Ollama.
type Embedder struct {
	client apiClient
	model  string
	call   ai.CallOptions
	logger *zap.Logger
}

// NewEmbedder creates an Embedder for cfg.EmbeddingModel, falling back to cfg.Model.
func NewEmbedder(cfg Config, log *zap.Logger) (*Embedder, error) {
	client, err := newAPIClient(cfg.Host)
	if err != nil {
		return nil, err
	}

	model := cfg.embeddingModel()
	log = logger.WithCommonFields(log, ai.ProviderOllama, model)
	cfg.Call.Logger = log

	return &Embedder{client: client, model: model, call: withRetryable(cfg.Call), logger: log}, nil
}

// Embed returns the embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := ai.Call(ctx, e.call, "ollama embed", func(ctx context.Context) (*api.EmbedResponse, error) {
		return e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: text})
	})
	if err != nil {
		return nil, err
	}

	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, errors.New("ollama returned empty embedding")
	}

	return resp.Embeddings[0], nil
}

// Dimensions reads the embedding length the model declares in its metadata.
func (e *Embedder) Dimensions(ctx context.Context) (int, error) {
	resp, err := ai.Call(ctx, e.call, "ollama show", func(ctx context.Context) (*api.ShowResponse, error) {
		return e.client.Show(ctx, &api.ShowRequest{Model: e.model})
	})
	if err != nil {
		return 0, err
	}

	for key, value := range resp.ModelInfo {
		if !strings.HasSuffix(key, embeddingLengthSuffix) {
			continue
		}
		if n, ok := toInt(value); ok && n > 0 {
			return n, nil
		}
	}

	return 0, fmt.Errorf("model %s does not declare an embedding length", e.model)
}

func (e *Embedder) Model() string { return e.model }

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

func withRetryable(opts ai.CallOptions) ai.CallOptions {
	opts.Retryable = isTemporary
	return opts
}

func isTemporary(err error) bool {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return ai.RetryableStatus(statusErr.StatusCode)
	}
	return ai.IsTemporary(err)
}
