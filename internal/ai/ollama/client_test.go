package ollama

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/ai"
)

type fakeAPI struct {
	chatReplies []string
	chatErrs    []error
	chatReqs    []*api.ChatRequest

	embeddings [][]float32
	embedErr   error

	modelInfo map[string]any
}

func (f *fakeAPI) Chat(_ context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error {
	f.chatReqs = append(f.chatReqs, req)
	if len(f.chatErrs) > 0 {
		err := f.chatErrs[0]
		f.chatErrs = f.chatErrs[1:]
		if err != nil {
			return err
		}
	}
	for _, reply := range f.chatReplies {
		if err := fn(api.ChatResponse{Message: api.Message{Role: "assistant", Content: reply}}); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeAPI) Embed(_ context.Context, req *api.EmbedRequest) (*api.EmbedResponse, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return &api.EmbedResponse{Model: req.Model, Embeddings: f.embeddings}, nil
}

func (f *fakeAPI) Show(context.Context, *api.ShowRequest) (*api.ShowResponse, error) {
	return &api.ShowResponse{ModelInfo: f.modelInfo}, nil
}

func testCall() ai.CallOptions {
	return withRetryable(ai.CallOptions{
		MaxRetries: 2,
		NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	})
}

func TestGeneratorJoinsChunksAndRetriesUnavailable(t *testing.T) {
	fake := &fakeAPI{
		chatErrs:    []error{api.StatusError{StatusCode: http.StatusServiceUnavailable, Status: "503 Service Unavailable"}},
		chatReplies: []string{"Skills: Go", ", SQL\n"},
	}
	g := &Generator{client: fake, model: "llama3.1", call: testCall(), logger: zap.NewNop()}

	got, err := g.GenerateContent(context.Background(), "  Summarize this CV  ")
	require.NoError(t, err)
	assert.Equal(t, "Skills: Go, SQL", got)

	require.Len(t, fake.chatReqs, 2)
	req := fake.chatReqs[1]
	assert.Equal(t, "llama3.1", req.Model)
	require.NotNil(t, req.Stream)
	assert.False(t, *req.Stream)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "Summarize this CV", req.Messages[0].Content)
}

func TestGeneratorDoesNotRetryBadRequest(t *testing.T) {
	fake := &fakeAPI{chatErrs: []error{api.StatusError{StatusCode: http.StatusNotFound, ErrorMessage: "model not found"}}}
	g := &Generator{client: fake, model: "missing", call: testCall(), logger: zap.NewNop()}

	_, err := g.GenerateContent(context.Background(), "prompt")
	require.Error(t, err)
	assert.Len(t, fake.chatReqs, 1)
}

func TestGeneratorRejectsEmptyResponse(t *testing.T) {
	g := &Generator{client: &fakeAPI{chatReplies: []string{"  "}}, model: "llama3.1", call: testCall(), logger: zap.NewNop()}

	_, err := g.GenerateContent(context.Background(), "prompt")
	require.EqualError(t, err, "ollama returned empty response")
}

func TestEmbedderReturnsFirstEmbedding(t *testing.T) {
	e := &Embedder{client: &fakeAPI{embeddings: [][]float32{{0.1, 0.2, 0.3}}}, model: "llama3.1", call: testCall(), logger: zap.NewNop()}

	got, err := e.Embed(context.Background(), "Skills: Go")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got)
}

func TestEmbedderEmptyEmbeddingIsAnError(t *testing.T) {
	e := &Embedder{client: &fakeAPI{}, model: "llama3.1", call: testCall(), logger: zap.NewNop()}

	_, err := e.Embed(context.Background(), "Skills: Go")
	require.Error(t, err)
}

func TestEmbedderPropagatesFailure(t *testing.T) {
	boom := errors.New("connection refused")
	e := &Embedder{client: &fakeAPI{embedErr: boom}, model: "llama3.1", call: testCall(), logger: zap.NewNop()}

	_, err := e.Embed(context.Background(), "Skills: Go")
	require.ErrorIs(t, err, boom)
}

func TestEmbedderDimensionsFromModelInfo(t *testing.T) {
	e := &Embedder{
		client: &fakeAPI{modelInfo: map[string]any{
			"general.architecture":   "llama",
			"llama.embedding_length": float64(4096),
		}},
		model:  "llama3.1",
		call:   testCall(),
		logger: zap.NewNop(),
	}

	got, err := e.Dimensions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4096, got)

	e.client = &fakeAPI{modelInfo: map[string]any{"general.architecture": "llama"}}
	_, err = e.Dimensions(context.Background())
	require.Error(t, err)
}

func TestConfigModelDefaults(t *testing.T) {
	assert.Equal(t, "llama3.1", Config{}.chatModel())
	assert.Equal(t, "llama3.1", Config{}.embeddingModel())
	assert.Equal(t, "nomic-embed-text", Config{Model: "llama3.1", EmbeddingModel: "nomic-embed-text"}.embeddingModel())
}
