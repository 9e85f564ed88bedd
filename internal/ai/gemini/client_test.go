package gemini

import (
	"context"
	"net/http"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/cv-matcher/internal/ai"
)

type fakeResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type fakeModels struct {
	generate []fakeResponse
	prompts  []string

	embedding    []float32
	embedErr     error
	embedConfigs []*genai.EmbedContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, _ string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.prompts = append(f.prompts, contents[0].Parts[0].Text)
	next := f.generate[0]
	f.generate = f.generate[1:]
	return next.resp, next.err
}

func (f *fakeModels) EmbedContent(_ context.Context, _ string, _ []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.embedConfigs = append(f.embedConfigs, config)
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return &genai.EmbedContentResponse{Embeddings: []*genai.ContentEmbedding{{Values: f.embedding}}}, nil
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func testCall() ai.CallOptions {
	return withRetryable(ai.CallOptions{
		MaxRetries: 2,
		NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	})
}

func TestGeneratorRetriesOnTemporaryError(t *testing.T) {
	models := &fakeModels{generate: []fakeResponse{
		{err: genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}},
		{resp: textResponse("Skills: Go", "Experience: 4")},
	}}
	g := &Generator{models: models, modelName: "gemini-pro", call: testCall(), logger: zap.NewNop()}

	output, err := g.GenerateContent(context.Background(), "summarize")
	require.NoError(t, err)
	assert.Equal(t, "Skills: Go\nExperience: 4", output)
	assert.Equal(t, []string{"summarize", "summarize"}, models.prompts)
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	tempErr := genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED"}
	models := &fakeModels{generate: []fakeResponse{{err: tempErr}, {err: tempErr}, {err: tempErr}}}
	g := &Generator{models: models, modelName: "gemini-pro", call: testCall(), logger: zap.NewNop()}

	_, err := g.GenerateContent(context.Background(), "summarize")
	require.Error(t, err)
	assert.Len(t, models.prompts, 3)
}

func TestGeneratorDoesNotRetryInvalidArgument(t *testing.T) {
	models := &fakeModels{generate: []fakeResponse{{err: genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"}}}}
	g := &Generator{models: models, modelName: "gemini-pro", call: testCall(), logger: zap.NewNop()}

	_, err := g.GenerateContent(context.Background(), "summarize")
	require.Error(t, err)
	assert.Len(t, models.prompts, 1)
}

func TestGeneratorEmptyResponse(t *testing.T) {
	g := &Generator{models: &fakeModels{generate: []fakeResponse{{resp: textResponse(" ")}}}, modelName: "gemini-pro", call: testCall(), logger: zap.NewNop()}

	_, err := g.GenerateContent(context.Background(), "summarize")
	require.EqualError(t, err, "gemini api returned empty response")
}

func TestEmbedderDimensions(t *testing.T) {
	models := &fakeModels{embedding: []float32{1, 2, 3}}
	e := &Embedder{models: models, modelName: "text-embedding-004", call: testCall(), logger: zap.NewNop()}

	dims, err := e.Dimensions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, dims)
	assert.Nil(t, models.embedConfigs[0])

	e.outputDims = 256
	dims, err = e.Dimensions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 256, dims)
	assert.Len(t, models.embedConfigs, 1, "configured dimensionality must not probe the model")
}

func TestEmbedderPassesOutputDimensionality(t *testing.T) {
	models := &fakeModels{embedding: []float32{0.5, 0.5}}
	e := &Embedder{models: models, modelName: "text-embedding-004", outputDims: 2, call: testCall(), logger: zap.NewNop()}

	got, err := e.Embed(context.Background(), "Skills: Go")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, got)
	require.NotNil(t, models.embedConfigs[0])
	assert.Equal(t, int32(2), *models.embedConfigs[0].OutputDimensionality)
}

func TestNewGeneratorRequiresAPIKey(t *testing.T) {
	_, err := NewGenerator(context.Background(), Config{}, zap.NewNop())
	require.EqualError(t, err, "gemini api key is required")
}
