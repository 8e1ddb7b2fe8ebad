package embed

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/sells-group/bioscope/internal/resilience"
)

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Dimensions requests a truncated embedding when > 0 and is checked
	// against every response.
	Dimensions        int
	RequestsPerSecond float64
	Retry             resilience.Policy
}

// OpenAIEmbedder calls the embeddings API through go-openai.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   string
	dims    int
	limiter *rate.Limiter
	retry   resilience.Policy
}

// NewOpenAIEmbedder creates an embedder for cfg.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	retry := cfg.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.LogRetries("embed", "openai")
	}
	return &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(oc),
		model:   model,
		dims:    cfg.Dimensions,
		limiter: rate.NewLimiter(limit, 1),
		retry:   retry,
	}
}

// Dimensions implements Embedder.
func (o *OpenAIEmbedder) Dimensions() int { return o.dims }

// Embed implements Embedder.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	// Errors stay unwrapped inside the retry loop so IsTransient sees the
	// API status codes.
	vec, err := resilience.RetryVal(ctx, o.retry, func(ctx context.Context) ([]float32, error) {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      []string{text},
			Model:      openai.EmbeddingModel(o.model),
			Dimensions: o.dims,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 {
			return nil, eris.New("embed: empty embeddings response")
		}
		return resp.Data[0].Embedding, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "embed: create embeddings")
	}
	if o.dims > 0 && len(vec) != o.dims {
		return nil, eris.Errorf("embed: got %d dimensions, want %d", len(vec), o.dims)
	}
	return vec, nil
}
