package llm

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"prospect/internal/core"

	"github.com/spf13/viper"
	"google.golang.org/genai"
)

const (
	// DefaultModel is the default Gemini model for extraction and selection calls.
	DefaultModel = "gemini-2.5-flash-preview-05-20"
	// DefaultEmbeddingModel is the default model for generating embeddings.
	DefaultEmbeddingModel = "text-embedding-004"
	// DefaultEmbeddingDimensions is the output dimension for embeddings (Matryoshka).
	DefaultEmbeddingDimensions = int32(1024)
)

// Request describes a single completion call.
type Request struct {
	Prompt      string  // Full prompt text
	Model       string  // Model override (empty uses the provider default)
	MaxTokens   int32   // Maximum tokens to generate (0 = provider default)
	Temperature float32 // Sampling temperature; negative means provider default
	JSONOutput  bool    // Ask the provider for application/json output
}

// Response carries the completion text plus usage accounting.
type Response struct {
	Text         string        // Raw model output
	Model        string        // Model that served the call
	InputTokens  int           // Prompt tokens billed
	OutputTokens int           // Completion tokens billed
	Latency      time.Duration // Wall time of the provider call
}

// Embedding carries an embedding vector plus usage accounting.
type Embedding struct {
	Vector      []float64     // Embedding values
	Dimension   int           // len(Vector), for convenience
	Model       string        // Model that served the call
	InputTokens int           // Tokens billed for the input text
	Latency     time.Duration // Wall time of the provider call
}

// Provider is the narrow surface the pipeline phases call. Implementations
// must be safe for concurrent use.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Embed(ctx context.Context, text, model string) (Embedding, error)
	ModelName() string
}

// Client is the Gemini-backed Provider.
type Client struct {
	apiKey         string
	modelName      string
	embeddingModel string
	dimensions     int32
	gClient        *genai.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithEmbeddingModel overrides the embedding model.
func WithEmbeddingModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.embeddingModel = model
		}
	}
}

// WithEmbeddingDimensions overrides the requested embedding width.
func WithEmbeddingDimensions(dims int32) Option {
	return func(c *Client) {
		if dims > 0 {
			c.dimensions = dims
		}
	}
}

// NewClient creates a Gemini-backed provider.
// It supports multiple ways to get the API key (in order of preference):
// 1. Environment variable: GEMINI_API_KEY (or alternatives)
// 2. Viper configuration: ai.gemini.api_key
func NewClient(modelName string, opts ...Option) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		if apiKey = os.Getenv("GOOGLE_GEMINI_API_KEY"); apiKey == "" {
			if apiKey = os.Getenv("GOOGLE_AI_API_KEY"); apiKey == "" {
				apiKey = viper.GetString("ai.gemini.api_key")
			}
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file.\nGet your API key from: https://makersuite.google.com/app/apikey")
	}

	if modelName == "" {
		modelName = viper.GetString("ai.gemini.model")
		if modelName == "" {
			modelName = DefaultModel
		}
	}

	ctx := context.Background()
	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := &Client{
		apiKey:         apiKey,
		modelName:      modelName,
		embeddingModel: DefaultEmbeddingModel,
		dimensions:     DefaultEmbeddingDimensions,
		gClient:        gClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ModelName returns the completion model this client targets.
func (c *Client) ModelName() string {
	return c.modelName
}

// Complete runs a single completion call against Gemini.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	if req.Prompt == "" {
		return Response{}, core.E(core.KindLLMProviderError, "prompt cannot be empty")
	}

	modelName := c.modelName
	if req.Model != "" {
		modelName = req.Model
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: req.Prompt}},
		Role:  "user",
	}}

	var config *genai.GenerateContentConfig
	if req.MaxTokens > 0 || req.Temperature >= 0 || req.JSONOutput {
		config = &genai.GenerateContentConfig{}
		if req.MaxTokens > 0 {
			config.MaxOutputTokens = req.MaxTokens
		}
		if req.Temperature >= 0 {
			config.Temperature = genai.Ptr(req.Temperature)
		}
		if req.JSONOutput {
			config.ResponseMIMEType = "application/json"
		}
	}

	start := time.Now()
	resp, err := c.gClient.Models.GenerateContent(ctx, modelName, contents, config)
	latency := time.Since(start)
	if err != nil {
		return Response{}, classifyProviderError(err)
	}

	text := resp.Text()
	if text == "" {
		return Response{}, core.E(core.KindLLMProviderError, "empty response from model")
	}

	out := Response{
		Text:    text,
		Model:   modelName,
		Latency: latency,
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// Embed generates a vector embedding for the given text.
func (c *Client) Embed(ctx context.Context, text, model string) (Embedding, error) {
	if text == "" {
		return Embedding{}, core.E(core.KindLLMProviderError, "embedding input cannot be empty")
	}
	if model == "" {
		model = c.embeddingModel
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: text}},
		Role:  "user",
	}}

	dims := c.dimensions
	config := &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	}

	start := time.Now()
	resp, err := c.gClient.Models.EmbedContent(ctx, model, contents, config)
	latency := time.Since(start)
	if err != nil {
		return Embedding{}, classifyProviderError(err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return Embedding{}, core.E(core.KindLLMProviderError, "no embedding values returned from API")
	}

	values := resp.Embeddings[0].Values
	vector := make([]float64, len(values))
	for i, val := range values {
		vector[i] = float64(val)
	}

	return Embedding{
		Vector:    vector,
		Dimension: len(vector),
		Model:     model,
		Latency:   latency,
	}, nil
}

// classifyProviderError maps provider failures onto the stable error kinds the
// orchestrator keys retry decisions on. Quota exhaustion is the only class
// worth retrying with backoff.
func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "resource_exhausted"),
		strings.Contains(msg, "resource exhausted"),
		strings.Contains(msg, "quota"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"):
		return core.E(core.KindLLMRateLimited, "provider rate limit", err)
	default:
		return core.E(core.KindLLMProviderError, "provider call failed", err)
	}
}

// CosineSimilarity calculates the cosine similarity between two embeddings.
// Mismatched or zero-norm vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
