// Package openai provides a thin wrapper around the official OpenAI Go SDK for embeddings.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/ledgerlens/ledgerlens/internal/lenserrors"
)

var (
	// ErrEmptyInput is returned when CreateEmbedding is called with empty input.
	ErrEmptyInput = errors.New("openai: input text is empty")
	// ErrInvalidDims is returned when dimensions is not positive.
	ErrInvalidDims = errors.New("openai: embedding dimensions must be positive")
	// ErrNoEmbeddingInResponse is returned when the API response contains no embedding data.
	ErrNoEmbeddingInResponse = errors.New("openai: no embedding in response")
	// ErrDimensionMismatch is returned when a response embedding length does not match configured dimensions.
	ErrDimensionMismatch = errors.New("openai: embedding dimension mismatch")
)

const defaultDimension = 1536

// Client calls the OpenAI embeddings API via the official SDK.
type Client struct {
	sdk        openaisdk.Client
	model      openaisdk.EmbeddingModel
	dimensions int
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithDimensions sets the requested embedding dimension (must match the DB vector columns).
func WithDimensions(dim int) ClientOption {
	return func(c *Client) {
		c.dimensions = dim
	}
}

// WithModel sets the embedding model. Empty model keeps the default.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = openaisdk.EmbeddingModel(model)
		}
	}
}

// NewClient creates an OpenAI embeddings client using the official SDK.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := &Client{
		sdk:        openaisdk.NewClient(option.WithAPIKey(apiKey)),
		model:      openaisdk.EmbeddingModelTextEmbedding3Small,
		dimensions: defaultDimension,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// CreateEmbedding returns the embedding vector for the given text.
// The returned slice length equals the configured dimensions.
func (c *Client) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	if c.dimensions <= 0 {
		return nil, ErrInvalidDims
	}

	resp, err := c.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfString: param.NewOpt(input),
		},
		Model:      c.model,
		Dimensions: param.NewOpt(int64(c.dimensions)),
	})
	if err != nil {
		return nil, classifyProviderError(err)
	}

	if len(resp.Data) == 0 {
		return nil, ErrNoEmbeddingInResponse
	}

	return c.toFloat32(resp.Data[0].Embedding)
}

// CreateEmbeddings returns one embedding vector per input text, in input order.
// All inputs must be non-empty after trimming.
func (c *Client) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyInput
	}

	if c.dimensions <= 0 {
		return nil, ErrInvalidDims
	}

	trimmed := make([]string, len(inputs))

	for i, in := range inputs {
		in = strings.TrimSpace(in)
		if in == "" {
			return nil, fmt.Errorf("%w (index %d)", ErrEmptyInput, i)
		}

		trimmed[i] = in
	}

	resp, err := c.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: trimmed,
		},
		Model:      c.model,
		Dimensions: param.NewOpt(int64(c.dimensions)),
	})
	if err != nil {
		return nil, classifyProviderError(err)
	}

	if len(resp.Data) != len(trimmed) {
		return nil, fmt.Errorf("%w: got %d embeddings, want %d", ErrNoEmbeddingInResponse, len(resp.Data), len(trimmed))
	}

	out := make([][]float32, len(resp.Data))

	// Response order is not guaranteed; place by index.
	for _, data := range resp.Data {
		if data.Index < 0 || int(data.Index) >= len(out) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrNoEmbeddingInResponse, data.Index)
		}

		vec, err := c.toFloat32(data.Embedding)
		if err != nil {
			return nil, err
		}

		out[data.Index] = vec
	}

	return out, nil
}

func (c *Client) toFloat32(emb []float64) ([]float32, error) {
	if len(emb) != c.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(emb), c.dimensions)
	}

	out := make([]float32, len(emb))
	for i := range emb {
		out[i] = float32(emb[i])
	}

	return out, nil
}

// classifyProviderError maps SDK errors to the stable provider error kinds.
// The SDK error stays in the chain for logging; handlers surface only the kind.
func classifyProviderError(err error) error {
	var apierr *openaisdk.Error
	if errors.As(err, &apierr) && apierr.StatusCode == 429 {
		return fmt.Errorf("%w: %w", lenserrors.NewRateLimitedError("embedding provider rate limited"), err)
	}

	return fmt.Errorf("%w: %w", lenserrors.NewProviderError("embedding provider unavailable"), err)
}
