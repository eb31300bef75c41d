package openai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/embedding"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.AdaEmbeddingV2
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from ada-002
	DefaultEmbeddingDimensions = 1536
)

var _ embedding.Provider = (*Client)(nil)

// EmbeddingResponse is the provider-neutral result of one API call.
type EmbeddingResponse struct {
	Vectors [][]float32
	Usage   domain.EmbeddingUsage
}

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) (*EmbeddingResponse, error)
}

// Client adapts the OpenAI embeddings API to embedding.Provider.
type Client struct {
	api        EmbeddingAPI
	model      string
	dimensions int
}

type OpenAIAdapter struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

func NewOpenAIAdapter(cfg Config) *OpenAIAdapter {
	model := cfg.EmbeddingModel
	if model == "" {
		model = DefaultEmbeddingModel
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	a := &OpenAIAdapter{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}
	// ada-002 has a fixed size and rejects the dimensions parameter.
	if model != openai.AdaEmbeddingV2 {
		a.dimensions = cfg.EmbeddingDimensions
	}
	return a
}

// CreateEmbeddings calls the OpenAI API to create embeddings
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string) (*EmbeddingResponse, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      a.model,
		Dimensions: a.dimensions,
	})
	if err != nil {
		return nil, toEmbeddingError(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, &domain.EmbeddingError{
			Message: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data)),
		}
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := &EmbeddingResponse{
		Vectors: make([][]float32, len(data)),
		Usage: domain.EmbeddingUsage{
			PromptTokens: resp.Usage.PromptTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	for i, d := range data {
		out.Vectors[i] = d.Embedding
	}
	return out, nil
}

// toEmbeddingError maps SDK failures onto the provider-neutral error shape.
func toEmbeddingError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if code, ok := apiErr.Code.(string); ok && code != "" {
			msg = code + ": " + msg
		}
		return &domain.EmbeddingError{StatusCode: apiErr.HTTPStatusCode, Message: msg, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &domain.EmbeddingError{
			StatusCode:    reqErr.HTTPStatusCode,
			TransportCode: embedding.TransportCode(reqErr.Err),
			Message:       strings.TrimSpace(reqErr.Error()),
			Err:           err,
		}
	}

	return embedding.WrapError(err, 0)
}

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	cfg.EmbeddingDimensions = dimensions
	model := cfg.EmbeddingModel
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Client{
		api:        NewOpenAIAdapter(cfg),
		model:      string(model),
		dimensions: dimensions,
	}
}

// Model implements embedding.Provider.
func (c *Client) Model() string {
	return c.model
}

// Embed generates an embedding for the given text
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, embedding.ErrEmptyText
	}

	resp, err := c.api.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, embedding.WrapError(err, 0)
	}
	if len(resp.Vectors) == 0 {
		return nil, &domain.EmbeddingError{Message: "no embedding data returned"}
	}

	if err := embedding.CheckDimensions(resp.Vectors[0], c.dimensions); err != nil {
		return nil, err
	}
	return resp.Vectors[0], nil
}

// EmbedBatch generates embeddings for texts in one request, preserving order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) (*embedding.BatchResult, error) {
	if len(texts) == 0 {
		return &embedding.BatchResult{}, nil
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, embedding.ErrEmptyText
		}
	}

	resp, err := c.api.CreateEmbeddings(ctx, texts)
	if err != nil {
		return nil, embedding.WrapError(err, 0)
	}
	if len(resp.Vectors) != len(texts) {
		return nil, &domain.EmbeddingError{
			Message: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Vectors)),
		}
	}
	for _, v := range resp.Vectors {
		if err := embedding.CheckDimensions(v, c.dimensions); err != nil {
			return nil, err
		}
	}
	return &embedding.BatchResult{Vectors: resp.Vectors, Usage: resp.Usage}, nil
}
