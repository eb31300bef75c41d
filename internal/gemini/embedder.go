// Package gemini adapts the Gemini embedding API to embedding.Provider.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/embedding"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultModel is the Gemini embedding model used when none is configured.
const DefaultModel = "gemini-embedding-001"

var _ embedding.Provider = (*Embedder)(nil)

// BatchAPI embeds a batch of texts, one vector per text in order.
type BatchAPI interface {
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder is an embedding.Provider backed by Gemini.
type Embedder struct {
	api        BatchAPI
	model      string
	dimensions int
	closer     func() error
}

type genaiAPI struct {
	model *genai.EmbeddingModel
}

func (a *genaiAPI) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	batch := a.model.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := a.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		out = append(out, e.Values)
	}
	return out, nil
}

// NewEmbedder connects to Gemini with an API key.
func NewEmbedder(ctx context.Context, apiKey, model string, dimensions int) (*Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Embedder{
		api:        &genaiAPI{model: cl.EmbeddingModel(model)},
		model:      model,
		dimensions: dimensions,
		closer:     cl.Close,
	}, nil
}

// Close releases the underlying client.
func (e *Embedder) Close() error {
	if e.closer != nil {
		return e.closer()
	}
	return nil
}

// Model implements embedding.Provider.
func (e *Embedder) Model() string {
	return e.model
}

// Embed implements embedding.Provider.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return res.Vectors[0], nil
}

// EmbedBatch implements embedding.Provider. Gemini reports no usage.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) (*embedding.BatchResult, error) {
	if len(texts) == 0 {
		return &embedding.BatchResult{}, nil
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, embedding.ErrEmptyText
		}
	}

	vecs, err := e.api.BatchEmbed(ctx, texts)
	if err != nil {
		return nil, toEmbeddingError(err)
	}
	if len(vecs) != len(texts) {
		return nil, &domain.EmbeddingError{
			Message: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(vecs)),
		}
	}
	for _, v := range vecs {
		if err := embedding.CheckDimensions(v, e.dimensions); err != nil {
			return nil, err
		}
	}
	return &embedding.BatchResult{Vectors: vecs}, nil
}

// grpcToHTTP maps gRPC codes onto the HTTP statuses the retry classifier knows.
var grpcToHTTP = map[codes.Code]int{
	codes.InvalidArgument:    400,
	codes.FailedPrecondition: 400,
	codes.Unauthenticated:    401,
	codes.PermissionDenied:   403,
	codes.NotFound:           404,
	codes.ResourceExhausted:  429,
	codes.Canceled:           499,
	codes.Internal:           500,
	codes.Unknown:            500,
	codes.Unimplemented:      501,
	codes.Unavailable:        503,
	codes.DeadlineExceeded:   504,
}

func toEmbeddingError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		msg := gErr.Message
		if msg == "" {
			msg = gErr.Error()
		}
		return &domain.EmbeddingError{StatusCode: gErr.Code, Message: msg, Err: err}
	}

	if code := embedding.TransportCode(err); code != "" {
		return embedding.WrapError(err, 0)
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK {
		return &domain.EmbeddingError{
			StatusCode: grpcToHTTP[st.Code()],
			Message:    st.Message(),
			Err:        err,
		}
	}

	return embedding.WrapError(err, 0)
}
