package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/embedding"
	"github.com/cloo-solutions/kbase/internal/language"
	"github.com/cloo-solutions/kbase/internal/logging"
	"github.com/cloo-solutions/kbase/internal/prompt"
	"github.com/cloo-solutions/kbase/internal/retrieval"
	"github.com/cloo-solutions/kbase/internal/telemetry"
)

// VectorReader lists the vectorized chunks of a workspace in one language.
type VectorReader interface {
	ListVectorized(ctx context.Context, workspaceID string, lang domain.Language) ([]domain.KnowledgeChunk, error)
}

// WorkspaceReader loads workspace configuration.
type WorkspaceReader interface {
	GetByID(ctx context.Context, id string) (*domain.Workspace, error)
}

// RetrievalConfig holds the retrieval defaults.
type RetrievalConfig struct {
	MaxContexts int
	Lambda      float64
	// CacheSize bounds the query embedding cache; 0 disables it.
	CacheSize int
}

// RetrievalService answers queries with reranked contexts and a prompt payload.
type RetrievalService struct {
	vectors    VectorReader
	workspaces WorkspaceReader
	detector   *language.Detector
	provider   embedding.Provider
	cfg        RetrievalConfig
	logger     *zap.Logger
}

// NewRetrievalService creates a RetrievalService.
func NewRetrievalService(
	vectors VectorReader,
	workspaces WorkspaceReader,
	detector *language.Detector,
	provider embedding.Provider,
	cfg RetrievalConfig,
	logger *zap.Logger,
) *RetrievalService {
	if cfg.MaxContexts <= 0 {
		cfg.MaxContexts = retrieval.DefaultMaxContexts
	}
	if cfg.Lambda < 0 || cfg.Lambda > 1 {
		cfg.Lambda = retrieval.DefaultLambda
	}
	if detector == nil {
		detector = language.NewDetector(domain.DefaultLanguage)
	}
	if cfg.CacheSize > 0 {
		provider = embedding.NewCachedProvider(provider, cfg.CacheSize)
	}
	return &RetrievalService{
		vectors:    vectors,
		workspaces: workspaces,
		detector:   detector,
		provider:   provider,
		cfg:        cfg,
		logger:     logging.OrNop(logger),
	}
}

// RetrieveInput is one retrieval request. Zero MaxContexts and nil Lambda
// use the service defaults.
type RetrieveInput struct {
	WorkspaceID string
	Query       string
	Language    string
	MaxContexts int
	Lambda      *float64
}

// RetrieveMetadata describes how the contexts were selected.
type RetrieveMetadata struct {
	Language   domain.Language `json:"language"`
	Candidates int             `json:"candidates"`
	PoolSize   int             `json:"poolSize"`
	Returned   int             `json:"returned"`
	TopScore   float64         `json:"topScore"`
	Confidence float64         `json:"confidence"`
}

// RetrieveOutput is the retrieval result handed to answer generation.
type RetrieveOutput struct {
	Contexts []domain.ScoredChunk
	Metadata RetrieveMetadata
	Prompt   prompt.Payload
}

// Retrieve embeds the query, ranks the workspace's chunks in the resolved
// language and assembles the prompt payload. A workspace without matching
// chunks yields zero contexts, not an error.
func (s *RetrievalService) Retrieve(ctx context.Context, in RetrieveInput) (*RetrieveOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Retrieve", telemetry.SpanAttributes{
		WorkspaceID: in.WorkspaceID,
		Operation:   "retrieve",
	})
	defer span.End()

	if strings.TrimSpace(in.Query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	lambda := s.cfg.Lambda
	if in.Lambda != nil {
		if *in.Lambda < 0 || *in.Lambda > 1 {
			return nil, domain.NewValidationError("lambda must be within [0, 1]", fmt.Errorf("got %v", *in.Lambda))
		}
		lambda = *in.Lambda
	}
	maxContexts := in.MaxContexts
	if maxContexts <= 0 {
		maxContexts = s.cfg.MaxContexts
	}

	ws, err := s.workspaces.GetByID(ctx, in.WorkspaceID)
	if err != nil {
		return nil, err
	}
	lang := s.ResolveLanguage(ws, in.Language, in.Query)

	corpus, err := s.vectors.ListVectorized(ctx, ws.ID, lang)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	out := &RetrieveOutput{Metadata: RetrieveMetadata{Language: lang, Candidates: len(corpus)}}
	if len(corpus) > 0 {
		query, err := s.provider.Embed(ctx, in.Query)
		if err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		ranked := retrieval.Rank(query, corpus, maxContexts, lambda)
		out.Contexts = ranked.Contexts
		out.Metadata.PoolSize = ranked.PoolSize
	}

	out.Metadata.Returned = len(out.Contexts)
	out.Metadata.TopScore, out.Metadata.Confidence = confidence(out.Contexts)
	out.Prompt = prompt.Assemble(ws.Tone, lang, out.Contexts)

	s.logger.Debug("retrieval complete",
		zap.String("workspace_id", ws.ID),
		zap.String("language", string(lang)),
		zap.Int("candidates", out.Metadata.Candidates),
		zap.Int("returned", out.Metadata.Returned),
		zap.Float64("confidence", out.Metadata.Confidence))
	return out, nil
}

// ResolveLanguage picks the retrieval language: a requested language the
// workspace supports, then the detected query language when the workspace
// supports it, then the workspace default.
func (s *RetrievalService) ResolveLanguage(ws *domain.Workspace, requested, query string) domain.Language {
	if l, ok := domain.ParseLanguage(requested); ok && ws.Supports(l) {
		return l
	}
	if detected := s.detector.Detect(query); ws.Supports(detected) {
		return detected
	}
	return ws.DefaultLanguage()
}

// confidence returns the top score and the mean score mapped onto [0,1].
func confidence(contexts []domain.ScoredChunk) (top, mean float64) {
	if len(contexts) == 0 {
		return 0, 0
	}
	var sum float64
	for i, c := range contexts {
		if i == 0 || c.Score > top {
			top = c.Score
		}
		sum += (c.Score + 1) / 2
	}
	return top, sum / float64(len(contexts))
}
