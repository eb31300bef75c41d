// Package telemetry wraps Sentry tracing for the ingestion pipeline and the
// retrieval path. Every helper degrades to a no-op when Sentry was never
// initialized.
package telemetry

import (
	"context"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/cloo-solutions/kbase/internal/logging"
)

const (
	serverName   = "kbased"
	flushTimeout = 5 * time.Second
)

// Config holds the configuration for Sentry initialization.
type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
	Logger           *zap.Logger
}

// Init initializes Sentry and returns a function that flushes pending events.
// An empty DSN or a failed init both yield a no-op flush.
func Init(cfg Config) (func(), error) {
	logger := logging.OrNop(cfg.Logger)
	if cfg.DSN == "" {
		return func() {}, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate <= 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		ServerName:       serverName,
		TracesSampler: sentry.TracesSampler(func(ctx sentry.SamplingContext) float64 {
			return sampleRate(ctx.Span, cfg.TracesSampleRate)
		}),
	})
	if err != nil {
		logger.Warn("sentry: failed to initialize, continuing without tracing", zap.Error(err))
		return func() {}, nil
	}

	logger.Info("sentry: tracing initialized",
		zap.String("environment", cfg.Environment),
		zap.Float64("sample_rate", cfg.TracesSampleRate))
	return func() { sentry.Flush(flushTimeout) }, nil
}

// sampleRate drops health probes and keeps child spans with their parent.
func sampleRate(span *sentry.Span, base float64) float64 {
	if span == nil {
		return base
	}
	if strings.HasSuffix(span.Name, " /health") {
		return 0
	}
	var root sentry.SpanID
	if span.ParentSpanID != root {
		if span.Sampled.Bool() {
			return 1
		}
		return 0
	}
	return base
}

// SpanAttributes are the pipeline identifiers attached to spans and events.
type SpanAttributes struct {
	WorkspaceID string
	DocumentID  string
	ChunkID     string
	JobID       string
	Operation   string
}

func (a SpanAttributes) tags() map[string]string {
	tags := make(map[string]string, 4)
	for k, v := range map[string]string{
		"workspace_id": a.WorkspaceID,
		"document_id":  a.DocumentID,
		"chunk_id":     a.ChunkID,
		"job_id":       a.JobID,
	} {
		if v != "" {
			tags[k] = v
		}
	}
	return tags
}

// Span wraps sentry.Span; the zero value is a valid no-op span.
type Span struct {
	inner *sentry.Span
}

// End finishes the span.
func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// SetError marks the span as errored and captures the exception.
func (s *Span) SetError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.inner.Status = sentry.SpanStatusInternalError
	if hub := sentry.GetHubFromContext(s.inner.Context()); hub != nil {
		hub.CaptureException(err)
	}
}

// Context returns the span's context.
func (s *Span) Context() context.Context {
	if s.inner != nil {
		return s.inner.Context()
	}
	return context.Background()
}

// StartSpan starts a child of the span already in ctx, or a new transaction
// when there is none (worker jobs run outside any HTTP request).
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}

	for k, v := range attrs.tags() {
		span.SetTag(k, v)
	}
	if attrs.Operation != "" {
		span.SetData("operation", attrs.Operation)
	}
	return span.Context(), &Span{inner: span}
}

// CaptureError reports err with the given identifiers as tags.
func CaptureError(ctx context.Context, err error, attrs SpanAttributes) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(attrs.tags())
		hub.CaptureException(err)
	})
}
