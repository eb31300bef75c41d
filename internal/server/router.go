package server

import (
	"net/http"

	"github.com/cloo-solutions/kbase/internal/api"
	"github.com/cloo-solutions/kbase/internal/api/handlers"
	"github.com/cloo-solutions/kbase/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

const defaultMaxBodyBytes int64 = 5 * 1024 * 1024

type RouterConfig struct {
	Logger *zap.Logger
	// TokenValidator guards /v1 when set.
	TokenValidator middleware.TokenValidator
	// AllowedOrigins enables CORS for browser callers when non-empty.
	AllowedOrigins []string
	MaxBodyBytes   int64

	DocumentHandler  *handlers.DocumentHandler
	RetrievalHandler *handlers.RetrievalHandler
	WorkspaceHandler *handlers.WorkspaceHandler
	JobHandler       *handlers.JobHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(cfg.Logger))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		if cfg.TokenValidator != nil {
			r.Use(middleware.BearerAuth(cfg.TokenValidator))
		}

		r.Post("/documents", cfg.DocumentHandler.Ingest)
		r.Get("/documents/{id}/chunks", cfg.DocumentHandler.ListChunks)
		r.Get("/chunks/{id}", cfg.DocumentHandler.GetChunk)
		r.Get("/jobs/{id}", cfg.JobHandler.Get)

		r.Route("/workspaces", func(r chi.Router) {
			r.Get("/", cfg.WorkspaceHandler.List)
			r.Get("/{id}", cfg.WorkspaceHandler.Get)
			r.Put("/{id}", cfg.WorkspaceHandler.Put)
			r.Post("/{id}/retrieve", cfg.RetrievalHandler.Retrieve)
		})
	})

	return r
}
