package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloo-solutions/kbase/internal/api/handlers"
	"github.com/cloo-solutions/kbase/internal/api/middleware"
	"github.com/cloo-solutions/kbase/internal/jobs"
	"github.com/cloo-solutions/kbase/internal/server"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the kbase API server and, unless disabled, the chunking and embedding workers",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (defaults to KBASE_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-workers", false, "Serve the API only; run workers with `kbased worker`")
	cmd.Flags().StringP("workspaces", "w", "", "YAML file of workspaces to apply on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	noWorkers, _ := cmd.Flags().GetBool("no-workers")
	workspaceFile, _ := cmd.Flags().GetString("workspaces")
	port, _ := cmd.Flags().GetString("port")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := AppOptions{Migrate: !noMigrate, EnsureBucket: true}
	return withApp(ctx, opts, func(rt *runtime, app *App) error {
		if port == "" {
			port = rt.cfg.Port
		}

		if workspaceFile != "" {
			n, err := applyWorkspaceFile(ctx, app.Workspaces, workspaceFile)
			if err != nil {
				return err
			}
			rt.logger.Info("workspaces applied", zap.Int("count", n), zap.String("file", workspaceFile))
		}

		var workers []*jobs.Worker
		if !noWorkers {
			workers = app.Workers()
			for _, w := range workers {
				go w.Start(ctx)
			}
		}

		srv := &http.Server{
			Addr:              ":" + port,
			Handler:           newRouter(rt, app),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			rt.logger.Info("starting server", zap.String("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case <-quit:
		case err := <-errCh:
			return fmt.Errorf("server failed: %w", err)
		}
		rt.logger.Info("shutting down...")

		for _, w := range workers {
			w.Stop()
		}

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		rt.logger.Info("server exited")
		return nil
	})
}

func newRouter(rt *runtime, app *App) http.Handler {
	cfg := server.RouterConfig{
		Logger:           rt.logger,
		AllowedOrigins:   rt.cfg.CORSOrigins,
		DocumentHandler:  handlers.NewDocumentHandler(app.Ingestion),
		RetrievalHandler: handlers.NewRetrievalHandler(app.Retrieval),
		WorkspaceHandler: handlers.NewWorkspaceHandler(app.Workspaces),
		JobHandler:       handlers.NewJobHandler(app.Queue),
	}
	if tokens := rt.cfg.Tokens(); len(tokens) > 0 {
		cfg.TokenValidator = middleware.StaticTokens(tokens)
	} else {
		rt.logger.Warn("KBASE_API_TOKENS is empty; the API is unauthenticated")
	}
	return server.NewRouter(cfg)
}
