// Package admin implements the kbased commands: the API server, the job
// workers and local maintenance against the configured store.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloo-solutions/kbase/internal/config"
	"github.com/cloo-solutions/kbase/internal/logging"
	"github.com/cloo-solutions/kbase/internal/telemetry"
)

// Commands returns every kbased subcommand.
func Commands() []*cobra.Command {
	return []*cobra.Command{
		ServeCmd(),
		WorkerCmd(),
		MigrateCmd(),
		IngestCmd(),
		RetrieveCmd(),
		StatusCmd(),
		WorkspaceCmd(),
	}
}

// runtime is the process-wide state every command starts from.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	flush  func()
}

func newRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	// 10% of traces in production, all of them elsewhere
	sampleRate := 1.0
	if cfg.Environment == "production" {
		sampleRate = 0.1
	}
	shutdownTelemetry, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: sampleRate,
		Debug:            cfg.Debug,
		Logger:           logger,
	})
	if err != nil {
		logger.Warn("telemetry init failed (continuing without tracing)", zap.Error(err))
		shutdownTelemetry = func() {}
	}

	return &runtime{
		cfg:    cfg,
		logger: logger,
		flush: func() {
			shutdownTelemetry()
			_ = logger.Sync()
		},
	}, nil
}

// withApp loads the runtime, wires an App and hands both to fn.
func withApp(ctx context.Context, opts AppOptions, fn func(rt *runtime, app *App) error) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.flush()

	app, err := NewApp(ctx, rt.cfg, rt.logger, opts)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(rt, app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isJSON(cmd *cobra.Command) bool {
	format, _ := cmd.Flags().GetString("output")
	return format == "json"
}

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
}
