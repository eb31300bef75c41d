package admin

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloo-solutions/kbase/internal/config"
	"github.com/cloo-solutions/kbase/internal/database"
)

// WorkerCmd runs the chunking and embedding workers without the API.
func WorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the chunking and embedding workers",
		Long:  "Poll the chunking and embedding queues until interrupted. Requires KBASE_STORE=postgres.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			return withApp(ctx, AppOptions{}, func(rt *runtime, app *App) error {
				if rt.cfg.Store == config.StoreMemory {
					return errMemoryStore
				}

				workers := app.Workers()
				for _, w := range workers {
					go w.Start(ctx)
				}

				quit := make(chan os.Signal, 1)
				signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
				defer signal.Stop(quit)
				<-quit

				rt.logger.Info("stopping workers", zap.Int("count", len(workers)))
				for _, w := range workers {
					w.Stop()
				}
				return nil
			})
		},
	}
}

// MigrateCmd applies pending database migrations.
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.flush()

			if rt.cfg.Store == config.StoreMemory {
				return errMemoryStore
			}
			source, _ := cmd.Flags().GetString("source")
			if source == "" {
				source = rt.cfg.Migrations
			}
			return database.Migrate(rt.cfg.DatabaseURL, source, rt.logger)
		},
	}
	cmd.Flags().String("source", "", "Migration source URL (defaults to KBASE_MIGRATIONS)")
	return cmd
}
