package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/kbase/internal/cli"
	"github.com/cloo-solutions/kbase/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "kbase",
		Short: "kbase CLI - ingest documents and retrieve cited contexts",
		Long: `kbase CLI talks to a kbased server to ingest documents, follow their
processing and retrieve ranked, cited contexts for a question.

Environment variables:
  KBASE_API_TOKEN   Bearer token, when the server requires one
  KBASE_API_URL     API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("token", "", "API token (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.IngestCmd())
	rootCmd.AddCommand(client.StatusCmd())
	rootCmd.AddCommand(client.JobCmd())
	rootCmd.AddCommand(client.RetrieveCmd())
	rootCmd.AddCommand(client.AuthCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
