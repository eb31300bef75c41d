package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/kbase/internal/cli"
	"github.com/cloo-solutions/kbase/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kbased",
		Short: "Knowledge base daemon and CLI",
		Long: `Knowledge base daemon for running the API server and the chunking and
embedding workers, and for ingesting and querying documents directly against
the configured store.

Configuration is read from KBASE_* environment variables (and .env).`,
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.Commands()...)

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
