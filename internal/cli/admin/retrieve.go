package admin

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/service"
)

// RetrieveCmd runs a retrieval against the configured store.
func RetrieveCmd() *cobra.Command {
	var (
		in     service.RetrieveInput
		lambda float64
	)

	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Retrieve ranked contexts for a query",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("lambda") {
				in.Lambda = &lambda
			}
			ctx := context.Background()
			return withApp(ctx, AppOptions{}, func(rt *runtime, app *App) error {
				return retrieve(ctx, app.Retrieval, cmd.OutOrStdout(), in, isJSON(cmd))
			})
		},
	}

	cmd.Flags().StringVar(&in.WorkspaceID, "workspace", "", "Workspace id (required)")
	cmd.Flags().StringVarP(&in.Query, "query", "q", "", "Query text (required)")
	cmd.Flags().StringVar(&in.Language, "language", "", "Preferred language code")
	cmd.Flags().IntVarP(&in.MaxContexts, "max-contexts", "k", 0, "Number of contexts to return")
	cmd.Flags().Float64Var(&lambda, "lambda", 0, "Relevance/diversity trade-off in [0, 1]")
	_ = cmd.MarkFlagRequired("workspace")
	_ = cmd.MarkFlagRequired("query")
	addOutputFlag(cmd)

	return cmd
}

type retriever interface {
	Retrieve(ctx context.Context, in service.RetrieveInput) (*service.RetrieveOutput, error)
}

func retrieve(ctx context.Context, svc retriever, w io.Writer, in service.RetrieveInput, asJSON bool) error {
	out, err := svc.Retrieve(ctx, in)
	if err != nil {
		return err
	}

	if asJSON {
		return printJSON(w, struct {
			Metadata  service.RetrieveMetadata `json:"metadata"`
			Citations []domain.Citation        `json:"citations"`
			Context   string                   `json:"context"`
		}{out.Metadata, out.Prompt.Citations, out.Prompt.Context})
	}

	md := out.Metadata
	fmt.Fprintf(w, "language=%s candidates=%d pool=%d returned=%d top=%.3f confidence=%.3f\n",
		md.Language, md.Candidates, md.PoolSize, md.Returned, md.TopScore, md.Confidence)
	if len(out.Contexts) == 0 {
		fmt.Fprintln(w, "No matching contexts.")
		return nil
	}
	for i, c := range out.Contexts {
		cite := out.Prompt.Citations[i]
		fmt.Fprintf(w, "\n[%s] %.3f %s\n", cite.ID, c.Score, cite.Title)
		fmt.Fprintf(w, "    %s\n", strings.ReplaceAll(cite.Snippet, "\n", " "))
	}
	return nil
}
