package admin

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/kbase/internal/config"
	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/parser"
	"github.com/cloo-solutions/kbase/internal/service"
)

type ingestOptions struct {
	Path        string
	WorkspaceID string
	DocumentID  string
	Title       string
	URL         string
	Sync        bool
	JSON        bool
}

// IngestCmd ingests a local text or Markdown file.
func IngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a text or Markdown file",
		Long: `Parse a file and queue it for chunking and embedding.

With --sync the document is chunked and embedded before the command returns.
With KBASE_STORE=memory the queued jobs are drained in-process.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Path = args[0]
			opts.JSON = isJSON(cmd)
			ctx := context.Background()
			return withApp(ctx, AppOptions{}, func(rt *runtime, app *App) error {
				return ingestFile(ctx, app, cmd.OutOrStdout(), opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.WorkspaceID, "workspace", "", "Workspace id (required)")
	cmd.Flags().StringVar(&opts.DocumentID, "document", "", "Document id (defaults to the file name)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "Title override (defaults to the first heading)")
	cmd.Flags().StringVar(&opts.URL, "url", "", "Canonical URL; records the document as a url source")
	cmd.Flags().BoolVar(&opts.Sync, "sync", false, "Embed before returning instead of queueing")
	_ = cmd.MarkFlagRequired("workspace")
	addOutputFlag(cmd)

	return cmd
}

type ingestReport struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
	Language   string `json:"language,omitempty"`
	Chunks     int    `json:"chunks,omitempty"`
	Vectorized int    `json:"vectorized,omitempty"`
	Deferred   int    `json:"deferred,omitempty"`
	Processed  int    `json:"processed_jobs,omitempty"`
}

func ingestFile(ctx context.Context, app *App, w io.Writer, opts ingestOptions) error {
	doc, err := parser.ParseFile(opts.Path)
	if err != nil {
		return err
	}

	base := filepath.Base(opts.Path)
	documentID := opts.DocumentID
	if documentID == "" {
		documentID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	title := opts.Title
	if title == "" {
		title = doc.Title
	}

	source := domain.DocumentSource{Type: domain.SourceTypeFile, Filename: base, Title: title}
	if opts.URL != "" {
		source = domain.DocumentSource{Type: domain.SourceTypeURL, URL: opts.URL, Title: title}
	}

	in := service.DocumentInput{
		DocumentID:  documentID,
		WorkspaceID: opts.WorkspaceID,
		Text:        doc.Text,
		Source:      source,
	}
	report := ingestReport{DocumentID: documentID}

	if opts.Sync {
		res, err := app.Ingestion.IngestSync(ctx, in)
		if err != nil {
			return err
		}
		report.JobID = res.JobID
		report.Language = string(res.Language)
		report.Chunks = res.Chunks
		report.Vectorized = res.Vectorized
		report.Deferred = res.Deferred
	} else {
		jobID, err := app.Ingestion.EnqueueDocumentJob(ctx, in)
		if err != nil {
			return err
		}
		report.JobID = jobID
	}

	// Deferred or queued work would be lost with the process otherwise.
	if app.Config.Store == config.StoreMemory && (!opts.Sync || report.Deferred > 0) {
		n, err := app.Drain(ctx)
		if err != nil {
			return fmt.Errorf("failed to drain queues: %w", err)
		}
		report.Processed = n
	}

	if opts.JSON {
		return printJSON(w, report)
	}
	fmt.Fprintf(w, "Document %s queued as job %s\n", report.DocumentID, report.JobID)
	if opts.Sync {
		fmt.Fprintf(w, "  language: %s, chunks: %d, vectorized: %d, deferred: %d\n",
			report.Language, report.Chunks, report.Vectorized, report.Deferred)
	}
	if report.Processed > 0 {
		fmt.Fprintf(w, "  processed %d jobs in-process\n", report.Processed)
	}
	return nil
}
