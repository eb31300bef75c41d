package client

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/kbase/internal/parser"
)

// SourceRequest describes where an ingested document came from.
type SourceRequest struct {
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
	Title    string `json:"title,omitempty"`
}

// IngestRequest represents the ingest API request.
type IngestRequest struct {
	DocumentID  string        `json:"document_id"`
	WorkspaceID string        `json:"workspace_id"`
	Text        string        `json:"text"`
	Source      SourceRequest `json:"source"`
	Sync        bool          `json:"sync,omitempty"`
}

// IngestResponse covers both the queued and the synchronous reply.
type IngestResponse struct {
	JobID      string `json:"job_id"`
	Language   string `json:"language,omitempty"`
	Chunks     int    `json:"chunks,omitempty"`
	Vectorized int    `json:"vectorized,omitempty"`
	Unchanged  int    `json:"unchanged,omitempty"`
	Deferred   int    `json:"deferred,omitempty"`
}

type ingestFlags struct {
	workspace string
	document  string
	title     string
	url       string
	sync      bool
}

// IngestCmd creates the ingest command.
func IngestCmd() *cobra.Command {
	var flags ingestFlags

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a text or Markdown file",
		Long: `Parses a local file and submits its text for chunking and embedding.

The document id defaults to the file name without extension; re-ingesting
the same document replaces changed chunks and keeps unchanged ones.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			c, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}
			return runIngest(cmd.Context(), c, cmd.OutOrStdout(), args[0], flags, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&flags.workspace, "workspace", "w", "", "Workspace id (required)")
	cmd.Flags().StringVar(&flags.document, "document", "", "Document id (defaults to the file name)")
	cmd.Flags().StringVar(&flags.title, "title", "", "Title override (defaults to the first heading)")
	cmd.Flags().StringVar(&flags.url, "url", "", "Canonical URL of the document")
	cmd.Flags().BoolVar(&flags.sync, "sync", false, "Wait for chunking and embedding")
	_ = cmd.MarkFlagRequired("workspace")

	return cmd
}

func buildIngestRequest(path string, flags ingestFlags) (*IngestRequest, error) {
	doc, err := parser.ParseFile(path)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(path)
	documentID := flags.document
	if documentID == "" {
		documentID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	title := flags.title
	if title == "" {
		title = doc.Title
	}

	source := SourceRequest{Type: "file", Filename: base, Title: title}
	if flags.url != "" {
		if _, err := url.ParseRequestURI(flags.url); err != nil {
			return nil, fmt.Errorf("invalid --url: %w", err)
		}
		source = SourceRequest{Type: "url", URL: flags.url, Title: title}
	}

	return &IngestRequest{
		DocumentID:  documentID,
		WorkspaceID: flags.workspace,
		Text:        doc.Text,
		Source:      source,
		Sync:        flags.sync,
	}, nil
}

func runIngest(ctx context.Context, c *APIClient, w io.Writer, path string, flags ingestFlags, outputJSON bool) error {
	req, err := buildIngestRequest(path, flags)
	if err != nil {
		return err
	}

	resp, err := c.Post(ctx, "/v1/documents", req)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if outputJSON {
		fmt.Fprintln(w, string(resp.Data))
		return nil
	}

	var result IngestResponse
	if err := resp.Decode(&result); err != nil {
		return err
	}

	fmt.Fprintf(w, "Document %s submitted (job %s)\n", req.DocumentID, result.JobID)
	if flags.sync {
		fmt.Fprintf(w, "Language: %s, Chunks: %d, Vectorized: %d, Unchanged: %d, Deferred: %d\n",
			result.Language, result.Chunks, result.Vectorized, result.Unchanged, result.Deferred)
	} else {
		fmt.Fprintf(w, "Track progress with: kbase job %s\n", result.JobID)
	}
	return nil
}
