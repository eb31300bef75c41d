package client

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// ChunkStatus is one chunk as reported by the API.
type ChunkStatus struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Status     string  `json:"status"`
	Attempts   int     `json:"attempts"`
	TokenCount int     `json:"token_count"`
	Language   string  `json:"language"`
	Error      *string `json:"error,omitempty"`
}

// ChunkListResponse is one page of a document's chunks.
type ChunkListResponse struct {
	Items   []ChunkStatus `json:"items"`
	Cursor  string        `json:"cursor,omitempty"`
	HasMore bool          `json:"has_more"`
}

// JobStatus is a pipeline job as reported by the API.
type JobStatus struct {
	ID          string `json:"id"`
	Queue       string `json:"queue"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	RunAt       string `json:"run_at"`
	LastError   string `json:"last_error,omitempty"`
}

// StatusCmd creates the status command.
func StatusCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "status <chunk-id> | status --document <document-id>",
		Short: "Show chunk processing status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			documentID, _ := cmd.Flags().GetString("document")
			if (len(args) == 0) == (documentID == "") {
				return fmt.Errorf("pass either a chunk id or --document")
			}

			c, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}
			if documentID != "" {
				return runDocumentStatus(cmd.Context(), c, cmd.OutOrStdout(), documentID, cursor, limit, outputJSON)
			}
			return runChunkStatus(cmd.Context(), c, cmd.OutOrStdout(), args[0], outputJSON)
		},
	}

	cmd.Flags().String("document", "", "List the chunks of a document")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of chunks")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

// JobCmd creates the job command.
func JobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "job <job-id>",
		Short: "Show a pipeline job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			c, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}
			return runJobStatus(cmd.Context(), c, cmd.OutOrStdout(), args[0], outputJSON)
		},
	}
}

func runChunkStatus(ctx context.Context, c *APIClient, w io.Writer, chunkID string, outputJSON bool) error {
	resp, err := c.Get(ctx, "/v1/chunks/"+url.PathEscape(chunkID))
	if err != nil {
		return fmt.Errorf("failed to get chunk: %w", err)
	}
	if outputJSON {
		fmt.Fprintln(w, string(resp.Data))
		return nil
	}

	var chunk ChunkStatus
	if err := resp.Decode(&chunk); err != nil {
		return err
	}
	printChunk(w, chunk)
	return nil
}

func runDocumentStatus(ctx context.Context, c *APIClient, w io.Writer, documentID, cursor string, limit int, outputJSON bool) error {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	path := "/v1/documents/" + url.PathEscape(documentID) + "/chunks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := c.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to list chunks: %w", err)
	}
	if outputJSON {
		fmt.Fprintln(w, string(resp.Data))
		return nil
	}

	var page ChunkListResponse
	if err := resp.Decode(&page); err != nil {
		return err
	}

	if len(page.Items) == 0 {
		fmt.Fprintf(w, "No chunks found for document %s\n", documentID)
		return nil
	}

	fmt.Fprintf(w, "Found %d chunks:\n\n", len(page.Items))
	for _, chunk := range page.Items {
		printChunk(w, chunk)
	}

	if page.HasMore {
		fmt.Fprintf(w, "\n%s\n", strings.Repeat("-", 40))
		fmt.Fprintf(w, "More results available. Use --cursor %s\n", page.Cursor)
	}
	return nil
}

func printChunk(w io.Writer, chunk ChunkStatus) {
	fmt.Fprintf(w, "%d. %s [%s]\n", chunk.ChunkIndex, chunk.ID, chunk.Status)
	fmt.Fprintf(w, "   Attempts: %d, Language: %s, Tokens: %d\n", chunk.Attempts, chunk.Language, chunk.TokenCount)
	if chunk.Error != nil {
		fmt.Fprintf(w, "   Error: %s\n", *chunk.Error)
	}
}

func runJobStatus(ctx context.Context, c *APIClient, w io.Writer, jobID string, outputJSON bool) error {
	resp, err := c.Get(ctx, "/v1/jobs/"+url.PathEscape(jobID))
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if outputJSON {
		fmt.Fprintln(w, string(resp.Data))
		return nil
	}

	var job JobStatus
	if err := resp.Decode(&job); err != nil {
		return err
	}
	fmt.Fprintf(w, "Job %s (%s): %s\n", job.ID, job.Queue, job.Status)
	fmt.Fprintf(w, "   Attempts: %d/%d, Next run: %s\n", job.Attempts, job.MaxAttempts, job.RunAt)
	if job.LastError != "" {
		fmt.Fprintf(w, "   Last error: %s\n", job.LastError)
	}
	return nil
}
