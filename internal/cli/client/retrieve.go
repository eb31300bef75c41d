package client

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// RetrieveRequest represents the retrieve API request.
type RetrieveRequest struct {
	Query       string   `json:"query"`
	Language    string   `json:"language,omitempty"`
	MaxContexts int      `json:"max_contexts,omitempty"`
	Lambda      *float64 `json:"lambda,omitempty"`
}

// RetrievedContext is one ranked chunk.
type RetrievedContext struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
	Title      string  `json:"title,omitempty"`
	URL        string  `json:"url,omitempty"`
	Filename   string  `json:"filename,omitempty"`
}

// Citation is a caller-facing reference to a context.
type Citation struct {
	ID      string `json:"id"`
	ChunkID string `json:"chunkId"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// RetrieveResponse represents the retrieve API response.
type RetrieveResponse struct {
	Contexts []RetrievedContext `json:"contexts"`
	Metadata struct {
		Language   string  `json:"language"`
		Candidates int     `json:"candidates"`
		Returned   int     `json:"returned"`
		TopScore   float64 `json:"topScore"`
		Confidence float64 `json:"confidence"`
	} `json:"metadata"`
	Prompt struct {
		Instructions string     `json:"instructions"`
		Context      string     `json:"context"`
		Citations    []Citation `json:"citations"`
	} `json:"prompt"`
}

// RetrieveCmd creates the retrieve command.
func RetrieveCmd() *cobra.Command {
	var (
		workspace   string
		language    string
		maxContexts int
		lambda      float64
		showPrompt  bool
	)

	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Retrieve ranked contexts for a question",
		Long:  "Ranks the workspace's chunks against the query, diversifies them and prints the cited contexts.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			req := RetrieveRequest{Query: args[0], Language: language, MaxContexts: maxContexts}
			if cmd.Flags().Changed("lambda") {
				req.Lambda = &lambda
			}
			c, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}
			return runRetrieve(cmd.Context(), c, cmd.OutOrStdout(), workspace, req, outputJSON, showPrompt)
		},
	}

	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace id (required)")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Preferred answer language")
	cmd.Flags().IntVarP(&maxContexts, "max-contexts", "k", 0, "Number of contexts (server default when 0)")
	cmd.Flags().Float64Var(&lambda, "lambda", 0, "Relevance/diversity trade-off in [0, 1]")
	cmd.Flags().BoolVar(&showPrompt, "prompt", false, "Print the assembled prompt context")
	_ = cmd.MarkFlagRequired("workspace")

	return cmd
}

func runRetrieve(ctx context.Context, c *APIClient, w io.Writer, workspace string, req RetrieveRequest, outputJSON, showPrompt bool) error {
	resp, err := c.Post(ctx, "/v1/workspaces/"+url.PathEscape(workspace)+"/retrieve", req)
	if err != nil {
		return fmt.Errorf("retrieve failed: %w", err)
	}

	if outputJSON {
		fmt.Fprintln(w, string(resp.Data))
		return nil
	}

	var result RetrieveResponse
	if err := resp.Decode(&result); err != nil {
		return err
	}

	if len(result.Contexts) == 0 {
		fmt.Fprintln(w, "No results found")
		return nil
	}

	md := result.Metadata
	fmt.Fprintf(w, "Found %d contexts (%s, confidence %.2f):\n\n", len(result.Contexts), md.Language, md.Confidence)
	for i, rc := range result.Contexts {
		id := ""
		if i < len(result.Prompt.Citations) {
			id = result.Prompt.Citations[i].ID
		}
		title := rc.Title
		if title == "" {
			title = rc.DocumentID
		}
		fmt.Fprintf(w, "%d. [%s] %s (score: %.3f)\n", i+1, id, title, rc.Score)
		if rc.URL != "" {
			fmt.Fprintf(w, "   URL: %s\n", rc.URL)
		} else if rc.Filename != "" {
			fmt.Fprintf(w, "   File: %s\n", rc.Filename)
		}
		fmt.Fprintf(w, "   ID: %s\n", rc.ChunkID)
	}

	if showPrompt {
		fmt.Fprintf(w, "\n%s\n", strings.Repeat("-", 40))
		fmt.Fprintln(w, result.Prompt.Instructions)
		fmt.Fprintln(w)
		fmt.Fprintln(w, result.Prompt.Context)
	}
	return nil
}
