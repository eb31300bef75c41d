package admin

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/pagination"
)

const statusPageSize = 100

// StatusCmd reports chunk processing state.
func StatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [chunk-id]",
		Short: "Show chunk processing status",
		Long:  "Show one chunk by id, or every chunk of a document with --document.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			documentID, _ := cmd.Flags().GetString("document")
			if (len(args) == 0) == (documentID == "") {
				return errors.New("pass either a chunk id or --document")
			}

			ctx := context.Background()
			return withApp(ctx, AppOptions{}, func(rt *runtime, app *App) error {
				if documentID != "" {
					return printDocumentStatus(ctx, app.Ingestion, cmd.OutOrStdout(), documentID, isJSON(cmd))
				}
				return printChunkStatus(ctx, app.Ingestion, cmd.OutOrStdout(), args[0], isJSON(cmd))
			})
		},
	}

	cmd.Flags().String("document", "", "List every chunk of this document")
	addOutputFlag(cmd)

	return cmd
}

type chunkLister interface {
	ChunkStatus(ctx context.Context, chunkID string) (*domain.ChunkRecord, error)
	ListDocumentChunks(ctx context.Context, documentID, cursor string, limit int) (*pagination.PageResult[*domain.ChunkRecord], error)
}

type chunkStatusView struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	Language   string `json:"language"`
	TokenCount int    `json:"token_count"`
	Error      string `json:"error,omitempty"`
}

func newChunkStatusView(c *domain.ChunkRecord) chunkStatusView {
	v := chunkStatusView{
		ID:         c.ID,
		DocumentID: c.DocumentID,
		ChunkIndex: c.ChunkIndex,
		Status:     string(c.Status),
		Attempts:   c.Attempts,
		Language:   string(c.Metadata.Language),
		TokenCount: c.TokenCount,
	}
	if c.Error != nil {
		v.Error = *c.Error
	}
	return v
}

func printChunkStatus(ctx context.Context, svc chunkLister, w io.Writer, chunkID string, asJSON bool) error {
	c, err := svc.ChunkStatus(ctx, chunkID)
	if err != nil {
		return err
	}
	return writeChunkStatus(w, []chunkStatusView{newChunkStatusView(c)}, asJSON)
}

func printDocumentStatus(ctx context.Context, svc chunkLister, w io.Writer, documentID string, asJSON bool) error {
	var views []chunkStatusView
	cursor := ""
	for {
		page, err := svc.ListDocumentChunks(ctx, documentID, cursor, statusPageSize)
		if err != nil {
			return err
		}
		for _, c := range page.Items {
			views = append(views, newChunkStatusView(c))
		}
		if !page.HasMore {
			break
		}
		cursor = page.Cursor
	}
	if len(views) == 0 && !asJSON {
		fmt.Fprintf(w, "No chunks for document %s\n", documentID)
		return nil
	}
	return writeChunkStatus(w, views, asJSON)
}

func writeChunkStatus(w io.Writer, views []chunkStatusView, asJSON bool) error {
	if asJSON {
		if views == nil {
			views = []chunkStatusView{}
		}
		return printJSON(w, views)
	}
	for _, v := range views {
		fmt.Fprintf(w, "%d. %s [%s]\n", v.ChunkIndex, v.ID, v.Status)
		fmt.Fprintf(w, "   Attempts: %d, Language: %s, Tokens: %d\n", v.Attempts, v.Language, v.TokenCount)
		if v.Error != "" {
			fmt.Fprintf(w, "   Error: %s\n", v.Error)
		}
	}
	return nil
}
