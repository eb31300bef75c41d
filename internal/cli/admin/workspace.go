package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cloo-solutions/kbase/internal/domain"
)

// WorkspaceCmd manages workspace configuration.
func WorkspaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Manage workspaces",
		Long:  "Create, update and list workspaces and their languages and tone",
	}

	cmd.AddCommand(workspacePutCmd())
	cmd.AddCommand(workspaceListCmd())
	cmd.AddCommand(workspaceApplyCmd())

	return cmd
}

func workspacePutCmd() *cobra.Command {
	var spec workspaceSpec

	cmd := &cobra.Command{
		Use:   "put <id>",
		Short: "Create or update a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.ID = args[0]
			ws, err := spec.toDomain()
			if err != nil {
				return err
			}
			ctx := context.Background()
			return withApp(ctx, AppOptions{}, func(rt *runtime, app *App) error {
				if err := app.Workspaces.Put(ctx, ws); err != nil {
					return fmt.Errorf("failed to save workspace: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Workspace saved: %s\n", ws.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&spec.Name, "name", "", "Display name")
	cmd.Flags().StringSliceVar(&spec.Languages, "languages", nil, "Supported language codes, default first")
	cmd.Flags().StringVar(&spec.Tone, "tone", "", "Answer tone (neutral, friendly, formal, concise, professional)")

	return cmd
}

func workspaceListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			return withApp(ctx, AppOptions{}, func(rt *runtime, app *App) error {
				return listWorkspaces(ctx, app.Workspaces, cmd.OutOrStdout(), isJSON(cmd))
			})
		},
	}
	addOutputFlag(cmd)
	return cmd
}

func workspaceApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply -f <file>",
		Short: "Create or update workspaces from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			ctx := context.Background()
			return withApp(ctx, AppOptions{}, func(rt *runtime, app *App) error {
				n, err := applyWorkspaceFile(ctx, app.Workspaces, path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d workspaces\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringP("file", "f", "", "YAML file with a workspaces list")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// workspaceSpec is the YAML and flag form of a workspace.
type workspaceSpec struct {
	ID        string   `yaml:"id" json:"id"`
	Name      string   `yaml:"name" json:"name"`
	Languages []string `yaml:"languages" json:"languages"`
	Tone      string   `yaml:"tone" json:"tone"`
}

type workspaceFile struct {
	Workspaces []workspaceSpec `yaml:"workspaces"`
}

func (s workspaceSpec) toDomain() (*domain.Workspace, error) {
	ws := &domain.Workspace{ID: s.ID, Name: s.Name, Tone: domain.Tone(strings.ToLower(s.Tone))}
	for _, raw := range s.Languages {
		lang, ok := domain.ParseLanguage(raw)
		if !ok {
			return nil, fmt.Errorf("workspace %s: unsupported language %q", s.ID, raw)
		}
		ws.Languages = append(ws.Languages, lang)
	}
	if err := domain.ValidateWorkspace(ws); err != nil {
		return nil, fmt.Errorf("workspace %s: %w", s.ID, err)
	}
	return ws, nil
}

func parseWorkspaceFile(r io.Reader) ([]*domain.Workspace, error) {
	var f workspaceFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse workspaces: %w", err)
	}
	out := make([]*domain.Workspace, 0, len(f.Workspaces))
	for _, s := range f.Workspaces {
		ws, err := s.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, nil
}

func applyWorkspaceFile(ctx context.Context, store WorkspaceStore, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open workspace file: %w", err)
	}
	defer f.Close()

	workspaces, err := parseWorkspaceFile(f)
	if err != nil {
		return 0, err
	}
	for _, ws := range workspaces {
		if err := store.Put(ctx, ws); err != nil {
			return 0, fmt.Errorf("failed to save workspace %s: %w", ws.ID, err)
		}
	}
	return len(workspaces), nil
}

func listWorkspaces(ctx context.Context, store WorkspaceStore, w io.Writer, asJSON bool) error {
	workspaces, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workspaces: %w", err)
	}

	if asJSON {
		specs := make([]workspaceSpec, len(workspaces))
		for i, ws := range workspaces {
			specs[i] = fromDomain(ws)
		}
		return printJSON(w, specs)
	}

	if len(workspaces) == 0 {
		fmt.Fprintln(w, "No workspaces found")
		return nil
	}
	for i, ws := range workspaces {
		s := fromDomain(ws)
		fmt.Fprintf(w, "%d. %s (%s)\n", i+1, s.ID, s.Name)
		fmt.Fprintf(w, "   Languages: %s, Tone: %s\n", strings.Join(s.Languages, ","), s.Tone)
	}
	return nil
}

func fromDomain(ws *domain.Workspace) workspaceSpec {
	s := workspaceSpec{ID: ws.ID, Name: ws.Name, Tone: string(ws.Tone)}
	for _, l := range ws.Languages {
		s.Languages = append(s.Languages, string(l))
	}
	return s
}
