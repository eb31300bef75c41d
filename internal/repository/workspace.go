package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WorkspaceRepository struct {
	db dbtx
}

func NewWorkspaceRepository(pool *pgxpool.Pool) *WorkspaceRepository {
	return &WorkspaceRepository{db: pool}
}

// Put creates or replaces a workspace's settings.
func (r *WorkspaceRepository) Put(ctx context.Context, w *domain.Workspace) error {
	if err := domain.ValidateWorkspace(w); err != nil {
		return domain.NewValidationError("invalid workspace", err)
	}

	now := time.Now().UTC()
	langs := make([]string, len(w.Languages))
	for i, l := range w.Languages {
		langs[i] = string(l)
	}
	tone := w.Tone
	if tone == "" {
		tone = domain.ToneNeutral
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO workspaces (id, name, languages, tone, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			languages = EXCLUDED.languages,
			tone = EXCLUDED.tone,
			updated_at = EXCLUDED.updated_at`,
		w.ID, w.Name, langs, tone, now,
	)
	return err
}

func (r *WorkspaceRepository) GetByID(ctx context.Context, id string) (*domain.Workspace, error) {
	var (
		w     domain.Workspace
		langs []string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, name, languages, tone, created_at, updated_at FROM workspaces WHERE id = $1`,
		id,
	).Scan(&w.ID, &w.Name, &langs, &w.Tone, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWorkspaceNotFound
		}
		return nil, err
	}
	for _, s := range langs {
		if l, ok := domain.ParseLanguage(s); ok {
			w.Languages = append(w.Languages, l)
		}
	}
	return &w, nil
}

func (r *WorkspaceRepository) List(ctx context.Context) ([]*domain.Workspace, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, languages, tone, created_at, updated_at FROM workspaces ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Workspace
	for rows.Next() {
		var (
			w     domain.Workspace
			langs []string
		)
		if err := rows.Scan(&w.ID, &w.Name, &langs, &w.Tone, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		for _, s := range langs {
			if l, ok := domain.ParseLanguage(s); ok {
				w.Languages = append(w.Languages, l)
			}
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}
