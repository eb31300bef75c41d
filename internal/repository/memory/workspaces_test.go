package memory

import (
	"context"
	"testing"

	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceStore(t *testing.T) {
	ctx := context.Background()
	s := NewWorkspaceStore()

	require.NoError(t, s.Put(ctx, &domain.Workspace{ID: "b", Languages: []domain.Language{domain.LanguageGerman}}))
	require.NoError(t, s.Put(ctx, &domain.Workspace{ID: "a", Tone: domain.ToneFormal}))

	got, err := s.GetByID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, domain.ToneNeutral, got.Tone)
	assert.Equal(t, domain.LanguageGerman, got.DefaultLanguage())

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)

	_, err = s.GetByID(ctx, "zzz")
	assert.ErrorIs(t, err, domain.ErrWorkspaceNotFound)

	assert.Error(t, s.Put(ctx, &domain.Workspace{ID: ""}))
}
