package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/kbase/internal/chunker"
	"github.com/cloo-solutions/kbase/internal/config"
	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/embedding"
	"github.com/cloo-solutions/kbase/internal/service"
)

const guideMarkdown = `# Deployment Guide

The deployment guide explains how to configure the server before the first release.
Operators set the database connection string and the pool size in the environment file.
Every service reads the environment file once at startup and logs the values it resolved.

## Backups

Nightly backups copy the database to object storage and keep thirty days of history.
Restoring a backup requires stopping the workers so that no job writes during the restore.
The restore command verifies the checksum of every archive before it replaces any table.

## Monitoring

Dashboards track queue depth and embedding latency for each workspace in the cluster.
Alerts fire when the failed chunk count grows faster than the retry budget allows.
`

func testConfig() *config.Config {
	return &config.Config{
		Store:               config.StoreMemory,
		EmbeddingProvider:   config.ProviderHash,
		EmbeddingDimensions: 64,
		QueryCacheSize:      16,
		TokenEncoding:       chunker.EncodingWords,
		ChunkMinTokens:      20,
		ChunkMaxTokens:      40,
		ChunkOverlapTokens:  5,
		EmbedMaxAttempts:    3,
		EmbedBaseDelay:      time.Millisecond,
		EmbedMaxDelay:       10 * time.Millisecond,
		EmbedTimeout:        time.Second,
		EmbedConcurrency:    2,
		ChunkConcurrency:    1,
		ChunkMaxAttempts:    3,
		PollInterval:        10 * time.Millisecond,
		RetrieveMaxContexts: 3,
		RetrieveLambda:      0.65,
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	app, err := NewApp(context.Background(), testConfig(), nil, AppOptions{})
	require.NoError(t, err)
	t.Cleanup(app.Close)

	require.NoError(t, app.Workspaces.Put(context.Background(), &domain.Workspace{
		ID:        "docs",
		Name:      "Docs",
		Languages: []domain.Language{domain.LanguageEnglish},
	}))
	return app
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewApp_Memory(t *testing.T) {
	app := newTestApp(t)

	assert.NotNil(t, app.Ingestion)
	assert.NotNil(t, app.Retrieval)
	assert.NotNil(t, app.ChunkRunner)
	assert.NotNil(t, app.EmbedRunner)
	assert.IsType(t, &embedding.HashProvider{}, app.Provider)
	assert.Len(t, app.Workers(), 2)
}

func TestNewApp_MissingCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.EmbeddingProvider = config.ProviderOpenAI

	_, err := NewApp(context.Background(), cfg, nil, AppOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
}

func TestIngestFile_QueuedAndDrained(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	path := writeFile(t, "guide.md", guideMarkdown)

	var out bytes.Buffer
	err := ingestFile(ctx, app, &out, ingestOptions{Path: path, WorkspaceID: "docs", JSON: true})
	require.NoError(t, err)

	var report ingestReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "guide", report.DocumentID)
	assert.NotEmpty(t, report.JobID)
	assert.Greater(t, report.Processed, 1)

	var status bytes.Buffer
	require.NoError(t, printDocumentStatus(ctx, app.Ingestion, &status, "guide", true))
	var views []chunkStatusView
	require.NoError(t, json.Unmarshal(status.Bytes(), &views))
	require.NotEmpty(t, views)
	for i, v := range views {
		assert.Equal(t, i, v.ChunkIndex)
		assert.Equal(t, string(domain.ChunkStatusVectorized), v.Status)
		assert.Equal(t, "en", v.Language)
	}

	chunk, err := app.Chunks.GetByID(ctx, views[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Deployment Guide", chunk.Metadata.Title)
	assert.Equal(t, "guide.md", chunk.Metadata.Filename)
	assert.NotContains(t, chunk.Text, "#")
}

func TestIngestFile_Sync(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	path := writeFile(t, "notes.txt", guideMarkdown)

	var out bytes.Buffer
	err := ingestFile(ctx, app, &out, ingestOptions{
		Path:        path,
		WorkspaceID: "docs",
		DocumentID:  "ops-notes",
		URL:         "https://docs.example.com/ops",
		Title:       "Ops Notes",
		Sync:        true,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Document ops-notes queued as job")
	assert.Contains(t, out.String(), "language: en")
	assert.NotContains(t, out.String(), "processed")

	page, err := app.Ingestion.ListDocumentChunks(ctx, "ops-notes", "", 10)
	require.NoError(t, err)
	require.NotEmpty(t, page.Items)
	assert.Equal(t, domain.SourceTypeURL, page.Items[0].Metadata.SourceType)
	assert.Equal(t, "Ops Notes", page.Items[0].Metadata.Title)
	assert.Equal(t, domain.ChunkStatusVectorized, page.Items[0].Status)
}

func TestIngestFile_MissingFile(t *testing.T) {
	app := newTestApp(t)

	err := ingestFile(context.Background(), app, &bytes.Buffer{}, ingestOptions{
		Path:        filepath.Join(t.TempDir(), "missing.md"),
		WorkspaceID: "docs",
	})
	assert.Error(t, err)
}

func TestRetrieve_AfterIngest(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	path := writeFile(t, "guide.md", guideMarkdown)
	require.NoError(t, ingestFile(ctx, app, &bytes.Buffer{}, ingestOptions{Path: path, WorkspaceID: "docs"}))

	var out bytes.Buffer
	err := retrieve(ctx, app.Retrieval, &out, service.RetrieveInput{
		WorkspaceID: "docs",
		Query:       "how do backups restore the database",
	}, true)
	require.NoError(t, err)

	var resp struct {
		Metadata  service.RetrieveMetadata `json:"metadata"`
		Citations []domain.Citation        `json:"citations"`
		Context   string                   `json:"context"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, domain.LanguageEnglish, resp.Metadata.Language)
	assert.Greater(t, resp.Metadata.Returned, 0)
	assert.Len(t, resp.Citations, resp.Metadata.Returned)
	assert.Contains(t, resp.Context, "["+resp.Citations[0].ID+"]")
	assert.True(t, strings.HasPrefix(resp.Citations[0].ID, "C"))
}

func TestRetrieve_TextOutputWithoutContexts(t *testing.T) {
	app := newTestApp(t)

	var out bytes.Buffer
	err := retrieve(context.Background(), app.Retrieval, &out, service.RetrieveInput{
		WorkspaceID: "docs",
		Query:       "anything at all",
	}, false)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "returned=0")
	assert.Contains(t, out.String(), "No matching contexts.")
}

func TestRetrieve_UnknownWorkspace(t *testing.T) {
	app := newTestApp(t)

	err := retrieve(context.Background(), app.Retrieval, &bytes.Buffer{}, service.RetrieveInput{
		WorkspaceID: "nope",
		Query:       "anything",
	}, false)
	assert.ErrorIs(t, err, domain.ErrWorkspaceNotFound)
}

func TestPrintChunkStatus_NotFound(t *testing.T) {
	app := newTestApp(t)

	err := printChunkStatus(context.Background(), app.Ingestion, &bytes.Buffer{}, "missing", false)
	assert.ErrorIs(t, err, domain.ErrChunkNotFound)
}

func TestPrintDocumentStatus_Empty(t *testing.T) {
	app := newTestApp(t)

	var out bytes.Buffer
	require.NoError(t, printDocumentStatus(context.Background(), app.Ingestion, &out, "ghost", false))
	assert.Equal(t, "No chunks for document ghost\n", out.String())

	out.Reset()
	require.NoError(t, printDocumentStatus(context.Background(), app.Ingestion, &out, "ghost", true))
	assert.JSONEq(t, "[]", out.String())
}

func TestParseWorkspaceFile(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []*domain.Workspace
		wantErr string
	}{
		{
			name: "valid",
			input: `workspaces:
  - id: docs
    name: Docs
    languages: [en-US, es]
    tone: Friendly
  - id: internal
`,
			want: []*domain.Workspace{
				{ID: "docs", Name: "Docs", Languages: []domain.Language{"en", "es"}, Tone: domain.ToneFriendly},
				{ID: "internal", Tone: ""},
			},
		},
		{
			name:  "empty file",
			input: "",
			want:  []*domain.Workspace{},
		},
		{
			name:    "unsupported language",
			input:   "workspaces:\n  - id: docs\n    languages: [jp]\n",
			wantErr: `unsupported language "jp"`,
		},
		{
			name:    "unknown field",
			input:   "workspaces:\n  - id: docs\n    colour: blue\n",
			wantErr: "failed to parse workspaces",
		},
		{
			name:    "missing id",
			input:   "workspaces:\n  - name: Docs\n",
			wantErr: "workspace ID is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWorkspaceFile(strings.NewReader(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyAndListWorkspaces(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	path := writeFile(t, "workspaces.yaml", `workspaces:
  - id: support
    name: Support
    languages: [es, en]
    tone: concise
`)

	n, err := applyWorkspaceFile(ctx, app.Workspaces, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ws, err := app.Workspaces.GetByID(ctx, "support")
	require.NoError(t, err)
	assert.Equal(t, domain.LanguageSpanish, ws.DefaultLanguage())
	assert.Equal(t, domain.ToneConcise, ws.Tone)

	var out bytes.Buffer
	require.NoError(t, listWorkspaces(ctx, app.Workspaces, &out, true))
	var specs []workspaceSpec
	require.NoError(t, json.Unmarshal(out.Bytes(), &specs))
	require.Len(t, specs, 2)

	out.Reset()
	require.NoError(t, listWorkspaces(ctx, app.Workspaces, &out, false))
	assert.Contains(t, out.String(), "support (Support)")
	assert.Contains(t, out.String(), "Languages: es,en, Tone: concise")
}

func TestCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "worker", "migrate", "ingest", "retrieve", "status", "workspace"} {
		assert.True(t, names[want], "missing command %s", want)
	}

	serve := ServeCmd()
	for _, flag := range []string{"port", "no-migrate", "no-workers", "workspaces"} {
		assert.NotNil(t, serve.Flags().Lookup(flag), "serve missing --%s", flag)
	}
}

func TestStatusCmd_RequiresOneTarget(t *testing.T) {
	cmd := StatusCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either a chunk id or --document")
}
