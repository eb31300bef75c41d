package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const guide = `# Installing the agent

The agent runs on **Linux** and macOS. See <https://example.com/docs>.

<div class="note">internal only</div>

## Steps

1. Download the package
2. Run the installer

` + "```sh\nsudo ./install.sh\n```" + `

| Flag | Meaning |
|------|---------|
| -v   | verbose |
`

func TestMarkdown(t *testing.T) {
	doc := Markdown([]byte(guide))

	assert.Equal(t, "Installing the agent", doc.Title)
	assert.Contains(t, doc.Text, "The agent runs on Linux and macOS.")
	assert.Contains(t, doc.Text, "https://example.com/docs")
	assert.Contains(t, doc.Text, "Download the package\nRun the installer")
	assert.Contains(t, doc.Text, "sudo ./install.sh")
	assert.Contains(t, doc.Text, "Flag | Meaning")
	assert.NotContains(t, doc.Text, "internal only")
	assert.NotContains(t, doc.Text, "**")
	assert.NotContains(t, doc.Text, "#")
}

func TestMarkdown_NoHeading(t *testing.T) {
	doc := Markdown([]byte("just a line\nwrapped here"))

	assert.Empty(t, doc.Title)
	assert.Equal(t, "just a line wrapped here", doc.Text)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()

	mdPath := filepath.Join(dir, "guide.md")
	require.NoError(t, os.WriteFile(mdPath, []byte(guide), 0o644))
	doc, err := ParseFile(mdPath)
	require.NoError(t, err)
	assert.Equal(t, "Installing the agent", doc.Title)

	txtPath := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("# not a heading here"), 0o644))
	doc, err = ParseFile(txtPath)
	require.NoError(t, err)
	assert.Empty(t, doc.Title)
	assert.Equal(t, "# not a heading here", doc.Text)

	binPath := filepath.Join(dir, "blob.bin")
	require.NoError(t, os.WriteFile(binPath, []byte{0xff, 0xfe, 0x00}, 0o644))
	_, err = ParseFile(binPath)
	assert.Error(t, err)

	_, err = ParseFile(filepath.Join(dir, "missing.md"))
	assert.Error(t, err)
}
