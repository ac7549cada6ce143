package adapter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePanels(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "panels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPanels(t *testing.T) {
	path := writePanels(t, `
scan:
  - openai/gpt-4o
  - perplexity/sonar
verification:
  - openai/gpt-4o
  - perplexity/sonar-pro
  - google/gemini-2.0-flash
`)

	p, err := LoadPanels(path)
	require.NoError(t, err)
	assert.Equal(t, Panel{"openai/gpt-4o", "perplexity/sonar"}, p.Scan)
	assert.Len(t, p.Verification, 3)
}

func TestLoadPanels_VerificationDefaultsToScan(t *testing.T) {
	path := writePanels(t, "scan:\n  - openai/gpt-4o\n")

	p, err := LoadPanels(path)
	require.NoError(t, err)
	assert.Equal(t, p.Scan, p.Verification)
}

func TestLoadPanels_EmptyScanPanelRejected(t *testing.T) {
	path := writePanels(t, "scan: []\n")

	_, err := LoadPanels(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty scan panel")
}

func TestLoadPanels_MissingFile(t *testing.T) {
	_, err := LoadPanels("/nonexistent/panels.yaml")
	require.Error(t, err)
}

func TestDefaultPanels_VerificationBroaderThanScan(t *testing.T) {
	p := DefaultPanels()
	assert.NotEmpty(t, p.Scan)
	assert.Greater(t, len(p.Verification), len(p.Scan))
}
