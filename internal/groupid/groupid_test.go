package groupid

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveExplicit(t *testing.T) {
	got, err := Resolve("my-project", "/tmp/whatever")
	require.NoError(t, err)
	assert.Equal(t, "my-project", got)
}

func TestResolveFromCwdGitRoot(t *testing.T) {
	root := t.TempDir()
	projectDir := filepath.Join(root, "cool-project")
	require.NoError(t, os.MkdirAll(filepath.Join(projectDir, ".git"), 0o755))
	nested := filepath.Join(projectDir, "src", "pkg")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, err := Resolve("", nested)
	require.NoError(t, err)
	assert.Equal(t, "cool-project", got)
}

func TestResolveFailsOutsideAnyRepo(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve("", root)
	assert.Error(t, err)
}
