// Package groupid resolves the tenant/project scope (spec section 3's
// group_id) from an explicit value or, failing that, from the current
// working directory. The walk-up-from-cwd detection is adapted from
// the teacher's Obsidian-vault detector (pkg/vault.DetectVault), which
// walked parent directories looking for a ".obsidian" marker; here we
// walk up looking for ".git" to find the project root and derive its
// basename as the group id.
package groupid

import (
	"os"
	"path/filepath"

	"github.com/hiddenhistory/memctl/internal/types"
)

// Shared is the group id used for conventions and other
// cross-project records (spec section 3).
const Shared = "shared"

// Resolve returns explicit if non-empty; otherwise it derives a
// group id from cwd by walking up to the nearest ".git" directory and
// using its basename. Returns ErrGroupIDUnresolved if neither works.
func Resolve(explicit, cwd string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if cwd == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return "", types.ErrGroupIDUnresolved
		}
	}

	root := findProjectRoot(cwd)
	if root == "" {
		return "", types.ErrGroupIDUnresolved
	}
	return filepath.Base(root), nil
}

func findProjectRoot(start string) string {
	dir := start
	for {
		gitPath := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitPath); err == nil && (info.IsDir() || !info.IsDir()) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
