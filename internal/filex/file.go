// Package filex holds small filesystem helpers for the client.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDataDir makes sure dir exists with owner-only permissions and returns
// its absolute path. Relative paths are resolved against the working directory.
func EnsureDataDir(dir string) (string, error) {
	if !filepath.IsAbs(dir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getwd: %w", err)
		}
		dir = filepath.Join(cwd, dir)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}
