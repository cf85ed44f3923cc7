// Package paths maps logical destination paths onto the configured base
// directory.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BaseToken is the placeholder that destination paths may start with to
// refer to the configured base directory.
const BaseToken = "{base}"

// ErrPathTraversal is returned when a relative destination contains
// traversal sequences that would escape the base directory.
var ErrPathTraversal = errors.New("path traversal detected")

// Resolve turns a logical destination into an absolute filesystem path.
//
// A destination starting with BaseToken or given as a relative path is
// anchored at baseDir; "~" expands to the user's home directory; absolute
// paths pass through unchanged apart from cleaning.
func Resolve(dest, baseDir string) (string, error) {
	if dest == "" {
		return "", errors.New("empty destination path")
	}

	if dest == "~" || strings.HasPrefix(dest, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		dest = filepath.Join(home, strings.TrimPrefix(dest, "~"))
	}

	if after, ok := strings.CutPrefix(dest, BaseToken); ok {
		return join(baseDir, strings.TrimPrefix(after, "/"))
	}

	if filepath.IsAbs(dest) {
		return filepath.Clean(dest), nil
	}

	return join(baseDir, dest)
}

// join anchors an untrusted relative path at base, rejecting traversal
// sequences like "../" that would escape it.
func join(base, rel string) (string, error) {
	cleaned := filepath.FromSlash(rel)

	// An empty remainder means the base directory itself, which is fine.
	if rel != "" && !filepath.IsLocal(cleaned) {
		return "", ErrPathTraversal
	}

	abs, err := filepath.Abs(filepath.Join(base, cleaned))
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", rel, err)
	}
	return abs, nil
}
