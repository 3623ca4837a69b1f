// Package security guards the file paths the tools write to.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// canonical resolves path to an absolute path with symlinks evaluated. For
// a path that does not exist yet, the nearest existing ancestor is resolved
// and the remainder appended, so a symlinked parent cannot redirect a new
// file outside its directory.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rest, _ := filepath.Rel(dir, abs)
			return filepath.Join(resolved, rest), nil
		}
		if dir == filepath.Dir(dir) {
			return abs, nil
		}
	}
}

// WithinDirectory reports an error unless path resolves to a location
// inside dir.
func WithinDirectory(path, dir string) error {
	p, err := canonical(path)
	if err != nil {
		return err
	}
	d, err := canonical(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(d, p)
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", path, dir)
	}
	return nil
}

// ValidateOutputPath accepts path when it lies inside one of dirs, the
// working directory or the temp directory.
func ValidateOutputPath(path string, dirs ...string) error {
	allowed := append([]string{os.TempDir()}, dirs...)
	if cwd, err := os.Getwd(); err == nil {
		allowed = append(allowed, cwd)
	}
	for _, dir := range allowed {
		if dir == "" {
			continue
		}
		if WithinDirectory(path, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("output %s must be within one of %v", path, allowed)
}
