// Package security confines object keys to a storage root
package security

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathTraversal   = errors.New("path traversal detected")
	ErrPathOutsideRoot = errors.New("path escapes storage root")
	ErrSymlinkEscape   = errors.New("symlink escape detected")
	ErrInvalidPath     = errors.New("invalid path")
)

var traversalPatterns = []string{
	"..",
	"%2e%2e",
	"%252e%252e",
	"..%2f",
	"%2f..",
	"..\\",
	"\\..\\",
}

// ResolveKey maps a slash separated object key to a file path under root.
// Keys that are empty, traverse upward or resolve through a symlink leaving
// root are rejected.
func ResolveKey(root, key string) (string, error) {
	if strings.TrimSpace(key) == "" || strings.ContainsRune(key, 0) {
		return "", ErrInvalidPath
	}
	if containsTraversalPattern(key) {
		return "", ErrPathTraversal
	}

	rootPath, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return "", ErrInvalidPath
	}

	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", ErrInvalidPath
	}
	target := filepath.Join(rootPath, filepath.FromSlash(clean))

	if !strings.HasPrefix(target, rootPath+string(os.PathSeparator)) {
		return "", ErrPathOutsideRoot
	}
	if err := checkSymlinkEscape(target, rootPath); err != nil {
		return "", err
	}
	return target, nil
}

func containsTraversalPattern(path string) bool {
	lower := strings.ToLower(path)
	for _, pattern := range traversalPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func checkSymlinkEscape(target, root string) error {
	rel, err := filepath.Rel(root, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ErrPathOutsideRoot
	}
	realRoot := root
	if r, err := filepath.EvalSymlinks(root); err == nil {
		realRoot = r
	}

	current := root
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		if part == "" || part == "." {
			continue
		}
		current = filepath.Join(current, part)

		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				// nothing below a missing component can be a link yet
				return nil
			}
			return ErrInvalidPath
		}
		if info.Mode()&os.ModeSymlink == 0 {
			continue
		}
		resolved, err := filepath.EvalSymlinks(current)
		if err != nil {
			return ErrInvalidPath
		}
		resolved = filepath.Clean(resolved)
		if resolved != realRoot && !strings.HasPrefix(resolved, realRoot+string(os.PathSeparator)) {
			return ErrSymlinkEscape
		}
	}
	return nil
}
