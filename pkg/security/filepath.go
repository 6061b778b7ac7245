package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File Permission Constants
const (
	// SecureFileMode - read/write for owner, read for group (0640)
	SecureFileMode os.FileMode = 0640

	// SecureDirMode - rwx for owner, r-x for group (0750)
	SecureDirMode os.FileMode = 0750
)

// SecureJoinPath safely joins path components and validates the result
func SecureJoinPath(base string, components ...string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("base path cannot be empty")
	}
	if strings.ContainsRune(base, 0) {
		return "", fmt.Errorf("base path contains null byte")
	}

	result := filepath.Clean(base)
	for _, component := range components {
		clean := filepath.Clean(component)
		if component == "" || clean == "." || strings.Contains(clean, "..") ||
			strings.ContainsAny(clean, `/\`) || strings.ContainsRune(clean, 0) {
			return "", fmt.Errorf("invalid path component: %q", component)
		}
		result = filepath.Join(result, clean)
	}

	// Ensure result is still under base directory
	relPath, err := filepath.Rel(filepath.Clean(base), result)
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path: %w", err)
	}
	if strings.HasPrefix(relPath, "..") {
		return "", fmt.Errorf("path escapes base directory: %s", result)
	}

	return result, nil
}

// SecureCreateDir creates exactly one directory. It fails with an error
// satisfying errors.Is(err, fs.ErrExist) when the directory is already there.
func SecureCreateDir(dirname string) error {
	return os.Mkdir(dirname, SecureDirMode)
}

// SecureCreateDirAll creates a directory and any missing parents
func SecureCreateDirAll(dirname string) error {
	return os.MkdirAll(dirname, SecureDirMode)
}

// SecureWriteFile writes data to a file with secure permissions
func SecureWriteFile(filename string, data []byte) error {
	return os.WriteFile(filename, data, SecureFileMode)
}

// FileExists reports whether filename is an existing regular file
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
