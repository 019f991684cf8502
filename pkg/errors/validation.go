package errors

import (
	"strings"
	"unicode"
)

// ValidateRelPath validates an asset path relative to the source root.
// Discovered paths feed directly into output paths, so anything that could
// escape the target root is rejected.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal segments (..)
//   - No backslashes (Windows-style paths)
func ValidateRelPath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid control characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
		}
		if seg == "" {
			return New(ErrCodeInvalidPath, "path cannot contain empty segments")
		}
	}

	return nil
}

// ValidateExtension validates an output file extension such as "js" or "ts".
func ValidateExtension(ext string) error {
	if ext == "" {
		return New(ErrCodeInvalidInput, "extension cannot be empty")
	}
	if strings.HasPrefix(ext, ".") {
		return New(ErrCodeInvalidInput, "extension must not start with a dot: %q", ext)
	}
	for _, r := range ext {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '-' && r != '_' {
			return New(ErrCodeInvalidInput, "extension contains invalid character %q", r)
		}
	}
	return nil
}
