package util

import (
	"errors"
	"strings"
)

var errInvalidFileName = errors.New("invalid file name")

// SanitizeFileName flattens path separators out of an uploaded file
// name and rejects traversal patterns and control bytes outright.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") || strings.ContainsRune(name, 0) {
		return "", errInvalidFileName
	}
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	if s == "" {
		return "", errInvalidFileName
	}
	return s, nil
}
