package ingest

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/photon-decode/constants"
)

// AllowedExt checks a file extension against constants.AllowedExtensions.
func AllowedExt(ext string) bool {
	return constants.IsAllowedExt(ext)
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return base != "." && base != ".." && strings.HasPrefix(base, ".")
}
