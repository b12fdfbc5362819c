package simpleimageset

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// UploadFilenamePrefix is the fixed literal prefix of normalized storage
// filenames.
const UploadFilenamePrefix = "is_"

// NormalizeUploadFilename enforces the storage filename convention: the
// prefix followed by a time-ordered (version 1) UUID. Compliant names are
// kept; anything else is replaced with a freshly generated identifier under
// the same convention, preserving the extension. The second return value
// reports whether the client-supplied name was kept.
func NormalizeUploadFilename(name string) (string, bool) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(filepath.Base(name), ext)

	if strings.HasPrefix(base, UploadFilenamePrefix) {
		id, err := uuid.Parse(strings.TrimPrefix(base, UploadFilenamePrefix))
		if err == nil && id.Version() == 1 {
			return base + ext, true
		}
	}

	return UploadFilenamePrefix + uuid.New().String() + ext, false
}

// extensionAllowed checks ext against the configured allow-list.
func extensionAllowed(ext string, allowed []string) bool {
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}
