package storage

import (
	"fmt"
	"path"
	"strings"
)

// MaxObjectSize caps a single archived document.
const MaxObjectSize = 16 << 20

// ValidateObject checks an object before upload.
func ValidateObject(o Object) error {
	if strings.TrimSpace(o.Name) == "" {
		return fmt.Errorf("object name is required")
	}
	if len(o.Content) > MaxObjectSize {
		return fmt.Errorf("object %s exceeds maximum size of %d bytes", o.Name, MaxObjectSize)
	}
	return nil
}

// ObjectKey joins folder and name into a bucket key. Path separators in the
// name are flattened so a name can never escape its folder.
func ObjectKey(folder, name string) string {
	clean := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(name)
	return path.Join(strings.Trim(folder, "/"), clean)
}

// ArtifactFolder is the prefix holding the inputs of one analysis.
func ArtifactFolder(chainID, analysisID string) string {
	return path.Join("chains", strings.ReplaceAll(chainID, "/", "_"), analysisID)
}
