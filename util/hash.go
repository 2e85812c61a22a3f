package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// RowID derives the storage key of a component. Component ids are only
// unique within a file, so the relative path takes part in the hash.
func RowID(relativePath, componentID string) string {
	h := sha256.New()
	h.Write([]byte(relativePath))
	h.Write([]byte{0})
	h.Write([]byte(componentID))
	return hex.EncodeToString(h.Sum(nil))
}
