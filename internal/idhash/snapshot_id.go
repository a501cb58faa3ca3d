package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeSnapshotID computes a deterministic snapshot_id using SHA256.
// Formula: SHA256(folder|file|content_hash)
// Returns hex-encoded hash (64 characters).
func ComputeSnapshotID(folder, file, contentHash string) string {
	data := fmt.Sprintf("%s|%s|%s", folder, file, contentHash)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
