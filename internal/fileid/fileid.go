// Package fileid derives stable source identifiers and content checksums for
// files ingested from drop folders.
package fileid

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SourceType marks assets ingested from the local filesystem.
const SourceType = "file"

const prefix = SourceType + ":"

// SourceID returns a stable source ID for the given absolute path. The same
// path always yields the same ID, so re-ingesting a file updates its asset.
func SourceID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])
}

// Checksum returns the hex MD5 of r's content and the number of bytes read.
func Checksum(r io.Reader) (string, int64, error) {
	h := md5.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// FileChecksum returns the hex MD5 and size of the file at path.
func FileChecksum(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	return Checksum(f)
}
