package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
)

// BlobStore persists uploaded media under a directory, one file per
// case id. Writes are create-only: fingerprint dedup guarantees no two
// pipelines ever target the same path, so an existing file means a bug
// upstream, not something to overwrite.
type BlobStore struct {
	dir string
}

// NewBlobStore creates the upload directory if needed.
func NewBlobStore(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &BlobStore{dir: dir}, nil
}

// Save writes the raw media bytes for a case and returns the path.
func (s *BlobStore) Save(caseID, filename string, data []byte) (string, error) {
	path := filepath.Join(s.dir, caseID+"_"+SanitizeFilename(filename))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create blob for case %s: %w", caseID, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write blob for case %s: %w", caseID, err)
	}

	log.Infof("Stored upload for case %s (%d bytes)", caseID, len(data))
	return path, nil
}

// Remove deletes a stored blob. Used to roll back when detection fails
// after the blob was persisted.
func (s *BlobStore) Remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Errorf("Failed to remove blob %s: %v", filepath.Base(path), err)
	}
}

// SanitizeFilename strips any path components and characters that have
// no business in a stored filename.
func SanitizeFilename(filename string) string {
	name := filepath.Base(filename)
	name = strings.ReplaceAll(name, "..", "")
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "upload"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "upload"
	}
	return b.String()
}
