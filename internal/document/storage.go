package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/harborhealth/platform/internal/shared/types"
)

// Storage writes uploaded document content to local disk. Paths recorded on
// versions are relative to the base directory.
type Storage struct {
	dir string
}

// NewStorage creates the base directory if needed
func NewStorage(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create documents directory: %w", err)
	}
	return &Storage{dir: dir}, nil
}

// Save writes content for one document version and returns its relative path
func (s *Storage) Save(docID types.ID, version int, content []byte) (string, error) {
	rel := filepath.Join(docID.String(), fmt.Sprintf("v%d", version))

	full := filepath.Join(s.dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("failed to create document directory: %w", err)
	}
	if err := os.WriteFile(full, content, 0o640); err != nil {
		return "", fmt.Errorf("failed to write document content: %w", err)
	}

	return rel, nil
}

// Open returns a reader over stored version content
func (s *Storage) Open(relPath string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, relPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open document content: %w", err)
	}
	return f, nil
}

// Read returns the full stored content of a version
func (s *Storage) Read(relPath string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, relPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read document content: %w", err)
	}
	return b, nil
}
