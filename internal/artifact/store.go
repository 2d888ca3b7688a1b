package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("artifact not found")

// Store keeps uploaded PDFs on disk under a single root, sharded into
// YYYY/MM/DD directories. Jobs reference artifacts by the returned
// root-relative path.
type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Store{root: root}, nil
}

// Save writes the artifact bytes under a collision-resistant generated
// name and returns its relative path and size.
func (s *Store) Save(r io.Reader, now time.Time) (string, int64, error) {
	relDir := now.Format("2006/01/02")
	dir := filepath.Join(s.root, relDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	name := uuid.NewString() + ".pdf"
	relPath := filepath.Join(relDir, name)
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create artifact file: %w", err)
	}

	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(filepath.Join(dir, name))
		return "", 0, fmt.Errorf("failed to write artifact: %w", err)
	}

	return relPath, size, nil
}

// Path resolves a stored relative path to an absolute one, refusing
// anything that would escape the root.
func (s *Store) Path(relPath string) (string, error) {
	clean := filepath.Clean(relPath)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid artifact path: %s", relPath)
	}
	return filepath.Join(s.root, clean), nil
}

// Open opens a stored artifact for reading.
func (s *Store) Open(relPath string) (*os.File, error) {
	path, err := s.Path(relPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	return f, nil
}

// Delete removes a stored artifact. A missing file is reported as
// ErrNotFound so callers can treat it as already gone.
func (s *Store) Delete(relPath string) error {
	path, err := s.Path(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

// Exists reports whether a stored artifact is still on disk.
func (s *Store) Exists(relPath string) bool {
	path, err := s.Path(relPath)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
