package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/guttosm/tickpulse/internal/domain/models"
)

// TickStore defines the flat-file operations used by the generator and the
// parser. Names are plain file names relative to the store directory.
type TickStore interface {
	Create(name string) (io.WriteCloser, error)
	Open(name string) (io.ReadCloser, error)
	List() ([]string, error)
	Rename(from, to string) error
	Remove(name string) error
	Dir() string
}

type fileStore struct {
	dir string
}

// NewFileStore returns a TickStore rooted at dir. The directory is not created;
// call EnsureDir first when it may be missing.
func NewFileStore(dir string) TickStore {
	return &fileStore{dir: dir}
}

func (s *fileStore) Dir() string { return s.dir }

// Create truncates or creates the named file.
func (s *fileStore) Create(name string) (io.WriteCloser, error) {
	return os.Create(filepath.Join(s.dir, name))
}

// Open opens the named file for reading.
func (s *fileStore) Open(name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.dir, name))
}

// Rename moves a file within the directory, replacing any existing target.
func (s *fileStore) Rename(from, to string) error {
	if err := os.Rename(filepath.Join(s.dir, from), filepath.Join(s.dir, to)); err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}
	return nil
}

// Remove deletes the named file. A missing file is not an error.
func (s *fileStore) Remove(name string) error {
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// List returns the regular file names in the directory, sorted.
func (s *fileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// EnsureDir creates dir (and parents) if it does not exist.
func EnsureDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("directory not specified")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// WriteReport writes text followed by a line separator to path, creating the
// parent directory if needed. An empty report yields an empty file.
// The file is written to a temporary sibling and renamed so a failed write
// never leaves a truncated report behind.
func WriteReport(path, text string) error {
	if path == "" {
		return fmt.Errorf("output path not specified")
	}
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if text != "" {
		text += models.LineSeparator
	}
	if _, err := io.WriteString(tmp, text); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write report %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close report %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("move report into %s: %w", path, err)
	}
	return nil
}
