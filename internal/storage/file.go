package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

var documentName = regexp.MustCompile(`^[a-z0-9_-]+$`)

// FileStore keeps each document in <dir>/<name>.json. Writes go to a temp
// file in the same directory which is then renamed over the target.
type FileStore struct {
	dir string
}

// OpenFileStore creates dir if needed and returns a store rooted there.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Close is a no-op; it exists so FileStore satisfies Backend.
func (f *FileStore) Close() error { return nil }

func (f *FileStore) path(name string) (string, error) {
	if !documentName.MatchString(name) {
		return "", fmt.Errorf("invalid document name %q", name)
	}
	return filepath.Join(f.dir, name+".json"), nil
}

func (f *FileStore) GetDocument(name string) ([]byte, error) {
	p, err := f.path(name)
	if err != nil {
		return nil, err
	}
	body, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading document %q: %w", name, err)
	}
	return body, nil
}

func (f *FileStore) PutDocument(name string, body []byte) error {
	p, err := f.path(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %q: %w", name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("writing document %q: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing document %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing document %q: %w", name, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("replacing document %q: %w", name, err)
	}
	return nil
}

func (f *FileStore) DeleteDocument(name string) error {
	p, err := f.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting document %q: %w", name, err)
	}
	return nil
}
