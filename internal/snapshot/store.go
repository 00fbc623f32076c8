// Package snapshot persists the last fetched content of each tracked URL.
//
// Layout: one file per URL directly under the store directory, named by the
// URL's content key (see Key) and holding the raw UTF-8 text verbatim. Other
// files in the directory (the registry record, temp files, the run lock) are
// never reported as snapshots.
package snapshot

import (
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/hpungsan/sitediff/internal/errors"
)

// Store is a directory of snapshot files keyed by content key.
type Store struct {
	dir string
}

// New returns a Store rooted at dir. Nothing is created until Init or the
// first operation that needs the directory.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Init creates the store directory (and any missing parents). Idempotent.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return errors.NewIOFailure("mkdir", s.dir, err)
	}
	return nil
}

// Path returns the file path for key.
func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, key)
}

// Exists reports whether a snapshot is stored for key.
func (s *Store) Exists(key string) (bool, error) {
	if err := s.Init(); err != nil {
		return false, err
	}
	_, err := os.Lstat(s.Path(key))
	if err == nil {
		return true, nil
	}
	if stderrors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.NewIOFailure("stat", s.Path(key), err)
}

// Read returns the stored content for key, or NOT_FOUND.
func (s *Store) Read(key string) (string, error) {
	f, err := OpenNoFollowRead(s.Path(key))
	if err != nil {
		if _, ok := errors.As(err); ok {
			return "", err
		}
		return "", errors.NewIOFailure("open", s.Path(key), err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", errors.NewIOFailure("read", s.Path(key), err)
	}
	return string(data), nil
}

// Write replaces the snapshot for key with content.
func (s *Store) Write(key, content string) error {
	if err := s.Init(); err != nil {
		return err
	}
	return WriteFileAtomic(s.Path(key), []byte(content))
}

// Remove deletes the snapshot for key. A missing snapshot is not an error.
func (s *Store) Remove(key string) error {
	err := os.Remove(s.Path(key))
	if err == nil || stderrors.Is(err, os.ErrNotExist) {
		return nil
	}
	return errors.NewIOFailure("remove", s.Path(key), err)
}

// ListKeys returns the keys of every stored snapshot, sorted.
func (s *Store) ListKeys() ([]string, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.NewIOFailure("readdir", s.dir, err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsKey(e.Name()) {
			continue
		}
		keys = append(keys, e.Name())
	}
	sort.Strings(keys)
	return keys, nil
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return errors.NewIOFailure("create", path, err)
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return errors.NewIOFailure("write", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return errors.NewIOFailure("sync", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.NewIOFailure("close", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.NewIOFailure("rename", path, err)
	}
	return nil
}
