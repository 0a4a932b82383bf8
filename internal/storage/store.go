// Package storage owns the directory in which downloaded media is persisted,
// and the naming rules applied to files stored there.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hbomb79/Siphon/pkg/logger"
	"github.com/mitchellh/go-homedir"
)

const DefaultDirPermissions = 0755

var (
	log = logger.Get("Storage")

	// ErrNotFound is returned when a name does not resolve to a
	// regular file inside of the storage directory.
	ErrNotFound = errors.New("file not found in storage")
)

// Store is a single directory on local disk. Files placed inside of it are
// never removed by Siphon, cleanup is left to the operator.
type Store struct {
	dir string
}

// New expands and creates (if required) the directory at the path
// provided, returning a Store rooted there.
func New(dir string) (*Store, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand storage path %q: %w", dir, err)
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage path %q: %w", expanded, err)
	}

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Emit(logger.NEW, "Creating storage directory %s\n", abs)
		if err := os.MkdirAll(abs, DefaultDirPermissions); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %q: %w", abs, err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat storage directory %q: %w", abs, err)
	case !info.IsDir():
		return nil, fmt.Errorf("storage path %q exists but is not a directory", abs)
	}

	return &Store{dir: abs}, nil
}

// Dir returns the absolute path of the storage directory.
func (store *Store) Dir() string { return store.dir }

// Path returns the location inside the store for the given name after
// it has been sanitized. The file may not exist.
func (store *Store) Path(name string) string {
	return filepath.Join(store.dir, SanitizeFilename(name))
}

// Resolve sanitizes the name and returns the path to the matching file
// in the store. ErrNotFound is returned if the name does not refer to
// an existing regular file.
func (store *Store) Resolve(name string) (string, fs.FileInfo, error) {
	path := store.Path(name)
	if filepath.Dir(path) != store.dir {
		return "", nil, ErrNotFound
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, ErrNotFound
		}
		return "", nil, err
	}
	if !info.Mode().IsRegular() {
		return "", nil, ErrNotFound
	}

	return path, info, nil
}

// Adopt takes a file which was written by an external process and ensures
// it is stored under the sanitized name provided. If the file already lives
// at the sanitized location nothing is moved. Existing files with the same
// name are overwritten.
func (store *Store) Adopt(writtenPath string, name string) (string, fs.FileInfo, error) {
	target := store.Path(name)
	if writtenPath != "" && filepath.Clean(writtenPath) != target {
		if _, err := os.Stat(writtenPath); err == nil {
			log.Emit(logger.DEBUG, "Moving %s to sanitized location %s\n", writtenPath, target)
			if err := os.Rename(writtenPath, target); err != nil {
				return "", nil, fmt.Errorf("failed to move %q in to storage: %w", writtenPath, err)
			}
		}
	}

	return store.Resolve(name)
}
