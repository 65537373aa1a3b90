package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/audio-pipeline/internal/core"
)

const (
	filePermissions = 0o600
	dirPermissions  = 0o750
)

// ErrKeyOutsideRoot is returned when a key would resolve outside the store root.
var ErrKeyOutsideRoot = errors.New("key resolves outside the store root")

// LocalStore implements core.ObjectStore on top of a local directory.
// Keys are forward-slash separated and relative to the root.
type LocalStore struct {
	root string
}

// NewLocal creates a LocalStore rooted at dir, creating the directory if needed.
func NewLocal(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store root '%s': %w", dir, err)
	}

	mkdirErr := os.MkdirAll(abs, dirPermissions)
	if mkdirErr != nil {
		return nil, fmt.Errorf("failed to create store root '%s': %w", abs, mkdirErr)
	}

	return &LocalStore{root: abs}, nil
}

// Download reads the file stored under key.
func (l *LocalStore) Download(_ context.Context, key string) ([]byte, error) {
	full, err := l.resolve(key)
	if err != nil {
		return nil, err
	}

	data, readErr := os.ReadFile(full)
	if readErr != nil {
		if errors.Is(readErr, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: '%s'", core.ErrObjectNotFound, key)
		}

		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	return data, nil
}

// Upload writes data under key. The file is written to a temporary name and
// renamed, so readers never observe a partially written artifact.
func (l *LocalStore) Upload(_ context.Context, key string, data []byte) error {
	full, err := l.resolve(key)
	if err != nil {
		return err
	}

	mkdirErr := os.MkdirAll(filepath.Dir(full), dirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf("failed to create directory for '%s': %w", key, mkdirErr)
	}

	tmp := full + ".part"

	writeErr := os.WriteFile(tmp, data, filePermissions)
	if writeErr != nil {
		return fmt.Errorf("failed to write object '%s': %w", key, writeErr)
	}

	renameErr := os.Rename(tmp, full)
	if renameErr != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("failed to commit object '%s': %w", key, renameErr)
	}

	return nil
}

// Delete removes the file stored under key.
func (l *LocalStore) Delete(_ context.Context, key string) error {
	full, err := l.resolve(key)
	if err != nil {
		return err
	}

	removeErr := os.Remove(full)
	if removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete object '%s': %w", key, removeErr)
	}

	return nil
}

func (l *LocalStore) resolve(key string) (string, error) {
	full := filepath.Join(l.root, filepath.FromSlash(key))
	if full != l.root && !strings.HasPrefix(full, l.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: '%s'", ErrKeyOutsideRoot, key)
	}

	return full, nil
}

var _ core.ObjectStore = (*LocalStore)(nil)
