package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) Remote() bool { return false }

func (s *LocalStore) Put(_ context.Context, data []byte, name, _ string) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}

	full := filepath.Join(s.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return LocalURLPrefix + name, nil
}

// Delete removes a locally served object. URLs of other stores are ignored.
func (s *LocalStore) Delete(_ context.Context, url string) error {
	full, ok := localPath(s.dir, url)
	if !ok {
		return nil
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", url, err)
	}
	return nil
}

// localPath maps /uploads/<name> to a file under dir.
func localPath(dir, url string) (string, bool) {
	if !strings.HasPrefix(url, LocalURLPrefix) {
		return "", false
	}
	name, err := cleanName(strings.TrimPrefix(url, LocalURLPrefix))
	if err != nil {
		return "", false
	}
	return filepath.Join(dir, filepath.FromSlash(name)), true
}
