// Package artifact stores generated thumbnails and returns their public URLs.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Store persists an artifact under key and returns the URL clients should use.
// Delete of a missing key is not an error.
type Store interface {
	Save(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
}

var reKey = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ErrInvalidKey is returned for keys that could escape the store root.
var ErrInvalidKey = errors.New("invalid artifact key")

func checkKey(key string) error {
	if !reKey.MatchString(key) || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func joinURL(base, key string) string {
	if base == "" {
		return key
	}
	return strings.TrimRight(base, "/") + "/" + key
}

// LocalStore writes artifacts under Dir. Writes are atomic: temp file then rename.
type LocalStore struct {
	dir     string
	baseURL string
	logger  *slog.Logger
}

func NewLocalStore(dir, baseURL string, logger *slog.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		return nil, errors.New("artifact: local store needs a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create %s: %w", dir, err)
	}
	return &LocalStore{dir: dir, baseURL: baseURL, logger: logger}, nil
}

// Dir is the root directory, served under the base URL.
func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) Save(ctx context.Context, key, _ string, data []byte) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("artifact: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }() // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("artifact: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("artifact: close: %w", err)
	}
	dst := filepath.Join(s.dir, key)
	if err := os.Rename(tmpName, dst); err != nil {
		return "", fmt.Errorf("artifact: rename: %w", err)
	}
	if err := os.Chmod(dst, 0o644); err != nil {
		s.logger.Warn("artifact chmod failed", "path", dst, "error", err)
	}

	s.logger.Debug("artifact saved", "key", key, "bytes", len(data), "path", dst)
	return joinURL(s.baseURL, path.Clean(key)), nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := filepath.Join(s.dir, key)
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("artifact: remove: %w", err)
	}
	s.logger.Debug("artifact deleted", "key", key, "path", dst)
	return nil
}
