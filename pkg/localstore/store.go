// Package localstore keeps submission files on a local or in-memory file
// system. It backs development setups and tests.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

var (
	// ErrObjectNotFound is returned when nothing is stored at a path.
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidPath is returned for empty or escaping object paths.
	ErrInvalidPath = errors.New("invalid object path")
)

// Store is an afero backed object store.
type Store struct {
	fs     afero.Fs
	logger zerolog.Logger
}

// New returns a store rooted at root on fs. An empty root uses fs as is.
func New(fs afero.Fs, root string, logger zerolog.Logger) *Store {
	if strings.TrimSpace(root) != "" {
		fs = afero.NewBasePathFs(fs, root)
	}
	return &Store{
		fs:     fs,
		logger: logger.With().Str("component", "local_store").Logger(),
	}
}

// NewMemory returns a store backed by an in-memory file system.
func NewMemory(logger zerolog.Logger) *Store {
	return New(afero.NewMemMapFs(), "", logger)
}

// Upload writes the content at objectPath and returns the path.
func (s *Store) Upload(ctx context.Context, objectPath string, reader io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name, err := cleanPath(objectPath)
	if err != nil {
		return "", err
	}

	if err := s.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return "", fmt.Errorf("create directory for %s: %w", name, err)
	}
	if err := afero.WriteReader(s.fs, name, reader); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}

	s.logger.Debug().Str("path", name).Msg("object stored")
	return name, nil
}

// Download reads the content stored at objectPath.
func (s *Store) Download(ctx context.Context, objectPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, err := cleanPath(objectPath)
	if err != nil {
		return nil, err
	}

	content, err := afero.ReadFile(s.fs, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return content, nil
}

func cleanPath(objectPath string) (string, error) {
	trimmed := strings.TrimSpace(objectPath)
	if trimmed == "" || strings.HasPrefix(trimmed, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	return cleaned, nil
}
