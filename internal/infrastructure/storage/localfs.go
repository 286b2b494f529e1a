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

// FileStore resolves grant file references to readable files.
type FileStore interface {
	Exists(ctx context.Context, ref string) (bool, error)
	// Path returns a local path suitable for streaming the file.
	Path(ref string) (string, error)
}

type localFS struct {
	root string
}

func NewLocalFS(root string) FileStore {
	return &localFS{root: root}
}

var errEscapesRoot = errors.New("file reference escapes storage root")

func (s *localFS) Path(ref string) (string, error) {
	clean := filepath.Clean("/" + ref)
	p := filepath.Join(s.root, clean)
	if !strings.HasPrefix(p, filepath.Clean(s.root)+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", errEscapesRoot, ref)
	}
	return p, nil
}

func (s *localFS) Exists(ctx context.Context, ref string) (bool, error) {
	p, err := s.Path(ref)
	if err != nil {
		return false, nil
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}
