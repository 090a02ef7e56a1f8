package static

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Dir serves pages from a directory on the local filesystem.
type Dir struct {
	root string
}

func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// ReadPage reads root/name. Only the base name is used, so a request can
// never escape the directory.
func (d *Dir) ReadPage(_ context.Context, name string) ([]byte, error) {
	p := filepath.Join(d.root, filepath.Base(name))

	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPageNotFound, p)
		}
		return nil, fmt.Errorf("failed to read page %s: %w", p, err)
	}
	return b, nil
}
