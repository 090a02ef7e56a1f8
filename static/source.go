// Package static loads the fixed response pages served by litepool.
package static

import (
	"context"
	"errors"
)

var ErrPageNotFound = errors.New("page not found")

// Source reads a page body by file name, e.g. "hello.html".
type Source interface {
	ReadPage(ctx context.Context, name string) ([]byte, error)
}
