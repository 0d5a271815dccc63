// Package file reads pipeline inputs from the local filesystem: the raw
// dataset CSVs for extract and the stage outputs for transform and load.
package file

import (
	"context"
	"fmt"
	"io"
	"os"

	"epiviz/internal/datasource"
)

var _ datasource.Source = Local("")

// Local is a file path opened for sequential reading. It is safe for
// concurrent use.
type Local string

// NewLocal binds a Local source to path.
func NewLocal(path string) Local { return Local(path) }

// Path returns the bound path.
func (l Local) Path() string { return string(l) }

// Size returns the file size in bytes. A missing file yields an error
// matching os.ErrNotExist.
func (l Local) Size() (int64, error) {
	fi, err := os.Stat(string(l))
	switch {
	case err != nil:
		return 0, fmt.Errorf("stat %s: %w", l, err)
	case fi.IsDir():
		return 0, fmt.Errorf("stat %s: is a directory", l)
	}
	return fi.Size(), nil
}

// Open opens the file and hints the kernel that it is read front to back.
// A done ctx is reported before the filesystem is touched.
func (l Local) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(string(l))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l, err)
	}
	adviseSequential(f)
	return f, nil
}
