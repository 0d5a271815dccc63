// Package datasource defines where pipeline stages read their input from.
package datasource

import (
	"context"
	"io"
)

// Source opens a raw dataset for streaming. Callers close the returned reader.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}
