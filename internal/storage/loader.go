package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CopyFn abstracts a backend's bulk insert capability. Implementations insert
// rows aligned to columns and return the number of rows reported as
// inserted. It should cancel promptly when ctx is done.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// PooledRow is a row that exposes positional values and returns itself to a
// pool once persisted.
type PooledRow interface {
	Values() []any
	Free()
}

// LoadBatches drains pooled rows from in, groups them into batches of
// batchSize, and calls copyFn for each non-empty batch. Rows of a flushed
// batch are freed whether or not the copy succeeded. onFlush, if set, is
// called with the row count of every successful batch.
//
// It returns the total reported by copyFn and the first error encountered.
// On cancellation it returns (total, ctx.Err()) and leaves both the current
// batch and the rest of in to the caller.
func LoadBatches[R PooledRow](
	ctx context.Context,
	log *zap.Logger,
	columns []string,
	in <-chan R,
	batchSize int,
	copyFn CopyFn,
	onFlush func(n int64),
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	var (
		total     int64
		batches   int64
		batchRows = make([]R, 0, batchSize)
		slab      = make([][]any, 0, batchSize)
		start     = time.Now()
		lastFlush = start
	)

	flush := func() error {
		if len(batchRows) == 0 {
			return nil
		}

		slab = slab[:0]
		for _, r := range batchRows {
			slab = append(slab, r.Values())
		}

		n, err := copyFn(ctx, columns, slab)
		total += n

		for _, r := range batchRows {
			r.Free()
		}
		batchRows = batchRows[:0]

		if err != nil {
			log.Error("copy failed", zap.Int64("after", n), zap.Int64("total", total), zap.Error(err))
			return err
		}

		batches++
		now := time.Now()
		since := now.Sub(lastFlush)
		rps := float64(0)
		if since > 0 {
			rps = float64(n) / since.Seconds()
		}
		log.Debug("batch flushed",
			zap.Int64("batch", batches),
			zap.Int64("inserted", n),
			zap.Int64("total_inserted", total),
			zap.Float64("rps", rps),
			zap.Duration("elapsed", now.Sub(start).Truncate(time.Millisecond)),
		)
		lastFlush = now
		if onFlush != nil {
			onFlush(n)
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()

		case r, ok := <-in:
			if !ok {
				if err := flush(); err != nil {
					return total, err
				}
				log.Debug("loader input closed", zap.Int64("batches", batches), zap.Int64("total_inserted", total))
				return total, nil
			}
			batchRows = append(batchRows, r)
			if len(batchRows) >= batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}
