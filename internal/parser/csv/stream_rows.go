// Package csv streams delimited files into pooled rows and writes the
// intermediate and warehouse CSV files of the pipeline.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"epiviz/internal/config"
	"epiviz/internal/transformer"
)

// progressEvery is the number of emitted rows between debug heartbeats.
const progressEvery = 50_000

// StreamCSVRows reads src and sends one pooled row per record to out, with
// values ordered like columns. Empty cells become nil. Row.Line is the
// 1-based record number in the file.
//
// Recognised options:
//
//	has_header         bool, default true. When false columns map by position.
//	header_map         object, source header -> target column.
//	comma              string, first rune is the delimiter, default ",".
//	trim_space         bool, default true.
//	lazy_quotes        bool, default false.
//	fields_per_record  int, 0 accepts any width.
//
// Malformed records are reported to onErr and skipped. A header that cannot
// be read and any error from src itself are returned. src is closed before
// returning.
func StreamCSVRows(
	ctx context.Context,
	src io.ReadCloser,
	columns []string,
	opt config.Options,
	out chan<- *transformer.Row,
	onErr func(line int, err error),
) error {
	defer src.Close()

	report := func(line int, err error) {
		if onErr != nil {
			onErr(line, err)
		}
	}

	r := csv.NewReader(src)
	r.Comma = opt.Rune("comma", ',')
	r.LazyQuotes = opt.Bool("lazy_quotes", false)
	r.ReuseRecord = true
	r.FieldsPerRecord = opt.Int("fields_per_record", 0)
	if r.FieldsPerRecord == 0 {
		r.FieldsPerRecord = -1
	}
	trim := opt.Bool("trim_space", true)

	line := 0
	var ix []int
	if opt.Bool("has_header", true) {
		line++
		hdr, err := r.Read()
		if err != nil {
			err = fmt.Errorf("read header: %w", err)
			report(line, err)
			return err
		}
		ix = sourceIndex(hdr, columns, opt.StringMap("header_map"))
	} else {
		ix = make([]int, len(columns))
		for i := range ix {
			ix[i] = i
		}
	}

	emitted := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line++
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if pe := (*csv.ParseError)(nil); errors.As(err, &pe) {
			report(line, fmt.Errorf("csv read: %w", err))
			continue
		}
		if err != nil {
			return fmt.Errorf("read line %d: %w", line, err)
		}

		row := transformer.GetRow(len(columns))
		row.Line = line
		for i, si := range ix {
			if si < 0 || si >= len(rec) {
				continue
			}
			v := rec[si]
			if trim && hasEdgeSpace(v) {
				v = trimSpace(v)
			}
			if v != "" {
				row.V[i] = v
			}
		}

		select {
		case out <- row:
		case <-ctx.Done():
			row.Free()
			return ctx.Err()
		}
		if emitted++; emitted%progressEvery == 0 {
			zap.L().Debug("reader progress", zap.Int("line", line), zap.Int("emitted", emitted))
		}
	}
}
