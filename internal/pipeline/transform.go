package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"epiviz/internal/config"
	"epiviz/internal/dataset"
	"epiviz/internal/metrics"
	csvparser "epiviz/internal/parser/csv"
	"epiviz/internal/transformer"
)

// TransformReport summarises the transform stage.
type TransformReport struct {
	transformer.BuildStats
	Rejected int64            // intermediate rows that no longer decode
	Tables   map[string]int64 // rows written per table
}

// Transform reads the intermediate files in source order and writes one
// file per warehouse table.
func (p *Pipeline) Transform(ctx context.Context) (TransformReport, error) {
	rep := TransformReport{Tables: make(map[string]int64, len(p.star.Tables))}
	err := p.step("transform", func() error {
		b, err := transformer.NewStarBuilder(p.star, transformer.StarOptions{
			Measures:     p.cfg.Transform.NumericColumns,
			MissingValue: p.cfg.Transform.MissingValue,
			DateLayout:   p.layout,
		})
		if err != nil {
			return err
		}

		for _, src := range p.cfg.Sources {
			n, err := p.transformSource(ctx, b, src)
			rep.Rejected += n
			if err != nil {
				return fmt.Errorf("source %s: %w", src.Name, err)
			}
		}

		for _, t := range p.star.Tables {
			rows, err := b.Rows(t.Name)
			if err != nil {
				return err
			}
			path := p.transformedPath(t.Name)
			if err := csvparser.WriteFile(path, t.ColumnNames(), rows); err != nil {
				return err
			}
			rep.Tables[t.Name] = int64(len(rows))
			metrics.RecordTable(p.cfg.Job, metrics.StageTransform, t.Name, int64(len(rows)))
			p.log.Info("table written",
				zap.String("table", t.Name),
				zap.String("path", path),
				zap.String("rows", humanize.Comma(int64(len(rows)))),
			)
		}

		rep.BuildStats = b.Stats()
		p.log.Info("star built",
			zap.Int64("observations", rep.Observations),
			zap.Int64("duplicates", rep.Duplicates),
			zap.Int64("rejected", rep.Rejected),
			zap.Int("dates", rep.Dates),
			zap.Int("locations", rep.Locations),
			zap.Int("pandemics", rep.Pandemics),
			zap.Int("facts", rep.Facts),
		)
		metrics.RecordRow(p.cfg.Job, "duplicates", rep.Duplicates)
		metrics.RecordRow(p.cfg.Job, "rejected", rep.Rejected)
		return nil
	})
	return rep, err
}

// transformSource feeds one intermediate file into b and returns how many
// rows were rejected.
func (p *Pipeline) transformSource(ctx context.Context, b *transformer.StarBuilder, src config.Source) (int64, error) {
	log := p.log.With(zap.String("source", src.Name))
	desc, err := dataset.Lookup(src.Name)
	if err != nil {
		return 0, err
	}
	b.DescribePandemic(desc.Pandemic, dataset.Description(desc.Pandemic))

	path := p.intermediatePath(src)
	rc, size, err := openLocal(ctx, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("intermediate file missing, run extract first: %w", err)
		}
		return 0, err
	}
	log.Debug("transforming", zap.String("path", path), zap.String("size", humanize.Bytes(uint64(size))))

	var deriver *transformer.DailyDeriver
	if desc.DeriveDaily {
		deriver = transformer.NewDailyDeriver()
	}

	var rejected int64
	rejectAgg := newErrAgg(thisMany)
	rows := make(chan *transformer.Row, p.cfg.Runtime.ChannelBuffer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(rows)
		return csvparser.StreamCSVRows(gctx, rc, transformer.ObservationColumns, config.Options{"has_header": true}, rows, func(line int, err error) {
			rejectAgg.add(fmt.Sprintf("line %d: %v", line, err))
		})
	})
	g.Go(func() error {
		for r := range rows {
			o, err := transformer.DecodeObservation(r.V, p.layout)
			line := r.Line
			r.Free()
			if err != nil {
				rejected++
				rejectAgg.add(fmt.Sprintf("line %d: %v", line, err))
				continue
			}
			o.Country = p.aliases.Canonical(o.Country)
			if deriver != nil {
				deriver.Derive(&o)
			}
			b.Add(o)
		}
		return nil
	})
	err = g.Wait()
	rejectAgg.log(log, "rejected rows")
	return rejected, err
}
