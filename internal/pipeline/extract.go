package pipeline

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"epiviz/internal/config"
	"epiviz/internal/dataset"
	"epiviz/internal/metrics"
	csvparser "epiviz/internal/parser/csv"
	"epiviz/internal/transformer"
)

// SourceReport summarises the extraction of one source.
type SourceReport struct {
	Source      string
	Path        string
	Bytes       int64
	Read        int64 // data lines parsed
	Written     int64 // observations written
	Filtered    int64 // aggregate rows dropped by dataset filters
	Rejected    int64 // rows with an empty country or a bad date
	ParseErrors int64
}

// ExtractReport lists the per-source reports in configured order.
type ExtractReport struct {
	Sources []SourceReport
}

// Extract normalises every configured source into an intermediate file in
// the observation layout. Sources are extracted concurrently; the first
// failure cancels the others.
func (p *Pipeline) Extract(ctx context.Context) (ExtractReport, error) {
	rep := ExtractReport{Sources: make([]SourceReport, len(p.cfg.Sources))}
	err := p.step("extract", func() error {
		g, gctx := errgroup.WithContext(ctx)
		for i, src := range p.cfg.Sources {
			g.Go(func() error {
				r, err := p.extractSource(gctx, src)
				rep.Sources[i] = r
				if err != nil {
					return fmt.Errorf("source %s: %w", src.Name, err)
				}
				return nil
			})
		}
		return g.Wait()
	})
	return rep, err
}

func (p *Pipeline) extractSource(ctx context.Context, src config.Source) (SourceReport, error) {
	rep := SourceReport{Source: src.Name, Path: p.rawPath(src)}
	log := p.log.With(zap.String("source", src.Name))

	desc, err := dataset.Lookup(src.Name)
	if err != nil {
		return rep, err
	}
	rc, size, err := openLocal(ctx, rep.Path)
	if err != nil {
		return rep, err
	}
	rep.Bytes = size
	log.Info("extracting", zap.String("path", rep.Path), zap.String("size", humanize.Bytes(uint64(size))))

	out, err := csvparser.Create(p.intermediatePath(src), transformer.ObservationColumns)
	if err != nil {
		_ = rc.Close()
		return rep, err
	}
	defer out.Abort()

	columns := desc.Columns()
	nObs := len(transformer.ObservationColumns)
	parseAgg := newErrAgg(thisMany)
	rejectAgg := newErrAgg(thisMany)
	rows := make(chan *transformer.Row, p.cfg.Runtime.ChannelBuffer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(rows)
		return csvparser.StreamCSVRows(gctx, rc, columns, desc.ParserOptions(src.Options), rows, func(line int, err error) {
			parseAgg.add(fmt.Sprintf("line %d: %v", line, err))
		})
	})
	g.Go(func() error {
		for r := range rows {
			rep.Read++
			if dropped(desc, r) {
				rep.Filtered++
				r.Free()
				continue
			}
			r.V[0] = desc.Pandemic
			o, err := transformer.DecodeObservation(r.V[:nObs], desc.DateLayout)
			line := r.Line
			r.Free()
			if err != nil {
				rep.Rejected++
				rejectAgg.add(fmt.Sprintf("line %d: %v", line, err))
				continue
			}
			if err := out.Write(o.Record(p.layout)); err != nil {
				return fmt.Errorf("write line %d: %w", line, err)
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return rep, err
	}
	if err := out.Commit(); err != nil {
		return rep, err
	}
	rep.Written = out.Rows()
	rep.ParseErrors = int64(parseAgg.total())

	parseAgg.log(log, "parse errors")
	rejectAgg.log(log, "rejected rows")
	log.Info("extracted",
		zap.String("read", humanize.Comma(rep.Read)),
		zap.String("written", humanize.Comma(rep.Written)),
		zap.Int64("filtered", rep.Filtered),
		zap.Int64("rejected", rep.Rejected),
		zap.Int64("parse_errors", rep.ParseErrors),
	)
	metrics.RecordRow(p.cfg.Job, "extracted", rep.Written)
	metrics.RecordRow(p.cfg.Job, "rejected", rep.Rejected)
	metrics.RecordRow(p.cfg.Job, "parse_errors", rep.ParseErrors)
	return rep, nil
}

// dropped reports whether a dataset filter drops r. Filter columns follow
// the observation columns in r.
func dropped(desc dataset.Descriptor, r *transformer.Row) bool {
	base := len(transformer.ObservationColumns)
	for i, f := range desc.Filters {
		if base+i >= len(r.V) {
			break
		}
		if v, ok := r.V[base+i].(string); ok && f.Drop(v) {
			return true
		}
	}
	return false
}
