package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"epiviz/internal/config"
	"epiviz/internal/metrics"
	csvparser "epiviz/internal/parser/csv"
	"epiviz/internal/schema"
	"epiviz/internal/storage"
	"epiviz/internal/transformer"
)

// LoadOptions control how the warehouse is prepared before loading.
type LoadOptions struct {
	// CreateTables runs CREATE TABLE IF NOT EXISTS for every table.
	CreateTables bool
	// Truncate empties every table, facts first, before loading.
	Truncate bool
}

// TableReport summarises the load of one table.
type TableReport struct {
	Table       string
	Processed   int64
	ParseErrors int64
	Rejected    int64
	Inserted    int64
	Batches     int64
}

// LoadReport lists the per-table reports in load order.
type LoadReport struct {
	Tables []TableReport
}

// Load streams every transformed table file into the warehouse, dimensions
// before facts.
func (p *Pipeline) Load(ctx context.Context, opt LoadOptions) (LoadReport, error) {
	var rep LoadReport
	err := p.step("load", func() error {
		order, err := p.star.LoadOrder()
		if err != nil {
			return err
		}
		dsn, err := p.cfg.DB.DataSourceName()
		if err != nil {
			return err
		}
		p.log.Info("connecting", zap.String("driver", p.cfg.DB.Driver), zap.String("dsn", p.cfg.DB.Redacted()))

		repos := make([]storage.Repository, 0, len(order))
		defer func() {
			for _, r := range repos {
				r.Close()
			}
		}()
		for _, t := range order {
			repo, err := p.newRepository(ctx, storage.Config{
				Kind:    p.cfg.DB.Driver,
				DSN:     dsn,
				Table:   t.Name,
				Columns: t.ColumnNames(),
			})
			if err != nil {
				return fmt.Errorf("open %s: %w", t.Name, err)
			}
			repos = append(repos, repo)
			if opt.CreateTables {
				if err := storage.EnsureTable(ctx, p.cfg.DB.Driver, repo, t); err != nil {
					return err
				}
			}
		}

		if opt.Truncate {
			for i := len(order) - 1; i >= 0; i-- {
				if err := storage.Truncate(ctx, repos[i]); err != nil {
					return fmt.Errorf("truncate %s: %w", order[i].Name, err)
				}
				p.log.Info("table truncated", zap.String("table", order[i].Name))
			}
		}

		for i, t := range order {
			tr, err := p.loadTable(ctx, repos[i], t)
			rep.Tables = append(rep.Tables, tr)
			if err != nil {
				return fmt.Errorf("table %s: %w", t.Name, err)
			}
		}
		return nil
	})
	return rep, err
}

// loadTable streams one transformed file into repo:
//
//	reader → tap (counts processed) → N coercers → validator → batched loader
//
// Bounded channels keep memory around O(batch size + buffer). A fatal loader
// error cancels the table and the remaining rows are drained and freed.
func (p *Pipeline) loadTable(ctx context.Context, repo storage.Repository, t schema.Table) (TableReport, error) {
	log := p.log.With(zap.String("table", t.Name))
	rep := TableReport{Table: t.Name}
	path := p.transformedPath(t.Name)

	rc, size, err := openLocal(ctx, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rep, fmt.Errorf("transformed file missing, run transform first: %w", err)
		}
		return rep, err
	}
	log.Info("loading", zap.String("path", path), zap.String("size", humanize.Bytes(uint64(size))))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rt := p.cfg.Runtime
	coercer := transformer.NewCoercer(t, p.layout)
	columns := coercer.Columns()

	var (
		stats        counters
		parseAgg     = newErrAgg(thisMany)
		transformAgg = newErrAgg(thisMany)
		validateAgg  = newErrAgg(thisMany)
		readErr      error
	)

	rawCh := make(chan *transformer.Row, rt.ChannelBuffer)
	tapCh := make(chan *transformer.Row, rt.ChannelBuffer)
	coercedCh := make(chan *transformer.Row, rt.ChannelBuffer)
	validCh := make(chan *transformer.Row, rt.ChannelBuffer)

	var readerWG sync.WaitGroup
	readerWG.Add(1)
	go func() {
		defer readerWG.Done()
		defer close(rawCh)
		readErr = csvparser.StreamCSVRows(ctx, rc, columns, config.Options{"has_header": true}, rawCh, func(line int, err error) {
			stats.parseErrors.Add(1)
			parseAgg.add(fmt.Sprintf("line %d: %v", line, err))
		})
	}()

	go func() {
		defer close(tapCh)
		for r := range rawCh {
			stats.processed.Add(1)
			select {
			case tapCh <- r:
			case <-ctx.Done():
				r.Free()
				for r := range rawCh {
					r.Free()
				}
				return
			}
		}
	}()

	var coerceWG sync.WaitGroup
	workers := max(rt.TransformWorkers, 1)
	coerceWG.Add(workers)
	for range workers {
		go func() {
			defer coerceWG.Done()
			transformer.TransformLoopRows(ctx, coercer, tapCh, coercedCh, func(line int, reason string) {
				stats.transformRejects.Add(1)
				transformAgg.add(fmt.Sprintf("line %d: %s", line, reason))
			})
		}()
	}
	go func() {
		coerceWG.Wait()
		close(coercedCh)
	}()

	go func() {
		defer close(validCh)
		transformer.ValidateLoopRows(ctx, columns, requiredColumns(t), coercedCh, validCh, func(line int, reason string) {
			stats.validateRejects.Add(1)
			validateAgg.add(fmt.Sprintf("line %d: %s", line, reason))
		})
	}()

	inserted, loadErr := storage.LoadBatches(ctx, log, columns, validCh, rt.BatchSize, repo.CopyFrom, func(n int64) {
		stats.batches.Add(1)
	})
	stats.inserted.Store(inserted)
	if loadErr != nil {
		cancel()
		for r := range validCh {
			r.Free()
		}
	}
	readerWG.Wait()

	parseAgg.log(log, "parse errors")
	transformAgg.log(log, "transform rejects")
	validateAgg.log(log, "validation rejects")
	logTableSummary(log, &stats)

	rep.Processed = stats.processed.Load()
	rep.ParseErrors = stats.parseErrors.Load()
	rep.Rejected = stats.transformRejects.Load() + stats.validateRejects.Load()
	rep.Inserted = inserted
	rep.Batches = stats.batches.Load()

	job := p.cfg.Job
	metrics.RecordRow(job, "processed", rep.Processed)
	metrics.RecordRow(job, "parse_errors", rep.ParseErrors)
	metrics.RecordRow(job, "rejected", rep.Rejected)
	metrics.RecordRow(job, "inserted", rep.Inserted)
	metrics.RecordBatches(job, rep.Batches)
	metrics.RecordTable(job, metrics.StageLoad, t.Name, rep.Inserted)

	if loadErr != nil {
		return rep, loadErr
	}
	if readErr != nil && !errors.Is(readErr, context.Canceled) && !errors.Is(readErr, io.EOF) {
		return rep, fmt.Errorf("read %s: %w", path, readErr)
	}
	return rep, nil
}

// requiredColumns are the non-nullable columns of t: its key, its foreign
// keys and anything else declared NOT NULL.
func requiredColumns(t schema.Table) []string {
	var out []string
	for _, c := range t.Columns {
		if !c.Nullable {
			out = append(out, c.Name)
		}
	}
	return out
}
