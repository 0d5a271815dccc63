// Package pipeline runs the three stages of the epiviz ETL against a loaded
// configuration:
//
//	extract    raw/<file>                 → intermediate/<source>.csv
//	transform  intermediate/<source>.csv  → transformed/<table>.csv
//	load       transformed/<table>.csv    → warehouse tables
//
// Every stage reads only what the previous one wrote, so stages can be run
// on their own. Row-level problems are counted and summarised; only I/O,
// configuration and database errors abort a stage.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"epiviz/internal/config"
	"epiviz/internal/datasource/file"
	"epiviz/internal/metrics"
	"epiviz/internal/schema"
	"epiviz/internal/storage"
	"epiviz/internal/transformer"
)

// openLocal opens a file with the sequential-read hint and reports its size.
func openLocal(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	src := file.NewLocal(path)
	size, err := src.Size()
	if err != nil {
		return nil, 0, err
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, 0, err
	}
	return rc, size, nil
}

// Pipeline binds the stages to one configuration. It is safe to run stages
// sequentially; running two stages of one Pipeline concurrently is not
// supported.
type Pipeline struct {
	cfg     config.Settings
	log     *zap.Logger
	runID   string
	star    schema.Star
	layout  string
	aliases *transformer.CountryAliases

	// newRepository opens table sinks; tests replace it.
	newRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
}

// New validates cfg and derives the warehouse model from it. Every log line
// of the returned Pipeline carries a run_id.
func New(cfg config.Settings, log *zap.Logger) (*Pipeline, error) {
	for _, is := range config.ValidateSettings(cfg) {
		if is.Severity == config.SeverityError {
			return nil, fmt.Errorf("invalid configuration: %w", is)
		}
	}
	if cfg.Runtime.BatchSize <= 0 {
		cfg.Runtime.BatchSize = config.Defaults().Runtime.BatchSize
	}
	layout, err := cfg.Transform.DateLayout()
	if err != nil {
		return nil, err
	}
	star, err := schema.Build(cfg.Tables, cfg.Transform.NumericColumns)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	runID := uuid.NewString()
	return &Pipeline{
		cfg:     cfg,
		log:     log.With(zap.String("job", cfg.Job), zap.String("run_id", runID)),
		runID:   runID,
		star:    star,
		layout:  layout,
		aliases: transformer.NewCountryAliases(cfg.Transform.CountryAliases),

		newRepository: storage.New,
	}, nil
}

// RunID identifies this Pipeline in logs.
func (p *Pipeline) RunID() string { return p.runID }

// Star returns the typed warehouse model.
func (p *Pipeline) Star() schema.Star { return p.star }

// Run executes extract, transform and load in sequence and stops at the
// first failing stage.
func (p *Pipeline) Run(ctx context.Context, opt LoadOptions) error {
	if _, err := p.Extract(ctx); err != nil {
		return err
	}
	if _, err := p.Transform(ctx); err != nil {
		return err
	}
	_, err := p.Load(ctx, opt)
	return err
}

// step times fn and records it as a pipeline step.
func (p *Pipeline) step(name string, fn func() error) error {
	start := time.Now()
	p.log.Info("step started", zap.String("step", name))
	err := fn()
	d := time.Since(start)
	metrics.RecordStep(p.cfg.Job, name, err, d)
	if err != nil {
		p.log.Error("step failed", zap.String("step", name), zap.Duration("elapsed", d), zap.Error(err))
		return fmt.Errorf("%s: %w", name, err)
	}
	p.log.Info("step finished", zap.String("step", name), zap.Duration("elapsed", d.Truncate(time.Millisecond)))
	return nil
}

func (p *Pipeline) rawPath(src config.Source) string {
	return filepath.Join(p.cfg.Paths.Raw, src.File)
}

func (p *Pipeline) intermediatePath(src config.Source) string {
	return filepath.Join(p.cfg.Paths.Intermediate, src.Name+".csv")
}

func (p *Pipeline) transformedPath(table string) string {
	return filepath.Join(p.cfg.Paths.Transformed, table+".csv")
}
