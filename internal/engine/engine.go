// Package engine runs the parallel visit aggregation: it plans line
// aligned ranges, scans them concurrently, collects each worker's payload
// through a result channel and merges the payloads once every worker has
// finished.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ianlewis/visits-go/internal/catalog"
	"github.com/ianlewis/visits-go/internal/chunk"
	"github.com/ianlewis/visits-go/internal/datecodec"
	"github.com/ianlewis/visits-go/internal/merge"
	"github.com/ianlewis/visits-go/internal/resultchan"
	"github.com/ianlewis/visits-go/internal/wire"
	"github.com/ianlewis/visits-go/internal/worker"
)

// Summary describes a completed run.
type Summary struct {
	InputSize    int64
	Workers      int
	SlotCapacity int
	// Scan is the sum of the workers' scan statistics.
	Scan worker.Stats
	// Merge is the merge statistics.
	Merge   merge.Stats
	Routes  int
	Elapsed time.Duration
}

// Parser aggregates visit logs against a fixed route catalog and date
// window. The catalog and codec must not change once the Parser is built.
type Parser struct {
	cfg    Config
	routes *catalog.Catalog
	dates  *datecodec.Codec
	worker *worker.Worker
	logger *zap.Logger
}

// New returns a Parser. A nil logger discards logs.
func New(cfg Config, routes *catalog.Catalog, dates *datecodec.Codec, logger *zap.Logger) (*Parser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if routes == nil || dates == nil {
		return nil, fmt.Errorf("%w: route catalog and date codec are required", ErrConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		cfg:    cfg,
		routes: routes,
		dates:  dates,
		worker: worker.New(routes, dates, int(cfg.BlockSize.Bytes()), cfg.Delimiter),
		logger: logger,
	}, nil
}

// slotCapacity returns the configured slot capacity or the worst case
// payload size: one record per route per day.
func (p *Parser) slotCapacity() int {
	if p.cfg.SlotCapacity != 0 {
		return int(p.cfg.SlotCapacity.Bytes())
	}
	worst := uint64(p.routes.Len()) * uint64(p.dates.Window()) * wire.RecordSize
	return int(min(worst, math.MaxUint32))
}

// Parse aggregates the visits in the file at input. Lines with an unknown
// route, a date outside the window or no delimiter are skipped. Any worker
// failure, including a payload larger than the slot capacity, fails the
// whole run and no result is returned.
func (p *Parser) Parse(ctx context.Context, input string) (res *merge.Result, sum Summary, err error) {
	start := time.Now()

	f, err := os.Open(input)
	if err != nil {
		return nil, sum, fmt.Errorf("engine: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, sum, fmt.Errorf("engine: %w", err)
	}
	sum.InputSize = fi.Size()

	ranges, err := chunk.Plan(f, sum.InputSize, p.cfg.Workers)
	f.Close()
	if err != nil {
		return nil, sum, fmt.Errorf("engine: planning ranges: %w", err)
	}
	sum.Workers = len(ranges)
	sum.SlotCapacity = p.slotCapacity()

	p.logger.Info("parsing",
		zap.String("input", input),
		zap.String("size", datasize.ByteSize(sum.InputSize).HumanReadable()),
		zap.Int("workers", sum.Workers),
		zap.String("slot_capacity", datasize.ByteSize(sum.SlotCapacity).HumanReadable()),
	)

	ch, err := resultchan.Open(len(ranges), sum.SlotCapacity, p.cfg.ChannelDir)
	if err != nil {
		return nil, sum, fmt.Errorf("engine: %w", err)
	}
	defer func() {
		if cerr := ch.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("engine: releasing result channel: %w", cerr))
			res = nil
		}
	}()

	stats := make([]worker.Stats, len(ranges))
	g, gctx := errgroup.WithContext(ctx)
	for i, rg := range ranges {
		i, rg := i, rg
		p.logger.Debug("range planned", zap.Int("worker", i), zap.Int64("start", rg.Start), zap.Int64("end", rg.End))
		g.Go(func() error {
			table, st, err := p.worker.Scan(gctx, input, rg)
			if err != nil {
				return fmt.Errorf("engine: worker %d: %w", i, err)
			}
			payload := table.Encode(nil)
			if err := ch.Write(i, payload); err != nil {
				return fmt.Errorf("engine: worker %d: %w", i, err)
			}
			stats[i] = st
			p.logger.Debug("worker finished",
				zap.Int("worker", i),
				zap.Int64("lines", st.Lines),
				zap.Int64("dropped", st.Dropped),
				zap.Int("records", len(table)),
				zap.Int("payload_bytes", len(payload)),
			)
			return nil
		})
	}

	// No slot is read until every worker has returned.
	if err := g.Wait(); err != nil {
		p.logger.Error("parse failed", zap.Error(err))
		return nil, sum, err
	}

	m := merge.New(p.routes, p.dates)
	for i := range ranges {
		payload, err := ch.Read(i)
		if err != nil {
			return nil, sum, fmt.Errorf("engine: %w", err)
		}
		if err := m.Add(payload); err != nil {
			return nil, sum, fmt.Errorf("engine: slot %d: %w", i, err)
		}
	}
	res = m.Result()

	for _, st := range stats {
		sum.Scan.Add(st)
	}
	sum.Merge = m.Stats()
	sum.Routes = len(res.Routes)
	sum.Elapsed = time.Since(start)

	p.logger.Info("parsed",
		zap.Duration("elapsed", sum.Elapsed),
		zap.Int64("lines", sum.Scan.Lines),
		zap.Int64("dropped_lines", sum.Scan.Dropped),
		zap.Int64("records", sum.Merge.Records),
		zap.Int64("dropped_records", sum.Merge.Dropped),
		zap.Int("routes", sum.Routes),
	)
	return res, sum, nil
}
