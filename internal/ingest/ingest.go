// Package ingest pulls match rows from the sheet on a fixed interval and
// installs a freshly built match index after every successful fetch.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/pable/versus-overlay/internal/aggregator"
	"github.com/pable/versus-overlay/internal/model"
	"github.com/pable/versus-overlay/internal/sheets"
	"github.com/pable/versus-overlay/internal/storage"
)

// ErrBusy is returned by RunOnce while another fetch is in flight.
var ErrBusy = errors.New("ingest already running")

// Sink receives each rebuilt index.
type Sink interface {
	ReplaceIndex(idx model.MatchIndex, seeds model.Seeds)
}

// Ingestor runs fetch → build → install cycles.
type Ingestor struct {
	fetcher sheets.Fetcher
	sink    Sink
	db      *storage.DB // optional row cache
	logger  *log.Logger

	running atomic.Bool
	now     func() time.Time
}

// New creates an Ingestor. db may be nil to skip caching.
func New(fetcher sheets.Fetcher, sink Sink, db *storage.DB, logger *log.Logger) *Ingestor {
	if logger == nil {
		logger = log.Default()
	}
	return &Ingestor{
		fetcher: fetcher,
		sink:    sink,
		db:      db,
		logger:  logger.WithPrefix("ingest"),
		now:     time.Now,
	}
}

// Restore rebuilds the index from the cached rows so stats are available
// before the first fetch. It returns the number of rows restored.
func (in *Ingestor) Restore() (int, error) {
	if in.db == nil {
		return 0, nil
	}
	rows, err := in.db.LoadRows()
	if err != nil {
		return 0, fmt.Errorf("load cached rows: %w", err)
	}
	seeds, err := in.db.LoadSeeds()
	if err != nil {
		return 0, fmt.Errorf("load cached seeds: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	idx := aggregator.BuildIndex(rows)
	in.sink.ReplaceIndex(idx, seeds)
	in.logger.Info("restored cached rows", "rows", len(rows), "players", len(aggregator.Players(idx)))
	return len(rows), nil
}

// RunOnce performs one fetch. On failure the previous index is kept and the
// failure is logged and recorded.
func (in *Ingestor) RunOnce(ctx context.Context) (model.IngestRun, error) {
	if !in.running.CompareAndSwap(false, true) {
		return model.IngestRun{}, ErrBusy
	}
	defer in.running.Store(false)

	run := model.IngestRun{StartedAt: in.now().UTC().Format(time.RFC3339)}

	rows, err := in.fetcher.FetchRows(ctx)
	if err != nil {
		run.Error = err.Error()
		in.logger.Error("sheet fetch failed, keeping previous data", "err", err)
		in.record(run)
		return run, err
	}

	seeds, err := in.fetcher.FetchSeeds(ctx)
	freshSeeds := err == nil
	if !freshSeeds {
		in.logger.Warn("seed fetch failed, using cached seeds", "err", err)
		seeds = in.cachedSeeds()
	}

	idx := aggregator.BuildIndex(rows)
	in.sink.ReplaceIndex(idx, seeds)

	run.Rows = len(rows)
	run.Players = len(aggregator.Players(idx))
	in.logger.Info("data updated", "rows", run.Rows, "players", run.Players, "seeds", len(seeds))

	if in.db != nil {
		if err := in.db.ReplaceRows(rows); err != nil {
			in.logger.Error("cache rows", "err", err)
		}
		if freshSeeds {
			if err := in.db.ReplaceSeeds(seeds); err != nil {
				in.logger.Error("cache seeds", "err", err)
			}
		}
	}
	in.record(run)
	return run, nil
}

// Run fetches immediately and then every interval until ctx is done. A tick
// that fires while a fetch is still running is skipped.
func (in *Ingestor) Run(ctx context.Context, interval time.Duration) {
	in.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			in.tick(ctx)
		}
	}
}

func (in *Ingestor) tick(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := in.RunOnce(fetchCtx); errors.Is(err, ErrBusy) {
		in.logger.Debug("skipping tick, previous fetch still running")
	}
}

func (in *Ingestor) cachedSeeds() model.Seeds {
	if in.db == nil {
		return nil
	}
	seeds, err := in.db.LoadSeeds()
	if err != nil {
		in.logger.Error("load cached seeds", "err", err)
		return nil
	}
	return seeds
}

func (in *Ingestor) record(run model.IngestRun) {
	if in.db == nil {
		return
	}
	if _, err := in.db.RecordIngest(run); err != nil {
		in.logger.Error("record ingest run", "err", err)
	}
}
