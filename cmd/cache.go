package cmd

import (
	"fmt"

	"github.com/pable/versus-overlay/internal/aggregator"
	"github.com/pable/versus-overlay/internal/clock"
	"github.com/pable/versus-overlay/internal/model"
	"github.com/pable/versus-overlay/internal/storage"
)

// loadCachedIndex rebuilds the match index from the rows stored by the last
// successful ingest.
func loadCachedIndex(db *storage.DB) (model.MatchIndex, model.Seeds, error) {
	rows, err := db.LoadRows()
	if err != nil {
		return nil, nil, fmt.Errorf("load cached rows: %w", err)
	}
	seeds, err := db.LoadSeeds()
	if err != nil {
		return nil, nil, fmt.Errorf("load cached seeds: %w", err)
	}
	return aggregator.BuildIndex(rows), seeds, nil
}

func fmtSeconds(secs int) string { return clock.Format(float64(secs)) }
