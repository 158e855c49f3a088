package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pable/versus-overlay/internal/model"
)

// ReplaceRows swaps the cached sheet rows for rows in a single transaction.
func (db *DB) ReplaceRows(rows []model.Row) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sheet_rows`); err != nil {
		return fmt.Errorf("clear sheet_rows: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO sheet_rows(position, ncs, winner, loser, cells)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range rows {
		cells, err := json.Marshal(r.Cells())
		if err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
		if _, err := stmt.Exec(i, r[model.ColNCS], r[model.ColWinner], r[model.ColLoser], string(cells)); err != nil {
			return fmt.Errorf("insert sheet_rows %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// LoadRows returns the cached sheet rows in source order.
func (db *DB) LoadRows() ([]model.Row, error) {
	rows, err := db.conn.Query(`SELECT cells FROM sheet_rows ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Row
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return nil, fmt.Errorf("decode cached row: %w", err)
		}
		out = append(out, model.NewRow(cells...))
	}
	return out, rows.Err()
}

// CountRows returns the number of cached sheet rows.
func (db *DB) CountRows() (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(1) FROM sheet_rows`).Scan(&n)
	return n, err
}

// ReplaceSeeds swaps the cached seed table for seeds.
func (db *DB) ReplaceSeeds(seeds model.Seeds) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM seeds`); err != nil {
		return fmt.Errorf("clear seeds: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO seeds(player, seed) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for player, seed := range seeds {
		if _, err := stmt.Exec(player, seed); err != nil {
			return fmt.Errorf("insert seed for %s: %w", player, err)
		}
	}
	return tx.Commit()
}

// LoadSeeds returns the cached seeds.
func (db *DB) LoadSeeds() (model.Seeds, error) {
	rows, err := db.conn.Query(`SELECT player, seed FROM seeds`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(model.Seeds)
	for rows.Next() {
		var player, seed string
		if err := rows.Scan(&player, &seed); err != nil {
			return nil, err
		}
		out[player] = seed
	}
	return out, rows.Err()
}

// RecordIngest appends an ingest attempt to the log and returns its id.
// A zero StartedAt is stamped with the current UTC time.
func (db *DB) RecordIngest(run model.IngestRun) (int64, error) {
	if run.StartedAt == "" {
		run.StartedAt = time.Now().UTC().Format(time.RFC3339)
	}
	res, err := db.conn.Exec(`
		INSERT INTO ingest_runs(started_at, row_count, players, error)
		VALUES (?, ?, ?, ?)`,
		run.StartedAt, run.Rows, run.Players, run.Error,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListIngestRuns returns the most recent ingest attempts, newest first.
func (db *DB) ListIngestRuns(limit int) ([]model.IngestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id, started_at, row_count, players, error
		FROM ingest_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.IngestRun
	for rows.Next() {
		var r model.IngestRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.Rows, &r.Players, &r.Error); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastSuccessfulIngest returns the newest successful ingest, or nil if none.
func (db *DB) LastSuccessfulIngest() (*model.IngestRun, error) {
	var r model.IngestRun
	err := db.conn.QueryRow(`
		SELECT id, started_at, row_count, players, error
		FROM ingest_runs WHERE error = '' ORDER BY id DESC LIMIT 1`).
		Scan(&r.ID, &r.StartedAt, &r.Rows, &r.Players, &r.Error)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetCacheOverview returns row, player and seed counts plus the last
// successful ingest.
func (db *DB) GetCacheOverview() (model.CacheOverview, error) {
	var ov model.CacheOverview
	err := db.conn.QueryRow(`
		SELECT
			(SELECT COUNT(1) FROM sheet_rows),
			(SELECT COUNT(1) FROM (
				SELECT winner AS name FROM sheet_rows WHERE winner != ''
				UNION
				SELECT loser FROM sheet_rows WHERE loser != ''
			)),
			(SELECT COUNT(1) FROM seeds)`).
		Scan(&ov.Rows, &ov.Players, &ov.Seeds)
	if err != nil {
		return ov, err
	}
	ov.LastIngest, err = db.LastSuccessfulIngest()
	return ov, err
}

// GetTopPlayersByMatches returns the players appearing in the most cached
// rows, most active first. A row with the same winner and loser counts once.
func (db *DB) GetTopPlayersByMatches(limit int) ([]model.PlayerActivity, error) {
	rows, err := db.conn.Query(`
		SELECT name, COUNT(1) AS matches, SUM(won) AS wins
		FROM (
			SELECT position, winner AS name, 1 AS won FROM sheet_rows WHERE winner != ''
			UNION
			SELECT position, loser, 0 FROM sheet_rows WHERE loser != '' AND loser != winner
		)
		GROUP BY name
		ORDER BY matches DESC, name
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PlayerActivity
	for rows.Next() {
		var a model.PlayerActivity
		if err := rows.Scan(&a.Name, &a.Matches, &a.Wins); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// QueryRaw runs an arbitrary query and returns column names and stringified rows.
func (db *DB) QueryRaw(query string) ([]string, [][]string, error) {
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]string
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			switch x := v.(type) {
			case nil:
				row[i] = "NULL"
			case []byte:
				row[i] = string(x)
			default:
				row[i] = fmt.Sprint(x)
			}
		}
		out = append(out, row)
	}
	return cols, out, rows.Err()
}
