// Package sqlstore is the embedded, on-disk store for historical (frozen)
// season data: one DuckDB file per season, opened through database/sql
// against github.com/duckdb/duckdb-go/v2 — the only embedded SQL engine
// with a direct dependency anywhere in the retrieved pack. Writes go
// through a write-behind buffer modeled on the ingest-channel-plus-ticker
// shape of an append-only WAL (see tomtom215-cartographus's
// internal/wal/wal.go, adapted here from a BadgerDB event log to a
// DuckDB row buffer); transactional multi-statement writes follow the
// teacher's internal/shared/repository/unit_of_work.go Do(ctx, fn)
// pattern, adapted from gorm.DB transactions to database/sql.Tx.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"thefinals-leaderboard-bot/internal/apperr"
	"thefinals-leaderboard-bot/internal/logging"
)

const (
	flushInterval       = 20 * time.Second
	bufferPressureLimit = 200
	idleConnTimeout     = 5 * time.Minute
)

// PlayerRow is one row of the player_data table.
type PlayerRow struct {
	Name      string
	Data      string // raw JSON blob, the full upstream player record
	Rank      int
	Score     int64
	UpdatedAt time.Time
}

// Store owns one historical season's DuckDB file, its write-behind buffer
// and its background flush loop.
type Store struct {
	seasonID  string
	path      string
	backupDir string

	db *sql.DB

	ingest   chan PlayerRow
	flushReq chan chan error
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Open creates or opens the DuckDB file for seasonID under dataDir,
// ensures the player_data table exists, and starts the write-behind loop.
func Open(dataDir, seasonID string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, apperr.Database("mkdir", err)
	}
	backupDir := filepath.Join(dataDir, "backups")
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, apperr.Database("mkdir_backups", err)
	}

	path := filepath.Join(dataDir, seasonID+".db")
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, apperr.Database("open", err)
	}
	db.SetConnMaxIdleTime(idleConnTimeout)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS player_data (
		player_name TEXT PRIMARY KEY,
		data TEXT,
		rank INTEGER,
		score BIGINT,
		updated_at TIMESTAMP
	)`); err != nil {
		db.Close()
		return nil, apperr.Database("create_table", err)
	}

	s := &Store{
		seasonID:  seasonID,
		path:      path,
		backupDir: backupDir,
		db:        db,
		ingest:    make(chan PlayerRow, bufferPressureLimit),
		flushReq:  make(chan chan error),
		stopCh:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run()

	return s, nil
}

// RowCount reports how many rows the season table currently holds, used by
// the season pipeline to decide whether a historical season still needs its
// one-time bulk load.
func (s *Store) RowCount(ctx context.Context) (int, error) {
	if err := s.Flush(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM player_data").Scan(&n); err != nil {
		return 0, apperr.Database("count", err)
	}
	return n, nil
}

// Put enqueues a single-row write into the write-behind buffer. It returns
// once the row has been accepted by the buffer, not once it is durable;
// call Flush for a durability guarantee.
func (s *Store) Put(ctx context.Context, row PlayerRow) error {
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now()
	}
	select {
	case s.ingest <- row:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		return apperr.Internal("sqlstore closed", nil)
	}
}

// Flush blocks until every buffered write has been committed.
func (s *Store) Flush(ctx context.Context) error {
	respCh := make(chan error, 1)
	select {
	case s.flushReq <- respCh:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		return nil
	}
	select {
	case err := <-respCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BulkInsert writes rows transactionally in one shot, flushing any pending
// buffered writes first. Used for a historical season's one-time load.
func (s *Store) BulkInsert(ctx context.Context, rows []PlayerRow) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}
	return s.Do(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO player_data
			(player_name, data, rank, score, updated_at) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now()
		for _, r := range rows {
			if r.UpdatedAt.IsZero() {
				r.UpdatedAt = now
			}
			if _, err := stmt.ExecContext(ctx, strings.ToLower(r.Name), r.Data, r.Rank, r.Score, r.UpdatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// Do runs fn inside a transaction, committing on success and rolling back
// on error or panic, mirroring the teacher's GormUnitOfWork.Do(ctx, fn).
func (s *Store) Do(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Database("begin_tx", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return apperr.Database("rollback", fmt.Errorf("original error: %w, rollback error: %v", err, rbErr))
		}
		return apperr.Database("transaction", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Database("commit", err)
	}
	return nil
}

// GetPlayer reads a player by exact name, and when useFuzzy is true and the
// exact lookup misses, falls back to a LIKE %q% substring match. A read
// always flushes the pending write buffer first, guaranteeing
// read-your-writes within the process.
func (s *Store) GetPlayer(ctx context.Context, name string, useFuzzy bool) (*PlayerRow, bool, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, false, err
	}

	lower := strings.ToLower(name)
	row, found, err := s.queryOne(ctx, "SELECT player_name, data, rank, score, updated_at FROM player_data WHERE player_name = ?", lower)
	if err != nil {
		return nil, false, err
	}
	if found {
		return row, true, nil
	}
	if !useFuzzy {
		return nil, false, nil
	}

	pattern := "%" + lower + "%"
	return s.queryOne(ctx, "SELECT player_name, data, rank, score, updated_at FROM player_data WHERE player_name LIKE ?", pattern)
}

func (s *Store) queryOne(ctx context.Context, query string, arg interface{}) (*PlayerRow, bool, error) {
	var row PlayerRow
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&row.Name, &row.Data, &row.Rank, &row.Score, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Database("query", err)
	}
	return &row, true, nil
}

func (s *Store) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var buffer []PlayerRow

	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		rows := buffer
		buffer = nil
		return s.commitBuffered(rows)
	}

	for {
		select {
		case row := <-s.ingest:
			buffer = append(buffer, row)
			if len(buffer) >= bufferPressureLimit {
				if err := flush(); err != nil {
					logging.ForComponent("sqlstore").Error().Err(err).Str("season", s.seasonID).Msg("buffer-pressure flush failed")
				}
			}
		case respCh := <-s.flushReq:
			respCh <- flush()
		case <-ticker.C:
			if err := flush(); err != nil {
				logging.ForComponent("sqlstore").Error().Err(err).Str("season", s.seasonID).Msg("periodic flush failed")
			}
		case <-s.stopCh:
			_ = flush()
			return
		}
	}
}

func (s *Store) commitBuffered(rows []PlayerRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return apperr.Database("begin_tx", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO player_data
		(player_name, data, rank, score, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return apperr.Database("prepare", err)
	}
	for _, r := range rows {
		if _, err := stmt.Exec(strings.ToLower(r.Name), r.Data, r.Rank, r.Score, r.UpdatedAt); err != nil {
			stmt.Close()
			tx.Rollback()
			return apperr.Database("exec", err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return apperr.Database("commit", err)
	}
	return nil
}

// Backup snapshots the store to the sibling backups/ directory via
// VACUUM INTO, falling back to a plain file copy if the DuckDB build in
// use does not support it.
func (s *Store) Backup() error {
	stamp := time.Now().Format("20060102_150405")
	dest := filepath.Join(s.backupDir, fmt.Sprintf("%s_%s.db", s.seasonID, stamp))

	if _, err := s.db.Exec(fmt.Sprintf("VACUUM INTO '%s'", dest)); err == nil {
		return nil
	}

	return copyFile(s.path, dest)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return apperr.Database("backup_read", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return apperr.Database("backup_write", err)
	}
	return nil
}

// Close flushes pending writes, snapshots a shutdown backup, and closes
// the underlying connection.
func (s *Store) Close() error {
	close(s.stopCh)
	s.wg.Wait()

	if err := s.Backup(); err != nil {
		logging.ForComponent("sqlstore").Warn().Err(err).Str("season", s.seasonID).Msg("shutdown backup failed")
	}

	return s.db.Close()
}
