package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/fleaprice/internal/history"
	"github.com/rewired-gh/fleaprice/internal/logger"
	"github.com/rewired-gh/fleaprice/internal/models"
)

// SQLStore keeps the ring in SQLite or Postgres.
type SQLStore struct {
	db   *sqlx.DB
	ring history.Ring
}

type periodRow struct {
	Slot    int    `db:"slot"`
	RunID   string `db:"run_id"`
	TakenAt int64  `db:"taken_at"`
}

type priceRow struct {
	Slot   int    `db:"slot"`
	ItemID string `db:"item_id"`
	Price  int64  `db:"price"`
}

// NewSQLStore opens driver ("sqlite" or "postgres") at dsn.
// An empty sqlite dsn defaults to $TMPDIR/fleaprice/history.db.
func NewSQLStore(driver, dsn string, periods int) (*SQLStore, error) {
	if driver == BackendSQLite {
		if dsn == "" {
			dsn = filepath.Join(os.TempDir(), "fleaprice", "history.db")
		}
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == BackendSQLite {
		db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == BackendSQLite {
		if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set WAL mode: %w", err)
		}
		if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	s := &SQLStore{db: db, ring: history.NewRing(periods)}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS periods (
			slot     INTEGER PRIMARY KEY,
			run_id   TEXT NOT NULL,
			taken_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS period_prices (
			slot    INTEGER NOT NULL REFERENCES periods(slot) ON DELETE CASCADE,
			item_id TEXT NOT NULL,
			price   BIGINT NOT NULL,
			PRIMARY KEY (slot, item_id)
		)`,
		`CREATE TABLE IF NOT EXISTS history_index (
			id    INTEGER PRIMARY KEY,
			value INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS history_averages (
			item_id    TEXT PRIMARY KEY,
			price      BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// WriteSnapshot replaces the slot's period and prices in one transaction.
func (s *SQLStore) WriteSnapshot(ctx context.Context, snap models.PeriodSnapshot) error {
	if err := validateSnapshot(&snap, s.ring.Periods); err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM period_prices WHERE slot = ?`), snap.Slot); err != nil {
		return fmt.Errorf("failed to clear slot prices: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM periods WHERE slot = ?`), snap.Slot); err != nil {
		return fmt.Errorf("failed to clear slot: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO periods (slot, run_id, taken_at) VALUES (?,?,?)`),
		snap.Slot, snap.RunID, takenAtOrNow(snap.TakenAt).UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to insert period: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`INSERT INTO period_prices (slot, item_id, price) VALUES (?,?,?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare price insert: %w", err)
	}
	defer stmt.Close()
	for id, price := range snap.Prices {
		if _, err := stmt.ExecContext(ctx, snap.Slot, id, price); err != nil {
			return fmt.Errorf("failed to insert price for %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (s *SQLStore) ReadSnapshot(ctx context.Context, slot int) (models.PeriodSnapshot, error) {
	if !s.ring.Contains(slot) {
		return models.PeriodSnapshot{}, fmt.Errorf("%w: %d", ErrSlotNotFound, slot)
	}

	var p periodRow
	err := s.db.GetContext(ctx, &p, s.db.Rebind(`SELECT slot, run_id, taken_at FROM periods WHERE slot = ?`), slot)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PeriodSnapshot{}, fmt.Errorf("%w: %d", ErrSlotNotFound, slot)
	}
	if err != nil {
		return models.PeriodSnapshot{}, fmt.Errorf("failed to get period: %w", err)
	}

	var rows []priceRow
	if err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(`SELECT slot, item_id, price FROM period_prices WHERE slot = ?`), slot); err != nil {
		return models.PeriodSnapshot{}, fmt.Errorf("failed to query prices: %w", err)
	}

	snap := p.snapshot()
	for _, r := range rows {
		snap.Prices[r.ItemID] = r.Price
	}
	return snap, nil
}

func (s *SQLStore) ReadSnapshots(ctx context.Context) ([]models.PeriodSnapshot, error) {
	var periods []periodRow
	if err := s.db.SelectContext(ctx, &periods,
		`SELECT slot, run_id, taken_at FROM periods ORDER BY slot`); err != nil {
		return nil, fmt.Errorf("failed to query periods: %w", err)
	}
	var rows []priceRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT slot, item_id, price FROM period_prices`); err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}

	bySlot := make(map[int]*models.PeriodSnapshot, len(periods))
	snaps := make([]models.PeriodSnapshot, 0, len(periods))
	for _, p := range periods {
		if !s.ring.Contains(p.Slot) {
			continue
		}
		snaps = append(snaps, p.snapshot())
	}
	for i := range snaps {
		bySlot[snaps[i].Slot] = &snaps[i]
	}
	for _, r := range rows {
		if snap, ok := bySlot[r.Slot]; ok {
			snap.Prices[r.ItemID] = r.Price
		}
	}
	return snaps, nil
}

func (s *SQLStore) ReadIndex(ctx context.Context) (int, error) {
	var value int
	err := s.db.GetContext(ctx, &value, `SELECT value FROM history_index WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read index: %w", err)
	}
	if !s.ring.Contains(value) {
		logger.Warn("History index %d outside ring of %d, resetting to slot 0", value, s.ring.Periods)
		return 0, nil
	}
	return value, nil
}

func (s *SQLStore) WriteIndex(ctx context.Context, index int) error {
	if !s.ring.Contains(index) {
		return fmt.Errorf("index %d outside ring of %d", index, s.ring.Periods)
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO history_index (id, value) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET value = excluded.value`), index)
	if err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

// WriteAverages replaces the whole averages table.
func (s *SQLStore) WriteAverages(ctx context.Context, avg models.HistoryAverage) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM history_averages`); err != nil {
		return fmt.Errorf("failed to clear averages: %w", err)
	}
	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`INSERT INTO history_averages (item_id, price, updated_at) VALUES (?,?,?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare average insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	for id, price := range avg {
		if _, err := stmt.ExecContext(ctx, id, price, now); err != nil {
			return fmt.Errorf("failed to insert average for %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) ReadAverages(ctx context.Context) (models.HistoryAverage, error) {
	var rows []struct {
		ItemID string `db:"item_id"`
		Price  int64  `db:"price"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT item_id, price FROM history_averages`); err != nil {
		return nil, fmt.Errorf("failed to query averages: %w", err)
	}
	avg := make(models.HistoryAverage, len(rows))
	for _, r := range rows {
		avg[r.ItemID] = r.Price
	}
	return avg, nil
}

func (p periodRow) snapshot() models.PeriodSnapshot {
	return models.PeriodSnapshot{
		Slot:    p.Slot,
		RunID:   p.RunID,
		TakenAt: time.Unix(0, p.TakenAt),
		Prices:  make(map[string]int64),
	}
}
