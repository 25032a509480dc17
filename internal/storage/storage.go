// Package storage persists period snapshots, the rotation index and history averages.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rewired-gh/fleaprice/internal/models"
)

// ErrSlotNotFound is returned when a period slot has never been written.
var ErrSlotNotFound = errors.New("period slot not found")

// Store is the period snapshot store. ReadIndex never returns an out-of-range slot:
// a missing index reads as 0 and a corrupted one is reset to 0.
type Store interface {
	WriteSnapshot(ctx context.Context, snap models.PeriodSnapshot) error
	ReadSnapshot(ctx context.Context, slot int) (models.PeriodSnapshot, error)
	ReadSnapshots(ctx context.Context) ([]models.PeriodSnapshot, error)
	ReadIndex(ctx context.Context) (int, error)
	WriteIndex(ctx context.Context, index int) error
	WriteAverages(ctx context.Context, avg models.HistoryAverage) error
	ReadAverages(ctx context.Context) (models.HistoryAverage, error)
	Close() error
}

const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Backend      string
	Dir          string
	AveragesPath string
	DSN          string
	Periods      int
}

// New opens the configured backend.
func New(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendFile:
		return NewFileStore(opts.Dir, opts.AveragesPath, opts.Periods)
	case BackendSQLite, BackendPostgres:
		return NewSQLStore(opts.Backend, opts.DSN, opts.Periods)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

func validateSnapshot(snap *models.PeriodSnapshot, periods int) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}
	if snap.Slot >= periods {
		return fmt.Errorf("invalid snapshot: slot %d outside ring of %d", snap.Slot, periods)
	}
	return nil
}

func takenAtOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
