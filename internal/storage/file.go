package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/rewired-gh/fleaprice/internal/history"
	"github.com/rewired-gh/fleaprice/internal/logger"
	"github.com/rewired-gh/fleaprice/internal/models"
)

const indexFileName = "index.json"

var snapshotFileRe = regexp.MustCompile(`^averages_(\d+)\.json$`)

// FileStore keeps one JSON file per period slot:
//
//	<dir>/averages_<slot>.json   {"<item>": price, ...}
//	<dir>/index.json             {"index": n}
//	<averagesPath>               {"<item>": price, ...}
type FileStore struct {
	dir          string
	averagesPath string
	ring         history.Ring
	mu           sync.RWMutex
}

type indexRecord struct {
	Index int `json:"index"`
}

// NewFileStore creates dir if needed. An empty averagesPath puts averages.json next to dir.
func NewFileStore(dir, averagesPath string, periods int) (*FileStore, error) {
	if dir == "" {
		dir = "./price_history"
	}
	if averagesPath == "" {
		averagesPath = filepath.Join(filepath.Dir(filepath.Clean(dir)), "averages.json")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &FileStore{
		dir:          dir,
		averagesPath: averagesPath,
		ring:         history.NewRing(periods),
	}, nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) snapshotPath(slot int) string {
	return filepath.Join(s.dir, fmt.Sprintf("averages_%d.json", slot))
}

func (s *FileStore) WriteSnapshot(_ context.Context, snap models.PeriodSnapshot) error {
	if err := validateSnapshot(&snap, s.ring.Periods); err != nil {
		return err
	}
	prices := snap.Prices
	if prices == nil {
		prices = map[string]int64{}
	}
	data, err := json.MarshalIndent(prices, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(s.snapshotPath(snap.Slot), data); err != nil {
		return fmt.Errorf("failed to write snapshot %d: %w", snap.Slot, err)
	}
	return nil
}

func (s *FileStore) ReadSnapshot(_ context.Context, slot int) (models.PeriodSnapshot, error) {
	if !s.ring.Contains(slot) {
		return models.PeriodSnapshot{}, fmt.Errorf("%w: %d", ErrSlotNotFound, slot)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readSnapshot(slot)
}

func (s *FileStore) readSnapshot(slot int) (models.PeriodSnapshot, error) {
	path := s.snapshotPath(slot)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.PeriodSnapshot{}, fmt.Errorf("%w: %d", ErrSlotNotFound, slot)
	}
	if err != nil {
		return models.PeriodSnapshot{}, fmt.Errorf("failed to read snapshot %d: %w", slot, err)
	}

	prices := make(map[string]int64)
	if err := json.Unmarshal(data, &prices); err != nil {
		return models.PeriodSnapshot{}, fmt.Errorf("failed to decode snapshot %d: %w", slot, err)
	}

	snap := models.PeriodSnapshot{Slot: slot, Prices: prices}
	if info, err := os.Stat(path); err == nil {
		snap.TakenAt = info.ModTime()
	}
	return snap, nil
}

// ReadSnapshots returns every stored slot in slot order. The index file and anything
// not named averages_<slot>.json is ignored, as are slots outside the ring.
func (s *FileStore) ReadSnapshots(_ context.Context) ([]models.PeriodSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list history directory: %w", err)
	}

	var slots []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := snapshotFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		slot, err := strconv.Atoi(m[1])
		if err != nil || !s.ring.Contains(slot) {
			continue
		}
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	snaps := make([]models.PeriodSnapshot, 0, len(slots))
	for _, slot := range slots {
		snap, err := s.readSnapshot(slot)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func (s *FileStore) ReadIndex(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, indexFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read index: %w", err)
	}

	var rec indexRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		logger.Warn("History index unreadable (%v), resetting to slot 0", err)
		return 0, nil
	}
	if !s.ring.Contains(rec.Index) {
		logger.Warn("History index %d outside ring of %d, resetting to slot 0", rec.Index, s.ring.Periods)
		return 0, nil
	}
	return rec.Index, nil
}

func (s *FileStore) WriteIndex(_ context.Context, index int) error {
	if !s.ring.Contains(index) {
		return fmt.Errorf("index %d outside ring of %d", index, s.ring.Periods)
	}
	data, err := json.MarshalIndent(indexRecord{Index: index}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(filepath.Join(s.dir, indexFileName), data); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

func (s *FileStore) WriteAverages(_ context.Context, avg models.HistoryAverage) error {
	if avg == nil {
		avg = models.HistoryAverage{}
	}
	data, err := json.MarshalIndent(avg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal averages: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(s.averagesPath, data); err != nil {
		return fmt.Errorf("failed to write averages: %w", err)
	}
	return nil
}

// ReadAverages returns an empty map before the first run.
func (s *FileStore) ReadAverages(_ context.Context) (models.HistoryAverage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.averagesPath)
	if errors.Is(err, fs.ErrNotExist) {
		return models.HistoryAverage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read averages: %w", err)
	}
	avg := make(models.HistoryAverage)
	if err := json.Unmarshal(data, &avg); err != nil {
		return nil, fmt.Errorf("failed to decode averages: %w", err)
	}
	return avg, nil
}

// writeFileAtomic replaces path through a temp file in the same directory, so readers
// see either the old or the new content.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
