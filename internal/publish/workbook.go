package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rewired-gh/fleaprice/internal/models"
)

const (
	pricesSheet = "Prices"
	infoSheet   = "Info"
	titleLayout = "2006-01-02 15:04:05"
)

// Workbook publishes every run as an XLSX file, replacing the previous one.
type Workbook struct {
	path     string
	interval time.Duration
}

// NewWorkbook writes to path, adding the .xlsx extension if missing. interval is the
// expected time to the next run and only feeds the title line.
func NewWorkbook(path string, interval time.Duration) *Workbook {
	if !strings.EqualFold(filepath.Ext(path), ".xlsx") {
		path += ".xlsx"
	}
	return &Workbook{path: path, interval: interval}
}

func (w *Workbook) Name() string { return "xlsx" }

func (w *Workbook) Path() string { return w.path }

// Title is the status line shown on the Info sheet.
func Title(updated time.Time, interval time.Duration) string {
	updated = updated.UTC()
	return fmt.Sprintf("Last updated: %s UTC.  Next update approx. %s UTC.",
		updated.Format(titleLayout), updated.Add(interval).Format(titleLayout))
}

func (w *Workbook) Publish(_ context.Context, report *models.RunReport) error {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := f.SetSheetName("Sheet1", pricesSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetSheetRow(pricesSheet, "A1", &[]interface{}{"ID", "Average", "Latest", "Base price"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, r := range Rows(report) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{r.ID, cellValue(r.Average), cellValue(r.Latest), cellValue(r.Base)}
		if err := f.SetSheetRow(pricesSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", r.ID, err)
		}
	}
	if err := f.SetColWidth(pricesSheet, "A", "A", 28); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}

	if _, err := f.NewSheet(infoSheet); err != nil {
		return fmt.Errorf("failed to add info sheet: %w", err)
	}
	updated := report.FinishedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	info := [][]interface{}{
		{Title(updated, w.interval)},
		{"Run", report.RunID},
		{"Slot", report.Slot},
		{"Priced", report.Priced},
		{"Skipped", report.Skipped},
		{"Failed", len(report.Failed)},
	}
	for i, row := range info {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(infoSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write info: %w", err)
		}
	}

	return w.save(f)
}

// save writes through a temp file so readers never see a partial workbook.
func (w *Workbook) save(f *excelize.File) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp := filepath.Join(dir, ".tmp-"+filepath.Base(w.path))
	if err := f.SaveAs(tmp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace workbook: %w", err)
	}
	return nil
}

func cellValue(v *int64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
