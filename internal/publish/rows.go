// Package publish writes run results to external sinks: an XLSX workbook and Redis.
package publish

import (
	"sort"

	"github.com/rewired-gh/fleaprice/internal/models"
)

// Row is one item line of a published report. Nil fields are unknown for this run.
type Row struct {
	ID      string
	Average *int64
	Latest  *int64
	Base    *int64
}

// Rows merges averages, the latest snapshot and base prices of report, sorted by item ID.
// Base prices are only listed for items that also have an average or a latest price.
func Rows(report *models.RunReport) []Row {
	byID := make(map[string]*Row)
	get := func(id string) *Row {
		r, ok := byID[id]
		if !ok {
			r = &Row{ID: id}
			byID[id] = r
		}
		return r
	}
	for id, v := range report.Averages {
		v := v
		get(id).Average = &v
	}
	for id, v := range report.Snapshot.Prices {
		v := v
		get(id).Latest = &v
	}
	for id, v := range report.BasePrices {
		v := v
		if r, ok := byID[id]; ok {
			r.Base = &v
		}
	}

	rows := make([]Row, 0, len(byID))
	for _, r := range byID {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows
}
