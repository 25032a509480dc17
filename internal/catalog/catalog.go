// Package catalog loads the list of items to price.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rewired-gh/fleaprice/internal/logger"
	"github.com/rewired-gh/fleaprice/internal/models"
)

// FileCatalog reads item IDs from a JSON file of the form {"ids": ["...", ...]}.
// The file is re-read on every call so edits apply on the next run.
type FileCatalog struct {
	Path string
}

type catalogFile struct {
	IDs []string `json:"ids"`
}

func NewFileCatalog(path string) *FileCatalog {
	return &FileCatalog{Path: path}
}

// Items returns the catalog in file order. Blank IDs are dropped and repeated IDs
// keep their first position.
func (c *FileCatalog) Items(_ context.Context) ([]models.Item, error) {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var f catalogFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode catalog %s: %w", c.Path, err)
	}

	seen := make(map[string]bool, len(f.IDs))
	items := make([]models.Item, 0, len(f.IDs))
	for _, raw := range f.IDs {
		id := strings.TrimSpace(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		items = append(items, models.Item{ID: id})
	}
	if dropped := len(f.IDs) - len(items); dropped > 0 {
		logger.Debug("Catalog %s: dropped %d blank or duplicate ids", c.Path, dropped)
	}
	return items, nil
}
