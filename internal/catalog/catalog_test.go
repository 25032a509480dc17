package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rewired-gh/fleaprice/internal/models"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "item_ids.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileCatalog_Items(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
		wantErr bool
	}{
		{"plain", `{"ids": ["a", "b", "c"]}`, []string{"a", "b", "c"}, false},
		{"trims and drops blanks", `{"ids": [" a ", "", "  ", "b"]}`, []string{"a", "b"}, false},
		{"dedupes keeping first position", `{"ids": ["b", "a", "b", "c", "a"]}`, []string{"b", "a", "c"}, false},
		{"empty", `{"ids": []}`, []string{}, false},
		{"missing key", `{}`, []string{}, false},
		{"malformed", `{"ids": [`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewFileCatalog(writeCatalog(t, tt.content))
			items, err := c.Items(context.Background())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Items: %v", err)
			}
			if len(items) != len(tt.want) {
				t.Fatalf("got %d items, want %d: %v", len(items), len(tt.want), items)
			}
			for i, id := range tt.want {
				if items[i] != (models.Item{ID: id}) {
					t.Errorf("items[%d] = %v, want %s", i, items[i], id)
				}
			}
		})
	}
}

func TestFileCatalog_MissingFile(t *testing.T) {
	c := NewFileCatalog(filepath.Join(t.TempDir(), "nope.json"))
	if _, err := c.Items(context.Background()); err == nil {
		t.Error("expected error for missing catalog")
	}
}
