package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/starford/chatsync/internal/storage"
)

// ListLocal returns the exported bundles in dir, newest first. A missing
// directory yields an empty list.
func ListLocal(dir string) ([]Item, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return []Item{}, nil
	}
	fs, err := storage.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("backup: list local: %w", err)
	}
	metas, err := fs.List(".", nameSuffix)
	if err != nil {
		return nil, fmt.Errorf("backup: list local: %w", err)
	}
	items := make([]Item, 0, len(metas))
	for _, m := range metas {
		// Only top-level bundles; List walks subdirectories too.
		if filepath.Dir(m.Path) != "." || !IsBackupName(m.Path) {
			continue
		}
		items = append(items, Item{Name: m.Path, Size: m.Size, LastModified: m.UpdatedAt})
	}
	SortItems(items)
	return items, nil
}

// DeleteLocal removes an exported bundle from dir.
func DeleteLocal(dir, name string) error {
	if !IsBackupName(name) {
		return fmt.Errorf("backup: delete local %q: %w", name, ErrInvalidName)
	}
	fs, err := storage.NewFS(dir)
	if err != nil {
		return fmt.Errorf("backup: delete local: %w", err)
	}
	return fs.Delete(name)
}
