package backup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestListLocal(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	older, newer := FileName(base), FileName(base.Add(time.Hour))
	for name, mod := range map[string]time.Time{older: base, newer: base.Add(time.Hour)} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("zip"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(p, mod, mod); err != nil {
			t.Fatal(err)
		}
	}
	_ = os.WriteFile(filepath.Join(dir, "notes.zip"), []byte("x"), 0o644)
	_ = os.MkdirAll(filepath.Join(dir, "nested"), 0o755)
	_ = os.WriteFile(filepath.Join(dir, "nested", FileName(base)), []byte("x"), 0o644)

	items, err := ListLocal(dir)
	if err != nil {
		t.Fatalf("ListLocal: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %+v, want 2", items)
	}
	if items[0].Name != newer || items[1].Name != older {
		t.Errorf("order = %s, %s", items[0].Name, items[1].Name)
	}
	if items[0].Size != 3 {
		t.Errorf("size = %d", items[0].Size)
	}
}

func TestListLocal_MissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "absent")
	items, err := ListLocal(dir)
	if err != nil || len(items) != 0 {
		t.Fatalf("items = %v, err = %v", items, err)
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Error("listing created the directory")
	}
}

func TestDeleteLocal(t *testing.T) {
	dir := t.TempDir()
	name := FileName(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	_ = os.WriteFile(filepath.Join(dir, name), []byte("zip"), 0o644)

	if err := DeleteLocal(dir, "../outside.zip"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("foreign name err = %v", err)
	}
	if err := DeleteLocal(dir, name); err != nil {
		t.Fatalf("DeleteLocal: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); !errors.Is(err, os.ErrNotExist) {
		t.Error("bundle still present")
	}
}
