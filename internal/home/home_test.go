package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew_DefaultPath(t *testing.T) {
	d, err := New("")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	userHome, _ := os.UserHomeDir()
	want := filepath.Join(userHome, DefaultDirName)
	if d.Path() != want {
		t.Errorf("Path() = %q, want %q", d.Path(), want)
	}
}

func TestEnsureExists(t *testing.T) {
	root := filepath.Join(t.TempDir(), "pt")
	d, err := New(root)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if d.Exists() {
		t.Fatal("Exists() = true before EnsureExists")
	}
	if err := d.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists() error = %v", err)
	}
	for _, dir := range []string{d.DataPath(), d.ExportsDir()} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("expected directory %s to exist: %v", dir, err)
		}
	}
	if got := d.TrackingDBPath(); filepath.Dir(got) != d.DataPath() {
		t.Errorf("TrackingDBPath() = %q, not under data dir", got)
	}
}
