package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindExtensionDir(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "MS-Python.python", "1.0.0"), 0o755); err != nil {
		t.Fatal(err)
	}

	dir, err := findExtensionDir(root, "ms-python.PYTHON")
	if err != nil {
		t.Fatalf("findExtensionDir: %v", err)
	}
	if want := filepath.Join(root, "MS-Python.python"); dir != want {
		t.Errorf("dir = %s, want %s", dir, want)
	}

	for _, id := range []string{"", "..", "a/b", "missing.ext"} {
		if _, err := findExtensionDir(root, id); err == nil {
			t.Errorf("findExtensionDir(%q) succeeded", id)
		}
	}
}
