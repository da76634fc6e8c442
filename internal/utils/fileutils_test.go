package utils

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadJSONStripsBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.json")
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{"identity":"a.b"}`)...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var v struct {
		Identity string `json:"identity"`
	}
	if err := ReadJSON(path, &v); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if v.Identity != "a.b" {
		t.Fatalf("expected a.b, got %q", v.Identity)
	}
}

func TestReadJSONErrors(t *testing.T) {
	dir := t.TempDir()

	var v map[string]interface{}
	if err := ReadJSON(filepath.Join(dir, "missing.json"), &v); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}

	empty := filepath.Join(dir, "empty.json")
	os.WriteFile(empty, []byte("{}"), 0o644)
	if err := ReadJSON(empty, &v); !errors.Is(err, ErrEmptyJSON) {
		t.Fatalf("expected ErrEmptyJSON, got %v", err)
	}

	truncated := filepath.Join(dir, "truncated.json")
	os.WriteFile(truncated, []byte(`{"identity": "a.`), 0o644)
	if err := ReadJSON(truncated, &v); err == nil {
		t.Fatal("expected decode error for truncated file")
	}

	if err := ReadJSON(dir, &v); err == nil {
		t.Fatal("expected error for directory")
	}
}

func TestWriteJSONCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "latest.json")
	if err := WriteJSON(path, map[string]string{"version": "1.0.0"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Contains(data, []byte(`"version": "1.0.0"`)) {
		t.Fatalf("unexpected content %s", data)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp file left behind: %v", entries)
	}
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.zip")
	os.WriteFile(path, []byte("hello"), 0o644)

	sum, size, err := HashFileSHA256(path)
	if err != nil {
		t.Fatalf("HashFileSHA256: %v", err)
	}
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if sum != want || size != 5 {
		t.Fatalf("got %s/%d", sum, size)
	}

	ok, err := CheckFileSHA256(path, strings.ToUpper(want))
	if err != nil || !ok {
		t.Fatalf("expected case-insensitive match, ok=%v err=%v", ok, err)
	}
	ok, _ = CheckFileSHA256(path, "deadbeef")
	if ok {
		t.Fatal("expected mismatch")
	}
}

func TestFirstFile(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "vscode-b.zip"), nil, 0o644)
	os.WriteFile(filepath.Join(dir, "vscode-a.tar.gz"), nil, 0o644)
	os.Mkdir(filepath.Join(dir, "vscode-0.dir"), 0o755)

	got, err := FirstFile(filepath.Join(dir, "vscode-*"))
	if err != nil {
		t.Fatalf("FirstFile: %v", err)
	}
	if filepath.Base(got) != "vscode-a.tar.gz" {
		t.Fatalf("expected vscode-a.tar.gz, got %s", got)
	}

	got, _ = FirstFile(filepath.Join(dir, "nothing-*"))
	if got != "" {
		t.Fatalf("expected no match, got %s", got)
	}
}
