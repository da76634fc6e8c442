package database

import (
	"path/filepath"
	"testing"
	"time"

	"vscmirror/internal/marketplace"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "nested", "ledger.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndGet(t *testing.T) {
	db := openTestDB(t)

	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := &ArtifactDB{
		Path:         "extensions/ms-python.python/2024.1.0/Microsoft.VisualStudio.Services.VSIXPackage",
		Kind:         KindAsset,
		Identity:     "ms-python.python",
		Version:      "2024.1.0",
		SHA256:       "abc",
		Size:         42,
		DownloadedAt: when,
	}
	if err := db.Record(a); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := db.Get(a.Path)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected a row")
	}
	if got.Identity != a.Identity || got.Size != 42 || got.Kind != KindAsset {
		t.Fatalf("unexpected row %+v", got)
	}
	if !got.DownloadedAt.Equal(when) {
		t.Fatalf("unexpected time %v", got.DownloadedAt)
	}

	a.Size = 43
	if err := db.Record(a); err != nil {
		t.Fatalf("Record again: %v", err)
	}
	got, _ = db.Get(a.Path)
	if got.Size != 43 {
		t.Fatalf("expected replaced row, got size %d", got.Size)
	}

	missing, err := db.Get("nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil,nil for missing row, got %v, %v", missing, err)
	}
}

func TestRecordRejectsEmptyPath(t *testing.T) {
	db := openTestDB(t)
	if err := db.Record(&ArtifactDB{Kind: KindAsset}); err == nil {
		t.Fatal("expected error")
	}
}

func TestListDeleteAndStats(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []ArtifactDB{
		{Path: "extensions/a.b/1/vsix", Kind: KindAsset, Identity: "a.b", Size: 10, DownloadedAt: base},
		{Path: "extensions/a.b/2/vsix", Kind: KindAsset, Identity: "a.b", Size: 20, DownloadedAt: base.Add(time.Hour)},
		{Path: "extensions/c.d/1/vsix", Kind: KindAsset, Identity: "c.d", Size: 5, DownloadedAt: base},
		{Path: "installers/win32/stable/vscode-x.exe", Kind: KindInstaller, Identity: "win32", Size: 100, DownloadedAt: base.Add(2 * time.Hour)},
	}
	for i := range rows {
		if err := db.Record(&rows[i]); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	list, err := db.ListByIdentity("a.b")
	if err != nil {
		t.Fatalf("ListByIdentity: %v", err)
	}
	if len(list) != 2 || list[0].Path != "extensions/a.b/2/vsix" {
		t.Fatalf("unexpected list %+v", list)
	}

	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected two kinds, got %+v", stats)
	}
	if stats[0].Kind != KindAsset || stats[0].Count != 3 || stats[0].Bytes != 35 || stats[0].Identities != 2 {
		t.Fatalf("unexpected asset stats %+v", stats[0])
	}
	if stats[1].Kind != KindInstaller || stats[1].Bytes != 100 {
		t.Fatalf("unexpected installer stats %+v", stats[1])
	}

	last, err := db.LastDownload()
	if err != nil {
		t.Fatalf("LastDownload: %v", err)
	}
	if !last.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("unexpected last download %v", last)
	}

	n, err := db.DeleteByIdentity("a.b")
	if err != nil || n != 2 {
		t.Fatalf("DeleteByIdentity: %d, %v", n, err)
	}
	list, _ = db.ListByIdentity("a.b")
	if len(list) != 0 {
		t.Fatalf("expected no rows, got %d", len(list))
	}
}

func TestLastDownloadEmpty(t *testing.T) {
	db := openTestDB(t)
	last, err := db.LastDownload()
	if err != nil {
		t.Fatalf("LastDownload: %v", err)
	}
	if !last.IsZero() {
		t.Fatalf("expected zero time, got %v", last)
	}
}

func TestFromDownload(t *testing.T) {
	root := t.TempDir()
	res := &marketplace.DownloadResult{
		FilePath: filepath.Join(root, "installers", "win32", "stable", "vscode-x.exe"),
		Size:     7,
		SHA256:   "ff",
	}
	a, err := FromDownload(root, KindInstaller, "win32", "1.2.3", res)
	if err != nil {
		t.Fatalf("FromDownload: %v", err)
	}
	if a.Path != "installers/win32/stable/vscode-x.exe" || a.Size != 7 || a.Version != "1.2.3" {
		t.Fatalf("unexpected row %+v", a)
	}

	outside := &marketplace.DownloadResult{FilePath: filepath.Join(filepath.Dir(root), "elsewhere")}
	if _, err := FromDownload(root, KindAsset, "x", "", outside); err == nil {
		t.Fatal("expected error for a file outside the root")
	}
	if _, err := FromDownload(root, KindAsset, "x", "", nil); err == nil {
		t.Fatal("expected error for nil result")
	}
}
