package extensions

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"vscmirror/internal/models"
	"vscmirror/internal/utils"
)

func TestDecodeManifestDefaults(t *testing.T) {
	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{
		"identity": "acme.tool",
		"versions": [{"version": "1.2.3", "lastUpdated": "2024-05-01T12:00:00Z"}]
	}`)...)

	rec, err := DecodeManifest(raw)
	if err != nil {
		t.Fatalf("DecodeManifest: %v", err)
	}
	if rec.Versions[0].Files == nil {
		t.Fatal("expected files to default to an empty list")
	}
	for _, name := range []string{models.StatInstall, models.StatAverageRating, models.StatWeightedRating} {
		if v, ok := rec.Stats[name]; !ok || v != 0 {
			t.Fatalf("expected %s defaulted to 0, got %v (present=%v)", name, v, ok)
		}
	}
}

func TestDecodeManifestDerivesIdentity(t *testing.T) {
	rec, err := DecodeManifest([]byte(`{
		"extensionName": "tool",
		"publisher": {"publisherName": "acme"},
		"versions": [{"version": "1.0.0"}],
		"statistics": [{"statisticName": "install", "value": 42}]
	}`))
	if err != nil {
		t.Fatalf("DecodeManifest: %v", err)
	}
	if rec.Identity != "acme.tool" {
		t.Fatalf("expected derived identity, got %q", rec.Identity)
	}
	if rec.Stat(models.StatInstall) != 42 {
		t.Fatalf("expected 42 installs, got %v", rec.Stat(models.StatInstall))
	}
}

func TestDecodeManifestRejects(t *testing.T) {
	cases := map[string]string{
		"empty":     ``,
		"null":      `null`,
		"truncated": `{"identity": "acme.`,
		"missing":   `{"versions": []}`,
		"noVersion": `{"identity": "acme.tool", "versions": [{"version": ""}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeManifest([]byte(raw))
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("expected ErrCorrupt, got %v", err)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected *DecodeError, got %T", err)
			}
		})
	}

	_, err := DecodeManifest([]byte(`{"versions": []}`))
	var de *DecodeError
	errors.As(err, &de)
	if !reflect.DeepEqual(de.Missing, []string{"identity", "versions"}) {
		t.Fatalf("unexpected missing fields %v", de.Missing)
	}
}

func TestLoadLatestNotFound(t *testing.T) {
	store := NewManifestStore(testURLRoot, quietLogger())
	dir := filepath.Join(t.TempDir(), "acme.tool")
	os.MkdirAll(dir, 0o755)

	if _, err := store.LoadLatest(dir); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing latest.json, got %v", err)
	}

	os.WriteFile(filepath.Join(dir, utils.LatestManifestFile), []byte(`{"identity": "acme.`), 0o644)
	_, err := store.LoadLatest(dir)
	if !errors.Is(err, ErrNotFound) || !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrNotFound wrapping ErrCorrupt, got %v", err)
	}
}

func TestLoadLatestMergesSiblingVersions(t *testing.T) {
	root := extensionsRoot(t)
	old := testRecord("acme.tool", "Tool", 10, false)
	old.Versions = []models.VersionRecord{testVersion("1.0.0", "", testTime.AddDate(0, -1, 0), false)}
	writeExtension(t, root, old)

	latest := testRecord("acme.tool", "Tool", 10, false)
	latest.Versions = []models.VersionRecord{testVersion("2.0.0", "", testTime, false)}
	writeExtension(t, root, latest)

	os.MkdirAll(filepath.Join(root, "acme.tool", "0.9.0"), 0o755)
	os.WriteFile(filepath.Join(root, "acme.tool", "0.9.0", utils.VersionManifestFile), []byte("{"), 0o644)

	rec, err := NewManifestStore(testURLRoot, quietLogger()).LoadLatest(filepath.Join(root, "acme.tool"))
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	var got []string
	for _, v := range rec.Versions {
		got = append(got, v.Version)
	}
	if !reflect.DeepEqual(got, []string{"2.0.0", "1.0.0"}) {
		t.Fatalf("unexpected versions %v", got)
	}

	want := testURLRoot + "/artifacts/extensions/acme.tool/1.0.0"
	v := rec.Versions[1]
	if v.AssetURI != want || v.FallbackAssetURI != want {
		t.Fatalf("asset uri not rewritten: %s / %s", v.AssetURI, v.FallbackAssetURI)
	}
	if v.Files[1].Source != want+"/Microsoft.VisualStudio.Services.VSIXPackage" {
		t.Fatalf("file source not rewritten: %s", v.Files[1].Source)
	}
}

func TestRewriteAssetURIsIdempotent(t *testing.T) {
	rec := testRecord("acme.tool", "Tool", 0, false)
	rec.Versions = append(rec.Versions, testVersion("1.0.0", "linux-x64", testTime, false))

	RewriteAssetURIs(rec, testURLRoot, "acme.tool")
	once := rec.Clone()
	RewriteAssetURIs(rec, testURLRoot, "acme.tool")

	if !reflect.DeepEqual(once.Versions, rec.Versions) {
		t.Fatal("second rewrite changed the record")
	}
	if got := rec.Versions[1].AssetURI; got != testURLRoot+"/artifacts/extensions/acme.tool/1.0.0/linux-x64" {
		t.Fatalf("unexpected platform asset uri %s", got)
	}
}

func TestSaveManifestLayout(t *testing.T) {
	root := extensionsRoot(t)
	rec := testRecord("acme.tool", "Tool", 0, false)
	rec.Versions = []models.VersionRecord{
		testVersion("1.0.0", "win32-x64", testTime, false),
		testVersion("1.0.0", "linux-x64", testTime, false),
	}
	writeExtension(t, root, rec)

	for _, p := range []string{
		filepath.Join(root, "acme.tool", utils.LatestManifestFile),
		filepath.Join(root, "acme.tool", "1.0.0", utils.VersionManifestFile),
	} {
		if !utils.FileExists(p) {
			t.Fatalf("expected %s", p)
		}
	}

	loaded, err := NewManifestStore(testURLRoot, quietLogger()).LoadLatest(filepath.Join(root, "acme.tool"))
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if len(loaded.Versions) != 2 {
		t.Fatalf("expected both platform builds, got %d", len(loaded.Versions))
	}
}
