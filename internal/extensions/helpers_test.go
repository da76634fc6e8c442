package extensions

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vscmirror/internal/models"
)

const testURLRoot = "http://mirror.local"

var testTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testVersion(version, target string, updated time.Time, prerelease bool) models.VersionRecord {
	v := models.VersionRecord{
		Version:        version,
		TargetPlatform: target,
		LastUpdated:    updated,
		Files: []models.AssetFile{
			{AssetType: "Microsoft.VisualStudio.Code.Manifest", Source: "https://upstream/manifest"},
			{AssetType: "Microsoft.VisualStudio.Services.VSIXPackage", Source: "https://upstream/vsix"},
		},
		AssetURI:         "https://upstream/asset",
		FallbackAssetURI: "https://upstream/fallback",
	}
	if prerelease {
		v.Properties = []models.Property{{Key: models.PreReleaseProperty, Value: "true"}}
	}
	return v
}

func testRecord(identity, display string, installs float64, recommended bool) *models.ExtensionRecord {
	publisher, name, _ := strings.Cut(identity, ".")
	return &models.ExtensionRecord{
		Identity:         identity,
		ExtensionID:      "id-" + identity,
		ExtensionName:    name,
		DisplayName:      display,
		ShortDescription: "The " + display + " extension",
		Publisher:        models.Publisher{PublisherName: publisher, DisplayName: publisher},
		Versions:         []models.VersionRecord{testVersion("1.0.0", "", testTime, false)},
		Statistics:       []models.Statistic{{StatisticName: models.StatInstall, Value: installs}},
		Stats:            map[string]float64{models.StatInstall: installs},
		LastUpdated:      testTime,
		PublishedDate:    testTime,
		Recommended:      recommended,
	}
}

func writeExtension(t *testing.T, extensionsDir string, rec *models.ExtensionRecord) {
	t.Helper()
	if err := SaveManifest(extensionsDir, rec); err != nil {
		t.Fatalf("save %s: %v", rec.Identity, err)
	}
}

func extensionsRoot(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "extensions")
}

func identities(recs []*models.ExtensionRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Identity
	}
	return out
}
