package extensions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"vscmirror/internal/models"
	"vscmirror/internal/utils"
)

var (
	// ErrNotFound means no usable latest manifest exists for an extension.
	ErrNotFound = errors.New("extension manifest not found")
	// ErrCorrupt means a manifest exists but could not be decoded.
	ErrCorrupt = errors.New("extension manifest corrupt")
)

// DecodeError reports why a manifest could not be used.
type DecodeError struct {
	Missing []string
	Err     error
}

func (e *DecodeError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("manifest missing required fields: %s", strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("manifest decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return ErrCorrupt }

// DecodeManifest parses a raw upstream manifest, fills defaults and checks
// required fields. Asset URLs are left untouched.
func DecodeManifest(data []byte) (*models.ExtensionRecord, error) {
	data = bytes.TrimSpace(utils.StripBOM(data))
	if len(data) == 0 {
		return nil, &DecodeError{Err: utils.ErrEmptyJSON}
	}

	var rec models.ExtensionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &DecodeError{Err: err}
	}

	var missing []string
	if rec.Identity == "" {
		if rec.Publisher.PublisherName != "" && rec.ExtensionName != "" {
			rec.Identity = rec.Publisher.PublisherName + "." + rec.ExtensionName
		} else {
			missing = append(missing, "identity")
		}
	}
	if len(rec.Versions) == 0 {
		missing = append(missing, "versions")
	}
	for i := range rec.Versions {
		if rec.Versions[i].Version == "" {
			missing = append(missing, fmt.Sprintf("versions[%d].version", i))
		}
		if rec.Versions[i].Files == nil {
			rec.Versions[i].Files = []models.AssetFile{}
		}
	}
	if len(missing) > 0 {
		return nil, &DecodeError{Missing: missing}
	}

	rec.Stats = flattenStatistics(rec.Statistics)
	return &rec, nil
}

func flattenStatistics(stats []models.Statistic) map[string]float64 {
	flat := map[string]float64{
		models.StatInstall:        0,
		models.StatAverageRating:  0,
		models.StatWeightedRating: 0,
	}
	for _, s := range stats {
		flat[s.StatisticName] = s.Value
	}
	return flat
}

// AssetBase is the mirror URL under which a version's assets are served.
func AssetBase(urlRoot, dirName string, v models.VersionRecord) string {
	base := strings.TrimRight(urlRoot, "/") + utils.ArtifactsURLPrefix + "/" + utils.ExtensionsDir + "/" + dirName + "/" + v.Version
	if v.TargetPlatform != "" {
		base += "/" + v.TargetPlatform
	}
	return base
}

// RewriteAssetURIs repoints every version of rec at the local mirror. The
// result depends only on dirName, version and target platform, so applying
// it again yields the same URLs.
func RewriteAssetURIs(rec *models.ExtensionRecord, urlRoot, dirName string) {
	for i := range rec.Versions {
		v := &rec.Versions[i]
		base := AssetBase(urlRoot, dirName, *v)
		v.AssetURI = base
		v.FallbackAssetURI = base
		for j := range v.Files {
			v.Files[j].Source = base + "/" + v.Files[j].AssetType
		}
	}
}

// ManifestStore reads extension manifests out of the mirrored artifact tree.
type ManifestStore struct {
	urlRoot string
	logger  *slog.Logger
}

func NewManifestStore(urlRoot string, logger *slog.Logger) *ManifestStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ManifestStore{urlRoot: urlRoot, logger: logger}
}

// LoadLatest loads extensionDir/latest.json and merges in the first version
// of every sibling <version>/extension.json. Any failure to obtain a usable
// latest manifest is reported as ErrNotFound.
func (s *ManifestStore) LoadLatest(extensionDir string) (*models.ExtensionRecord, error) {
	latestPath := filepath.Join(extensionDir, utils.LatestManifestFile)
	latest, err := s.loadFile(latestPath, extensionDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, latestPath)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, latestPath, err)
	}
	if len(latest.Statistics) == 0 {
		s.logger.Info("statistics missing, using defaults", "identity", latest.Identity, "dir", extensionDir)
	}

	siblings, _ := filepath.Glob(filepath.Join(extensionDir, "*", utils.VersionManifestFile))
	var others []models.VersionRecord
	for _, path := range siblings {
		vers, err := s.loadFile(path, extensionDir)
		if err != nil {
			s.logger.Debug("skipping invalid version manifest", "path", path, "error", err)
			continue
		}
		others = append(others, vers.Versions[0])
	}

	latest.Versions = MergeVersions(latest.Versions, others...)
	SortVersions(latest.Versions)
	return latest, nil
}

func (s *ManifestStore) loadFile(path, extensionDir string) (*models.ExtensionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rec, err := DecodeManifest(data)
	if err != nil {
		return nil, err
	}
	RewriteAssetURIs(rec, s.urlRoot, filepath.Base(extensionDir))
	return rec, nil
}

// SaveManifest writes rec as extensionsDir/<identity>/latest.json and as
// <version>/extension.json for each distinct version.
func SaveManifest(extensionsDir string, rec *models.ExtensionRecord) error {
	dir := filepath.Join(extensionsDir, rec.Identity)
	if err := utils.WriteJSON(filepath.Join(dir, utils.LatestManifestFile), rec); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, v := range rec.Versions {
		if seen[v.Version] {
			continue
		}
		seen[v.Version] = true
		if err := utils.WriteJSON(filepath.Join(dir, v.Version, utils.VersionManifestFile), rec); err != nil {
			return err
		}
	}
	return nil
}
