package updates

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"vscmirror/internal/models"
	"vscmirror/internal/utils"
)

var (
	Platforms     = []string{"win32", "linux", "linux-deb", "linux-rpm", "darwin", "linux-snap", "server-linux"}
	Architectures = []string{"", "x64"}
	BuildTypes    = []string{"", "archive", "user"}
	Qualities     = []string{"stable", "insider"}
)

const (
	QualityStable  = "stable"
	QualityInsider = "insider"
)

// ErrInvalidDefinition is returned for a platform, architecture, build type
// or quality outside the supported sets.
var ErrInvalidDefinition = errors.New("invalid update definition")

// NewDefinition validates the four coordinates of an installer build and
// derives its identity.
func NewDefinition(platform, architecture, buildType, quality string) (*models.UpdateDefinition, error) {
	if !slices.Contains(Platforms, platform) {
		return nil, fmt.Errorf("%w: platform %q", ErrInvalidDefinition, platform)
	}
	if !slices.Contains(Architectures, architecture) {
		return nil, fmt.Errorf("%w: architecture %q", ErrInvalidDefinition, architecture)
	}
	if !slices.Contains(BuildTypes, buildType) {
		return nil, fmt.Errorf("%w: buildtype %q", ErrInvalidDefinition, buildType)
	}
	if !slices.Contains(Qualities, quality) {
		return nil, fmt.Errorf("%w: quality %q", ErrInvalidDefinition, quality)
	}

	identity := platform
	if architecture != "" {
		identity += "-" + architecture
	}
	if buildType != "" {
		identity += "-" + buildType
	}
	return &models.UpdateDefinition{
		Identity:     identity,
		Platform:     platform,
		Architecture: architecture,
		BuildType:    buildType,
		Quality:      quality,
	}, nil
}

// Candidates lists the builds worth asking the update service about. darwin
// is only published bare, linux flavours only as plain x64, and win32 in
// every combination.
func Candidates(insider bool) []*models.UpdateDefinition {
	var out []*models.UpdateDefinition
	for _, platform := range Platforms {
		for _, arch := range Architectures {
			for _, buildType := range BuildTypes {
				for _, quality := range Qualities {
					if quality == QualityInsider && !insider {
						continue
					}
					if platform == "darwin" && (arch != "" || buildType != "") {
						continue
					}
					if strings.Contains(platform, "linux") && (arch == "" || buildType != "") {
						continue
					}
					def, err := NewDefinition(platform, arch, buildType, quality)
					if err != nil {
						continue
					}
					out = append(out, def)
				}
			}
		}
	}
	return out
}

// Dir is where the installer and descriptors of def live.
func Dir(installersDir string, def *models.UpdateDefinition) string {
	return filepath.Join(installersDir, def.Identity, def.Quality)
}

// PayloadName is the local file name of the installer for def, keeping the
// download URL's extension (.tar.gz stays whole).
func PayloadName(def *models.UpdateDefinition) string {
	base := path.Base(strings.SplitN(def.URL, "?", 2)[0])
	ext := path.Ext(base)
	if ext == ".gz" || ext == ".bz2" || ext == ".xz" {
		trimmed := strings.TrimSuffix(base, ext)
		if inner := path.Ext(trimmed); inner != "" {
			ext = inner + ext
		}
	}
	return utils.InstallerFilePrefix + def.Name + ext
}

// SaveState persists def as latest.json and <version>.json.
func SaveState(installersDir string, def *models.UpdateDefinition) error {
	dir := Dir(installersDir, def)
	if err := utils.WriteJSON(filepath.Join(dir, utils.LatestManifestFile), def); err != nil {
		return err
	}
	if def.Version == "" {
		return nil
	}
	return utils.WriteJSON(filepath.Join(dir, def.Version+".json"), def)
}

// LoadState reads a stored descriptor, latest.json when version is empty.
func LoadState(installersDir, identity, quality, version string) (*models.UpdateDefinition, error) {
	name := utils.LatestManifestFile
	if version != "" {
		name = version + ".json"
	}
	var def models.UpdateDefinition
	if err := utils.ReadJSON(filepath.Join(installersDir, identity, quality, name), &def); err != nil {
		return nil, err
	}
	return &def, nil
}
