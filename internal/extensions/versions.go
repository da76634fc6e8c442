package extensions

import (
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"vscmirror/internal/models"
)

// IsPrerelease reports whether a version carries the pre-release property.
func IsPrerelease(v models.VersionRecord) bool {
	val, ok := v.Property(models.PreReleaseProperty)
	return ok && val == "true"
}

// IsRecordPrerelease reports whether the newest version of rec is a
// pre-release.
func IsRecordPrerelease(rec *models.ExtensionRecord) bool {
	return len(rec.Versions) > 0 && IsPrerelease(rec.Versions[0])
}

// LatestReleaseVersions returns every non-pre-release version sharing the
// newest lastUpdated timestamp. Several entries come back when a release
// ships one build per target platform. When rec has no release versions at
// all its versions are returned unchanged.
func LatestReleaseVersions(rec *models.ExtensionRecord) []models.VersionRecord {
	var releases []models.VersionRecord
	for _, v := range rec.Versions {
		if !IsPrerelease(v) {
			releases = append(releases, v)
		}
	}
	if len(releases) == 0 {
		return rec.Versions
	}

	newest := releases[0].LastUpdated
	for _, v := range releases[1:] {
		if v.LastUpdated.After(newest) {
			newest = v.LastUpdated
		}
	}

	latest := make([]models.VersionRecord, 0, len(releases))
	for _, v := range releases {
		if v.LastUpdated.Equal(newest) {
			latest = append(latest, v)
		}
	}
	return latest
}

type versionKey struct {
	version string
	target  string
}

func keyOf(v models.VersionRecord) versionKey {
	return versionKey{version: v.Version, target: v.TargetPlatform}
}

// MergeVersions appends extra to base, skipping any (version, targetPlatform)
// pair already present. Earlier entries win.
func MergeVersions(base []models.VersionRecord, extra ...models.VersionRecord) []models.VersionRecord {
	seen := make(map[versionKey]bool, len(base)+len(extra))
	merged := make([]models.VersionRecord, 0, len(base)+len(extra))
	for _, v := range append(append([]models.VersionRecord(nil), base...), extra...) {
		k := keyOf(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		merged = append(merged, v)
	}
	return merged
}

// SortVersions orders versions newest first. Versions that do not parse as
// semver fall back to a plain string comparison. Equal versions keep their
// relative order.
func SortVersions(vs []models.VersionRecord) {
	sort.SliceStable(vs, func(i, j int) bool {
		return CompareVersions(vs[i].Version, vs[j].Version) > 0
	})
}

// CompareVersions returns -1, 0 or 1 comparing a to b.
func CompareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}
	return strings.Compare(a, b)
}
