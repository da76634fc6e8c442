package models

import (
	"time"
)

const (
	PreReleaseProperty = "Microsoft.VisualStudio.Code.PreRelease"

	StatInstall        = "install"
	StatAverageRating  = "averagerating"
	StatWeightedRating = "weightedRating"
)

// ExtensionRecord is one extension as stored in the mirror and returned by
// the gallery query endpoint.
type ExtensionRecord struct {
	Identity            string               `json:"identity"`
	ExtensionID         string               `json:"extensionId"`
	ExtensionName       string               `json:"extensionName"`
	DisplayName         string               `json:"displayName"`
	ShortDescription    string               `json:"shortDescription"`
	Flags               string               `json:"flags"`
	Publisher           Publisher            `json:"publisher"`
	Versions            []VersionRecord      `json:"versions"`
	Categories          []string             `json:"categories,omitempty"`
	Tags                []string             `json:"tags,omitempty"`
	Statistics          []Statistic          `json:"statistics,omitempty"`
	InstallationTargets []InstallationTarget `json:"installationTargets,omitempty"`
	DeploymentType      int                  `json:"deploymentType"`
	LastUpdated         time.Time            `json:"lastUpdated"`
	PublishedDate       time.Time            `json:"publishedDate"`
	ReleaseDate         time.Time            `json:"releaseDate"`
	Recommended         bool                 `json:"recommended"`

	// Stats is the flattened form of Statistics.
	Stats map[string]float64 `json:"-"`
}

type Publisher struct {
	PublisherID      string  `json:"publisherId"`
	PublisherName    string  `json:"publisherName"`
	DisplayName      string  `json:"displayName"`
	Flags            string  `json:"flags"`
	Domain           *string `json:"domain"`
	IsDomainVerified bool    `json:"isDomainVerified"`
}

type Statistic struct {
	StatisticName string  `json:"statisticName"`
	Value         float64 `json:"value"`
}

type InstallationTarget struct {
	Target        string `json:"target"`
	TargetVersion string `json:"targetVersion"`
}

// VersionRecord is a single published version of an extension. An empty
// TargetPlatform means the version is platform agnostic.
type VersionRecord struct {
	Version          string      `json:"version"`
	TargetPlatform   string      `json:"targetPlatform,omitempty"`
	Flags            string      `json:"flags"`
	LastUpdated      time.Time   `json:"lastUpdated"`
	Files            []AssetFile `json:"files"`
	Properties       []Property  `json:"properties,omitempty"`
	AssetURI         string      `json:"assetUri"`
	FallbackAssetURI string      `json:"fallbackAssetUri"`
}

type AssetFile struct {
	AssetType string `json:"assetType"`
	Source    string `json:"source"`
}

type Property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Stat returns a flattened statistic, zero when absent.
func (e *ExtensionRecord) Stat(name string) float64 {
	if e.Stats == nil {
		return 0
	}
	return e.Stats[name]
}

// Property returns the value of key and whether it was present.
func (v VersionRecord) Property(key string) (string, bool) {
	for _, p := range v.Properties {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Clone returns a deep copy so the copy can be rewritten without touching
// a record that may be shared with readers.
func (e *ExtensionRecord) Clone() *ExtensionRecord {
	c := *e
	c.Versions = make([]VersionRecord, len(e.Versions))
	for i, v := range e.Versions {
		c.Versions[i] = v.clone()
	}
	c.Categories = append([]string(nil), e.Categories...)
	c.Tags = append([]string(nil), e.Tags...)
	c.Statistics = append([]Statistic(nil), e.Statistics...)
	c.InstallationTargets = append([]InstallationTarget(nil), e.InstallationTargets...)
	if e.Stats != nil {
		c.Stats = make(map[string]float64, len(e.Stats))
		for k, v := range e.Stats {
			c.Stats[k] = v
		}
	}
	return &c
}

func (v VersionRecord) clone() VersionRecord {
	c := v
	c.Files = append([]AssetFile(nil), v.Files...)
	c.Properties = append([]Property(nil), v.Properties...)
	return c
}
