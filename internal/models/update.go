package models

// UpdateDefinition describes one installer build for a platform/quality
// pair. It is persisted as latest.json and <version>.json under
// installers/<identity>/<quality>/.
type UpdateDefinition struct {
	Identity           string `json:"identity"`
	Platform           string `json:"platform"`
	Architecture       string `json:"architecture"`
	BuildType          string `json:"buildtype"`
	Quality            string `json:"quality"`
	URL                string `json:"url"`
	Name               string `json:"name"`
	Version            string `json:"version"`
	ProductVersion     string `json:"productVersion"`
	Hash               string `json:"hash"`
	Timestamp          int64  `json:"timestamp"`
	SHA256Hash         string `json:"sha256hash"`
	SupportsFastUpdate *bool  `json:"supportsFastUpdate,omitempty"`
}
