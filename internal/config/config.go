package config

import (
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultURLRoot = "https://update.code.visualstudio.com"
	EnvPrefix      = "VSCMIRROR"
)

type Config struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
	BaseURL  string

	ArtifactsDir string
	DBPath       string

	RefreshInterval   time.Duration
	PollInterval      time.Duration
	IncludePrerelease bool
	MaxPageSize       int

	Sync SyncConfig

	LogLevel  string
	LogFormat string
	LogFile   string
}

type SyncConfig struct {
	Frequency        time.Duration
	Insider          bool
	Prerelease       bool
	Binaries         bool
	Extensions       bool
	Specified        bool
	Malicious        bool
	Existing         bool
	Search           string
	Name             string
	TotalRecommended int
	VSCodeVersion    string
	Retries          int
	Timeout          time.Duration
	Marketplace      string
	Concurrency      int
}

// SetDefaults registers defaults for every key GetConfig reads.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.https", false)
	v.SetDefault("server.base_url", DefaultURLRoot)

	v.SetDefault("artifacts.directory", "/artifacts")

	v.SetDefault("gallery.refresh_interval", time.Hour)
	v.SetDefault("gallery.poll_interval", 30*time.Second)
	v.SetDefault("gallery.include_prerelease", true)
	v.SetDefault("gallery.max_page_size", 1000)

	v.SetDefault("sync.frequency", 0)
	v.SetDefault("sync.binaries", true)
	v.SetDefault("sync.extensions", true)
	v.SetDefault("sync.specified", true)
	v.SetDefault("sync.malicious", true)
	v.SetDefault("sync.existing", true)
	v.SetDefault("sync.total_recommended", 500)
	v.SetDefault("sync.vscode_version", "1.95.0")
	v.SetDefault("sync.retries", 5)
	v.SetDefault("sync.timeout", 12*time.Second)
	v.SetDefault("sync.marketplace", "microsoft")
	v.SetDefault("sync.concurrency", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func GetConfig() Config {
	return FromViper(viper.GetViper())
}

func FromViper(v *viper.Viper) Config {
	cfg := Config{
		Port:     v.GetInt("server.port"),
		Host:     v.GetString("server.host"),
		UseHTTPS: v.GetBool("server.https"),
		CertFile: v.GetString("server.cert_file"),
		KeyFile:  v.GetString("server.key_file"),
		BaseURL:  v.GetString("server.base_url"),

		ArtifactsDir: v.GetString("artifacts.directory"),
		DBPath:       v.GetString("database.path"),

		RefreshInterval:   v.GetDuration("gallery.refresh_interval"),
		PollInterval:      v.GetDuration("gallery.poll_interval"),
		IncludePrerelease: v.GetBool("gallery.include_prerelease"),
		MaxPageSize:       v.GetInt("gallery.max_page_size"),

		Sync: SyncConfig{
			Frequency:        v.GetDuration("sync.frequency"),
			Insider:          v.GetBool("sync.insider"),
			Prerelease:       v.GetBool("sync.prerelease"),
			Binaries:         v.GetBool("sync.binaries"),
			Extensions:       v.GetBool("sync.extensions"),
			Specified:        v.GetBool("sync.specified"),
			Malicious:        v.GetBool("sync.malicious"),
			Existing:         v.GetBool("sync.existing"),
			Search:           v.GetString("sync.search"),
			Name:             v.GetString("sync.name"),
			TotalRecommended: v.GetInt("sync.total_recommended"),
			VSCodeVersion:    v.GetString("sync.vscode_version"),
			Retries:          v.GetInt("sync.retries"),
			Timeout:          v.GetDuration("sync.timeout"),
			Marketplace:      v.GetString("sync.marketplace"),
			Concurrency:      v.GetInt("sync.concurrency"),
		},

		LogLevel:  v.GetString("log.level"),
		LogFormat: v.GetString("log.format"),
		LogFile:   v.GetString("log.file"),
	}

	if cfg.DBPath == "" && cfg.ArtifactsDir != "" {
		cfg.DBPath = filepath.Join(cfg.ArtifactsDir, "ledger.db")
	}
	return cfg
}

func (c Config) InstallersDir() string {
	return filepath.Join(c.ArtifactsDir, "installers")
}

func (c Config) ExtensionsDir() string {
	return filepath.Join(c.ArtifactsDir, "extensions")
}
