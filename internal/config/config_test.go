package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("artifacts.directory", "/srv/artifacts")

	cfg := FromViper(v)
	if cfg.Port != 5000 {
		t.Fatalf("expected port 5000, got %d", cfg.Port)
	}
	if cfg.BaseURL != DefaultURLRoot {
		t.Fatalf("expected base url %s, got %s", DefaultURLRoot, cfg.BaseURL)
	}
	if cfg.RefreshInterval != time.Hour {
		t.Fatalf("expected 1h refresh, got %v", cfg.RefreshInterval)
	}
	if !cfg.IncludePrerelease {
		t.Fatal("expected prerelease versions to be served by default")
	}
	if cfg.DBPath != filepath.Join("/srv/artifacts", "ledger.db") {
		t.Fatalf("unexpected db path %s", cfg.DBPath)
	}
	if cfg.InstallersDir() != filepath.Join("/srv/artifacts", "installers") {
		t.Fatalf("unexpected installers dir %s", cfg.InstallersDir())
	}
	if cfg.ExtensionsDir() != filepath.Join("/srv/artifacts", "extensions") {
		t.Fatalf("unexpected extensions dir %s", cfg.ExtensionsDir())
	}
}

func TestReadYAMLConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `server:
  port: 8080
  base_url: https://mirror.local
gallery:
  refresh_interval: 10m
  include_prerelease: false
sync:
  frequency: 12h
  search: python
database:
  path: /tmp/x.db
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}

	cfg := FromViper(v)
	if cfg.Port != 8080 || cfg.BaseURL != "https://mirror.local" {
		t.Fatalf("server section not applied: %+v", cfg)
	}
	if cfg.RefreshInterval != 10*time.Minute {
		t.Fatalf("expected 10m refresh, got %v", cfg.RefreshInterval)
	}
	if cfg.IncludePrerelease {
		t.Fatal("expected include_prerelease=false")
	}
	if cfg.Sync.Frequency != 12*time.Hour || cfg.Sync.Search != "python" {
		t.Fatalf("sync section not applied: %+v", cfg.Sync)
	}
	if cfg.DBPath != "/tmp/x.db" {
		t.Fatalf("explicit db path overridden: %s", cfg.DBPath)
	}
}
