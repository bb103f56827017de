package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSettingsFileCreatesDefaults(t *testing.T) {
	origCfg := GetConfig()
	t.Cleanup(func() { SetConfig(origCfg) })

	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	if err := LoadSettingsFile(path); err != nil {
		t.Fatalf("LoadSettingsFile returned error: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("settings file was not created: %v", err)
	}

	cfg := GetConfig()
	if cfg.Server.Port != 8090 {
		t.Fatalf("default port = %d, want 8090", cfg.Server.Port)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Fatalf("default driver = %q, want %q", cfg.Database.Driver, DriverSQLite)
	}
}

func TestLoadSettingsFileNormalizesMissingFields(t *testing.T) {
	origCfg := GetConfig()
	t.Cleanup(func() { SetConfig(origCfg) })

	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"server":{"port":9000},"database":{"driver":"postgres"}}`), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	if err := LoadSettingsFile(path); err != nil {
		t.Fatalf("LoadSettingsFile returned error: %v", err)
	}

	cfg := GetConfig()
	if cfg.Server.Port != 9000 {
		t.Fatalf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Database.Driver != DriverPostgres {
		t.Fatalf("driver = %q, want %q", cfg.Database.Driver, DriverPostgres)
	}
	if cfg.Display.TimeFormat != defaultTimeFormat {
		t.Fatalf("time format = %q, want %q", cfg.Display.TimeFormat, defaultTimeFormat)
	}
}

func TestLoadSettingsFileRejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{not json`), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	if err := LoadSettingsFile(path); err == nil {
		t.Fatal("expected error for invalid settings file")
	}
}

func TestSettingsFilePathFromEnv(t *testing.T) {
	t.Setenv("IPCOLLECTOR_SETTINGS", "/tmp/custom.json")
	if got := SettingsFilePath(); got != "/tmp/custom.json" {
		t.Fatalf("SettingsFilePath() = %q, want /tmp/custom.json", got)
	}
}

func TestAutoDownloadGetsDefaultGeoLitePath(t *testing.T) {
	origCfg := GetConfig()
	t.Cleanup(func() { SetConfig(origCfg) })

	cfg := GetConfig()
	cfg.GeoLite.AutoDownload = true
	cfg.GeoLite.CountryDBPath = ""
	SetConfig(cfg)

	if got := GetConfig().GeoLite.CountryDBPath; got != "data/GeoLite2-Country.mmdb" {
		t.Fatalf("country db path = %q", got)
	}
}

func TestGetRedisSettings(t *testing.T) {
	origCfg := GetConfig()
	t.Cleanup(func() { SetConfig(origCfg) })

	cfg := GetConfig()
	cfg.Redis.URL = ""
	cfg.Redis.DialTimeout = 2
	SetConfig(cfg)

	t.Setenv("IPCOLLECTOR_REDIS_URL", "")
	os.Unsetenv("IPCOLLECTOR_REDIS_URL")
	settings := GetRedisSettings()
	if settings.URL != "redis://localhost:6379" || settings.DialTimeout != 2*time.Second {
		t.Fatalf("settings = %+v, want default URL with 2s timeout", settings)
	}

	t.Setenv("IPCOLLECTOR_REDIS_URL", "redis://cache:6380/1")
	if got := GetRedisSettings().URL; got != "redis://cache:6380/1" {
		t.Fatalf("URL = %q, want the environment override", got)
	}
}
