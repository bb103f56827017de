package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"ipcollector/internal/support"
)

type Config struct {
	Server struct {
		Port int `json:"port"`
	} `json:"server"`

	Database struct {
		Driver     string `json:"driver"`
		SQLitePath string `json:"sqlite_path"`
	} `json:"database"`

	Redis struct {
		Enabled     bool   `json:"enabled"`
		URL         string `json:"url"`
		DialTimeout uint32 `json:"dial_timeout"` // seconds
	} `json:"redis"`

	Capture struct {
		Enabled      bool     `json:"enabled"`
		ControlURL   string   `json:"control_url"`
		Headless     bool     `json:"headless"`
		Proxy        string   `json:"proxy"`
		SeedURLs     []string `json:"seed_urls"`
		VisitTimer   Timer    `json:"visit_timer"`
		VisitTimeout uint32   `json:"visit_timeout"` // seconds
	} `json:"capture"`

	GeoLite struct {
		CountryDBPath string `json:"country_db_path"`
		AutoDownload  bool   `json:"auto_download"`
	} `json:"geolite"`

	Display struct {
		TimeFormat string `json:"time_format"`
	} `json:"display"`
}

type Timer struct {
	Days    uint32 `json:"days"`
	Hours   uint32 `json:"hours"`
	Minutes uint32 `json:"minutes"`
	Seconds uint32 `json:"seconds"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultSettingsFilePath = "data/settings.json"
	defaultTimeFormat       = "2006-01-02 15:04:05"
	defaultRedisURL         = "redis://localhost:6379"
)

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
	configMu    sync.Mutex

	InProductionMode bool
)

func init() {
	var cfg Config
	if err := json.Unmarshal(defaultConfig, &cfg); err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	configValue.Store(cfg)
}

// SettingsFilePath honours IPCOLLECTOR_SETTINGS so several instances can share a host.
func SettingsFilePath() string {
	return support.GetEnv("IPCOLLECTOR_SETTINGS", defaultSettingsFilePath)
}

// ReadSettings loads the settings file, creating it from the embedded defaults when missing.
func ReadSettings() error {
	return LoadSettingsFile(SettingsFilePath())
}

func LoadSettingsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: read %s: %w", path, err)
		}

		log.Warn("Settings file not found, creating with default configuration", "path", path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("config: create settings directory: %w", err)
		}
		if err := os.WriteFile(path, defaultConfig, 0o644); err != nil {
			return fmt.Errorf("config: write default settings: %w", err)
		}
		data = defaultConfig
	}

	var newConfig Config
	if err := json.Unmarshal(data, &newConfig); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyConfig(newConfig)
	log.Debug("Settings file loaded successfully", "path", path)
	return nil
}

// SetConfig replaces the active configuration without touching the settings file.
func SetConfig(newConfig Config) {
	applyConfig(newConfig)
}

func applyConfig(newConfig Config) {
	configMu.Lock()
	defer configMu.Unlock()

	normalize(&newConfig)
	configValue.Store(newConfig)
	setVisitInterval(calculateVisitInterval(newConfig))
}

func normalize(cfg *Config) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverSQLite
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/ipcollector.db"
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = defaultRedisURL
	}
	if cfg.GeoLite.AutoDownload && cfg.GeoLite.CountryDBPath == "" {
		cfg.GeoLite.CountryDBPath = "data/GeoLite2-Country.mmdb"
	}
	if cfg.Display.TimeFormat == "" {
		cfg.Display.TimeFormat = defaultTimeFormat
	}
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

// GetRedisSettings returns the redis connection settings. IPCOLLECTOR_REDIS_URL
// overrides the URL from the settings file.
func GetRedisSettings() support.RedisSettings {
	cfg := GetConfig()
	return support.RedisSettings{
		URL:         support.GetEnv("IPCOLLECTOR_REDIS_URL", cfg.Redis.URL),
		DialTimeout: time.Duration(cfg.Redis.DialTimeout) * time.Second,
	}
}

func SetProductionMode(productionMode bool) {
	InProductionMode = productionMode
}
