package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"

	"ipcollector/internal/config"
	"ipcollector/internal/database"
	"ipcollector/internal/editor"
	"ipcollector/internal/geolite"
	"ipcollector/internal/storage"
	"ipcollector/internal/support"
)

const geoLiteLicenseEnv = "IPCOLLECTOR_GEOLITE_LICENSE_KEY"

// Services are the pieces shared by the daemon and the CLI.
type Services struct {
	DB        *gorm.DB
	Store     *storage.Store
	Countries *geolite.Reader
	Editor    *editor.Editor
}

// Setup reads settings, opens the database and prepares the editor.
func Setup(ctx context.Context) (*Services, error) {
	if err := config.ReadSettings(); err != nil {
		return nil, err
	}
	cfg := config.GetConfig()

	db, err := database.SetupDB()
	if err != nil {
		return nil, fmt.Errorf("failed to set up database: %w", err)
	}
	store := storage.New(db)

	countries := openCountries(ctx, cfg)

	ed := editor.New(store,
		editor.WithCountryLookup(countries),
		editor.WithTimeFormat(cfg.Display.TimeFormat),
	)

	return &Services{
		DB:        db,
		Store:     store,
		Countries: countries,
		Editor:    ed,
	}, nil
}

func openCountries(ctx context.Context, cfg config.Config) *geolite.Reader {
	path := cfg.GeoLite.CountryDBPath

	if cfg.GeoLite.AutoDownload {
		reader := &geolite.Reader{}
		dlCtx, cancel := context.WithTimeout(ctx, 3*time.Minute)
		defer cancel()

		updater := geolite.NewUpdater(support.GetEnv(geoLiteLicenseEnv, ""), path)
		if _, err := updater.EnsureDatabase(dlCtx, reader); err != nil {
			if errors.Is(err, geolite.ErrNoLicenseKey) {
				log.Warn("GeoLite download skipped", "env", geoLiteLicenseEnv)
			} else {
				log.Warn("GeoLite database unavailable", "error", err)
			}
		}
		return reader
	}

	reader, err := geolite.Open(path)
	if err != nil {
		log.Warn("GeoLite database unavailable", "path", path, "error", err)
	}
	return reader
}

func (s *Services) Close() {
	if s == nil {
		return
	}
	if s.Countries != nil {
		if err := s.Countries.Close(); err != nil {
			log.Warn("error closing GeoLite database", "error", err)
		}
	}
	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("error closing database", "error", err)
		}
	}
}
