package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"ipcollector/internal/config"
	"ipcollector/internal/domain"
	"ipcollector/internal/support"
)

// Seeded keys start out as empty JSON arrays.
var seededKeys = []string{"collectedIPs", "regexPatterns"}

type Config struct {
	ExistingDB   *gorm.DB
	Dialector    gorm.Dialector
	Logger       logger.Interface
	AutoMigrate  bool
	Migrations   []any
	SeedDefaults bool
}

type Option func(*Config)

func SetupDB(opts ...Option) (*gorm.DB, error) {
	cfg := Config{
		Logger:       silentLogger(),
		AutoMigrate:  true,
		Migrations:   defaultMigrations(),
		SeedDefaults: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var db *gorm.DB
	switch {
	case cfg.ExistingDB != nil:
		db = cfg.ExistingDB
	default:
		dialector := cfg.Dialector
		if dialector == nil {
			d, err := defaultDialector(config.GetConfig())
			if err != nil {
				return nil, err
			}
			dialector = d
		}

		gormCfg := &gorm.Config{}
		if cfg.Logger != nil {
			gormCfg.Logger = cfg.Logger
		}
		opened, err := gorm.Open(dialector, gormCfg)
		if err != nil {
			return nil, fmt.Errorf("database: open connection: %w", err)
		}
		db = opened
		configureConnectionPool(db)
	}

	if cfg.AutoMigrate && len(cfg.Migrations) > 0 {
		if err := db.AutoMigrate(cfg.Migrations...); err != nil {
			return nil, fmt.Errorf("database: auto migrate: %w", err)
		}
		log.Info("Database migration completed.")
	}

	if cfg.SeedDefaults {
		if err := seedDefaults(db); err != nil {
			return nil, fmt.Errorf("database: seed defaults: %w", err)
		}
	}

	return db, nil
}

func defaultDialector(cfg config.Config) (gorm.Dialector, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		return postgres.Open(buildDSN()), nil
	case config.DriverSQLite, "":
		path := cfg.Database.SQLitePath
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("database: create sqlite directory: %w", err)
			}
		}
		return sqlite.Open(path + "?_busy_timeout=5000&_journal_mode=WAL"), nil
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", cfg.Database.Driver)
	}
}

func buildDSN() string {
	dbHost := support.GetEnv("DB_HOST", "localhost")
	dbPort := support.GetEnv("DB_PORT", "5432")
	dbName := support.GetEnv("DB_NAME", "ipcollector")
	dbUser := support.GetEnv("DB_USERNAME", "ipcollector")
	dbPassword := support.GetEnv("DB_PASSWORD", "ipcollector")

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		dbHost,
		dbPort,
		dbUser,
		dbPassword,
		dbName,
	)
}

// Close releases the connection pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func silentLogger() logger.Interface {
	return logger.New(
		log.Default(),
		logger.Config{LogLevel: logger.Silent},
	)
}

func defaultMigrations() []any {
	return []any{
		domain.KVEntry{},
	}
}

func WithExistingDB(db *gorm.DB) Option {
	return func(cfg *Config) {
		cfg.ExistingDB = db
	}
}

func WithDialector(d gorm.Dialector) Option {
	return func(cfg *Config) {
		cfg.Dialector = d
	}
}

func WithSeedDefaults(enabled bool) Option {
	return func(cfg *Config) {
		cfg.SeedDefaults = enabled
	}
}

func configureConnectionPool(db *gorm.DB) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Error("database: get sql.DB", "error", err)
		return
	}

	if db.Dialector.Name() == "sqlite" {
		// One writer at a time keeps sqlite from reporting "database is locked".
		sqlDB.SetMaxOpenConns(1)
		return
	}

	maxOpen := support.GetEnvInt("DB_MAX_OPEN_CONNS", 16)
	maxIdle := support.GetEnvInt("DB_MAX_IDLE_CONNS", maxOpen)
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	connLifetimeSeconds := support.GetEnvInt("DB_CONN_MAX_LIFETIME", 300)
	connIdleSeconds := support.GetEnvInt("DB_CONN_MAX_IDLE_TIME", 60)

	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle >= 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if connLifetimeSeconds > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(connLifetimeSeconds) * time.Second)
	}
	if connIdleSeconds > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(connIdleSeconds) * time.Second)
	}
}

// seedDefaults makes sure every known key has a row so that row locks taken
// by concurrent writers always have something to lock.
func seedDefaults(db *gorm.DB) error {
	if !db.Migrator().HasTable(&domain.KVEntry{}) {
		return nil
	}

	entries := make([]domain.KVEntry, 0, len(seededKeys))
	for _, key := range seededKeys {
		entries = append(entries, domain.KVEntry{Name: key, Value: "[]"})
	}

	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&entries).Error
}
