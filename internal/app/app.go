package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"ipcollector/internal/app/bootstrap"
	"ipcollector/internal/app/server"
	"ipcollector/internal/app/version"
	"ipcollector/internal/auth"
	"ipcollector/internal/capture"
	"ipcollector/internal/collector"
	"ipcollector/internal/config"
	"ipcollector/internal/storage"
	"ipcollector/internal/support"
)

const seedLeaderKey = "ipcollector:capture:seed-leader"

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	portFlag := flag.Int("port", 0, "Port for the API server (overrides settings)")
	productionFlag := flag.Bool("production", false, "Run in production mode")
	flag.Parse()

	config.SetProductionMode(*productionFlag)
	if config.InProductionMode {
		log.SetLevel(log.InfoLevel)
	} else {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("Starting ipcollector", "version", version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := bootstrap.Setup(ctx)
	if err != nil {
		return err
	}
	defer services.Close()

	cfg := config.GetConfig()
	fallbackPort := cfg.Server.Port
	if *portFlag != 0 {
		fallbackPort = *portFlag
	}
	port := resolvePort("IPCOLLECTOR_PORT", "PORT", fallbackPort)

	coll := collector.New(services.Store)
	unsubscribe, err := coll.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialise collector: %w", err)
	}
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)

	var seedLeader capture.Leader
	if cfg.Redis.Enabled {
		redisClient, err := support.NewRedisClient(ctx, config.GetRedisSettings())
		if err != nil {
			return fmt.Errorf("failed to get redis client: %w", err)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Warn("error closing redis client", "error", err)
			}
		}()

		rs := storage.EnableRedisSync(services.Store, redisClient)
		g.Go(func() error { return rs.Run(gctx) })
		seedLeader = support.NewLeaderLock(redisClient, seedLeaderKey, support.DefaultLeadershipTTL)
		log.Info("Storage changes synchronised through redis")
	}

	if support.GetEnvBool("IPCOLLECTOR_CAPTURE", cfg.Capture.Enabled) {
		source := capture.New(coll, capture.Options{
			ControlURL:      cfg.Capture.ControlURL,
			Headless:        cfg.Capture.Headless,
			Proxy:           cfg.Capture.Proxy,
			SeedURLs:        cfg.Capture.SeedURLs,
			VisitInterval:   config.GetVisitInterval(),
			IntervalUpdates: config.VisitIntervalUpdates(),
			VisitTimeout:    config.GetVisitTimeout(),
			SeedLeader:      seedLeader,
		})
		g.Go(func() error {
			if err := source.Run(gctx); err != nil {
				log.Error("browser capture terminated", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		reloadSettingsOnHangup(gctx)
		return nil
	})

	api := server.New(coll, services.Editor, auth.FromEnv())
	g.Go(func() error {
		err := api.Serve(gctx, port)
		stop()
		return err
	})

	return g.Wait()
}

func reloadSettingsOnHangup(ctx context.Context) {
	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	defer signal.Stop(hangup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hangup:
			if err := config.ReadSettings(); err != nil {
				log.Error("failed to reload settings", "error", err)
				continue
			}
			log.Info("Settings reloaded")
		}
	}
}

func resolvePort(primaryEnv, legacyEnv string, fallback int) int {
	if port := readPort(primaryEnv); port != 0 {
		return port
	}
	if port := readPort(legacyEnv); port != 0 {
		return port
	}
	return fallback
}

func readPort(envKey string) int {
	raw := os.Getenv(envKey)
	if raw == "" {
		return 0
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port == 0 {
		log.Warn("invalid port override", "env", envKey, "value", raw)
		return 0
	}
	return port
}
