package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"ipcollector/internal/app/bootstrap"
	"ipcollector/internal/auth"
	"ipcollector/internal/ctl"
)

func main() {
	_ = godotenv.Load()
	log.SetLevel(log.WarnLevel)
	log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	services, err := bootstrap.Setup(ctx)
	if err != nil {
		log.Fatal("setup failed", "error", err)
	}

	code := ctl.Run(ctx, os.Args[1:], ctl.Env{
		Editor:    services.Editor,
		Auth:      auth.FromEnv(),
		Clipboard: ctl.SystemClipboard{},
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	})

	services.Close()
	os.Exit(code)
}
