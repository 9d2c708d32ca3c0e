package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"assetbridge/internal/app"
	"assetbridge/internal/demo"
	"assetbridge/pkg/config"
	"assetbridge/pkg/logger"
	"assetbridge/pkg/shutdown"
)

func main() {
	// build metadata - set via ldflags during build/release
	var (
		version   = "dev"
		commit    = "none"
		buildDate = "unknown"
	)
	_ = godotenv.Load(".env")

	flags, err := config.ParseConfigFlags(os.Args[1:])
	if err != nil {
		// flag already printed usage
		os.Exit(2)
	}
	eff, err := config.LoadEffectiveConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(2)
	}
	logger.Init(eff.Config.Logging.Level)

	crashDir := os.Getenv("ASSETBRIDGE_CRASH_DIR")
	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	verStr := version
	if commit != "none" {
		verStr += " (" + commit + ")"
	}
	if buildDate != "unknown" {
		verStr += " @ " + buildDate
	}

	a, err := app.New(ctx, eff, app.Options{
		Factory: demo.Factory(demo.Options{PublicPath: eff.Config.Static.PublicPath}),
		Version: verStr,
		Banner:  os.Stdout,
	})
	if err != nil {
		shutdown.Abort("failed to initialize app", err, crashDir)
		return
	}

	start := time.Now()
	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server error", err, crashDir)
		return
	}
	logger.Info("shutdown_complete", "uptime", time.Since(start).Round(time.Second).String())
}
