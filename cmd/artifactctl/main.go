package main

import (
	"context"
	"fmt"
	"log"
	"media-bundler/internal/bootstrap"
	"media-bundler/internal/cli"
	"media-bundler/internal/config"
	"media-bundler/internal/logging"
	"os"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize storage: %v", err)
	}

	err = cli.NewRootCmd(cli.NewApp(cfg, store, logger)).ExecuteContext(ctx)
	store.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
