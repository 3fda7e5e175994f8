package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/myid/internal/buildinfo"
	"github.com/dmitrijs2005/myid/internal/client/cli"
	"github.com/dmitrijs2005/myid/internal/client/config"
	"github.com/dmitrijs2005/myid/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("%v", err)
	}
	logger := logging.NewTextLogger(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, closeFn, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closeFn()

	if err := app.Root(ctx); err != nil {
		logger.Error(ctx, "session ended", "error", err)
	}
}
