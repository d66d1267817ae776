package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/scottschroeder/storyestimate/internal/app"
	"github.com/scottschroeder/storyestimate/internal/config"
	"github.com/scottschroeder/storyestimate/internal/console"
	"github.com/scottschroeder/storyestimate/internal/logger"
)

var (
	version = "dev"
)

func main() {
	logLevel := flag.String("loglevel", "", "Log level (debug, info, warn, error); overrides STORYESTIMATE_LOG_LEVEL")
	backend := flag.String("backend", "", "Storage backend (memory, redis, sqlite); overrides STORYESTIMATE_BACKEND")
	noKeyboard := flag.Bool("nokeyboard", false, "Disable keyboard shortcuts")
	showVersion := flag.Bool("version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `StoryEstimate - planning poker server

Usage:
  storyestimate [options]

Options:
  -loglevel str  Log level: debug, info, warn, error
  -backend str   Storage backend: memory, redis, sqlite
  -nokeyboard    Disable keyboard shortcuts
  -version       Show version and exit
  -help          Show this help message

Settings are read from STORYESTIMATE_* environment variables and an
optional .env file in the working directory.

Examples:
  storyestimate                              # In-memory storage on port 8000
  storyestimate -backend sqlite              # Persist to storyestimate.db
  STORYESTIMATE_REDIS_ADDR=cache:6379 storyestimate -backend redis

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("storyestimate %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *backend != "" {
		cfg.Backend = *backend
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(1)
		}
	}

	var appLog *logger.ZeroLogger
	if cfg.IsDevelopment() {
		appLog = logger.NewConsole(logger.ParseLevel(cfg.LogLevel))
	} else {
		appLog = logger.NewWithLevel(logger.ParseLevel(cfg.LogLevel))
	}
	appLog.EnableHTTPLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, appLog)
	if err != nil {
		appLog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if !*noKeyboard {
		go console.New(appLog, os.Stdout, a.BaseURL(), stop).Run(ctx, os.Stdin)
	}

	if err := a.Run(ctx); err != nil {
		appLog.Error("server failed", "error", err)
		a.Close()
		os.Exit(1)
	}
	appLog.Info("server stopped")
}
