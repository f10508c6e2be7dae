package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/post-archiver/internal/app"
	"github.com/samvad-hq/post-archiver/internal/config"
	"github.com/samvad-hq/post-archiver/internal/lock"
	"github.com/samvad-hq/post-archiver/internal/logger"
)

// exitAlreadyRunning is returned when another instance holds the lock.
const exitAlreadyRunning = 3

func main() {
	if err := run(); err != nil {
		if errors.Is(err, lock.ErrAlreadyRunning) {
			fmt.Fprintf(os.Stderr, "archiver: %v\n", err)
			os.Exit(exitAlreadyRunning)
		}
		fmt.Fprintf(os.Stderr, "archiver start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("archiver starting", "config", map[string]any{
		"app_env":       cfg.Env,
		"storage_type":  cfg.StorageType,
		"accounts_file": cfg.AccountsFile,
		"lock_dir":      cfg.LockDir,
		"skip_backfill": cfg.SkipBackfill,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	supervisor, err := app.NewSupervisor(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize supervisor", "error", err.Error())
		return err
	}

	if err := supervisor.Run(ctx); err != nil {
		return fmt.Errorf("supervisor run: %w", err)
	}
	return nil
}
