package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/stokerlabs/stoker/internal/api"
	"github.com/stokerlabs/stoker/internal/config"
	"github.com/stokerlabs/stoker/internal/registry"
	"github.com/stokerlabs/stoker/internal/scheduler"
	"github.com/stokerlabs/stoker/internal/task"
)

const drainTimeout = 30 * time.Second

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("stoker: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"max_concurrency", cfg.MaxConcurrency,
		"job_capacity", cfg.JobCapacity,
	)

	var reg registry.Registry
	if cfg.DBPath == "" {
		reg = registry.NewMemoryRegistry()
	} else {
		sqlReg, err := registry.NewSQLiteRegistry(cfg.DBPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		reg = sqlReg
	}
	defer reg.Close()

	tasks := task.NewRegistry()
	if err := registerBuiltinTasks(tasks); err != nil {
		log.Fatalf("failed to register tasks: %v", err)
	}

	sched := scheduler.New(reg, logger,
		scheduler.WithMaxConcurrency(cfg.MaxConcurrency),
		scheduler.WithCapacity(cfg.JobCapacity),
	)

	srv := api.NewServer(cfg.ListenAddr, reg, tasks, sched, logger, cfg.PollInterval)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := sched.Close(ctx); err != nil {
		logger.Error("scheduler drain", "error", err)
	}
}

type sleepParams struct {
	Duration string `json:"duration"`
}

type echoParams struct {
	Message string `json:"message"`
}

// registerBuiltinTasks installs the stock tasks every deployment gets.
func registerBuiltinTasks(tasks *task.Registry) error {
	if err := task.Define(tasks, "sleep", func(ctx context.Context, p sleepParams) (string, error) {
		d, err := time.ParseDuration(p.Duration)
		if err != nil {
			return "", fmt.Errorf("invalid duration %q: %w", p.Duration, err)
		}
		select {
		case <-time.After(d):
			return "", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}); err != nil {
		return err
	}

	return task.Define(tasks, "echo", func(ctx context.Context, p echoParams) (string, error) {
		return p.Message, nil
	})
}
