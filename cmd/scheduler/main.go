// Command scheduler runs the calendar auto-scheduling service: it opens the
// event store, wires the scheduling services and keeps the nightly workload
// rebuild running until the process is signalled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/calendar-scheduler/internal/application"
	"github.com/example/calendar-scheduler/internal/config"
	"github.com/example/calendar-scheduler/internal/logging"
	"github.com/example/calendar-scheduler/internal/persistence/sqlite"
	"github.com/example/calendar-scheduler/internal/workload"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scheduler: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel, cfg.LogConsole)
	logger.Info().Str("dsn", cfg.SQLiteDSN).Msg("starting scheduler")

	store, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.Migrate(ctx); err != nil {
		cancel()
		return err
	}
	cancel()

	workloads := application.NewWorkloadService(store, time.Now)

	rebuilder := workload.New(store, workloads, cfg.WorkloadRebuildCron, logger, time.Now)
	if err := rebuilder.Start(); err != nil {
		return err
	}
	defer rebuilder.Stop()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	logger.Info().Str("signal", sig.String()).Msg("shutting down")
	return nil
}
