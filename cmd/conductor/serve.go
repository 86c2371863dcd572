package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"conductor/internal/checkpoint"
	"conductor/internal/config"
	"conductor/internal/filestore"
	"conductor/internal/hub"
	"conductor/internal/logging"
	"conductor/internal/runner"
	"conductor/internal/schedule"
	"conductor/internal/server"
	"conductor/internal/task"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func runServe(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.SetDefaultLevel(logging.ParseLevel(cfg.LogLevel))
	logger := logging.NewComponentLogger("Main")

	if err := filestore.EnsureDir(cfg.Storage.DataDir); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	taskRecords := filestore.NewCollection[task.Task](filestore.CollectionConfig{
		FilePath: cfg.Storage.TasksFile(),
		Name:     "tasks",
	})
	if err := taskRecords.Load(); err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	scheduleRecords := filestore.NewCollection[schedule.Schedule](filestore.CollectionConfig{
		FilePath: cfg.Storage.SchedulesFile(),
		Name:     "schedules",
	})
	if err := scheduleRecords.Load(); err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}

	notifier := hub.New(logging.NewComponentLogger("Hub"))
	checkpoints := checkpoint.NewFileStore(cfg.Storage.CheckpointsDir())

	// The execution graph attaches here. Without one wired in, runs
	// complete immediately so the orchestration surface stays usable.
	graph := runner.CompleteRunner{Result: "no execution graph attached"}

	tasks := task.NewService(taskRecords, checkpoints, graph, notifier, logging.NewComponentLogger("Queue"))
	scheduler := schedule.New(
		schedule.Config{TickInterval: cfg.Scheduler.TickInterval},
		scheduleRecords, tasks, notifier, logging.NewComponentLogger("Scheduler"),
	)

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Recovery and the scheduler must be running before the listener
	// accepts requests, so no orphaned task stays undispatched.
	tasks.Start(ctx)
	if err := tasks.ResumeOnStartup(ctx); err != nil {
		return fmt.Errorf("queue recovery: %w", err)
	}
	scheduler.Start(ctx)

	srv := server.New(server.Config{
		Addr:       cfg.Server.Addr(),
		EnableCORS: cfg.Server.EnableCORS,
		Debug:      cfg.Server.Debug,
	}, tasks, scheduler, notifier, logging.NewComponentLogger("Server"))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(srv.Start)
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("Shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown: %v", err)
		}
		scheduler.Stop()
		tasks.Stop()
		notifier.Close()
		return nil
	})

	err = group.Wait()
	logger.Info("Stopped")
	return err
}
