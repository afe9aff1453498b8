package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sevigo/shot-warden/internal/wire"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Runs the queue workers and the sweeper without the HTTP API",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, cleanup, err := wire.InitializeApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()

		if err := app.StartWorkers(ctx); err != nil {
			return err
		}
		titleColor.Println("workers running, press Ctrl+C to stop")
		<-ctx.Done()

		if err := app.StopWorkers(); err != nil {
			return fmt.Errorf("workers stopped with error: %w", err)
		}
		successColor.Println("workers stopped")
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra command registration
	rootCmd.AddCommand(workerCmd)
}
