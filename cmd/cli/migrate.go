package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sevigo/shot-warden/internal/config"
	"github.com/sevigo/shot-warden/internal/db"
	"github.com/sevigo/shot-warden/internal/logger"
)

var downSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Applies pending database migrations",
	RunE: func(_ *cobra.Command, _ []string) error {
		conn, err := connect()
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := conn.RunMigrations(); err != nil {
			return err
		}
		successColor.Println("database is up to date")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Rolls back database migrations",
	RunE: func(_ *cobra.Command, _ []string) error {
		if downSteps <= 0 {
			return fmt.Errorf("--steps must be positive")
		}
		conn, err := connect()
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := conn.MigrateDown(downSteps); err != nil {
			return err
		}
		warnColor.Printf("rolled back %d migration(s)\n", downSteps)
		return nil
	},
}

func connect() (*db.DB, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return db.Connect(cfg.Database, logger.NewLogger(cfg.Logging, nil))
}

func init() { //nolint:gochecknoinits // Cobra command registration
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "Number of migrations to roll back")
	migrateCmd.AddCommand(migrateDownCmd)
	rootCmd.AddCommand(migrateCmd)
}
