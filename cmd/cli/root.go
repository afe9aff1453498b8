package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sevigo/shot-warden/internal/config"
)

var configFile string

// Color definitions
var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	dimColor     = color.New(color.FgHiBlack)
)

var rootCmd = &cobra.Command{
	Use:   "warden-cli",
	Short: "warden-cli is the command-line interface for shot-warden.",
	Long: `A CLI for operating shot-warden: running workers, pushing and replaying
jobs, migrating the database and diffing screenshots locally.`,
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config.yaml")

	if err := viper.BindPFlag("CONFIG", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		slog.Error("Error binding flag", "error", err)
		os.Exit(1)
	}
}

// initConfig reads in ENV variables if set. A --config flag wins over
// SHOTWARDEN_CONFIG, and the wired loaders pick the file up from there.
func initConfig() {
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if file := viper.GetString("CONFIG"); file != "" {
		if err := os.Setenv(config.EnvPrefix+"_CONFIG", file); err != nil {
			slog.Error("Error exporting config path", "error", err)
		}
	}
}
