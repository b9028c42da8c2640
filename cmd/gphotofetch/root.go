package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"gphotofetch/pkg/config"
	errs "gphotofetch/pkg/errors"
	"gphotofetch/pkg/logger"
	"gphotofetch/pkg/ui"
)

var (
	// Version information
	version   = "0.3.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
	verbose    bool
)

// Exit codes
const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gphotofetch",
	Short: "Download a month range of your Google Photos library",
	Long: `gphotofetch downloads every photo and video of a Google Photos library
created within a range of months, into <root>/<year>/<month>/<day>/<filename>.

Month listings are cached locally, one file per month, so re-running the same
range only downloads what is missing on disk.

Features:
  - OAuth token kept in the system keychain or an encrypted file
  - Parallel downloads with a bounded worker pool
  - Retry with backoff for rate limits and transient failures
  - Run history in a local SQLite journal`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.SetColor(false)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	os.Exit(run())
}

func run() int {
	err := rootCmd.ExecuteContext(context.Background())
	if err == nil {
		return exitOK
	}

	if errors.Is(err, context.Canceled) {
		ui.PrintWarning("Interrupted")
		return exitInterrupted
	}
	if errs.IsConfigError(err) {
		ui.PrintError("Cannot start", err)
		return exitFailure
	}
	ui.PrintError("Error", err)
	return exitFailure
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.gphotofetch.yaml or ~/.config/gphotofetch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error, disabled)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output and informational logs")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug details and print every item")

	rootCmd.SetVersionTemplate(`gphotofetch {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig merges all configuration sources. Any failure is a
// ConfigError: nothing can run without a valid configuration.
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	switch {
	case logLevel != "":
		flags["log-level"] = logLevel
	case verbose:
		flags["log-level"] = "debug"
	case quiet:
		flags["log-level"] = "error"
	}
	if noColor {
		flags["no-color"] = true
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, errs.NewConfigError(errs.ErrInvalidConfig, "%v", err)
	}
	if cfg.Logging.NoColor {
		ui.SetColor(false)
	}
	return cfg, nil
}

// setupLogging initialises the global logger from cfg
func setupLogging(cfg *config.Config) (logger.Logger, error) {
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, errs.NewConfigError(errs.ErrInvalidConfig, "logging: %v", err)
	}
	return logger.GetLogger(), nil
}
