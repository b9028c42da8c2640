package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"gphotofetch/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage gphotofetch configuration files.

Configuration is loaded from, highest priority first:
  - Command line flags
  - Environment variables (GPHOTOFETCH_*), also read from .env files
  - Configuration file
  - Default values`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is created as '.gphotofetch.yaml' in the current directory
unless a different path is given with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration from all sources and report every problem found:
  - YAML syntax
  - Value ranges and enumerations
  - Client secret and output directory accessibility`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# gphotofetch configuration file
#
# Every option can also be set with an environment variable prefixed with
# GPHOTOFETCH_, for example GPHOTOFETCH_OUTPUT_DIR or GPHOTOFETCH_CONCURRENCY.

auth:
  # OAuth client secret downloaded from the Google Cloud console
  client_secret_file: "auth.json"
  # auto, keyring, encrypted or file
  token_store: "auto"
  # Only used with token_store: file
  token_file: "token.json"

cache:
  # One CSV file per month
  directory: "./cache"
  # Any gocloud.dev blob URL; overrides directory when set
  url: ""

output:
  root_directory: "./downloaded"
  # Jan..Dec instead of 01..12 for the month directory
  month_names: false

fetch:
  # 1-100
  page_size: 100
  # ALL_MEDIA, PHOTO or VIDEO
  media_type: "ALL_MEDIA"
  # Attempts per listing page
  max_attempts: 5
  # 0 disables listing rate limiting
  requests_per_minute: 600

download:
  concurrency: 8
  # Upper bound applied to concurrency
  max_concurrency: 32
  timeout: 5m
  retry_attempts: 3
  # 0 disables download rate limiting
  requests_per_minute: 0
  # Allow a full minute's quota to start at once
  burst: false

journal:
  enabled: true
  # Default: journal.db in the data directory
  path: ""

logging:
  # debug, info, warn, error or disabled
  level: "info"
  # Optional log file, JSON lines
  file: ""
  no_color: false
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".gphotofetch.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file %s already exists; remove it first", configPath)
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Put your OAuth client secret JSON next to it as auth.json")
	fmt.Println("2. Run 'gphotofetch auth login'")
	fmt.Println("3. Start downloading with 'gphotofetch fetch 2023 1 2023 12'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (GPHOTOFETCH_*) and .env files")
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: (searched in default locations)")
	}
	fmt.Println("4. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	var problems []error
	var warnings []string

	if _, err := os.Stat(cfg.Auth.ClientSecretFile); err != nil {
		warnings = append(warnings, fmt.Sprintf("client secret file %s not found", cfg.Auth.ClientSecretFile))
	}
	if err := os.MkdirAll(cfg.Output.RootDirectory, 0755); err != nil {
		problems = append(problems, fmt.Errorf("cannot create output directory: %w", err))
	}
	if cfg.Cache.URL == "" {
		if err := os.MkdirAll(cfg.Cache.Directory, 0755); err != nil {
			problems = append(problems, fmt.Errorf("cannot create cache directory: %w", err))
		}
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Errorf("cannot create log directory: %w", err))
		}
	}
	if cfg.Download.Concurrency > cfg.Download.MaxConcurrency {
		warnings = append(warnings, fmt.Sprintf("concurrency %d is capped at max_concurrency %d",
			cfg.Download.Concurrency, cfg.Download.MaxConcurrency))
	}

	if len(problems) > 0 {
		return errors.Join(problems...)
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Output directory: %s\n", cfg.Output.RootDirectory)
	if cfg.Cache.URL != "" {
		fmt.Printf("  Cache: %s\n", cfg.Cache.URL)
	} else {
		fmt.Printf("  Cache: %s\n", cfg.Cache.Directory)
	}
	fmt.Printf("  Concurrency: %d\n", cfg.EffectiveConcurrency())
	fmt.Printf("  Listing rate limit: %d requests/minute\n", cfg.Fetch.RequestsPerMinute)
	fmt.Printf("  Max attempts: %d listing, %d download\n", cfg.Fetch.MaxAttempts, cfg.Download.RetryAttempts)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}
