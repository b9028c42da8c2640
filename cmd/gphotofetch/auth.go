package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"gphotofetch/pkg/auth"
	errs "gphotofetch/pkg/errors"
	"gphotofetch/pkg/ui"
)

var (
	// Auth command flags
	clientSecret string
	tokenStore   string
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Google Photos OAuth token",
	Long: `Manage the OAuth token gphotofetch uses to read your library.

The token is stored in, by order of preference:
  - GPHOTOFETCH_REFRESH_TOKEN (read only)
  - System keychain (when available)
  - Encrypted file in the data directory (PBKDF2 + AES-GCM)
  - Plain token.json, only with token_store: file`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize gphotofetch and store the token",
	Long: `Authorize read-only access to your Google Photos library.

A consent URL is printed; open it, approve access and paste the code shown
back into the terminal. The resulting token, including its refresh token,
is stored so later runs never prompt again.`,
	Example: `  # Log in with ./auth.json as client secret
  gphotofetch auth login

  # Use a different client secret file and keep the token in token.json
  gphotofetch auth login --client-secret ~/client_secret.json --token-store file`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored token",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

// statusCmd represents the auth status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the token is stored and whether it is usable",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(statusCmd)

	authCmd.PersistentFlags().StringVar(&clientSecret, "client-secret", "", "OAuth client secret JSON (default auth.json)")
	authCmd.PersistentFlags().StringVar(&tokenStore, "token-store", "", "token store: auto, keyring, encrypted or file")
}

func authFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if clientSecret != "" {
		flags["client-secret"] = clientSecret
	}
	if tokenStore != "" {
		flags["token-store"] = tokenStore
	}
	return flags
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(authFlags())
	if err != nil {
		return err
	}
	log, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	oauthCfg, err := auth.LoadClientConfig(cfg.Auth.ClientSecretFile)
	if err != nil {
		if errors.Is(err, errs.ErrMissingCredentials) {
			auth.ShowSetupGuide(os.Stdout, cfg.Auth.ClientSecretFile)
		}
		return err
	}

	m, err := tokenManager(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	tok, err := auth.Login(ctx, oauthCfg, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	if tok.RefreshToken == "" {
		ui.PrintWarning("No refresh token was issued; you will have to log in again when this token expires")
	}

	store, err := m.Save(tok)
	if err != nil {
		return err
	}

	log.WithField("store", store.Name()).Info("OAuth token stored")
	ui.PrintSuccess("Logged in. Token stored in " + store.Name())
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(authFlags())
	if err != nil {
		return err
	}
	if _, err := setupLogging(cfg); err != nil {
		return err
	}

	m, err := tokenManager(cfg)
	if err != nil {
		return err
	}

	if err := m.Delete(); err != nil {
		if errors.Is(err, auth.ErrTokenNotFound) {
			ui.PrintWarning("No stored token")
			return nil
		}
		return err
	}
	ui.PrintSuccess("Stored token removed")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(authFlags())
	if err != nil {
		return err
	}
	if _, err := setupLogging(cfg); err != nil {
		return err
	}

	if _, err := os.Stat(cfg.Auth.ClientSecretFile); err != nil {
		ui.PrintInfo("Client secret", cfg.Auth.ClientSecretFile+" (missing)")
	} else {
		ui.PrintInfo("Client secret", cfg.Auth.ClientSecretFile)
	}

	m, err := tokenManager(cfg)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(m.Stores()))
	for _, s := range m.Stores() {
		names = append(names, s.Name())
	}
	ui.PrintInfo("Token stores", fmt.Sprint(names))

	tok, store, err := m.Load()
	if err != nil {
		ui.PrintWarning("Not logged in", "run 'gphotofetch auth login'")
		return nil
	}

	ui.PrintInfo("Token store", store.Name())
	if tok.RefreshToken != "" {
		ui.PrintInfo("Refresh token", auth.MaskToken(tok.RefreshToken))
	} else {
		ui.PrintInfo("Refresh token", "none")
	}
	if tok.Expiry.IsZero() {
		ui.PrintInfo("Access token", "no expiry recorded")
	} else if tok.Valid() {
		ui.PrintInfo("Access token", "valid until "+tok.Expiry.Local().Format(time.RFC1123))
	} else {
		ui.PrintInfo("Access token", "expired, will be refreshed on next run")
	}
	return nil
}
