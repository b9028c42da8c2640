package auth

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/term"

	errs "gphotofetch/pkg/errors"
	"gphotofetch/pkg/photos"
)

// LoadClientConfig reads an OAuth client secret JSON downloaded from the
// Google Cloud console
func LoadClientConfig(path string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NewConfigError(errs.ErrMissingCredentials,
				"client secret file %s not found; see 'gphotofetch auth login --help'", path)
		}
		return nil, errs.NewConfigError(errs.ErrMissingCredentials, "read %s: %v", path, err)
	}

	cfg, err := google.ConfigFromJSON(data, photos.ReadonlyScope)
	if err != nil {
		return nil, errs.NewConfigError(errs.ErrInvalidCredentials, "parse %s: %v", path, err)
	}
	return cfg, nil
}

// Login runs the copy-paste consent flow: it prints the consent URL to out,
// reads the authorization code from in and exchanges it for a token
func Login(ctx context.Context, cfg *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(out, "Open this URL in your browser and grant read-only access to Google Photos:\n\n  %s\n\nAuthorization code: ", authURL)

	code, err := readCode(in)
	fmt.Fprintln(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read authorization code: %w", err)
	}
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", ErrInvalidToken)
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return tok, nil
}

// readCode hides the input when in is a terminal
func readCode(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
