package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowSetupGuide explains how to obtain the OAuth client secret file
func ShowSetupGuide(w io.Writer, clientSecretFile string) {
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, "GOOGLE PHOTOS API SETUP")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "gphotofetch reads your library through the Photos Library API with")
	fmt.Fprintln(w, "your own OAuth client. This is a one-time setup:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  1. Open https://console.cloud.google.com/ and create or pick a project")
	fmt.Fprintln(w, "  2. APIs & Services > Library: enable \"Photos Library API\"")
	fmt.Fprintln(w, "  3. APIs & Services > OAuth consent screen: add yourself as a test user")
	fmt.Fprintln(w, "  4. APIs & Services > Credentials: create an OAuth client ID of type")
	fmt.Fprintln(w, "     \"Desktop app\" and download its JSON")
	fmt.Fprintf(w, "  5. Save the JSON as %s (or pass --client-secret)\n", clientSecretFile)
	fmt.Fprintln(w, "  6. Run: gphotofetch auth login")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The token is stored in the system keychain when available, otherwise")
	fmt.Fprintln(w, "in an encrypted file in the data directory.")
	fmt.Fprintln(w, strings.Repeat("=", 72))
}
