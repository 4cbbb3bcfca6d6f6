package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/fruitsalade/networkfs/internal/config"
	"github.com/fruitsalade/networkfs/internal/winclient"
	"github.com/fruitsalade/networkfs/pkg/client"
)

// credentialPath returns the configured credential file or the default one.
func credentialPath() string {
	if cfg.Client.Credential != "" {
		return cfg.Client.Credential
	}
	return client.CredentialPath()
}

// resolveToken returns the mount credential from the flag or environment
// (already folded into cfg), then the saved credential, then a prompt.
func resolveToken() (string, error) {
	if cfg.Client.Token != "" {
		return cfg.Client.Token, nil
	}

	cred, err := client.LoadCredential(credentialPath())
	switch {
	case err == nil:
		if cred.Server != "" && cred.Server != cfg.Client.ServerURL {
			PrintErr("Warning: saved credential was issued for %s", cred.Server)
		}
		return cred.Token, nil
	case !errors.Is(err, client.ErrNoCredential):
		return "", fmt.Errorf("load credential: %w", err)
	}

	return promptToken()
}

// promptToken reads a credential from the terminal without echo.
func promptToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no credential available: use --token, NETWORKFS_CLIENT_TOKEN or 'networkfs login'")
	}
	fmt.Fprint(os.Stderr, "Token: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(string(b))
	if token == "" {
		return "", errors.New("empty token")
	}
	return token, nil
}

// openCore resolves the credential and opens a session.
func openCore() (*winclient.ClientCore, error) {
	token, err := resolveToken()
	if err != nil {
		return nil, err
	}
	return winclient.NewClientCore(coreConfig(cfg.Client, token))
}

// coreConfig builds the mount core configuration. token overrides the
// configured one when non-empty.
func coreConfig(c config.ClientConfig, token string) winclient.CoreConfig {
	if token == "" {
		token = c.Token
	}
	return winclient.CoreConfig{
		ServerURL:         c.ServerURL,
		Token:             token,
		MountPoint:        c.MountPoint,
		Format:            c.Format,
		XDRListingLimit:   c.XDRListingLimit,
		Timeout:           c.Timeout,
		Retry:             c.Retry(),
		MaxNodes:          c.MaxNodes,
		RootID:            c.RootID,
		HealthCheckPeriod: c.HealthCheckPeriod,
		AllowOther:        c.AllowOther,
		Debug:             c.Debug,
	}
}
