package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tidewire/federate/internal/musicsvc"
	"github.com/tidewire/federate/internal/server"
	"github.com/tidewire/federate/internal/shared"
)

// authCommand runs the one-time interactive OAuth login a provider needs
// before the core adapters' reactive token-refresh policy (§4.1) has
// anything to refresh. Interactive authorization is an explicit Non-goal
// of the core federation substrate, so this lives in cmd/ as an ambient
// collaborator rather than inside internal/musicsvc, the same way the
// teacher keeps its Spotify/YouTube OAuth dance in cmd/spotify.go rather
// than internal/services.
func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Run the one-time interactive login for a provider",
		Commands: []*cli.Command{
			{
				Name:  "tidal",
				Usage: "Authorize this client against Tidal and save the token pair to config.toml",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: defaultConfigPath},
				},
				Action: authTidal,
			},
		},
	}
}

func authTidal(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	config, err := shared.LoadConfig(configPath)
	if err != nil {
		config = shared.DefaultConfig()
	}
	if config.Service.Tidal.ClientID == "" || config.Service.Tidal.ClientSecret == "" {
		return fmt.Errorf("%w: service.tidal.client_id and client_secret must be set in %s before authorizing", shared.ErrInvalidArgument, configPath)
	}

	oauthCfg := musicsvc.TidalOAuthConfig(config.Service.Tidal)

	state, err := shared.GenerateState()
	if err != nil {
		return fmt.Errorf("failed to generate state token: %w", err)
	}

	handler := server.NewOAuthHandler(oauthCfg, state)
	router := server.NewBasicRouter()
	router.Handler(handler)

	httpServer := &http.Server{Addr: redirectAddr(config.Service.Tidal.RedirectURI), Handler: router}
	serverErrors := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	defer httpServer.Close()

	time.Sleep(100 * time.Millisecond)

	authURL := oauthCfg.AuthCodeURL(state)
	fmt.Printf("Opening browser for Tidal authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		fmt.Printf("Could not open a browser automatically. Open this URL:\n%s\n", authURL)
	}

	timeout := time.NewTimer(2 * time.Minute)
	defer timeout.Stop()

	select {
	case result := <-handler.Result():
		if err := result.Error(); err != nil {
			return fmt.Errorf("tidal authorization failed: %w", err)
		}
		config.Service.Tidal.AccessToken = result.Token.AccessToken
		config.Service.Tidal.RefreshToken = result.Token.RefreshToken
		if err := shared.SaveConfig(configPath, config); err != nil {
			return fmt.Errorf("failed to save token pair to %s: %w", configPath, err)
		}
		fmt.Printf("Tidal authorization saved to %s\n", configPath)
		return nil
	case err := <-serverErrors:
		return fmt.Errorf("oauth callback server error: %w", err)
	case <-timeout.C:
		return shared.NewServiceError(shared.KindTimeout, fmt.Errorf("tidal authorization timed out after 2 minutes"))
	}
}

// redirectAddr extracts the host:port a redirect_uri's callback server
// should bind to, defaulting to localhost:8484 when it can't be parsed.
func redirectAddr(redirectURI string) string {
	const fallback = "localhost:8484"
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return fallback
	}
	return u.Host
}
