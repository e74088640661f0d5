// Package server hosts the bot endpoint, the tab and task module pages, and
// the tab sign-in pop-up.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"taskmodule/bot"
	"taskmodule/storage"
	"taskmodule/tab"
)

// ChannelAuthenticator validates the bearer token on incoming activities.
type ChannelAuthenticator interface {
	ValidateAuthHeader(ctx context.Context, header, channelID string) (jwt.MapClaims, error)
}

// App holds the wired application state.
type App struct {
	Config       Config
	Logger       *slog.Logger
	Store        storage.Store
	Bot          *bot.Bot
	Channels     ChannelAuthenticator
	Provider     IdentityProvider
	AuthRequests *AuthRequestStore
}

// NewApp wires together the application state from configuration.
func NewApp(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	appRoot := strings.TrimSuffix(cfg.Server.PublicURL, "/")
	connector := bot.NewConnector(bot.ConnectorConfig{
		AppID:       cfg.Bot.AppID,
		AppPassword: cfg.Bot.AppPassword,
		TokenURL:    cfg.Bot.TokenURL,
		TokenScope:  cfg.Bot.TokenScope,
		Logger:      logger,
	})

	app := &App{
		Config: cfg,
		Logger: logger,
		Store:  store,
		Bot: bot.New(bot.Config{
			AppID:   cfg.Bot.AppID,
			AppRoot: appRoot,
			Store:   store,
			Sender:  connector,
			Logger:  logger,
		}),
		AuthRequests: NewAuthRequestStore(DefaultAuthRequestTTL),
	}

	// Without an app id the endpoint accepts unauthenticated activities,
	// as the local emulator sends.
	if cfg.Bot.AppID != "" {
		app.Channels = bot.NewValidator(bot.ValidatorConfig{
			AppID:             cfg.Bot.AppID,
			OpenIDMetadataURL: cfg.Bot.OpenIDMetadataURL,
			Issuer:            cfg.Bot.ChannelIssuer,
		})
	} else {
		logger.Warn("bot.app_id not set; activities are not authenticated")
	}

	if cfg.Auth.Enabled() {
		provider, err := NewOIDCProvider(ctx, cfg.Auth, appRoot+"/auth/end", logger)
		switch {
		case err == nil:
			app.Provider = provider
		case cfg.Server.DevMode:
			logger.Warn("provider init failed", "error", err)
		default:
			_ = store.Close(ctx)
			return nil, err
		}
	}

	return app, nil
}

// Close releases the storage connection.
func (a *App) Close(ctx context.Context) error {
	return a.Store.Close(ctx)
}

func (a *App) tabAppID() string {
	if a.Config.Tab.AppID != "" {
		return a.Config.Tab.AppID
	}
	return tab.AppID
}

func (a *App) appRoot() string {
	return strings.TrimSuffix(a.Config.Server.PublicURL, "/")
}
