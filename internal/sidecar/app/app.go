package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bridge "github.com/aussiebroadwan/sidecar/internal/sidecar/http"
	"github.com/aussiebroadwan/sidecar/internal/sidecar/messaging"
	"github.com/aussiebroadwan/sidecar/internal/sidecar/service"
	"github.com/aussiebroadwan/sidecar/internal/sidecar/store"
	"github.com/aussiebroadwan/sidecar/pkg/authsdk"
	"github.com/aussiebroadwan/sidecar/pkg/httpx"
	"github.com/aussiebroadwan/sidecar/pkg/slogx"
)

// BuildVersion is overridden at build time via ldflags.
var BuildVersion = "v0.1.0"

// Application wires the session, backend clients and the bridge.
type Application struct {
	cfg    Config
	logger *slog.Logger

	store      store.RefreshTokens
	closeStore func() error
	flow       authsdk.WebAuthFlow

	Session        *service.SessionService
	Projects       *service.ProjectService
	Chat           *service.ChatService
	BrowserControl *service.BrowserControlService

	messages *messaging.Router
	router   *bridge.Router
	server   *http.Server
}

// Option customises an Application.
type Option func(*Application)

// WithLogger replaces the logger built from the configuration.
func WithLogger(l *slog.Logger) Option {
	return func(app *Application) { app.logger = l }
}

// WithWebAuthFlow replaces the loopback browser flow used for login.
func WithWebAuthFlow(flow authsdk.WebAuthFlow) Option {
	return func(app *Application) { app.flow = flow }
}

// New creates an Application with all dependencies initialised.
func New(cfg Config, opts ...Option) (*Application, error) {
	app := &Application{cfg: cfg}
	for _, opt := range opts {
		opt(app)
	}

	if app.logger == nil {
		app.logger = slogx.New(slogx.Config{
			Service: "sidecar",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		})
	}

	st, closeStore, err := InitTokenStore(cfg, app.logger)
	if err != nil {
		return nil, err
	}
	app.store = st
	app.closeStore = closeStore

	if err := app.initServices(); err != nil {
		_ = closeStore()
		return nil, err
	}
	app.initMessaging()
	app.initHTTP()

	return app, nil
}

func (app *Application) initServices() error {
	httpClient := &http.Client{Timeout: app.cfg.HTTPTimeout}

	flow := app.flow
	if flow == nil {
		flow = &authsdk.LoopbackFlow{
			Port:    app.cfg.CallbackPort,
			Timeout: app.cfg.CallbackTimeout,
			Logger:  app.logger,
		}
	}

	oauth := authsdk.NewClient(
		authsdk.Config{
			BaseURL:  app.cfg.KeycloakBaseURL,
			Realm:    app.cfg.KeycloakRealm,
			ClientID: app.cfg.KeycloakClientID,
			Scopes:   httpx.ParseSpaceDelimitedFields(app.cfg.KeycloakScopes),
		},
		authsdk.WithHTTPClient(httpClient),
		authsdk.WithWebAuthFlow(flow),
		authsdk.WithLogger(app.logger),
	)

	app.Session = service.NewSessionService(
		&service.KeycloakClient{Client: oauth},
		app.store,
		service.WithSessionLogger(app.logger),
	)
	app.Session.InitializeStoragePolicy(context.Background())

	gateway, err := service.NewGateway(app.cfg.APIBaseURL, app.Session,
		service.WithGatewayHTTPClient(httpClient),
		service.WithGatewayLogger(app.logger),
	)
	if err != nil {
		return err
	}

	app.Projects = service.NewProjectService(gateway)
	app.Chat = service.NewChatService(gateway, app.cfg.ChatHandlerName,
		service.WithPollInterval(app.cfg.ChatPollInterval),
		service.WithPollLimit(app.cfg.ChatPollLimit),
	)
	app.BrowserControl = service.NewBrowserControlService(gateway, app.Session)

	return nil
}

func (app *Application) initMessaging() {
	app.messages = messaging.NewRouter(app.cfg.ExtensionID, app.Session)
	messaging.RegisterAuthRoutes(app.messages, app.Session)
	messaging.RegisterProjectRoutes(app.messages, app.Projects)
	messaging.RegisterChatRoutes(app.messages, app.Chat)
	messaging.RegisterBrowserControlRoutes(app.messages, app.BrowserControl)
}

func (app *Application) initHTTP() {
	limits := bridge.Limits{
		Login:   httpx.ParseRateLimitFromEnv("LOGIN", httpx.LoginLimit),
		Message: httpx.ParseRateLimitFromEnv("MESSAGE", httpx.MessageLimit),
		Probe:   httpx.ParseRateLimitFromEnv("PROBE", httpx.ProbeLimit),
	}

	app.router = bridge.NewRouter(app.messages, app.store, app.cfg.ExtensionID, BuildVersion, limits, app.logger,
		bridge.WithBridgeSecret(app.cfg.BridgeSecret),
	)
	app.router.ApplyRoutes()

	app.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", app.cfg.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Handler returns the bridge handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run serves the bridge until SIGINT/SIGTERM or ctx is done.
func (app *Application) Run(ctx context.Context) error {
	if app.cfg.ExtensionID == "" {
		return errors.New("SIDECAR_EXTENSION_ID is required to serve the bridge")
	}

	if app.cfg.BridgeSecret == "" {
		app.logger.Warn("no bridge secret configured, any local process can claim the extension origin")
	}

	app.logger.Info("sidecar starting",
		"addr", app.server.Addr,
		"version", BuildVersion,
		"extension_id", app.cfg.ExtensionID,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
	case <-ctx.Done():
		app.logger.Info("context cancelled")
	}

	if err := app.Shutdown(); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// Shutdown stops the bridge and closes the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down sidecar...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	return app.Close()
}

// Close releases the store without touching the server. Commands that
// never call Run use it.
func (app *Application) Close() error {
	if err := app.closeStore(); err != nil {
		app.logger.Error("error closing token store", "error", err)
		return err
	}
	return nil
}
