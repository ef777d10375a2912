package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/calpane/internal/calendar"
	"github.com/teemow/calpane/internal/config"
	"github.com/teemow/calpane/internal/google"
	"github.com/teemow/calpane/internal/index"
	"github.com/teemow/calpane/internal/instrumentation"
	"github.com/teemow/calpane/internal/logging"
	"github.com/teemow/calpane/internal/server"
	"github.com/teemow/calpane/internal/session"
	"github.com/teemow/calpane/internal/ui"
)

// startupTimeout bounds how long a listener may take to bind.
const startupTimeout = 5 * time.Second

// serveFunc runs the server; replaced in tests.
var serveFunc = runServe

type serveFlags struct {
	addr               string
	baseURL            string
	timeZone           string
	googleClientID     string
	googleClientSecret string
	metricsEnabled     bool
	metricsAddr        string
}

func newServeCmd(global *globalFlags) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local web UI",
		Long: `Start the calpane web UI on localhost.

OAuth Configuration:
  Create an OAuth client of type "Web application" in the Google Cloud console
  and add <base-url>/oauth/callback as an authorized redirect URI.

  --google-client-id and --google-client-secret flags
  OR GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars
  OR [google] client_id / client_secret in calpane.toml

  Without a client id the page starts with a sign-in error.

Created-event index:
  --store file (default), sqlite, valkey or memory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServeConfig(cmd, global, flags, os.LookupEnv)
			if err != nil {
				return err
			}
			return serveFunc(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&flags.addr, "addr", config.DefaultAddr, "Listen address of the web UI. Can also use CALPANE_ADDR env var.")
	cmd.Flags().StringVar(&flags.baseURL, "base-url", config.DefaultBaseURL, "URL the browser uses to reach the web UI; the OAuth redirect URI is derived from it. Can also use CALPANE_BASE_URL env var.")
	cmd.Flags().StringVar(&flags.timeZone, "time-zone", "", "IANA time zone for form input and display (default: local). Can also use CALPANE_TIME_ZONE env var.")
	cmd.Flags().StringVar(&flags.googleClientID, "google-client-id", "", "Google OAuth client ID. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&flags.googleClientSecret, "google-client-secret", "", "Google OAuth client secret. Can also use GOOGLE_CLIENT_SECRET env var.")
	cmd.Flags().BoolVar(&flags.metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", config.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func loadServeConfig(cmd *cobra.Command, global *globalFlags, flags *serveFlags, lookup func(string) (string, bool)) (config.Config, error) {
	cfg, err := loadConfig(cmd, global, lookup)
	if err != nil {
		return cfg, err
	}

	changed := cmd.Flags().Changed
	if changed("addr") {
		cfg.Addr = flags.addr
	}
	if changed("base-url") {
		cfg.BaseURL = flags.baseURL
	}
	if changed("time-zone") {
		cfg.TimeZone = flags.timeZone
	}
	if changed("google-client-id") {
		cfg.Google.ClientID = flags.googleClientID
	}
	if changed("google-client-secret") {
		cfg.Google.ClientSecret = flags.googleClientSecret
	}
	if changed("metrics-enabled") {
		cfg.Metrics.Enabled = flags.metricsEnabled
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = flags.metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServe(parent context.Context, cfg config.Config) error {
	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(os.Stderr, cfg)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error during instrumentation shutdown", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	store, err := index.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open index store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("error closing index store", logging.Err(err))
		}
	}()
	logger.Info("created-event index ready", logging.Store(cfg.Store.Type))

	idx := index.New(store, index.WithLogger(logger), index.WithMetrics(metrics))

	// A missing client id is not fatal: the page shows the error instead.
	var auth google.Authenticator
	oauthConfig, startupErr := google.OAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.BaseURL)
	if startupErr != nil {
		logger.Warn("Google Sign-In unavailable", logging.Err(startupErr))
	} else {
		auth = oauthConfig
	}

	holder := session.NewHolder(auth, logger, metrics)
	adapter := ui.New(ui.Config{
		Gateway: calendar.NewGateway(calendar.Config{
			Endpoint: cfg.CalendarEndpoint,
			Location: loc,
			Logger:   logger,
			Metrics:  metrics,
		}),
		Sessions:     holder,
		Index:        idx,
		Location:     loc,
		StartupError: startupErr,
		Logger:       logger,
	})

	srv, err := server.New(server.Config{
		Addr:    cfg.Addr,
		BaseURL: cfg.BaseURL,
		Adapter: adapter,
		Health:  server.NewHealthChecker(holder.SignedIn),
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	serveErr := make(chan error, 2)

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled && provider.Gatherer() != nil {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:     cfg.Metrics.Addr,
			Gatherer: provider.Gatherer(),
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		if err := start(metricsServer.StartWithReadySignal, serveErr); err != nil {
			return fmt.Errorf("metrics server failed to start: %w", err)
		}
	}

	if err := start(srv.StartWithReadySignal, serveErr); err != nil {
		return fmt.Errorf("web UI failed to start: %w", err)
	}
	logger.Info("calpane is running", slog.String("url", cfg.BaseURL))

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-serveErr:
		logger.Error("server stopped unexpectedly", logging.Err(runErr))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error during web UI shutdown", logging.Err(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error during metrics server shutdown", logging.Err(err))
		}
	}
	return runErr
}

// start runs serve in a goroutine and waits until it is listening.
// Errors after startup are delivered on errs.
func start(serve func(ready chan<- struct{}) error, errs chan<- error) error {
	ready := make(chan struct{})
	startErr := make(chan error, 1)
	go func() {
		if err := serve(ready); err != nil {
			select {
			case <-ready:
				errs <- err
			default:
				startErr <- err
			}
		}
	}()

	select {
	case <-ready:
		return nil
	case err := <-startErr:
		return err
	case <-time.After(startupTimeout):
		return fmt.Errorf("startup timed out")
	}
}
