package cmd

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/namelens/octolens/internal/config"
	"github.com/namelens/octolens/internal/core/store"
	apperrors "github.com/namelens/octolens/internal/errors"
	"github.com/namelens/octolens/internal/observability"
	"github.com/namelens/octolens/internal/server"
	"github.com/namelens/octolens/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// cachePurgeInterval is how often serve drops cache entries older than
// cache.max_age.
const cachePurgeInterval = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server with graceful shutdown support.

Routes:
  /health, /health/live, /health/ready   Probes
  /version                               Build information
  /metrics                               Prometheus metrics
  /v1/emojis                             GitHub emojis (?filter=)
  /v1/rate-limit                         Observed and stored quota (?live=true)

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2 seconds: Force quit
  • SIGHUP: Reload configuration (log level)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides := map[string]any{}
		if cmd.Flags().Changed("host") {
			overrides["server.host"] = serverHost
		}
		if cmd.Flags().Changed("port") {
			overrides["server.port"] = serverPort
		}
		if noCache {
			overrides["cache.enabled"] = false
		}
		cfg, err := config.Load(appViper, overrides)
		if err != nil {
			return apperrors.Wrap(cmd.Context(), apperrors.CodeInvalidInput, err, "config load failed")
		}

		observability.InitServerLogger(config.AppName, cfg.Logging.Level, cfg.Logging.Format)
		defer observability.Sync()

		observability.ServerLogger.Info("Initializing server",
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.String("github_base_url", cfg.GitHub.BaseURL),
			zap.Bool("github_token", cfg.GitHub.Token != ""),
			zap.Bool("cache_enabled", cfg.Cache.Enabled),
			zap.Bool("metrics_enabled", cfg.Metrics.Enabled))

		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return apperrors.Wrap(cmd.Context(), apperrors.CodeDatabase, err, "store initialization failed")
		}
		var closeOnce sync.Once
		closeStore := func() {
			closeOnce.Do(func() {
				if err := db.Close(); err != nil {
					observability.ServerLogger.Warn("Store close returned error", zap.Error(err))
				}
			})
		}
		defer closeStore()

		client := newGitHubClient(cfg, db, observability.ServerLogger)

		srv := server.New(cfg.Server, server.Dependencies{
			Version:    versionInfo.Version,
			GitHub:     client,
			RateLimits: db,
			HealthChecks: map[string]handlers.HealthChecker{
				"store": db,
				"config": handlers.HealthCheckFunc(func(ctx context.Context) error {
					return cfg.Validate()
				}),
			},
			MetricsEnabled: cfg.Metrics.Enabled,
		})

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		if cfg.Cache.Enabled && cfg.Cache.MaxAge > 0 {
			go purgeCacheLoop(ctx, db, cfg.Cache.MaxAge, cachePurgeInterval)
		}

		// Shutdown handlers run last registered first.
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Closing store...")
			closeStore()
			observability.Sync()
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Shutting down HTTP server...")
			cancel()
			return shutdownServer(ctx, srv, durationOrDefault(cfg.Server.ShutdownTimeout, 10*time.Second))
		})

		signals.OnReload(func(ctx context.Context) error {
			observability.ServerLogger.Info("Received SIGHUP: re-validating configuration")
			if appViper != nil {
				if err := appViper.ReadInConfig(); err != nil {
					if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
						return apperrors.Wrap(ctx, apperrors.CodeInvalidInput, err, "config reload failed")
					}
				}
			}
			reloaded, err := config.Load(appViper, overrides)
			if err != nil {
				return apperrors.Wrap(ctx, apperrors.CodeInvalidInput, err, "config reload failed")
			}
			// Only the log level is applied without a restart.
			observability.InitServerLogger(config.AppName, reloaded.Logging.Level, reloaded.Logging.Format)
			observability.ServerLogger.Info("Configuration reloaded",
				zap.String("log_level", reloaded.Logging.Level))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			observability.ServerLogger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 2)
		go func() {
			if err := srv.Start(); err != nil {
				errChan <- apperrors.Wrap(ctx, apperrors.CodeInternal, err, "server error")
			}
		}()
		go func() {
			if err := signals.Listen(ctx); err != nil {
				observability.ServerLogger.Error("Signal handler error", zap.Error(err))
				errChan <- apperrors.Wrap(ctx, apperrors.CodeInternal, err, "signal handler error")
				return
			}
			errChan <- nil
		}()

		if err := <-errChan; err != nil {
			return err
		}
		observability.ServerLogger.Info("HTTP server stopped gracefully")
		return nil
	},
}

// shutdowner is the part of the server the shutdown handler drives.
type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdownServer drains srv within timeout.
func shutdownServer(ctx context.Context, srv shutdowner, timeout time.Duration) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return apperrors.Wrap(ctx, apperrors.CodeInternal, err, "server shutdown failed")
	}
	return nil
}

// purgeCacheLoop drops stale cache entries until ctx is done.
func purgeCacheLoop(ctx context.Context, db *store.Store, maxAge, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		purgeCache(ctx, db, maxAge)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func purgeCache(ctx context.Context, db *store.Store, maxAge time.Duration) {
	deleted, err := db.PurgeExpiredResponses(ctx, time.Now().UTC().Add(-maxAge))
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			observability.ServerLogger.Warn("Cache purge failed", zap.Error(err))
		}
		return
	}
	if deleted > 0 {
		observability.ServerLogger.Info("Purged cached responses", zap.Int64("deleted", deleted))
	}
}

func durationOrDefault(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host (overrides server.host)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port (overrides server.port)")
}
