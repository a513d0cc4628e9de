package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/astrowidget/astroproxy/internal/config"
	"github.com/astrowidget/astroproxy/internal/core/engine"
	"github.com/astrowidget/astroproxy/internal/core/gate"
	"github.com/astrowidget/astroproxy/internal/core/upstream"
	errwrap "github.com/astrowidget/astroproxy/internal/errors"
	"github.com/astrowidget/astroproxy/internal/metrics"
	"github.com/astrowidget/astroproxy/internal/observability"
	"github.com/astrowidget/astroproxy/internal/server"
	"github.com/astrowidget/astroproxy/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// upstreamHealthChecker fails when no upstream credential is configured;
// every submission would be refused.
type upstreamHealthChecker struct {
	client *upstream.Client
}

func (u upstreamHealthChecker) CheckHealth(ctx context.Context) error {
	if !u.client.HasCredential() {
		return errwrap.NewConfigInvalidError("upstream access token not configured")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the horoscope proxy",
	Long: `Start the HTTP server with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config file re-read (restart to apply pipeline changes)

The server will cleanly shut down the HTTP server, close the window store
and flush logs on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		cfg, err := loadConfig()
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "invalid configuration")
		}

		observability.InitServerLogger(observability.ServerLoggerOptions{
			Service:     config.AppName,
			Level:       cfg.Logging.Level,
			Environment: observability.EnvironmentFor(cfg.Debug.Enabled),
			Namespace:   config.AppName,
			Profile:     cfg.Logging.Profile,
		})
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
			}
			metrics.SetServerStartTime(time.Now().Unix())
		}

		backend, err := openWindowBackend(ctx, cfg)
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "window store unavailable")
		}
		metrics.SetWindowStore(backend.name)

		pipeline, proxyGate, resolver, client, err := buildPipeline(cfg, backend.windowBackend)
		if err != nil {
			_ = backend.Close()
			return errwrap.WrapConfigInvalid(ctx, err, "pipeline configuration failed")
		}

		logger.Info("Initializing server",
			zap.String("service", config.AppName),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("metrics_port", observability.GetMetricsPort()),
			zap.String("window_store", backend.name),
			zap.Int("rate_limit", cfg.RateLimit.Limit),
			zap.Duration("rate_window", cfg.RateLimit.Window),
			zap.String("upstream", client.Endpoint()),
			zap.Bool("debug", cfg.Debug.Enabled))

		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}
		hm.RegisterChecker("upstream_credential", upstreamHealthChecker{client: client})
		if backend.ping != nil {
			hm.RegisterChecker("window_store", handlers.CheckerFunc(backend.ping))
		}

		srv := server.New(server.Options{
			Host:          cfg.Server.Host,
			Port:          cfg.Server.Port,
			ReadTimeout:   cfg.Server.ReadTimeout,
			WriteTimeout:  cfg.Server.WriteTimeout,
			IdleTimeout:   cfg.Server.IdleTimeout,
			Pipeline:      pipeline,
			Gate:          proxyGate,
			ClientKeys:    resolver,
			SessionCookie: cfg.Gate.SessionCookie,
			MaxBodyBytes:  cfg.Server.MaxBodyBytes,
			AdminToken:    cfg.Server.AdminToken,
			DisableHealth: !cfg.Health.Enabled,
		})

		sweepCtx, stopSweep := context.WithCancel(context.Background())
		if backend.sweep != nil {
			go sweepWindows(sweepCtx, backend, cfg.RateLimit.Window)
		}

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Register graceful shutdown handlers (LIFO order - last registered, first executed)
		// Handler 1: Flush logger (executed last)
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		// Handler 2: Stop the metrics exporter
		signals.OnShutdown(func(ctx context.Context) error {
			if err := observability.ShutdownMetrics(); err != nil {
				logger.Warn("Metrics exporter stop failed", zap.Error(err))
			}
			return nil
		})

		// Handler 3: Close the window store
		signals.OnShutdown(func(ctx context.Context) error {
			stopSweep()
			if err := backend.Close(); err != nil {
				logger.Warn("Window store close failed", zap.Error(err))
			}
			return nil
		})

		// Handler 4: Shutdown HTTP server (executed first)
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: re-reading config file")

			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					logger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				logger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			if _, err := loadConfig(); err != nil {
				logger.Warn("Reloaded config is invalid; keeping running configuration", zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			logger.Info("Configuration re-read; restart to apply pipeline changes",
				zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		// Enable double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			logger.Info("Starting HTTP server...",
				zap.String("host", cfg.Server.Host),
				zap.Int("port", cfg.Server.Port))
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(ctx); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			stopSweep()
			return errwrap.WrapInternal(ctx, err, "server error")
		}

		return nil
	},
}

// buildPipeline assembles the gate, limiter and upstream client from cfg.
func buildPipeline(cfg *config.Config, backend windowBackend) (*engine.Pipeline, *gate.Gate, *engine.ClientKeyResolver, *upstream.Client, error) {
	logger := observability.ServerLogger

	secret := []byte(cfg.Gate.TokenSecret)
	if len(secret) == 0 {
		generated, err := gate.GenerateSecret()
		if err != nil {
			return nil, nil, nil, nil, err
		}
		secret = generated
		if logger != nil {
			logger.Warn("gate.token_secret not set; using a per-process secret (nonces will not survive restarts or span instances)")
		}
	}

	tokens, err := gate.NewTokenIssuer(secret, cfg.Gate.TokenTTL)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	proxyGate := &gate.Gate{
		Tokens:         tokens,
		AllowInsecure:  cfg.Debug.Enabled,
		AllowedOrigins: cfg.Gate.AllowedOrigins,
	}
	if logger != nil {
		if cfg.Debug.Enabled {
			logger.Warn("debug.enabled is set; submissions over plain HTTP are accepted")
		}
		if len(cfg.Gate.AllowedOrigins) == 0 {
			logger.Warn("gate.allowed_origins is empty; every origin is accepted")
		}
	}

	resolver, err := engine.NewClientKeyResolver(cfg.Gate.TrustedProxies, cfg.Gate.ClientIPHeaders, cfg.Gate.TrustAllProxies)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if cfg.Gate.TrustAllProxies && logger != nil {
		logger.Warn("gate.trust_all_proxies is set; forwarded client addresses are trusted from any peer")
	}

	client := &upstream.Client{
		BaseURL: cfg.Upstream.BaseURL,
		Path:    cfg.Upstream.Path,
		Token:   cfg.Upstream.Token,
		Version: versionInfo.Version,
		SiteURL: cfg.Upstream.SiteURL,
		Timeout: cfg.Upstream.Timeout,
	}
	if !client.HasCredential() && logger != nil {
		logger.Warn("upstream token not configured; submissions will fail until it is set")
	}

	pipeline := &engine.Pipeline{
		Gate: proxyGate,
		Limiter: &engine.RateLimiter{
			Store:  backend,
			Limit:  cfg.RateLimit.Limit,
			Window: cfg.RateLimit.Window,
		},
		Upstream: client,
		Logger:   logger,
	}
	return pipeline, proxyGate, resolver, client, nil
}

// sweepWindows drops expired windows once per window length.
func sweepWindows(ctx context.Context, backend *openedBackend, every time.Duration) {
	if every <= 0 {
		every = engine.DefaultRateWindow
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := backend.sweep(ctx, now.UTC())
			if err != nil {
				observability.ServerLogger.Warn("Window sweep failed", zap.String("window_store", backend.name), zap.Error(err))
				continue
			}
			if removed > 0 {
				observability.ServerLogger.Debug("Swept expired windows",
					zap.String("window_store", backend.name),
					zap.Int64("removed", removed))
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
