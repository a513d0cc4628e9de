package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/astrowidget/astroproxy/internal/errors"
	"github.com/astrowidget/astroproxy/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long: `Check that the proxy could start with the current configuration: the config
validates, the upstream credential and token secret are set, and the
window store is reachable.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		logger.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		logger.Debug("Version check passed", zap.String("version", versionInfo.Version))

		cfg, err := loadConfig()
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration invalid", errwrap.WrapConfigInvalid(cmd.Context(), err, "configuration invalid"))
			return
		}
		logger.Info("✅ Configuration valid")

		if cfg.Upstream.Token == "" {
			logger.Warn("⚠️  Upstream token not set; submissions will be refused")
		} else {
			logger.Info("✅ Upstream token configured")
		}
		if cfg.Gate.TokenSecret == "" {
			logger.Warn("⚠️  gate.token_secret not set; nonces will not survive a restart")
		} else {
			logger.Info("✅ Token secret configured")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		backend, err := openWindowBackend(ctx, cfg)
		if err != nil {
			ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Window store unavailable", errwrap.WrapExternalService(ctx, err, "window store unavailable"))
			return
		}
		defer backend.Close() // nolint:errcheck // best-effort cleanup

		if backend.ping != nil {
			if err := backend.ping(ctx); err != nil {
				ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Window store unreachable", errwrap.WrapExternalService(ctx, err, "window store unreachable"))
				return
			}
		}
		logger.Info("✅ Window store reachable", zap.String("backend", backend.name))

		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
