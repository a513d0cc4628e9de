package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/astrowidget/astroproxy/internal/config"
	"github.com/astrowidget/astroproxy/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display version, runtime and effective configuration. Secrets are reported as set or not set.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		version := crucible.GetVersion()

		log.Info("=== astroproxy Environment Information ===")
		log.Info("")

		log.Info("Application:")
		log.Info("  Name:       " + config.AppName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("")

		log.Info("SSOT:")
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		log.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		log.Info("")

		cfg, err := loadConfig()
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		configFile := viper.ConfigFileUsed()
		if configFile == "" {
			configFile = config.DefaultConfigPath() + " (not found)"
		}

		log.Info("Server:")
		log.Info(fmt.Sprintf("  Listen:         %s:%d", cfg.Server.Host, cfg.Server.Port))
		log.Info(fmt.Sprintf("  Max Body:       %d bytes", cfg.Server.MaxBodyBytes))
		log.Info("  Admin Token:    " + setOrNot(cfg.Server.AdminToken))
		log.Info("  Log Level:      " + cfg.Logging.Level)
		log.Info(fmt.Sprintf("  Metrics:        %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port))
		log.Info(fmt.Sprintf("  Debug:          %t", cfg.Debug.Enabled))
		log.Info("  Config File:    " + configFile)
		log.Info("")

		log.Info("Upstream:")
		log.Info("  Endpoint:       " + strings.TrimRight(cfg.Upstream.BaseURL, "/") + cfg.Upstream.Path)
		log.Info("  Timeout:        " + cfg.Upstream.Timeout.String())
		log.Info("  Token:          " + setOrNot(cfg.Upstream.Token))
		log.Info("")

		log.Info("Gate:")
		log.Info(fmt.Sprintf("  Origins:        %v", cfg.Gate.AllowedOrigins))
		log.Info("  Token Secret:   " + setOrNot(cfg.Gate.TokenSecret))
		log.Info("  Token TTL:      " + cfg.Gate.TokenTTL.String())
		log.Info(fmt.Sprintf("  Proxies:        %v (trust all: %t)", cfg.Gate.TrustedProxies, cfg.Gate.TrustAllProxies))
		log.Info("")

		log.Info("Rate Limit:")
		log.Info(fmt.Sprintf("  Limit:          %d per %s", cfg.RateLimit.Limit, cfg.RateLimit.Window))
		log.Info("  Backend:        " + cfg.RateLimit.Backend)
		switch cfg.RateLimit.Backend {
		case backendRedis:
			log.Info("  Redis Addr:     " + cfg.Redis.Addr)
		case backendLibsql:
			if strings.TrimSpace(cfg.Store.URL) != "" {
				log.Info("  DB URL:         " + redactURL(cfg.Store.URL))
			} else {
				log.Info("  DB Path:        " + cfg.Store.Path)
			}
		}
		log.Info("")

		log.Info("=== End Environment Information ===")
	},
}

func setOrNot(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(not set)"
	}
	return "(set)"
}

// redactURL drops the query string, where libsql URLs carry auth tokens.
func redactURL(raw string) string {
	base, _, _ := strings.Cut(raw, "?")
	return base
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
