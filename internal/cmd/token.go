package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/astrowidget/astroproxy/internal/config"
	"github.com/astrowidget/astroproxy/internal/core/gate"
)

var (
	tokenSession string
	tokenJSON    bool
	tokenValue   string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue and check widget nonces offline",
	Long: `Issue and check widget nonces with the configured gate.token_secret.

Useful for smoke tests against a running proxy and for debugging rejected
submissions. A nonce is bound to the session cookie value it was issued for.`,
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a nonce for a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := gateFromConfig()
		if err != nil {
			return err
		}

		token, expires, err := g.Issue(tokenSession)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if tokenJSON {
			return json.NewEncoder(out).Encode(map[string]any{
				"nonce":      token,
				"session":    tokenSession,
				"expires_at": expires.UTC().Format(time.RFC3339),
			})
		}
		_, err = fmt.Fprintln(out, token)
		return err
	},
}

var tokenVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check a nonce against a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := gateFromConfig()
		if err != nil {
			return err
		}
		if err := g.VerifyToken(tokenValue, tokenSession); err != nil {
			return fmt.Errorf("nonce rejected: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "nonce valid")
		return err
	},
}

// gateFromConfig builds a gate from the configured secret. A generated
// secret would make offline tokens useless, so one must be configured.
func gateFromConfig() (*gate.Gate, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newConfiguredGate(cfg)
}

func newConfiguredGate(cfg *config.Config) (*gate.Gate, error) {
	if cfg.Gate.TokenSecret == "" {
		return nil, errors.New("gate.token_secret is not set (ASTROPROXY_GATE_TOKEN_SECRET)")
	}
	tokens, err := gate.NewTokenIssuer([]byte(cfg.Gate.TokenSecret), cfg.Gate.TokenTTL)
	if err != nil {
		return nil, err
	}
	return &gate.Gate{Tokens: tokens, AllowedOrigins: cfg.Gate.AllowedOrigins}, nil
}

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenSession, "session", "", "session cookie value the nonce is bound to")
	tokenIssueCmd.Flags().BoolVar(&tokenJSON, "json", false, "print nonce, session and expiry as JSON")

	tokenVerifyCmd.Flags().StringVar(&tokenSession, "session", "", "session cookie value the nonce was issued for")
	tokenVerifyCmd.Flags().StringVar(&tokenValue, "nonce", "", "nonce to check")
	_ = tokenVerifyCmd.MarkFlagRequired("nonce")

	tokenCmd.AddCommand(tokenIssueCmd)
	tokenCmd.AddCommand(tokenVerifyCmd)
	rootCmd.AddCommand(tokenCmd)
}
