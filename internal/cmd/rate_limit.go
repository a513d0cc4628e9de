package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/astrowidget/astroproxy/internal/core"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Inspect and reset per-client rate windows",
	Long: `Inspect and reset per-client rate windows held in a shared store.

Only the redis and libsql backends can be managed here; memory windows live
inside the serving process.`,
}

// windowQueryFromFlags builds a query from --all, --key and --prefix.
func windowQueryFromFlags(cmd *cobra.Command) core.WindowQuery {
	all, _ := cmd.Flags().GetBool("all")
	key, _ := cmd.Flags().GetString("key")
	prefix, _ := cmd.Flags().GetString("prefix")
	return core.WindowQuery{
		All:    all,
		Key:    strings.TrimSpace(key),
		Prefix: strings.TrimSpace(prefix),
	}
}

func addWindowQueryFlags(cmd *cobra.Command, verb string) {
	cmd.Flags().Bool("all", false, verb+" every client window")
	cmd.Flags().String("key", "", verb+" a single client key (exact match)")
	cmd.Flags().String("prefix", "", verb+" client keys with a matching prefix")
}

func init() {
	rateLimitCmd.AddCommand(rateLimitListCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)
}
