package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/astrowidget/astroproxy/internal/output"
)

var (
	rateLimitResetYes    bool
	rateLimitResetDryRun bool
)

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset stored rate windows",
	Long: `Reset stored rate windows so the selected clients start a fresh window
on their next submission.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		query := windowQueryFromFlags(cmd)
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !rateLimitResetYes && !rateLimitResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		backend, err := openAdminBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer backend.Close() // nolint:errcheck // best-effort cleanup

		matched, err := countWindows(cmd.Context(), backend, query)
		if err != nil {
			return err
		}

		result := output.ResetResult{
			Backend: backend.name,
			Matched: matched,
			DryRun:  rateLimitResetDryRun,
		}
		if !rateLimitResetDryRun {
			deleted, err := backend.Reset(cmd.Context(), query)
			if err != nil {
				return err
			}
			result.Deleted = deleted
		}

		rendered, err := output.NewFormatter(format).FormatReset(result)
		if err != nil {
			return err
		}

		sink, err := openCommandSink(cmd, format, "rate-limit.reset")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		return writeRendered(sink.writer, rendered)
	},
}

func init() {
	addWindowQueryFlags(rateLimitResetCmd, "Reset")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetYes, "yes", false, "Confirm destructive reset")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetDryRun, "dry-run", false, "Show what would be deleted")
	addOutputFlags(rateLimitResetCmd)
}
