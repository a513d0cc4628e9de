package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/astrowidget/astroproxy/internal/output"
)

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rate windows",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		query := windowQueryFromFlags(cmd)
		if query.Validate() != nil {
			query.All = true
		}

		backend, err := openAdminBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer backend.Close() // nolint:errcheck // best-effort cleanup

		entries, err := backend.List(cmd.Context(), query)
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatWindows(output.WindowList{
			Backend: backend.name,
			Now:     time.Now().UTC(),
			Entries: entries,
		})
		if err != nil {
			return err
		}

		sink, err := openCommandSink(cmd, format, "rate-limit.list")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		return writeRendered(sink.writer, rendered)
	},
}

func init() {
	addWindowQueryFlags(rateLimitListCmd, "List")
	addOutputFlags(rateLimitListCmd)
}
