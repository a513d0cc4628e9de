package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/astrowidget/astroproxy/internal/core"
	"github.com/astrowidget/astroproxy/internal/core/intake"
	"github.com/astrowidget/astroproxy/internal/core/upstream"
	"github.com/astrowidget/astroproxy/internal/output"
)

var (
	validateFile      string
	validateListZones bool
)

// errInvalidSubmission makes the command exit non-zero after printing
// the verdict.
var errInvalidSubmission = errors.New("submission rejected")

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Normalize and validate a submission without sending it",
	Long: `Run a JSON submission through normalization and validation, exactly as the
proxy would, and print the verdict with the upstream payload it would send.

Nothing is sent upstream and no nonce is required.`,
	Example: `  astroproxy validate --file submission.json
  cat submission.json | astroproxy validate --file - --output-format json
  astroproxy validate --list-timezones`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if validateListZones {
			return writeRendered(cmd.OutOrStdout(), strings.Join(core.Timezones(), "\n"))
		}

		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		reader, closeInput, err := openSubmission(cmd, validateFile)
		if err != nil {
			return err
		}
		defer closeInput() // nolint:errcheck // best-effort cleanup

		sub, err := intake.DecodeSubmission(reader)
		if err != nil {
			return err
		}
		verdict := checkSubmission(sub)

		rendered, err := output.NewFormatter(format).FormatVerdict(verdict)
		if err != nil {
			return err
		}

		sink, err := openCommandSink(cmd, format, verdictStem(validateFile))
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if err := writeRendered(sink.writer, rendered); err != nil {
			return err
		}
		if !verdict.Valid {
			return errInvalidSubmission
		}
		return nil
	},
}

// checkSubmission runs sub through the intake stages and describes the result.
func checkSubmission(sub core.Submission) output.Verdict {
	req, err := intake.Process(sub)
	if err != nil {
		verdict := output.Verdict{Error: err.Error()}
		var verr *intake.ValidationError
		if errors.As(err, &verr) {
			verdict.Field = verr.Field
		}
		return verdict
	}

	payload := upstream.BuildPayload(req)
	return output.Verdict{Valid: true, Request: &req, Payload: &payload}
}

func openSubmission(cmd *cobra.Command, path string) (io.Reader, func() error, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "-" {
		return cmd.InOrStdin(), func() error { return nil }, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open submission: %w", err)
	}
	return file, file.Close, nil
}

func verdictStem(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path == "-" {
		return "validate.stdin"
	}
	base := filepath.Base(path)
	return "validate." + strings.TrimSuffix(base, filepath.Ext(base))
}

func init() {
	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "-", "submission JSON file (- for stdin)")
	validateCmd.Flags().BoolVar(&validateListZones, "list-timezones", false, "print the accepted timezone identifiers and exit")
	addOutputFlags(validateCmd)
	rootCmd.AddCommand(validateCmd)
}
