// Package output renders CLI results as tables, JSON, YAML or Markdown.
package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/astrowidget/astroproxy/internal/core"
	"github.com/astrowidget/astroproxy/internal/core/upstream"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// Extension returns the file extension used for format.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	case FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}

// WindowList is the result of `rate-limit list`.
type WindowList struct {
	Backend string             `json:"backend"`
	Now     time.Time          `json:"now"`
	Entries []core.WindowEntry `json:"entries"`
}

// ResetResult is the result of `rate-limit reset`.
type ResetResult struct {
	Backend string `json:"backend"`
	Matched int    `json:"matched"`
	Deleted int64  `json:"deleted"`
	DryRun  bool   `json:"dry_run"`
}

// Verdict is the result of checking one submission offline.
type Verdict struct {
	Valid   bool                    `json:"valid"`
	Field   string                  `json:"field,omitempty"`
	Error   string                  `json:"error,omitempty"`
	Request *core.NormalizedRequest `json:"request,omitempty"`
	Payload *upstream.Payload       `json:"payload,omitempty"`
}

// Formatter renders CLI results in one format.
type Formatter interface {
	FormatWindows(list WindowList) (string, error)
	FormatReset(result ResetResult) (string, error)
	FormatVerdict(v Verdict) (string, error)
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatYAML:
		return &YAMLFormatter{}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}
