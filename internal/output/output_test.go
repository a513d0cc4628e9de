package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/astrowidget/astroproxy/internal/core"
	"github.com/astrowidget/astroproxy/internal/core/upstream"
)

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("yml")
	require.NoError(t, err)
	require.Equal(t, FormatYAML, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func sampleWindows() WindowList {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return WindowList{
		Backend: "memory",
		Now:     start.Add(4 * time.Minute),
		Entries: []core.WindowEntry{
			{Key: "203.0.113.7", Window: core.RateWindow{Count: 3, WindowStart: start, ExpiresAt: start.Add(10 * time.Minute)}},
		},
	}
}

func sampleVerdict() Verdict {
	req := core.NormalizedRequest{
		Name:        "Ada Lovelace",
		Email:       "ada@example.com",
		BirthDate:   "1994-08-19",
		BirthTime:   "14:30:00",
		Timezone:    "UTC",
		Location:    "Atlanta",
		Lat:         core.Float(33.749),
		HouseSystem: "placidus",
		Language:    "en",
		ChartType:   "natal",
	}
	payload := upstream.BuildPayload(req)
	return Verdict{Valid: true, Request: &req, Payload: &payload}
}

func TestTableFormatterWindows(t *testing.T) {
	out, err := NewFormatter(FormatTable).FormatWindows(sampleWindows())
	require.NoError(t, err)
	require.Contains(t, out, "203.0.113.7")
	require.Contains(t, out, "6m0s")
	require.Contains(t, strings.ToLower(out), "1 window(s) in memory")
}

func TestJSONFormatterWindows(t *testing.T) {
	out, err := NewFormatter(FormatJSON).FormatWindows(sampleWindows())
	require.NoError(t, err)

	var decoded struct {
		Backend string `json:"backend"`
		Entries []struct {
			Key    string `json:"key"`
			Window struct {
				Count int `json:"count"`
			} `json:"window"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Equal(t, "memory", decoded.Backend)
	require.Len(t, decoded.Entries, 1)
	require.Equal(t, 3, decoded.Entries[0].Window.Count)
}

func TestYAMLFormatterVerdictKeepsJSONNames(t *testing.T) {
	out, err := NewFormatter(FormatYAML).FormatVerdict(sampleVerdict())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	require.Equal(t, true, decoded["valid"])

	request := decoded["request"].(map[string]any)
	require.Equal(t, "14:30:00", request["birth_time"])
	require.Nil(t, request["lng"])
}

func TestTableFormatterRejectedVerdict(t *testing.T) {
	out, err := NewFormatter(FormatTable).FormatVerdict(Verdict{Field: "lat", Error: "Latitude out of range"})
	require.NoError(t, err)
	require.Contains(t, out, "rejected")
	require.Contains(t, out, "Latitude out of range")
}

func TestMarkdownFormatter(t *testing.T) {
	out, err := NewFormatter(FormatMarkdown).FormatVerdict(sampleVerdict())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(strings.ToLower(out), "| field | value |"), out)
	require.Contains(t, out, "| lng | - |")

	line, err := NewFormatter(FormatMarkdown).FormatReset(ResetResult{Matched: 2, DryRun: true})
	require.NoError(t, err)
	require.Equal(t, "Would delete 2 rate limit window(s)", line)
}

func TestFormatExtension(t *testing.T) {
	require.Equal(t, "json", FormatJSON.Extension())
	require.Equal(t, "yaml", FormatYAML.Extension())
	require.Equal(t, "md", FormatMarkdown.Extension())
	require.Equal(t, "txt", FormatTable.Extension())
}
