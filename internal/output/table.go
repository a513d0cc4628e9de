package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

func (f *TableFormatter) FormatWindows(list WindowList) (string, error) {
	t := windowTable(list)
	t.SetStyle(table.StyleRounded)
	return t.Render(), nil
}

func (f *TableFormatter) FormatReset(result ResetResult) (string, error) {
	return resetLine(result), nil
}

func (f *TableFormatter) FormatVerdict(v Verdict) (string, error) {
	t := verdictTable(v)
	t.SetStyle(table.StyleRounded)
	return t.Render(), nil
}

func windowTable(list WindowList) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Client", "Count", "Window Start", "Expires", "Resets In"})
	for _, entry := range list.Entries {
		w := entry.Window
		t.AppendRow(table.Row{
			entry.Key,
			w.Count,
			w.WindowStart.UTC().Format(time.RFC3339),
			w.ExpiresAt.UTC().Format(time.RFC3339),
			resetsIn(w.ExpiresAt, list.Now),
		})
	}
	footer := fmt.Sprintf("%d window(s)", len(list.Entries))
	if list.Backend != "" {
		footer += " in " + list.Backend
	}
	t.AppendFooter(table.Row{footer, "", "", "", ""})
	return t
}

func verdictTable(v Verdict) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Field", "Value"})
	if !v.Valid {
		t.AppendRow(table.Row{"status", "rejected"})
		if v.Field != "" {
			t.AppendRow(table.Row{"field", v.Field})
		}
		t.AppendRow(table.Row{"error", v.Error})
		return t
	}

	t.AppendRow(table.Row{"status", "valid"})
	if r := v.Request; r != nil {
		t.AppendRows([]table.Row{
			{"name", r.Name},
			{"email", r.Email},
			{"birth_date", r.BirthDate},
			{"birth_time", r.BirthTime},
			{"timezone", r.Timezone},
			{"location", r.Location},
			{"lat", orDash(r.Lat.String())},
			{"lng", orDash(r.Lng.String())},
			{"house_system", r.HouseSystem},
			{"language", r.Language},
			{"type", r.ChartType},
		})
	}
	return t
}

func resetLine(result ResetResult) string {
	if result.DryRun {
		return fmt.Sprintf("Would delete %d rate limit window(s)", result.Matched)
	}
	return fmt.Sprintf("Deleted %d/%d rate limit window(s)", result.Deleted, result.Matched)
}

func resetsIn(expiresAt, now time.Time) string {
	if now.IsZero() {
		return "-"
	}
	d := expiresAt.Sub(now)
	if d <= 0 {
		return "expired"
	}
	return d.Truncate(time.Second).String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
