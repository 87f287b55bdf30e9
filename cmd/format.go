package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/cardsdata/formquery/pkg/query"
	"github.com/cardsdata/formquery/pkg/repository"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1).
			Margin(0, 0, 1, 0)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	summaryStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("32")).
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("32")).
			Padding(0, 1).
			Margin(0, 0, 1, 0)

	recordStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1).
			Margin(0, 0, 0, 2)

	pathStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	matchStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	noDataStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true).
			Margin(1, 0)
)

var labelCaser = cases.Title(language.English)

// formatNumber formats a number with K/M suffixes for readability
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	} else if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	} else {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// formatStats prints repository statistics.
func formatStats(w io.Writer, stats *repository.Stats) {
	fmt.Fprintln(w, titleStyle.Render("📊 Repository Statistics"))
	fmt.Fprintf(w, "Database: %s\n", stats.Path)
	fmt.Fprintf(w, "Size: %s\n", formatBytes(stats.SizeBytes))
	fmt.Fprintf(w, "Total nodes: %s\n", formatNumber(stats.Total))
	fmt.Fprintf(w, "Indexed nodes: %s\n", formatNumber(stats.FTSRows))

	if stats.Total == 0 {
		fmt.Fprintln(w, noDataStyle.Render("No nodes imported yet."))
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Nodes by type"))
	for _, typ := range stats.Types() {
		count := stats.ByType[typ]
		percentage := float64(count) / float64(stats.Total) * 100
		fmt.Fprintf(w, "  %-16s %8s (%.1f%%)\n", typ, formatNumber(count), percentage)
	}
}

// formatResponse prints one page of search results.
func formatResponse(w io.Writer, resp *query.Response) {
	if resp.TotalRows == 0 {
		fmt.Fprintln(w, noDataStyle.Render("No results."))
		return
	}

	summary := fmt.Sprintf("%d of %d rows", resp.ReturnedRows, resp.TotalRows)
	if resp.Offset > 0 {
		summary += fmt.Sprintf(" from offset %d", resp.Offset)
	}
	if resp.Req != "" {
		summary += " · " + resp.Req
	}
	fmt.Fprintln(w, summaryStyle.Render(summary))

	for _, rec := range resp.Rows {
		fmt.Fprintln(w, recordStyle.Render(formatRecord(rec)))
	}
}

func formatRecord(rec query.Record) string {
	fields := rec.Fields()

	var b strings.Builder
	path, _ := fields["@path"].(string)
	b.WriteString(pathStyle.Render(path))
	if typ, ok := fields["@type"].(string); ok {
		b.WriteString(" " + metaStyle.Render(typ))
	}

	if m := rec.Match; m != nil {
		label := "value"
		if m.IsNotes {
			label = "notes"
		}
		b.WriteString("\n")
		if m.Question != "" {
			b.WriteString(m.Question + ": ")
		}
		b.WriteString(m.Before + matchStyle.Render(m.Text) + m.After)
		b.WriteString(" " + metaStyle.Render("("+labelCaser.String(label)+")"))
	}

	var keys []string
	for k := range fields {
		if strings.HasPrefix(k, "@") || k == query.MatchKey {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s %s", headerStyle.Render(k+":"), formatValue(fields[k]))
	}
	return b.String()
}

func formatValue(v any) string {
	if values := query.StringsOf(v); len(values) > 1 {
		return strings.Join(values, ", ")
	}
	return fmt.Sprint(v)
}
