package sessions

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const tableSummaryWidth = 60

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// RenderMarkdown formats rows as a markdown table suitable for pasting into
// a chat, followed by resume hints.
func RenderMarkdown(rows []Row, now time.Time) string {
	var b strings.Builder
	b.WriteString("| # | Tool | Last active | Start | Branch | Session ID | Summary |\n")
	b.WriteString("| -: | --- | --- | --- | --- | --- | --- |\n")
	for i, r := range rows {
		summary := strings.ReplaceAll(orDash(r.Summary), "|", `\|`)
		fmt.Fprintf(&b, "| %d | `%s` | %s | `%s` | `%s` | `%s` | %s |\n",
			i+1, r.Tool, HumanAge(r.LastActive(), now), LocalStamp(r.Start), orDash(r.Branch), r.SessionID, summary)
	}
	b.WriteString("\nPick sessions by ID:\n")
	b.WriteString("- Codex: `codex resume <session-id>`\n")
	b.WriteString("- Claude Code: `claude -r <session-id>`\n")
	return b.String()
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = cellStyle.Foreground(lipgloss.Color("245"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// RenderTable formats rows for a terminal.
func RenderTable(rows []Row, now time.Time) string {
	if len(rows) == 0 {
		return "No sessions found.\n"
	}

	data := make([][]string, 0, len(rows))
	for i, r := range rows {
		data = append(data, []string{
			fmt.Sprintf("%d", i+1),
			r.Tool,
			HumanAge(r.LastActive(), now),
			LocalStamp(r.Start),
			orDash(r.Branch),
			r.SessionID,
			truncateWidth(orDash(r.Summary), tableSummaryWidth),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("#", "TOOL", "LAST ACTIVE", "START", "BRANCH", "SESSION ID", "SUMMARY").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 2 || col == 3:
				return mutedStyle
			}
			return cellStyle
		})
	return t.Render() + "\n"
}

// truncateWidth shortens s to width terminal columns.
func truncateWidth(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+3 > width {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
