// Package sessions lists local Codex and Claude Code transcripts so a notes
// entry can be keyed by the session that produced it.
package sessions

import (
	"fmt"
	"strings"
	"time"
)

const (
	ToolAll    = "all"
	ToolCodex  = "codex"
	ToolClaude = "claude"
)

// summaryChars caps the prompt snippet shown per row.
const summaryChars = 140

// Row is one session found on disk.
type Row struct {
	Tool      string    `json:"tool"`
	SessionID string    `json:"session_id"`
	Start     time.Time `json:"start,omitempty"`
	End       time.Time `json:"end,omitempty"`
	Branch    string    `json:"branch,omitempty"`
	Cwd       string    `json:"cwd,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Source    string    `json:"source"`
	ModTime   time.Time `json:"-"`
}

// LastActive is the end time, falling back to the start time.
func (r Row) LastActive() time.Time {
	if !r.End.IsZero() {
		return r.End
	}
	return r.Start
}

// ParseTool validates a --tool filter value.
func ParseTool(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", ToolAll:
		return ToolAll, nil
	case ToolCodex:
		return ToolCodex, nil
	case ToolClaude:
		return ToolClaude, nil
	}
	return "", fmt.Errorf("unknown tool %q (want all, codex or claude)", s)
}

// HumanAge renders how long ago t was, e.g. "3h ago".
func HumanAge(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	if d < 0 {
		return "in future"
	}
	seconds := int(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24
	switch {
	case days > 0:
		return fmt.Sprintf("%dd ago", days)
	case hours > 0:
		return fmt.Sprintf("%dh ago", hours)
	case minutes > 0:
		return fmt.Sprintf("%dm ago", minutes)
	}
	return fmt.Sprintf("%ds ago", seconds)
}

// LocalStamp formats t in local time, "-" when unknown.
func LocalStamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTime reads ISO-8601 timestamps; values without an offset are UTC.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
