package sessions

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var renderNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func sampleRows() []Row {
	return []Row{
		{
			Tool:      ToolClaude,
			SessionID: "claude-1",
			Start:     renderNow.Add(-5 * time.Hour),
			End:       renderNow.Add(-2 * time.Hour),
			Branch:    "feature/notes",
			Summary:   "use a | b in the parser",
		},
		{
			Tool:      ToolCodex,
			SessionID: "codex-a",
			Start:     renderNow.Add(-50 * time.Hour),
		},
	}
}

func TestRenderMarkdown(t *testing.T) {
	out := RenderMarkdown(sampleRows(), renderNow)

	lines := strings.Split(out, "\n")
	if lines[0] != "| # | Tool | Last active | Start | Branch | Session ID | Summary |" {
		t.Errorf("header = %q", lines[0])
	}
	for _, want := range []string{
		"| 1 | `claude` | 2h ago |",
		"`feature/notes` | `claude-1` | use a \\| b in the parser |",
		"| 2 | `codex` | 2d ago |",
		"`-` | `codex-a` | - |",
		"Pick sessions by ID:",
		"`codex resume <session-id>`",
		"`claude -r <session-id>`",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderMarkdown() missing %q\n%s", want, out)
		}
	}
}

func TestRenderMarkdown_Empty(t *testing.T) {
	out := RenderMarkdown(nil, renderNow)
	if !strings.HasPrefix(out, "| # | Tool |") || !strings.Contains(out, "Pick sessions by ID:") {
		t.Errorf("RenderMarkdown(nil) = %q", out)
	}
}

func TestRenderTable(t *testing.T) {
	if got := RenderTable(nil, renderNow); got != "No sessions found.\n" {
		t.Errorf("RenderTable(nil) = %q", got)
	}

	rows := sampleRows()
	rows[0].Summary = strings.Repeat("x", 200)
	out := RenderTable(rows, renderNow)
	for _, want := range []string{"SESSION ID", "claude-1", "codex-a", "2h ago", "2d ago", "..."} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderTable() missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, strings.Repeat("x", tableSummaryWidth)) {
		t.Error("RenderTable() should truncate long summaries")
	}
}

func TestTruncateWidth(t *testing.T) {
	if got := truncateWidth("short", 10); got != "short" {
		t.Errorf("truncateWidth(short) = %q", got)
	}
	got := truncateWidth(strings.Repeat("ab", 20), 10)
	if got != "abababa..." {
		t.Errorf("truncateWidth() = %q", got)
	}
}

func TestHumanAge(t *testing.T) {
	tests := []struct {
		t    time.Time
		want string
	}{
		{t: time.Time{}, want: "-"},
		{t: renderNow.Add(time.Minute), want: "in future"},
		{t: renderNow.Add(-42 * time.Second), want: "42s ago"},
		{t: renderNow.Add(-3 * time.Minute), want: "3m ago"},
		{t: renderNow.Add(-3*time.Hour - 59*time.Minute), want: "3h ago"},
		{t: renderNow.Add(-49 * time.Hour), want: "2d ago"},
	}
	for _, tt := range tests {
		if got := HumanAge(tt.t, renderNow); got != tt.want {
			t.Errorf("HumanAge(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}

func TestParseTool(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: ToolAll},
		{in: "ALL", want: ToolAll},
		{in: " codex ", want: ToolCodex},
		{in: "Claude", want: ToolClaude},
		{in: "cursor", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseTool(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseTool(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "2026-03-01T10:00:00Z", want: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		{in: "2026-03-01T10:00:00.250+02:00", want: time.Date(2026, 3, 1, 8, 0, 0, 250e6, time.UTC)},
		{in: "2026-03-01T10:00:00", want: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		{in: "2026-03-01 10:00:00", want: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		{in: "yesterday", want: time.Time{}},
		{in: "", want: time.Time{}},
	}
	for _, tt := range tests {
		if got := parseTime(tt.in); !got.Equal(tt.want) {
			t.Errorf("parseTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFirstNonTrivialLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Fix the bug", want: "Fix the bug"},
		{in: "\n\n  Fix the bug  \nmore", want: "Fix the bug"},
		{in: "# AGENTS.md instructions for /x\n<INSTRUCTIONS>\n```\nreal prompt", want: "real prompt"},
		{in: "<environment_context>\n  <cwd>/x</cwd>", want: "<cwd>/x</cwd>"},
		{in: "<environment_context>", want: "<environment_context>"},
	}
	for _, tt := range tests {
		if got := firstNonTrivialLine(tt.in); got != tt.want {
			t.Errorf("firstNonTrivialLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLastLine(t *testing.T) {
	dir := t.TempDir()

	long := strings.Repeat("a", 5000)
	path := filepath.Join(dir, "t.jsonl")
	if err := os.WriteFile(path, []byte("first\n"+long+"\nlast line\n\n\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := string(lastLine(path)); got != "last line" {
		t.Errorf("lastLine() = %q", got)
	}

	path = filepath.Join(dir, "one.jsonl")
	if err := os.WriteFile(path, []byte(long), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := string(lastLine(path)); got != long {
		t.Errorf("lastLine() single line len = %d", len(got))
	}

	if got := lastLine(filepath.Join(dir, "missing")); got != nil {
		t.Errorf("lastLine(missing) = %q", got)
	}
}
