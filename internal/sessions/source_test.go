package sessions

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"

	"github.com/cexll/session-notes/internal/redact"
)

type fixture struct {
	project string
	other   string
	codex   string
	claude  string
	src     *Source
}

func writeTranscript(t *testing.T, path string, mod time.Time, lines ...string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{
		project: filepath.Join(base, "work", "app"),
		other:   filepath.Join(base, "work", "other"),
		codex:   filepath.Join(base, "codex"),
		claude:  filepath.Join(base, "claude"),
	}
	if _, err := git.PlainInit(f.project, false); err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(f.project, "internal", "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(f.other, 0o755); err != nil {
		t.Fatal(err)
	}
	f.src = &Source{CodexHome: f.codex, ClaudeHome: f.claude, Scan: 250, Redactor: redact.New("/home/dev")}

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Codex: two sessions in the project, one elsewhere.
	writeTranscript(t, filepath.Join(f.codex, "sessions", "2026", "03", "01", "rollout-a.jsonl"), day.Add(1*time.Hour),
		`{"timestamp":"2026-03-01T00:00:00Z","type":"session_meta","payload":{"id":"codex-a","cwd":"`+f.project+`","timestamp":"2026-03-01T00:00:00Z"}}`,
		`{"timestamp":"2026-03-01T00:00:01Z","type":"response_item","payload":{"type":"message","role":"developer","content":[{"type":"input_text","text":"<permissions instructions>"}]}}`,
		`{"timestamp":"2026-03-01T00:00:02Z","type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"# AGENTS.md instructions\n\nFix the flaky parser test token=sk-abcdefghijklmnop1234"}]}}`,
		`{"timestamp":"2026-03-01T00:50:00Z","type":"event_msg","payload":{}}`,
	)
	writeTranscript(t, filepath.Join(f.codex, "sessions", "2026", "03", "01", "rollout-b.jsonl"), day.Add(3*time.Hour),
		`{"timestamp":"2026-03-01T02:00:00Z","type":"session_meta","payload":{"id":"codex-b","cwd":"`+filepath.Join(f.project, "internal", "pkg")+`","timestamp":"2026-03-01T02:00:00Z"}}`,
		`{"timestamp":"2026-03-01T02:59:00Z","type":"event_msg","payload":{}}`,
	)
	writeTranscript(t, filepath.Join(f.codex, "sessions", "2026", "03", "01", "rollout-c.jsonl"), day.Add(5*time.Hour),
		`{"timestamp":"2026-03-01T04:00:00Z","type":"session_meta","payload":{"id":"codex-elsewhere","cwd":"`+f.other+`"}}`,
	)
	writeTranscript(t, filepath.Join(f.codex, "sessions", "broken.jsonl"), day.Add(6*time.Hour), `not json`)

	// Claude: one session split over two files, plus a sidechain in another project.
	projectDir := filepath.Join(f.claude, "projects", claudeProjectKey(f.project))
	writeTranscript(t, filepath.Join(projectDir, "one.jsonl"), day.Add(2*time.Hour),
		`{"sessionId":"claude-1","cwd":"`+f.project+`","gitBranch":"feature/notes","timestamp":"2026-03-01T01:00:00Z","type":"user","message":{"role":"user","content":"Add   the notes comment\nsecond line"}}`,
		`{"sessionId":"claude-1","timestamp":"2026-03-01T01:30:00Z","type":"assistant"}`,
	)
	writeTranscript(t, filepath.Join(projectDir, "two.jsonl"), day.Add(4*time.Hour),
		`{"sessionId":"claude-1","cwd":"`+f.project+`","timestamp":"2026-03-01T00:30:00Z","type":"summary"}`,
		`{"sessionId":"claude-1","timestamp":"2026-03-01T03:45:00Z","type":"assistant"}`,
	)
	writeTranscript(t, filepath.Join(f.claude, "projects", claudeProjectKey(f.other), "x.jsonl"), day.Add(7*time.Hour),
		`{"sessionId":"claude-elsewhere","cwd":"`+f.other+`","timestamp":"2026-03-01T06:00:00Z"}`,
	)
	return f
}

func TestList(t *testing.T) {
	f := newFixture(t)

	rows, err := f.src.List(filepath.Join(f.project, "internal"), ToolAll, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	var ids []string
	for _, r := range rows {
		ids = append(ids, r.Tool+"/"+r.SessionID)
	}
	want := "claude/claude-1,codex/codex-b,codex/codex-a"
	if strings.Join(ids, ",") != want {
		t.Fatalf("List() = %v, want %s", ids, want)
	}

	claude := rows[0]
	if !claude.Start.Equal(time.Date(2026, 3, 1, 0, 30, 0, 0, time.UTC)) || !claude.End.Equal(time.Date(2026, 3, 1, 3, 45, 0, 0, time.UTC)) {
		t.Errorf("claude span = %v .. %v, want earliest start and latest end", claude.Start, claude.End)
	}
	if claude.Branch != "feature/notes" || claude.Summary != "Add   the notes comment" {
		t.Errorf("claude row = %+v", claude)
	}

	codexA := rows[2]
	if codexA.Summary != "Fix the flaky parser test token=[REDACTED_API_KEY]" {
		t.Errorf("codex summary = %q", codexA.Summary)
	}
	if !codexA.End.Equal(time.Date(2026, 3, 1, 0, 50, 0, 0, time.UTC)) {
		t.Errorf("codex end = %v", codexA.End)
	}
	if rows[1].Summary != "" {
		t.Errorf("session without user message should have no summary, got %q", rows[1].Summary)
	}
}

func TestList_ToolFilterAndLimit(t *testing.T) {
	f := newFixture(t)

	rows, err := f.src.List(f.project, ToolCodex, 1)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(rows) != 1 || rows[0].SessionID != "codex-b" {
		t.Fatalf("List(codex, 1) = %+v", rows)
	}

	rows, _ = f.src.List(f.project, ToolClaude, 0)
	if len(rows) != 1 || rows[0].SessionID != "claude-1" {
		t.Fatalf("List(claude) = %+v", rows)
	}

	if _, err := f.src.List(f.project, "cursor", 0); err == nil {
		t.Error("List() with unknown tool should fail")
	}
}

func TestList_ClaudeFallsBackToAllProjects(t *testing.T) {
	f := newFixture(t)
	// Move the project's transcripts under a directory name that does not
	// match the project key.
	from := filepath.Join(f.claude, "projects", claudeProjectKey(f.project))
	if err := os.Rename(from, filepath.Join(f.claude, "projects", "renamed")); err != nil {
		t.Fatal(err)
	}

	rows, err := f.src.List(f.project, ToolClaude, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(rows) != 1 || rows[0].SessionID != "claude-1" {
		t.Fatalf("List() = %+v", rows)
	}
}

func TestList_ScanCap(t *testing.T) {
	f := newFixture(t)
	f.src.Scan = 2

	rows, _ := f.src.List(f.project, ToolCodex, 0)
	// The two newest codex files are broken.jsonl and the foreign session.
	if len(rows) != 0 {
		t.Fatalf("List() = %+v, want none within the scan window", rows)
	}
}

func TestGuess(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		tool    string
		project string
		want    string
		wantErr bool
	}{
		{name: "newest codex in project", tool: ToolCodex, project: f.project, want: "codex-b"},
		{name: "claude newest file", tool: ToolClaude, project: filepath.Join(f.project, "internal"), want: "claude-1"},
		{name: "other project", tool: ToolCodex, project: f.other, want: "codex-elsewhere"},
		{name: "unknown tool", tool: "unknown", project: f.project, wantErr: true},
		{name: "no transcripts", tool: ToolCodex, project: t.TempDir(), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.src.Guess(tt.tool, tt.project)
			if tt.wantErr {
				if !errors.Is(err, ErrNoSession) {
					t.Fatalf("Guess() error = %v, want ErrNoSession", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("Guess() = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestGuess_MissingHomes(t *testing.T) {
	src := &Source{CodexHome: filepath.Join(t.TempDir(), "nope"), ClaudeHome: filepath.Join(t.TempDir(), "nope")}
	for _, tool := range []string{ToolCodex, ToolClaude} {
		if _, err := src.Guess(tool, t.TempDir()); !errors.Is(err, ErrNoSession) {
			t.Errorf("Guess(%s) error = %v, want ErrNoSession", tool, err)
		}
	}
}

func TestWithin(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		cwd  string
		want bool
	}{
		{cwd: root, want: true},
		{cwd: filepath.Join(root, "a", "b"), want: true},
		{cwd: root + "-sibling", want: false},
		{cwd: filepath.Dir(root), want: false},
		{cwd: "", want: false},
	}
	for _, tt := range tests {
		if got := within(tt.cwd, resolvePath(root)); got != tt.want {
			t.Errorf("within(%q) = %v, want %v", tt.cwd, got, tt.want)
		}
	}
}

func TestProjectRoot(t *testing.T) {
	f := newFixture(t)
	if got := ProjectRoot(filepath.Join(f.project, "internal", "pkg")); got != resolvePath(f.project) {
		t.Errorf("ProjectRoot() = %q, want git top-level %q", got, f.project)
	}
	if got := ProjectRoot(f.other); got != resolvePath(f.other) {
		t.Errorf("ProjectRoot() outside git = %q, want %q", got, f.other)
	}
}
