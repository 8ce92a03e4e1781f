package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cexll/session-notes/internal/app"
	"github.com/cexll/session-notes/internal/config"
	"github.com/cexll/session-notes/internal/github"
	ghtesting "github.com/cexll/session-notes/internal/github/testing"
	"github.com/cexll/session-notes/internal/notes"
)

func setupTools(t *testing.T) (*notesTools, *ghtesting.Server) {
	t.Helper()
	srv := ghtesting.NewServer("acme", "app")
	t.Cleanup(srv.Close)
	srv.SetPR(ghtesting.PR{Number: 7, BaseRef: "main", HeadSHA: "1111111aaaa", Branch: "feature/notes", Additions: 4, ChangedFiles: 1, Commits: 2})
	srv.SetFiles(ghtesting.File{Filename: "internal/a.go", Additions: 4})

	home := t.TempDir()
	cfg := &config.Config{
		GitHub: config.GitHubConfig{Token: "ghp_test", APIURL: srv.BaseURL()},
		Notes:  config.NotesConfig{MaxBodyChars: 60000, MaxAttempts: 3, Generator: "session-notes"},
		Sessions: config.SessionsConfig{
			CodexHome:  filepath.Join(home, "codex"),
			ClaudeHome: filepath.Join(home, "claude"),
			Scan:       250,
			Limit:      15,
		},
	}
	a := &app.App{Config: cfg, Runner: github.NewMockCommandRunner(), Version: "v0.0.0-test"}
	tools := newNotesTools(a)
	dir := t.TempDir()
	tools.getwd = func() (string, error) { return dir, nil }
	tools.now = func() time.Time { return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) }
	return tools, srv
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) != 1 {
		t.Fatalf("result = %+v, want one content item", res)
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T, want *mcp.TextContent", res.Content[0])
	}
	return text.Text
}

func TestHandleUpsertNotes_CreatesThenUpdates(t *testing.T) {
	tools, srv := setupTools(t)
	ctx := context.Background()

	params := UpsertNotesParams{
		Repo:      "acme/app",
		PR:        "7",
		Tool:      "codex",
		SessionID: "s-1",
		Payload:   map[string]any{"intent": "Teach the parser about tabs"},
	}
	res, _, err := tools.HandleUpsertNotes(ctx, nil, params)
	if err != nil {
		t.Fatalf("HandleUpsertNotes error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if text := resultText(t, res); !strings.HasPrefix(text, "Created session notes on acme/app#7 (rev 1)") {
		t.Errorf("text = %q", text)
	}

	params.Payload = map[string]any{"intent": "Second pass"}
	res, _, err = tools.HandleUpsertNotes(ctx, nil, params)
	if err != nil || res.IsError {
		t.Fatalf("second upsert = %+v, %v", res, err)
	}
	if text := resultText(t, res); !strings.Contains(text, "Updated session notes on acme/app#7 (rev 2") {
		t.Errorf("text = %q", text)
	}

	bodies := srv.Bodies()
	if len(bodies) != 1 {
		t.Fatalf("comments = %d, want 1", len(bodies))
	}
	if !strings.Contains(bodies[0], "Second pass") || strings.Contains(bodies[0], "Teach the parser about tabs") {
		t.Errorf("body did not replace the session entry:\n%s", bodies[0])
	}
}

func TestHandleUpsertNotes_DryRun(t *testing.T) {
	tools, srv := setupTools(t)

	res, _, err := tools.HandleUpsertNotes(context.Background(), nil, UpsertNotesParams{
		Repo:      "acme/app",
		PR:        "7",
		Tool:      "claude",
		SessionID: "c-1",
		Payload:   map[string]any{"intent": "Preview only", "hotspots": map[string]any{"bad": 1}},
		DryRun:    true,
	})
	if err != nil || res.IsError {
		t.Fatalf("dry run = %+v, %v", res, err)
	}
	text := resultText(t, res)
	if !notes.HasMarker(text) || !strings.Contains(text, "Preview only") {
		t.Errorf("dry run text = %q", text)
	}
	if !strings.Contains(text, "\nwarning: ") {
		t.Errorf("dry run text should carry payload warnings: %q", text)
	}
	if got := len(srv.Bodies()); got != 0 {
		t.Errorf("dry run wrote %d comments", got)
	}
}

func TestHandleUpsertNotes_InvalidParams(t *testing.T) {
	tools, _ := setupTools(t)

	tests := []struct {
		name   string
		params UpsertNotesParams
		want   string
	}{
		{name: "missing payload", params: UpsertNotesParams{Repo: "acme/app", PR: "7"}, want: "payload is required"},
		{name: "bad tool", params: UpsertNotesParams{Repo: "acme/app", PR: "7", Tool: "cursor", Payload: map[string]any{}}, want: "invalid tool"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tools.HandleUpsertNotes(context.Background(), nil, tt.params)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestHandleUpsertNotes_GitHubFailureIsToolError(t *testing.T) {
	tools, srv := setupTools(t)
	srv.FailOn("create_comment", 500)

	res, _, err := tools.HandleUpsertNotes(context.Background(), nil, UpsertNotesParams{
		Repo:      "acme/app",
		PR:        "7",
		Tool:      "codex",
		SessionID: "s-1",
		Payload:   map[string]any{"intent": "x"},
	})
	if err != nil {
		t.Fatalf("HandleUpsertNotes error = %v, want tool error result", err)
	}
	if !res.IsError || !strings.HasPrefix(resultText(t, res), "Failed to update session notes") {
		t.Fatalf("result = %+v", res)
	}
}

func TestHandleListSessions(t *testing.T) {
	tools, _ := setupTools(t)
	project, _ := tools.getwd()

	rollout := filepath.Join(tools.app.Config.Sessions.CodexHome, "sessions", "2026", "03", "01", "rollout-1.jsonl")
	if err := os.MkdirAll(filepath.Dir(rollout), 0o755); err != nil {
		t.Fatal(err)
	}
	lines := `{"timestamp":"2026-03-01T00:00:00Z","type":"session_meta","payload":{"id":"codex-1","cwd":"` + project + `"}}` + "\n" +
		`{"timestamp":"2026-03-01T00:00:01Z","type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"Wire the MCP tools"}]}}` + "\n"
	if err := os.WriteFile(rollout, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}

	res, _, err := tools.HandleListSessions(context.Background(), nil, ListSessionsParams{})
	if err != nil || res.IsError {
		t.Fatalf("HandleListSessions = %+v, %v", res, err)
	}
	text := resultText(t, res)
	for _, want := range []string{"`codex-1`", "Wire the MCP tools", "codex resume <session-id>"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}

	res, _, _ = tools.HandleListSessions(context.Background(), nil, ListSessionsParams{Tool: "cursor"})
	if !res.IsError {
		t.Errorf("unknown tool should be a tool error, got %q", resultText(t, res))
	}
}

func TestNewServer_RegistersTools(t *testing.T) {
	tools, _ := setupTools(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	if _, err := newServer(tools.app).Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server Connect error = %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client Connect error = %v", err)
	}
	defer session.Close()

	list, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools error = %v", err)
	}
	got := map[string]bool{}
	for _, tool := range list.Tools {
		got[tool.Name] = true
	}
	for _, name := range []string{"upsert_session_notes", "list_sessions"} {
		if !got[name] {
			t.Errorf("tool %q not registered", name)
		}
	}
}
