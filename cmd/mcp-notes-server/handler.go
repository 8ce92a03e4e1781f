package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cexll/session-notes/internal/app"
	"github.com/cexll/session-notes/internal/github"
	"github.com/cexll/session-notes/internal/sessions"
)

// UpsertNotesParams defines the parameters for upsert_session_notes
type UpsertNotesParams struct {
	Repo      string         `json:"repo,omitempty" jsonschema:"owner/repo; defaults to the origin remote of dir"`
	PR        string         `json:"pr,omitempty" jsonschema:"PR number, PR URL, or auto for the open PR of the current branch"`
	Dir       string         `json:"dir,omitempty" jsonschema:"project directory; defaults to the server's working directory"`
	Tool      string         `json:"tool,omitempty" jsonschema:"tool label for this entry: codex, claude or unknown"`
	SessionID string         `json:"session_id,omitempty" jsonschema:"session id, or auto to guess from local transcripts"`
	Payload   map[string]any `json:"payload" jsonschema:"session summary object (decisions, files, commands, open questions, next steps)"`
	DryRun    bool           `json:"dry_run,omitempty" jsonschema:"render the comment without writing it"`
}

// ListSessionsParams defines the parameters for list_sessions
type ListSessionsParams struct {
	Project string `json:"project,omitempty" jsonschema:"project path; defaults to the server's working directory"`
	Tool    string `json:"tool,omitempty" jsonschema:"all, codex or claude"`
	Limit   int    `json:"limit,omitempty" jsonschema:"max rows; defaults to the configured limit"`
}

// notesTools serves the MCP tools from one loaded configuration.
type notesTools struct {
	app   *app.App
	getwd func() (string, error)
	now   func() time.Time
}

func newNotesTools(a *app.App) *notesTools {
	return &notesTools{app: a, getwd: os.Getwd, now: time.Now}
}

func (t *notesTools) dir(dir string) (string, error) {
	if strings.TrimSpace(dir) != "" {
		return dir, nil
	}
	return t.getwd()
}

// HandleUpsertNotes merges the payload into the pull request's notes
// comment. GitHub failures are reported as tool errors so the agent can
// read them.
func (t *notesTools) HandleUpsertNotes(ctx context.Context, req *mcp.CallToolRequest, params UpsertNotesParams) (*mcp.CallToolResult, any, error) {
	if params.Payload == nil {
		return nil, nil, errors.New("payload is required")
	}
	if _, err := app.ParseEntryTool(params.Tool); err != nil {
		return nil, nil, err
	}
	data, err := json.Marshal(params.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("encode payload: %w", err)
	}
	dir, err := t.dir(params.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("get working directory: %w", err)
	}
	pr := params.PR
	if strings.TrimSpace(pr) == "" {
		pr = github.PRAuto
	}

	out, err := t.app.Upsert(ctx, app.UpsertInput{
		Repo:      params.Repo,
		PR:        pr,
		Dir:       dir,
		Tool:      params.Tool,
		SessionID: params.SessionID,
		Payload:   data,
		DryRun:    params.DryRun,
	})
	if err != nil {
		log.Printf("[MCP Notes Server] upsert failed: %v", err)
		return toolError(fmt.Sprintf("Failed to update session notes: %v", err)), nil, nil
	}

	res := out.Result
	var text string
	switch {
	case res.DryRun:
		text = res.Body
	case res.Created:
		text = fmt.Sprintf("Created session notes on %s (rev %d): %s", out.Target, res.Rev, res.URL)
	default:
		text = fmt.Sprintf("Updated session notes on %s (rev %d, %d attempts): %s", out.Target, res.Rev, res.Attempts, res.URL)
	}
	for _, w := range out.Warnings {
		text += "\nwarning: " + w
	}
	log.Printf("[MCP Notes Server] %s session %s: rev %d", out.Target, out.SessionID, res.Rev)

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// HandleListSessions renders recent sessions for the project as markdown.
func (t *notesTools) HandleListSessions(ctx context.Context, req *mcp.CallToolRequest, params ListSessionsParams) (*mcp.CallToolResult, any, error) {
	project, err := t.dir(params.Project)
	if err != nil {
		return nil, nil, fmt.Errorf("get working directory: %w", err)
	}
	tool := params.Tool
	if tool == "" {
		tool = sessions.ToolAll
	}
	limit := params.Limit
	if limit <= 0 {
		limit = t.app.Config.Sessions.Limit
	}

	rows, err := t.app.SessionSource().List(project, tool, limit)
	if err != nil {
		return toolError(err.Error()), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: sessions.RenderMarkdown(rows, t.now())}},
	}, nil, nil
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
