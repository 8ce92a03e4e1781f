// Package app wires configuration, credentials, session discovery and the
// notes upserter together for the CLI, the HTTP intake and the MCP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"runtime/debug"
	"strings"

	gh "github.com/google/go-github/v66/github"

	"github.com/cexll/session-notes/internal/config"
	"github.com/cexll/session-notes/internal/github"
	"github.com/cexll/session-notes/internal/notes"
	"github.com/cexll/session-notes/internal/redact"
	"github.com/cexll/session-notes/internal/sessions"
)

// SessionAuto asks Upsert to guess the session id from local transcripts.
const SessionAuto = "auto"

// App holds loaded configuration and external collaborators.
type App struct {
	Config *config.Config
	Runner github.CommandRunner
	// Version is the build version; empty falls back to module build info.
	Version string
}

// New creates an App using the real gh CLI runner.
func New(cfg *config.Config, version string) *App {
	return &App{Config: cfg, Runner: &github.RealCommandRunner{}, Version: version}
}

// GitHubClient resolves a token (for repo, when a GitHub App is configured)
// and returns a client for the configured API endpoint.
func (a *App) GitHubClient(ctx context.Context, repo, host string) (*gh.Client, error) {
	opts := github.TokenOptions{
		Token:  a.Config.GitHub.Token,
		Repo:   repo,
		GHHost: host,
	}
	if a.Config.HasApp() {
		opts.App = &github.AppAuth{
			AppID:      a.Config.GitHub.AppID,
			PrivateKey: a.Config.GitHub.PrivateKey,
			APIURL:     a.Config.GitHub.APIURL,
		}
	}
	token, source, err := github.ResolveToken(ctx, opts, a.Runner)
	if err != nil {
		return nil, err
	}
	log.Printf("[Auth] token source: %s", source)
	return github.NewClient(token, a.Config.GitHub.APIURL)
}

// APIHost is the GitHub host behind the configured API URL, empty for
// github.com.
func (a *App) APIHost() string {
	if a.Config.GitHub.APIURL == "" {
		return ""
	}
	u, err := url.Parse(a.Config.GitHub.APIURL)
	if err != nil || strings.EqualFold(u.Host, "api.github.com") {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Builder returns a notes builder configured from the notes settings.
func (a *App) Builder() *notes.Builder {
	home, _ := os.UserHomeDir()
	return &notes.Builder{
		Generator:        a.Config.Notes.Generator,
		GeneratorVersion: a.GeneratorVersion(),
		MaxBodyChars:     a.Config.Notes.MaxBodyChars,
		Limits:           notes.DefaultLimits(),
		Redactor:         redact.New(home, "github.com"),
	}
}

// GeneratorVersion is the configured version, the build version, or the
// module version from build info.
func (a *App) GeneratorVersion() string {
	if a.Config.Notes.GeneratorVersion != "" {
		return a.Config.Notes.GeneratorVersion
	}
	if a.Version != "" {
		return a.Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return ""
}

// SessionSource reads transcripts from the configured homes.
func (a *App) SessionSource() *sessions.Source {
	home, _ := os.UserHomeDir()
	return &sessions.Source{
		CodexHome:  a.Config.Sessions.CodexHome,
		ClaudeHome: a.Config.Sessions.ClaudeHome,
		Scan:       a.Config.Sessions.Scan,
		Redactor:   redact.New(home, "github.com"),
	}
}

// StoreFactory authenticates per call so GitHub App installation tokens
// are scoped to the target repository.
func (a *App) StoreFactory() func(ctx context.Context, owner, repo string, number int) (notes.Store, error) {
	return func(ctx context.Context, owner, repo string, number int) (notes.Store, error) {
		client, err := a.GitHubClient(ctx, owner+"/"+repo, a.APIHost())
		if err != nil {
			return nil, err
		}
		return github.NewPRStore(client, owner, repo, number), nil
	}
}

// UpsertInput is one session update as supplied by a caller.
type UpsertInput struct {
	Repo string
	PR   string
	// Dir is the working tree used for remote, branch and session lookup.
	Dir           string
	Tool          string
	SessionID     string
	StrictSession bool
	Payload       []byte
	DryRun        bool
}

// UpsertOutput reports where the notes were written.
type UpsertOutput struct {
	Target    *github.Target
	SessionID string
	Warnings  []string
	Result    *notes.Result
}

// Upsert validates the input, resolves the target and session, and merges
// the payload into the pull request's notes comment.
func (a *App) Upsert(ctx context.Context, in UpsertInput) (*UpsertOutput, error) {
	tool, err := ParseEntryTool(in.Tool)
	if err != nil {
		return nil, err
	}
	payload, warnings, err := notes.NormalizePayload(in.Payload, notes.DefaultLimits())
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		log.Printf("[Upsert] payload warning: %s", w)
	}

	sessionID, err := a.ResolveSessionID(tool, in.SessionID, in.StrictSession, in.Dir)
	if err != nil {
		return nil, err
	}

	repo, host := TargetHints(in.Repo, in.PR, in.Dir)
	if host == "" {
		host = a.APIHost()
	}
	client, err := a.GitHubClient(ctx, repo, host)
	if err != nil {
		return nil, err
	}

	target, err := github.ResolveTarget(ctx, client, github.TargetOptions{Repo: in.Repo, PR: in.PR, Dir: in.Dir})
	if err != nil {
		return nil, err
	}
	log.Printf("[Upsert] target %s, session %s/%s", target, tool, sessionID)

	upserter := notes.NewUpserter(github.NewPRStore(client, target.Owner, target.Repo, target.Number), a.Builder())
	upserter.MaxAttempts = a.Config.Notes.MaxAttempts

	res, err := upserter.Upsert(ctx, notes.Request{
		Payload: payload,
		Key:     notes.SessionKey{Tool: tool, SessionID: sessionID},
		DryRun:  in.DryRun,
	})
	if err != nil {
		return nil, err
	}
	return &UpsertOutput{Target: target, SessionID: sessionID, Warnings: warnings, Result: res}, nil
}

// ParseEntryTool validates an entry tool label.
func ParseEntryTool(tool string) (string, error) {
	switch t := strings.ToLower(strings.TrimSpace(tool)); t {
	case notes.ToolCodex, notes.ToolClaude, notes.ToolUnknown:
		return t, nil
	case "":
		return notes.ToolUnknown, nil
	}
	return "", fmt.Errorf("invalid tool %q (want codex, claude or unknown)", tool)
}

// ResolveSessionID returns the explicit id or guesses one from local
// transcripts of the same tool. A failed guess is an error only in strict
// mode; otherwise the entry is keyed "unknown".
func (a *App) ResolveSessionID(tool, id string, strict bool, dir string) (string, error) {
	id = strings.TrimSpace(id)
	if id != "" && id != SessionAuto {
		return id, nil
	}
	guessed, err := a.SessionSource().Guess(tool, dir)
	if err == nil {
		return guessed, nil
	}
	if strict {
		return "", fmt.Errorf("strict session: %w", err)
	}
	if !errors.Is(err, sessions.ErrNoSession) {
		return "", err
	}
	log.Printf("[Upsert] %v; keying entry as %q", err, notes.ToolUnknown)
	return notes.ToolUnknown, nil
}

// TargetHints guesses owner/repo and host before a client exists, so a
// GitHub App installation token can be requested for the right repository.
func TargetHints(repo, pr, dir string) (string, string) {
	repo = strings.TrimSpace(repo)
	var host string
	if pr = strings.TrimSpace(pr); pr != "" && pr != github.PRAuto {
		if r, _, h, err := github.ParsePRArg(pr); err == nil {
			host = h
			if repo == "" {
				repo = r
			}
		}
	}
	if repo == "" {
		if co, err := github.OpenCheckout(dir); err == nil && co.Remote != "" {
			repo, _ = github.RepoFromRemote(co.Remote)
		}
	}
	return repo, host
}
