package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cexll/session-notes/internal/app"
	"github.com/cexll/session-notes/internal/github"
	"github.com/cexll/session-notes/internal/notes"
)

type upsertOptions struct {
	repo          string
	pr            string
	payload       string
	tool          string
	sessionID     string
	strictSession bool
	dryRun        bool
}

func newUpsertCmd(c *cli) *cobra.Command {
	opts := &upsertOptions{}
	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Create or update the pull request's session notes comment",
		Long: `Merge this session's payload into the single SESSION NOTES comment on the
pull request, creating it when absent. Each write is read back and retried
when another writer got there first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd, nil); err != nil {
				return err
			}
			return c.runUpsert(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.repo, "repo", "", "owner/repo (default: from the PR URL or the origin remote)")
	f.StringVar(&opts.pr, "pr", github.PRAuto, `PR number, PR URL, or "auto" for the open PR of the current branch`)
	f.StringVar(&opts.payload, "payload", "", "path to the JSON payload ('-' reads stdin)")
	f.StringVar(&opts.tool, "tool", notes.ToolUnknown, "tool label for this entry: codex, claude or unknown")
	f.StringVar(&opts.sessionID, "session-id", app.SessionAuto, `session id, or "auto" to guess from local transcripts`)
	f.BoolVar(&opts.strictSession, "strict-session", false, "fail when --session-id auto finds no transcript instead of using \"unknown\"")
	f.BoolVar(&opts.dryRun, "dry-run", false, "print the rendered comment without writing it")
	_ = cmd.MarkFlagRequired("payload")
	return cmd
}

func (c *cli) runUpsert(cmd *cobra.Command, opts *upsertOptions) error {
	if _, err := app.ParseEntryTool(opts.tool); err != nil {
		return err
	}
	data, err := readPayload(opts.payload, cmd.InOrStdin())
	if err != nil {
		return err
	}
	cwd, err := getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	out, err := c.Upsert(cmd.Context(), app.UpsertInput{
		Repo:          opts.repo,
		PR:            opts.pr,
		Dir:           cwd,
		Tool:          opts.tool,
		SessionID:     opts.sessionID,
		StrictSession: opts.strictSession,
		Payload:       data,
		DryRun:        opts.dryRun,
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	res := out.Result
	if res.DryRun {
		body := res.Body
		if !strings.HasSuffix(body, "\n") {
			body += "\n"
		}
		_, err = io.WriteString(w, body)
		return err
	}
	if res.URL == "" {
		_, err = fmt.Fprintln(w, "updated")
		return err
	}
	_, err = fmt.Fprintln(w, res.URL)
	return err
}

// readPayload reads the payload file, or stdin for "-".
func readPayload(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read payload from stdin: %w", err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return nil, errors.New("no JSON payload provided on stdin")
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return data, nil
}
