package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/cexll/session-notes/internal/sessions"
)

const (
	formatMarkdown = "markdown"
	formatTable    = "table"
	formatJSON     = "json"
)

func newSessionsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect local Codex and Claude Code sessions",
	}
	cmd.AddCommand(newSessionsListCmd(a))
	return cmd
}

type listOptions struct {
	project string
	tool    string
	format  string
}

func newSessionsListCmd(c *cli) *cobra.Command {
	opts := &listOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions for a project",
		Long: `List recent Codex and Claude Code sessions whose working directory is
inside the project's git root, most recently active first. Pick the ids
of the sessions that shaped the pull request and pass them to upsert.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd, map[string]string{
				"sessions.limit": "limit",
				"sessions.scan":  "scan",
			}); err != nil {
				return err
			}
			return c.runSessionsList(cmd.OutOrStdout(), opts, time.Now())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.project, "project", "", "project path to filter by (default: current directory)")
	f.StringVar(&opts.tool, "tool", sessions.ToolAll, "sessions to include: all, codex or claude")
	f.StringVar(&opts.format, "format", formatMarkdown, "output format: markdown, table or json")
	f.Int("limit", 15, "max rows to print")
	f.Int("scan", 250, "max transcript files to inspect per tool (0 inspects all)")
	return cmd
}

func (c *cli) runSessionsList(out io.Writer, opts *listOptions, now time.Time) error {
	switch opts.format {
	case formatMarkdown, formatTable, formatJSON:
	default:
		return fmt.Errorf("invalid --format %q (want markdown, table or json)", opts.format)
	}

	project := opts.project
	if project == "" {
		cwd, err := getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		project = cwd
	}

	rows, err := c.SessionSource().List(project, opts.tool, c.Config.Sessions.Limit)
	if err != nil {
		return err
	}

	switch opts.format {
	case formatJSON:
		if rows == nil {
			rows = []sessions.Row{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case formatTable:
		_, err = io.WriteString(out, sessions.RenderTable(rows, now))
	default:
		_, err = io.WriteString(out, sessions.RenderMarkdown(rows, now))
	}
	return err
}
