package sessions

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"

	"github.com/cexll/session-notes/internal/redact"
)

// ErrNoSession is returned by Guess when no transcript matches.
var ErrNoSession = errors.New("no matching session transcript")

// Source reads transcripts under the Codex and Claude homes.
type Source struct {
	CodexHome  string
	ClaudeHome string
	// Scan caps transcript files inspected per tool (0 inspects all).
	Scan     int
	Redactor *redact.Redactor
}

// List returns sessions whose working directory lies inside the project's
// git root, most recently active first, at most limit rows (0 means all).
func (s *Source) List(project, tool string, limit int) ([]Row, error) {
	tool, err := ParseTool(tool)
	if err != nil {
		return nil, err
	}
	root := ProjectRoot(project)

	var rows []Row
	if tool == ToolAll || tool == ToolCodex {
		rows = append(rows, s.codexRows(root)...)
	}
	if tool == ToolAll || tool == ToolClaude {
		rows = append(rows, s.claudeRows(root)...)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].LastActive().After(rows[j].LastActive())
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	log.Printf("[Sessions] %d sessions for %s (tool=%s)", len(rows), root, tool)
	return rows, nil
}

// Guess returns the id of the most recently modified transcript of the given
// tool whose cwd is inside the project. Only that tool's own transcript
// format is considered, so a Codex entry never borrows a Claude id.
func (s *Source) Guess(tool, project string) (string, error) {
	root := ProjectRoot(project)

	var (
		best    string
		bestMod int64
	)
	consider := func(id, cwd string, mod int64) {
		if id == "" || !within(cwd, root) {
			return
		}
		if best == "" || mod > bestMod {
			best, bestMod = id, mod
		}
	}

	switch tool {
	case ToolCodex:
		for _, f := range recentFiles(filepath.Join(s.CodexHome, "sessions"), 0) {
			if id, cwd, _, ok := codexMeta(f.path); ok {
				consider(id, cwd, f.modTime)
			}
		}
	case ToolClaude:
		for _, f := range recentFiles(filepath.Join(s.ClaudeHome, "projects"), 0) {
			if id, cwd, _, _, ok := claudeMeta(f.path); ok {
				consider(id, cwd, f.modTime)
			}
		}
	default:
		return "", fmt.Errorf("%w: cannot guess a session id for tool %q", ErrNoSession, tool)
	}

	if best == "" {
		return "", fmt.Errorf("%w: no %s session under %s", ErrNoSession, tool, root)
	}
	log.Printf("[Sessions] guessed %s session %s", tool, best)
	return best, nil
}

// summarize turns a prompt into a one-line, redacted snippet.
func (s *Source) summarize(text string) string {
	line := firstNonTrivialLine(text)
	if s.Redactor != nil {
		line = s.Redactor.Redact(line)
	}
	return truncateRunes(line, summaryChars)
}
