package sessions

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	claudeSnippetLines = 60
	claudePerProject   = 30
)

// claudeProjectKey is the directory name Claude Code uses for a project.
func claudeProjectKey(project string) string {
	trimmed := strings.TrimLeft(project, string(filepath.Separator))
	return "-" + strings.ReplaceAll(trimmed, string(filepath.Separator), "-")
}

// claudeTranscripts prefers the project's own directory and otherwise
// samples the newest files of every project directory.
func (s *Source) claudeTranscripts(root string) []transcript {
	projectsRoot := filepath.Join(s.ClaudeHome, "projects")
	projectDir := filepath.Join(projectsRoot, claudeProjectKey(root))
	if info, err := os.Stat(projectDir); err == nil && info.IsDir() {
		return dirFiles(projectDir, s.Scan)
	}

	entries, err := os.ReadDir(projectsRoot)
	if err != nil {
		return nil
	}
	perProject := claudePerProject
	if s.Scan > 0 && s.Scan < perProject {
		perProject = s.Scan
	}
	var candidates []transcript
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		candidates = append(candidates, dirFiles(filepath.Join(projectsRoot, e.Name()), perProject)...)
	}
	return newestFirst(candidates, s.Scan)
}

// claudeMeta reads the header fields from the first transcript line.
func claudeMeta(path string) (id, cwd, branch string, start time.Time, ok bool) {
	first := firstLine(path)
	if !gjson.ValidBytes(first) {
		return "", "", "", time.Time{}, false
	}
	head := gjson.ParseBytes(first)
	id = head.Get("sessionId").String()
	if id == "" {
		return "", "", "", time.Time{}, false
	}
	return id, head.Get("cwd").String(), head.Get("gitBranch").String(), parseTime(head.Get("timestamp").String()), true
}

func (s *Source) claudeRows(root string) []Row {
	grouped := make(map[string]*Row)
	var order []string

	for _, f := range s.claudeTranscripts(root) {
		id, cwd, branch, start, ok := claudeMeta(f.path)
		if !ok || !within(cwd, root) {
			continue
		}
		end := parseTime(gjson.GetBytes(lastLine(f.path), "timestamp").String())
		mod := time.Unix(0, f.modTime)

		row, seen := grouped[id]
		if !seen {
			row = &Row{
				Tool:      ToolClaude,
				SessionID: id,
				Cwd:       cwd,
				Branch:    branch,
				Start:     start,
				End:       end,
				Summary:   s.claudeSnippet(f.path),
				Source:    f.path,
				ModTime:   mod,
			}
			grouped[id] = row
			order = append(order, id)
			continue
		}

		if row.Branch == "" {
			row.Branch = branch
		}
		if row.Cwd == "" {
			row.Cwd = cwd
		}
		if row.Summary == "" {
			row.Summary = s.claudeSnippet(f.path)
		}
		if !start.IsZero() && (row.Start.IsZero() || start.Before(row.Start)) {
			row.Start = start
		}
		if !end.IsZero() && (row.End.IsZero() || end.After(row.End)) {
			row.End = end
		}
		if mod.After(row.ModTime) {
			row.ModTime = mod
		}
	}

	sort.Strings(order)
	rows := make([]Row, 0, len(order))
	for _, id := range order {
		rows = append(rows, *grouped[id])
	}
	return rows
}

// claudeSnippet returns the first plain-text user prompt.
func (s *Source) claudeSnippet(path string) string {
	var snippet string
	_ = eachLine(path, claudeSnippetLines, func(line []byte) bool {
		if !gjson.ValidBytes(line) {
			return true
		}
		obj := gjson.ParseBytes(line)
		if obj.Get("type").String() != "user" {
			return true
		}
		content := obj.Get("message.content")
		if content.Type != gjson.String {
			return true
		}
		text := strings.TrimSpace(content.String())
		if text == "" {
			return true
		}
		snippet = s.summarize(text)
		return false
	})
	return snippet
}
