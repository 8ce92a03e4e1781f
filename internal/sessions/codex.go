package sessions

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const codexSnippetLines = 80

// codexMeta reads the session_meta header of a Codex rollout file.
func codexMeta(path string) (id, cwd string, start time.Time, ok bool) {
	first := firstLine(path)
	if !gjson.ValidBytes(first) {
		return "", "", time.Time{}, false
	}
	head := gjson.ParseBytes(first)
	if head.Get("type").String() != "session_meta" {
		return "", "", time.Time{}, false
	}
	payload := head.Get("payload")
	ts := payload.Get("timestamp").String()
	if ts == "" {
		ts = head.Get("timestamp").String()
	}
	return payload.Get("id").String(), payload.Get("cwd").String(), parseTime(ts), true
}

func (s *Source) codexRows(root string) []Row {
	sessionsRoot := filepath.Join(s.CodexHome, "sessions")
	var rows []Row
	for _, f := range recentFiles(sessionsRoot, s.Scan) {
		id, cwd, start, ok := codexMeta(f.path)
		if !ok || !within(cwd, root) {
			continue
		}
		if id == "" {
			id = "-"
		}
		rows = append(rows, Row{
			Tool:      ToolCodex,
			SessionID: id,
			Start:     start,
			End:       parseTime(gjson.GetBytes(lastLine(f.path), "timestamp").String()),
			Cwd:       cwd,
			Summary:   s.codexSnippet(f.path),
			Source:    f.path,
			ModTime:   time.Unix(0, f.modTime),
		})
	}
	return rows
}

// codexSnippet returns the first user message line of the rollout.
func (s *Source) codexSnippet(path string) string {
	var snippet string
	_ = eachLine(path, codexSnippetLines, func(line []byte) bool {
		if !gjson.ValidBytes(line) {
			return true
		}
		obj := gjson.ParseBytes(line)
		if obj.Get("type").String() != "response_item" ||
			obj.Get("payload.type").String() != "message" ||
			obj.Get("payload.role").String() != "user" {
			return true
		}
		var texts []string
		obj.Get("payload.content").ForEach(func(_, item gjson.Result) bool {
			switch item.Get("type").String() {
			case "input_text", "text":
				texts = append(texts, item.Get("text").String())
			}
			return true
		})
		combined := strings.TrimSpace(strings.Join(texts, "\n"))
		if combined == "" {
			return true
		}
		snippet = s.summarize(combined)
		return false
	})
	return snippet
}
