package notes

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gowebpki/jcs"
	"github.com/tidwall/gjson"
)

// SchemaVersion is written into every state block.
const SchemaVersion = 2

// IncludedSession identifies a session that has ever been part of the log.
type IncludedSession struct {
	Tool string `json:"tool"`
	ID   string `json:"id"`
}

// State is the control block persisted inside the comment.
type State struct {
	Schema           int               `json:"schema"`
	Base             string            `json:"base,omitempty"`
	Head             string            `json:"head,omitempty"`
	PrevHead         string            `json:"prev_head,omitempty"`
	Rev              int               `json:"rev,omitempty"`
	SessionsTotal    int               `json:"sessions_total"`
	ByTool           map[string]int    `json:"by_tool,omitempty"`
	IncludedSessions []IncludedSession `json:"included_sessions,omitempty"`
	SessionsSHA256   string            `json:"sessions_sha256,omitempty"`
	RepairCount      int               `json:"repair_count,omitempty"`
	LastRepairAt     string            `json:"last_repair_at,omitempty"`
	Generator        string            `json:"generator,omitempty"`
	GeneratorVersion string            `json:"generator_version,omitempty"`
	LastUpdated      string            `json:"last_updated,omitempty"`

	// hasTotal and hasByTool record whether a previous writer stored the
	// counters at all; reconciliation only trusts counters that were present.
	hasTotal  bool
	hasByTool bool
}

// IsEmpty reports whether the state carries no recoverable data.
func (s State) IsEmpty() bool {
	return s.Schema == 0 && s.Head == "" && s.Rev == 0 && !s.hasTotal && !s.hasByTool
}

// Encode renders the single-line state comment.
func (s State) Encode() (string, error) {
	if s.Schema == 0 {
		s.Schema = SchemaVersion
	}
	payload, err := encodeCompact(s)
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	return statePrefix + payload + " -->", nil
}

// encodeCompact marshals v as RFC 8785 canonical JSON on a single line.
// '>' is escaped so the HTML comment terminator never appears in the payload.
func encodeCompact(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(string(canonical), ">", `\u003e`), nil
}

// decodeState reads a state object field by field. Any field of the wrong
// shape falls back to its zero value instead of invalidating the whole state.
func decodeState(obj gjson.Result) State {
	var s State
	s.Schema, _ = parseInt(obj.Get("schema"))
	s.Base = parseString(obj.Get("base"))
	s.Head = parseString(obj.Get("head"))
	s.PrevHead = parseString(obj.Get("prev_head"))
	s.Rev, _ = parseInt(obj.Get("rev"))
	s.SessionsTotal, s.hasTotal = parseInt(obj.Get("sessions_total"))
	s.SessionsSHA256 = parseString(obj.Get("sessions_sha256"))
	s.RepairCount, _ = parseInt(obj.Get("repair_count"))
	s.LastRepairAt = parseString(obj.Get("last_repair_at"))
	s.Generator = parseString(obj.Get("generator"))
	s.GeneratorVersion = parseString(obj.Get("generator_version"))
	s.LastUpdated = parseString(obj.Get("last_updated"))

	if byTool := obj.Get("by_tool"); byTool.IsObject() {
		s.ByTool = map[string]int{}
		s.hasByTool = true
		byTool.ForEach(func(k, v gjson.Result) bool {
			if n, ok := parseInt(v); ok && strings.TrimSpace(k.String()) != "" {
				s.ByTool[strings.TrimSpace(k.String())] = n
			}
			return true
		})
	} else {
		// Older documents stored codex/claude counters at the top level.
		for _, tool := range []string{ToolCodex, ToolClaude} {
			if n, ok := parseInt(obj.Get(tool)); ok {
				if s.ByTool == nil {
					s.ByTool = map[string]int{}
				}
				s.ByTool[tool] = n
				s.hasByTool = true
			}
		}
	}

	if included := obj.Get("included_sessions"); included.IsArray() {
		for _, item := range included.Array() {
			if !item.IsObject() {
				continue
			}
			tool := parseString(item.Get("tool"))
			id := parseString(item.Get("id"))
			if id == "" {
				id = parseString(item.Get("session_id"))
			}
			if tool != "" && id != "" {
				s.IncludedSessions = append(s.IncludedSessions, IncludedSession{Tool: tool, ID: id})
			}
		}
	}
	return s
}

// parseInt accepts JSON integers, floats and digit-only strings. Booleans and
// everything else are rejected.
func parseInt(v gjson.Result) (int, bool) {
	switch v.Type {
	case gjson.Number:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return 0, false
		}
		return int(v.Num), true
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return 0, false
		}
		for _, c := range s {
			if c < '0' || c > '9' {
				return 0, false
			}
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// parseString accepts scalar values only.
func parseString(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return strings.TrimSpace(v.Str)
	case gjson.Number:
		return v.Raw
	}
	return ""
}

// includes reports whether key was counted by an earlier revision, even if
// its entry has since been cut from the log to fit the size limit.
func (s State) includes(key SessionKey) bool {
	for _, inc := range s.IncludedSessions {
		if inc.Tool == key.Tool && inc.ID == key.SessionID {
			return true
		}
	}
	return false
}
