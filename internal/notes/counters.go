package notes

import "github.com/tidwall/gjson"

// Counts are the aggregate session counters derived from an entry log.
type Counts struct {
	Total    int
	ByTool   map[string]int
	Included []IncludedSession
}

// CountEntries scans entry metadata in block and counts distinct keys.
func CountEntries(block string) Counts {
	counts := Counts{ByTool: baseByTool()}
	seen := make(map[SessionKey]struct{})
	for _, m := range reEntryMeta.FindAllStringSubmatch(block, -1) {
		if !gjson.Valid(m[1]) {
			continue
		}
		meta := gjson.Parse(m[1])
		key := SessionKey{
			Tool:      parseString(meta.Get("tool")),
			SessionID: parseString(meta.Get("session_id")),
		}
		if key.Tool == "" || key.SessionID == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		counts.Total++
		counts.ByTool[key.Tool]++
		counts.Included = append(counts.Included, IncludedSession{Tool: key.Tool, ID: key.SessionID})
	}
	return counts
}

// Reconcile merges scanned counters with the previous state so that stored
// counters never decrease, even when an earlier writer truncated the log.
func Reconcile(prev State, scanned Counts, active SessionKey, existed bool) Counts {
	out := Counts{
		Total:  scanned.Total,
		ByTool: baseByTool(),
	}
	for tool, n := range scanned.ByTool {
		out.ByTool[tool] = n
	}

	increment := 1
	if existed {
		increment = 0
	}

	if prev.hasTotal {
		out.Total = max(prev.SessionsTotal+increment, scanned.Total)
	}
	if prev.hasByTool {
		for tool, n := range prev.ByTool {
			inc := 0
			if tool == active.Tool {
				inc = increment
			}
			out.ByTool[tool] = max(n+inc, out.ByTool[tool])
		}
		if _, ok := prev.ByTool[active.Tool]; !ok && active.Tool != "" {
			out.ByTool[active.Tool] = max(increment, out.ByTool[active.Tool])
		}
	}
	if out.Total <= 0 {
		out.Total = max(scanned.Total, 1)
	}

	out.Included = mergeIncluded(prev.IncludedSessions, scanned.Included)
	return out
}

// mergeIncluded returns the ordered union of both lists without duplicates.
func mergeIncluded(prev, scanned []IncludedSession) []IncludedSession {
	seen := make(map[IncludedSession]struct{}, len(prev)+len(scanned))
	var out []IncludedSession
	for _, list := range [][]IncludedSession{prev, scanned} {
		for _, s := range list {
			if s.Tool == "" || s.ID == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func baseByTool() map[string]int {
	return map[string]int{ToolCodex: 0, ToolClaude: 0}
}
