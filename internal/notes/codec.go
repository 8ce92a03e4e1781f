package notes

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Marker identifies a comment as owned by session-notes.
const Marker = "<!-- session-notes -->"

const (
	statePrefix     = "<!-- session-notes:state "
	sessionsStart   = "<!-- session-notes:sessions:start -->"
	sessionsEnd     = "<!-- session-notes:sessions:end -->"
	entryMetaPrefix = "<!-- session-notes:entry "

	entryEnd = "</details>"

	legacyLogTitle   = "Session log (cumulative)"
	legacyLogSummary = "<summary><strong>Session log"
)

var (
	reState     = regexp.MustCompile(`<!-- session-notes:state\s+(.*?)\s*-->`)
	reEntryMeta = regexp.MustCompile(`<!-- session-notes:entry\s+(\{.*?\})\s*-->`)
)

// Repair notes recorded in the provenance section.
const (
	repairStateMissing   = "Missing state marker; state reinitialized."
	repairStateJSON      = "Invalid state marker JSON; state reinitialized."
	repairStateShape     = "Invalid state marker shape; state reinitialized."
	repairLogRecovered   = "Missing session markers; session log rebuilt by recovering existing entry markers."
	repairLogReinit      = "Missing session markers; session log reinitialized."
	repairLegacyMigrated = "Legacy session marker layout detected; migrated to canonical layout."
)

// ExtractState locates the state marker and decodes it. It never fails: any
// problem yields an empty state and a repair note.
func ExtractState(document string) (State, []string) {
	m := reState.FindStringSubmatch(document)
	if m == nil {
		return State{}, []string{repairStateMissing}
	}
	raw := m[1]
	if !gjson.Valid(raw) {
		return State{}, []string{repairStateJSON}
	}
	obj := gjson.Parse(raw)
	if !obj.IsObject() {
		return State{}, []string{repairStateShape}
	}
	return decodeState(obj), nil
}

// ExtractEntryLog returns the raw entry-log block between the session markers.
// When the markers are damaged the entries are recovered from their own
// metadata comments; legacy wrapper markup is stripped.
func ExtractEntryLog(document string) (string, []string) {
	start := strings.Index(document, sessionsStart)
	end := strings.Index(document, sessionsEnd)
	if start == -1 || end == -1 || end < start {
		return recoverEntries(document)
	}

	block := strings.Trim(document[start+len(sessionsStart):end], "\n")

	var repairs []string
	if strings.Contains(block, legacyLogTitle) && strings.Contains(block, legacyLogSummary) {
		repairs = append(repairs, repairLegacyMigrated)
		if i := strings.Index(block, "</summary>"); i != -1 {
			block = strings.TrimSpace(block[i+len("</summary>"):])
		}
		if strings.HasSuffix(block, entryEnd) {
			block = strings.TrimRight(strings.TrimSuffix(block, entryEnd), " \t\r\n")
		}
	}
	return strings.Trim(block, "\n"), repairs
}

func recoverEntries(document string) (string, []string) {
	var recovered []string
	offset := 0
	for {
		i := strings.Index(document[offset:], entryMetaPrefix)
		if i == -1 {
			break
		}
		entryStart := offset + i
		j := strings.Index(document[entryStart:], entryEnd)
		if j == -1 {
			offset = entryStart + len(entryMetaPrefix)
			continue
		}
		entryStop := entryStart + j + len(entryEnd)
		recovered = append(recovered, strings.TrimSpace(document[entryStart:entryStop]))
		offset = entryStart + len(entryMetaPrefix)
	}
	if len(recovered) == 0 {
		return "", []string{repairLogReinit}
	}
	return strings.Trim(strings.Join(recovered, "\n\n"), "\n"), []string{repairLogRecovered}
}

// HasMarker reports whether a comment body is owned by session-notes.
func HasMarker(body string) bool {
	return strings.Contains(body, Marker)
}
