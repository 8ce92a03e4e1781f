package notes

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Known tool labels. Any other non-empty label is accepted and counted on its own.
const (
	ToolCodex   = "codex"
	ToolClaude  = "claude"
	ToolUnknown = "unknown"
)

// SessionKey identifies one tool session.
type SessionKey struct {
	Tool      string
	SessionID string
}

func (k SessionKey) String() string {
	return k.Tool + "/" + k.SessionID
}

// SessionEntry is one block of the cumulative log. Key and CreatedAt are nil
// when the entry metadata could not be recovered; Raw is always preserved.
type SessionEntry struct {
	Key       *SessionKey
	CreatedAt *time.Time
	Raw       string
}

func (e SessionEntry) hasKey(k SessionKey) bool {
	return e.Key != nil && *e.Key == k
}

// EntryMeta is the metadata comment heading every entry.
type EntryMeta struct {
	Tool      string `json:"tool"`
	SessionID string `json:"session_id"`
	CreatedAt string `json:"created_at"`
}

// Encode renders the metadata comment line.
func (m EntryMeta) Encode() (string, error) {
	payload, err := encodeCompact(m)
	if err != nil {
		return "", fmt.Errorf("encode entry meta: %w", err)
	}
	return entryMetaPrefix + payload + " -->", nil
}

// ParseEntries splits an entry-log block into entries. Text before the first
// entry marker becomes one keyless entry.
func ParseEntries(block string) []SessionEntry {
	if !strings.Contains(block, entryMetaPrefix) {
		if trimmed := strings.TrimSpace(block); trimmed != "" {
			return []SessionEntry{{Raw: trimmed}}
		}
		return nil
	}

	parts := strings.Split(block, entryMetaPrefix)
	var entries []SessionEntry
	if pre := strings.TrimSpace(parts[0]); pre != "" {
		entries = append(entries, SessionEntry{Raw: pre})
	}
	for _, part := range parts[1:] {
		raw := strings.TrimSpace(entryMetaPrefix + part)
		entry := SessionEntry{Raw: raw}
		if m := reEntryMeta.FindStringSubmatch(raw); m != nil && gjson.Valid(m[1]) {
			meta := gjson.Parse(m[1])
			if meta.IsObject() {
				tool := parseString(meta.Get("tool"))
				id := parseString(meta.Get("session_id"))
				if tool != "" && id != "" {
					entry.Key = &SessionKey{Tool: tool, SessionID: id}
				}
				entry.CreatedAt = parseTimestamp(parseString(meta.Get("created_at")))
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// MergeEntries folds newRaw into the existing block. When the tracked head has
// not moved (deltaEmpty) the entry for key is refreshed in place; otherwise the
// new entry goes first and older entries for the same key are dropped.
func MergeEntries(existingBlock, newRaw string, key SessionKey, deltaEmpty bool) string {
	existing := ParseEntries(existingBlock)
	newRaw = strings.TrimSpace(newRaw)
	merged := make([]string, 0, len(existing)+1)

	if deltaEmpty {
		replaced := false
		for _, e := range existing {
			if !replaced && e.hasKey(key) {
				merged = append(merged, newRaw)
				replaced = true
				continue
			}
			merged = append(merged, strings.TrimSpace(e.Raw))
		}
		if !replaced {
			merged = append([]string{newRaw}, merged...)
		}
	} else {
		merged = append(merged, newRaw)
		for _, e := range existing {
			if e.hasKey(key) {
				continue
			}
			merged = append(merged, strings.TrimSpace(e.Raw))
		}
	}
	return joinBlock(merged)
}

// SortEntries orders keyed entries newest first and appends keyless entries
// in their original order. The sort is stable.
func SortEntries(entries []SessionEntry) []SessionEntry {
	if len(entries) == 0 {
		return nil
	}
	keyed := make([]SessionEntry, 0, len(entries))
	var unkeyed []SessionEntry
	for _, e := range entries {
		if e.Key != nil {
			keyed = append(keyed, e)
		} else {
			unkeyed = append(unkeyed, e)
		}
	}
	sort.SliceStable(keyed, func(i, j int) bool {
		a, b := keyed[i].CreatedAt, keyed[j].CreatedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return append(keyed, unkeyed...)
}

// NormalizeEntries sorts the block and, when maxEntries > 0, keeps the entry
// for required plus the most recent others up to maxEntries in total. The
// required entry is never dropped and kept entries stay in sorted order.
func NormalizeEntries(block string, required *SessionKey, maxEntries int) string {
	entries := SortEntries(ParseEntries(block))
	if maxEntries <= 0 {
		return entriesToBlock(entries)
	}

	keep := make([]bool, len(entries))
	kept := 0
	for i, e := range entries {
		if required != nil && e.hasKey(*required) {
			keep[i] = true
			kept++
		}
	}
	for i := range entries {
		if kept >= maxEntries {
			break
		}
		if !keep[i] {
			keep[i] = true
			kept++
		}
	}

	out := make([]SessionEntry, 0, kept)
	for i, e := range entries {
		if keep[i] {
			out = append(out, e)
		}
	}
	return entriesToBlock(out)
}

// EntryPresent reports whether document contains an entry for key.
func EntryPresent(document string, key SessionKey) bool {
	for _, m := range reEntryMeta.FindAllStringSubmatch(document, -1) {
		if !gjson.Valid(m[1]) {
			continue
		}
		meta := gjson.Parse(m[1])
		if parseString(meta.Get("tool")) == key.Tool && parseString(meta.Get("session_id")) == key.SessionID {
			return true
		}
	}
	return false
}

func entriesToBlock(entries []SessionEntry) string {
	raws := make([]string, 0, len(entries))
	for _, e := range entries {
		raws = append(raws, e.Raw)
	}
	return joinBlock(raws)
}

func joinBlock(raws []string) string {
	parts := make([]string, 0, len(raws))
	for _, r := range raws {
		if r = strings.TrimSpace(r); r != "" {
			parts = append(parts, r)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n\n") + "\n"
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// parseTimestamp accepts ISO-8601 timestamps; values without a zone are UTC.
func parseTimestamp(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
