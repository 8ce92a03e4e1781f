package notes

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kaptinlin/jsonschema"
	"github.com/tidwall/gjson"

	"github.com/cexll/session-notes/internal/redact"
)

// Limits caps every payload field. Zero values are replaced by defaults.
type Limits struct {
	TextChars         int
	PromptsChars      int
	SessionLabelChars int
	CreatedAtChars    int
	ListItems         int
	ItemChars         int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		TextChars:         2000,
		PromptsChars:      2000,
		SessionLabelChars: 80,
		CreatedAtChars:    64,
		ListItems:         25,
		ItemChars:         280,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.TextChars <= 0 {
		l.TextChars = d.TextChars
	}
	if l.PromptsChars <= 0 {
		l.PromptsChars = d.PromptsChars
	}
	if l.SessionLabelChars <= 0 {
		l.SessionLabelChars = d.SessionLabelChars
	}
	if l.CreatedAtChars <= 0 {
		l.CreatedAtChars = d.CreatedAtChars
	}
	if l.ListItems <= 0 {
		l.ListItems = d.ListItems
	}
	if l.ItemChars <= 0 {
		l.ItemChars = d.ItemChars
	}
	return l
}

// Payload is the normalised session summary supplied by the caller.
type Payload struct {
	Intent         string   `json:"intent,omitempty"`
	Risk           string   `json:"risk,omitempty"`
	TestsSummary   string   `json:"tests_summary,omitempty"`
	Prompts        string   `json:"prompts,omitempty"`
	SessionLabel   string   `json:"session_label,omitempty"`
	DeltaNarrative string   `json:"delta_narrative,omitempty"`
	TestsMarkdown  string   `json:"tests_markdown,omitempty"`
	Notes          string   `json:"notes,omitempty"`
	PRScopeBullets []string `json:"pr_scope_bullets,omitempty"`
	Hotspots       []string `json:"hotspots,omitempty"`
	HumanSteering  []string `json:"human_steering,omitempty"`
	Decisions      []string `json:"decisions,omitempty"`
	EntryCreatedAt string   `json:"entry_created_at,omitempty"`
}

const scalar = `{"type": ["string", "number", "boolean", "null"]}`

// payloadSchema documents the accepted payload shape. Violations are reported
// as warnings; normalisation decides what survives.
var payloadSchema = `{
  "type": "object",
  "properties": {
    "intent": ` + scalar + `,
    "risk": ` + scalar + `,
    "tests_summary": ` + scalar + `,
    "prompts": ` + scalar + `,
    "session_label": ` + scalar + `,
    "delta_narrative": ` + scalar + `,
    "tests_markdown": ` + scalar + `,
    "notes": ` + scalar + `,
    "entry_created_at": ` + scalar + `,
    "pr_scope_bullets": {"type": ["array", "string", "null"], "items": ` + scalar + `},
    "hotspots": {"type": ["array", "string", "null"], "items": ` + scalar + `},
    "human_steering": {"type": ["array", "string", "null"], "items": ` + scalar + `},
    "decisions": {"type": ["array", "string", "null"], "items": ` + scalar + `}
  }
}`

var compiledPayloadSchema *jsonschema.Schema

func init() {
	schema, err := jsonschema.NewCompiler().Compile([]byte(payloadSchema))
	if err != nil {
		panic(fmt.Sprintf("compile payload schema: %v", err))
	}
	compiledPayloadSchema = schema
}

// NormalizePayload parses raw JSON into a Payload. Only a non-object document
// is fatal; malformed fields degrade to empty values and are listed as warnings.
func NormalizePayload(data []byte, limits Limits) (Payload, []string, error) {
	if !gjson.ValidBytes(data) {
		return Payload{}, nil, fmt.Errorf("%w: invalid JSON", ErrInvalidPayload)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return Payload{}, nil, ErrInvalidPayload
	}

	var warnings []string
	if result := compiledPayloadSchema.ValidateJSON(data); !result.IsValid() {
		for field, e := range result.Errors {
			warnings = append(warnings, fmt.Sprintf("%v: %v", field, e))
		}
		sort.Strings(warnings)
	}

	l := limits.withDefaults()
	p := Payload{
		Intent:         normalizeText(doc.Get("intent"), l.TextChars),
		Risk:           normalizeText(doc.Get("risk"), l.TextChars),
		TestsSummary:   normalizeText(doc.Get("tests_summary"), l.TextChars),
		Prompts:        normalizeText(doc.Get("prompts"), l.PromptsChars),
		SessionLabel:   normalizeText(doc.Get("session_label"), l.SessionLabelChars),
		DeltaNarrative: normalizeText(doc.Get("delta_narrative"), l.TextChars),
		TestsMarkdown:  normalizeText(doc.Get("tests_markdown"), l.TextChars),
		Notes:          normalizeText(doc.Get("notes"), l.TextChars),
		PRScopeBullets: normalizeList(doc.Get("pr_scope_bullets"), l.ListItems, l.ItemChars),
		Hotspots:       normalizeList(doc.Get("hotspots"), l.ListItems, l.ItemChars),
		HumanSteering:  normalizeList(doc.Get("human_steering"), l.ListItems, l.ItemChars),
		Decisions:      normalizeList(doc.Get("decisions"), l.ListItems, l.ItemChars),
		EntryCreatedAt: normalizeText(doc.Get("entry_created_at"), l.CreatedAtChars),
	}

	if p.TestsSummary == "" {
		p.TestsSummary = deriveTestsSummary(p.TestsMarkdown, l)
	}
	return p, warnings, nil
}

// Redact returns a copy with every text field sanitized and passed through r.
func (p Payload) Redact(r *redact.Redactor) Payload {
	text := func(s string) string { return r.Redact(redact.Sanitize(s)) }
	list := func(items []string) []string { return r.RedactStrings(redact.SanitizeStrings(items)) }

	p.Intent = text(p.Intent)
	p.Risk = text(p.Risk)
	p.TestsSummary = text(p.TestsSummary)
	p.Prompts = text(p.Prompts)
	p.SessionLabel = text(p.SessionLabel)
	p.DeltaNarrative = text(p.DeltaNarrative)
	p.TestsMarkdown = text(p.TestsMarkdown)
	p.Notes = text(p.Notes)
	p.PRScopeBullets = list(p.PRScopeBullets)
	p.Hotspots = list(p.Hotspots)
	p.HumanSteering = list(p.HumanSteering)
	p.Decisions = list(p.Decisions)
	p.EntryCreatedAt = text(p.EntryCreatedAt)
	return p
}

func normalizeText(v gjson.Result, maxChars int) string {
	switch v.Type {
	case gjson.String:
		return truncate(strings.TrimSpace(v.Str), maxChars)
	case gjson.Number, gjson.True, gjson.False:
		return truncate(strings.TrimSpace(v.Raw), maxChars)
	}
	return ""
}

func normalizeList(v gjson.Result, maxItems, maxItemChars int) []string {
	var raw []gjson.Result
	switch {
	case v.IsArray():
		raw = v.Array()
	case v.Type == gjson.String:
		raw = []gjson.Result{v}
	default:
		return nil
	}

	var items []string
	for _, r := range raw {
		if r.IsArray() || r.IsObject() {
			continue
		}
		item := normalizeText(r, maxItemChars)
		if item == "" {
			continue
		}
		items = append(items, item)
		if len(items) >= maxItems {
			break
		}
	}
	return items
}

// truncate shortens text to maxChars runes, ending with "..." when there is room.
func truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	if maxChars <= 3 {
		return string(runes[:maxChars])
	}
	return string(runes[:maxChars-3]) + "..."
}

var reTestItem = regexp.MustCompile(`^\s*-\s*\[([xX ])\]\s*(.+?)\s*$`)

// ParseTestsMarkdown splits a markdown checklist into self-reported (checked)
// and not-run items. Plain "- item" lines count as not run.
func ParseTestsMarkdown(markdown string, itemChars int) (selfReported, notRun []string) {
	if strings.TrimSpace(markdown) == "" {
		return nil, nil
	}
	for _, raw := range strings.Split(markdown, "\n") {
		line := strings.TrimRight(raw, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		var checked bool
		var item string
		if m := reTestItem.FindStringSubmatch(line); m != nil {
			checked = strings.EqualFold(strings.TrimSpace(m[1]), "x")
			item = strings.TrimSpace(m[2])
		} else {
			trimmed := strings.TrimLeft(line, " \t")
			if !strings.HasPrefix(trimmed, "- ") {
				continue
			}
			item = strings.TrimSpace(trimmed[2:])
		}
		if item == "" {
			continue
		}
		item = truncate(item, itemChars)
		if checked {
			selfReported = append(selfReported, item)
		} else {
			notRun = append(notRun, item)
		}
	}
	return selfReported, notRun
}

// RenderTestsSection renders the per-entry tests list.
func RenderTestsSection(markdown string, itemChars int) string {
	selfReported, notRun := ParseTestsMarkdown(markdown, itemChars)
	if len(selfReported) == 0 && len(notRun) == 0 {
		return "- None recorded"
	}
	var lines []string
	if len(selfReported) > 0 {
		lines = append(lines, "- Self-reported:")
		for _, t := range selfReported {
			lines = append(lines, "  - `"+t+"`")
		}
	}
	if len(notRun) > 0 {
		lines = append(lines, "- Not run:")
		for _, t := range notRun {
			lines = append(lines, "  - `"+t+"`")
		}
	}
	return strings.Join(lines, "\n")
}

func deriveTestsSummary(markdown string, l Limits) string {
	selfReported, notRun := ParseTestsMarkdown(markdown, l.ItemChars)
	if len(selfReported) == 0 {
		return ""
	}
	sample := make([]string, 0, 3)
	for i, t := range selfReported {
		if i == 3 {
			break
		}
		sample = append(sample, "`"+t+"`")
	}
	summary := strings.Join(sample, ", ")
	if len(selfReported) > 3 {
		summary += "…"
	}
	if len(notRun) > 0 {
		summary += fmt.Sprintf("; Not run: %d", len(notRun))
	}
	return truncate(summary, l.TextChars)
}
