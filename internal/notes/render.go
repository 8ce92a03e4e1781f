package notes

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"
)

// Summary carries the fields shown around the entry log.
type Summary struct {
	Intent       string
	Risk         string
	TestsSummary string

	BaseRef      string
	HeadSHA      string
	PRURL        string
	ChangedFiles int
	Additions    int
	Deletions    int
	Commits      int

	DeltaSummary string
	DeltaDetails string
	HotspotMap   string

	ScopeBullets []string
	Hotspots     []string
	Provenance   []string
	Prompts      string

	UpdatedAt time.Time
}

const documentTemplate = `{{.Marker}}
{{.StateLine}}

<div align="center">

## SESSION NOTES
<sub>Single upserted PR comment • cumulative across Codex + Claude Code sessions</sub>

</div>

> [!IMPORTANT]
> This comment is **updated**, not duplicated. Re-run ` + "`session-notes upsert`" + ` to update it. Please do not create a second “SESSION NOTES” comment.

### Summary

| Field | Value |
| --- | --- |
| **Intent** | {{or .S.Intent "-"}} |
| **PR coverage** | ` + "`{{.S.BaseRef}}...{{short .S.HeadSHA}}`" + ` |
| **PR size** | {{.S.ChangedFiles}} files • +{{.S.Additions}} / -{{.S.Deletions}} • {{.S.Commits}} commits |
| **Sessions** | {{.Sessions}} |
| **Latest delta** | {{.S.DeltaSummary}} |
| **Risk** | {{or .S.Risk "-"}} |
| **Tests** | {{if .S.TestsSummary}}Self-reported: {{.S.TestsSummary}}{{else}}None recorded (see session log){{end}} |

<details>
<summary><strong>What changed (full PR diff)</strong></summary>

{{bullets .S.ScopeBullets}}

</details>

<details>
<summary><strong>Hotspot map (deterministic)</strong></summary>

{{.S.HotspotMap}}

</details>

<details>
<summary><strong>Review hotspots / risks</strong></summary>

{{bullets .S.Hotspots}}

</details>

<details>
<summary><strong>Latest delta (since prior update)</strong></summary>

{{.S.DeltaDetails}}

</details>

<details>
<summary><strong>Provenance / integrity</strong></summary>

{{if .S.Provenance}}{{join .S.Provenance "\n"}}{{else}}-{{end}}

</details>

<details>
<summary><strong>Session log (cumulative)</strong> <sub>(newest first)</sub></summary>

{{.SessionsStart}}
{{.Entries}}
{{.SessionsEnd}}

</details>

<details>
<summary><strong>Prompts (optional, redacted)</strong></summary>

` + "```text" + `
{{or .S.Prompts "-"}}
` + "```" + `

</details>

---

<sub>PR: {{.S.PRURL}} • Last updated: {{stamp .S.UpdatedAt}} • No secrets/tokens/credentials in this comment</sub>
`

const entryTemplate = `{{.MetaLine}}
<details>
<summary><strong>{{.Stamp}}</strong> • {{.Tool}} • {{or .P.SessionLabel "session update"}}</summary>

**Human steering**
{{bullets .P.HumanSteering}}

**Delta**
{{or .P.DeltaNarrative "- (see delta section above)"}}

**Key decisions**
{{bullets .P.Decisions}}

**Tests (this session)**
{{.Tests}}

**Notes**
{{or .P.Notes "-"}}

</details>`

var templateFuncs = template.FuncMap{
	"bullets": renderBullets,
	"join":    strings.Join,
	"short":   shortSHA,
	"stamp":   formatStamp,
}

var (
	documentTmpl = template.Must(template.New("document").Funcs(templateFuncs).Parse(documentTemplate))
	entryTmpl    = template.Must(template.New("entry").Funcs(templateFuncs).Parse(entryTemplate))
)

// RenderDocument renders the full comment body.
func RenderDocument(state State, entriesBlock string, s Summary) (string, error) {
	stateLine, err := state.Encode()
	if err != nil {
		return "", err
	}

	data := map[string]interface{}{
		"Marker":        Marker,
		"StateLine":     stateLine,
		"SessionsStart": sessionsStart,
		"SessionsEnd":   sessionsEnd,
		"Entries":       strings.TrimRight(entriesBlock, " \t\r\n"),
		"Sessions":      renderSessionCounts(state),
		"S":             s,
	}

	var buf bytes.Buffer
	if err := documentTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render document: %w", err)
	}
	return buf.String(), nil
}

// RenderEntry renders one entry block, metadata comment included.
func RenderEntry(meta EntryMeta, p Payload, itemChars int) (string, error) {
	metaLine, err := meta.Encode()
	if err != nil {
		return "", err
	}

	stamp := meta.CreatedAt
	if t := parseTimestamp(meta.CreatedAt); t != nil {
		stamp = formatStamp(*t)
	}

	data := map[string]interface{}{
		"MetaLine": metaLine,
		"Stamp":    stamp,
		"Tool":     meta.Tool,
		"Tests":    RenderTestsSection(p.TestsMarkdown, itemChars),
		"P":        p,
	}

	var buf bytes.Buffer
	if err := entryTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render entry: %w", err)
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}

func renderSessionCounts(state State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "`%d` (Codex×`%d`, Claude×`%d`", state.SessionsTotal, state.ByTool[ToolCodex], state.ByTool[ToolClaude])

	var others []string
	for tool := range state.ByTool {
		if tool != ToolCodex && tool != ToolClaude {
			others = append(others, tool)
		}
	}
	sort.Strings(others)
	for _, tool := range others {
		fmt.Fprintf(&b, ", %s×`%d`", tool, state.ByTool[tool])
	}
	b.WriteString(")")
	return b.String()
}

func renderBullets(items []string) string {
	var lines []string
	for _, item := range items {
		if strings.TrimSpace(item) != "" {
			lines = append(lines, "- "+item)
		}
	}
	if len(lines) == 0 {
		return "- (not provided)"
	}
	return strings.Join(lines, "\n")
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04 MST")
}
