package notes

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
)

const (
	deltaFirstEntry = "n/a — first entry"
	deltaNoChange   = "n/a — no PR head change since last update"
	deltaUnknown    = "(unable to compute compare)"
)

// CompareFunc returns the files changed between two commits.
type CompareFunc func(ctx context.Context, base, head string) ([]FileChange, error)

// computeDelta summarises what changed since the previously recorded head.
func computeDelta(ctx context.Context, compare CompareFunc, prevHead, head string) (summary, details string) {
	if prevHead == "" {
		return deltaFirstEntry, "- " + deltaFirstEntry
	}
	if prevHead == head {
		return deltaNoChange, "- " + deltaNoChange
	}
	if compare == nil {
		return deltaUnknown, "- " + deltaUnknown
	}

	files, err := compare(ctx, prevHead, head)
	if err != nil {
		log.Printf("[Build] compare %s...%s failed: %v", shortSHA(prevHead), shortSHA(head), err)
		return deltaUnknown, "- " + deltaUnknown
	}

	var additions, deletions int
	for _, f := range files {
		additions += f.Additions
		deletions += f.Deletions
	}
	summary = fmt.Sprintf("`%d` files • +%d / -%d", len(files), additions, deletions)

	top := append([]FileChange(nil), files...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Changes > top[j].Changes })
	if len(top) > 8 {
		top = top[:8]
	}
	var lines []string
	for _, f := range top {
		if f.Filename == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- `%s` (+%d/-%d)", f.Filename, f.Additions, f.Deletions))
	}
	if len(lines) == 0 {
		return summary, "- (no file-level delta available)"
	}
	return summary, strings.Join(lines, "\n")
}

type areaStats struct {
	area      string
	files     map[string]struct{}
	additions int
	deletions int
}

func areaForPath(filename string) string {
	head, _, found := strings.Cut(filename, "/")
	if !found {
		return "(root)"
	}
	return head + "/"
}

// renderHotspotMap groups PR files by top-level directory and shows the ten
// areas with the most changed lines.
func renderHotspotMap(files []FileChange) string {
	if len(files) == 0 {
		return "- (unable to compute)"
	}

	grouped := make(map[string]*areaStats)
	var order []string
	for _, f := range files {
		if f.Filename == "" {
			continue
		}
		area := areaForPath(f.Filename)
		stats, ok := grouped[area]
		if !ok {
			stats = &areaStats{area: area, files: map[string]struct{}{}}
			grouped[area] = stats
			order = append(order, area)
		}
		stats.files[f.Filename] = struct{}{}
		stats.additions += f.Additions
		stats.deletions += f.Deletions
	}
	if len(order) == 0 {
		return "- (no file-level data available)"
	}

	rows := make([]*areaStats, 0, len(order))
	for _, area := range order {
		rows = append(rows, grouped[area])
	}
	sort.SliceStable(rows, func(i, j int) bool {
		ci, cj := rows[i].additions+rows[i].deletions, rows[j].additions+rows[j].deletions
		if ci != cj {
			return ci > cj
		}
		return len(rows[i].files) > len(rows[j].files)
	})
	if len(rows) > 10 {
		rows = rows[:10]
	}

	lines := []string{
		"| Area | Files | + | - |",
		"| --- | ---: | ---: | ---: |",
	}
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("| `%s` | %d | %d | %d |", r.area, len(r.files), r.additions, r.deletions))
	}
	return strings.Join(lines, "\n")
}
