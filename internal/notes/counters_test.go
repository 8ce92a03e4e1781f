package notes

import (
	"reflect"
	"testing"
)

func TestCountEntries(t *testing.T) {
	block := joinBlock([]string{
		testEntry("codex", "a", "2026-01-01T10:00:00Z", "x"),
		testEntry("claude", "b", "2026-01-01T09:00:00Z", "x"),
		testEntry("codex", "a", "2026-01-01T08:00:00Z", "dup"),
		testEntry("unknown", "u", "2026-01-01T07:00:00Z", "x"),
		entryMetaPrefix + `{"tool":"codex"} -->`,
	})
	got := CountEntries(block)
	if got.Total != 3 {
		t.Errorf("Total = %d, want 3", got.Total)
	}
	wantByTool := map[string]int{"codex": 1, "claude": 1, "unknown": 1}
	if !reflect.DeepEqual(got.ByTool, wantByTool) {
		t.Errorf("ByTool = %v, want %v", got.ByTool, wantByTool)
	}
	wantIncluded := []IncludedSession{{"codex", "a"}, {"claude", "b"}, {"unknown", "u"}}
	if !reflect.DeepEqual(got.Included, wantIncluded) {
		t.Errorf("Included = %v, want %v", got.Included, wantIncluded)
	}

	empty := CountEntries("")
	if empty.Total != 0 || empty.ByTool[ToolCodex] != 0 || empty.ByTool[ToolClaude] != 0 {
		t.Errorf("empty counts = %+v", empty)
	}
	if _, ok := empty.ByTool[ToolClaude]; !ok {
		t.Errorf("claude counter must always be present")
	}
}

func TestReconcile(t *testing.T) {
	codexA := SessionKey{Tool: ToolCodex, SessionID: "a"}
	claudeN := SessionKey{Tool: ToolClaude, SessionID: "n"}

	withCounters := func(total int, byTool map[string]int, included ...IncludedSession) State {
		return State{SessionsTotal: total, ByTool: byTool, IncludedSessions: included, hasTotal: true, hasByTool: true}
	}

	tests := []struct {
		name       string
		prev       State
		scanned    Counts
		active     SessionKey
		existed    bool
		wantTotal  int
		wantByTool map[string]int
	}{
		{
			name:       "no previous counters uses scanned",
			prev:       State{},
			scanned:    Counts{Total: 1, ByTool: map[string]int{ToolCodex: 1}},
			active:     codexA,
			wantTotal:  1,
			wantByTool: map[string]int{ToolCodex: 1, ToolClaude: 0},
		},
		{
			name:       "truncated log keeps previous total and adds new session",
			prev:       withCounters(10, map[string]int{ToolCodex: 6, ToolClaude: 4}),
			scanned:    Counts{Total: 3, ByTool: map[string]int{ToolCodex: 1, ToolClaude: 2}},
			active:     claudeN,
			wantTotal:  11,
			wantByTool: map[string]int{ToolCodex: 6, ToolClaude: 5},
		},
		{
			name:       "existing session does not increment",
			prev:       withCounters(2, map[string]int{ToolCodex: 1, ToolClaude: 1}),
			scanned:    Counts{Total: 2, ByTool: map[string]int{ToolCodex: 1, ToolClaude: 1}},
			active:     codexA,
			existed:    true,
			wantTotal:  2,
			wantByTool: map[string]int{ToolCodex: 1, ToolClaude: 1},
		},
		{
			name:       "scanned higher than stored wins",
			prev:       withCounters(1, map[string]int{ToolCodex: 1, ToolClaude: 0}),
			scanned:    Counts{Total: 4, ByTool: map[string]int{ToolCodex: 2, ToolClaude: 2}},
			active:     codexA,
			wantTotal:  4,
			wantByTool: map[string]int{ToolCodex: 2, ToolClaude: 2},
		},
		{
			name:       "zero total lifted",
			prev:       withCounters(0, map[string]int{}),
			scanned:    Counts{Total: 0, ByTool: map[string]int{}},
			active:     codexA,
			existed:    true,
			wantTotal:  1,
			wantByTool: map[string]int{ToolCodex: 0, ToolClaude: 0},
		},
		{
			name:       "new tool without stored counter",
			prev:       withCounters(2, map[string]int{ToolCodex: 1, ToolClaude: 1}),
			scanned:    Counts{Total: 3, ByTool: map[string]int{ToolCodex: 1, ToolClaude: 1, ToolUnknown: 1}},
			active:     SessionKey{Tool: ToolUnknown, SessionID: "u"},
			wantTotal:  3,
			wantByTool: map[string]int{ToolCodex: 1, ToolClaude: 1, ToolUnknown: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.prev, tt.scanned, tt.active, tt.existed)
			if got.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", got.Total, tt.wantTotal)
			}
			if !reflect.DeepEqual(got.ByTool, tt.wantByTool) {
				t.Errorf("ByTool = %v, want %v", got.ByTool, tt.wantByTool)
			}
		})
	}
}

func TestReconcile_IncludedNeverShrinks(t *testing.T) {
	prev := State{IncludedSessions: []IncludedSession{{"codex", "old"}, {"claude", "b"}}}
	scanned := Counts{Total: 2, Included: []IncludedSession{{"claude", "b"}, {"codex", "new"}}}
	got := Reconcile(prev, scanned, SessionKey{Tool: "codex", SessionID: "new"}, false)
	want := []IncludedSession{{"codex", "old"}, {"claude", "b"}, {"codex", "new"}}
	if !reflect.DeepEqual(got.Included, want) {
		t.Fatalf("Included = %v, want %v", got.Included, want)
	}
}

func TestReconcile_Monotonic(t *testing.T) {
	state := State{}
	var lastTotal int
	lastByTool := map[string]int{}
	sequence := []struct {
		key     SessionKey
		scanned int
		existed bool
	}{
		{SessionKey{ToolCodex, "a"}, 1, false},
		{SessionKey{ToolClaude, "b"}, 2, false},
		{SessionKey{ToolCodex, "a"}, 2, true},
		{SessionKey{ToolCodex, "c"}, 1, false},
		{SessionKey{ToolClaude, "d"}, 1, false},
	}
	for i, step := range sequence {
		scanned := Counts{Total: step.scanned, ByTool: map[string]int{step.key.Tool: 1}}
		got := Reconcile(state, scanned, step.key, step.existed)
		if got.Total < lastTotal {
			t.Fatalf("step %d: total decreased %d -> %d", i, lastTotal, got.Total)
		}
		for tool, n := range lastByTool {
			if got.ByTool[tool] < n {
				t.Fatalf("step %d: %s decreased %d -> %d", i, tool, n, got.ByTool[tool])
			}
		}
		lastTotal, lastByTool = got.Total, got.ByTool
		state = State{SessionsTotal: got.Total, ByTool: got.ByTool, hasTotal: true, hasByTool: true}
	}
	if lastTotal != 4 {
		t.Fatalf("final total = %d, want 4", lastTotal)
	}
}
