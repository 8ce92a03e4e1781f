package notes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cexll/session-notes/internal/redact"
)

// DefaultGenerator identifies documents written by this module.
const DefaultGenerator = "session-notes"

// Existing is the marker comment chosen for update.
type Existing struct {
	Comment     Comment
	MarkerCount int
}

// Input is everything Build needs besides the existing document.
type Input struct {
	PR      PullRequest
	Files   []FileChange
	Payload Payload
	Key     SessionKey
	Compare CompareFunc
}

// Candidate is a fully rendered document ready to be written.
type Candidate struct {
	Body           string
	Rev            int
	SessionsSHA256 string
	Existing       *Existing
	Layout         Layout
	Repairs        []string
}

// Builder merges a new session entry into an existing document.
type Builder struct {
	Generator        string
	GeneratorVersion string
	MaxBodyChars     int
	Limits           Limits
	Redactor         *redact.Redactor
	Now              func() time.Time
}

func (b *Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// Build derives the next document from existing (nil when none exists).
func (b *Builder) Build(ctx context.Context, existing *Existing, in Input) (*Candidate, error) {
	now := b.now()
	red := b.redactorFor(in.PR.HTMLURL)
	// Keys are written verbatim into entry metadata and state, so one that
	// redaction would rewrite could never be found again by verify.
	if red.Redact(in.Key.Tool) != in.Key.Tool || red.Redact(in.Key.SessionID) != in.Key.SessionID {
		return nil, ErrRedactedKey
	}
	payload := in.Payload.Redact(red)
	limits := b.Limits.withDefaults()

	createdAt := now
	if t := parseTimestamp(payload.EntryCreatedAt); t != nil {
		createdAt = *t
	}
	newEntry, err := RenderEntry(EntryMeta{
		Tool:      in.Key.Tool,
		SessionID: in.Key.SessionID,
		CreatedAt: createdAt.Format(time.RFC3339),
	}, payload, limits.ItemChars)
	if err != nil {
		return nil, err
	}

	var (
		prev    State
		block   string
		repairs []string
	)
	if existing != nil {
		var notes []string
		prev, notes = ExtractState(existing.Comment.Body)
		repairs = append(repairs, notes...)
		block, notes = ExtractEntryLog(existing.Comment.Body)
		repairs = append(repairs, notes...)
	}

	head := in.PR.HeadSHA
	deltaSummary, deltaDetails := computeDelta(ctx, in.Compare, prev.Head, head)
	deltaEmpty := prev.Head != "" && prev.Head == head

	existed := prev.includes(in.Key)
	for _, e := range ParseEntries(block) {
		if existed {
			break
		}
		existed = e.hasKey(in.Key)
	}
	merged := MergeEntries(block, newEntry, in.Key, deltaEmpty)
	merged = NormalizeEntries(merged, &in.Key, 0)

	counts := Reconcile(prev, CountEntries(merged), in.Key, existed)

	repairCount := prev.RepairCount
	lastRepairAt := prev.LastRepairAt
	if len(repairs) > 0 {
		repairCount++
		lastRepairAt = now.Format(time.RFC3339)
	}
	rev := prev.Rev + 1

	generator := b.Generator
	if generator == "" {
		generator = DefaultGenerator
	}

	provenance := []string{
		fmt.Sprintf("- PR scope: GitHub diff `%s...%s`", in.PR.BaseRef, shortSHA(head)),
	}
	if prev.Head != "" {
		provenance = append(provenance, fmt.Sprintf("- Delta: compare `%s...%s`", shortSHA(prev.Head), shortSHA(head)))
	} else {
		provenance = append(provenance, "- Delta: n/a (first entry)")
	}
	provenance = append(provenance, fmt.Sprintf("- Generator: `%s` schema=%d rev=%d", generator, SchemaVersion, rev))
	if b.GeneratorVersion != "" {
		provenance = append(provenance, fmt.Sprintf("- Generator version: `%s`", b.GeneratorVersion))
	}
	if existing != nil && existing.MarkerCount > 1 {
		provenance = append(provenance, fmt.Sprintf("- Duplicate marker comments: `%d` (updating most recent).", existing.MarkerCount))
	}
	if len(repairs) > 0 {
		provenance = append(provenance, "- Repairs:")
		for _, r := range repairs {
			provenance = append(provenance, "  - "+r)
		}
	}

	summary := Summary{
		Intent:       payload.Intent,
		Risk:         payload.Risk,
		TestsSummary: payload.TestsSummary,
		BaseRef:      in.PR.BaseRef,
		HeadSHA:      head,
		PRURL:        in.PR.HTMLURL,
		ChangedFiles: in.PR.ChangedFiles,
		Additions:    in.PR.Additions,
		Deletions:    in.PR.Deletions,
		Commits:      in.PR.Commits,
		DeltaSummary: deltaSummary,
		DeltaDetails: deltaDetails,
		HotspotMap:   renderHotspotMap(in.Files),
		ScopeBullets: payload.PRScopeBullets,
		Hotspots:     payload.Hotspots,
		Prompts:      payload.Prompts,
		UpdatedAt:    now,
	}

	state := State{
		Schema:           SchemaVersion,
		Base:             in.PR.BaseRef,
		Head:             head,
		PrevHead:         prev.Head,
		Rev:              rev,
		SessionsTotal:    counts.Total,
		ByTool:           counts.ByTool,
		IncludedSessions: counts.Included,
		RepairCount:      repairCount,
		LastRepairAt:     lastRepairAt,
		Generator:        generator,
		GeneratorVersion: b.GeneratorVersion,
		LastUpdated:      now.Format(time.RFC3339),
	}

	render := func(layout Layout) (string, error) {
		s := summary
		s.Provenance = append(append([]string(nil), provenance...), layout.Notes...)
		if layout.OmitPrompts {
			s.Prompts = ""
		}
		st := state
		st.SessionsSHA256 = blockSHA256(layout.Block)
		return RenderDocument(st, layout.Block, s)
	}

	body, layout, err := Fit(render, merged, in.Key, b.MaxBodyChars, payload.Prompts != "")
	if err != nil {
		return nil, err
	}

	return &Candidate{
		Body:           body,
		Rev:            rev,
		SessionsSHA256: blockSHA256(layout.Block),
		Existing:       existing,
		Layout:         layout,
		Repairs:        repairs,
	}, nil
}

func (b *Builder) redactorFor(prURL string) *redact.Redactor {
	r := b.Redactor
	if r == nil {
		r = redact.New("", "github.com")
	}
	if u, err := url.Parse(prURL); err == nil && u.Host != "" {
		r = r.WithHosts(u.Host)
	}
	return r
}

func blockSHA256(block string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(block)))
	return hex.EncodeToString(sum[:])
}
