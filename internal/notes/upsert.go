package notes

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// DefaultMaxAttempts bounds the fetch, build, write, verify loop.
const DefaultMaxAttempts = 3

// Phase names the step of an upsert attempt, used in logs.
type Phase string

const (
	PhaseFetch  Phase = "FETCH"
	PhaseBuild  Phase = "BUILD"
	PhaseWrite  Phase = "WRITE"
	PhaseVerify Phase = "VERIFY"
	PhaseDone   Phase = "DONE"
	PhaseRetry  Phase = "RETRY"
	PhaseFailed Phase = "FAILED"
)

// Request describes one session update.
type Request struct {
	Payload Payload
	Key     SessionKey
	DryRun  bool
}

// Result reports the outcome of Upsert.
type Result struct {
	CommentID int64
	URL       string
	Body      string
	Rev       int
	Attempts  int
	Created   bool
	DryRun    bool
}

// Upserter keeps exactly one notes comment on a pull request up to date.
// The store has no conditional update, so each write is read back and
// compared against the expected revision and log hash.
type Upserter struct {
	Store       Store
	Builder     *Builder
	MaxAttempts int
}

// NewUpserter creates an Upserter with default attempts.
func NewUpserter(store Store, builder *Builder) *Upserter {
	if builder == nil {
		builder = &Builder{}
	}
	return &Upserter{Store: store, Builder: builder, MaxAttempts: DefaultMaxAttempts}
}

// Upsert merges req into the notes comment, creating it when none exists.
func (u *Upserter) Upsert(ctx context.Context, req Request) (*Result, error) {
	if req.Key.Tool == "" || req.Key.SessionID == "" {
		return nil, errors.New("tool and session id are required")
	}

	pr, err := u.Store.GetPullRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("get pull request: %w", err)
	}
	if pr.HeadSHA == "" {
		return nil, errors.New("unable to resolve PR head SHA")
	}

	files, err := u.Store.ListFiles(ctx)
	if err != nil {
		log.Printf("[Upsert] list files for PR #%d failed, hotspot map unavailable: %v", pr.Number, err)
		files = nil
	}

	in := Input{
		PR:      *pr,
		Files:   files,
		Payload: req.Payload,
		Key:     req.Key,
		Compare: u.Store.Compare,
	}

	attempts := u.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		u.logPhase(attempt, PhaseFetch, "PR #%d", pr.Number)
		existing, err := u.fetchExisting(ctx)
		if err != nil {
			return nil, err
		}

		u.logPhase(attempt, PhaseBuild, "session %s", req.Key)
		candidate, err := u.Builder.Build(ctx, existing, in)
		if err != nil {
			u.logPhase(attempt, PhaseFailed, "%v", err)
			return nil, err
		}

		if req.DryRun {
			res := &Result{Body: candidate.Body, Rev: candidate.Rev, Attempts: attempt, DryRun: true}
			if existing != nil {
				res.CommentID = existing.Comment.ID
				res.URL = existing.Comment.HTMLURL
			}
			return res, nil
		}

		u.logPhase(attempt, PhaseWrite, "rev=%d", candidate.Rev)
		written, created, err := u.write(ctx, existing, candidate.Body)
		if err != nil {
			return nil, err
		}

		u.logPhase(attempt, PhaseVerify, "comment %d", written.ID)
		fetched, err := u.Store.GetComment(ctx, written.ID)
		if err != nil {
			return nil, fmt.Errorf("verify comment %d: %w", written.ID, err)
		}
		if verify(fetched.Body, candidate, req.Key) {
			u.logPhase(attempt, PhaseDone, "comment %d rev=%d", written.ID, candidate.Rev)
			url := fetched.HTMLURL
			if url == "" {
				url = written.HTMLURL
			}
			return &Result{
				CommentID: written.ID,
				URL:       url,
				Body:      fetched.Body,
				Rev:       candidate.Rev,
				Attempts:  attempt,
				Created:   created,
			}, nil
		}
		u.logPhase(attempt, PhaseRetry, "comment %d changed concurrently", written.ID)
	}

	log.Printf("[Upsert] %s after %d attempts", PhaseFailed, attempts)
	return nil, fmt.Errorf("%w (%d attempts)", ErrConflict, attempts)
}

// fetchExisting picks the most recently updated marker comment and re-reads
// it by id. Duplicates are counted, never deleted.
func (u *Upserter) fetchExisting(ctx context.Context) (*Existing, error) {
	comments, err := u.Store.ListComments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}

	var chosen *Comment
	count := 0
	for i := range comments {
		if !HasMarker(comments[i].Body) {
			continue
		}
		count++
		if chosen == nil || !comments[i].UpdatedAt.Before(chosen.UpdatedAt) {
			chosen = &comments[i]
		}
	}
	if chosen == nil {
		return nil, nil
	}
	if count > 1 {
		log.Printf("[Upsert] found %d marker comments, updating most recent (%d)", count, chosen.ID)
	}

	fresh, err := u.Store.GetComment(ctx, chosen.ID)
	if err != nil {
		return nil, fmt.Errorf("get comment %d: %w", chosen.ID, err)
	}
	return &Existing{Comment: *fresh, MarkerCount: count}, nil
}

func (u *Upserter) write(ctx context.Context, existing *Existing, body string) (*Comment, bool, error) {
	if existing != nil {
		c, err := u.Store.UpdateComment(ctx, existing.Comment.ID, body)
		if err != nil {
			return nil, false, fmt.Errorf("update comment %d: %w", existing.Comment.ID, err)
		}
		if c.ID == 0 {
			c.ID = existing.Comment.ID
		}
		return c, false, nil
	}
	c, err := u.Store.CreateComment(ctx, body)
	if err != nil {
		return nil, false, fmt.Errorf("create comment: %w", err)
	}
	return c, true, nil
}

// verify reports whether the stored body is the one this attempt wrote.
func verify(body string, candidate *Candidate, key SessionKey) bool {
	state, _ := ExtractState(body)
	return state.Rev == candidate.Rev &&
		state.SessionsSHA256 == candidate.SessionsSHA256 &&
		EntryPresent(body, key)
}

func (u *Upserter) logPhase(attempt int, phase Phase, format string, args ...interface{}) {
	log.Printf("[Upsert] attempt %d %s: %s", attempt, phase, fmt.Sprintf(format, args...))
}
