// Package webhook accepts signed notes submissions over HTTP and applies
// them to the pull request's notes comment.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/cexll/session-notes/internal/concurrency"
	"github.com/cexll/session-notes/internal/notes"
	"github.com/cexll/session-notes/internal/runlog"
)

// MaxBodyBytes caps a submission request body.
const MaxBodyBytes = 1 << 20

// StoreFactory binds a notes store to one pull request.
type StoreFactory func(ctx context.Context, owner, repo string, number int) (notes.Store, error)

// Submission is the request body of a notes submission.
type Submission struct {
	Tool      string          `json:"tool"`
	SessionID string          `json:"session_id"`
	Payload   json.RawMessage `json:"payload"`
	DryRun    bool            `json:"dry_run"`
}

// SubmitResponse is returned for an applied (or dry-run) submission.
type SubmitResponse struct {
	RunID     string   `json:"run_id"`
	CommentID int64    `json:"comment_id"`
	URL       string   `json:"url,omitempty"`
	Rev       int      `json:"rev"`
	Attempts  int      `json:"attempts"`
	DryRun    bool     `json:"dry_run,omitempty"`
	Body      string   `json:"body,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	Duplicate bool     `json:"duplicate,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the notes intake endpoints.
type Handler struct {
	webhookSecret string
	stores        StoreFactory
	builder       *notes.Builder
	maxAttempts   int
	deduper       *requestDeduper
	runs          *runlog.Store
	// locks serializes submissions for the same pull request.
	locks *concurrency.Manager
}

// NewHandler creates a handler. maxAttempts <= 0 uses the upsert default.
func NewHandler(webhookSecret string, stores StoreFactory, builder *notes.Builder, maxAttempts int, runs *runlog.Store) *Handler {
	if builder == nil {
		builder = &notes.Builder{}
	}
	if runs == nil {
		runs = runlog.NewStore(0)
	}
	return &Handler{
		webhookSecret: webhookSecret,
		stores:        stores,
		builder:       builder,
		maxAttempts:   maxAttempts,
		deduper:       newRequestDeduper(time.Hour),
		runs:          runs,
		locks:         concurrency.NewManager(),
	}
}

// RegisterRoutes registers the intake, run log and health routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/repos/{owner}/{repo}/pulls/{number:[0-9]+}/session-notes", h.HandleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/runs", h.HandleRuns).Methods(http.MethodGet)
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
}

// Router returns a router with all routes registered.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// HandleSubmit verifies, decodes and applies one submission synchronously.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	// 1. Read payload
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Printf("[Serve] Rejecting body over %d bytes", MaxBodyBytes)
			writeError(w, http.StatusRequestEntityTooLarge, ErrBodyTooLarge)
			return
		}
		log.Printf("[Serve] Error reading payload: %v", err)
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: unreadable body", ErrBadRequest))
		return
	}

	// 2. Verify signature
	signature := r.Header.Get("X-Hub-Signature-256")
	if err := ValidateSignatureHeader(signature); err != nil {
		log.Printf("[Serve] Invalid signature header: %v", err)
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	if !VerifySignature(body, signature, h.webhookSecret) {
		log.Printf("[Serve] Signature verification failed")
		writeError(w, http.StatusUnauthorized, errors.New("invalid signature"))
		return
	}

	// 3. Decode target and submission
	vars := mux.Vars(r)
	owner, repo := vars["owner"], vars["repo"]
	number, err := strconv.Atoi(vars["number"])
	if err != nil || number <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: invalid pull request number %q", ErrBadRequest, vars["number"]))
		return
	}

	sub, payload, warnings, err := h.decode(body)
	if err != nil {
		log.Printf("[Serve] Rejecting submission for %s/%s#%d: %v", owner, repo, number, err)
		writeError(w, statusFor(err), err)
		return
	}

	// 4. Drop redelivered requests
	requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if !h.deduper.markIfNew(requestID) {
		log.Printf("[Serve] Ignoring duplicate request: id=%s", requestID)
		writeJSON(w, http.StatusOK, SubmitResponse{RunID: requestID, Duplicate: true})
		return
	}

	// 5. Apply
	run := &runlog.Run{
		ID:        h.generateRunID(owner, repo, number),
		Repo:      owner + "/" + repo,
		PR:        number,
		Tool:      sub.Tool,
		SessionID: sub.SessionID,
		DryRun:    sub.DryRun,
	}
	h.runs.Create(run)
	for _, warning := range warnings {
		h.runs.AddLog(run.ID, "info", "payload warning: "+warning)
	}

	result, err := h.apply(r.Context(), owner, repo, number, sub, payload)
	if err != nil {
		h.deduper.forget(requestID)
		h.runs.Fail(run.ID, err)
		log.Printf("[Serve] Run %s failed: %v", run.ID, err)
		writeError(w, statusFor(err), err)
		return
	}

	h.runs.Complete(run.ID, runlog.Outcome{
		CommentID: result.CommentID,
		URL:       result.URL,
		Rev:       result.Rev,
		Attempts:  result.Attempts,
	})
	log.Printf("[Serve] Run %s applied: comment=%d rev=%d attempts=%d", run.ID, result.CommentID, result.Rev, result.Attempts)

	resp := SubmitResponse{
		RunID:     run.ID,
		CommentID: result.CommentID,
		URL:       result.URL,
		Rev:       result.Rev,
		Attempts:  result.Attempts,
		DryRun:    result.DryRun,
		Warnings:  warnings,
	}
	if result.DryRun {
		resp.Body = result.Body
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) decode(body []byte) (Submission, notes.Payload, []string, error) {
	var sub Submission
	if err := json.Unmarshal(body, &sub); err != nil {
		return sub, notes.Payload{}, nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	sub.Tool = strings.ToLower(strings.TrimSpace(sub.Tool))
	sub.SessionID = strings.TrimSpace(sub.SessionID)
	if sub.Tool == "" || sub.SessionID == "" {
		return sub, notes.Payload{}, nil, fmt.Errorf("%w: tool and session_id are required", ErrBadRequest)
	}
	if len(sub.Payload) == 0 {
		return sub, notes.Payload{}, nil, fmt.Errorf("%w: payload is required", ErrBadRequest)
	}
	payload, warnings, err := notes.NormalizePayload(sub.Payload, h.builder.Limits)
	if err != nil {
		return sub, notes.Payload{}, nil, err
	}
	return sub, payload, warnings, nil
}

func (h *Handler) apply(ctx context.Context, owner, repo string, number int, sub Submission, payload notes.Payload) (*notes.Result, error) {
	if h.stores == nil {
		return nil, errors.New("no store configured")
	}
	key := concurrency.Key(owner, repo, number)
	if err := h.locks.Acquire(ctx, key); err != nil {
		return nil, err
	}
	defer h.locks.Release(key)

	store, err := h.stores(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("open store for %s/%s#%d: %w", owner, repo, number, err)
	}
	upserter := notes.NewUpserter(store, h.builder)
	if h.maxAttempts > 0 {
		upserter.MaxAttempts = h.maxAttempts
	}
	return upserter.Upsert(ctx, notes.Request{
		Payload: payload,
		Key:     notes.SessionKey{Tool: sub.Tool, SessionID: sub.SessionID},
		DryRun:  sub.DryRun,
	})
}

// HandleRuns lists recent runs, newest first.
func (h *Handler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.runs.List())
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) generateRunID(owner, repo string, number int) string {
	return fmt.Sprintf("%s-%s-%d-%d", owner, repo, number, time.Now().UnixNano())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Serve] Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
