package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	gh "github.com/google/go-github/v66/github"
	"github.com/gorilla/mux"
)

// PR is the pull request served by the fake.
type PR struct {
	Number       int
	BaseRef      string
	HeadSHA      string
	Branch       string
	HTMLURL      string
	Additions    int
	Deletions    int
	ChangedFiles int
	Commits      int
}

// File is one changed file.
type File struct {
	Filename  string
	Additions int
	Deletions int
}

// Server is an in-memory GitHub REST API covering the endpoints the notes
// store, PR resolution and App auth use. Mount point is /api/v3 so
// go-github clients configured with WithEnterpriseURLs(URL) reach it.
type Server struct {
	*httptest.Server

	Owner string
	Repo  string

	// PageSize caps per_page; 0 honours the client's request.
	PageSize int

	// AfterWrite runs after a comment create/edit is applied and before the
	// response is sent, outside the server lock.
	AfterWrite func(id int64)

	mu       sync.Mutex
	pr       PR
	files    []File
	compares map[string][]File
	comments []*gh.IssueComment
	nextID   int64
	clock    time.Time
	failures map[string]int
	requests []string
}

// NewServer starts a fake for owner/repo. Call Close when done.
func NewServer(owner, repo string) *Server {
	s := &Server{
		Owner:    owner,
		Repo:     repo,
		compares: make(map[string][]File),
		failures: make(map[string]int),
		nextID:   1000,
		clock:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v3").Subrouter()
	api.HandleFunc("/repos/{owner}/{repo}/issues/comments/{id:[0-9]+}", s.handleGetComment).Methods(http.MethodGet)
	api.HandleFunc("/repos/{owner}/{repo}/issues/comments/{id:[0-9]+}", s.handleEditComment).Methods(http.MethodPatch)
	api.HandleFunc("/repos/{owner}/{repo}/issues/{number:[0-9]+}/comments", s.handleListComments).Methods(http.MethodGet)
	api.HandleFunc("/repos/{owner}/{repo}/issues/{number:[0-9]+}/comments", s.handleCreateComment).Methods(http.MethodPost)
	api.HandleFunc("/repos/{owner}/{repo}/pulls/{number:[0-9]+}/files", s.handleListFiles).Methods(http.MethodGet)
	api.HandleFunc("/repos/{owner}/{repo}/pulls/{number:[0-9]+}", s.handleGetPR).Methods(http.MethodGet)
	api.HandleFunc("/repos/{owner}/{repo}/pulls", s.handleListPRs).Methods(http.MethodGet)
	api.HandleFunc("/repos/{owner}/{repo}/compare/{basehead}", s.handleCompare).Methods(http.MethodGet)
	api.HandleFunc("/repos/{owner}/{repo}/installation", s.handleInstallation).Methods(http.MethodGet)
	api.HandleFunc("/app/installations/{id:[0-9]+}/access_tokens", s.handleAccessToken).Methods(http.MethodPost)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.record(req, "notfound")
		writeError(w, http.StatusNotFound, "Not Found")
	})

	s.Server = httptest.NewServer(r)
	return s
}

// BaseURL is the value to hand to WithEnterpriseURLs.
func (s *Server) BaseURL() string {
	return s.URL + "/"
}

// Client returns an authenticated go-github client pointed at the fake.
func (s *Server) Client(token string) *gh.Client {
	c := gh.NewClient(nil)
	if token != "" {
		c = c.WithAuthToken(token)
	}
	c, err := c.WithEnterpriseURLs(s.BaseURL(), s.BaseURL())
	if err != nil {
		panic(fmt.Sprintf("fake github: %v", err))
	}
	return c
}

// SetPR replaces the served pull request.
func (s *Server) SetPR(pr PR) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pr.HTMLURL == "" {
		pr.HTMLURL = fmt.Sprintf("https://github.com/%s/%s/pull/%d", s.Owner, s.Repo, pr.Number)
	}
	s.pr = pr
}

// SetHead moves the PR head to sha.
func (s *Server) SetHead(sha string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pr.HeadSHA = sha
}

// SetFiles replaces the PR's changed files.
func (s *Server) SetFiles(files ...File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append([]File(nil), files...)
}

// SetCompare registers the files changed between base and head.
func (s *Server) SetCompare(base, head string, files ...File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compares[base+"..."+head] = append([]File(nil), files...)
}

// FailOn makes a route answer with status until cleared with status 0.
// Routes: list_comments, get_comment, create_comment, edit_comment, get_pr,
// list_files, list_prs, compare, installation, access_token.
func (s *Server) FailOn(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, route)
		return
	}
	s.failures[route] = status
}

// AddComment seeds a comment and returns its id.
func (s *Server) AddComment(body string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(body).GetID()
}

// EditComment rewrites a comment as another writer would.
func (s *Server) EditComment(id int64, body string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findLocked(id)
	if c == nil {
		return false
	}
	s.touchLocked(c, body)
	return true
}

// CommentBody returns the current body of id.
func (s *Server) CommentBody(id int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findLocked(id)
	if c == nil {
		return "", false
	}
	return c.GetBody(), true
}

// Bodies returns all comment bodies in creation order.
func (s *Server) Bodies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.comments))
	for _, c := range s.comments {
		out = append(out, c.GetBody())
	}
	return out
}

// Requests returns "ROUTE" names in arrival order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Count returns how many times route was hit.
func (s *Server) Count(route string) int {
	n := 0
	for _, r := range s.Requests() {
		if r == route {
			n++
		}
	}
	return n
}

func (s *Server) record(r *http.Request, route string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, route)
	status, failing := s.failures[route]
	return status, failing
}

func (s *Server) addLocked(body string) *gh.IssueComment {
	s.nextID++
	s.clock = s.clock.Add(time.Second)
	c := &gh.IssueComment{
		ID:        gh.Int64(s.nextID),
		Body:      gh.String(body),
		HTMLURL:   gh.String(fmt.Sprintf("https://github.com/%s/%s/pull/%d#issuecomment-%d", s.Owner, s.Repo, s.pr.Number, s.nextID)),
		CreatedAt: &gh.Timestamp{Time: s.clock},
		UpdatedAt: &gh.Timestamp{Time: s.clock},
	}
	s.comments = append(s.comments, c)
	return c
}

func (s *Server) touchLocked(c *gh.IssueComment, body string) {
	s.clock = s.clock.Add(time.Second)
	c.Body = gh.String(body)
	c.UpdatedAt = &gh.Timestamp{Time: s.clock}
}

func (s *Server) findLocked(id int64) *gh.IssueComment {
	for _, c := range s.comments {
		if c.GetID() == id {
			return c
		}
	}
	return nil
}

func (s *Server) checkRepo(w http.ResponseWriter, r *http.Request) bool {
	vars := mux.Vars(r)
	if vars["owner"] != s.Owner || vars["repo"] != s.Repo {
		writeError(w, http.StatusNotFound, "Not Found")
		return false
	}
	return true
}

func (s *Server) checkPR(w http.ResponseWriter, r *http.Request) bool {
	if !s.checkRepo(w, r) {
		return false
	}
	n, _ := strconv.Atoi(mux.Vars(r)["number"])
	s.mu.Lock()
	ok := n == s.pr.Number
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
	}
	return ok
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	if status, fail := s.record(r, "list_comments"); fail {
		writeError(w, status, "list comments failed")
		return
	}
	if !s.checkPR(w, r) {
		return
	}
	s.mu.Lock()
	all := make([]*gh.IssueComment, len(s.comments))
	for i, c := range s.comments {
		cp := *c
		all[i] = &cp
	}
	s.mu.Unlock()

	start, end := s.paginate(w, r, len(all))
	writeJSON(w, http.StatusOK, all[start:end])
}

func (s *Server) handleGetComment(w http.ResponseWriter, r *http.Request) {
	if status, fail := s.record(r, "get_comment"); fail {
		writeError(w, status, "get comment failed")
		return
	}
	if !s.checkRepo(w, r) {
		return
	}
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	s.mu.Lock()
	c := s.findLocked(id)
	var cp gh.IssueComment
	if c != nil {
		cp = *c
	}
	s.mu.Unlock()
	if c == nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, &cp)
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	if status, fail := s.record(r, "create_comment"); fail {
		writeError(w, status, "create comment failed")
		return
	}
	if !s.checkPR(w, r) {
		return
	}
	var in gh.IssueComment
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	s.mu.Lock()
	c := s.addLocked(in.GetBody())
	cp := *c
	s.mu.Unlock()

	if s.AfterWrite != nil {
		s.AfterWrite(cp.GetID())
	}
	writeJSON(w, http.StatusCreated, &cp)
}

func (s *Server) handleEditComment(w http.ResponseWriter, r *http.Request) {
	if status, fail := s.record(r, "edit_comment"); fail {
		writeError(w, status, "edit comment failed")
		return
	}
	if !s.checkRepo(w, r) {
		return
	}
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	var in gh.IssueComment
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	s.mu.Lock()
	c := s.findLocked(id)
	var cp gh.IssueComment
	if c != nil {
		s.touchLocked(c, in.GetBody())
		cp = *c
	}
	s.mu.Unlock()
	if c == nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}

	if s.AfterWrite != nil {
		s.AfterWrite(id)
	}
	writeJSON(w, http.StatusOK, &cp)
}

func (s *Server) handleGetPR(w http.ResponseWriter, r *http.Request) {
	if status, fail := s.record(r, "get_pr"); fail {
		writeError(w, status, "get pull request failed")
		return
	}
	if !s.checkPR(w, r) {
		return
	}
	s.mu.Lock()
	pr := s.pr
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, toPullRequest(pr))
}

func (s *Server) handleListPRs(w http.ResponseWriter, r *http.Request) {
	if status, fail := s.record(r, "list_prs"); fail {
		writeError(w, status, "list pull requests failed")
		return
	}
	if !s.checkRepo(w, r) {
		return
	}
	s.mu.Lock()
	pr := s.pr
	s.mu.Unlock()

	out := []*gh.PullRequest{}
	head := r.URL.Query().Get("head")
	if pr.Number != 0 && pr.Branch != "" && head == s.Owner+":"+pr.Branch {
		out = append(out, toPullRequest(pr))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	if status, fail := s.record(r, "list_files"); fail {
		writeError(w, status, "list files failed")
		return
	}
	if !s.checkPR(w, r) {
		return
	}
	s.mu.Lock()
	files := toCommitFiles(s.files)
	s.mu.Unlock()

	start, end := s.paginate(w, r, len(files))
	writeJSON(w, http.StatusOK, files[start:end])
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if status, fail := s.record(r, "compare"); fail {
		writeError(w, status, "compare failed")
		return
	}
	if !s.checkRepo(w, r) {
		return
	}
	s.mu.Lock()
	files, ok := s.compares[mux.Vars(r)["basehead"]]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "No common ancestor")
		return
	}
	writeJSON(w, http.StatusOK, &gh.CommitsComparison{
		Status:  gh.String("ahead"),
		Files:   toCommitFiles(files),
		AheadBy: gh.Int(1),
	})
}

func (s *Server) handleInstallation(w http.ResponseWriter, r *http.Request) {
	if status, fail := s.record(r, "installation"); fail {
		writeError(w, status, "installation lookup failed")
		return
	}
	if !s.checkRepo(w, r) {
		return
	}
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeError(w, http.StatusUnauthorized, "A JSON web token could not be decoded")
		return
	}
	writeJSON(w, http.StatusOK, &gh.Installation{ID: gh.Int64(42)})
}

func (s *Server) handleAccessToken(w http.ResponseWriter, r *http.Request) {
	if status, fail := s.record(r, "access_token"); fail {
		writeError(w, status, "access token failed")
		return
	}
	if mux.Vars(r)["id"] != "42" {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusCreated, &gh.InstallationToken{
		Token:     gh.String("ghs_fakeinstallationtoken"),
		ExpiresAt: &gh.Timestamp{Time: time.Now().Add(time.Hour).UTC().Truncate(time.Second)},
	})
}

// paginate slices [start,end) for the requested page and sets the Link
// header go-github reads NextPage from.
func (s *Server) paginate(w http.ResponseWriter, r *http.Request, total int) (int, int) {
	q := r.URL.Query()
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage <= 0 {
		perPage = 30
	}
	if s.PageSize > 0 && s.PageSize < perPage {
		perPage = s.PageSize
	}
	page, _ := strconv.Atoi(q.Get("page"))
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	if end < total {
		next := *r.URL
		nq := next.Query()
		nq.Set("page", strconv.Itoa(page+1))
		nq.Set("per_page", strconv.Itoa(perPage))
		next.RawQuery = nq.Encode()
		w.Header().Set("Link", fmt.Sprintf(`<%s%s>; rel="next"`, s.URL, next.RequestURI()))
	}
	return start, end
}

func toPullRequest(pr PR) *gh.PullRequest {
	return &gh.PullRequest{
		Number:       gh.Int(pr.Number),
		State:        gh.String("open"),
		HTMLURL:      gh.String(pr.HTMLURL),
		Additions:    gh.Int(pr.Additions),
		Deletions:    gh.Int(pr.Deletions),
		ChangedFiles: gh.Int(pr.ChangedFiles),
		Commits:      gh.Int(pr.Commits),
		Base:         &gh.PullRequestBranch{Ref: gh.String(pr.BaseRef)},
		Head:         &gh.PullRequestBranch{Ref: gh.String(pr.Branch), SHA: gh.String(pr.HeadSHA)},
	}
}

func toCommitFiles(files []File) []*gh.CommitFile {
	out := make([]*gh.CommitFile, 0, len(files))
	for _, f := range files {
		out = append(out, &gh.CommitFile{
			Filename:  gh.String(f.Filename),
			Additions: gh.Int(f.Additions),
			Deletions: gh.Int(f.Deletions),
			Changes:   gh.Int(f.Additions + f.Deletions),
			Status:    gh.String("modified"),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].GetFilename() < out[j].GetFilename() })
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
