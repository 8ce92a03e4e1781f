package github

import (
	"context"
	"fmt"
	"log"

	gh "github.com/google/go-github/v66/github"

	"github.com/cexll/session-notes/internal/notes"
)

const perPage = 100

// PRStore is the notes.Store backed by the comments of one pull request.
type PRStore struct {
	client *gh.Client
	owner  string
	repo   string
	number int
}

var _ notes.Store = (*PRStore)(nil)

// NewPRStore binds a store to owner/repo#number.
func NewPRStore(client *gh.Client, owner, repo string, number int) *PRStore {
	return &PRStore{
		client: client,
		owner:  owner,
		repo:   repo,
		number: number,
	}
}

// ListComments returns every comment on the pull request conversation.
func (s *PRStore) ListComments(ctx context.Context) ([]notes.Comment, error) {
	opts := &gh.IssueListCommentsOptions{ListOptions: gh.ListOptions{PerPage: perPage}}
	var out []notes.Comment
	for {
		page, resp, err := s.client.Issues.ListComments(ctx, s.owner, s.repo, s.number, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list comments on %s/%s#%d: %w", s.owner, s.repo, s.number, err)
		}
		for _, c := range page {
			out = append(out, toComment(c))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	log.Printf("[Store] %s/%s#%d: %d comments", s.owner, s.repo, s.number, len(out))
	return out, nil
}

// GetComment fetches a single comment by id.
func (s *PRStore) GetComment(ctx context.Context, id int64) (*notes.Comment, error) {
	c, _, err := s.client.Issues.GetComment(ctx, s.owner, s.repo, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get comment %d: %w", id, err)
	}
	out := toComment(c)
	return &out, nil
}

// CreateComment posts a new comment on the pull request.
func (s *PRStore) CreateComment(ctx context.Context, body string) (*notes.Comment, error) {
	c, _, err := s.client.Issues.CreateComment(ctx, s.owner, s.repo, s.number, &gh.IssueComment{Body: gh.String(body)})
	if err != nil {
		return nil, fmt.Errorf("failed to create comment on %s/%s#%d: %w", s.owner, s.repo, s.number, err)
	}
	out := toComment(c)
	log.Printf("[Store] created comment %d", out.ID)
	return &out, nil
}

// UpdateComment replaces the body of an existing comment.
func (s *PRStore) UpdateComment(ctx context.Context, id int64, body string) (*notes.Comment, error) {
	c, _, err := s.client.Issues.EditComment(ctx, s.owner, s.repo, id, &gh.IssueComment{Body: gh.String(body)})
	if err != nil {
		return nil, fmt.Errorf("failed to update comment %d: %w", id, err)
	}
	out := toComment(c)
	if out.ID == 0 {
		out.ID = id
	}
	log.Printf("[Store] updated comment %d", out.ID)
	return &out, nil
}

// GetPullRequest returns the pull request summary fields.
func (s *PRStore) GetPullRequest(ctx context.Context) (*notes.PullRequest, error) {
	pr, _, err := s.client.PullRequests.Get(ctx, s.owner, s.repo, s.number)
	if err != nil {
		return nil, fmt.Errorf("failed to get pull request %s/%s#%d: %w", s.owner, s.repo, s.number, err)
	}
	return &notes.PullRequest{
		Number:       pr.GetNumber(),
		BaseRef:      pr.GetBase().GetRef(),
		HeadSHA:      pr.GetHead().GetSHA(),
		HTMLURL:      pr.GetHTMLURL(),
		Additions:    pr.GetAdditions(),
		Deletions:    pr.GetDeletions(),
		ChangedFiles: pr.GetChangedFiles(),
		Commits:      pr.GetCommits(),
	}, nil
}

// ListFiles returns every file changed by the pull request.
func (s *PRStore) ListFiles(ctx context.Context) ([]notes.FileChange, error) {
	opts := &gh.ListOptions{PerPage: perPage}
	var out []notes.FileChange
	for {
		files, resp, err := s.client.PullRequests.ListFiles(ctx, s.owner, s.repo, s.number, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list files of %s/%s#%d: %w", s.owner, s.repo, s.number, err)
		}
		out = append(out, toFileChanges(files)...)
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// Compare returns the files changed between two commits.
func (s *PRStore) Compare(ctx context.Context, base, head string) ([]notes.FileChange, error) {
	cmp, _, err := s.client.Repositories.CompareCommits(ctx, s.owner, s.repo, base, head, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to compare %s...%s: %w", base, head, err)
	}
	return toFileChanges(cmp.Files), nil
}

func toComment(c *gh.IssueComment) notes.Comment {
	return notes.Comment{
		ID:        c.GetID(),
		Body:      c.GetBody(),
		UpdatedAt: c.GetUpdatedAt().Time,
		HTMLURL:   c.GetHTMLURL(),
	}
}

func toFileChanges(files []*gh.CommitFile) []notes.FileChange {
	out := make([]notes.FileChange, 0, len(files))
	for _, f := range files {
		out = append(out, notes.FileChange{
			Filename:  f.GetFilename(),
			Additions: f.GetAdditions(),
			Deletions: f.GetDeletions(),
			Changes:   f.GetChanges(),
		})
	}
	return out
}
