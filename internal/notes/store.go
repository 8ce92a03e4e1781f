package notes

import (
	"context"
	"time"
)

// Comment is a comment on the pull request thread.
type Comment struct {
	ID        int64
	Body      string
	UpdatedAt time.Time
	HTMLURL   string
}

// PullRequest holds the pull request fields the document summarises.
type PullRequest struct {
	Number       int
	BaseRef      string
	HeadSHA      string
	HTMLURL      string
	Additions    int
	Deletions    int
	ChangedFiles int
	Commits      int
}

// FileChange is one file of a diff.
type FileChange struct {
	Filename  string
	Additions int
	Deletions int
	Changes   int
}

// Store is the remote comment store bound to a single pull request thread.
// It offers no conditional writes; Upserter verifies writes by reading back.
type Store interface {
	ListComments(ctx context.Context) ([]Comment, error)
	GetComment(ctx context.Context, id int64) (*Comment, error)
	CreateComment(ctx context.Context, body string) (*Comment, error)
	UpdateComment(ctx context.Context, id int64, body string) (*Comment, error)
	GetPullRequest(ctx context.Context) (*PullRequest, error)
	ListFiles(ctx context.Context) ([]FileChange, error)
	Compare(ctx context.Context, base, head string) ([]FileChange, error)
}
