package github

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5"
	gh "github.com/google/go-github/v66/github"
)

// PRAuto asks ResolvePR to find the open PR of the current branch.
const PRAuto = "auto"

// ErrInvalidTarget marks caller input that does not identify a pull request.
var ErrInvalidTarget = errors.New("invalid pull request target")

// Target identifies one pull request.
type Target struct {
	Owner  string
	Repo   string
	Number int
	// Host of the PR URL when one was given; empty means the configured API host.
	Host string
}

// FullName returns owner/repo.
func (t Target) FullName() string {
	return t.Owner + "/" + t.Repo
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%s#%d", t.Owner, t.Repo, t.Number)
}

// ParseRepo splits owner/repo.
func ParseRepo(repo string) (string, string, error) {
	parts := strings.Split(strings.TrimSpace(repo), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: repository %q must be owner/repo", ErrInvalidTarget, repo)
	}
	return parts[0], parts[1], nil
}

// ParsePRArg accepts a PR number or a PR URL
// (https://host/owner/repo/pull/N). The returned repo is "" for bare numbers.
func ParsePRArg(arg string) (repo string, number int, host string, err error) {
	arg = strings.TrimSpace(arg)
	if n, convErr := strconv.Atoi(arg); convErr == nil && n > 0 {
		return "", n, "", nil
	}

	u, parseErr := url.Parse(arg)
	if parseErr != nil || u.Host == "" {
		return "", 0, "", fmt.Errorf("%w: could not parse %q; provide a PR number, PR URL, or use auto", ErrInvalidTarget, arg)
	}
	var parts []string
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) >= 4 && (parts[2] == "pull" || parts[2] == "pulls") {
		if n, convErr := strconv.Atoi(parts[3]); convErr == nil && n > 0 {
			return parts[0] + "/" + parts[1], n, strings.ToLower(u.Host), nil
		}
	}
	return "", 0, "", fmt.Errorf("%w: %q is not a pull request URL", ErrInvalidTarget, arg)
}

// Checkout describes the git working tree the CLI runs in.
type Checkout struct {
	Root   string
	Remote string
	Branch string
}

// OpenCheckout finds the enclosing git repository of path.
func OpenCheckout(path string) (*Checkout, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not inside a git repository: %v", ErrInvalidTarget, path, err)
	}

	co := &Checkout{Root: path}
	if wt, err := repo.Worktree(); err == nil {
		co.Root = wt.Filesystem.Root()
	}

	if remote, err := repo.Remote("origin"); err == nil {
		if urls := remote.Config().URLs; len(urls) > 0 {
			co.Remote = urls[0]
		}
	}

	if head, err := repo.Head(); err == nil && head.Name().IsBranch() {
		co.Branch = head.Name().Short()
	}
	return co, nil
}

// RepoFromRemote extracts owner/repo from an https or scp-style remote URL.
func RepoFromRemote(remote string) (string, error) {
	remote = strings.TrimSpace(remote)
	var path string
	switch {
	case strings.Contains(remote, "://"):
		u, err := url.Parse(remote)
		if err != nil {
			return "", fmt.Errorf("%w: unparseable remote %q", ErrInvalidTarget, remote)
		}
		path = u.Path
	case strings.Contains(remote, ":"):
		// git@github.com:owner/repo.git
		path = remote[strings.Index(remote, ":")+1:]
	default:
		return "", fmt.Errorf("%w: unsupported remote %q", ErrInvalidTarget, remote)
	}
	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	owner, name, err := ParseRepo(path)
	if err != nil {
		return "", fmt.Errorf("%w: remote %q does not name a GitHub repository", ErrInvalidTarget, remote)
	}
	return owner + "/" + name, nil
}

// TargetOptions are the raw CLI inputs.
type TargetOptions struct {
	Repo string
	PR   string
	Dir  string
}

// ResolveTarget picks the repository from the flag, the PR URL, then the
// origin remote of Dir, and the PR number from the argument or (auto) from
// the open PR whose head is the current branch.
func ResolveTarget(ctx context.Context, client *gh.Client, opts TargetOptions) (*Target, error) {
	prArg := strings.TrimSpace(opts.PR)
	if prArg == "" {
		prArg = PRAuto
	}

	var (
		repoFromPR string
		number     int
		host       string
	)
	if prArg != PRAuto {
		var err error
		repoFromPR, number, host, err = ParsePRArg(prArg)
		if err != nil {
			return nil, err
		}
	}

	var checkout *Checkout
	repo := strings.TrimSpace(opts.Repo)
	if repo == "" {
		repo = repoFromPR
	}
	if repo == "" || number == 0 {
		co, err := OpenCheckout(opts.Dir)
		if err != nil {
			if repo == "" {
				return nil, fmt.Errorf("%w; pass --repo owner/repo or a PR URL", err)
			}
			return nil, fmt.Errorf("%w; pass an explicit PR number or URL via --pr", err)
		}
		checkout = co
	}
	if repo == "" {
		if checkout.Remote == "" {
			return nil, fmt.Errorf("%w: no origin remote in %s; pass --repo owner/repo", ErrInvalidTarget, checkout.Root)
		}
		r, err := RepoFromRemote(checkout.Remote)
		if err != nil {
			return nil, err
		}
		repo = r
	}

	owner, name, err := ParseRepo(repo)
	if err != nil {
		return nil, err
	}

	if number == 0 {
		n, err := findOpenPR(ctx, client, owner, name, checkout.Branch)
		if err != nil {
			return nil, err
		}
		number = n
	}

	return &Target{Owner: owner, Repo: name, Number: number, Host: host}, nil
}

func findOpenPR(ctx context.Context, client *gh.Client, owner, repo, branch string) (int, error) {
	if branch == "" {
		return 0, fmt.Errorf("%w: HEAD is detached; provide an explicit PR number or URL via --pr", ErrInvalidTarget)
	}
	prs, _, err := client.PullRequests.List(ctx, owner, repo, &gh.PullRequestListOptions{
		State:       "open",
		Head:        owner + ":" + branch,
		ListOptions: gh.ListOptions{PerPage: 10},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list pull requests for %s/%s: %w", owner, repo, err)
	}
	if len(prs) == 0 {
		return 0, fmt.Errorf("%w: no open pull request for branch %q in %s/%s; provide an explicit PR number or URL via --pr", ErrInvalidTarget, branch, owner, repo)
	}
	if len(prs) > 1 {
		log.Printf("[Target] %d open pull requests for %s, using #%d", len(prs), branch, prs[0].GetNumber())
	}
	return prs[0].GetNumber(), nil
}
