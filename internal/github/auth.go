package github

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gh "github.com/google/go-github/v66/github"
)

// ErrNoCredentials is returned when no token source produced a token.
var ErrNoCredentials = errors.New("no GitHub credentials: set GITHUB_TOKEN or GH_TOKEN, configure a GitHub App, or run `gh auth login`")

// AppAuth holds GitHub App authentication configuration
type AppAuth struct {
	AppID      string
	PrivateKey string
	// APIURL overrides the REST endpoint (GitHub Enterprise Server, tests).
	APIURL string
}

// InstallationToken represents a GitHub App installation access token
type InstallationToken struct {
	Token     string
	ExpiresAt time.Time
}

// GenerateJWT creates a JWT token for GitHub App authentication
func (a *AppAuth) GenerateJWT() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(a.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	appID, err := strconv.ParseInt(a.AppID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid app ID: %w", err)
	}

	// Backdate issued-at to tolerate clock drift.
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    strconv.FormatInt(appID, 10),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signedToken, nil
}

// GetInstallationToken gets an installation access token for a repository
func (a *AppAuth) GetInstallationToken(ctx context.Context, repo string) (*InstallationToken, error) {
	owner, name, err := ParseRepo(repo)
	if err != nil {
		return nil, fmt.Errorf("invalid repo format: %s (expected owner/repo)", repo)
	}

	jwtToken, err := a.GenerateJWT()
	if err != nil {
		return nil, err
	}

	client, err := NewClient(jwtToken, a.APIURL)
	if err != nil {
		return nil, err
	}

	var installationID int64
	err = retryWithBackoff(ctx, func() error {
		inst, _, err := client.Apps.FindRepositoryInstallation(ctx, owner, name)
		if err != nil {
			return fmt.Errorf("failed to get installation: %w", err)
		}
		installationID = inst.GetID()
		return nil
	})
	if err != nil {
		return nil, err
	}

	var token *gh.InstallationToken
	err = retryWithBackoff(ctx, func() error {
		t, _, err := client.Apps.CreateInstallationToken(ctx, installationID, nil)
		if err != nil {
			return fmt.Errorf("failed to get access token: %w", err)
		}
		token = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &InstallationToken{
		Token:     token.GetToken(),
		ExpiresAt: token.GetExpiresAt().Time,
	}, nil
}

// TokenOptions lists the credential sources in resolution order.
type TokenOptions struct {
	// Token comes from GITHUB_TOKEN / GH_TOKEN or configuration.
	Token string
	// App is used when Token is empty and both fields are set.
	App *AppAuth
	// Repo is the owner/repo the App installation is looked up for.
	Repo string
	// GHHost is passed to `gh auth token --hostname` for GHES.
	GHHost string
}

// ResolveToken returns a token and the name of the source it came from:
// explicit token, GitHub App installation token, then `gh auth token`.
func ResolveToken(ctx context.Context, opts TokenOptions, runner CommandRunner) (string, string, error) {
	if t := strings.TrimSpace(opts.Token); t != "" {
		return t, "token", nil
	}

	if opts.App != nil && opts.App.AppID != "" && opts.App.PrivateKey != "" {
		it, err := opts.App.GetInstallationToken(ctx, opts.Repo)
		if err != nil {
			return "", "", fmt.Errorf("github app authentication failed: %w", err)
		}
		log.Printf("[Auth] using GitHub App installation token (expires %s)", it.ExpiresAt.Format(time.RFC3339))
		return it.Token, "app", nil
	}

	if runner == nil {
		runner = &RealCommandRunner{}
	}
	args := []string{"auth", "token"}
	if opts.GHHost != "" && opts.GHHost != "github.com" {
		args = append(args, "--hostname", opts.GHHost)
	}
	out, err := runner.Run(ctx, "gh", args...)
	if err != nil {
		log.Printf("[Auth] gh auth token failed: %v", err)
		return "", "", ErrNoCredentials
	}
	token := strings.TrimSpace(string(out))
	if token == "" {
		return "", "", ErrNoCredentials
	}
	log.Printf("[Auth] using token from gh CLI")
	return token, "gh", nil
}
