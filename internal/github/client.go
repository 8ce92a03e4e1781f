package github

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
)

// DefaultAPIURL is the public GitHub REST endpoint.
const DefaultAPIURL = "https://api.github.com/"

// NewClient returns a go-github client authenticated with token. A non-default
// apiURL (GitHub Enterprise Server, test servers) is used for both API and uploads.
func NewClient(token, apiURL string) (*gh.Client, error) {
	client := gh.NewClient(&http.Client{Timeout: 30 * time.Second})
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if apiURL == "" || isDefaultAPIURL(apiURL) {
		return client, nil
	}
	enterprise, err := client.WithEnterpriseURLs(apiURL, apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub API URL %q: %w", apiURL, err)
	}
	return enterprise, nil
}

func isDefaultAPIURL(apiURL string) bool {
	return strings.TrimSuffix(apiURL, "/") == strings.TrimSuffix(DefaultAPIURL, "/")
}
