package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"merge-notifier/internal/config"
	"merge-notifier/pkg/models"
)

// PerPage is the largest page size the pulls endpoint accepts
const PerPage = 100

// HTTPClient is satisfied by *http.Client; tests swap in a stub
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// User is the author of a pull request
type User struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// PullRequest is the part of the GitHub pull request resource the fetcher reads
type PullRequest struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	User      *User      `json:"user"`
	HTMLURL   string     `json:"html_url"`
	MergedAt  *time.Time `json:"merged_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// PRPage is one page of closed pull requests. Next is the continuation
// cursor for the following page and is empty once the listing is exhausted.
type PRPage struct {
	PullRequests []PullRequest
	Next         string
}

// PageLister lists closed pull requests of a repository, most recently
// updated first. An empty cursor requests the first page.
type PageLister interface {
	ListClosedPRs(ctx context.Context, repo models.RepositoryRef, cursor string) (*PRPage, error)
}

// Client represents a GitHub REST API client
type Client struct {
	Config  *config.Config
	Client  HTTPClient
	BaseURL string
}

// NewClient creates a new GitHub client
func NewClient(cfg *config.Config) *Client {
	baseURL := strings.TrimRight(cfg.GitHub.APIURL, "/")
	if baseURL == "" {
		baseURL = config.DefaultGitHubAPIURL
	}
	return &Client{
		Config:  cfg,
		Client:  &http.Client{Timeout: cfg.HTTPTimeout()},
		BaseURL: baseURL,
	}
}

// TestConnection checks if the GitHub API is reachable and the token is accepted
func (c *Client) TestConnection(ctx context.Context) error {
	endpoint := c.BaseURL + "/rate_limit"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("error creating test request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("error connecting to GitHub: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GitHub connection test failed: %s (URL: %s, Body: %s)", resp.Status, endpoint, string(body))
	}
	return nil
}

// ListClosedPRs fetches one page of closed PRs sorted by update time, newest first
func (c *Client) ListClosedPRs(ctx context.Context, repo models.RepositoryRef, cursor string) (*PRPage, error) {
	endpoint := cursor
	if endpoint == "" {
		endpoint = c.pullsURL(repo)
	}
	slog.Debug("Fetching closed PRs page", "repo", repo.String(), "url", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching PRs: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading PRs response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error fetching PRs: %s (URL: %s, Body: %s)", resp.Status, endpoint, string(body))
	}

	var prs []PullRequest
	if err := json.Unmarshal(body, &prs); err != nil {
		return nil, fmt.Errorf("error decoding PRs response: %w", err)
	}

	return &PRPage{
		PullRequests: prs,
		Next:         resolveNext(endpoint, nextLink(resp.Header.Get("Link"))),
	}, nil
}

func (c *Client) pullsURL(repo models.RepositoryRef) string {
	return fmt.Sprintf("%s/repos/%s/%s/pulls?state=closed&sort=updated&direction=desc&per_page=%d",
		c.BaseURL, url.PathEscape(repo.Owner), url.PathEscape(repo.Name), PerPage)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.Config.GitHub.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
}

// nextLink extracts the rel="next" target from an RFC 8288 Link header
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		target, params, ok := strings.Cut(strings.TrimSpace(part), ";")
		if !ok {
			continue
		}
		target = strings.TrimSpace(target)
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, p := range strings.Split(params, ";") {
			key, value, _ := strings.Cut(strings.TrimSpace(p), "=")
			if strings.TrimSpace(key) == "rel" && strings.Trim(strings.TrimSpace(value), `"`) == "next" {
				return target[1 : len(target)-1]
			}
		}
	}
	return ""
}

// resolveNext turns a relative next link into an absolute URL
func resolveNext(current, next string) string {
	if next == "" {
		return ""
	}
	base, err := url.Parse(current)
	if err != nil {
		return next
	}
	ref, err := url.Parse(next)
	if err != nil {
		return next
	}
	return base.ResolveReference(ref).String()
}

// FilterPRs drops merged PRs whose title contains an ignored keyword
func FilterPRs(prs []models.MergedPullRequest, ignoreKeywords []string) []models.MergedPullRequest {
	filtered := make([]models.MergedPullRequest, 0, len(prs))
	for _, pr := range prs {
		if containsIgnoreKeyword(pr.Title, ignoreKeywords) {
			continue
		}
		filtered = append(filtered, pr)
	}
	return filtered
}

// containsIgnoreKeyword checks if the title contains any ignored keyword, ignoring case
func containsIgnoreKeyword(title string, keywords []string) bool {
	titleLower := strings.ToLower(title)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw != "" && strings.Contains(titleLower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
