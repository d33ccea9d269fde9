package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentplan/apiserver/types"
)

const defaultBaseURL = "https://api.github.com"

// lastPageRe pulls the final page number out of a GitHub Link header.
var lastPageRe = regexp.MustCompile(`page=(\d+)>; rel="last"`)

// Client is a minimal GitHub REST client scoped to the commit history
// of one repository. Outbound calls share a rate limiter so the widget
// cannot burn through the unauthenticated API quota.
type Client struct {
	baseURL    string
	owner      string
	repo       string
	branch     string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(owner, repo, branch, token string) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		owner:      owner,
		repo:       repo,
		branch:     branch,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// apiError reports a non-success response status from the GitHub API.
type apiError struct {
	StatusCode int
}

func (e *apiError) Error() string {
	return fmt.Sprintf("github api error: %d", e.StatusCode)
}

// IsRateLimited reports whether err is a GitHub 403 response.
func IsRateLimited(err error) bool {
	apiErr, ok := err.(*apiError)
	return ok && apiErr.StatusCode == http.StatusForbidden
}

// FetchCommits returns the latest commits on the configured branch,
// newest first.
func (c *Client) FetchCommits(ctx context.Context, limit int) ([]types.Commit, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/commits?sha=%s&per_page=%d",
		c.baseURL, c.owner, c.repo, c.branch, limit)

	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &apiError{StatusCode: resp.StatusCode}
	}

	var commits []types.Commit
	if err := json.NewDecoder(resp.Body).Decode(&commits); err != nil {
		return nil, fmt.Errorf("failed to decode commits: %w", err)
	}
	return commits, nil
}

// TotalCommitCount counts commits on the branch via the Link header of
// a per_page=1 listing. When the header is absent the branch has a
// single page, so the body length is the count.
func (c *Client) TotalCommitCount(ctx context.Context) (int, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/commits?sha=%s&per_page=1",
		c.baseURL, c.owner, c.repo, c.branch)

	resp, err := c.get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return 0, &apiError{StatusCode: resp.StatusCode}
	}

	if match := lastPageRe.FindStringSubmatch(resp.Header.Get("Link")); match != nil {
		count, err := strconv.Atoi(match[1])
		if err == nil {
			return count, nil
		}
	}

	var commits []types.Commit
	if err := json.NewDecoder(resp.Body).Decode(&commits); err != nil {
		return 0, fmt.Errorf("failed to decode commits: %w", err)
	}
	return len(commits), nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "AgentPlan-App")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.httpClient.Do(req)
}
