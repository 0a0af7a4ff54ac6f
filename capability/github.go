package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// DisabledGithubToken turns the GitHub integration off entirely.
const DisabledGithubToken = "no-github"

// GithubClient files issues through the GitHub REST API. The token is held
// here and never visible to handler code.
type GithubClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewGithubClient builds a client against baseURL (https://api.github.com in
// production, an httptest server in tests).
func NewGithubClient(baseURL, token string, client *http.Client) *GithubClient {
	return &GithubClient{baseURL: baseURL, token: token, client: client}
}

type githubIssueResponse struct {
	HTMLURL string `json:"html_url"`
	Title   string `json:"title"`
	ID      int64  `json:"id"`
	Message string `json:"message,omitempty"`
}

// CreateIssue opens an issue on repo ("owner/name") and returns the shape
// handler code sees: html_url, title, id.
func (c *GithubClient) CreateIssue(ctx context.Context, repo, title, body string) (*Issue, error) {
	if c.token == DisabledGithubToken {
		return nil, fmt.Errorf("github integration is disabled")
	}

	payload, err := json.Marshal(map[string]string{
		"title": title,
		"body":  body,
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/repos/%s/issues", c.baseURL, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed githubIssueResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("unexpected github response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github rejected the issue: %s (status %d)", parsed.Message, resp.StatusCode)
	}

	return &Issue{URL: parsed.HTMLURL, Title: parsed.Title, ID: parsed.ID}, nil
}
