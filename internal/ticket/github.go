package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GitHubClient implements Client against the GitHub issues REST API.
type GitHubClient struct {
	baseURL string
	owner   string
	repo    string
	token   string
	http    *http.Client
}

// NewGitHubClient creates a client for owner/repo authenticated with token.
func NewGitHubClient(owner, repo, token string) *GitHubClient {
	return &GitHubClient{
		baseURL: "https://api.github.com",
		owner:   owner,
		repo:    repo,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type githubIssue struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
	State   string `json:"state"`
	Labels  []struct {
		Name string `json:"name"`
	} `json:"labels"`
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

func (i *githubIssue) toTicket() *Ticket {
	t := &Ticket{
		Number: i.Number,
		Title:  i.Title,
		Body:   i.Body,
		URL:    i.HTMLURL,
		State:  i.State,
	}
	for _, l := range i.Labels {
		t.Labels = append(t.Labels, l.Name)
	}
	return t
}

// Create opens a new issue with the given labels.
func (c *GitHubClient) Create(ctx context.Context, title, body string, labels []string) (*Ticket, error) {
	payload := map[string]any{"title": title, "body": body, "labels": labels}
	var issue githubIssue
	if err := c.do(ctx, http.MethodPost, c.issuesPath(""), payload, &issue); err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}
	return issue.toTicket(), nil
}

// Get fetches one issue by number.
func (c *GitHubClient) Get(ctx context.Context, number int) (*Ticket, error) {
	var issue githubIssue
	if err := c.do(ctx, http.MethodGet, c.issuesPath(fmt.Sprintf("/%d", number)), nil, &issue); err != nil {
		return nil, fmt.Errorf("failed to get ticket #%d: %w", number, err)
	}
	return issue.toTicket(), nil
}

// Search lists open issues carrying every one of the given labels. Pull
// requests, which GitHub returns from the same endpoint, are filtered out.
func (c *GitHubClient) Search(ctx context.Context, labels []string) ([]*Ticket, error) {
	q := url.Values{}
	q.Set("state", "open")
	q.Set("per_page", "100")
	if len(labels) > 0 {
		q.Set("labels", strings.Join(labels, ","))
	}

	var issues []githubIssue
	if err := c.do(ctx, http.MethodGet, c.issuesPath("")+"?"+q.Encode(), nil, &issues); err != nil {
		return nil, fmt.Errorf("failed to search tickets: %w", err)
	}

	var tickets []*Ticket
	for i := range issues {
		if issues[i].PullRequest != nil {
			continue
		}
		tickets = append(tickets, issues[i].toTicket())
	}
	return tickets, nil
}

// AddLabels attaches labels to an issue.
func (c *GitHubClient) AddLabels(ctx context.Context, number int, labels []string) error {
	payload := map[string]any{"labels": labels}
	if err := c.do(ctx, http.MethodPost, c.issuesPath(fmt.Sprintf("/%d/labels", number)), payload, nil); err != nil {
		return fmt.Errorf("failed to add labels to #%d: %w", number, err)
	}
	return nil
}

// RemoveLabel detaches one label. Removing a label the issue does not carry
// is treated as success so label swaps are idempotent.
func (c *GitHubClient) RemoveLabel(ctx context.Context, number int, label string) error {
	path := c.issuesPath(fmt.Sprintf("/%d/labels/%s", number, url.PathEscape(label)))
	err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		var apiErr *apiError
		if asAPIError(err, &apiErr) && apiErr.status == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("failed to remove label from #%d: %w", number, err)
	}
	return nil
}

// Comment posts a comment on an issue.
func (c *GitHubClient) Comment(ctx context.Context, number int, body string) error {
	payload := map[string]any{"body": body}
	if err := c.do(ctx, http.MethodPost, c.issuesPath(fmt.Sprintf("/%d/comments", number)), payload, nil); err != nil {
		return fmt.Errorf("failed to comment on #%d: %w", number, err)
	}
	return nil
}

// EnsureLabels creates label definitions that do not exist yet. A 422 from
// the create endpoint means the label already exists and is not an error.
func (c *GitHubClient) EnsureLabels(ctx context.Context, specs []LabelSpec) error {
	for _, spec := range specs {
		payload := map[string]any{
			"name":        spec.Name,
			"color":       spec.Color,
			"description": spec.Description,
		}
		path := fmt.Sprintf("/repos/%s/%s/labels", c.owner, c.repo)
		err := c.do(ctx, http.MethodPost, path, payload, nil)
		if err != nil {
			var apiErr *apiError
			if asAPIError(err, &apiErr) && apiErr.status == http.StatusUnprocessableEntity {
				continue
			}
			return fmt.Errorf("failed to create label %q: %w", spec.Name, err)
		}
	}
	return nil
}

func (c *GitHubClient) issuesPath(suffix string) string {
	return fmt.Sprintf("/repos/%s/%s/issues%s", c.owner, c.repo, suffix)
}

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("github api returned %d: %s", e.status, e.body)
}

func asAPIError(err error, target **apiError) bool {
	return errors.As(err, target)
}

func (c *GitHubClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apiError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
