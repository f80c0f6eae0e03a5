package jira

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flowyard/flowyard/internal/tracker"
)

// errNotFound marks a 404 from the Jira API. Callers translate it: a missing
// issue means deleted upstream, a missing changelog means an empty feed.
var errNotFound = errors.New("jira: not found")

// Issue is the subset of a Jira REST issue the sync needs.
type Issue struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary string       `json:"summary"`
		Created string       `json:"created"`
		Status  *StatusField `json:"status"`
	} `json:"fields"`
}

// StatusField represents a Jira issue status.
type StatusField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// searchResult represents a Jira JQL search response.
type searchResult struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// changelogPage is one page of the issue changelog endpoint.
type changelogPage struct {
	StartAt    int              `json:"startAt"`
	MaxResults int              `json:"maxResults"`
	Total      int              `json:"total"`
	IsLast     bool             `json:"isLast"`
	Values     []changelogEntry `json:"values"`
}

type changelogEntry struct {
	ID     string `json:"id"`
	Author struct {
		DisplayName  string `json:"displayName"`
		EmailAddress string `json:"emailAddress"`
	} `json:"author"`
	Created string          `json:"created"`
	Items   []changelogItem `json:"items"`
}

type changelogItem struct {
	Field      string `json:"field"`
	FieldID    string `json:"fieldId"`
	FromString string `json:"fromString"`
	ToString   string `json:"toString"`
}

// Client provides HTTP access to a Jira instance.
type Client struct {
	URL        string
	Username   string
	APIToken   string
	HTTPClient *http.Client
}

// NewClient creates a new Jira client.
func NewClient(rawURL, username, apiToken string) *Client {
	return &Client{
		URL:      strings.TrimSuffix(rawURL, "/"),
		Username: username,
		APIToken: apiToken,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SearchIssueKeys queries Jira using JQL and returns matching issue keys,
// handling pagination. limit of 0 means no cap.
func (c *Client) SearchIssueKeys(ctx context.Context, jql string, limit int) ([]string, error) {
	var keys []string
	startAt := 0
	maxResults := 100

	for {
		params := url.Values{
			"jql":        {jql},
			"fields":     {"key"},
			"startAt":    {fmt.Sprintf("%d", startAt)},
			"maxResults": {fmt.Sprintf("%d", maxResults)},
		}
		apiURL := fmt.Sprintf("%s/rest/api/3/search?%s", c.URL, params.Encode())

		body, err := c.doRequest(ctx, "GET", apiURL)
		if err != nil {
			return nil, tracker.Transport("search issues", err)
		}

		var result searchResult
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("parse search response: %w", err)
		}

		for i := range result.Issues {
			keys = append(keys, result.Issues[i].Key)
			if limit > 0 && len(keys) >= limit {
				return keys, nil
			}
		}

		if startAt+len(result.Issues) >= result.Total || len(result.Issues) == 0 {
			return keys, nil
		}
		startAt += len(result.Issues)
	}
}

// GetIssue fetches a single Jira issue by key. A 404 returns errNotFound.
func (c *Client) GetIssue(ctx context.Context, key string) (*Issue, error) {
	apiURL := fmt.Sprintf("%s/rest/api/3/issue/%s?fields=summary,created,status", c.URL, url.PathEscape(key))

	body, err := c.doRequest(ctx, "GET", apiURL)
	if errors.Is(err, errNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, tracker.Transport(fmt.Sprintf("get issue %s", key), err)
	}

	var issue Issue
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, fmt.Errorf("parse issue response: %w", err)
	}
	return &issue, nil
}

// GetChangelog fetches one page of an issue's changelog. A 404 returns
// errNotFound.
func (c *Client) GetChangelog(ctx context.Context, key string, startAt, maxResults int) (*changelogPage, error) {
	params := url.Values{
		"startAt":    {fmt.Sprintf("%d", startAt)},
		"maxResults": {fmt.Sprintf("%d", maxResults)},
	}
	apiURL := fmt.Sprintf("%s/rest/api/3/issue/%s/changelog?%s", c.URL, url.PathEscape(key), params.Encode())

	body, err := c.doRequest(ctx, "GET", apiURL)
	if errors.Is(err, errNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, tracker.Transport(fmt.Sprintf("fetch changelog %s page at %d", key, startAt), err)
	}

	var page changelogPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("parse changelog response: %w", err)
	}
	return &page, nil
}

// doRequest executes an authenticated HTTP request and returns the response
// body. 404 maps to errNotFound; other non-2xx statuses are plain errors the
// callers wrap as transport failures.
func (c *Client) doRequest(ctx context.Context, method, apiURL string) ([]byte, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("jira URL not configured")
	}
	if c.APIToken == "" {
		return nil, fmt.Errorf("jira API token not configured")
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.setAuth(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "flowyard-sync/1.0")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("jira API returned %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// setAuth sets the authentication header on the request. A username means
// basic auth (cloud email + API token); without one the token is a personal
// access token, sent as a bearer (Data Center).
func (c *Client) setAuth(req *http.Request) {
	if c.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.APIToken))
		req.Header.Set("Authorization", "Basic "+auth)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.APIToken)
}
