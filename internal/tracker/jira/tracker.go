// Package jira implements the StateTracker interface for Jira.
//
// Jira's changelog reports state changes with both endpoints: every status
// entry carries fromString and toString, so the adapter uses the
// explicit-from close policy. Jira also records the initial status at issue
// creation in the changelog itself, so no creation-interval seeding is
// needed.
package jira

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/flowyard/flowyard/internal/debug"
	"github.com/flowyard/flowyard/internal/storage"
	"github.com/flowyard/flowyard/internal/tracker"
)

// timeLayout matches Jira's REST timestamp format.
const timeLayout = "2006-01-02T15:04:05.000-0700"

func init() {
	tracker.Register("jira", func() tracker.StateTracker {
		return &Tracker{}
	})
}

// Tracker implements tracker.StateTracker for Jira.
type Tracker struct {
	client     *Client
	store      storage.Storage
	jiraURL    string
	projectKey string
	identity   string
}

func (t *Tracker) Name() string         { return "jira" }
func (t *Tracker) DisplayName() string  { return "Jira" }
func (t *Tracker) ConfigPrefix() string { return "jira" }

func (t *Tracker) Init(ctx context.Context, store storage.Storage) error {
	t.store = store

	jiraURL, err := t.getConfig(ctx, "jira.url", "JIRA_URL")
	if err != nil || jiraURL == "" {
		return fmt.Errorf("Jira URL not configured (set jira.url or JIRA_URL)")
	}
	t.jiraURL = jiraURL

	projectKey, err := t.getConfig(ctx, "jira.project", "JIRA_PROJECT")
	if err != nil || projectKey == "" {
		return fmt.Errorf("Jira project not configured (set jira.project or JIRA_PROJECT)")
	}
	t.projectKey = projectKey

	username, _ := t.getConfig(ctx, "jira.username", "JIRA_USERNAME")
	apiToken, err := t.getConfig(ctx, "jira.api_token", "JIRA_API_TOKEN")
	if err != nil || apiToken == "" {
		return fmt.Errorf("Jira API token not configured (set jira.api_token or JIRA_API_TOKEN)")
	}

	t.identity = "jira"
	if u, err := url.Parse(jiraURL); err == nil && u.Host != "" {
		t.identity = "jira:" + u.Host
	}

	t.client = NewClient(jiraURL, username, apiToken)
	return nil
}

func (t *Tracker) Validate() error {
	if t.client == nil {
		return fmt.Errorf("Jira tracker not initialized")
	}
	return nil
}

func (t *Tracker) Close() error { return nil }

// IntegrationIdentity scopes stages per Jira site, so two Jira accounts with
// the same status names map to distinct stage rows.
func (t *Tracker) IntegrationIdentity() string { return t.identity }

func (t *Tracker) FieldSelector() tracker.FieldSelector {
	return tracker.FieldSelector{FieldID: "status", FieldName: "status"}
}

func (t *Tracker) TimeLayouts() []string {
	return []string{timeLayout, "2006-01-02T15:04:05.999999999Z07:00"}
}

func (t *Tracker) ClosePolicy() tracker.ClosePolicy { return tracker.CloseExplicitFrom }

func (t *Tracker) SeedsCreationInterval() bool { return false }

func (t *Tracker) ListWorkItems(ctx context.Context, opts tracker.FetchOptions) ([]string, error) {
	jql := fmt.Sprintf("project = %q", t.projectKey)
	if opts.Since != nil {
		jql += fmt.Sprintf(" AND updated >= %q", opts.Since.Format("2006-01-02 15:04"))
	}
	jql += " ORDER BY updated DESC"

	return t.client.SearchIssueKeys(ctx, jql, opts.Limit)
}

func (t *Tracker) FetchWorkItemDetail(ctx context.Context, externalID string) (*tracker.WorkItemDetail, error) {
	issue, err := t.client.GetIssue(ctx, externalID)
	if errors.Is(err, errNotFound) {
		return &tracker.WorkItemDetail{ExternalID: externalID, Deleted: true}, nil
	}
	if err != nil {
		return nil, err
	}

	detail := &tracker.WorkItemDetail{
		ExternalID: issue.Key,
		Title:      issue.Fields.Summary,
	}
	if created, err := tracker.ParseTimestamp(issue.Fields.Created, t.TimeLayouts()); err == nil {
		detail.CreatedAt = created
	}
	if issue.Fields.Status != nil {
		detail.InitialStage = issue.Fields.Status.Name
	}
	return detail, nil
}

func (t *Tracker) FetchChangeHistory(ctx context.Context, externalID string, cursor tracker.PageCursor) (*tracker.HistoryPage, error) {
	pageSize := cursor.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	page, err := t.client.GetChangelog(ctx, externalID, cursor.StartAt, pageSize)
	if errors.Is(err, errNotFound) {
		// Issue vanished between listing and history fetch. Not fatal: the
		// next pass sees the deletion through the detail fetch.
		debug.Logf("jira: changelog for %s not found, treating as empty\n", externalID)
		return &tracker.HistoryPage{LastPage: true}, nil
	}
	if err != nil {
		return nil, err
	}

	out := &tracker.HistoryPage{
		LastPage:    page.IsLast || page.StartAt+len(page.Values) >= page.Total,
		NextStartAt: page.StartAt + len(page.Values),
	}
	for _, entry := range page.Values {
		for _, item := range entry.Items {
			out.Changes = append(out.Changes, tracker.RawChange{
				FieldID:     item.FieldID,
				FieldName:   item.Field,
				FromValue:   item.FromString,
				ToValue:     item.ToString,
				At:          entry.Created,
				AuthorName:  entry.Author.DisplayName,
				AuthorEmail: entry.Author.EmailAddress,
			})
		}
	}
	return out, nil
}

// getConfig reads a config value from storage, falling back to env var.
func (t *Tracker) getConfig(ctx context.Context, key, envVar string) (string, error) {
	val, err := t.store.GetConfig(ctx, key)
	if err == nil && val != "" {
		return val, nil
	}
	if envVar != "" {
		if envVal := os.Getenv(envVar); envVal != "" {
			return envVal, nil
		}
	}
	return "", nil
}
