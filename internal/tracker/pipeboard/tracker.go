// Package pipeboard implements the StateTracker interface for Pipeboard,
// a card-board tracker whose feed only reports phase entries.
//
// Because each event carries only the destination phase, the adapter uses
// the implicit-previous close policy: entering a phase closes whatever
// interval is currently open. The feed also omits the card's initial
// placement, so a creation interval is seeded from the card's created
// timestamp and first phase.
package pipeboard

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/flowyard/flowyard/internal/debug"
	"github.com/flowyard/flowyard/internal/storage"
	"github.com/flowyard/flowyard/internal/tracker"
)

func init() {
	tracker.Register("pipeboard", func() tracker.StateTracker {
		return &Tracker{}
	})
}

// Tracker implements tracker.StateTracker for Pipeboard.
type Tracker struct {
	client   *Client
	store    storage.Storage
	boardID  string
	identity string
}

func (t *Tracker) Name() string         { return "pipeboard" }
func (t *Tracker) DisplayName() string  { return "Pipeboard" }
func (t *Tracker) ConfigPrefix() string { return "pipeboard" }

func (t *Tracker) Init(ctx context.Context, store storage.Storage) error {
	t.store = store

	boardURL, err := t.getConfig(ctx, "pipeboard.url", "PIPEBOARD_URL")
	if err != nil || boardURL == "" {
		return fmt.Errorf("Pipeboard URL not configured (set pipeboard.url or PIPEBOARD_URL)")
	}

	boardID, err := t.getConfig(ctx, "pipeboard.board", "PIPEBOARD_BOARD")
	if err != nil || boardID == "" {
		return fmt.Errorf("Pipeboard board not configured (set pipeboard.board or PIPEBOARD_BOARD)")
	}
	t.boardID = boardID

	apiToken, err := t.getConfig(ctx, "pipeboard.api_token", "PIPEBOARD_API_TOKEN")
	if err != nil || apiToken == "" {
		return fmt.Errorf("Pipeboard API token not configured (set pipeboard.api_token or PIPEBOARD_API_TOKEN)")
	}

	t.identity = "pipeboard"
	if u, err := url.Parse(boardURL); err == nil && u.Host != "" {
		t.identity = "pipeboard:" + u.Host
	}

	t.client = NewClient(boardURL, apiToken)
	return nil
}

func (t *Tracker) Validate() error {
	if t.client == nil {
		return fmt.Errorf("Pipeboard tracker not initialized")
	}
	return nil
}

func (t *Tracker) Close() error { return nil }

func (t *Tracker) IntegrationIdentity() string { return t.identity }

// FieldSelector matches the synthetic "phase" field the adapter stamps on
// every feed entry; the feed itself carries nothing but phase moves.
func (t *Tracker) FieldSelector() tracker.FieldSelector {
	return tracker.FieldSelector{FieldID: "phase", FieldName: "phase"}
}

func (t *Tracker) TimeLayouts() []string { return []string{time.RFC3339} }

func (t *Tracker) ClosePolicy() tracker.ClosePolicy { return tracker.CloseImplicitPrevious }

func (t *Tracker) SeedsCreationInterval() bool { return true }

func (t *Tracker) ListWorkItems(ctx context.Context, opts tracker.FetchOptions) ([]string, error) {
	return t.client.ListCards(ctx, t.boardID, opts.Since, opts.Limit)
}

func (t *Tracker) FetchWorkItemDetail(ctx context.Context, externalID string) (*tracker.WorkItemDetail, error) {
	card, err := t.client.GetCard(ctx, externalID)
	if errors.Is(err, errNotFound) {
		return &tracker.WorkItemDetail{ExternalID: externalID, Deleted: true}, nil
	}
	if err != nil {
		return nil, err
	}

	detail := &tracker.WorkItemDetail{
		ExternalID:   card.ID,
		Title:        card.Title,
		InitialStage: card.InitialPhase,
	}
	if created, err := tracker.ParseTimestamp(card.CreatedAt, t.TimeLayouts()); err == nil {
		detail.CreatedAt = created
	}
	return detail, nil
}

func (t *Tracker) FetchChangeHistory(ctx context.Context, externalID string, cursor tracker.PageCursor) (*tracker.HistoryPage, error) {
	pageSize := cursor.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	page, err := t.client.GetPhaseEvents(ctx, externalID, cursor.StartAt, pageSize)
	if errors.Is(err, errNotFound) {
		debug.Logf("pipeboard: phase events for %s not found, treating as empty\n", externalID)
		return &tracker.HistoryPage{LastPage: true}, nil
	}
	if err != nil {
		return nil, err
	}

	out := &tracker.HistoryPage{
		LastPage:    !page.HasMore || page.Offset+len(page.Events) >= page.Total,
		NextStartAt: page.Offset + len(page.Events),
	}
	for _, ev := range page.Events {
		out.Changes = append(out.Changes, tracker.RawChange{
			FieldID:     "phase",
			FieldName:   "phase",
			ToValue:     ev.PhaseName,
			At:          ev.MovedAt,
			AuthorName:  ev.MovedBy.Name,
			AuthorEmail: ev.MovedBy.Email,
		})
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
