package tracker

import (
	"context"

	"github.com/flowyard/flowyard/internal/storage"
)

// StateTracker is the plugin interface that all tracker integrations must
// implement. Each external system (Jira, Pipeboard, etc.) provides an adapter
// implementing this interface; the syncer and the reconciliation engine use
// it to pull change histories and to pick the repair strategy that matches
// the tracker's data shape.
type StateTracker interface {
	// Name returns the lowercase identifier for this tracker (e.g. "jira").
	Name() string

	// DisplayName returns the human-readable name (e.g. "Jira").
	DisplayName() string

	// ConfigPrefix returns the config key prefix (e.g. "jira").
	ConfigPrefix() string

	// Init initializes the tracker with configuration from the config store.
	// Called once before any sync operations.
	Init(ctx context.Context, store storage.Storage) error

	// Validate checks that the tracker is properly configured.
	Validate() error

	// Close releases any resources held by the tracker.
	Close() error

	// IntegrationIdentity scopes canonical stages: two accounts on the same
	// tracker product must not collide on state names.
	IntegrationIdentity() string

	// FieldSelector identifies the state field in this tracker's history feed.
	FieldSelector() FieldSelector

	// TimeLayouts returns the timestamp layouts this tracker's feed uses,
	// tried in order by the normalizer.
	TimeLayouts() []string

	// ClosePolicy returns the close-previous-interval strategy for this
	// tracker's data shape.
	ClosePolicy() ClosePolicy

	// SeedsCreationInterval reports whether a brand-new demand gets a
	// synthetic interval from its creation timestamp and first stage.
	SeedsCreationInterval() bool

	// ListWorkItems returns the external ids of work items to sync.
	ListWorkItems(ctx context.Context, opts FetchOptions) ([]string, error)

	// FetchWorkItemDetail retrieves a single work item. A "not found"
	// response yields Deleted=true rather than an error.
	FetchWorkItemDetail(ctx context.Context, externalID string) (*WorkItemDetail, error)

	// FetchChangeHistory retrieves one page of the item's change history.
	// A "not found" response yields an empty last page, logged not fatal.
	FetchChangeHistory(ctx context.Context, externalID string, cursor PageCursor) (*HistoryPage, error)
}
