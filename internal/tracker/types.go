// Package tracker provides a plugin framework for external issue tracker
// integrations.
//
// It defines the StateTracker interface, a registry for adapters, and the
// common change-event shapes the reconciliation engine consumes. Each
// external system (Jira, Pipeboard, etc.) provides an adapter that flattens
// its wire format into RawChange entries; Normalize turns those into the
// ordered ChangeEvent sequence the transition builder walks.
package tracker

import (
	"strings"
	"time"
)

// RawChange is one entry of an external change-history feed, flattened by an
// adapter but not yet filtered, parsed, or ordered. At stays a string here:
// timestamp parsing (and malformed-timestamp skipping) is the normalizer's
// job, so the builder never sees a half-parsed event.
type RawChange struct {
	FieldID     string // Stable field identifier (e.g. "status"), may be empty
	FieldName   string // Display name of the changed field, may be empty
	FromValue   string // State before the change, empty when the feed omits it
	ToValue     string // State after the change
	At          string // Wire-format timestamp
	AuthorName  string
	AuthorEmail string
}

// ChangeEvent is a normalized state-transition event in the common shape
// consumed by the transition builder.
type ChangeEvent struct {
	FromValue   string
	ToValue     string
	OccurredAt  time.Time // Always UTC
	ActorName   string
	ActorEmail  string
}

// FieldSelector identifies which changed field in a history feed carries
// state transitions. An entry matches when either the stable field id or the
// display name matches, case-insensitively.
type FieldSelector struct {
	FieldID   string
	FieldName string
}

// Matches reports whether a history entry's field identifies a state change.
func (s FieldSelector) Matches(fieldID, fieldName string) bool {
	if s.FieldID != "" && strings.EqualFold(fieldID, s.FieldID) {
		return true
	}
	return s.FieldName != "" && strings.EqualFold(fieldName, s.FieldName)
}

// ClosePolicy selects how the builder closes the previous interval when an
// event opens a new one. The divergence is deliberate: some trackers always
// supply an explicit "from" state, others only report destinations.
type ClosePolicy string

const (
	// CloseExplicitFrom closes the most recent open transition on the
	// event's from-stage. A missing match is a no-op, not an error.
	CloseExplicitFrom ClosePolicy = "explicit-from"

	// CloseImplicitPrevious closes whatever transition is currently open
	// for the demand, regardless of stage.
	CloseImplicitPrevious ClosePolicy = "implicit-previous"
)

// PageCursor addresses one page of a change-history feed.
type PageCursor struct {
	StartAt  int
	PageSize int
}

// HistoryPage is one page of raw change history.
type HistoryPage struct {
	Changes     []RawChange
	LastPage    bool
	NextStartAt int
}

// WorkItemDetail describes an external work item, used to seed a brand-new
// demand before any transitions exist and to detect upstream deletion.
type WorkItemDetail struct {
	ExternalID   string
	Title        string
	CreatedAt    time.Time
	InitialStage string // First workflow stage, for creation-interval seeding
	Deleted      bool   // The tracker reports the item gone entirely
}

// FetchOptions narrows a work-item listing.
type FetchOptions struct {
	// Since limits the listing to items updated after this time (incremental
	// sync). Nil fetches everything.
	Since *time.Time

	// Limit caps the number of items returned (0 = no limit).
	Limit int
}
