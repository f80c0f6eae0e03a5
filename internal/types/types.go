// Package types defines the canonical data model for flowyard: demands,
// stages, and the transition intervals between them.
package types

import (
	"time"
)

// Demand represents a trackable work item flowing through the delivery process.
// It is created on the first sync of a new external id and mutated on every
// reconciliation pass. Discard is a soft delete; hard removal happens only
// when the external tracker reports the item deleted.
type Demand struct {
	ID          int64      `json:"id"`
	ExternalID  string     `json:"external_id"` // Unique per (source, project)
	ProjectID   int64      `json:"project_id"`
	TeamID      int64      `json:"team_id"`
	CreatedDate time.Time  `json:"created_date"` // Creation timestamp reported by the tracker
	DiscardedAt *time.Time `json:"discarded_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Discarded reports whether the demand is currently discarded.
func (d *Demand) Discarded() bool { return d.DiscardedAt != nil }

// Stage is a canonical workflow state, scoped to a company and an integration
// identity so two external accounts do not collide on state names.
// Uniqueness is case-insensitive on (company, integration identity, name).
type Stage struct {
	ID                  int64  `json:"id"`
	CompanyID           int64  `json:"company_id"`
	IntegrationIdentity string `json:"integration_identity"`
	Name                string `json:"name"`
	Trashcan            bool   `json:"trashcan"` // Entry marks the demand discarded
}

// DemandTransition is one contiguous interval during which a demand occupied
// a stage. ExitedAt == nil means the interval is currently open; at most one
// transition per demand may be open at any time.
//
// (DemandID, StageID, EnteredAt) is the natural idempotence key: re-processing
// the same event must resolve to the same row, never a duplicate.
type DemandTransition struct {
	ID                 int64      `json:"id"`
	DemandID           int64      `json:"demand_id"`
	StageID            int64      `json:"stage_id"`
	EnteredAt          time.Time  `json:"entered_at"`
	ExitedAt           *time.Time `json:"exited_at,omitempty"`
	TeamMemberID       *int64     `json:"team_member_id,omitempty"`
	TransitionNotified bool       `json:"transition_notified"`
}

// Open reports whether the transition interval is still open.
func (t *DemandTransition) Open() bool { return t.ExitedAt == nil }

// TeamMember is the canonical representation of a person referenced by
// external events. Created lazily; may be linked to an internal User by
// email match; shared across every transition and assignment it touches.
type TeamMember struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	Name      string    `json:"name"`
	UserID    *int64    `json:"user_id,omitempty"`
	StartDate time.Time `json:"start_date"`
}

// User is an internal account a TeamMember may be linked to.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Project groups demands. Stages are many-to-many with projects.
type Project struct {
	ID        int64  `json:"id"`
	CompanyID int64  `json:"company_id"`
	Name      string `json:"name"`
}

// ItemAssignment records a team member being assigned to a demand.
// AssignmentNotified is a monotonic flag: set exactly once, never unset.
type ItemAssignment struct {
	ID                 int64      `json:"id"`
	DemandID           int64      `json:"demand_id"`
	TeamMemberID       int64      `json:"team_member_id"`
	StartTime          time.Time  `json:"start_time"`
	FinishTime         *time.Time `json:"finish_time,omitempty"`
	AssignmentNotified bool       `json:"assignment_notified"`
}

// DemandBlock records a demand being blocked and later unblocked.
// The blocked and unblocked notification flags are tracked independently:
// notifying the block does not arm or disarm the unblock notification.
type DemandBlock struct {
	ID              int64      `json:"id"`
	DemandID        int64      `json:"demand_id"`
	BlockerID       *int64     `json:"blocker_id,omitempty"` // TeamMember who blocked
	BlockTime       time.Time  `json:"block_time"`
	UnblockTime     *time.Time `json:"unblock_time,omitempty"`
	BlockNotified   bool       `json:"block_notified"`
	UnblockNotified bool       `json:"unblock_notified"`
}

// ReconciliationReport summarizes one reconciliation pass for a demand.
type ReconciliationReport struct {
	Created             int     `json:"created"`
	Closed              int     `json:"closed"`
	Pruned              int     `json:"pruned"`
	DiscardStateChanged bool    `json:"discard_state_changed"`
	TransitionIDs       []int64 `json:"transition_ids,omitempty"` // Kept set, in build order
}

// ItemError records a single demand's failure inside an aggregate sync.
type ItemError struct {
	ExternalID string `json:"external_id"`
	Err        string `json:"error"`
}

// SyncResult aggregates per-demand outcomes for a project-wide sync.
// A failed demand is reported here and never aborts the batch.
type SyncResult struct {
	Synced             int         `json:"synced"`
	Failed             int         `json:"failed"`
	Removed            int         `json:"removed"` // Hard-removed (deleted upstream)
	TransitionsWritten int         `json:"transitions_written"`
	TransitionsPruned  int         `json:"transitions_pruned"`
	Errors             []ItemError `json:"errors,omitempty"`
	LastSync           string      `json:"last_sync,omitempty"` // RFC3339
}
