// Package notify decides which sync-surfaced events still need a
// notification and dispatches them to the configured webhook.
//
// Every notifiable row carries a monotonic flag: false until the
// notification is delivered, then true forever. Reconciliation may rebuild
// transitions freely; a rebuilt row keeps its id and therefore its flag, and
// a genuinely new interval starts unnotified. Flags are set only after
// successful delivery, so a failed dispatch retries on the next run.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/flowyard/flowyard/internal/storage"
)

// EventKind discriminates the notifiable event types.
type EventKind string

const (
	KindTransition EventKind = "transition"
	KindAssignment EventKind = "assignment"
	KindBlocked    EventKind = "blocked"
	KindUnblocked  EventKind = "unblocked"
)

// Event is one pending notification.
type Event struct {
	Kind     EventKind
	RefID    int64 // id of the transition/assignment/block row
	DemandID int64
	At       time.Time
}

// Gate scans a demand's rows for events whose notification flag is unset.
type Gate struct {
	store storage.Storage
}

// NewGate creates a gate over the given store.
func NewGate(store storage.Storage) *Gate {
	return &Gate{store: store}
}

// Pending returns the demand's unnotified events: every transition whose
// flag is unset (closed ones included, so an interval opened and closed in
// one pass still notifies), open assignments, and block/unblock pairs.
// Block and unblock flags are independent: a block whose entry notification
// already went out still owes an unblock notification once the unblock time
// is set.
func (g *Gate) Pending(ctx context.Context, demandID int64) ([]Event, error) {
	var events []Event

	transitions, err := g.store.ListTransitions(ctx, demandID)
	if err != nil {
		return nil, fmt.Errorf("scanning transitions for demand %d: %w", demandID, err)
	}
	for _, tr := range transitions {
		if !tr.TransitionNotified {
			events = append(events, Event{
				Kind:     KindTransition,
				RefID:    tr.ID,
				DemandID: demandID,
				At:       tr.EnteredAt,
			})
		}
	}

	assignments, err := g.store.ListOpenAssignments(ctx, demandID)
	if err != nil {
		return nil, fmt.Errorf("scanning assignments for demand %d: %w", demandID, err)
	}
	for _, a := range assignments {
		if !a.AssignmentNotified {
			events = append(events, Event{
				Kind:     KindAssignment,
				RefID:    a.ID,
				DemandID: demandID,
				At:       a.StartTime,
			})
		}
	}

	blocks, err := g.store.ListBlocks(ctx, demandID)
	if err != nil {
		return nil, fmt.Errorf("scanning blocks for demand %d: %w", demandID, err)
	}
	for _, b := range blocks {
		if !b.BlockNotified {
			events = append(events, Event{
				Kind:     KindBlocked,
				RefID:    b.ID,
				DemandID: demandID,
				At:       b.BlockTime,
			})
		}
		if b.UnblockTime != nil && !b.UnblockNotified {
			events = append(events, Event{
				Kind:     KindUnblocked,
				RefID:    b.ID,
				DemandID: demandID,
				At:       *b.UnblockTime,
			})
		}
	}

	return events, nil
}

// Mark sets the event's notification flag. Called only after the dispatch
// succeeded; the flag never goes back to false.
func (g *Gate) Mark(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case KindTransition:
		return g.store.MarkTransitionNotified(ctx, ev.RefID)
	case KindAssignment:
		return g.store.MarkAssignmentNotified(ctx, ev.RefID)
	case KindBlocked:
		return g.store.MarkBlockNotified(ctx, ev.RefID, false)
	case KindUnblocked:
		return g.store.MarkBlockNotified(ctx, ev.RefID, true)
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}
