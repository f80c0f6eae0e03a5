package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowyard/flowyard/internal/debug"
	"github.com/flowyard/flowyard/internal/storage"
	"github.com/flowyard/flowyard/internal/tracker"
	"github.com/flowyard/flowyard/internal/types"
)

// Builder walks the normalized event sequence for one demand and maintains
// its transition set: it closes open intervals, upserts the destination
// interval on the (demand, stage, enteredAt) idempotence key, and applies
// discard/undiscard side effects.
//
// Apply may be called more than once per pass (the feed arrives paginated)
// as long as events are chronologically ordered across calls; Normalize
// guarantees that order within one call, and the reconciler normalizes the
// whole feed before building, so page order on the wire never matters.
type Builder struct {
	store  storage.Reader
	stages *StageResolver
	actors *ActorResolver

	demand   *types.Demand
	identity string
	policy   tracker.ClosePolicy

	// open is the cursor over the demand's single open interval.
	open *types.DemandTransition

	kept    []int64
	keptSet map[int64]bool

	created int
	closed  int

	initialDiscard *time.Time
}

// NewBuilder creates a builder for one demand's pass. The open-interval
// cursor is initialized from the demand's currently persisted open
// transition, or none for a brand-new demand.
func NewBuilder(ctx context.Context, store storage.Reader, stages *StageResolver, actors *ActorResolver,
	demand *types.Demand, identity string, policy tracker.ClosePolicy) (*Builder, error) {

	open, err := store.GetOpenTransition(ctx, demand.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading open transition for demand %d: %w", demand.ID, err)
	}

	return &Builder{
		store:          store,
		stages:         stages,
		actors:         actors,
		demand:         demand,
		identity:       identity,
		policy:         policy,
		open:           open,
		keptSet:        make(map[int64]bool),
		initialDiscard: demand.DiscardedAt,
	}, nil
}

// SeedCreationInterval records a synthetic interval for a demand in its
// first workflow stage, starting at the demand's creation timestamp. Used by
// trackers whose feeds only report moves, leaving the initial placement
// implicit. Idempotent: re-seeding resolves to the existing row.
func (b *Builder) SeedCreationInterval(ctx context.Context, stageName string, at time.Time) error {
	stage, err := b.stages.Resolve(ctx, stageName, b.identity, b.demand.ProjectID)
	if errors.Is(err, ErrBlankName) {
		return nil
	}
	if err != nil {
		return err
	}

	t, err := b.store.FindTransition(ctx, b.demand.ID, stage.ID, at)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		t = &types.DemandTransition{
			DemandID:  b.demand.ID,
			StageID:   stage.ID,
			EnteredAt: at,
		}
		if err := b.store.CreateTransition(ctx, t); err != nil {
			return fmt.Errorf("seeding creation interval: %w", err)
		}
		b.created++
		if b.open == nil {
			b.open = t
		}
	case err != nil:
		return err
	}

	b.keep(t.ID)
	return nil
}

// Apply processes normalized events in order, mutating the demand's
// transition set. Events whose destination stage cannot be resolved are
// skipped entirely: no stage or actor creation, no transition mutation.
func (b *Builder) Apply(ctx context.Context, events []tracker.ChangeEvent) error {
	for _, ev := range events {
		if err := b.applyEvent(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) applyEvent(ctx context.Context, ev tracker.ChangeEvent) error {
	// Normalization already filters blank destinations; re-check here so a
	// misbehaving adapter cannot corrupt the interval chain.
	toStage, err := b.stages.Resolve(ctx, ev.ToValue, b.identity, b.demand.ProjectID)
	if errors.Is(err, ErrBlankName) {
		debug.Logf("builder: demand %d: skipping event at %s with blank destination\n", b.demand.ID, ev.OccurredAt)
		return nil
	}
	if err != nil {
		return err
	}

	var memberID *int64
	actor, err := b.actors.Resolve(ctx, ev.ActorName, ev.ActorEmail, ev.OccurredAt)
	if err != nil {
		return err
	}
	if actor != nil {
		id := actor.ID
		memberID = &id
	}

	at := ev.OccurredAt

	if b.policy == tracker.CloseExplicitFrom && ev.FromValue != "" {
		if err := b.closeExplicit(ctx, ev.FromValue, at); err != nil {
			return err
		}
	}
	// Whatever is still open closes before a new interval opens. This is
	// what holds the at-most-one-open invariant even when an explicit from
	// names a stage that is not the one actually open.
	if err := b.closeOpen(ctx, at); err != nil {
		return err
	}

	t, err := b.upsertDestination(ctx, toStage.ID, at, memberID)
	if err != nil {
		return err
	}
	b.open = t
	b.keep(t.ID)

	// Discard side effect: the last event processed decides the final state.
	if toStage.Trashcan {
		return b.setDiscard(ctx, &at)
	}
	return b.setDiscard(ctx, nil)
}

// closeExplicit closes the most recent open transition on the event's
// from-stage. No matching open transition is a no-op, not an error.
func (b *Builder) closeExplicit(ctx context.Context, fromValue string, at time.Time) error {
	fromStage, err := b.stages.Resolve(ctx, fromValue, b.identity, b.demand.ProjectID)
	if errors.Is(err, ErrBlankName) {
		return nil
	}
	if err != nil {
		return err
	}

	prev, err := b.store.LatestOpenTransitionInStage(ctx, b.demand.ID, fromStage.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	exit := at
	prev.ExitedAt = &exit
	if err := b.store.UpdateTransition(ctx, prev); err != nil {
		return fmt.Errorf("closing transition %d: %w", prev.ID, err)
	}
	b.closed++
	if b.open != nil && b.open.ID == prev.ID {
		b.open = nil
	}
	return nil
}

func (b *Builder) closeOpen(ctx context.Context, at time.Time) error {
	if b.open == nil || b.open.ExitedAt != nil {
		b.open = nil
		return nil
	}
	exit := at
	b.open.ExitedAt = &exit
	if err := b.store.UpdateTransition(ctx, b.open); err != nil {
		return fmt.Errorf("closing open transition %d: %w", b.open.ID, err)
	}
	b.closed++
	b.open = nil
	return nil
}

// upsertDestination finds or creates the destination interval on the
// idempotence key. Two events with the same occurredAt and destination
// collapse onto one row. On an existing row the latest-known actor wins and
// the interval re-opens; a later event in the same pass closes it again.
func (b *Builder) upsertDestination(ctx context.Context, stageID int64, at time.Time, memberID *int64) (*types.DemandTransition, error) {
	t, err := b.store.FindTransition(ctx, b.demand.ID, stageID, at)
	if errors.Is(err, storage.ErrNotFound) {
		t = &types.DemandTransition{
			DemandID:     b.demand.ID,
			StageID:      stageID,
			EnteredAt:    at,
			TeamMemberID: memberID,
		}
		createErr := b.store.CreateTransition(ctx, t)
		if createErr == nil {
			b.created++
			return t, nil
		}
		if !errors.Is(createErr, storage.ErrDuplicate) {
			return nil, fmt.Errorf("creating transition: %w", createErr)
		}
		// Lost an insert race on the idempotence key; adopt the winner.
		t, err = b.store.FindTransition(ctx, b.demand.ID, stageID, at)
	}
	if err != nil {
		return nil, fmt.Errorf("finding transition: %w", err)
	}

	if memberID != nil {
		t.TeamMemberID = memberID
	}
	t.ExitedAt = nil
	if err := b.store.UpdateTransition(ctx, t); err != nil {
		return nil, fmt.Errorf("updating transition %d: %w", t.ID, err)
	}
	return t, nil
}

func (b *Builder) setDiscard(ctx context.Context, at *time.Time) error {
	if timePtrEqual(b.demand.DiscardedAt, at) {
		return nil
	}
	if err := b.store.UpdateDemandDiscard(ctx, b.demand.ID, at); err != nil {
		return fmt.Errorf("updating discard state for demand %d: %w", b.demand.ID, err)
	}
	b.demand.DiscardedAt = at
	return nil
}

func (b *Builder) keep(id int64) {
	if !b.keptSet[id] {
		b.keptSet[id] = true
		b.kept = append(b.kept, id)
	}
}

// KeptIDs returns the ids of every transition upserted this pass, plus the
// seeded creation interval if one was used, in build order.
func (b *Builder) KeptIDs() []int64 { return b.kept }

// Finish reports the pass. Pruned is filled in by the caller after the
// pruner runs.
func (b *Builder) Finish() *types.ReconciliationReport {
	return &types.ReconciliationReport{
		Created:             b.created,
		Closed:              b.closed,
		DiscardStateChanged: !timePtrEqual(b.initialDiscard, b.demand.DiscardedAt),
		TransitionIDs:       b.kept,
	}
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
