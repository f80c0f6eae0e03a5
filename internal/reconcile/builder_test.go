package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowyard/flowyard/internal/storage/memory"
	"github.com/flowyard/flowyard/internal/tracker"
	"github.com/flowyard/flowyard/internal/types"
)

func ts(hour int) time.Time {
	return time.Date(2024, 3, 1, hour, 0, 0, 0, time.UTC)
}

type builderEnv struct {
	store  *memory.Store
	demand *types.Demand
}

func newBuilderEnv(t *testing.T) *builderEnv {
	t.Helper()
	store := memory.New()
	demand := &types.Demand{ExternalID: "PROJ-1", ProjectID: 10, TeamID: 1, CreatedDate: ts(8)}
	require.NoError(t, store.CreateDemand(context.Background(), demand))
	return &builderEnv{store: store, demand: demand}
}

func (e *builderEnv) builder(t *testing.T, policy tracker.ClosePolicy, mappings map[string]StageMapping) *Builder {
	t.Helper()
	stages := NewStageResolver(e.store, testCompany, mappings)
	actors := NewActorResolver(e.store, testCompany)
	b, err := NewBuilder(context.Background(), e.store, stages, actors, e.demand, testIdentity, policy)
	require.NoError(t, err)
	return b
}

func (e *builderEnv) transitions(t *testing.T) []*types.DemandTransition {
	t.Helper()
	out, err := e.store.ListTransitions(context.Background(), e.demand.ID)
	require.NoError(t, err)
	return out
}

func requireOneOpen(t *testing.T, transitions []*types.DemandTransition) {
	t.Helper()
	open := 0
	for _, tr := range transitions {
		if tr.Open() {
			open++
		}
	}
	require.LessOrEqual(t, open, 1, "at most one transition may be open")
}

func TestBuilderImplicitPreviousChain(t *testing.T) {
	env := newBuilderEnv(t)
	b := env.builder(t, tracker.CloseImplicitPrevious, nil)

	events := []tracker.ChangeEvent{
		{ToValue: "Todo", OccurredAt: ts(9)},
		{ToValue: "Doing", OccurredAt: ts(10)},
		{ToValue: "Done", OccurredAt: ts(11)},
	}
	require.NoError(t, b.Apply(context.Background(), events))

	transitions := env.transitions(t)
	require.Len(t, transitions, 3)
	requireOneOpen(t, transitions)

	require.NotNil(t, transitions[0].ExitedAt)
	require.True(t, transitions[0].ExitedAt.Equal(ts(10)), "interval closes when the next one opens")
	require.NotNil(t, transitions[1].ExitedAt)
	require.True(t, transitions[1].ExitedAt.Equal(ts(11)))
	require.True(t, transitions[2].Open())

	report := b.Finish()
	require.Equal(t, 3, report.Created)
	require.Equal(t, 2, report.Closed)
}

func TestBuilderExplicitFromClosesNamedStage(t *testing.T) {
	env := newBuilderEnv(t)
	b := env.builder(t, tracker.CloseExplicitFrom, nil)

	events := []tracker.ChangeEvent{
		{ToValue: "Todo", OccurredAt: ts(9)},
		{FromValue: "Todo", ToValue: "Doing", OccurredAt: ts(10)},
	}
	require.NoError(t, b.Apply(context.Background(), events))

	transitions := env.transitions(t)
	require.Len(t, transitions, 2)
	require.NotNil(t, transitions[0].ExitedAt)
	require.True(t, transitions[0].ExitedAt.Equal(ts(10)))
	require.True(t, transitions[1].Open())
}

func TestBuilderExplicitFromMismatchStillHoldsInvariant(t *testing.T) {
	env := newBuilderEnv(t)
	b := env.builder(t, tracker.CloseExplicitFrom, nil)

	// The from names a stage that was never opened; the open interval must
	// close anyway before the destination opens.
	events := []tracker.ChangeEvent{
		{ToValue: "Todo", OccurredAt: ts(9)},
		{FromValue: "Review", ToValue: "Doing", OccurredAt: ts(10)},
	}
	require.NoError(t, b.Apply(context.Background(), events))

	transitions := env.transitions(t)
	requireOneOpen(t, transitions)
	for _, tr := range transitions {
		if tr.Open() {
			require.True(t, tr.EnteredAt.Equal(ts(10)))
		}
	}
}

func TestBuilderIdempotentReapply(t *testing.T) {
	env := newBuilderEnv(t)
	events := []tracker.ChangeEvent{
		{ToValue: "Todo", OccurredAt: ts(9)},
		{ToValue: "Doing", OccurredAt: ts(10)},
	}

	b := env.builder(t, tracker.CloseImplicitPrevious, nil)
	require.NoError(t, b.Apply(context.Background(), events))
	first := env.transitions(t)

	b2 := env.builder(t, tracker.CloseImplicitPrevious, nil)
	require.NoError(t, b2.Apply(context.Background(), events))
	second := env.transitions(t)

	require.Equal(t, len(first), len(second))
	for i := range first {
		require.Equal(t, first[i].ID, second[i].ID, "re-processing must reuse rows, not duplicate them")
		require.True(t, first[i].EnteredAt.Equal(second[i].EnteredAt))
	}
	require.Equal(t, 0, b2.Finish().Created, "second pass creates nothing")
}

func TestBuilderSameKeyCollapses(t *testing.T) {
	env := newBuilderEnv(t)
	b := env.builder(t, tracker.CloseImplicitPrevious, nil)

	// Duplicate event on the idempotence key (demand, stage, enteredAt).
	events := []tracker.ChangeEvent{
		{ToValue: "Doing", OccurredAt: ts(10)},
		{ToValue: "Doing", OccurredAt: ts(10), ActorName: "Ana"},
	}
	require.NoError(t, b.Apply(context.Background(), events))

	transitions := env.transitions(t)
	require.Len(t, transitions, 1)
	require.True(t, transitions[0].Open())
	require.NotNil(t, transitions[0].TeamMemberID, "latest-known actor wins on the collapsed row")
}

func TestBuilderTrashcanDiscard(t *testing.T) {
	env := newBuilderEnv(t)
	mappings := map[string]StageMapping{"cancelled": {Trashcan: true}}
	b := env.builder(t, tracker.CloseImplicitPrevious, mappings)

	events := []tracker.ChangeEvent{
		{ToValue: "Doing", OccurredAt: ts(9)},
		{ToValue: "Cancelled", OccurredAt: ts(10)},
	}
	require.NoError(t, b.Apply(context.Background(), events))

	require.NotNil(t, env.demand.DiscardedAt)
	require.True(t, env.demand.DiscardedAt.Equal(ts(10)), "discard timestamp is the trashcan entry time")
	require.True(t, b.Finish().DiscardStateChanged)
}

func TestBuilderUndiscardOnLeavingTrashcan(t *testing.T) {
	env := newBuilderEnv(t)
	mappings := map[string]StageMapping{"cancelled": {Trashcan: true}}
	b := env.builder(t, tracker.CloseImplicitPrevious, mappings)

	events := []tracker.ChangeEvent{
		{ToValue: "Cancelled", OccurredAt: ts(9)},
		{ToValue: "Doing", OccurredAt: ts(10)},
	}
	require.NoError(t, b.Apply(context.Background(), events))

	require.Nil(t, env.demand.DiscardedAt, "the last event decides the final discard state")
}

func TestBuilderDiscardUnchangedReportsFalse(t *testing.T) {
	env := newBuilderEnv(t)
	b := env.builder(t, tracker.CloseImplicitPrevious, nil)

	events := []tracker.ChangeEvent{{ToValue: "Doing", OccurredAt: ts(9)}}
	require.NoError(t, b.Apply(context.Background(), events))
	require.False(t, b.Finish().DiscardStateChanged)
}

func TestBuilderSeedCreationInterval(t *testing.T) {
	env := newBuilderEnv(t)
	b := env.builder(t, tracker.CloseImplicitPrevious, nil)
	ctx := context.Background()

	require.NoError(t, b.SeedCreationInterval(ctx, "Backlog", ts(8)))
	require.NoError(t, b.Apply(ctx, []tracker.ChangeEvent{{ToValue: "Doing", OccurredAt: ts(10)}}))

	transitions := env.transitions(t)
	require.Len(t, transitions, 2)
	require.True(t, transitions[0].EnteredAt.Equal(ts(8)))
	require.NotNil(t, transitions[0].ExitedAt, "seeded interval closes when the first move lands")

	// Re-seeding resolves to the same row.
	b2 := env.builder(t, tracker.CloseImplicitPrevious, nil)
	require.NoError(t, b2.SeedCreationInterval(ctx, "Backlog", ts(8)))
	require.Len(t, env.transitions(t), 2)
}

func TestBuilderSkipsBlankDestination(t *testing.T) {
	env := newBuilderEnv(t)
	b := env.builder(t, tracker.CloseImplicitPrevious, nil)

	events := []tracker.ChangeEvent{
		{ToValue: "Doing", OccurredAt: ts(9)},
		{ToValue: "", OccurredAt: ts(10)},
	}
	require.NoError(t, b.Apply(context.Background(), events))

	transitions := env.transitions(t)
	require.Len(t, transitions, 1)
	require.True(t, transitions[0].Open(), "a skipped event must not close anything")
}

func TestBuilderIncrementalApplyAcrossPages(t *testing.T) {
	env := newBuilderEnv(t)
	b := env.builder(t, tracker.CloseImplicitPrevious, nil)
	ctx := context.Background()

	require.NoError(t, b.Apply(ctx, []tracker.ChangeEvent{{ToValue: "Todo", OccurredAt: ts(9)}}))
	require.NoError(t, b.Apply(ctx, []tracker.ChangeEvent{{ToValue: "Doing", OccurredAt: ts(10)}}))

	transitions := env.transitions(t)
	require.Len(t, transitions, 2)
	requireOneOpen(t, transitions)
	require.Equal(t, 2, len(b.KeptIDs()))
}
