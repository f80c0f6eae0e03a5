package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowyard/flowyard/internal/storage/memory"
	"github.com/flowyard/flowyard/internal/types"
)

const (
	testCompany  = int64(1)
	testIdentity = "jira:example.atlassian.net"
)

func TestStageResolverCreatesTitleCased(t *testing.T) {
	store := memory.New()
	r := NewStageResolver(store, testCompany, nil)

	stage, err := r.Resolve(context.Background(), "IN PROGRESS", testIdentity, 10)
	require.NoError(t, err)
	require.Equal(t, "In Progress", stage.Name)
	require.False(t, stage.Trashcan)
}

func TestStageResolverFindsCaseInsensitively(t *testing.T) {
	store := memory.New()
	r := NewStageResolver(store, testCompany, nil)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "Review", testIdentity, 10)
	require.NoError(t, err)

	// Fresh resolver so the per-pass cache cannot mask a storage miss.
	r2 := NewStageResolver(store, testCompany, nil)
	second, err := r2.Resolve(ctx, "REVIEW", testIdentity, 10)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "case variants must resolve to one stage")
}

func TestStageResolverMappingOverride(t *testing.T) {
	store := memory.New()
	mappings := map[string]StageMapping{
		"cancelled": {Name: "Discarded", Trashcan: true},
	}
	r := NewStageResolver(store, testCompany, mappings)

	stage, err := r.Resolve(context.Background(), "Cancelled", testIdentity, 10)
	require.NoError(t, err)
	require.Equal(t, "Discarded", stage.Name)
	require.True(t, stage.Trashcan)
}

func TestStageResolverBlankName(t *testing.T) {
	r := NewStageResolver(memory.New(), testCompany, nil)

	_, err := r.Resolve(context.Background(), "   ", testIdentity, 10)
	require.ErrorIs(t, err, ErrBlankName)
}

func TestStageResolverAssociatesProject(t *testing.T) {
	store := memory.New()
	r := NewStageResolver(store, testCompany, nil)
	ctx := context.Background()

	stage, err := r.Resolve(ctx, "Todo", testIdentity, 10)
	require.NoError(t, err)
	_, err = r.Resolve(ctx, "todo", testIdentity, 20)
	require.NoError(t, err)

	require.ElementsMatch(t, []int64{10, 20}, store.StageProjects(stage.ID))
}

func TestStageResolverScopesByIdentity(t *testing.T) {
	store := memory.New()
	r := NewStageResolver(store, testCompany, nil)
	ctx := context.Background()

	a, err := r.Resolve(ctx, "Done", "jira:one.example.com", 10)
	require.NoError(t, err)
	b, err := r.Resolve(ctx, "Done", "jira:two.example.com", 10)
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID, "same name under different identities must be distinct stages")
}

func TestActorResolverBlankNameIsNoActor(t *testing.T) {
	r := NewActorResolver(memory.New(), testCompany)

	member, err := r.Resolve(context.Background(), "", "ana@example.com", time.Now())
	require.NoError(t, err)
	require.Nil(t, member)
}

func TestActorResolverCreatesAndLinksUser(t *testing.T) {
	store := memory.New()
	user := store.AddUser(&types.User{Name: "Ana", Email: "ana@example.com"})
	r := NewActorResolver(store, testCompany)

	asOf := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	member, err := r.Resolve(context.Background(), "Ana Lima", "ana@example.com", asOf)
	require.NoError(t, err)
	require.NotNil(t, member)
	require.Equal(t, "Ana Lima", member.Name)
	require.True(t, member.StartDate.Equal(asOf))
	require.NotNil(t, member.UserID)
	require.Equal(t, user.ID, *member.UserID)
}

func TestActorResolverFirstLinkWins(t *testing.T) {
	store := memory.New()
	first := store.AddUser(&types.User{Name: "Ana", Email: "ana@example.com"})
	store.AddUser(&types.User{Name: "Other", Email: "other@example.com"})
	ctx := context.Background()

	r := NewActorResolver(store, testCompany)
	m1, err := r.Resolve(ctx, "Ana Lima", "ana@example.com", time.Now())
	require.NoError(t, err)
	require.Equal(t, first.ID, *m1.UserID)

	// Same actor shows up later under a different email.
	r2 := NewActorResolver(store, testCompany)
	m2, err := r2.Resolve(ctx, "Ana Lima", "other@example.com", time.Now())
	require.NoError(t, err)
	require.Equal(t, m1.ID, m2.ID)
	require.Equal(t, first.ID, *m2.UserID, "a later email must not steal the link")
}

func TestActorResolverUnknownEmailStaysUnlinked(t *testing.T) {
	store := memory.New()
	r := NewActorResolver(store, testCompany)

	member, err := r.Resolve(context.Background(), "Bob", "nobody@example.com", time.Now())
	require.NoError(t, err)
	require.Nil(t, member.UserID)
}

func TestActorResolverReusesExistingMember(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	r := NewActorResolver(store, testCompany)
	m1, err := r.Resolve(ctx, "Bob", "", time.Now())
	require.NoError(t, err)

	r2 := NewActorResolver(store, testCompany)
	m2, err := r2.Resolve(ctx, "Bob", "", time.Now())
	require.NoError(t, err)
	require.Equal(t, m1.ID, m2.ID)
}
