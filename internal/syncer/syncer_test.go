package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flowyard/flowyard/internal/storage"
	"github.com/flowyard/flowyard/internal/storage/memory"
	"github.com/flowyard/flowyard/internal/tracker"
)

func ts(hour int) time.Time {
	return time.Date(2024, 3, 1, hour, 0, 0, 0, time.UTC)
}

// mockTracker serves scripted details and history pages. cursor.StartAt is
// used as a page index, mirroring how the real adapters advance it.
type mockTracker struct {
	mu sync.Mutex

	items   []string
	details map[string]*tracker.WorkItemDetail
	pages   map[string][][]tracker.RawChange

	historyErr     map[string]error
	transientFails map[string]int // transport failures before success

	lastSince *time.Time
	policy    tracker.ClosePolicy
	seeds     bool
}

func (m *mockTracker) Name() string                                { return "mock" }
func (m *mockTracker) DisplayName() string                         { return "Mock" }
func (m *mockTracker) ConfigPrefix() string                        { return "mock" }
func (m *mockTracker) Init(context.Context, storage.Storage) error { return nil }
func (m *mockTracker) Validate() error                             { return nil }
func (m *mockTracker) Close() error                                { return nil }
func (m *mockTracker) IntegrationIdentity() string                 { return "mock:test" }
func (m *mockTracker) FieldSelector() tracker.FieldSelector {
	return tracker.FieldSelector{FieldID: "status", FieldName: "status"}
}
func (m *mockTracker) TimeLayouts() []string { return nil }
func (m *mockTracker) ClosePolicy() tracker.ClosePolicy {
	if m.policy == "" {
		return tracker.CloseImplicitPrevious
	}
	return m.policy
}
func (m *mockTracker) SeedsCreationInterval() bool { return m.seeds }

func (m *mockTracker) ListWorkItems(_ context.Context, opts tracker.FetchOptions) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSince = opts.Since
	return m.items, nil
}

func (m *mockTracker) FetchWorkItemDetail(_ context.Context, externalID string) (*tracker.WorkItemDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.details[externalID]; ok {
		return d, nil
	}
	return &tracker.WorkItemDetail{ExternalID: externalID, CreatedAt: ts(8)}, nil
}

func (m *mockTracker) FetchChangeHistory(_ context.Context, externalID string, cursor tracker.PageCursor) (*tracker.HistoryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := m.transientFails[externalID]; n > 0 {
		m.transientFails[externalID] = n - 1
		return nil, tracker.Transport("scripted failure", fmt.Errorf("connection reset"))
	}
	if err := m.historyErr[externalID]; err != nil {
		return nil, err
	}

	pages := m.pages[externalID]
	idx := cursor.StartAt
	if idx >= len(pages) {
		return &tracker.HistoryPage{LastPage: true}, nil
	}
	return &tracker.HistoryPage{
		Changes:     pages[idx],
		LastPage:    idx == len(pages)-1,
		NextStartAt: idx + 1,
	}, nil
}

func change(to string, at time.Time) tracker.RawChange {
	return tracker.RawChange{FieldName: "status", ToValue: to, At: at.Format(time.RFC3339)}
}

func newTestSyncer(mock *mockTracker) (*Syncer, *memory.Store) {
	store := memory.New()
	return &Syncer{
		Store:     store,
		Tracker:   mock,
		CompanyID: 1,
		ProjectID: 10,
		TeamID:    1,
		Workers:   2,
	}, store
}

func TestSyncProjectCreatesDemandsAndTransitions(t *testing.T) {
	mock := &mockTracker{
		items: []string{"A-1", "A-2"},
		pages: map[string][][]tracker.RawChange{
			"A-1": {{change("Todo", ts(9)), change("Doing", ts(10))}},
			"A-2": {{change("Todo", ts(9))}},
		},
	}
	s, store := newTestSyncer(mock)
	ctx := context.Background()

	result, err := s.SyncProject(ctx)
	if err != nil {
		t.Fatalf("SyncProject: %v", err)
	}
	if result.Synced != 2 || result.Failed != 0 {
		t.Errorf("result = %+v", result)
	}
	if result.TransitionsWritten != 3 {
		t.Errorf("TransitionsWritten = %d, want 3", result.TransitionsWritten)
	}

	demand, err := store.GetDemandByExternalID(ctx, 10, "A-1")
	if err != nil {
		t.Fatalf("demand not created: %v", err)
	}
	transitions, err := store.ListTransitions(ctx, demand.ID)
	if err != nil {
		t.Fatalf("ListTransitions: %v", err)
	}
	if len(transitions) != 2 {
		t.Errorf("%d transitions, want 2", len(transitions))
	}
}

func TestSyncProjectReverseChronologicalPages(t *testing.T) {
	// Provider returns newest page first, a shape the engine must absorb.
	mock := &mockTracker{
		items: []string{"A-1"},
		pages: map[string][][]tracker.RawChange{
			"A-1": {
				{change("Done", ts(11))},
				{change("Todo", ts(9)), change("Doing", ts(10))},
			},
		},
	}
	s, store := newTestSyncer(mock)
	ctx := context.Background()

	if _, err := s.SyncProject(ctx); err != nil {
		t.Fatalf("SyncProject: %v", err)
	}

	demand, _ := store.GetDemandByExternalID(ctx, 10, "A-1")
	transitions, _ := store.ListTransitions(ctx, demand.ID)
	if len(transitions) != 3 {
		t.Fatalf("%d transitions, want 3", len(transitions))
	}
	if !transitions[0].EnteredAt.Equal(ts(9)) || !transitions[2].EnteredAt.Equal(ts(11)) {
		t.Errorf("intervals out of order: %+v", transitions)
	}
	if !transitions[2].Open() {
		t.Errorf("latest interval must be the open one")
	}
	if transitions[0].Open() || transitions[1].Open() {
		t.Errorf("earlier intervals must be closed")
	}
}

func TestSyncProjectItemFailureDoesNotAbortBatch(t *testing.T) {
	mock := &mockTracker{
		items: []string{"BAD-1", "A-2"},
		pages: map[string][][]tracker.RawChange{
			"A-2": {{change("Todo", ts(9))}},
		},
		historyErr: map[string]error{
			"BAD-1": errors.New("malformed response"),
		},
	}
	s, store := newTestSyncer(mock)
	ctx := context.Background()

	result, err := s.SyncProject(ctx)
	if err != nil {
		t.Fatalf("SyncProject: %v", err)
	}
	if result.Synced != 1 || result.Failed != 1 {
		t.Errorf("result = %+v", result)
	}
	if len(result.Errors) != 1 || result.Errors[0].ExternalID != "BAD-1" {
		t.Errorf("errors = %+v", result.Errors)
	}

	// The healthy demand went through.
	if _, err := store.GetDemandByExternalID(ctx, 10, "A-2"); err != nil {
		t.Errorf("healthy item missing: %v", err)
	}
}

func TestSyncProjectRetriesTransportErrors(t *testing.T) {
	mock := &mockTracker{
		items: []string{"A-1"},
		pages: map[string][][]tracker.RawChange{
			"A-1": {{change("Todo", ts(9))}},
		},
		transientFails: map[string]int{"A-1": 1},
	}
	s, _ := newTestSyncer(mock)

	result, err := s.SyncProject(context.Background())
	if err != nil {
		t.Fatalf("SyncProject: %v", err)
	}
	if result.Synced != 1 || result.Failed != 0 {
		t.Errorf("a single transport blip should be retried away: %+v", result)
	}
}

func TestSyncProjectRemovesDeletedUpstream(t *testing.T) {
	mock := &mockTracker{
		items: []string{"A-1"},
		pages: map[string][][]tracker.RawChange{
			"A-1": {{change("Todo", ts(9))}},
		},
	}
	s, store := newTestSyncer(mock)
	ctx := context.Background()

	if _, err := s.SyncProject(ctx); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	demand, err := store.GetDemandByExternalID(ctx, 10, "A-1")
	if err != nil {
		t.Fatalf("demand missing after first sync: %v", err)
	}

	mock.mu.Lock()
	mock.details = map[string]*tracker.WorkItemDetail{
		"A-1": {ExternalID: "A-1", Deleted: true},
	}
	mock.mu.Unlock()

	result, err := s.SyncProject(ctx)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if result.Removed != 1 {
		t.Errorf("Removed = %d, want 1", result.Removed)
	}

	if _, err := store.GetDemandByExternalID(ctx, 10, "A-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("demand should be hard-removed, got %v", err)
	}
	if rest, _ := store.ListTransitions(ctx, demand.ID); len(rest) != 0 {
		t.Errorf("transitions survived hard removal")
	}
}

func TestSyncProjectAdvancesWatermark(t *testing.T) {
	mock := &mockTracker{items: []string{}}
	s, store := newTestSyncer(mock)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	result, err := s.SyncProject(ctx)
	if err != nil {
		t.Fatalf("SyncProject: %v", err)
	}
	if result.LastSync == "" {
		t.Fatalf("LastSync not reported")
	}

	raw, err := store.GetConfig(ctx, s.lastSyncKey())
	if err != nil || raw == "" {
		t.Fatalf("watermark not stored: %q, %v", raw, err)
	}
	stored, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t.Fatalf("watermark not RFC3339: %v", err)
	}
	if stored.Before(before) {
		t.Errorf("watermark %v predates the run", stored)
	}

	// The second run lists incrementally from the stored watermark.
	if _, err := s.SyncProject(ctx); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	mock.mu.Lock()
	defer mock.mu.Unlock()
	if mock.lastSince == nil || !mock.lastSince.Equal(stored) {
		t.Errorf("Since = %v, want %v", mock.lastSince, stored)
	}
}

func TestSyncDemandSingleItem(t *testing.T) {
	mock := &mockTracker{
		pages: map[string][][]tracker.RawChange{
			"A-1": {{change("Todo", ts(9)), change("Doing", ts(10))}},
		},
	}
	s, store := newTestSyncer(mock)
	ctx := context.Background()

	report, err := s.SyncDemand(ctx, "A-1")
	if err != nil {
		t.Fatalf("SyncDemand: %v", err)
	}
	if report.Created != 2 {
		t.Errorf("Created = %d, want 2", report.Created)
	}

	// Resync is idempotent: nothing new, nothing pruned.
	report, err = s.SyncDemand(ctx, "A-1")
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if report.Created != 0 || report.Pruned != 0 {
		t.Errorf("resync report = %+v", report)
	}

	demand, _ := store.GetDemandByExternalID(ctx, 10, "A-1")
	transitions, _ := store.ListTransitions(ctx, demand.ID)
	if len(transitions) != 2 {
		t.Errorf("%d transitions after resync, want 2", len(transitions))
	}
}

func TestSyncDemandSeedsCreationInterval(t *testing.T) {
	mock := &mockTracker{
		seeds: true,
		details: map[string]*tracker.WorkItemDetail{
			"A-1": {ExternalID: "A-1", CreatedAt: ts(8), InitialStage: "Backlog"},
		},
		pages: map[string][][]tracker.RawChange{
			"A-1": {{change("Doing", ts(10))}},
		},
	}
	s, store := newTestSyncer(mock)
	ctx := context.Background()

	if _, err := s.SyncDemand(ctx, "A-1"); err != nil {
		t.Fatalf("SyncDemand: %v", err)
	}

	demand, _ := store.GetDemandByExternalID(ctx, 10, "A-1")
	transitions, _ := store.ListTransitions(ctx, demand.ID)
	if len(transitions) != 2 {
		t.Fatalf("%d transitions, want seeded + moved", len(transitions))
	}
	if !transitions[0].EnteredAt.Equal(ts(8)) {
		t.Errorf("seeded interval starts at %v, want card creation", transitions[0].EnteredAt)
	}
}
