// Package memory provides an in-memory implementation of storage.Storage.
//
// It backs tests and --ephemeral runs. Uniqueness constraints mirror the
// mysql schema (case-insensitive stage names, transition idempotence key)
// so find-or-create race recovery is exercised the same way.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/flowyard/flowyard/internal/storage"
	"github.com/flowyard/flowyard/internal/types"
)

// Store is a mutex-guarded in-memory store.
//
// Transactions hold txMu exclusively for their whole duration while every
// direct call holds it shared, so a transaction rollback restores exactly
// the state it started from: no other caller can commit in between, and
// writes committed before the transaction opened are never rolled back.
type Store struct {
	txMu sync.RWMutex

	mu sync.Mutex
	st *state
}

// state holds all tables. Kept in a single struct so RunInTransaction can
// snapshot and restore it wholesale on rollback.
type state struct {
	nextID int64

	demands       map[int64]*types.Demand
	stages        map[int64]*types.Stage
	stageProjects map[int64]map[int64]bool // stageID -> projectIDs
	transitions   map[int64]*types.DemandTransition
	members       map[int64]*types.TeamMember
	users         map[int64]*types.User
	assignments   map[int64]*types.ItemAssignment
	blocks        map[int64]*types.DemandBlock
	config        map[string]string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{st: newState()}
}

func newState() *state {
	return &state{
		nextID:        1,
		demands:       make(map[int64]*types.Demand),
		stages:        make(map[int64]*types.Stage),
		stageProjects: make(map[int64]map[int64]bool),
		transitions:   make(map[int64]*types.DemandTransition),
		members:       make(map[int64]*types.TeamMember),
		users:         make(map[int64]*types.User),
		assignments:   make(map[int64]*types.ItemAssignment),
		blocks:        make(map[int64]*types.DemandBlock),
		config:        make(map[string]string),
	}
}

func (s *Store) id() int64 {
	id := s.st.nextID
	s.st.nextID++
	return id
}

// Close releases nothing; it exists to satisfy storage.Storage.
func (s *Store) Close() error { return nil }

// --- Demands ---

func (s *Store) CreateDemand(ctx context.Context, d *types.Demand) error {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return s.createDemand(ctx, d)
}

func (s *Store) createDemand(_ context.Context, d *types.Demand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ex := range s.st.demands {
		if ex.ProjectID == d.ProjectID && ex.ExternalID == d.ExternalID {
			return storage.ErrDuplicate
		}
	}
	d.ID = s.id()
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	s.st.demands[d.ID] = cloneDemand(d)
	return nil
}

func (s *Store) GetDemandByExternalID(ctx context.Context, projectID int64, externalID string) (*types.Demand, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return s.getDemandByExternalID(ctx, projectID, externalID)
}

func (s *Store) getDemandByExternalID(_ context.Context, projectID int64, externalID string) (*types.Demand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.st.demands {
		if d.ProjectID == projectID && d.ExternalID == externalID {
			return cloneDemand(d), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) UpdateDemandDiscard(ctx context.Context, demandID int64, discardedAt *time.Time) error {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return s.updateDemandDiscard(ctx, demandID, discardedAt)
}

func (s *Store) updateDemandDiscard(_ context.Context, demandID int64, discardedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.st.demands[demandID]
	if !ok {
		return storage.ErrNotFound
	}
	d.DiscardedAt = cloneTime(discardedAt)
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) DeleteDemand(_ context.Context, demandID int64) error {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.demands[demandID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.st.demands, demandID)
	for id, t := range s.st.transitions {
		if t.DemandID == demandID {
			delete(s.st.transitions, id)
		}
	}
	for id, a := range s.st.assignments {
		if a.DemandID == demandID {
			delete(s.st.assignments, id)
		}
	}
	for id, b := range s.st.blocks {
		if b.DemandID == demandID {
			delete(s.st.blocks, id)
		}
	}
	return nil
}

func (s *Store) ListDemands(_ context.Context, projectID int64) ([]*types.Demand, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.Demand
	for _, d := range s.st.demands {
		if d.ProjectID == projectID {
			out = append(out, cloneDemand(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- Stages ---

func (s *Store) FindStage(ctx context.Context, companyID int64, integrationIdentity, name string) (*types.Stage, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return s.findStage(ctx, companyID, integrationIdentity, name)
}

func (s *Store) findStage(_ context.Context, companyID int64, integrationIdentity, name string) (*types.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findStageLocked(companyID, integrationIdentity, name)
}

func (s *Store) findStageLocked(companyID int64, integrationIdentity, name string) (*types.Stage, error) {
	for _, st := range s.st.stages {
		if st.CompanyID == companyID &&
			st.IntegrationIdentity == integrationIdentity &&
			strings.EqualFold(st.Name, name) {
			cp := *st
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) CreateStage(ctx context.Context, stage *types.Stage) error {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return s.createStage(ctx, stage)
}

func (s *Store) createStage(_ context.Context, stage *types.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.findStageLocked(stage.CompanyID, stage.IntegrationIdentity, stage.Name); err == nil {
		return storage.ErrDuplicate
	}
	stage.ID = s.id()
	cp := *stage
	s.st.stages[stage.ID] = &cp
	return nil
}

func (s *Store) AddStageToProject(ctx context.Context, stageID, projectID int64) error {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return s.addStageToProject(ctx, stageID, projectID)
}

func (s *Store) addStageToProject(_ context.Context, stageID, projectID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.stages[stageID]; !ok {
		return storage.ErrNotFound
	}
	if s.st.stageProjects[stageID] == nil {
		s.st.stageProjects[stageID] = make(map[int64]bool)
	}
	s.st.stageProjects[stageID][projectID] = true
	return nil
}

// StageProjects returns the projects associated with a stage. Test helper.
func (s *Store) StageProjects(stageID int64) []int64 {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []int64
	for id := range s.st.stageProjects[stageID] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Store) ListStages(_ context.Context, companyID int64) ([]*types.Stage, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.Stage
	for _, st := range s.st.stages {
		if st.CompanyID == companyID {
			cp := *st
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- Transitions ---

func (s *Store) GetOpenTransition(ctx context.Context, demandID int64) (*types.DemandTransition, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return s.getOpenTransition(ctx, demandID)
}

func (s *Store) getOpenTransition(_ context.Context, demandID int64) (*types.DemandTransition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *types.DemandTransition
	for _, t := range s.st.transitions {
		if t.DemandID != demandID || t.ExitedAt != nil {
			continue
		}
		if latest == nil || t.EnteredAt.After(latest.EnteredAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return cloneTransition(latest), nil
}

func (s *Store) FindTransition(ctx context.Context, demandID, stageID int64, enteredAt time.Time) (*types.DemandTransition, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return s.findTransition(ctx, demandID, stageID, enteredAt)
}

func (s *Store) findTransition(_ context.Context, demandID, stageID int64, enteredAt time.Time) (*types.DemandTransition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.st.transitions {
		if t.DemandID == demandID && t.StageID == stageID && t.EnteredAt.Equal(enteredAt) {
			return cloneTransition(t), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) LatestOpenTransitionInStage(ctx context.Context, demandID, stageID int64) (*types.DemandTransition, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return s.latestOpenTransitionInStage(ctx, demandID, stageID)
}

func (s *Store) latestOpenTransitionInStage(_ context.Context, demandID, stageID int64) (*types.DemandTransition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *types.DemandTransition
	for _, t := range s.st.transitions {
		if t.DemandID != demandID || t.StageID != stageID || t.ExitedAt != nil {
			continue
		}
		if latest == nil || t.EnteredAt.After(latest.EnteredAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return cloneTransition(latest), nil
}

func (s *Store) CreateTransition(ctx context.Context, t *types.DemandTransition) error {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return s.createTransition(ctx, t)
}

func (s *Store) createTransition(_ context.Context, t *types.DemandTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ex := range s.st.transitions {
		if ex.DemandID == t.DemandID && ex.StageID == t.StageID && ex.EnteredAt.Equal(t.EnteredAt) {
			return storage.ErrDuplicate
		}
	}
	t.ID = s.id()
	s.st.transitions[t.ID] = cloneTransition(t)
	return nil
}

func (s *Store) UpdateTransition(ctx context.Context, t *types.DemandTransition) error {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return s.updateTransition(ctx, t)
}

func (s *Store) updateTransition(_ context.Context, t *types.DemandTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.transitions[t.ID]; !ok {
		return storage.ErrNotFound
	}
	s.st.transitions[t.ID] = cloneTransition(t)
	return nil
}

func (s *Store) ListTransitions(ctx context.Context, demandID int64) ([]*types.DemandTransition, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return s.listTransitions(ctx, demandID)
}

func (s *Store) listTransitions(_ context.Context, demandID int64) ([]*types.DemandTransition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.DemandTransition
	for _, t := range s.st.transitions {
		if t.DemandID == demandID {
			out = append(out, cloneTransition(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EnteredAt.Equal(out[j].EnteredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].EnteredAt.Before(out[j].EnteredAt)
	})
	return out, nil
}

func (s *Store) DeleteTransitionsExcept(ctx context.Context, demandID int64, keep []int64) (int, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return s.deleteTransitionsExcept(ctx, demandID, keep)
}

func (s *Store) deleteTransitionsExcept(_ context.Context, demandID int64, keep []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keepSet := make(map[int64]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}

	deleted := 0
	for id, t := range s.st.transitions {
		if t.DemandID == demandID && !keepSet[id] {
			delete(s.st.transitions, id)
			deleted++
		}
	}
	return deleted, nil
}

// --- Team members and users ---

func (s *Store) FindTeamMemberByName(ctx context.Context, companyID int64, name string) (*types.TeamMember, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return s.findTeamMemberByName(ctx, companyID, name)
}

func (s *Store) findTeamMemberByName(_ context.Context, companyID int64, name string) (*types.TeamMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.st.members {
		if m.CompanyID == companyID && m.Name == name {
			return cloneMember(m), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) CreateTeamMember(ctx context.Context, m *types.TeamMember) error {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return s.createTeamMember(ctx, m)
}

func (s *Store) createTeamMember(_ context.Context, m *types.TeamMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ex := range s.st.members {
		if ex.CompanyID == m.CompanyID && ex.Name == m.Name {
			return storage.ErrDuplicate
		}
	}
	m.ID = s.id()
	s.st.members[m.ID] = cloneMember(m)
	return nil
}

func (s *Store) LinkTeamMemberUser(ctx context.Context, memberID, userID int64) error {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return s.linkTeamMemberUser(ctx, memberID, userID)
}

func (s *Store) linkTeamMemberUser(_ context.Context, memberID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.st.members[memberID]
	if !ok {
		return storage.ErrNotFound
	}
	// First link wins; re-linking the same user is a no-op.
	if m.UserID == nil {
		uid := userID
		m.UserID = &uid
	}
	return nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*types.User, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return s.findUserByEmail(ctx, email)
}

func (s *Store) findUserByEmail(_ context.Context, email string) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.st.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// AddUser seeds an internal user. Test helper.
func (s *Store) AddUser(u *types.User) *types.User {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	u.ID = s.id()
	cp := *u
	s.st.users[u.ID] = &cp
	return u
}

// --- Assignments and blocks ---

func (s *Store) ListOpenAssignments(_ context.Context, demandID int64) ([]*types.ItemAssignment, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.ItemAssignment
	for _, a := range s.st.assignments {
		if a.DemandID == demandID && a.FinishTime == nil {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListBlocks(_ context.Context, demandID int64) ([]*types.DemandBlock, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.DemandBlock
	for _, b := range s.st.blocks {
		if b.DemandID == demandID {
			cp := *b
			cp.UnblockTime = cloneTime(b.UnblockTime)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AddAssignment seeds an assignment. Test helper.
func (s *Store) AddAssignment(a *types.ItemAssignment) *types.ItemAssignment {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = s.id()
	cp := *a
	s.st.assignments[a.ID] = &cp
	return a
}

// AddBlock seeds a block record. Test helper.
func (s *Store) AddBlock(b *types.DemandBlock) *types.DemandBlock {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	b.ID = s.id()
	cp := *b
	s.st.blocks[b.ID] = &cp
	return b
}

// GetBlock returns a block by id. Test helper.
func (s *Store) GetBlock(blockID int64) (*types.DemandBlock, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.st.blocks[blockID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *Store) MarkTransitionNotified(_ context.Context, transitionID int64) error {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.st.transitions[transitionID]
	if !ok {
		return storage.ErrNotFound
	}
	t.TransitionNotified = true
	return nil
}

func (s *Store) MarkAssignmentNotified(_ context.Context, assignmentID int64) error {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.st.assignments[assignmentID]
	if !ok {
		return storage.ErrNotFound
	}
	a.AssignmentNotified = true
	return nil
}

func (s *Store) MarkBlockNotified(_ context.Context, blockID int64, unblock bool) error {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.st.blocks[blockID]
	if !ok {
		return storage.ErrNotFound
	}
	if unblock {
		b.UnblockNotified = true
	} else {
		b.BlockNotified = true
	}
	return nil
}

// --- Config ---

func (s *Store) SetConfig(_ context.Context, key, value string) error {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.config[key] = value
	return nil
}

func (s *Store) GetConfig(_ context.Context, key string) (string, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.st.config[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

// --- Transactions ---

// memTx routes Transaction calls to the store's unexported operations,
// bypassing the transaction gate the public methods hold.
type memTx struct{ s *Store }

// RunInTransaction holds the transaction gate exclusively: every direct
// store call started after the transaction opened waits until it commits or
// rolls back. Rollback restores the snapshot taken at start, which by then
// can only differ by this transaction's own writes.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := s.st.snapshot()
	s.mu.Unlock()

	if err := fn(&memTx{s: s}); err != nil {
		s.mu.Lock()
		s.st = snap
		s.mu.Unlock()
		return err
	}
	return nil
}

func (t *memTx) GetDemandByExternalID(ctx context.Context, projectID int64, externalID string) (*types.Demand, error) {
	return t.s.getDemandByExternalID(ctx, projectID, externalID)
}
func (t *memTx) UpdateDemandDiscard(ctx context.Context, demandID int64, discardedAt *time.Time) error {
	return t.s.updateDemandDiscard(ctx, demandID, discardedAt)
}
func (t *memTx) FindStage(ctx context.Context, companyID int64, identity, name string) (*types.Stage, error) {
	return t.s.findStage(ctx, companyID, identity, name)
}
func (t *memTx) CreateStage(ctx context.Context, stage *types.Stage) error {
	return t.s.createStage(ctx, stage)
}
func (t *memTx) AddStageToProject(ctx context.Context, stageID, projectID int64) error {
	return t.s.addStageToProject(ctx, stageID, projectID)
}
func (t *memTx) GetOpenTransition(ctx context.Context, demandID int64) (*types.DemandTransition, error) {
	return t.s.getOpenTransition(ctx, demandID)
}
func (t *memTx) FindTransition(ctx context.Context, demandID, stageID int64, enteredAt time.Time) (*types.DemandTransition, error) {
	return t.s.findTransition(ctx, demandID, stageID, enteredAt)
}
func (t *memTx) LatestOpenTransitionInStage(ctx context.Context, demandID, stageID int64) (*types.DemandTransition, error) {
	return t.s.latestOpenTransitionInStage(ctx, demandID, stageID)
}
func (t *memTx) CreateTransition(ctx context.Context, tr *types.DemandTransition) error {
	return t.s.createTransition(ctx, tr)
}
func (t *memTx) UpdateTransition(ctx context.Context, tr *types.DemandTransition) error {
	return t.s.updateTransition(ctx, tr)
}
func (t *memTx) ListTransitions(ctx context.Context, demandID int64) ([]*types.DemandTransition, error) {
	return t.s.listTransitions(ctx, demandID)
}
func (t *memTx) DeleteTransitionsExcept(ctx context.Context, demandID int64, keep []int64) (int, error) {
	return t.s.deleteTransitionsExcept(ctx, demandID, keep)
}
func (t *memTx) FindTeamMemberByName(ctx context.Context, companyID int64, name string) (*types.TeamMember, error) {
	return t.s.findTeamMemberByName(ctx, companyID, name)
}
func (t *memTx) CreateTeamMember(ctx context.Context, m *types.TeamMember) error {
	return t.s.createTeamMember(ctx, m)
}
func (t *memTx) LinkTeamMemberUser(ctx context.Context, memberID, userID int64) error {
	return t.s.linkTeamMemberUser(ctx, memberID, userID)
}
func (t *memTx) FindUserByEmail(ctx context.Context, email string) (*types.User, error) {
	return t.s.findUserByEmail(ctx, email)
}

// --- clone helpers ---

func (st *state) snapshot() *state {
	cp := newState()
	cp.nextID = st.nextID
	for id, d := range st.demands {
		cp.demands[id] = cloneDemand(d)
	}
	for id, s := range st.stages {
		c := *s
		cp.stages[id] = &c
	}
	for id, projs := range st.stageProjects {
		m := make(map[int64]bool, len(projs))
		for p := range projs {
			m[p] = true
		}
		cp.stageProjects[id] = m
	}
	for id, t := range st.transitions {
		cp.transitions[id] = cloneTransition(t)
	}
	for id, m := range st.members {
		cp.members[id] = cloneMember(m)
	}
	for id, u := range st.users {
		c := *u
		cp.users[id] = &c
	}
	for id, a := range st.assignments {
		c := *a
		c.FinishTime = cloneTime(a.FinishTime)
		cp.assignments[id] = &c
	}
	for id, b := range st.blocks {
		c := *b
		c.UnblockTime = cloneTime(b.UnblockTime)
		cp.blocks[id] = &c
	}
	for k, v := range st.config {
		cp.config[k] = v
	}
	return cp
}

func cloneDemand(d *types.Demand) *types.Demand {
	cp := *d
	cp.DiscardedAt = cloneTime(d.DiscardedAt)
	return &cp
}

func cloneTransition(t *types.DemandTransition) *types.DemandTransition {
	cp := *t
	cp.ExitedAt = cloneTime(t.ExitedAt)
	if t.TeamMemberID != nil {
		id := *t.TeamMemberID
		cp.TeamMemberID = &id
	}
	return &cp
}

func cloneMember(m *types.TeamMember) *types.TeamMember {
	cp := *m
	if m.UserID != nil {
		id := *m.UserID
		cp.UserID = &id
	}
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
