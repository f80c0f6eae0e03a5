// Package storage provides shared types for demand/transition storage.
//
// Concrete implementations live in the mysql and memory sub-packages.
// This package holds the interface and sentinel errors referenced by both
// the implementations and their consumers (reconcile, syncer, cmd/fy).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/flowyard/flowyard/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a create hits a uniqueness constraint.
// Callers recover by re-querying and using the winning row.
var ErrDuplicate = errors.New("duplicate")

// ErrNotInitialized is returned when the schema has not been bootstrapped.
var ErrNotInitialized = errors.New("database not initialized")

// Reader is the read/write surface the reconciliation engine operates on.
// Both Storage and Transaction satisfy it, so the engine can run the same
// code inside or outside a transaction boundary.
type Reader interface {
	// Demands
	GetDemandByExternalID(ctx context.Context, projectID int64, externalID string) (*types.Demand, error)
	UpdateDemandDiscard(ctx context.Context, demandID int64, discardedAt *time.Time) error

	// Stages. FindStage matches name case-insensitively within
	// (company, integration identity).
	FindStage(ctx context.Context, companyID int64, integrationIdentity, name string) (*types.Stage, error)
	CreateStage(ctx context.Context, stage *types.Stage) error
	AddStageToProject(ctx context.Context, stageID, projectID int64) error

	// Transitions
	GetOpenTransition(ctx context.Context, demandID int64) (*types.DemandTransition, error)
	FindTransition(ctx context.Context, demandID, stageID int64, enteredAt time.Time) (*types.DemandTransition, error)
	LatestOpenTransitionInStage(ctx context.Context, demandID, stageID int64) (*types.DemandTransition, error)
	CreateTransition(ctx context.Context, t *types.DemandTransition) error
	UpdateTransition(ctx context.Context, t *types.DemandTransition) error
	ListTransitions(ctx context.Context, demandID int64) ([]*types.DemandTransition, error)
	// DeleteTransitionsExcept removes every transition of the demand whose id
	// is not in keep, returning the number deleted. The reconciliation pruner
	// is its only caller.
	DeleteTransitionsExcept(ctx context.Context, demandID int64, keep []int64) (int, error)

	// Team members and users
	FindTeamMemberByName(ctx context.Context, companyID int64, name string) (*types.TeamMember, error)
	CreateTeamMember(ctx context.Context, m *types.TeamMember) error
	LinkTeamMemberUser(ctx context.Context, memberID, userID int64) error
	FindUserByEmail(ctx context.Context, email string) (*types.User, error)
}

// Storage is the full interface satisfied by *mysql.Store and *memory.Store.
// Consumers depend on this interface rather than a concrete type so tests
// can substitute the memory implementation.
type Storage interface {
	Reader

	// Demand lifecycle beyond the reconciliation pass
	CreateDemand(ctx context.Context, d *types.Demand) error
	DeleteDemand(ctx context.Context, demandID int64) error // hard removal, cascades transitions
	ListDemands(ctx context.Context, projectID int64) ([]*types.Demand, error)

	// Stage listing for reporting surfaces
	ListStages(ctx context.Context, companyID int64) ([]*types.Stage, error)

	// Assignments and blocks (notification gate surfaces)
	ListOpenAssignments(ctx context.Context, demandID int64) ([]*types.ItemAssignment, error)
	ListBlocks(ctx context.Context, demandID int64) ([]*types.DemandBlock, error)
	MarkTransitionNotified(ctx context.Context, transitionID int64) error
	MarkAssignmentNotified(ctx context.Context, assignmentID int64) error
	MarkBlockNotified(ctx context.Context, blockID int64, unblock bool) error

	// Configuration (tracker credentials, last_sync bookkeeping)
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)

	// RunInTransaction executes fn atomically. If fn returns an error the
	// transaction is rolled back; on nil it is committed. The reconciler
	// wraps each demand's close/open/prune sequence in one transaction so a
	// crash cannot leave a demand with zero or two open transitions.
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	Close() error
}

// Transaction exposes the reconciliation surface within a single database
// transaction. Changes are invisible to other connections until commit.
type Transaction interface {
	Reader
}
