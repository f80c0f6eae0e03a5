package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/flowyard/flowyard/internal/storage"
	"github.com/flowyard/flowyard/internal/types"
)

// StageMapping pins a raw external state name to a canonical stage name and
// trashcan flag. The trashcan flag cannot be inferred from tracker feeds, so
// it has to be declared; mappings apply at stage creation, the stored flag
// wins thereafter.
type StageMapping struct {
	Name     string
	Trashcan bool
}

// StageResolver finds or creates canonical stages for raw external state
// names. Lookup is case-insensitive on (company, integration identity, name);
// creation stores the title-cased form of the raw input. Resolving the same
// raw name twice within one pass returns the same stage, even if it was just
// created (per-pass memoization, no duplicate-insert race).
//
// Stateless across passes: instantiate one per reconciliation pass.
type StageResolver struct {
	store     storage.Reader
	companyID int64
	mappings  map[string]StageMapping // keyed by lowercased raw name
	titler    cases.Caser

	cache map[string]*types.Stage
}

// NewStageResolver creates a stage resolver bound to one reconciliation pass.
func NewStageResolver(store storage.Reader, companyID int64, mappings map[string]StageMapping) *StageResolver {
	return &StageResolver{
		store:     store,
		companyID: companyID,
		mappings:  mappings,
		titler:    cases.Title(language.English),
		cache:     make(map[string]*types.Stage),
	}
}

// Resolve returns the canonical stage for a raw state name, creating it if
// absent and associating it with the demand's project. A blank name yields
// ErrBlankName.
func (r *StageResolver) Resolve(ctx context.Context, rawName, integrationIdentity string, projectID int64) (*types.Stage, error) {
	rawName = strings.TrimSpace(rawName)
	if rawName == "" {
		return nil, ErrBlankName
	}

	key := integrationIdentity + "\x00" + strings.ToLower(rawName)
	if stage, ok := r.cache[key]; ok {
		return stage, nil
	}

	stage, err := r.store.FindStage(ctx, r.companyID, integrationIdentity, rawName)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		stage, err = r.create(ctx, rawName, integrationIdentity)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("finding stage %q: %w", rawName, err)
	}

	if err := r.store.AddStageToProject(ctx, stage.ID, projectID); err != nil {
		return nil, fmt.Errorf("associating stage %q with project %d: %w", stage.Name, projectID, err)
	}

	r.cache[key] = stage
	return stage, nil
}

func (r *StageResolver) create(ctx context.Context, rawName, integrationIdentity string) (*types.Stage, error) {
	name := r.titler.String(strings.ToLower(rawName))
	trashcan := false
	if m, ok := r.mappings[strings.ToLower(rawName)]; ok {
		if m.Name != "" {
			name = m.Name
		}
		trashcan = m.Trashcan
	}

	stage := &types.Stage{
		CompanyID:           r.companyID,
		IntegrationIdentity: integrationIdentity,
		Name:                name,
		Trashcan:            trashcan,
	}
	err := r.store.CreateStage(ctx, stage)
	if errors.Is(err, storage.ErrDuplicate) {
		// Lost a creation race; the winning row is the canonical one.
		return r.store.FindStage(ctx, r.companyID, integrationIdentity, rawName)
	}
	if err != nil {
		return nil, fmt.Errorf("creating stage %q: %w", name, err)
	}
	return stage, nil
}

// ActorResolver finds or creates team members for actors referenced by
// external events, linking them to internal users on email match.
//
// Stateless across passes: instantiate one per reconciliation pass.
type ActorResolver struct {
	store     storage.Reader
	companyID int64

	cache map[string]*types.TeamMember
}

// NewActorResolver creates an actor resolver bound to one reconciliation pass.
func NewActorResolver(store storage.Reader, companyID int64) *ActorResolver {
	return &ActorResolver{
		store:     store,
		companyID: companyID,
		cache:     make(map[string]*types.TeamMember),
	}
}

// Resolve returns the team member for a display name, creating one if absent.
// A blank name returns (nil, nil): the caller's containing event carries no
// attributable actor, which is not an error.
//
// When rawEmail matches an internal user, the member is linked to that user.
// The link is idempotent and first-wins: re-linking the same user is a no-op
// and a later event with a different email does not steal it.
func (r *ActorResolver) Resolve(ctx context.Context, rawName, rawEmail string, asOf time.Time) (*types.TeamMember, error) {
	rawName = strings.TrimSpace(rawName)
	if rawName == "" {
		return nil, nil
	}

	member, ok := r.cache[rawName]
	if !ok {
		var err error
		member, err = r.store.FindTeamMemberByName(ctx, r.companyID, rawName)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			member = &types.TeamMember{
				CompanyID: r.companyID,
				Name:      rawName,
				StartDate: asOf,
			}
			err = r.store.CreateTeamMember(ctx, member)
			if errors.Is(err, storage.ErrDuplicate) {
				member, err = r.store.FindTeamMemberByName(ctx, r.companyID, rawName)
			}
			if err != nil {
				return nil, fmt.Errorf("creating team member %q: %w", rawName, err)
			}
		case err != nil:
			return nil, fmt.Errorf("finding team member %q: %w", rawName, err)
		}
		r.cache[rawName] = member
	}

	if rawEmail = strings.TrimSpace(rawEmail); rawEmail != "" && member.UserID == nil {
		user, err := r.store.FindUserByEmail(ctx, rawEmail)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// No internal account for this email; the member stays unlinked.
		case err != nil:
			return nil, fmt.Errorf("finding user by email: %w", err)
		default:
			if err := r.store.LinkTeamMemberUser(ctx, member.ID, user.ID); err != nil {
				return nil, fmt.Errorf("linking team member %d to user %d: %w", member.ID, user.ID, err)
			}
			uid := user.ID
			member.UserID = &uid
		}
	}

	return member, nil
}
