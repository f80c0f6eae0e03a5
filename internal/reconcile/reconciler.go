package reconcile

import (
	"context"
	"fmt"

	"github.com/flowyard/flowyard/internal/storage"
	"github.com/flowyard/flowyard/internal/tracker"
	"github.com/flowyard/flowyard/internal/types"
)

// Reconciler turns a demand's raw change-history feed into a consistent,
// deduplicated, correctly-ordered transition set. One full pass is
// normalize → build → prune, wrapped in a single storage transaction so a
// crash mid-sequence cannot leave the demand with zero or two open
// intervals.
//
// Each pass is stateless given persisted data: re-running with the same feed
// yields the same transition set, row ids included.
type Reconciler struct {
	Store     storage.Storage
	Tracker   tracker.StateTracker
	CompanyID int64

	// Mappings pins raw state names to canonical names and trashcan flags,
	// keyed by lowercased raw name. Optional.
	Mappings map[string]StageMapping
}

// Reconcile applies the demand's full change history. pages is the complete
// paginated feed as fetched; the whole feed is normalized (and therefore
// globally time-ordered) before the builder walks it, so the order pages
// arrived in never matters. detail seeds a creation interval for trackers
// whose policy asks for one; it may be nil.
func (r *Reconciler) Reconcile(ctx context.Context, demand *types.Demand, detail *tracker.WorkItemDetail, pages [][]tracker.RawChange) (*types.ReconciliationReport, error) {
	var raw []tracker.RawChange
	for _, page := range pages {
		raw = append(raw, page...)
	}
	events := tracker.Normalize(raw, r.Tracker.FieldSelector(), r.Tracker.TimeLayouts())

	var report *types.ReconciliationReport
	err := r.Store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		stages := NewStageResolver(tx, r.CompanyID, r.Mappings)
		actors := NewActorResolver(tx, r.CompanyID)

		b, err := NewBuilder(ctx, tx, stages, actors, demand, r.Tracker.IntegrationIdentity(), r.Tracker.ClosePolicy())
		if err != nil {
			return err
		}

		if r.Tracker.SeedsCreationInterval() && detail != nil && detail.InitialStage != "" {
			at := detail.CreatedAt
			if at.IsZero() {
				at = demand.CreatedDate
			}
			if err := b.SeedCreationInterval(ctx, detail.InitialStage, at.UTC()); err != nil {
				return err
			}
		}

		if err := b.Apply(ctx, events); err != nil {
			return err
		}

		rep := b.Finish()
		pruned, err := pruneTransitions(ctx, tx, demand.ID, rep.TransitionIDs)
		if err != nil {
			return err
		}
		rep.Pruned = pruned
		report = rep
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconciling demand %s: %w", demand.ExternalID, err)
	}
	return report, nil
}
