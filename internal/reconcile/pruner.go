package reconcile

import (
	"context"
	"fmt"

	"github.com/flowyard/flowyard/internal/storage"
)

// pruneTransitions deletes every persisted transition for the demand whose
// id is not in the kept set. This is how tracker-side corrections (an event
// removed or edited upstream) flow downstream without manual cleanup.
//
// Must run strictly after the builder completes a full pass for the demand,
// never interleaved, otherwise a transition just created could be deleted as
// "not yet kept". The reconciler enforces this by sequencing both inside one
// transaction.
func pruneTransitions(ctx context.Context, store storage.Reader, demandID int64, kept []int64) (int, error) {
	pruned, err := store.DeleteTransitionsExcept(ctx, demandID, kept)
	if err != nil {
		return 0, fmt.Errorf("pruning transitions for demand %d: %w", demandID, err)
	}
	return pruned, nil
}
