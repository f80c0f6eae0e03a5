// Package syncer orchestrates batch synchronization: listing work items from
// an external tracker, fetching each item's change history, and running the
// reconciliation pass per demand over a bounded worker pool.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/flowyard/flowyard/internal/debug"
	"github.com/flowyard/flowyard/internal/notify"
	"github.com/flowyard/flowyard/internal/reconcile"
	"github.com/flowyard/flowyard/internal/storage"
	"github.com/flowyard/flowyard/internal/telemetry"
	"github.com/flowyard/flowyard/internal/tracker"
	"github.com/flowyard/flowyard/internal/types"
)

// Syncer drives sync runs for one project against one tracker.
//
// Demands are independent units of work and run concurrently, but all steps
// for a single demand execute as one ordered sequence: the in-flight group
// collapses duplicate external ids so the same demand is never reconciled by
// two workers at once.
type Syncer struct {
	Store     storage.Storage
	Tracker   tracker.StateTracker
	CompanyID int64
	ProjectID int64
	TeamID    int64
	Mappings  map[string]reconcile.StageMapping

	// Notifier, when set, flushes pending notifications after each demand's
	// reconciliation commits.
	Notifier *notify.Notifier

	// PageSize for change-history fetches. Defaults to 100.
	PageSize int

	// Workers bounds the concurrent demand reconciliations. Defaults to
	// the CPU count.
	Workers int

	inflight singleflight.Group

	metricsOnce sync.Once
	synced      metric.Int64Counter
	failed      metric.Int64Counter
	written     metric.Int64Counter
	pruned      metric.Int64Counter
}

// itemOutcome is the per-demand result folded into the aggregate.
type itemOutcome struct {
	report  *types.ReconciliationReport
	removed bool
}

func (s *Syncer) initMetrics() {
	s.metricsOnce.Do(func() {
		meter := telemetry.Meter("flowyard/syncer")
		s.synced, _ = meter.Int64Counter("flowyard.demands.synced")
		s.failed, _ = meter.Int64Counter("flowyard.demands.failed")
		s.written, _ = meter.Int64Counter("flowyard.transitions.written")
		s.pruned, _ = meter.Int64Counter("flowyard.transitions.pruned")
	})
}

func (s *Syncer) pageSize() int {
	if s.PageSize > 0 {
		return s.PageSize
	}
	return 100
}

func (s *Syncer) workers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return runtime.NumCPU()
}

// lastSyncKey scopes the incremental-sync watermark per tracker and project.
func (s *Syncer) lastSyncKey() string {
	return fmt.Sprintf("sync.%s.%d.last_sync", s.Tracker.Name(), s.ProjectID)
}

// SyncProject lists the tracker's work items and reconciles each one.
// Individual failures are recorded in the result and never abort the batch;
// only a failure to produce the listing itself is returned as an error.
func (s *Syncer) SyncProject(ctx context.Context) (*types.SyncResult, error) {
	s.initMetrics()

	opts := tracker.FetchOptions{}
	if raw, err := s.Store.GetConfig(ctx, s.lastSyncKey()); err == nil && raw != "" {
		if since, err := time.Parse(time.RFC3339, raw); err == nil {
			opts.Since = &since
		}
	}

	startedAt := time.Now().UTC()

	ids, err := s.Tracker.ListWorkItems(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing work items: %w", err)
	}
	debug.Logf("syncer: %d work items to sync for project %d\n", len(ids), s.ProjectID)

	result := &types.SyncResult{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())

	for _, externalID := range ids {
		externalID := externalID
		g.Go(func() error {
			out, err := s.syncOne(gctx, externalID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, types.ItemError{ExternalID: externalID, Err: err.Error()})
				s.failed.Add(gctx, 1)
				debug.Logf("syncer: %s failed: %v\n", externalID, err)
				return nil // per-item failures never abort the batch
			}
			result.Synced++
			s.synced.Add(gctx, 1)
			if out.removed {
				result.Removed++
			}
			if out.report != nil {
				result.TransitionsWritten += out.report.Created
				result.TransitionsPruned += out.report.Pruned
				s.written.Add(gctx, int64(out.report.Created))
				s.pruned.Add(gctx, int64(out.report.Pruned))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	// The watermark advances only after a full pass, and to the batch start
	// time, so items updated mid-run are re-listed next time.
	if err := s.Store.SetConfig(ctx, s.lastSyncKey(), startedAt.Format(time.RFC3339)); err != nil {
		return result, fmt.Errorf("recording last sync: %w", err)
	}
	result.LastSync = startedAt.Format(time.RFC3339)

	return result, nil
}

// SyncDemand reconciles a single work item on demand, e.g. a manual resync.
func (s *Syncer) SyncDemand(ctx context.Context, externalID string) (*types.ReconciliationReport, error) {
	s.initMetrics()

	out, err := s.syncOne(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if out.removed {
		return nil, fmt.Errorf("demand %s was deleted upstream and has been removed", externalID)
	}
	return out.report, nil
}

// syncOne runs the full ordered sequence for one demand: detail fetch,
// history pagination, reconciliation, notification flush. Duplicate calls
// for the same external id collapse onto one execution.
func (s *Syncer) syncOne(ctx context.Context, externalID string) (*itemOutcome, error) {
	v, err, _ := s.inflight.Do(externalID, func() (interface{}, error) {
		return s.doSync(ctx, externalID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*itemOutcome), nil
}

func (s *Syncer) doSync(ctx context.Context, externalID string) (*itemOutcome, error) {
	detail, err := s.fetchDetail(ctx, externalID)
	if err != nil {
		return nil, err
	}

	if detail.Deleted {
		return s.removeDeleted(ctx, externalID)
	}

	demand, err := s.findOrCreateDemand(ctx, externalID, detail)
	if err != nil {
		return nil, err
	}

	pages, err := s.fetchAllPages(ctx, externalID)
	if err != nil {
		return nil, err
	}

	rec := &reconcile.Reconciler{
		Store:     s.Store,
		Tracker:   s.Tracker,
		CompanyID: s.CompanyID,
		Mappings:  s.Mappings,
	}
	report, err := rec.Reconcile(ctx, demand, detail, pages)
	if err != nil {
		return nil, err
	}

	if s.Notifier != nil {
		if _, err := s.Notifier.Flush(ctx, demand.ID, externalID); err != nil {
			// Notification trouble does not undo a committed reconciliation.
			debug.Logf("syncer: notification flush for %s: %v\n", externalID, err)
		}
	}

	return &itemOutcome{report: report}, nil
}

// removeDeleted hard-removes a demand whose tracker item is gone. An unknown
// external id is a no-op: nothing local to remove.
func (s *Syncer) removeDeleted(ctx context.Context, externalID string) (*itemOutcome, error) {
	demand, err := s.Store.GetDemandByExternalID(ctx, s.ProjectID, externalID)
	if errors.Is(err, storage.ErrNotFound) {
		return &itemOutcome{}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.Store.DeleteDemand(ctx, demand.ID); err != nil {
		return nil, fmt.Errorf("removing deleted demand %s: %w", externalID, err)
	}
	debug.Logf("syncer: removed demand %s (deleted upstream)\n", externalID)
	return &itemOutcome{removed: true}, nil
}

func (s *Syncer) findOrCreateDemand(ctx context.Context, externalID string, detail *tracker.WorkItemDetail) (*types.Demand, error) {
	demand, err := s.Store.GetDemandByExternalID(ctx, s.ProjectID, externalID)
	if err == nil {
		return demand, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	createdDate := detail.CreatedAt
	if createdDate.IsZero() {
		createdDate = time.Now().UTC()
	}
	demand = &types.Demand{
		ExternalID:  externalID,
		ProjectID:   s.ProjectID,
		TeamID:      s.TeamID,
		CreatedDate: createdDate,
	}
	err = s.Store.CreateDemand(ctx, demand)
	if errors.Is(err, storage.ErrDuplicate) {
		// Another worker created it between the miss and the insert.
		return s.Store.GetDemandByExternalID(ctx, s.ProjectID, externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("creating demand %s: %w", externalID, err)
	}
	return demand, nil
}

// fetchDetail retrieves the work item, retrying transport failures.
func (s *Syncer) fetchDetail(ctx context.Context, externalID string) (*tracker.WorkItemDetail, error) {
	var detail *tracker.WorkItemDetail
	err := s.retryTransport(ctx, func() error {
		var err error
		detail, err = s.Tracker.FetchWorkItemDetail(ctx, externalID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching detail for %s: %w", externalID, err)
	}
	return detail, nil
}

// fetchAllPages pulls the complete change history. Each page fetch retries
// transport failures independently; exhausting retries fails the demand.
func (s *Syncer) fetchAllPages(ctx context.Context, externalID string) ([][]tracker.RawChange, error) {
	var pages [][]tracker.RawChange
	cursor := tracker.PageCursor{StartAt: 0, PageSize: s.pageSize()}

	for {
		var page *tracker.HistoryPage
		err := s.retryTransport(ctx, func() error {
			var err error
			page, err = s.Tracker.FetchChangeHistory(ctx, externalID, cursor)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("fetching history for %s at %d: %w", externalID, cursor.StartAt, err)
		}

		pages = append(pages, page.Changes)
		if page.LastPage {
			return pages, nil
		}
		if page.NextStartAt <= cursor.StartAt {
			// A provider that neither signals last-page nor advances the
			// cursor would loop forever.
			return nil, fmt.Errorf("history cursor for %s stuck at %d", externalID, cursor.StartAt)
		}
		cursor.StartAt = page.NextStartAt
	}
}

// retryTransport retries fn with exponential backoff on transport errors
// only; every other failure is permanent.
func (s *Syncer) retryTransport(ctx context.Context, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !tracker.IsTransport(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}
