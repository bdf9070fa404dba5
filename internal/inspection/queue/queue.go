// Package queue keeps step submissions attempted while disconnected and
// replays them, exactly-effectively-once, when connectivity returns.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Alliance-Chemical/order-management-sub001/internal/inspection/model"
)

// Submitter delivers a step submission to the backing store. Both the
// in-process SubmissionService and the HTTP client satisfy it.
type Submitter interface {
	SubmitStep(ctx context.Context, orderID string, runID uuid.UUID, req *model.SubmitStepDTO) (*model.RunSnapshotDTO, error)
}

// DrainReport summarises one drain pass.
type DrainReport struct {
	Delivered   int  // Replayed successfully (or absorbed as idempotent duplicates)
	Parked      int  // Failed for a non-connectivity reason; set aside
	Remaining   int  // Still pending (the drain hit a connectivity failure)
	WentOffline bool // The drain stopped because connectivity was lost again
}

// OfflineQueue persists unsent submissions and drains them in strict FIFO
// order. Enqueue and Drain serialize on one mutex: a drain finishes (or
// explicitly fails) one entry before starting the next, so replays reuse
// their idempotency keys in original append order.
type OfflineQueue struct {
	store     Store
	submitter Submitter

	mu sync.Mutex

	// OnParked, when set, is called for every submission moved aside for
	// manual attention. It must not call back into the queue.
	OnParked func(item QueuedSubmission, err error)
}

func NewOfflineQueue(store Store, submitter Submitter) *OfflineQueue {
	return &OfflineQueue{store: store, submitter: submitter}
}

// Enqueue appends a submission that failed with a connectivity error. The
// operator sees a "queued" indicator, not an error.
func (q *OfflineQueue) Enqueue(ctx context.Context, orderID string, runID uuid.UUID, req model.SubmitStepDTO) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := &QueuedSubmission{
		OrderID:    orderID,
		RunID:      runID,
		Request:    req,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := q.store.Append(ctx, item); err != nil {
		return err
	}
	slog.InfoContext(ctx, "submission queued offline",
		"order_id", orderID, "run_id", runID, "step_id", req.StepID, "seq", item.Seq)
	return nil
}

// Drain replays queued submissions one at a time in append order. Called on
// an explicit online signal.
//
// Per entry: success (including an idempotent-duplicate no-op) removes it;
// a connectivity failure stops the drain with the entry still queued; any
// other failure parks the entry for manual attention and the drain
// continues with the next one.
func (q *OfflineQueue) Drain(ctx context.Context) (DrainReport, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var report DrainReport
	pending, err := q.store.Pending(ctx)
	if err != nil {
		return report, err
	}

	for i, item := range pending {
		_, err := q.submitter.SubmitStep(ctx, item.OrderID, item.RunID, &item.Request)
		if err == nil {
			if err := q.store.Remove(ctx, item.Seq); err != nil {
				return report, err
			}
			report.Delivered++
			continue
		}

		if model.IsConnectivityError(err) {
			// Still offline; keep everything from here in the queue.
			report.Remaining = len(pending) - i
			report.WentOffline = true
			slog.WarnContext(ctx, "drain interrupted, still offline",
				"seq", item.Seq, "remaining", report.Remaining)
			return report, nil
		}

		// Business rejection on replay: set aside, notify, keep draining.
		if parkErr := q.store.Park(ctx, item.Seq, err.Error()); parkErr != nil {
			return report, parkErr
		}
		report.Parked++
		slog.WarnContext(ctx, "queued submission parked for manual attention",
			"seq", item.Seq, "run_id", item.RunID, "step_id", item.Request.StepID, "error", err)
		if q.OnParked != nil {
			item.ParkReason = err.Error()
			q.OnParked(item, err)
		}
	}
	return report, nil
}

// Depth returns the number of submissions awaiting delivery.
func (q *OfflineQueue) Depth(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending, err := q.store.Pending(ctx)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// Parked returns the submissions set aside for manual attention.
func (q *OfflineQueue) Parked(ctx context.Context) ([]QueuedSubmission, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.Parked(ctx)
}
