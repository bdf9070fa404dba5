package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alliance-Chemical/order-management-sub001/internal/inspection/model"
)

// scriptedSubmitter replies from a per-call script and records every
// delivery attempt in order.
type scriptedSubmitter struct {
	replies []error
	calls   []model.SubmitStepDTO
}

func (s *scriptedSubmitter) SubmitStep(ctx context.Context, orderID string, runID uuid.UUID, req *model.SubmitStepDTO) (*model.RunSnapshotDTO, error) {
	s.calls = append(s.calls, *req)
	if len(s.replies) == 0 {
		return &model.RunSnapshotDTO{ID: runID, OrderID: orderID}, nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	if reply != nil {
		return nil, reply
	}
	return &model.RunSnapshotDTO{ID: runID, OrderID: orderID}, nil
}

func queuedReq(step model.StepID, key string) model.SubmitStepDTO {
	return model.SubmitStepDTO{
		StepID:         step,
		Outcome:        model.OutcomePass,
		IdempotencyKey: key,
		Payload:        json.RawMessage(`{"lotNumbers":["L1"]}`),
	}
}

func TestOfflineQueueDrainFIFO(t *testing.T) {
	ctx := context.Background()
	submitter := &scriptedSubmitter{}
	q := NewOfflineQueue(NewMemoryStore(), submitter)
	runID := uuid.New()

	require.NoError(t, q.Enqueue(ctx, "ORD-1", runID, queuedReq(model.StepLotNumber, "k1")))
	require.NoError(t, q.Enqueue(ctx, "ORD-1", runID, queuedReq(model.StepLotExtraction, "k2")))
	require.NoError(t, q.Enqueue(ctx, "ORD-1", runID, queuedReq(model.StepLotNumber, "k3")))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, depth)

	report, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Delivered)
	assert.Equal(t, 0, report.Parked)
	assert.Equal(t, 0, report.Remaining)

	t.Run("delivery happens in append order with original keys", func(t *testing.T) {
		require.Len(t, submitter.calls, 3)
		assert.Equal(t, "k1", submitter.calls[0].IdempotencyKey)
		assert.Equal(t, "k2", submitter.calls[1].IdempotencyKey)
		assert.Equal(t, "k3", submitter.calls[2].IdempotencyKey)
	})

	t.Run("queue is empty afterwards", func(t *testing.T) {
		depth, err := q.Depth(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, depth)
	})
}

func TestOfflineQueueDrainStopsWhenStillOffline(t *testing.T) {
	ctx := context.Background()
	submitter := &scriptedSubmitter{replies: []error{
		nil,
		&model.ConnectivityError{Op: "submit step", Err: context.DeadlineExceeded},
	}}
	q := NewOfflineQueue(NewMemoryStore(), submitter)
	runID := uuid.New()

	require.NoError(t, q.Enqueue(ctx, "ORD-2", runID, queuedReq(model.StepLotNumber, "k1")))
	require.NoError(t, q.Enqueue(ctx, "ORD-2", runID, queuedReq(model.StepLotNumber, "k2")))
	require.NoError(t, q.Enqueue(ctx, "ORD-2", runID, queuedReq(model.StepLotNumber, "k3")))

	report, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 2, report.Remaining)
	assert.True(t, report.WentOffline)
	assert.Len(t, submitter.calls, 2, "the drain stops at the first connectivity failure")

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, depth, "undelivered entries stay queued")
}

func TestOfflineQueueParksBusinessRejections(t *testing.T) {
	ctx := context.Background()
	submitter := &scriptedSubmitter{replies: []error{
		model.NewStateError("run is complete"),
		nil,
	}}
	q := NewOfflineQueue(NewMemoryStore(), submitter)
	runID := uuid.New()

	var notified []QueuedSubmission
	q.OnParked = func(item QueuedSubmission, err error) {
		notified = append(notified, item)
	}

	require.NoError(t, q.Enqueue(ctx, "ORD-3", runID, queuedReq(model.StepLotNumber, "k1")))
	require.NoError(t, q.Enqueue(ctx, "ORD-3", runID, queuedReq(model.StepLotNumber, "k2")))

	report, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.Parked)

	t.Run("parked entry carries its reason and is surfaced", func(t *testing.T) {
		parked, err := q.Parked(ctx)
		require.NoError(t, err)
		require.Len(t, parked, 1)
		assert.Equal(t, "k1", parked[0].Request.IdempotencyKey)
		assert.Contains(t, parked[0].ParkReason, "complete")

		require.Len(t, notified, 1)
		assert.Equal(t, "k1", notified[0].Request.IdempotencyKey)
	})

	t.Run("the drain continued past the parked entry", func(t *testing.T) {
		depth, err := q.Depth(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, depth)
	})
}

func TestBadgerStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	runID := uuid.New()

	store, err := OpenBadgerStore(dir)
	require.NoError(t, err)

	first := &QueuedSubmission{OrderID: "ORD-4", RunID: runID, Request: queuedReq(model.StepLotNumber, "k1")}
	second := &QueuedSubmission{OrderID: "ORD-4", RunID: runID, Request: queuedReq(model.StepLotNumber, "k2")}
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))
	assert.Less(t, first.Seq, second.Seq)
	require.NoError(t, store.Close())

	// A device reload reopens the same directory.
	store, err = OpenBadgerStore(dir)
	require.NoError(t, err)
	defer store.Close()

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "k1", pending[0].Request.IdempotencyKey)
	assert.Equal(t, "k2", pending[1].Request.IdempotencyKey)

	t.Run("remove and park work across the reopen", func(t *testing.T) {
		require.NoError(t, store.Remove(ctx, pending[0].Seq))
		require.NoError(t, store.Park(ctx, pending[1].Seq, "rejected on replay"))

		left, err := store.Pending(ctx)
		require.NoError(t, err)
		assert.Empty(t, left)

		parked, err := store.Parked(ctx)
		require.NoError(t, err)
		require.Len(t, parked, 1)
		assert.Equal(t, "rejected on replay", parked[0].ParkReason)
	})
}
