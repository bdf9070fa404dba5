package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alliance-Chemical/order-management-sub001/internal/inspection/model"
	"github.com/Alliance-Chemical/order-management-sub001/internal/inspection/queue"
)

// fakeSubmitter simulates the server side: while offline every call fails
// with a connectivity error; online calls apply a trivial advance to the
// run snapshot it holds.
type fakeSubmitter struct {
	mu       sync.Mutex
	offline  bool
	snapshot model.RunSnapshotDTO
	keys     []string
	gate     chan struct{} // when set, SubmitStep blocks until the gate closes
}

func (f *fakeSubmitter) SubmitStep(ctx context.Context, orderID string, runID uuid.UUID, req *model.SubmitStepDTO) (*model.RunSnapshotDTO, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, req.IdempotencyKey)
	if f.offline {
		return nil, &model.ConnectivityError{Op: "submit step", Err: context.DeadlineExceeded}
	}
	if req.StepID == f.snapshot.CurrentStepID {
		if next, ok := model.NextStep(req.StepID); ok {
			f.snapshot.CurrentStepID = next
		} else {
			f.snapshot.Status = model.RunStatusComplete
		}
	}
	if f.snapshot.Steps == nil {
		f.snapshot.Steps = make(model.StepPayloadSet)
	}
	f.snapshot.Steps[req.StepID] = model.StepRecord{Outcome: req.Outcome, Payload: req.Payload}
	snap := f.snapshot
	return &snap, nil
}

func (f *fakeSubmitter) setOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

func newSessionSnapshot(runID uuid.UUID, step model.StepID) model.RunSnapshotDTO {
	return model.RunSnapshotDTO{
		ID:            runID,
		OrderID:       "ORD-700",
		ItemName:      "Ferric Chloride 40%",
		ItemSKU:       "FC-40-T330",
		Status:        model.RunStatusActive,
		CurrentStepID: step,
		Steps:         make(model.StepPayloadSet),
	}
}

func TestDisplayedStep(t *testing.T) {
	runID := uuid.New()

	t.Run("follows the run pointer", func(t *testing.T) {
		o := New("ORD-700", &fakeSubmitter{}, nil)
		o.Load([]model.RunSnapshotDTO{newSessionSnapshot(runID, model.StepLotNumber)})
		step, ok := o.DisplayedStep()
		require.True(t, ok)
		assert.Equal(t, model.StepLotNumber, step)
	})

	t.Run("no runs means nothing to display", func(t *testing.T) {
		o := New("ORD-700", &fakeSubmitter{}, nil)
		_, ok := o.DisplayedStep()
		assert.False(t, ok)
	})

	t.Run("auto-advances past a resolved scan exactly once", func(t *testing.T) {
		snap := newSessionSnapshot(runID, model.StepScanQR)
		snap.Steps[model.StepScanQR] = model.StepRecord{
			Outcome: model.OutcomePass,
			Payload: json.RawMessage(`{"qrValue":"QR-1","qrValidated":true}`),
		}
		o := New("ORD-700", &fakeSubmitter{}, nil)
		o.Load([]model.RunSnapshotDTO{snap})

		step, ok := o.DisplayedStep()
		require.True(t, ok)
		assert.Equal(t, model.StepInspectionInfo, step)

		// The guard fires once; the operator can still navigate back.
		require.NoError(t, o.NavigateTo(runID, model.StepScanQR))
		step, _ = o.DisplayedStep()
		assert.Equal(t, model.StepScanQR, step)
	})

	t.Run("unresolved scan is shown normally", func(t *testing.T) {
		o := New("ORD-700", &fakeSubmitter{}, nil)
		o.Load([]model.RunSnapshotDTO{newSessionSnapshot(runID, model.StepScanQR)})
		step, _ := o.DisplayedStep()
		assert.Equal(t, model.StepScanQR, step)
	})
}

func TestNavigateNeverMovesThePointer(t *testing.T) {
	runID := uuid.New()
	o := New("ORD-700", &fakeSubmitter{}, nil)
	o.Load([]model.RunSnapshotDTO{newSessionSnapshot(runID, model.StepLotNumber)})

	require.NoError(t, o.NavigateTo(runID, model.StepInspectionInfo))
	step, _ := o.DisplayedStep()
	assert.Equal(t, model.StepInspectionInfo, step)

	runs := o.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, model.StepLotNumber, runs[0].CurrentStepID)

	o.ClearNavigation(runID)
	step, _ = o.DisplayedStep()
	assert.Equal(t, model.StepLotNumber, step)

	t.Run("unknown step is rejected", func(t *testing.T) {
		err := o.NavigateTo(runID, "weigh_container")
		assert.True(t, model.IsValidationError(err))
	})
}

func TestSubmitStepAdvancesTheDisplay(t *testing.T) {
	ctx := context.Background()
	runID := uuid.New()
	submitter := &fakeSubmitter{snapshot: newSessionSnapshot(runID, model.StepLotNumber)}
	o := New("ORD-700", submitter, nil)
	o.Load([]model.RunSnapshotDTO{newSessionSnapshot(runID, model.StepLotNumber)})

	result, err := o.SubmitStep(ctx, runID, model.StepLotNumber, model.OutcomePass,
		json.RawMessage(`{"lotNumbers":["L1"]}`), "worker-1")
	require.NoError(t, err)
	require.NotNil(t, result.Snapshot)
	assert.False(t, result.Queued)

	step, ok := o.DisplayedStep()
	require.True(t, ok)
	assert.Equal(t, model.StepLotExtraction, step, "display moves on without a reload")
	assert.Equal(t, SyncStateSynced, o.SyncState())
}

func TestSubmitStepValidatesLocally(t *testing.T) {
	ctx := context.Background()
	runID := uuid.New()
	submitter := &fakeSubmitter{}
	o := New("ORD-700", submitter, nil)
	o.Load([]model.RunSnapshotDTO{newSessionSnapshot(runID, model.StepLotNumber)})

	_, err := o.SubmitStep(ctx, runID, model.StepLotNumber, model.OutcomePass,
		json.RawMessage(`{"lotNumbers":[]}`), "worker-1")
	require.Error(t, err)
	assert.True(t, model.IsValidationError(err))
	assert.Empty(t, submitter.keys, "nothing left the client")
}

func TestSubmitStepBlocksDoubleTaps(t *testing.T) {
	ctx := context.Background()
	runID := uuid.New()
	gate := make(chan struct{})
	submitter := &fakeSubmitter{snapshot: newSessionSnapshot(runID, model.StepLotNumber), gate: gate}
	o := New("ORD-700", submitter, nil)
	o.Load([]model.RunSnapshotDTO{newSessionSnapshot(runID, model.StepLotNumber)})

	firstDone := make(chan error, 1)
	go func() {
		_, err := o.SubmitStep(ctx, runID, model.StepLotNumber, model.OutcomePass,
			json.RawMessage(`{"lotNumbers":["L1"]}`), "worker-1")
		firstDone <- err
	}()

	// Wait for the first submission to register as in flight.
	for !o.IsPending(runID, model.StepLotNumber) {
		time.Sleep(time.Millisecond)
	}

	_, err := o.SubmitStep(ctx, runID, model.StepLotNumber, model.OutcomePass,
		json.RawMessage(`{"lotNumbers":["L1"]}`), "worker-1")
	require.Error(t, err, "the duplicate tap is rejected while the first is in flight")

	close(gate)
	require.NoError(t, <-firstDone)
	assert.False(t, o.IsPending(runID, model.StepLotNumber))
	assert.Len(t, submitter.keys, 1)
}

func TestOfflineSubmissionAndRecovery(t *testing.T) {
	ctx := context.Background()
	runID := uuid.New()
	submitter := &fakeSubmitter{snapshot: newSessionSnapshot(runID, model.StepLotNumber), offline: true}
	offline := queue.NewOfflineQueue(queue.NewMemoryStore(), submitter)
	o := New("ORD-700", submitter, offline)
	o.Load([]model.RunSnapshotDTO{newSessionSnapshot(runID, model.StepLotNumber)})

	result, err := o.SubmitStep(ctx, runID, model.StepLotNumber, model.OutcomePass,
		json.RawMessage(`{"lotNumbers":["L1"]}`), "worker-1")
	require.NoError(t, err, "a connectivity failure is not an error for the operator")
	assert.True(t, result.Queued)
	assert.Nil(t, result.Snapshot)
	assert.Equal(t, SyncStateQueued, o.SyncState())

	t.Run("drain delivers with the original idempotency key", func(t *testing.T) {
		require.Len(t, submitter.keys, 1)
		originalKey := submitter.keys[0]

		submitter.setOffline(false)
		report, err := o.HandleOnline(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Delivered)

		require.Len(t, submitter.keys, 2)
		assert.Equal(t, originalKey, submitter.keys[1], "replays reuse the generated key")
		assert.Equal(t, SyncStateSynced, o.SyncState())
	})
}

// fakeAPI extends the fake submitter with the session-level calls.
type fakeAPI struct {
	fakeSubmitter
}

func (f *fakeAPI) CreateRuns(ctx context.Context, orderID string, req *model.CreateRunsDTO) ([]model.RunSnapshotDTO, error) {
	return []model.RunSnapshotDTO{f.snapshot}, nil
}

func (f *fakeAPI) GetRuns(ctx context.Context, orderID string) ([]model.RunSnapshotDTO, error) {
	return []model.RunSnapshotDTO{f.snapshot}, nil
}

func (f *fakeAPI) BindRun(ctx context.Context, orderID string, runID uuid.UUID, req *model.BindQRDTO) (*model.RunSnapshotDTO, error) {
	snap := f.snapshot
	snap.QRValue = &req.QRValue
	return &snap, nil
}

func TestSessionFacade(t *testing.T) {
	ctx := context.Background()
	runID := uuid.New()
	api := &fakeAPI{fakeSubmitter{snapshot: newSessionSnapshot(runID, model.StepScanQR)}}
	o := NewSession("ORD-700", api, nil)

	t.Run("create runs loads the snapshots", func(t *testing.T) {
		runs, err := o.CreateRuns(ctx, &model.CreateRunsDTO{})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Len(t, o.Runs(), 1)
	})

	t.Run("bind run merges the updated snapshot", func(t *testing.T) {
		snapshot, err := o.BindRun(ctx, runID, &model.BindQRDTO{QRValue: "QR-BIND"})
		require.NoError(t, err)
		require.NotNil(t, snapshot.QRValue)
		assert.Equal(t, "QR-BIND", *snapshot.QRValue)

		runs := o.Runs()
		require.Len(t, runs, 1)
		require.NotNil(t, runs[0].QRValue)
		assert.Equal(t, "QR-BIND", *runs[0].QRValue)
	})

	t.Run("refresh replaces the snapshots", func(t *testing.T) {
		require.NoError(t, o.Refresh(ctx))
		assert.Len(t, o.Runs(), 1)
	})

	t.Run("a plain orchestrator has no session calls", func(t *testing.T) {
		plain := New("ORD-700", &fakeSubmitter{}, nil)
		_, err := plain.CreateRuns(ctx, &model.CreateRunsDTO{})
		assert.Error(t, err)
	})
}

func TestActiveRunPriority(t *testing.T) {
	o := New("ORD-700", &fakeSubmitter{}, nil)
	activeRun := newSessionSnapshot(uuid.New(), model.StepLotNumber)
	reverifyRun := newSessionSnapshot(uuid.New(), model.StepInspectionInfo)
	reverifyRun.Status = model.RunStatusNeedsReverify
	completeRun := newSessionSnapshot(uuid.New(), model.StepLotExtraction)
	completeRun.Status = model.RunStatusComplete

	o.Load([]model.RunSnapshotDTO{completeRun, activeRun, reverifyRun})
	got := o.ActiveRun()
	require.NotNil(t, got)
	assert.Equal(t, reverifyRun.ID, got.ID, "needs_reverify outranks active")

	o.Load([]model.RunSnapshotDTO{completeRun, activeRun})
	got = o.ActiveRun()
	require.NotNil(t, got)
	assert.Equal(t, activeRun.ID, got.ID)

	o.Load([]model.RunSnapshotDTO{completeRun})
	got = o.ActiveRun()
	require.NotNil(t, got)
	assert.Equal(t, completeRun.ID, got.ID)
}
