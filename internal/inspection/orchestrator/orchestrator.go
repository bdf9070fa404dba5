// Package orchestrator decides what the operator sees right now: which run
// is active, which step its form should show, and how a form submission
// flows through the submission protocol and, when offline, the queue.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Alliance-Chemical/order-management-sub001/internal/inspection/model"
	"github.com/Alliance-Chemical/order-management-sub001/internal/inspection/queue"
)

// SyncState is the connectivity indicator surfaced to the operator.
type SyncState string

const (
	SyncStateSynced SyncState = "synced" // All submissions acknowledged
	SyncStateQueued SyncState = "queued" // At least one submission saved offline
)

// SubmitResult reports how a submission was handled.
type SubmitResult struct {
	// Snapshot is the updated run when the submission was acknowledged.
	Snapshot *model.RunSnapshotDTO

	// Queued indicates the submission was saved to the offline queue
	// instead of being delivered.
	Queued bool
}

// Orchestrator drives one order's inspection session. It holds the run
// snapshots, the per-run manual step override, the one-shot scan_qr
// auto-advance guard, and the per-(run,step) in-flight guard that blocks
// double-taps. It is transport-agnostic: any Submitter works, and an
// optional offline queue absorbs connectivity failures.
// RunAPI is the full inspection surface a session needs beyond step
// submission: seeding runs, refreshing snapshots, and QR binding. The HTTP
// client implements it.
type RunAPI interface {
	queue.Submitter
	CreateRuns(ctx context.Context, orderID string, req *model.CreateRunsDTO) ([]model.RunSnapshotDTO, error)
	GetRuns(ctx context.Context, orderID string) ([]model.RunSnapshotDTO, error)
	BindRun(ctx context.Context, orderID string, runID uuid.UUID, req *model.BindQRDTO) (*model.RunSnapshotDTO, error)
}

type Orchestrator struct {
	orderID   string
	submitter queue.Submitter
	api       RunAPI
	offline   *queue.OfflineQueue

	mu           sync.Mutex
	runs         []model.RunSnapshotDTO
	manualStep   map[uuid.UUID]model.StepID
	autoAdvanced map[uuid.UUID]bool
	inFlight     map[string]bool
	syncState    SyncState
}

// New creates an orchestrator for orderID. The offline queue may be nil,
// in which case connectivity failures surface as errors.
func New(orderID string, submitter queue.Submitter, offline *queue.OfflineQueue) *Orchestrator {
	return &Orchestrator{
		orderID:      orderID,
		submitter:    submitter,
		offline:      offline,
		manualStep:   make(map[uuid.UUID]model.StepID),
		autoAdvanced: make(map[uuid.UUID]bool),
		inFlight:     make(map[string]bool),
		syncState:    SyncStateSynced,
	}
}

// NewSession creates an orchestrator bound to the full inspection API, so
// run creation, refresh, and QR binding are available in addition to step
// submission.
func NewSession(orderID string, api RunAPI, offline *queue.OfflineQueue) *Orchestrator {
	o := New(orderID, api, offline)
	o.api = api
	return o
}

// CreateRuns seeds the order's runs and loads the result. Safe to repeat:
// the server is a no-op when runs already exist.
func (o *Orchestrator) CreateRuns(ctx context.Context, req *model.CreateRunsDTO) ([]model.RunSnapshotDTO, error) {
	if o.api == nil {
		return nil, fmt.Errorf("session has no run API configured")
	}
	runs, err := o.api.CreateRuns(ctx, o.orderID, req)
	if err != nil {
		return nil, err
	}
	o.Load(runs)
	return runs, nil
}

// Refresh refetches the order's runs and replaces the local snapshots.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	if o.api == nil {
		return fmt.Errorf("session has no run API configured")
	}
	runs, err := o.api.GetRuns(ctx, o.orderID)
	if err != nil {
		return err
	}
	o.Load(runs)
	return nil
}

// BindRun attaches a scanned QR identity to a run, independently of step
// submission.
func (o *Orchestrator) BindRun(ctx context.Context, runID uuid.UUID, req *model.BindQRDTO) (*model.RunSnapshotDTO, error) {
	if o.api == nil {
		return nil, fmt.Errorf("session has no run API configured")
	}
	snapshot, err := o.api.BindRun(ctx, o.orderID, runID, req)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.applySnapshotLocked(*snapshot)
	o.mu.Unlock()
	return snapshot, nil
}

// Load replaces the orchestrator's run snapshots, e.g. after the initial
// fetch or a full refresh.
func (o *Orchestrator) Load(runs []model.RunSnapshotDTO) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = make([]model.RunSnapshotDTO, len(runs))
	copy(o.runs, runs)
}

// Runs returns the current snapshots.
func (o *Orchestrator) Runs() []model.RunSnapshotDTO {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.RunSnapshotDTO, len(o.runs))
	copy(out, o.runs)
	return out
}

// ActiveRun selects the run presented to the worker, by priority:
// needs_reverify, then active, then the first existing run.
func (o *Orchestrator) ActiveRun() *model.RunSnapshotDTO {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeRunLocked()
}

func (o *Orchestrator) activeRunLocked() *model.RunSnapshotDTO {
	for i := range o.runs {
		if o.runs[i].Status == model.RunStatusNeedsReverify {
			return &o.runs[i]
		}
	}
	for i := range o.runs {
		if o.runs[i].Status == model.RunStatusActive {
			return &o.runs[i]
		}
	}
	if len(o.runs) > 0 {
		return &o.runs[0]
	}
	return nil
}

// DisplayedStep derives the step whose form the active run shows: the
// manual override if one is set, otherwise the run's current step. When the
// current step is scan_qr but the run's identity is already validated, the
// display auto-advances past it exactly once per run.
func (o *Orchestrator) DisplayedStep() (model.StepID, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	run := o.activeRunLocked()
	if run == nil {
		return "", false
	}
	if override, ok := o.manualStep[run.ID]; ok {
		return override, true
	}
	step := run.CurrentStepID
	if step == model.StepScanQR && !o.autoAdvanced[run.ID] {
		if record, ok := run.Steps[model.StepScanQR]; ok && record.Outcome == model.OutcomePass {
			o.autoAdvanced[run.ID] = true
			step = model.StepInspectionInfo
		}
	}
	return step, true
}

// NavigateTo jumps the display to any step of the canonical sequence for
// corrections. It never moves the run's current-step pointer; only a
// successful submission of the pointed-to step does that.
func (o *Orchestrator) NavigateTo(runID uuid.UUID, stepID model.StepID) error {
	if !model.IsValidStep(stepID) {
		return model.NewValidationError(stepID, "step", "unknown step id")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.manualStep[runID] = stepID
	return nil
}

// ClearNavigation drops the manual override so the display follows the
// run's pointer again.
func (o *Orchestrator) ClearNavigation(runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.manualStep, runID)
}

// IsPending reports whether a submission for (run, step) is in flight.
func (o *Orchestrator) IsPending(runID uuid.UUID, stepID model.StepID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight[flightKey(runID, stepID)]
}

// SyncState returns the operator-facing connectivity indicator.
func (o *Orchestrator) SyncState() SyncState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.syncState
}

// SubmitStep validates and submits a step result for a run.
//
// Validation failures never leave the client. A connectivity failure hands
// the submission (with its already-generated idempotency key) to the
// offline queue and reports Queued. On acknowledgement the snapshot is
// refreshed and, if the submitted step was the displayed one, the display
// advances to the next canonical step without waiting for a reload.
func (o *Orchestrator) SubmitStep(ctx context.Context, runID uuid.UUID, stepID model.StepID, outcome model.StepOutcome, payload json.RawMessage, actor string) (*SubmitResult, error) {
	// Fail fast locally so validation errors never enter the queue.
	decoded, err := model.DecodeStepPayload(stepID, payload)
	if err != nil {
		return nil, err
	}
	if err := decoded.Validate(outcome); err != nil {
		return nil, err
	}

	key := flightKey(runID, stepID)
	o.mu.Lock()
	if o.inFlight[key] {
		o.mu.Unlock()
		return nil, fmt.Errorf("a submission for step %s of run %s is already in flight", stepID, runID)
	}
	o.inFlight[key] = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.inFlight, key)
		o.mu.Unlock()
	}()

	req := model.SubmitStepDTO{
		StepID:         stepID,
		Outcome:        outcome,
		IdempotencyKey: uuid.NewString(),
		Payload:        payload,
		Actor:          actor,
	}

	snapshot, err := o.submitter.SubmitStep(ctx, o.orderID, runID, &req)
	if err != nil {
		if model.IsConnectivityError(err) && o.offline != nil {
			if qErr := o.offline.Enqueue(ctx, o.orderID, runID, req); qErr != nil {
				return nil, fmt.Errorf("failed to queue submission offline: %w", qErr)
			}
			o.mu.Lock()
			o.syncState = SyncStateQueued
			o.mu.Unlock()
			return &SubmitResult{Queued: true}, nil
		}
		return nil, err
	}

	o.mu.Lock()
	o.applySnapshotLocked(*snapshot)
	if displayed, ok := o.manualStep[runID]; !ok || displayed == stepID {
		if next, hasNext := model.NextStep(stepID); hasNext && snapshot.Status != model.RunStatusComplete {
			o.manualStep[runID] = next
		} else {
			delete(o.manualStep, runID)
		}
	}
	o.mu.Unlock()

	return &SubmitResult{Snapshot: snapshot}, nil
}

// HandleOnline drains the offline queue in FIFO order and refreshes the
// indicator. Called on an explicit online signal.
func (o *Orchestrator) HandleOnline(ctx context.Context) (queue.DrainReport, error) {
	if o.offline == nil {
		return queue.DrainReport{}, nil
	}
	report, err := o.offline.Drain(ctx)
	if err != nil {
		return report, err
	}

	depth, err := o.offline.Depth(ctx)
	if err != nil {
		return report, err
	}
	o.mu.Lock()
	if depth == 0 {
		o.syncState = SyncStateSynced
	}
	o.mu.Unlock()

	slog.InfoContext(ctx, "offline queue drained",
		"order_id", o.orderID,
		"delivered", report.Delivered,
		"parked", report.Parked,
		"remaining", report.Remaining,
	)
	return report, nil
}

// applySnapshotLocked merges an acknowledged snapshot into the run list.
func (o *Orchestrator) applySnapshotLocked(snapshot model.RunSnapshotDTO) {
	for i := range o.runs {
		if o.runs[i].ID == snapshot.ID {
			o.runs[i] = snapshot
			return
		}
	}
	o.runs = append(o.runs, snapshot)
}

func flightKey(runID uuid.UUID, stepID model.StepID) string {
	return runID.String() + "|" + string(stepID)
}
