package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Alliance-Chemical/order-management-sub001/internal/inspection/model"
)

// TransitionResult describes what a submission did to a run.
type TransitionResult struct {
	// Advanced indicates the current-step pointer moved to the next
	// canonical step.
	Advanced bool

	// Completed indicates the run reached its terminal complete status.
	Completed bool

	// Reverified indicates a needs_reverify run returned to active.
	Reverified bool

	// NewStatus is the run status after the transition.
	NewStatus model.RunStatus
}

// RunStateMachine enforces the inspection run transitions: step advancement
// on PASS, audit-and-proceed on label FAILs, HOLD parking, supervisor-driven
// reverification, and terminal completion. It mutates the run in memory
// only; callers persist the result inside their own transaction.
type RunStateMachine struct{}

// NewRunStateMachine creates a new instance of RunStateMachine.
func NewRunStateMachine() *RunStateMachine {
	return &RunStateMachine{}
}

// ApplySubmission records a validated step result against the run and moves
// the run through its state machine. The payload must already have passed
// structural validation; violations here are state errors, not validation
// errors.
func (sm *RunStateMachine) ApplySubmission(
	run *model.InspectionRun,
	stepID model.StepID,
	outcome model.StepOutcome,
	record model.StepRecord,
) (*TransitionResult, error) {
	if run == nil {
		return nil, fmt.Errorf("run cannot be nil")
	}
	if run.Status == model.RunStatusComplete {
		return nil, model.NewStateError("run %s is complete and accepts no further submissions", run.ID)
	}
	if run.Status == model.RunStatusHeld {
		return nil, model.NewStateError("run %s is held; a supervisor must resume it first", run.ID)
	}
	// Earlier steps may be corrected at any time, but nothing can be
	// recorded ahead of the pointer.
	if model.StepBefore(run.CurrentStepID, stepID) {
		return nil, model.NewStateError(
			"step %s is ahead of the run's current step %s", stepID, run.CurrentStepID)
	}

	if run.Steps == nil {
		run.Steps = make(model.StepPayloadSet)
	}
	run.Steps[stepID] = record

	// A validated scan_qr submission refreshes the run's identity binding.
	if stepID == model.StepScanQR {
		sm.reconcileScanQR(run, record)
	}

	result := &TransitionResult{NewStatus: run.Status}

	if outcome == model.OutcomeHold {
		held := run.Status
		run.HeldFromStatus = &held
		run.Status = model.RunStatusHeld
		result.NewStatus = model.RunStatusHeld
		return result, nil
	}

	// PASSing the flagged step closes a reverification: status returns to
	// active and the pointer is restored to where it was before the
	// redirect.
	if run.Status == model.RunStatusNeedsReverify &&
		run.ReverifyStepID != nil && *run.ReverifyStepID == stepID &&
		outcome == model.OutcomePass {
		run.Status = model.RunStatusActive
		if run.ResumeStepID != nil {
			run.CurrentStepID = *run.ResumeStepID
		}
		run.ReverifyStepID = nil
		run.ResumeStepID = nil
		result.Reverified = true
		result.NewStatus = model.RunStatusActive
		return result, nil
	}

	// A run awaiting reverification is pinned to its flagged step: the
	// only exit is the PASS branch above. Anything else, including a FAIL
	// resubmission of the flagged step, is recorded without moving the run.
	if run.Status == model.RunStatusNeedsReverify {
		return result, nil
	}

	// Only a submission of the currently pointed-to step moves the
	// pointer; manual jumps to other steps are corrections.
	if stepID != run.CurrentStepID {
		return result, nil
	}

	if !sm.outcomeAdvances(stepID, outcome) {
		return result, nil
	}

	if model.IsTerminalStep(stepID) {
		run.Status = model.RunStatusComplete
		result.Completed = true
		result.NewStatus = model.RunStatusComplete
		return result, nil
	}

	next, ok := model.NextStep(stepID)
	if !ok {
		return nil, fmt.Errorf("step %s has no successor", stepID)
	}
	run.CurrentStepID = next
	result.Advanced = true
	return result, nil
}

// SynthesizeScanQR auto-resolves the scan_qr step to PASS for a run opened
// via an upstream QR scan. The operator is never shown a scan prompt for a
// run whose identity is already known.
func (sm *RunStateMachine) SynthesizeScanQR(run *model.InspectionRun, qrValue, shortCode string, at time.Time) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}
	if qrValue == "" {
		return fmt.Errorf("qr value cannot be empty")
	}

	validatedAt := at
	payload := model.ScanQRPayload{
		PayloadMeta: model.PayloadMeta{Completed: at},
		QRValue:     qrValue,
		QRValidated: true,
		ValidatedAt: &validatedAt,
		ShortCode:   shortCode,
	}
	raw, err := json.Marshal(&payload)
	if err != nil {
		return fmt.Errorf("failed to encode scan_qr payload: %w", err)
	}

	if run.Steps == nil {
		run.Steps = make(model.StepPayloadSet)
	}
	run.Steps[model.StepScanQR] = model.StepRecord{
		Outcome: model.OutcomePass,
		Payload: raw,
	}
	run.QRValue = &payload.QRValue
	if shortCode != "" {
		sc := shortCode
		run.ShortCode = &sc
	}
	if run.CurrentStepID == model.StepScanQR {
		run.CurrentStepID = model.StepInspectionInfo
	}
	return nil
}

// FlagReverify redirects the run to an earlier step whose PASS was
// invalidated after the fact. The pre-redirect pointer is remembered so a
// successful reverification resumes where the worker left off.
func (sm *RunStateMachine) FlagReverify(run *model.InspectionRun, stepID model.StepID) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}
	if !model.IsValidStep(stepID) {
		return model.NewValidationError(stepID, "step", "unknown step id")
	}
	if run.Status != model.RunStatusActive && run.Status != model.RunStatusHeld {
		return model.NewStateError("cannot flag run %s for reverification from status %s", run.ID, run.Status)
	}
	if !run.Steps.Has(stepID) {
		return model.NewStateError("step %s has no recorded result to reverify on run %s", stepID, run.ID)
	}

	// Keep the original resume point if a reverification is already open.
	if run.ResumeStepID == nil {
		resume := run.CurrentStepID
		run.ResumeStepID = &resume
	}
	flagged := stepID
	run.ReverifyStepID = &flagged
	run.CurrentStepID = stepID
	run.Status = model.RunStatusNeedsReverify
	run.HeldFromStatus = nil
	return nil
}

// Resume releases a held run back to the status it was parked from.
func (sm *RunStateMachine) Resume(run *model.InspectionRun) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}
	if run.Status != model.RunStatusHeld {
		return model.NewStateError("run %s is not held (status %s)", run.ID, run.Status)
	}
	restored := model.RunStatusActive
	if run.HeldFromStatus != nil {
		restored = *run.HeldFromStatus
	}
	run.Status = restored
	run.HeldFromStatus = nil
	return nil
}

// outcomeAdvances reports whether an outcome moves the pointer for a step.
// PASS always advances. FAIL advances only on the label verification steps:
// a justified mismatch is an audit annotation, not a stop, so physical
// throughput keeps moving.
func (sm *RunStateMachine) outcomeAdvances(stepID model.StepID, outcome model.StepOutcome) bool {
	switch outcome {
	case model.OutcomePass:
		return true
	case model.OutcomeFail:
		return stepID == model.StepVerifyPackingLabel || stepID == model.StepVerifyProductLabel
	default:
		return false
	}
}

// reconcileScanQR copies a submitted scan_qr identity onto the run's
// binding columns.
func (sm *RunStateMachine) reconcileScanQR(run *model.InspectionRun, record model.StepRecord) {
	payload, err := record.DecodePayload(model.StepScanQR)
	if err != nil {
		return
	}
	scan, ok := payload.(*model.ScanQRPayload)
	if !ok || scan.QRValue == "" {
		return
	}
	qr := scan.QRValue
	run.QRValue = &qr
	if scan.ShortCode != "" {
		sc := scan.ShortCode
		run.ShortCode = &sc
	}
}
