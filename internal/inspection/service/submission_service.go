package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Alliance-Chemical/order-management-sub001/internal/inspection/model"
)

// SubmissionService implements the step submission protocol: structural
// validation before any persistence attempt, idempotent effect recording,
// state machine application, and a single audit entry per effective
// submission — all inside one transaction.
type SubmissionService struct {
	repo RunRepository
	sm   *RunStateMachine
	db   *gorm.DB
}

func NewSubmissionService(repo RunRepository, sm *RunStateMachine, db *gorm.DB) *SubmissionService {
	return &SubmissionService{repo: repo, sm: sm, db: db}
}

// SubmitStep records a step result against a run and returns the updated
// run snapshot.
//
// Idempotency: a replay with the same (run, step, key) and identical
// payload returns the current snapshot without a second effect. The same
// key with a different payload is a state error. A different key against an
// already-recorded step is a correction and overwrites that step's payload.
func (s *SubmissionService) SubmitStep(ctx context.Context, orderID string, runID uuid.UUID, req *model.SubmitStepDTO) (*model.RunSnapshotDTO, error) {
	if req == nil {
		return nil, model.NewValidationError("", "request", "request body is required")
	}
	if !model.IsValidStep(req.StepID) {
		return nil, model.NewValidationError(req.StepID, "stepId", "unknown step id")
	}
	if !model.IsValidOutcome(req.Outcome) {
		return nil, model.NewValidationError(req.StepID, "outcome", fmt.Sprintf("unknown outcome %q", req.Outcome))
	}
	if req.IdempotencyKey == "" {
		return nil, model.NewValidationError(req.StepID, "idempotencyKey", "an idempotency key is required")
	}

	// Fail fast on payload shape before touching storage.
	payload, err := model.DecodeStepPayload(req.StepID, req.Payload)
	if err != nil {
		return nil, err
	}
	if err := payload.Validate(req.Outcome); err != nil {
		return nil, err
	}

	digest := model.DigestPayload(req.StepID, req.Outcome, req.Payload)

	var snapshot model.RunSnapshotDTO
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run, err := s.repo.GetRunByIDInTx(ctx, tx, runID)
		if err != nil {
			return err
		}
		if run.OrderID != orderID {
			return model.ErrRunNotFound
		}

		existing, err := s.repo.GetSubmissionByKeyInTx(ctx, tx, runID, req.StepID, req.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.PayloadDigest != digest {
				return model.NewStateError(
					"idempotency key %s was already used for step %s with a different payload",
					req.IdempotencyKey, req.StepID)
			}
			// Duplicate delivery of an already-applied submission.
			snapshot = run.Snapshot()
			slog.DebugContext(ctx, "idempotent replay absorbed",
				"run_id", runID, "step_id", req.StepID, "idempotency_key", req.IdempotencyKey)
			return nil
		}

		result, err := s.sm.ApplySubmission(run, req.StepID, req.Outcome, model.StepRecord{
			Outcome: req.Outcome,
			Payload: req.Payload,
		})
		if err != nil {
			return err
		}

		if err := s.repo.CreateSubmissionInTx(ctx, tx, &model.SubmissionRecord{
			OrderID:        orderID,
			RunID:          runID,
			StepID:         req.StepID,
			IdempotencyKey: req.IdempotencyKey,
			Outcome:        req.Outcome,
			PayloadDigest:  digest,
		}); err != nil {
			return err
		}
		if err := s.repo.UpdateRunInTx(ctx, tx, run); err != nil {
			return err
		}

		step := req.StepID
		outcome := req.Outcome
		entry := &model.InspectionActivity{
			OrderID:        orderID,
			RunID:          runID,
			Kind:           model.ActivityStepSubmitted,
			StepID:         &step,
			Outcome:        &outcome,
			IdempotencyKey: req.IdempotencyKey,
			Actor:          req.Actor,
			Note:           fmt.Sprintf("step %s recorded %s", req.StepID, req.Outcome),
		}
		if err := s.repo.CreateActivityInTx(ctx, tx, entry); err != nil {
			return err
		}

		slog.InfoContext(ctx, "step submission recorded",
			"order_id", orderID,
			"run_id", runID,
			"step_id", req.StepID,
			"outcome", req.Outcome,
			"advanced", result.Advanced,
			"status", result.NewStatus,
		)
		snapshot = run.Snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}
