package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Alliance-Chemical/order-management-sub001/internal/inspection/model"
)

// RunService owns the lifecycle operations on inspection runs: seeding runs
// from order line items, QR identity binding, supervisor interventions, and
// the read paths.
type RunService struct {
	repo RunRepository
	sm   *RunStateMachine
	db   *gorm.DB
}

func NewRunService(repo RunRepository, sm *RunStateMachine, db *gorm.DB) *RunService {
	return &RunService{repo: repo, sm: sm, db: db}
}

// CreateRuns creates exactly one run per line item when the order has none.
// On repeated calls (page reloads, retried requests) the existing runs are
// returned unchanged, preventing duplicate run proliferation. The returned
// flag reports whether new runs were created.
func (s *RunService) CreateRuns(ctx context.Context, orderID string, items []model.LineItem, actor string) ([]model.InspectionRun, bool, error) {
	if orderID == "" {
		return nil, false, fmt.Errorf("order ID cannot be empty")
	}
	if len(items) == 0 {
		return nil, false, model.NewValidationError("", "items", "at least one line item is required")
	}

	var (
		runs    []model.InspectionRun
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		count, err := s.repo.CountRunsByOrderIDInTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if count > 0 {
			runs, err = s.repo.GetRunsByOrderIDInTx(ctx, tx, orderID)
			return err
		}

		now := time.Now().UTC()
		toCreate := make([]model.InspectionRun, 0, len(items))
		for _, item := range items {
			run := model.InspectionRun{
				OrderID:        orderID,
				ItemName:       item.Name,
				ItemSKU:        item.SKU,
				Quantity:       item.Quantity,
				UnitOfMeasure:  item.UnitOfMeasure,
				ContainerType:  item.ContainerType,
				ContainerCount: item.ContainerCount,
				Status:         model.RunStatusActive,
				CurrentStepID:  model.StepScanQR,
				Steps:          make(model.StepPayloadSet),
			}
			// An upstream scan already established the identity: scan_qr is
			// logically satisfied and the operator never sees it.
			if item.QRValue != "" {
				if err := s.sm.SynthesizeScanQR(&run, item.QRValue, item.ShortCode, now); err != nil {
					return fmt.Errorf("failed to synthesize scan_qr for item %s: %w", item.SKU, err)
				}
			}
			toCreate = append(toCreate, run)
		}

		runs, err = s.repo.CreateRunsInTx(ctx, tx, toCreate)
		if err != nil {
			return err
		}
		for i := range runs {
			entry := &model.InspectionActivity{
				OrderID: orderID,
				RunID:   runs[i].ID,
				Kind:    model.ActivityRunCreated,
				Actor:   actor,
				Note:    fmt.Sprintf("run created for item %s (%s)", runs[i].ItemName, runs[i].ItemSKU),
			}
			if err := s.repo.CreateActivityInTx(ctx, tx, entry); err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		slog.InfoContext(ctx, "inspection runs created", "order_id", orderID, "count", len(runs))
	}
	return runs, created, nil
}

// GetRuns returns the order's runs in creation order.
func (s *RunService) GetRuns(ctx context.Context, orderID string) ([]model.InspectionRun, error) {
	return s.repo.GetRunsByOrderIDInTx(ctx, s.db, orderID)
}

// GetModuleState returns the order's inspection state as the at-rest
// module state blob.
func (s *RunService) GetModuleState(ctx context.Context, orderID string) (model.ModuleState, error) {
	runs, err := s.repo.GetRunsByOrderIDInTx(ctx, s.db, orderID)
	if err != nil {
		return model.ModuleState{}, err
	}
	return model.BuildModuleState(orderID, runs), nil
}

// BindRunToQR attaches a scanned QR identity to a run, independently of step
// submission. A later scan replaces an earlier one, but only while scan_qr
// has not been validated through the main submission flow; after that the
// binding is immutable without an explicit reverification.
func (s *RunService) BindRunToQR(ctx context.Context, orderID string, runID uuid.UUID, req *model.BindQRDTO, actor string) (*model.RunSnapshotDTO, error) {
	if req == nil || req.QRValue == "" {
		return nil, model.NewValidationError(model.StepScanQR, "qrValue", "a QR value is required")
	}

	var snapshot model.RunSnapshotDTO
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run, err := s.loadOrderRun(ctx, tx, orderID, runID)
		if err != nil {
			return err
		}
		if run.ScanQRValidated() {
			return model.NewStateError("run %s has a validated QR binding; reverify scan_qr to change it", run.ID)
		}

		qr := req.QRValue
		run.QRValue = &qr
		if req.ShortCode != "" {
			sc := req.ShortCode
			run.ShortCode = &sc
		}

		// Reconcile an unvalidated scan_qr payload with the new scan.
		if record, ok := run.Steps[model.StepScanQR]; ok {
			payload, decodeErr := record.DecodePayload(model.StepScanQR)
			if decodeErr == nil {
				if scan, ok := payload.(*model.ScanQRPayload); ok {
					scan.QRValue = req.QRValue
					scan.ShortCode = req.ShortCode
					raw, marshalErr := json.Marshal(scan)
					if marshalErr != nil {
						return fmt.Errorf("failed to re-encode scan_qr payload: %w", marshalErr)
					}
					record.Payload = raw
					run.Steps[model.StepScanQR] = record
				}
			}
		}

		if err := s.repo.UpdateRunInTx(ctx, tx, run); err != nil {
			return err
		}
		entry := &model.InspectionActivity{
			OrderID: orderID,
			RunID:   run.ID,
			Kind:    model.ActivityQRBound,
			Actor:   actor,
			Note:    fmt.Sprintf("QR %s bound", req.QRValue),
		}
		if err := s.repo.CreateActivityInTx(ctx, tx, entry); err != nil {
			return err
		}
		snapshot = run.Snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// FlagReverify marks a previously recorded step as invalidated, redirecting
// the run to that step. Supervisor-gated at the router.
func (s *RunService) FlagReverify(ctx context.Context, orderID string, runID uuid.UUID, stepID model.StepID, actor string) (*model.RunSnapshotDTO, error) {
	var snapshot model.RunSnapshotDTO
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run, err := s.loadOrderRun(ctx, tx, orderID, runID)
		if err != nil {
			return err
		}
		if err := s.sm.FlagReverify(run, stepID); err != nil {
			return err
		}
		if err := s.repo.UpdateRunInTx(ctx, tx, run); err != nil {
			return err
		}
		step := stepID
		entry := &model.InspectionActivity{
			OrderID: orderID,
			RunID:   run.ID,
			Kind:    model.ActivityReverifyFlag,
			StepID:  &step,
			Actor:   actor,
			Note:    fmt.Sprintf("step %s flagged for reverification", stepID),
		}
		if err := s.repo.CreateActivityInTx(ctx, tx, entry); err != nil {
			return err
		}
		snapshot = run.Snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// ResumeRun releases a held run. Supervisor-gated at the router.
func (s *RunService) ResumeRun(ctx context.Context, orderID string, runID uuid.UUID, actor string) (*model.RunSnapshotDTO, error) {
	var snapshot model.RunSnapshotDTO
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run, err := s.loadOrderRun(ctx, tx, orderID, runID)
		if err != nil {
			return err
		}
		if err := s.sm.Resume(run); err != nil {
			return err
		}
		if err := s.repo.UpdateRunInTx(ctx, tx, run); err != nil {
			return err
		}
		entry := &model.InspectionActivity{
			OrderID: orderID,
			RunID:   run.ID,
			Kind:    model.ActivityRunResumed,
			Actor:   actor,
			Note:    "run resumed from hold",
		}
		if err := s.repo.CreateActivityInTx(ctx, tx, entry); err != nil {
			return err
		}
		snapshot = run.Snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// ListActivities returns a page of the order's audit trail, newest first.
func (s *RunService) ListActivities(ctx context.Context, orderID string, offset, limit int) ([]model.InspectionActivity, error) {
	return s.repo.ListActivitiesByOrderID(ctx, orderID, offset, limit)
}

// loadOrderRun fetches a run and verifies it belongs to the order. A run
// under a different order is indistinguishable from a missing run to avoid
// leaking cross-order state.
func (s *RunService) loadOrderRun(ctx context.Context, tx *gorm.DB, orderID string, runID uuid.UUID) (*model.InspectionRun, error) {
	run, err := s.repo.GetRunByIDInTx(ctx, tx, runID)
	if err != nil {
		return nil, err
	}
	if run.OrderID != orderID {
		return nil, model.ErrRunNotFound
	}
	return run, nil
}
