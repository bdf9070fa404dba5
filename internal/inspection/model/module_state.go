package model

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ModuleState is the at-rest shape of an order's inspection state: one
// JSON-serializable blob per order, with each run's recorded results keyed
// by step id. External persistence must preserve it round-trippable;
// NormalizeRuns reconstructs the runs from the blob plus the canonical step
// order.
type ModuleState struct {
	OrderID string              `json:"orderId"`
	Runs    map[string]RunState `json:"runs"`
}

// RunState is one run's slice of the module state blob.
type RunState struct {
	Item           LineItem       `json:"item"`
	Status         RunStatus      `json:"status"`
	CurrentStepID  StepID         `json:"currentStepId"`
	QRValue        *string        `json:"qrValue,omitempty"`
	ShortCode      *string        `json:"shortCode,omitempty"`
	ReverifyStepID *StepID        `json:"reverifyStepId,omitempty"`
	ResumeStepID   *StepID        `json:"resumeStepId,omitempty"`
	HeldFromStatus *RunStatus     `json:"heldFromStatus,omitempty"`
	Steps          StepPayloadSet `json:"steps"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// BuildModuleState normalizes runs into the per-order module state blob.
func BuildModuleState(orderID string, runs []InspectionRun) ModuleState {
	state := ModuleState{
		OrderID: orderID,
		Runs:    make(map[string]RunState, len(runs)),
	}
	for _, run := range runs {
		steps := make(StepPayloadSet, len(run.Steps))
		for k, v := range run.Steps {
			steps[k] = v
		}
		state.Runs[run.ID.String()] = RunState{
			Item: LineItem{
				Name:           run.ItemName,
				SKU:            run.ItemSKU,
				Quantity:       run.Quantity,
				UnitOfMeasure:  run.UnitOfMeasure,
				ContainerType:  run.ContainerType,
				ContainerCount: run.ContainerCount,
			},
			Status:         run.Status,
			CurrentStepID:  run.CurrentStepID,
			QRValue:        run.QRValue,
			ShortCode:      run.ShortCode,
			ReverifyStepID: run.ReverifyStepID,
			ResumeStepID:   run.ResumeStepID,
			HeldFromStatus: run.HeldFromStatus,
			Steps:          steps,
			CreatedAt:      run.CreatedAt,
			UpdatedAt:      run.UpdatedAt,
		}
	}
	return state
}

// NormalizeRuns reconstructs the runs from a module state blob. Step keys
// are checked against the canonical sequence and the result is ordered by
// creation time so repeated normalization is stable.
func NormalizeRuns(state ModuleState) ([]InspectionRun, error) {
	runs := make([]InspectionRun, 0, len(state.Runs))
	for idStr, rs := range state.Runs {
		runID, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("module state has invalid run id %q: %w", idStr, err)
		}
		if !IsValidStep(rs.CurrentStepID) {
			return nil, fmt.Errorf("run %s points at unknown step %q", idStr, rs.CurrentStepID)
		}
		steps := make(StepPayloadSet, len(rs.Steps))
		for stepID, record := range rs.Steps {
			if !IsValidStep(stepID) {
				return nil, fmt.Errorf("run %s has a result for unknown step %q", idStr, stepID)
			}
			steps[stepID] = record
		}
		runs = append(runs, InspectionRun{
			BaseModel: BaseModel{
				ID:        runID,
				CreatedAt: rs.CreatedAt,
				UpdatedAt: rs.UpdatedAt,
			},
			OrderID:        state.OrderID,
			ItemName:       rs.Item.Name,
			ItemSKU:        rs.Item.SKU,
			Quantity:       rs.Item.Quantity,
			UnitOfMeasure:  rs.Item.UnitOfMeasure,
			ContainerType:  rs.Item.ContainerType,
			ContainerCount: rs.Item.ContainerCount,
			Status:         rs.Status,
			CurrentStepID:  rs.CurrentStepID,
			QRValue:        rs.QRValue,
			ShortCode:      rs.ShortCode,
			ReverifyStepID: rs.ReverifyStepID,
			ResumeStepID:   rs.ResumeStepID,
			HeldFromStatus: rs.HeldFromStatus,
			Steps:          steps,
		})
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID.String() < runs[j].ID.String()
		}
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
	return runs, nil
}
