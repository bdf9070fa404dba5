package model

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the overall state of an inspection run.
type RunStatus string

const (
	RunStatusActive        RunStatus = "active"         // Run is being worked through the step sequence
	RunStatusNeedsReverify RunStatus = "needs_reverify" // A previously passed step was invalidated and must be redone
	RunStatusComplete      RunStatus = "complete"       // Terminal step passed; run accepts no further submissions
	RunStatusHeld          RunStatus = "held"           // A HOLD outcome parked the run until a supervisor resumes it
)

// InspectionRun represents one line item's progression through the canonical
// inspection step sequence. The descriptive item attributes are copied from
// the order line item at creation time and never change afterwards; the run
// is mutated exclusively through step submissions.
type InspectionRun struct {
	BaseModel
	OrderID        string         `gorm:"type:varchar(100);column:order_id;not null;index" json:"orderId"`           // Owning order/workspace identifier
	ItemName       string         `gorm:"type:varchar(255);column:item_name;not null" json:"itemName"`               // Line item name, immutable
	ItemSKU        string         `gorm:"type:varchar(100);column:item_sku;not null" json:"itemSku"`                 // Line item SKU, immutable
	Quantity       float64        `gorm:"column:quantity;not null" json:"quantity"`                                  // Ordered quantity, immutable
	UnitOfMeasure  string         `gorm:"type:varchar(50);column:unit_of_measure" json:"unitOfMeasure"`              // e.g. gallons, drums
	ContainerType  string         `gorm:"type:varchar(50);column:container_type" json:"containerType"`               // e.g. drum, tote, pail
	ContainerCount int            `gorm:"column:container_count" json:"containerCount"`                              // Physical containers for the item
	Status         RunStatus      `gorm:"type:varchar(20);column:status;not null" json:"status"`                     // active, needs_reverify, complete, held
	CurrentStepID  StepID         `gorm:"type:varchar(50);column:current_step_id;not null" json:"currentStepId"`     // Pointer into the canonical sequence
	QRValue        *string        `gorm:"type:varchar(255);column:qr_value" json:"qrValue,omitempty"`                // Bound QR identity, nil before binding
	ShortCode      *string        `gorm:"type:varchar(50);column:short_code" json:"shortCode,omitempty"`             // Short code for the bound QR, nil before binding
	Steps          StepPayloadSet `gorm:"type:jsonb;column:steps;serializer:json;not null" json:"steps"`             // Recorded results keyed by step id
	ReverifyStepID *StepID        `gorm:"type:varchar(50);column:reverify_step_id" json:"reverifyStepId,omitempty"`  // Step that must be redone while needs_reverify
	ResumeStepID   *StepID        `gorm:"type:varchar(50);column:resume_step_id" json:"resumeStepId,omitempty"`      // Pointer to restore once reverification passes
	HeldFromStatus *RunStatus     `gorm:"type:varchar(20);column:held_from_status" json:"heldFromStatus,omitempty"`  // Status to restore when a supervisor resumes a held run
}

func (r *InspectionRun) TableName() string {
	return "inspection_runs"
}

// QRBound reports whether a QR identity has been attached to the run.
func (r *InspectionRun) QRBound() bool {
	return r.QRValue != nil && *r.QRValue != ""
}

// ScanQRValidated reports whether the scan_qr step has been marked validated
// through the main submission flow. Once true, the binding is immutable
// without an explicit reverification.
func (r *InspectionRun) ScanQRValidated() bool {
	record, ok := r.Steps[StepScanQR]
	if !ok {
		return false
	}
	payload, err := record.DecodePayload(StepScanQR)
	if err != nil {
		return false
	}
	scan, ok := payload.(*ScanQRPayload)
	return ok && scan.QRValidated
}

// SelectActiveRun picks the run presented to the worker, by priority:
// needs_reverify first, then active, then the first existing run. Returns
// nil when runs is empty.
func SelectActiveRun(runs []InspectionRun) *InspectionRun {
	for i := range runs {
		if runs[i].Status == RunStatusNeedsReverify {
			return &runs[i]
		}
	}
	for i := range runs {
		if runs[i].Status == RunStatusActive {
			return &runs[i]
		}
	}
	if len(runs) > 0 {
		return &runs[0]
	}
	return nil
}

// LineItem is the descriptor consumed from the order platform to seed a run.
type LineItem struct {
	Name           string  `json:"name"`
	SKU            string  `json:"sku"`
	Quantity       float64 `json:"quantity"`
	UnitOfMeasure  string  `json:"unitOfMeasure"`
	ContainerType  string  `json:"containerType"`
	ContainerCount int     `json:"containerCount"`
	QRValue        string  `json:"qrValue,omitempty"`   // Optional upstream scan identity; auto-resolves scan_qr
	ShortCode      string  `json:"shortCode,omitempty"` // Optional short code for the upstream scan
}

// CreateRunsDTO is the request body for creating runs for an order.
// When Items is empty the line items are fetched from the order platform.
type CreateRunsDTO struct {
	Items []LineItem `json:"items"`
}

// BindQRDTO attaches a scanned QR identity to a run.
type BindQRDTO struct {
	QRCodeID  string `json:"qrCodeId,omitempty"`
	QRValue   string `json:"qrValue"`
	ShortCode string `json:"shortCode,omitempty"`
}

// RunSnapshotDTO is the updated run returned by every successful submission
// and by the read endpoints.
type RunSnapshotDTO struct {
	ID             uuid.UUID      `json:"id"`
	OrderID        string         `json:"orderId"`
	ItemName       string         `json:"itemName"`
	ItemSKU        string         `json:"itemSku"`
	Quantity       float64        `json:"quantity"`
	UnitOfMeasure  string         `json:"unitOfMeasure"`
	ContainerType  string         `json:"containerType"`
	ContainerCount int            `json:"containerCount"`
	Status         RunStatus      `json:"status"`
	CurrentStepID  StepID         `json:"currentStepId"`
	QRValue        *string        `json:"qrValue,omitempty"`
	ShortCode      *string        `json:"shortCode,omitempty"`
	Steps          StepPayloadSet `json:"steps"`
	ReverifyStepID *StepID        `json:"reverifyStepId,omitempty"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Snapshot converts the run into its response representation.
func (r *InspectionRun) Snapshot() RunSnapshotDTO {
	steps := make(StepPayloadSet, len(r.Steps))
	for k, v := range r.Steps {
		steps[k] = v
	}
	return RunSnapshotDTO{
		ID:             r.ID,
		OrderID:        r.OrderID,
		ItemName:       r.ItemName,
		ItemSKU:        r.ItemSKU,
		Quantity:       r.Quantity,
		UnitOfMeasure:  r.UnitOfMeasure,
		ContainerType:  r.ContainerType,
		ContainerCount: r.ContainerCount,
		Status:         r.Status,
		CurrentStepID:  r.CurrentStepID,
		QRValue:        r.QRValue,
		ShortCode:      r.ShortCode,
		Steps:          steps,
		ReverifyStepID: r.ReverifyStepID,
		UpdatedAt:      r.UpdatedAt,
	}
}
