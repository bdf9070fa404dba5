package model

import "github.com/google/uuid"

// ActivityKind categorises audit trail entries.
type ActivityKind string

const (
	ActivityStepSubmitted ActivityKind = "STEP_SUBMITTED" // A step result was recorded or corrected
	ActivityRunCreated    ActivityKind = "RUN_CREATED"    // Runs were seeded from order line items
	ActivityQRBound       ActivityKind = "QR_BOUND"       // A scanned QR identity was attached
	ActivityReverifyFlag  ActivityKind = "REVERIFY_FLAGGED"
	ActivityRunResumed    ActivityKind = "RUN_RESUMED"
)

// InspectionActivity is the append-only audit trail. Every effective
// submission appends exactly one entry; idempotent replays append none.
type InspectionActivity struct {
	BaseModel
	OrderID        string       `gorm:"type:varchar(100);column:order_id;not null;index" json:"orderId"`
	RunID          uuid.UUID    `gorm:"type:uuid;column:run_id;not null;index" json:"runId"`
	Kind           ActivityKind `gorm:"type:varchar(50);column:kind;not null" json:"kind"`
	StepID         *StepID      `gorm:"type:varchar(50);column:step_id" json:"stepId,omitempty"`
	Outcome        *StepOutcome `gorm:"type:varchar(10);column:outcome" json:"outcome,omitempty"`
	IdempotencyKey string       `gorm:"type:varchar(100);column:idempotency_key" json:"idempotencyKey,omitempty"`
	Actor          string       `gorm:"type:varchar(100);column:actor" json:"actor,omitempty"`
	Note           string       `gorm:"type:text;column:note" json:"note,omitempty"`
}

func (a *InspectionActivity) TableName() string {
	return "inspection_activities"
}
