package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
)

// SubmissionRecord is the idempotency ledger for step submissions. Each row
// records one effective submission keyed by (order, run, step, idempotency
// key); a replay with the same key must not create a second effect.
type SubmissionRecord struct {
	BaseModel
	OrderID        string      `gorm:"type:varchar(100);column:order_id;not null;index" json:"orderId"`
	RunID          uuid.UUID   `gorm:"type:uuid;column:run_id;not null;uniqueIndex:idx_submission_key" json:"runId"`
	StepID         StepID      `gorm:"type:varchar(50);column:step_id;not null;uniqueIndex:idx_submission_key" json:"stepId"`
	IdempotencyKey string      `gorm:"type:varchar(100);column:idempotency_key;not null;uniqueIndex:idx_submission_key" json:"idempotencyKey"`
	Outcome        StepOutcome `gorm:"type:varchar(10);column:outcome;not null" json:"outcome"`
	PayloadDigest  string      `gorm:"type:varchar(64);column:payload_digest;not null" json:"payloadDigest"`
}

func (s *SubmissionRecord) TableName() string {
	return "inspection_submissions"
}

// DigestPayload computes the digest used to detect idempotency-key
// collisions that carry a different payload.
func DigestPayload(stepID StepID, outcome StepOutcome, payload json.RawMessage) string {
	h := sha256.New()
	h.Write([]byte(stepID))
	h.Write([]byte{0})
	h.Write([]byte(outcome))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// SubmitStepDTO is the request body of a step submission. The idempotency
// key is generated by the caller and reused verbatim on every retry of the
// same logical submission.
type SubmitStepDTO struct {
	StepID         StepID          `json:"stepId"`
	Outcome        StepOutcome     `json:"outcome"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Payload        json.RawMessage `json:"payload"`
	Actor          string          `json:"actor,omitempty"` // Operator recording the step; defaults from the auth context
}
