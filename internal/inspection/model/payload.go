package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// StepPayload is the closed set of per-step payload shapes. Every payload
// carries the id of the step that produced it and a completion timestamp,
// and knows how to validate itself against an intended outcome before any
// submission attempt is made.
type StepPayload interface {
	// Step returns the step id this payload belongs to.
	Step() StepID

	// CompletedAt returns when the step was completed by the operator.
	CompletedAt() time.Time

	// Validate checks the structural rules for this payload against the
	// outcome the operator intends to record. A non-nil result is always a
	// *ValidationError.
	Validate(outcome StepOutcome) error
}

// PayloadMeta carries the fields common to every step payload.
type PayloadMeta struct {
	Completed time.Time `json:"completedAt"`
}

// CompletedAt implements StepPayload.
func (m PayloadMeta) CompletedAt() time.Time { return m.Completed }

// ScanQRPayload records the QR identity that satisfied the scan_qr step.
type ScanQRPayload struct {
	PayloadMeta
	QRValue     string     `json:"qrValue"`
	QRValidated bool       `json:"qrValidated"`
	ValidatedAt *time.Time `json:"validatedAt,omitempty"`
	ShortCode   string     `json:"shortCode,omitempty"`
}

func (p *ScanQRPayload) Step() StepID { return StepScanQR }

func (p *ScanQRPayload) Validate(outcome StepOutcome) error {
	if outcome == OutcomeFail {
		return NewValidationError(StepScanQR, "outcome", "scan_qr cannot be submitted with FAIL")
	}
	if strings.TrimSpace(p.QRValue) == "" {
		return NewValidationError(StepScanQR, "qrValue", "a QR value is required")
	}
	if outcome == OutcomePass && !p.QRValidated {
		return NewValidationError(StepScanQR, "qrValidated", "QR must be validated before PASS")
	}
	return nil
}

// InspectionInfoPayload records who performed the inspection and when.
type InspectionInfoPayload struct {
	PayloadMeta
	OrderNumber string `json:"orderNumber"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Inspector   string `json:"inspector"`
	Notes       string `json:"notes,omitempty"`
}

func (p *InspectionInfoPayload) Step() StepID { return StepInspectionInfo }

func (p *InspectionInfoPayload) Validate(outcome StepOutcome) error {
	if outcome == OutcomeFail {
		return NewValidationError(StepInspectionInfo, "outcome", "inspection_info cannot be submitted with FAIL")
	}
	if strings.TrimSpace(p.OrderNumber) == "" {
		return NewValidationError(StepInspectionInfo, "orderNumber", "order number is required")
	}
	if strings.TrimSpace(p.Date) == "" {
		return NewValidationError(StepInspectionInfo, "date", "inspection date is required")
	}
	if strings.TrimSpace(p.Inspector) == "" {
		return NewValidationError(StepInspectionInfo, "inspector", "inspector name is required")
	}
	return nil
}

// LabelVerificationPayload records the boolean checks of either label
// verification step. A FAIL outcome is a data-quality annotation, not a hard
// stop, but it must always be justified with a reason and photo evidence.
type LabelVerificationPayload struct {
	PayloadMeta
	StepTag  StepID          `json:"-"`
	Checks   map[string]bool `json:"checks"`
	Reason   string          `json:"reason,omitempty"`
	PhotoIDs []string        `json:"photoIds,omitempty"`
}

func (p *LabelVerificationPayload) Step() StepID { return p.StepTag }

// ComputedOutcome derives the outcome from the recorded checks: FAIL if any
// check is false, PASS otherwise.
func (p *LabelVerificationPayload) ComputedOutcome() StepOutcome {
	for _, ok := range p.Checks {
		if !ok {
			return OutcomeFail
		}
	}
	return OutcomePass
}

func (p *LabelVerificationPayload) Validate(outcome StepOutcome) error {
	if p.StepTag != StepVerifyPackingLabel && p.StepTag != StepVerifyProductLabel {
		return NewValidationError(p.StepTag, "step", "payload is only valid for label verification steps")
	}
	if len(p.Checks) == 0 {
		return NewValidationError(p.StepTag, "checks", "at least one check is required")
	}
	if outcome != OutcomeHold && outcome != p.ComputedOutcome() {
		return NewValidationError(p.StepTag, "outcome",
			fmt.Sprintf("outcome %s is inconsistent with the recorded checks", outcome))
	}
	if outcome == OutcomeFail {
		if strings.TrimSpace(p.Reason) == "" {
			return NewValidationError(p.StepTag, "reason", "a FAIL outcome requires a non-empty reason")
		}
		if len(p.PhotoIDs) == 0 {
			return NewValidationError(p.StepTag, "photoIds", "a FAIL outcome requires at least one photo")
		}
	}
	return nil
}

// LotNumberPayload records the lot numbers as printed on the containers.
type LotNumberPayload struct {
	PayloadMeta
	LotNumbers    []string `json:"lotNumbers"`
	SameLotForAll bool     `json:"sameLotForAll"`
}

func (p *LotNumberPayload) Step() StepID { return StepLotNumber }

func (p *LotNumberPayload) Validate(outcome StepOutcome) error {
	if outcome == OutcomeFail {
		return NewValidationError(StepLotNumber, "outcome", "lot_number cannot be submitted with FAIL")
	}
	if len(p.LotNumbers) == 0 {
		return NewValidationError(StepLotNumber, "lotNumbers", "at least one lot number is required")
	}
	for i, lot := range p.LotNumbers {
		if strings.TrimSpace(lot) == "" {
			return NewValidationError(StepLotNumber, "lotNumbers", fmt.Sprintf("lot number %d is empty", i))
		}
	}
	return nil
}

// LotConfirmation is one lot's extraction confirmation.
type LotConfirmation struct {
	LotNumber string `json:"lotNumber"`
	Confirmed bool   `json:"confirmed"`
}

// LotExtractionPayload records the terminal step. Every lot must be
// confirmed before the payload is submittable; its successful PASS marks
// the run complete.
type LotExtractionPayload struct {
	PayloadMeta
	Confirmations []LotConfirmation `json:"confirmations"`
}

func (p *LotExtractionPayload) Step() StepID { return StepLotExtraction }

func (p *LotExtractionPayload) Validate(outcome StepOutcome) error {
	if outcome == OutcomeFail {
		return NewValidationError(StepLotExtraction, "outcome", "lot_extraction cannot be submitted with FAIL")
	}
	if len(p.Confirmations) == 0 {
		return NewValidationError(StepLotExtraction, "confirmations", "at least one lot confirmation is required")
	}
	if outcome == OutcomePass {
		for _, c := range p.Confirmations {
			if !c.Confirmed {
				return NewValidationError(StepLotExtraction, "confirmations",
					fmt.Sprintf("lot %q is not confirmed", c.LotNumber))
			}
		}
	}
	return nil
}

// DecodeStepPayload decodes raw JSON into the payload shape for stepID.
// The switch is exhaustive over the canonical sequence so that adding a step
// is a compile-visible change here rather than a runtime shape mismatch.
func DecodeStepPayload(stepID StepID, raw json.RawMessage) (StepPayload, error) {
	if len(raw) == 0 {
		return nil, NewValidationError(stepID, "payload", "payload is required")
	}

	var payload StepPayload
	switch stepID {
	case StepScanQR:
		payload = &ScanQRPayload{}
	case StepInspectionInfo:
		payload = &InspectionInfoPayload{}
	case StepVerifyPackingLabel:
		payload = &LabelVerificationPayload{StepTag: StepVerifyPackingLabel}
	case StepVerifyProductLabel:
		payload = &LabelVerificationPayload{StepTag: StepVerifyProductLabel}
	case StepLotNumber:
		payload = &LotNumberPayload{}
	case StepLotExtraction:
		payload = &LotExtractionPayload{}
	default:
		return nil, NewValidationError(stepID, "step", "unknown step id")
	}

	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, NewValidationError(stepID, "payload", "malformed payload JSON: "+err.Error())
	}
	return payload, nil
}

// StepRecord is one completed step as stored on a run: the payload plus the
// outcome that was recorded with it.
type StepRecord struct {
	Outcome StepOutcome     `json:"outcome"`
	Payload json.RawMessage `json:"payload"`
}

// DecodePayload returns the typed payload of this record for stepID.
func (r StepRecord) DecodePayload(stepID StepID) (StepPayload, error) {
	return DecodeStepPayload(stepID, r.Payload)
}

// StepPayloadSet maps step ids to their recorded results. One entry per
// completed step; an absent step has not been attempted. Stored as a jsonb
// column on the run.
type StepPayloadSet map[StepID]StepRecord

// Has reports whether a step has a recorded result.
func (s StepPayloadSet) Has(stepID StepID) bool {
	_, ok := s[stepID]
	return ok
}
