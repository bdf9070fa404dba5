package model

import "fmt"

// StepID identifies one step of the canonical inspection sequence.
type StepID string

const (
	StepScanQR             StepID = "scan_qr"              // QR identity binding, auto-resolved when a scan opened the run
	StepInspectionInfo     StepID = "inspection_info"      // Inspector, date/time, notes
	StepVerifyPackingLabel StepID = "verify_packing_label" // Boolean checks against the packing label
	StepVerifyProductLabel StepID = "verify_product_label" // Boolean checks against the product label
	StepLotNumber          StepID = "lot_number"           // Lot numbers as printed on the containers
	StepLotExtraction      StepID = "lot_extraction"       // Per-lot confirmations; terminal step
)

// StepSequence is the canonical, fixed order in which steps are worked.
// Runs advance through this sequence one step at a time.
var StepSequence = []StepID{
	StepScanQR,
	StepInspectionInfo,
	StepVerifyPackingLabel,
	StepVerifyProductLabel,
	StepLotNumber,
	StepLotExtraction,
}

// StepIndex returns the position of a step in the canonical sequence,
// or an error if the step id is unknown.
func StepIndex(id StepID) (int, error) {
	for i, s := range StepSequence {
		if s == id {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown step id %q", id)
}

// IsValidStep reports whether id names a step of the canonical sequence.
func IsValidStep(id StepID) bool {
	_, err := StepIndex(id)
	return err == nil
}

// NextStep returns the step following id in the canonical sequence.
// For the terminal step it returns the terminal step itself and false.
func NextStep(id StepID) (StepID, bool) {
	idx, err := StepIndex(id)
	if err != nil || idx == len(StepSequence)-1 {
		return StepLotExtraction, false
	}
	return StepSequence[idx+1], true
}

// IsTerminalStep reports whether id is the last step of the sequence.
func IsTerminalStep(id StepID) bool {
	return id == StepLotExtraction
}

// StepBefore reports whether a comes strictly before b in the canonical sequence.
// Unknown step ids compare as not-before.
func StepBefore(a, b StepID) bool {
	ai, errA := StepIndex(a)
	bi, errB := StepIndex(b)
	if errA != nil || errB != nil {
		return false
	}
	return ai < bi
}

// StepOutcome is the recorded result of a step submission.
type StepOutcome string

const (
	OutcomePass StepOutcome = "PASS" // Step satisfied; the pointer may advance
	OutcomeFail StepOutcome = "FAIL" // Mismatch recorded for audit; label steps still advance
	OutcomeHold StepOutcome = "HOLD" // Run parked until a supervisor resumes it
)

// IsValidOutcome reports whether o is one of the three recognised outcomes.
func IsValidOutcome(o StepOutcome) bool {
	return o == OutcomePass || o == OutcomeFail || o == OutcomeHold
}
