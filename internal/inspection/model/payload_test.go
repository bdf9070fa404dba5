package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanQRPayloadValidate(t *testing.T) {
	payload := &ScanQRPayload{
		PayloadMeta: PayloadMeta{Completed: time.Now().UTC()},
		QRValue:     "QR-12345",
		QRValidated: true,
	}

	t.Run("validated scan passes", func(t *testing.T) {
		assert.NoError(t, payload.Validate(OutcomePass))
	})

	t.Run("FAIL is never a legal scan outcome", func(t *testing.T) {
		err := payload.Validate(OutcomeFail)
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("unvalidated scan cannot PASS", func(t *testing.T) {
		p := &ScanQRPayload{QRValue: "QR-12345", QRValidated: false}
		assert.Error(t, p.Validate(OutcomePass))
	})

	t.Run("empty QR value is rejected", func(t *testing.T) {
		p := &ScanQRPayload{QRValue: "  ", QRValidated: true}
		assert.Error(t, p.Validate(OutcomePass))
	})
}

func TestInspectionInfoPayloadValidate(t *testing.T) {
	valid := &InspectionInfoPayload{
		OrderNumber: "ORD-1001",
		Date:        "2026-08-30",
		Time:        "14:30",
		Inspector:   "J. Alvarez",
	}

	t.Run("complete info passes", func(t *testing.T) {
		assert.NoError(t, valid.Validate(OutcomePass))
	})

	t.Run("missing inspector is rejected", func(t *testing.T) {
		p := *valid
		p.Inspector = ""
		assert.Error(t, p.Validate(OutcomePass))
	})

	t.Run("FAIL is rejected", func(t *testing.T) {
		assert.Error(t, valid.Validate(OutcomeFail))
	})

	t.Run("HOLD is accepted with complete info", func(t *testing.T) {
		assert.NoError(t, valid.Validate(OutcomeHold))
	})
}

func TestLabelVerificationPayloadValidate(t *testing.T) {
	t.Run("all checks true computes PASS", func(t *testing.T) {
		p := &LabelVerificationPayload{
			StepTag: StepVerifyPackingLabel,
			Checks:  map[string]bool{"address": true, "unNumber": true},
		}
		assert.Equal(t, OutcomePass, p.ComputedOutcome())
		assert.NoError(t, p.Validate(OutcomePass))
	})

	t.Run("any false check computes FAIL", func(t *testing.T) {
		p := &LabelVerificationPayload{
			StepTag: StepVerifyProductLabel,
			Checks:  map[string]bool{"hazardClass": true, "productName": false},
		}
		assert.Equal(t, OutcomeFail, p.ComputedOutcome())
	})

	t.Run("FAIL requires a reason", func(t *testing.T) {
		p := &LabelVerificationPayload{
			StepTag:  StepVerifyPackingLabel,
			Checks:   map[string]bool{"address": false},
			PhotoIDs: []string{"photo-1"},
		}
		err := p.Validate(OutcomeFail)
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("FAIL requires at least one photo", func(t *testing.T) {
		p := &LabelVerificationPayload{
			StepTag: StepVerifyPackingLabel,
			Checks:  map[string]bool{"address": false},
			Reason:  "wrong consignee address",
		}
		assert.Error(t, p.Validate(OutcomeFail))
	})

	t.Run("FAIL with reason and photo passes", func(t *testing.T) {
		p := &LabelVerificationPayload{
			StepTag:  StepVerifyProductLabel,
			Checks:   map[string]bool{"hazardClass": false},
			Reason:   "hazard class label missing",
			PhotoIDs: []string{"photo-7"},
		}
		assert.NoError(t, p.Validate(OutcomeFail))
	})

	t.Run("outcome must match computed checks", func(t *testing.T) {
		p := &LabelVerificationPayload{
			StepTag: StepVerifyPackingLabel,
			Checks:  map[string]bool{"address": false},
			Reason:  "bad address",
		}
		assert.Error(t, p.Validate(OutcomePass))
	})

	t.Run("HOLD bypasses the computed-outcome check", func(t *testing.T) {
		p := &LabelVerificationPayload{
			StepTag: StepVerifyPackingLabel,
			Checks:  map[string]bool{"address": false},
		}
		assert.NoError(t, p.Validate(OutcomeHold))
	})

	t.Run("empty checks are rejected", func(t *testing.T) {
		p := &LabelVerificationPayload{StepTag: StepVerifyPackingLabel}
		assert.Error(t, p.Validate(OutcomePass))
	})

	t.Run("wrong step tag is rejected", func(t *testing.T) {
		p := &LabelVerificationPayload{
			StepTag: StepLotNumber,
			Checks:  map[string]bool{"x": true},
		}
		assert.Error(t, p.Validate(OutcomePass))
	})
}

func TestLotNumberPayloadValidate(t *testing.T) {
	t.Run("non-empty lots pass", func(t *testing.T) {
		p := &LotNumberPayload{LotNumbers: []string{"LOT-A1", "LOT-A2"}}
		assert.NoError(t, p.Validate(OutcomePass))
	})

	t.Run("no lots is rejected", func(t *testing.T) {
		p := &LotNumberPayload{}
		assert.Error(t, p.Validate(OutcomePass))
	})

	t.Run("blank lot entry is rejected", func(t *testing.T) {
		p := &LotNumberPayload{LotNumbers: []string{"LOT-A1", "   "}}
		assert.Error(t, p.Validate(OutcomePass))
	})
}

func TestLotExtractionPayloadValidate(t *testing.T) {
	t.Run("all confirmed passes", func(t *testing.T) {
		p := &LotExtractionPayload{Confirmations: []LotConfirmation{
			{LotNumber: "LOT-A1", Confirmed: true},
			{LotNumber: "LOT-A2", Confirmed: true},
		}}
		assert.NoError(t, p.Validate(OutcomePass))
	})

	t.Run("unconfirmed lot blocks PASS", func(t *testing.T) {
		p := &LotExtractionPayload{Confirmations: []LotConfirmation{
			{LotNumber: "LOT-A1", Confirmed: true},
			{LotNumber: "LOT-A2", Confirmed: false},
		}}
		assert.Error(t, p.Validate(OutcomePass))
	})

	t.Run("unconfirmed lot still allows HOLD", func(t *testing.T) {
		p := &LotExtractionPayload{Confirmations: []LotConfirmation{
			{LotNumber: "LOT-A1", Confirmed: false},
		}}
		assert.NoError(t, p.Validate(OutcomeHold))
	})

	t.Run("no confirmations is rejected", func(t *testing.T) {
		p := &LotExtractionPayload{}
		assert.Error(t, p.Validate(OutcomePass))
	})
}

func TestDecodeStepPayload(t *testing.T) {
	t.Run("decodes each step to its own shape", func(t *testing.T) {
		cases := map[StepID]string{
			StepScanQR:             `{"qrValue":"QR-1","qrValidated":true}`,
			StepInspectionInfo:     `{"orderNumber":"ORD-1","date":"2026-08-30","inspector":"A"}`,
			StepVerifyPackingLabel: `{"checks":{"address":true}}`,
			StepVerifyProductLabel: `{"checks":{"hazardClass":true}}`,
			StepLotNumber:          `{"lotNumbers":["LOT-1"]}`,
			StepLotExtraction:      `{"confirmations":[{"lotNumber":"LOT-1","confirmed":true}]}`,
		}
		for stepID, raw := range cases {
			payload, err := DecodeStepPayload(stepID, json.RawMessage(raw))
			require.NoError(t, err, "step %s", stepID)
			assert.Equal(t, stepID, payload.Step())
		}
	})

	t.Run("label payloads carry their own step tag", func(t *testing.T) {
		payload, err := DecodeStepPayload(StepVerifyProductLabel, json.RawMessage(`{"checks":{"x":true}}`))
		require.NoError(t, err)
		assert.Equal(t, StepVerifyProductLabel, payload.Step())
	})

	t.Run("empty payload is rejected", func(t *testing.T) {
		_, err := DecodeStepPayload(StepScanQR, nil)
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("malformed JSON is rejected", func(t *testing.T) {
		_, err := DecodeStepPayload(StepLotNumber, json.RawMessage(`{"lotNumbers":`))
		assert.True(t, IsValidationError(err))
	})

	t.Run("unknown step is rejected", func(t *testing.T) {
		_, err := DecodeStepPayload("weigh_container", json.RawMessage(`{}`))
		assert.True(t, IsValidationError(err))
	})
}
