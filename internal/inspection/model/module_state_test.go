package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun(t *testing.T, orderID string, createdAt time.Time) InspectionRun {
	t.Helper()
	qr := "QR-9001"
	return InspectionRun{
		BaseModel: BaseModel{
			ID:        uuid.New(),
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		},
		OrderID:        orderID,
		ItemName:       "Sodium Hypochlorite 12.5%",
		ItemSKU:        "SH-125-D55",
		Quantity:       4,
		UnitOfMeasure:  "drums",
		ContainerType:  "drum",
		ContainerCount: 4,
		Status:         RunStatusActive,
		CurrentStepID:  StepVerifyPackingLabel,
		QRValue:        &qr,
		Steps: StepPayloadSet{
			StepScanQR: {
				Outcome: OutcomePass,
				Payload: json.RawMessage(`{"qrValue":"QR-9001","qrValidated":true}`),
			},
			StepInspectionInfo: {
				Outcome: OutcomePass,
				Payload: json.RawMessage(`{"orderNumber":"ORD-77","date":"2026-08-30","inspector":"A"}`),
			},
		},
	}
}

func TestModuleStateRoundTrip(t *testing.T) {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	first := sampleRun(t, "ORD-77", base)
	second := sampleRun(t, "ORD-77", base.Add(time.Minute))
	second.Status = RunStatusHeld
	heldFrom := RunStatusActive
	second.HeldFromStatus = &heldFrom

	state := BuildModuleState("ORD-77", []InspectionRun{first, second})
	require.Len(t, state.Runs, 2)

	// The blob must survive JSON serialization, the storage format.
	blob, err := json.Marshal(state)
	require.NoError(t, err)
	var decoded ModuleState
	require.NoError(t, json.Unmarshal(blob, &decoded))

	runs, err := NormalizeRuns(decoded)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	t.Run("creation order is restored", func(t *testing.T) {
		assert.Equal(t, first.ID, runs[0].ID)
		assert.Equal(t, second.ID, runs[1].ID)
	})

	t.Run("run fields survive", func(t *testing.T) {
		assert.Equal(t, "Sodium Hypochlorite 12.5%", runs[0].ItemName)
		assert.Equal(t, StepVerifyPackingLabel, runs[0].CurrentStepID)
		require.NotNil(t, runs[0].QRValue)
		assert.Equal(t, "QR-9001", *runs[0].QRValue)
		assert.Equal(t, RunStatusHeld, runs[1].Status)
		require.NotNil(t, runs[1].HeldFromStatus)
		assert.Equal(t, RunStatusActive, *runs[1].HeldFromStatus)
	})

	t.Run("step records survive and stay decodable", func(t *testing.T) {
		require.True(t, runs[0].Steps.Has(StepScanQR))
		payload, err := runs[0].Steps[StepScanQR].DecodePayload(StepScanQR)
		require.NoError(t, err)
		scan, ok := payload.(*ScanQRPayload)
		require.True(t, ok)
		assert.True(t, scan.QRValidated)
	})

	t.Run("normalization is stable across repeats", func(t *testing.T) {
		again, err := NormalizeRuns(decoded)
		require.NoError(t, err)
		require.Len(t, again, 2)
		assert.Equal(t, runs[0].ID, again[0].ID)
		assert.Equal(t, runs[1].ID, again[1].ID)
	})
}

func TestNormalizeRunsRejectsCorruptBlobs(t *testing.T) {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	run := sampleRun(t, "ORD-77", base)

	t.Run("invalid run id", func(t *testing.T) {
		state := BuildModuleState("ORD-77", []InspectionRun{run})
		rs := state.Runs[run.ID.String()]
		delete(state.Runs, run.ID.String())
		state.Runs["not-a-uuid"] = rs
		_, err := NormalizeRuns(state)
		assert.Error(t, err)
	})

	t.Run("unknown current step", func(t *testing.T) {
		state := BuildModuleState("ORD-77", []InspectionRun{run})
		rs := state.Runs[run.ID.String()]
		rs.CurrentStepID = "weigh_container"
		state.Runs[run.ID.String()] = rs
		_, err := NormalizeRuns(state)
		assert.Error(t, err)
	})

	t.Run("unknown step key in results", func(t *testing.T) {
		state := BuildModuleState("ORD-77", []InspectionRun{run})
		rs := state.Runs[run.ID.String()]
		rs.Steps["weigh_container"] = StepRecord{Outcome: OutcomePass, Payload: json.RawMessage(`{}`)}
		state.Runs[run.ID.String()] = rs
		_, err := NormalizeRuns(state)
		assert.Error(t, err)
	})
}

func TestSelectActiveRun(t *testing.T) {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	active := sampleRun(t, "ORD-1", base)
	complete := sampleRun(t, "ORD-1", base)
	complete.Status = RunStatusComplete
	reverify := sampleRun(t, "ORD-1", base)
	reverify.Status = RunStatusNeedsReverify

	t.Run("needs_reverify wins over active", func(t *testing.T) {
		got := SelectActiveRun([]InspectionRun{active, reverify})
		require.NotNil(t, got)
		assert.Equal(t, reverify.ID, got.ID)
	})

	t.Run("active wins over complete", func(t *testing.T) {
		got := SelectActiveRun([]InspectionRun{complete, active})
		require.NotNil(t, got)
		assert.Equal(t, active.ID, got.ID)
	})

	t.Run("falls back to the first run", func(t *testing.T) {
		got := SelectActiveRun([]InspectionRun{complete})
		require.NotNil(t, got)
		assert.Equal(t, complete.ID, got.ID)
	})

	t.Run("nil when empty", func(t *testing.T) {
		assert.Nil(t, SelectActiveRun(nil))
	})
}

func TestDigestPayload(t *testing.T) {
	raw := json.RawMessage(`{"lotNumbers":["LOT-1"]}`)

	t.Run("deterministic", func(t *testing.T) {
		a := DigestPayload(StepLotNumber, OutcomePass, raw)
		b := DigestPayload(StepLotNumber, OutcomePass, raw)
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("sensitive to every input", func(t *testing.T) {
		base := DigestPayload(StepLotNumber, OutcomePass, raw)
		assert.NotEqual(t, base, DigestPayload(StepLotExtraction, OutcomePass, raw))
		assert.NotEqual(t, base, DigestPayload(StepLotNumber, OutcomeHold, raw))
		assert.NotEqual(t, base, DigestPayload(StepLotNumber, OutcomePass, json.RawMessage(`{"lotNumbers":["LOT-2"]}`)))
	})
}
