package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/Alliance-Chemical/order-management-sub001/internal/auth"
	"github.com/Alliance-Chemical/order-management-sub001/internal/inspection/model"
	"github.com/Alliance-Chemical/order-management-sub001/internal/inspection/service"
	"github.com/Alliance-Chemical/order-management-sub001/utils"
)

// LineItemSource supplies an order's line items when the create-runs
// request does not carry them. Implemented by the order platform client.
type LineItemSource interface {
	GetLineItems(ctx context.Context, orderID string) ([]model.LineItem, error)
}

// RunRouter exposes the inspection API over HTTP. All run state is mutated
// through the services; handlers only translate requests and errors.
type RunRouter struct {
	rs       *service.RunService
	ss       *service.SubmissionService
	platform LineItemSource
}

func NewRunRouter(rs *service.RunService, ss *service.SubmissionService, platform LineItemSource) *RunRouter {
	return &RunRouter{rs: rs, ss: ss, platform: platform}
}

// HandleCreateRuns handles POST /api/orders/{orderID}/inspection/runs
// Request body: CreateRunsDTO. When the body carries no items they are
// fetched from the order platform. Repeated calls are no-ops.
func (rr *RunRouter) HandleCreateRuns(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderID")
	if orderID == "" {
		http.Error(w, "missing orderID in path", http.StatusBadRequest)
		return
	}

	var req model.CreateRunsDTO
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	if len(req.Items) == 0 {
		if rr.platform == nil {
			http.Error(w, "no line items supplied and no order platform configured", http.StatusBadRequest)
			return
		}
		items, err := rr.platform.GetLineItems(r.Context(), orderID)
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to fetch line items for order %s: %v", orderID, err), http.StatusBadGateway)
			return
		}
		req.Items = items
	}

	runs, created, err := rr.rs.CreateRuns(r.Context(), orderID, req.Items, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, snapshots(runs))
}

// HandleGetRuns handles GET /api/orders/{orderID}/inspection/runs
func (rr *RunRouter) HandleGetRuns(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderID")
	if orderID == "" {
		http.Error(w, "missing orderID in path", http.StatusBadRequest)
		return
	}

	runs, err := rr.rs.GetRuns(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshots(runs))
}

// HandleGetModuleState handles GET /api/orders/{orderID}/inspection/state
// Response: the order's at-rest module state blob.
func (rr *RunRouter) HandleGetModuleState(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderID")
	if orderID == "" {
		http.Error(w, "missing orderID in path", http.StatusBadRequest)
		return
	}

	state, err := rr.rs.GetModuleState(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// HandleSubmitStep handles POST /api/orders/{orderID}/inspection/runs/{runID}/steps
// Request body: SubmitStepDTO. Response: the updated run snapshot.
func (rr *RunRouter) HandleSubmitStep(w http.ResponseWriter, r *http.Request) {
	orderID, runID, ok := orderAndRun(w, r)
	if !ok {
		return
	}

	var req model.SubmitStepDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Actor == "" {
		req.Actor = actorFromRequest(r)
	}

	snapshot, err := rr.ss.SubmitStep(r.Context(), orderID, runID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// HandleBindQR handles POST /api/orders/{orderID}/inspection/runs/{runID}/qr
// Request body: BindQRDTO. Response: the updated run snapshot.
func (rr *RunRouter) HandleBindQR(w http.ResponseWriter, r *http.Request) {
	orderID, runID, ok := orderAndRun(w, r)
	if !ok {
		return
	}

	var req model.BindQRDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	snapshot, err := rr.rs.BindRunToQR(r.Context(), orderID, runID, &req, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// reverifyDTO is the body of a supervisor reverification flag.
type reverifyDTO struct {
	StepID model.StepID `json:"stepId"`
}

// HandleFlagReverify handles POST /api/orders/{orderID}/inspection/runs/{runID}/reverify
// Supervisor-gated at the mux.
func (rr *RunRouter) HandleFlagReverify(w http.ResponseWriter, r *http.Request) {
	orderID, runID, ok := orderAndRun(w, r)
	if !ok {
		return
	}

	var req reverifyDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	snapshot, err := rr.rs.FlagReverify(r.Context(), orderID, runID, req.StepID, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// HandleResumeRun handles POST /api/orders/{orderID}/inspection/runs/{runID}/resume
// Supervisor-gated at the mux.
func (rr *RunRouter) HandleResumeRun(w http.ResponseWriter, r *http.Request) {
	orderID, runID, ok := orderAndRun(w, r)
	if !ok {
		return
	}

	snapshot, err := rr.rs.ResumeRun(r.Context(), orderID, runID, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// HandleListActivities handles GET /api/orders/{orderID}/inspection/activity
// Optional query filters: offset, limit.
func (rr *RunRouter) HandleListActivities(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderID")
	if orderID == "" {
		http.Error(w, "missing orderID in path", http.StatusBadRequest)
		return
	}

	var offsetPtr, limitPtr *int
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			http.Error(w, "invalid 'offset' query parameter, must be an integer", http.StatusBadRequest)
			return
		}
		offsetPtr = &offset
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			http.Error(w, "invalid 'limit' query parameter, must be an integer", http.StatusBadRequest)
			return
		}
		limitPtr = &limit
	}
	offset, limit := utils.GetPaginationParams(offsetPtr, limitPtr)

	entries, err := rr.rs.ListActivities(r.Context(), orderID, offset, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func orderAndRun(w http.ResponseWriter, r *http.Request) (string, uuid.UUID, bool) {
	orderID := r.PathValue("orderID")
	if orderID == "" {
		http.Error(w, "missing orderID in path", http.StatusBadRequest)
		return "", uuid.Nil, false
	}
	runID, err := uuid.Parse(r.PathValue("runID"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid runID: %v", err), http.StatusBadRequest)
		return "", uuid.Nil, false
	}
	return orderID, runID, true
}

func actorFromRequest(r *http.Request) string {
	if authCtx := auth.GetAuthContext(r.Context()); authCtx != nil {
		return authCtx.OperatorID
	}
	return ""
}

func snapshots(runs []model.InspectionRun) []model.RunSnapshotDTO {
	out := make([]model.RunSnapshotDTO, 0, len(runs))
	for i := range runs {
		out = append(out, runs[i].Snapshot())
	}
	return out
}

// writeServiceError maps the error taxonomy onto HTTP statuses: validation
// failures are 400, state errors 409, missing runs 404.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case model.IsValidationError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case model.IsStateError(err):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, model.ErrRunNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
