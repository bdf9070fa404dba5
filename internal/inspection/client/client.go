// Package client is the HTTP transport for the inspection API, used by
// handheld sessions. Transport-level failures are classified as
// connectivity errors so the offline queue can absorb them.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Alliance-Chemical/order-management-sub001/internal/inspection/model"
)

// Client talks to the inspection endpoints of one service instance.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// New creates a client for baseURL. The token, when non-empty, is sent as
// the Authorization header on every request.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		token:   token,
	}
}

// SubmitStep delivers one step submission and returns the updated run
// snapshot. Implements the orchestrator's Submitter port.
func (c *Client) SubmitStep(ctx context.Context, orderID string, runID uuid.UUID, req *model.SubmitStepDTO) (*model.RunSnapshotDTO, error) {
	var snapshot model.RunSnapshotDTO
	path := fmt.Sprintf("/api/orders/%s/inspection/runs/%s/steps", orderID, runID)
	if err := c.post(ctx, path, req, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// CreateRuns seeds runs for an order's line items. Safe to repeat: the
// server is a no-op when runs already exist.
func (c *Client) CreateRuns(ctx context.Context, orderID string, req *model.CreateRunsDTO) ([]model.RunSnapshotDTO, error) {
	var runs []model.RunSnapshotDTO
	path := fmt.Sprintf("/api/orders/%s/inspection/runs", orderID)
	if err := c.post(ctx, path, req, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRuns fetches the order's runs.
func (c *Client) GetRuns(ctx context.Context, orderID string) ([]model.RunSnapshotDTO, error) {
	path := fmt.Sprintf("/api/orders/%s/inspection/runs", orderID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	var runs []model.RunSnapshotDTO
	if err := c.do(httpReq, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// BindRun attaches a scanned QR identity to a run.
func (c *Client) BindRun(ctx context.Context, orderID string, runID uuid.UUID, req *model.BindQRDTO) (*model.RunSnapshotDTO, error) {
	var snapshot model.RunSnapshotDTO
	path := fmt.Sprintf("/api/orders/%s/inspection/runs/%s/qr", orderID, runID)
	if err := c.post(ctx, path, req, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// The request never produced an HTTP response: the server is
		// unreachable, DNS failed, or the deadline expired in transit.
		return &model.ConnectivityError{Op: req.Method + " " + req.URL.Path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		message := readErrorMessage(resp.Body)
		switch resp.StatusCode {
		case http.StatusBadRequest:
			return model.NewValidationError("", "request", message)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", model.ErrRunNotFound, message)
		case http.StatusConflict:
			return &model.StateError{Reason: message}
		default:
			if resp.StatusCode >= 500 {
				// The server answered but could not persist; treat like a
				// transport failure so the submission is retried, not lost.
				return &model.ConnectivityError{
					Op:  req.Method + " " + req.URL.Path,
					Err: fmt.Errorf("server error %d: %s", resp.StatusCode, message),
				}
			}
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, message)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "unreadable error body"
	}
	return strings.TrimSpace(string(body))
}
