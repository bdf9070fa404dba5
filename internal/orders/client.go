// Package orders is the thin client for the order/shipping platform. The
// inspection core consumes only line-item descriptors from it, to seed run
// creation; nothing here participates in inspection logic.
package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Alliance-Chemical/order-management-sub001/internal/inspection/model"
)

// lineItemResponse mirrors the platform's line-item representation.
type lineItemResponse struct {
	Name           string  `json:"name"`
	SKU            string  `json:"sku"`
	Quantity       float64 `json:"quantity"`
	UnitOfMeasure  string  `json:"unitOfMeasure"`
	ContainerType  string  `json:"containerType"`
	ContainerCount int     `json:"containerCount"`
	QRValue        string  `json:"qrValue"`
	ShortCode      string  `json:"shortCode"`
}

// Client fetches order data from the shipping platform.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a platform client for baseURL, authenticating with
// apiKey when non-empty.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// GetLineItems returns the order's line items.
func (c *Client) GetLineItems(ctx context.Context, orderID string) ([]model.LineItem, error) {
	url := fmt.Sprintf("%s/api/orders/%s/line-items", c.baseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build line items request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch line items for order %s: %w", orderID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("order platform returned status %d for order %s", resp.StatusCode, orderID)
	}

	var items []lineItemResponse
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode line items: %w", err)
	}

	out := make([]model.LineItem, 0, len(items))
	for _, item := range items {
		out = append(out, model.LineItem{
			Name:           item.Name,
			SKU:            item.SKU,
			Quantity:       item.Quantity,
			UnitOfMeasure:  item.UnitOfMeasure,
			ContainerType:  item.ContainerType,
			ContainerCount: item.ContainerCount,
			QRValue:        item.QRValue,
			ShortCode:      item.ShortCode,
		})
	}
	return out, nil
}
