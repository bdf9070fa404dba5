package evidence

import (
	"time"

	"github.com/google/uuid"
)

// PhotoMetadata describes one stored evidence photo. Step payloads
// reference photos by ID; the URL is what the operator's device displays.
type PhotoMetadata struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Key        string    `json:"key"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType"`
	OrderID    string    `json:"orderId,omitempty"`
	RunID      string    `json:"runId,omitempty"`
	StepID     string    `json:"stepId,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
}
