package evidence

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EvidenceService coordinates photo evidence uploads for inspection steps.
type EvidenceService struct {
	Driver StorageDriver
}

func NewEvidenceService(driver StorageDriver) *EvidenceService {
	return &EvidenceService{Driver: driver}
}

// UploadContext ties an uploaded photo to the step it documents.
type UploadContext struct {
	OrderID string
	RunID   string
	StepID  string
}

// Upload stores a photo and returns its metadata. Only image content is
// accepted: evidence attached to a FAIL outcome must be a photograph of the
// mismatch, not an arbitrary document.
func (s *EvidenceService) Upload(ctx context.Context, filename string, reader io.Reader, size int64, mime string, uploadCtx UploadContext) (*PhotoMetadata, error) {
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("unsupported content type %q: evidence must be an image", mime)
	}

	id := uuid.New()
	ext := filepath.Ext(filename)
	key := fmt.Sprintf("evidence/%s%s", id.String(), ext)

	if err := s.Driver.Save(ctx, key, reader, mime); err != nil {
		return nil, fmt.Errorf("storage driver failed: %w", err)
	}

	url, err := s.Driver.GenerateURL(ctx, key, 0)
	if err != nil {
		if delErr := s.Driver.Delete(ctx, key); delErr != nil {
			slog.WarnContext(ctx, "failed to cleanup orphaned photo", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("failed to generate URL: %w", err)
	}

	metadata := &PhotoMetadata{
		ID:         id,
		Name:       filename,
		Key:        key,
		URL:        url,
		Size:       size,
		MimeType:   mime,
		OrderID:    uploadCtx.OrderID,
		RunID:      uploadCtx.RunID,
		StepID:     uploadCtx.StepID,
		UploadedAt: time.Now().UTC(),
	}

	slog.InfoContext(ctx, "evidence photo uploaded",
		"id", id, "key", key, "order_id", uploadCtx.OrderID, "run_id", uploadCtx.RunID)
	return metadata, nil
}

// Download retrieves the photo content and its MIME type.
func (s *EvidenceService) Download(ctx context.Context, key string) (io.ReadCloser, string, error) {
	return s.Driver.Get(ctx, key)
}

// Remove deletes a photo that is no longer referenced by any step payload.
func (s *EvidenceService) Remove(ctx context.Context, key string) error {
	if err := s.Driver.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete evidence photo %s: %w", key, err)
	}
	return nil
}
