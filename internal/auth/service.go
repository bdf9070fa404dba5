package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"
)

// AuthService provides business logic for authentication and operator
// context operations. It handles database interactions for operator data.
type AuthService struct {
	db *gorm.DB
}

// NewAuthService creates a new AuthService instance.
func NewAuthService(db *gorm.DB) *AuthService {
	return &AuthService{db: db}
}

// GetOperatorContext retrieves the operator context for a given operator
// ID. Returns gorm.ErrRecordNotFound when the operator is unknown.
func (as *AuthService) GetOperatorContext(operatorID string) (*OperatorContext, error) {
	if operatorID == "" {
		return nil, fmt.Errorf("operator ID is empty")
	}

	var operatorCtx OperatorContext
	result := as.db.Where("operator_id = ?", operatorID).First(&operatorCtx)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			slog.Debug("operator context not found", "operator_id", operatorID)
			return nil, result.Error
		}
		slog.Error("failed to fetch operator context from database",
			"operator_id", operatorID,
			"error", result.Error,
		)
		return nil, fmt.Errorf("failed to fetch operator context: %w", result.Error)
	}
	return &operatorCtx, nil
}

// UpsertOperatorContext creates or updates an operator. Useful for
// provisioning and for syncing with the workforce management system.
func (as *AuthService) UpsertOperatorContext(operatorID, displayName string, role OperatorRole, metadata json.RawMessage) error {
	if operatorID == "" {
		return fmt.Errorf("operator ID is empty")
	}
	if role != RoleWorker && role != RoleSupervisor {
		return fmt.Errorf("unknown operator role %q", role)
	}
	if len(metadata) > 0 {
		var jsonData any
		if err := json.Unmarshal(metadata, &jsonData); err != nil {
			return fmt.Errorf("invalid JSON in operator metadata: %w", err)
		}
	}

	result := as.db.Save(&OperatorContext{
		OperatorID:  operatorID,
		DisplayName: displayName,
		Role:        role,
		Metadata:    metadata,
	})
	if result.Error != nil {
		slog.Error("failed to upsert operator context",
			"operator_id", operatorID,
			"error", result.Error,
		)
		return fmt.Errorf("failed to upsert operator context: %w", result.Error)
	}

	slog.Debug("operator context upserted", "operator_id", operatorID, "role", role)
	return nil
}

// TokenExtractor parses operator identity out of the Authorization header.
// Tokens are opaque bearer values whose subject is the operator ID; badge
// scanners on the floor terminals mint them.
type TokenExtractor struct{}

func NewTokenExtractor() *TokenExtractor {
	return &TokenExtractor{}
}

// ExtractOperatorIDFromHeader returns the operator ID carried by an
// Authorization header of the form "Bearer <token>".
func (te *TokenExtractor) ExtractOperatorIDFromHeader(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", fmt.Errorf("authorization header is not a bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", fmt.Errorf("bearer token is empty")
	}
	return token, nil
}
