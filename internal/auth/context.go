package auth

import (
	"encoding/json"
	"fmt"
)

// OperatorRole distinguishes floor workers from supervisors. Supervisor-only
// operations (reverification flags, releasing held runs) are gated on it.
type OperatorRole string

const (
	RoleWorker     OperatorRole = "worker"
	RoleSupervisor OperatorRole = "supervisor"
)

// OperatorContext represents a warehouse operator in the database.
type OperatorContext struct {
	OperatorID  string          `gorm:"type:varchar(100);column:operator_id;primaryKey;not null" json:"operatorId"`
	DisplayName string          `gorm:"type:varchar(255);column:display_name" json:"displayName"`
	Role        OperatorRole    `gorm:"type:varchar(20);column:role;not null" json:"role"`
	Metadata    json.RawMessage `gorm:"type:jsonb;column:metadata;serializer:json" json:"metadata,omitempty"`
}

// TableName specifies the database table name for OperatorContext.
func (o *OperatorContext) TableName() string {
	return "operator_contexts"
}

// AuthContext is the authentication context available to a request. It is
// transient, injected by the auth middleware from the operator's token.
type AuthContext struct {
	*OperatorContext
}

// IsSupervisor reports whether the authenticated operator holds the
// supervisor role.
func (ac *AuthContext) IsSupervisor() bool {
	return ac != nil && ac.OperatorContext != nil && ac.Role == RoleSupervisor
}

// GetMetadataMap returns the operator metadata as a map for convenient
// access. If no metadata exists, it returns an empty map.
func (ac *AuthContext) GetMetadataMap() (map[string]any, error) {
	metadata := make(map[string]any)
	if ac == nil || ac.OperatorContext == nil || len(ac.Metadata) == 0 {
		return metadata, nil
	}
	if err := json.Unmarshal(ac.Metadata, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal operator metadata: %w", err)
	}
	return metadata, nil
}
