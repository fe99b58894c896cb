package domain

import "time"

// Idempotency records the resource produced by a previously accepted API
// request, keyed by (workspace_id, scope, key). It lets clients safely retry
// POSTs carrying an Idempotency-Key header without creating a second resource.
type Idempotency struct {
	ID          string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	WorkspaceID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_workspace_scope_key,priority:1"`
	Scope       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_workspace_scope_key,priority:2"`
	Key         string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_workspace_scope_key,priority:3"`
	ResourceID  string    `gorm:"type:TEXT NOT NULL"`
	Status      int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt   time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt   time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
