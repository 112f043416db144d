package entity

import "time"

// AuditEntry is one append-only audit log record
type AuditEntry struct {
	ID        int64          `json:"id"`
	ActorID   int64          `json:"actor_id"`
	ActorName string         `json:"actor_name"`
	Action    string         `json:"action"`
	Entity    string         `json:"entity"`
	EntityID  int64          `json:"entity_id"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Audited entity names
const (
	AuditEntityRequest  = "request"
	AuditEntityCombined = "combined_request"
	AuditEntityIdea     = "idea"
)
