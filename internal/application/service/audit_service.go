package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/procurement-tracker/internal/application/dispatcher"
	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/event"
)

// auditedEvents are recorded in the audit log
var auditedEvents = []event.Type{
	event.TypeRequestCreated,
	event.TypeRequestUpdated,
	event.TypeRequestSubmitted,
	event.TypeStatusChanged,
	event.TypeRequestAssigned,
	event.TypeCombinationCreated,
	event.TypeThresholdExceeded,
	event.TypeIdeaCreated,
	event.TypeIdeaReviewed,
	event.TypeIdeaVoted,
}

// AuditTrail turns domain events into audit log entries. Recording failures
// are logged and swallowed so they can never affect the audited change.
type AuditTrail struct {
	recorder port.AuditRecorder
	logger   Logger
}

// NewAuditTrail creates a new AuditTrail
func NewAuditTrail(recorder port.AuditRecorder, logger Logger) *AuditTrail {
	return &AuditTrail{recorder: recorder, logger: logger}
}

// Register subscribes the trail to every audited event type
func (a *AuditTrail) Register(d dispatcher.Dispatcher) {
	for _, t := range auditedEvents {
		d.SubscribeNamed(t, "audit."+t.String(), a.Handle)
	}
}

// Handle records one event
func (a *AuditTrail) Handle(ctx context.Context, evt *event.Event) error {
	entry := AuditEntryFor(evt)
	if err := a.recorder.Record(ctx, entry); err != nil {
		a.logger.Error("Failed to record audit entry",
			"error", err,
			"event_type", evt.Type,
			"event_id", evt.ID,
			"entity_id", evt.EntityID,
		)
	}
	return nil
}

// AuditEntryFor maps an event to its audit log entry
func AuditEntryFor(evt *event.Event) entity.AuditEntry {
	metadata := make(map[string]any, len(evt.Payload)+2)
	for k, v := range evt.Payload {
		metadata[k] = v
	}
	metadata["event_id"] = evt.ID
	metadata["correlation_id"] = evt.CorrelationID

	return entity.AuditEntry{
		ActorID:   evt.ActorID,
		ActorName: evt.ActorName,
		Action:    evt.Type.String(),
		Entity:    auditEntity(evt),
		EntityID:  evt.EntityID,
		Message:   auditMessage(evt),
		Metadata:  metadata,
		CreatedAt: evt.Timestamp,
	}
}

func auditEntity(evt *event.Event) string {
	switch {
	case evt.Type == event.TypeCombinationCreated:
		return entity.AuditEntityCombined
	case evt.Type == event.TypeThresholdExceeded:
		if name := evt.GetPayloadString("entity"); name != "" {
			return name
		}
		return entity.AuditEntityRequest
	case strings.HasPrefix(evt.Type.String(), "idea."):
		return entity.AuditEntityIdea
	default:
		return entity.AuditEntityRequest
	}
}

func auditMessage(evt *event.Event) string {
	ref := evt.Reference
	if ref == "" {
		ref = fmt.Sprintf("#%d", evt.EntityID)
	}

	switch evt.Type {
	case event.TypeRequestCreated:
		return fmt.Sprintf("%s created (%s %s)", ref, evt.GetPayloadString("total_estimated"), evt.GetPayloadString("currency"))
	case event.TypeRequestSubmitted, event.TypeStatusChanged:
		return fmt.Sprintf("%s %s: %s -> %s", ref,
			evt.GetPayloadString("trigger"),
			evt.GetPayloadString("previous_status"),
			evt.GetPayloadString("new_status"))
	case event.TypeRequestAssigned:
		return fmt.Sprintf("%s assigned to %s", ref, evt.GetPayloadString("assignee_name"))
	case event.TypeCombinationCreated:
		return fmt.Sprintf("%s created with %d lots, total %s", ref, evt.GetPayloadInt("lots"), evt.GetPayloadString("total_value"))
	case event.TypeThresholdExceeded:
		return fmt.Sprintf("%s requires executive approval: %s", ref, evt.GetPayloadString("reason"))
	case event.TypeIdeaReviewed:
		return fmt.Sprintf("idea %s %s", ref, evt.GetPayloadString("status"))
	case event.TypeIdeaVoted:
		return fmt.Sprintf("idea %s vote %q -> %q", ref, evt.GetPayloadString("previous"), evt.GetPayloadString("vote"))
	default:
		return fmt.Sprintf("%s %s", evt.Type, ref)
	}
}
