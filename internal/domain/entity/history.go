package entity

import (
	"time"

	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// StatusHistoryEntry is one append-only record of a request's lifecycle
type StatusHistoryEntry struct {
	ID                int64          `json:"id"`
	RequestID         int64          `json:"request_id"`
	PreviousStatus    workflow.State `json:"previous_status,omitempty"`
	Status            workflow.State `json:"status"`
	Action            string         `json:"action"`
	ActorID           int64          `json:"actor_id"`
	ActorName         string         `json:"actor_name"`
	Comment           string         `json:"comment,omitempty"`
	CombinedRequestID *int64         `json:"combined_request_id,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// History actions that are not workflow triggers
const (
	HistoryActionCreate         = "CREATE"
	HistoryActionAssign         = "ASSIGN"
	HistoryActionCombine        = "COMBINE"
	HistoryActionCombineSummary = "COMBINE_SUMMARY"
)
