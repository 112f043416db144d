package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/procurement-tracker/internal/application/dispatcher"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/event"
)

type mockRecorder struct {
	mu      sync.Mutex
	entries []entity.AuditEntry
	err     error
}

func (m *mockRecorder) Record(ctx context.Context, entry entity.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func TestAuditEntryFor(t *testing.T) {
	tests := []struct {
		name       string
		evt        *event.Event
		wantEntity string
		wantMsg    string
	}{
		{
			name: "status change",
			evt: event.NewEvent(event.TypeStatusChanged, 12, "REQ-20261019-0001", map[string]any{
				"trigger":         "APPROVE",
				"previous_status": "SUBMITTED",
				"new_status":      "DEPARTMENT_REVIEW",
			}),
			wantEntity: entity.AuditEntityRequest,
			wantMsg:    "REQ-20261019-0001 APPROVE: SUBMITTED -> DEPARTMENT_REVIEW",
		},
		{
			name: "combination",
			evt: event.NewEvent(event.TypeCombinationCreated, 3, "CMB-20261019143005", map[string]any{
				"lots":        3,
				"total_value": "6000",
			}),
			wantEntity: entity.AuditEntityCombined,
			wantMsg:    "CMB-20261019143005 created with 3 lots, total 6000",
		},
		{
			name: "threshold on combined request",
			evt: event.NewEvent(event.TypeThresholdExceeded, 3, "CMB-20261019143005", map[string]any{
				"entity": entity.AuditEntityCombined,
				"reason": "over limit",
			}),
			wantEntity: entity.AuditEntityCombined,
			wantMsg:    "CMB-20261019143005 requires executive approval: over limit",
		},
		{
			name:       "idea vote without reference",
			evt:        event.NewEvent(event.TypeIdeaVoted, 9, "", map[string]any{"previous": "", "vote": "UPVOTE"}),
			wantEntity: entity.AuditEntityIdea,
			wantMsg:    `idea #9 vote "" -> "UPVOTE"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := tt.evt.WithActor(5, "Sam")
			entry := AuditEntryFor(evt)

			assert.Equal(t, tt.wantEntity, entry.Entity)
			assert.Equal(t, tt.wantMsg, entry.Message)
			assert.Equal(t, evt.Type.String(), entry.Action)
			assert.Equal(t, int64(5), entry.ActorID)
			assert.Equal(t, "Sam", entry.ActorName)
			assert.Equal(t, evt.ID, entry.Metadata["event_id"])
			assert.Equal(t, evt.CorrelationID, entry.Metadata["correlation_id"])
			assert.Equal(t, evt.Timestamp, entry.CreatedAt)
		})
	}
}

func TestAuditTrail_RegisterAndHandle(t *testing.T) {
	recorder := &mockRecorder{}
	d := dispatcher.NewDispatcher()
	NewAuditTrail(recorder, &testLogger{}).Register(d)

	handlers := d.ListHandlers(event.TypeIdeaVoted)
	require.Len(t, handlers, 1)
	assert.Equal(t, "audit.idea.voted", handlers[0].Name)

	err := d.Dispatch(context.Background(), event.NewEvent(event.TypeRequestCreated, 1, "REQ-20261019-0001", map[string]any{
		"total_estimated": "1050002",
		"currency":        "JMD",
	}))
	require.NoError(t, err)
	require.Len(t, recorder.entries, 1)
	assert.Equal(t, "REQ-20261019-0001 created (1050002 JMD)", recorder.entries[0].Message)
}

func TestAuditTrail_SwallowsRecorderErrors(t *testing.T) {
	logger := &testLogger{}
	trail := NewAuditTrail(&mockRecorder{err: errors.New("disk I/O error")}, logger)

	err := trail.Handle(context.Background(), event.NewEvent(event.TypeRequestSubmitted, 1, "REQ-20261019-0001", nil))
	assert.NoError(t, err)
	assert.Equal(t, []string{"Failed to record audit entry"}, logger.errors)
}
