package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/garyjia/procurement-tracker/internal/application/dispatcher"
	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/event"
)

// ThresholdAlerts forwards threshold.exceeded events to the notification
// dispatcher, resolving display names on the way. Delivery is best effort.
type ThresholdAlerts struct {
	notifier  port.NotificationDispatcher
	directory port.Directory
	logger    Logger
}

// NewThresholdAlerts creates a new ThresholdAlerts handler
func NewThresholdAlerts(notifier port.NotificationDispatcher, directory port.Directory, logger Logger) *ThresholdAlerts {
	return &ThresholdAlerts{notifier: notifier, directory: directory, logger: logger}
}

// Register subscribes the handler to threshold events
func (t *ThresholdAlerts) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeThresholdExceeded, "notify.threshold_exceeded", t.Handle)
}

// Handle dispatches one alert; failures are logged and swallowed
func (t *ThresholdAlerts) Handle(ctx context.Context, evt *event.Event) error {
	alert, err := t.buildAlert(ctx, evt)
	if err != nil {
		t.logger.Error("Failed to build threshold alert", "error", err, "event_id", evt.ID, "reference", evt.Reference)
		return nil
	}

	if err := t.notifier.NotifyThresholdExceeded(ctx, alert); err != nil {
		t.logger.Error("Threshold notification failed", "error", err, "reference", alert.Reference)
		return nil
	}

	t.logger.Info("Threshold notification dispatched", "reference", alert.Reference, "category", alert.Category)
	return nil
}

func (t *ThresholdAlerts) buildAlert(ctx context.Context, evt *event.Event) (port.ThresholdAlert, error) {
	total, err := decimal.NewFromString(evt.GetPayloadString("total"))
	if err != nil {
		return port.ThresholdAlert{}, fmt.Errorf("parse total: %w", err)
	}
	limit, err := decimal.NewFromString(evt.GetPayloadString("threshold_amount"))
	if err != nil {
		return port.ThresholdAlert{}, fmt.Errorf("parse threshold amount: %w", err)
	}

	alert := port.ThresholdAlert{
		Reference:       evt.Reference,
		Title:           evt.GetPayloadString("title"),
		RequesterName:   evt.ActorName,
		DepartmentName:  "Multiple departments",
		Total:           total,
		Currency:        evt.GetPayloadString("currency"),
		ThresholdAmount: limit,
		Category:        evt.GetPayloadString("category"),
		Reason:          evt.GetPayloadString("reason"),
		EntityName:      evt.GetPayloadString("entity"),
		EntityID:        evt.EntityID,
	}

	if id := evt.GetPayloadInt("requester_id"); id != 0 {
		user, err := t.directory.GetUser(ctx, id)
		if err != nil {
			return alert, fmt.Errorf("load requester: %w", err)
		}
		if user != nil {
			alert.RequesterName = user.Name
		}
	}
	if id := evt.GetPayloadInt("department_id"); id != 0 {
		dept, err := t.directory.GetDepartment(ctx, id)
		if err != nil {
			return alert, fmt.Errorf("load department: %w", err)
		}
		if dept != nil {
			alert.DepartmentName = dept.Name
		}
	}
	return alert, nil
}
