// Package notification delivers threshold alerts to procurement staff.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/policy"
	"github.com/garyjia/procurement-tracker/internal/domain/threshold"
)

// Sender delivers one stored notification to its recipient
type Sender interface {
	Send(ctx context.Context, recipient *entity.User, n *entity.Notification) error
}

// LogSender writes notifications to the log instead of an external channel
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a sender that only logs
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send implements Sender
func (s *LogSender) Send(_ context.Context, recipient *entity.User, n *entity.Notification) error {
	s.logger.Info("Notification delivered",
		zap.Int64("notification_id", n.ID),
		zap.Int64("recipient_id", recipient.ID),
		zap.String("email", recipient.Email),
		zap.String("subject", n.Subject))
	return nil
}

// alertRoles are the roles whose holders may receive threshold alerts
var alertRoles = []string{
	string(policy.RoleProcurementOfficer),
	string(policy.RoleProcurementManager),
}

// ThresholdNotifier implements port.NotificationDispatcher. Each recipient
// gets one notifications row whose status tracks delivery.
type ThresholdNotifier struct {
	directory     port.Directory
	notifications port.NotificationRepository
	sender        Sender
	clock         port.Clock
	logger        *zap.Logger
}

// NewThresholdNotifier creates a new threshold notifier
func NewThresholdNotifier(
	directory port.Directory,
	notifications port.NotificationRepository,
	sender Sender,
	clock port.Clock,
	logger *zap.Logger,
) *ThresholdNotifier {
	if clock == nil {
		clock = time.Now
	}
	return &ThresholdNotifier{
		directory:     directory,
		notifications: notifications,
		sender:        sender,
		clock:         clock,
		logger:        logger,
	}
}

// NotifyThresholdExceeded stores and sends the alert to every recipient.
// It fails only when no recipient could be reached.
func (n *ThresholdNotifier) NotifyThresholdExceeded(ctx context.Context, alert port.ThresholdAlert) error {
	recipients, err := n.recipients(ctx)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		n.logger.Warn("No recipients for threshold alert", zap.String("reference", alert.Reference))
		return nil
	}

	subject := Subject(alert)
	body := Body(alert)

	var lastErr error
	successCount := 0
	for _, user := range recipients {
		record := &entity.Notification{
			RecipientID: user.ID,
			Kind:        entity.NotificationKindThresholdExceeded,
			Reference:   alert.Reference,
			Subject:     subject,
			Body:        body,
			Status:      entity.NotificationStatusPending,
			CreatedAt:   n.clock(),
		}
		if err := n.notifications.Create(ctx, record); err != nil {
			lastErr = err
			continue
		}

		if err := n.sender.Send(ctx, user, record); err != nil {
			n.logger.Error("Failed to send notification",
				zap.Int64("recipient_id", user.ID),
				zap.String("reference", alert.Reference),
				zap.Error(err))
			if mErr := n.notifications.MarkFailed(ctx, record.ID, err.Error()); mErr != nil {
				n.logger.Error("Failed to update notification status to FAILED", zap.Error(mErr))
			}
			lastErr = err
			continue
		}

		if err := n.notifications.MarkSent(ctx, record.ID, n.clock()); err != nil {
			n.logger.Error("Failed to update notification status to SENT", zap.Error(err))
		}
		successCount++
	}

	if successCount == 0 && lastErr != nil {
		return fmt.Errorf("threshold alert %s not delivered: %w", alert.Reference, lastErr)
	}

	n.logger.Info("Threshold alert completed",
		zap.String("reference", alert.Reference),
		zap.Int("success_count", successCount),
		zap.Int("total_recipients", len(recipients)))
	return nil
}

func (n *ThresholdNotifier) recipients(ctx context.Context) ([]*entity.User, error) {
	users, err := n.directory.UsersWithRoles(ctx, alertRoles)
	if err != nil {
		return nil, fmt.Errorf("load alert recipients: %w", err)
	}

	out := users[:0]
	for _, u := range users {
		if policy.Resolve(u.Roles).ReceivesThresholdAlerts {
			out = append(out, u)
		}
	}
	return out, nil
}

// Subject is the one-line summary of an alert
func Subject(alert port.ThresholdAlert) string {
	return fmt.Sprintf("Executive approval required: %s", alert.Reference)
}

// Body renders the alert text stored with each notification
func Body(alert port.ThresholdAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s exceeds the %s threshold and has been routed for executive review.\n\n", alert.Reference, categoryLabel(alert.Category))
	fmt.Fprintf(&b, "Title: %s\n", alert.Title)
	fmt.Fprintf(&b, "Requester: %s\n", alert.RequesterName)
	fmt.Fprintf(&b, "Department: %s\n", alert.DepartmentName)
	fmt.Fprintf(&b, "Total: %s %s\n", alert.Total.StringFixed(2), alert.Currency)
	fmt.Fprintf(&b, "Threshold: %s %s\n", alert.ThresholdAmount.StringFixed(2), alert.Currency)
	if alert.Reason != "" {
		fmt.Fprintf(&b, "\n%s\n", alert.Reason)
	}
	return b.String()
}

func categoryLabel(category string) string {
	switch threshold.Category(category) {
	case threshold.CategoryWorks:
		return "works"
	case threshold.CategoryGoodsServices:
		return "goods and services"
	}
	return strings.ToLower(category)
}

// Verify interface compliance
var _ port.NotificationDispatcher = (*ThresholdNotifier)(nil)
