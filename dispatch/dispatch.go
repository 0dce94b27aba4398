package dispatch

import (
	"context"
	"fmt"

	"civicreport/metrics"
	"civicreport/models"

	"github.com/apex/log"
)

// Message is the rendered notification handed to a sink.
type Message struct {
	Event    models.EventKind `json:"event"`
	ReportID string           `json:"report_id"`
	Subject  string           `json:"subject"`
	Body     string           `json:"body"`
}

// Sink delivers one message to one recipient.
type Sink interface {
	Send(ctx context.Context, recipient string, msg Message) error
}

// DeliveryError records one failed delivery. Failures are isolated per
// (event, recipient) pair and never block the remaining deliveries.
type DeliveryError struct {
	Recipient string
	ReportID  string
	Err       error
}

func (e DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s for report %s failed: %v", e.Recipient, e.ReportID, e.Err)
}

// NotificationLogger records successful deliveries for audit. May be nil.
type NotificationLogger interface {
	LogNotification(ctx context.Context, event models.EventKind, reportID, recipient string) error
}

// Dispatcher maps change events to sink deliveries, resolving each
// event's audience to concrete recipients.
type Dispatcher struct {
	sink     Sink
	managers []string
	auditLog NotificationLogger
}

// NewDispatcher creates a dispatcher. managers is the recipient list
// the manager-roles audience resolves to. auditLog may be nil, in
// which case deliveries are not recorded.
func NewDispatcher(sink Sink, managers []string, auditLog NotificationLogger) *Dispatcher {
	return &Dispatcher{sink: sink, managers: managers, auditLog: auditLog}
}

// Dispatch delivers every event to its resolved audience, at most once
// per (event, recipient) pair within this call, and returns the
// deliveries that failed.
func (d *Dispatcher) Dispatch(ctx context.Context, events []models.ChangeEvent) []DeliveryError {
	var failures []DeliveryError

	for _, event := range events {
		msg := renderMessage(event)
		seen := make(map[string]bool)

		for _, recipient := range d.resolveAudience(event.Audience) {
			if recipient == "" || seen[recipient] {
				continue
			}
			seen[recipient] = true

			if err := d.sink.Send(ctx, recipient, msg); err != nil {
				log.WithError(err).Warnf("Failed to deliver %s notification for report %s to %s",
					event.Kind, event.ReportID, recipient)
				metrics.NotificationsTotal.WithLabelValues("error").Inc()
				failures = append(failures, DeliveryError{
					Recipient: recipient,
					ReportID:  event.ReportID,
					Err:       err,
				})
				continue
			}
			metrics.NotificationsTotal.WithLabelValues("ok").Inc()

			// Audit failures never fail the delivery; the message is out.
			if d.auditLog != nil {
				if err := d.auditLog.LogNotification(ctx, event.Kind, event.ReportID, recipient); err != nil {
					log.WithError(err).Warnf("Failed to record notification for report %s", event.ReportID)
				}
			}
		}
	}

	return failures
}

func (d *Dispatcher) resolveAudience(audience models.Audience) []string {
	switch audience.Kind {
	case models.AudienceManagers:
		return d.managers
	case models.AudienceAuthor:
		return []string{audience.UserID}
	}
	log.Warnf("Unknown audience kind %q, dropping event", audience.Kind)
	return nil
}

func renderMessage(event models.ChangeEvent) Message {
	msg := Message{
		Event:    event.Kind,
		ReportID: event.ReportID,
	}
	switch event.Kind {
	case models.EventNewHighPriority:
		msg.Subject = "New high-priority incident"
		msg.Body = fmt.Sprintf("A new high-priority incident was reported (report %s). Immediate triage is advised.", event.ReportID)
	case models.EventStatusChanged:
		msg.Subject = "Your report status changed"
		msg.Body = fmt.Sprintf("The status of your report %s changed from %s to %s.",
			event.ReportID, event.PreviousStatus, event.NewStatus)
	default:
		msg.Subject = "Report update"
		msg.Body = fmt.Sprintf("Report %s changed.", event.ReportID)
	}
	return msg
}
