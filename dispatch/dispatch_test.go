package dispatch

import (
	"context"
	"errors"
	"testing"

	"civicreport/models"
)

type recordedSend struct {
	recipient string
	msg       Message
}

type fakeSink struct {
	sends   []recordedSend
	failFor map[string]error
}

func (f *fakeSink) Send(ctx context.Context, recipient string, msg Message) error {
	if err, ok := f.failFor[recipient]; ok {
		return err
	}
	f.sends = append(f.sends, recordedSend{recipient: recipient, msg: msg})
	return nil
}

func highPriorityEvent(reportID string) models.ChangeEvent {
	return models.ChangeEvent{
		Kind:     models.EventNewHighPriority,
		ReportID: reportID,
		Audience: models.Audience{Kind: models.AudienceManagers},
	}
}

func statusChangedEvent(reportID, author string) models.ChangeEvent {
	return models.ChangeEvent{
		Kind:           models.EventStatusChanged,
		ReportID:       reportID,
		PreviousStatus: models.StatusUnknown,
		NewStatus:      models.StatusInProgress,
		Audience:       models.Audience{Kind: models.AudienceAuthor, UserID: author},
	}
}

func TestDispatchManagersAudience(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, []string{"mgr1@city.example", "mgr2@city.example"}, nil)

	failures := d.Dispatch(context.Background(), []models.ChangeEvent{highPriorityEvent("r1")})

	if len(failures) != 0 {
		t.Fatalf("got %d failures, expected 0", len(failures))
	}
	if len(sink.sends) != 2 {
		t.Fatalf("got %d deliveries, expected 2", len(sink.sends))
	}
	if sink.sends[0].recipient != "mgr1@city.example" || sink.sends[1].recipient != "mgr2@city.example" {
		t.Errorf("deliveries went to %q and %q, expected both managers",
			sink.sends[0].recipient, sink.sends[1].recipient)
	}
}

func TestDispatchAuthorAudience(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, []string{"mgr@city.example"}, nil)

	failures := d.Dispatch(context.Background(), []models.ChangeEvent{statusChangedEvent("r1", "alice")})

	if len(failures) != 0 {
		t.Fatalf("got %d failures, expected 0", len(failures))
	}
	if len(sink.sends) != 1 {
		t.Fatalf("got %d deliveries, expected 1", len(sink.sends))
	}
	if sink.sends[0].recipient != "alice" {
		t.Errorf("delivery went to %q, expected the author", sink.sends[0].recipient)
	}
	if sink.sends[0].msg.Event != models.EventStatusChanged {
		t.Errorf("message event = %q, expected %q", sink.sends[0].msg.Event, models.EventStatusChanged)
	}
}

func TestDispatchFailureIsolation(t *testing.T) {
	sink := &fakeSink{failFor: map[string]error{
		"mgr2@city.example": errors.New("mailbox full"),
	}}
	d := NewDispatcher(sink, []string{"mgr1@city.example", "mgr2@city.example", "mgr3@city.example"}, nil)

	failures := d.Dispatch(context.Background(), []models.ChangeEvent{highPriorityEvent("r1")})

	if len(failures) != 1 {
		t.Fatalf("got %d failures, expected 1", len(failures))
	}
	if failures[0].Recipient != "mgr2@city.example" {
		t.Errorf("failure recipient = %q, expected mgr2", failures[0].Recipient)
	}
	if failures[0].ReportID != "r1" {
		t.Errorf("failure report id = %q, expected r1", failures[0].ReportID)
	}
	// The other recipients still got their deliveries.
	if len(sink.sends) != 2 {
		t.Fatalf("got %d successful deliveries, expected 2", len(sink.sends))
	}
}

func TestDispatchDeduplicatesRecipientsPerEvent(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, []string{"mgr@city.example", "mgr@city.example", ""}, nil)

	failures := d.Dispatch(context.Background(), []models.ChangeEvent{highPriorityEvent("r1")})

	if len(failures) != 0 {
		t.Fatalf("got %d failures, expected 0", len(failures))
	}
	if len(sink.sends) != 1 {
		t.Fatalf("got %d deliveries, expected 1 (duplicate and empty recipients skipped)", len(sink.sends))
	}
}

func TestDispatchSeparateEventsReachSameRecipient(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, []string{"mgr@city.example"}, nil)

	events := []models.ChangeEvent{highPriorityEvent("r1"), highPriorityEvent("r2")}
	failures := d.Dispatch(context.Background(), events)

	if len(failures) != 0 {
		t.Fatalf("got %d failures, expected 0", len(failures))
	}
	// Deduplication is per event, not per call.
	if len(sink.sends) != 2 {
		t.Fatalf("got %d deliveries, expected 2", len(sink.sends))
	}
	if sink.sends[0].msg.ReportID != "r1" || sink.sends[1].msg.ReportID != "r2" {
		t.Errorf("deliveries carried reports %q and %q, expected r1 and r2",
			sink.sends[0].msg.ReportID, sink.sends[1].msg.ReportID)
	}
}

func TestDispatchNoEvents(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, []string{"mgr@city.example"}, nil)

	failures := d.Dispatch(context.Background(), nil)

	if len(failures) != 0 {
		t.Errorf("got %d failures for no events, expected 0", len(failures))
	}
	if len(sink.sends) != 0 {
		t.Errorf("got %d deliveries for no events, expected 0", len(sink.sends))
	}
}

type fakeAuditLog struct {
	entries []string
	err     error
}

func (f *fakeAuditLog) LogNotification(ctx context.Context, event models.EventKind, reportID, recipient string) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, string(event)+"/"+reportID+"/"+recipient)
	return nil
}

func TestDispatchRecordsDeliveries(t *testing.T) {
	sink := &fakeSink{failFor: map[string]error{
		"mgr2@city.example": errors.New("mailbox full"),
	}}
	audit := &fakeAuditLog{}
	d := NewDispatcher(sink, []string{"mgr1@city.example", "mgr2@city.example"}, audit)

	d.Dispatch(context.Background(), []models.ChangeEvent{highPriorityEvent("r1")})

	// Only the successful delivery is recorded.
	if len(audit.entries) != 1 {
		t.Fatalf("got %d audit entries, expected 1", len(audit.entries))
	}
	if audit.entries[0] != "new_high_priority/r1/mgr1@city.example" {
		t.Errorf("audit entry = %q", audit.entries[0])
	}
}

func TestDispatchAuditFailureDoesNotFailDelivery(t *testing.T) {
	sink := &fakeSink{}
	audit := &fakeAuditLog{err: errors.New("audit table gone")}
	d := NewDispatcher(sink, []string{"mgr@city.example"}, audit)

	failures := d.Dispatch(context.Background(), []models.ChangeEvent{highPriorityEvent("r1")})

	if len(failures) != 0 {
		t.Errorf("got %d failures, expected 0 (audit errors are absorbed)", len(failures))
	}
	if len(sink.sends) != 1 {
		t.Errorf("got %d deliveries, expected 1", len(sink.sends))
	}
}

func TestRenderMessageStatusChange(t *testing.T) {
	msg := renderMessage(statusChangedEvent("r1", "alice"))
	if msg.Subject == "" || msg.Body == "" {
		t.Error("expected a rendered subject and body")
	}
	if msg.ReportID != "r1" {
		t.Errorf("message report id = %q, expected r1", msg.ReportID)
	}
}
