package dispatch

import (
	"context"

	"civicreport/rabbitmq"

	"github.com/apex/log"
)

// AMQPSink routes notifications through the RabbitMQ exchange, one
// message per recipient, with the recipient appended to the routing
// key so downstream consumers can bind per user or per role.
type AMQPSink struct {
	publisher      *rabbitmq.Publisher
	routingKeyBase string
}

// NewAMQPSink creates a sink publishing to the given publisher with
// routing keys of the form "<base>.<recipient>".
func NewAMQPSink(publisher *rabbitmq.Publisher, routingKeyBase string) *AMQPSink {
	return &AMQPSink{publisher: publisher, routingKeyBase: routingKeyBase}
}

func (s *AMQPSink) Send(ctx context.Context, recipient string, msg Message) error {
	payload := struct {
		Recipient string `json:"recipient"`
		Message
	}{Recipient: recipient, Message: msg}
	return s.publisher.PublishWithRoutingKey(s.routingKeyBase+"."+recipient, payload)
}

// LogSink writes notifications to the service log. Used when no real
// delivery channel is configured, so diff cycles stay observable in
// development.
type LogSink struct{}

func (LogSink) Send(ctx context.Context, recipient string, msg Message) error {
	log.Infof("Notification for %s: %s (report %s)", recipient, msg.Subject, msg.ReportID)
	return nil
}
