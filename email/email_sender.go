package email

import (
	"context"
	"fmt"

	"civicreport/config"
	"civicreport/dispatch"

	"github.com/apex/log"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Sender delivers notifications over SendGrid. It implements
// dispatch.Sink; recipients are email addresses.
type Sender struct {
	config *config.Config
	client *sendgrid.Client
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config) *Sender {
	client := sendgrid.NewSendClient(cfg.SendGridAPIKey)
	return &Sender{
		config: cfg,
		client: client,
	}
}

// Send sends one notification email to one recipient.
func (s *Sender) Send(ctx context.Context, recipient string, msg dispatch.Message) error {
	from := mail.NewEmail(s.config.SendGridFromName, s.config.SendGridFromEmail)
	to := mail.NewEmail(recipient, recipient)

	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, s.htmlBody(msg))

	response, err := s.client.Send(message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid rejected message: status %d", response.StatusCode)
	}

	log.Infof("Email sent to %s! Status: %d", recipient, response.StatusCode)
	return nil
}

func (s *Sender) htmlBody(msg dispatch.Message) string {
	return fmt.Sprintf(`<html><body>
<h2>%s</h2>
<p>%s</p>
<p>Report reference: <b>%s</b></p>
</body></html>`, msg.Subject, msg.Body, msg.ReportID)
}
