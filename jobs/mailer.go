package jobs

import (
	"context"
	"fmt"
	"net/smtp"
)

// SMTPMailer delivers mail through a plain SMTP relay such as the local
// Mailpit instance used in development.
type SMTPMailer struct {
	addr string
	from string
}

// NewSMTPMailer builds a mailer for the given host:port relay.
func NewSMTPMailer(addr, from string) *SMTPMailer {
	return &SMTPMailer{addr: addr, from: from}
}

// Send delivers one message.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", m.from, to, subject, body)
	return smtp.SendMail(m.addr, nil, m.from, []string{to}, []byte(msg))
}
