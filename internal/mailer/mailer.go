// Package mailer sends the two outbound notifications the validation
// engine triggers: request-created and status-change. Headers are
// sanitized (CRLF stripped) and the body is capped, since the content
// ultimately derives from a customer-submitted domain name.
package mailer

import (
	"fmt"

	mail "github.com/go-mail/mail/v2"

	"github.com/fntelecomllc/dnsguard/internal/models"
	"github.com/fntelecomllc/dnsguard/internal/sanitize"
)

// Notifier is the outbound-email collaborator the scheduler and intake
// handler call. Implementations must never block request/tick handling
// on delivery failure — callers treat send errors as log-only.
type Notifier interface {
	SendRequestCreated(target string, reqType models.RequestType) error
	SendStatusChange(target string, reqType models.RequestType, status models.RequestStatus, result *models.CheckResult) error
}

// SMTPNotifier sends mail via an SMTP relay using gopkg.in/mail.v2.
type SMTPNotifier struct {
	dialer        *mail.Dialer
	from          string
	to            string
	bodyMaxLength int
}

// NewSMTPNotifier builds a notifier that relays through host:port using
// the given credentials. secure selects implicit TLS (SMTPS); most relays
// on 587 instead use STARTTLS, which mail.Dialer negotiates automatically.
func NewSMTPNotifier(host string, port int, user, pass, from, to string, secure bool, bodyMaxLength int) *SMTPNotifier {
	d := mail.NewDialer(host, port, user, pass)
	d.SSL = secure
	return &SMTPNotifier{dialer: d, from: from, to: to, bodyMaxLength: bodyMaxLength}
}

func (n *SMTPNotifier) SendRequestCreated(target string, reqType models.RequestType) error {
	subject := sanitize.String(fmt.Sprintf("DNS validation request received: %s (%s)", target, reqType), 200)
	body := sanitize.String(fmt.Sprintf("A DNS validation request was created for %s (%s). Validation will run in the background until it completes or expires.", target, reqType), n.bodyMaxLength)
	return n.send(subject, body)
}

func (n *SMTPNotifier) SendStatusChange(target string, reqType models.RequestType, status models.RequestStatus, result *models.CheckResult) error {
	subject := sanitize.String(fmt.Sprintf("DNS validation %s: %s (%s)", status, target, reqType), 200)
	body := sanitize.String(formatStatusBody(target, reqType, status, result), n.bodyMaxLength)
	return n.send(subject, body)
}

func formatStatusBody(target string, reqType models.RequestType, status models.RequestStatus, result *models.CheckResult) string {
	if result == nil {
		return fmt.Sprintf("DNS validation for %s (%s) is now %s.", target, reqType, status)
	}
	summary := "failed"
	if result.OK {
		summary = "passed"
	}
	return fmt.Sprintf("DNS validation for %s (%s) is now %s. Last check %s all requirements.", target, reqType, status, summary)
}

func (n *SMTPNotifier) send(subject, body string) error {
	m := mail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", n.to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	return n.dialer.DialAndSend(m)
}

// NoopNotifier discards every notification. Tests use it; cmd/server
// selects it only when SMTP_HOST is empty, which config.Load already
// rejects as a missing required variable.
type NoopNotifier struct{}

func (NoopNotifier) SendRequestCreated(target string, reqType models.RequestType) error {
	return nil
}

func (NoopNotifier) SendStatusChange(target string, reqType models.RequestType, status models.RequestStatus, result *models.CheckResult) error {
	return nil
}
