// Package email delivers invitation and password-reset messages.
//
// Delivery is best-effort from the caller's point of view: services persist
// their records first and report a failed Send as a warning.
package email

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Sender delivers a plain-text message to one recipient.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Driver names accepted by New.
const (
	DriverLog      = "log"
	DriverSMTP     = "smtp"
	DriverSendGrid = "sendgrid"
)

// Options selects and configures a Sender.
type Options struct {
	Driver         string
	From           string
	SMTP           SMTPServer
	SendGridAPIKey string
}

// New returns the Sender named by opts.Driver. An empty driver means DriverLog.
func New(opts Options, log *zap.Logger) (Sender, error) {
	switch opts.Driver {
	case "", DriverLog:
		return NewLogSender(log), nil
	case DriverSMTP:
		if opts.SMTP.HostPort == "" {
			return nil, fmt.Errorf("email: smtp driver requires SMTP_HOST_PORT")
		}
		return NewSMTPSender(opts.SMTP, opts.From), nil
	case DriverSendGrid:
		if opts.SendGridAPIKey == "" {
			return nil, fmt.Errorf("email: sendgrid driver requires SENDGRID_API_KEY")
		}
		return NewSendGridSender(opts.SendGridAPIKey, opts.From, ""), nil
	default:
		return nil, fmt.Errorf("email: unknown driver %q", opts.Driver)
	}
}

// LogSender writes messages to the log instead of delivering them. For development.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, to, subject, body string) error {
	s.log.Info("email",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}
