package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/quotedprintable"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// TLS modes for SMTPServer.TLS.
const (
	TLSNone     = "none"
	TLSImplicit = "tls"
	TLSStart    = "starttls"
)

type SMTPServer struct {
	HostPort string
	TLS      string
	User     string
	Password string
	Hello    string
}

// tlsConfig verifies the relay certificate against the host part of HostPort.
func (s SMTPServer) tlsConfig() *tls.Config {
	host, _, err := net.SplitHostPort(s.HostPort)
	if err != nil {
		host = s.HostPort
	}
	return &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
}

// SMTPSender delivers through an SMTP relay, one connection per message.
type SMTPSender struct {
	server SMTPServer
	from   string
	now    func() time.Time
}

func NewSMTPSender(server SMTPServer, from string) *SMTPSender {
	return &SMTPSender{server: server, from: from, now: time.Now}
}

func (s *SMTPSender) dial() (*smtp.Client, error) {
	var (
		client *smtp.Client
		err    error
	)
	switch s.server.TLS {
	case TLSImplicit:
		client, err = smtp.DialTLS(s.server.HostPort, s.server.tlsConfig())
	case TLSStart:
		client, err = smtp.DialStartTLS(s.server.HostPort, s.server.tlsConfig())
	default:
		client, err = smtp.Dial(s.server.HostPort)
	}
	if err != nil {
		return nil, fmt.Errorf("could not connect to smtp server: %w", err)
	}
	if s.server.Hello != "" {
		if err := client.Hello(s.server.Hello); err != nil {
			client.Close()
			return nil, fmt.Errorf("could not greet upstream: %w", err)
		}
	}
	if s.server.User != "" || s.server.Password != "" {
		if err := client.Auth(sasl.NewPlainClient("", s.server.User, s.server.Password)); err != nil {
			client.Close()
			return nil, fmt.Errorf("AUTH failed: %w", err)
		}
	}
	return client, nil
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := s.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(s.from, nil); err != nil {
		return fmt.Errorf("smtp server rejected mail from '%s': %w", s.from, err)
	}
	if err := client.Rcpt(to, nil); err != nil {
		return fmt.Errorf("smtp server rejected mail to '%s': %w", to, err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp server rejected request to send mail data: %w", err)
	}
	if err := writeMessage(w, s.from, to, subject, body, s.now()); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp server rejected mail data: %w", err)
	}
	if err := client.Quit(); err != nil {
		var smtpErr *smtp.SMTPError
		// Some servers answer QUIT with 250 instead of 221.
		if errors.As(err, &smtpErr) && smtpErr.Code == 250 {
			return nil
		}
		return err
	}
	return nil
}

func writeMessage(w io.Writer, from, to, subject, body string, at time.Time) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\nTo: %s\r\nSubject: %s\r\nDate: %s\r\nMIME-Version: 1.0\r\n",
		from, to, mime.QEncoding.Encode("utf-8", subject), at.UTC().Format(time.RFC1123Z))
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\nContent-Transfer-Encoding: quoted-printable\r\n\r\n")
	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	if err := qp.Close(); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}
