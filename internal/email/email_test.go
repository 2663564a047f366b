package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
		want    any
	}{
		{"default", Options{}, false, &LogSender{}},
		{"log", Options{Driver: DriverLog}, false, &LogSender{}},
		{"smtp", Options{Driver: DriverSMTP, SMTP: SMTPServer{HostPort: "localhost:25"}}, false, &SMTPSender{}},
		{"smtp without host", Options{Driver: DriverSMTP}, true, nil},
		{"sendgrid", Options{Driver: DriverSendGrid, SendGridAPIKey: "key"}, false, &SendGridSender{}},
		{"sendgrid without key", Options{Driver: DriverSendGrid}, true, nil},
		{"unknown", Options{Driver: "carrier-pigeon"}, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.opts, zap.NewNop())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, s)
		})
	}
}

func TestLogSender(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSender(zap.New(core))
	require.NoError(t, s.Send(context.Background(), "a@example.com", "hi", "body"))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "a@example.com", fields["to"])
	assert.Equal(t, "hi", fields["subject"])
}

func TestWriteMessage(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, writeMessage(&buf, "from@example.com", "to@example.com", "Join Acme", "hello = world", at))
	msg := buf.String()
	assert.Contains(t, msg, "From: from@example.com\r\n")
	assert.Contains(t, msg, "To: to@example.com\r\n")
	assert.Contains(t, msg, "Subject: Join Acme\r\n")
	assert.Contains(t, msg, "Date: Tue, 02 Jan 2024 03:04:05 +0000\r\n")
	assert.Contains(t, msg, "hello =3D world")
}

type smtpBackend struct {
	mu   sync.Mutex
	from string
	to   []string
	data string
}

func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{b: b}, nil
}

type smtpSession struct{ b *smtpBackend }

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.from = from
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.to = append(s.b.to, to)
	return nil
}

func (s *smtpSession) Data(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.data = string(b)
	return nil
}

func (s *smtpSession) Reset()        {}
func (s *smtpSession) Logout() error { return nil }

func TestSMTPSender(t *testing.T) {
	be := &smtpBackend{}
	srv := smtp.NewServer(be)
	srv.Domain = "localhost"
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })

	s := NewSMTPSender(SMTPServer{HostPort: l.Addr().String(), TLS: TLSNone}, "noreply@example.com")
	require.NoError(t, s.Send(context.Background(), "invitee@example.com", "Join Acme", "click the link"))

	be.mu.Lock()
	defer be.mu.Unlock()
	assert.Equal(t, "noreply@example.com", be.from)
	assert.Equal(t, []string{"invitee@example.com"}, be.to)
	assert.Contains(t, be.data, "Subject: Join Acme")
	assert.Contains(t, be.data, "click the link")
}

func TestSMTPSender_Unreachable(t *testing.T) {
	s := NewSMTPSender(SMTPServer{HostPort: "127.0.0.1:1"}, "noreply@example.com")
	err := s.Send(context.Background(), "a@example.com", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not connect")
}

func TestSMTPServer_TLSConfig(t *testing.T) {
	tests := []struct {
		hostPort string
		want     string
	}{
		{"smtp.example.com:587", "smtp.example.com"},
		{"[::1]:465", "::1"},
		{"relay.internal", "relay.internal"},
	}
	for _, tt := range tests {
		t.Run(tt.hostPort, func(t *testing.T) {
			cfg := SMTPServer{HostPort: tt.hostPort}.tlsConfig()
			assert.Equal(t, tt.want, cfg.ServerName)
			assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
			assert.False(t, cfg.InsecureSkipVerify)
		})
	}
}

func TestSendGridSender(t *testing.T) {
	var gotPath, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSendGridSender("sg-key", "noreply@example.com", "Org Auth")
	s.host = srv.URL
	require.NoError(t, s.Send(context.Background(), "a@example.com", "Reset", "reset body"))
	assert.Equal(t, "/v3/mail/send", gotPath)
	assert.Equal(t, "Bearer sg-key", gotAuth)
	assert.Contains(t, gotBody, "a@example.com")
	assert.Contains(t, gotBody, "reset body")
}

func TestSendGridSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	s := NewSendGridSender("bad", "noreply@example.com", "")
	s.host = srv.URL
	err := s.Send(context.Background(), "a@example.com", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestInvitationMessage(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	link := Links{BaseURL: "https://app.example.com/"}.InvitationLink("tok+/=")
	subject, body := InvitationMessage("Acme", "admin@example.com", link, now, now.Add(7*24*time.Hour))

	assert.Equal(t, "You're invited to join Acme", subject)
	assert.Contains(t, body, "admin@example.com has invited you to join Acme")
	assert.Contains(t, body, "https://app.example.com/invitations/accept?token=tok%2B%2F%3D")
	assert.Contains(t, body, "from now")
	assert.True(t, strings.HasSuffix(body, "\n"))
}

func TestPasswordResetMessage(t *testing.T) {
	link := Links{BaseURL: "https://app.example.com"}.PasswordResetLink("abc")
	subject, body := PasswordResetMessage(link, 30*time.Minute)
	assert.Equal(t, "Reset your password", subject)
	assert.Contains(t, body, "https://app.example.com/password/reset?token=abc")
	assert.Contains(t, body, "minutes from now")
}
