package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/common"
)

// Attachment is a file carried alongside an email body
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// EmailChannel sends over SMTP. Port 465 dials implicit TLS, anything else
// upgrades with STARTTLS.
type EmailChannel struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
	timeout  time.Duration
	logger   arbor.ILogger

	// deliver is swapped in tests
	deliver func(ctx context.Context, from string, to []string, msg []byte) error
}

// NewEmailChannel returns nil when the sender credentials or recipients are missing
func NewEmailChannel(cfg *common.NotifyConfig, logger arbor.ILogger) *EmailChannel {
	if cfg.SMTPHost == "" || cfg.EmailFrom == "" || cfg.SMTPPassword == "" || len(cfg.EmailTo) == 0 {
		return nil
	}
	username := cfg.SMTPUsername
	if username == "" {
		username = cfg.EmailFrom
	}
	e := &EmailChannel{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: username,
		password: cfg.SMTPPassword,
		from:     cfg.EmailFrom,
		to:       cfg.EmailTo,
		timeout:  common.MustDuration(cfg.Timeout, 10*time.Second),
		logger:   logger,
	}
	e.deliver = e.smtpDeliver
	return e
}

func (e *EmailChannel) Name() string { return "email" }

// Send treats message as markdown and mails it with a plain and an HTML part
func (e *EmailChannel) Send(ctx context.Context, title, message string) error {
	return e.SendReport(ctx, title, message, nil)
}

// SendReport mails a markdown body with optional attachments
func (e *EmailChannel) SendReport(ctx context.Context, subject, markdownBody string, attachments []Attachment) error {
	fragment, err := RenderMarkdown(markdownBody)
	if err != nil {
		return err
	}

	msg, err := ComposeMessage(e.from, e.to, subject, markdownBody, WrapHTML(subject, fragment), attachments)
	if err != nil {
		return err
	}

	if err := e.deliver(ctx, e.from, e.to, msg); err != nil {
		return err
	}

	e.logger.Info().
		Strs("to", e.to).
		Str("subject", subject).
		Int("attachments", len(attachments)).
		Msg("Email sent")
	return nil
}

// ComposeMessage builds a multipart/mixed message holding a text/html
// alternative and any attachments
func ComposeMessage(from string, to []string, subject, textBody, htmlBody string, attachments []Attachment) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	recipients := make([]*mail.Address, 0, len(to))
	for _, addr := range to {
		recipients = append(recipients, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", recipients)
	h.SetSubject(subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail writer: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create inline part: %w", err)
	}
	for _, part := range []struct{ contentType, body string }{
		{"text/plain", textBody},
		{"text/html", htmlBody},
	} {
		var ih mail.InlineHeader
		ih.SetContentType(part.contentType, map[string]string{"charset": "utf-8"})
		w, err := iw.CreatePart(ih)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s part: %w", part.contentType, err)
		}
		if _, err := w.Write([]byte(part.body)); err != nil {
			return nil, fmt.Errorf("failed to write %s part: %w", part.contentType, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to close %s part: %w", part.contentType, err)
		}
	}
	if err := iw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close inline part: %w", err)
	}

	for _, att := range attachments {
		var ah mail.AttachmentHeader
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		ah.SetContentType(contentType, nil)
		ah.SetFilename(att.Filename)
		w, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment %s: %w", att.Filename, err)
		}
		if _, err := w.Write(att.Data); err != nil {
			return nil, fmt.Errorf("failed to write attachment %s: %w", att.Filename, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to close attachment %s: %w", att.Filename, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close mail writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *EmailChannel) smtpDeliver(ctx context.Context, from string, to []string, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	addr := net.JoinHostPort(e.host, strconv.Itoa(e.port))
	auth := smtp.PlainAuth("", e.username, e.password, e.host)

	if e.port == 465 {
		return e.sendWithTLS(ctx, addr, auth, from, to, msg)
	}
	return e.sendWithSTARTTLS(ctx, addr, auth, from, to, msg)
}

// sendWithTLS dials implicit TLS and falls back to STARTTLS when the handshake fails
func (e *EmailChannel) sendWithTLS(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: e.timeout},
		Config:    &tls.Config{ServerName: e.host},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		e.logger.Warn().Err(err).Str("addr", addr).Msg("TLS dial failed, retrying with STARTTLS")
		return e.sendWithSTARTTLS(ctx, addr, auth, from, to, msg)
	}
	defer conn.Close()
	setDeadline(ctx, conn)

	client, err := smtp.NewClient(conn, e.host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	return transmit(client, auth, from, to, msg)
}

func (e *EmailChannel) sendWithSTARTTLS(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	dialer := &net.Dialer{Timeout: e.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()
	setDeadline(ctx, conn)

	client, err := smtp.NewClient(conn, e.host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: e.host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	return transmit(client, auth, from, to, msg)
}

func setDeadline(ctx context.Context, conn net.Conn) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
}

func transmit(client *smtp.Client, auth smtp.Auth, from string, to []string, msg []byte) error {
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}

	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set mail recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}

	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}
