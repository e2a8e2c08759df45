package notification

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/tendant/simple-idm-accounts/internal/config"
	"github.com/wneessen/go-mail"
	"golang.org/x/net/proxy"
)

// Sender delivers composed messages.
type Sender interface {
	Send(ctx context.Context, msg *mail.Msg) error
}

// Mailer sends messages over SMTP, optionally through a SOCKS5 proxy.
type Mailer struct {
	client *mail.Client
}

// NewMailer configures an SMTP client from cfg. With SSL enabled the
// connection is implicit TLS, otherwise STARTTLS is used when offered.
func NewMailer(cfg config.EmailConfig) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
	}

	if cfg.UseSSL {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	if cfg.SMTPPassword != "" {
		user := cfg.SMTPUser
		if user == "" {
			user = cfg.Sender
		}
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(user),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}

	if cfg.ProxyServer != "" {
		dial, err := socks5Dialer(cfg.ProxyServer, cfg.ProxyPort)
		if err != nil {
			return nil, err
		}
		opts = append(opts, mail.WithDialContextFunc(dial))
	}

	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	return &Mailer{client: client}, nil
}

// Send delivers msg.
func (m *Mailer) Send(ctx context.Context, msg *mail.Msg) error {
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func socks5Dialer(host string, port int) (mail.DialContextFunc, error) {
	d, err := proxy.SOCKS5("tcp", net.JoinHostPort(host, strconv.Itoa(port)), nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 dialer does not support contexts")
	}
	return cd.DialContext, nil
}

// LogMailer logs messages instead of sending them.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a mailer that only logs.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the message headers and body.
func (m *LogMailer) Send(ctx context.Context, msg *mail.Msg) error {
	var body strings.Builder
	if _, err := msg.WriteTo(&body); err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}
	m.logger.InfoContext(ctx, "email not sent (EMAIL_SEND=false)",
		"to", msg.GetToString(),
		"subject", msg.GetGenHeader(mail.HeaderSubject),
		"message", body.String(),
	)
	return nil
}
