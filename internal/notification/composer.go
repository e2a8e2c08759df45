package notification

import (
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"net/url"
	"os"
	texttemplate "text/template"

	"github.com/tendant/simple-idm-accounts/internal/config"
	"github.com/tendant/simple-idm-accounts/pkg/domain"
	"github.com/wneessen/go-mail"
)

//go:embed templates/*
var defaultTemplates embed.FS

// defaultSender is used when no sender is configured, which only happens
// when emails are logged rather than sent.
const defaultSender = "noreply@localhost"

// templateData is passed to every email template.
type templateData struct {
	AppName      string
	Email        string
	ActivationID string
	Link         string
}

type messageTemplates struct {
	subject string
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// Composer turns account events into email messages.
type Composer struct {
	cfg      config.EmailConfig
	baseURL  string
	messages map[domain.EventKind]messageTemplates
}

// NewComposer parses every configured template up front. Templates are read
// from cfg.TemplateDir when set, else from the embedded defaults.
func NewComposer(cfg config.EmailConfig, baseURL string) (*Composer, error) {
	var fsys fs.FS
	if cfg.TemplateDir != "" {
		fsys = os.DirFS(cfg.TemplateDir)
	} else {
		sub, err := fs.Sub(defaultTemplates, "templates")
		if err != nil {
			return nil, err
		}
		fsys = sub
	}

	byKind := map[domain.EventKind]config.EmailMessageConfig{
		domain.EventUserRegistration:          cfg.Registration,
		domain.EventResendRegistrationEmail:   cfg.Registration,
		domain.EventUserRegistrationConfirmed: cfg.AccountActivation,
		domain.EventPasswordResetRequest:      cfg.PasswordReset,
		domain.EventPasswordChanged:           cfg.PasswordChange,
		domain.EventMFAEnabled:                cfg.MFAEnabled,
		domain.EventMFADisabled:               cfg.MFADisabled,
	}

	c := &Composer{
		cfg:      cfg,
		baseURL:  baseURL,
		messages: make(map[domain.EventKind]messageTemplates, len(byKind)),
	}
	for kind, m := range byKind {
		tpl, err := parseMessage(fsys, m)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s templates: %w", kind, err)
		}
		c.messages[kind] = tpl
	}
	return c, nil
}

func parseMessage(fsys fs.FS, m config.EmailMessageConfig) (messageTemplates, error) {
	tpl := messageTemplates{subject: m.Subject}
	if m.HTMLTemplate != "" {
		t, err := htmltemplate.ParseFS(fsys, m.HTMLTemplate)
		if err != nil {
			return tpl, err
		}
		tpl.html = t
	}
	if m.TextTemplate != "" {
		t, err := texttemplate.ParseFS(fsys, m.TextTemplate)
		if err != nil {
			return tpl, err
		}
		tpl.text = t
	}
	if tpl.html == nil && tpl.text == nil {
		return tpl, fmt.Errorf("no html or text template configured")
	}
	return tpl, nil
}

// Compose builds the message for event. With both bodies configured the
// message is multipart/alternative with the plain text part first.
func (c *Composer) Compose(event domain.Event) (*mail.Msg, error) {
	tpl, ok := c.messages[event.Kind]
	if !ok {
		return nil, fmt.Errorf("no email configured for event %q", event.Kind)
	}

	sender := c.cfg.Sender
	if sender == "" {
		sender = defaultSender
	}

	msg := mail.NewMsg()
	if err := msg.From(sender); err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}
	if err := msg.To(event.Email); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(tpl.subject)

	data := templateData{
		AppName:      c.cfg.AppName,
		Email:        event.Email,
		ActivationID: event.ActivationID,
		Link:         c.link(event),
	}

	switch {
	case tpl.text != nil && tpl.html != nil:
		if err := msg.SetBodyTextTemplate(tpl.text, data); err != nil {
			return nil, err
		}
		if err := msg.AddAlternativeHTMLTemplate(tpl.html, data); err != nil {
			return nil, err
		}
	case tpl.html != nil:
		if err := msg.SetBodyHTMLTemplate(tpl.html, data); err != nil {
			return nil, err
		}
	default:
		if err := msg.SetBodyTextTemplate(tpl.text, data); err != nil {
			return nil, err
		}
	}

	return msg, nil
}

// link returns the confirmation URL carrying the activation id, if any.
func (c *Composer) link(event domain.Event) string {
	if event.ActivationID == "" {
		return ""
	}
	path := c.cfg.RegistrationConfirmPath
	if event.Kind == domain.EventPasswordResetRequest {
		path = c.cfg.PasswordResetConfirmPath
	}
	return c.baseURL + path + "?" + url.Values{"id": {event.ActivationID}}.Encode()
}
