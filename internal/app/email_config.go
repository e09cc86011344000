package app

import (
	"fmt"
	"strings"

	"github.com/charlesng35/get2knowme/internal/notifications"
	"github.com/charlesng35/get2knowme/pkg/mail"
)

// Supported email providers.
const (
	EmailProviderPostmark = "postmark"
	EmailProviderSMTP     = "smtp"
)

// SMTPSettings converts EmailConfig to the mail package representation.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.SMTP.Enabled,
		Host:     strings.TrimSpace(c.SMTP.Host),
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.From,
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}

// PostmarkSettings converts EmailConfig to the Postmark transport settings.
func (c EmailConfig) PostmarkSettings() mail.PostmarkSettings {
	return mail.PostmarkSettings{
		ServerToken:   strings.TrimSpace(c.Postmark.ServerToken),
		From:          c.From,
		MessageStream: c.Postmark.MessageStream,
		Endpoint:      strings.TrimSpace(c.Postmark.Endpoint),
		Timeout:       c.Postmark.Timeout,
	}
}

// NotificationConfig converts EmailConfig into notification template settings.
func (c EmailConfig) NotificationConfig() notifications.Config {
	return notifications.Config{
		From:         c.From,
		ProductName:  c.ProductName,
		SupportEmail: c.SupportEmail,
	}
}

// ResolvedProvider returns the provider that will be used. Without an explicit
// choice Postmark wins when a server token is set, then SMTP when enabled.
func (c EmailConfig) ResolvedProvider() string {
	provider := strings.ToLower(strings.TrimSpace(c.Provider))
	if provider != "" {
		return provider
	}
	switch {
	case strings.TrimSpace(c.Postmark.ServerToken) != "":
		return EmailProviderPostmark
	case c.SMTP.Enabled:
		return EmailProviderSMTP
	default:
		return ""
	}
}

// NewMailer builds the configured transport. It returns a nil mailer and no error
// when no provider is configured; the notification service then reports
// notifications.ErrNotConfigured on every send.
func (c EmailConfig) NewMailer() (mail.Mailer, error) {
	switch provider := c.ResolvedProvider(); provider {
	case "":
		return nil, nil
	case EmailProviderPostmark:
		if strings.TrimSpace(c.Postmark.ServerToken) == "" {
			return nil, nil
		}
		return mail.NewPostmarkMailer(c.PostmarkSettings())
	case EmailProviderSMTP:
		if !c.SMTP.Enabled {
			return nil, nil
		}
		return mail.NewSMTPMailer(c.SMTPSettings())
	default:
		return nil, fmt.Errorf("email: unsupported provider %q", provider)
	}
}
