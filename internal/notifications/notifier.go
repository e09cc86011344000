// Package notifications renders transactional emails for the registration
// workflow and hands them to the configured mail transport.
package notifications

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/get2knowme/pkg/logger"
	"github.com/charlesng35/get2knowme/pkg/mail"
	"github.com/charlesng35/get2knowme/pkg/metrics"
)

// Kind selects the email template.
type Kind string

const (
	KindPasswordReset     Kind = "passwordReset"
	KindConsent           Kind = "consent"
	KindEmailConfirmation Kind = "emailConfirmation"
)

var (
	// ErrNotConfigured is returned when no mail provider credential is available.
	ErrNotConfigured = errors.New("notifications: email provider is not configured")
	// ErrUnknownKind is returned for a template kind outside the supported set.
	ErrUnknownKind = errors.New("notifications: unknown template kind")
)

// DeliveryError wraps a transport failure.
type DeliveryError struct {
	Kind Kind
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notifications: deliver %s: %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Config controls sender identity and template text.
type Config struct {
	From         string
	ProductName  string
	SupportEmail string
}

// Sender is the capability the workflow depends on.
type Sender interface {
	Send(ctx context.Context, recipient string, kind Kind, link string) (mail.Receipt, error)
}

// Service renders templates and submits them through a mail.Mailer.
type Service struct {
	mailer mail.Mailer
	cfg    Config
}

// NewService constructs the notification adapter. A nil mailer yields a
// service whose every Send fails with ErrNotConfigured; the returned error
// reports that condition at construction time so callers can log it.
func NewService(mailer mail.Mailer, cfg Config) (*Service, error) {
	if strings.TrimSpace(cfg.ProductName) == "" {
		cfg.ProductName = "Get2KnowMe"
	}
	svc := &Service{mailer: mailer, cfg: cfg}
	if mailer == nil {
		return svc, ErrNotConfigured
	}
	return svc, nil
}

// Configured reports whether a transport is available.
func (s *Service) Configured() bool {
	return s != nil && s.mailer != nil
}

// Send renders the template for kind and submits it to recipient.
func (s *Service) Send(ctx context.Context, recipient string, kind Kind, link string) (mail.Receipt, error) {
	if !s.Configured() {
		metrics.NotificationsSent.WithLabelValues(string(kind), "unconfigured").Inc()
		return mail.Receipt{}, ErrNotConfigured
	}

	tmpl, ok := templates[kind]
	if !ok {
		return mail.Receipt{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return mail.Receipt{}, errors.New("notifications: recipient is required")
	}
	if strings.TrimSpace(link) == "" {
		return mail.Receipt{}, errors.New("notifications: link is required")
	}

	msg, err := s.render(tmpl, recipient, kind, link)
	if err != nil {
		return mail.Receipt{}, err
	}

	receipt, err := s.mailer.Send(ctx, msg)
	if err != nil {
		if errors.Is(err, mail.ErrMissingServerToken) || errors.Is(err, mail.ErrSMTPDisabled) {
			metrics.NotificationsSent.WithLabelValues(string(kind), "unconfigured").Inc()
			return mail.Receipt{}, fmt.Errorf("%w: %v", ErrNotConfigured, err)
		}
		metrics.NotificationsSent.WithLabelValues(string(kind), "failed").Inc()
		logger.WithModule("notifications").Warn("email delivery failed",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return mail.Receipt{}, &DeliveryError{Kind: kind, Err: err}
	}

	metrics.NotificationsSent.WithLabelValues(string(kind), "sent").Inc()
	logger.WithModule("notifications").Debug("email submitted",
		zap.String("kind", string(kind)),
		zap.String("provider", receipt.Provider),
		zap.String("message_id", receipt.MessageID),
	)
	return receipt, nil
}

func (s *Service) render(tmpl messageTemplate, recipient string, kind Kind, link string) (mail.Message, error) {
	data := templateData{
		Product:   s.cfg.ProductName,
		Recipient: recipient,
		Link:      link,
		Support:   s.cfg.SupportEmail,
	}

	var text, html bytes.Buffer
	if err := tmpl.text.Execute(&text, data); err != nil {
		return mail.Message{}, fmt.Errorf("notifications: render %s text: %w", kind, err)
	}
	if err := tmpl.html.Execute(&html, data); err != nil {
		return mail.Message{}, fmt.Errorf("notifications: render %s html: %w", kind, err)
	}

	return mail.Message{
		From:     s.cfg.From,
		To:       []string{recipient},
		Subject:  tmpl.subject,
		Body:     text.String(),
		HTMLBody: html.String(),
		Tag:      string(kind),
	}, nil
}
