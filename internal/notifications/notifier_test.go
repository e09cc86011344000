package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/get2knowme/pkg/mail"
)

type recordingMailer struct {
	messages []mail.Message
	err      error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) (mail.Receipt, error) {
	if m.err != nil {
		return mail.Receipt{}, m.err
	}
	m.messages = append(m.messages, msg)
	return mail.Receipt{Provider: "test", MessageID: "msg-1", SubmittedAt: time.Now()}, nil
}

func TestSendRendersEveryKind(t *testing.T) {
	mailer := &recordingMailer{}
	svc, err := NewService(mailer, Config{From: "noreply@get2knowme.test", SupportEmail: "help@get2knowme.test"})
	require.NoError(t, err)

	link := "https://get2knowme.test/confirm-email?token=abc_DEF-123"
	for _, kind := range []Kind{KindEmailConfirmation, KindConsent, KindPasswordReset} {
		receipt, err := svc.Send(context.Background(), "a@b.com", kind, link)
		require.NoError(t, err)
		require.Equal(t, "msg-1", receipt.MessageID)
	}

	require.Len(t, mailer.messages, 3)
	for _, msg := range mailer.messages {
		require.Equal(t, []string{"a@b.com"}, msg.To)
		require.Equal(t, "noreply@get2knowme.test", msg.From)
		require.NotEmpty(t, msg.Subject)
		require.Contains(t, msg.Body, link)
		require.Contains(t, msg.HTMLBody, link)
		require.Contains(t, msg.Body, "help@get2knowme.test")
	}
	require.Equal(t, string(KindConsent), mailer.messages[1].Tag)
}

func TestSendEscapesRecipientInHTML(t *testing.T) {
	mailer := &recordingMailer{}
	svc, err := NewService(mailer, Config{})
	require.NoError(t, err)

	_, err = svc.Send(context.Background(), "<script>@b.com", KindEmailConfirmation, "https://x.test/confirm-email?token=t")
	require.NoError(t, err)
	require.NotContains(t, mailer.messages[0].HTMLBody, "<script>")
	require.Contains(t, mailer.messages[0].Body, "Get2KnowMe")
}

func TestSendWithoutMailerIsConfigurationError(t *testing.T) {
	svc, err := NewService(nil, Config{})
	require.ErrorIs(t, err, ErrNotConfigured)
	require.False(t, svc.Configured())

	_, err = svc.Send(context.Background(), "a@b.com", KindConsent, "https://x.test/parental-consent?token=t")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestSendMapsMissingCredentialToConfigurationError(t *testing.T) {
	svc, err := NewService(&recordingMailer{err: mail.ErrMissingServerToken}, Config{})
	require.NoError(t, err)

	_, err = svc.Send(context.Background(), "a@b.com", KindConsent, "https://x.test/parental-consent?token=t")
	require.ErrorIs(t, err, ErrNotConfigured)

	var delivery *DeliveryError
	require.False(t, errors.As(err, &delivery))
}

func TestSendWrapsTransportFailure(t *testing.T) {
	cause := errors.New("connection reset")
	svc, err := NewService(&recordingMailer{err: cause}, Config{})
	require.NoError(t, err)

	_, err = svc.Send(context.Background(), "a@b.com", KindPasswordReset, "https://x.test/reset-password?token=t")
	require.ErrorIs(t, err, cause)

	var delivery *DeliveryError
	require.ErrorAs(t, err, &delivery)
	require.Equal(t, KindPasswordReset, delivery.Kind)
}

func TestSendRejectsUnknownKindAndBlankInput(t *testing.T) {
	mailer := &recordingMailer{}
	svc, err := NewService(mailer, Config{})
	require.NoError(t, err)

	_, err = svc.Send(context.Background(), "a@b.com", Kind("newsletter"), "https://x.test")
	require.ErrorIs(t, err, ErrUnknownKind)

	_, err = svc.Send(context.Background(), " ", KindConsent, "https://x.test")
	require.Error(t, err)

	_, err = svc.Send(context.Background(), "a@b.com", KindConsent, "")
	require.Error(t, err)

	require.Empty(t, mailer.messages)
}
