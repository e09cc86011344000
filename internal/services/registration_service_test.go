package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/charlesng35/get2knowme/internal/auth"
	"github.com/charlesng35/get2knowme/internal/models"
	"github.com/charlesng35/get2knowme/internal/notifications"
	"github.com/charlesng35/get2knowme/internal/store"
	"github.com/charlesng35/get2knowme/pkg/crypto"
)

type registrationFixture struct {
	svc      *RegistrationService
	store    *store.GormStore
	notifier *fakeNotifier
	clock    *testClock
}

func newRegistrationFixture(t *testing.T, opts ...RegistrationOption) registrationFixture {
	t.Helper()

	st := newTestStore(t)
	notifier := &fakeNotifier{}
	clock := newTestClock()

	base := []RegistrationOption{
		WithRegistrationClock(clock.Now),
		WithRegistrationBaseURL("https://get2knowme.test/"),
		WithConfirmationTTL(time.Hour),
		WithConsentTTL(48 * time.Hour),
		WithRegistrationBcryptCost(bcrypt.MinCost),
	}
	svc, err := NewRegistrationService(st, notifier, append(base, opts...)...)
	require.NoError(t, err)

	return registrationFixture{svc: svc, store: st, notifier: notifier, clock: clock}
}

func selfInput(email, username string) RegistrationInput {
	return RegistrationInput{
		Email:         email,
		Username:      username,
		Password:      "correct horse battery",
		AgreedToTerms: true,
		AgeConfirmed:  true,
		IPAddress:     "198.51.100.4",
		UserAgent:     "registration-test",
	}
}

func childInput(email, username, guardian string) RegistrationInput {
	return RegistrationInput{
		Email:         email,
		Username:      username,
		Password:      "correct horse battery",
		GuardianEmail: guardian,
		AgreedToTerms: true,
	}
}

func TestNewRegistrationServiceRequiresDependencies(t *testing.T) {
	_, err := NewRegistrationService(nil, &fakeNotifier{})
	require.Error(t, err)

	_, err = NewRegistrationService(newTestStore(t), nil)
	require.Error(t, err)
}

func TestBeginRegistrationSelfDispatchesConfirmationLink(t *testing.T) {
	fx := newRegistrationFixture(t)
	ctx := context.Background()

	result, err := fx.svc.BeginRegistration(ctx, selfInput("a@b.com", "kid1"))
	require.NoError(t, err)
	require.Equal(t, PendingKindConfirmation, result.Kind)
	require.NotEmpty(t, result.Token)
	require.NotEmpty(t, result.PendingID)
	require.Equal(t, time.Hour, result.ExpiresAt.Sub(result.CreatedAt))
	require.Equal(t, "fake-1", result.Receipt.MessageID)
	require.Equal(t, "https://get2knowme.test/confirm-email?token="+result.Token, result.Link)

	sent := fx.notifier.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "a@b.com", sent[0].Recipient)
	require.Equal(t, notifications.KindEmailConfirmation, sent[0].Kind)
	require.Contains(t, sent[0].Link, result.Token)

	pending, err := fx.store.FindPendingConfirmation(ctx, crypto.HashToken(result.Token), fx.clock.Now())
	require.NoError(t, err)
	require.Equal(t, "kid1", pending.Username)
	require.Equal(t, "a@b.com", pending.Email)
	require.Equal(t, time.Hour, pending.ExpiresAt.Sub(pending.CreatedAt))
	require.NotEqual(t, "correct horse battery", pending.PasswordHash)
	require.True(t, crypto.VerifyPassword(pending.PasswordHash, "correct horse battery"))
	require.Equal(t, "198.51.100.4", pending.Consent.IPAddress)
}

func TestBeginRegistrationNormalisesIdentifiers(t *testing.T) {
	fx := newRegistrationFixture(t)

	result, err := fx.svc.BeginRegistration(context.Background(), selfInput("  Mixed@Example.COM ", " Reader.One "))
	require.NoError(t, err)
	require.Equal(t, "mixed@example.com", result.Recipient)

	pending, err := fx.store.FindPendingConfirmation(context.Background(), crypto.HashToken(result.Token), fx.clock.Now())
	require.NoError(t, err)
	require.Equal(t, "reader.one", pending.Username)
}

func TestBeginRegistrationGuardianDispatchesConsentLink(t *testing.T) {
	fx := newRegistrationFixture(t)
	ctx := context.Background()

	result, err := fx.svc.BeginRegistration(ctx, childInput("kid@example.com", "kid2", "Parent@Example.com"))
	require.NoError(t, err)
	require.Equal(t, PendingKindConsent, result.Kind)
	require.Equal(t, "parent@example.com", result.Recipient)
	require.Equal(t, 48*time.Hour, result.ExpiresAt.Sub(result.CreatedAt))
	require.True(t, strings.HasPrefix(result.Link, "https://get2knowme.test/parental-consent?token="))

	sent := fx.notifier.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "parent@example.com", sent[0].Recipient)
	require.Equal(t, notifications.KindConsent, sent[0].Kind)
	require.Contains(t, sent[0].Link, result.Token)

	pending, err := fx.store.FindPendingRegistration(ctx, crypto.HashToken(result.Token), fx.clock.Now())
	require.NoError(t, err)
	require.Equal(t, "kid2", pending.ChildUsername)
	require.Equal(t, "parent@example.com", pending.ParentEmail)
}

func TestBeginRegistrationRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name  string
		input RegistrationInput
		field string
	}{
		{name: "age not confirmed", input: func() RegistrationInput { in := selfInput("a@b.com", "kid1"); in.AgeConfirmed = false; return in }(), field: "ageConfirmed"},
		{name: "terms not accepted", input: func() RegistrationInput { in := selfInput("a@b.com", "kid1"); in.AgreedToTerms = false; return in }(), field: "agreedToTerms"},
		{name: "bad email", input: selfInput("not-an-email", "kid1"), field: "email"},
		{name: "short username", input: selfInput("a@b.com", "ab"), field: "username"},
		{name: "username charset", input: selfInput("a@b.com", "kid one"), field: "username"},
		{name: "short password", input: func() RegistrationInput { in := selfInput("a@b.com", "kid1"); in.Password = "short"; return in }(), field: "password"},
		{name: "password beyond bcrypt limit", input: func() RegistrationInput { in := selfInput("a@b.com", "kid1"); in.Password = strings.Repeat("p", 100); return in }(), field: "password"},
		{name: "multi-byte password beyond bcrypt limit", input: func() RegistrationInput { in := selfInput("a@b.com", "kid1"); in.Password = strings.Repeat("é", 40); return in }(), field: "password"},
		{name: "guardian equals child", input: childInput("kid@example.com", "kid2", "KID@example.com"), field: "guardianEmail"},
		{name: "guardian without terms", input: func() RegistrationInput { in := childInput("kid@example.com", "kid2", "p@example.com"); in.AgreedToTerms = false; return in }(), field: "agreedToTerms"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newRegistrationFixture(t)

			_, err := fx.svc.BeginRegistration(context.Background(), tc.input)
			require.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Contains(t, verr.Fields, tc.field)
			require.Empty(t, fx.notifier.Sent())

			taken, err := fx.store.UsernameTaken(context.Background(), normalizeUsername(tc.input.Username), fx.clock.Now())
			require.NoError(t, err)
			require.False(t, taken, "rejected input leaves no pending record")
		})
	}
}

func TestBeginRegistrationRejectsTakenUsernameAndEmail(t *testing.T) {
	fx := newRegistrationFixture(t)
	ctx := context.Background()

	_, err := fx.svc.BeginRegistration(ctx, selfInput("first@example.com", "taken"))
	require.NoError(t, err)

	_, err = fx.svc.BeginRegistration(ctx, selfInput("second@example.com", "taken"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "username")

	_, err = fx.svc.BeginRegistration(ctx, childInput("first@example.com", "other", "parent@example.com"))
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "email")
}

func TestBeginRegistrationAllowsReuseAfterExpiry(t *testing.T) {
	fx := newRegistrationFixture(t)
	ctx := context.Background()

	_, err := fx.svc.BeginRegistration(ctx, selfInput("again@example.com", "again"))
	require.NoError(t, err)

	fx.clock.Advance(time.Hour)

	_, err = fx.svc.BeginRegistration(ctx, selfInput("again@example.com", "again"))
	require.NoError(t, err)
}

func TestBeginRegistrationConcurrentUsernameOneWins(t *testing.T) {
	fx := newRegistrationFixture(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		errs    = make([]error, 2)
		emails  = []string{"one@example.com", "two@example.com"}
		barrier = make(chan struct{})
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-barrier
			_, errs[i] = fx.svc.BeginRegistration(ctx, selfInput(emails[i], "contested"))
		}(i)
	}
	close(barrier)
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrValidation):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, rejected)
	require.Len(t, fx.notifier.Sent(), 1)
}

// checkThenWaitStore holds every caller after its availability checks until
// all expected callers have passed them, so inserts race on the same name.
type checkThenWaitStore struct {
	store.Store
	checked *sync.WaitGroup
}

func (s checkThenWaitStore) EmailTaken(ctx context.Context, email string, now time.Time) (bool, error) {
	taken, err := s.Store.EmailTaken(ctx, email, now)
	s.checked.Done()
	s.checked.Wait()
	return taken, err
}

func TestBeginRegistrationConcurrentVariantsShareUsername(t *testing.T) {
	st := newTestStore(t)
	clock := newTestClock()
	notifier := &fakeNotifier{}

	checked := &sync.WaitGroup{}
	checked.Add(2)
	svc, err := NewRegistrationService(checkThenWaitStore{Store: st, checked: checked}, notifier,
		WithRegistrationClock(clock.Now),
		WithRegistrationBcryptCost(bcrypt.MinCost),
	)
	require.NoError(t, err)
	ctx := context.Background()

	inputs := []RegistrationInput{
		selfInput("one@example.com", "contested"),
		childInput("two@example.com", "contested", "parent@example.com"),
	}
	results := make([]*RegistrationResult, len(inputs))
	errs := make([]error, len(inputs))

	var wg sync.WaitGroup
	for i := range inputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.BeginRegistration(ctx, inputs[i])
		}(i)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "only one registration may hold the username")
			winner = i
			continue
		}
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	}
	require.NotEqual(t, -1, winner)
	require.Len(t, notifier.Sent(), 1)

	if results[winner].Kind == PendingKindConsent {
		_, err = svc.ApproveConsent(ctx, results[winner].Token)
	} else {
		_, err = svc.ConfirmEmail(ctx, results[winner].Token)
	}
	require.NoError(t, err)

	user, err := st.FindUserByUsername(ctx, "contested")
	require.NoError(t, err)
	require.Equal(t, inputs[winner].Email, user.Email)
}

func TestConfirmEmailCreatesAccountOnce(t *testing.T) {
	fx := newRegistrationFixture(t)
	ctx := context.Background()

	result, err := fx.svc.BeginRegistration(ctx, selfInput("a@b.com", "kid1"))
	require.NoError(t, err)

	fx.clock.Advance(10 * time.Minute)
	account, err := fx.svc.ConfirmEmail(ctx, result.Token)
	require.NoError(t, err)
	require.NotEmpty(t, account.ID)
	require.Equal(t, "kid1", account.Username)
	require.Equal(t, "a@b.com", account.Email)
	require.False(t, account.IsChild)
	require.Equal(t, models.ConsentedBySelf, account.ConsentedBy)
	require.Empty(t, account.AccessToken)

	_, err = fx.svc.ConfirmEmail(ctx, result.Token)
	require.ErrorIs(t, err, ErrTokenNotFound)

	user, err := fx.store.FindUserByUsername(ctx, "kid1")
	require.NoError(t, err)
	require.True(t, user.Consent.Granted())
	require.True(t, crypto.VerifyPassword(user.PasswordHash, "correct horse battery"))

	_, err = fx.store.FindPendingConfirmation(ctx, crypto.HashToken(result.Token), fx.clock.Now())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestConfirmEmailIssuesAccessToken(t *testing.T) {
	clock := newTestClock()
	tokens, err := auth.NewJWTService(auth.JWTConfig{Secret: "jwt-secret", Issuer: "get2knowme", AccessTokenTTL: time.Hour, Clock: clock.Now})
	require.NoError(t, err)

	fx := newRegistrationFixture(t, WithAccessTokens(tokens), WithRegistrationClock(clock.Now))
	ctx := context.Background()

	result, err := fx.svc.BeginRegistration(ctx, selfInput("jwt@example.com", "jwtuser"))
	require.NoError(t, err)

	account, err := fx.svc.ConfirmEmail(ctx, result.Token)
	require.NoError(t, err)
	require.NotEmpty(t, account.AccessToken)
	require.Equal(t, clock.Now().Add(time.Hour), account.TokenExpiresAt)

	claims, err := tokens.ValidateAccessToken(account.AccessToken)
	require.NoError(t, err)
	require.Equal(t, account.ID, claims.UserID)
	require.Equal(t, "jwtuser", claims.Username)
}

type failingIssuer struct{}

func (failingIssuer) GenerateAccessToken(auth.AccessTokenInput) (string, error) {
	return "", errors.New("signing key unavailable")
}

func (failingIssuer) TTL() time.Duration { return time.Hour }

func TestConfirmEmailReturnsAccountWhenTokenSigningFails(t *testing.T) {
	fx := newRegistrationFixture(t, WithAccessTokens(failingIssuer{}))
	ctx := context.Background()

	result, err := fx.svc.BeginRegistration(ctx, selfInput("unsigned@example.com", "unsigned"))
	require.NoError(t, err)

	account, err := fx.svc.ConfirmEmail(ctx, result.Token)
	require.NoError(t, err)
	require.NotEmpty(t, account.ID)
	require.Equal(t, "unsigned", account.Username)
	require.Empty(t, account.AccessToken)
	require.True(t, account.TokenExpiresAt.IsZero())

	_, err = fx.svc.ConfirmEmail(ctx, result.Token)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestConfirmEmailRejectsExpiredAndUnknownTokens(t *testing.T) {
	fx := newRegistrationFixture(t)
	ctx := context.Background()

	result, err := fx.svc.BeginRegistration(ctx, selfInput("late@example.com", "late"))
	require.NoError(t, err)

	fx.clock.Advance(time.Hour)
	_, err = fx.svc.ConfirmEmail(ctx, result.Token)
	require.ErrorIs(t, err, ErrTokenNotFound)

	_, err = fx.svc.ConfirmEmail(ctx, "never-issued")
	require.ErrorIs(t, err, ErrTokenNotFound)

	_, err = fx.svc.ConfirmEmail(ctx, "   ")
	require.ErrorIs(t, err, ErrTokenNotFound)

	_, err = fx.store.FindUserByUsername(ctx, "late")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestConfirmEmailNeverPromotesWithoutConsent(t *testing.T) {
	fx := newRegistrationFixture(t)
	ctx := context.Background()

	token := "stored-without-age-confirmation"
	now := fx.clock.Now()
	require.NoError(t, fx.store.CreatePendingConfirmation(ctx, &models.PendingConfirmation{
		BaseModel:    models.BaseModel{CreatedAt: now},
		Email:        "noage@example.com",
		Username:     "noage",
		PasswordHash: "hash",
		Consent:      models.ConsentRecord{AgreedToTerms: true, AgeConfirmed: false},
		TokenHash:    crypto.HashToken(token),
		ExpiresAt:    now.Add(time.Hour),
	}))

	_, err := fx.svc.ConfirmEmail(ctx, token)
	require.ErrorIs(t, err, ErrValidation)

	_, err = fx.store.FindUserByUsername(ctx, "noage")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestApproveConsentCreatesChildAccount(t *testing.T) {
	fx := newRegistrationFixture(t)
	ctx := context.Background()

	result, err := fx.svc.BeginRegistration(ctx, childInput("child@example.com", "kid3", "guardian@example.com"))
	require.NoError(t, err)

	account, err := fx.svc.ApproveConsent(ctx, result.Token)
	require.NoError(t, err)
	require.True(t, account.IsChild)
	require.Equal(t, models.ConsentedByGuardian, account.ConsentedBy)

	user, err := fx.store.FindUserByUsername(ctx, "kid3")
	require.NoError(t, err)
	require.Equal(t, "guardian@example.com", user.ParentEmail)
	require.Equal(t, "child@example.com", user.Email)
	require.False(t, user.Consent.AgeConfirmed, "the child never confirmed their age")
	require.True(t, user.Consent.GuardianGranted())
	require.True(t, user.Consent.GuardianApprovedAt.Equal(fx.clock.Now()))

	_, err = fx.svc.ApproveConsent(ctx, result.Token)
	require.ErrorIs(t, err, ErrTokenNotFound)

	require.ErrorIs(t, fx.svc.DeclineConsent(ctx, result.Token), ErrTokenNotFound)
}

func TestDeclineConsentDeletesWithoutAccount(t *testing.T) {
	fx := newRegistrationFixture(t)
	ctx := context.Background()

	result, err := fx.svc.BeginRegistration(ctx, childInput("child@example.com", "kid4", "guardian@example.com"))
	require.NoError(t, err)

	require.NoError(t, fx.svc.DeclineConsent(ctx, result.Token))

	_, err = fx.store.FindPendingRegistration(ctx, crypto.HashToken(result.Token), fx.clock.Now())
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = fx.store.FindUserByUsername(ctx, "kid4")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.ErrorIs(t, fx.svc.DeclineConsent(ctx, result.Token), ErrTokenNotFound)
	_, err = fx.svc.ApproveConsent(ctx, result.Token)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestDeclineConsentExpired(t *testing.T) {
	fx := newRegistrationFixture(t)
	ctx := context.Background()

	result, err := fx.svc.BeginRegistration(ctx, childInput("child@example.com", "kid5", "guardian@example.com"))
	require.NoError(t, err)

	fx.clock.Advance(48 * time.Hour)
	require.ErrorIs(t, fx.svc.DeclineConsent(ctx, result.Token), ErrTokenNotFound)
}

type failingDeleteStore struct {
	store.Store
}

func (failingDeleteStore) DeletePendingRegistration(context.Context, string) error {
	return errors.New("storage unavailable")
}

func TestDeclineConsentReportsSuccessWhenDeleteFails(t *testing.T) {
	st := newTestStore(t)
	clock := newTestClock()
	notifier := &fakeNotifier{}
	svc, err := NewRegistrationService(failingDeleteStore{Store: st}, notifier,
		WithRegistrationClock(clock.Now),
		WithRegistrationBcryptCost(bcrypt.MinCost),
	)
	require.NoError(t, err)

	result, err := svc.BeginRegistration(context.Background(), childInput("child@example.com", "kid6", "guardian@example.com"))
	require.NoError(t, err)

	require.NoError(t, svc.DeclineConsent(context.Background(), result.Token))
}

func TestCancelRegistration(t *testing.T) {
	fx := newRegistrationFixture(t)
	ctx := context.Background()

	result, err := fx.svc.BeginRegistration(ctx, selfInput("notme@example.com", "notme"))
	require.NoError(t, err)

	require.NoError(t, fx.svc.CancelRegistration(ctx, result.Token))
	_, err = fx.svc.ConfirmEmail(ctx, result.Token)
	require.ErrorIs(t, err, ErrTokenNotFound)
	require.ErrorIs(t, fx.svc.CancelRegistration(ctx, result.Token), ErrTokenNotFound)
}

func TestBeginRegistrationKeepsRecordWhenDeliveryFails(t *testing.T) {
	fx := newRegistrationFixture(t)
	fx.notifier.err = &notifications.DeliveryError{Kind: notifications.KindEmailConfirmation, Err: errors.New("smtp down")}
	ctx := context.Background()

	_, err := fx.svc.BeginRegistration(ctx, selfInput("orphan@example.com", "orphan"))
	require.ErrorIs(t, err, ErrNotificationFailed)

	var nerr *NotificationError
	require.ErrorAs(t, err, &nerr)

	taken, err := fx.store.UsernameTaken(ctx, "orphan", fx.clock.Now())
	require.NoError(t, err)
	require.True(t, taken, "pending record is not rolled back")

	fx.clock.Advance(time.Hour)
	taken, err = fx.store.UsernameTaken(ctx, "orphan", fx.clock.Now())
	require.NoError(t, err)
	require.False(t, taken)
}

func TestBeginRegistrationWithoutMailProviderIsConfigurationError(t *testing.T) {
	fx := newRegistrationFixture(t)
	fx.notifier.err = notifications.ErrNotConfigured

	_, err := fx.svc.BeginRegistration(context.Background(), selfInput("cfg@example.com", "cfguser"))
	require.ErrorIs(t, err, ErrConfiguration)
	require.ErrorIs(t, err, notifications.ErrNotConfigured)
	require.NotErrorIs(t, err, ErrNotificationFailed)
}

func TestExpireNowPurgesExpiredRecords(t *testing.T) {
	fx := newRegistrationFixture(t)
	ctx := context.Background()

	_, err := fx.svc.BeginRegistration(ctx, selfInput("s1@example.com", "self1"))
	require.NoError(t, err)
	_, err = fx.svc.BeginRegistration(ctx, childInput("c1@example.com", "child1", "g1@example.com"))
	require.NoError(t, err)

	stats, err := fx.svc.ExpireNow(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.Total())

	fx.clock.Advance(2 * time.Hour)
	stats, err = fx.svc.ExpireNow(ctx)
	require.NoError(t, err)
	require.Equal(t, store.ExpiryStats{Confirmations: 1}, stats)

	fx.clock.Advance(48 * time.Hour)
	stats, err = fx.svc.ExpireNow(ctx)
	require.NoError(t, err)
	require.Equal(t, store.ExpiryStats{Registrations: 1}, stats)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	cases := []struct {
		name  string
		value string
		limit int
		want  string
	}{
		{name: "short", value: "  agent  ", limit: 512, want: "agent"},
		{name: "ascii", value: "abcdef", limit: 4, want: "abcd"},
		{name: "two-byte rune at cut", value: "aaaé", limit: 4, want: "aaa"},
		{name: "four-byte rune at cut", value: "ab🙂", limit: 5, want: "ab"},
		{name: "invalid bytes dropped", value: "ok\xffok", limit: 10, want: "okok"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := truncate(tc.value, tc.limit)
			require.Equal(t, tc.want, got)
			require.True(t, utf8.ValidString(got))
		})
	}
}

func TestBeginRegistrationStoresValidUserAgent(t *testing.T) {
	fx := newRegistrationFixture(t)
	ctx := context.Background()

	input := selfInput("agent@example.com", "agent")
	input.UserAgent = strings.Repeat("a", 511) + strings.Repeat("é", 10)
	result, err := fx.svc.BeginRegistration(ctx, input)
	require.NoError(t, err)

	pending, err := fx.store.FindPendingConfirmation(ctx, crypto.HashToken(result.Token), fx.clock.Now())
	require.NoError(t, err)
	require.True(t, utf8.ValidString(pending.Consent.UserAgent))
	require.Equal(t, strings.Repeat("a", 511), pending.Consent.UserAgent)
}
