package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/charlesng35/get2knowme/internal/auth"
	"github.com/charlesng35/get2knowme/internal/models"
	"github.com/charlesng35/get2knowme/internal/notifications"
	"github.com/charlesng35/get2knowme/internal/store"
	"github.com/charlesng35/get2knowme/pkg/crypto"
	"github.com/charlesng35/get2knowme/pkg/logger"
	"github.com/charlesng35/get2knowme/pkg/mail"
	"github.com/charlesng35/get2knowme/pkg/metrics"
	"github.com/charlesng35/get2knowme/pkg/validator"
)

const (
	defaultConfirmationTTL = 24 * time.Hour
	defaultConsentTTL      = 24 * time.Hour

	// DefaultConfirmEmailPath is the page that redeems self-registration tokens.
	DefaultConfirmEmailPath = "/confirm-email"
	// DefaultParentalConsentPath is the page that redeems guardian consent tokens.
	DefaultParentalConsentPath = "/parental-consent"
)

// PendingKind identifies which pending variant a registration produced.
type PendingKind string

const (
	PendingKindConfirmation PendingKind = "confirmation"
	PendingKindConsent      PendingKind = "consent"
)

// RegistrationInput carries a registration request.
type RegistrationInput struct {
	Email         string `json:"email" validate:"required,email,max=254"`
	Username      string `json:"username" validate:"required,username"`
	Password      string `json:"password" validate:"required,min=8,maxbytes=72"`
	GuardianEmail string `json:"guardianEmail" validate:"omitempty,email,max=254"`
	AgreedToTerms bool   `json:"agreedToTerms"`
	AgeConfirmed  bool   `json:"ageConfirmed"`
	IPAddress     string `json:"-"`
	UserAgent     string `json:"-"`
}

// RegistrationResult describes the pending record created by BeginRegistration.
type RegistrationResult struct {
	Kind      PendingKind
	PendingID string
	Token     string
	Link      string
	Recipient string
	CreatedAt time.Time
	ExpiresAt time.Time
	Receipt   mail.Receipt
}

// Account is the identity returned once a pending record is promoted.
type Account struct {
	ID             string
	Username       string
	Email          string
	IsChild        bool
	ConsentedBy    string
	CreatedAt      time.Time
	AccessToken    string
	TokenExpiresAt time.Time
}

// RegistrationOption customises the RegistrationService.
type RegistrationOption func(*RegistrationService)

// WithRegistrationClock injects a custom time source.
func WithRegistrationClock(clock func() time.Time) RegistrationOption {
	return func(s *RegistrationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithConfirmationTTL overrides the lifetime of self-registration records.
func WithConfirmationTTL(d time.Duration) RegistrationOption {
	return func(s *RegistrationService) {
		if d > 0 {
			s.confirmationTTL = d
		}
	}
}

// WithConsentTTL overrides the lifetime of guardian consent records.
func WithConsentTTL(d time.Duration) RegistrationOption {
	return func(s *RegistrationService) {
		if d > 0 {
			s.consentTTL = d
		}
	}
}

// WithRegistrationBaseURL sets the public URL used in emailed links.
func WithRegistrationBaseURL(url string) RegistrationOption {
	return func(s *RegistrationService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithRegistrationPaths overrides the confirmation and consent page paths.
func WithRegistrationPaths(confirmEmail, parentalConsent string) RegistrationOption {
	return func(s *RegistrationService) {
		if confirmEmail != "" {
			s.confirmPath = confirmEmail
		}
		if parentalConsent != "" {
			s.consentPath = parentalConsent
		}
	}
}

// WithRegistrationTokenSize adjusts the number of random bytes in generated tokens.
func WithRegistrationTokenSize(size int) RegistrationOption {
	return func(s *RegistrationService) {
		if size > 0 {
			s.tokenLength = size
		}
	}
}

// WithRegistrationBcryptCost overrides the password hashing cost.
func WithRegistrationBcryptCost(cost int) RegistrationOption {
	return func(s *RegistrationService) {
		if cost > 0 {
			s.bcryptCost = cost
		}
	}
}

// AccessTokenIssuer signs access tokens for newly created accounts.
// *auth.JWTService implements it.
type AccessTokenIssuer interface {
	GenerateAccessToken(input auth.AccessTokenInput) (string, error)
	TTL() time.Duration
}

// WithAccessTokens issues an access token for every account created.
func WithAccessTokens(tokens AccessTokenIssuer) RegistrationOption {
	return func(s *RegistrationService) {
		s.tokens = tokens
	}
}

// RegistrationService runs the pending-record workflow: begin, confirm,
// approve, decline and cancel.
type RegistrationService struct {
	store           store.Store
	notifier        notifications.Sender
	tokens          AccessTokenIssuer
	baseURL         string
	confirmPath     string
	consentPath     string
	confirmationTTL time.Duration
	consentTTL      time.Duration
	tokenLength     int
	bcryptCost      int
	now             func() time.Time
}

// NewRegistrationService constructs the workflow with its collaborators.
func NewRegistrationService(st store.Store, notifier notifications.Sender, opts ...RegistrationOption) (*RegistrationService, error) {
	if st == nil {
		return nil, errors.New("registration service: store is required")
	}
	if notifier == nil {
		return nil, errors.New("registration service: notifier is required")
	}

	service := &RegistrationService{
		store:           st,
		notifier:        notifier,
		confirmPath:     DefaultConfirmEmailPath,
		consentPath:     DefaultParentalConsentPath,
		confirmationTTL: defaultConfirmationTTL,
		consentTTL:      defaultConsentTTL,
		tokenLength:     defaultTokenBytes,
		bcryptCost:      crypto.DefaultPasswordCost,
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// BeginRegistration validates the request, persists a pending record and
// emails its link. A guardian email selects the consent variant.
func (s *RegistrationService) BeginRegistration(ctx context.Context, input RegistrationInput) (*RegistrationResult, error) {
	input.Email = normalizeEmail(input.Email)
	input.Username = normalizeUsername(input.Username)
	input.GuardianEmail = normalizeEmail(input.GuardianEmail)

	variant := "self"
	if input.GuardianEmail != "" {
		variant = "guardian"
	}

	result, err := s.beginRegistration(ctx, input)
	switch {
	case err == nil:
		metrics.Registrations.WithLabelValues(variant, "accepted").Inc()
	case errors.Is(err, ErrValidation):
		metrics.Registrations.WithLabelValues(variant, "rejected").Inc()
	default:
		metrics.Registrations.WithLabelValues(variant, "error").Inc()
	}
	return result, err
}

func (s *RegistrationService) beginRegistration(ctx context.Context, input RegistrationInput) (*RegistrationResult, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.ensureAvailable(ctx, input, now); err != nil {
		return nil, err
	}

	passwordHash, err := crypto.HashPasswordWithCost(input.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("registration service: hash password: %w", err)
	}

	token, digest, err := issueToken(s.tokenLength)
	if err != nil {
		return nil, fmt.Errorf("registration service: %w", err)
	}

	consent := models.ConsentRecord{
		AgreedToTerms:    input.AgreedToTerms,
		AgeConfirmed:     input.AgeConfirmed,
		ConsentTimestamp: now,
		IPAddress:        strings.TrimSpace(input.IPAddress),
		UserAgent:        truncate(input.UserAgent, 512),
	}

	var result *RegistrationResult
	if input.GuardianEmail == "" {
		result, err = s.createConfirmation(ctx, input, passwordHash, consent, token, digest, now)
	} else {
		result, err = s.createConsentRequest(ctx, input, passwordHash, consent, token, digest, now)
	}
	if err != nil {
		return nil, err
	}

	kind := notifications.KindEmailConfirmation
	if result.Kind == PendingKindConsent {
		kind = notifications.KindConsent
	}

	log := logger.WithModule("registration")
	receipt, err := s.notifier.Send(ctx, result.Recipient, kind, result.Link)
	if err != nil {
		log.Warn("pending record stored but notification failed",
			zap.String("pending_id", result.PendingID),
			zap.String("kind", string(result.Kind)),
			zap.Error(err),
		)
		return nil, notificationFailure(err)
	}
	result.Receipt = receipt

	log.Info("registration pending",
		zap.String("pending_id", result.PendingID),
		zap.String("kind", string(result.Kind)),
		zap.Time("expires_at", result.ExpiresAt),
	)
	return result, nil
}

func (s *RegistrationService) createConfirmation(ctx context.Context, input RegistrationInput, passwordHash string, consent models.ConsentRecord, token, digest string, now time.Time) (*RegistrationResult, error) {
	pending := &models.PendingConfirmation{
		BaseModel:    models.BaseModel{CreatedAt: now},
		Email:        input.Email,
		Username:     input.Username,
		PasswordHash: passwordHash,
		Consent:      consent,
		TokenHash:    digest,
		ExpiresAt:    now.Add(s.confirmationTTL),
	}
	if err := s.store.CreatePendingConfirmation(ctx, pending); err != nil {
		return nil, persistFailure(err)
	}

	return &RegistrationResult{
		Kind:      PendingKindConfirmation,
		PendingID: pending.ID,
		Token:     token,
		Link:      buildLink(s.baseURL, s.confirmPath, token),
		Recipient: input.Email,
		CreatedAt: pending.CreatedAt,
		ExpiresAt: pending.ExpiresAt,
	}, nil
}

func (s *RegistrationService) createConsentRequest(ctx context.Context, input RegistrationInput, passwordHash string, consent models.ConsentRecord, token, digest string, now time.Time) (*RegistrationResult, error) {
	pending := &models.PendingRegistration{
		BaseModel:     models.BaseModel{CreatedAt: now},
		ChildEmail:    input.Email,
		ChildUsername: input.Username,
		ParentEmail:   input.GuardianEmail,
		PasswordHash:  passwordHash,
		Consent:       consent,
		TokenHash:     digest,
		ExpiresAt:     now.Add(s.consentTTL),
	}
	if err := s.store.CreatePendingRegistration(ctx, pending); err != nil {
		return nil, persistFailure(err)
	}

	return &RegistrationResult{
		Kind:      PendingKindConsent,
		PendingID: pending.ID,
		Token:     token,
		Link:      buildLink(s.baseURL, s.consentPath, token),
		Recipient: input.GuardianEmail,
		CreatedAt: pending.CreatedAt,
		ExpiresAt: pending.ExpiresAt,
	}, nil
}

// ConfirmEmail redeems a self-registration token and creates the account.
func (s *RegistrationService) ConfirmEmail(ctx context.Context, token string) (*Account, error) {
	account, err := s.confirmEmail(ctx, token)
	recordRedemption("confirm", err)
	return account, err
}

func (s *RegistrationService) confirmEmail(ctx context.Context, token string) (*Account, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenNotFound
	}

	now := s.now()
	user, err := s.store.ClaimPendingConfirmation(ctx, crypto.HashToken(token), now, func(p *models.PendingConfirmation) (*models.User, error) {
		if !p.Consent.Granted() {
			return nil, newValidationError("consent", "terms and age confirmation are required")
		}
		return &models.User{
			BaseModel:    models.BaseModel{CreatedAt: now},
			Username:     p.Username,
			Email:        p.Email,
			PasswordHash: p.PasswordHash,
			ConsentedBy:  models.ConsentedBySelf,
			Consent:      p.Consent,
		}, nil
	})
	if err != nil {
		return nil, tokenFailure("registration service: confirm email", err)
	}

	logger.WithModule("registration").Info("account created", zap.String("user_id", user.ID), zap.String("consented_by", user.ConsentedBy))
	return s.account(user), nil
}

// ApproveConsent redeems a guardian consent token and creates the child account.
func (s *RegistrationService) ApproveConsent(ctx context.Context, token string) (*Account, error) {
	account, err := s.approveConsent(ctx, token)
	recordRedemption("approve", err)
	return account, err
}

func (s *RegistrationService) approveConsent(ctx context.Context, token string) (*Account, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenNotFound
	}

	now := s.now()
	user, err := s.store.ClaimPendingRegistration(ctx, crypto.HashToken(token), now, func(p *models.PendingRegistration) (*models.User, error) {
		if !p.Consent.AgreedToTerms {
			return nil, newValidationError("consent", "terms must be accepted")
		}
		consent := p.Consent
		approvedAt := now.UTC()
		consent.GuardianApprovedAt = &approvedAt
		return &models.User{
			BaseModel:    models.BaseModel{CreatedAt: now},
			Username:     p.ChildUsername,
			Email:        p.ChildEmail,
			PasswordHash: p.PasswordHash,
			IsChild:      true,
			ParentEmail:  p.ParentEmail,
			ConsentedBy:  models.ConsentedByGuardian,
			Consent:      consent,
		}, nil
	})
	if err != nil {
		return nil, tokenFailure("registration service: approve consent", err)
	}

	logger.WithModule("registration").Info("account created", zap.String("user_id", user.ID), zap.String("consented_by", user.ConsentedBy))
	return s.account(user), nil
}

// DeclineConsent discards a guardian consent request without creating an account.
func (s *RegistrationService) DeclineConsent(ctx context.Context, token string) error {
	err := s.discard(ctx, token, "decline",
		func(ctx context.Context, digest string, now time.Time) (string, error) {
			pending, err := s.store.FindPendingRegistration(ctx, digest, now)
			if err != nil {
				return "", err
			}
			return pending.ID, nil
		},
		s.store.DeletePendingRegistration,
	)
	recordRedemption("decline", err)
	return err
}

// CancelRegistration discards a self registration from its "not me" link.
func (s *RegistrationService) CancelRegistration(ctx context.Context, token string) error {
	err := s.discard(ctx, token, "cancel",
		func(ctx context.Context, digest string, now time.Time) (string, error) {
			pending, err := s.store.FindPendingConfirmation(ctx, digest, now)
			if err != nil {
				return "", err
			}
			return pending.ID, nil
		},
		s.store.DeletePendingConfirmation,
	)
	recordRedemption("cancel", err)
	return err
}

// ExpireNow deletes every pending record and reset token past its expiry.
func (s *RegistrationService) ExpireNow(ctx context.Context) (store.ExpiryStats, error) {
	stats, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return stats, fmt.Errorf("registration service: expire: %w", err)
	}
	return stats, nil
}

// discard resolves the live record for token and deletes it. Once the record
// is found the call succeeds; a failing delete is only logged because the
// record expires on its own.
func (s *RegistrationService) discard(
	ctx context.Context,
	token, action string,
	find func(context.Context, string, time.Time) (string, error),
	remove func(context.Context, string) error,
) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenNotFound
	}

	id, err := find(ctx, crypto.HashToken(token), s.now())
	if err != nil {
		return tokenFailure("registration service: "+action, err)
	}

	log := logger.WithModule("registration")
	if err := remove(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Error("failed to delete pending record",
			zap.String("action", action),
			zap.String("pending_id", id),
			zap.Error(err),
		)
		return nil
	}

	log.Info("pending record discarded", zap.String("action", action), zap.String("pending_id", id))
	return nil
}

func (s *RegistrationService) validate(input RegistrationInput) error {
	if err := validator.ValidateStruct(input); err != nil {
		return fromValidator(err)
	}

	if input.GuardianEmail != "" {
		if input.GuardianEmail == input.Email {
			return newValidationError("guardianEmail", "must differ from the account email")
		}
		if !input.AgreedToTerms {
			return newValidationError("agreedToTerms", "terms must be accepted")
		}
		return nil
	}

	fields := map[string]string{}
	if !input.AgreedToTerms {
		fields["agreedToTerms"] = "terms must be accepted"
	}
	if !input.AgeConfirmed {
		fields["ageConfirmed"] = "age must be confirmed"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (s *RegistrationService) ensureAvailable(ctx context.Context, input RegistrationInput, now time.Time) error {
	taken, err := s.store.UsernameTaken(ctx, input.Username, now)
	if err != nil {
		return fmt.Errorf("registration service: check username: %w", err)
	}
	if taken {
		return newValidationError("username", "username is already taken")
	}

	taken, err = s.store.EmailTaken(ctx, input.Email, now)
	if err != nil {
		return fmt.Errorf("registration service: check email: %w", err)
	}
	if taken {
		return newValidationError("email", "email is already registered")
	}
	return nil
}

func (s *RegistrationService) account(user *models.User) *Account {
	account := &Account{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		IsChild:     user.IsChild,
		ConsentedBy: user.ConsentedBy,
		CreatedAt:   user.CreatedAt,
	}
	if s.tokens == nil {
		return account
	}

	// The account is already committed; a signing failure is logged, not returned.
	token, err := s.tokens.GenerateAccessToken(auth.AccessTokenInput{
		UserID:      user.ID,
		Username:    user.Username,
		Child:       user.IsChild,
		ConsentedBy: user.ConsentedBy,
	})
	if err != nil {
		logger.WithModule("registration").Warn("account created without access token",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return account
	}
	account.AccessToken = token
	account.TokenExpiresAt = s.now().Add(s.tokens.TTL())
	return account
}

func persistFailure(err error) error {
	if errors.Is(err, store.ErrDuplicate) {
		return newValidationError("username", "username or email is already registered")
	}
	return fmt.Errorf("registration service: persist pending record: %w", err)
}

func recordRedemption(action string, err error) {
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenNotFound):
		result = "not_found"
	case errors.Is(err, ErrValidation):
		result = "rejected"
	default:
		result = "error"
	}
	metrics.TokenRedemptions.WithLabelValues(action, result).Inc()
}

// truncate cuts value to at most limit bytes without splitting a rune.
// Invalid UTF-8 sequences are dropped.
func truncate(value string, limit int) string {
	value = strings.ToValidUTF8(strings.TrimSpace(value), "")
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
