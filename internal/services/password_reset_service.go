package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/get2knowme/internal/models"
	"github.com/charlesng35/get2knowme/internal/notifications"
	"github.com/charlesng35/get2knowme/internal/store"
	"github.com/charlesng35/get2knowme/pkg/crypto"
	"github.com/charlesng35/get2knowme/pkg/logger"
	"github.com/charlesng35/get2knowme/pkg/validator"
)

const (
	defaultPasswordResetTTL = time.Hour

	// DefaultResetPasswordPath is the page that redeems password reset tokens.
	DefaultResetPasswordPath = "/reset-password"
)

// PasswordResetOption customises the PasswordResetService.
type PasswordResetOption func(*PasswordResetService)

// WithPasswordResetClock injects a custom time source.
func WithPasswordResetClock(clock func() time.Time) PasswordResetOption {
	return func(s *PasswordResetService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithPasswordResetTTL overrides the token lifetime.
func WithPasswordResetTTL(d time.Duration) PasswordResetOption {
	return func(s *PasswordResetService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithPasswordResetLink sets the public URL and page path used in reset links.
func WithPasswordResetLink(baseURL, path string) PasswordResetOption {
	return func(s *PasswordResetService) {
		s.baseURL = strings.TrimRight(baseURL, "/")
		if path != "" {
			s.path = path
		}
	}
}

// WithPasswordResetTokenSize adjusts the number of random bytes in generated tokens.
func WithPasswordResetTokenSize(size int) PasswordResetOption {
	return func(s *PasswordResetService) {
		if size > 0 {
			s.tokenLength = size
		}
	}
}

// WithPasswordResetBcryptCost overrides the password hashing cost.
func WithPasswordResetBcryptCost(cost int) PasswordResetOption {
	return func(s *PasswordResetService) {
		if cost > 0 {
			s.bcryptCost = cost
		}
	}
}

// PasswordResetService issues and redeems single-use password reset tokens.
type PasswordResetService struct {
	store       store.Store
	notifier    notifications.Sender
	baseURL     string
	path        string
	ttl         time.Duration
	tokenLength int
	bcryptCost  int
	now         func() time.Time
}

// NewPasswordResetService constructs a reset service with the provided dependencies.
func NewPasswordResetService(st store.Store, notifier notifications.Sender, opts ...PasswordResetOption) (*PasswordResetService, error) {
	if st == nil {
		return nil, errors.New("password reset service: store is required")
	}
	if notifier == nil {
		return nil, errors.New("password reset service: notifier is required")
	}

	service := &PasswordResetService{
		store:       st,
		notifier:    notifier,
		path:        DefaultResetPasswordPath,
		ttl:         defaultPasswordResetTTL,
		tokenLength: defaultTokenBytes,
		bcryptCost:  crypto.DefaultPasswordCost,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// RequestReset emails a reset link when an account owns email. Unknown
// addresses succeed silently so callers cannot enumerate accounts.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validator.ValidateVar(email, "required,email,max=254"); err != nil {
		return newValidationError("email", "must be a valid email address")
	}

	user, err := s.store.FindUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		logger.WithModule("password_reset").Debug("reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("password reset service: find user: %w", err)
	}

	token, digest, err := issueToken(s.tokenLength)
	if err != nil {
		return fmt.Errorf("password reset service: %w", err)
	}

	now := s.now()
	record := &models.PasswordResetToken{
		BaseModel: models.BaseModel{CreatedAt: now},
		UserID:    user.ID,
		TokenHash: digest,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.CreateResetToken(ctx, record); err != nil {
		return fmt.Errorf("password reset service: create token: %w", err)
	}

	link := buildLink(s.baseURL, s.path, token)
	if _, err := s.notifier.Send(ctx, user.Email, notifications.KindPasswordReset, link); err != nil {
		return notificationFailure(err)
	}

	logger.WithModule("password_reset").Info("reset token issued",
		zap.String("user_id", user.ID),
		zap.Time("expires_at", record.ExpiresAt),
	)
	return nil
}

// ResetPassword redeems token and stores a hash of newPassword.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	err := s.resetPassword(ctx, token, newPassword)
	recordRedemption("reset", err)
	return err
}

func (s *PasswordResetService) resetPassword(ctx context.Context, token, newPassword string) error {
	if err := validator.ValidateVar(newPassword, "required,min=8,maxbytes="+strconv.Itoa(validator.MaxPasswordBytes)); err != nil {
		return newValidationError("password", "must be at least 8 characters and at most 72 bytes")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenNotFound
	}

	passwordHash, err := crypto.HashPasswordWithCost(newPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("password reset service: hash password: %w", err)
	}

	user, err := s.store.RedeemResetToken(ctx, crypto.HashToken(token), s.now(), passwordHash)
	if err != nil {
		return tokenFailure("password reset service: redeem", err)
	}

	logger.WithModule("password_reset").Info("password replaced", zap.String("user_id", user.ID))
	return nil
}
