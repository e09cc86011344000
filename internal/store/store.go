// Package store persists pending registrations, pending confirmations,
// accounts and password reset tokens. Records cross the Store boundary in
// plaintext; implementations encrypt PII columns on write and decrypt them on
// read.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/charlesng35/get2knowme/internal/models"
)

var (
	// ErrNotFound indicates no live record matched the lookup.
	ErrNotFound = errors.New("store: record not found")
	// ErrDuplicate indicates a unique index rejected the write.
	ErrDuplicate = errors.New("store: duplicate key")
)

// PromoteConfirmationFunc turns a claimed PendingConfirmation into the account
// to create. Returning an error aborts the claim and leaves the pending record
// in place.
type PromoteConfirmationFunc func(*models.PendingConfirmation) (*models.User, error)

// PromoteRegistrationFunc is the PendingRegistration counterpart of
// PromoteConfirmationFunc.
type PromoteRegistrationFunc func(*models.PendingRegistration) (*models.User, error)

// ExpiryStats reports how many expired records a sweep removed.
type ExpiryStats struct {
	Confirmations int64
	Registrations int64
	ResetTokens   int64
}

// Total returns the number of removed records across all kinds.
func (s ExpiryStats) Total() int64 {
	return s.Confirmations + s.Registrations + s.ResetTokens
}

// Store is the persistence boundary used by the registration workflow.
//
// Every lookup that takes now treats records with ExpiresAt <= now as absent.
type Store interface {
	CreatePendingConfirmation(ctx context.Context, pending *models.PendingConfirmation) error
	FindPendingConfirmation(ctx context.Context, tokenHash string, now time.Time) (*models.PendingConfirmation, error)
	ClaimPendingConfirmation(ctx context.Context, tokenHash string, now time.Time, promote PromoteConfirmationFunc) (*models.User, error)
	DeletePendingConfirmation(ctx context.Context, id string) error

	CreatePendingRegistration(ctx context.Context, pending *models.PendingRegistration) error
	FindPendingRegistration(ctx context.Context, tokenHash string, now time.Time) (*models.PendingRegistration, error)
	ClaimPendingRegistration(ctx context.Context, tokenHash string, now time.Time, promote PromoteRegistrationFunc) (*models.User, error)
	DeletePendingRegistration(ctx context.Context, id string) error

	// UsernameTaken reports whether an account or a live pending record holds username.
	UsernameTaken(ctx context.Context, username string, now time.Time) (bool, error)
	// EmailTaken reports whether an account or a live pending record holds email.
	EmailTaken(ctx context.Context, email string, now time.Time) (bool, error)

	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)

	CreateResetToken(ctx context.Context, token *models.PasswordResetToken) error
	// RedeemResetToken consumes the live token and replaces the owner's
	// password hash in one unit.
	RedeemResetToken(ctx context.Context, tokenHash string, now time.Time, passwordHash string) (*models.User, error)

	// DeleteExpired removes every record whose ExpiresAt <= now.
	DeleteExpired(ctx context.Context, now time.Time) (ExpiryStats, error)

	Ping(ctx context.Context) error
}
