package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/get2knowme/internal/database"
	"github.com/charlesng35/get2knowme/internal/fieldcrypt"
	"github.com/charlesng35/get2knowme/internal/models"
)

// GormStore implements Store on top of a relational database.
type GormStore struct {
	db *gorm.DB
	sealer
}

// NewGormStore constructs a relational store. The schema is expected to be
// migrated with database.AutoMigrate.
func NewGormStore(db *gorm.DB, cipher *fieldcrypt.Cipher) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("store: db is required")
	}
	if cipher == nil {
		return nil, errors.New("store: field cipher is required")
	}
	return &GormStore{db: db, sealer: sealer{cipher: cipher}}, nil
}

// CreatePendingConfirmation persists a self registration together with its
// identity reservation. Expired records holding the same username or email
// are purged first so they cannot block the unique indexes before the sweep
// runs.
func (s *GormStore) CreatePendingConfirmation(ctx context.Context, pending *models.PendingConfirmation) error {
	prepareBase(&pending.BaseModel)
	pending.ExpiresAt = pending.ExpiresAt.UTC()
	sealed, err := s.sealConfirmation(pending)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := pending.CreatedAt
		if err := tx.Where("(username = ? OR email_hash = ?) AND expires_at <= ?", sealed.Username, sealed.EmailHash, now).
			Delete(&models.PendingConfirmation{}).Error; err != nil {
			return err
		}
		if err := reserveIdentity(tx, sealed.ID, sealed.Username, sealed.EmailHash, sealed.ExpiresAt, now); err != nil {
			return err
		}
		return tx.Create(sealed).Error
	})
	if err != nil {
		return translateGormError("create pending confirmation", err)
	}
	return nil
}

// FindPendingConfirmation returns the live record for tokenHash.
func (s *GormStore) FindPendingConfirmation(ctx context.Context, tokenHash string, now time.Time) (*models.PendingConfirmation, error) {
	now = now.UTC()
	var row models.PendingConfirmation
	if err := liveByToken(s.db.WithContext(ctx), tokenHash, now).First(&row).Error; err != nil {
		return nil, translateGormError("find pending confirmation", err)
	}
	if row.Expired(now) {
		return nil, ErrNotFound
	}
	return s.openConfirmation(&row)
}

// ClaimPendingConfirmation deletes the live record for tokenHash and creates
// the account returned by promote within one transaction.
func (s *GormStore) ClaimPendingConfirmation(ctx context.Context, tokenHash string, now time.Time, promote PromoteConfirmationFunc) (*models.User, error) {
	now = now.UTC()
	var created *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.PendingConfirmation
		if err := liveByToken(tx, tokenHash, now).First(&row).Error; err != nil {
			return err
		}
		if row.Expired(now) {
			return ErrNotFound
		}
		if err := claimRow(tx, &models.PendingConfirmation{}, row.ID); err != nil {
			return err
		}

		pending, err := s.openConfirmation(&row)
		if err != nil {
			return err
		}
		user, err := promote(pending)
		if err != nil {
			return err
		}
		if created, err = s.insertUser(tx, user, now); err != nil {
			return err
		}
		return s.transferReservation(tx, row.ID, created, now)
	})
	if err != nil {
		return nil, translateGormError("claim pending confirmation", err)
	}
	return created, nil
}

// DeletePendingConfirmation removes the record with id.
func (s *GormStore) DeletePendingConfirmation(ctx context.Context, id string) error {
	return s.deletePending(ctx, "delete pending confirmation", &models.PendingConfirmation{}, id)
}

// CreatePendingRegistration persists a child registration awaiting consent.
func (s *GormStore) CreatePendingRegistration(ctx context.Context, pending *models.PendingRegistration) error {
	prepareBase(&pending.BaseModel)
	pending.ExpiresAt = pending.ExpiresAt.UTC()
	sealed, err := s.sealRegistration(pending)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := pending.CreatedAt
		if err := tx.Where("(child_username = ? OR child_email_hash = ?) AND expires_at <= ?", sealed.ChildUsername, sealed.ChildEmailHash, now).
			Delete(&models.PendingRegistration{}).Error; err != nil {
			return err
		}
		if err := reserveIdentity(tx, sealed.ID, sealed.ChildUsername, sealed.ChildEmailHash, sealed.ExpiresAt, now); err != nil {
			return err
		}
		return tx.Create(sealed).Error
	})
	if err != nil {
		return translateGormError("create pending registration", err)
	}
	return nil
}

// FindPendingRegistration returns the live record for tokenHash.
func (s *GormStore) FindPendingRegistration(ctx context.Context, tokenHash string, now time.Time) (*models.PendingRegistration, error) {
	now = now.UTC()
	var row models.PendingRegistration
	if err := liveByToken(s.db.WithContext(ctx), tokenHash, now).First(&row).Error; err != nil {
		return nil, translateGormError("find pending registration", err)
	}
	if row.Expired(now) {
		return nil, ErrNotFound
	}
	return s.openRegistration(&row)
}

// ClaimPendingRegistration deletes the live record for tokenHash and creates
// the child account returned by promote within one transaction.
func (s *GormStore) ClaimPendingRegistration(ctx context.Context, tokenHash string, now time.Time, promote PromoteRegistrationFunc) (*models.User, error) {
	now = now.UTC()
	var created *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.PendingRegistration
		if err := liveByToken(tx, tokenHash, now).First(&row).Error; err != nil {
			return err
		}
		if row.Expired(now) {
			return ErrNotFound
		}
		if err := claimRow(tx, &models.PendingRegistration{}, row.ID); err != nil {
			return err
		}

		pending, err := s.openRegistration(&row)
		if err != nil {
			return err
		}
		user, err := promote(pending)
		if err != nil {
			return err
		}
		if created, err = s.insertUser(tx, user, now); err != nil {
			return err
		}
		return s.transferReservation(tx, row.ID, created, now)
	})
	if err != nil {
		return nil, translateGormError("claim pending registration", err)
	}
	return created, nil
}

// DeletePendingRegistration removes the record with id.
func (s *GormStore) DeletePendingRegistration(ctx context.Context, id string) error {
	return s.deletePending(ctx, "delete pending registration", &models.PendingRegistration{}, id)
}

// UsernameTaken checks accounts and live pending records of both variants.
func (s *GormStore) UsernameTaken(ctx context.Context, username string, now time.Time) (bool, error) {
	now = now.UTC()
	db := s.db.WithContext(ctx)
	checks := []*gorm.DB{
		db.Model(&models.User{}).Where("username = ?", username),
		db.Model(&models.PendingConfirmation{}).Where("username = ? AND expires_at > ?", username, now),
		db.Model(&models.PendingRegistration{}).Where("child_username = ? AND expires_at > ?", username, now),
	}
	return anyExists("username taken", checks)
}

// EmailTaken checks accounts and live pending records of both variants.
func (s *GormStore) EmailTaken(ctx context.Context, email string, now time.Time) (bool, error) {
	now = now.UTC()
	hash := s.cipher.BlindIndex(email)
	db := s.db.WithContext(ctx)
	checks := []*gorm.DB{
		db.Model(&models.User{}).Where("email_hash = ?", hash),
		db.Model(&models.PendingConfirmation{}).Where("email_hash = ? AND expires_at > ?", hash, now),
		db.Model(&models.PendingRegistration{}).Where("child_email_hash = ? AND expires_at > ?", hash, now),
	}
	return anyExists("email taken", checks)
}

// FindUserByEmail resolves an account through the email blind index.
func (s *GormStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var row models.User
	if err := s.db.WithContext(ctx).Where("email_hash = ?", s.cipher.BlindIndex(email)).First(&row).Error; err != nil {
		return nil, translateGormError("find user by email", err)
	}
	return s.openUser(&row)
}

// FindUserByUsername resolves an account by username.
func (s *GormStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var row models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&row).Error; err != nil {
		return nil, translateGormError("find user by username", err)
	}
	return s.openUser(&row)
}

// CreateResetToken persists a password reset token.
func (s *GormStore) CreateResetToken(ctx context.Context, token *models.PasswordResetToken) error {
	prepareBase(&token.BaseModel)
	token.ExpiresAt = token.ExpiresAt.UTC()
	if err := s.db.WithContext(ctx).Create(token).Error; err != nil {
		return translateGormError("create reset token", err)
	}
	return nil
}

// RedeemResetToken consumes the live token and stores passwordHash on its owner.
func (s *GormStore) RedeemResetToken(ctx context.Context, tokenHash string, now time.Time, passwordHash string) (*models.User, error) {
	now = now.UTC()
	var updated *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var token models.PasswordResetToken
		if err := liveByToken(tx, tokenHash, now).First(&token).Error; err != nil {
			return err
		}
		if token.Expired(now) {
			return ErrNotFound
		}
		if err := claimRow(tx, &models.PasswordResetToken{}, token.ID); err != nil {
			return err
		}

		var user models.User
		if err := tx.Where("id = ?", token.UserID).First(&user).Error; err != nil {
			return err
		}
		if err := tx.Model(&user).Updates(map[string]any{
			"password_hash": passwordHash,
			"updated_at":    now,
		}).Error; err != nil {
			return err
		}
		user.PasswordHash = passwordHash
		user.UpdatedAt = now

		opened, err := s.openUser(&user)
		updated = opened
		return err
	})
	if err != nil {
		return nil, translateGormError("redeem reset token", err)
	}
	return updated, nil
}

// DeleteExpired removes expired pending records, their reservations and
// reset tokens.
func (s *GormStore) DeleteExpired(ctx context.Context, now time.Time) (ExpiryStats, error) {
	now = now.UTC()
	var stats ExpiryStats
	db := s.db.WithContext(ctx)

	res := db.Where("expires_at <= ?", now).Delete(&models.PendingConfirmation{})
	if res.Error != nil {
		return stats, fmt.Errorf("store: delete expired confirmations: %w", res.Error)
	}
	stats.Confirmations = res.RowsAffected

	res = db.Where("expires_at <= ?", now).Delete(&models.PendingRegistration{})
	if res.Error != nil {
		return stats, fmt.Errorf("store: delete expired registrations: %w", res.Error)
	}
	stats.Registrations = res.RowsAffected

	res = db.Where("expires_at <= ?", now).Delete(&models.PasswordResetToken{})
	if res.Error != nil {
		return stats, fmt.Errorf("store: delete expired reset tokens: %w", res.Error)
	}
	stats.ResetTokens = res.RowsAffected

	if err := db.Where("expires_at IS NOT NULL AND expires_at <= ?", now).Delete(&models.IdentityReservation{}).Error; err != nil {
		return stats, fmt.Errorf("store: delete expired reservations: %w", err)
	}

	return stats, nil
}

// Ping checks database reachability.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) insertUser(tx *gorm.DB, user *models.User, now time.Time) (*models.User, error) {
	if user == nil {
		return nil, errors.New("promotion produced no account")
	}
	user.EnsureID()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = user.CreatedAt

	sealed, err := s.sealUser(user)
	if err != nil {
		return nil, err
	}
	if err := tx.Create(sealed).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// deletePending removes the pending row and releases its reservation.
func (s *GormStore) deletePending(ctx context.Context, action string, model any, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := claimRow(tx, model, id); err != nil {
			return err
		}
		return tx.Where("owner_id = ?", id).Delete(&models.IdentityReservation{}).Error
	})
	if err != nil {
		return translateGormError(action, err)
	}
	return nil
}

// transferReservation hands the pending record's reservation to the new
// account and clears its expiry. Records stored without a reservation get one.
func (s *GormStore) transferReservation(tx *gorm.DB, pendingID string, user *models.User, now time.Time) error {
	res := tx.Model(&models.IdentityReservation{}).
		Where("owner_id = ?", pendingID).
		Updates(map[string]any{"owner_id": user.ID, "expires_at": nil, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return tx.Create(&models.IdentityReservation{
		BaseModel: models.BaseModel{CreatedAt: now, UpdatedAt: now},
		OwnerID:   user.ID,
		Username:  user.Username,
		EmailHash: s.cipher.BlindIndex(user.Email),
	}).Error
}

// reserveIdentity drops expired reservations on username or emailHash and
// inserts one for ownerID. The unique indexes reject a live holder.
func reserveIdentity(tx *gorm.DB, ownerID, username, emailHash string, expiresAt, now time.Time) error {
	if err := tx.Where("(username = ? OR email_hash = ?) AND expires_at IS NOT NULL AND expires_at <= ?", username, emailHash, now).
		Delete(&models.IdentityReservation{}).Error; err != nil {
		return err
	}
	return tx.Create(&models.IdentityReservation{
		BaseModel: models.BaseModel{CreatedAt: now, UpdatedAt: now},
		OwnerID:   ownerID,
		Username:  username,
		EmailHash: emailHash,
		ExpiresAt: &expiresAt,
	}).Error
}

// liveByToken scopes a query to the unexpired row holding tokenHash.
func liveByToken(db *gorm.DB, tokenHash string, now time.Time) *gorm.DB {
	return db.Where("token_hash = ? AND expires_at > ?", tokenHash, now)
}

// claimRow deletes the row by id and fails when another caller removed it first.
func claimRow(tx *gorm.DB, model any, id string) error {
	res := tx.Where("id = ?", id).Delete(model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrNotFound
	}
	return nil
}

func anyExists(action string, queries []*gorm.DB) (bool, error) {
	for _, q := range queries {
		var count int64
		if err := q.Count(&count).Error; err != nil {
			return false, fmt.Errorf("store: %s: %w", action, err)
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

func prepareBase(base *models.BaseModel) {
	base.EnsureID()
	if base.CreatedAt.IsZero() {
		base.CreatedAt = time.Now()
	}
	base.CreatedAt = base.CreatedAt.UTC()
	if base.UpdatedAt.IsZero() {
		base.UpdatedAt = base.CreatedAt
	}
}

func translateGormError(action string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, ErrNotFound):
		return ErrNotFound
	case database.IsUniqueConstraintError(err):
		return fmt.Errorf("store: %s: %w", action, errors.Join(ErrDuplicate, err))
	default:
		return fmt.Errorf("store: %s: %w", action, err)
	}
}
