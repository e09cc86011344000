package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/get2knowme/internal/fieldcrypt"
	"github.com/charlesng35/get2knowme/internal/models"
	"github.com/charlesng35/get2knowme/pkg/logger"
)

// Collection names used by the MongoDB backend.
const (
	CollectionPendingConfirmations = "pending_confirmations"
	CollectionPendingRegistrations = "pending_registrations"
	CollectionUsers                = "users"
	CollectionPasswordResetTokens  = "password_reset_tokens"
	CollectionIdentityReservations = "identity_reservations"
)

// MongoStore implements Store on MongoDB. MongoDB keeps millisecond time
// precision, so timestamps are truncated to the millisecond before they are
// written and callers see the stored values.
type MongoStore struct {
	db            *mongo.Database
	confirmations *mongo.Collection
	registrations *mongo.Collection
	users         *mongo.Collection
	resetTokens   *mongo.Collection
	reservations  *mongo.Collection
	sealer
}

// NewMongoStore wraps db. Call EnsureIndexes once during start-up.
func NewMongoStore(db *mongo.Database, cipher *fieldcrypt.Cipher) (*MongoStore, error) {
	if db == nil {
		return nil, errors.New("store: mongo database is required")
	}
	if cipher == nil {
		return nil, errors.New("store: field cipher is required")
	}
	return &MongoStore{
		db:            db,
		confirmations: db.Collection(CollectionPendingConfirmations),
		registrations: db.Collection(CollectionPendingRegistrations),
		users:         db.Collection(CollectionUsers),
		resetTokens:   db.Collection(CollectionPasswordResetTokens),
		reservations:  db.Collection(CollectionIdentityReservations),
		sealer:        sealer{cipher: cipher},
	}, nil
}

// EnsureIndexes declares unique indexes and TTL indexes on expires_at so the
// server reaps expired documents in addition to the read-time check.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	ttl := options.Index().SetExpireAfterSeconds(0)
	unique := func() *options.IndexOptions { return options.Index().SetUnique(true) }

	specs := map[*mongo.Collection][]mongo.IndexModel{
		s.confirmations: {
			{Keys: bson.D{{Key: "token_hash", Value: 1}}, Options: unique()},
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique()},
			{Keys: bson.D{{Key: "email_hash", Value: 1}}, Options: unique()},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: ttl},
		},
		s.registrations: {
			{Keys: bson.D{{Key: "token_hash", Value: 1}}, Options: unique()},
			{Keys: bson.D{{Key: "child_username", Value: 1}}, Options: unique()},
			{Keys: bson.D{{Key: "child_email_hash", Value: 1}}, Options: unique()},
			{Keys: bson.D{{Key: "parent_email_hash", Value: 1}}},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: ttl},
		},
		s.users: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique()},
			{Keys: bson.D{{Key: "email_hash", Value: 1}}, Options: unique()},
		},
		s.resetTokens: {
			{Keys: bson.D{{Key: "token_hash", Value: 1}}, Options: unique()},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: ttl},
		},
		s.reservations: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique()},
			{Keys: bson.D{{Key: "email_hash", Value: 1}}, Options: unique()},
			{Keys: bson.D{{Key: "owner_id", Value: 1}}},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: ttl},
		},
	}

	for coll, indexes := range specs {
		if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("store: create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

// CreatePendingConfirmation reserves the username and email, then persists a
// self registration. The reservation is released if the insert fails.
func (s *MongoStore) CreatePendingConfirmation(ctx context.Context, pending *models.PendingConfirmation) error {
	prepareBase(&pending.BaseModel)
	truncateTimes(&pending.BaseModel, &pending.ExpiresAt, &pending.Consent.ConsentTimestamp)
	sealed, err := s.sealConfirmation(pending)
	if err != nil {
		return err
	}

	purge := bson.M{
		"$or":        bson.A{bson.M{"username": sealed.Username}, bson.M{"email_hash": sealed.EmailHash}},
		"expires_at": bson.M{"$lte": pending.CreatedAt},
	}
	if _, err := s.confirmations.DeleteMany(ctx, purge); err != nil {
		return fmt.Errorf("store: purge stale confirmations: %w", err)
	}
	if err := s.reserve(ctx, sealed.ID, sealed.Username, sealed.EmailHash, sealed.ExpiresAt, pending.CreatedAt); err != nil {
		return translateMongoError("create pending confirmation", err)
	}
	if _, err := s.confirmations.InsertOne(ctx, sealed); err != nil {
		return s.release(ctx, sealed.ID, "create pending confirmation", err)
	}
	return nil
}

// FindPendingConfirmation returns the live record for tokenHash.
func (s *MongoStore) FindPendingConfirmation(ctx context.Context, tokenHash string, now time.Time) (*models.PendingConfirmation, error) {
	var row models.PendingConfirmation
	if err := s.confirmations.FindOne(ctx, liveTokenFilter(tokenHash, now)).Decode(&row); err != nil {
		return nil, translateMongoError("find pending confirmation", err)
	}
	return s.openConfirmation(&row)
}

// ClaimPendingConfirmation removes the live record atomically and inserts the
// promoted account. The pending document is restored if promotion fails.
func (s *MongoStore) ClaimPendingConfirmation(ctx context.Context, tokenHash string, now time.Time, promote PromoteConfirmationFunc) (*models.User, error) {
	var row models.PendingConfirmation
	if err := s.confirmations.FindOneAndDelete(ctx, liveTokenFilter(tokenHash, now)).Decode(&row); err != nil {
		return nil, translateMongoError("claim pending confirmation", err)
	}

	user, err := s.promoteClaimed(ctx, row.ID, now, func() (*models.User, error) {
		pending, err := s.openConfirmation(&row)
		if err != nil {
			return nil, err
		}
		return promote(pending)
	})
	if err != nil {
		return nil, s.restore(ctx, s.confirmations, &row, "claim pending confirmation", err)
	}
	return user, nil
}

// DeletePendingConfirmation removes the record with id.
func (s *MongoStore) DeletePendingConfirmation(ctx context.Context, id string) error {
	return s.deletePending(ctx, s.confirmations, "delete pending confirmation", id)
}

// CreatePendingRegistration reserves the child's username and email, then
// persists a child registration awaiting consent.
func (s *MongoStore) CreatePendingRegistration(ctx context.Context, pending *models.PendingRegistration) error {
	prepareBase(&pending.BaseModel)
	truncateTimes(&pending.BaseModel, &pending.ExpiresAt, &pending.Consent.ConsentTimestamp)
	sealed, err := s.sealRegistration(pending)
	if err != nil {
		return err
	}

	purge := bson.M{
		"$or":        bson.A{bson.M{"child_username": sealed.ChildUsername}, bson.M{"child_email_hash": sealed.ChildEmailHash}},
		"expires_at": bson.M{"$lte": pending.CreatedAt},
	}
	if _, err := s.registrations.DeleteMany(ctx, purge); err != nil {
		return fmt.Errorf("store: purge stale registrations: %w", err)
	}
	if err := s.reserve(ctx, sealed.ID, sealed.ChildUsername, sealed.ChildEmailHash, sealed.ExpiresAt, pending.CreatedAt); err != nil {
		return translateMongoError("create pending registration", err)
	}
	if _, err := s.registrations.InsertOne(ctx, sealed); err != nil {
		return s.release(ctx, sealed.ID, "create pending registration", err)
	}
	return nil
}

// FindPendingRegistration returns the live record for tokenHash.
func (s *MongoStore) FindPendingRegistration(ctx context.Context, tokenHash string, now time.Time) (*models.PendingRegistration, error) {
	var row models.PendingRegistration
	if err := s.registrations.FindOne(ctx, liveTokenFilter(tokenHash, now)).Decode(&row); err != nil {
		return nil, translateMongoError("find pending registration", err)
	}
	return s.openRegistration(&row)
}

// ClaimPendingRegistration removes the live record atomically and inserts the
// promoted child account.
func (s *MongoStore) ClaimPendingRegistration(ctx context.Context, tokenHash string, now time.Time, promote PromoteRegistrationFunc) (*models.User, error) {
	var row models.PendingRegistration
	if err := s.registrations.FindOneAndDelete(ctx, liveTokenFilter(tokenHash, now)).Decode(&row); err != nil {
		return nil, translateMongoError("claim pending registration", err)
	}

	user, err := s.promoteClaimed(ctx, row.ID, now, func() (*models.User, error) {
		pending, err := s.openRegistration(&row)
		if err != nil {
			return nil, err
		}
		return promote(pending)
	})
	if err != nil {
		return nil, s.restore(ctx, s.registrations, &row, "claim pending registration", err)
	}
	return user, nil
}

// DeletePendingRegistration removes the record with id.
func (s *MongoStore) DeletePendingRegistration(ctx context.Context, id string) error {
	return s.deletePending(ctx, s.registrations, "delete pending registration", id)
}

// UsernameTaken checks accounts and live pending records of both variants.
func (s *MongoStore) UsernameTaken(ctx context.Context, username string, now time.Time) (bool, error) {
	live := bson.M{"$gt": now.UTC()}
	return s.anyExists(ctx, "username taken", []existsCheck{
		{s.users, bson.M{"username": username}},
		{s.confirmations, bson.M{"username": username, "expires_at": live}},
		{s.registrations, bson.M{"child_username": username, "expires_at": live}},
	})
}

// EmailTaken checks accounts and live pending records of both variants.
func (s *MongoStore) EmailTaken(ctx context.Context, email string, now time.Time) (bool, error) {
	hash := s.cipher.BlindIndex(email)
	live := bson.M{"$gt": now.UTC()}
	return s.anyExists(ctx, "email taken", []existsCheck{
		{s.users, bson.M{"email_hash": hash}},
		{s.confirmations, bson.M{"email_hash": hash, "expires_at": live}},
		{s.registrations, bson.M{"child_email_hash": hash, "expires_at": live}},
	})
}

// FindUserByEmail resolves an account through the email blind index.
func (s *MongoStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, "find user by email", bson.M{"email_hash": s.cipher.BlindIndex(email)})
}

// FindUserByUsername resolves an account by username.
func (s *MongoStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(ctx, "find user by username", bson.M{"username": username})
}

// CreateResetToken persists a password reset token.
func (s *MongoStore) CreateResetToken(ctx context.Context, token *models.PasswordResetToken) error {
	prepareBase(&token.BaseModel)
	truncateTimes(&token.BaseModel, &token.ExpiresAt)
	if _, err := s.resetTokens.InsertOne(ctx, token); err != nil {
		return translateMongoError("create reset token", err)
	}
	return nil
}

// RedeemResetToken consumes the live token and stores passwordHash on its owner.
func (s *MongoStore) RedeemResetToken(ctx context.Context, tokenHash string, now time.Time, passwordHash string) (*models.User, error) {
	var token models.PasswordResetToken
	if err := s.resetTokens.FindOneAndDelete(ctx, liveTokenFilter(tokenHash, now)).Decode(&token); err != nil {
		return nil, translateMongoError("redeem reset token", err)
	}

	var row models.User
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": token.UserID},
		bson.M{"$set": bson.M{"password_hash": passwordHash, "updated_at": now.UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&row)
	if err != nil {
		return nil, translateMongoError("redeem reset token", err)
	}
	return s.openUser(&row)
}

// DeleteExpired removes expired documents the TTL monitor has not reaped yet.
// Account reservations carry no expires_at and never match.
func (s *MongoStore) DeleteExpired(ctx context.Context, now time.Time) (ExpiryStats, error) {
	var stats ExpiryStats
	filter := bson.M{"expires_at": bson.M{"$lte": now.UTC()}}

	res, err := s.confirmations.DeleteMany(ctx, filter)
	if err != nil {
		return stats, fmt.Errorf("store: delete expired confirmations: %w", err)
	}
	stats.Confirmations = res.DeletedCount

	res, err = s.registrations.DeleteMany(ctx, filter)
	if err != nil {
		return stats, fmt.Errorf("store: delete expired registrations: %w", err)
	}
	stats.Registrations = res.DeletedCount

	res, err = s.resetTokens.DeleteMany(ctx, filter)
	if err != nil {
		return stats, fmt.Errorf("store: delete expired reset tokens: %w", err)
	}
	stats.ResetTokens = res.DeletedCount

	if _, err := s.reservations.DeleteMany(ctx, filter); err != nil {
		return stats, fmt.Errorf("store: delete expired reservations: %w", err)
	}

	return stats, nil
}

// Ping checks server reachability.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

func (s *MongoStore) promoteClaimed(ctx context.Context, pendingID string, now time.Time, promote func() (*models.User, error)) (*models.User, error) {
	user, err := promote()
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.New("promotion produced no account")
	}
	user.EnsureID()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.CreatedAt = user.CreatedAt.UTC().Truncate(time.Millisecond)
	user.UpdatedAt = user.CreatedAt

	sealed, err := s.sealUser(user)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.InsertOne(ctx, sealed); err != nil {
		return nil, err
	}
	s.transferReservation(ctx, pendingID, sealed)
	return user, nil
}

// reserve drops expired reservations on username or emailHash and inserts
// one for ownerID. The unique indexes reject a live holder.
func (s *MongoStore) reserve(ctx context.Context, ownerID, username, emailHash string, expiresAt, now time.Time) error {
	stale := bson.M{
		"$or":        bson.A{bson.M{"username": username}, bson.M{"email_hash": emailHash}},
		"expires_at": bson.M{"$lte": now},
	}
	if _, err := s.reservations.DeleteMany(ctx, stale); err != nil {
		return fmt.Errorf("purge stale reservations: %w", err)
	}

	reservation := &models.IdentityReservation{
		BaseModel: models.BaseModel{CreatedAt: now, UpdatedAt: now},
		OwnerID:   ownerID,
		Username:  username,
		EmailHash: emailHash,
		ExpiresAt: &expiresAt,
	}
	reservation.EnsureID()
	_, err := s.reservations.InsertOne(ctx, reservation)
	return err
}

// release drops the reservation held by ownerID after a failed insert.
func (s *MongoStore) release(ctx context.Context, ownerID, action string, cause error) error {
	if _, err := s.reservations.DeleteMany(ctx, bson.M{"owner_id": ownerID}); err != nil {
		logger.WithModule("store").Error("failed to release identity reservation",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
		cause = multierr.Append(cause, err)
	}
	return translateMongoError(action, cause)
}

// transferReservation hands the pending reservation to the new account. The
// account already exists and the users indexes protect it, so failures are
// logged rather than returned.
func (s *MongoStore) transferReservation(ctx context.Context, pendingID string, user *models.User) {
	log := logger.WithModule("store")
	res, err := s.reservations.UpdateOne(ctx,
		bson.M{"owner_id": pendingID},
		bson.M{
			"$set":   bson.M{"owner_id": user.ID, "updated_at": user.CreatedAt},
			"$unset": bson.M{"expires_at": ""},
		},
	)
	if err != nil {
		log.Error("failed to transfer identity reservation", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	if res.MatchedCount > 0 {
		return
	}

	reservation := &models.IdentityReservation{
		BaseModel: models.BaseModel{CreatedAt: user.CreatedAt, UpdatedAt: user.CreatedAt},
		OwnerID:   user.ID,
		Username:  user.Username,
		EmailHash: user.EmailHash,
	}
	reservation.EnsureID()
	if _, err := s.reservations.InsertOne(ctx, reservation); err != nil {
		log.Error("failed to reserve identity for account", zap.String("user_id", user.ID), zap.Error(err))
	}
}

// deletePending removes the pending document and releases its reservation.
func (s *MongoStore) deletePending(ctx context.Context, coll *mongo.Collection, action, id string) error {
	if err := deleteOne(ctx, coll, action, id); err != nil {
		return err
	}
	if _, err := s.reservations.DeleteMany(ctx, bson.M{"owner_id": id}); err != nil {
		return translateMongoError(action, err)
	}
	return nil
}

// truncateTimes rounds timestamps down to the precision MongoDB stores.
func truncateTimes(base *models.BaseModel, times ...*time.Time) {
	base.CreatedAt = base.CreatedAt.Truncate(time.Millisecond)
	base.UpdatedAt = base.UpdatedAt.UTC().Truncate(time.Millisecond)
	for _, t := range times {
		*t = t.UTC().Truncate(time.Millisecond)
	}
}

// restore puts a claimed document back after a failed promotion so the link
// stays usable.
func (s *MongoStore) restore(ctx context.Context, coll *mongo.Collection, doc any, action string, cause error) error {
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		logger.WithModule("store").Error("failed to restore claimed pending record",
			zap.String("collection", coll.Name()),
			zap.Error(err),
		)
		cause = multierr.Append(cause, err)
	}
	return translateMongoError(action, cause)
}

func (s *MongoStore) findUser(ctx context.Context, action string, filter bson.M) (*models.User, error) {
	var row models.User
	if err := s.users.FindOne(ctx, filter).Decode(&row); err != nil {
		return nil, translateMongoError(action, err)
	}
	return s.openUser(&row)
}

type existsCheck struct {
	coll   *mongo.Collection
	filter bson.M
}

func (s *MongoStore) anyExists(ctx context.Context, action string, checks []existsCheck) (bool, error) {
	for _, check := range checks {
		count, err := check.coll.CountDocuments(ctx, check.filter, options.Count().SetLimit(1))
		if err != nil {
			return false, fmt.Errorf("store: %s: %w", action, err)
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

func deleteOne(ctx context.Context, coll *mongo.Collection, action, id string) error {
	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return translateMongoError(action, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func liveTokenFilter(tokenHash string, now time.Time) bson.M {
	return bson.M{
		"token_hash": tokenHash,
		"expires_at": bson.M{"$gt": now.UTC()},
	}
}

func translateMongoError(action string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments), errors.Is(err, ErrNotFound):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("store: %s: %w", action, errors.Join(ErrDuplicate, err))
	default:
		return fmt.Errorf("store: %s: %w", action, err)
	}
}
