package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/get2knowme/internal/database/testutil"
	"github.com/charlesng35/get2knowme/internal/fieldcrypt"
	"github.com/charlesng35/get2knowme/internal/notifications"
	"github.com/charlesng35/get2knowme/internal/store"
	"github.com/charlesng35/get2knowme/pkg/crypto"
	"github.com/charlesng35/get2knowme/pkg/mail"
)

type sentNotification struct {
	Recipient string
	Kind      notifications.Kind
	Link      string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, recipient string, kind notifications.Kind, link string) (mail.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return mail.Receipt{}, f.err
	}
	f.sent = append(f.sent, sentNotification{Recipient: recipient, Kind: kind, Link: link})
	return mail.Receipt{Provider: "fake", MessageID: "fake-1", SubmittedAt: time.Now()}, nil
}

func (f *fakeNotifier) Sent() []sentNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentNotification, len(f.sent))
	copy(out, f.sent)
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) *store.GormStore {
	t.Helper()

	cipher, err := fieldcrypt.New([]byte("services-test-secret"), fieldcrypt.WithArgon2Parameters(crypto.Argon2Parameters{
		Time: 1, Memory: 1024, Threads: 1, KeyLength: 32,
	}))
	require.NoError(t, err)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	st, err := store.NewGormStore(db, cipher)
	require.NoError(t, err)
	return st
}
