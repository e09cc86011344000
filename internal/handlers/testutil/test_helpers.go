package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/charlesng35/get2knowme/internal/api"
	"github.com/charlesng35/get2knowme/internal/app"
	iauth "github.com/charlesng35/get2knowme/internal/auth"
	sharedtestutil "github.com/charlesng35/get2knowme/internal/database/testutil"
	"github.com/charlesng35/get2knowme/internal/fieldcrypt"
	"github.com/charlesng35/get2knowme/internal/handlers"
	"github.com/charlesng35/get2knowme/internal/middleware"
	"github.com/charlesng35/get2knowme/internal/notifications"
	"github.com/charlesng35/get2knowme/internal/services"
	"github.com/charlesng35/get2knowme/internal/store"
	"github.com/charlesng35/get2knowme/pkg/crypto"
	"github.com/charlesng35/get2knowme/pkg/mail"
	"github.com/charlesng35/get2knowme/pkg/response"
)

// PublicURL is the base of every link mailed out by the test environment.
const PublicURL = "https://get2knowme.test"

// Sent records one notification captured by the Outbox.
type Sent struct {
	Recipient string
	Kind      notifications.Kind
	Link      string
}

// Outbox captures notifications instead of delivering them. Setting Err makes every send fail.
type Outbox struct {
	mu   sync.Mutex
	sent []Sent
	Err  error
}

func (o *Outbox) Send(_ context.Context, recipient string, kind notifications.Kind, link string) (mail.Receipt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return mail.Receipt{}, o.Err
	}
	o.sent = append(o.sent, Sent{Recipient: recipient, Kind: kind, Link: link})
	return mail.Receipt{Provider: "outbox", MessageID: "outbox-message", SubmittedAt: time.Now()}, nil
}

// Last returns the most recent notification.
func (o *Outbox) Last(t *testing.T) Sent {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent, "no notification captured")
	return o.sent[len(o.sent)-1]
}

// Len returns the number of captured notifications.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

// FailWith makes subsequent sends return err; nil restores delivery.
func (o *Outbox) FailWith(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Err = err
}

// Clock is a manually advanced time source shared by the services.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	Store  *store.GormStore
	Router *gin.Engine
	JWT    *iauth.JWTService
	Outbox *Outbox
	Clock  *Clock
	Config *app.Config
}

// EnvOption customises the test environment before the router is built.
type EnvOption func(*app.Config)

// WithRateLimit enables the in-memory rate limiter.
func WithRateLimit(requests int, window time.Duration) EnvOption {
	return func(cfg *app.Config) {
		cfg.Server.RateLimit = app.RateLimitConfig{Requests: requests, Window: window}
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())
	cipher, err := fieldcrypt.New([]byte("handler-suite-field-secret"), fieldcrypt.WithArgon2Parameters(crypto.Argon2Parameters{
		Time: 1, Memory: 1024, Threads: 1, KeyLength: 32,
	}))
	require.NoError(t, err)
	st, err := store.NewGormStore(db, cipher)
	require.NoError(t, err)

	clock := &Clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "test-suite-super-secret-key-32-bytes!!",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
		Clock:          clock.Now,
	})
	require.NoError(t, err)

	cfg := &app.Config{
		Registration: app.RegistrationConfig{
			PublicURL:       PublicURL,
			ConfirmationTTL: 24 * time.Hour,
			ConsentTTL:      24 * time.Hour,
			BcryptCost:      bcrypt.MinCost,
			PasswordReset:   app.PasswordResetConfig{TTL: time.Hour},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	outbox := &Outbox{}

	regOpts := append(cfg.Registration.RegistrationOptions(),
		services.WithRegistrationClock(clock.Now),
		services.WithAccessTokens(jwtSvc),
	)
	registration, err := services.NewRegistrationService(st, outbox, regOpts...)
	require.NoError(t, err)

	resetOpts := append(cfg.Registration.PasswordResetOptions(), services.WithPasswordResetClock(clock.Now))
	reset, err := services.NewPasswordResetService(st, outbox, resetOpts...)
	require.NoError(t, err)

	rates := middleware.NewMemoryRateStore()
	t.Cleanup(rates.Stop)

	router, err := api.NewRouter(api.Dependencies{
		Config:        cfg,
		Registration:  registration,
		PasswordReset: reset,
		HealthChecks:  map[string]handlers.Pinger{"database": st},
		RateStore:     rates,
	})
	require.NoError(t, err)

	return &Env{
		T:      t,
		Store:  st,
		Router: router,
		JWT:    jwtSvc,
		Outbox: outbox,
		Clock:  clock,
		Config: cfg,
	}
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding automatically.
func (e *Env) Request(method, path string, body any) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "handler-suite")

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// TokenFromLink extracts the token query parameter from a mailed link.
func TokenFromLink(t *testing.T, link string) string {
	t.Helper()
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token, link)
	return token
}
