package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/get2knowme/internal/app"
)

var confirmLinkPattern = regexp.MustCompile(`https://get2knowme\.test/confirm-email\?token=[A-Za-z0-9_\-=%]+`)

type postmarkStub struct {
	mu       sync.Mutex
	messages []map[string]any
	server   *httptest.Server
}

func newPostmarkStub(t *testing.T) *postmarkStub {
	t.Helper()
	stub := &postmarkStub{}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Postmark-Server-Token") != "server-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"ErrorCode":10,"Message":"bad token"}`))
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		stub.mu.Lock()
		stub.messages = append(stub.messages, payload)
		stub.mu.Unlock()
		_, _ = w.Write([]byte(`{"MessageID":"msg-1","ErrorCode":0,"Message":"OK"}`))
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *postmarkStub) last(t *testing.T) map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.messages)
	return s.messages[len(s.messages)-1]
}

func testConfig(t *testing.T, postmarkURL string) *app.Config {
	t.Helper()
	cfg, err := app.LoadConfig(t.TempDir())
	require.NoError(t, err)

	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "bootstrap.sqlite")
	cfg.Registration.PublicURL = "https://get2knowme.test"
	cfg.Registration.BcryptCost = 4
	cfg.Server.RateLimit.Requests = 0
	cfg.Email.From = "noreply@get2knowme.test"
	if postmarkURL != "" {
		cfg.Email.Postmark.ServerToken = "server-token"
		cfg.Email.Postmark.Endpoint = postmarkURL
	}

	_, err = app.ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	return cfg
}

func serve(t *testing.T, stack *runtimeStack, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	stack.Router.ServeHTTP(w, req)
	return w
}

func TestBootstrapRuntimeServesRegistrationFlow(t *testing.T) {
	postmark := newPostmarkStub(t)
	cfg := testConfig(t, postmark.server.URL)

	stack, err := bootstrapRuntime(context.Background(), cfg, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.NotNil(t, stack.DB)
	require.NotNil(t, stack.Cleaner)
	require.Nil(t, stack.Redis)
	assert.False(t, stack.Audit.Failed(), stack.Audit.Checks)

	health := serve(t, stack, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, health.Code, health.Body.String())

	begin := serve(t, stack, http.MethodPost, "/api/registrations", map[string]any{
		"email":         "ada@example.com",
		"username":      "ada_l",
		"password":      "correct-horse-battery",
		"agreedToTerms": true,
		"ageConfirmed":  true,
	})
	require.Equal(t, http.StatusAccepted, begin.Code, begin.Body.String())
	assert.NotContains(t, begin.Body.String(), "token=")

	sent := postmark.last(t)
	assert.Equal(t, "ada@example.com", sent["To"])
	assert.Equal(t, "outbound", sent["MessageStream"])

	text, _ := sent["TextBody"].(string)
	link := confirmLinkPattern.FindString(text)
	require.NotEmpty(t, link, text)

	parsed := httptest.NewRequest(http.MethodGet, link, nil)
	token := parsed.URL.Query().Get("token")
	require.NotEmpty(t, token)

	confirm := serve(t, stack, http.MethodPost, "/api/registrations/confirm", map[string]string{"token": token})
	require.Equal(t, http.StatusCreated, confirm.Code, confirm.Body.String())
	assert.Contains(t, confirm.Body.String(), `"username":"ada_l"`)

	replay := serve(t, stack, http.MethodPost, "/api/registrations/confirm", map[string]string{"token": token})
	assert.Equal(t, http.StatusNotFound, replay.Code)
}

func TestBootstrapRuntimeWithoutMailerRejectsRegistration(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Maintenance.SweepEnabled = false

	stack, err := bootstrapRuntime(context.Background(), cfg, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })
	require.Nil(t, stack.Cleaner)

	w := serve(t, stack, http.MethodPost, "/api/registrations", map[string]any{
		"email":         "grace@example.com",
		"username":      "grace_h",
		"password":      "correct-horse-battery",
		"agreedToTerms": true,
		"ageConfirmed":  true,
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code, w.Body.String())
}

func TestBootstrapRuntimeRejectsShortFieldKey(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Security.FieldEncryptionKey = "short"

	_, err := bootstrapRuntime(context.Background(), cfg, nil, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field cipher")
}

func TestShutdownClosesDatabase(t *testing.T) {
	cfg := testConfig(t, "")

	stack, err := bootstrapRuntime(context.Background(), cfg, nil, zap.NewNop())
	require.NoError(t, err)

	stack.Shutdown(context.Background(), zap.NewNop())

	sqlDB, err := stack.DB.DB()
	require.NoError(t, err)
	assert.Error(t, sqlDB.Ping())
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestRunHelpFlag(t *testing.T) {
	err := run(context.Background(), []string{"-h"})
	assert.ErrorIs(t, err, flag.ErrHelp)
}
