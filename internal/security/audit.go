package security

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/charlesng35/get2knowme/internal/app"
	iauth "github.com/charlesng35/get2knowme/internal/auth"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

const maxPendingTTL = 7 * 24 * time.Hour

// Pinger reports whether the record store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// Failed reports whether any check failed.
func (r Result) Failed() bool {
	return r.Summary[string(StatusFail)] > 0
}

// AuditService evaluates the startup configuration that protects stored personal data
// and the links mailed to users.
type AuditService struct {
	store     Pinger
	jwt       *iauth.JWTService
	cfg       *app.Config
	generated map[string]bool
	now       func() time.Time
}

// NewAuditService constructs the audit service. All dependencies are optional; missing
// inputs degrade specific checks to warnings. generated lists the configuration keys
// filled in by app.ApplyRuntimeDefaults.
func NewAuditService(store Pinger, jwt *iauth.JWTService, cfg *app.Config, generated map[string]bool) *AuditService {
	return &AuditService{
		store:     store,
		jwt:       jwt,
		cfg:       cfg,
		generated: generated,
		now:       time.Now,
	}
}

// WithClock overrides the clock used in results (primarily for testing).
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all audit checks and returns their outcome.
func (s *AuditService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkStore(ctx),
		s.checkJWTSecret(),
		s.checkFieldKey(),
		s.checkPublicURL(),
		s.checkPendingTTL(),
		s.checkEmailDelivery(),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}

	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

func (s *AuditService) checkStore(ctx context.Context) Check {
	if s.store == nil {
		return Check{
			ID:          "store_reachable",
			Status:      StatusWarn,
			Message:     "Record store not initialised; unable to confirm connectivity.",
			Remediation: "Ensure database connectivity before running the audit.",
		}
	}

	if err := s.store.Ping(ctx); err != nil {
		return Check{
			ID:          "store_reachable",
			Status:      StatusFail,
			Message:     fmt.Sprintf("Record store unreachable: %v", err),
			Remediation: "Verify the database settings and network access.",
		}
	}

	return Check{
		ID:      "store_reachable",
		Status:  StatusPass,
		Message: "Record store reachable.",
	}
}

func (s *AuditService) checkJWTSecret() Check {
	if s.jwt == nil {
		return Check{
			ID:          "jwt_secret_strength",
			Status:      StatusWarn,
			Message:     "JWT service not initialised; unable to assess signing secret strength.",
			Remediation: "Initialise JWT service with a strong secret.",
		}
	}

	length := s.jwt.SecretLength()

	switch {
	case length == 0:
		return Check{
			ID:          "jwt_secret_strength",
			Status:      StatusFail,
			Message:     "Missing JWT signing secret.",
			Remediation: "Provide a cryptographically secure signing secret (>= 32 bytes).",
		}
	case length < 32:
		return Check{
			ID:          "jwt_secret_strength",
			Status:      StatusFail,
			Message:     fmt.Sprintf("JWT signing secret is too short (%d bytes).", length),
			Remediation: "Use a randomly generated secret of at least 32 bytes.",
		}
	case s.generated["auth.jwt.secret"]:
		return Check{
			ID:          "jwt_secret_strength",
			Status:      StatusWarn,
			Message:     "JWT signing secret was generated at startup; issued tokens stop validating after a restart.",
			Remediation: "Set GET2KNOWME_AUTH_JWT_SECRET to a persistent random value.",
			Details:     map[string]any{"length": length},
		}
	default:
		return Check{
			ID:      "jwt_secret_strength",
			Status:  StatusPass,
			Message: fmt.Sprintf("JWT signing secret length is %d bytes.", length),
			Details: map[string]any{"length": length},
		}
	}
}

func (s *AuditService) checkFieldKey() Check {
	if s.cfg == nil {
		return Check{
			ID:          "field_encryption_key",
			Status:      StatusWarn,
			Message:     "Configuration not loaded; unable to verify the field encryption key.",
			Remediation: "Load configuration before running the security audit.",
		}
	}

	length, err := app.KeyByteLength(s.cfg.Security.FieldEncryptionKey)
	switch {
	case err != nil || length == 0:
		return Check{
			ID:          "field_encryption_key",
			Status:      StatusFail,
			Message:     "Field encryption key is not configured.",
			Remediation: "Set GET2KNOWME_SECURITY_FIELD_ENCRYPTION_KEY to a 32 byte random value.",
		}
	case length < 32:
		return Check{
			ID:          "field_encryption_key",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Field encryption key decodes to %d bytes.", length),
			Remediation: "Use a key of at least 32 bytes.",
			Details:     map[string]any{"length": length},
		}
	case s.generated["security.field_encryption_key"]:
		return Check{
			ID:          "field_encryption_key",
			Status:      StatusWarn,
			Message:     "Field encryption key was generated at startup; stored records become unreadable after a restart.",
			Remediation: "Persist the key in GET2KNOWME_SECURITY_FIELD_ENCRYPTION_KEY.",
			Details:     map[string]any{"length": length},
		}
	default:
		return Check{
			ID:      "field_encryption_key",
			Status:  StatusPass,
			Message: "Field encryption key configured.",
			Details: map[string]any{"length": length},
		}
	}
}

func (s *AuditService) checkPublicURL() Check {
	if s.cfg == nil {
		return Check{
			ID:          "public_url_https",
			Status:      StatusWarn,
			Message:     "Configuration not loaded; unable to evaluate the public URL.",
			Remediation: "Load configuration before running the security audit.",
		}
	}

	raw := strings.TrimSpace(s.cfg.Registration.PublicURL)
	parsed, err := url.Parse(raw)
	if raw == "" || err != nil || parsed.Host == "" {
		return Check{
			ID:          "public_url_https",
			Status:      StatusFail,
			Message:     fmt.Sprintf("Public URL %q is not an absolute URL.", raw),
			Remediation: "Set registration.public_url to the address users open links on.",
		}
	}

	if parsed.Scheme != "https" {
		return Check{
			ID:          "public_url_https",
			Status:      StatusWarn,
			Message:     "Confirmation links are mailed over plain HTTP.",
			Remediation: "Serve the frontend over HTTPS and update registration.public_url.",
			Details:     map[string]any{"url": raw},
		}
	}

	return Check{
		ID:      "public_url_https",
		Status:  StatusPass,
		Message: "Confirmation links use HTTPS.",
		Details: map[string]any{"url": raw},
	}
}

func (s *AuditService) checkPendingTTL() Check {
	if s.cfg == nil {
		return Check{
			ID:          "pending_ttl",
			Status:      StatusWarn,
			Message:     "Configuration not loaded; unable to evaluate pending record lifetimes.",
			Remediation: "Load configuration before running the security audit.",
		}
	}

	reg := s.cfg.Registration
	ttls := map[string]time.Duration{
		"confirmation":   reg.ConfirmationTTL,
		"consent":        reg.ConsentTTL,
		"password_reset": reg.PasswordReset.TTL,
	}

	var long []string
	details := make(map[string]any, len(ttls))
	for name, ttl := range ttls {
		details[name] = ttl.String()
		if ttl > maxPendingTTL {
			long = append(long, name)
		}
	}

	if len(long) > 0 {
		sort.Strings(long)
		return Check{
			ID:          "pending_ttl",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Pending token lifetime exceeds %s for: %s.", maxPendingTTL, strings.Join(long, ", ")),
			Remediation: "Shorten token lifetimes to limit exposure of mailed links.",
			Details:     details,
		}
	}

	return Check{
		ID:      "pending_ttl",
		Status:  StatusPass,
		Message: "Pending token lifetimes are bounded.",
		Details: details,
	}
}

func (s *AuditService) checkEmailDelivery() Check {
	if s.cfg == nil {
		return Check{
			ID:          "email_delivery",
			Status:      StatusWarn,
			Message:     "Configuration not loaded; unable to evaluate email delivery.",
			Remediation: "Load configuration before running the security audit.",
		}
	}

	provider := s.cfg.Email.ResolvedProvider()
	if provider == "" {
		return Check{
			ID:          "email_delivery",
			Status:      StatusFail,
			Message:     "No email provider configured; registrations cannot be confirmed.",
			Remediation: "Configure email.postmark.server_token or enable email.smtp.",
		}
	}

	if strings.TrimSpace(s.cfg.Email.From) == "" {
		return Check{
			ID:          "email_delivery",
			Status:      StatusWarn,
			Message:     "Email sender address is empty.",
			Remediation: "Set email.from to a verified sender.",
			Details:     map[string]any{"provider": provider},
		}
	}

	return Check{
		ID:      "email_delivery",
		Status:  StatusPass,
		Message: fmt.Sprintf("Email delivery configured via %s.", provider),
		Details: map[string]any{"provider": provider},
	}
}
