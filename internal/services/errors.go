package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charlesng35/get2knowme/internal/notifications"
	"github.com/charlesng35/get2knowme/internal/store"
	"github.com/charlesng35/get2knowme/pkg/validator"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrTokenNotFound covers expired, consumed and never-issued tokens alike.
	ErrTokenNotFound = errors.New("token not found or expired")
	// ErrNotificationFailed matches every *NotificationError.
	ErrNotificationFailed = errors.New("notification could not be delivered")
	// ErrConfiguration signals an operator-fixable setup problem such as a missing mail credential.
	ErrConfiguration = errors.New("service is not configured")
)

// ValidationError reports user-correctable input problems keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotificationError wraps a delivery failure after the pending record was persisted.
type NotificationError struct {
	Err error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("%s: %v", ErrNotificationFailed, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrNotificationFailed) match.
func (e *NotificationError) Is(target error) bool {
	return target == ErrNotificationFailed
}

// fromValidator converts struct validation failures into a ValidationError.
func fromValidator(err error) error {
	var failures validator.ValidationErrors
	if !errors.As(err, &failures) {
		return err
	}

	fields := make(map[string]string, len(failures))
	for _, f := range failures {
		if _, exists := fields[f.Field]; exists {
			continue
		}
		fields[f.Field] = describeRule(f.Tag, f.Param)
	}
	return &ValidationError{Fields: fields}
}

func describeRule(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "username":
		return "must be 3-32 characters of lowercase letters, digits, '.', '_' or '-'"
	case "min":
		return "must be at least " + param + " characters"
	case "max":
		return "must be at most " + param + " characters"
	case "maxbytes":
		return "must be at most " + param + " bytes"
	default:
		return "is invalid"
	}
}

// notificationFailure maps an adapter error onto the workflow taxonomy.
func notificationFailure(err error) error {
	if errors.Is(err, notifications.ErrNotConfigured) {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return &NotificationError{Err: err}
}

// tokenFailure maps store lookups onto ErrTokenNotFound.
func tokenFailure(action string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrTokenNotFound
	case errors.Is(err, store.ErrDuplicate):
		return newValidationError("username", "username or email is already registered")
	case errors.Is(err, ErrValidation):
		return err
	default:
		return fmt.Errorf("%s: %w", action, err)
	}
}
