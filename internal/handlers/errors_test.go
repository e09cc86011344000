package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/get2knowme/internal/notifications"
	"github.com/charlesng35/get2knowme/internal/services"
)

func TestTranslateServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{
			name:   "validation",
			err:    &services.ValidationError{Fields: map[string]string{"email": "is required"}},
			code:   "VALIDATION_ERROR",
			status: http.StatusBadRequest,
		},
		{
			name:   "token not found",
			err:    fmt.Errorf("confirm: %w", services.ErrTokenNotFound),
			code:   "TOKEN_NOT_FOUND",
			status: http.StatusNotFound,
		},
		{
			name:   "notification",
			err:    &services.NotificationError{Err: errors.New("postmark 422")},
			code:   "DELIVERY_FAILED",
			status: http.StatusBadGateway,
		},
		{
			name:   "configuration",
			err:    fmt.Errorf("%w: %w", services.ErrConfiguration, notifications.ErrNotConfigured),
			code:   "INTERNAL_SERVER_ERROR",
			status: http.StatusInternalServerError,
		},
		{
			name:   "unexpected",
			err:    errors.New("disk full"),
			code:   "INTERNAL_SERVER_ERROR",
			status: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			appErr := translateServiceError(tc.err)
			require.Equal(t, tc.code, appErr.Code)
			require.Equal(t, tc.status, appErr.StatusCode)
			require.ErrorIs(t, appErr, tc.err)
		})
	}

	appErr := translateServiceError(&services.ValidationError{Fields: map[string]string{"email": "is required"}})
	require.Equal(t, map[string]string{"email": "is required"}, appErr.Fields)
}

func TestMaskEmail(t *testing.T) {
	require.Equal(t, "a***@b.com", maskEmail("a@b.com"))
	require.Equal(t, "p***@example.com", maskEmail("parent@example.com"))
	require.Empty(t, maskEmail("invalid"))
	require.Empty(t, maskEmail("@example.com"))
}
