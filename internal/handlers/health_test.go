package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	healthy := pingFunc(func(context.Context) error { return nil })
	broken := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name   string
		deps   map[string]Pinger
		status int
		checks map[string]string
	}{
		{name: "no dependencies", deps: nil, status: http.StatusOK, checks: map[string]string{}},
		{name: "healthy", deps: map[string]Pinger{"database": healthy}, status: http.StatusOK, checks: map[string]string{"database": "up"}},
		{name: "degraded", deps: map[string]Pinger{"database": healthy, "redis": broken}, status: http.StatusServiceUnavailable, checks: map[string]string{"database": "up", "redis": "down"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", Health(tc.deps))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tc.status, w.Code)

			var body struct {
				Success bool              `json:"success"`
				Checks  map[string]string `json:"checks"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.Equal(t, tc.status == http.StatusOK, body.Success)
			require.Equal(t, tc.checks, body.Checks)
		})
	}
}
