package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/get2knowme/internal/services"
	appErrors "github.com/charlesng35/get2knowme/pkg/errors"
	"github.com/charlesng35/get2knowme/pkg/logger"
	"github.com/charlesng35/get2knowme/pkg/response"
)

// translateServiceError maps workflow errors onto the API error catalogue.
func translateServiceError(err error) *appErrors.AppError {
	var validation *services.ValidationError
	switch {
	case errors.As(err, &validation):
		return appErrors.ErrValidation.WithFields(validation.Fields).WithInternal(err)
	case errors.Is(err, services.ErrTokenNotFound):
		return appErrors.ErrTokenNotFound.WithInternal(err)
	case errors.Is(err, services.ErrConfiguration):
		return appErrors.ErrInternalServer.WithInternal(err)
	case errors.Is(err, services.ErrNotificationFailed):
		return appErrors.ErrDeliveryFailed.WithInternal(err)
	default:
		return appErrors.ErrInternalServer.WithInternal(err)
	}
}

// writeServiceError logs server-side failures and renders the translated error.
func writeServiceError(c *gin.Context, operation string, err error) {
	appErr := translateServiceError(err)
	if appErr.StatusCode >= 500 {
		log := logger.WithModule("handlers").With(
			zap.String("operation", operation),
			zap.Error(err),
		)
		if errors.Is(err, services.ErrConfiguration) {
			log.Error("service misconfigured")
		} else {
			log.Error("request failed")
		}
	}
	_ = c.Error(err)
	response.Error(c, appErr)
}
