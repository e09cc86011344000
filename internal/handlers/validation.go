package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/get2knowme/pkg/errors"
	"github.com/charlesng35/get2knowme/pkg/response"
	appValidator "github.com/charlesng35/get2knowme/pkg/validator"
)

// bindJSON decodes the JSON payload into dest. A malformed body writes a 400 and returns false.
func bindJSON[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}
	return true
}

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response is automatically written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if !bindJSON(c, dest) {
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.ErrValidation.WithFields(validationFields(err)))
		return false
	}

	return true
}

func validationFields(err error) map[string]string {
	var failures appValidator.ValidationErrors
	if !errors.As(err, &failures) || len(failures) == 0 {
		return map[string]string{"request": "invalid request payload"}
	}

	fields := make(map[string]string, len(failures))
	for _, failure := range failures {
		field := prettifyFieldName(failure.Field)
		if _, seen := fields[field]; seen {
			continue
		}
		switch failure.Tag {
		case "required":
			fields[field] = "is required"
		case "email":
			fields[field] = "must be a valid email address"
		case "min":
			fields[field] = fmt.Sprintf("must be at least %s characters", failure.Param)
		case "max":
			fields[field] = fmt.Sprintf("must be at most %s characters", failure.Param)
		default:
			if failure.Param != "" {
				fields[field] = fmt.Sprintf("failed validation: %s=%s", failure.Tag, failure.Param)
			} else {
				fields[field] = fmt.Sprintf("failed validation: %s", failure.Tag)
			}
		}
	}
	return fields
}

func prettifyFieldName(name string) string {
	if name == "" {
		return "field"
	}
	return strings.TrimSpace(name)
}
