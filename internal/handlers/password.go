package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/get2knowme/pkg/response"
)

// PasswordResetWorkflow is the subset of the password reset service used over HTTP.
type PasswordResetWorkflow interface {
	RequestReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// PasswordHandler exposes the forgot/reset password endpoints.
type PasswordHandler struct {
	workflow PasswordResetWorkflow
}

func NewPasswordHandler(workflow PasswordResetWorkflow) *PasswordHandler {
	return &PasswordHandler{workflow: workflow}
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// POST /api/password/forgot
func (h *PasswordHandler) Forgot(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.workflow.RequestReset(c.Request.Context(), req.Email); err != nil {
		writeServiceError(c, "request_password_reset", err)
		return
	}
	// Same answer whether or not the address belongs to an account.
	response.Success(c, http.StatusAccepted, gin.H{"status": "sent"})
}

// POST /api/password/reset
func (h *PasswordHandler) Reset(c *gin.Context) {
	var req resetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.workflow.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		writeServiceError(c, "reset_password", err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "updated"})
}
