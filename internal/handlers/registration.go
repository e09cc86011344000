package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/get2knowme/internal/services"
	"github.com/charlesng35/get2knowme/pkg/response"
)

// RegistrationWorkflow is the subset of the registration service used over HTTP.
type RegistrationWorkflow interface {
	BeginRegistration(ctx context.Context, input services.RegistrationInput) (*services.RegistrationResult, error)
	ConfirmEmail(ctx context.Context, token string) (*services.Account, error)
	CancelRegistration(ctx context.Context, token string) error
	ApproveConsent(ctx context.Context, token string) (*services.Account, error)
	DeclineConsent(ctx context.Context, token string) error
}

// RegistrationHandler exposes registration, confirmation and guardian consent endpoints.
type RegistrationHandler struct {
	workflow RegistrationWorkflow
}

func NewRegistrationHandler(workflow RegistrationWorkflow) *RegistrationHandler {
	return &RegistrationHandler{workflow: workflow}
}

type tokenRequest struct {
	Token string `json:"token"`
}

type pendingResponse struct {
	Status    string    `json:"status"`
	Kind      string    `json:"kind"`
	Recipient string    `json:"recipient"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type accountResponse struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	IsChild        bool       `json:"isChild"`
	ConsentedBy    string     `json:"consentedBy,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	AccessToken    string     `json:"accessToken,omitempty"`
	TokenExpiresAt *time.Time `json:"tokenExpiresAt,omitempty"`
}

func newAccountResponse(account *services.Account) accountResponse {
	resp := accountResponse{
		ID:          account.ID,
		Username:    account.Username,
		Email:       account.Email,
		IsChild:     account.IsChild,
		ConsentedBy: account.ConsentedBy,
		CreatedAt:   account.CreatedAt,
		AccessToken: account.AccessToken,
	}
	if !account.TokenExpiresAt.IsZero() {
		expires := account.TokenExpiresAt
		resp.TokenExpiresAt = &expires
	}
	return resp
}

// POST /api/registrations
func (h *RegistrationHandler) Begin(c *gin.Context) {
	var req services.RegistrationInput
	if !bindJSON(c, &req) {
		return
	}
	req.IPAddress = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()

	result, err := h.workflow.BeginRegistration(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, "begin_registration", err)
		return
	}

	// The token is only ever delivered by email.
	response.Success(c, http.StatusAccepted, pendingResponse{
		Status:    "pending",
		Kind:      string(result.Kind),
		Recipient: maskEmail(result.Recipient),
		ExpiresAt: result.ExpiresAt,
	})
}

// POST /api/registrations/confirm
func (h *RegistrationHandler) Confirm(c *gin.Context) {
	var req tokenRequest
	if !bindJSON(c, &req) {
		return
	}

	account, err := h.workflow.ConfirmEmail(c.Request.Context(), req.Token)
	if err != nil {
		writeServiceError(c, "confirm_email", err)
		return
	}
	response.Success(c, http.StatusCreated, newAccountResponse(account))
}

// POST /api/registrations/cancel
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	var req tokenRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.workflow.CancelRegistration(c.Request.Context(), req.Token); err != nil {
		writeServiceError(c, "cancel_registration", err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "cancelled"})
}

// POST /api/consent/approve
func (h *RegistrationHandler) Approve(c *gin.Context) {
	var req tokenRequest
	if !bindJSON(c, &req) {
		return
	}

	account, err := h.workflow.ApproveConsent(c.Request.Context(), req.Token)
	if err != nil {
		writeServiceError(c, "approve_consent", err)
		return
	}
	response.Success(c, http.StatusCreated, newAccountResponse(account))
}

// POST /api/consent/decline
func (h *RegistrationHandler) Decline(c *gin.Context) {
	var req tokenRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.workflow.DeclineConsent(c.Request.Context(), req.Token); err != nil {
		writeServiceError(c, "decline_consent", err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "declined"})
}
