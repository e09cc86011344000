package app

import (
	"github.com/charlesng35/get2knowme/internal/services"
)

// RegistrationOptions converts RegistrationConfig into RegistrationService options.
func (c RegistrationConfig) RegistrationOptions() []services.RegistrationOption {
	return []services.RegistrationOption{
		services.WithRegistrationBaseURL(c.PublicURL),
		services.WithConfirmationTTL(c.ConfirmationTTL),
		services.WithConsentTTL(c.ConsentTTL),
		services.WithRegistrationPaths(c.ConfirmEmailPath, c.ParentalConsentPath),
		services.WithRegistrationTokenSize(c.TokenBytes),
		services.WithRegistrationBcryptCost(c.BcryptCost),
	}
}

// PasswordResetOptions converts RegistrationConfig into PasswordResetService options.
func (c RegistrationConfig) PasswordResetOptions() []services.PasswordResetOption {
	return []services.PasswordResetOption{
		services.WithPasswordResetLink(c.PublicURL, c.PasswordReset.Path),
		services.WithPasswordResetTTL(c.PasswordReset.TTL),
		services.WithPasswordResetTokenSize(c.TokenBytes),
		services.WithPasswordResetBcryptCost(c.BcryptCost),
	}
}
