package store

import (
	"fmt"

	"github.com/charlesng35/get2knowme/internal/fieldcrypt"
	"github.com/charlesng35/get2knowme/internal/models"
)

// sealer applies field encryption to records crossing the store boundary.
type sealer struct {
	cipher *fieldcrypt.Cipher
}

func (s sealer) sealConsent(in models.ConsentRecord) (models.ConsentRecord, error) {
	ip, err := s.cipher.Encrypt(in.IPAddress)
	if err != nil {
		return in, err
	}
	in.IPAddress = ip
	return in, nil
}

func (s sealer) openConsent(in models.ConsentRecord) (models.ConsentRecord, error) {
	ip, err := s.cipher.Decrypt(in.IPAddress)
	if err != nil {
		return in, err
	}
	in.IPAddress = ip
	return in, nil
}

func (s sealer) sealConfirmation(in *models.PendingConfirmation) (*models.PendingConfirmation, error) {
	out := *in
	var err error
	out.EmailHash = s.cipher.BlindIndex(in.Email)
	if out.Email, err = s.cipher.Encrypt(in.Email); err != nil {
		return nil, fmt.Errorf("seal pending confirmation: %w", err)
	}
	if out.Consent, err = s.sealConsent(in.Consent); err != nil {
		return nil, fmt.Errorf("seal pending confirmation: %w", err)
	}
	return &out, nil
}

func (s sealer) openConfirmation(in *models.PendingConfirmation) (*models.PendingConfirmation, error) {
	out := *in
	var err error
	if out.Email, err = s.cipher.Decrypt(in.Email); err != nil {
		return nil, fmt.Errorf("open pending confirmation: %w", err)
	}
	if out.Consent, err = s.openConsent(in.Consent); err != nil {
		return nil, fmt.Errorf("open pending confirmation: %w", err)
	}
	return &out, nil
}

func (s sealer) sealRegistration(in *models.PendingRegistration) (*models.PendingRegistration, error) {
	out := *in
	var err error
	out.ChildEmailHash = s.cipher.BlindIndex(in.ChildEmail)
	out.ParentEmailHash = s.cipher.BlindIndex(in.ParentEmail)
	if out.ChildEmail, err = s.cipher.Encrypt(in.ChildEmail); err != nil {
		return nil, fmt.Errorf("seal pending registration: %w", err)
	}
	if out.ParentEmail, err = s.cipher.Encrypt(in.ParentEmail); err != nil {
		return nil, fmt.Errorf("seal pending registration: %w", err)
	}
	if out.Consent, err = s.sealConsent(in.Consent); err != nil {
		return nil, fmt.Errorf("seal pending registration: %w", err)
	}
	return &out, nil
}

func (s sealer) openRegistration(in *models.PendingRegistration) (*models.PendingRegistration, error) {
	out := *in
	var err error
	if out.ChildEmail, err = s.cipher.Decrypt(in.ChildEmail); err != nil {
		return nil, fmt.Errorf("open pending registration: %w", err)
	}
	if out.ParentEmail, err = s.cipher.Decrypt(in.ParentEmail); err != nil {
		return nil, fmt.Errorf("open pending registration: %w", err)
	}
	if out.Consent, err = s.openConsent(in.Consent); err != nil {
		return nil, fmt.Errorf("open pending registration: %w", err)
	}
	return &out, nil
}

func (s sealer) sealUser(in *models.User) (*models.User, error) {
	out := *in
	var err error
	out.EmailHash = s.cipher.BlindIndex(in.Email)
	if in.ParentEmail != "" {
		out.ParentEmailHash = s.cipher.BlindIndex(in.ParentEmail)
	}
	if out.Email, err = s.cipher.Encrypt(in.Email); err != nil {
		return nil, fmt.Errorf("seal user: %w", err)
	}
	if out.ParentEmail, err = s.cipher.Encrypt(in.ParentEmail); err != nil {
		return nil, fmt.Errorf("seal user: %w", err)
	}
	if out.Consent, err = s.sealConsent(in.Consent); err != nil {
		return nil, fmt.Errorf("seal user: %w", err)
	}
	return &out, nil
}

func (s sealer) openUser(in *models.User) (*models.User, error) {
	out := *in
	var err error
	if out.Email, err = s.cipher.Decrypt(in.Email); err != nil {
		return nil, fmt.Errorf("open user: %w", err)
	}
	if out.ParentEmail, err = s.cipher.Decrypt(in.ParentEmail); err != nil {
		return nil, fmt.Errorf("open user: %w", err)
	}
	if out.Consent, err = s.openConsent(in.Consent); err != nil {
		return nil, fmt.Errorf("open user: %w", err)
	}
	return &out, nil
}
