package services

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/charlesng35/get2knowme/internal/fieldcrypt"
	"github.com/charlesng35/get2knowme/pkg/crypto"
)

const defaultTokenBytes = 48

// issueToken returns a fresh random token and the digest persisted for it.
func issueToken(size int) (token, digest string, err error) {
	token, err = crypto.GenerateToken(size)
	if err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	return token, crypto.HashToken(token), nil
}

// buildLink joins the public base URL, a page path and the token query.
func buildLink(baseURL, path, token string) string {
	base := strings.TrimRight(baseURL, "/")
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path + "?" + url.Values{"token": []string{token}}.Encode()
}

func normalizeEmail(value string) string {
	return fieldcrypt.Normalize(value)
}

func normalizeUsername(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
