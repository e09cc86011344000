package handlers

import "strings"

// maskEmail keeps the first character of the local part and the domain: "a***@example.com".
func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return ""
	}
	return email[:1] + "***" + email[at:]
}
