package privacy

import (
	"net/url"
	"strings"

	"satsync/internal/constants"
)

// MaskAccessID masks a mailbox access id showing only the last 4 characters
// Example: "70000934" -> "****0934"
func MaskAccessID(accessID string) string {
	return maskString(accessID, constants.DefaultMaskVisibleChars)
}

// MaskMobileID keeps the serial prefix and hides the rest
// Example: "01174907SKYFDA4" -> "01174907*******"
func MaskMobileID(mobileID string) string {
	if len(mobileID) <= 8 {
		return strings.Repeat("*", len(mobileID))
	}
	return mobileID[:8] + strings.Repeat("*", len(mobileID)-8)
}

// MaskSecret hides a secret completely while keeping emptiness visible
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

// MaskURL removes credentials from a gateway URL before it is logged
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	if u.User != nil {
		u.User = url.User("****")
	}
	q := u.Query()
	for _, key := range []string{"password", "access_id", "token"} {
		if q.Has(key) {
			q.Set(key, "****")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func maskString(s string, visible int) string {
	if s == "" {
		return ""
	}
	if len(s) <= visible {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-visible) + s[len(s)-visible:]
}
