package square

import (
	"github.com/nyaruka/phonenumbers"
)

// FormatPhone normalises a phone number to E.164 using countryCode (ISO 3166-1 alpha-2)
// as the default region. Numbers that cannot be parsed are returned unchanged.
func FormatPhone(raw, countryCode string) string {
	if raw == "" {
		return raw
	}
	num, err := phonenumbers.Parse(raw, countryCode)
	if err != nil {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
