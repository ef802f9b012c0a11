package pairing

const (
	minNumberDigits = 7
	maxNumberDigits = 15
)

// NormalizePhoneNumber strips every non-digit character from a user-provided
// phone identifier: "+1 (555) 010-2020" becomes "15550102020".
func NormalizePhoneNumber(raw string) string {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] >= '0' && raw[i] <= '9' {
			out = append(out, raw[i])
		}
	}
	return string(out)
}

// ValidPhoneNumber reports whether a normalized identifier is a plausible
// international phone number: digits only, 7-15 of them.
func ValidPhoneNumber(number string) bool {
	if len(number) < minNumberDigits || len(number) > maxNumberDigits {
		return false
	}
	for i := 0; i < len(number); i++ {
		if number[i] < '0' || number[i] > '9' {
			return false
		}
	}
	return true
}
