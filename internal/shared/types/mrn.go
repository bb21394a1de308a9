package types

import (
	"fmt"
	"regexp"
)

// MRN represents a medical record number as issued by the agency.
// Format: 7-10 digits, the last of which is a Luhn mod-10 check digit.
type MRN string

var mrnRegex = regexp.MustCompile(`^\d{7,10}$`)

// ParseMRN validates and parses an MRN string
func ParseMRN(s string) (MRN, error) {
	if !mrnRegex.MatchString(s) {
		return "", fmt.Errorf("MRN must be 7-10 digits")
	}

	mrn := MRN(s)
	if !mrn.IsValid() {
		return "", fmt.Errorf("invalid MRN check digit")
	}

	return mrn, nil
}

// String returns the string representation
func (m MRN) String() string {
	return string(m)
}

// Masked returns a masked version for display (last 4 digits visible)
func (m MRN) Masked() string {
	if len(m) < 4 {
		return "****"
	}
	masked := make([]byte, len(m))
	for i := range masked {
		masked[i] = '*'
	}
	copy(masked[len(m)-4:], m[len(m)-4:])
	return string(masked)
}

// IsValid validates the Luhn check digit
func (m MRN) IsValid() bool {
	if !mrnRegex.MatchString(string(m)) {
		return false
	}

	sum := 0
	double := true
	for i := len(m) - 2; i >= 0; i-- {
		d := int(m[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}

	check := (10 - sum%10) % 10
	return int(m[len(m)-1]-'0') == check
}

// IsZero checks if the MRN is empty
func (m MRN) IsZero() bool {
	return m == ""
}
