// Package validation holds the input predicates shared by checkout and the ledger.
package validation

import (
	"regexp"
	"strings"

	"commerce-service/internal/models"
)

var (
	nameRe    = regexp.MustCompile(`^[A-Za-z ]{2,50}$`)
	emailRe   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe   = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	pincodeRe = regexp.MustCompile(`^[1-9][0-9]{5}$`)
	nonDigit  = regexp.MustCompile(`[^0-9]`)

	sanitizer = strings.NewReplacer("<", "", ">", "", `"`, "", "'", "", "&", "")
)

const maxAddressLength = 500

// ValidName accepts 2 to 50 letters or spaces after trimming.
func ValidName(name string) bool {
	return nameRe.MatchString(strings.TrimSpace(name))
}

// ValidEmail checks for a local@domain.tld shape.
func ValidEmail(email string) bool {
	return emailRe.MatchString(strings.TrimSpace(email))
}

// ValidPhone strips formatting and expects a 10 digit Indian mobile number.
func ValidPhone(phone string) bool {
	return phoneRe.MatchString(NormalizePhone(phone))
}

// NormalizePhone keeps digits only.
func NormalizePhone(phone string) string {
	return nonDigit.ReplaceAllString(phone, "")
}

// ValidPincode expects six digits not starting with zero.
func ValidPincode(pincode string) bool {
	return pincodeRe.MatchString(strings.TrimSpace(pincode))
}

// SanitizeInput removes markup-significant characters and trims whitespace.
func SanitizeInput(s string) string {
	return strings.TrimSpace(sanitizer.Replace(s))
}

// Violations maps a field name to a human readable problem.
type Violations map[string]string

// Add records a violation for field, keeping the first message.
func (v Violations) Add(field, msg string) {
	if _, ok := v[field]; !ok {
		v[field] = msg
	}
}

// Empty reports whether no violation was recorded.
func (v Violations) Empty() bool {
	return len(v) == 0
}

// ValidateShipping checks every field of a checkout customer block.
func ValidateShipping(s models.ShippingDetails) Violations {
	v := Violations{}
	if !ValidName(s.Name) {
		v.Add("name", "name must be 2-50 letters or spaces")
	}
	if !ValidEmail(s.Email) {
		v.Add("email", "email address is invalid")
	}
	if !ValidPhone(s.Phone) {
		v.Add("phone", "phone must be a 10 digit number starting with 6-9")
	}
	address := SanitizeInput(s.Address)
	switch {
	case address == "":
		v.Add("address", "address is required")
	case len(address) > maxAddressLength:
		v.Add("address", "address is too long")
	}
	if !ValidPincode(s.Pincode) {
		v.Add("pincode", "pincode must be 6 digits and not start with 0")
	}
	return v
}

// SanitizeShipping returns a copy with free text sanitized and the phone normalized.
func SanitizeShipping(s models.ShippingDetails) models.ShippingDetails {
	return models.ShippingDetails{
		Name:    SanitizeInput(s.Name),
		Email:   strings.TrimSpace(s.Email),
		Phone:   NormalizePhone(s.Phone),
		Address: SanitizeInput(s.Address),
		Pincode: strings.TrimSpace(s.Pincode),
	}
}
