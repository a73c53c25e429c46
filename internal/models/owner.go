package models

import (
	"fmt"
	"strings"
	"unicode"
)

// E.164 bounds. The combined user_id column holds at most
// MaxCountryCodeDigits+MaxPhoneDigits characters.
const (
	MaxPhoneDigits       = 15
	MaxCountryCodeDigits = 4
)

// ValidatePhone checks already-normalized digits.
func ValidatePhone(countryCode, phone string) error {
	if len(phone) > MaxPhoneDigits {
		return NewValidationError("phone", fmt.Sprintf("must have at most %d digits", MaxPhoneDigits))
	}
	if len(countryCode) > MaxCountryCodeDigits {
		return NewValidationError("countryCode", fmt.Sprintf("must have at most %d digits", MaxCountryCodeDigits))
	}
	return nil
}

// OwnerData is the buyer identity stored alongside a ticket.
type OwnerData struct {
	FullName    string `json:"fullName"`
	Phone       string `json:"phone"`
	CountryCode string `json:"countryCode,omitempty"`
	Email       string `json:"email,omitempty"`
	DocumentID  string `json:"documentId,omitempty"`
}

// OwnerPatch carries a partial owner update. Nil fields are left untouched.
type OwnerPatch struct {
	FullName    *string `json:"fullName,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	CountryCode *string `json:"countryCode,omitempty"`
	Email       *string `json:"email,omitempty"`
	DocumentID  *string `json:"documentId,omitempty"`
}

func (p OwnerPatch) IsEmpty() bool {
	return p.FullName == nil && p.Phone == nil && p.CountryCode == nil && p.Email == nil && p.DocumentID == nil
}

// Merge applies the patch field by field on top of o.
func (o OwnerData) Merge(p OwnerPatch) OwnerData {
	merged := o
	if p.FullName != nil {
		merged.FullName = strings.TrimSpace(*p.FullName)
	}
	if p.Phone != nil {
		merged.Phone = DigitsOnly(*p.Phone)
	}
	if p.CountryCode != nil {
		merged.CountryCode = DigitsOnly(*p.CountryCode)
	}
	if p.Email != nil {
		merged.Email = strings.TrimSpace(*p.Email)
	}
	if p.DocumentID != nil {
		merged.DocumentID = strings.TrimSpace(*p.DocumentID)
	}
	return merged
}

// DigitsOnly strips every non-digit rune, e.g. "+57 300-123" -> "57300123".
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r <= unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
