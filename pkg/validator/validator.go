package validator

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/amirk1998/serendib-banking/pkg/errors"
)

var (
	// NIC: 12 digits, 9 digits + V, or passport/driving licence prefixes + 7 digits
	nicRegex = regexp.MustCompile(`^(?:\d{12}|\d{9}[Vv]|(?:[Pp]|[Oo][Ll]|[Dd])\d{7})$`)

	// CASA account: ACC followed by 6 digits
	accountRegex = regexp.MustCompile(`^ACC\d{6}$`)

	mobileRegex = regexp.MustCompile(`^\d{10}$`)

	// Email: deliberately loose, the bank confirms contact details out of band
	emailRegex = regexp.MustCompile(`^\S+@\S+\.\S+$`)

	// Username: 4-12 word characters
	usernameRegex = regexp.MustCompile(`^\w{4,12}$`)

	otpRegex = regexp.MustCompile(`^\d{6}$`)
)

const minPasswordLength = 8

// MaxUsernameLength matches the upper bound of usernameRegex
const MaxUsernameLength = 12

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// ValidateNIC checks NIC or passport number format
func (v *Validator) ValidateNIC(nic string) error {
	if !nicRegex.MatchString(nic) {
		return errors.ErrInvalidNIC
	}
	return nil
}

// ValidateAccountNumber checks CASA account number format
func (v *Validator) ValidateAccountNumber(account string) error {
	if !accountRegex.MatchString(account) {
		return errors.ErrInvalidAccount
	}
	return nil
}

// ValidateMobile accepts an empty value or a 10 digit number
func (v *Validator) ValidateMobile(mobile string) error {
	if mobile == "" || mobileRegex.MatchString(mobile) {
		return nil
	}
	return errors.ErrInvalidMobile
}

// ValidateEmail accepts an empty value or a plausible address
func (v *Validator) ValidateEmail(email string) error {
	if email == "" {
		return nil
	}
	if len(email) > 255 || !emailRegex.MatchString(email) {
		return errors.ErrInvalidEmail
	}
	return nil
}

// ValidateUsername checks username format
func (v *Validator) ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return errors.ErrInvalidUsername
	}
	return nil
}

// ValidatePassword requires at least 8 characters with a letter and a digit
func (v *Validator) ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return errors.ErrWeakPassword
	}
	if strings.ContainsAny(password, "\r\n") {
		return errors.ErrWeakPassword
	}

	var hasLetter, hasDigit bool
	for _, char := range password {
		switch {
		case char < unicode.MaxASCII && unicode.IsLetter(char):
			hasLetter = true
		case char >= '0' && char <= '9':
			hasDigit = true
		}
	}

	if !hasLetter || !hasDigit {
		return errors.ErrWeakPassword
	}

	return nil
}

// ValidateOTP checks that a code is exactly six digits
func (v *Validator) ValidateOTP(code string) error {
	if !otpRegex.MatchString(code) {
		return errors.ErrInvalidOTP
	}
	return nil
}

// IsOTPFormat reports whether code is six digits
func IsOTPFormat(code string) bool {
	return otpRegex.MatchString(code)
}

// SanitizeString removes dangerous characters and null bytes
func (v *Validator) SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Trim whitespace
	input = strings.TrimSpace(input)

	return input
}
