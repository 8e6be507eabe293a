package models

import "time"

// OTPRecord is the single live code for a session key
type OTPRecord struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiredAt reports whether the record is no longer valid at now
func (r OTPRecord) ExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// ResetToken is the single active password-reset token for a user
type ResetToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (t ResetToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
