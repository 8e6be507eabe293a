package models

import (
	"strings"
	"time"
)

const StatusInitiated = "INITIATED"

type User struct {
	ID               int        `json:"id"`
	Username         string     `json:"username"`
	Password         string     `json:"-"` // Never expose in JSON
	DisplayName      string     `json:"display_name"`
	AccountNumber    string     `json:"account_number"`
	NIC              string     `json:"nic"`
	Status           string     `json:"status"`
	Mobile           string     `json:"mobile,omitempty"`
	Email            string     `json:"email,omitempty"`
	PreferredChannel Channel    `json:"preferred_channel,omitempty"`
	LoginAttempts    int        `json:"-"`
	LockedUntil      *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NormalizeUsername returns the directory key for a username
func NormalizeUsername(username string) string {
	return strings.ToLower(username)
}

// IsLocked reports whether a lock is active at now. A lock-until in the
// past is equivalent to no lock.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// Clone returns a copy that shares no pointers with u
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.LockedUntil != nil {
		until := *u.LockedUntil
		c.LockedUntil = &until
	}
	return &c
}

// ContactChannels lists the channels the user can receive codes on,
// mobile first.
func (u *User) ContactChannels() ChannelSet {
	var set ChannelSet
	if u.Mobile != "" {
		set = append(set, ChannelMobile)
	}
	if u.Email != "" {
		set = append(set, ChannelEmail)
	}
	return set
}

type OnboardRequest struct {
	NIC           string `json:"nic"`
	AccountNumber string `json:"account_number"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	DisplayName   string `json:"display_name"`
	Mobile        string `json:"mobile,omitempty"`
	Email         string `json:"email,omitempty"`
}

// LoginAttempt is an append-only audit record of a credential check
type LoginAttempt struct {
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
}
