package audit

import "time"

type LogLevel string

const (
	LevelInfo     LogLevel = "INFO"
	LevelWarning  LogLevel = "WARNING"
	LevelError    LogLevel = "ERROR"
	LevelCritical LogLevel = "CRITICAL"
)

const (
	ActionLoginAttempt         = "LOGIN_ATTEMPT"
	ActionFailedLoginThreshold = "FAILED_LOGIN_THRESHOLD"
	ActionUserLocked           = "USER_LOCKED"
	ActionOnboardingLocked     = "ONBOARDING_LOCKED"
	ActionUserOnboarded        = "USER_ONBOARDED"
	ActionResetTokenIssued     = "RESET_TOKEN_ISSUED"
	ActionPasswordReset        = "PASSWORD_RESET"
)

type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Level     LogLevel          `json:"level"`
	Username  string            `json:"username,omitempty"`
	Action    string            `json:"action"`
	Resource  string            `json:"resource"`
	Success   bool              `json:"success"`
	ErrorMsg  string            `json:"error_msg,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type QueryFilters struct {
	StartTime *time.Time
	EndTime   *time.Time
	Username  string
	Action    string
	Level     LogLevel
	Limit     int
}

const defaultQueryLimit = 100

func (f QueryFilters) limit() int {
	if f.Limit <= 0 {
		return defaultQueryLimit
	}
	return f.Limit
}

func (f QueryFilters) matches(e *Event) bool {
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	if f.Username != "" && e.Username != f.Username {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Level != "" && e.Level != f.Level {
		return false
	}
	return true
}
