package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirk1998/serendib-banking/internal/logging"
)

const (
	defaultFailureThreshold = 5
	defaultFailureWindow    = 5 * time.Minute
)

// Monitor scans the trail for brute-force patterns
type Monitor struct {
	logger    *Logger
	threshold int
	window    time.Duration
	log       *slog.Logger
}

func NewMonitor(logger *Logger, log *slog.Logger) *Monitor {
	return &Monitor{
		logger:    logger,
		threshold: defaultFailureThreshold,
		window:    defaultFailureWindow,
		log:       logging.OrDefault(log),
	}
}

// DetectFailedLogins raises one CRITICAL event per username with at least
// threshold failed attempts inside the window, and returns those usernames.
func (m *Monitor) DetectFailedLogins(ctx context.Context) ([]string, error) {
	now := m.logger.now()
	since := now.Add(-m.window)

	events, err := m.logger.Query(ctx, QueryFilters{
		StartTime: &since,
		EndTime:   &now,
		Action:    ActionLoginAttempt,
		Limit:     1000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}

	failed := make(map[string]int)
	var order []string
	for _, event := range events {
		if event.Success || event.Username == "" {
			continue
		}
		if failed[event.Username] == 0 {
			order = append(order, event.Username)
		}
		failed[event.Username]++
	}

	var flagged []string
	for _, username := range order {
		count := failed[username]
		if count < m.threshold {
			continue
		}
		flagged = append(flagged, username)

		m.log.Warn("security alert: repeated failed logins",
			"username", username, "failures", count, "window", m.window.String())

		err := m.logger.Log(ctx, &Event{
			Level:    LevelCritical,
			Username: username,
			Action:   ActionFailedLoginThreshold,
			Resource: "authentication",
			Success:  false,
			ErrorMsg: fmt.Sprintf("%d failed attempts detected", count),
		})
		if err != nil {
			m.log.Error("failed to record security alert", "username", username, "error", err)
		}
	}

	return flagged, nil
}

// StartWorker runs DetectFailedLogins every interval until ctx is done
func (m *Monitor) StartWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.DetectFailedLogins(ctx); err != nil {
				m.log.Error("failed login detection failed", "error", err)
			}
		}
	}
}
