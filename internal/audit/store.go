package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
)

// Store persists audit events. Events are append-only.
type Store interface {
	Append(ctx context.Context, event *Event) error
	// Query returns matching events newest first.
	Query(ctx context.Context, filters QueryFilters) ([]*Event, error)
}

type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, event *Event) error {
	s.mu.Lock()
	s.events = append(s.events, cloneEvent(event))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Query(_ context.Context, filters QueryFilters) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Event
	for i := len(s.events) - 1; i >= 0 && len(out) < filters.limit(); i-- {
		if filters.matches(&s.events[i]) {
			e := cloneEvent(&s.events[i])
			out = append(out, &e)
		}
	}
	return out, nil
}

func cloneEvent(e *Event) Event {
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// SQLStore writes to the audit_log table created by database.Migrate.
// Timestamps are stored in UTC so range filters compare correctly.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Append(ctx context.Context, event *Event) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
        INSERT INTO audit_log (
            id, timestamp, level, username, action, resource,
            success, error_message, metadata
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	_, err = s.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp.UTC(),
		string(event.Level),
		event.Username,
		event.Action,
		event.Resource,
		event.Success,
		event.ErrorMsg,
		string(metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}

	return nil
}

func (s *SQLStore) Query(ctx context.Context, filters QueryFilters) ([]*Event, error) {
	query := `
        SELECT id, timestamp, level, username, action, resource,
               success, error_message, metadata
        FROM audit_log
        WHERE 1=1
    `

	args := []any{}

	if filters.StartTime != nil {
		query += " AND timestamp >= ?"
		args = append(args, filters.StartTime.UTC())
	}

	if filters.EndTime != nil {
		query += " AND timestamp <= ?"
		args = append(args, filters.EndTime.UTC())
	}

	if filters.Username != "" {
		query += " AND username = ?"
		args = append(args, filters.Username)
	}

	if filters.Action != "" {
		query += " AND action = ?"
		args = append(args, filters.Action)
	}

	if filters.Level != "" {
		query += " AND level = ?"
		args = append(args, string(filters.Level))
	}

	query += " ORDER BY timestamp DESC, rowid DESC LIMIT ?"
	args = append(args, filters.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			event    Event
			level    string
			metadata string
		)
		err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&level,
			&event.Username,
			&event.Action,
			&event.Resource,
			&event.Success,
			&event.ErrorMsg,
			&metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		event.Level = LogLevel(level)
		if metadata != "" && metadata != "null" {
			if err := json.Unmarshal([]byte(metadata), &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
			}
		}
		events = append(events, &event)
	}

	return events, rows.Err()
}
