package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/amirk1998/serendib-banking/internal/logging"
	"github.com/amirk1998/serendib-banking/internal/models"
)

const defaultQueueSize = 1000

type Options struct {
	// FilePath mirrors every event as a JSON line when set.
	FilePath  string
	Async     bool
	QueueSize int
	Logger    *slog.Logger
	Now       func() time.Time
}

type Logger struct {
	store     Store
	file      *os.File
	fileMu    sync.Mutex
	asyncMode bool
	queue     chan *Event
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closed    atomic.Bool
	log       *slog.Logger
	now       func() time.Time
}

// NewLogger creates an audit logger writing to store and, optionally, a file
func NewLogger(store Store, opts Options) (*Logger, error) {
	al := &Logger{
		store:     store,
		asyncMode: opts.Async,
		log:       logging.OrDefault(opts.Logger),
		now:       opts.Now,
	}
	if al.now == nil {
		al.now = time.Now
	}

	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		al.file = f
	}

	al.ctx, al.cancel = context.WithCancel(context.Background())

	if al.asyncMode {
		size := opts.QueueSize
		if size <= 0 {
			size = defaultQueueSize
		}
		al.queue = make(chan *Event, size)
		al.startAsyncLogger()
	}

	return al, nil
}

// Log records event, filling in its ID and timestamp when unset
func (al *Logger) Log(ctx context.Context, event *Event) error {
	if al.closed.Load() {
		return fmt.Errorf("audit logger is closed")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = al.now()
	}
	if event.Level == "" {
		event.Level = LevelInfo
	}

	if al.asyncMode {
		select {
		case al.queue <- event:
			return nil
		default:
			return fmt.Errorf("audit log queue is full")
		}
	}

	return al.writeEvent(ctx, event)
}

func (al *Logger) writeEvent(ctx context.Context, event *Event) error {
	storeErr := al.store.Append(ctx, event)
	if storeErr != nil {
		// The file mirror still gets the event.
		al.log.Error("failed to write audit event to store", "action", event.Action, "error", storeErr)
	}

	if al.file != nil {
		line, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		al.fileMu.Lock()
		_, err = al.file.Write(append(line, '\n'))
		al.fileMu.Unlock()
		if err != nil {
			return fmt.Errorf("failed to write to log file: %w", err)
		}
	}

	return storeErr
}

func (al *Logger) startAsyncLogger() {
	al.wg.Add(1)
	go func() {
		defer al.wg.Done()
		for {
			select {
			case event := <-al.queue:
				if err := al.writeEvent(context.Background(), event); err != nil {
					al.log.Error("failed to write audit event", "error", err)
				}
			case <-al.ctx.Done():
				for {
					select {
					case event := <-al.queue:
						_ = al.writeEvent(context.Background(), event)
					default:
						return
					}
				}
			}
		}
	}()
}

func (al *Logger) Query(ctx context.Context, filters QueryFilters) ([]*Event, error) {
	return al.store.Query(ctx, filters)
}

// RecordLoginAttempt appends a credential check to the trail
func (al *Logger) RecordLoginAttempt(ctx context.Context, attempt models.LoginAttempt) error {
	level := LevelInfo
	if !attempt.Success {
		level = LevelWarning
	}
	return al.Log(ctx, &Event{
		Timestamp: attempt.Timestamp,
		Level:     level,
		Username:  models.NormalizeUsername(attempt.Username),
		Action:    ActionLoginAttempt,
		Resource:  "authentication",
		Success:   attempt.Success,
	})
}

// LoginHistory returns the most recent login attempts for username, newest first
func (al *Logger) LoginHistory(ctx context.Context, username string, limit int) ([]models.LoginAttempt, error) {
	events, err := al.store.Query(ctx, QueryFilters{
		Username: models.NormalizeUsername(username),
		Action:   ActionLoginAttempt,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load login history: %w", err)
	}

	history := make([]models.LoginAttempt, 0, len(events))
	for _, e := range events {
		history = append(history, models.LoginAttempt{
			Username:  e.Username,
			Timestamp: e.Timestamp,
			Success:   e.Success,
		})
	}
	return history, nil
}

// Close flushes queued events and closes the file mirror
func (al *Logger) Close() error {
	if !al.closed.CompareAndSwap(false, true) {
		return nil
	}

	al.cancel()
	al.wg.Wait()

	if al.file != nil {
		return al.file.Close()
	}
	return nil
}
