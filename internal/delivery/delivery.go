// Package delivery hands one-time codes and reset tokens to the outside
// world. Callers treat delivery as best effort.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/amirk1998/serendib-banking/internal/models"
)

// Channel delivers code to recipient over the named channel.
type Channel interface {
	Deliver(ctx context.Context, recipient, code string, channel models.Channel) error
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, recipient, code string, channel models.Channel) error

func (f ChannelFunc) Deliver(ctx context.Context, recipient, code string, channel models.Channel) error {
	return f(ctx, recipient, code, channel)
}

// Console prints deliveries, standing in for an SMS or mail gateway.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Deliver(_ context.Context, recipient, code string, channel models.Channel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "\n[System] Code %s to %s via %s\n", code, recipient, channel)
	return err
}

// Fanout delivers to every sink in order and reports all failures.
type Fanout []Channel

func (f Fanout) Deliver(ctx context.Context, recipient, code string, channel models.Channel) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Deliver(ctx, recipient, code, channel); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
