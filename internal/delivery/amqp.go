package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/amirk1998/serendib-banking/internal/logging"
	"github.com/amirk1998/serendib-banking/internal/models"
)

const dialTimeout = 10 * time.Second

// Publisher is implemented by types that can publish JSON events.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body any) error
	Close()
}

// EventProducer publishes to a durable topic exchange on RabbitMQ.
type EventProducer struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	log     *slog.Logger
}

func NewEventProducer(amqpURL string, log *slog.Logger) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &EventProducer{conn: conn, channel: ch, log: logging.OrDefault(log)}, nil
}

// Publish declares the exchange and publishes body as JSON. A failed
// publish reopens the channel and retries once.
func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publishLocked(ctx, exchange, routingKey, payload)
	if err == nil {
		return nil
	}

	p.log.Warn("publish failed, reopening channel", "exchange", exchange, "error", err)
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return fmt.Errorf("failed to reopen channel: %w", chErr)
	}
	p.channel.Close()
	p.channel = ch

	return p.publishLocked(ctx, exchange, routingKey, payload)
}

func (p *EventProducer) publishLocked(ctx context.Context, exchange, routingKey string, payload []byte) error {
	if err := p.channel.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	})
}

func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// EventProducerFallback logs instead of publishing. It lets the CLI start
// when RabbitMQ is unreachable.
type EventProducerFallback struct {
	Log *slog.Logger
}

func (p *EventProducerFallback) Publish(_ context.Context, exchange, routingKey string, _ any) error {
	logging.OrDefault(p.Log).Warn("rabbitmq unavailable, message dropped", "exchange", exchange, "routing_key", routingKey)
	return nil
}

func (p *EventProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// CodeMessage is the body published for every delivery
type CodeMessage struct {
	Recipient string    `json:"recipient"`
	Code      string    `json:"code"`
	Channel   string    `json:"channel"`
	SentAt    time.Time `json:"sent_at"`
}

// AMQP routes deliveries to an SMS or mail worker through RabbitMQ. The
// routing key is "code.<channel>".
type AMQP struct {
	publisher Publisher
	exchange  string
	now       func() time.Time
}

func NewAMQP(publisher Publisher, exchange string) *AMQP {
	return &AMQP{publisher: publisher, exchange: exchange, now: time.Now}
}

func (a *AMQP) Deliver(ctx context.Context, recipient, code string, channel models.Channel) error {
	msg := CodeMessage{
		Recipient: recipient,
		Code:      code,
		Channel:   channel.String(),
		SentAt:    a.now(),
	}
	if err := a.publisher.Publish(ctx, a.exchange, "code."+channel.String(), msg); err != nil {
		return fmt.Errorf("failed to publish %s delivery: %w", channel, err)
	}
	return nil
}
