package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	dombroadcast "github.com/Zhima-Mochi/comanda/internal/domain/broadcast"
	domorder "github.com/Zhima-Mochi/comanda/internal/domain/order"
	domreceipt "github.com/Zhima-Mochi/comanda/internal/domain/receipt"
	domtable "github.com/Zhima-Mochi/comanda/internal/domain/table"
	"github.com/Zhima-Mochi/comanda/internal/observability"
	"github.com/rabbitmq/amqp091-go"
)

const (
	updatesExchange = "comanda_updates_fanout"
	publishTimeout  = 10 * time.Second
)

// AMQPRelay forwards bus events to a RabbitMQ fanout exchange so displays
// outside this process (kitchen board, cashier screen, table map) receive
// the same update stream. It is one subscriber among others; its failures
// are swallowed by the bus like any display failure.
type AMQPRelay struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	url     string
	log     observability.Logger
}

// NewAMQPRelay dials RabbitMQ with retries and declares the fanout topology.
func NewAMQPRelay(url string, logger observability.Logger) (*AMQPRelay, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	r := &AMQPRelay{
		url: url,
		log: logger.With(observability.F("component", "amqp_relay")),
	}
	if err := r.connect(); err != nil {
		return nil, fmt.Errorf("failed to establish initial connection: %w", err)
	}
	return r, nil
}

func (r *AMQPRelay) connect() error {
	maxRetries := 5
	var err error

	for i := 0; i < maxRetries; i++ {
		r.conn, err = amqp091.Dial(r.url)
		if err == nil {
			r.channel, err = r.conn.Channel()
			if err == nil {
				if setupErr := r.setupTopology(); setupErr != nil {
					r.close()
					err = setupErr
				} else {
					return nil
				}
			} else {
				_ = r.conn.Close()
			}
		}

		if i < maxRetries-1 {
			waitTime := time.Duration(i+1) * 2 * time.Second
			r.log.Error("rabbitmq_connection_failed",
				observability.F("retry_in", waitTime.String()),
				observability.F("error", err),
			)
			time.Sleep(waitTime)
		}
	}

	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
}

func (r *AMQPRelay) setupTopology() error {
	err := r.channel.ExchangeDeclare(
		updatesExchange, // name
		"fanout",        // type
		true,            // durable
		false,           // auto-deleted
		false,           // internal
		false,           // no-wait
		nil,             // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare %s exchange: %w", updatesExchange, err)
	}
	return nil
}

// Attach registers the relay on the bus for every update topic.
func (r *AMQPRelay) Attach(sub dombroadcast.Subscriber) {
	sub.Subscribe(domorder.UpdatedEvent{}.EventName(), r.relay)
	sub.Subscribe(domtable.UpdatedEvent{}.EventName(), r.relay)
	sub.Subscribe(domreceipt.IssuedEvent{}.EventName(), r.relay)
}

func (r *AMQPRelay) relay(ctx context.Context, e dombroadcast.Event) error {
	if r.conn == nil || r.conn.IsClosed() {
		if err := r.connect(); err != nil {
			return fmt.Errorf("failed to reconnect: %w", err)
		}
	}

	body, err := json.Marshal(wireEnvelope{
		Event:    e.EventName(),
		Snapshot: e,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = r.channel.PublishWithContext(
		ctx,
		updatesExchange, // exchange
		"",              // routing key (ignored for fanout)
		false,           // mandatory
		false,           // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.EventName(), err)
	}

	r.log.Debug("event_relayed",
		observability.F("event", e.EventName()),
		observability.F("message_size", len(body)),
	)
	return nil
}

// Close closes the channel and connection.
func (r *AMQPRelay) Close() error {
	return r.close()
}

func (r *AMQPRelay) close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

type wireEnvelope struct {
	Event    string `json:"event"`
	Snapshot any    `json:"snapshot"`
}
