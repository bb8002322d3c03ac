package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/leavend/genstudio/internal/infra"
)

// publishChannel is the part of *amqp.Channel the publisher uses.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// AMQP relays events through a fanout exchange. Every subscriber binds its
// own exclusive queue, so each api replica sees every event.
type AMQP struct {
	conn     *amqp.Connection
	exchange string
	logger   infra.Logger

	mu   sync.Mutex
	ch   publishChannel
	open func() (publishChannel, error)
}

func NewAMQP(url, exchange string, logger infra.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("relay: dial amqp: %w", err)
	}
	a := &AMQP{conn: conn, exchange: exchange, logger: infra.Component(logger, "relay.amqp")}
	a.open = a.openPublishChannel
	if a.ch, err = a.open(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return a, nil
}

// openPublishChannel opens a channel and makes sure the exchange exists. A
// channel exception closes the channel for good, so Publish calls it again.
func (a *AMQP) openPublishChannel() (publishChannel, error) {
	ch, err := a.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("relay: open channel: %w", err)
	}
	if err := declareExchange(ch, a.exchange); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeFanout,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("relay: declare exchange %s: %w", exchange, err)
	}
	return nil
}

func (a *AMQP) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("relay: encode event: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Body:         body,
		Timestamp:    time.Now(),
		Type:         evt.Type,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	ch, err := a.channel()
	if err != nil {
		return err
	}
	// fanout ignores the routing key
	err = ch.PublishWithContext(cctx, a.exchange, "", false, false, msg)
	if err == nil || !(errors.Is(err, amqp.ErrClosed) || ch.IsClosed()) {
		return err
	}
	a.logger.Warn().Err(err).Msg("publish channel closed, reopening")
	a.ch = nil
	if ch, err = a.channel(); err != nil {
		return err
	}
	return ch.PublishWithContext(cctx, a.exchange, "", false, false, msg)
}

// channel returns an open publish channel. Callers hold a.mu.
func (a *AMQP) channel() (publishChannel, error) {
	if a.ch != nil && !a.ch.IsClosed() {
		return a.ch, nil
	}
	if a.ch != nil {
		_ = a.ch.Close()
		a.ch = nil
	}
	ch, err := a.open()
	if err != nil {
		return nil, err
	}
	a.ch = ch
	return ch, nil
}

func (a *AMQP) Subscribe(ctx context.Context, handle func(Event)) error {
	ch, err := a.conn.Channel()
	if err != nil {
		return fmt.Errorf("relay: open channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("relay: declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", a.exchange, false, nil); err != nil {
		return fmt.Errorf("relay: bind queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("relay: consume: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("relay: delivery channel closed")
			}
			var evt Event
			if err := json.Unmarshal(d.Body, &evt); err != nil {
				a.logger.Warn().Err(err).Msg("dropping malformed event")
				continue
			}
			handle(evt)
		}
	}
}

func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ch != nil {
		_ = a.ch.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
