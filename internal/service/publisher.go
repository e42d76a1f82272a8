package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/slot-booking/internal/queue"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher closed")

// ErrBrokerUnavailable is returned while a failed redial is backing off.
var ErrBrokerUnavailable = errors.New("rabbitmq unavailable")

const (
	defaultDialTimeout = 5 * time.Second
	redialBackoff      = 5 * time.Second
)

// AMQPPublisher publishes ledger events to the booking.events topic
// exchange with the event kind as routing key.  It keeps one connection
// and channel open and redials once when the broker dropped them.
type AMQPPublisher struct {
	url string
	log *slog.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	closed   bool
	nextDial time.Time
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(url string, log *slog.Logger) (*AMQPPublisher, error) {
	if log == nil {
		log = slog.Default()
	}
	p := &AMQPPublisher{url: url, log: log}
	if err := p.connect(defaultDialTimeout); err != nil {
		return nil, err
	}
	return p, nil
}

// connect dials with timeout covering both the TCP dial and the AMQP
// handshake.
func (p *AMQPPublisher) connect(timeout time.Duration) error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	// Durable so the exchange survives broker restarts.
	if err := ch.ExchangeDeclare(queue.ExchangeName, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

// Publish sends ev as a persistent JSON message.
func (p *AMQPPublisher) Publish(ctx context.Context, ev queue.BookingEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	if p.ch == nil || p.ch.IsClosed() {
		if err := p.redial(ctx); err != nil {
			return err
		}
	}
	if err := p.ch.PublishWithContext(ctx, queue.ExchangeName, ev.Kind, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}
	return nil
}

// redial reconnects within the deadline of ctx.  After a failure further
// attempts are skipped for redialBackoff so a stalled broker costs one
// caller its budget instead of every caller.
func (p *AMQPPublisher) redial(ctx context.Context) error {
	now := time.Now()
	if now.Before(p.nextDial) {
		return ErrBrokerUnavailable
	}
	timeout := defaultDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}
	p.log.Info("rabbitmq: channel closed, reconnecting")
	_ = p.release()
	if err := p.connect(timeout); err != nil {
		p.nextDial = now.Add(redialBackoff)
		return err
	}
	p.nextDial = time.Time{}
	return nil
}

// Close shuts the channel and connection down.  Later Publish calls fail
// with ErrPublisherClosed.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.release()
}

func (p *AMQPPublisher) release() error {
	var err error
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err = p.conn.Close()
		p.conn = nil
	}
	return err
}
