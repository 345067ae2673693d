package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

const (
	defaultExchange     = "vidhub.events"
	defaultQueueSize    = 256
	defaultMaxAttempts  = 3
	defaultRetryDelay   = 200 * time.Millisecond
	defaultDrainTimeout = 5 * time.Second
)

var (
	ErrPublisherClosed = errors.New("amqp publisher closed")
	ErrQueueFull       = errors.New("amqp publish queue full")
)

// AMQPConfig points the publisher at a RabbitMQ broker. Zero values select
// the defaults.
type AMQPConfig struct {
	URL      string
	Exchange string
	Logger   *slog.Logger

	// QueueSize bounds the events waiting for the broker. Publish fails
	// fast with ErrQueueFull once it is reached.
	QueueSize int
	// MaxAttempts is how often one event is tried, reconnecting in between,
	// before it is dropped.
	MaxAttempts  int
	RetryDelay   time.Duration
	DrainTimeout time.Duration
}

type amqpChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialFunc opens a channel with the exchange declared, plus a function that
// closes the underlying connection.
type dialFunc func() (amqpChannel, func() error, error)

// AMQPPublisher writes events to a durable topic exchange, routed by event
// type. Publish only enqueues; a background worker delivers, redialling the
// broker when the connection drops.
type AMQPPublisher struct {
	exchange     string
	logger       *slog.Logger
	now          func() time.Time
	maxAttempts  int
	retryDelay   time.Duration
	drainTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Event

	sessMu    sync.Mutex
	dial      dialFunc
	channel   amqpChannel
	closeConn func() error

	abort chan struct{}
	done  chan struct{}
}

func NewAMQPPublisher(cfg AMQPConfig) (*AMQPPublisher, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("amqp url is required")
	}
	exchange := strings.TrimSpace(cfg.Exchange)
	if exchange == "" {
		exchange = defaultExchange
	}
	cfg.Exchange = exchange
	return newAMQPPublisher(cfg, func() (amqpChannel, func() error, error) {
		return dialAMQP(url, exchange)
	})
}

func dialAMQP(url, exchange string) (amqpChannel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return channel, conn.Close, nil
}

// newAMQPPublisher dials once up front so a misconfigured broker fails
// startup, then starts the delivery worker.
func newAMQPPublisher(cfg AMQPConfig, dial dialFunc) (*AMQPPublisher, error) {
	p := &AMQPPublisher{
		exchange:     cfg.Exchange,
		logger:       cfg.Logger,
		now:          time.Now,
		maxAttempts:  cfg.MaxAttempts,
		retryDelay:   cfg.RetryDelay,
		drainTimeout: cfg.DrainTimeout,
		dial:         dial,
		abort:        make(chan struct{}),
		done:         make(chan struct{}),
	}
	if p.exchange == "" {
		p.exchange = defaultExchange
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = defaultMaxAttempts
	}
	if p.retryDelay <= 0 {
		p.retryDelay = defaultRetryDelay
	}
	if p.drainTimeout <= 0 {
		p.drainTimeout = defaultDrainTimeout
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	p.queue = make(chan Event, size)

	if _, err := p.session(); err != nil {
		return nil, err
	}
	go p.run()
	return p, nil
}

// Publish stamps the event and hands it to the delivery worker without
// waiting on the broker.
func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.queue <- event:
		return nil
	default:
		return fmt.Errorf("publish %s: %w", event.Type, ErrQueueFull)
	}
}

// Close stops accepting events and waits up to the drain timeout for queued
// ones to reach the broker before closing the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	timer := time.NewTimer(p.drainTimeout)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
		close(p.abort)
		p.logger.Warn("event queue not drained before shutdown", "pending", len(p.queue))
	}
	err := p.closeSession()
	<-p.done
	return err
}

func (p *AMQPPublisher) run() {
	defer close(p.done)
	for event := range p.queue {
		select {
		case <-p.abort:
			continue
		default:
		}
		p.deliver(event)
	}
}

func (p *AMQPPublisher) deliver(event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("encode event", "type", event.Type, "video_id", event.VideoID, "error", err)
		return
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Type:         event.Type,
		Body:         body,
	}
	for attempt := 1; ; attempt++ {
		err := p.send(event.Type, msg)
		if err == nil {
			return
		}
		if attempt >= p.maxAttempts {
			p.logger.Error("dropping event after failed deliveries", "type", event.Type, "video_id", event.VideoID, "attempts", attempt, "error", err)
			return
		}
		p.logger.Warn("event delivery failed", "type", event.Type, "attempt", attempt, "error", err)
		select {
		case <-p.abort:
			return
		case <-time.After(p.retryDelay * time.Duration(attempt)):
		}
	}
}

func (p *AMQPPublisher) send(key string, msg amqp.Publishing) error {
	channel, err := p.session()
	if err != nil {
		return err
	}
	if err := channel.Publish(p.exchange, key, false, false, msg); err != nil {
		p.reset(channel)
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// session returns the open channel, dialling a new connection if the last
// one was dropped.
func (p *AMQPPublisher) session() (amqpChannel, error) {
	p.sessMu.Lock()
	defer p.sessMu.Unlock()
	if p.channel != nil {
		return p.channel, nil
	}
	if p.dial == nil {
		return nil, ErrPublisherClosed
	}
	channel, closeConn, err := p.dial()
	if err != nil {
		return nil, err
	}
	p.channel, p.closeConn = channel, closeConn
	return channel, nil
}

// reset discards stale so the next send redials.
func (p *AMQPPublisher) reset(stale amqpChannel) {
	p.sessMu.Lock()
	defer p.sessMu.Unlock()
	if p.channel != stale {
		return
	}
	_ = p.channel.Close()
	if p.closeConn != nil {
		_ = p.closeConn()
	}
	p.channel, p.closeConn = nil, nil
}

func (p *AMQPPublisher) closeSession() error {
	p.sessMu.Lock()
	defer p.sessMu.Unlock()
	p.dial = nil
	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
		p.channel = nil
	}
	if p.closeConn != nil {
		errs = append(errs, p.closeConn())
		p.closeConn = nil
	}
	return errors.Join(errs...)
}
