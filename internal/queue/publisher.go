package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(ctx context.Context, url string) (channel, func() error, error)

const (
	// maxDialTimeout caps a connection attempt when ctx carries no
	// tighter deadline.
	maxDialTimeout = 5 * time.Second
	// redialCooldown is how long publishes fail fast after a dial error.
	redialCooldown = 5 * time.Second
)

// ErrBrokerUnavailable is returned while the publisher waits out the
// cooldown after a failed dial.
var ErrBrokerUnavailable = errors.New("broker unavailable")

// Publisher sends BookingConfirmedEvents to the booking queue.  The
// connection is opened on first use and reopened after a failed publish.
// Callers never wait longer than their context for the connection, and
// after a failed dial they fail fast until the cooldown passes.
type Publisher struct {
	url  string
	log  *zap.Logger
	dial dialFunc
	now  func() time.Time

	sem       *semaphore.Weighted
	ch        channel
	closeConn func() error
	retryAt   time.Time
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, log: log, dial: dialAMQP, now: time.Now, sem: semaphore.NewWeighted(1)}
}

func dialAMQP(ctx context.Context, url string) (channel, func() error, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout(ctx)),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, conn.Close, nil
}

// dialTimeout bounds the TCP connect and AMQP handshake by ctx's deadline.
func dialTimeout(ctx context.Context) time.Duration {
	d := maxDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			d = left
		}
	}
	if d <= 0 {
		d = time.Millisecond
	}
	return d
}

// BookingConfirmed publishes the confirmation of b as a persistent JSON
// message.
func (p *Publisher) BookingConfirmed(ctx context.Context, b model.Booking) error {
	body, err := json.Marshal(NewBookingConfirmedEvent(b))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for broker connection: %w", err)
	}
	defer p.sem.Release(1)
	ch, err := p.channelLocked(ctx)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", BookingQueueName, false, false, pub); err != nil {
		p.resetLocked()
		return fmt.Errorf("publish: %w", err)
	}
	p.log.Debug("booking confirmation published", zap.String("booking_id", b.ID))
	return nil
}

func (p *Publisher) channelLocked(ctx context.Context) (channel, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	if now := p.now(); now.Before(p.retryAt) {
		return nil, fmt.Errorf("%w: retry in %s", ErrBrokerUnavailable, p.retryAt.Sub(now).Round(time.Millisecond))
	}
	ch, closeConn, err := p.dial(ctx, p.url)
	if err != nil {
		p.retryAt = p.now().Add(redialCooldown)
		p.log.Warn("broker dial failed", zap.Error(err), zap.Duration("cooldown", redialCooldown))
		return nil, err
	}
	if _, err := ch.QueueDeclare(BookingQueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		if closeConn != nil {
			_ = closeConn()
		}
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.ch, p.closeConn = ch, closeConn
	return ch, nil
}

func (p *Publisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.closeConn != nil {
		_ = p.closeConn()
	}
	p.ch, p.closeConn = nil, nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	if err := p.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	p.resetLocked()
	return nil
}
