package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"catalog/internal/domain"
	"catalog/internal/metrics"
	"catalog/internal/util"
)

const confirmTimeout = 10 * time.Second

var ErrBrokerClosed = errors.New("broker connection is closed")

// session is one live connection with a confirm-mode channel.
type session struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	connClosed chan *amqp.Error
	chanClosed chan *amqp.Error
}

func (s *session) close() {
	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}

type dialFunc func(url, exchange string) (*session, error)

// Topic publishes notifications to a durable topic exchange with publisher
// confirms enabled. A lost connection is re-dialed in the background with
// backoff; Publish fails fast with ErrBrokerClosed until it is back.
type Topic struct {
	url        string
	exchange   string
	routingKey string
	dial       dialFunc
	backoff    *util.Backoff
	logger     *zap.Logger

	mu        sync.RWMutex
	sess      *session
	healthy   atomic.Bool
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewTopic starts the connection loop. An unreachable broker is not an
// error: the first dial is retried in the background like any later one.
func NewTopic(url, exchange, routingKey string, l *zap.Logger) (*Topic, error) {
	if exchange == "" {
		return nil, fmt.Errorf("%w: notification exchange is empty", domain.ErrConfiguration)
	}
	return newTopic(url, exchange, routingKey, dialSession, util.NewBackoff(time.Second, 60*time.Second, 2), l), nil
}

func newTopic(url, exchange, routingKey string, dial dialFunc, backoff *util.Backoff, l *zap.Logger) *Topic {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Topic{
		url:        url,
		exchange:   exchange,
		routingKey: routingKey,
		dial:       dial,
		backoff:    backoff,
		logger:     l,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	metrics.BrokerHealthy.Set(0)

	sess, err := dial(url, exchange)
	if err != nil {
		l.Warn("RabbitMQ unavailable, will keep retrying", zap.Error(err))
	}
	go t.run(sess)
	return t
}

func dialSession(url, exchange string) (*session, error) {
	c, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := c.Channel()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		c.Close()
		return nil, fmt.Errorf("failed to declare topic exchange %q: %w", exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		c.Close()
		return nil, fmt.Errorf("failed to activate publisher confirms: %w", err)
	}

	s := &session{
		conn:       c,
		channel:    ch,
		connClosed: make(chan *amqp.Error, 1),
		chanClosed: make(chan *amqp.Error, 1),
	}
	c.NotifyClose(s.connClosed)
	ch.NotifyClose(s.chanClosed)
	return s, nil
}

// run owns the connection lifecycle until Close.
func (t *Topic) run(sess *session) {
	defer close(t.done)
	for {
		if sess == nil {
			sess = t.reconnect()
			if sess == nil {
				return
			}
		}
		t.setSession(sess)
		if !t.watch(sess) {
			return
		}
		sess = nil
	}
}

func (t *Topic) reconnect() *session {
	for {
		if err := t.backoff.Wait(t.ctx); err != nil {
			return nil
		}
		sess, err := t.dial(t.url, t.exchange)
		if err != nil {
			t.logger.Error("RabbitMQ reconnect failed, retrying",
				zap.Int("attempt", t.backoff.Attempts()), zap.Error(err))
			continue
		}
		t.backoff.Reset()
		return sess
	}
}

func (t *Topic) setSession(sess *session) {
	t.mu.Lock()
	old := t.sess
	t.sess = sess
	t.mu.Unlock()
	if old != nil {
		old.close()
	}

	t.healthy.Store(true)
	metrics.BrokerHealthy.Set(1)
	t.logger.Info("Connected to RabbitMQ notification exchange",
		zap.String("exchange", t.exchange), zap.String("routing_key", t.routingKey))
}

// watch blocks until sess is lost (true) or the topic is closed (false).
func (t *Topic) watch(sess *session) bool {
	select {
	case err := <-sess.connClosed:
		t.markUnhealthy("RabbitMQ connection closed", err)
		return true
	case err := <-sess.chanClosed:
		t.markUnhealthy("RabbitMQ channel closed", err)
		return true
	case <-t.ctx.Done():
		return false
	}
}

func (t *Topic) markUnhealthy(msg string, err *amqp.Error) {
	t.healthy.Store(false)
	metrics.BrokerHealthy.Set(0)
	if err != nil {
		t.logger.Warn(msg, zap.String("reason", err.Reason), zap.Int("code", err.Code))
		return
	}
	t.logger.Warn(msg)
}

// Publish sends body with subject as a header and waits for the broker's
// confirm.
func (t *Topic) Publish(ctx context.Context, subject string, body []byte) error {
	if !t.IsHealthy() {
		return ErrBrokerClosed
	}
	t.mu.RLock()
	sess := t.sess
	t.mu.RUnlock()
	if sess == nil || sess.channel == nil {
		return ErrBrokerClosed
	}

	deferred, err := sess.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		t.exchange,
		t.routingKey,
		false,
		false,
		publishing(subject, body),
	)
	if err != nil {
		return fmt.Errorf("publish call failed: %w", err)
	}

	timer := time.NewTimer(confirmTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deferred.Done():
		if !deferred.Acked() {
			return fmt.Errorf("RabbitMQ NACK received: notification not persisted")
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("publisher confirm timeout")
	}
}

func publishing(subject string, body []byte) amqp.Publishing {
	return amqp.Publishing{
		Headers:      amqp.Table{"subject": subject},
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         "catalog.products.created",
		Body:         body,
	}
}

func (t *Topic) Close() error {
	t.closeOnce.Do(func() {
		t.logger.Info("Closing RabbitMQ notification topic")
		t.cancel()
		<-t.done
		t.healthy.Store(false)
		t.mu.Lock()
		if t.sess != nil {
			t.sess.close()
			t.sess = nil
		}
		t.mu.Unlock()
	})
	return nil
}

func (t *Topic) IsHealthy() bool {
	return t.healthy.Load()
}
