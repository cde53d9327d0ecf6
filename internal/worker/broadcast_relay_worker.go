package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"portalchat/internal/metrics"
	"portalchat/internal/platform/rabbitmq"
)

// Deliverer receives frames published by other instances.
type Deliverer interface {
	DeliverRelayed(frame []byte)
}

const (
	minResubscribeDelay = time.Second
	maxResubscribeDelay = 30 * time.Second
)

// subscription is one consuming channel; closeFn releases it.
type subscription struct {
	deliveries <-chan amqp.Delivery
	closeFn    func()
}

// BroadcastRelayWorker consumes the broadcast exchange through a private,
// auto-deleted queue and hands foreign frames to the local hub. When the
// delivery channel closes it subscribes again with backoff for as long as
// the connection is open. A lost connection stops the worker and is reported
// by the rabbitmq health check.
type BroadcastRelayWorker struct {
	conn      *amqp.Connection
	exchange  string
	origin    string
	deliverer Deliverer
	metrics   *metrics.Metrics
	log       zerolog.Logger

	subscribe  func() (subscription, error)
	retryDelay time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBroadcastRelayWorker(
	conn *amqp.Connection,
	exchange, origin string,
	deliverer Deliverer,
	m *metrics.Metrics,
	log zerolog.Logger,
) *BroadcastRelayWorker {
	w := &BroadcastRelayWorker{
		conn:       conn,
		exchange:   exchange,
		origin:     origin,
		deliverer:  deliverer,
		metrics:    m,
		log:        log,
		retryDelay: minResubscribeDelay,
	}
	w.subscribe = w.subscribeQueue
	return w
}

func (w *BroadcastRelayWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	sub, err := w.subscribe()
	if err != nil {
		return err
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(workerCtx, sub)
	}()

	w.log.Info().Str("exchange", w.exchange).Msg("broadcast relay started")
	return nil
}

func (w *BroadcastRelayWorker) run(ctx context.Context, sub subscription) {
	for {
		if !w.consume(ctx, sub) {
			return
		}
		w.log.Warn().Msg("relay delivery channel closed, resubscribing")

		var ok bool
		sub, ok = w.resubscribe(ctx)
		if !ok {
			return
		}
		w.log.Info().Msg("broadcast relay resubscribed")
	}
}

// consume reports true when the delivery channel closed and false when the
// worker is stopping.
func (w *BroadcastRelayWorker) consume(ctx context.Context, sub subscription) bool {
	defer sub.closeFn()
	for {
		select {
		case <-ctx.Done():
			return false
		case d, ok := <-sub.deliveries:
			if !ok {
				return true
			}
			w.handle(d.Body)
		}
	}
}

func (w *BroadcastRelayWorker) resubscribe(ctx context.Context) (subscription, bool) {
	delay := w.retryDelay
	for {
		select {
		case <-ctx.Done():
			return subscription{}, false
		case <-time.After(delay):
		}

		if w.conn != nil && w.conn.IsClosed() {
			w.log.Error().Msg("rabbitmq connection closed, broadcast relay stopped")
			return subscription{}, false
		}
		sub, err := w.subscribe()
		if err == nil {
			return sub, true
		}
		w.metrics.RecordRelayEvent("in", err)
		w.log.Warn().Err(err).Dur("retry_in", delay).Msg("resubscribe relay failed")

		delay *= 2
		if delay > maxResubscribeDelay {
			delay = maxResubscribeDelay
		}
	}
}

func (w *BroadcastRelayWorker) subscribeQueue() (subscription, error) {
	ch, err := w.conn.Channel()
	if err != nil {
		return subscription{}, fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareBroadcastExchange(ch, w.exchange); err != nil {
		_ = ch.Close()
		return subscription{}, err
	}

	queue, err := ch.QueueDeclare(
		"",
		false,
		true,
		true,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return subscription{}, fmt.Errorf("declare relay queue failed: %w", err)
	}
	if err := ch.QueueBind(queue.Name, "", w.exchange, false, nil); err != nil {
		_ = ch.Close()
		return subscription{}, fmt.Errorf("bind relay queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		queue.Name,
		"",
		true,
		true,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return subscription{}, fmt.Errorf("consume relay queue failed: %w", err)
	}

	w.log.Debug().Str("queue", queue.Name).Msg("relay queue bound")
	return subscription{
		deliveries: deliveries,
		closeFn:    func() { _ = ch.Close() },
	}, nil
}

func (w *BroadcastRelayWorker) handle(body []byte) {
	var event rabbitmq.BroadcastEvent
	if err := json.Unmarshal(body, &event); err != nil {
		w.metrics.RecordRelayEvent("in", err)
		w.log.Warn().Err(err).Msg("decode relay event failed")
		return
	}
	if event.Origin == w.origin || len(event.Frame) == 0 {
		return
	}
	w.metrics.RecordRelayEvent("in", nil)
	w.deliverer.DeliverRelayed(event.Frame)
}

func (w *BroadcastRelayWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
