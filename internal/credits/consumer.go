package credits

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"rewards.ledger/internal/store"
)

const (
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 30 * time.Second
	processTimeout    = 15 * time.Second
)

var messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rewards_credit_messages_total",
	Help: "Referral credit messages consumed, by outcome.",
}, []string{"outcome"})

type Crediter interface {
	CreditReferral(ctx context.Context, input store.CreditInput) (store.Credit, bool, error)
}

// AppliedFunc is called after a credit changed a balance.
type AppliedFunc func(ctx context.Context, c store.Credit)

type Config struct {
	URL      string
	Queue    string
	Workers  int
	Prefetch int
}

type Consumer struct {
	cfg       Config
	crediter  Crediter
	onApplied AppliedFunc
	log       zerolog.Logger
}

func NewConsumer(cfg Config, crediter Crediter, onApplied AppliedFunc, log zerolog.Logger) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if onApplied == nil {
		onApplied = func(context.Context, store.Credit) {}
	}
	return &Consumer{
		cfg:       cfg,
		crediter:  crediter,
		onApplied: onApplied,
		log:       log.With().Str("component", "credit_consumer").Str("queue", cfg.Queue).Logger(),
	}
}

// Run consumes until ctx is cancelled, reconnecting with a growing delay
// whenever the broker connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			c.log.Info().Msg("credit consumer stopped")
			return nil
		}
		c.log.Error().Err(err).Dur("retry_in", delay).Msg("credit consumer disconnected")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return errors.Wrap(err, "dial rabbitmq")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "open channel")
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(
		c.cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return errors.Wrap(err, "declare queue")
	}

	if c.cfg.Prefetch > 0 {
		if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
			return errors.Wrap(err, "set qos")
		}
	}

	deliveries, err := ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "start consuming")
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	c.log.Info().Int("workers", c.cfg.Workers).Msg("credit consumer connected")

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(workerCtx, deliveries)
		}()
	}

	select {
	case <-ctx.Done():
		cancel()
		wg.Wait()
		return ctx.Err()
	case amqpErr := <-closed:
		cancel()
		wg.Wait()
		if amqpErr == nil {
			return errors.New("connection closed")
		}
		return amqpErr
	}
}

func (c *Consumer) worker(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			c.settle(d, c.process(ctx, d.Body))
		}
	}
}

type outcome int

const (
	outcomeAck outcome = iota
	outcomeReject
	outcomeRequeue
)

func (o outcome) String() string {
	switch o {
	case outcomeAck:
		return "ack"
	case outcomeReject:
		return "reject"
	default:
		return "requeue"
	}
}

// process applies one message body. Malformed bodies and credits for unknown
// profiles are rejected for good; anything else that fails is requeued.
func (c *Consumer) process(ctx context.Context, body []byte) outcome {
	ctx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()

	input, err := decodeMessage(body)
	if err != nil {
		c.log.Warn().Err(err).Str("body", string(body)).Msg("dropping malformed credit message")
		return outcomeReject
	}

	credit, applied, err := c.crediter.CreditReferral(ctx, input)
	if err != nil {
		if errors.Is(err, store.ErrProfileNotFound) || errors.Is(err, store.ErrInvalidAmount) {
			c.log.Warn().Err(err).Str("event_id", input.EventID).Msg("dropping credit message")
			return outcomeReject
		}
		c.log.Error().Err(err).Str("event_id", input.EventID).Msg("credit failed, requeueing")
		return outcomeRequeue
	}

	if !applied {
		c.log.Debug().Str("event_id", input.EventID).Msg("duplicate credit event")
		return outcomeAck
	}

	c.log.Info().
		Str("event", "credit_applied").
		Str("event_id", credit.EventID).
		Str("user_id", credit.UserID.String()).
		Str("amount", credit.Amount.StringFixed(2)).
		Msg("")
	c.onApplied(ctx, credit)
	return outcomeAck
}

func (c *Consumer) settle(d amqp.Delivery, o outcome) {
	messagesTotal.WithLabelValues(o.String()).Inc()

	var err error
	switch o {
	case outcomeAck:
		err = d.Ack(false)
	case outcomeReject:
		err = d.Nack(false, false)
	default:
		err = d.Nack(false, true)
	}
	if err != nil {
		c.log.Warn().Err(err).Str("outcome", o.String()).Msg("failed to settle delivery")
	}
}
