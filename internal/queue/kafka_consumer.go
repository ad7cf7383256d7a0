package queue

import (
	"context"
	"time"

	kgo "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kgo.Message, error)
	CommitMessages(ctx context.Context, msgs ...kgo.Message) error
	Close() error
}

// Consumer reads task events with manual commits: an offset is committed only
// after the handler accepted the event, the event was parked on the retry
// topic, or it was dead-lettered after its last parking.
type Consumer struct {
	reader      messageReader
	log         *logrus.Logger
	backoff     []time.Duration
	hold        time.Duration
	retry       Publisher
	retryDelays []time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

// DefaultBackoff is the wait before each in-line handler retry.
var DefaultBackoff = []time.Duration{2 * time.Second, 5 * time.Second}

// DefaultRetryDelays are the waits before each redelivery from the retry
// topic. An event that fails once more after the last one is dead-lettered.
var DefaultRetryDelays = []time.Duration{30 * time.Second, 2 * time.Minute, 10 * time.Minute}

// DefaultHold is how long the partition is held between attempts when a
// failing event cannot be parked.
const DefaultHold = 10 * time.Second

func NewConsumer(brokers []string, topic, groupID string, log *logrus.Logger) *Consumer {
	r := kgo.NewReader(kgo.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commits
	})
	return newConsumer(r, log)
}

func newConsumer(r messageReader, log *logrus.Logger) *Consumer {
	return &Consumer{
		reader: r, log: log, backoff: DefaultBackoff, hold: DefaultHold,
		now: time.Now, sleep: sleepCtx,
	}
}

// WithRetry parks events that still fail after the in-line retries on p,
// one parking per entry of delays. Without it a failing event holds its
// partition until it succeeds.
func (c *Consumer) WithRetry(p Publisher, delays []time.Duration) *Consumer {
	if len(delays) == 0 {
		delays = DefaultRetryDelays
	}
	c.retry, c.retryDelays = p, delays
	return c
}

func (c *Consumer) Close() error { return c.reader.Close() }

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.WithError(err).Warn("queue: fetch")
			if err := c.sleep(ctx, 500*time.Millisecond); err != nil {
				return err
			}
			continue
		}
		if err := c.handle(ctx, m, h); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// handle returns once m is committed or ctx is done. Nothing behind m on its
// partition is fetched before that.
func (c *Consumer) handle(ctx context.Context, m kgo.Message, h Handler) error {
	e, err := Decode(m.Value)
	if err != nil {
		// commit bad messages so the partition does not get stuck on them
		c.log.WithFields(logrus.Fields{"offset": m.Offset, "partition": m.Partition}).
			WithError(err).Error("queue: dropping undecodable event")
		return c.commit(ctx, m)
	}
	log := c.log.WithFields(logrus.Fields{"company": e.CompanyID, "task": e.TaskID, "event": e.Type, "parked": e.Attempt})

	for {
		err := c.attempt(ctx, e, h, log)
		if err == nil {
			return c.commit(ctx, m)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.retry != nil {
			if e.Attempt >= len(c.retryDelays) {
				log.WithError(err).Error("queue: event dead-lettered, replay needed")
				return c.commit(ctx, m)
			}
			parked := e
			parked.Attempt++
			parked.NotBefore = c.now().Add(c.retryDelays[e.Attempt]).UnixMilli()
			perr := c.retry.Publish(ctx, parked)
			if perr == nil {
				log.WithError(err).WithField("not_before", parked.NotBefore).Warn("queue: event parked for retry")
				return c.commit(ctx, m)
			}
			log.WithError(perr).Error("queue: park event")
		}
		log.WithError(err).WithField("hold", c.hold.String()).Error("queue: handler failing, holding partition")
		if err := c.sleep(ctx, c.hold); err != nil {
			return err
		}
	}
}

// attempt runs h with the in-line backoff.
func (c *Consumer) attempt(ctx context.Context, e TaskEvent, h Handler, log *logrus.Entry) error {
	for i := 0; ; i++ {
		err := h.HandleTaskEvent(ctx, e)
		if err == nil || i >= len(c.backoff) {
			return err
		}
		log.WithError(err).WithField("attempt", i+1).Warn("queue: handler failed, retrying")
		if err := c.sleep(ctx, c.backoff[i]); err != nil {
			return err
		}
	}
}

func (c *Consumer) commit(ctx context.Context, m kgo.Message) error {
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.reader.CommitMessages(cctx, m); err != nil {
		// not fatal; the event may be reprocessed and handlers are idempotent
		c.log.WithError(err).Warn("queue: commit")
		return err
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
