package queue

import (
	"context"
	"time"

	kgo "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Requeuer moves parked events from the retry topic back to the main topic
// once their NotBefore has passed. An offset is committed only after the
// event was republished.
type Requeuer struct {
	reader  messageReader
	target  Publisher
	log     *logrus.Logger
	backoff time.Duration
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewRequeuer(brokers []string, retryTopic, groupID string, target Publisher, log *logrus.Logger) *Requeuer {
	r := kgo.NewReader(kgo.ReaderConfig{
		Brokers:        brokers,
		Topic:          retryTopic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	return newRequeuer(r, target, log)
}

func newRequeuer(r messageReader, target Publisher, log *logrus.Logger) *Requeuer {
	return &Requeuer{reader: r, target: target, log: log, backoff: 5 * time.Second, now: time.Now, sleep: sleepCtx}
}

func (q *Requeuer) Close() error { return q.reader.Close() }

// Run requeues until ctx is cancelled.
func (q *Requeuer) Run(ctx context.Context) error {
	for {
		m, err := q.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.log.WithError(err).Warn("requeue: fetch")
			if err := q.sleep(ctx, 500*time.Millisecond); err != nil {
				return err
			}
			continue
		}
		if err := q.handle(ctx, m); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (q *Requeuer) handle(ctx context.Context, m kgo.Message) error {
	e, err := Decode(m.Value)
	if err != nil {
		q.log.WithFields(logrus.Fields{"offset": m.Offset, "partition": m.Partition}).
			WithError(err).Error("requeue: dropping undecodable event")
		return q.commitMessage(ctx, m)
	}
	if wait := time.UnixMilli(e.NotBefore).Sub(q.now()); e.NotBefore > 0 && wait > 0 {
		if err := q.sleep(ctx, wait); err != nil {
			return err
		}
	}
	log := q.log.WithFields(logrus.Fields{"company": e.CompanyID, "task": e.TaskID, "event": e.Type, "parked": e.Attempt})
	for {
		err := q.target.Publish(ctx, e)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("requeue: republish failed, retrying")
		if err := q.sleep(ctx, q.backoff); err != nil {
			return err
		}
	}
	log.Debug("requeue: event released")
	return q.commitMessage(ctx, m)
}

func (q *Requeuer) commitMessage(ctx context.Context, m kgo.Message) error {
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := q.reader.CommitMessages(cctx, m); err != nil {
		q.log.WithError(err).Warn("requeue: commit")
		return err
	}
	return nil
}
