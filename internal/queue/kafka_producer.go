package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"

	kgo "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kgo.Message) error
	Close() error
}

// Producer publishes task events to Kafka. It satisfies tasks.EventPublisher.
type Producer struct {
	writer  messageWriter
	timeout time.Duration
	now     func() time.Time
}

func NewProducer(brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("queue: no kafka brokers")
	}
	if topic == "" {
		return nil, errors.New("queue: topic is required")
	}
	w := &kgo.Writer{
		Addr:         kgo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kgo.Hash{},
		RequiredAcks: kgo.RequireOne,
	}
	return &Producer{writer: w, timeout: 3 * time.Second, now: time.Now}, nil
}

func (p *Producer) Close() error { return p.writer.Close() }

func (p *Producer) TaskCreated(ctx context.Context, t models.Task) error {
	return p.Publish(ctx, createdEvent(t, p.now().UnixMilli()))
}

func (p *Producer) TaskStatusChanged(ctx context.Context, before, after models.Task) error {
	return p.Publish(ctx, statusEvent(before, after, p.now().UnixMilli()))
}

func (p *Producer) Publish(ctx context.Context, e TaskEvent) error {
	b, err := Encode(e)
	if err != nil {
		return err
	}

	// bounded so a request does not hang when Kafka is down
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(cctx, kgo.Message{
		Key:   []byte(e.Key()),
		Value: b,
		Time:  p.now(),
	}); err != nil {
		return fmt.Errorf("queue: publish %s %s: %w", e.Type, e.TaskID, err)
	}
	return nil
}
