package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
)

// Relay hands batches of unpublished records to publish and marks them
// published when publish returns nil.
type Relay interface {
	RelayOutbox(ctx context.Context, limit int, publish func(context.Context, []Record) error) (int, error)
}

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Publisher struct {
	relay     Relay
	writer    Writer
	logger    *slog.Logger
	topic     string
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	Topic     string
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(relay Relay, writer Writer, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Topic == "" {
		cfg.Topic = "slotbook.booking-events"
	}
	return &Publisher{
		relay:     relay,
		writer:    writer,
		logger:    logger,
		topic:     cfg.Topic,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

// NewKafkaWriter returns a writer that keeps all events of one booking on
// one partition.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				n, err := p.PublishBatch(ctx)
				if err != nil {
					p.logger.Warn("outbox publish failed", "err", err)
					break
				}
				if n < p.batchSize {
					break
				}
			}
		}
	}
}

// PublishBatch relays at most one batch and returns how many events went out.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	return p.relay.RelayOutbox(ctx, p.batchSize, func(ctx context.Context, records []Record) error {
		msgs := make([]kafka.Message, 0, len(records))
		for _, r := range records {
			msgs = append(msgs, p.message(ctx, r))
		}
		return p.writer.WriteMessages(ctx, msgs...)
	})
}

func (p *Publisher) message(ctx context.Context, r Record) kafka.Message {
	msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(r.Event.AggregateID),
		Value: r.Event.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(r.Event.EventID)},
			{Key: "event_type", Value: []byte(r.Event.EventType)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)
	return msg
}
