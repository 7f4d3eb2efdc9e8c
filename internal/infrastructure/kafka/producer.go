package kafka

import (
	"context"
	"errors"
	"strings"
	"time"

	"payboard/internal/domain"
	"payboard/internal/infrastructure/telemetry"
	"payboard/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultTopic = "payboard-finalized"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes finalize events keyed by receiver handle, so events for
// one handle stay on one partition.
type Producer struct {
	writer    messageWriter
	topic     string
	now       func() time.Time
	onPublish func(outcome string)
}

type ProducerConfig struct {
	Brokers []string
	Topic   string
	// OnPublish is called after every publish attempt with "ok" or "error".
	OnPublish func(outcome string)
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return newProducer(writer, cfg), nil
}

func newProducer(writer messageWriter, cfg ProducerConfig) *Producer {
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		topic = DefaultTopic
	}
	onPublish := cfg.OnPublish
	if onPublish == nil {
		onPublish = func(string) {}
	}
	return &Producer{writer: writer, topic: topic, now: time.Now, onPublish: onPublish}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) PublishFinalized(ctx context.Context, handle string, record domain.PaymentRecord) error {
	ctx, span := otel.Tracer("payboard/kafka").Start(ctx, "finalize.publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.destination.name", p.topic),
		attribute.String("receiver.handle", handle),
		attribute.String("tx.hash", record.TxHash),
		attribute.Int64("chain.id", record.ChainID),
	)

	payload, err := streaming.Encode(streaming.Message{
		Type:        streaming.MessageTypePaymentFinalized,
		Handle:      handle,
		TxHash:      record.TxHash,
		ChainID:     record.ChainID,
		TraceID:     telemetry.TraceIDFromContext(ctx),
		FinalizedAt: p.now().UTC(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.onPublish("error")
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   p.topic,
		Key:     []byte(handle),
		Value:   payload,
		Headers: telemetry.InjectKafkaHeaders(ctx, nil),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.onPublish("error")
		return err
	}
	p.onPublish("ok")
	return nil
}
