package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"payboard/internal/infrastructure/telemetry"
	"payboard/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type CacheInvalidator interface {
	InvalidateHandle(ctx context.Context, handle string) error
}

type Committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// RefreshBatch collects finalize events and turns them into one cache
// invalidation per receiver.
type RefreshBatch struct {
	handles    []string
	seen       map[string]struct{}
	messages   []kafka.Message
	partitions map[int]struct{}
}

func NewRefreshBatch() *RefreshBatch {
	return &RefreshBatch{
		seen:       make(map[string]struct{}),
		partitions: make(map[int]struct{}),
	}
}

// Add records a decoded event and the message it arrived in. Messages whose
// payload could not be decoded are added with a zero Message so their offset
// is still committed.
func (b *RefreshBatch) Add(msg streaming.Message, kafkaMsg kafka.Message) {
	if msg.Type == streaming.MessageTypePaymentFinalized && msg.Handle != "" {
		if handle, err := NormalizeHandle(msg.Handle); err == nil {
			if _, ok := b.seen[handle]; !ok {
				b.seen[handle] = struct{}{}
				b.handles = append(b.handles, handle)
			}
		}
	}

	b.messages = append(b.messages, kafkaMsg)
	b.partitions[kafkaMsg.Partition] = struct{}{}
}

func (b *RefreshBatch) Len() int {
	return len(b.messages)
}

// Partitions returns how many partitions the pending messages came from.
func (b *RefreshBatch) Partitions() int {
	return len(b.partitions)
}

// Handles returns the distinct receivers in arrival order.
func (b *RefreshBatch) Handles() []string {
	return b.handles
}

// Flush invalidates every collected receiver and then commits the messages.
// Nothing is committed when an invalidation fails, so the events are
// redelivered.
func (b *RefreshBatch) Flush(ctx context.Context, cache CacheInvalidator, committer Committer) error {
	if b.Len() == 0 {
		return nil
	}

	start := time.Now()

	for _, handle := range b.handles {
		if err := cache.InvalidateHandle(ctx, handle); err != nil {
			return fmt.Errorf("failed to invalidate %s: %w", handle, err)
		}
	}

	if err := committer.CommitMessages(ctx, b.messages...); err != nil {
		return fmt.Errorf("failed to commit kafka messages: %w", err)
	}

	slog.Info("flushed refresh batch",
		"messages", b.Len(),
		"handles", len(b.handles),
		"partitions", b.Partitions(),
		"duration", time.Since(start),
	)

	b.Reset()
	return nil
}

func (b *RefreshBatch) Reset() {
	b.handles = b.handles[:0]
	b.messages = b.messages[:0]
	clear(b.seen)
	clear(b.partitions)
}

type MessageFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	Committer
}

type RefreshConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	// OnMessage is called per consumed message with "ok" or "decode_error".
	OnMessage func(result string)
	// OnFlush is called after every flush attempt.
	OnFlush func(handles int, err error)
}

// RunRefresher consumes finalize events until ctx is done, invalidating the
// cache of every receiver that got paid. Batches flush when full or when no
// message arrived for FlushInterval.
func RunRefresher(ctx context.Context, reader MessageFetcher, cache CacheInvalidator, cfg RefreshConfig) error {
	if reader == nil || cache == nil {
		return errors.New("refresher dependencies must not be nil")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.OnMessage == nil {
		cfg.OnMessage = func(string) {}
	}
	if cfg.OnFlush == nil {
		cfg.OnFlush = func(int, error) {}
	}

	batch := NewRefreshBatch()
	flush := func(ctx context.Context, reason string) {
		if batch.Len() == 0 {
			return
		}
		handles := len(batch.Handles())
		err := batch.Flush(ctx, cache, reader)
		cfg.OnFlush(handles, err)
		if err != nil {
			slog.Error("refresh flush error", "reason", reason, "err", err)
		}
	}

	for {
		fetchCtx, cancel := context.WithTimeout(ctx, cfg.FlushInterval)
		message, err := reader.FetchMessage(fetchCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				flush(finalCtx, "shutdown")
				cancel()
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				flush(ctx, "interval")
				continue
			}
			slog.Error("kafka fetch error", "err", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		decoded, err := streaming.Decode(message.Value)
		if err != nil {
			slog.Warn("message decode error", "offset", message.Offset, "partition", message.Partition, "err", err)
			cfg.OnMessage("decode_error")
			batch.Add(streaming.Message{}, message)
		} else {
			messageCtx := telemetry.ExtractKafkaHeaders(ctx, message.Headers)
			_, span := telemetry.Tracer().Start(messageCtx, "refresh.process_message", trace.WithSpanKind(trace.SpanKindConsumer))
			span.SetAttributes(
				attribute.String("message.type", string(decoded.Type)),
				attribute.String("receiver.handle", decoded.Handle),
				attribute.String("tx.hash", decoded.TxHash),
			)
			batch.Add(decoded, message)
			span.End()
			cfg.OnMessage("ok")
		}

		if batch.Len() >= cfg.BatchSize {
			flush(ctx, "size")
		}
	}
}
