package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"payboard/internal/domain"
	"payboard/internal/streaming"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducer_PublishFinalized(t *testing.T) {
	writer := &fakeWriter{}
	var outcomes []string
	producer := newProducer(writer, ProducerConfig{OnPublish: func(outcome string) { outcomes = append(outcomes, outcome) }})
	fixed := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	producer.now = func() time.Time { return fixed }

	err := producer.PublishFinalized(context.Background(), "alice.eth", domain.PaymentRecord{TxHash: "0xabc", ChainID: 8453})
	require.NoError(t, err)

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, DefaultTopic, msg.Topic)
	assert.Equal(t, "alice.eth", string(msg.Key))

	decoded, err := streaming.Decode(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, streaming.MessageTypePaymentFinalized, decoded.Type)
	assert.Equal(t, "alice.eth", decoded.Handle)
	assert.Equal(t, "0xabc", decoded.TxHash)
	assert.Equal(t, int64(8453), decoded.ChainID)
	assert.True(t, fixed.Equal(decoded.FinalizedAt))
	assert.Equal(t, []string{"ok"}, outcomes)

	require.NoError(t, producer.Close())
	assert.True(t, writer.closed)
}

func TestProducer_PublishFinalizedErrors(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker unavailable")}
	var outcomes []string
	producer := newProducer(writer, ProducerConfig{Topic: "custom", OnPublish: func(outcome string) { outcomes = append(outcomes, outcome) }})

	err := producer.PublishFinalized(context.Background(), "alice.eth", domain.PaymentRecord{TxHash: "0xabc"})
	assert.Error(t, err)

	err = producer.PublishFinalized(context.Background(), "", domain.PaymentRecord{TxHash: "0xabc"})
	assert.Error(t, err)
	assert.Equal(t, []string{"error", "error"}, outcomes)
	assert.Equal(t, "custom", producer.topic)
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(ProducerConfig{})
	assert.Error(t, err)

	producer, err := NewProducer(ProducerConfig{Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	assert.Equal(t, DefaultTopic, producer.topic)
	require.NoError(t, producer.Close())
}
