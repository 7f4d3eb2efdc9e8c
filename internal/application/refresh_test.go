package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"payboard/internal/streaming"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockInvalidator struct {
	handles []string
	err     error
}

func (m *mockInvalidator) InvalidateHandle(ctx context.Context, handle string) error {
	if m.err != nil {
		return m.err
	}
	m.handles = append(m.handles, handle)
	return nil
}

type mockCommitter struct {
	committed []kafka.Message
}

func (m *mockCommitter) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.committed = append(m.committed, msgs...)
	return nil
}

func finalized(handle string) streaming.Message {
	return streaming.Message{Type: streaming.MessageTypePaymentFinalized, Handle: handle, TxHash: testHash}
}

func TestRefreshBatch_AddAndFlush(t *testing.T) {
	batch := NewRefreshBatch()
	cache := &mockInvalidator{}
	committer := &mockCommitter{}
	ctx := context.Background()

	batch.Add(finalized("alice.eth"), kafka.Message{Partition: 0, Offset: 1})
	batch.Add(finalized("Alice.ETH"), kafka.Message{Partition: 0, Offset: 2})
	batch.Add(finalized("bob.eth"), kafka.Message{Partition: 1, Offset: 7})
	// Undecodable payloads still get committed.
	batch.Add(streaming.Message{}, kafka.Message{Partition: 1, Offset: 8})

	assert.Equal(t, 4, batch.Len())
	assert.Equal(t, 2, batch.Partitions())
	assert.Equal(t, []string{"alice.eth", "bob.eth"}, batch.Handles())

	require.NoError(t, batch.Flush(ctx, cache, committer))

	assert.Equal(t, []string{"alice.eth", "bob.eth"}, cache.handles)
	assert.Len(t, committer.committed, 4)
	assert.Equal(t, 0, batch.Len())
	assert.Equal(t, 0, batch.Partitions())
	assert.Empty(t, batch.Handles())
}

func TestRefreshBatch_FlushFailureKeepsMessages(t *testing.T) {
	batch := NewRefreshBatch()
	cache := &mockInvalidator{err: errors.New("redis down")}
	committer := &mockCommitter{}

	batch.Add(finalized("alice.eth"), kafka.Message{Offset: 1})

	err := batch.Flush(context.Background(), cache, committer)
	assert.Error(t, err)
	assert.Empty(t, committer.committed)
	assert.Equal(t, 1, batch.Len())
}

func TestRefreshBatch_FlushEmpty(t *testing.T) {
	batch := NewRefreshBatch()
	assert.NoError(t, batch.Flush(context.Background(), &mockInvalidator{}, &mockCommitter{}))
}

type fakeFetcher struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	drained   chan struct{}
}

func newFakeFetcher(msgs ...kafka.Message) *fakeFetcher {
	return &fakeFetcher{queue: msgs, drained: make(chan struct{})}
}

func (f *fakeFetcher) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.queue) > 0 {
		msg := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeFetcher) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeFetcher) committedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.committed)
}

type syncInvalidator struct {
	mu      sync.Mutex
	handles []string
}

func (s *syncInvalidator) InvalidateHandle(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = append(s.handles, handle)
	return nil
}

func (s *syncInvalidator) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.handles...)
}

func encoded(t *testing.T, msg streaming.Message, offset int64) kafka.Message {
	t.Helper()
	payload, err := streaming.Encode(msg)
	require.NoError(t, err)
	return kafka.Message{Value: payload, Offset: offset}
}

func TestRunRefresher_FlushesOnIntervalAndCommits(t *testing.T) {
	fetcher := newFakeFetcher(
		encoded(t, finalized("alice.eth"), 1),
		kafka.Message{Value: []byte("garbage"), Offset: 2},
		encoded(t, finalized("bob.eth"), 3),
		encoded(t, finalized("alice.eth"), 4),
	)
	cache := &syncInvalidator{}
	var results []string
	var flushed []int
	var mu sync.Mutex

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunRefresher(ctx, fetcher, cache, RefreshConfig{
			BatchSize:     100,
			FlushInterval: 20 * time.Millisecond,
			OnMessage: func(result string) {
				mu.Lock()
				results = append(results, result)
				mu.Unlock()
			},
			OnFlush: func(handles int, err error) {
				mu.Lock()
				flushed = append(flushed, handles)
				mu.Unlock()
			},
		})
	}()

	require.Eventually(t, func() bool { return fetcher.committedCount() == 4 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"alice.eth", "bob.eth"}, cache.snapshot())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ok", "decode_error", "ok", "ok"}, results)
	assert.Equal(t, []int{2}, flushed)
}

func TestRunRefresher_FlushesWhenBatchIsFull(t *testing.T) {
	fetcher := newFakeFetcher(
		encoded(t, finalized("alice.eth"), 1),
		encoded(t, finalized("bob.eth"), 2),
	)
	cache := &syncInvalidator{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunRefresher(ctx, fetcher, cache, RefreshConfig{BatchSize: 2, FlushInterval: time.Hour})
	}()

	require.Eventually(t, func() bool { return fetcher.committedCount() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"alice.eth", "bob.eth"}, cache.snapshot())
}

func TestRunRefresher_FlushesPendingOnShutdown(t *testing.T) {
	fetcher := newFakeFetcher(encoded(t, finalized("alice.eth"), 1))
	cache := &syncInvalidator{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, RunRefresher(ctx, fetcher, cache, RefreshConfig{BatchSize: 10, FlushInterval: time.Hour}))

	assert.Equal(t, 1, fetcher.committedCount())
	assert.Equal(t, []string{"alice.eth"}, cache.snapshot())
}

func TestRunRefresher_RequiresDependencies(t *testing.T) {
	assert.Error(t, RunRefresher(context.Background(), nil, &syncInvalidator{}, RefreshConfig{}))
}
