package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	configpkg "github.com/drblury/logpipe/internal/runtime/config"
	loggingpkg "github.com/drblury/logpipe/internal/runtime/logging"
	"github.com/drblury/logpipe/internal/runtime/records"
	storepkg "github.com/drblury/logpipe/internal/runtime/store"
	transportpkg "github.com/drblury/logpipe/internal/runtime/transport"
)

func newTestSlogLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(newTestSlogLogger())
}

func newTestConfig() *configpkg.Config {
	return &configpkg.Config{
		PubSubSystem:   "channel",
		MessageQueue:   "message-queue",
		ExceptionQueue: "exception-queue",
		FailedQueue:    "failed-queue",
		ServiceName:    "library-api",
	}
}

type publishedMessage struct {
	topic string
	msg   *message.Message
}

// testPublisher records every publish attempt. failTopics makes publishes to
// the named topics fail.
type testPublisher struct {
	mu         sync.Mutex
	attempts   []publishedMessage
	published  []publishedMessage
	failTopics map[string]error
	block      chan struct{}
	entered    atomic.Int64
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.entered.Add(1)
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, msg := range messages {
		p.attempts = append(p.attempts, publishedMessage{topic: topic, msg: msg})
	}
	if err := p.failTopics[topic]; err != nil {
		return err
	}
	for _, msg := range messages {
		p.published = append(p.published, publishedMessage{topic: topic, msg: msg})
	}
	return nil
}

func (p *testPublisher) Close() error { return nil }

func (p *testPublisher) Attempts() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMessage(nil), p.attempts...)
}

func (p *testPublisher) Published() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMessage(nil), p.published...)
}

type testSubscriber struct {
	err error
}

func (s *testSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan *message.Message)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (s *testSubscriber) Close() error { return nil }

type dropCall struct {
	fallback records.Fallback
	err      error
}

type poisonCall struct {
	queue   string
	payload []byte
	err     error
}

type testSink struct {
	mu      sync.Mutex
	drops   []dropCall
	poisons []poisonCall
}

func (s *testSink) Drop(_ context.Context, fb records.Fallback, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drops = append(s.drops, dropCall{fallback: fb, err: err})
}

func (s *testSink) Poison(queue string, payload []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poisons = append(s.poisons, poisonCall{queue: queue, payload: payload, err: err})
}

func (s *testSink) Drops() []dropCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dropCall(nil), s.drops...)
}

func (s *testSink) Poisons() []poisonCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]poisonCall(nil), s.poisons...)
}

// memoryStore is an append-only RecordStore keyed by record id.
type memoryStore struct {
	mu      sync.Mutex
	byID    map[string]records.Record
	order   []string
	err     error
	started chan struct{}
	release chan struct{}
	ctxErrs []error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{byID: make(map[string]records.Record)}
}

func (m *memoryStore) Persist(ctx context.Context, rec records.Record) error {
	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.release != nil {
		<-m.release
	}
	if err := records.Validate(rec); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	if m.err != nil {
		return m.err
	}
	id := rec.Header().ID
	if _, exists := m.byID[id]; exists {
		return storepkg.ErrDuplicateID
	}
	m.byID[id] = rec
	m.order = append(m.order, id)
	return nil
}

func (m *memoryStore) Records() []records.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]records.Record, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	return out
}

func (m *memoryStore) waitFor(t *testing.T, n int) []records.Record {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if recs := m.Records(); len(recs) >= n {
			return recs
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d persisted records, have %d", n, len(m.Records()))
	return nil
}

func newTestBroker(t *testing.T, pub message.Publisher, sub message.Subscriber, caps transportpkg.Capabilities) *transportpkg.Broker {
	t.Helper()
	if pub == nil {
		pub = &testPublisher{}
	}
	if sub == nil {
		sub = &testSubscriber{}
	}
	b, err := transportpkg.NewBroker(transportpkg.Transport{Publisher: pub, Subscriber: sub}, caps)
	if err != nil {
		t.Fatalf("broker init failed: %v", err)
	}
	return b
}

func newTestService(t *testing.T, deps ServiceDependencies) *Service {
	t.Helper()
	if deps.Store == nil {
		deps.Store = newMemoryStore()
	}
	if deps.Broker == nil {
		deps.Broker = newTestBroker(t, nil, nil, transportpkg.ChannelCapabilities)
	}
	svc, err := NewService(newTestConfig(), newTestLogger(), context.Background(), deps)
	if err != nil {
		t.Fatalf("service init failed: %v", err)
	}
	return svc
}

var errBrokerDown = errors.New("broker unavailable")
