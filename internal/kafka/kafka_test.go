package kafka

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"

	"github.com/jittakal/poolstore/pkg/mutation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// envelopeJSON encodes m as the data of a mutation envelope.
func envelopeJSON(t *testing.T, id string, m *mutation.Mutation) []byte {
	t.Helper()
	data, err := mutation.Encode(m)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	raw, err := json.Marshal(mutation.Envelope{
		ID:          id,
		Source:      "test",
		SpecVersion: "1.0",
		Type:        mutation.EventType,
		Data:        data,
	})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	return raw
}

type mockMetrics struct {
	mu         sync.Mutex
	consumed   int
	rebalances int
	commits    int
	processed  map[string]int
	assigned   map[string]float64
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{processed: map[string]int{}, assigned: map[string]float64{}}
}

func (m *mockMetrics) IncMessagesConsumed(string, int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumed++
}

func (m *mockMetrics) IncRebalances(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rebalances++
}

func (m *mockMetrics) IncOffsetCommits(string, int32, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
}

func (m *mockMetrics) ObserveRebalanceDuration(string, float64) {}
func (m *mockMetrics) ObserveCommitLatency(string, int32, float64) {}

func (m *mockMetrics) SetPartitionsAssigned(topic string, count float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assigned[topic] = count
}

func (m *mockMetrics) IncEventsProcessed(_ string, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[status]++
}

func (m *mockMetrics) count(status string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processed[status]
}

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32 { return map[string][]int32{"mutations": {0, 1}} }
func (s *fakeSession) MemberID() string { return "member-1" }
func (s *fakeSession) GenerationID() int32 { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string) {}
func (s *fakeSession) Commit() {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

func (s *fakeSession) markedOffsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.marked...)
}

type fakeClaim struct {
	msgs chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string { return "mutations" }
func (c *fakeClaim) Partition() int32 { return 0 }
func (c *fakeClaim) InitialOffset() int64 { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64 { return int64(cap(c.msgs)) }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

// fakeGroup runs one session over claim, then blocks until ctx ends.
type fakeGroup struct {
	session *fakeSession
	claim   *fakeClaim
	errs    chan error
	once    sync.Once
	closed  bool
}

func newFakeGroup(msgs ...*sarama.ConsumerMessage) *fakeGroup {
	claim := &fakeClaim{msgs: make(chan *sarama.ConsumerMessage, len(msgs))}
	for _, m := range msgs {
		claim.msgs <- m
	}
	close(claim.msgs)
	return &fakeGroup{claim: claim, errs: make(chan error)}
}

func (g *fakeGroup) Consume(ctx context.Context, _ []string, handler sarama.ConsumerGroupHandler) error {
	g.once.Do(func() {
		g.session = &fakeSession{ctx: ctx}
	})
	if err := handler.Setup(g.session); err != nil {
		return err
	}
	err := handler.ConsumeClaim(g.session, g.claim)
	_ = handler.Cleanup(g.session)
	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (g *fakeGroup) Errors() <-chan error { return g.errs }
func (g *fakeGroup) Pause(map[string][]int32) {}
func (g *fakeGroup) Resume(map[string][]int32) {}
func (g *fakeGroup) PauseAll() {}
func (g *fakeGroup) ResumeAll() {}

func (g *fakeGroup) Close() error {
	if !g.closed {
		g.closed = true
		close(g.errs)
	}
	return nil
}
