package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-starlink/internal/telemetry"
)

type mockPublish struct {
	Topic    string
	Payload  string
	Retained bool
}

// MockTransport implements Transport for testing.
type MockTransport struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []string
	handlers      map[string]MessageHandler
	willTopic     string
	willPayload   string
	willRetained  bool
	connectErrs   []error
	connects      int
	disconnects   int
	connected     bool
	publishErr    error
	onLost        func(error)
}

func NewMockTransport() *MockTransport {
	return &MockTransport{handlers: make(map[string]MessageHandler)}
}

func (m *MockTransport) SetWill(topic string, payload []byte, retained bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.willTopic = topic
	m.willPayload = string(payload)
	m.willRetained = retained
}

func (m *MockTransport) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if len(m.connectErrs) > 0 {
		err := m.connectErrs[0]
		m.connectErrs = m.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	m.connected = true
	return nil
}

func (m *MockTransport) Publish(topic string, payload []byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: string(payload), Retained: retained})
	return nil
}

func (m *MockTransport) Subscribe(topic string, handler MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, topic)
	m.handlers[topic] = handler
	return nil
}

func (m *MockTransport) SetOnConnectionLost(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLost = fn
}

func (m *MockTransport) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	m.connected = false
}

func (m *MockTransport) FailConnects(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErrs = append(m.connectErrs, errs...)
}

func (m *MockTransport) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

// SimulateConnectionLost drops the connection and notifies the session.
func (m *MockTransport) SimulateConnectionLost(err error) {
	m.mu.Lock()
	m.connected = false
	fn := m.onLost
	m.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// SimulateMessage delivers a message to the handler registered for filter.
func (m *MockTransport) SimulateMessage(filter, topic string, payload []byte) {
	m.mu.Lock()
	handler, ok := m.handlers[filter]
	m.mu.Unlock()
	if ok {
		handler(topic, payload)
	}
}

func (m *MockTransport) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

func (m *MockTransport) PublishedTo(topic string) []mockPublish {
	var out []mockPublish
	for _, p := range m.GetPublished() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockTransport) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

func (m *MockTransport) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

func (m *MockTransport) Disconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

func (m *MockTransport) Subscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.subscriptions))
	copy(out, m.subscriptions)
	return out
}

type stubWrite struct {
	Path  string
	Value any
}

// StubSource implements telemetry.Source for testing.
type StubSource struct {
	mu       sync.Mutex
	snapshot telemetry.Snapshot
	fetchErr error
	fetches  int
	writes   []stubWrite
	writeErr error
	applied  string
	writeFn  func(ctx context.Context) error

	fetchDelay  time.Duration
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func NewStubSource(snapshot telemetry.Snapshot) *StubSource {
	return &StubSource{snapshot: snapshot}
}

func (s *StubSource) Fetch(ctx context.Context) (telemetry.Snapshot, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		prev := s.maxInFlight.Load()
		if n <= prev || s.maxInFlight.CompareAndSwap(prev, n) {
			break
		}
	}

	s.mu.Lock()
	s.fetches++
	delay := s.fetchDelay
	snap, err := s.snapshot, s.fetchErr
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return snap, err
}

func (s *StubSource) Write(ctx context.Context, path string, value any) (telemetry.WriteOutcome, error) {
	s.mu.Lock()
	s.writes = append(s.writes, stubWrite{Path: path, Value: value})
	err, applied, fn := s.writeErr, s.applied, s.writeFn
	s.mu.Unlock()

	if fn != nil {
		if err := fn(ctx); err != nil {
			return telemetry.WriteOutcome{}, err
		}
	}
	if err != nil {
		return telemetry.WriteOutcome{}, err
	}
	if applied == "" {
		applied = fmt.Sprint(value)
	}
	return telemetry.WriteOutcome{Path: path, Applied: applied}, nil
}

func (s *StubSource) SetFetchError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = err
}

func (s *StubSource) SetSnapshot(snap telemetry.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
}

func (s *StubSource) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func (s *StubSource) Writes() []stubWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stubWrite, len(s.writes))
	copy(out, s.writes)
	return out
}

// recordingObserver implements Observer for testing.
type recordingObserver struct {
	mu           sync.Mutex
	cycles       []string
	kinds        map[string]int
	outcomes     map[Outcome]int
	reconnecting int
	states       []SessionState
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{kinds: make(map[string]int), outcomes: make(map[Outcome]int)}
}

func (o *recordingObserver) CycleCompleted(result string, fields int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cycles = append(o.cycles, result)
}

func (o *recordingObserver) MessagePublished(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kinds[kind]++
}

func (o *recordingObserver) CommandHandled(outcome Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes[outcome]++
}

func (o *recordingObserver) Reconnecting() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reconnecting++
}

func (o *recordingObserver) StateChanged(state SessionState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

// testLogger captures warnings for assertions.
type testLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *testLogger) Debug(string, ...any) {}
func (l *testLogger) Info(string, ...any) {}
func (l *testLogger) Error(string, ...any) {}

func (l *testLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *testLogger) Warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.warns))
	copy(out, l.warns)
	return out
}

// waitFor polls cond until it returns true or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func sampleSnapshot() telemetry.Snapshot {
	return telemetry.Snapshot{
		{Name: "device_state", Value: telemetry.Snapshot{
			{Name: "uptime_s", Value: uint64(10)},
		}},
		{Name: "pop_ping_latency_ms", Value: 24.5},
		{Name: "dish_config", Value: telemetry.Snapshot{
			{Name: "snow_melt_mode", Value: "AUTO"},
		}},
	}
}
