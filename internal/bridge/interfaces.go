package bridge

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-starlink/internal/telemetry"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MessageHandler processes an inbound message.
type MessageHandler func(topic string, payload []byte)

// Publisher sends messages to the bus. QoS is a transport setting.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
}

// Subscriber registers handlers for topic filters.
type Subscriber interface {
	Subscribe(topic string, handler MessageHandler) error
}

// Transport is the bus connection owned by a Session.
// This allows mocking in tests and keeps the engine free of MQTT client
// details.
type Transport interface {
	Publisher
	Subscriber

	// SetWill arms the last-will message. Must be called before Connect.
	SetWill(topic string, payload []byte, retained bool)

	// Connect opens the connection. It does not retry.
	Connect(ctx context.Context) error

	// SetOnConnectionLost registers the callback invoked when an
	// established connection drops.
	SetOnConnectionLost(fn func(err error))

	// Disconnect closes the connection gracefully.
	Disconnect()
}

// HistorySink receives every published cycle, for example a time-series
// database. Record must not block.
type HistorySink interface {
	Record(fields []telemetry.FlatField, ts time.Time)
}

// CommandJournal persists handled commands.
type CommandJournal interface {
	// Record stores the request and the ack sent for it.
	Record(ctx context.Context, req CommandRequest, ack AckResult) error

	// Prune deletes entries received before cutoff and returns how many
	// were removed.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cycle results reported to the Observer.
const (
	CycleOK           = "ok"
	CycleFetchError   = "fetch_error"
	CyclePublishError = "publish_error"
)

// Message kinds reported to the Observer.
const (
	KindField     = "field"
	KindAggregate = "aggregate"
	KindStatus    = "status"
	KindAck       = "ack"
	KindReplay    = "replay"
)

// Observer receives engine events, typically to update metrics.
type Observer interface {
	CycleCompleted(result string, fields int)
	MessagePublished(kind string)
	CommandHandled(outcome Outcome)
	Reconnecting()
	StateChanged(state SessionState)
}

type nopObserver struct{}

func (nopObserver) CycleCompleted(string, int) {}
func (nopObserver) MessagePublished(string) {}
func (nopObserver) CommandHandled(Outcome) {}
func (nopObserver) Reconnecting() {}
func (nopObserver) StateChanged(SessionState) {}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}
func (nopLogger) Error(string, ...any) {}
