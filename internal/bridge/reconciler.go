package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-starlink/internal/telemetry"
)

// PublishMode selects which fields a cycle publishes.
type PublishMode string

const (
	// PublishAlways republishes every included field every cycle.
	PublishAlways PublishMode = "always"

	// PublishChanges publishes only fields whose payload changed since the
	// last cycle, plus a full refresh every FullRefreshCycles cycles.
	PublishChanges PublishMode = "changes"
)

// ReconcilerOptions configures a Reconciler.
type ReconcilerOptions struct {
	Topics    Topics
	Publisher Publisher

	// Filter selects which flattened fields are published.
	Filter telemetry.Filter

	// Retain sets the retained flag on field and aggregate messages.
	Retain bool

	// Aggregate enables the "{prefix}/all" JSON message.
	Aggregate bool

	// PublishMissing publishes an empty payload for fields without a value
	// instead of skipping them.
	PublishMissing bool

	// Mode defaults to PublishAlways.
	Mode PublishMode

	// FullRefreshCycles is the full-refresh period in PublishChanges mode.
	// Zero means only the first cycle is a full refresh.
	FullRefreshCycles int

	// History is optional; it receives the included fields of every cycle.
	History HistorySink

	Observer Observer
	Logger   Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// CycleResult summarises one Publish call.
type CycleResult struct {
	// Fields is the number of fields included by the filter.
	Fields int

	// Published is the number of field messages sent.
	Published int

	// Unchanged is the number of fields skipped because their payload did
	// not change (PublishChanges mode only).
	Unchanged int

	// Skipped is the number of fields without a value or with a path that
	// cannot be mapped to a topic.
	Skipped int
}

type cachedMessage struct {
	payload  []byte
	retained bool
}

// Reconciler publishes telemetry snapshots and remembers the last payload
// per topic so it can be replayed after a reconnect.
//
// Thread Safety: All methods are safe for concurrent use.
type Reconciler struct {
	opts ReconcilerOptions

	mu          sync.Mutex
	cache       map[string]cachedMessage
	order       []string
	cycles      int
	warnedPaths map[string]bool
	warnedEntry map[string]bool
}

// NewReconciler creates a Reconciler.
func NewReconciler(opts ReconcilerOptions) (*Reconciler, error) {
	if opts.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	switch opts.Mode {
	case "":
		opts.Mode = PublishAlways
	case PublishAlways, PublishChanges:
	default:
		return nil, fmt.Errorf("unknown publish mode %q", opts.Mode)
	}
	if opts.FullRefreshCycles < 0 {
		return nil, fmt.Errorf("full refresh cycles must not be negative")
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Reconciler{
		opts:        opts,
		cache:       make(map[string]cachedMessage),
		warnedPaths: make(map[string]bool),
		warnedEntry: make(map[string]bool),
	}, nil
}

// Publish flattens snapshot and publishes the included fields, then the
// aggregate if enabled, then hands the fields to the history sink.
//
// Publishing stops at the first transport error, which is returned wrapped
// in ErrPublishFailed together with the counts so far.
func (r *Reconciler) Publish(snapshot telemetry.Snapshot) (CycleResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.opts.Now()
	all := telemetry.Flatten(snapshot, telemetry.Filter{})
	r.warnUnmatched(all)
	fields := r.opts.Filter.Apply(all)

	full := r.opts.Mode == PublishAlways || r.isRefreshCycle()
	result := CycleResult{Fields: len(fields)}

	for _, field := range fields {
		if field.Value == nil && !r.opts.PublishMissing {
			result.Skipped++
			continue
		}

		topic, err := r.opts.Topics.Field(field.Path)
		if err != nil {
			if !r.warnedPaths[field.Path] {
				r.opts.Logger.Warn("skipping field with unmappable path",
					"path", field.Path, "error", err)
				r.warnedPaths[field.Path] = true
			}
			result.Skipped++
			continue
		}

		payload := []byte(telemetry.FormatValue(field.Value))
		if !full {
			if prev, ok := r.cache[topic]; ok && string(prev.payload) == string(payload) {
				result.Unchanged++
				continue
			}
		}

		if err := r.publish(topic, payload, r.opts.Retain); err != nil {
			return result, err
		}
		r.opts.Observer.MessagePublished(KindField)
		result.Published++
	}

	if r.opts.Aggregate && (full || result.Published > 0) {
		payload, err := json.Marshal(NewAggregate(fields, now))
		if err != nil {
			return result, fmt.Errorf("encode aggregate: %w", err)
		}
		if err := r.publish(r.opts.Topics.All(), payload, r.opts.Retain); err != nil {
			return result, err
		}
		r.opts.Observer.MessagePublished(KindAggregate)
	}

	r.cycles++

	if r.opts.History != nil && len(fields) > 0 {
		r.opts.History.Record(fields, now)
	}

	return result, nil
}

// Replay republishes the last payload of every topic, in first-publish
// order. It returns the number of messages sent and any publish errors.
func (r *Reconciler) Replay() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	sent := 0
	for _, topic := range r.order {
		msg := r.cache[topic]
		if err := r.opts.Publisher.Publish(topic, msg.payload, msg.retained); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err))
			continue
		}
		r.opts.Observer.MessagePublished(KindReplay)
		sent++
	}
	return sent, errors.Join(errs...)
}

// cached returns the last payload published to topic.
func (r *Reconciler) cached(topic string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.cache[topic]
	return msg.payload, ok
}

// publish sends one message and records it in the replay cache.
// Caller must hold r.mu.
func (r *Reconciler) publish(topic string, payload []byte, retained bool) error {
	if err := r.opts.Publisher.Publish(topic, payload, retained); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	if _, seen := r.cache[topic]; !seen {
		r.order = append(r.order, topic)
	}
	r.cache[topic] = cachedMessage{payload: payload, retained: retained}
	return nil
}

// isRefreshCycle reports whether the current cycle must publish everything.
// Caller must hold r.mu.
func (r *Reconciler) isRefreshCycle() bool {
	if r.cycles == 0 {
		return true
	}
	return r.opts.FullRefreshCycles > 0 && r.cycles%r.opts.FullRefreshCycles == 0
}

// warnUnmatched logs each filter entry that matches no field, once.
// Caller must hold r.mu.
func (r *Reconciler) warnUnmatched(all []telemetry.FlatField) {
	if r.opts.Filter.IsEmpty() {
		return
	}
	for _, entry := range r.opts.Filter.Unmatched(telemetry.Paths(all)) {
		if r.warnedEntry[entry] {
			continue
		}
		r.opts.Logger.Warn("field filter matches no telemetry field", "filter", entry)
		r.warnedEntry[entry] = true
	}
}
