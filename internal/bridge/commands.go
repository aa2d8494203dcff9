package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-starlink/internal/telemetry"
)

const (
	// defaultWriteTimeout bounds each Source.Write call.
	defaultWriteTimeout = 10 * time.Second

	// journalTimeout bounds recording a handled command.
	journalTimeout = 5 * time.Second
)

// CommandBridgeOptions configures a CommandBridge.
type CommandBridgeOptions struct {
	Topics    Topics
	Source    telemetry.Source
	Publisher Publisher

	// Writable lists the fields commands may target.
	Writable []FieldSpec

	// Aliases maps extra command names to field paths, for example
	// "heater" → "dish_config.snow_melt_mode".
	Aliases map[string]string

	// WriteTimeout defaults to 10s.
	WriteTimeout time.Duration

	// Journal is optional.
	Journal CommandJournal

	Observer Observer
	Logger   Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// CommandBridge turns "/set" messages into Source writes and publishes an
// AckResult for each one.
//
// Thread Safety: HandleMessage may be called from many goroutines at once.
type CommandBridge struct {
	opts     CommandBridgeOptions
	writable map[string]FieldSpec

	// Shutdown coordination
	mu        sync.Mutex
	stopped   bool
	wg        sync.WaitGroup
	ctx       context.Context    // cancelled on Stop to abort in-flight writes
	ctxCancel context.CancelFunc
}

// NewCommandBridge creates a CommandBridge.
func NewCommandBridge(opts CommandBridgeOptions) (*CommandBridge, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if opts.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}

	writable := make(map[string]FieldSpec, len(opts.Writable))
	for _, spec := range opts.Writable {
		if err := ValidatePath(spec.Path); err != nil {
			return nil, fmt.Errorf("writable field: %w", err)
		}
		if spec.Kind != "" && !spec.Kind.Valid() {
			return nil, fmt.Errorf("writable field %s: unknown kind %q", spec.Path, spec.Kind)
		}
		writable[spec.Path] = spec
	}
	for alias, target := range opts.Aliases {
		if err := ValidatePath(alias); err != nil {
			return nil, fmt.Errorf("command alias: %w", err)
		}
		if _, clash := writable[alias]; clash {
			return nil, fmt.Errorf("command alias %q shadows a writable field", alias)
		}
		if err := ValidatePath(target); err != nil {
			return nil, fmt.Errorf("command alias %s target: %w", alias, err)
		}
	}

	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
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

	ctx, cancel := context.WithCancel(context.Background())
	return &CommandBridge{
		opts:      opts,
		writable:  writable,
		ctx:       ctx,
		ctxCancel: cancel,
	}, nil
}

// Subscribe registers the command subscription on sub. Aliases share the
// single-level wildcard with field paths.
func (c *CommandBridge) Subscribe(sub Subscriber) error {
	topic := c.opts.Topics.CommandWildcard()
	if err := sub.Subscribe(topic, c.HandleMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	c.opts.Logger.Info("subscribed to commands", "topic", topic)
	return nil
}

// HandleMessage processes one inbound message. Messages that are not
// command topics are dropped without an ack.
func (c *CommandBridge) HandleMessage(topic string, payload []byte) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	target, ok := c.opts.Topics.ParseCommand(topic)
	if !ok {
		c.opts.Logger.Debug("ignoring message on non-command topic", "topic", topic)
		return
	}

	req := CommandRequest{
		Field:    target,
		Target:   target,
		Payload:  string(payload),
		Received: c.opts.Now(),
	}
	if path, isAlias := c.opts.Aliases[target]; isAlias {
		req.Field = path
	}

	c.opts.Logger.Info("received command",
		"field", req.Field,
		"target", req.Target,
		"payload", req.Payload)

	ack := c.execute(req)
	c.publishAck(req, ack)
	c.record(req, ack)
	c.opts.Observer.CommandHandled(ack.Outcome)
}

// Stop cancels in-flight writes and waits for their handlers to finish.
// Messages arriving afterwards are dropped.
func (c *CommandBridge) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	c.ctxCancel()
	c.wg.Wait()
}

// execute validates req and performs the write.
func (c *CommandBridge) execute(req CommandRequest) AckResult {
	spec, ok := c.writable[req.Field]
	if !ok {
		return c.ack(req, OutcomeRejected, DetailNotWritable)
	}

	value, err := spec.ParsePayload(req.Payload)
	if err != nil {
		c.opts.Logger.Info("rejected command payload", "field", req.Field, "error", err)
		return c.ack(req, OutcomeRejected, DetailInvalidPayload)
	}

	// Derive timeout from bridge context so writes are cancelled on shutdown
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.WriteTimeout)
	defer cancel()

	outcome, err := c.opts.Source.Write(ctx, req.Field, value)
	switch {
	case err == nil:
		return c.ack(req, OutcomeAccepted, outcome.Applied)
	case errors.Is(err, telemetry.ErrPermissionDenied):
		return c.ack(req, OutcomeRejected, DetailPermissionDenied)
	case errors.Is(err, telemetry.ErrFieldNotWritable):
		return c.ack(req, OutcomeRejected, DetailNotWritable)
	case errors.Is(err, telemetry.ErrInvalidValue):
		return c.ack(req, OutcomeRejected, DetailInvalidPayload)
	case errors.Is(err, telemetry.ErrSourceUnavailable):
		return c.ack(req, OutcomeError, DetailUnreachable)
	default:
		return c.ack(req, OutcomeError, err.Error())
	}
}

func (c *CommandBridge) ack(req CommandRequest, outcome Outcome, detail string) AckResult {
	return AckResult{
		Field:     req.Field,
		Outcome:   outcome,
		Detail:    detail,
		Timestamp: c.opts.Now(),
	}
}

// publishAck sends ack to the ack topic paired with the command topic.
// Acks are never retained.
func (c *CommandBridge) publishAck(req CommandRequest, ack AckResult) {
	if ack.Outcome == OutcomeAccepted {
		c.opts.Logger.Info("command applied", "field", ack.Field, "applied", ack.Detail)
	} else {
		c.opts.Logger.Warn("command not applied",
			"field", ack.Field,
			"outcome", string(ack.Outcome),
			"detail", ack.Detail)
	}

	topic, err := c.opts.Topics.Ack(req.Target)
	if err != nil {
		c.opts.Logger.Error("failed to build ack topic", "target", req.Target, "error", err)
		return
	}
	payload, err := json.Marshal(ack)
	if err != nil {
		c.opts.Logger.Error("failed to marshal ack", "error", err)
		return
	}
	if err := c.opts.Publisher.Publish(topic, payload, false); err != nil {
		c.opts.Logger.Error("failed to publish ack", "topic", topic, "error", err)
		return
	}
	c.opts.Observer.MessagePublished(KindAck)
}

func (c *CommandBridge) record(req CommandRequest, ack AckResult) {
	if c.opts.Journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := c.opts.Journal.Record(ctx, req, ack); err != nil {
		c.opts.Logger.Error("failed to record command", "field", req.Field, "error", err)
	}
}
