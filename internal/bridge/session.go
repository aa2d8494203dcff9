package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-starlink/internal/telemetry"
)

// Session defaults.
const (
	defaultInterval       = 10 * time.Second
	defaultFetchTimeout   = 10 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultBackoffInitial = time.Second
	defaultBackoffMax     = 30 * time.Second

	// pruneInterval is how often the command journal is pruned.
	pruneInterval = 24 * time.Hour
)

// SessionOptions configures a Session.
type SessionOptions struct {
	Transport  Transport
	Source     telemetry.Source
	Topics     Topics
	Reconciler *Reconciler

	// Commands is optional; without it no command subscription is made.
	Commands *CommandBridge

	// Interval is the poll cadence. Default 10s.
	Interval time.Duration

	// FetchTimeout bounds each Source.Fetch. Default 10s.
	FetchTimeout time.Duration

	// ConnectTimeout bounds each connect attempt. Default 10s.
	ConnectTimeout time.Duration

	// BackoffInitial and BackoffMax bound reconnect delays. Default 1s, 30s.
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// Once runs a single connect and a single cycle, then shuts down.
	Once bool

	// Journal and JournalRetention enable daily pruning of the command
	// journal. Pruning is skipped when either is unset.
	Journal          CommandJournal
	JournalRetention time.Duration

	Observer Observer
	Logger   Logger
}

// Session owns the transport connection and the poll loop.
//
// It arms the offline last will, publishes online after every connect,
// reconnects with capped exponential backoff and publishes offline on
// orderly shutdown. At most one poll loop runs at any time.
type Session struct {
	opts SessionOptions

	state   atomic.Int32
	running atomic.Bool

	// lost receives connection-lost notifications from the transport.
	lost chan error

	wg sync.WaitGroup
}

// NewSession validates opts and creates a Session. Call Run to start it.
func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if opts.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if opts.Reconciler == nil {
		return nil, fmt.Errorf("reconciler is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = defaultBackoffInitial
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = defaultBackoffMax
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}

	return &Session{
		opts: opts,
		lost: make(chan error, 1),
	}, nil
}

// State returns the current session state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// HealthCheck returns nil while the session is connected and the last poll
// cycle fetched telemetry.
func (s *Session) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state := s.State(); state != StateConnected {
		return fmt.Errorf("%w: %s", ErrNotReady, state)
	}
	return nil
}

// Run drives the session until ctx is cancelled (daemon mode) or the single
// cycle completes (one-shot mode).
//
// In daemon mode Run returns nil after an orderly shutdown. In one-shot
// mode it returns an error wrapping ErrConnectFailed or ErrFetchFailed when
// either step failed.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("session already running")
	}

	s.opts.Transport.SetWill(s.opts.Topics.Status(), []byte(StatusOffline), true)
	s.opts.Transport.SetOnConnectionLost(s.onConnectionLost)

	if s.opts.Once {
		return s.runOnce(ctx)
	}

	if s.opts.Journal != nil && s.opts.JournalRetention > 0 {
		s.wg.Add(1)
		go s.pruneLoop(ctx)
	}
	defer s.wg.Wait()

	backoff := NewBackoff(s.opts.BackoffInitial, s.opts.BackoffMax)
	for {
		s.setState(StateConnecting)
		if err := s.connect(ctx, true); err != nil {
			if ctx.Err() != nil {
				s.setState(StateDisconnected)
				return nil
			}
			delay := backoff.Next()
			s.opts.Logger.Warn("connect failed, retrying",
				"error", err,
				"retry_in", delay.String())
			if !sleepCtx(ctx, delay) {
				s.setState(StateDisconnected)
				return nil
			}
			continue
		}
		backoff.Reset()

		err := s.serve(ctx)
		if ctx.Err() != nil {
			s.shutdown()
			return nil
		}

		s.setState(StateConnecting)
		s.opts.Observer.Reconnecting()
		delay := backoff.Next()
		s.opts.Logger.Warn("connection lost, reconnecting",
			"error", err,
			"retry_in", delay.String())
		if !sleepCtx(ctx, delay) {
			s.setState(StateDisconnected)
			return nil
		}
	}
}

// runOnce performs exactly one connect attempt and one cycle.
func (s *Session) runOnce(ctx context.Context) error {
	s.setState(StateConnecting)
	if err := s.connect(ctx, false); err != nil {
		s.setState(StateDisconnected)
		return err
	}

	cycleErr := s.cycle(ctx)
	s.shutdown()
	return cycleErr
}

// connect opens the transport, registers the command subscription,
// publishes online and replays cached payloads.
func (s *Session) connect(ctx context.Context, subscribe bool) error {
	// Drop notifications left over from a previous connection.
	select {
	case <-s.lost:
	default:
	}

	connectCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()
	if err := s.opts.Transport.Connect(connectCtx); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	if subscribe && s.opts.Commands != nil {
		if err := s.opts.Commands.Subscribe(s.opts.Transport); err != nil {
			s.opts.Transport.Disconnect()
			return fmt.Errorf("%w: %w", ErrConnectFailed, err)
		}
	}

	if err := s.publishStatus(StatusOnline); err != nil {
		s.opts.Transport.Disconnect()
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	if n, err := s.opts.Reconciler.Replay(); err != nil {
		s.opts.Logger.Warn("replay of cached payloads incomplete", "sent", n, "error", err)
	} else if n > 0 {
		s.opts.Logger.Debug("replayed cached payloads", "count", n)
	}

	s.setState(StateConnected)
	s.opts.Logger.Info("session connected", "status_topic", s.opts.Topics.Status())
	return nil
}

// serve runs the poll loop until ctx is cancelled or the connection is
// lost. The loop goroutine has exited when serve returns.
func (s *Session) serve(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.pollLoop(loopCtx)
	}()

	var reason error
	select {
	case <-ctx.Done():
		reason = ctx.Err()
	case reason = <-s.lost:
	}

	cancel()
	<-done
	return reason
}

// pollLoop runs a cycle immediately and then every Interval.
func (s *Session) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		if err := s.cycle(ctx); err != nil && ctx.Err() == nil {
			s.opts.Logger.Warn("poll cycle skipped", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// cycle runs one fetch, flatten and publish pass.
func (s *Session) cycle(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	snapshot, err := s.opts.Source.Fetch(fetchCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.setState(StateDegraded)
		s.opts.Observer.CycleCompleted(CycleFetchError, 0)
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	result, err := s.opts.Reconciler.Publish(snapshot)
	if err != nil {
		s.opts.Observer.CycleCompleted(CyclePublishError, result.Fields)
		return err
	}

	s.setState(StateConnected)
	s.opts.Observer.CycleCompleted(CycleOK, result.Fields)
	s.opts.Logger.Debug("poll cycle complete",
		"fields", result.Fields,
		"published", result.Published,
		"unchanged", result.Unchanged,
		"skipped", result.Skipped)
	return nil
}

// shutdown stops command handling, publishes offline and disconnects.
func (s *Session) shutdown() {
	if s.opts.Commands != nil {
		s.opts.Commands.Stop()
	}
	if err := s.publishStatus(StatusOffline); err != nil {
		s.opts.Logger.Warn("failed to publish offline status", "error", err)
	}
	s.opts.Transport.Disconnect()
	s.setState(StateDisconnected)
	s.opts.Logger.Info("session closed")
}

func (s *Session) publishStatus(status string) error {
	if err := s.opts.Transport.Publish(s.opts.Topics.Status(), []byte(status), true); err != nil {
		return fmt.Errorf("%w: status %s: %w", ErrPublishFailed, status, err)
	}
	s.opts.Observer.MessagePublished(KindStatus)
	return nil
}

func (s *Session) onConnectionLost(err error) {
	if err == nil {
		err = errors.New("connection lost")
	}
	select {
	case s.lost <- err:
	default:
	}
}

// pruneLoop removes old command journal entries once at start and then
// every pruneInterval.
func (s *Session) pruneLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		cutoff := time.Now().Add(-s.opts.JournalRetention)
		if n, err := s.opts.Journal.Prune(ctx, cutoff); err != nil {
			if ctx.Err() == nil {
				s.opts.Logger.Warn("command journal prune failed", "error", err)
			}
		} else if n > 0 {
			s.opts.Logger.Info("pruned command journal", "removed", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Session) setState(state SessionState) {
	if SessionState(s.state.Swap(int32(state))) != state {
		s.opts.Observer.StateChanged(state)
	}
}

// sleepCtx waits for d or until ctx is cancelled. Returns false if the
// context was cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
