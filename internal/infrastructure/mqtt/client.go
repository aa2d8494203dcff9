package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-starlink/internal/bridge"
	"github.com/nerrad567/gray-logic-starlink/internal/infrastructure/config"
)

var _ bridge.Transport = (*Client)(nil)

// Client wraps paho.mqtt.golang as a bridge.Transport.
//
// Each Connect builds a fresh paho client with the armed will. The client
// never reconnects by itself; connection loss is reported through the
// callback set with SetOnConnectionLost.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	cfg       config.MQTTConfig
	tlsConfig *tls.Config

	// newClient creates the underlying paho client. Replaced in tests.
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	mu     sync.RWMutex
	client pahomqtt.Client
	will   *will
	onLost func(err error)
	logger Logger
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// NewClient creates an unconnected Client. TLS material named in cfg is
// loaded here so that a bad certificate is reported before any connect.
func NewClient(cfg config.MQTTConfig) (*Client, error) {
	tlsConfig, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:       cfg,
		tlsConfig: tlsConfig,
		newClient: pahomqtt.NewClient,
	}, nil
}

// SetWill arms the last-will message used by subsequent connects.
func (c *Client) SetWill(topic string, payload []byte, retained bool) {
	c.mu.Lock()
	c.will = &will{topic: topic, payload: payload, retained: retained}
	c.mu.Unlock()
}

// SetOnConnectionLost sets the callback invoked when an established
// connection drops.
func (c *Client) SetOnConnectionLost(fn func(err error)) {
	c.mu.Lock()
	c.onLost = fn
	c.mu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// Connect makes one connection attempt to the broker.
//
// The attempt is bounded by ctx; without a deadline defaultConnectTimeout
// applies. Any previous connection is closed first.
func (c *Client) Connect(ctx context.Context) error {
	timeout := defaultConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return fmt.Errorf("%w: %w", ErrConnectionFailed, context.DeadlineExceeded)
		}
	}

	c.mu.Lock()
	previous := c.client
	c.client = nil
	opts := buildClientOptions(c.cfg, c.tlsConfig, c.will, timeout)
	c.mu.Unlock()

	if previous != nil && previous.IsConnectionOpen() {
		previous.Disconnect(0)
	}

	opts.SetConnectionLostHandler(c.handleConnectionLost)
	client := c.newClient(opts)

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()
	return nil
}

// handleConnectionLost forwards loss of the current connection. Loss of
// a connection that has since been replaced is ignored.
func (c *Client) handleConnectionLost(client pahomqtt.Client, err error) {
	c.mu.RLock()
	current := c.client == client
	fn := c.onLost
	c.mu.RUnlock()

	if current && fn != nil {
		fn(err)
	}
}

// Disconnect closes the connection, waiting briefly for in-flight messages.
func (c *Client) Disconnect() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client != nil && client.IsConnectionOpen() {
		client.Disconnect(defaultDisconnectQuiesce)
	}
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && c.client.IsConnectionOpen()
}

// HealthCheck returns ErrNotConnected unless the connection is open.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// current returns the connected paho client or ErrNotConnected.
func (c *Client) current() (pahomqtt.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil || !c.client.IsConnectionOpen() {
		return nil, ErrNotConnected
	}
	return c.client, nil
}

func (c *Client) getLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery.
func (c *Client) wrapHandler(handler bridge.MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		handler(msg.Topic(), msg.Payload())
	}
}
