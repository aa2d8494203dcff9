package dish

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/nerrad567/gray-logic-starlink/internal/telemetry"
)

// configPrefix is the snapshot segment holding the dish configuration.
const configPrefix = "dish_config"

// Config holds dish connection settings.
type Config struct {
	Host string
	Port int
}

// Address returns "host:port".
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Client talks to the dish over gRPC. It implements telemetry.Source.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	conn   *grpc.ClientConn
	desc   *Descriptors
	logger Logger
}

var _ telemetry.Source = (*Client)(nil)

// New creates a client for the dish at cfg. The connection is established
// lazily on the first call. Extra dial options are appended after the
// defaults (plaintext transport).
func New(cfg Config, desc *Descriptors, logger Logger, opts ...grpc.DialOption) (*Client, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: descriptors are required", ErrDescriptors)
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.NewClient("passthrough:///"+cfg.Address(), dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating dish client for %s: %w", cfg.Address(), err)
	}

	return &Client{conn: conn, desc: desc, logger: logger}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Fetch returns the dish status with the configuration nested under
// "dish_config". A dish that refuses or does not implement
// dish_get_config still yields its status.
func (c *Client) Fetch(ctx context.Context) (telemetry.Snapshot, error) {
	resp, err := c.handle(ctx, "get_status", nil)
	if err != nil {
		return nil, mapError(err)
	}
	statusMsg, err := responseField(resp, "dish_get_status")
	if err != nil {
		return nil, err
	}
	snap := toSnapshot(statusMsg)

	resp, err = c.handle(ctx, "dish_get_config", nil)
	if err != nil {
		if code := status.Code(err); code == codes.Unimplemented || code == codes.PermissionDenied {
			c.logDebug("dish configuration unavailable", "code", code.String())
			return snap, nil
		}
		return nil, mapError(err)
	}
	configMsg, err := responseField(resp, "dish_get_config")
	if err != nil {
		return nil, err
	}
	return append(snap, toSnapshot(configMsg)...), nil
}

// Write sets one DishConfig field. path may include the "dish_config."
// prefix and may use "/" as a separator.
func (c *Client) Write(ctx context.Context, path string, value any) (telemetry.WriteOutcome, error) {
	parts := telemetry.SplitPath(telemetry.NormalizePath(path))
	if len(parts) > 0 && parts[0] == configPrefix {
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return telemetry.WriteOutcome{}, fmt.Errorf("%w: %q does not name a configuration field", telemetry.ErrFieldNotWritable, path)
	}

	cfg := dynamicpb.NewMessage(c.desc.DishConfig)
	applied, err := setPath(cfg, parts, value)
	if err != nil {
		return telemetry.WriteOutcome{}, err
	}

	if flag := cfg.Descriptor().Fields().ByName(protoreflect.Name("apply_" + parts[0])); flag != nil && flag.Kind() == protoreflect.BoolKind {
		cfg.Set(flag, protoreflect.ValueOfBool(true))
	}

	_, err = c.handle(ctx, "dish_set_config", func(req protoreflect.Message) {
		fd := req.Descriptor().Fields().ByName(configPrefix)
		req.Set(fd, protoreflect.ValueOfMessage(cfg))
	})
	if err != nil {
		return telemetry.WriteOutcome{}, mapError(err)
	}

	full := configPrefix + telemetry.PathSeparator + strings.Join(parts, telemetry.PathSeparator)
	c.logDebug("dish configuration written", "path", full, "applied", applied)
	return telemetry.WriteOutcome{Path: full, Applied: applied}, nil
}

// handle issues one Handle call with the named sub-request set. fill may
// populate the sub-request.
func (c *Client) handle(ctx context.Context, field protoreflect.Name, fill func(protoreflect.Message)) (protoreflect.Message, error) {
	fd := c.desc.Request.Fields().ByName(field)
	if fd == nil {
		return nil, fmt.Errorf("%w: request has no field %s", ErrDescriptors, field)
	}

	req := dynamicpb.NewMessage(c.desc.Request)
	sub := req.Mutable(fd).Message()
	if fill != nil {
		fill(sub)
	}

	resp := dynamicpb.NewMessage(c.desc.Response)
	if err := c.conn.Invoke(ctx, HandleMethod, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// responseField returns the named sub-response, which must be set.
func responseField(resp protoreflect.Message, name protoreflect.Name) (protoreflect.Message, error) {
	fd := resp.Descriptor().Fields().ByName(name)
	if fd == nil || fd.Message() == nil {
		return nil, fmt.Errorf("%w: response has no field %s", telemetry.ErrSourceProtocol, name)
	}
	if !resp.Has(fd) {
		return nil, fmt.Errorf("%w: response does not contain %s", telemetry.ErrSourceProtocol, name)
	}
	return resp.Get(fd).Message(), nil
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, keysAndValues...)
	}
}
