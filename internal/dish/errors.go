package dish

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nerrad567/gray-logic-starlink/internal/telemetry"
)

// ErrDescriptors is returned when the protoset does not describe the dish
// API messages.
var ErrDescriptors = errors.New("dish: invalid message descriptors")

// mapError converts a gRPC call error into a telemetry source error.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %w", telemetry.ErrSourceUnavailable, err)
		}
		return fmt.Errorf("%w: %w", telemetry.ErrSourceProtocol, err)
	}

	var sentinel error
	switch st.Code() {
	case codes.PermissionDenied, codes.Unauthenticated:
		sentinel = telemetry.ErrPermissionDenied
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.ResourceExhausted, codes.Aborted:
		sentinel = telemetry.ErrSourceUnavailable
	case codes.InvalidArgument, codes.OutOfRange:
		sentinel = telemetry.ErrInvalidValue
	default:
		sentinel = telemetry.ErrSourceProtocol
	}

	if st.Message() == "" {
		return fmt.Errorf("%w: %s", sentinel, st.Code())
	}
	return fmt.Errorf("%w: %s: %s", sentinel, st.Code(), st.Message())
}
