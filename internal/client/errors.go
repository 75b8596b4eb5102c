package client

import (
	"context"
	"errors"

	"github.com/roach88/jmap/internal/graph"
	"github.com/roach88/jmap/internal/session"
	"github.com/roach88/jmap/internal/transport"
	"github.com/roach88/jmap/internal/wire"
)

// ErrNotConnected is returned when a batch is started before any session
// has been discovered.
var ErrNotConnected = errors.New("client: no session; call RefreshSession first")

// IsProtocolError returns true for every client/server desync: a malformed
// or orphaned response, or an invalid session document.
func IsProtocolError(err error) bool {
	var pe *wire.ProtocolError
	if errors.As(err, &pe) {
		return true
	}
	var de *session.DocumentError
	return errors.As(err, &de)
}

// IsBuildError returns true if err was detected before any network use.
func IsBuildError(err error) bool {
	return len(graph.Violations(err)) > 0
}

// IsTransportError returns true for a non-2xx status.
func IsTransportError(err error) bool {
	return transport.IsStatusError(err)
}

// outcomeLabel classifies a Send error for logs and metrics.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case IsBuildError(err):
		return "build_error"
	case IsProtocolError(err):
		return "protocol_error"
	default:
		return "transport_error"
	}
}
