package insight

import (
	"context"
	"fmt"
)

// Failure codes carried by pkg/errors.AppError values on the analysis path.
const (
	CodeTransportUnreachable = "transport_unreachable"
	CodeTransportTimeout     = "transport_timeout"
	CodeServerError          = "server_error"
	CodeMalformedResponse    = "malformed_response"
	CodeCancelled            = "cancelled"
	CodeEncodingFailure      = "encoding_failure"
)

// Transport performs the network call to the analysis backend.
//
// Implementations must honour ctx cancellation, must never report success
// once cancelled, must enforce their own upper-bound timeout, and must turn
// statuses outside [200,300) into a CodeServerError failure wrapping a
// *StatusError.
type Transport interface {
	Send(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// TransportRequest is an encoded analysis call.
type TransportRequest struct {
	Path        string
	Body        []byte
	BearerToken string
}

// TransportResponse is a successful backend reply.
type TransportResponse struct {
	StatusCode int
	Body       []byte
}

// StatusError carries a non-2xx reply for diagnostics.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status=%d body=%s", e.StatusCode, string(e.Body))
}
