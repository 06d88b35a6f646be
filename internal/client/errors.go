package client

import (
	"errors"
	"net/http"
)

// Sentinel errors surfaced to callers, normalized from transport/HTTP
// status failures so stabilizer tasks and the lookup engine can branch on
// them without knowing anything about HTTP.
var (
	ErrUnreachable   = errors.New("peer unreachable")
	ErrNoPredecessor = errors.New("peer has no predecessor")
	ErrTimeout       = errors.New("peer RPC timed out")
	ErrBadRequest    = errors.New("peer rejected malformed request")
	ErrInternal      = errors.New("peer internal error")
)

// normalizeStatus maps an HTTP response status code to a sentinel error, or
// nil for success, so callers can branch on peer-failure kind without
// inspecting transport details.
func normalizeStatus(status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusNotFound:
		return ErrNoPredecessor
	case status == http.StatusBadRequest:
		return ErrBadRequest
	case status >= 500:
		return ErrInternal
	default:
		return ErrInternal
	}
}
