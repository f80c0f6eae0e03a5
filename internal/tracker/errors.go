package tracker

import (
	"errors"
	"fmt"
)

// TransportError wraps a network/auth/non-2xx failure talking to an external
// tracker. The orchestrator treats it as "no data for this item this run":
// logged, retried with backoff, and on exhaustion recorded as a per-item
// failure that never aborts the batch.
type TransportError struct {
	Op  string // e.g. "fetch changelog PROJ-1 page 2"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Transport wraps err as a TransportError for the given operation.
func Transport(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
