package exception

import "github.com/yanun0323/errors"

// Order gateway errors
var (
	// ErrOperationDenied is returned when the circuit breaker rejects an
	// outbound call. The caller must not attempt the call.
	ErrOperationDenied = errors.New("gateway: operation denied by breaker")

	// ErrNilSubmitter is returned when the gateway has no submitter wired.
	ErrNilSubmitter = errors.New("gateway: nil submitter")
)
