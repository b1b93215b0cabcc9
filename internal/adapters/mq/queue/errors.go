package queue

import "errors"

// Enqueue failures. ErrFull is the backpressure signal.
var (
	ErrFull   = errors.New("queue full")
	ErrClosed = errors.New("queue closed")
)
