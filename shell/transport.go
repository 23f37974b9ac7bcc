package shell

import (
	"context"
	"time"
)

// A Transport is a single bidirectional byte stream to an interactive
// process, either spawned locally or reached over the network. A Shell
// uses one Transport per named connection and is the only reader and
// writer of it.
type Transport interface {
	// Connect establishes the underlying stream. Connect on an
	// already established transport is a no-op.
	Connect(ctx context.Context) error

	// Close tears down the stream and releases any resources held by
	// the transport.
	Close() error

	// Write sends p to the process.
	Write(p []byte) (int, error)

	// ReadAvailable returns bytes the process has produced, waiting
	// up to d for the first byte to arrive. A zero d checks once
	// without waiting. It returns a nil slice when nothing arrived
	// within d and an error when the stream is gone.
	ReadAvailable(d time.Duration) ([]byte, error)

	// Connected reports whether the stream is established.
	Connected() bool
}
