package shell

import (
	"fmt"
	"time"
)

// A ConnectionError reports a failure to establish or keep a transport
// to the remote process.
type ConnectionError struct {
	Connection string
	Err        error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("shell: connection %q: %v", e.Connection, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// A NotConnectedError reports an operation on a connection that is not
// established.
type NotConnectedError struct {
	Connection string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("shell: connection %q is not connected", e.Connection)
}

// A BusyError reports a command sent while a response is still
// outstanding on the connection.
type BusyError struct {
	Connection string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("shell: connection %q is waiting for a response",
		e.Connection)
}

// A TimeoutError reports that no registered pattern matched the
// output within the allowed time. The connection remains busy until
// the response arrives or the connection is reestablished.
type TimeoutError struct {
	Connection string
	Duration   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("shell: connection %q: no prompt match after %v",
		e.Connection, e.Duration)
}

// Timeout reports that the error was a timeout, matching the net.Error
// convention.
func (e *TimeoutError) Timeout() bool { return true }
