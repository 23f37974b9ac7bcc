package shell

import (
	"bytes"
	"testing"
	"time"
)

// The pump goroutine must not outlive Close when nobody drains readc.
func TestSSHPumpStopsOnClose(t *testing.T) {
	tr := &SSHTransport{
		readc: make(chan []byte, 2),
		done:  make(chan struct{}),
	}
	finished := make(chan struct{})
	go func() {
		// enough data to fill readc and block the send
		tr.pump(bytes.NewReader(make([]byte, 1<<20)))
		close(finished)
	}()

	// let the pump fill the channel and block
	time.Sleep(50 * time.Millisecond)
	select {
	case <-finished:
		t.Fatal("pump finished with readc full and no reader")
	default:
	}

	close(tr.done)
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("pump still running after done was closed")
	}
}
