package shell

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// A TelnetTransport is a raw TCP transport for devices exposing a
// line-oriented console on a TCP port. No option negotiation is
// performed; emulated consoles speak plain bytes.
type TelnetTransport struct {
	addr string
	conn net.Conn
}

// NewTelnetTransport returns a transport connecting to addr
// (host:port).
func NewTelnetTransport(addr string) *TelnetTransport {
	return &TelnetTransport{addr: addr}
}

// Connect dials the console.
func (t *TelnetTransport) Connect(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("telnet %s: %w", t.addr, err)
	}
	t.conn = conn
	return nil
}

// Close shuts down the TCP connection.
func (t *TelnetTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// Write sends p to the console.
func (t *TelnetTransport) Write(p []byte) (int, error) {
	if t.conn == nil {
		return 0, errors.New("telnet: transport closed")
	}
	return t.conn.Write(p)
}

// ReadAvailable returns output the console has produced, waiting up to
// d for the first byte.
func (t *TelnetTransport) ReadAvailable(d time.Duration) ([]byte, error) {
	if t.conn == nil {
		return nil, errors.New("telnet: transport closed")
	}
	if d == 0 {
		// a deadline of now is already expired and fails before the
		// read is attempted, hiding data sitting in the socket
		d = time.Millisecond
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		return nil, err
	}
	buf := make([]byte, 4096)
	n, err := t.conn.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil || os.IsTimeout(err) {
		return nil, nil
	}
	return nil, fmt.Errorf("telnet %s: %w", t.addr, err)
}

// Connected reports whether the TCP connection is established.
func (t *TelnetTransport) Connected() bool {
	return t.conn != nil
}
