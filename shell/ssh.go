package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// An SSHTransport drives a remote shell over SSH. It requests a dumb
// pty with echo disabled, so the session behaves like the local exec
// transport. The transport owns a single reader goroutine pumping
// session output into a channel; it exits when the stream closes.
type SSHTransport struct {
	addr   string
	config *ssh.ClientConfig

	client    *ssh.Client
	session   *ssh.Session
	stdin     io.WriteCloser
	readc     chan []byte
	done      chan struct{}
	readErr   error
	connected bool
}

// NewSSHTransport returns a transport connecting to addr (host:port)
// with the given client configuration.
func NewSSHTransport(addr string, config *ssh.ClientConfig) *SSHTransport {
	return &SSHTransport{addr: addr, config: config}
}

// InsecureClientConfig returns a client config that accepts any host
// key. Fine for emulated nodes with generated keys, nothing else.
func InsecureClientConfig(user string, auth ...ssh.AuthMethod) *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
}

// Connect dials the endpoint, requests a pty and starts the remote
// shell.
func (t *SSHTransport) Connect(ctx context.Context) (err error) {
	if t.connected {
		return nil
	}
	defer func() {
		if err != nil {
			err = fmt.Errorf("ssh %s: %w", t.addr, err)
		}
	}()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return err
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, t.addr, t.config)
	if err != nil {
		conn.Close()
		return err
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return err
	}
	modes := ssh.TerminalModes{
		ssh.ECHO: 0,
	}
	if err := sess.RequestPty("dumb", 24, 80, modes); err != nil {
		sess.Close()
		client.Close()
		return err
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return err
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return err
	}
	if err := sess.Shell(); err != nil {
		sess.Close()
		client.Close()
		return err
	}

	t.client = client
	t.session = sess
	t.stdin = stdin
	t.readc = make(chan []byte, 16)
	t.done = make(chan struct{})
	t.connected = true
	go t.pump(stdout)
	return nil
}

// pump moves session output into readc until the stream ends or the
// transport is closed. The done channel keeps a pump stuck on a full
// readc from outliving Close.
func (t *SSHTransport) pump(r io.Reader) {
	defer close(t.readc)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			p := make([]byte, n)
			copy(p, buf[:n])
			select {
			case t.readc <- p:
			case <-t.done:
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				t.readErr = err
			}
			return
		}
	}
}

// Close shuts down the session and the client connection.
func (t *SSHTransport) Close() error {
	if !t.connected {
		return nil
	}
	t.connected = false
	close(t.done)
	t.session.Close()
	return t.client.Close()
}

// Write sends p to the remote shell.
func (t *SSHTransport) Write(p []byte) (int, error) {
	if !t.connected {
		return 0, errors.New("ssh: transport closed")
	}
	return t.stdin.Write(p)
}

// ReadAvailable returns output the remote shell has produced, waiting
// up to d for the first chunk.
func (t *SSHTransport) ReadAvailable(d time.Duration) ([]byte, error) {
	if !t.connected {
		return nil, errors.New("ssh: transport closed")
	}
	if d == 0 {
		select {
		case p, ok := <-t.readc:
			return p, t.streamErr(ok)
		default:
			return nil, nil
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case p, ok := <-t.readc:
		return p, t.streamErr(ok)
	case <-timer.C:
		return nil, nil
	}
}

func (t *SSHTransport) streamErr(ok bool) error {
	if ok {
		return nil
	}
	if t.readErr != nil {
		return fmt.Errorf("ssh %s: %w", t.addr, t.readErr)
	}
	return fmt.Errorf("ssh %s: connection closed", t.addr)
}

// Connected reports whether the session is established.
func (t *SSHTransport) Connected() bool {
	return t.connected
}

// Client returns the underlying SSH client for out-of-band use such as
// file transfers. It is nil before Connect.
func (t *SSHTransport) Client() *ssh.Client {
	return t.client
}
