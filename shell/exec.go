package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go4.org/writerutil"
)

// An ExecTransport runs a local interactive process and exposes its
// stdio as a Transport. Stdout and stderr share one stream, the way a
// terminal user would see them; the tail of stderr is additionally
// retained for error reporting. Read timeouts are implemented with
// pipe read deadlines, so the transport owns no goroutines.
type ExecTransport struct {
	name string
	args []string
	env  []string

	cmd       *exec.Cmd
	stdin     *os.File
	stdout    *os.File
	stderr    *writerutil.PrefixSuffixSaver
	connected bool
}

// An ExecOption customizes an ExecTransport.
type ExecOption func(*ExecTransport)

// WithEnv appends environment variables (KEY=value) to the spawned
// process environment.
func WithEnv(env ...string) ExecOption {
	return func(t *ExecTransport) { t.env = append(t.env, env...) }
}

// NewExecTransport returns a transport spawning the named program on
// Connect. The process runs with TERM=dumb so it does not emit
// terminal control sequences.
func NewExecTransport(name string, args ...string) *ExecTransport {
	return &ExecTransport{name: name, args: args}
}

// NewExecTransportOpts is like NewExecTransport with options applied.
func NewExecTransportOpts(name string, args []string, opts ...ExecOption) *ExecTransport {
	t := NewExecTransport(name, args...)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect spawns the process.
func (t *ExecTransport) Connect(ctx context.Context) (err error) {
	if t.connected {
		return nil
	}
	defer func() {
		if err != nil {
			err = fmt.Errorf("exec %s: %w", t.name, err)
		}
	}()

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return err
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return err
	}
	t.stderr = &writerutil.PrefixSuffixSaver{N: 1 << 10}

	cmd := exec.Command(t.name, t.args...)
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = io.MultiWriter(stdoutW, t.stderr)
	cmd.Env = append(append(os.Environ(), "TERM=dumb"), t.env...)
	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		return err
	}
	// parent copies of the child's ends
	stdinR.Close()
	stdoutW.Close()

	t.cmd = cmd
	t.stdin = stdinW
	t.stdout = stdoutR
	t.connected = true
	return nil
}

// Close terminates the process and releases the pipes.
func (t *ExecTransport) Close() error {
	if !t.connected {
		return nil
	}
	t.connected = false
	t.stdin.Close()
	t.cmd.Process.Kill()
	// closing the read end first keeps the stderr copier from
	// blocking Wait on a full pipe
	err := t.stdout.Close()
	t.cmd.Wait()
	return err
}

// Write sends p to the process's stdin.
func (t *ExecTransport) Write(p []byte) (int, error) {
	if !t.connected {
		return 0, errors.New("exec: transport closed")
	}
	return t.stdin.Write(p)
}

// ReadAvailable returns output the process has produced, waiting up to
// d for the first byte.
func (t *ExecTransport) ReadAvailable(d time.Duration) ([]byte, error) {
	if !t.connected {
		return nil, errors.New("exec: transport closed")
	}
	if d == 0 {
		// a deadline of now is already expired and fails before the
		// read is attempted, hiding data sitting in the pipe
		d = time.Millisecond
	}
	if err := t.stdout.SetReadDeadline(time.Now().Add(d)); err != nil {
		return nil, err
	}
	buf := make([]byte, 4096)
	n, err := t.stdout.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil || os.IsTimeout(err) {
		return nil, nil
	}
	if err == io.EOF {
		return nil, fmt.Errorf("exec %s: process exited (stderr: %q)",
			t.name, t.stderr.Bytes())
	}
	return nil, err
}

// Connected reports whether the process is running.
func (t *ExecTransport) Connected() bool {
	return t.connected
}
