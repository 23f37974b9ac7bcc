package shell

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeTransport is a scripted in-memory transport. Written commands
// are recorded and, if a response is scripted for them, its bytes
// become available for reading.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	dialErr   error
	greeting  string
	respond   map[string]string
	commands  []string
	pending   bytes.Buffer
}

func (t *fakeTransport) Connect(ctx context.Context) error {
	if t.dialErr != nil {
		return t.dialErr
	}
	t.mu.Lock()
	t.connected = true
	t.pending.WriteString(t.greeting)
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Write(p []byte) (int, error) {
	line := strings.TrimSuffix(string(p), "\n")
	t.mu.Lock()
	t.commands = append(t.commands, line)
	if out, ok := t.respond[line]; ok {
		t.pending.WriteString(out)
	}
	t.mu.Unlock()
	return len(p), nil
}

func (t *fakeTransport) ReadAvailable(d time.Duration) ([]byte, error) {
	t.mu.Lock()
	n := t.pending.Len()
	t.mu.Unlock()
	if n == 0 {
		time.Sleep(d)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending.Len() == 0 {
		return nil, nil
	}
	p := make([]byte, t.pending.Len())
	t.pending.Read(p)
	return p, nil
}

func (t *fakeTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *fakeTransport) queue(s string) {
	t.mu.Lock()
	t.pending.WriteString(s)
	t.mu.Unlock()
}

// newFakeShell returns a shell whose connections all script the same
// way, plus the transports dialed so far.
func newFakeShell(t *testing.T, respond map[string]string, opts ...Option) (*Shell, *[]*fakeTransport) {
	t.Helper()
	var transports []*fakeTransport
	dial := func(ctx context.Context) (Transport, error) {
		ft := &fakeTransport{greeting: "$ ", respond: respond}
		transports = append(transports, ft)
		return ft, nil
	}
	opts = append([]Option{WithTimeout(500 * time.Millisecond)}, opts...)
	sh, err := New(`\$ `, dial, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return sh, &transports
}

func TestExecuteStripsEchoAndPrompt(t *testing.T) {
	sh, _ := newFakeShell(t, map[string]string{
		"ls": "ls\r\nfile1\r\nfile2\r\n$ ",
	})
	got, err := sh.Execute(context.Background(), "ls")
	if err != nil {
		t.Fatal(err)
	}
	if want := "file1\nfile2"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTermCodesStripped(t *testing.T) {
	sh, _ := newFakeShell(t, map[string]string{
		"ls": "\x1b[01;34mdir\x1b[0m\r\n$ ",
	})
	got, err := sh.Execute(context.Background(), "ls")
	if err != nil {
		t.Fatal(err)
	}
	if want := "dir"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBusyDiscipline(t *testing.T) {
	ctx := context.Background()
	sh, _ := newFakeShell(t, map[string]string{
		"uname": "Linux\r\n$ ",
	})
	if err := sh.SendCommand(ctx, "uname"); err != nil {
		t.Fatal(err)
	}
	err := sh.SendCommand(ctx, "uname")
	var busy *BusyError
	if !errors.As(err, &busy) {
		t.Fatalf("got err=%v, want BusyError", err)
	}
	if _, err := sh.GetResponse(ctx); err != nil {
		t.Fatal(err)
	}
	// response collected, the connection accepts commands again
	if err := sh.SendCommand(ctx, "uname"); err != nil {
		t.Fatal(err)
	}
}

func TestTimeoutLeavesBusy(t *testing.T) {
	ctx := context.Background()
	sh, transports := newFakeShell(t, nil)
	if err := sh.SendCommand(ctx, "sleep 100"); err != nil {
		t.Fatal(err)
	}

	_, err := sh.GetResponse(ctx, Timeout(0))
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("got err=%v, want TimeoutError", err)
	}
	err = sh.SendCommand(ctx, "echo nope")
	var busy *BusyError
	if !errors.As(err, &busy) {
		t.Fatalf("got err=%v, want BusyError", err)
	}

	// the response shows up late; a retried GetResponse collects it
	(*transports)[0].queue("done\r\n$ ")
	got, err := sh.GetResponse(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := "done"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if err := sh.SendCommand(ctx, "uname"); err != nil {
		t.Fatal(err)
	}
}

func TestTimeoutZeroSinglePoll(t *testing.T) {
	ctx := context.Background()
	sh, _ := newFakeShell(t, nil)
	if err := sh.SendCommand(ctx, "true"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	_, err := sh.GetResponse(ctx, Timeout(0))
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("got err=%v, want TimeoutError", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("single poll took %v", elapsed)
	}
}

func TestDisconnectClearsBusy(t *testing.T) {
	ctx := context.Background()
	sh, transports := newFakeShell(t, map[string]string{
		"uname": "Linux\r\n$ ",
	})
	if err := sh.SendCommand(ctx, "hang"); err != nil {
		t.Fatal(err)
	}
	if _, err := sh.GetResponse(ctx, Timeout(0)); err == nil {
		t.Fatal("got nil error, want TimeoutError")
	}
	if err := sh.Disconnect(""); err != nil {
		t.Fatal(err)
	}
	if sh.IsConnected("") {
		t.Error("still connected after Disconnect")
	}
	// reconnect happens lazily and the fresh connection is not busy
	got, err := sh.Execute(ctx, "uname")
	if err != nil {
		t.Fatal(err)
	}
	if want := "Linux"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if n := len(*transports); n != 2 {
		t.Errorf("got %d transports dialed, want 2", n)
	}
}

func TestDisconnectNotConnected(t *testing.T) {
	sh, _ := newFakeShell(t, nil)
	err := sh.Disconnect("nosuch")
	var notConnected *NotConnectedError
	if !errors.As(err, &notConnected) {
		t.Errorf("got err=%v, want NotConnectedError", err)
	}
}

func TestGetResponseNotConnected(t *testing.T) {
	sh, _ := newFakeShell(t, nil)
	_, err := sh.GetResponse(context.Background())
	var notConnected *NotConnectedError
	if !errors.As(err, &notConnected) {
		t.Errorf("got err=%v, want NotConnectedError", err)
	}
}

func TestConnectionMultiplexing(t *testing.T) {
	ctx := context.Background()
	sh, transports := newFakeShell(t, map[string]string{
		"hostname": "hs1\r\n$ ",
	})
	if err := sh.SendCommand(ctx, "hang", On("a")); err != nil {
		t.Fatal(err)
	}
	// connection b is independent of a's outstanding response
	got, err := sh.Execute(ctx, "hostname", On("b"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "hs1"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if n := len(*transports); n != 2 {
		t.Errorf("got %d transports dialed, want 2", n)
	}
	if !sh.IsConnected("a") || !sh.IsConnected("b") {
		t.Error("expected both connections established")
	}
}

func TestDefaultConnection(t *testing.T) {
	ctx := context.Background()
	sh, _ := newFakeShell(t, map[string]string{
		"uname": "Linux\r\n$ ",
	})
	if got := sh.DefaultConnection(); got != "" {
		t.Errorf("got default connection %q before connect, want none", got)
	}
	if _, err := sh.Execute(ctx, "uname"); err != nil {
		t.Fatal(err)
	}
	if got := sh.DefaultConnection(); got != DefaultConnection {
		t.Errorf("got default connection %q, want %q",
			got, DefaultConnection)
	}

	// an unestablished name is legal and connects on first use
	sh.SetDefaultConnection("alt")
	if sh.IsConnected("alt") {
		t.Fatal("alt connected before use")
	}
	if _, err := sh.Execute(ctx, "uname"); err != nil {
		t.Fatal(err)
	}
	if !sh.IsConnected("alt") {
		t.Error("alt not connected after use")
	}
}

func TestMatchesCompleteResponse(t *testing.T) {
	ctx := context.Background()
	sh, transports := newFakeShell(t, map[string]string{
		"reboot": "reboot\r\nproceed? (y/n) ",
	})
	got, err := sh.Execute(ctx, "reboot", Matches(`\(y/n\)`))
	if err != nil {
		t.Fatal(err)
	}
	if want := "proceed?"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	// the match cleared the busy flag, the confirmation can be sent
	(*transports)[0].queue("$ ")
	if err := sh.SendCommand(ctx, "y"); err != nil {
		t.Fatal(err)
	}
}

func TestCommandPrefix(t *testing.T) {
	ctx := context.Background()
	sh, transports := newFakeShell(t, map[string]string{
		"sudo whoami": "root\r\n$ ",
	}, WithPrefix("sudo "))
	got, err := sh.Execute(ctx, "whoami")
	if err != nil {
		t.Fatal(err)
	}
	if want := "root"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	cmds := (*transports)[0].commands
	if len(cmds) == 0 || cmds[len(cmds)-1] != "sudo whoami" {
		t.Errorf("got commands %v, want trailing %q", cmds, "sudo whoami")
	}
}

func TestConnectDialError(t *testing.T) {
	dial := func(ctx context.Context) (Transport, error) {
		return nil, errors.New("refused")
	}
	sh, err := New(`\$ `, dial)
	if err != nil {
		t.Fatal(err)
	}
	err = sh.Connect(context.Background(), "")
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("got err=%v, want ConnectionError", err)
	}
}

func TestConnectPasswordHandshake(t *testing.T) {
	var ft *fakeTransport
	dial := func(ctx context.Context) (Transport, error) {
		ft = &fakeTransport{
			greeting: "login\r\nPassword: ",
			respond: map[string]string{
				"hunter2": "\r\n$ ",
			},
		}
		return ft, nil
	}
	sh, err := New(`\$ `, dial,
		WithTimeout(500*time.Millisecond),
		WithPassword("hunter2"))
	if err != nil {
		t.Fatal(err)
	}
	if err := sh.Connect(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if got, want := ft.commands, []string{"hunter2"}; len(got) != 1 || got[0] != want[0] {
		t.Errorf("got commands %v, want %v", got, want)
	}
}

func TestConnectInitialCommand(t *testing.T) {
	var ft *fakeTransport
	dial := func(ctx context.Context) (Transport, error) {
		ft = &fakeTransport{
			greeting: "device> ",
			respond: map[string]string{
				"enable": "\r\ndevice# ",
			},
		}
		return ft, nil
	}
	sh, err := New(`device# `, dial,
		WithTimeout(500*time.Millisecond),
		WithInitialPrompt(`device> `),
		WithInitialCommand("enable"))
	if err != nil {
		t.Fatal(err)
	}
	if err := sh.Connect(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if len(ft.commands) != 1 || ft.commands[0] != "enable" {
		t.Errorf("got commands %v, want [enable]", ft.commands)
	}
}

func TestConnectIdempotent(t *testing.T) {
	ctx := context.Background()
	sh, transports := newFakeShell(t, nil)
	if err := sh.Connect(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if err := sh.Connect(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if n := len(*transports); n != 1 {
		t.Errorf("got %d transports dialed, want 1", n)
	}
}

func TestBashSetup(t *testing.T) {
	var ft *fakeTransport
	dial := func(ctx context.Context) (Transport, error) {
		ft = &fakeTransport{
			greeting: "user@host:~$ ",
			respond: map[string]string{
				"stty -echo":                   "user@host:~$ ",
				"export PS1=" + BashForcedPrompt: BashForcedPrompt,
				"echo hi":                      "hi\r\n" + BashForcedPrompt,
			},
		}
		return ft, nil
	}
	sh, err := NewBashShell(dial, WithTimeout(500*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	got, err := sh.Execute(context.Background(), "echo hi")
	if err != nil {
		t.Fatal(err)
	}
	if want := "hi"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	want := []string{"stty -echo", "export PS1=" + BashForcedPrompt, "echo hi"}
	if len(ft.commands) != len(want) {
		t.Fatalf("got commands %v, want %v", ft.commands, want)
	}
	for i := range want {
		if ft.commands[i] != want[i] {
			t.Errorf("command %d: got %q, want %q",
				i, ft.commands[i], want[i])
		}
	}
}

func TestContextCancellation(t *testing.T) {
	sh, _ := newFakeShell(t, nil, WithTimeout(10*time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	if err := sh.SendCommand(ctx, "hang"); err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := sh.GetResponse(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got err=%v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation took %v", elapsed)
	}
}
