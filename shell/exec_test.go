package shell

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

func TestExecTransportCat(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not installed")
	}
	tr := NewExecTransport("cat")
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	if !tr.Connected() {
		t.Fatal("not connected after Connect")
	}
	// nothing written yet, a zero-wait poll returns no data
	p, err := tr.ReadAvailable(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 0 {
		t.Fatalf("got %q from idle process", p)
	}

	if _, err := tr.Write([]byte("hello\n")); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	var got []byte
	for len(got) < 6 && time.Now().Before(deadline) {
		p, err := tr.ReadAvailable(100 * time.Millisecond)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, p...)
	}
	if string(got) != "hello\n" {
		t.Errorf("got %q, want %q", got, "hello\n")
	}
}

// A zero-wait poll must still pick up output that already sits in the
// pipe.
func TestExecTransportZeroWaitPickup(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not installed")
	}
	tr := NewExecTransport("cat")
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	if _, err := tr.Write([]byte("hello\n")); err != nil {
		t.Fatal(err)
	}
	// give cat time to echo; the data is now buffered in the pipe
	time.Sleep(300 * time.Millisecond)

	p, err := tr.ReadAvailable(0)
	if err != nil {
		t.Fatal(err)
	}
	if string(p) != "hello\n" {
		t.Errorf("got %q from zero-wait poll, want %q", p, "hello\n")
	}
}

func TestExecTransportClose(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not installed")
	}
	tr := NewExecTransport("cat")
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if tr.Connected() {
		t.Error("still connected after Close")
	}
	if _, err := tr.Write([]byte("x")); err == nil {
		t.Error("got nil error writing to closed transport")
	}
}

// TestBashEndToEnd drives a real bash through the full engine.
func TestBashEndToEnd(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
	}
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not installed")
	}
	sh, err := NewBashShell(
		func(ctx context.Context) (Transport, error) {
			// -i forces prompting without a pty
			return NewExecTransport("bash", "--norc", "--noprofile", "-i"), nil
		},
		WithInitialPrompt(`[#$] `),
		WithTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer sh.DisconnectAll()

	ctx := context.Background()
	got, err := sh.Execute(ctx, "echo hello world")
	if err != nil {
		t.Fatal(err)
	}
	if want := "hello world"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	// a second connection runs its own process
	got, err = sh.Execute(ctx, "echo second", On("aux"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "second"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
