package shell

import (
	"bytes"
	"context"
	"regexp"
	"time"
)

// A Conn is the per-connection protocol state: the transport, the busy
// flag, the prompt pattern in effect, any extra match patterns
// registered by the last SendCommand and the buffered output not yet
// consumed by a match. Conns are handed to SetupFuncs during the
// connect handshake; all later access goes through the Shell.
type Conn struct {
	name          string
	t             Transport
	prompt        *regexp.Regexp
	initialPrompt *regexp.Regexp
	timeout       time.Duration

	busy        bool
	lastCommand string
	matches     []*regexp.Regexp
	buf         bytes.Buffer
}

// Name returns the connection name.
func (c *Conn) Name() string { return c.name }

// Busy reports whether a response is outstanding.
func (c *Conn) Busy() bool { return c.busy }

// Prompt returns the pattern currently recognized as the prompt.
func (c *Conn) Prompt() *regexp.Regexp { return c.prompt }

// SetPrompt changes the pattern recognized as the prompt, for setup
// functions that force a known prompt on the remote side.
func (c *Conn) SetPrompt(re *regexp.Regexp) { c.prompt = re }

// InitialPrompt returns the pattern expected from a freshly
// established session.
func (c *Conn) InitialPrompt() *regexp.Regexp { return c.initialPrompt }

// Send writes s to the transport as-is.
func (c *Conn) Send(s string) error {
	if _, err := c.t.Write([]byte(s)); err != nil {
		return &ConnectionError{Connection: c.name, Err: err}
	}
	return nil
}

// Sendline writes s followed by a newline.
func (c *Conn) Sendline(s string) error {
	return c.Send(s + "\n")
}

// Expect waits until the connection's output matches pattern and
// returns the text preceding the match. A non-positive timeout uses
// the shell default.
func (c *Conn) Expect(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	before, _, err := c.expect(ctx, []*regexp.Regexp{pattern}, timeout)
	return before, err
}

// expect reads transport output into the connection buffer until one
// of patterns matches, returning the text preceding the match and the
// index of the matched pattern. The buffer is consumed through the
// end of the match. Reads happen in pollInterval quanta so ctx
// cancellation is honored. A timeout of zero polls the transport
// once.
func (c *Conn) expect(ctx context.Context, patterns []*regexp.Regexp, timeout time.Duration) (string, int, error) {
	deadline := time.Now().Add(timeout)
	polled := false
	for {
		if before, idx, ok := c.searchBuf(patterns); ok {
			return before, idx, nil
		}
		if err := ctx.Err(); err != nil {
			return "", -1, err
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			if polled {
				return "", -1, &TimeoutError{
					Connection: c.name,
					Duration:   timeout,
				}
			}
			wait = 0
		}
		if wait > pollInterval {
			wait = pollInterval
		}
		p, err := c.t.ReadAvailable(wait)
		polled = true
		if err != nil {
			return "", -1, &ConnectionError{Connection: c.name, Err: err}
		}
		c.buf.Write(p)
	}
}

// searchBuf looks for the earliest match of any pattern in the
// buffered output. On a match the buffer is consumed through the end
// of the match and the preceding text is returned.
func (c *Conn) searchBuf(patterns []*regexp.Regexp) (string, int, bool) {
	data := c.buf.Bytes()
	best := -1
	var bestLoc []int
	for i, re := range patterns {
		loc := re.FindIndex(data)
		if loc == nil {
			continue
		}
		if best == -1 || loc[0] < bestLoc[0] {
			best, bestLoc = i, loc
		}
	}
	if best == -1 {
		return "", -1, false
	}
	before := string(data[:bestLoc[0]])
	c.buf.Next(bestLoc[1])
	return before, best, true
}
