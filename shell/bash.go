package shell

import (
	"context"
	"regexp"
)

// BashForcedPrompt is the sentinel PS1 value forced onto bash
// sessions. It is chosen to never occur in command output and to be
// safe to match literally.
const BashForcedPrompt = `@~~==::BASH_PROMPT::==~~@`

// bashInitialPrompt matches the usual user@host:dir prompt of an
// untouched bash session.
const bashInitialPrompt = `\w+@.+:.+[#$] `

// NewBashShell returns a Shell specialized for driving bash: once the
// initial prompt is seen, terminal echo is turned off with stty and
// PS1 is forced to BashForcedPrompt, so responses need no echo
// filtering and the prompt match cannot misfire on output.
func NewBashShell(dial DialFunc, opts ...Option) (*Shell, error) {
	base := []Option{
		WithInitialPrompt(bashInitialPrompt),
		WithEchoFilter(false),
		WithSetup(setupBash),
	}
	return New(regexp.QuoteMeta(BashForcedPrompt), dial,
		append(base, opts...)...)
}

func setupBash(ctx context.Context, c *Conn) error {
	if _, err := c.Expect(ctx, c.InitialPrompt(), 0); err != nil {
		return err
	}
	if err := c.Sendline("stty -echo"); err != nil {
		return err
	}
	if _, err := c.Expect(ctx, c.InitialPrompt(), 0); err != nil {
		return err
	}
	if err := c.Sendline("export PS1=" + BashForcedPrompt); err != nil {
		return err
	}
	c.SetPrompt(regexp.MustCompile(regexp.QuoteMeta(BashForcedPrompt)))
	return nil
}
