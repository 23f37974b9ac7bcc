// Package shell implements a prompt-driven engine for interactive
// command sessions. A Shell multiplexes named connections over
// transports to the same endpoint and enforces a strict send/response
// discipline on each of them: a command is sent, the output is
// buffered until the prompt (or another registered pattern) matches,
// and the text in between is the response.
package shell

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultConnection is the reserved name of a shell's implicit first
// connection. Operations that do not name a connection go through the
// default connection, which starts out as this one.
const DefaultConnection = "0"

// DefaultTimeout bounds response waits unless overridden per shell or
// per call.
const DefaultTimeout = 10 * time.Second

// Output is searched for matches each time up to pollInterval elapses,
// so context cancellation is honored with that granularity.
const pollInterval = 50 * time.Millisecond

// Terminal control codes some shells emit even on dumb terminals.
// Stripped from responses.
var termCodes = regexp.MustCompile(
	`\x1b[E\[](\?)?([0-9]{1,2}(;[0-9]{1,2})?)?[mKhHr]?`)

// A DialFunc establishes a fresh Transport for one shell connection.
// It is invoked once per named connection; the transport is owned by
// that connection until it is disconnected.
type DialFunc func(ctx context.Context) (Transport, error)

// A SetupFunc runs against a freshly dialed connection after the
// optional password exchange, before the initial prompt is consumed.
// It may change the connection's prompt pattern.
type SetupFunc func(ctx context.Context, c *Conn) error

// A Shell drives interactive sessions against one endpoint. Distinct
// named connections are independent; each carries its own transport,
// busy state and output buffer.
type Shell struct {
	dial DialFunc

	prompt         *regexp.Regexp
	initialPrompt  *regexp.Regexp
	password       string
	passwordMatch  *regexp.Regexp
	initialCommand string
	prefix         string
	timeout        time.Duration
	filterEcho     bool
	setup          SetupFunc

	mu          sync.Mutex
	conns       map[string]*Conn
	defaultConn string
}

// An Option customizes a Shell.
type Option func(*Shell)

// WithTimeout sets the default response timeout. It must be
// non-negative; zero means a single output poll without waiting.
func WithTimeout(d time.Duration) Option {
	return func(s *Shell) { s.timeout = d }
}

// WithInitialPrompt sets the prompt pattern in effect when a
// connection is freshly established, before any setup ran. It
// defaults to the regular prompt.
func WithInitialPrompt(pattern string) Option {
	return func(s *Shell) {
		s.initialPrompt = regexp.MustCompile(pattern)
	}
}

// WithPassword makes Connect wait for a password prompt and send
// password before anything else.
func WithPassword(password string) Option {
	return func(s *Shell) { s.password = password }
}

// WithPasswordMatch overrides the pattern recognized as the password
// prompt (default "[pP]assword:").
func WithPasswordMatch(pattern string) Option {
	return func(s *Shell) {
		s.passwordMatch = regexp.MustCompile(pattern)
	}
}

// WithInitialCommand makes Connect run a command once the initial
// prompt is seen, for example to enter an unprivileged CLI mode.
func WithInitialCommand(command string) Option {
	return func(s *Shell) { s.initialCommand = command }
}

// WithPrefix prepends a fixed string to every command sent.
func WithPrefix(prefix string) Option {
	return func(s *Shell) { s.prefix = prefix }
}

// WithEchoFilter controls dropping of the echoed command from
// responses, for endpoints whose echo cannot be turned off. Enabled
// by default.
func WithEchoFilter(enabled bool) Option {
	return func(s *Shell) { s.filterEcho = enabled }
}

// WithSetup installs a function run against every freshly dialed
// connection, before the initial prompt is consumed.
func WithSetup(f SetupFunc) Option {
	return func(s *Shell) { s.setup = f }
}

// New returns a Shell matching responses against the given prompt
// pattern, dialing transports through dial.
func New(prompt string, dial DialFunc, opts ...Option) (*Shell, error) {
	re, err := regexp.Compile(prompt)
	if err != nil {
		return nil, fmt.Errorf("shell: compile prompt: %w", err)
	}
	s := &Shell{
		dial:          dial,
		prompt:        re,
		passwordMatch: regexp.MustCompile(`[pP]assword:`),
		timeout:       DefaultTimeout,
		filterEcho:    true,
		conns:         make(map[string]*Conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.initialPrompt == nil {
		s.initialPrompt = s.prompt
	}
	if s.timeout < 0 {
		return nil, fmt.Errorf("shell: negative timeout %v", s.timeout)
	}
	return s, nil
}

// resolveName maps the empty connection name to the current default
// connection.
func (s *Shell) resolveName(name string) string {
	if name != "" {
		return name
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.defaultConn != "" {
		return s.defaultConn
	}
	return DefaultConnection
}

// Connect establishes the named connection (the default connection if
// name is empty). Connecting an already established connection is a
// no-op. The handshake runs the optional password exchange, setup
// function and initial command, and consumes the initial prompt so
// the session starts at rest.
func (s *Shell) Connect(ctx context.Context, name string) error {
	name = s.resolveName(name)
	s.mu.Lock()
	if c := s.conns[name]; c != nil && c.t.Connected() {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	c, err := s.open(ctx, name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conns[name] = c
	if s.defaultConn == "" {
		s.defaultConn = name
	}
	s.mu.Unlock()
	return nil
}

func (s *Shell) open(ctx context.Context, name string) (c *Conn, err error) {
	t, err := s.dial(ctx)
	if err != nil {
		return nil, &ConnectionError{Connection: name, Err: err}
	}
	if err := t.Connect(ctx); err != nil {
		return nil, &ConnectionError{Connection: name, Err: err}
	}
	defer func() {
		if err != nil {
			t.Close()
			if _, ok := err.(*ConnectionError); !ok {
				err = &ConnectionError{Connection: name, Err: err}
			}
		}
	}()

	c = &Conn{
		name:          name,
		t:             t,
		prompt:        s.prompt,
		initialPrompt: s.initialPrompt,
		timeout:       s.timeout,
	}
	if s.password != "" {
		if _, _, err := c.expect(ctx,
			[]*regexp.Regexp{s.passwordMatch}, s.timeout); err != nil {
			return nil, err
		}
		if err := c.Sendline(s.password); err != nil {
			return nil, err
		}
	}
	if s.setup != nil {
		if err := s.setup(ctx, c); err != nil {
			return nil, err
		}
	}
	if s.initialCommand != "" {
		if _, _, err := c.expect(ctx,
			[]*regexp.Regexp{c.initialPrompt}, s.timeout); err != nil {
			return nil, err
		}
		if err := c.Sendline(s.initialCommand); err != nil {
			return nil, err
		}
	}
	// Wait for the session to come to rest at a prompt.
	if _, _, err := c.expect(ctx,
		[]*regexp.Regexp{c.prompt}, s.timeout); err != nil {
		return nil, err
	}
	c.buf.Reset()
	return c, nil
}

// Disconnect closes the named connection (the default connection if
// name is empty). The connection may be reestablished with Connect,
// which clears any leftover busy state.
func (s *Shell) Disconnect(name string) error {
	name = s.resolveName(name)
	s.mu.Lock()
	c := s.conns[name]
	delete(s.conns, name)
	s.mu.Unlock()
	if c == nil || !c.t.Connected() {
		return &NotConnectedError{Connection: name}
	}
	return c.t.Close()
}

// IsConnected reports whether the named connection (the default
// connection if name is empty) is established.
func (s *Shell) IsConnected(name string) bool {
	name = s.resolveName(name)
	s.mu.Lock()
	c := s.conns[name]
	s.mu.Unlock()
	return c != nil && c.t.Connected()
}

// DefaultConnection returns the name operations use when none is
// given. It is empty until a default is set or a first connection is
// established.
func (s *Shell) DefaultConnection() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultConn
}

// SetDefaultConnection routes operations that do not name a
// connection to name. The name does not have to be established yet:
// the next command triggers the connect.
func (s *Shell) SetDefaultConnection(name string) {
	s.mu.Lock()
	s.defaultConn = name
	s.mu.Unlock()
}

// Connections returns the names of all established connections.
func (s *Shell) Connections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for name, c := range s.conns {
		if c.t.Connected() {
			names = append(names, name)
		}
	}
	return names
}

// DisconnectAll closes every established connection, returning the
// first error encountered.
func (s *Shell) DisconnectAll() error {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[string]*Conn)
	s.mu.Unlock()

	var firstErr error
	for _, c := range conns {
		if !c.t.Connected() {
			continue
		}
		if err := c.t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// A CallOption customizes a single SendCommand, GetResponse or
// Execute call.
type CallOption func(*callConfig)

type callConfig struct {
	connection string
	matches    []string
	newline    bool
	timeout    time.Duration
	timeoutSet bool
}

// On routes the call to the named connection instead of the default
// connection.
func On(connection string) CallOption {
	return func(c *callConfig) { c.connection = connection }
}

// Matches registers extra patterns that complete the response wait in
// addition to the prompt, for commands that stop at interactive
// confirmation prompts.
func Matches(patterns ...string) CallOption {
	return func(c *callConfig) {
		c.matches = append(c.matches, patterns...)
	}
}

// NoNewline sends the command bytes without a trailing newline.
func NoNewline() CallOption {
	return func(c *callConfig) { c.newline = false }
}

// Timeout overrides the shell's default response timeout for this
// call. Zero means a single output poll without waiting.
func Timeout(d time.Duration) CallOption {
	return func(c *callConfig) {
		c.timeout = d
		c.timeoutSet = true
	}
}

func applyCallOptions(opts []CallOption) callConfig {
	cfg := callConfig{newline: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// SendCommand writes a command to a connection without waiting for
// output and marks the connection busy. Sending on a busy connection
// fails with a BusyError. A connection that was never established is
// connected on first use.
func (s *Shell) SendCommand(ctx context.Context, command string, opts ...CallOption) error {
	cfg := applyCallOptions(opts)
	name := s.resolveName(cfg.connection)
	c, err := s.connFor(ctx, name)
	if err != nil {
		return err
	}
	if c.busy {
		return &BusyError{Connection: name}
	}
	matches := make([]*regexp.Regexp, 0, len(cfg.matches))
	for _, p := range cfg.matches {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("shell: compile match: %w", err)
		}
		matches = append(matches, re)
	}

	command = s.prefix + command
	c.lastCommand = command
	data := command
	if cfg.newline {
		data += "\n"
	}
	if _, err := c.t.Write([]byte(data)); err != nil {
		return &ConnectionError{Connection: name, Err: err}
	}
	c.busy = true
	c.matches = matches
	return nil
}

// GetResponse waits for the pending command's output to match the
// prompt or one of the patterns registered with the send, and returns
// the text produced before the match, stripped of terminal codes and,
// if echo filtering is on, of the echoed command. A successful
// response clears the busy state. On timeout the connection stays
// busy; GetResponse may be retried, or the connection reestablished.
func (s *Shell) GetResponse(ctx context.Context, opts ...CallOption) (string, error) {
	cfg := applyCallOptions(opts)
	name := s.resolveName(cfg.connection)
	s.mu.Lock()
	c := s.conns[name]
	s.mu.Unlock()
	if c == nil || !c.t.Connected() {
		return "", &NotConnectedError{Connection: name}
	}
	timeout := s.timeout
	if cfg.timeoutSet {
		timeout = cfg.timeout
	}
	patterns := append([]*regexp.Regexp{c.prompt}, c.matches...)
	before, _, err := c.expect(ctx, patterns, timeout)
	if err != nil {
		return "", err
	}
	c.busy = false
	c.matches = nil
	return c.clean(before, s.filterEcho), nil
}

// Execute sends a command and waits for its response.
func (s *Shell) Execute(ctx context.Context, command string, opts ...CallOption) (string, error) {
	if err := s.SendCommand(ctx, command, opts...); err != nil {
		return "", err
	}
	return s.GetResponse(ctx, opts...)
}

// connFor returns the established connection registered under name,
// dialing it first if necessary.
func (s *Shell) connFor(ctx context.Context, name string) (*Conn, error) {
	s.mu.Lock()
	c := s.conns[name]
	s.mu.Unlock()
	if c != nil && c.t.Connected() {
		return c, nil
	}
	if err := s.Connect(ctx, name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	c = s.conns[name]
	s.mu.Unlock()
	if c == nil {
		return nil, &NotConnectedError{Connection: name}
	}
	return c, nil
}

// clean normalizes a raw response: newline normalization, terminal
// code removal and optional echo filtering.
func (c *Conn) clean(text string, filterEcho bool) string {
	text = strings.ReplaceAll(text, "\r", "")
	text = termCodes.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	lines := strings.Split(text, "\n")
	if filterEcho && len(lines) > 0 && c.lastCommand != "" &&
		strings.TrimSpace(lines[0]) == strings.TrimSpace(c.lastCommand) {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}
