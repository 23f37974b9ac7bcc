// Package debug provides a platform that realizes every hook locally.
// Nodes are backed by a bash process spawned on demand, ports keep
// their declared labels as real names, and unlink/relink calls are
// recorded. It serves as the reference platform implementation and is
// what the CLI uses when no backend is configured.
package debug

import (
	"context"
	"io"
	"log"
	"time"

	"slrz.net/drivetopo/platform"
	"slrz.net/drivetopo/shell"
	"slrz.net/drivetopo/topology"
)

func init() {
	platform.Register("debug", func() (platform.Platform, error) {
		return New(), nil
	})
}

// A Platform logs every hook invocation and backs its nodes with
// local bash processes.
type Platform struct {
	logger   *log.Logger
	nodes    map[string]*Node
	unlinked map[string]bool
}

// An Option customizes a debug Platform.
type Option func(*Platform)

// WithLogger directs hook logging to l instead of discarding it.
func WithLogger(l *log.Logger) Option {
	return func(p *Platform) { p.logger = l }
}

// New returns a debug platform.
func New(opts ...Option) *Platform {
	p := &Platform{
		logger:   log.New(io.Discard, "", 0),
		nodes:    make(map[string]*Node),
		unlinked: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PreBuild logs the upcoming build.
func (p *Platform) PreBuild(ctx context.Context, timestamp time.Time, g *topology.Graph) error {
	p.logger.Printf("[hook] pre_build (%s, %d nodes, %d links)",
		timestamp.Format(time.RFC3339), len(g.Nodes()), len(g.Links()))
	return nil
}

// AddNode returns an engine node whose "sh" shell runs a local bash.
func (p *Platform) AddNode(ctx context.Context, node *topology.Node) (platform.Node, error) {
	p.logger.Printf("[hook] add_node(%s)", node.Identifier())
	n, err := newNode(node)
	if err != nil {
		return nil, err
	}
	p.nodes[node.Identifier()] = n
	return n, nil
}

// AddBiport reports the port's declared label as its real name.
func (p *Platform) AddBiport(ctx context.Context, node *topology.Node, port *topology.Port) (string, error) {
	p.logger.Printf("[hook] add_biport(%s, %s)",
		node.Identifier(), port.Identifier())
	return port.Label(), nil
}

// AddBilink logs the link.
func (p *Platform) AddBilink(ctx context.Context, a, b topology.Endpoint, link *topology.Link) error {
	p.logger.Printf("[hook] add_bilink(%s)", link)
	return nil
}

// PostBuild logs the end of the build.
func (p *Platform) PostBuild(ctx context.Context) error {
	p.logger.Printf("[hook] post_build()")
	return nil
}

// Destroy logs the teardown and forgets all nodes.
func (p *Platform) Destroy(ctx context.Context) error {
	p.logger.Printf("[hook] destroy()")
	p.nodes = make(map[string]*Node)
	p.unlinked = make(map[string]bool)
	return nil
}

// Unlink records the link as down.
func (p *Platform) Unlink(ctx context.Context, linkID string) error {
	p.logger.Printf("[call] unlink(%s)", linkID)
	p.unlinked[linkID] = true
	return nil
}

// Relink records the link as back up.
func (p *Platform) Relink(ctx context.Context, linkID string) error {
	p.logger.Printf("[call] relink(%s)", linkID)
	delete(p.unlinked, linkID)
	return nil
}

// Unlinked reports whether the identified link is currently down.
func (p *Platform) Unlinked(linkID string) bool {
	return p.unlinked[linkID]
}

// A Node is a debug engine node. Its single shell, "sh", drives a
// bash process spawned on first use.
type Node struct {
	*platform.CommonNode
}

func newNode(tn *topology.Node) (*Node, error) {
	n := &Node{
		CommonNode: platform.NewCommonNode(tn.Identifier(), tn.Attributes()),
	}
	sh, err := shell.NewBashShell(
		func(ctx context.Context) (shell.Transport, error) {
			// -i forces prompting even though stdin is a
			// pipe, not a pty
			return shell.NewExecTransport(
				"bash", "--norc", "--noprofile", "-i"), nil
		},
		// bash --norc prompts with "bash-N.M$ ", not user@host.
		shell.WithInitialPrompt(`[#$] `),
	)
	if err != nil {
		return nil, err
	}
	if err := n.RegisterShell("sh", sh); err != nil {
		return nil, err
	}
	return n, nil
}
