package platform

import (
	"context"
	"fmt"
	"sync"

	"slrz.net/drivetopo/shell"
	"slrz.net/drivetopo/topology"
)

// A Node is the handle a platform returns for a realized topology
// node. It gives access to the node's interactive shells and to the
// mapping from declared port labels to the names the backend actually
// assigned.
type Node interface {
	// Identifier returns the topology identifier of the node.
	Identifier() string

	// GetShell returns the named shell.
	GetShell(name string) (*shell.Shell, error)

	// DefaultShell returns the name of the shell commands go to when
	// none is specified.
	DefaultShell() string

	// SetDefaultShell changes the default shell.
	SetDefaultShell(name string) error

	// AvailableShells returns the shell names in registration order.
	AvailableShells() []string

	// Execute runs a command on the default shell and returns its
	// response.
	Execute(ctx context.Context, command string, opts ...shell.CallOption) (string, error)

	// Ports returns the mapping from declared port labels to real
	// backend port names.
	Ports() map[string]string

	// SetPorts installs the port mapping. Called by the lifecycle
	// manager once all ports are realized.
	SetPorts(ports map[string]string)

	// Teardown releases everything the node holds, disconnecting its
	// shells. Used during rollback and unbuild.
	Teardown(ctx context.Context) error
}

// A CommonNode implements the bookkeeping shared by engine nodes:
// shell registration and selection, port mapping and enabled state.
// Platform node types embed it and add backend specifics.
type CommonNode struct {
	identifier string
	metadata   topology.Attributes

	shells       map[string]*shell.Shell
	shellOrder   []string
	defaultShell string
	ports        map[string]string
	enabled      bool
}

// NewCommonNode returns a CommonNode for the identified topology node.
func NewCommonNode(identifier string, metadata topology.Attributes) *CommonNode {
	return &CommonNode{
		identifier: identifier,
		metadata:   metadata,
		shells:     make(map[string]*shell.Shell),
		ports:      make(map[string]string),
		enabled:    true,
	}
}

// Identifier returns the topology identifier of the node.
func (n *CommonNode) Identifier() string {
	return n.identifier
}

// Metadata returns the attributes the node was declared with.
func (n *CommonNode) Metadata() topology.Attributes {
	return n.metadata
}

// RegisterShell makes a shell available under the given name. The
// first registered shell becomes the default.
func (n *CommonNode) RegisterShell(name string, sh *shell.Shell) error {
	if name == "" || sh == nil {
		return fmt.Errorf("node %s: register shell: empty name or nil shell",
			n.identifier)
	}
	if _, dup := n.shells[name]; dup {
		return fmt.Errorf("node %s: shell %q already registered",
			n.identifier, name)
	}
	n.shells[name] = sh
	n.shellOrder = append(n.shellOrder, name)
	if n.defaultShell == "" {
		n.defaultShell = name
	}
	return nil
}

// GetShell returns the named shell.
func (n *CommonNode) GetShell(name string) (*shell.Shell, error) {
	sh := n.shells[name]
	if sh == nil {
		return nil, &topology.NotFoundError{Kind: "shell", ID: name}
	}
	return sh, nil
}

// DefaultShell returns the name of the shell commands go to when none
// is specified.
func (n *CommonNode) DefaultShell() string {
	return n.defaultShell
}

// SetDefaultShell changes the default shell. The shell must be
// registered.
func (n *CommonNode) SetDefaultShell(name string) error {
	if _, err := n.GetShell(name); err != nil {
		return err
	}
	n.defaultShell = name
	return nil
}

// AvailableShells returns the shell names in registration order.
func (n *CommonNode) AvailableShells() []string {
	return append([]string(nil), n.shellOrder...)
}

// UseShell switches the default shell to name and returns a restore
// function putting the previous default back. The restore function is
// safe to call more than once; callers defer it so the default is
// restored even on error paths.
func (n *CommonNode) UseShell(name string) (restore func(), err error) {
	if _, err := n.GetShell(name); err != nil {
		return nil, err
	}
	prev := n.defaultShell
	n.defaultShell = name
	var once sync.Once
	return func() {
		once.Do(func() { n.defaultShell = prev })
	}, nil
}

// Execute runs a command on the default shell and returns its
// response.
func (n *CommonNode) Execute(ctx context.Context, command string, opts ...shell.CallOption) (string, error) {
	if n.defaultShell == "" {
		return "", fmt.Errorf("node %s: no shells registered", n.identifier)
	}
	sh, err := n.GetShell(n.defaultShell)
	if err != nil {
		return "", err
	}
	return sh.Execute(ctx, command, opts...)
}

// Ports returns the mapping from declared port labels to real backend
// port names.
func (n *CommonNode) Ports() map[string]string {
	m := make(map[string]string, len(n.ports))
	for k, v := range n.ports {
		m[k] = v
	}
	return m
}

// SetPorts installs the port mapping.
func (n *CommonNode) SetPorts(ports map[string]string) {
	m := make(map[string]string, len(ports))
	for k, v := range ports {
		m[k] = v
	}
	n.ports = m
}

// IsEnabled reports whether the node takes part in test interaction.
func (n *CommonNode) IsEnabled() bool {
	return n.enabled
}

// Enable marks the node as participating in test interaction.
func (n *CommonNode) Enable() {
	n.enabled = true
}

// Disable marks the node as not participating in test interaction.
func (n *CommonNode) Disable() {
	n.enabled = false
}

// Teardown disconnects every registered shell, returning the first
// error encountered after attempting all of them.
func (n *CommonNode) Teardown(ctx context.Context) error {
	var firstErr error
	for _, name := range n.shellOrder {
		if err := n.shells[name].DisconnectAll(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
