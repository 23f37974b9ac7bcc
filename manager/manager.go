// Package manager drives the lifecycle of a topology: load the
// description, build it on a platform in a fixed stage order, hand out
// engine nodes while built, and tear everything down again. Build
// failures roll back already realized nodes.
package manager

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"slrz.net/drivetopo/platform"
	"slrz.net/drivetopo/topology"
)

// State enumerates the lifecycle phases of a Manager.
type State int

const (
	Empty State = iota
	Loaded
	Building
	Built
	RollingBack
	Unbuilding
	Unbuilt
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Loaded:
		return "loaded"
	case Building:
		return "building"
	case Built:
		return "built"
	case RollingBack:
		return "rolling-back"
	case Unbuilding:
		return "unbuilding"
	case Unbuilt:
		return "unbuilt"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// A StateError reports an operation attempted in the wrong lifecycle
// state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("manager: cannot %s in state %s", e.Op, e.State)
}

// A Manager owns one topology realization on one platform. It is
// strictly sequential: Load, Build and Unbuild must not run
// concurrently. Get is safe to call from multiple goroutines while
// the topology is built.
type Manager struct {
	platform platform.Platform
	logger   *log.Logger
	retries  int

	mu      sync.RWMutex
	state   State
	graph   *topology.Graph
	enodes  map[string]platform.Node
	order   []string
	ports   map[string]map[string]string
	linkIDs map[string]bool
}

// An Option customizes a Manager.
type Option func(*Manager)

// WithLogger directs progress and rollback logging to l.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithBuildRetries makes Build restart the whole stage sequence from
// pre_build up to n extra times after a failed attempt.
func WithBuildRetries(n int) Option {
	return func(m *Manager) { m.retries = n }
}

// New returns a Manager realizing topologies on p.
func New(p platform.Platform, opts ...Option) *Manager {
	m := &Manager{
		platform: p,
		logger:   log.New(io.Discard, "", 0),
		graph:    topology.NewGraph(),
		enodes:   make(map[string]platform.Node),
		ports:    make(map[string]map[string]string),
		linkIDs:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsBuilt reports whether the topology is built.
func (m *Manager) IsBuilt() bool {
	return m.State() == Built
}

// Graph returns the loaded topology description.
func (m *Manager) Graph() *topology.Graph {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graph
}

// Load merges a topology fragment into the description. Loading is
// only possible before the first build.
func (m *Manager) Load(g *topology.Graph) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Empty && m.state != Loaded {
		return &StateError{Op: "load", State: m.state}
	}
	if err := m.graph.Merge(g); err != nil {
		return err
	}
	if err := m.graph.Validate(); err != nil {
		return err
	}
	m.state = Loaded
	return nil
}

// Build realizes the loaded topology on the platform. The stage order
// is fixed: pre_build, add_node for every node, add_biport for every
// port, add_bilink for every link, post_build. Any hook failure rolls
// back the nodes realized so far (best effort, reverse order) and
// either retries the whole sequence or reports the original error with
// the manager left in the Unbuilt state.
func (m *Manager) Build(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Loaded {
		state := m.state
		m.mu.Unlock()
		return &StateError{Op: "build", State: state}
	}
	m.state = Building
	m.mu.Unlock()

	attempts := m.retries + 1
	for attempt := 1; ; attempt++ {
		stage, err := m.buildOnce(ctx)
		if err == nil {
			m.setState(Built)
			return nil
		}
		m.logger.Printf("build failed at stage %s: %v", stage, err)
		m.rollback(ctx)
		if attempt < attempts && ctx.Err() == nil {
			m.logger.Printf("retrying build (attempt %d of %d)",
				attempt+1, attempts)
			m.setState(Building)
			continue
		}
		m.setState(Unbuilt)
		return fmt.Errorf("manager: build failed at stage %s: %w",
			stage, err)
	}
}

func (m *Manager) buildOnce(ctx context.Context) (platform.Stage, error) {
	timestamp := time.Now()
	g := m.Graph()

	if err := m.platform.PreBuild(ctx, timestamp, g); err != nil {
		return platform.StagePreBuild, err
	}
	for _, node := range g.Nodes() {
		enode, err := m.platform.AddNode(ctx, node)
		if err != nil {
			return platform.StageAddNode, err
		}
		if enode == nil {
			return platform.StageAddNode, fmt.Errorf(
				"platform returned no engine node for %q",
				node.Identifier())
		}
		m.mu.Lock()
		m.enodes[node.Identifier()] = enode
		m.order = append(m.order, node.Identifier())
		m.ports[node.Identifier()] = make(map[string]string)
		m.mu.Unlock()
	}
	for _, node := range g.Nodes() {
		for _, port := range node.Ports() {
			real, err := m.platform.AddBiport(ctx, node, port)
			if err != nil {
				return platform.StageAddBiport, err
			}
			m.mu.Lock()
			m.ports[node.Identifier()][port.Label()] = real
			m.mu.Unlock()
		}
	}
	for _, link := range g.Links() {
		a, b := link.Endpoints()
		if err := m.platform.AddBilink(ctx, a, b, link); err != nil {
			return platform.StageAddBilink, err
		}
		if link.ExplicitID() {
			m.mu.Lock()
			m.linkIDs[link.Identifier()] = true
			m.mu.Unlock()
		}
	}

	// Hand every engine node its label-to-real port mapping.
	m.mu.Lock()
	for id, enode := range m.enodes {
		enode.SetPorts(m.ports[id])
	}
	m.mu.Unlock()

	if err := m.platform.PostBuild(ctx); err != nil {
		return platform.StagePostBuild, err
	}
	return "", nil
}

// rollback tears down every engine node realized so far, in reverse
// registration order. Teardown failures are logged, never propagated;
// the build error is what the caller gets to see.
func (m *Manager) rollback(ctx context.Context) {
	m.setState(RollingBack)
	m.mu.Lock()
	order := m.order
	enodes := m.enodes
	m.order = nil
	m.enodes = make(map[string]platform.Node)
	m.ports = make(map[string]map[string]string)
	m.linkIDs = make(map[string]bool)
	m.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		if err := enodes[id].Teardown(ctx); err != nil {
			m.logger.Printf("rollback: teardown %s: %v", id, err)
		}
	}
}

// Unbuild tears the built topology down: the platform's destroy hook
// first, then a best-effort teardown of every engine node. Unbuild in
// the Unbuilt state is a no-op.
func (m *Manager) Unbuild(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case Unbuilt:
		m.mu.Unlock()
		return nil
	case Built:
	default:
		state := m.state
		m.mu.Unlock()
		return &StateError{Op: "unbuild", State: state}
	}
	m.state = Unbuilding
	order := m.order
	enodes := m.enodes
	m.order = nil
	m.enodes = make(map[string]platform.Node)
	m.ports = make(map[string]map[string]string)
	m.linkIDs = make(map[string]bool)
	m.mu.Unlock()

	err := m.platform.Destroy(ctx)
	if err != nil {
		m.logger.Printf("unbuild: destroy: %v", err)
	}
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		if terr := enodes[id].Teardown(ctx); terr != nil {
			m.logger.Printf("unbuild: teardown %s: %v", id, terr)
		}
	}
	m.setState(Unbuilt)
	return err
}

// Get returns the engine node registered under the given topology
// identifier. It is only available while the topology is built.
func (m *Manager) Get(identifier string) (platform.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != Built {
		return nil, &StateError{Op: "get", State: m.state}
	}
	enode, ok := m.enodes[identifier]
	if !ok {
		return nil, &topology.NotFoundError{Kind: "node", ID: identifier}
	}
	return enode, nil
}

// Nodes returns the identifiers of all registered engine nodes in
// build order.
func (m *Manager) Nodes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Unlink takes a link down. Only links declared with an explicit
// identifier can be addressed.
func (m *Manager) Unlink(ctx context.Context, linkID string) error {
	if err := m.checkLinkOp("unlink", linkID); err != nil {
		return err
	}
	return m.platform.Unlink(ctx, linkID)
}

// Relink brings a previously unlinked link back up.
func (m *Manager) Relink(ctx context.Context, linkID string) error {
	if err := m.checkLinkOp("relink", linkID); err != nil {
		return err
	}
	return m.platform.Relink(ctx, linkID)
}

func (m *Manager) checkLinkOp(op, linkID string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != Built {
		return &StateError{Op: op, State: m.state}
	}
	if !m.linkIDs[linkID] {
		return &topology.NotFoundError{Kind: "link", ID: linkID}
	}
	return nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
