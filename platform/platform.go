// Package platform defines the contract between the lifecycle manager
// and the backends realizing topologies, plus the registry backends
// announce themselves in.
package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"slrz.net/drivetopo/topology"
)

// A Stage names a phase of the topology build sequence, for logs and
// error reports.
type Stage string

const (
	StagePreBuild  Stage = "pre_build"
	StageAddNode   Stage = "add_node"
	StageAddBiport Stage = "add_biport"
	StageAddBilink Stage = "add_bilink"
	StagePostBuild Stage = "post_build"
)

// A Platform realizes a topology on some backend: containers, VMs,
// remote hardware or plain local processes. The lifecycle manager
// drives the hooks in a fixed order: PreBuild once, AddNode for every
// node, AddBiport for every port, AddBilink for every link, PostBuild
// once. Destroy tears the whole realization down.
//
// Hooks must not assume anything about entities the manager has not
// announced yet: all nodes are announced before any port, all ports
// before any link.
type Platform interface {
	// PreBuild announces an upcoming build of g. The timestamp
	// identifies the build attempt.
	PreBuild(ctx context.Context, timestamp time.Time, g *topology.Graph) error

	// AddNode realizes a topology node and returns the engine node
	// giving access to it.
	AddNode(ctx context.Context, node *topology.Node) (Node, error)

	// AddBiport realizes a port and returns the real (backend) name
	// the port got, which may differ from its declared label.
	AddBiport(ctx context.Context, node *topology.Node, port *topology.Port) (string, error)

	// AddBilink realizes the link connecting endpoints a and b.
	AddBilink(ctx context.Context, a, b topology.Endpoint, link *topology.Link) error

	// PostBuild runs after all entities are realized.
	PostBuild(ctx context.Context) error

	// Destroy tears down everything the platform created.
	Destroy(ctx context.Context) error

	// Unlink takes the identified link down without removing it.
	Unlink(ctx context.Context, linkID string) error

	// Relink brings a previously unlinked link back up.
	Relink(ctx context.Context, linkID string) error
}

// A Factory produces a configured Platform instance.
type Factory func() (Platform, error)

var (
	registryMu sync.Mutex
	registry   = make(map[string]Factory)
)

// Register makes a platform available under the given name. It is
// intended to be called from the init function of the package
// implementing the platform. Register panics on duplicate or empty
// registrations.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if name == "" || f == nil {
		panic("platform: Register with empty name or nil factory")
	}
	if _, dup := registry[name]; dup {
		panic("platform: Register called twice for " + name)
	}
	registry[name] = f
}

// New instantiates the platform registered under name.
func New(name string) (Platform, error) {
	registryMu.Lock()
	f := registry[name]
	registryMu.Unlock()
	if f == nil {
		return nil, fmt.Errorf(
			"platform: unknown platform %q (available: %v)",
			name, Platforms())
	}
	return f()
}

// Platforms returns the sorted names of all registered platforms.
func Platforms() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
