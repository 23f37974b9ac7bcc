// Package topology models network topologies as graphs of nodes, ports
// and links, loaded from DOT descriptions or assembled programmatically.
package topology

import (
	"github.com/google/uuid"
)

// A Graph holds the parsed or programmatically built topology
// description: nodes, their ports, the links connecting them and a set
// of environment attributes. Nodes and links keep their declaration
// order.
type Graph struct {
	nodes     map[string]*Node
	nodeOrder []string
	links     map[string]*Link
	linkOrder []string
	env       Attributes
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		links: make(map[string]*Link),
		env:   make(Attributes),
	}
}

// AddNode declares a node. An empty identifier gets a generated
// "node-" + UUID one. Declaring an existing identifier again merges
// attrs into the existing node, last write wins, and returns it.
func (g *Graph) AddNode(identifier string, attrs Attributes) (*Node, error) {
	if identifier == "" {
		identifier = "node-" + uuid.NewString()
	} else if !isValidIdentifier(identifier) {
		return nil, validationf("invalid node identifier: %q", identifier)
	}
	if n := g.nodes[identifier]; n != nil {
		n.attrs.update(attrs)
		return n, nil
	}
	n := &Node{
		identifier: identifier,
		attrs:      make(Attributes),
		byLabel:    make(map[string]*Port),
	}
	n.attrs.update(attrs)
	g.nodes[identifier] = n
	g.nodeOrder = append(g.nodeOrder, identifier)
	return n, nil
}

// AddPort declares a port on an existing node. An empty label gets the
// next unused decimal label. Declaring an existing label again merges
// attrs into the existing port and returns it.
func (g *Graph) AddPort(nodeID, label string, attrs Attributes) (*Port, error) {
	n := g.nodes[nodeID]
	if n == nil {
		return nil, &NotFoundError{Kind: "node", ID: nodeID}
	}
	if label == "" {
		label = n.nextPortLabel()
	} else if !isValidPortLabel(label) {
		return nil, validationf("node %s: invalid port label: %q",
			nodeID, label)
	}
	if p := n.byLabel[label]; p != nil {
		p.attrs.update(attrs)
		return p, nil
	}
	return n.addPort(label, attrs), nil
}

// AddLink declares an undirected link between two existing ports. An
// empty identifier gets the computed "a:pa -- b:pb" form and is
// tracked as non-explicit. Declaring an existing identifier again
// merges attrs into the existing link and returns it.
func (g *Graph) AddLink(identifier, aNode, aPort, bNode, bPort string, attrs Attributes) (*Link, error) {
	a, err := g.endpoint(aNode, aPort)
	if err != nil {
		return nil, err
	}
	b, err := g.endpoint(bNode, bPort)
	if err != nil {
		return nil, err
	}
	explicit := identifier != ""
	if !explicit {
		identifier = linkID(aNode, aPort, bNode, bPort)
	}
	if l := g.links[identifier]; l != nil {
		l.attrs.update(attrs)
		return l, nil
	}
	l := &Link{
		identifier: identifier,
		explicit:   explicit,
		a:          a,
		b:          b,
		attrs:      make(Attributes),
	}
	l.attrs.update(attrs)
	g.links[identifier] = l
	g.linkOrder = append(g.linkOrder, identifier)
	return l, nil
}

func (g *Graph) endpoint(nodeID, portLabel string) (Endpoint, error) {
	n := g.nodes[nodeID]
	if n == nil {
		return Endpoint{}, validationf(
			"link references unknown node %q", nodeID)
	}
	p := n.byLabel[portLabel]
	if p == nil {
		return Endpoint{}, validationf(
			"link references unknown port %q on node %s",
			portLabel, nodeID)
	}
	return Endpoint{Node: n, Port: p}, nil
}

// Node returns the node with the given identifier.
func (g *Graph) Node(identifier string) (*Node, error) {
	n := g.nodes[identifier]
	if n == nil {
		return nil, &NotFoundError{Kind: "node", ID: identifier}
	}
	return n, nil
}

// Nodes returns all nodes in declaration order.
func (g *Graph) Nodes() []*Node {
	ns := make([]*Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		ns = append(ns, g.nodes[id])
	}
	return ns
}

// Link returns the link with the given identifier.
func (g *Graph) Link(identifier string) (*Link, error) {
	l := g.links[identifier]
	if l == nil {
		return nil, &NotFoundError{Kind: "link", ID: identifier}
	}
	return l, nil
}

// Links returns all links in declaration order.
func (g *Graph) Links() []*Link {
	ls := make([]*Link, 0, len(g.linkOrder))
	for _, id := range g.linkOrder {
		ls = append(ls, g.links[id])
	}
	return ls
}

// Environment returns a copy of the graph-level attributes.
func (g *Graph) Environment() Attributes {
	return g.env.clone()
}

// UpdateEnvironment merges attrs into the graph-level attributes, last
// write wins.
func (g *Graph) UpdateEnvironment(attrs Attributes) {
	g.env.update(attrs)
}

// Merge folds other into g: nodes, ports, links and environment, in
// other's declaration order. Colliding identifiers merge attributes
// with other's values winning.
func (g *Graph) Merge(other *Graph) error {
	for _, n := range other.Nodes() {
		if _, err := g.AddNode(n.identifier, n.attrs); err != nil {
			return err
		}
		for _, p := range n.ports {
			_, err := g.AddPort(n.identifier, p.label, p.attrs)
			if err != nil {
				return err
			}
		}
	}
	for _, l := range other.Links() {
		id := ""
		if l.explicit {
			id = l.identifier
		}
		_, err := g.AddLink(id,
			l.a.Node.identifier, l.a.Port.label,
			l.b.Node.identifier, l.b.Port.label, l.attrs)
		if err != nil {
			return err
		}
	}
	g.env.update(other.env)
	return nil
}

// Validate checks internal consistency: every link endpoint must refer
// to a registered port on a registered node.
func (g *Graph) Validate() error {
	for _, id := range g.linkOrder {
		l := g.links[id]
		for _, ep := range []Endpoint{l.a, l.b} {
			n := g.nodes[ep.Node.identifier]
			if n != ep.Node {
				return validationf(
					"link %s references foreign node %q",
					id, ep.Node.identifier)
			}
			if n.byLabel[ep.Port.label] != ep.Port {
				return validationf(
					"link %s references foreign port %q on node %s",
					id, ep.Port.label, n.identifier)
			}
		}
	}
	return nil
}
