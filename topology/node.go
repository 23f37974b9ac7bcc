package topology

import "strconv"

// A Node corresponds to an element declared in the topology, such as a
// switch or a host. Nodes are created through Graph.AddNode and own an
// ordered set of ports.
type Node struct {
	identifier string
	attrs      Attributes
	ports      []*Port
	byLabel    map[string]*Port
}

// Identifier returns the unique identifier of the node.
func (n *Node) Identifier() string {
	return n.identifier
}

// Attr returns the node attribute associated with key, if any.
func (n *Node) Attr(key string) string {
	return n.attrs.Attr(key)
}

// Attributes returns a copy of the node's attributes.
func (n *Node) Attributes() Attributes {
	return n.attrs.clone()
}

// Ports returns the node's ports in declaration order.
func (n *Node) Ports() []*Port {
	return append([]*Port(nil), n.ports...)
}

// Port returns the port with the given label, if any.
func (n *Node) Port(label string) (*Port, bool) {
	p, ok := n.byLabel[label]
	return p, ok
}

func (n *Node) addPort(label string, attrs Attributes) *Port {
	p := &Port{
		label: label,
		node:  n,
		attrs: make(Attributes),
	}
	p.attrs.update(attrs)
	n.ports = append(n.ports, p)
	n.byLabel[label] = p
	return p
}

// nextPortLabel returns the smallest decimal label not yet taken,
// starting at "1".
func (n *Node) nextPortLabel() string {
	for i := 1; ; i++ {
		label := strconv.Itoa(i)
		if _, taken := n.byLabel[label]; !taken {
			return label
		}
	}
}

// A Port is a named attachment point on a node. Its identifier is
// derived from the owning node: "node:label".
type Port struct {
	label string
	node  *Node
	attrs Attributes
}

// Label returns the label of the port, relative to its node.
func (p *Port) Label() string {
	return p.label
}

// Node returns the node owning the port.
func (p *Port) Node() *Node {
	return p.node
}

// Identifier returns the port identifier, "node:label".
func (p *Port) Identifier() string {
	return p.node.identifier + ":" + p.label
}

// Attr returns the port attribute associated with key, if any.
func (p *Port) Attr(key string) string {
	return p.attrs.Attr(key)
}

// Attributes returns a copy of the port's attributes.
func (p *Port) Attributes() Attributes {
	return p.attrs.clone()
}
