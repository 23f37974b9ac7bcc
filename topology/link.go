package topology

import "fmt"

// An Endpoint names one side of a link.
type Endpoint struct {
	Node *Node
	Port *Port
}

// A Link is an undirected connection between two ports. Links without
// an explicit identifier get one computed from their endpoints.
type Link struct {
	identifier string
	explicit   bool
	a, b       Endpoint
	attrs      Attributes
}

// Identifier returns the link identifier. For links declared without
// one, this is the computed "a:pa -- b:pb" form.
func (l *Link) Identifier() string {
	return l.identifier
}

// ExplicitID reports whether the link was declared with its own
// identifier rather than a computed one.
func (l *Link) ExplicitID() bool {
	return l.explicit
}

// Endpoints returns both sides of the link in declaration order.
func (l *Link) Endpoints() (a, b Endpoint) {
	return l.a, l.b
}

// Attr returns the link attribute associated with key, if any.
func (l *Link) Attr(key string) string {
	return l.attrs.Attr(key)
}

// Attributes returns a copy of the link's attributes.
func (l *Link) Attributes() Attributes {
	return l.attrs.clone()
}

func (l *Link) String() string {
	return linkID(l.a.Node.identifier, l.a.Port.label,
		l.b.Node.identifier, l.b.Port.label)
}

func linkID(aNode, aPort, bNode, bPort string) string {
	return fmt.Sprintf("%s:%s -- %s:%s", aNode, aPort, bNode, bPort)
}
