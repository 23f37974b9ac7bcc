package topology

import (
	"fmt"
	"io/ioutil"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/multi"
)

// ParseOption may be passed to ParseDOT to customize topology
// processing.
type ParseOption func(*parseConfig)

type parseConfig struct {
	autoMgmt bool
}

// WithAutoMgmtNetwork enables an out-of-band management network. The
// topology is augmented with a management switch and server, and
// devices are automatically attached to the management switch unless
// they have the no_mgmt node attribute set.
var WithAutoMgmtNetwork ParseOption = func(c *parseConfig) {
	c.autoMgmt = true
}

// ParseDOT unmarshals a DOT graph description into a topology Graph.
// Node declaration order and edge declaration order are preserved. An
// edge attribute named "identifier" turns the resulting link into an
// explicitly identified one.
func ParseDOT(dotBytes []byte, opts ...ParseOption) (*Graph, error) {
	var cfg parseConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	dg := newDotGraph()
	if err := dot.UnmarshalMulti(dotBytes, dg); err != nil {
		return nil, fmt.Errorf("ParseDOT: %w", err)
	}

	g := NewGraph()

	// The unmarshaler assigns gonum IDs in encounter order; sorting
	// by ID recovers the declaration order of the DOT file.
	ns := graph.NodesOf(dg.Nodes())
	sort.Slice(ns, func(i, j int) bool { return ns[i].ID() < ns[j].ID() })
	byGonumID := make(map[int64]string, len(ns))
	for _, n := range ns {
		n := n.(*dotNode)
		if _, err := g.AddNode(n.dotID, attributesFromDOT(n.attrs)); err != nil {
			return nil, err
		}
		byGonumID[n.ID()] = n.dotID
	}

	var lines []*dotLine
	for _, e := range graph.EdgesOf(dg.Edges()) {
		it := e.(multi.Edge).Lines
		for it.Next() {
			lines = append(lines, it.Line().(*dotLine))
		}
	}
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].ID() < lines[j].ID()
	})
	for _, l := range lines {
		from := byGonumID[l.From().ID()]
		to := byGonumID[l.To().ID()]
		fromPort, _ := l.FromPort()
		toPort, _ := l.ToPort()
		fp, err := g.AddPort(from, fromPort, nil)
		if err != nil {
			return nil, err
		}
		tp, err := g.AddPort(to, toPort, nil)
		if err != nil {
			return nil, err
		}
		attrs := attributesFromDOT(l.attrs)
		id := attrs.Attr("identifier")
		_, err = g.AddLink(id, from, fp.Label(), to, tp.Label(), attrs)
		if err != nil {
			return nil, err
		}
	}

	if cfg.autoMgmt {
		if err := setupAutoMgmtNetwork(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ParseDOTFile is like ParseDOT but reads the DOT graph description
// from the file located by path.
func ParseDOTFile(path string, opts ...ParseOption) (*Graph, error) {
	p, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ParseDOTFile: %w", err)
	}
	return ParseDOT(p, opts...)
}

func attributesFromDOT(m map[string]string) Attributes {
	attrs := make(Attributes, len(m))
	for k, v := range m {
		attrs[k] = v
	}
	return attrs
}

// dotGraph adapts a multi.UndirectedGraph so the DOT unmarshaler can
// populate it with annotated nodes and lines.
type dotGraph struct {
	*multi.UndirectedGraph
}

func newDotGraph() *dotGraph {
	return &dotGraph{UndirectedGraph: multi.NewUndirectedGraph()}
}

// NewLine returns a line capable of recording DOT ports and attributes.
func (g *dotGraph) NewLine(from, to graph.Node) graph.Line {
	e := g.UndirectedGraph.NewLine(from, to).(multi.Line)
	return &dotLine{Line: e}
}

// NewNode returns a node capable of recording its DOT ID and
// attributes.
func (g *dotGraph) NewNode() graph.Node {
	return &dotNode{Node: g.UndirectedGraph.NewNode()}
}

// SetLine adds an unmarshaled line to the graph.
func (g *dotGraph) SetLine(e graph.Line) {
	g.UndirectedGraph.SetLine(e.(*dotLine))
}

type dotPortLabels struct {
	Port, Compass string
}

// dotLine is an unweighted line annotated with the DOT ports and
// attributes of its edge statement.
type dotLine struct {
	multi.Line

	FromPortLabels dotPortLabels
	ToPortLabels   dotPortLabels
	attrs          map[string]string
}

// SetAttribute records one attribute of the edge statement.
func (e *dotLine) SetAttribute(attr encoding.Attribute) error {
	if e.attrs == nil {
		e.attrs = make(map[string]string)
	}
	e.attrs[attr.Key] = attr.Value
	return nil
}

// Attributes returns the recorded edge attributes.
func (e *dotLine) Attributes() []encoding.Attribute {
	return toAttributeSlice(e.attrs)
}

func (e *dotLine) SetFromPort(port, compass string) error {
	e.FromPortLabels.Port = port
	e.FromPortLabels.Compass = compass
	return nil
}

func (e *dotLine) SetToPort(port, compass string) error {
	e.ToPortLabels.Port = port
	e.ToPortLabels.Compass = compass
	return nil
}

func (e *dotLine) FromPort() (port, compass string) {
	return e.FromPortLabels.Port, e.FromPortLabels.Compass
}

func (e *dotLine) ToPort() (port, compass string) {
	return e.ToPortLabels.Port, e.ToPortLabels.Compass
}

// dotNode is a graph node annotated with the DOT ID and attributes of
// its node statement.
type dotNode struct {
	graph.Node
	dotID string
	attrs map[string]string
}

// SetDOTID records the name the node was declared under.
func (n *dotNode) SetDOTID(id string) { n.dotID = id }

func (n *dotNode) String() string { return n.dotID }

// SetAttribute records one attribute of the node statement.
func (n *dotNode) SetAttribute(attr encoding.Attribute) error {
	if n.attrs == nil {
		n.attrs = make(map[string]string)
	}
	n.attrs[attr.Key] = attr.Value
	return nil
}

// Attributes returns the recorded node attributes.
func (n *dotNode) Attributes() []encoding.Attribute {
	return toAttributeSlice(n.attrs)
}

func toAttributeSlice(m map[string]string) []encoding.Attribute {
	as := make([]encoding.Attribute, 0, len(m))
	for k, v := range m {
		as = append(as, encoding.Attribute{
			Key:   k,
			Value: v,
		})
	}
	return as
}
