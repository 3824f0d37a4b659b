// Package dag is a small attributed directed graph used to render chains as
// Graphviz DOT.
package dag

import (
	"fmt"

	"github.com/fortressi/chainable/set"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

type Graph struct {
	*simple.DirectedGraph
	name  string
	ids   set.Set[string]
	attrs encoding.Attributes
	node  encoding.Attributes
	edge  encoding.Attributes
}

func New(name string) *Graph {
	return &Graph{DirectedGraph: simple.NewDirectedGraph(), name: name}
}

// DOTID returns the graph name used in DOT output.
func (g *Graph) DOTID() string {
	return g.name
}

// DOTAttributers returns the graph, default node and default edge
// attributes.
func (g *Graph) DOTAttributers() (graph, node, edge encoding.Attributer) {
	return &g.attrs, &g.node, &g.edge
}

func (g *Graph) SetAttribute(attr encoding.Attribute) error {
	return g.attrs.SetAttribute(attr)
}

func (g *Graph) SetNodeDefault(attr encoding.Attribute) error {
	return g.node.SetAttribute(attr)
}

// AddNamedNode adds a node rendered with the given DOT ID. IDs must be
// unique within the graph.
func (g *Graph) AddNamedNode(dotID string, attrs ...encoding.Attribute) (*Node, error) {
	if g.ids.Contains(dotID) {
		return nil, fmt.Errorf("node %q already exists", dotID)
	}
	n := &Node{Node: g.DirectedGraph.NewNode(), dotID: dotID}
	for _, attr := range attrs {
		if err := n.SetAttribute(attr); err != nil {
			return nil, err
		}
	}
	g.DirectedGraph.AddNode(n)
	g.ids.Insert(dotID)
	return n, nil
}

// Connect adds a directed edge between two nodes already in the graph.
func (g *Graph) Connect(from, to *Node, attrs ...encoding.Attribute) error {
	if g.Node(from.ID()) == nil || g.Node(to.ID()) == nil {
		return fmt.Errorf("node does not exist")
	}
	e := &edge{Edge: g.DirectedGraph.NewEdge(from, to)}
	for _, attr := range attrs {
		if err := e.SetAttribute(attr); err != nil {
			return err
		}
	}
	g.SetEdge(e)
	return nil
}

// Order returns the nodes in topological order, failing if the graph has a
// cycle.
func (g *Graph) Order() ([]*Node, error) {
	sorted, err := topo.SortStabilized(g.DirectedGraph, nil)
	if err != nil {
		return nil, fmt.Errorf("topological sort failed (cycle detected?): %w", err)
	}
	out := make([]*Node, 0, len(sorted))
	for _, n := range sorted {
		out = append(out, n.(*Node))
	}
	return out, nil
}

// ExportToDot exports the graph to Graphviz .dot format.
func (g *Graph) ExportToDot() (string, error) {
	data, err := dot.Marshal(g, g.name, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to export graph to DOT format: %v", err)
	}
	return string(data), nil
}

type Node struct {
	graph.Node
	dotID string
	attrs encoding.Attributes
}

// DOTID returns the node ID used in DOT output.
func (n *Node) DOTID() string {
	return n.dotID
}

func (n *Node) Attributes() []encoding.Attribute {
	return n.attrs.Attributes()
}

func (n *Node) SetAttribute(attr encoding.Attribute) error {
	return n.attrs.SetAttribute(attr)
}

type edge struct {
	graph.Edge
	attrs encoding.Attributes
}

func (e *edge) Attributes() []encoding.Attribute {
	return e.attrs.Attributes()
}

func (e *edge) SetAttribute(attr encoding.Attribute) error {
	return e.attrs.SetAttribute(attr)
}
