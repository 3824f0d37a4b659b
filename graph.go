package chainable

import (
	"fmt"

	"github.com/fortressi/chainable/dag"
	"gonum.org/v1/gonum/graph/encoding"
)

// Graph returns the chain as a linear graph: one node per action, labelled
// with its name, and an edge from each action to the next. Actions that
// carry a compensation are drawn as boxes, the rest as ellipses. The graph
// is checked to be acyclic before it is returned.
func (e *Engine) Graph() (*dag.Graph, error) {
	g := dag.New(e.name)
	if err := g.SetAttribute(encoding.Attribute{Key: "rankdir", Value: "LR"}); err != nil {
		return nil, err
	}

	var prev *dag.Node
	for i, a := range e.actions {
		shape := "ellipse"
		if a.Compensates() {
			shape = "box"
		}
		node, err := g.AddNamedNode(fmt.Sprintf("step%d", i),
			encoding.Attribute{Key: "label", Value: fmt.Sprintf("%q", a.Name())},
			encoding.Attribute{Key: "shape", Value: shape},
		)
		if err != nil {
			return nil, fmt.Errorf("add node for step %d: %w", i, err)
		}
		if prev != nil {
			if err := g.Connect(prev, node); err != nil {
				return nil, fmt.Errorf("connect step %d: %w", i, err)
			}
		}
		prev = node
	}

	if _, err := g.Order(); err != nil {
		return nil, err
	}
	return g, nil
}

// DOT renders the chain graph in Graphviz format.
func (e *Engine) DOT() (string, error) {
	g, err := e.Graph()
	if err != nil {
		return "", err
	}
	return g.ExportToDot()
}
