package decision

import (
	"fmt"
	"strconv"

	"github.com/awalterschulze/gographviz"
)

// RenderDOT renders the graph reachable from root in Graphviz DOT. Each node
// instance gets its own vertex, so shared nodes appear once with several
// incoming edges.
func RenderDOT(root *Node) (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName("decision"); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}

	ids := make(map[*Node]string)
	var order []*Node
	Walk(root, func(n *Node) bool {
		ids[n] = "n" + strconv.Itoa(len(order))
		order = append(order, n)
		return true
	})

	for _, n := range order {
		attrs := map[string]string{"label": strconv.Quote(n.name)}
		if n.IsExperiment() {
			attrs["shape"] = "diamond"
		} else {
			attrs["shape"] = "box"
		}
		if err := g.AddNode("decision", ids[n], attrs); err != nil {
			return "", fmt.Errorf("failed to add node %q: %w", n.name, err)
		}
	}

	for _, n := range order {
		for _, edge := range []struct {
			to    *Node
			label string
			color string
		}{
			{n.onSuccess, "success", "darkgreen"},
			{n.onFailure, "failure", "red"},
		} {
			if edge.to == nil {
				continue
			}
			attrs := map[string]string{"label": strconv.Quote(edge.label), "color": edge.color}
			if err := g.AddEdge(ids[n], ids[edge.to], true, attrs); err != nil {
				return "", fmt.Errorf("failed to add edge from %q: %w", n.name, err)
			}
		}
	}

	return g.String(), nil
}
