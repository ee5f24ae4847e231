package decision

// Walk visits every node reachable from root once, depth first, success edge
// before failure edge. Nodes are deduplicated by identity so shared and cyclic
// subgraphs are visited once. Returning false from fn stops the walk.
func Walk(root *Node, fn func(*Node) bool) {
	visited := make(map[*Node]struct{})
	var visit func(n *Node) bool
	visit = func(n *Node) bool {
		if n == nil {
			return true
		}
		if _, seen := visited[n]; seen {
			return true
		}
		visited[n] = struct{}{}
		if !fn(n) {
			return false
		}
		return visit(n.onSuccess) && visit(n.onFailure)
	}
	visit(root)
}

// FindByName returns every distinct node instance named name.
func FindByName(root *Node, name string) []*Node {
	var found []*Node
	Walk(root, func(n *Node) bool {
		if n.name == name {
			found = append(found, n)
		}
		return true
	})
	return found
}

// FindExperimentNodes returns the experiment nodes reachable from root. Nodes
// sharing a name collapse to the first one found.
func FindExperimentNodes(root *Node) []*Node {
	var found []*Node
	names := make(map[string]struct{})
	Walk(root, func(n *Node) bool {
		if !n.IsExperiment() {
			return true
		}
		if _, dup := names[n.name]; !dup {
			names[n.name] = struct{}{}
			found = append(found, n)
		}
		return true
	})
	return found
}

// experimentsByID indexes the live graph's experiment nodes by experiment id.
func experimentsByID(root *Node) map[int64]*Node {
	byID := make(map[int64]*Node)
	for _, n := range FindExperimentNodes(root) {
		id := n.experiment.Definition().ID
		if _, ok := byID[id]; !ok {
			byID[id] = n
		}
	}
	return byID
}
