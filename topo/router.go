package topo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// Router computes and caches shortest-path node-name sequences over a
// TopoDesc's link graph, weighting every edge by one hop the same way
// routes.go's buildconnGraph does for mrnes device graphs (a shortest
// path minimizes hop count, approximating local-routing behaviour).
type Router struct {
	idOf    map[string]int64
	nameOf  map[int64]string
	graph   *simple.WeightedUndirectedGraph
	spTrees map[string]path.Shortest
}

// NewRouter builds the routing graph once from desc. Multiple routes
// can then be computed cheaply against the same Router.
func NewRouter(desc *TopoDesc) *Router {
	r := &Router{
		idOf:    make(map[string]int64, len(desc.Nodes)),
		nameOf:  make(map[int64]string, len(desc.Nodes)),
		graph:   simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
		spTrees: make(map[string]path.Shortest),
	}
	for i, n := range desc.Nodes {
		id := int64(i)
		r.idOf[n.Name] = id
		r.nameOf[id] = n.Name
		r.graph.AddNode(simple.Node(id))
	}
	for _, l := range desc.Links {
		fromID, toID := r.idOf[l.From], r.idOf[l.To]
		r.graph.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(fromID), T: simple.Node(toID), W: 1.0})
	}
	return r
}

func (r *Router) tree(from string) (path.Shortest, error) {
	if t, ok := r.spTrees[from]; ok {
		return t, nil
	}
	fromID, ok := r.idOf[from]
	if !ok {
		return path.Shortest{}, fmt.Errorf("topo: unknown node %q", from)
	}
	t := path.DijkstraFrom(simple.Node(fromID), r.graph)
	r.spTrees[from] = t
	return t, nil
}

// ShortestPath returns the sequence of node names (inclusive of src and
// dst) on the minimum-hop path between them.
func (r *Router) ShortestPath(src, dst string) ([]string, error) {
	if _, ok := r.idOf[dst]; !ok {
		return nil, fmt.Errorf("topo: unknown node %q", dst)
	}
	t, err := r.tree(src)
	if err != nil {
		return nil, err
	}
	nodes, _ := t.To(r.idOf[dst])
	if len(nodes) == 0 {
		return nil, fmt.Errorf("topo: no path from %q to %q", src, dst)
	}
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = r.nameOf[n.ID()]
	}
	return names, nil
}

var _ graph.Graph = (*simple.WeightedUndirectedGraph)(nil)
