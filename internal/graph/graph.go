// Package graph finds connected components of nodes under a symmetric
// adjacency predicate, without materializing an adjacency matrix.
package graph

import (
	"sort"
)

// ConnectedComponents partitions nodes into groups of transitively connected
// nodes. sameCluster must be symmetric. Groups hold indices into nodes, each
// group in ascending order, groups ordered by their first index.
func ConnectedComponents[T any](nodes []T, sameCluster func(a, b T) bool) [][]int {
	return components(len(nodes), func(i int, visit func(j int)) {
		for j := range nodes {
			if j != i && sameCluster(nodes[i], nodes[j]) {
				visit(j)
			}
		}
	})
}

// ConnectedComponentsSorted is like ConnectedComponents, but only compares
// nodes whose keys differ by at most window. keys must be sorted ascending
// and parallel to nodes; sameCluster must be false for nodes outside the
// window.
func ConnectedComponentsSorted[T any](nodes []T, keys []float64, window float64,
	sameCluster func(a, b T) bool) [][]int {
	return components(len(nodes), func(i int, visit func(j int)) {
		lo := sort.SearchFloat64s(keys, keys[i]-window)
		for j := lo; j < len(keys) && keys[j] <= keys[i]+window; j++ {
			if j != i && sameCluster(nodes[i], nodes[j]) {
				visit(j)
			}
		}
	})
}

// Adjacency is an undirected graph over integer node ids
type Adjacency [][]int

// NewAdjacency creates a graph of n nodes without edges
func NewAdjacency(n int) Adjacency {
	return make(Adjacency, n)
}

// Link adds the undirected edge a-b. Duplicate edges and self loops are
// ignored.
func (g Adjacency) Link(a, b int) {
	if a == b || g.Linked(a, b) {
		return
	}
	g[a] = append(g[a], b)
	g[b] = append(g[b], a)
}

// Linked reports whether a and b are neighbours
func (g Adjacency) Linked(a, b int) bool {
	for _, n := range g[a] {
		if n == b {
			return true
		}
	}
	return false
}

// Components returns the connected components of the graph
func (g Adjacency) Components() [][]int {
	return components(len(g), func(i int, visit func(j int)) {
		for _, j := range g[i] {
			visit(j)
		}
	})
}

// components runs a breadth first traversal from every unvisited node
func components(n int, neighbours func(i int, visit func(j int))) [][]int {
	visited := make([]bool, n)
	var groups [][]int
	for start := 0; start < n; start++ {
		if visited[start] {
			continue
		}
		visited[start] = true
		group := []int{start}
		for q := 0; q < len(group); q++ {
			neighbours(group[q], func(j int) {
				if !visited[j] {
					visited[j] = true
					group = append(group, j)
				}
			})
		}
		sort.Ints(group)
		groups = append(groups, group)
	}
	return groups
}
