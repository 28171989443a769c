// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler implements the build DAG and the execution engine
// (C8) that walks it: Graph assembles the transform dependency graph
// reachable from a target address, and Engine drives a batch-limited
// fetch pass followed by a dispatch/completion loop that runs each
// node's transform once every dependency it needs has reached Success.
package scheduler

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"

	"github.com/edo-build/edo/lib/addr"
	"github.com/edo-build/edo/lib/transform"
)

// Graph is the dependency graph of every transform reachable from one
// or more target addresses. Nodes are addressed by a dense integer
// index assigned in insertion order, which is what lets FindLeaves
// track visited/result sets with roaring bitmaps instead of Go maps.
type Graph struct {
	nodes    []*Node
	index    map[string]int
	children map[int][]int
	parents  map[int][]int
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		index:    make(map[string]int),
		children: make(map[int][]int),
		parents:  make(map[int][]int),
	}
}

// Add inserts a into the graph, recursively inserting every transform
// it (transitively) depends on, and returns a's node index. Calling
// Add more than once for the same address is a no-op that returns the
// index assigned the first time.
func (g *Graph) Add(h *transform.Handle, a addr.Addr) (int, error) {
	if idx, ok := g.index[a.String()]; ok {
		return idx, nil
	}
	t, ok := h.Transforms.Get(a)
	if !ok {
		return 0, fmt.Errorf("scheduler: %s is not registered", a)
	}

	idx := len(g.nodes)
	g.nodes = append(g.nodes, newNode(a))
	g.index[a.String()] = idx

	for _, dep := range t.Depends() {
		depIdx, err := g.Add(h, dep)
		if err != nil {
			return 0, err
		}
		g.children[depIdx] = append(g.children[depIdx], idx)
		g.parents[idx] = append(g.parents[idx], depIdx)
	}
	return idx, nil
}

// DetectCycles reports an error naming the first dependency cycle
// found in the graph. Run once after every target has been Add-ed.
func (g *Graph) DetectCycles() error {
	const (
		white = iota
		gray
		black
	)
	color := make([]int8, len(g.nodes))

	var visit func(i int) error
	visit = func(i int) error {
		color[i] = gray
		for _, c := range g.children[i] {
			switch color[c] {
			case white:
				if err := visit(c); err != nil {
					return err
				}
			case gray:
				return fmt.Errorf("scheduler: dependency cycle detected at %s", g.nodes[c].Addr)
			}
		}
		color[i] = black
		return nil
	}

	for i := range g.nodes {
		if color[i] == white {
			if err := visit(i); err != nil {
				return err
			}
		}
	}
	return nil
}

// IndexOf returns a's node index, if present.
func (g *Graph) IndexOf(a addr.Addr) (int, bool) {
	idx, ok := g.index[a.String()]
	return idx, ok
}

// Node returns the node at index i.
func (g *Graph) Node(i int) *Node { return g.nodes[i] }

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// Children returns the node indices that depend directly on i.
func (g *Graph) Children(i int) []int { return g.children[i] }

// Parents returns the node indices i depends on directly.
func (g *Graph) Parents(i int) []int { return g.parents[i] }

// FindLeaves returns the set of nodes reachable from start that have
// no dependencies of their own — the transforms that can run first.
// Shared subgraphs (a dependency reachable through more than one
// path, as in a diamond) are visited once: the visited set, not just
// the result set, is a bitmap, which is the one place this graph
// departs from the straightforward recursive walk it is otherwise
// grounded on.
func (g *Graph) FindLeaves(start int) *roaring.Bitmap {
	leaves := roaring.New()
	visited := roaring.New()
	g.findLeaves(start, leaves, visited)
	return leaves
}

func (g *Graph) findLeaves(i int, leaves, visited *roaring.Bitmap) {
	if !visited.CheckedAdd(uint32(i)) {
		return
	}
	deps := g.parents[i]
	if len(deps) == 0 {
		leaves.Add(uint32(i))
		return
	}
	for _, dep := range deps {
		g.findLeaves(dep, leaves, visited)
	}
}

// bitmapToSlice drains b into a plain slice of node indices.
func bitmapToSlice(b *roaring.Bitmap) []int {
	out := make([]int, 0, b.GetCardinality())
	it := b.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}
