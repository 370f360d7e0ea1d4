package topology

// Clone returns a deep copy of the graph: states, centroids, transitions
// and adjacency. IDs are preserved and no pointer is shared with g.
//
// Complexity: O(V*dim + E)
func (g *Graph) Clone() *Graph {
	c := &Graph{
		dim:    g.dim,
		states: make([]*State, len(g.states)),
		edges:  make([]*Transition, len(g.edges)),
		out:    make([][]*Transition, len(g.states)),
		in:     make([][]*Transition, len(g.states)),
		index:  make(map[edgeKey]*Transition, len(g.edges)),
	}
	for i, s := range g.states {
		ns := *s
		ns.Centroid = append([]float64(nil), s.Centroid...)
		c.states[i] = &ns
	}
	// Rebuild adjacency in the original edge order so iteration over the
	// clone visits edges exactly as the source does.
	for i, e := range g.edges {
		ne := *e
		c.edges[i] = &ne
		c.out[ne.From] = append(c.out[ne.From], &ne)
		c.in[ne.To] = append(c.in[ne.To], &ne)
		c.index[edgeKey{ne.From, ne.To}] = &ne
	}
	return c
}

// CopyFrom replaces the contents of g with a deep copy of src.
func (g *Graph) CopyFrom(src *Graph) {
	*g = *src.Clone()
}
