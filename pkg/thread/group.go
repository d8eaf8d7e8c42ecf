package thread

import (
	"sort"

	"github.com/calder-lang/ssaopt/pkg/ir"
)

// redirection records the duplicate block serving one unique thread
// destination and the incoming edges assigned to it. Many incoming edges may
// thread to the same destination path; grouping them lets one duplicate serve
// them all.
type redirection struct {
	// path is the threading path shared by every edge in the group.
	path Path

	// dup is the duplicate of the threaded block created for this group,
	// with a single live successor on the threaded path.
	dup *ir.Block

	// incoming lists the edges to redirect to dup.
	incoming []*ir.Edge
}

// groupTable groups incoming edges by their destination path. Lookup is keyed
// by a cheap hash (the final destination block's index) and disambiguated by
// full path comparison.
type groupTable struct {
	buckets map[int][]*redirection
}

func newGroupTable() *groupTable {
	return &groupTable{buckets: make(map[int][]*redirection)}
}

// insert finds or creates the group for e's path and appends e to it.
func (g *groupTable) insert(e *ir.Edge, p Path) *redirection {
	key := p.FinalEdge().Dest.Index
	for _, rd := range g.buckets[key] {
		if samePath(rd.path, p) {
			rd.incoming = append(rd.incoming, e)
			return rd
		}
	}
	rd := &redirection{path: p, incoming: []*ir.Edge{e}}
	g.buckets[key] = append(g.buckets[key], rd)
	return rd
}

// each visits every group in deterministic (key, insertion) order.
func (g *groupTable) each(fn func(*redirection)) {
	keys := make([]int, 0, len(g.buckets))
	for k := range g.buckets {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		for _, rd := range g.buckets[k] {
			fn(rd)
		}
	}
}

func (g *groupTable) empty() bool { return len(g.buckets) == 0 }
