// Package thread rewrites a function's control flow graph so that incoming
// edges whose branch outcome is statically known bypass the block that tests
// it, duplicating the block's side effects and keeping phi-functions, profile
// counters, and loop structure consistent. Opportunities are discovered
// elsewhere and registered as jump-thread paths; Threader.ApplyAll applies
// them across the whole graph in one batch.
package thread

import (
	"github.com/calder-lang/ssaopt/pkg/ir"
)

// CopyKind says how the source block of a path step is materialized on the
// threaded path.
type CopyKind int

const (
	// StartThread marks step 0: the incoming edge being threaded.
	StartThread CopyKind = iota
	// NormalCopy duplicates the step's source block with its control
	// terminator stripped to a single fallthrough.
	NormalCopy
	// JoinerCopy duplicates the step's source block with its control
	// terminator kept, because the block has a second live successor.
	JoinerCopy
	// NoCopy reuses the step's source block unchanged.
	NoCopy
)

func (k CopyKind) String() string {
	switch k {
	case StartThread:
		return "start"
	case NormalCopy:
		return "normal"
	case JoinerCopy:
		return "joiner"
	case NoCopy:
		return "nocopy"
	default:
		return "unknown"
	}
}

// Step is one hop of a jump-thread path.
type Step struct {
	E    *ir.Edge
	Kind CopyKind
}

// Path is an ordered, non-empty sequence of steps. Step 0 identifies the
// incoming edge being threaded; the final step's edge is the real
// destination. A path is uniquely owned: by the registry while pending, then
// by the annotation slot of its step-0 edge, until released.
type Path []*Step

// FinalEdge returns the last step's edge.
func (p Path) FinalEdge() *ir.Edge { return p[len(p)-1].E }

// clonePath deep-copies a path, steps included.
func clonePath(p Path) Path {
	c := make(Path, len(p))
	for i, s := range p {
		c[i] = &Step{E: s.E, Kind: s.Kind}
	}
	return c
}

// samePath reports whether two paths describe the same threading, comparing
// step kinds and edges from index 1 onward.
func samePath(a, b Path) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 1; i < len(a); i++ {
		if a[i].Kind != b[i].Kind || a[i].E != b[i].E {
			return false
		}
	}
	return true
}
