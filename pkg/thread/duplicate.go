package thread

import (
	"github.com/calder-lang/ssaopt/pkg/ir"
)

// removeCtrlStmtAndUselessEdges strips b's trailing control statement, if any,
// and removes every outgoing edge not reaching keep (all of them when keep is
// nil). A duplicate stamped from the template may have no statements at all.
func (t *Threader) removeCtrlStmtAndUselessEdges(b *ir.Block, keep *ir.Block) {
	b.RemoveCtrlStmt()
	succs := append([]*ir.Edge(nil), b.Succs...)
	for _, e := range succs {
		if e.Dest != keep {
			t.fn.RemoveEdge(e)
		}
	}
}

// createBlockForThreading duplicates b and records the copy in rd. The copy
// starts with a zeroed profile; it is unreachable until an incoming edge is
// redirected to it.
func (t *Threader) createBlockForThreading(b *ir.Block, rd *redirection) {
	rd.dup = t.fn.DuplicateBlock(b)
}

// updateDestinationPhis initializes, for every direct successor of orig, the
// phi argument on the edge from dup so it equals the argument on the matching
// edge from orig. dup was copied from orig edges included, so each successor
// has exactly one such edge.
func (t *Threader) updateDestinationPhis(orig, dup *ir.Block) {
	for _, e := range orig.Succs {
		e2 := t.fn.FindEdge(dup, e.Dest)
		t.fn.CopyPhiArgs(e.Dest, e, e2)
	}
}

// createEdgeAndUpdateDestinationPhis wires bb to the group's final
// destination with a single unconditional edge and fills in the phi arguments
// there from the original final edge. If the original final edge itself
// carries a staged path, the new edge inherits a copy so the follow-on thread
// is not lost.
func (t *Threader) createEdgeAndUpdateDestinationPhis(rd *redirection, bb *ir.Block) {
	final := rd.path.FinalEdge()
	e := t.fn.MakeEdge(bb, final.Dest, ir.EdgeFallthru)
	e.Probability = ir.ProbAlways
	e.Count = bb.Count

	if p := t.annot[final]; p != nil {
		t.annot[e] = clonePath(p)
	}

	t.fn.CopyPhiArgs(e.Dest, final, e)
}

// fixDuplicateBlockEdges gives rd's duplicate its outgoing edge. For a joiner
// group the control statement survives and one of the copied outgoing edges
// is redirected to the final destination; otherwise the control statement and
// all copied edges are removed and a single unconditional edge is created.
// Either way the phis at the target pick up arguments for the new edge.
func (t *Threader) fixDuplicateBlockEdges(rd *redirection, local *localInfo) {
	if rd.path[1].Kind == JoinerCopy {
		t.updateDestinationPhis(local.bb, rd.dup)

		final := rd.path.FinalEdge()
		victim := t.fn.FindEdge(rd.dup, rd.path[1].E.Dest)
		e2 := t.fn.RedirectEdge(victim, final.Dest)
		e2.Count = final.Count

		// If the redirect reused an existing parallel edge, the phis at
		// the target already have the right arguments for it.
		if e2 == victim {
			t.fn.CopyPhiArgs(e2.Dest, final, e2)
		}
	} else {
		t.removeCtrlStmtAndUselessEdges(rd.dup, nil)
		t.createEdgeAndUpdateDestinationPhis(rd, rd.dup)
	}
}

// createDuplicates creates the duplicate block for one group. The first group
// processed gets a fresh copy of the threaded block which doubles as the
// template; its outgoing edge is wired up only after all groups have their
// duplicates, so stamping later duplicates from the template never creates
// edges that would immediately be deleted.
func (t *Threader) createDuplicates(rd *redirection, local *localInfo) {
	if local.template == nil {
		t.createBlockForThreading(local.bb, rd)
		local.template = rd.dup
		return
	}
	t.createBlockForThreading(local.template, rd)
	t.fixDuplicateBlockEdges(rd, local)
}

// fixupTemplate wires up the outgoing edge of the group whose duplicate is
// the template block, deferred from createDuplicates.
func (t *Threader) fixupTemplate(rd *redirection, local *localInfo) {
	if rd.dup != nil && rd.dup == local.template {
		t.fixDuplicateBlockEdges(rd, local)
	}
}
