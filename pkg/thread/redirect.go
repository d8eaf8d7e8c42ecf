package thread

import (
	"github.com/calder-lang/ssaopt/pkg/ir"
)

// redirectEdges retargets every incoming edge of rd's group to the group's
// duplicate block, accumulating the rerouted profile onto the duplicate and
// its outgoing edge.
func (t *Threader) redirectEdges(rd *redirection, local *localInfo) {
	for _, e := range rd.incoming {
		p := t.annot[e]

		t.stats.ThreadedEdges++

		t.log.Debug("threaded jump",
			"src", e.Src.Index, "dest", e.Dest.Index, "to", rd.dup.Index)

		rd.dup.Count = ir.SatAdd(rd.dup.Count, e.Count)

		// Excessive threading can pile enough flow onto one duplicate to
		// overflow the frequency scale; stop accumulating past the cap.
		if rd.dup.Frequency < ir.FreqMax*2 {
			rd.dup.Frequency += ir.EdgeFrequency(e)
		}

		// For a joiner group the duplicate's outgoing edges got their
		// counts when they were redirected in fixDuplicateBlockEdges.
		if p[1].Kind != JoinerCopy {
			out := rd.dup.Succs[0]
			out.Count = ir.SatAdd(out.Count, e.Count)
		}

		t.fn.RedirectEdge(e, rd.dup)
		if t.opts.FlushSSA != nil {
			t.opts.FlushSSA(e)
		}

		t.release(e)
	}

	if len(rd.incoming) > 0 {
		local.threaded = true
	}
}

// threadSingleEdge threads e through its destination to the staged target and
// returns the copy of the destination created for it, or the destination
// itself when e is its only predecessor and it can be rewritten in place.
func (t *Threader) threadSingleEdge(e *ir.Edge) *ir.Block {
	bb := e.Dest
	p := t.annot[e]
	eto := p[1].E
	t.release(e)

	t.stats.ThreadedEdges++

	if bb.SinglePred() {
		// No other flow reaches bb, so no copy is needed: drop the
		// control statement and every successor except the target, and
		// turn the surviving edge into a plain fallthrough.
		t.removeCtrlStmtAndUselessEdges(bb, eto.Dest)
		eto.Flags &^= ir.EdgeTrue | ir.EdgeFalse | ir.EdgeAbnormal
		eto.Flags |= ir.EdgeFallthru
		return bb
	}

	if e.Dest == eto.Src {
		ir.UpdateProfileForThreading(bb, ir.EdgeFrequency(e), e.Count, eto)
	}

	rd := &redirection{path: Path{
		{E: e, Kind: StartThread},
		{E: eto, Kind: NormalCopy},
	}}
	t.createBlockForThreading(bb, rd)
	t.removeCtrlStmtAndUselessEdges(rd.dup, nil)
	t.createEdgeAndUpdateDestinationPhis(rd, rd.dup)

	t.log.Debug("threaded jump",
		"src", e.Src.Index, "dest", e.Dest.Index, "to", rd.dup.Index)

	rd.dup.Count = e.Count
	rd.dup.Frequency = ir.EdgeFrequency(e)
	rd.dup.Succs[0].Count = e.Count
	t.fn.RedirectEdge(e, rd.dup)
	if t.opts.FlushSSA != nil {
		t.opts.FlushSSA(e)
	}

	return rd.dup
}
