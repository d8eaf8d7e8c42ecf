package thread

import (
	"github.com/calder-lang/ssaopt/pkg/ir"
)

// domStatus is the dominance relationship between a candidate block and the
// latch of a loop.
type domStatus int

const (
	// domNondominating: the block does not dominate the loop's latch.
	domNondominating domStatus = iota
	// domLoopBroken: no path from the header reaches the latch anymore.
	domLoopBroken
	// domDominating: the block dominates the loop's latch.
	domDominating
)

// dominationStatus decides whether bb, a successor of loop's header,
// dominates the loop's latch. Rather than consulting a full dominator tree,
// walk backward from the latch stopping at bb and the header: if the header
// is reachable that way, some path avoids bb; if neither the header nor bb is
// found, the loop itself is broken.
func (t *Threader) dominationStatus(loop *ir.Loop, bb *ir.Block) domStatus {
	ok := false
	for _, e := range bb.Preds {
		if e.Src == loop.Header {
			ok = true
			break
		}
	}
	if !ok {
		return domNondominating
	}

	if bb == loop.Latch {
		return domDominating
	}

	reachable := false
	blocks := ir.EnumerateFrom(loop.Latch, true, func(b *ir.Block) bool {
		return b != bb && b != loop.Header
	})
	for _, b := range blocks {
		for _, e := range b.Preds {
			if e.Src == loop.Header {
				return domNondominating
			}
			if e.Src == bb {
				reachable = true
			}
		}
	}

	if reachable {
		return domDominating
	}
	return domLoopBroken
}

// defSplitHeaderContinue restricts a forward walk from the old header to the
// blocks that form the new preheader chain: blocks in the new header's loop
// or deeper, excluding the new header itself.
func defSplitHeaderContinue(newHeader *ir.Block) func(*ir.Block) bool {
	return func(b *ir.Block) bool {
		if b == newHeader || b.Loop.Depth() < newHeader.Loop.Depth() {
			return false
		}
		for l := b.Loop; l != nil; l = l.Parent {
			if l == newHeader.Loop {
				return true
			}
		}
		return false
	}
}

// threadThroughLoopHeader threads the staged requests through loop's header.
// Ordinary threading has already taken every request leading out of the loop,
// so what remains leads inside; applied naively that would create loops with
// multiple entries or multiple latch edges, which no later optimizer can
// reason about. Only two shapes are handled, both of which keep the loop
// recognizable:
//
//  1. the latch edge threads to a block dominating the latch; the old header
//     is hoisted out of the loop and the target becomes the new header;
//
//  2. every entry edge threads to one common block dominating the latch; the
//     loop is rotated so that block becomes the header and a fresh latch is
//     split off.
//
// When mayPeelLoopHeaders is false, entry edges are not threaded into the
// loop unless the header is a bare redirection block. Anything that fits
// neither shape cancels all requests on the header. Reports whether the graph
// changed.
func (t *Threader) threadThroughLoopHeader(loop *ir.Loop, mayPeelLoopHeaders bool) bool {
	header := loop.Header

	fail := func() bool {
		for _, e := range header.Preds {
			if t.annot[e] != nil {
				t.release(e)
			}
		}
		return false
	}

	// Threading through a single-successor header cannot improve anything.
	if header.SingleSucc() || loop.Latch == nil {
		return fail()
	}
	latch := t.fn.LatchEdge(loop)
	if latch == nil {
		return fail()
	}

	var tgtEdge *ir.Edge
	var tgtBB *ir.Block
	latchPath := t.annot[latch]
	if latchPath != nil {
		if latchPath[1].Kind == JoinerCopy {
			return fail()
		}
		tgtEdge = latchPath[1].E
		tgtBB = tgtEdge.Dest
	} else if !mayPeelLoopHeaders && !ir.ForwarderBlock(header) {
		return fail()
	} else {
		for _, e := range header.Preds {
			p := t.annot[e]
			if p == nil {
				if e == latch {
					continue
				}
				// An unthreaded entry edge next to threaded ones
				// would give the rotated loop two entries.
				return fail()
			}
			if p[1].Kind == JoinerCopy {
				return fail()
			}
			tgtEdge = p[1].E
			if tgtBB == nil {
				tgtBB = tgtEdge.Dest
			} else if tgtBB != tgtEdge.Dest {
				// Two distinct targets would likewise create a
				// multiple-entry loop.
				return fail()
			}
		}

		if tgtBB == nil {
			// There are no threading requests.
			return false
		}

		// Redirecting to an empty latch is useless.
		if tgtBB == loop.Latch && ir.EmptyBlock(loop.Latch) {
			return fail()
		}
	}

	// The target must dominate the latch, or threading would carve a
	// subloop out of this loop.
	switch t.dominationStatus(loop, tgtBB) {
	case domNondominating:
		return fail()
	case domLoopBroken:
		// The loop ceased to exist; mark it as such and thread through
		// its former header without loop constraints.
		loop.Header = nil
		loop.Latch = nil
		loop.NeedsFixup = true
		t.fn.LoopsNeedFixup = true
		return t.threadBlock(header, false)
	}

	if tgtBB.Loop.Header == tgtBB {
		// The target is the header of a subloop; interpose a preheader
		// so the two loops' headers do not merge.
		if len(tgtBB.Preds) > 2 {
			tgtBB = t.fn.CreatePreheader(tgtBB.Loop)
		} else {
			tgtBB = t.fn.SplitEdge(tgtEdge)
		}
	}

	if latchPath != nil {
		// Shape 1: the latch edge is redirected. The header copy stays in
		// the loop; tell block duplication so no multiple-entry loop is
		// recorded.
		t.fn.SetLoopCopy(loop, loop)
		loop.Latch = t.threadSingleEdge(latch)
		t.fn.SetLoopCopy(loop, nil)
		loop.Header = tgtBB

		// The old header and anything between it and the new header now
		// sit on the entry path; move them out of the loop.
		for _, b := range ir.EnumerateFrom(header, false, defSplitHeaderContinue(tgtBB)) {
			if b.Loop == loop {
				t.fn.MoveBlockToLoop(b, loop.Parent)
			}
		}

		// If the new header has multiple latches, mark it so.
		for _, e := range loop.Header.Preds {
			if e.Src.Loop == loop && e.Src != loop.Latch {
				loop.Latch = nil
				loop.MayHaveMultipleLatches = true
			}
		}

		// Cancel remaining requests that would give the loop a second
		// entry.
		for _, e := range header.Preds {
			p := t.annot[e]
			if p == nil {
				continue
			}
			if e2 := p.FinalEdge(); e.Src.Loop != e2.Dest.Loop && e2.Dest != loop.Header {
				t.release(e)
			}
		}

		// Thread the remaining edges through the former header.
		t.threadBlock(header, false)
		return true
	}

	// Shape 2: entry edges are redirected. Remember one so the duplicate of
	// the header, the loop's new preheader, can be found after threading.
	var entry *ir.Edge
	for _, e := range header.Preds {
		if t.annot[e] != nil {
			entry = e
			break
		}
	}

	t.fn.SetLoopCopy(loop, loop.Parent)
	t.threadBlock(header, false)
	t.fn.SetLoopCopy(loop, nil)
	newPreheader := entry.Dest

	// The rotated loop needs a fresh latch: the new header had at least two
	// successors, and a latch must have exactly one. Split everything but
	// the preheader's entry off into a forwarder.
	loop.Latch = nil
	keep := newPreheader.Succs[0]
	le := t.fn.MakeForwarder(tgtBB, func(e *ir.Edge) bool { return e != keep })
	loop.Header = le.Dest
	loop.Latch = le.Src

	return true
}
