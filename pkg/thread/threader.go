package thread

import (
	"github.com/calder-lang/ssaopt/internal/log"
	"github.com/calder-lang/ssaopt/pkg/ir"
)

// Options configures a Threader.
type Options struct {
	// OptimizeSize cancels threading into any multi-predecessor block
	// that is not a pure forwarder, since duplicating a non-trivial block
	// costs more code than the removed branch saves.
	OptimizeSize bool

	// Admit, when non-nil, may veto individual registrations. A vetoed
	// path is discarded, not stored.
	Admit func(Path) bool

	// FlushSSA, when non-nil, is invoked after each incoming-edge
	// redirection so the external SSA reconciler can materialize pending
	// updates implied by the retarget.
	FlushSSA func(*ir.Edge)

	Logger log.Logger
}

// Stats aggregates what one ApplyAll invocation did.
type Stats struct {
	ThreadedEdges uint64
}

// Threader batches registered jump-thread paths and applies them to one
// function. It is single-use per pass invocation: register paths, call
// ApplyAll once, read Stats.
type Threader struct {
	fn   *ir.Func
	opts Options
	log  log.Logger

	// pending holds registered paths not yet attached to their edges.
	pending []Path

	// annot is the transient per-edge annotation slot: the pending path
	// staged on an incoming edge during the rewrite. It must be empty for
	// every edge when ApplyAll returns.
	annot map[*ir.Edge]Path

	stats Stats
}

// New creates a Threader over fn.
func New(fn *ir.Func, opts Options) *Threader {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Threader{
		fn:    fn,
		opts:  opts,
		log:   logger,
		annot: make(map[*ir.Edge]Path),
	}
}

// Stats returns the statistics of the last ApplyAll.
func (t *Threader) Stats() Stats { return t.stats }

// Register queues a jump-thread path. A path needs at least the incoming
// edge and one threaded step; one containing a step with a missing edge
// (destination not statically resolvable) is discarded, as is any path vetoed
// by the admission gate. Duplicates are not detected here; they are resolved
// by grouping during ApplyAll.
func (t *Threader) Register(p Path) bool {
	if len(p) < 2 {
		return false
	}
	if t.opts.Admit != nil && !t.opts.Admit(p) {
		return false
	}
	for _, s := range p {
		if s.E == nil {
			t.log.Debug("cancelling jump thread with missing edge")
			return false
		}
	}
	t.debugPath(p)
	t.pending = append(t.pending, p)
	return true
}

func (t *Threader) debugPath(p Path) {
	args := []interface{}{"src", p[0].E.Src.Index, "dest", p[0].E.Dest.Index}
	for _, s := range p[1:] {
		args = append(args, s.Kind.String(), s.E.Dest.Index)
	}
	t.log.Debug("registering jump thread", args...)
}

// release discards the path staged on e and clears the annotation slot.
func (t *Threader) release(e *ir.Edge) {
	delete(t.annot, e)
}

// PendingAnnotations reports how many edges still carry a staged path. It is
// zero outside an active ApplyAll; tests use it to verify the final sweep.
func (t *Threader) PendingAnnotations() int { return len(t.annot) }

// phiArgsEqualOnEdges reports whether the phi arguments at the shared
// destination of e1 and e2 agree for both edges.
func phiArgsEqualOnEdges(e1, e2 *ir.Edge) bool {
	b := e1.Dest
	i1 := b.PredIndex(e1)
	i2 := b.PredIndex(e2)
	for _, phi := range b.Phis {
		if phi.Args[i1] != phi.Args[i2] {
			return false
		}
	}
	return true
}

// markThreadedBlocks attaches each pending path to its step-0 edge's
// annotation slot and returns the set of thread-target blocks, after three
// batch-wide filters: the size heuristic, the loop-crossing trim, and the
// joiner phi-agreement check.
func (t *Threader) markThreadedBlocks() map[*ir.Block]bool {
	tmp := make(map[*ir.Block]bool)
	for _, p := range t.pending {
		e := p[0].E
		t.annot[e] = p
		tmp[e.Dest] = true
	}
	t.pending = nil

	threaded := make(map[*ir.Block]bool, len(tmp))
	if t.opts.OptimizeSize {
		// Only thread through a block we do not have to duplicate, or
		// one that is an otherwise empty redirection block.
		for bb := range tmp {
			if len(bb.Preds) > 1 && !ir.ForwarderBlock(bb) {
				for _, e := range bb.Preds {
					if t.annot[e] != nil {
						t.release(e)
					}
				}
			} else {
				threaded[bb] = true
			}
		}
	} else {
		for bb := range tmp {
			threaded[bb] = true
		}
	}

	// A path that crosses three or more distinct loops would force the
	// loop-header code into territory it cannot handle. Rather than
	// cancel outright, trim the path at the first step entering a third
	// loop, and discard it only if the trimmed path is no longer viable.
	for bb := range tmp {
		for _, e := range bb.Preds {
			p := t.annot[e]
			if p == nil {
				continue
			}
			first := p[0].E.Src.Loop
			var second *ir.Loop
			for i := range p {
				lf := p[i].E.Dest.Loop
				if lf == first || lf == second {
					continue
				}
				if second == nil {
					second = lf
					continue
				}
				trimmed := p[:i]
				t.annot[e] = trimmed
				if len(trimmed) < 2 || trimmed[len(trimmed)-1].Kind == JoinerCopy {
					t.release(e)
				}
				break
			}
		}
	}

	// If the thread passes through a joiner which also has a direct edge
	// to the final destination, the phi arguments for the direct edge and
	// for the threaded path must agree, or threading would silently
	// select the wrong value. This must run after trimming, since the
	// scenario can appear only once a path has been truncated.
	for bb := range tmp {
		for _, e := range bb.Preds {
			p := t.annot[e]
			if p == nil || p[1].Kind != JoinerCopy {
				continue
			}
			joiner := e.Dest
			final := p.FinalEdge()
			if e2 := t.fn.FindEdge(joiner, final.Dest); e2 != nil && !phiArgsEqualOnEdges(e2, final) {
				t.release(e)
			}
		}
	}

	return threaded
}

// threadBlock threads the staged incoming edges of bb, handling paths that do
// not copy a joiner first and joiner paths second. Non-joiner threading can
// expose further opportunities that joiner duplication, which is strictly
// more expensive, would otherwise mask.
func (t *Threader) threadBlock(bb *ir.Block, noloopOnly bool) bool {
	changed := t.threadBlockOne(bb, noloopOnly, false)
	if t.threadBlockOne(bb, noloopOnly, true) {
		changed = true
	}
	return changed
}

// threadBlockOne performs one grouping/duplication/redirection sub-pass over
// bb's staged incoming edges. When joiners is false only non-joiner paths
// qualify, and vice versa. When noloopOnly is true, threading is restricted
// to paths that do not disturb loop structure; loop-structural requests are
// left staged for the loop-header code (or cancelled when nothing can handle
// them).
func (t *Threader) threadBlockOne(bb *ir.Block, noloopOnly, joiners bool) bool {
	loop := bb.Loop
	groups := newGroupTable()

	// Threading the latch through a loop exit dissolves the loop. Note
	// that before grouping, so the loop does not constrain us later.
	if loop.Header == bb {
		if latch := t.fn.LatchEdge(loop); latch != nil {
			p := t.annot[latch]
			if p != nil && ((p[1].Kind == JoinerCopy && joiners) || (p[1].Kind == NormalCopy && !joiners)) {
				for i := 1; i < len(p); i++ {
					if t.fn.IsLoopExit(loop, p[i].E) {
						loop.Header = nil
						loop.Latch = nil
						loop.NeedsFixup = true
						t.fn.LoopsNeedFixup = true
					}
				}
			}
		}
	}

	preds := append([]*ir.Edge(nil), bb.Preds...)
	for _, e := range preds {
		p := t.annot[e]
		if p == nil {
			continue
		}
		if (p[1].Kind == JoinerCopy && !joiners) || (p[1].Kind == NormalCopy && joiners) {
			continue
		}

		e2 := p.FinalEdge()
		if noloopOnly {
			// Threading through a loop header is only allowed here
			// when it leaves the loop; anything else is either
			// handled by the loop-header code or cancelled.
			if bb == bb.Loop.Header && (!t.fn.IsLoopExit(bb.Loop, e2) || p[1].Kind == JoinerCopy) {
				continue
			}

			// A loop header buried mid-path is not handled
			// anywhere else; cancel the request outright.
			if (bb.Loop != e2.Src.Loop && !t.fn.IsLoopExit(e2.Src.Loop, e2)) ||
				(e2.Src.Loop != e2.Dest.Loop && !t.fn.IsLoopExit(e2.Src.Loop, e2)) {
				t.release(e)
				continue
			}
		}

		if e.Dest == e2.Src {
			ir.UpdateProfileForThreading(e.Dest, ir.EdgeFrequency(e), e.Count, p[1].E)
		}

		groups.insert(e, p)
	}

	if groups.empty() {
		return false
	}

	// Copies of the loop header made while threading to its exits stay
	// outside the loop; tell block duplication so no multiple-entry loop
	// is recorded.
	if noloopOnly && bb == bb.Loop.Header {
		t.fn.SetLoopCopy(bb.Loop, bb.Loop.Parent)
	}

	local := &localInfo{bb: bb}
	groups.each(func(rd *redirection) { t.createDuplicates(rd, local) })
	groups.each(func(rd *redirection) { t.fixupTemplate(rd, local) })
	groups.each(func(rd *redirection) { t.redirectEdges(rd, local) })

	if noloopOnly && bb == bb.Loop.Header {
		t.fn.SetLoopCopy(bb.Loop, nil)
	}

	return local.threaded
}

// localInfo carries per-block state across the grouping traversals.
type localInfo struct {
	// bb is the block being threaded.
	bb *ir.Block

	// template is a copy of bb used to stamp out further duplicates; its
	// own outgoing edge is wired up only after all duplicates exist.
	template *ir.Block

	// threaded is set once at least one edge was redirected.
	threaded bool
}

// ApplyAll applies every registered threading request to the graph: ordinary
// threading over all target blocks first, then loop-header threading
// innermost-first, then a final sweep that clears any annotation left behind
// by requests an unrelated rewrite invalidated. Reports whether any edge was
// threaded; if so, loop metadata needs external fixup.
func (t *Threader) ApplyAll(mayPeelLoopHeaders bool) bool {
	if len(t.pending) == 0 {
		return false
	}
	t.stats = Stats{}
	changed := false

	threaded := t.markThreadedBlocks()

	// Threading requests that do not affect loop structure.
	for _, bb := range t.fn.Blocks {
		if threaded[bb] && len(bb.Preds) > 0 {
			if t.threadBlock(bb, true) {
				changed = true
			}
		}
	}

	// Loop headers, starting with the innermost loop so these rewrites
	// cannot disturb enclosing loops processed later.
	for _, loop := range t.fn.LoopsInnermostFirst() {
		if loop.Header == nil || !threaded[loop.Header] {
			continue
		}
		if t.threadThroughLoopHeader(loop, mayPeelLoopHeaders) {
			changed = true
		}
	}

	// A request can be orphaned when an earlier rewrite dissolved the
	// loop it depended on. That is expected in a bulk rewrite; sweep
	// every remaining slot so no staged path survives the pass.
	for e := range t.annot {
		t.release(e)
	}

	t.log.Info("jumps threaded", "count", t.stats.ThreadedEdges)

	if changed {
		t.fn.LoopsNeedFixup = true
	}
	return changed
}
