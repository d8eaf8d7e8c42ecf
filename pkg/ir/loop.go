package ir

// Loop is a natural loop: its header, the latch closing the back edge, and
// its position in the loop tree. Membership is recorded on each Block via its
// Loop pointer; Contains walks the tree. A loop whose header or latch has
// been cleared is structurally broken and flagged NeedsFixup; no structural
// assumption may be made about it until an external pass repairs it.
type Loop struct {
	Header *Block
	Latch  *Block
	Parent *Loop
	Inner  []*Loop

	NeedsFixup             bool
	MayHaveMultipleLatches bool
}

// AddLoop links l under parent (the root pseudo-loop when parent is nil) and
// returns it.
func (f *Func) AddLoop(l *Loop, parent *Loop) *Loop {
	if parent == nil {
		parent = f.Root
	}
	l.Parent = parent
	parent.Inner = append(parent.Inner, l)
	return l
}

// Depth is the loop's nesting depth; the root pseudo-loop has depth zero.
func (l *Loop) Depth() int {
	d := 0
	for p := l.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// Contains reports whether b belongs to l or to a loop nested inside l.
func (l *Loop) Contains(b *Block) bool {
	for m := b.Loop; m != nil; m = m.Parent {
		if m == l {
			return true
		}
	}
	return false
}

// LatchEdge returns the back edge from the latch to the header, or nil when
// either end has been cleared.
func (f *Func) LatchEdge(l *Loop) *Edge {
	if l.Latch == nil || l.Header == nil {
		return nil
	}
	return f.FindEdge(l.Latch, l.Header)
}

// IsLoopExit reports whether e leaves l: its source is inside and its
// destination outside. The root pseudo-loop has no exits.
func (f *Func) IsLoopExit(l *Loop, e *Edge) bool {
	if l == nil || l == f.Root {
		return false
	}
	return l.Contains(e.Src) && !l.Contains(e.Dest)
}

// MoveBlockToLoop reassigns b's membership to l.
func (f *Func) MoveBlockToLoop(b *Block, l *Loop) {
	b.Loop = l
}

// LoopsInnermostFirst returns all real loops ordered so every loop precedes
// its ancestors. Processing in this order keeps rewrites inside an inner loop
// from disturbing bookkeeping already done for an enclosing one.
func (f *Func) LoopsInnermostFirst() []*Loop {
	var out []*Loop
	var walk func(*Loop)
	walk = func(l *Loop) {
		for _, in := range l.Inner {
			walk(in)
		}
		if l != f.Root {
			out = append(out, l)
		}
	}
	walk(f.Root)
	return out
}

// commonLoop returns the innermost loop containing both a and b.
func commonLoop(a, b *Loop) *Loop {
	for da, db := a.Depth(), b.Depth(); da > db; da-- {
		a = a.Parent
	}
	for da, db := a.Depth(), b.Depth(); db > da; db-- {
		b = b.Parent
	}
	for a != b {
		a = a.Parent
		b = b.Parent
	}
	return a
}

// CreatePreheader gives l a dedicated single-successor entry block: every
// non-latch incoming edge of the header is redirected to the new block, which
// falls through to the header. Header phi arguments for the moved edges
// migrate to a matching phi in the preheader.
func (f *Func) CreatePreheader(l *Loop) *Block {
	header := l.Header
	latch := f.LatchEdge(l)

	var moved []*Edge
	for _, e := range header.Preds {
		if e != latch {
			moved = append(moved, e)
		}
	}

	// Capture the header phi arguments for the moved edges before any
	// redirect shuffles the argument lists.
	saved := make(map[*Edge][]string, len(moved))
	for _, e := range moved {
		idx := header.PredIndex(e)
		args := make([]string, len(header.Phis))
		for i, phi := range header.Phis {
			args[i] = phi.Args[idx]
		}
		saved[e] = args
	}

	ph := f.NewBlock()
	if l.Parent != nil {
		ph.Loop = l.Parent
	}
	for _, phi := range header.Phis {
		ph.Phis = append(ph.Phis, &Phi{Result: phi.Result})
	}

	for _, e := range moved {
		ph.Count = SatAdd(ph.Count, e.Count)
		if ph.Frequency += EdgeFrequency(e); ph.Frequency > FreqMax {
			ph.Frequency = FreqMax
		}
		re := f.RedirectEdge(e, ph)
		idx := ph.PredIndex(re)
		for i := range ph.Phis {
			ph.Phis[i].Args[idx] = saved[e][i]
		}
	}

	pe := f.MakeEdge(ph, header, EdgeFallthru)
	pe.Probability = ProbAlways
	pe.Count = ph.Count
	idx := header.PredIndex(pe)
	for i, phi := range header.Phis {
		phi.Args[idx] = ph.Phis[i].Result
	}
	return ph
}

// MakeForwarder splits b's incoming edges: every edge for which move returns
// true is redirected to a fresh forwarder block that falls through to b.
// Returns the forwarder's single outgoing edge. Phi arguments for the moved
// edges migrate to a matching phi in the forwarder; the resulting duplicate
// definitions are reconciled by the external SSA repair pass.
func (f *Func) MakeForwarder(b *Block, move func(*Edge) bool) *Edge {
	var moved []*Edge
	for _, e := range b.Preds {
		if move(e) {
			moved = append(moved, e)
		}
	}

	saved := make(map[*Edge][]string, len(moved))
	for _, e := range moved {
		idx := b.PredIndex(e)
		args := make([]string, len(b.Phis))
		for i, phi := range b.Phis {
			args[i] = phi.Args[idx]
		}
		saved[e] = args
	}

	fw := f.NewBlock()
	fw.Loop = b.Loop
	for _, phi := range b.Phis {
		fw.Phis = append(fw.Phis, &Phi{Result: phi.Result})
	}

	for _, e := range moved {
		fw.Count = SatAdd(fw.Count, e.Count)
		if fw.Frequency += EdgeFrequency(e); fw.Frequency > FreqMax {
			fw.Frequency = FreqMax
		}
		re := f.RedirectEdge(e, fw)
		idx := fw.PredIndex(re)
		for i := range fw.Phis {
			fw.Phis[i].Args[idx] = saved[e][i]
		}
	}

	fe := f.MakeEdge(fw, b, EdgeFallthru)
	fe.Probability = ProbAlways
	fe.Count = fw.Count
	idx := b.PredIndex(fe)
	for i, phi := range b.Phis {
		phi.Args[idx] = fw.Phis[i].Result
	}
	return fe
}

// CopyPhiArgs copies, for every phi at b, the argument associated with srcE
// onto the slot associated with tgtE.
func (f *Func) CopyPhiArgs(b *Block, srcE, tgtE *Edge) {
	si := b.PredIndex(srcE)
	ti := b.PredIndex(tgtE)
	if si < 0 || ti < 0 {
		return
	}
	for _, phi := range b.Phis {
		phi.Args[ti] = phi.Args[si]
	}
}
