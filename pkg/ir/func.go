package ir

// Func is a function body: its blocks, entry block, and loop tree. All graph
// mutation goes through Func methods so phi argument lists stay in step with
// incoming-edge lists.
type Func struct {
	Name   string
	Blocks []*Block
	Entry  *Block

	// Root is the whole-function pseudo-loop. Every block belongs to some
	// loop; blocks outside any real loop belong to Root.
	Root *Loop

	// LoopsNeedFixup is set when a transformation invalidated loop
	// metadata and an external fixup pass must rebuild it.
	LoopsNeedFixup bool

	nextIndex int
	loopCopy  map[*Loop]*Loop
}

// NewFunc creates an empty function with its root pseudo-loop.
func NewFunc(name string) *Func {
	return &Func{Name: name, Root: &Loop{}}
}

// NewBlock allocates a block belonging to the root pseudo-loop.
func (f *Func) NewBlock() *Block {
	b := &Block{Index: f.nextIndex, Loop: f.Root}
	f.nextIndex++
	f.Blocks = append(f.Blocks, b)
	return b
}

// MakeEdge creates an edge from src to dest. Each phi at dest gains one
// (empty) argument for the new incoming edge.
func (f *Func) MakeEdge(src, dest *Block, flags EdgeFlags) *Edge {
	e := &Edge{Src: src, Dest: dest, Flags: flags}
	src.Succs = append(src.Succs, e)
	dest.Preds = append(dest.Preds, e)
	for _, phi := range dest.Phis {
		phi.Args = append(phi.Args, "")
	}
	return e
}

// FindEdge returns the edge from src to dest, or nil.
func (f *Func) FindEdge(src, dest *Block) *Edge {
	for _, e := range src.Succs {
		if e.Dest == dest {
			return e
		}
	}
	return nil
}

// RemoveEdge deletes e from the graph, removing the corresponding phi
// argument at the destination.
func (f *Func) RemoveEdge(e *Edge) {
	for i, s := range e.Src.Succs {
		if s == e {
			e.Src.Succs = append(e.Src.Succs[:i], e.Src.Succs[i+1:]...)
			break
		}
	}
	f.detachDest(e)
}

// detachDest removes e from its destination's pred list and drops the phi
// argument slot associated with it.
func (f *Func) detachDest(e *Edge) {
	idx := e.Dest.PredIndex(e)
	if idx < 0 {
		return
	}
	e.Dest.Preds = append(e.Dest.Preds[:idx], e.Dest.Preds[idx+1:]...)
	for _, phi := range e.Dest.Phis {
		phi.Args = append(phi.Args[:idx], phi.Args[idx+1:]...)
	}
}

// RedirectEdge retargets e to dest. If a parallel edge from e's source to
// dest already exists the two are merged (counts accumulated) and the
// surviving edge is returned; callers must check the result against e.
func (f *Func) RedirectEdge(e *Edge, dest *Block) *Edge {
	if e.Dest == dest {
		return e
	}
	if ex := f.FindEdge(e.Src, dest); ex != nil {
		ex.Count = SatAdd(ex.Count, e.Count)
		if ex.Probability += e.Probability; ex.Probability > ProbAlways {
			ex.Probability = ProbAlways
		}
		f.RemoveEdge(e)
		return ex
	}
	f.detachDest(e)
	e.Dest = dest
	dest.Preds = append(dest.Preds, e)
	for _, phi := range dest.Phis {
		phi.Args = append(phi.Args, "")
	}
	return e
}

// SplitEdge inserts a new block in the middle of e. The destination's phi
// arguments previously associated with e move to the new intermediate edge.
func (f *Func) SplitEdge(e *Edge) *Block {
	dest := e.Dest
	idx := dest.PredIndex(e)
	saved := make([]string, len(dest.Phis))
	for i, phi := range dest.Phis {
		saved[i] = phi.Args[idx]
	}

	n := f.NewBlock()
	n.Loop = commonLoop(e.Src.Loop, e.Dest.Loop)
	n.Frequency = EdgeFrequency(e)
	n.Count = e.Count

	f.detachDest(e)
	e.Dest = n
	n.Preds = append(n.Preds, e)

	ne := f.MakeEdge(n, dest, EdgeFallthru)
	ne.Probability = ProbAlways
	ne.Count = e.Count
	nidx := dest.PredIndex(ne)
	for i, phi := range dest.Phis {
		phi.Args[nidx] = saved[i]
	}
	return n
}

// DuplicateBlock copies b's statements and outgoing edges into a fresh block
// with a zeroed profile (the copy is unreachable until an incoming edge is
// redirected to it). Successor phis gain an empty argument per copied edge.
// Loop membership honors any mapping installed with SetLoopCopy.
func (f *Func) DuplicateBlock(b *Block) *Block {
	d := f.NewBlock()
	d.Stmts = append([]Stmt(nil), b.Stmts...)
	d.Loop = f.loopForCopy(b.Loop)
	for _, e := range b.Succs {
		ne := f.MakeEdge(d, e.Dest, e.Flags)
		ne.Probability = e.Probability
	}
	return d
}

// SetLoopCopy declares that copies of blocks in l belong to target until the
// mapping is cleared with a nil target.
func (f *Func) SetLoopCopy(l, target *Loop) {
	if f.loopCopy == nil {
		f.loopCopy = make(map[*Loop]*Loop)
	}
	if target == nil {
		delete(f.loopCopy, l)
		return
	}
	f.loopCopy[l] = target
}

func (f *Func) loopForCopy(l *Loop) *Loop {
	if m, ok := f.loopCopy[l]; ok {
		return m
	}
	return l
}

// UpdateProfileForThreading adjusts b's profile after one incoming edge
// carrying the given frequency and count has been rerouted around it, with
// takenEdge being the outgoing edge the rerouted flow used to follow.
func UpdateProfileForThreading(b *Block, freq int, count uint64, takenEdge *Edge) {
	b.Count = SatSub(b.Count, count)
	if b.Frequency -= freq; b.Frequency < 0 {
		b.Frequency = 0
	}
	takenEdge.Count = SatSub(takenEdge.Count, count)
}

// EnumerateFrom walks the graph from start, forward over successor edges or
// backward over predecessor edges, entering only blocks for which cont
// returns true. The start block is always included. The result is in visit
// order.
func EnumerateFrom(start *Block, reverse bool, cont func(*Block) bool) []*Block {
	seen := map[*Block]bool{start: true}
	out := []*Block{start}
	stack := []*Block{start}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reverse {
			for _, e := range b.Preds {
				if n := e.Src; !seen[n] && cont(n) {
					seen[n] = true
					out = append(out, n)
					stack = append(stack, n)
				}
			}
		} else {
			for _, e := range b.Succs {
				if n := e.Dest; !seen[n] && cont(n) {
					seen[n] = true
					out = append(out, n)
					stack = append(stack, n)
				}
			}
		}
	}
	return out
}
