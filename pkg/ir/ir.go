// Package ir defines the control-flow-graph and SSA data model used by the
// optimization passes: basic blocks, edges, phi-functions, and loops, plus the
// low-level mutation primitives the passes are built on (duplication,
// redirection, edge splitting, preheader creation).
package ir

// FreqMax is the scale for basic-block execution frequency estimates.
const FreqMax = 10000

// ProbAlways is the scale for edge probabilities; an edge with this
// probability is always taken.
const ProbAlways = 10000

// EdgeFlags describe how an edge is taken from its source block.
type EdgeFlags uint8

const (
	// EdgeFallthru marks an edge taken without a branch.
	EdgeFallthru EdgeFlags = 1 << iota
	// EdgeTrue marks the taken side of a conditional branch.
	EdgeTrue
	// EdgeFalse marks the not-taken side of a conditional branch.
	EdgeFalse
	// EdgeAbnormal marks an edge created by non-local control transfer.
	EdgeAbnormal
)

// StmtKind classifies a statement within a block.
type StmtKind int

const (
	StmtPlain StmtKind = iota
	StmtLabel
	StmtNop
	StmtCond   // conditional branch terminator
	StmtGoto   // unconditional jump terminator
	StmtSwitch // multi-way branch terminator
)

// Stmt is a single statement. The block's control terminator, if present, is
// its last statement.
type Stmt struct {
	Kind StmtKind
	Text string
}

// IsCtrl reports whether the statement is a control terminator.
func (s Stmt) IsCtrl() bool {
	return s.Kind == StmtCond || s.Kind == StmtGoto || s.Kind == StmtSwitch
}

// Block is a basic block: an ordered statement sequence with a single entry
// and single exit, its incoming and outgoing edges, loop membership, and
// profile estimates.
type Block struct {
	Index     int
	Stmts     []Stmt
	Preds     []*Edge
	Succs     []*Edge
	Phis      []*Phi
	Loop      *Loop
	Count     uint64
	Frequency int
}

// Edge is a directed control transfer between two blocks.
type Edge struct {
	Src, Dest   *Block
	Flags       EdgeFlags
	Count       uint64
	Probability int
}

// Phi merges a value at a block: exactly one argument per incoming edge,
// parallel to the block's Preds slice.
type Phi struct {
	Result string
	Args   []string
}

// PredIndex returns the position of e in b.Preds, or -1.
func (b *Block) PredIndex(e *Edge) int {
	for i, p := range b.Preds {
		if p == e {
			return i
		}
	}
	return -1
}

// Terminator returns the block's control terminator, or nil.
func (b *Block) Terminator() *Stmt {
	if n := len(b.Stmts); n > 0 && b.Stmts[n-1].IsCtrl() {
		return &b.Stmts[n-1]
	}
	return nil
}

// RemoveCtrlStmt drops the block's control terminator if present.
func (b *Block) RemoveCtrlStmt() {
	if b.Terminator() != nil {
		b.Stmts = b.Stmts[:len(b.Stmts)-1]
	}
}

// SinglePred reports whether the block has exactly one incoming edge.
func (b *Block) SinglePred() bool { return len(b.Preds) == 1 }

// SingleSucc reports whether the block has exactly one outgoing edge.
func (b *Block) SingleSucc() bool { return len(b.Succs) == 1 }

// PhiArg returns the phi's argument associated with incoming edge e.
func (b *Block) PhiArg(phi *Phi, e *Edge) string {
	return phi.Args[b.PredIndex(e)]
}

// ForwarderBlock reports whether b has no executable statements other than a
// control terminator. A block like this can be bypassed without duplicating
// anything of substance.
func ForwarderBlock(b *Block) bool {
	i := 0
	for i < len(b.Stmts) && (b.Stmts[i].Kind == StmtLabel || b.Stmts[i].Kind == StmtNop) {
		i++
	}
	if i == len(b.Stmts) {
		return true
	}
	return b.Stmts[i].IsCtrl()
}

// EmptyBlock reports whether b carries no executable statements at all.
func EmptyBlock(b *Block) bool {
	for _, s := range b.Stmts {
		if s.Kind != StmtLabel && s.Kind != StmtNop {
			return false
		}
	}
	return true
}

// EdgeFrequency estimates how often e is taken, from its source block's
// frequency and the edge probability.
func EdgeFrequency(e *Edge) int {
	return e.Src.Frequency * e.Probability / ProbAlways
}

// SatAdd adds two counters, saturating instead of wrapping.
func SatAdd(a, b uint64) uint64 {
	if s := a + b; s >= a {
		return s
	}
	return ^uint64(0)
}

// SatSub subtracts b from a, clamping at zero.
func SatSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
