package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// diamond builds:
//
//	b0 -> b1 -> b3
//	b0 -> b2 -> b3
//
// with a phi at b3 merging values from b1 and b2.
func diamond() (*Func, []*Block) {
	f := NewFunc("diamond")
	b := make([]*Block, 4)
	for i := range b {
		b[i] = f.NewBlock()
	}
	f.Entry = b[0]
	b[0].Stmts = []Stmt{{Kind: StmtCond, Text: "if x"}}
	f.MakeEdge(b[0], b[1], EdgeTrue)
	f.MakeEdge(b[0], b[2], EdgeFalse)

	b[3].Phis = []*Phi{{Result: "v_3"}}
	e1 := f.MakeEdge(b[1], b[3], EdgeFallthru)
	e2 := f.MakeEdge(b[2], b[3], EdgeFallthru)
	b[3].Phis[0].Args[b[3].PredIndex(e1)] = "v_1"
	b[3].Phis[0].Args[b[3].PredIndex(e2)] = "v_2"
	return f, b
}

func TestMakeEdge_GrowsPhiArgs(t *testing.T) {
	f := NewFunc("f")
	a := f.NewBlock()
	b := f.NewBlock()
	b.Phis = []*Phi{{Result: "x_1", Args: nil}}

	e := f.MakeEdge(a, b, EdgeFallthru)

	require.Len(t, b.Preds, 1)
	require.Len(t, b.Phis[0].Args, 1)
	assert.Equal(t, 0, b.PredIndex(e))
}

func TestRemoveEdge_DropsPhiSlot(t *testing.T) {
	f, b := diamond()
	e := f.FindEdge(b[1], b[3])
	require.NotNil(t, e)

	f.RemoveEdge(e)

	assert.Len(t, b[3].Preds, 1)
	require.Len(t, b[3].Phis[0].Args, 1)
	assert.Equal(t, "v_2", b[3].Phis[0].Args[0])
	assert.Empty(t, b[1].Succs)
}

func TestRedirectEdge_Retarget(t *testing.T) {
	f, b := diamond()
	b4 := f.NewBlock()
	b4.Phis = []*Phi{{Result: "w_1"}}
	e := f.FindEdge(b[1], b[3])

	re := f.RedirectEdge(e, b4)

	assert.Same(t, e, re)
	assert.Same(t, b4, e.Dest)
	assert.Len(t, b[3].Preds, 1)
	assert.Len(t, b[3].Phis[0].Args, 1)
	require.Len(t, b4.Preds, 1)
	assert.Len(t, b4.Phis[0].Args, 1)
}

func TestRedirectEdge_MergesParallel(t *testing.T) {
	f := NewFunc("f")
	a := f.NewBlock()
	b := f.NewBlock()
	c := f.NewBlock()
	e1 := f.MakeEdge(a, b, EdgeTrue)
	e2 := f.MakeEdge(a, c, EdgeFalse)
	e1.Count, e1.Probability = 30, 6000
	e2.Count, e2.Probability = 10, 4000

	re := f.RedirectEdge(e2, b)

	assert.Same(t, e1, re)
	assert.Equal(t, uint64(40), re.Count)
	assert.Equal(t, ProbAlways, re.Probability)
	assert.Len(t, a.Succs, 1)
	assert.Len(t, b.Preds, 1)
	assert.Empty(t, c.Preds)
}

func TestSplitEdge_MovesPhiArg(t *testing.T) {
	f, b := diamond()
	e := f.FindEdge(b[1], b[3])
	e.Count = 7
	e.Probability = ProbAlways

	n := f.SplitEdge(e)

	assert.Same(t, n, e.Dest)
	require.True(t, n.SingleSucc())
	ne := n.Succs[0]
	assert.Same(t, b[3], ne.Dest)
	assert.Equal(t, "v_1", b[3].PhiArg(b[3].Phis[0], ne))
	assert.Equal(t, uint64(7), n.Count)
}

func TestDuplicateBlock_CopiesStmtsAndEdges(t *testing.T) {
	f, b := diamond()
	b[0].Succs[0].Probability = 7000

	d := f.DuplicateBlock(b[0])

	assert.Equal(t, b[0].Stmts, d.Stmts)
	require.Len(t, d.Succs, 2)
	assert.Same(t, b[1], d.Succs[0].Dest)
	assert.Same(t, b[2], d.Succs[1].Dest)
	assert.Equal(t, 7000, d.Succs[0].Probability)
	assert.Equal(t, uint64(0), d.Count)
	assert.Equal(t, 0, d.Frequency)
}

func TestDuplicateBlock_SuccessorPhisGainArg(t *testing.T) {
	f, b := diamond()

	d := f.DuplicateBlock(b[1])

	require.Len(t, b[3].Preds, 3)
	assert.Len(t, b[3].Phis[0].Args, 3)
	de := f.FindEdge(d, b[3])
	require.NotNil(t, de)
	assert.Equal(t, "", b[3].PhiArg(b[3].Phis[0], de))
}

func TestUpdateProfileForThreading_Saturates(t *testing.T) {
	f := NewFunc("f")
	a := f.NewBlock()
	b := f.NewBlock()
	a.Count = 5
	a.Frequency = 100
	e := f.MakeEdge(a, b, EdgeFallthru)
	e.Count = 3

	UpdateProfileForThreading(a, 500, 10, e)

	assert.Equal(t, uint64(0), a.Count)
	assert.Equal(t, 0, a.Frequency)
	assert.Equal(t, uint64(0), e.Count)
}

func TestEnumerateFrom_ReverseWithStop(t *testing.T) {
	// b0 -> b1 -> b2 -> b3, plus b0 -> b3
	f := NewFunc("f")
	b := make([]*Block, 4)
	for i := range b {
		b[i] = f.NewBlock()
	}
	f.MakeEdge(b[0], b[1], EdgeTrue)
	f.MakeEdge(b[1], b[2], EdgeFallthru)
	f.MakeEdge(b[2], b[3], EdgeFallthru)
	f.MakeEdge(b[0], b[3], EdgeFalse)

	got := EnumerateFrom(b[3], true, func(bb *Block) bool { return bb != b[1] })

	assert.ElementsMatch(t, []*Block{b[3], b[2], b[0]}, got)
}

func TestForwarderBlock(t *testing.T) {
	tests := []struct {
		name  string
		stmts []Stmt
		want  bool
	}{
		{"empty", nil, true},
		{"label only", []Stmt{{Kind: StmtLabel}}, true},
		{"cond after label", []Stmt{{Kind: StmtLabel}, {Kind: StmtCond}}, true},
		{"bare goto", []Stmt{{Kind: StmtGoto}}, true},
		{"real work", []Stmt{{Kind: StmtPlain, Text: "x = y + 1"}}, false},
		{"work then cond", []Stmt{{Kind: StmtPlain}, {Kind: StmtCond}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ForwarderBlock(&Block{Stmts: tt.stmts}))
		})
	}
}

func TestSaturatingCounters(t *testing.T) {
	max := ^uint64(0)
	assert.Equal(t, uint64(5), SatAdd(2, 3))
	assert.Equal(t, max, SatAdd(max, 1))
	assert.Equal(t, uint64(0), SatSub(3, 5))
	assert.Equal(t, uint64(2), SatSub(5, 3))
}
