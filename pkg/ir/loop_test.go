package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// simpleLoop builds:
//
//	b0 -> b1 (header) -> b2 (latch) -> b1
//	              \-> b3 (exit)
func simpleLoop() (*Func, *Loop, []*Block) {
	f := NewFunc("loop")
	b := make([]*Block, 4)
	for i := range b {
		b[i] = f.NewBlock()
	}
	f.Entry = b[0]
	b[1].Stmts = []Stmt{{Kind: StmtCond, Text: "if i < n"}}

	f.MakeEdge(b[0], b[1], EdgeFallthru)
	f.MakeEdge(b[1], b[2], EdgeTrue)
	f.MakeEdge(b[2], b[1], EdgeFallthru)
	f.MakeEdge(b[1], b[3], EdgeFalse)

	l := f.AddLoop(&Loop{Header: b[1], Latch: b[2]}, nil)
	b[1].Loop = l
	b[2].Loop = l
	return f, l, b
}

func TestLoop_DepthAndContains(t *testing.T) {
	f, l, b := simpleLoop()
	inner := f.AddLoop(&Loop{}, l)

	assert.Equal(t, 0, f.Root.Depth())
	assert.Equal(t, 1, l.Depth())
	assert.Equal(t, 2, inner.Depth())

	assert.True(t, l.Contains(b[1]))
	assert.True(t, l.Contains(b[2]))
	assert.False(t, l.Contains(b[0]))
	assert.True(t, f.Root.Contains(b[1]))
}

func TestLatchEdgeAndLoopExit(t *testing.T) {
	f, l, b := simpleLoop()

	latch := f.LatchEdge(l)
	require.NotNil(t, latch)
	assert.Same(t, b[2], latch.Src)
	assert.Same(t, b[1], latch.Dest)

	exit := f.FindEdge(b[1], b[3])
	assert.True(t, f.IsLoopExit(l, exit))
	assert.False(t, f.IsLoopExit(l, latch))
	assert.False(t, f.IsLoopExit(f.Root, exit))
}

func TestLatchEdge_BrokenLoop(t *testing.T) {
	f, l, _ := simpleLoop()
	l.Header = nil
	l.Latch = nil
	assert.Nil(t, f.LatchEdge(l))
}

func TestLoopsInnermostFirst(t *testing.T) {
	f := NewFunc("f")
	outer := f.AddLoop(&Loop{}, nil)
	mid := f.AddLoop(&Loop{}, outer)
	inner := f.AddLoop(&Loop{}, mid)
	sibling := f.AddLoop(&Loop{}, nil)

	got := f.LoopsInnermostFirst()

	require.Len(t, got, 4)
	pos := map[*Loop]int{}
	for i, l := range got {
		pos[l] = i
	}
	assert.Less(t, pos[inner], pos[mid])
	assert.Less(t, pos[mid], pos[outer])
	assert.Contains(t, pos, sibling)
}

func TestCreatePreheader(t *testing.T) {
	// Two entries into the header, plus the latch edge.
	f, l, b := simpleLoop()
	b4 := f.NewBlock()
	e2 := f.MakeEdge(b4, b[1], EdgeFallthru)
	b[1].Phis = []*Phi{{Result: "i_1", Args: make([]string, len(b[1].Preds))}}
	entry := f.FindEdge(b[0], b[1])
	latch := f.LatchEdge(l)
	b[1].Phis[0].Args[b[1].PredIndex(entry)] = "i_0"
	b[1].Phis[0].Args[b[1].PredIndex(e2)] = "i_9"
	b[1].Phis[0].Args[b[1].PredIndex(latch)] = "i_2"

	ph := f.CreatePreheader(l)

	// The header keeps exactly two preds: latch and preheader.
	require.Len(t, b[1].Preds, 2)
	pe := f.FindEdge(ph, b[1])
	require.NotNil(t, pe)
	assert.Same(t, f.Root, ph.Loop)

	// Entry args migrated to the preheader phi; the header phi now merges
	// the preheader's result with the latch value.
	require.Len(t, ph.Phis, 1)
	assert.ElementsMatch(t, []string{"i_0", "i_9"}, ph.Phis[0].Args)
	assert.Equal(t, ph.Phis[0].Result, b[1].PhiArg(b[1].Phis[0], pe))
	assert.Equal(t, "i_2", b[1].PhiArg(b[1].Phis[0], f.LatchEdge(l)))
}

func TestMakeForwarder(t *testing.T) {
	f, _, b := simpleLoop()
	b4 := f.NewBlock()
	f.MakeEdge(b4, b[1], EdgeFallthru)
	keep := f.FindEdge(b[0], b[1])

	fe := f.MakeForwarder(b[1], func(e *Edge) bool { return e != keep })

	assert.Same(t, b[1], fe.Dest)
	fw := fe.Src
	assert.Len(t, fw.Preds, 2)
	require.Len(t, b[1].Preds, 2)
	assert.Contains(t, b[1].Preds, keep)
	assert.Contains(t, b[1].Preds, fe)
	assert.Same(t, b[1].Loop, fw.Loop)
}
