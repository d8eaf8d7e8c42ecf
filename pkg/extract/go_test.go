package extract

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder-lang/ssaopt/pkg/ir"
)

const ifSource = `package p

func classify(x int) string {
	if x > 0 {
		return "positive"
	}
	return "other"
}
`

func TestGo_IfStatement(t *testing.T) {
	fn, err := Go([]byte(ifSource), "classify")
	require.NoError(t, err)

	entry := fn.Entry
	require.NotNil(t, entry)
	term := entry.Terminator()
	require.NotNil(t, term)
	assert.Equal(t, ir.StmtCond, term.Kind)
	assert.Equal(t, "if x > 0", term.Text)

	require.Len(t, entry.Succs, 2)
	var trueE, falseE *ir.Edge
	for _, e := range entry.Succs {
		switch {
		case e.Flags&ir.EdgeTrue != 0:
			trueE = e
		case e.Flags&ir.EdgeFalse != 0:
			falseE = e
		}
	}
	require.NotNil(t, trueE)
	require.NotNil(t, falseE)

	// The true arm ends in a return routed to the shared exit.
	thenB := trueE.Dest
	require.NotNil(t, thenB.Terminator())
	assert.Equal(t, ir.StmtGoto, thenB.Terminator().Kind)
	assert.Equal(t, `return "positive"`, thenB.Terminator().Text)
	require.True(t, thenB.SingleSucc())

	// Both returns converge on one exit block.
	exit := thenB.Succs[0].Dest
	assert.GreaterOrEqual(t, len(exit.Preds), 2)
	assert.Empty(t, exit.Succs)
}

const loopSource = `package p

func sum(xs []int) int {
	total := 0
	for i := 0; i < len(xs); i++ {
		total += xs[i]
	}
	return total
}
`

func TestGo_ForLoop(t *testing.T) {
	fn, err := Go([]byte(loopSource), "sum")
	require.NoError(t, err)

	loops := fn.LoopsInnermostFirst()
	require.Len(t, loops, 1)
	l := loops[0]
	require.NotNil(t, l.Header)
	require.NotNil(t, l.Latch)

	// Header tests the loop condition with a body arm and an exit arm.
	term := l.Header.Terminator()
	require.NotNil(t, term)
	assert.Equal(t, ir.StmtCond, term.Kind)
	assert.Contains(t, term.Text, "i < len(xs)")
	require.Len(t, l.Header.Succs, 2)

	// The latch carries the post statement and the single back edge.
	back := fn.FindEdge(l.Latch, l.Header)
	require.NotNil(t, back)
	require.NotEmpty(t, l.Latch.Stmts)
	assert.Equal(t, "i++", l.Latch.Stmts[0].Text)

	assert.Same(t, l, l.Header.Loop)
	assert.Same(t, l, l.Latch.Loop)

	// The init statement stays outside the loop, before the header.
	assert.Same(t, fn.Root, fn.Entry.Loop)
	assert.Contains(t, fn.Entry.Stmts[len(fn.Entry.Stmts)-1].Text, "i := 0")
}

const nestedSource = `package p

func find(rows [][]int, want int) bool {
	for _, row := range rows {
		for _, v := range row {
			if v == want {
				return true
			}
		}
	}
	return false
}
`

func TestGo_NestedLoops(t *testing.T) {
	fn, err := Go([]byte(nestedSource), "find")
	require.NoError(t, err)

	loops := fn.LoopsInnermostFirst()
	require.Len(t, loops, 2)
	inner, outer := loops[0], loops[1]
	assert.Same(t, outer, inner.Parent)
	assert.Equal(t, 2, inner.Depth())
	assert.Equal(t, 1, outer.Depth())
	assert.True(t, outer.Contains(inner.Header))
}

const breakSource = `package p

func firstNegative(xs []int) int {
	found := -1
	for i := 0; i < len(xs); i++ {
		if xs[i] < 0 {
			found = i
			break
		}
	}
	return found
}
`

func TestGo_BreakLeavesLoop(t *testing.T) {
	fn, err := Go([]byte(breakSource), "firstNegative")
	require.NoError(t, err)

	loops := fn.LoopsInnermostFirst()
	require.Len(t, loops, 1)
	l := loops[0]

	// Some block inside the loop ends with the break jump and exits the
	// loop directly.
	var breakEdge *ir.Edge
	for _, b := range fn.Blocks {
		term := b.Terminator()
		if term != nil && term.Kind == ir.StmtGoto && term.Text == "break" {
			require.True(t, b.SingleSucc())
			breakEdge = b.Succs[0]
		}
	}
	require.NotNil(t, breakEdge)
	assert.True(t, fn.IsLoopExit(l, breakEdge))
}

func TestGoFile_ReadsSourceFromDisk(t *testing.T) {
	fn, err := GoFile(filepath.Join("testdata", "sample.go"), "count")
	require.NoError(t, err)

	assert.Equal(t, "count", fn.Name)
	require.Len(t, fn.LoopsInnermostFirst(), 1)

	fn, err = GoFile(filepath.Join("testdata", "sample.go"), "clamp")
	require.NoError(t, err)
	assert.Empty(t, fn.LoopsInnermostFirst())
}

func TestGo_FunctionNotFound(t *testing.T) {
	_, err := Go([]byte(ifSource), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestGo_MethodDeclaration(t *testing.T) {
	src := `package p

type counter struct{ n int }

func (c *counter) bump() {
	c.n++
}
`
	fn, err := Go([]byte(src), "bump")
	require.NoError(t, err)
	require.NotNil(t, fn.Entry)
	require.NotEmpty(t, fn.Entry.Stmts)
	assert.Equal(t, "c.n++", fn.Entry.Stmts[0].Text)
}
