// Package graphio reads and writes the textual and binary forms of a function
// graph: a YAML description of blocks, edges, loops, and thread requests on
// the way in, Graphviz dot and YAML dumps on the way out, and msgpack
// snapshots for fast re-load.
package graphio

import (
	"errors"
	"fmt"

	"github.com/calder-lang/ssaopt/pkg/ir"
	"github.com/calder-lang/ssaopt/pkg/thread"
)

// ErrMalformed is wrapped by every structural validation error.
var ErrMalformed = errors.New("malformed graph")

// Graph is the serializable form of a function graph.
type Graph struct {
	Name    string   `yaml:"name" json:"name"`
	Entry   int      `yaml:"entry" json:"entry"`
	Blocks  []Block  `yaml:"blocks" json:"blocks"`
	Edges   []Edge   `yaml:"edges" json:"edges"`
	Loops   []Loop   `yaml:"loops,omitempty" json:"loops,omitempty"`
	Threads []Thread `yaml:"threads,omitempty" json:"threads,omitempty"`
}

// Block describes one basic block. Loop refers to a Loop.ID; zero or absent
// means the block is outside every loop. Phi arguments are keyed by the
// source block of the incoming edge they belong to.
type Block struct {
	ID        int    `yaml:"id" json:"id"`
	Stmts     []Stmt `yaml:"stmts,omitempty" json:"stmts,omitempty"`
	Phis      []Phi  `yaml:"phis,omitempty" json:"phis,omitempty"`
	Loop      int    `yaml:"loop,omitempty" json:"loop,omitempty"`
	Count     uint64 `yaml:"count,omitempty" json:"count,omitempty"`
	Frequency int    `yaml:"frequency,omitempty" json:"frequency,omitempty"`
}

type Stmt struct {
	Kind string `yaml:"kind" json:"kind"`
	Text string `yaml:"text,omitempty" json:"text,omitempty"`
}

type Phi struct {
	Result string         `yaml:"result" json:"result"`
	Args   map[int]string `yaml:"args,omitempty" json:"args,omitempty"`
}

type Edge struct {
	From        int      `yaml:"from" json:"from"`
	To          int      `yaml:"to" json:"to"`
	Flags       []string `yaml:"flags,omitempty" json:"flags,omitempty"`
	Count       uint64   `yaml:"count,omitempty" json:"count,omitempty"`
	Probability int      `yaml:"probability,omitempty" json:"probability,omitempty"`
}

// Loop describes one natural loop. IDs start at 1; Parent zero means the loop
// nests directly in the function.
type Loop struct {
	ID     int `yaml:"id" json:"id"`
	Header int `yaml:"header" json:"header"`
	Latch  int `yaml:"latch,omitempty" json:"latch,omitempty"`
	Parent int `yaml:"parent,omitempty" json:"parent,omitempty"`
}

// Thread is one jump-thread request: the first step is the incoming edge,
// the rest name the blocks copied along the way.
type Thread struct {
	Steps []Step `yaml:"steps" json:"steps"`
}

type Step struct {
	From int    `yaml:"from" json:"from"`
	To   int    `yaml:"to" json:"to"`
	Kind string `yaml:"kind" json:"kind"`
}

var stmtKinds = map[string]ir.StmtKind{
	"plain":  ir.StmtPlain,
	"label":  ir.StmtLabel,
	"nop":    ir.StmtNop,
	"cond":   ir.StmtCond,
	"goto":   ir.StmtGoto,
	"switch": ir.StmtSwitch,
}

var stmtKindNames = map[ir.StmtKind]string{
	ir.StmtPlain:  "plain",
	ir.StmtLabel:  "label",
	ir.StmtNop:    "nop",
	ir.StmtCond:   "cond",
	ir.StmtGoto:   "goto",
	ir.StmtSwitch: "switch",
}

var edgeFlags = map[string]ir.EdgeFlags{
	"fallthru": ir.EdgeFallthru,
	"true":     ir.EdgeTrue,
	"false":    ir.EdgeFalse,
	"abnormal": ir.EdgeAbnormal,
}

var copyKinds = map[string]thread.CopyKind{
	"start":  thread.StartThread,
	"normal": thread.NormalCopy,
	"joiner": thread.JoinerCopy,
	"nocopy": thread.NoCopy,
}

// Build materializes the graph into an ir.Func plus its thread requests.
func (g *Graph) Build() (*ir.Func, []thread.Path, error) {
	if len(g.Blocks) == 0 {
		return nil, nil, fmt.Errorf("graph %q has no blocks: %w", g.Name, ErrMalformed)
	}

	f := ir.NewFunc(g.Name)
	blocks := make(map[int]*ir.Block, len(g.Blocks))
	for _, bs := range g.Blocks {
		if _, dup := blocks[bs.ID]; dup {
			return nil, nil, fmt.Errorf("duplicate block id %d: %w", bs.ID, ErrMalformed)
		}
		b := f.NewBlock()
		b.Count = bs.Count
		b.Frequency = bs.Frequency
		for _, ss := range bs.Stmts {
			kind, ok := stmtKinds[ss.Kind]
			if !ok {
				return nil, nil, fmt.Errorf("block %d: unknown statement kind %q: %w", bs.ID, ss.Kind, ErrMalformed)
			}
			b.Stmts = append(b.Stmts, ir.Stmt{Kind: kind, Text: ss.Text})
		}
		blocks[bs.ID] = b
	}

	entry, ok := blocks[g.Entry]
	if !ok {
		return nil, nil, fmt.Errorf("entry block %d not defined: %w", g.Entry, ErrMalformed)
	}
	f.Entry = entry

	loops := make(map[int]*ir.Loop, len(g.Loops))
	for _, ls := range g.Loops {
		if ls.ID == 0 {
			return nil, nil, fmt.Errorf("loop id 0 is reserved: %w", ErrMalformed)
		}
		loops[ls.ID] = &ir.Loop{}
	}
	for _, ls := range g.Loops {
		l := loops[ls.ID]
		header, ok := blocks[ls.Header]
		if !ok {
			return nil, nil, fmt.Errorf("loop %d: unknown header block %d: %w", ls.ID, ls.Header, ErrMalformed)
		}
		l.Header = header
		if ls.Latch != 0 {
			latch, ok := blocks[ls.Latch]
			if !ok {
				return nil, nil, fmt.Errorf("loop %d: unknown latch block %d: %w", ls.ID, ls.Latch, ErrMalformed)
			}
			l.Latch = latch
		}
		var parent *ir.Loop
		if ls.Parent != 0 {
			if parent, ok = loops[ls.Parent]; !ok {
				return nil, nil, fmt.Errorf("loop %d: unknown parent loop %d: %w", ls.ID, ls.Parent, ErrMalformed)
			}
		}
		f.AddLoop(l, parent)
	}
	for _, bs := range g.Blocks {
		if bs.Loop == 0 {
			continue
		}
		l, ok := loops[bs.Loop]
		if !ok {
			return nil, nil, fmt.Errorf("block %d: unknown loop %d: %w", bs.ID, bs.Loop, ErrMalformed)
		}
		blocks[bs.ID].Loop = l
	}

	for _, es := range g.Edges {
		src, ok := blocks[es.From]
		if !ok {
			return nil, nil, fmt.Errorf("edge %d->%d: unknown source block: %w", es.From, es.To, ErrMalformed)
		}
		dest, ok := blocks[es.To]
		if !ok {
			return nil, nil, fmt.Errorf("edge %d->%d: unknown destination block: %w", es.From, es.To, ErrMalformed)
		}
		var flags ir.EdgeFlags
		for _, fl := range es.Flags {
			bit, ok := edgeFlags[fl]
			if !ok {
				return nil, nil, fmt.Errorf("edge %d->%d: unknown flag %q: %w", es.From, es.To, fl, ErrMalformed)
			}
			flags |= bit
		}
		e := f.MakeEdge(src, dest, flags)
		e.Count = es.Count
		e.Probability = es.Probability
	}

	// Phis go in after edges so each gets one argument slot per incoming
	// edge.
	for _, bs := range g.Blocks {
		b := blocks[bs.ID]
		for _, ps := range bs.Phis {
			phi := &ir.Phi{Result: ps.Result, Args: make([]string, len(b.Preds))}
			for from, arg := range ps.Args {
				src, ok := blocks[from]
				if !ok {
					return nil, nil, fmt.Errorf("block %d: phi %s: unknown source block %d: %w", bs.ID, ps.Result, from, ErrMalformed)
				}
				e := f.FindEdge(src, b)
				if e == nil {
					return nil, nil, fmt.Errorf("block %d: phi %s: no edge from block %d: %w", bs.ID, ps.Result, from, ErrMalformed)
				}
				phi.Args[b.PredIndex(e)] = arg
			}
			b.Phis = append(b.Phis, phi)
		}
	}

	var paths []thread.Path
	for i, ts := range g.Threads {
		var p thread.Path
		for _, ss := range ts.Steps {
			kind, ok := copyKinds[ss.Kind]
			if !ok {
				return nil, nil, fmt.Errorf("thread %d: unknown step kind %q: %w", i, ss.Kind, ErrMalformed)
			}
			src, dest := blocks[ss.From], blocks[ss.To]
			if src == nil || dest == nil {
				return nil, nil, fmt.Errorf("thread %d: unknown block in step %d->%d: %w", i, ss.From, ss.To, ErrMalformed)
			}
			e := f.FindEdge(src, dest)
			if e == nil {
				return nil, nil, fmt.Errorf("thread %d: no edge %d->%d: %w", i, ss.From, ss.To, ErrMalformed)
			}
			p = append(p, &thread.Step{E: e, Kind: kind})
		}
		paths = append(paths, p)
	}

	return f, paths, nil
}

// Dump converts fn back to its serializable form. Block ids are the blocks'
// indices; loop ids are assigned innermost-first starting at 1.
func Dump(fn *ir.Func) *Graph {
	g := &Graph{Name: fn.Name}
	if fn.Entry != nil {
		g.Entry = fn.Entry.Index
	}

	loopIDs := map[*ir.Loop]int{fn.Root: 0}
	for _, l := range fn.LoopsInnermostFirst() {
		loopIDs[l] = len(loopIDs)
	}
	for _, l := range fn.LoopsInnermostFirst() {
		ls := Loop{ID: loopIDs[l], Parent: loopIDs[l.Parent]}
		if l.Header != nil {
			ls.Header = l.Header.Index
		}
		if l.Latch != nil {
			ls.Latch = l.Latch.Index
		}
		g.Loops = append(g.Loops, ls)
	}

	for _, b := range fn.Blocks {
		bs := Block{
			ID:        b.Index,
			Loop:      loopIDs[b.Loop],
			Count:     b.Count,
			Frequency: b.Frequency,
		}
		for _, s := range b.Stmts {
			bs.Stmts = append(bs.Stmts, Stmt{Kind: stmtKindNames[s.Kind], Text: s.Text})
		}
		for _, phi := range b.Phis {
			ps := Phi{Result: phi.Result, Args: make(map[int]string, len(phi.Args))}
			for i, e := range b.Preds {
				ps.Args[e.Src.Index] = phi.Args[i]
			}
			bs.Phis = append(bs.Phis, ps)
		}
		g.Blocks = append(g.Blocks, bs)

		for _, e := range b.Succs {
			es := Edge{
				From:        e.Src.Index,
				To:          e.Dest.Index,
				Count:       e.Count,
				Probability: e.Probability,
			}
			for _, name := range []string{"fallthru", "true", "false", "abnormal"} {
				if e.Flags&edgeFlags[name] != 0 {
					es.Flags = append(es.Flags, name)
				}
			}
			g.Edges = append(g.Edges, es)
		}
	}
	return g
}
