package graphio

import (
	"fmt"
	"strings"

	"github.com/calder-lang/ssaopt/pkg/ir"
)

// Dot renders fn in Graphviz dot format, one record-shaped node per block
// with its statements, and edge labels for branch arms.
func Dot(fn *ir.Func) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph %q {\n", fn.Name)
	sb.WriteString("  node [shape=box fontname=monospace];\n")

	for _, b := range fn.Blocks {
		var lines []string
		lines = append(lines, fmt.Sprintf("bb %d", b.Index))
		for _, phi := range b.Phis {
			lines = append(lines, fmt.Sprintf("%s = phi(%s)", phi.Result, strings.Join(phi.Args, ", ")))
		}
		for _, s := range b.Stmts {
			lines = append(lines, s.Text)
		}
		label := strings.Join(lines, "\\n")
		attrs := ""
		if b == fn.Entry {
			attrs = " penwidth=2"
		}
		fmt.Fprintf(&sb, "  n%d [label=%q%s];\n", b.Index, label, attrs)
	}

	for _, b := range fn.Blocks {
		for _, e := range b.Succs {
			label := ""
			switch {
			case e.Flags&ir.EdgeTrue != 0:
				label = " [label=\"T\"]"
			case e.Flags&ir.EdgeFalse != 0:
				label = " [label=\"F\"]"
			case e.Flags&ir.EdgeAbnormal != 0:
				label = " [style=dashed]"
			}
			fmt.Fprintf(&sb, "  n%d -> n%d%s;\n", e.Src.Index, e.Dest.Index, label)
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}
