// Package extract builds function graphs from Go source. It parses with
// tree-sitter and lowers the statement structure into ir blocks, edges, and
// loop records, giving the optimizer real code shapes to run on. The lowering
// is structural: conditions become branch terminators with true/false arms,
// for-loops become header/latch pairs with a loop record, returns route to a
// shared exit block.
package extract

import (
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/calder-lang/ssaopt/pkg/ir"
)

type goExtractor struct {
	content []byte
	fn      *ir.Func
	exit    *ir.Block

	// Innermost-last stacks for loop membership and break/continue
	// targets.
	loops     []*ir.Loop
	breaks    []*ir.Block
	continues []*ir.Block
}

// GoFile extracts the graph of one function from a Go source file.
func GoFile(path, function string) (*ir.Func, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return Go(content, function)
}

// Go extracts the graph of one function from Go source text.
func Go(content []byte, function string) (*ir.Func, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())
	tree := parser.Parse(nil, content)
	defer tree.Close()

	ex := &goExtractor{content: content}
	funcNode := ex.findFunction(tree.RootNode(), function)
	if funcNode == nil {
		return nil, fmt.Errorf("function %q not found", function)
	}
	body := funcNode.ChildByFieldName("body")
	if body == nil {
		return nil, fmt.Errorf("function %q has no body", function)
	}

	ex.fn = ir.NewFunc(function)
	entry := ex.newBlock()
	ex.fn.Entry = entry

	cur := entry
	ex.processBlock(body, &cur)
	if len(cur.Succs) == 0 {
		e := ex.fn.MakeEdge(cur, ex.exitBlock(), ir.EdgeFallthru)
		e.Probability = ir.ProbAlways
	}
	return ex.fn, nil
}

func (ex *goExtractor) findFunction(node *sitter.Node, name string) *sitter.Node {
	if node == nil {
		return nil
	}
	switch node.Type() {
	case "function_declaration":
		if id := ex.findChildByType(node, "identifier"); id != nil && ex.text(id) == name {
			return node
		}
	case "method_declaration":
		if id := ex.findChildByType(node, "field_identifier"); id != nil && ex.text(id) == name {
			return node
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := ex.findFunction(node.Child(i), name); found != nil {
			return found
		}
	}
	return nil
}

func (ex *goExtractor) newBlock() *ir.Block {
	b := ex.fn.NewBlock()
	if n := len(ex.loops); n > 0 {
		b.Loop = ex.loops[n-1]
	}
	return b
}

// exitBlock lazily creates the shared function exit.
func (ex *goExtractor) exitBlock() *ir.Block {
	if ex.exit == nil {
		ex.exit = ex.fn.NewBlock()
	}
	return ex.exit
}

func (ex *goExtractor) enclosingLoop() *ir.Loop {
	if n := len(ex.loops); n > 0 {
		return ex.loops[n-1]
	}
	return nil
}

func (ex *goExtractor) processBlock(node *sitter.Node, cur **ir.Block) {
	if node == nil {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "if_statement":
			ex.processIf(child, cur)
		case "for_statement":
			ex.processFor(child, cur)
		case "expression_switch_statement", "type_switch_statement":
			ex.processSwitch(child, cur)
		case "return_statement":
			ex.processReturn(child, cur)
		case "break_statement":
			ex.processJump(child, cur, ex.breaks)
		case "continue_statement":
			ex.processJump(child, cur, ex.continues)
		case "comment", "{", "}", ";", "\n":
			// Structural tokens and comments carry no statements.
		default:
			if text := strings.TrimSpace(ex.text(child)); text != "" {
				(*cur).Stmts = append((*cur).Stmts, ir.Stmt{Kind: ir.StmtPlain, Text: text})
			}
		}
	}
}

func (ex *goExtractor) processIf(node *sitter.Node, cur **ir.Block) {
	if init := node.ChildByFieldName("initializer"); init != nil {
		(*cur).Stmts = append((*cur).Stmts, ir.Stmt{Kind: ir.StmtPlain, Text: ex.text(init)})
	}
	cond := ex.text(node.ChildByFieldName("condition"))
	(*cur).Stmts = append((*cur).Stmts, ir.Stmt{Kind: ir.StmtCond, Text: "if " + cond})

	thenB := ex.newBlock()
	te := ex.fn.MakeEdge(*cur, thenB, ir.EdgeTrue)
	te.Probability = ir.ProbAlways / 2
	thenEnd := thenB
	ex.processBlock(node.ChildByFieldName("consequence"), &thenEnd)

	alt := node.ChildByFieldName("alternative")
	if alt == nil {
		join := ex.newBlock()
		fe := ex.fn.MakeEdge(*cur, join, ir.EdgeFalse)
		fe.Probability = ir.ProbAlways / 2
		ex.joinInto(thenEnd, join)
		*cur = join
		return
	}

	elseB := ex.newBlock()
	fe := ex.fn.MakeEdge(*cur, elseB, ir.EdgeFalse)
	fe.Probability = ir.ProbAlways / 2
	elseEnd := elseB
	// "else if" chains hang an if_statement directly off the alternative.
	if inner := ex.findChildByType(alt, "if_statement"); inner != nil {
		ex.processIf(inner, &elseEnd)
	} else {
		ex.processBlock(alt, &elseEnd)
	}

	join := ex.newBlock()
	ex.joinInto(thenEnd, join)
	ex.joinInto(elseEnd, join)
	*cur = join
}

// joinInto adds the fallthrough from an arm's last block to the join point,
// unless the arm already left the graph (returned, broke, or continued).
func (ex *goExtractor) joinInto(end, join *ir.Block) {
	if end == nil || len(end.Succs) > 0 {
		return
	}
	e := ex.fn.MakeEdge(end, join, ir.EdgeFallthru)
	e.Probability = ir.ProbAlways
}

func (ex *goExtractor) processFor(node *sitter.Node, cur **ir.Block) {
	body := node.ChildByFieldName("body")

	// The loop shape hides in an optional clause: a classic three-part
	// for_clause, a range_clause, a bare condition expression, or nothing
	// at all for `for {}`.
	var initN, condN, postN *sitter.Node
	var condText string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		c := node.NamedChild(i)
		if c == nil || (body != nil && c.StartByte() == body.StartByte() && c.EndByte() == body.EndByte()) {
			continue
		}
		switch c.Type() {
		case "for_clause":
			initN = c.ChildByFieldName("initializer")
			condN = c.ChildByFieldName("condition")
			postN = c.ChildByFieldName("update")
		case "range_clause":
			condN = c
		default:
			condN = c
		}
	}
	if condN != nil {
		condText = ex.text(condN)
	}

	if initN != nil {
		(*cur).Stmts = append((*cur).Stmts, ir.Stmt{Kind: ir.StmtPlain, Text: ex.text(initN)})
	}

	// The after-block belongs to the enclosing loop, so allocate it before
	// entering the new one.
	after := ex.newBlock()

	header := ex.newBlock()
	e := ex.fn.MakeEdge(*cur, header, ir.EdgeFallthru)
	e.Probability = ir.ProbAlways

	l := ex.fn.AddLoop(&ir.Loop{Header: header}, ex.enclosingLoop())
	header.Loop = l
	ex.loops = append(ex.loops, l)
	ex.breaks = append(ex.breaks, after)

	bodyB := ex.newBlock()
	if condText != "" {
		header.Stmts = append(header.Stmts, ir.Stmt{Kind: ir.StmtCond, Text: "for " + condText})
		be := ex.fn.MakeEdge(header, bodyB, ir.EdgeTrue)
		be.Probability = ir.ProbAlways * 9 / 10
		ae := ex.fn.MakeEdge(header, after, ir.EdgeFalse)
		ae.Probability = ir.ProbAlways / 10
	} else {
		be := ex.fn.MakeEdge(header, bodyB, ir.EdgeFallthru)
		be.Probability = ir.ProbAlways
	}

	// A dedicated latch runs the post-statement, so continue has a single
	// target and the loop a single back edge.
	latch := ex.newBlock()
	ex.continues = append(ex.continues, latch)

	bodyEnd := bodyB
	ex.processBlock(body, &bodyEnd)
	ex.joinInto(bodyEnd, latch)

	if postN != nil {
		latch.Stmts = append(latch.Stmts, ir.Stmt{Kind: ir.StmtPlain, Text: ex.text(postN)})
	}
	le := ex.fn.MakeEdge(latch, header, ir.EdgeFallthru)
	le.Probability = ir.ProbAlways
	l.Latch = latch

	ex.loops = ex.loops[:len(ex.loops)-1]
	ex.breaks = ex.breaks[:len(ex.breaks)-1]
	ex.continues = ex.continues[:len(ex.continues)-1]

	*cur = after
}

func (ex *goExtractor) processSwitch(node *sitter.Node, cur **ir.Block) {
	label := "switch"
	if v := node.ChildByFieldName("value"); v != nil {
		label += " " + ex.text(v)
	}
	(*cur).Stmts = append((*cur).Stmts, ir.Stmt{Kind: ir.StmtSwitch, Text: label})
	sw := *cur

	join := ex.newBlock()
	hasDefault := false
	for i := 0; i < int(node.NamedChildCount()); i++ {
		c := node.NamedChild(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "expression_case", "type_case", "default_case":
			if c.Type() == "default_case" {
				hasDefault = true
			}
			cb := ex.newBlock()
			cb.Stmts = append(cb.Stmts, ir.Stmt{Kind: ir.StmtLabel, Text: ex.caseLabel(c)})
			ex.fn.MakeEdge(sw, cb, 0)
			end := cb
			ex.processBlock(c, &end)
			ex.joinInto(end, join)
		}
	}
	if !hasDefault {
		ex.fn.MakeEdge(sw, join, 0)
	}
	*cur = join
}

// caseLabel renders just the head of a case clause, without its statements.
func (ex *goExtractor) caseLabel(c *sitter.Node) string {
	if c.Type() == "default_case" {
		return "default"
	}
	var parts []string
	for i := 0; i < int(c.NamedChildCount()); i++ {
		n := c.NamedChild(i)
		if n == nil {
			break
		}
		t := n.Type()
		if t == "expression_list" || strings.HasSuffix(t, "_literal") ||
			t == "identifier" || t == "type_identifier" || strings.HasSuffix(t, "_expression") {
			parts = append(parts, ex.text(n))
			continue
		}
		break
	}
	return "case " + strings.Join(parts, ", ")
}

func (ex *goExtractor) processReturn(node *sitter.Node, cur **ir.Block) {
	(*cur).Stmts = append((*cur).Stmts, ir.Stmt{Kind: ir.StmtGoto, Text: ex.text(node)})
	e := ex.fn.MakeEdge(*cur, ex.exitBlock(), ir.EdgeFallthru)
	e.Probability = ir.ProbAlways
	// Statements after a return are unreachable but still get a block.
	*cur = ex.newBlock()
}

// processJump lowers break/continue against the innermost target stack.
func (ex *goExtractor) processJump(node *sitter.Node, cur **ir.Block, targets []*ir.Block) {
	(*cur).Stmts = append((*cur).Stmts, ir.Stmt{Kind: ir.StmtGoto, Text: ex.text(node)})
	if n := len(targets); n > 0 {
		e := ex.fn.MakeEdge(*cur, targets[n-1], ir.EdgeFallthru)
		e.Probability = ir.ProbAlways
	}
	*cur = ex.newBlock()
}

func (ex *goExtractor) findChildByType(node *sitter.Node, childType string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if c := node.Child(i); c != nil && c.Type() == childType {
			return c
		}
	}
	return nil
}

func (ex *goExtractor) text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if start >= uint32(len(ex.content)) || end > uint32(len(ex.content)) {
		return ""
	}
	return string(ex.content[start:end])
}
