package smartstep

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/go-delve/steptest/pkg/logflags"
)

// Resolver turns the calls at a suspended position into method filters.
type Resolver struct {
	src Source
	log logflags.Logger
}

// NewResolver returns a Resolver reading source structure from src.
func NewResolver(src Source) *Resolver {
	return &Resolver{src: src, log: logflags.ResolverLogger()}
}

// Targets returns the call candidates at pos, in source order: an outer call
// comes before the calls nested in its arguments, siblings from left to
// right.
func (r *Resolver) Targets(pos Position) ([]Target, error) {
	targets, err := r.src.FindCallCandidates(pos)
	if err != nil {
		return nil, err
	}
	if logflags.Resolver() {
		for i, t := range targets {
			r.log.Debugf("%s candidate %d: %s", pos, i, t)
		}
	}
	return targets, nil
}

// Resolve returns one filter per call candidate at pos, in the order of
// Targets.
func (r *Resolver) Resolve(pos Position) ([]MethodFilter, error) {
	targets, err := r.Targets(pos)
	if err != nil {
		return nil, err
	}
	filters := make([]MethodFilter, len(targets))
	for i := range targets {
		filters[i] = targets[i].Filter()
	}
	return filters, nil
}

// candidates enumerates the calls intersecting pos.Line in the file the
// package was loaded for.
func (pkg *packageInfo) candidates(pos Position) ([]Target, error) {
	f := pkg.files[pkg.file]
	tf := pkg.fset.File(f.Pos())
	if tf == nil || pos.Line < 0 || pos.Line >= tf.LineCount() {
		return nil, &NoPositionError{Pos: pos, Err: fmt.Errorf("line out of range")}
	}

	c := &collector{pkg: pkg, file: f, tf: tf}
	c.lineStart = tf.LineStart(pos.Line + 1)
	if pos.Line+1 < tf.LineCount() {
		c.lineEnd = tf.LineStart(pos.Line + 2)
	} else {
		c.lineEnd = token.Pos(tf.Base() + tf.Size())
	}

	root := c.scope()
	if root == nil {
		return nil, nil
	}
	c.visit(root)
	return c.targets, nil
}

type collector struct {
	pkg  *packageInfo
	file *ast.File
	tf   *token.File

	lineStart, lineEnd token.Pos

	// outer is the line range of the outermost call being visited.
	outer *LineRange

	targets []Target
}

// scope returns the body of the innermost function containing the line, or
// nil if the line has no code.
func (c *collector) scope() ast.Node {
	src := c.pkg.src
	start, end := c.tf.Offset(c.lineStart), c.tf.Offset(c.lineEnd)
	if end > len(src) {
		end = len(src)
	}
	for start < end && isSpace(src[start]) {
		start++
	}
	for end > start && isSpace(src[end-1]) {
		end--
	}
	if start >= end {
		return nil
	}

	path, _ := astutil.PathEnclosingInterval(c.file, c.tf.Pos(start), c.tf.Pos(end))
	line := c.tf.Line(c.lineStart)
	for _, n := range path {
		var body *ast.BlockStmt
		switch n := n.(type) {
		case *ast.FuncLit:
			body = n.Body
		case *ast.FuncDecl:
			body = n.Body
		}
		if body == nil {
			continue
		}
		// A function whose opening brace is on this line is part of the
		// line, not its scope.
		if c.tf.Line(body.Lbrace) < line && c.tf.Pos(start) < body.Rbrace {
			return body
		}
	}
	// Package level code, like variable initializers.
	return c.file
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func (c *collector) intersects(n ast.Node) bool {
	return n.Pos() < c.lineEnd && n.End() > c.lineStart
}

func (c *collector) visit(root ast.Node) {
	ast.Inspect(root, func(n ast.Node) bool {
		if n == nil || !c.intersects(n) {
			return false
		}
		switch n := n.(type) {
		case *ast.FuncLit:
			// Only the body of the enclosing function is searched.
			return false
		case *ast.GoStmt:
			c.visitDeferred(n.Call)
			return false
		case *ast.DeferStmt:
			c.visitDeferred(n.Call)
			return false
		case *ast.CallExpr:
			c.call(n)
			return false
		}
		return true
	})
}

// visitDeferred visits the parts of a go or defer statement that are
// evaluated on the spot: the receiver and the arguments. The call itself
// runs later and is not a candidate.
func (c *collector) visitDeferred(call *ast.CallExpr) {
	switch fun := astutil.Unparen(call.Fun).(type) {
	case *ast.SelectorExpr:
		c.visit(fun.X)
	case *ast.FuncLit:
	default:
		c.visit(fun)
	}
	for _, arg := range call.Args {
		c.visit(arg)
	}
}

func (c *collector) call(call *ast.CallExpr) {
	if c.outer == nil {
		r := c.lines(call)
		c.outer = &r
		defer func() { c.outer = nil }()
	}

	if lit, ok := astutil.Unparen(call.Fun).(*ast.FuncLit); ok {
		c.add(c.lambda(lit, "func literal"))
		for _, arg := range call.Args {
			c.visit(arg)
		}
		return
	}

	t, ok := c.classify(call)
	if ok {
		c.add(t)
	}
	c.visit(call.Fun)
	for i, arg := range call.Args {
		lit, isLit := astutil.Unparen(arg).(*ast.FuncLit)
		switch {
		case isLit && ok:
			if c.intersects(lit) {
				c.add(c.lambda(lit, fmt.Sprintf("func literal argument %d of %s", i, t.Label)))
			}
		case isLit:
		default:
			c.visit(arg)
		}
	}
}

func (c *collector) add(t Target) {
	t.CallFile = c.pkg.file
	t.CallLines = *c.outer
	c.targets = append(c.targets, t)
}

func (c *collector) lambda(lit *ast.FuncLit, label string) Target {
	return Target{
		Kind:   LambdaTarget,
		Label:  label,
		Lambda: lit,
		File:   c.pkg.file,
		Lines:  c.lines(lit.Body),
	}
}

func (c *collector) lines(n ast.Node) LineRange {
	return LineRange{
		Start: c.pkg.fset.Position(n.Pos()).Line - 1,
		End:   c.pkg.fset.Position(n.End()).Line - 1,
	}
}

// classify returns the target for a call that is not an immediately invoked
// function literal. Conversions and builtins are not targets.
func (c *collector) classify(call *ast.CallExpr) (Target, bool) {
	info := c.pkg.info
	if tv, ok := info.Types[call.Fun]; ok && (tv.IsType() || tv.IsBuiltin()) {
		return Target{}, false
	}

	t := Target{Kind: OpaqueTarget}
	id := calleeIdent(call.Fun)
	if id != nil {
		switch obj := info.Uses[id].(type) {
		case *types.TypeName, *types.Builtin:
			return Target{}, false
		case *types.Func:
			fn := obj.Origin()
			t.Callee = fn
			t.Label = fn.Name()
			if decl, ok := c.pkg.decls[fn]; ok && decl.Body != nil {
				t.Kind = MethodTarget
				t.FuncName = funcName(fn)
				t.File = c.pkg.fset.Position(decl.Pos()).Filename
				t.Lines = c.lines(decl.Body)
				return t, true
			}
			if recv := fn.Type().(*types.Signature).Recv(); recv != nil && types.IsInterface(recv.Type()) {
				t.FuncName = fn.Name()
			} else {
				t.FuncName = funcName(fn)
			}
			t.Label = t.FuncName
			return t, true
		}
	}
	t.FuncName = c.opaqueName(call.Fun)
	t.Label = t.FuncName
	return t, true
}

// calleeIdent returns the identifier naming the callee of fun, if any.
func calleeIdent(fun ast.Expr) *ast.Ident {
	switch fun := astutil.Unparen(fun).(type) {
	case *ast.Ident:
		return fun
	case *ast.SelectorExpr:
		return fun.Sel
	case *ast.IndexExpr:
		return calleeIdent(fun.X)
	case *ast.IndexListExpr:
		return calleeIdent(fun.X)
	}
	return nil
}

// opaqueName returns the textual reference to an unresolved callee.
func (c *collector) opaqueName(fun ast.Expr) string {
	switch fun := astutil.Unparen(fun).(type) {
	case *ast.Ident:
		return fun.Name
	case *ast.SelectorExpr:
		if x, ok := fun.X.(*ast.Ident); ok {
			if pn, ok := c.pkg.info.Uses[x].(*types.PkgName); ok {
				return pn.Imported().Path() + "." + fun.Sel.Name
			}
			if c.pkg.info.Uses[x] == nil && c.pkg.info.Defs[x] == nil {
				// Unresolved package qualifier.
				return x.Name + "." + fun.Sel.Name
			}
		}
		return fun.Sel.Name
	case *ast.IndexExpr:
		return c.opaqueName(fun.X)
	case *ast.IndexListExpr:
		return c.opaqueName(fun.X)
	}
	return types.ExprString(fun)
}

// funcName returns the name the debugger uses for fn's frames.
func funcName(fn *types.Func) string {
	pkg := ""
	if fn.Pkg() != nil {
		pkg = fn.Pkg().Path() + "."
	}
	sig := fn.Type().(*types.Signature)
	if sig.Recv() == nil {
		return pkg + fn.Name()
	}
	recv := sig.Recv().Type()
	ptr := false
	if p, ok := recv.(*types.Pointer); ok {
		recv, ptr = p.Elem(), true
	}
	name := types.TypeString(recv, func(*types.Package) string { return "" })
	if named, ok := recv.(*types.Named); ok {
		name = named.Obj().Name()
	}
	if ptr {
		return fmt.Sprintf("%s(*%s).%s", pkg, name, fn.Name())
	}
	return pkg + name + "." + fn.Name()
}
