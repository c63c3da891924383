package irgen

import (
	"sort"

	"github.com/btrc-lang/btrc/internal/ast"
	"github.com/btrc-lang/btrc/internal/ir"
)

// lambdaBinding remembers that a local variable currently holds a lambda
// value produced by lowerLambda, so a later call through that same
// identifier can pass the closure's environment pointer alongside the
// function it names, rather than only ever calling a bare top-level
// function by its literal source name. Only calls that go through the
// exact identifier a closure was just bound to are recognized this way —
// passing a capturing lambda on as an ordinary value (returned, stored in a
// field, handed to another function) loses its captures, same as before
// this file existed.
type lambdaBinding struct {
	FuncName string
	Env      ir.Value
}

// freeVarsInLambda returns the sorted set of identifiers e's body reads
// that are not bound by its own parameters or by declarations inside its
// own body — the set a generated closure environment struct needs a slot
// for. A lambda nested inside e is treated as opaque: its own captures are
// resolved independently when it is itself lowered, so referencing an
// outer variable only from inside a nested lambda is not detected here.
func freeVarsInLambda(e *ast.LambdaExpr) []string {
	w := &freeVarWalker{free: map[string]bool{}}
	w.pushBound()
	for _, p := range e.Params {
		w.bind(p.Name)
	}
	if e.BlockBody != nil {
		w.walkBlock(e.BlockBody)
	} else {
		w.walkExpr(e.ExprBody)
	}
	w.popBound()
	names := make([]string, 0, len(w.free))
	for n := range w.free {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type freeVarWalker struct {
	bound []map[string]bool
	free  map[string]bool
}

func (w *freeVarWalker) pushBound() { w.bound = append(w.bound, map[string]bool{}) }
func (w *freeVarWalker) popBound()  { w.bound = w.bound[:len(w.bound)-1] }
func (w *freeVarWalker) bind(name string) {
	w.bound[len(w.bound)-1][name] = true
}
func (w *freeVarWalker) isBound(name string) bool {
	for i := len(w.bound) - 1; i >= 0; i-- {
		if w.bound[i][name] {
			return true
		}
	}
	return false
}

func (w *freeVarWalker) walkBlock(blk *ast.BlockStmt) {
	if blk == nil {
		return
	}
	w.pushBound()
	for _, s := range blk.Stmts {
		w.walkStmt(s)
	}
	w.popBound()
}

func (w *freeVarWalker) walkStmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.VarDeclStmt:
		w.walkExpr(s.Init)
		w.bind(s.Name)
	case *ast.AssignStmt:
		w.walkExpr(s.Value)
		w.walkTarget(s.Target)
	case *ast.ExprStmt:
		w.walkExpr(s.Expr)
	case *ast.IfStmt:
		w.walkExpr(s.Cond)
		w.walkStmt(s.Then)
		if s.Else != nil {
			w.walkStmt(s.Else)
		}
	case *ast.ForStmt:
		w.pushBound()
		if s.Init != nil {
			w.walkStmt(s.Init)
		}
		w.walkExpr(s.Cond)
		w.walkStmt(s.Body)
		if s.Post != nil {
			w.walkStmt(s.Post)
		}
		w.popBound()
	case *ast.ForInStmt:
		w.walkExpr(s.Collection)
		w.pushBound()
		w.bind(s.VarName)
		w.walkStmt(s.Body)
		w.popBound()
	case *ast.WhileStmt:
		w.walkExpr(s.Cond)
		w.walkStmt(s.Body)
	case *ast.DoWhileStmt:
		w.walkStmt(s.Body)
		w.walkExpr(s.Cond)
	case *ast.SwitchStmt:
		w.walkExpr(s.Tag)
		for _, c := range s.Cases {
			for _, v := range c.Values {
				w.walkExpr(v)
			}
			w.pushBound()
			for _, st := range c.Body {
				w.walkStmt(st)
			}
			w.popBound()
		}
		w.pushBound()
		for _, st := range s.Default {
			w.walkStmt(st)
		}
		w.popBound()
	case *ast.TryStmt:
		w.walkBlock(s.Body)
		for _, c := range s.Catches {
			w.pushBound()
			w.bind(c.Name)
			w.walkBlock(c.Body)
			w.popBound()
		}
		if s.Finally != nil {
			w.walkBlock(s.Finally)
		}
	case *ast.ThrowStmt:
		w.walkExpr(s.Value)
	case *ast.ReturnStmt:
		w.walkExpr(s.Value)
	case *ast.BlockStmt:
		w.walkBlock(s)
	case *ast.ParallelStmt:
		w.walkBlock(s.Body)
	}
}

func (w *freeVarWalker) walkTarget(e ast.Expr) {
	switch e := e.(type) {
	case *ast.Ident:
		w.walkExpr(e)
	case *ast.MemberExpr:
		w.walkExpr(e.Recv)
	case *ast.IndexExpr:
		w.walkExpr(e.Recv)
		w.walkExpr(e.Index)
	case *ast.TupleDestructureExpr:
		for _, n := range e.Names {
			if n != "_" {
				w.bind(n)
			}
		}
	}
}

func (w *freeVarWalker) walkExpr(e ast.Expr) {
	if e == nil {
		return
	}
	switch e := e.(type) {
	case *ast.Ident:
		if !w.isBound(e.Name) {
			w.free[e.Name] = true
		}
	case *ast.SelfExpr:
		w.free["self"] = true
	case *ast.FStringExpr:
		for _, c := range e.Chunks {
			w.walkExpr(c.Expr)
		}
	case *ast.MemberExpr:
		w.walkExpr(e.Recv)
	case *ast.IndexExpr:
		w.walkExpr(e.Recv)
		w.walkExpr(e.Index)
	case *ast.CallExpr:
		w.walkExpr(e.Callee)
		for _, a := range e.Args {
			w.walkExpr(a)
		}
	case *ast.UnaryExpr:
		w.walkExpr(e.Operand)
	case *ast.PostfixExpr:
		w.walkExpr(e.Operand)
	case *ast.BinaryExpr:
		w.walkExpr(e.Left)
		w.walkExpr(e.Right)
	case *ast.LogicalExpr:
		w.walkExpr(e.Left)
		w.walkExpr(e.Right)
	case *ast.NullCoalesceExpr:
		w.walkExpr(e.Left)
		w.walkExpr(e.Right)
	case *ast.TernaryExpr:
		w.walkExpr(e.Cond)
		w.walkExpr(e.Then)
		w.walkExpr(e.Else)
	case *ast.CastExpr:
		w.walkExpr(e.Operand)
	case *ast.NewExpr:
		for _, a := range e.Args {
			w.walkExpr(a)
		}
	case *ast.DeleteExpr:
		w.walkExpr(e.Operand)
	case *ast.TupleExpr:
		for _, el := range e.Elements {
			w.walkExpr(el)
		}
	case *ast.RangeExpr:
		w.walkExpr(e.Lo)
		w.walkExpr(e.Hi)
	}
}

// rewriteLambdaBody replaces every read of a name in captured with a member
// read off a synthetic "__env" parameter, so the lifted function body reads
// its captures out of the environment struct lowerLambda builds instead of
// closing over locals it can no longer see once lowered as a free-standing
// function.
func rewriteLambdaBody(body *ast.BlockStmt, captured map[string]bool) {
	r := &lambdaRewriter{captured: captured}
	r.pushBound()
	r.rewriteBlock(body)
	r.popBound()
}

type lambdaRewriter struct {
	bound    []map[string]bool
	captured map[string]bool
}

func (r *lambdaRewriter) pushBound() { r.bound = append(r.bound, map[string]bool{}) }
func (r *lambdaRewriter) popBound()  { r.bound = r.bound[:len(r.bound)-1] }
func (r *lambdaRewriter) bind(name string) {
	r.bound[len(r.bound)-1][name] = true
}
func (r *lambdaRewriter) shadowed(name string) bool {
	for i := len(r.bound) - 1; i >= 0; i-- {
		if r.bound[i][name] {
			return true
		}
	}
	return false
}
func (r *lambdaRewriter) captures(name string) bool {
	return r.captured[name] && !r.shadowed(name)
}

func envRead(name string) ast.Expr {
	return &ast.MemberExpr{Recv: &ast.Ident{Name: "__env"}, Name: name}
}

func (r *lambdaRewriter) rewriteBlock(blk *ast.BlockStmt) {
	if blk == nil {
		return
	}
	r.pushBound()
	for i := range blk.Stmts {
		blk.Stmts[i] = r.rewriteStmt(blk.Stmts[i])
	}
	r.popBound()
}

func (r *lambdaRewriter) rewriteStmt(s ast.Stmt) ast.Stmt {
	switch s := s.(type) {
	case *ast.VarDeclStmt:
		s.Init = r.rewriteExpr(s.Init)
		r.bind(s.Name)
	case *ast.AssignStmt:
		s.Value = r.rewriteExpr(s.Value)
		s.Target = r.rewriteTarget(s.Target)
	case *ast.ExprStmt:
		s.Expr = r.rewriteExpr(s.Expr)
	case *ast.IfStmt:
		s.Cond = r.rewriteExpr(s.Cond)
		s.Then = r.rewriteStmt(s.Then)
		if s.Else != nil {
			s.Else = r.rewriteStmt(s.Else)
		}
	case *ast.ForStmt:
		r.pushBound()
		if s.Init != nil {
			s.Init = r.rewriteStmt(s.Init)
		}
		s.Cond = r.rewriteExpr(s.Cond)
		s.Body = r.rewriteStmt(s.Body)
		if s.Post != nil {
			s.Post = r.rewriteStmt(s.Post)
		}
		r.popBound()
	case *ast.ForInStmt:
		s.Collection = r.rewriteExpr(s.Collection)
		r.pushBound()
		r.bind(s.VarName)
		s.Body = r.rewriteStmt(s.Body)
		r.popBound()
	case *ast.WhileStmt:
		s.Cond = r.rewriteExpr(s.Cond)
		s.Body = r.rewriteStmt(s.Body)
	case *ast.DoWhileStmt:
		s.Body = r.rewriteStmt(s.Body)
		s.Cond = r.rewriteExpr(s.Cond)
	case *ast.SwitchStmt:
		s.Tag = r.rewriteExpr(s.Tag)
		for ci := range s.Cases {
			for vi := range s.Cases[ci].Values {
				s.Cases[ci].Values[vi] = r.rewriteExpr(s.Cases[ci].Values[vi])
			}
			r.pushBound()
			for bi := range s.Cases[ci].Body {
				s.Cases[ci].Body[bi] = r.rewriteStmt(s.Cases[ci].Body[bi])
			}
			r.popBound()
		}
		r.pushBound()
		for i := range s.Default {
			s.Default[i] = r.rewriteStmt(s.Default[i])
		}
		r.popBound()
	case *ast.TryStmt:
		r.rewriteBlock(s.Body)
		for i := range s.Catches {
			r.pushBound()
			r.bind(s.Catches[i].Name)
			r.rewriteBlock(s.Catches[i].Body)
			r.popBound()
		}
		if s.Finally != nil {
			r.rewriteBlock(s.Finally)
		}
	case *ast.ThrowStmt:
		s.Value = r.rewriteExpr(s.Value)
	case *ast.ReturnStmt:
		s.Value = r.rewriteExpr(s.Value)
	case *ast.BlockStmt:
		r.rewriteBlock(s)
	case *ast.ParallelStmt:
		r.rewriteBlock(s.Body)
	}
	return s
}

func (r *lambdaRewriter) rewriteTarget(e ast.Expr) ast.Expr {
	switch t := e.(type) {
	case *ast.Ident:
		if r.captures(t.Name) {
			return envRead(t.Name)
		}
		return t
	case *ast.MemberExpr:
		t.Recv = r.rewriteExpr(t.Recv)
		return t
	case *ast.IndexExpr:
		t.Recv = r.rewriteExpr(t.Recv)
		t.Index = r.rewriteExpr(t.Index)
		return t
	case *ast.TupleDestructureExpr:
		for _, n := range t.Names {
			if n != "_" {
				r.bind(n)
			}
		}
		return t
	default:
		return e
	}
}

func (r *lambdaRewriter) rewriteExpr(e ast.Expr) ast.Expr {
	if e == nil {
		return nil
	}
	switch e := e.(type) {
	case *ast.Ident:
		if r.captures(e.Name) {
			return envRead(e.Name)
		}
		return e
	case *ast.SelfExpr:
		if r.captures("self") {
			return envRead("self")
		}
		return e
	case *ast.FStringExpr:
		for i := range e.Chunks {
			e.Chunks[i].Expr = r.rewriteExpr(e.Chunks[i].Expr)
		}
		return e
	case *ast.MemberExpr:
		e.Recv = r.rewriteExpr(e.Recv)
		return e
	case *ast.IndexExpr:
		e.Recv = r.rewriteExpr(e.Recv)
		e.Index = r.rewriteExpr(e.Index)
		return e
	case *ast.CallExpr:
		e.Callee = r.rewriteExpr(e.Callee)
		for i := range e.Args {
			e.Args[i] = r.rewriteExpr(e.Args[i])
		}
		return e
	case *ast.UnaryExpr:
		e.Operand = r.rewriteExpr(e.Operand)
		return e
	case *ast.PostfixExpr:
		e.Operand = r.rewriteExpr(e.Operand)
		return e
	case *ast.BinaryExpr:
		e.Left = r.rewriteExpr(e.Left)
		e.Right = r.rewriteExpr(e.Right)
		return e
	case *ast.LogicalExpr:
		e.Left = r.rewriteExpr(e.Left)
		e.Right = r.rewriteExpr(e.Right)
		return e
	case *ast.NullCoalesceExpr:
		e.Left = r.rewriteExpr(e.Left)
		e.Right = r.rewriteExpr(e.Right)
		return e
	case *ast.TernaryExpr:
		e.Cond = r.rewriteExpr(e.Cond)
		e.Then = r.rewriteExpr(e.Then)
		e.Else = r.rewriteExpr(e.Else)
		return e
	case *ast.CastExpr:
		e.Operand = r.rewriteExpr(e.Operand)
		return e
	case *ast.NewExpr:
		for i := range e.Args {
			e.Args[i] = r.rewriteExpr(e.Args[i])
		}
		return e
	case *ast.DeleteExpr:
		e.Operand = r.rewriteExpr(e.Operand)
		return e
	case *ast.TupleExpr:
		for i := range e.Elements {
			e.Elements[i] = r.rewriteExpr(e.Elements[i])
		}
		return e
	case *ast.RangeExpr:
		e.Lo = r.rewriteExpr(e.Lo)
		e.Hi = r.rewriteExpr(e.Hi)
		return e
	default:
		// LambdaExpr and everything else pass through untouched: a nested
		// lambda resolves its own captures independently when it is itself
		// lowered.
		return e
	}
}
