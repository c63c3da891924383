package irgen

import (
	"fmt"

	"github.com/btrc-lang/btrc/internal/ast"
	"github.com/btrc-lang/btrc/internal/ir"
	"github.com/btrc-lang/btrc/internal/sema"
)

// fb ("function builder") accumulates the blocks of one lowered function
// and tracks the name uniquification and break/continue targets active
// while walking its body.
type fb struct {
	g   *Generator
	res *sema.Result

	fn  *ir.Function
	cur *ir.Block

	scopes []map[string]string
	types  []map[string]ast.Type
	used   map[string]int

	breakLabels    []string
	continueLabels []string

	helpers map[string]bool
	self    string   // "" if this function has no receiver
	retType ast.Type // declared return type, for return-value coercion

	// lambdaEnvs maps a lowered lambda's generated function name to the
	// environment pointer allocated for it at its literal's lowering site,
	// for lambdaBindings to pick up when that lambda is bound to a
	// variable.
	lambdaEnvs map[string]ir.Value
	// lambdaBindings maps a local's IR name to the closure currently bound
	// to it, so a call through that same local can pass the environment
	// pointer through instead of calling a bare function pointer.
	lambdaBindings map[string]lambdaBinding
}

func (g *Generator) lowerFunc(name string, decl *ast.FuncDecl, selfType ast.Type, className string) {
	fn := &ir.Function{Name: name, Ret: lowerType(decl.Ret)}
	b := &fb{
		g: g, res: g.res, fn: fn,
		used:           map[string]int{},
		helpers:        map[string]bool{},
		lambdaEnvs:     map[string]ir.Value{},
		lambdaBindings: map[string]lambdaBinding{},
		retType:        decl.Ret,
	}
	b.pushScope()

	if selfType != nil {
		fn.Params = append(fn.Params, ir.Param{Name: "self", Type: lowerType(selfType)})
		b.defineTyped("self", selfType)
		b.self = className
	}
	for _, p := range decl.Params {
		irName := b.defineTyped(p.Name, p.Type)
		fn.Params = append(fn.Params, ir.Param{Name: irName, Type: lowerType(p.Type)})
	}

	b.newBlock("entry")
	if decl.Body != nil {
		b.lowerBlock(decl.Body)
	}
	b.terminateFallthrough(decl.Ret)
	b.popScope()

	for h := range b.helpers {
		fn.HelperDeps = append(fn.HelperDeps, h)
	}
	fn.Blocks = b.fn.Blocks
	g.functions[name] = fn
}

// terminateFallthrough ensures every block ends in a terminator; a function
// whose body falls off the end without an explicit return gets an implicit
// one, void functions returning nothing and others returning a zeroed
// value.
func (b *fb) terminateFallthrough(ret ast.Type) {
	if b.cur == nil {
		return
	}
	if len(b.cur.Instrs) > 0 && isTerminator(b.cur.Instrs[len(b.cur.Instrs)-1]) {
		return
	}
	if ret == nil {
		b.emit(&ir.Ret{})
		return
	}
	if _, ok := ret.(*ast.PrimitiveType); ok && ret.(*ast.PrimitiveType).Kind == ast.TVoid {
		b.emit(&ir.Ret{})
		return
	}
	b.emit(&ir.Ret{Value: zeroValue(lowerType(ret))})
}

func isTerminator(i ir.Instr) bool {
	switch i.(type) {
	case *ir.Ret, *ir.Br, *ir.CondBr, *ir.Throw:
		return true
	}
	return false
}

func zeroValue(t ir.Type) ir.Value {
	switch t.(type) {
	case *ir.TInt, *ir.TChar, *ir.TBool:
		return &ir.ValueConstInt{Type: t}
	case *ir.TFloat, *ir.TDouble:
		return &ir.ValueConstFloat{Type: t}
	default:
		return &ir.ValueNull{Type: t}
	}
}

// --- scope / naming ------------------------------------------------------

func (b *fb) pushScope() {
	b.scopes = append(b.scopes, map[string]string{})
	b.types = append(b.types, map[string]ast.Type{})
}
func (b *fb) popScope() {
	b.scopes = b.scopes[:len(b.scopes)-1]
	b.types = b.types[:len(b.types)-1]
}

func (b *fb) define(name string) string {
	return b.defineTyped(name, nil)
}

// defineTyped binds name to a fresh flat-C identifier the way define does,
// additionally recording its declared type so later reads (identIsReference,
// staticType) don't need to re-derive it.
func (b *fb) defineTyped(name string, ty ast.Type) string {
	irName := name
	if n := b.used[name]; n > 0 {
		irName = fmt.Sprintf("%s_%d", name, n)
	}
	b.used[name]++
	b.scopes[len(b.scopes)-1][name] = irName
	b.types[len(b.types)-1][name] = ty
	return irName
}

func (b *fb) resolve(name string) (string, bool) {
	for i := len(b.scopes) - 1; i >= 0; i-- {
		if v, ok := b.scopes[i][name]; ok {
			return v, true
		}
	}
	return "", false
}

// recordLambdaBinding notes that irName now holds val, and if val is the
// function pointer a capturing lambda literal just produced, remembers its
// environment alongside it so a later call through irName can pass it in.
// Binding a non-capturing lambda, or any other value, clears any stale
// binding irName previously held.
func (b *fb) recordLambdaBinding(irName string, val ir.Value) {
	if g, ok := val.(*ir.ValueGlobal); ok {
		if env, ok := b.lambdaEnvs[g.Name]; ok {
			b.lambdaBindings[irName] = lambdaBinding{FuncName: g.Name, Env: env}
			return
		}
	}
	delete(b.lambdaBindings, irName)
}

// resolveType returns the declared type of the local most recently bound to
// name, if known (nil for parameters/locals lowered without a static type).
func (b *fb) resolveType(name string) (ast.Type, bool) {
	for i := len(b.types) - 1; i >= 0; i-- {
		if ty, ok := b.types[i][name]; ok {
			return ty, ty != nil
		}
	}
	return nil, false
}

func (b *fb) addHelper(name string) { b.helpers[name] = true }

// --- block/instruction plumbing ------------------------------------------

func (b *fb) newBlock(label string) *ir.Block {
	blk := &ir.Block{Label: label}
	b.fn.Blocks = append(b.fn.Blocks, blk)
	b.cur = blk
	return blk
}

func (b *fb) emit(i ir.Instr) {
	if b.cur == nil {
		return
	}
	b.cur.Instrs = append(b.cur.Instrs, i)
}

func (b *fb) terminated() bool {
	if b.cur == nil || len(b.cur.Instrs) == 0 {
		return false
	}
	return isTerminator(b.cur.Instrs[len(b.cur.Instrs)-1])
}

// --- statements ------------------------------------------------------------

func (b *fb) lowerBlock(blk *ast.BlockStmt) {
	b.pushScope()
	for _, s := range blk.Stmts {
		b.lowerStmt(s)
	}
	b.popScope()
}

func (b *fb) lowerStmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.VarDeclStmt:
		b.lowerVarDecl(s)
	case *ast.AssignStmt:
		b.lowerAssign(s)
	case *ast.ExprStmt:
		b.lowerExprForEffect(s.Expr)
	case *ast.IfStmt:
		b.lowerIf(s)
	case *ast.ForStmt:
		b.lowerFor(s)
	case *ast.ForInStmt:
		b.lowerForIn(s)
	case *ast.WhileStmt:
		b.lowerWhile(s)
	case *ast.DoWhileStmt:
		b.lowerDoWhile(s)
	case *ast.SwitchStmt:
		b.lowerSwitch(s)
	case *ast.TryStmt:
		b.lowerTry(s)
	case *ast.ThrowStmt:
		b.addHelper("trycatch")
		b.emit(&ir.Throw{Value: b.lowerExpr(s.Value)})
	case *ast.ReturnStmt:
		if s.Value != nil {
			v := b.lowerExpr(s.Value)
			if b.retType != nil {
				v = b.coerceForInterface(v, b.staticType(s.Value), b.retType)
			}
			b.emit(&ir.Ret{Value: v})
		} else {
			b.emit(&ir.Ret{})
		}
	case *ast.BreakStmt:
		if len(b.breakLabels) > 0 {
			b.emit(&ir.Br{Target: b.breakLabels[len(b.breakLabels)-1]})
		}
	case *ast.ContinueStmt:
		if len(b.continueLabels) > 0 {
			b.emit(&ir.Br{Target: b.continueLabels[len(b.continueLabels)-1]})
		}
	case *ast.BlockStmt:
		b.lowerBlock(s)
	case *ast.ParallelStmt:
		b.lowerParallel(s)
	}
}

func (b *fb) lowerVarDecl(s *ast.VarDeclStmt) {
	ty := s.Type
	if ty == nil {
		ty = &ast.PrimitiveType{Kind: ast.TInt}
	}
	irTy := lowerType(ty)
	irName := b.defineTyped(s.Name, ty)
	b.emit(&ir.Alloc{Dest: irName, Type: irTy})
	if s.Init != nil {
		val := b.lowerExpr(s.Init)
		val = b.coerceForInterface(val, b.staticType(s.Init), ty)
		b.emit(&ir.Assign{Dest: irName, Value: val})
		b.recordLambdaBinding(irName, val)
		if b.res.UsesKeep && isReferenceType(ty, b.res) {
			b.addHelper("arc")
			b.emit(&ir.Retain{V: &ir.ValueTemp{Name: irName, Type: irTy}})
		}
		return
	}
	// A built-in Vector/List/Array/Map/Set declared without an initializer
	// still needs its backing storage allocated, since there is no "new"
	// syntax for these (they have no constructor, only "_new").
	if nt, ok := ty.(*ast.NamedType); ok && isBuiltinCollectionName(nt.Name) {
		mangled := mangleNamed(nt)
		tmp := b.g.newTemp()
		b.emit(&ir.Call{Dest: tmp, Type: irTy, Func: mangled + "_new"})
		b.emit(&ir.Assign{Dest: irName, Value: &ir.ValueTemp{Name: tmp}})
	}
}

func (b *fb) lowerAssign(s *ast.AssignStmt) {
	switch target := s.Target.(type) {
	case *ast.Ident:
		irName, ok := b.resolve(target.Name)
		if !ok {
			irName = target.Name // file-scope global
		}
		newVal := b.lowerCompoundValue(s.Op, &ir.ValueTemp{Name: irName}, s.Value)
		if s.Op == ast.AssignSet {
			if declTy, ok := b.resolveType(target.Name); ok {
				newVal = b.coerceForInterface(newVal, b.staticType(s.Value), declTy)
			}
		}
		refType := b.res.UsesKeep && b.identIsReference(target.Name)
		if refType {
			b.addHelper("arc")
			ty, _ := b.resolveType(target.Name)
			b.emitRelease(&ir.ValueTemp{Name: irName}, ty)
		}
		b.emit(&ir.Assign{Dest: irName, Value: newVal})
		if s.Op == ast.AssignSet {
			b.recordLambdaBinding(irName, newVal)
		}
		if refType {
			b.addHelper("arc")
			b.emit(&ir.Retain{V: &ir.ValueTemp{Name: irName}})
		}
	case *ast.MemberExpr:
		base := b.lowerExpr(target.Recv)
		var fieldTy ir.Type
		if ty := b.staticType(target); ty != nil {
			fieldTy = lowerType(ty)
		}
		addr := b.g.newTemp()
		b.emit(&ir.FieldAddr{Dest: addr, Base: base, Field: target.Name, Type: fieldTy})
		var old ir.Value = &ir.ValueTemp{Name: addr}
		if s.Op != ast.AssignSet {
			loaded := b.g.newTemp()
			b.emit(&ir.Load{Dest: loaded, Type: fieldTy, Addr: &ir.ValueTemp{Name: addr}})
			old = &ir.ValueTemp{Name: loaded}
		}
		newVal := b.lowerCompoundValue(s.Op, old, s.Value)
		if s.Op == ast.AssignSet {
			if ty := b.staticType(target); ty != nil {
				newVal = b.coerceForInterface(newVal, b.staticType(s.Value), ty)
			}
		}
		b.emit(&ir.Store{Addr: &ir.ValueTemp{Name: addr}, Value: newVal})
	case *ast.IndexExpr:
		base := b.lowerExpr(target.Recv)
		idx := b.lowerExpr(target.Index)
		var elemTy ir.Type
		if ty := b.staticType(target); ty != nil {
			elemTy = lowerType(ty)
		}
		addr := b.g.newTemp()
		b.emit(&ir.IndexAddr{Dest: addr, Base: base, Index: idx, Type: elemTy})
		var old ir.Value = &ir.ValueTemp{Name: addr}
		if s.Op != ast.AssignSet {
			loaded := b.g.newTemp()
			b.emit(&ir.Load{Dest: loaded, Type: elemTy, Addr: &ir.ValueTemp{Name: addr}})
			old = &ir.ValueTemp{Name: loaded}
		}
		newVal := b.lowerCompoundValue(s.Op, old, s.Value)
		b.emit(&ir.Store{Addr: &ir.ValueTemp{Name: addr}, Value: newVal})
	}
}

func (b *fb) identIsReference(name string) bool {
	ty, ok := b.resolveType(name)
	if !ok {
		return false
	}
	return isReferenceType(ty, b.res)
}

// staticType best-effort resolves the declared type of a general expression,
// enough to route builtin-collection method calls to their monomorphized
// function family instead of a vtable dispatch (collections carry no
// vtable).
func (b *fb) staticType(e ast.Expr) ast.Type {
	switch e := e.(type) {
	case *ast.Ident:
		ty, _ := b.resolveType(e.Name)
		return ty
	case *ast.SelfExpr:
		ty, _ := b.resolveType("self")
		return ty
	case *ast.MemberExpr:
		recvTy := b.staticType(e.Recv)
		return b.classFieldType(recvTy, e.Name)
	case *ast.IndexExpr:
		recvTy := b.staticType(e.Recv)
		if nt, ok := recvTy.(*ast.NamedType); ok && len(nt.Args) > 0 {
			return nt.Args[0]
		}
		return nil
	case *ast.CallExpr:
		return b.callResultType(e)
	case *ast.NewExpr:
		return e.Type
	case *ast.CastExpr:
		return e.Type
	default:
		return nil
	}
}

// callResultType resolves a call expression's declared return type, walking
// a method callee's class hierarchy or interface, or a free function's own
// declaration — used to type a VCall/Call's destination temp correctly
// rather than defaulting to void.
func (b *fb) callResultType(e *ast.CallExpr) ast.Type {
	if member, ok := e.Callee.(*ast.MemberExpr); ok {
		nt, ok := b.staticType(member.Recv).(*ast.NamedType)
		if !ok {
			return nil
		}
		if ci, ok := b.res.Classes[nt.Name]; ok {
			for c := ci; c != nil; c = c.Base {
				for _, m := range c.Decl.Methods {
					if m.Name == member.Name {
						return m.Ret
					}
				}
			}
		}
		if iface, ok := b.res.Interfaces[nt.Name]; ok {
			for _, m := range iface.Methods {
				if m.Name == member.Name {
					return m.Ret
				}
			}
		}
		return nil
	}
	if id, ok := e.Callee.(*ast.Ident); ok {
		if fn, ok := b.res.Functions[id.Name]; ok {
			return fn.Ret
		}
	}
	return nil
}

// classFieldType looks up the declared type of field name on the class recvTy
// names, walking base classes the way lowerClassLayout's fieldType map does.
func (b *fb) classFieldType(recvTy ast.Type, name string) ast.Type {
	nt, ok := recvTy.(*ast.NamedType)
	if !ok {
		return nil
	}
	ci, ok := b.res.Classes[nt.Name]
	if !ok {
		return nil
	}
	for c := ci; c != nil; c = c.Base {
		for _, f := range c.Decl.Fields {
			if f.Name == name {
				return f.Type
			}
		}
	}
	return nil
}

func (b *fb) lowerCompoundValue(op ast.AssignOp, old ir.Value, rhs ast.Expr) ir.Value {
	rhsVal := b.lowerExpr(rhs)
	if op == ast.AssignSet {
		return rhsVal
	}
	dest := b.g.newTemp()
	b.emit(&ir.BinOp{Dest: dest, Op: compoundOp(op), Left: old, Right: rhsVal})
	return &ir.ValueTemp{Name: dest}
}

func compoundOp(op ast.AssignOp) string {
	switch op {
	case ast.AssignAdd:
		return "+"
	case ast.AssignSub:
		return "-"
	case ast.AssignMul:
		return "*"
	case ast.AssignDiv:
		return "/"
	case ast.AssignMod:
		return "%"
	case ast.AssignAnd:
		return "&"
	case ast.AssignOr:
		return "|"
	case ast.AssignXor:
		return "^"
	case ast.AssignShl:
		return "<<"
	case ast.AssignShr:
		return ">>"
	default:
		return "+"
	}
}

func (b *fb) lowerIf(s *ast.IfStmt) {
	cond := b.lowerExpr(s.Cond)
	thenL := b.g.newLabel("if_then")
	elseL := b.g.newLabel("if_else")
	endL := b.g.newLabel("if_end")
	target := elseL
	if s.Else == nil {
		target = endL
	}
	b.emit(&ir.CondBr{Cond: cond, True: thenL, False: target})

	b.newBlock(thenL)
	b.lowerStmt(s.Then)
	if !b.terminated() {
		b.emit(&ir.Br{Target: endL})
	}

	if s.Else != nil {
		b.newBlock(elseL)
		b.lowerStmt(s.Else)
		if !b.terminated() {
			b.emit(&ir.Br{Target: endL})
		}
	}

	b.newBlock(endL)
}

func (b *fb) lowerWhile(s *ast.WhileStmt) {
	condL := b.g.newLabel("while_cond")
	bodyL := b.g.newLabel("while_body")
	endL := b.g.newLabel("while_end")

	b.emit(&ir.Br{Target: condL})
	b.newBlock(condL)
	cond := b.lowerExpr(s.Cond)
	b.emit(&ir.CondBr{Cond: cond, True: bodyL, False: endL})

	b.newBlock(bodyL)
	b.breakLabels = append(b.breakLabels, endL)
	b.continueLabels = append(b.continueLabels, condL)
	b.lowerStmt(s.Body)
	b.breakLabels = b.breakLabels[:len(b.breakLabels)-1]
	b.continueLabels = b.continueLabels[:len(b.continueLabels)-1]
	if !b.terminated() {
		b.emit(&ir.Br{Target: condL})
	}

	b.newBlock(endL)
}

func (b *fb) lowerDoWhile(s *ast.DoWhileStmt) {
	bodyL := b.g.newLabel("do_body")
	condL := b.g.newLabel("do_cond")
	endL := b.g.newLabel("do_end")

	b.emit(&ir.Br{Target: bodyL})
	b.newBlock(bodyL)
	b.breakLabels = append(b.breakLabels, endL)
	b.continueLabels = append(b.continueLabels, condL)
	b.lowerStmt(s.Body)
	b.breakLabels = b.breakLabels[:len(b.breakLabels)-1]
	b.continueLabels = b.continueLabels[:len(b.continueLabels)-1]
	if !b.terminated() {
		b.emit(&ir.Br{Target: condL})
	}

	b.newBlock(condL)
	cond := b.lowerExpr(s.Cond)
	b.emit(&ir.CondBr{Cond: cond, True: bodyL, False: endL})

	b.newBlock(endL)
}

func (b *fb) lowerFor(s *ast.ForStmt) {
	b.pushScope()
	if s.Init != nil {
		b.lowerStmt(s.Init)
	}
	condL := b.g.newLabel("for_cond")
	bodyL := b.g.newLabel("for_body")
	postL := b.g.newLabel("for_post")
	endL := b.g.newLabel("for_end")

	b.emit(&ir.Br{Target: condL})
	b.newBlock(condL)
	if s.Cond != nil {
		cond := b.lowerExpr(s.Cond)
		b.emit(&ir.CondBr{Cond: cond, True: bodyL, False: endL})
	} else {
		b.emit(&ir.Br{Target: bodyL})
	}

	b.newBlock(bodyL)
	b.breakLabels = append(b.breakLabels, endL)
	b.continueLabels = append(b.continueLabels, postL)
	b.lowerStmt(s.Body)
	b.breakLabels = b.breakLabels[:len(b.breakLabels)-1]
	b.continueLabels = b.continueLabels[:len(b.continueLabels)-1]
	if !b.terminated() {
		b.emit(&ir.Br{Target: postL})
	}

	b.newBlock(postL)
	if s.Post != nil {
		b.lowerStmt(s.Post)
	}
	if !b.terminated() {
		b.emit(&ir.Br{Target: condL})
	}

	b.newBlock(endL)
	b.popScope()
}

// lowerForIn lowers "for (x in collection) body". A RangeExpr collection
// lowers to a counting loop; a built-in collection is walked through direct
// calls to its mangled _iterLen/_iterGet functions; any other receiver is
// walked through VCalls to its "length" and "at" methods.
func (b *fb) lowerForIn(s *ast.ForInStmt) {
	b.pushScope()
	idx := b.define("_i")
	b.emit(&ir.Alloc{Dest: idx, Type: &ir.TInt{}})

	var limit ir.Value
	if rng, ok := s.Collection.(*ast.RangeExpr); ok {
		lo := b.lowerExpr(rng.Lo)
		b.emit(&ir.Assign{Dest: idx, Value: lo})
		limit = b.lowerExpr(rng.Hi)
	} else {
		b.emit(&ir.Assign{Dest: idx, Value: &ir.ValueConstInt{}})
		coll := b.lowerExpr(s.Collection)
		lenDest := b.g.newTemp()
		if mangled, _, ok := builtinCollectionMangled(b.staticType(s.Collection)); ok {
			b.emit(&ir.Call{Dest: lenDest, Type: &ir.TInt{}, Func: mangled + "_iterLen", Args: []ir.Value{coll}})
		} else {
			b.emit(&ir.VCall{Dest: lenDest, Type: &ir.TInt{}, Recv: coll, Method: "length"})
		}
		limit = &ir.ValueTemp{Name: lenDest}
	}

	condL := b.g.newLabel("forin_cond")
	bodyL := b.g.newLabel("forin_body")
	postL := b.g.newLabel("forin_post")
	endL := b.g.newLabel("forin_end")

	b.emit(&ir.Br{Target: condL})
	b.newBlock(condL)
	cmp := b.g.newTemp()
	b.emit(&ir.BinOp{Dest: cmp, Type: &ir.TBool{}, Op: "<", Left: &ir.ValueTemp{Name: idx}, Right: limit})
	b.emit(&ir.CondBr{Cond: &ir.ValueTemp{Name: cmp}, True: bodyL, False: endL})

	b.newBlock(bodyL)
	b.pushScope()
	loopVar := b.define(s.VarName)
	if _, isRange := s.Collection.(*ast.RangeExpr); isRange {
		b.emit(&ir.Alloc{Dest: loopVar, Type: &ir.TInt{}})
		b.emit(&ir.Assign{Dest: loopVar, Value: &ir.ValueTemp{Name: idx}})
	} else {
		coll := b.lowerExpr(s.Collection)
		elemDest := b.g.newTemp()
		if mangled, elemTy, ok := builtinCollectionMangled(b.staticType(s.Collection)); ok {
			irElemTy := lowerType(elemTy)
			b.emit(&ir.Call{Dest: elemDest, Type: irElemTy, Func: mangled + "_iterGet", Args: []ir.Value{coll, &ir.ValueTemp{Name: idx}}})
			b.emit(&ir.Alloc{Dest: loopVar, Type: irElemTy})
			b.emit(&ir.Assign{Dest: loopVar, Value: &ir.ValueTemp{Name: elemDest}})
		} else {
			b.emit(&ir.VCall{Dest: elemDest, Recv: coll, Method: "at", Args: []ir.Value{&ir.ValueTemp{Name: idx}}})
			b.emit(&ir.Alloc{Dest: loopVar, Type: &ir.TPtr{Elem: &ir.TVoid{}}})
			b.emit(&ir.Assign{Dest: loopVar, Value: &ir.ValueTemp{Name: elemDest}})
		}
	}
	b.breakLabels = append(b.breakLabels, endL)
	b.continueLabels = append(b.continueLabels, postL)
	b.lowerStmt(s.Body)
	b.breakLabels = b.breakLabels[:len(b.breakLabels)-1]
	b.continueLabels = b.continueLabels[:len(b.continueLabels)-1]
	b.popScope()
	if !b.terminated() {
		b.emit(&ir.Br{Target: postL})
	}

	b.newBlock(postL)
	inc := b.g.newTemp()
	b.emit(&ir.BinOp{Dest: inc, Type: &ir.TInt{}, Op: "+", Left: &ir.ValueTemp{Name: idx}, Right: &ir.ValueConstInt{V: 1}})
	b.emit(&ir.Assign{Dest: idx, Value: &ir.ValueTemp{Name: inc}})
	b.emit(&ir.Br{Target: condL})

	b.newBlock(endL)
	b.popScope()
}

func (b *fb) lowerSwitch(s *ast.SwitchStmt) {
	tag := b.lowerExpr(s.Tag)
	endL := b.g.newLabel("switch_end")
	b.breakLabels = append(b.breakLabels, endL)

	nextCheckL := b.g.newLabel("case_check")
	b.emit(&ir.Br{Target: nextCheckL})

	for _, c := range s.Cases {
		b.newBlock(nextCheckL)
		bodyL := b.g.newLabel("case_body")
		nextCheckL = b.g.newLabel("case_check")
		matched := ir.Value(&ir.ValueConstBool{V: false})
		for _, v := range c.Values {
			val := b.lowerExpr(v)
			eq := b.g.newTemp()
			b.emit(&ir.BinOp{Dest: eq, Type: &ir.TBool{}, Op: "==", Left: tag, Right: val})
			orDest := b.g.newTemp()
			b.emit(&ir.BinOp{Dest: orDest, Type: &ir.TBool{}, Op: "||", Left: matched, Right: &ir.ValueTemp{Name: eq}})
			matched = &ir.ValueTemp{Name: orDest}
		}
		b.emit(&ir.CondBr{Cond: matched, True: bodyL, False: nextCheckL})

		b.newBlock(bodyL)
		for _, st := range c.Body {
			b.lowerStmt(st)
		}
		if !b.terminated() {
			b.emit(&ir.Br{Target: endL})
		}
	}

	b.newBlock(nextCheckL)
	for _, st := range s.Default {
		b.lowerStmt(st)
	}
	if !b.terminated() {
		b.emit(&ir.Br{Target: endL})
	}

	b.breakLabels = b.breakLabels[:len(b.breakLabels)-1]
	b.newBlock(endL)
}

// lowerTry lowers try/catch/finally onto the trycatch helper category's
// push/pop/longjmp protocol: EnterTry marks the setjmp point the Emitter
// renders, the body runs, LeaveTry pops the frame on the normal path, and
// a longjmp from btrc_throw lands directly on the first catch clause,
// which reads the thrown value back out of the current frame. Multiple
// catch clauses on one try do not discriminate by exception type; the
// first one always runs when an exception unwinds into it.
func (b *fb) lowerTry(s *ast.TryStmt) {
	b.addHelper("trycatch")
	tryL := b.g.newLabel("try_body")
	endL := b.g.newLabel("try_end")
	var catchLabels []string
	for range s.Catches {
		catchLabels = append(catchLabels, b.g.newLabel("catch"))
	}
	finallyL, unwindL := "", ""
	if s.Finally != nil {
		finallyL = b.g.newLabel("finally")
		unwindL = finallyL
		if len(s.Catches) == 0 {
			unwindL = b.g.newLabel("finally_unwind")
		}
	}

	b.emit(&ir.EnterTry{Label: tryL, CatchLabels: catchLabels, FinallyLabel: unwindL})
	b.newBlock(tryL)
	b.lowerBlock(s.Body)
	b.emit(&ir.LeaveTry{})
	if !b.terminated() {
		if finallyL != "" {
			b.emit(&ir.Br{Target: finallyL})
		} else {
			b.emit(&ir.Br{Target: endL})
		}
	}

	for i, c := range s.Catches {
		b.newBlock(catchLabels[i])
		b.pushScope()
		name := b.defineTyped(c.Name, c.Type)
		b.emit(&ir.Alloc{Dest: name, Type: lowerType(c.Type)})
		raw := b.g.newTemp()
		b.emit(&ir.Call{Dest: raw, Type: &ir.TPtr{Elem: &ir.TVoid{}}, Func: "btrc_current_thrown"})
		if i == 0 {
			// setjmp's longjmp return lands here directly, bypassing the
			// LeaveTry after the try body, so the frame is popped here
			// instead, once the thrown value has been read out of it.
			b.emit(&ir.LeaveTry{})
		}
		b.emit(&ir.Assign{Dest: name, Value: &ir.ValueTemp{Name: raw}})
		b.lowerBlock(c.Body)
		b.popScope()
		if !b.terminated() {
			if finallyL != "" {
				b.emit(&ir.Br{Target: finallyL})
			} else {
				b.emit(&ir.Br{Target: endL})
			}
		}
	}

	if s.Finally != nil {
		if unwindL != finallyL {
			// With no catch clause a longjmp lands here: pop the frame the
			// try body's own LeaveTry was skipped for, then run finally.
			b.newBlock(unwindL)
			b.emit(&ir.LeaveTry{})
			b.emit(&ir.Br{Target: finallyL})
		}
		b.newBlock(finallyL)
		b.lowerBlock(s.Finally)
		if !b.terminated() {
			b.emit(&ir.Br{Target: endL})
		}
	}

	b.newBlock(endL)
}

// lowerParallel lowers "parallel { ... }" to a pthread-backed task: the
// body becomes its own void function taking one void *arg parameter
// (btrc_spawn's task signature), spawned via the thread
// helper category's btrc_spawn, matching spec section 5's fire-and-forget
// concurrency surface.
func (b *fb) lowerParallel(s *ast.ParallelStmt) {
	b.addHelper("thread")
	childName := fmt.Sprintf("%s_parallel%d", b.fn.Name, b.g.tmp)
	child := &fb{
		g: b.g, res: b.res, fn: &ir.Function{Name: childName, Ret: &ir.TVoid{}},
		used:           map[string]int{},
		helpers:        map[string]bool{},
		lambdaEnvs:     map[string]ir.Value{},
		lambdaBindings: map[string]lambdaBinding{},
	}
	child.pushScope()
	child.fn.Params = append(child.fn.Params, ir.Param{Name: "arg", Type: &ir.TPtr{Elem: &ir.TVoid{}}})
	child.newBlock("entry")
	child.lowerBlock(s.Body)
	child.terminateFallthrough(&ast.PrimitiveType{Kind: ast.TVoid})
	for h := range child.helpers {
		b.helpers[h] = true
		child.fn.HelperDeps = append(child.fn.HelperDeps, h)
	}
	b.g.functions[childName] = child.fn

	dest := ""
	b.emit(&ir.Call{Dest: dest, Func: "btrc_spawn", Args: []ir.Value{&ir.ValueGlobal{Name: childName}, &ir.ValueNull{}}})
}
