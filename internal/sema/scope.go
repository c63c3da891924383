// Package sema is the Analyzer (spec section 4.4): a two-pass semantic
// checker that builds a global symbol table, resolves every name and type,
// checks generic instantiations, and reports diagnostics through a
// diag.Bag. Scope generalizes the teacher's SymbolTable (a flat globals map
// plus a stack of local-scope maps) into a parent-linked chain so nested
// blocks, for-loops, and lambda captures each get their own scope without
// a fixed function/local split.
package sema

// Scope is one lexical scope: a name -> Symbol map with a link to its
// enclosing scope. The root scope (Parent == nil) holds every top-level
// declaration.
type Scope struct {
	Parent  *Scope
	symbols map[string]*Symbol
}

// NewScope creates a scope nested inside parent. parent may be nil for the
// global scope.
func NewScope(parent *Scope) *Scope {
	return &Scope{Parent: parent, symbols: make(map[string]*Symbol)}
}

// Define adds sym to this scope, reporting a collision to the caller via
// the returned bool so the Analyzer can turn it into a diagnostic with
// position information the Scope itself doesn't have.
func (s *Scope) Define(sym *Symbol) (redeclared bool) {
	if _, exists := s.symbols[sym.Name]; exists {
		return true
	}
	s.symbols[sym.Name] = sym
	return false
}

// Redefine overwrites an existing entry in this scope, used only to let a
// user declaration shadow a builtin occupying the same name.
func (s *Scope) Redefine(sym *Symbol) {
	s.symbols[sym.Name] = sym
}

// Lookup resolves name in this scope or any enclosing scope.
func (s *Scope) Lookup(name string) (*Symbol, bool) {
	for sc := s; sc != nil; sc = sc.Parent {
		if sym, ok := sc.symbols[name]; ok {
			return sym, true
		}
	}
	return nil, false
}

// LookupLocal resolves name only in this scope, not its ancestors — used to
// detect shadowing-vs-redeclaration within the same block.
func (s *Scope) LookupLocal(name string) (*Symbol, bool) {
	sym, ok := s.symbols[name]
	return sym, ok
}

// CrossesFunctionBoundary reports whether resolving name from s would have
// to cross into an enclosing function's scope, which only lambda capture
// is allowed to do (spec section 3's "lambdas with captures").
func (s *Scope) CrossesFunctionBoundary(name string, funcBoundary *Scope) bool {
	for sc := s; sc != nil; sc = sc.Parent {
		if _, ok := sc.symbols[name]; ok {
			return false
		}
		if sc == funcBoundary {
			return true
		}
	}
	return true
}
