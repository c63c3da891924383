// Package ast defines the closed node families the Parser produces and every
// later stage consumes: Decl, Stmt, Expr, and Type. Each family is a tagged
// union expressed the way Go lacks natively — an interface with an
// unexported marker method implemented by every concrete node, following
// the same pattern the reference IR package uses for its value and type
// sums (isIrValue/isIrType). Every node carries a diag.Pos so diagnostics
// from every later stage can point back at source.
//
// The node set follows testdata/ast.asdl, but this file is written by hand:
// tools/asdlgen parses the ASDL description and does not generate Go code.
package ast

import "github.com/btrc-lang/btrc/internal/diag"

// File is the root of one parsed translation unit.
type File struct {
	Path  string
	Decls []Decl
}

// ---------------------------------------------------------------- Decl ----

// Decl is implemented by every top-level or class-member declaration.
type Decl interface {
	declNode()
	Position() diag.Pos
}

// FuncDecl declares a free function.
//
//	int add(int a, int b) { return a + b; }
type FuncDecl struct {
	Pos        diag.Pos
	Name       string
	TypeParams []string
	Params     []Param
	Ret        Type
	Body       *BlockStmt // nil for extern/interface declarations
	IsStatic   bool
	IsGPU      bool // annotated with @gpu
}

// ClassDecl declares a class: single base class, zero or more interfaces,
// optional generic type parameters.
type ClassDecl struct {
	Pos        diag.Pos
	Name       string
	TypeParams []string
	Extends    string // "" if none
	Implements []string
	Fields     []*FieldDecl
	Methods    []*FuncDecl
	Ctors      []*FuncDecl
	Dtor       *FuncDecl // nil if absent
	Properties []*PropertyDecl
}

// InterfaceDecl declares an interface: a set of method signatures with no
// bodies, satisfied structurally through "implements".
type InterfaceDecl struct {
	Pos     diag.Pos
	Name    string
	Methods []*FuncDecl
}

// EnumDecl declares a tagged-union enum. A variant with no payload fields is
// a plain tag; one with fields carries data, spec section 3's "tagged-union
// enums".
type EnumDecl struct {
	Pos      diag.Pos
	Name     string
	Variants []EnumVariant
}

// EnumVariant is one case of an EnumDecl.
type EnumVariant struct {
	Pos    diag.Pos
	Name   string
	Fields []Param // empty for a plain tag
}

// StructDecl declares a plain aggregate (no methods, no inheritance).
type StructDecl struct {
	Pos    diag.Pos
	Name   string
	Fields []*FieldDecl
}

// TypedefDecl aliases Underlying to Name.
type TypedefDecl struct {
	Pos        diag.Pos
	Name       string
	Underlying Type
}

// ExternDecl declares a function implemented outside btrc (linked in from
// the surrounding C translation unit).
type ExternDecl struct {
	Pos    diag.Pos
	Name   string
	Params []Param
	Ret    Type
}

// GlobalVarDecl declares a file-scope variable.
type GlobalVarDecl struct {
	Pos      diag.Pos
	Name     string
	Type     Type
	Init     Expr // nil if uninitialized
	IsConst  bool
	IsStatic bool
}

// IncludeDecl is a "#include" directive left over after preprocessing only
// when the target is a system header the preprocessor deliberately does not
// inline (spec section 4.slash "textual inclusion" supplement).
type IncludeDecl struct {
	Pos      diag.Pos
	Path     string
	IsSystem bool // <angle.h> vs "quoted.h"
}

func (*FuncDecl) declNode()      {}
func (*ClassDecl) declNode()     {}
func (*InterfaceDecl) declNode() {}
func (*EnumDecl) declNode()      {}
func (*StructDecl) declNode()    {}
func (*TypedefDecl) declNode()   {}
func (*ExternDecl) declNode()    {}
func (*GlobalVarDecl) declNode() {}
func (*IncludeDecl) declNode()   {}

func (d *FuncDecl) Position() diag.Pos      { return d.Pos }
func (d *ClassDecl) Position() diag.Pos     { return d.Pos }
func (d *InterfaceDecl) Position() diag.Pos { return d.Pos }
func (d *EnumDecl) Position() diag.Pos      { return d.Pos }
func (d *StructDecl) Position() diag.Pos    { return d.Pos }
func (d *TypedefDecl) Position() diag.Pos   { return d.Pos }
func (d *ExternDecl) Position() diag.Pos    { return d.Pos }
func (d *GlobalVarDecl) Position() diag.Pos { return d.Pos }
func (d *IncludeDecl) Position() diag.Pos   { return d.Pos }

// Param is a single function/method/lambda/ctor parameter, and also doubles
// as an enum variant field. ARCPolicy carries an optional "keep" annotation
// (spec section 4.5: "the keep parameter annotation increments at the call
// site"); ARCDefault leaves the argument's ownership with the caller.
type Param struct {
	Pos       diag.Pos
	Name      string
	Type      Type
	ARCPolicy ARCPolicy
}

// FieldDecl is a class or struct field.
type FieldDecl struct {
	Pos       diag.Pos
	Name      string
	Type      Type
	Init      Expr // nil if none
	IsPublic  bool
	IsStatic  bool
	ARCPolicy ARCPolicy
}

// ARCPolicy names how a reference-typed field participates in reference
// counting, spec section 5's "keep/release annotations".
type ARCPolicy int

const (
	// ARCDefault: the field owns a strong reference, retained on store and
	// released on overwrite/destruction.
	ARCDefault ARCPolicy = iota
	// ARCKeep: explicit "keep" annotation, same runtime behavior as
	// ARCDefault but documents intentional ownership at a cycle-prone edge.
	ARCKeep
	// ARCRelease: explicit "release" annotation — an unretained (weak)
	// reference, used to break reference cycles.
	ARCRelease
)

// PropertyDecl declares a computed property with a getter and/or setter.
type PropertyDecl struct {
	Pos    diag.Pos
	Name   string
	Type   Type
	Getter *BlockStmt // nil if write-only
	Setter *BlockStmt // nil if read-only; the setter's implicit parameter is "value"
}

// ---------------------------------------------------------------- Stmt ----

// Stmt is implemented by every statement node.
type Stmt interface {
	stmtNode()
	Position() diag.Pos
}

// VarDeclStmt declares a local variable, "var" or an explicit type.
type VarDeclStmt struct {
	Pos       diag.Pos
	Name      string
	Type      Type // nil when inferred from Init
	Init      Expr // nil if uninitialized
	ARCPolicy ARCPolicy
}

// AssignStmt covers "=" and every compound assignment operator.
type AssignStmt struct {
	Pos    diag.Pos
	Op     AssignOp
	Target Expr
	Value  Expr
}

// AssignOp enumerates assignment operators.
type AssignOp int

const (
	AssignSet AssignOp = iota
	AssignAdd
	AssignSub
	AssignMul
	AssignDiv
	AssignMod
	AssignAnd
	AssignOr
	AssignXor
	AssignShl
	AssignShr
)

// ExprStmt is an expression evaluated for its side effect.
type ExprStmt struct {
	Pos  diag.Pos
	Expr Expr
}

// IfStmt is "if (Cond) Then else Else". Else is nil if absent.
type IfStmt struct {
	Pos  diag.Pos
	Cond Expr
	Then Stmt
	Else Stmt
}

// ForStmt is the C-style three-clause for loop.
type ForStmt struct {
	Pos  diag.Pos
	Init Stmt // may be a VarDeclStmt, AssignStmt, ExprStmt, or nil
	Cond Expr // nil means "true"
	Post Stmt // nil if absent
	Body Stmt
}

// ForInStmt iterates a collection or range: "for (x in xs) body".
type ForInStmt struct {
	Pos        diag.Pos
	VarName    string
	Collection Expr
	Body       Stmt
}

// WhileStmt is "while (Cond) Body".
type WhileStmt struct {
	Pos  diag.Pos
	Cond Expr
	Body Stmt
}

// DoWhileStmt is "do Body while (Cond);".
type DoWhileStmt struct {
	Pos  diag.Pos
	Body Stmt
	Cond Expr
}

// SwitchStmt dispatches on Tag across Cases, with an optional Default.
type SwitchStmt struct {
	Pos     diag.Pos
	Tag     Expr
	Cases   []SwitchCase
	Default []Stmt // nil if absent
}

// SwitchCase is one "case" arm. Values holds one or more case labels sharing
// a body (fallthrough grouping), matching C switch/case surface syntax.
type SwitchCase struct {
	Pos    diag.Pos
	Values []Expr
	Body   []Stmt
}

// TryStmt is "try Body (catch (T name) Handler)* (finally Finally)?".
type TryStmt struct {
	Pos     diag.Pos
	Body    *BlockStmt
	Catches []CatchClause
	Finally *BlockStmt // nil if absent
}

// CatchClause is one "catch (Type Name) Body" arm.
type CatchClause struct {
	Pos  diag.Pos
	Type Type
	Name string
	Body *BlockStmt
}

// ThrowStmt raises Value as an exception.
type ThrowStmt struct {
	Pos   diag.Pos
	Value Expr
}

// ReturnStmt returns Value, or nothing if Value is nil.
type ReturnStmt struct {
	Pos   diag.Pos
	Value Expr
}

// BreakStmt exits the nearest enclosing loop or switch.
type BreakStmt struct{ Pos diag.Pos }

// ContinueStmt jumps to the next iteration of the nearest enclosing loop.
type ContinueStmt struct{ Pos diag.Pos }

// BlockStmt is a brace-delimited statement sequence introducing a scope.
type BlockStmt struct {
	Pos   diag.Pos
	Stmts []Stmt
}

// ParallelStmt lowers "parallel Body" to the thread helper category
// (spec section 5's concurrency mention).
type ParallelStmt struct {
	Pos  diag.Pos
	Body *BlockStmt
}

func (*VarDeclStmt) stmtNode()  {}
func (*AssignStmt) stmtNode()   {}
func (*ExprStmt) stmtNode()     {}
func (*IfStmt) stmtNode()       {}
func (*ForStmt) stmtNode()      {}
func (*ForInStmt) stmtNode()    {}
func (*WhileStmt) stmtNode()    {}
func (*DoWhileStmt) stmtNode()  {}
func (*SwitchStmt) stmtNode()   {}
func (*TryStmt) stmtNode()      {}
func (*ThrowStmt) stmtNode()    {}
func (*ReturnStmt) stmtNode()   {}
func (*BreakStmt) stmtNode()    {}
func (*ContinueStmt) stmtNode() {}
func (*BlockStmt) stmtNode()    {}
func (*ParallelStmt) stmtNode() {}

func (s *VarDeclStmt) Position() diag.Pos  { return s.Pos }
func (s *AssignStmt) Position() diag.Pos   { return s.Pos }
func (s *ExprStmt) Position() diag.Pos     { return s.Pos }
func (s *IfStmt) Position() diag.Pos       { return s.Pos }
func (s *ForStmt) Position() diag.Pos      { return s.Pos }
func (s *ForInStmt) Position() diag.Pos    { return s.Pos }
func (s *WhileStmt) Position() diag.Pos    { return s.Pos }
func (s *DoWhileStmt) Position() diag.Pos  { return s.Pos }
func (s *SwitchStmt) Position() diag.Pos   { return s.Pos }
func (s *TryStmt) Position() diag.Pos      { return s.Pos }
func (s *ThrowStmt) Position() diag.Pos    { return s.Pos }
func (s *ReturnStmt) Position() diag.Pos   { return s.Pos }
func (s *BreakStmt) Position() diag.Pos    { return s.Pos }
func (s *ContinueStmt) Position() diag.Pos { return s.Pos }
func (s *BlockStmt) Position() diag.Pos    { return s.Pos }
func (s *ParallelStmt) Position() diag.Pos { return s.Pos }

// ---------------------------------------------------------------- Expr ----

// Expr is implemented by every node that produces a value.
type Expr interface {
	exprNode()
	Position() diag.Pos
}

// IntLit is an integer literal.
type IntLit struct {
	Pos   diag.Pos
	Text  string // original lexeme, base preserved for the Emitter
	Value int64
}

// FloatLit is a floating-point literal.
type FloatLit struct {
	Pos   diag.Pos
	Text  string
	Value float64
}

// BoolLit is "true" or "false".
type BoolLit struct {
	Pos   diag.Pos
	Value bool
}

// CharLit is a single-character literal.
type CharLit struct {
	Pos   diag.Pos
	Value rune
}

// StringLit is a plain, non-interpolated string literal.
type StringLit struct {
	Pos   diag.Pos
	Value string
}

// NullLit is the literal "null".
type NullLit struct{ Pos diag.Pos }

// SelfExpr is "self" inside a method body.
type SelfExpr struct{ Pos diag.Pos }

// Ident is a bare identifier reference.
type Ident struct {
	Pos  diag.Pos
	Name string
}

// FStringChunk is one piece of an f-string: either literal Text, or an
// embedded Expr with an optional printf-style FormatSpec (e.g. ".2f").
type FStringChunk struct {
	Text       string
	Expr       Expr // nil for a plain text chunk
	FormatSpec string
}

// FStringExpr is an interpolated string built from Chunks in order.
type FStringExpr struct {
	Pos    diag.Pos
	Chunks []FStringChunk
}

// MemberExpr accesses a Recv.Name-style, Recv->Name, or Recv?.Name member.
type MemberExpr struct {
	Pos       diag.Pos
	Recv      Expr
	Name      string
	Arrow     bool // Recv->Name surface spelling, semantically identical to Recv.Name
	Nullsafe  bool // Recv?.Name: yields null instead of raising if Recv is null
}

// IndexExpr is "Recv[Index]".
type IndexExpr struct {
	Pos   diag.Pos
	Recv  Expr
	Index Expr
}

// CallExpr is "Callee(Args...)".
type CallExpr struct {
	Pos    diag.Pos
	Callee Expr
	Args   []Expr
}

// UnaryOp enumerates prefix unary operators, including pre-increment and
// address-of/dereference for interop with raw pointer types.
type UnaryOp int

const (
	UnaryNot UnaryOp = iota
	UnaryNeg
	UnaryBitNot
	UnaryAddr
	UnaryDeref
	UnaryPreInc
	UnaryPreDec
)

// UnaryExpr is "Op Operand".
type UnaryExpr struct {
	Pos     diag.Pos
	Op      UnaryOp
	Operand Expr
}

// PostfixOp enumerates postfix operators.
type PostfixOp int

const (
	PostfixInc PostfixOp = iota
	PostfixDec
)

// PostfixExpr is "Operand Op" (post-increment/decrement).
type PostfixExpr struct {
	Pos     diag.Pos
	Op      PostfixOp
	Operand Expr
}

// BinaryOp enumerates infix binary operators, including the operators a
// class may overload via "operator+" style method names.
type BinaryOp int

const (
	BinAdd BinaryOp = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinAnd
	BinOr
	BinXor
	BinShl
	BinShr
	BinEq
	BinNeq
	BinLt
	BinGt
	BinLe
	BinGe
)

// BinaryExpr is "Left Op Right".
type BinaryExpr struct {
	Pos   diag.Pos
	Op    BinaryOp
	Left  Expr
	Right Expr
}

// LogicalOp enumerates short-circuiting logical operators, kept distinct
// from BinaryOp so later stages never accidentally evaluate both operands.
type LogicalOp int

const (
	LogicalAnd LogicalOp = iota
	LogicalOr
)

// LogicalExpr is "Left && Right" or "Left || Right".
type LogicalExpr struct {
	Pos   diag.Pos
	Op    LogicalOp
	Left  Expr
	Right Expr
}

// NullCoalesceExpr is "Left ?? Right": Right is evaluated only if Left is
// null.
type NullCoalesceExpr struct {
	Pos   diag.Pos
	Left  Expr
	Right Expr
}

// TernaryExpr is "Cond ? Then : Else".
type TernaryExpr struct {
	Pos  diag.Pos
	Cond Expr
	Then Expr
	Else Expr
}

// CastExpr is "(Type) Operand".
type CastExpr struct {
	Pos     diag.Pos
	Type    Type
	Operand Expr
}

// SizeofExpr is "sizeof(Type)".
type SizeofExpr struct {
	Pos  diag.Pos
	Type Type
}

// NewExpr allocates and constructs an instance of Type via Args.
type NewExpr struct {
	Pos  diag.Pos
	Type Type
	Args []Expr
}

// DeleteExpr explicitly drops a reference, forcing an ARC release outside
// normal scope-exit points.
type DeleteExpr struct {
	Pos     diag.Pos
	Operand Expr
}

// LambdaExpr is a closure literal, in any of the three surface forms named
// in spec section 3: an arrow expression ((x) => x+1), an arrow block
// ((x) => { ... }), or the verbose "function(...) { ... }" form.
type LambdaExpr struct {
	Pos    diag.Pos
	Params []Param
	Ret    Type // nil if inferred
	// Exactly one of ExprBody / BlockBody is set.
	ExprBody  Expr
	BlockBody *BlockStmt
}

// TupleExpr constructs a tuple literal "(a, b, c)".
type TupleExpr struct {
	Pos      diag.Pos
	Elements []Expr
}

// TupleDestructureExpr appears only as an assignment/var-decl target: "(a,
// b) = pair" or "var (a, b) = pair". Names holding "_" are discard slots.
type TupleDestructureExpr struct {
	Pos   diag.Pos
	Names []string
}

// RangeExpr is "Lo..Hi" (used in for-in over an integer range).
type RangeExpr struct {
	Pos diag.Pos
	Lo  Expr
	Hi  Expr
}

func (*IntLit) exprNode()                {}
func (*FloatLit) exprNode()              {}
func (*BoolLit) exprNode()               {}
func (*CharLit) exprNode()               {}
func (*StringLit) exprNode()             {}
func (*NullLit) exprNode()               {}
func (*SelfExpr) exprNode()              {}
func (*Ident) exprNode()                 {}
func (*FStringExpr) exprNode()           {}
func (*MemberExpr) exprNode()            {}
func (*IndexExpr) exprNode()             {}
func (*CallExpr) exprNode()              {}
func (*UnaryExpr) exprNode()             {}
func (*PostfixExpr) exprNode()           {}
func (*BinaryExpr) exprNode()            {}
func (*LogicalExpr) exprNode()           {}
func (*NullCoalesceExpr) exprNode()      {}
func (*TernaryExpr) exprNode()           {}
func (*CastExpr) exprNode()              {}
func (*SizeofExpr) exprNode()            {}
func (*NewExpr) exprNode()               {}
func (*DeleteExpr) exprNode()            {}
func (*LambdaExpr) exprNode()            {}
func (*TupleExpr) exprNode()             {}
func (*TupleDestructureExpr) exprNode()  {}
func (*RangeExpr) exprNode()             {}

func (e *IntLit) Position() diag.Pos               { return e.Pos }
func (e *FloatLit) Position() diag.Pos             { return e.Pos }
func (e *BoolLit) Position() diag.Pos              { return e.Pos }
func (e *CharLit) Position() diag.Pos              { return e.Pos }
func (e *StringLit) Position() diag.Pos            { return e.Pos }
func (e *NullLit) Position() diag.Pos              { return e.Pos }
func (e *SelfExpr) Position() diag.Pos             { return e.Pos }
func (e *Ident) Position() diag.Pos                { return e.Pos }
func (e *FStringExpr) Position() diag.Pos          { return e.Pos }
func (e *MemberExpr) Position() diag.Pos           { return e.Pos }
func (e *IndexExpr) Position() diag.Pos            { return e.Pos }
func (e *CallExpr) Position() diag.Pos             { return e.Pos }
func (e *UnaryExpr) Position() diag.Pos            { return e.Pos }
func (e *PostfixExpr) Position() diag.Pos          { return e.Pos }
func (e *BinaryExpr) Position() diag.Pos           { return e.Pos }
func (e *LogicalExpr) Position() diag.Pos          { return e.Pos }
func (e *NullCoalesceExpr) Position() diag.Pos     { return e.Pos }
func (e *TernaryExpr) Position() diag.Pos          { return e.Pos }
func (e *CastExpr) Position() diag.Pos             { return e.Pos }
func (e *SizeofExpr) Position() diag.Pos           { return e.Pos }
func (e *NewExpr) Position() diag.Pos              { return e.Pos }
func (e *DeleteExpr) Position() diag.Pos           { return e.Pos }
func (e *LambdaExpr) Position() diag.Pos           { return e.Pos }
func (e *TupleExpr) Position() diag.Pos            { return e.Pos }
func (e *TupleDestructureExpr) Position() diag.Pos { return e.Pos }
func (e *RangeExpr) Position() diag.Pos            { return e.Pos }

// ---------------------------------------------------------------- Type ----

// Type is implemented by every type-syntax node.
type Type interface {
	typeNode()
	String() string
}

// Primitive enumerates btrc's built-in scalar types.
type Primitive int

const (
	TInt Primitive = iota
	TFloat
	TDouble
	TChar
	TBool
	TVoid
	TString
)

func (p Primitive) String() string {
	switch p {
	case TInt:
		return "int"
	case TFloat:
		return "float"
	case TDouble:
		return "double"
	case TChar:
		return "char"
	case TBool:
		return "bool"
	case TVoid:
		return "void"
	case TString:
		return "string"
	default:
		return "?"
	}
}

// PrimitiveType is a built-in scalar type.
type PrimitiveType struct{ Kind Primitive }

// NamedType is a reference to a class, interface, enum, struct, or typedef
// by name, with optional generic type arguments (e.g. Vector<int>).
type NamedType struct {
	Name string
	Args []Type
}

// PointerType is "T*".
type PointerType struct{ Elem Type }

// NullableType is "T?".
type NullableType struct{ Elem Type }

// FuncType is a first-class function type: (Params...) -> Ret, used for
// lambda parameter/return annotations.
type FuncType struct {
	Params []Type
	Ret    Type
}

// TupleType is "(T1, T2, ...)".
type TupleType struct{ Elements []Type }

func (*PrimitiveType) typeNode() {}
func (*NamedType) typeNode()     {}
func (*PointerType) typeNode()   {}
func (*NullableType) typeNode()  {}
func (*FuncType) typeNode()      {}
func (*TupleType) typeNode()     {}

func (t *PrimitiveType) String() string { return t.Kind.String() }

func (t *NamedType) String() string {
	if len(t.Args) == 0 {
		return t.Name
	}
	s := t.Name + "<"
	for i, a := range t.Args {
		if i > 0 {
			s += ", "
		}
		s += a.String()
	}
	return s + ">"
}

func (t *PointerType) String() string { return t.Elem.String() + "*" }
func (t *NullableType) String() string { return t.Elem.String() + "?" }

func (t *FuncType) String() string {
	s := "("
	for i, p := range t.Params {
		if i > 0 {
			s += ", "
		}
		s += p.String()
	}
	s += ") -> "
	if t.Ret != nil {
		s += t.Ret.String()
	} else {
		s += "void"
	}
	return s
}

func (t *TupleType) String() string {
	s := "("
	for i, e := range t.Elements {
		if i > 0 {
			s += ", "
		}
		s += e.String()
	}
	return s + ")"
}
