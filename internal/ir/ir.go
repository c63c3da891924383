// Package ir defines the intermediate representation the IR Generator
// lowers the checked AST into, and that the IR Optimizer and C Emitter
// consume afterward (spec sections 4.5-4.7). Value and Type are closed sum
// types expressed as an interface plus an unexported marker method per
// concrete node, the same pattern the reference IR package
// (confucianzuoyuan-zcc/ir) uses for IrValue/IrType, generalized here to a
// tree-shaped three-address-ish IR instead of that package's flat
// instruction list, since the Emitter renders directly to structured C
// rather than to a linear assembly-like text format.
package ir

// Type is the IR's own small type system: pointer-sized words, C-style
// primitives, and named aggregate types the Emitter renders as generated
// struct names.
type Type interface {
	isIrType()
	String() string
}

type (
	TInt    struct{}
	TFloat  struct{}
	TDouble struct{}
	TChar   struct{}
	TBool   struct{}
	TVoid   struct{}
	// TPtr is a raw or reference-counted pointer to Elem, depending on
	// context (fields ARC policy decides whether stores retain/release).
	TPtr struct{ Elem Type }
	// TNamed refers to a struct type the Emitter will have generated: a
	// monomorphized class instantiation, a plain struct, or an enum's
	// tagged-union representation.
	TNamed struct{ Name string }
	// TRaw renders as Text verbatim, an escape hatch for the handful of C
	// types this IR has no structured node for (function pointers, a
	// const-qualified vtable pointer).
	TRaw struct{ Text string }
)

func (*TInt) isIrType()    {}
func (*TFloat) isIrType()  {}
func (*TDouble) isIrType() {}
func (*TChar) isIrType()   {}
func (*TBool) isIrType()   {}
func (*TVoid) isIrType()   {}
func (*TPtr) isIrType()    {}
func (*TNamed) isIrType()  {}
func (*TRaw) isIrType()    {}

func (*TInt) String() string    { return "int" }
func (*TFloat) String() string  { return "float" }
func (*TDouble) String() string { return "double" }
func (*TChar) String() string   { return "char" }
func (*TBool) String() string   { return "bool" }
func (*TVoid) String() string   { return "void" }
func (t *TPtr) String() string  { return t.Elem.String() + "*" }
func (t *TNamed) String() string { return t.Name }
func (t *TRaw) String() string  { return t.Text }

// Value is any operand an instruction can read: a virtual register, an
// immediate constant, or a reference to a global/function symbol.
type Value interface {
	isIrValue()
	String() string
}

type (
	ValueTemp struct {
		Name string
		Type Type
	}
	ValueConstInt struct {
		V    int64
		Type Type
	}
	ValueConstFloat struct {
		V    float64
		Type Type
	}
	ValueConstString struct{ V string }
	ValueConstBool    struct{ V bool }
	ValueNull         struct{ Type Type }
	ValueGlobal       struct {
		Name string
		Type Type
	}
	// ValueAddr is the address of a file-scope symbol that has no single
	// Value of its own, such as a vtable instance.
	ValueAddr struct{ Name string }
	// ValueRaw renders Text verbatim as a C expression, the value-level
	// counterpart to TRaw, for the rare expression no other Value shape
	// covers, such as an offsetof() computed by the C compiler itself.
	ValueRaw struct{ Text string }
)

func (*ValueTemp) isIrValue()         {}
func (*ValueConstInt) isIrValue()     {}
func (*ValueConstFloat) isIrValue()   {}
func (*ValueConstString) isIrValue()  {}
func (*ValueConstBool) isIrValue()    {}
func (*ValueNull) isIrValue()         {}
func (*ValueGlobal) isIrValue()       {}
func (*ValueAddr) isIrValue()         {}
func (*ValueRaw) isIrValue()          {}

func (v *ValueAddr) String() string { return "&" + v.Name }
func (v *ValueRaw) String() string  { return v.Text }

func (v *ValueTemp) String() string         { return "%" + v.Name }
func (v *ValueConstInt) String() string     { return itoa(v.V) }
func (v *ValueConstFloat) String() string   { return ftoa(v.V) }
func (v *ValueConstString) String() string  { return quote(v.V) }
func (v *ValueConstBool) String() string {
	if v.V {
		return "true"
	}
	return "false"
}
func (v *ValueNull) String() string   { return "null" }
func (v *ValueGlobal) String() string { return "@" + v.Name }

// Instr is one IR instruction, forming a closed sum over the operations
// spec section 4.5 lists: arithmetic/logic, field/index access, calls,
// ARC retain/release, control flow, and exception scaffolding.
type Instr interface {
	isIrInstr()
}

type (
	// Alloc reserves a local slot of Type, bound to Dest for the rest of
	// the block.
	Alloc struct {
		Dest string
		Type Type
	}
	// Store writes Value into the memory Addr points at.
	Store struct {
		Addr  Value
		Value Value
	}
	// Load reads the memory Addr points at into Dest.
	Load struct {
		Dest string
		Type Type
		Addr Value
	}
	// BinOp computes Dest = Left Op Right.
	BinOp struct {
		Dest  string
		Type  Type
		Op    string // "+", "-", "==", "<<", ... rendered verbatim by the Emitter
		Left  Value
		Right Value
	}
	// UnOp computes Dest = Op Operand.
	UnOp struct {
		Dest    string
		Type    Type
		Op      string
		Operand Value
	}
	// FieldAddr computes the address of Base->Field, used both to read a
	// field (paired with Load) and to write one (paired with Store). Type
	// is the field's own type, not a pointer to it; the Emitter declares
	// Dest as a pointer to Type so the paired Load/Store can dereference
	// it directly instead of through an untyped void*.
	FieldAddr struct {
		Dest  string
		Base  Value
		Field string
		Type  Type
	}
	// IndexAddr computes the address of Base[Index]. Type is the element
	// type, following the same convention as FieldAddr.
	IndexAddr struct {
		Dest  string
		Base  Value
		Index Value
		Type  Type
	}
	// Call invokes Func with Args, optionally binding the result to Dest
	// (Dest == "" for a void call).
	Call struct {
		Dest string
		Type Type
		Func string
		Args []Value
	}
	// VCall dispatches through Recv's vtable slot Method (spec section
	// 4.5's virtual dispatch lowering).
	VCall struct {
		Dest   string
		Type   Type
		Recv   Value
		Method string
		Args   []Value
	}
	// Retain increments V's reference count (ARC).
	Retain struct{ V Value }
	// Release decrements V's reference count, freeing it at zero (ARC).
	Release struct{ V Value }
	// New allocates an instance of TypeName and binds it to Dest,
	// zero-initialized before the matching constructor call runs.
	New struct {
		Dest     string
		TypeName string
	}
	// Br is an unconditional jump to Target.
	Br struct{ Target string }
	// CondBr jumps to True or False depending on Cond.
	CondBr struct {
		Cond  Value
		True  string
		False string
	}
	// Ret returns Value (nil for a void return) from the current function.
	Ret struct{ Value Value }
	// Throw raises Value as an exception, lowered to longjmp by the
	// Emitter's try/catch helper category.
	Throw struct{ Value Value }
	// EnterTry pushes a new setjmp frame; the Emitter renders this as the
	// setjmp() call guarding CatchLabels.
	EnterTry struct {
		Label        string
		CatchLabels  []string
		FinallyLabel string
	}
	// LeaveTry pops the current setjmp frame.
	LeaveTry struct{}
	// Assign writes Value directly into the already-allocated local Dest,
	// used for locals (Alloc'd variables), as opposed to Store's
	// pointer-indirected write to a field or index address.
	Assign struct {
		Dest  string
		Value Value
	}
	// SizeofType computes Dest = sizeof(Of).
	SizeofType struct {
		Dest string
		Of   Type
	}
)

func (*Alloc) isIrInstr()     {}
func (*Store) isIrInstr()     {}
func (*Load) isIrInstr()      {}
func (*BinOp) isIrInstr()     {}
func (*UnOp) isIrInstr()      {}
func (*FieldAddr) isIrInstr() {}
func (*IndexAddr) isIrInstr() {}
func (*Call) isIrInstr()      {}
func (*VCall) isIrInstr()     {}
func (*Retain) isIrInstr()    {}
func (*Release) isIrInstr()   {}
func (*New) isIrInstr()       {}
func (*Br) isIrInstr()        {}
func (*CondBr) isIrInstr()    {}
func (*Ret) isIrInstr()       {}
func (*Throw) isIrInstr()     {}
func (*EnterTry) isIrInstr()  {}
func (*LeaveTry) isIrInstr()  {}
func (*Assign) isIrInstr()    {}
func (*SizeofType) isIrInstr() {}

// Block is a straight-line instruction sequence ending in a terminator
// (Br, CondBr, Ret, or Throw).
type Block struct {
	Label  string
	Instrs []Instr
}

// Param is one function parameter in the IR's flat calling convention.
type Param struct {
	Name string
	Type Type
}

// Function is one lowered function or method body. Class methods carry
// their mangled name (e.g. "Dog_speak" or "Vector_int_push") rather than a
// receiver field, matching the monomorphized-C-function approach spec
// section 4.5 requires.
type Function struct {
	Name       string
	Params     []Param
	Ret        Type
	Blocks     []*Block
	HelperDeps []string // helper categories this body's instructions require
}

// Global is a file-scope variable lowered from ast.GlobalVarDecl.
type Global struct {
	Name string
	Type Type
	Init Value // nil if zero-initialized
}

// StructLayout is a generated C struct: a plain struct, a monomorphized
// generic class instance, or an enum's tagged-union representation.
type StructLayout struct {
	Name       string
	Fields     []Param
	VTableName string // "" if the type has no virtual methods
	// HasHeader emits the btrc_object ARC header even without a vtable, for
	// classes reachable by "keep" once the program engages reference
	// counting at all (spec section 4.5: "every heap-allocated class
	// instance has a field __rc").
	HasHeader bool
}

// VTableSlot binds one dispatch slot to the concrete function implementing
// it: the declaring class's own method, or an inherited one when the
// subclass never overrides it.
type VTableSlot struct {
	Method string
	Func   string
	Ret    Type
	Params []Type // parameter types only, receiver excluded
}

// VTable is a generated dispatch table: the struct type a class's header
// vtable pointer refers to, plus a static instance some constructed
// instance points at. Name is the struct type; several VTable values may
// share one Name (an interface implemented by more than one class), in
// which case the struct type is emitted once and each carries its own
// instance. InstanceName overrides the default "Name_instance" for that
// case; left "" it defaults to Name+"_instance", the original one
// struct/one instance shape.
type VTable struct {
	Name         string // matches the owning StructLayout's VTableName
	InstanceName string // "" defaults to Name + "_instance"
	Slots        []VTableSlot
}

// Module is the complete lowered program the C Emitter consumes.
type Module struct {
	Structs   []*StructLayout
	VTables   []*VTable
	Globals   []*Global
	Functions []*Function
	// EntryPoint is the mangled name of "main", the optimizer's dead-code
	// elimination root.
	EntryPoint string
}
