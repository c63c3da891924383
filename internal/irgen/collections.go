package irgen

import (
	"github.com/btrc-lang/btrc/internal/ast"
	"github.com/btrc-lang/btrc/internal/ir"
	"github.com/btrc-lang/btrc/internal/sema"
)

// sizeT is the IR's stand-in for C's size_t, used for every collection's
// length/capacity bookkeeping field.
func sizeT() ir.Type { return &ir.TNamed{Name: "size_t"} }

// lowerBuiltinInstantiation lowers one Vector/List/Array/Map/Set
// monomorphization directly to a struct and function family, the built-in
// counterpart to lowerInstantiation's AST-substitution path for
// user-declared generics (spec section 4.5: "built-in collections ... are
// generated in the same monomorphization pass using the same machinery").
// Their method bodies have no user-authored AST to lower, so they are
// assembled straight from ir instructions instead of walking a cloned
// ast.ClassDecl.
func (g *Generator) lowerBuiltinInstantiation(inst sema.Instantiation) bool {
	switch inst.GenericName {
	case "Vector", "List", "Array":
		g.lowerVectorInstantiation(inst)
		return true
	case "Map":
		g.lowerMapInstantiation(inst)
		return true
	case "Set":
		g.lowerSetInstantiation(inst)
		return true
	}
	return false
}

// --- Vector / List / Array --------------------------------------------

func (g *Generator) lowerVectorInstantiation(inst sema.Instantiation) {
	name := inst.MangledName
	elemTy := lowerType(inst.TypeArgs[0])
	dataPtr := &ir.TPtr{Elem: elemTy}
	structPtr := &ir.TPtr{Elem: &ir.TNamed{Name: name}}

	g.structs[name] = &ir.StructLayout{
		Name: name,
		Fields: []ir.Param{
			{Name: "data", Type: dataPtr},
			{Name: "len", Type: sizeT()},
			{Name: "cap", Type: sizeT()},
		},
	}

	g.functions[name+"_new"] = vectorNewFunc(name, structPtr)
	g.functions[name+"_push"] = g.vectorPushFunc(name, structPtr, dataPtr, elemTy)
	g.functions[name+"_get"] = vectorGetFunc(name, "_get", structPtr, dataPtr, elemTy)
	g.functions[name+"_at"] = vectorGetFunc(name, "_at", structPtr, dataPtr, elemTy)
	g.functions[name+"_length"] = vectorLengthFunc(name, "_length", structPtr)
	g.functions[name+"_iterLen"] = vectorLengthFunc(name, "_iterLen", structPtr)
	g.functions[name+"_iterGet"] = vectorGetFunc(name, "_iterGet", structPtr, dataPtr, elemTy)
}

func vectorNewFunc(structName string, structPtr ir.Type) *ir.Function {
	return &ir.Function{
		Name: structName + "_new",
		Ret:  structPtr,
		Blocks: []*ir.Block{{Label: "entry", Instrs: []ir.Instr{
			&ir.New{Dest: "self", TypeName: structName},
			&ir.Ret{Value: &ir.ValueTemp{Name: "self", Type: structPtr}},
		}}},
	}
}

// vectorPushFunc grows the backing array by btrc_vector_grow's doubling
// policy (the collection.vector helper category) whenever len reaches cap,
// then appends value at the end.
func (g *Generator) vectorPushFunc(structName string, structPtr, dataPtr, elemTy ir.Type) *ir.Function {
	fn := &ir.Function{
		Name: structName + "_push",
		Ret:  &ir.TVoid{},
		Params: []ir.Param{
			{Name: "self", Type: structPtr},
			{Name: "value", Type: elemTy},
		},
		HelperDeps: []string{"collection.vector"},
	}
	growL := g.newLabel("vec_grow")
	contL := g.newLabel("vec_cont")

	entry := &ir.Block{Label: "entry", Instrs: []ir.Instr{
		&ir.FieldAddr{Dest: "len_addr", Base: &ir.ValueTemp{Name: "self"}, Field: "len", Type: sizeT()},
		&ir.Load{Dest: "len_val", Type: sizeT(), Addr: &ir.ValueTemp{Name: "len_addr"}},
		&ir.FieldAddr{Dest: "cap_addr", Base: &ir.ValueTemp{Name: "self"}, Field: "cap", Type: sizeT()},
		&ir.Load{Dest: "cap_val", Type: sizeT(), Addr: &ir.ValueTemp{Name: "cap_addr"}},
		&ir.BinOp{Dest: "need_grow", Type: &ir.TBool{}, Op: ">=", Left: &ir.ValueTemp{Name: "len_val"}, Right: &ir.ValueTemp{Name: "cap_val"}},
		&ir.CondBr{Cond: &ir.ValueTemp{Name: "need_grow"}, True: growL, False: contL},
	}}
	grow := &ir.Block{Label: growL, Instrs: []ir.Instr{
		&ir.Call{Dest: "new_cap", Type: sizeT(), Func: "btrc_vector_grow", Args: []ir.Value{&ir.ValueTemp{Name: "cap_val"}}},
		&ir.Store{Addr: &ir.ValueTemp{Name: "cap_addr"}, Value: &ir.ValueTemp{Name: "new_cap"}},
		&ir.FieldAddr{Dest: "data_addr", Base: &ir.ValueTemp{Name: "self"}, Field: "data", Type: dataPtr},
		&ir.Load{Dest: "data_val", Type: dataPtr, Addr: &ir.ValueTemp{Name: "data_addr"}},
		&ir.SizeofType{Dest: "elem_size", Of: elemTy},
		&ir.BinOp{Dest: "byte_size", Type: sizeT(), Op: "*", Left: &ir.ValueTemp{Name: "new_cap"}, Right: &ir.ValueTemp{Name: "elem_size"}},
		&ir.Call{Dest: "new_data", Type: dataPtr, Func: "realloc", Args: []ir.Value{&ir.ValueTemp{Name: "data_val"}, &ir.ValueTemp{Name: "byte_size"}}},
		&ir.Store{Addr: &ir.ValueTemp{Name: "data_addr"}, Value: &ir.ValueTemp{Name: "new_data"}},
		&ir.Br{Target: contL},
	}}
	cont := &ir.Block{Label: contL, Instrs: []ir.Instr{
		&ir.FieldAddr{Dest: "data_addr2", Base: &ir.ValueTemp{Name: "self"}, Field: "data", Type: dataPtr},
		&ir.Load{Dest: "data_val2", Type: dataPtr, Addr: &ir.ValueTemp{Name: "data_addr2"}},
		&ir.IndexAddr{Dest: "slot", Base: &ir.ValueTemp{Name: "data_val2"}, Index: &ir.ValueTemp{Name: "len_val"}, Type: elemTy},
		&ir.Store{Addr: &ir.ValueTemp{Name: "slot"}, Value: &ir.ValueTemp{Name: "value", Type: elemTy}},
		&ir.BinOp{Dest: "new_len", Type: sizeT(), Op: "+", Left: &ir.ValueTemp{Name: "len_val"}, Right: &ir.ValueConstInt{V: 1}},
		&ir.Store{Addr: &ir.ValueTemp{Name: "len_addr"}, Value: &ir.ValueTemp{Name: "new_len"}},
		&ir.Ret{},
	}}
	fn.Blocks = []*ir.Block{entry, grow, cont}
	return fn
}

func vectorGetFunc(structName, suffix string, structPtr, dataPtr, elemTy ir.Type) *ir.Function {
	return &ir.Function{
		Name: structName + suffix,
		Ret:  elemTy,
		Params: []ir.Param{
			{Name: "self", Type: structPtr},
			{Name: "index", Type: &ir.TInt{}},
		},
		Blocks: []*ir.Block{{Label: "entry", Instrs: []ir.Instr{
			&ir.FieldAddr{Dest: "data_addr", Base: &ir.ValueTemp{Name: "self"}, Field: "data", Type: dataPtr},
			&ir.Load{Dest: "data_val", Type: dataPtr, Addr: &ir.ValueTemp{Name: "data_addr"}},
			&ir.IndexAddr{Dest: "slot", Base: &ir.ValueTemp{Name: "data_val"}, Index: &ir.ValueTemp{Name: "index"}, Type: elemTy},
			&ir.Load{Dest: "result", Type: elemTy, Addr: &ir.ValueTemp{Name: "slot"}},
			&ir.Ret{Value: &ir.ValueTemp{Name: "result", Type: elemTy}},
		}}},
	}
}

func vectorLengthFunc(structName, suffix string, structPtr ir.Type) *ir.Function {
	return &ir.Function{
		Name:   structName + suffix,
		Ret:    &ir.TInt{},
		Params: []ir.Param{{Name: "self", Type: structPtr}},
		Blocks: []*ir.Block{{Label: "entry", Instrs: []ir.Instr{
			&ir.FieldAddr{Dest: "len_addr", Base: &ir.ValueTemp{Name: "self"}, Field: "len", Type: &ir.TInt{}},
			&ir.Load{Dest: "len_val", Type: &ir.TInt{}, Addr: &ir.ValueTemp{Name: "len_addr"}},
			&ir.Ret{Value: &ir.ValueTemp{Name: "len_val"}},
		}}},
	}
}

// --- Map -----------------------------------------------------------------

// mapCapacity is the fixed open-addressing table size every Map<K,V>
// instantiation is allocated with; puts beyond this many live entries abort,
// the simplest legal reading of a spec silent on Map's growth policy (only
// Vector is a mandatory end-to-end scenario).
const mapCapacity = 64

func (g *Generator) lowerMapInstantiation(inst sema.Instantiation) {
	if len(inst.TypeArgs) < 2 {
		return
	}
	name := inst.MangledName
	keyTy := lowerType(inst.TypeArgs[0])
	valTy := lowerType(inst.TypeArgs[1])
	keysPtr := &ir.TPtr{Elem: keyTy}
	valuesPtr := &ir.TPtr{Elem: valTy}
	usedPtr := &ir.TPtr{Elem: &ir.TChar{}}
	structPtr := &ir.TPtr{Elem: &ir.TNamed{Name: name}}

	g.structs[name] = &ir.StructLayout{
		Name: name,
		Fields: []ir.Param{
			{Name: "keys", Type: keysPtr},
			{Name: "values", Type: valuesPtr},
			{Name: "used", Type: usedPtr},
			{Name: "len", Type: sizeT()},
			{Name: "cap", Type: sizeT()},
		},
	}

	g.functions[name+"_new"] = mapNewFunc(name, structPtr, keysPtr, valuesPtr, usedPtr, keyTy, valTy)
	g.functions[name+"_put"] = g.mapPutFunc(name, structPtr, keysPtr, valuesPtr, usedPtr, keyTy, valTy)
	g.functions[name+"_get"] = g.mapGetFunc(name, structPtr, keysPtr, valuesPtr, usedPtr, keyTy, valTy)
	g.functions[name+"_length"] = vectorLengthFunc(name, "_length", structPtr)
}

func mapNewFunc(name string, structPtr, keysPtr, valuesPtr, usedPtr ir.Type, keyTy, valTy ir.Type) *ir.Function {
	return &ir.Function{
		Name:       name + "_new",
		Ret:        structPtr,
		HelperDeps: []string{"collection.map"},
		Blocks: []*ir.Block{{Label: "entry", Instrs: []ir.Instr{
			&ir.New{Dest: "self", TypeName: name},
			&ir.SizeofType{Dest: "key_size", Of: keyTy},
			&ir.BinOp{Dest: "keys_bytes", Type: sizeT(), Op: "*", Left: &ir.ValueConstInt{V: mapCapacity}, Right: &ir.ValueTemp{Name: "key_size"}},
			&ir.Call{Dest: "keys_buf", Type: keysPtr, Func: "btrc_alloc", Args: []ir.Value{&ir.ValueTemp{Name: "keys_bytes"}}},
			&ir.FieldAddr{Dest: "keys_addr", Base: &ir.ValueTemp{Name: "self"}, Field: "keys", Type: keysPtr},
			&ir.Store{Addr: &ir.ValueTemp{Name: "keys_addr"}, Value: &ir.ValueTemp{Name: "keys_buf"}},
			&ir.SizeofType{Dest: "val_size", Of: valTy},
			&ir.BinOp{Dest: "values_bytes", Type: sizeT(), Op: "*", Left: &ir.ValueConstInt{V: mapCapacity}, Right: &ir.ValueTemp{Name: "val_size"}},
			&ir.Call{Dest: "values_buf", Type: valuesPtr, Func: "btrc_alloc", Args: []ir.Value{&ir.ValueTemp{Name: "values_bytes"}}},
			&ir.FieldAddr{Dest: "values_addr", Base: &ir.ValueTemp{Name: "self"}, Field: "values", Type: valuesPtr},
			&ir.Store{Addr: &ir.ValueTemp{Name: "values_addr"}, Value: &ir.ValueTemp{Name: "values_buf"}},
			&ir.Call{Dest: "used_buf", Type: usedPtr, Func: "btrc_alloc", Args: []ir.Value{&ir.ValueConstInt{V: mapCapacity}}},
			&ir.FieldAddr{Dest: "used_addr", Base: &ir.ValueTemp{Name: "self"}, Field: "used", Type: usedPtr},
			&ir.Store{Addr: &ir.ValueTemp{Name: "used_addr"}, Value: &ir.ValueTemp{Name: "used_buf"}},
			&ir.FieldAddr{Dest: "cap_addr", Base: &ir.ValueTemp{Name: "self"}, Field: "cap", Type: sizeT()},
			&ir.Store{Addr: &ir.ValueTemp{Name: "cap_addr"}, Value: &ir.ValueConstInt{V: mapCapacity, Type: sizeT()}},
			&ir.Ret{Value: &ir.ValueTemp{Name: "self", Type: structPtr}},
		}}},
	}
}

// probeInstrs emits the shared triangular (quadratic) probe search both put
// and get run: hash the key, then walk btrc_map_probe's sequence until an
// empty slot or a matching key is found, leaving the winning index in
// "slot". A search that has probed cap slots without either outcome aborts.
func (g *Generator) probeInstrs(keyTy, keysPtr, usedPtr ir.Type, foundL, notFoundL string) []*ir.Block {
	loopL := g.newLabel("map_probe")
	checkL := g.newLabel("map_check")
	nextL := g.newLabel("map_next")
	fullL := g.newLabel("map_full")

	entry := &ir.Block{Label: "entry_probe", Instrs: []ir.Instr{
		&ir.Alloc{Dest: "probe_i", Type: sizeT()},
		&ir.UnOp{Dest: "key_addr", Type: &ir.TPtr{Elem: keyTy}, Op: "&", Operand: &ir.ValueTemp{Name: "key"}},
		&ir.SizeofType{Dest: "key_size", Of: keyTy},
		&ir.Call{Dest: "h", Type: &ir.TInt{}, Func: "btrc_hash_bytes", Args: []ir.Value{&ir.ValueTemp{Name: "key_addr"}, &ir.ValueTemp{Name: "key_size"}}},
		&ir.FieldAddr{Dest: "keys_addr", Base: &ir.ValueTemp{Name: "self"}, Field: "keys", Type: keysPtr},
		&ir.Load{Dest: "keys_val", Type: keysPtr, Addr: &ir.ValueTemp{Name: "keys_addr"}},
		&ir.FieldAddr{Dest: "used_addr", Base: &ir.ValueTemp{Name: "self"}, Field: "used", Type: usedPtr},
		&ir.Load{Dest: "used_val", Type: usedPtr, Addr: &ir.ValueTemp{Name: "used_addr"}},
		&ir.FieldAddr{Dest: "cap_addr", Base: &ir.ValueTemp{Name: "self"}, Field: "cap", Type: sizeT()},
		&ir.Load{Dest: "cap_val", Type: sizeT(), Addr: &ir.ValueTemp{Name: "cap_addr"}},
		&ir.Assign{Dest: "probe_i", Value: &ir.ValueConstInt{V: 0, Type: sizeT()}},
		&ir.Br{Target: loopL},
	}}

	loop := &ir.Block{Label: loopL, Instrs: []ir.Instr{
		&ir.Call{Dest: "slot", Type: sizeT(), Func: "btrc_map_probe", Args: []ir.Value{&ir.ValueTemp{Name: "h"}, &ir.ValueTemp{Name: "probe_i"}, &ir.ValueTemp{Name: "cap_val"}}},
		&ir.IndexAddr{Dest: "used_slot_addr", Base: &ir.ValueTemp{Name: "used_val"}, Index: &ir.ValueTemp{Name: "slot"}, Type: &ir.TChar{}},
		&ir.Load{Dest: "used_flag", Type: &ir.TChar{}, Addr: &ir.ValueTemp{Name: "used_slot_addr"}},
		&ir.BinOp{Dest: "is_empty", Type: &ir.TBool{}, Op: "==", Left: &ir.ValueTemp{Name: "used_flag"}, Right: &ir.ValueConstInt{V: 0}},
		&ir.CondBr{Cond: &ir.ValueTemp{Name: "is_empty"}, True: notFoundL, False: checkL},
	}}
	check := &ir.Block{Label: checkL, Instrs: []ir.Instr{
		&ir.IndexAddr{Dest: "key_slot_addr", Base: &ir.ValueTemp{Name: "keys_val"}, Index: &ir.ValueTemp{Name: "slot"}, Type: keyTy},
		&ir.Load{Dest: "key_at", Type: keyTy, Addr: &ir.ValueTemp{Name: "key_slot_addr"}},
		&ir.BinOp{Dest: "key_matches", Type: &ir.TBool{}, Op: "==", Left: &ir.ValueTemp{Name: "key_at"}, Right: &ir.ValueTemp{Name: "key", Type: keyTy}},
		&ir.CondBr{Cond: &ir.ValueTemp{Name: "key_matches"}, True: foundL, False: nextL},
	}}
	next := &ir.Block{Label: nextL, Instrs: []ir.Instr{
		&ir.BinOp{Dest: "probe_i_next", Type: sizeT(), Op: "+", Left: &ir.ValueTemp{Name: "probe_i"}, Right: &ir.ValueConstInt{V: 1}},
		&ir.Assign{Dest: "probe_i", Value: &ir.ValueTemp{Name: "probe_i_next"}},
		&ir.BinOp{Dest: "probe_left", Type: &ir.TBool{}, Op: "<", Left: &ir.ValueTemp{Name: "probe_i_next"}, Right: &ir.ValueTemp{Name: "cap_val"}},
		&ir.CondBr{Cond: &ir.ValueTemp{Name: "probe_left"}, True: loopL, False: fullL},
	}}
	full := &ir.Block{Label: fullL, Instrs: []ir.Instr{
		&ir.Call{Func: "abort"},
		&ir.Br{Target: loopL},
	}}
	return []*ir.Block{entry, loop, check, next, full}
}

func (g *Generator) mapPutFunc(name string, structPtr, keysPtr, valuesPtr, usedPtr ir.Type, keyTy, valTy ir.Type) *ir.Function {
	foundL := g.newLabel("map_put_slot")
	blocks := g.probeInstrs(keyTy, keysPtr, usedPtr, foundL, foundL)
	found := &ir.Block{Label: foundL, Instrs: []ir.Instr{
		&ir.IndexAddr{Dest: "key_dst", Base: &ir.ValueTemp{Name: "keys_val"}, Index: &ir.ValueTemp{Name: "slot"}, Type: keyTy},
		&ir.Store{Addr: &ir.ValueTemp{Name: "key_dst"}, Value: &ir.ValueTemp{Name: "key", Type: keyTy}},
		&ir.FieldAddr{Dest: "values_addr2", Base: &ir.ValueTemp{Name: "self"}, Field: "values", Type: valuesPtr},
		&ir.Load{Dest: "values_val", Type: valuesPtr, Addr: &ir.ValueTemp{Name: "values_addr2"}},
		&ir.IndexAddr{Dest: "val_dst", Base: &ir.ValueTemp{Name: "values_val"}, Index: &ir.ValueTemp{Name: "slot"}, Type: valTy},
		&ir.Store{Addr: &ir.ValueTemp{Name: "val_dst"}, Value: &ir.ValueTemp{Name: "value", Type: valTy}},
		&ir.IndexAddr{Dest: "used_dst", Base: &ir.ValueTemp{Name: "used_val"}, Index: &ir.ValueTemp{Name: "slot"}, Type: &ir.TChar{}},
		&ir.Store{Addr: &ir.ValueTemp{Name: "used_dst"}, Value: &ir.ValueConstInt{V: 1}},
		&ir.FieldAddr{Dest: "len_addr", Base: &ir.ValueTemp{Name: "self"}, Field: "len", Type: sizeT()},
		&ir.Load{Dest: "len_val", Type: sizeT(), Addr: &ir.ValueTemp{Name: "len_addr"}},
		&ir.BinOp{Dest: "new_len", Type: sizeT(), Op: "+", Left: &ir.ValueTemp{Name: "len_val"}, Right: &ir.ValueConstInt{V: 1}},
		&ir.Store{Addr: &ir.ValueTemp{Name: "len_addr"}, Value: &ir.ValueTemp{Name: "new_len"}},
		&ir.Ret{},
	}}
	blocks = append(blocks, found)
	return &ir.Function{
		Name: name + "_put",
		Ret:  &ir.TVoid{},
		Params: []ir.Param{
			{Name: "self", Type: structPtr},
			{Name: "key", Type: keyTy},
			{Name: "value", Type: valTy},
		},
		HelperDeps: []string{"collection.map", "hash"},
		Blocks:     blocks,
	}
}

func (g *Generator) mapGetFunc(name string, structPtr, keysPtr, valuesPtr, usedPtr ir.Type, keyTy, valTy ir.Type) *ir.Function {
	foundL := g.newLabel("map_get_found")
	missL := g.newLabel("map_get_miss")
	blocks := g.probeInstrs(keyTy, keysPtr, usedPtr, foundL, missL)
	found := &ir.Block{Label: foundL, Instrs: []ir.Instr{
		&ir.FieldAddr{Dest: "values_addr2", Base: &ir.ValueTemp{Name: "self"}, Field: "values", Type: valuesPtr},
		&ir.Load{Dest: "values_val", Type: valuesPtr, Addr: &ir.ValueTemp{Name: "values_addr2"}},
		&ir.IndexAddr{Dest: "val_src", Base: &ir.ValueTemp{Name: "values_val"}, Index: &ir.ValueTemp{Name: "slot"}, Type: valTy},
		&ir.Load{Dest: "result", Type: valTy, Addr: &ir.ValueTemp{Name: "val_src"}},
		&ir.Ret{Value: &ir.ValueTemp{Name: "result", Type: valTy}},
	}}
	miss := &ir.Block{Label: missL, Instrs: []ir.Instr{
		&ir.Ret{Value: zeroValue(valTy)},
	}}
	blocks = append(blocks, found, miss)
	return &ir.Function{
		Name: name + "_get",
		Ret:  valTy,
		Params: []ir.Param{
			{Name: "self", Type: structPtr},
			{Name: "key", Type: keyTy},
		},
		HelperDeps: []string{"collection.map", "hash"},
		Blocks:     blocks,
	}
}

// --- Set -------------------------------------------------------------------

// Set<T> reuses Map<T,V>'s probing table shape with the value slot dropped,
// membership alone tracked by the used flags.
func (g *Generator) lowerSetInstantiation(inst sema.Instantiation) {
	if len(inst.TypeArgs) < 1 {
		return
	}
	name := inst.MangledName
	elemTy := lowerType(inst.TypeArgs[0])
	elemsPtr := &ir.TPtr{Elem: elemTy}
	usedPtr := &ir.TPtr{Elem: &ir.TChar{}}
	structPtr := &ir.TPtr{Elem: &ir.TNamed{Name: name}}

	g.structs[name] = &ir.StructLayout{
		Name: name,
		Fields: []ir.Param{
			{Name: "elems", Type: elemsPtr},
			{Name: "used", Type: usedPtr},
			{Name: "len", Type: sizeT()},
			{Name: "cap", Type: sizeT()},
		},
	}

	g.functions[name+"_new"] = setNewFunc(name, structPtr, elemsPtr, usedPtr, elemTy)
	g.functions[name+"_add"] = g.setAddFunc(name, structPtr, elemsPtr, usedPtr, elemTy)
	g.functions[name+"_contains"] = g.setContainsFunc(name, structPtr, elemsPtr, usedPtr, elemTy)
	g.functions[name+"_length"] = vectorLengthFunc(name, "_length", structPtr)
}

func setNewFunc(name string, structPtr, elemsPtr, usedPtr ir.Type, elemTy ir.Type) *ir.Function {
	return &ir.Function{
		Name:       name + "_new",
		Ret:        structPtr,
		HelperDeps: []string{"collection.map"},
		Blocks: []*ir.Block{{Label: "entry", Instrs: []ir.Instr{
			&ir.New{Dest: "self", TypeName: name},
			&ir.SizeofType{Dest: "elem_size", Of: elemTy},
			&ir.BinOp{Dest: "elems_bytes", Type: sizeT(), Op: "*", Left: &ir.ValueConstInt{V: mapCapacity}, Right: &ir.ValueTemp{Name: "elem_size"}},
			&ir.Call{Dest: "elems_buf", Type: elemsPtr, Func: "btrc_alloc", Args: []ir.Value{&ir.ValueTemp{Name: "elems_bytes"}}},
			&ir.FieldAddr{Dest: "elems_addr", Base: &ir.ValueTemp{Name: "self"}, Field: "elems", Type: elemsPtr},
			&ir.Store{Addr: &ir.ValueTemp{Name: "elems_addr"}, Value: &ir.ValueTemp{Name: "elems_buf"}},
			&ir.Call{Dest: "used_buf", Type: usedPtr, Func: "btrc_alloc", Args: []ir.Value{&ir.ValueConstInt{V: mapCapacity}}},
			&ir.FieldAddr{Dest: "used_addr", Base: &ir.ValueTemp{Name: "self"}, Field: "used", Type: usedPtr},
			&ir.Store{Addr: &ir.ValueTemp{Name: "used_addr"}, Value: &ir.ValueTemp{Name: "used_buf"}},
			&ir.FieldAddr{Dest: "cap_addr", Base: &ir.ValueTemp{Name: "self"}, Field: "cap", Type: sizeT()},
			&ir.Store{Addr: &ir.ValueTemp{Name: "cap_addr"}, Value: &ir.ValueConstInt{V: mapCapacity, Type: sizeT()}},
			&ir.Ret{Value: &ir.ValueTemp{Name: "self", Type: structPtr}},
		}}},
	}
}

// setProbe mirrors probeInstrs but reads the "elems" field name instead of
// "keys", since Set has no companion value array.
func (g *Generator) setProbe(elemTy, elemsPtr, usedPtr ir.Type, foundL, notFoundL string) []*ir.Block {
	loopL := g.newLabel("set_probe")
	checkL := g.newLabel("set_check")
	nextL := g.newLabel("set_next")

	entry := &ir.Block{Label: "entry_probe", Instrs: []ir.Instr{
		&ir.Alloc{Dest: "probe_i", Type: sizeT()},
		&ir.UnOp{Dest: "elem_addr", Type: &ir.TPtr{Elem: elemTy}, Op: "&", Operand: &ir.ValueTemp{Name: "value"}},
		&ir.SizeofType{Dest: "elem_size", Of: elemTy},
		&ir.Call{Dest: "h", Type: &ir.TInt{}, Func: "btrc_hash_bytes", Args: []ir.Value{&ir.ValueTemp{Name: "elem_addr"}, &ir.ValueTemp{Name: "elem_size"}}},
		&ir.FieldAddr{Dest: "elems_addr", Base: &ir.ValueTemp{Name: "self"}, Field: "elems", Type: elemsPtr},
		&ir.Load{Dest: "elems_val", Type: elemsPtr, Addr: &ir.ValueTemp{Name: "elems_addr"}},
		&ir.FieldAddr{Dest: "used_addr", Base: &ir.ValueTemp{Name: "self"}, Field: "used", Type: usedPtr},
		&ir.Load{Dest: "used_val", Type: usedPtr, Addr: &ir.ValueTemp{Name: "used_addr"}},
		&ir.FieldAddr{Dest: "cap_addr", Base: &ir.ValueTemp{Name: "self"}, Field: "cap", Type: sizeT()},
		&ir.Load{Dest: "cap_val", Type: sizeT(), Addr: &ir.ValueTemp{Name: "cap_addr"}},
		&ir.Assign{Dest: "probe_i", Value: &ir.ValueConstInt{V: 0, Type: sizeT()}},
		&ir.Br{Target: loopL},
	}}
	loop := &ir.Block{Label: loopL, Instrs: []ir.Instr{
		&ir.Call{Dest: "slot", Type: sizeT(), Func: "btrc_map_probe", Args: []ir.Value{&ir.ValueTemp{Name: "h"}, &ir.ValueTemp{Name: "probe_i"}, &ir.ValueTemp{Name: "cap_val"}}},
		&ir.IndexAddr{Dest: "used_slot_addr", Base: &ir.ValueTemp{Name: "used_val"}, Index: &ir.ValueTemp{Name: "slot"}, Type: &ir.TChar{}},
		&ir.Load{Dest: "used_flag", Type: &ir.TChar{}, Addr: &ir.ValueTemp{Name: "used_slot_addr"}},
		&ir.BinOp{Dest: "is_empty", Type: &ir.TBool{}, Op: "==", Left: &ir.ValueTemp{Name: "used_flag"}, Right: &ir.ValueConstInt{V: 0}},
		&ir.CondBr{Cond: &ir.ValueTemp{Name: "is_empty"}, True: notFoundL, False: checkL},
	}}
	check := &ir.Block{Label: checkL, Instrs: []ir.Instr{
		&ir.IndexAddr{Dest: "elem_slot_addr", Base: &ir.ValueTemp{Name: "elems_val"}, Index: &ir.ValueTemp{Name: "slot"}, Type: elemTy},
		&ir.Load{Dest: "elem_at", Type: elemTy, Addr: &ir.ValueTemp{Name: "elem_slot_addr"}},
		&ir.BinOp{Dest: "elem_matches", Type: &ir.TBool{}, Op: "==", Left: &ir.ValueTemp{Name: "elem_at"}, Right: &ir.ValueTemp{Name: "value", Type: elemTy}},
		&ir.CondBr{Cond: &ir.ValueTemp{Name: "elem_matches"}, True: foundL, False: nextL},
	}}
	next := &ir.Block{Label: nextL, Instrs: []ir.Instr{
		&ir.BinOp{Dest: "probe_i_next", Type: sizeT(), Op: "+", Left: &ir.ValueTemp{Name: "probe_i"}, Right: &ir.ValueConstInt{V: 1}},
		&ir.Assign{Dest: "probe_i", Value: &ir.ValueTemp{Name: "probe_i_next"}},
		&ir.Br{Target: loopL},
	}}
	return []*ir.Block{entry, loop, check, next}
}

func (g *Generator) setAddFunc(name string, structPtr, elemsPtr, usedPtr ir.Type, elemTy ir.Type) *ir.Function {
	foundL := g.newLabel("set_add_slot")
	blocks := g.setProbe(elemTy, elemsPtr, usedPtr, foundL, foundL)
	found := &ir.Block{Label: foundL, Instrs: []ir.Instr{
		&ir.IndexAddr{Dest: "elem_dst", Base: &ir.ValueTemp{Name: "elems_val"}, Index: &ir.ValueTemp{Name: "slot"}, Type: elemTy},
		&ir.Store{Addr: &ir.ValueTemp{Name: "elem_dst"}, Value: &ir.ValueTemp{Name: "value", Type: elemTy}},
		&ir.IndexAddr{Dest: "used_dst", Base: &ir.ValueTemp{Name: "used_val"}, Index: &ir.ValueTemp{Name: "slot"}, Type: &ir.TChar{}},
		&ir.Store{Addr: &ir.ValueTemp{Name: "used_dst"}, Value: &ir.ValueConstInt{V: 1}},
		&ir.FieldAddr{Dest: "len_addr", Base: &ir.ValueTemp{Name: "self"}, Field: "len", Type: sizeT()},
		&ir.Load{Dest: "len_val", Type: sizeT(), Addr: &ir.ValueTemp{Name: "len_addr"}},
		&ir.BinOp{Dest: "new_len", Type: sizeT(), Op: "+", Left: &ir.ValueTemp{Name: "len_val"}, Right: &ir.ValueConstInt{V: 1}},
		&ir.Store{Addr: &ir.ValueTemp{Name: "len_addr"}, Value: &ir.ValueTemp{Name: "new_len"}},
		&ir.Ret{},
	}}
	blocks = append(blocks, found)
	return &ir.Function{
		Name:       name + "_add",
		Ret:        &ir.TVoid{},
		Params:     []ir.Param{{Name: "self", Type: structPtr}, {Name: "value", Type: elemTy}},
		HelperDeps: []string{"collection.map", "hash"},
		Blocks:     blocks,
	}
}

func (g *Generator) setContainsFunc(name string, structPtr, elemsPtr, usedPtr ir.Type, elemTy ir.Type) *ir.Function {
	foundL := g.newLabel("set_has_found")
	missL := g.newLabel("set_has_miss")
	blocks := g.setProbe(elemTy, elemsPtr, usedPtr, foundL, missL)
	found := &ir.Block{Label: foundL, Instrs: []ir.Instr{&ir.Ret{Value: &ir.ValueConstBool{V: true}}}}
	miss := &ir.Block{Label: missL, Instrs: []ir.Instr{&ir.Ret{Value: &ir.ValueConstBool{V: false}}}}
	blocks = append(blocks, found, miss)
	return &ir.Function{
		Name:       name + "_contains",
		Ret:        &ir.TBool{},
		Params:     []ir.Param{{Name: "self", Type: structPtr}, {Name: "value", Type: elemTy}},
		HelperDeps: []string{"collection.map", "hash"},
		Blocks:     blocks,
	}
}

// isBuiltinCollectionName reports whether name (an ast.NamedType's Name) is
// one of the built-in generic collections lowered by this file rather than
// by a user ClassDecl.
func isBuiltinCollectionName(name string) bool {
	switch name {
	case "Vector", "List", "Array", "Map", "Set":
		return true
	}
	return false
}

// builtinCollectionMangled reports whether ty is a Vector/List/Array/Set
// instantiation (Map excluded: it has no single "element" for iteration),
// returning the mangled struct name lowerType would produce and the
// collection's element type.
func builtinCollectionMangled(ty ast.Type) (mangled string, elemTy ast.Type, ok bool) {
	nt, isNamed := ty.(*ast.NamedType)
	if !isNamed || len(nt.Args) == 0 {
		return "", nil, false
	}
	switch nt.Name {
	case "Vector", "List", "Array", "Set":
		return mangleNamed(nt), nt.Args[0], true
	}
	return "", nil, false
}
