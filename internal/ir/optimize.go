package ir

import "sort"

// Optimize runs the IR Optimizer pass (spec section 4.6): a worklist-based
// reachability sweep from EntryPoint that discards every function and
// struct layout nothing live can reach, generalizing the teacher's
// eliminateDeadFunctions/findCallsExpr/findCallsStmt (a reachable-set
// closure seeded from "main"/"isr") from a flat AST call graph to this
// package's IR instructions, and extending it to also keep every method of
// a class that is ever constructed, since a virtual call's target may be
// any override reachable through that class's vtable.
func Optimize(m *Module) *Module {
	fnByName := make(map[string]*Function, len(m.Functions))
	for _, fn := range m.Functions {
		fnByName[fn.Name] = fn
	}

	reachableFn := map[string]bool{}
	reachableStruct := map[string]bool{}
	var worklist []string
	if m.EntryPoint != "" {
		worklist = append(worklist, m.EntryPoint)
		reachableFn[m.EntryPoint] = true
	}

	constructedTypes := map[string]bool{}
	for _, fn := range m.Functions {
		for _, b := range fn.Blocks {
			for _, ins := range b.Instrs {
				if n, ok := ins.(*New); ok {
					if !constructedTypes[n.TypeName] {
						constructedTypes[n.TypeName] = true
					}
				}
			}
		}
	}

	for len(worklist) > 0 {
		name := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		fn, ok := fnByName[name]
		if !ok {
			continue
		}
		for _, b := range fn.Blocks {
			for _, ins := range b.Instrs {
				switch ins := ins.(type) {
				case *Call:
					if !reachableFn[ins.Func] {
						reachableFn[ins.Func] = true
						worklist = append(worklist, ins.Func)
					}
				case *New:
					reachableStruct[ins.TypeName] = true
					for candidate := range fnByName {
						if hasClassPrefix(candidate, ins.TypeName) && !reachableFn[candidate] {
							reachableFn[candidate] = true
							worklist = append(worklist, candidate)
						}
					}
				case *VCall:
					// A virtual call keeps every override of Method across
					// every constructed class, since the concrete receiver
					// type is not known until runtime.
					for typeName := range constructedTypes {
						candidate := typeName + "_" + ins.Method
						if _, exists := fnByName[candidate]; exists && !reachableFn[candidate] {
							reachableFn[candidate] = true
							worklist = append(worklist, candidate)
						}
					}
				}
			}
		}
	}

	out := &Module{EntryPoint: m.EntryPoint}
	for _, fn := range m.Functions {
		if reachableFn[fn.Name] {
			out.Functions = append(out.Functions, fn)
		}
	}
	for _, s := range m.Structs {
		if reachableStruct[s.Name] || usedAsFieldType(s.Name, out.Functions, m.Structs) {
			out.Structs = append(out.Structs, s)
		}
	}
	out.Globals = m.Globals

	survivingVTables := map[string]bool{}
	for _, s := range out.Structs {
		if s.VTableName != "" {
			survivingVTables[s.VTableName] = true
		}
	}
	for _, v := range m.VTables {
		keep := survivingVTables[v.Name]
		// An interface vtable instance (Class_Iface_vtable_instance) lives
		// as long as its implementing class's struct does.
		for _, s := range out.Structs {
			keep = keep || (v.InstanceName != "" && hasClassPrefix(v.InstanceName, s.Name))
		}
		if keep {
			out.VTables = append(out.VTables, v)
		}
	}

	sort.Slice(out.Functions, func(i, j int) bool { return out.Functions[i].Name < out.Functions[j].Name })
	sort.Slice(out.Structs, func(i, j int) bool { return out.Structs[i].Name < out.Structs[j].Name })
	sort.Slice(out.VTables, func(i, j int) bool { return out.VTables[i].Name < out.VTables[j].Name })
	return out
}

func hasClassPrefix(fnName, typeName string) bool {
	return len(fnName) > len(typeName)+1 && fnName[:len(typeName)+1] == typeName+"_"
}

// usedAsFieldType keeps a struct alive when it appears as a field type of
// any struct in the module, kept or not, so a class holding a Vector<int>
// field does not lose its generated Vector_int layout.
func usedAsFieldType(name string, fns []*Function, all []*StructLayout) bool {
	for _, s := range all {
		for _, f := range s.Fields {
			if named, ok := f.Type.(*TNamed); ok && named.Name == name {
				return true
			}
		}
	}
	return false
}
