// Package emit is the C Emitter (spec section 4.7): it renders a lowered
// and optimized ir.Module to a single self-contained C translation unit,
// one rendering function per IR node kind, in a fixed deterministic order
// (standard headers, helper categories, struct layouts, globals, forward
// declarations, function bodies) so that compiling the same input twice
// byte-for-byte reproduces the same output.
package emit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/btrc-lang/btrc/internal/helpers"
	"github.com/btrc-lang/btrc/internal/ir"
)

// Options configures a single emission pass.
type Options struct {
	// Registry supplies helper category source; the zero value uses
	// helpers.NewRegistry().
	Registry *helpers.Registry
}

// Emit renders m to a complete C source file.
func Emit(m *ir.Module, opts Options) (string, error) {
	reg := opts.Registry
	if reg == nil {
		reg = helpers.NewRegistry()
	}

	var needed []string
	seen := map[string]bool{}
	for _, fn := range m.Functions {
		for _, dep := range fn.HelperDeps {
			if !seen[dep] {
				seen[dep] = true
				needed = append(needed, dep)
			}
		}
	}
	resolved, err := reg.Resolve(needed)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(header())
	sb.WriteString("\n")
	sb.WriteString(reg.Render(resolved))
	sb.WriteString("\n")

	for _, s := range sortedStructs(m.Structs) {
		emitStruct(&sb, s)
	}
	seenVTableStruct := map[string]bool{}
	for _, v := range sortedVTables(m.VTables) {
		if seenVTableStruct[v.Name] {
			continue // interface shared by several classes: one struct type, many instances
		}
		seenVTableStruct[v.Name] = true
		emitVTableStruct(&sb, v)
	}
	for _, g := range m.Globals {
		emitGlobal(&sb, g)
	}
	for _, fn := range sortedFunctions(m.Functions) {
		emitForwardDecl(&sb, fn)
	}
	sb.WriteString("\n")
	for _, v := range sortedVTables(m.VTables) {
		emitVTableInstance(&sb, v)
	}
	for _, fn := range sortedFunctions(m.Functions) {
		if err := emitFunction(&sb, fn); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

func sortedVTables(in []*ir.VTable) []*ir.VTable {
	out := append([]*ir.VTable(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// emitVTableStruct declares the function-pointer struct type a class's
// header vtable field points at (spec section 4.5's virtual dispatch).
// Every slot's first parameter is an untyped "void *self" rather than the
// declaring class's own pointer type, so one slot type fits every override
// and the instance initializer casts each method address once instead of
// needing a per-class slot type.
func emitVTableStruct(sb *strings.Builder, v *ir.VTable) {
	fmt.Fprintf(sb, "struct %s {\n", v.Name)
	for _, s := range v.Slots {
		fmt.Fprintf(sb, "    %s;\n", cFuncPtrDecl(s, s.Method))
	}
	sb.WriteString("};\n\n")
}

// emitVTableInstance defines the single static const instance every
// constructed instance of the class points its header vtable field at.
// Each slot casts the implementing function's address to the slot's
// void*-self signature, since the function itself is declared with its
// own class's pointer type as "self".
func emitVTableInstance(sb *strings.Builder, v *ir.VTable) {
	instance := v.InstanceName
	if instance == "" {
		instance = v.Name + "_instance"
	}
	fmt.Fprintf(sb, "static const struct %s %s = {\n", v.Name, instance)
	for _, s := range v.Slots {
		fmt.Fprintf(sb, "    .%s = (%s)&%s,\n", s.Method, cFuncPtrType(s), s.Func)
	}
	sb.WriteString("};\n\n")
}

func cFuncPtrDecl(s ir.VTableSlot, name string) string {
	params := make([]string, 0, len(s.Params)+1)
	params = append(params, "void *self")
	for i, p := range s.Params {
		params = append(params, fmt.Sprintf("%s a%d", cType(p), i))
	}
	return fmt.Sprintf("%s (*%s)(%s)", cType(s.Ret), name, strings.Join(params, ", "))
}

func cFuncPtrType(s ir.VTableSlot) string {
	params := make([]string, 0, len(s.Params)+1)
	params = append(params, "void *")
	for _, p := range s.Params {
		params = append(params, cType(p))
	}
	return fmt.Sprintf("%s (*)(%s)", cType(s.Ret), strings.Join(params, ", "))
}

func header() string {
	return `/* Generated by btrc. Do not edit by hand. */
#include <stddef.h>
#include <stdio.h>
#include <stdlib.h>
#include <string.h>
#include <setjmp.h>
#include <pthread.h>
`
}

func sortedStructs(in []*ir.StructLayout) []*ir.StructLayout {
	out := append([]*ir.StructLayout(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sortedFunctions(in []*ir.Function) []*ir.Function {
	out := append([]*ir.Function(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func emitStruct(sb *strings.Builder, s *ir.StructLayout) {
	fmt.Fprintf(sb, "typedef struct %s {\n", s.Name)
	if s.VTableName != "" {
		fmt.Fprintf(sb, "    btrc_object header;\n    const struct %s *vtable;\n", s.VTableName)
	} else if s.HasHeader {
		fmt.Fprintf(sb, "    btrc_object header;\n")
	}
	for _, f := range s.Fields {
		fmt.Fprintf(sb, "    %s;\n", cDeclare(f.Type, f.Name))
	}
	fmt.Fprintf(sb, "} %s;\n\n", s.Name)
}

func emitGlobal(sb *strings.Builder, g *ir.Global) {
	if g.Init != nil {
		fmt.Fprintf(sb, "static %s = %s;\n", cDeclare(g.Type, g.Name), cValue(g.Init))
	} else {
		fmt.Fprintf(sb, "static %s;\n", cDeclare(g.Type, g.Name))
	}
}

func emitForwardDecl(sb *strings.Builder, fn *ir.Function) {
	fmt.Fprintf(sb, "static %s %s(%s);\n", cType(fn.Ret), fn.Name, cParams(fn.Params))
}

func emitFunction(sb *strings.Builder, fn *ir.Function) error {
	fmt.Fprintf(sb, "\nstatic %s %s(%s) {\n", cType(fn.Ret), fn.Name, cParams(fn.Params))
	for _, b := range fn.Blocks {
		fmt.Fprintf(sb, "%s:\n", b.Label)
		for _, instr := range b.Instrs {
			line, err := cInstr(instr)
			if err != nil {
				return err
			}
			sb.WriteString("    ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("}\n")
	return nil
}

func cParams(params []ir.Param) string {
	if len(params) == 0 {
		return "void"
	}
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = cDeclare(p.Type, p.Name)
	}
	return strings.Join(parts, ", ")
}

func cDeclare(t ir.Type, name string) string {
	if ptr, ok := t.(*ir.TPtr); ok {
		return cDeclare(ptr.Elem, "*"+name)
	}
	return cType(t) + " " + name
}

// addrType is FieldAddr/IndexAddr's declared pointee type, falling back to
// void when the lowering pass didn't resolve one; a void* address can still
// be handed to a helper function taking void*, it just can't be
// dereferenced directly by a paired Load/Store.
func addrType(t ir.Type) ir.Type {
	if t == nil {
		return &ir.TVoid{}
	}
	return t
}

func cType(t ir.Type) string {
	switch t := t.(type) {
	case nil:
		return "void"
	case *ir.TInt:
		return "long"
	case *ir.TFloat:
		return "float"
	case *ir.TDouble:
		return "double"
	case *ir.TChar:
		return "char"
	case *ir.TBool:
		return "int"
	case *ir.TVoid:
		return "void"
	case *ir.TPtr:
		return cType(t.Elem) + " *"
	case *ir.TNamed:
		return t.Name
	case *ir.TRaw:
		return t.Text
	default:
		return "void"
	}
}

func cValue(v ir.Value) string {
	switch v := v.(type) {
	case *ir.ValueTemp:
		return v.Name
	case *ir.ValueConstInt:
		return fmt.Sprintf("%d", v.V)
	case *ir.ValueConstFloat:
		return fmt.Sprintf("%g", v.V)
	case *ir.ValueConstString:
		return fmt.Sprintf("%q", v.V)
	case *ir.ValueConstBool:
		if v.V {
			return "1"
		}
		return "0"
	case *ir.ValueNull:
		return "NULL"
	case *ir.ValueGlobal:
		return v.Name
	case *ir.ValueAddr:
		return "&" + v.Name
	case *ir.ValueRaw:
		return v.Text
	default:
		return "/* ? */"
	}
}

func cInstr(instr ir.Instr) (string, error) {
	switch instr := instr.(type) {
	case *ir.Alloc:
		return fmt.Sprintf("%s;", cDeclare(instr.Type, instr.Dest)), nil
	case *ir.Store:
		return fmt.Sprintf("*(%s) = %s;", cValue(instr.Addr), cValue(instr.Value)), nil
	case *ir.Load:
		return fmt.Sprintf("%s = *(%s);", cDeclare(instr.Type, instr.Dest), cValue(instr.Addr)), nil
	case *ir.BinOp:
		return fmt.Sprintf("%s = %s %s %s;", cDeclare(instr.Type, instr.Dest), cValue(instr.Left), instr.Op, cValue(instr.Right)), nil
	case *ir.UnOp:
		return fmt.Sprintf("%s = %s%s;", cDeclare(instr.Type, instr.Dest), instr.Op, cValue(instr.Operand)), nil
	case *ir.FieldAddr:
		return fmt.Sprintf("%s = &(%s)->%s;", cDeclare(&ir.TPtr{Elem: addrType(instr.Type)}, instr.Dest), cValue(instr.Base), instr.Field), nil
	case *ir.IndexAddr:
		return fmt.Sprintf("%s = &(%s)[%s];", cDeclare(&ir.TPtr{Elem: addrType(instr.Type)}, instr.Dest), cValue(instr.Base), cValue(instr.Index)), nil
	case *ir.Call:
		call := fmt.Sprintf("%s(%s)", instr.Func, cArgs(instr.Args))
		if instr.Dest == "" {
			return call + ";", nil
		}
		return fmt.Sprintf("%s = %s;", cDeclare(instr.Type, instr.Dest), call), nil
	case *ir.VCall:
		call := fmt.Sprintf("(%s)->vtable->%s(%s%s)", cValue(instr.Recv), instr.Method, cValue(instr.Recv), argsTail(instr.Args))
		if instr.Dest == "" {
			return call + ";", nil
		}
		return fmt.Sprintf("%s = %s;", cDeclare(instr.Type, instr.Dest), call), nil
	case *ir.Retain:
		return fmt.Sprintf("btrc_retain((void *)%s);", cValue(instr.V)), nil
	case *ir.Release:
		return fmt.Sprintf("btrc_release((void *)%s);", cValue(instr.V)), nil
	case *ir.New:
		return fmt.Sprintf("%s *%s = (%s *)btrc_alloc(sizeof(%s));", instr.TypeName, instr.Dest, instr.TypeName, instr.TypeName), nil
	case *ir.Br:
		return fmt.Sprintf("goto %s;", instr.Target), nil
	case *ir.CondBr:
		return fmt.Sprintf("if (%s) goto %s; else goto %s;", cValue(instr.Cond), instr.True, instr.False), nil
	case *ir.Ret:
		if instr.Value == nil {
			return "return;", nil
		}
		return fmt.Sprintf("return %s;", cValue(instr.Value)), nil
	case *ir.Throw:
		return fmt.Sprintf("btrc_throw((void *)%s, 0);", cValue(instr.Value)), nil
	case *ir.EnterTry:
		frame := "btrc_frame_" + instr.Label
		target := instr.FinallyLabel
		if len(instr.CatchLabels) > 0 {
			target = instr.CatchLabels[0]
		}
		if target == "" {
			target = instr.Label
		}
		return fmt.Sprintf("btrc_exception_frame %s; btrc_push_frame(&%s); if (setjmp(%s.buf) == 0) goto %s; else goto %s;",
			frame, frame, frame, instr.Label, target), nil
	case *ir.LeaveTry:
		return "btrc_pop_frame();", nil
	case *ir.Assign:
		return fmt.Sprintf("%s = %s;", instr.Dest, cValue(instr.Value)), nil
	case *ir.SizeofType:
		return fmt.Sprintf("size_t %s = sizeof(%s);", instr.Dest, cType(instr.Of)), nil
	default:
		return "", fmt.Errorf("emit: unhandled instruction %T", instr)
	}
}

func cArgs(args []ir.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = cValue(a)
	}
	return strings.Join(parts, ", ")
}

func argsTail(args []ir.Value) string {
	if len(args) == 0 {
		return ""
	}
	return ", " + cArgs(args)
}
