// Package codegen implements THE CORE of the translator: the operand and
// line model, the deterministic label registry, the priority-queue slot
// allocator, and the block-by-block lowerer that together turn a parsed
// ir.Module into GNU-assembler x86-64 text.
package codegen

import (
	"fmt"
	"strings"

	"github.com/cs257/x64cg/internal/ir"
)

// Diagnostic is a non-fatal structural problem found while lowering.
// Per spec.md §7, structural errors are reported but never stop emission;
// the resulting assembly is then known to be incorrect.
type Diagnostic struct {
	Message string
}

func (d Diagnostic) String() string { return d.Message }

// Program owns the ordered sequence of output Lines, the label registry,
// and the slot allocator for one full translation run.
type Program struct {
	Lines       []Line
	Labels      *LabelRegistry
	Slots       *SlotAllocator
	Diagnostics []Diagnostic
}

// Emit appends a line to the output in emission order.
func (p *Program) Emit(l Line) {
	p.Lines = append(p.Lines, l)
}

func (p *Program) diagf(format string, args ...interface{}) {
	p.Diagnostics = append(p.Diagnostics, Diagnostic{Message: fmt.Sprintf(format, args...)})
}

// String renders the full assembly listing, one Line per line of output.
func (p *Program) String() string {
	var b strings.Builder
	for _, l := range p.Lines {
		b.WriteString(l.String())
		b.WriteString("\n")
	}
	return b.String()
}

// Generate runs the full translation pipeline over mod: construct the
// label registry, walk every function/block/instruction emitting lines,
// and return the finished assembly text plus any structural diagnostics.
func Generate(mod *ir.Module) (string, []Diagnostic) {
	prog := &Program{Labels: NewLabelRegistry(mod)}
	prog.Slots = NewSlotAllocator(prog.Emit)

	prog.emitHeader(mod)

	for _, fn := range mod.Functions {
		for _, b := range fn.Blocks {
			prog.handleBlockBegin(b)
			for idx, instr := range b.Instrs {
				if instr.Op != ir.OpPhi {
					prog.dispatch(fn, b, instr)
				}
				Sweep(prog.Slots, b, idx)
			}
		}
	}

	return prog.String(), prog.Diagnostics
}

// emitHeader writes the fixed program entry point described in spec.md §6:
// call main, move its result into %rbx as the exit code, and invoke the
// Linux exit syscall via int $0x80.
func (p *Program) emitHeader(mod *ir.Module) {
	p.Emit(LineComment("this assembly generated by the cs257 code generator"))
	p.Emit(LineDirective(".globl _start"))
	p.Emit(LineLabel("_start"))

	mainFn := mod.FindFunction("main")
	if mainFn == nil || len(mainFn.Blocks) == 0 {
		p.diagf("no main function found")
		p.Emit(LineLabelRef("callq", Label("main")))
	} else {
		p.Emit(LineLabelRef("callq", p.Labels.BlockLabel(mainFn.Blocks[0])))
	}

	p.Emit(LineComment("taking main's return value and putting it in %rbx to act as program exit code"))
	p.Emit(LineSrcDst("movq", Reg("rax"), Reg("rbx")))
	p.Emit(LineComment("1 is the linux interrupt code for exit"))
	p.Emit(LineSrcDst("movq", Imm(1), Reg("rax")))
	p.Emit(LineComment("passing control to the kernel"))
	p.Emit(LineImm("int", ImmHex(0x80)))
}

// resolveOperand turns an IR-level operand into an assembly-level one: a
// bare immediate for constants, or the value's current slot otherwise.
func (p *Program) resolveOperand(op ir.Operand) Operand {
	if op.IsConst {
		return Imm(op.Const)
	}
	return p.Slots.Query(op.Val)
}
