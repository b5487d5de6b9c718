package codegen

import "github.com/cs257/x64cg/internal/ir"

// ---------------------------------------------------------------------------
// Lowerer — the block-by-block walker described in spec.md §4.4.
//
// The handlers below are methods on *Program because they need to both
// emit Lines and read/mutate the slot allocator; Program plays both the
// output-buffer role and the lowerer role, the same way the reference
// implementation's single x86Program type owns both.
// ---------------------------------------------------------------------------

// handleBlockBegin implements spec.md §4.4.1: emit the block's label,
// restore any snapshot registered under it, run the function prologue if
// this is an entry block, and lower a leading φ-batch if present.
func (p *Program) handleBlockBegin(b *ir.Block) {
	label := p.Labels.BlockLabel(b)
	p.Emit(LineLabel(label))

	if p.Slots.HasSnapshot(label) {
		p.Slots.Restore(label)
	}

	if b.IsEntry() {
		p.Slots.ResetFrame()
		p.Emit(LineSrc("pushq", Reg("rbp")))
		p.Emit(LineSrcDst("movq", Reg("rsp"), Reg("rbp")))
		for _, r := range CalleeSaved {
			p.Emit(LineSrc("pushq", Reg(r)))
		}

		fn := b.Function
		if fn.Param != nil && fn.HasUse(fn.Param) {
			slot := p.Slots.Acquire(fn.Param)
			p.Emit(LineSrcDst("movq", Reg("rdi"), slot))
		}
	}

	if b.StartsWithPhi() {
		p.lowerPhiBatch(b)
	}
}

// lowerPhiBatch implements spec.md §4.4.1's φ-batch lowering: acquire a
// slot for every used φ-node up front, then for each distinct predecessor
// feeding one of them, emit that edge's landing pad performing the
// parallel copy before jumping to a label shared by every edge.
func (p *Program) lowerPhiBatch(b *ir.Block) {
	fn := b.Function
	phis := b.Phis()

	for _, phi := range phis {
		if fn.HasUse(phi) {
			p.Slots.Acquire(phi)
		}
	}

	succLabel := p.Labels.BlockLabel(b)
	doneLabel := Label("__PHI_DONE_" + string(succLabel))

	for _, pred := range distinctPhiPreds(b) {
		edgeLabel, ok := p.Labels.PhiEdgeLabel(pred, b)
		if !ok {
			continue
		}
		p.Emit(LineLabel(edgeLabel))
		for _, phi := range phis {
			if !fn.HasUse(phi) {
				continue
			}
			incoming, found := incomingFor(phi, pred)
			if !found {
				continue
			}
			src := p.resolveOperand(incoming)
			dst := p.Slots.Query(phi)
			p.Emit(LineSrcDst("movq", src, dst))
		}
		p.Emit(LineLabelRef("jmp", doneLabel))
	}

	p.Emit(LineLabel(doneLabel))
}

// incomingFor returns the operand phi receives along the edge from pred.
func incomingFor(phi *ir.Instr, pred *ir.Block) (ir.Operand, bool) {
	for _, inc := range phi.Incoming {
		if inc.Block == pred {
			return inc.Value, true
		}
	}
	return ir.Operand{}, false
}

// dispatch routes a single non-φ instruction to its handler, per
// spec.md §4.4. Phi instructions never reach here; Generate skips them.
func (p *Program) dispatch(fn *ir.Function, b *ir.Block, instr *ir.Instr) {
	switch instr.Op {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv:
		p.handleBinOp(fn, instr)
	case ir.OpICmp:
		p.handleICmp(instr)
	case ir.OpCall:
		p.handleCall(fn, instr)
	case ir.OpBr:
		p.handleBranch(b, instr)
	case ir.OpRet:
		p.handleReturn(instr)
	default:
		p.diagf("can't deal with this instruction: %s", instr.Op)
	}
}

// handleReturn implements spec.md §4.4.2: move the return value (if any)
// into %rax, then read the callee-saved registers back from their fixed
// frame slots in reverse declared order (not popq — the frame slots sit
// below whatever the function's own spills pushed the stack pointer to,
// so they must be addressed by their fixed %rbp offset instead), then
// leave/ret.
func (p *Program) handleReturn(instr *ir.Instr) {
	if instr.RetVal != nil {
		src := p.resolveOperand(*instr.RetVal)
		p.Emit(LineSrcDst("movq", src, Reg("rax")))
	}

	offset := -8 * int64(len(CalleeSaved))
	for i := len(CalleeSaved) - 1; i >= 0; i-- {
		p.Emit(LineSrcDst("movq", MemReg("rbp", offset), Reg(CalleeSaved[i])))
		offset += 8
	}

	p.Emit(LineNoArg("leaveq"))
	p.Emit(LineNoArg("retq"))
}

// handleCall implements spec.md §4.4.3: save every caller-saved register,
// move the argument into %rdi, call, restore the caller-saved registers,
// then acquire a slot for the result if it's used.
func (p *Program) handleCall(fn *ir.Function, instr *ir.Instr) {
	for _, r := range CallerSaved {
		p.Emit(LineSrc("pushq", Reg(r)))
	}

	if instr.Arg != nil {
		src := p.resolveOperand(*instr.Arg)
		p.Emit(LineSrcDst("movq", src, Reg("rdi")))
	}

	var target Label
	if instr.Callee != nil && len(instr.Callee.Blocks) > 0 {
		target = p.Labels.BlockLabel(instr.Callee.Blocks[0])
	} else {
		p.diagf("call to a function with no known entry block")
		target = Label("__UNDEFINED_FUNCTION__")
	}
	p.Emit(LineLabelRef("callq", target))

	for i := len(CallerSaved) - 1; i >= 0; i-- {
		p.Emit(LineDst("popq", Reg(CallerSaved[i])))
	}

	if fn.HasUse(instr) {
		dst := p.Slots.Acquire(instr)
		p.Emit(LineSrcDst("movq", Reg("rax"), dst))
	}
}

// handleBranch implements spec.md §4.4.4. An unconditional branch is a
// single jmp. A conditional branch requires Cond to reference the icmp
// immediately preceding it in the block; jumpOpcodes turns that icmp's
// predicate into the (taken, fallthrough) mnemonic pair, and both
// successors' allocator states are snapshotted under their own plain
// block labels — even when a successor itself starts with a phi, so its
// φ-batch lowering restores from the branch site that reached it.
func (p *Program) handleBranch(block *ir.Block, instr *ir.Instr) {
	if instr.Cond == nil {
		target := p.Labels.EdgeTarget(block, instr.Succs[0])
		p.Emit(LineLabelRef("jmp", target))
		return
	}

	if instr.CondInvalid || instr.CondICmp == nil {
		p.diagf("branch condition does not reference the immediately preceding icmp")
		return
	}

	taken, fallthroughOp, ok := jumpOpcodes(instr.CondICmp.Pred)
	if !ok {
		p.diagf("unsupported comparison predicate %s", instr.CondICmp.Pred)
		return
	}

	t1 := p.Labels.EdgeTarget(block, instr.Succs[0])
	t2 := p.Labels.EdgeTarget(block, instr.Succs[1])
	p.Emit(LineLabelRef(taken, t1))
	p.Emit(LineLabelRef(fallthroughOp, t2))

	p.Slots.Snapshot(p.Labels.BlockLabel(instr.Succs[0]))
	p.Slots.Snapshot(p.Labels.BlockLabel(instr.Succs[1]))
}

// jumpOpcodes maps an icmp predicate to its (taken, complementary) jump
// mnemonics.
func jumpOpcodes(pred ir.Predicate) (string, string, bool) {
	switch pred {
	case ir.Eq:
		return "je", "jne", true
	case ir.Ne:
		return "jne", "je", true
	case ir.Sgt:
		return "jg", "jle", true
	case ir.Sge:
		return "jge", "jl", true
	case ir.Slt:
		return "jl", "jge", true
	case ir.Sle:
		return "jle", "jg", true
	default:
		return "", "", false
	}
}

// handleBinOp implements spec.md §4.4.5. Two bit-compatibility quirks are
// preserved deliberately, per spec.md §9: mul and div are emitted with
// their unsigned mnemonics even though every IR value is signed, and div's
// dividend is never sign-extended into %rdx before the divide.
func (p *Program) handleBinOp(fn *ir.Function, instr *ir.Instr) {
	lhs := p.resolveOperand(instr.LHS)
	rhs := p.resolveOperand(instr.RHS)
	p.Emit(LineSrcDst("movq", lhs, Reg("rax")))

	switch instr.Op {
	case ir.OpAdd:
		p.Emit(LineSrcDst("add", rhs, Reg("rax")))
	case ir.OpSub:
		p.Emit(LineSrcDst("sub", rhs, Reg("rax")))
	case ir.OpMul:
		p.Emit(LineSrc("mul", rhs))
	case ir.OpDiv:
		p.Emit(LineSrc("div", rhs))
	}

	if fn.HasUse(instr) {
		dst := p.Slots.Acquire(instr)
		p.Emit(LineSrcDst("movq", Reg("rax"), dst))
	}
}

// handleICmp implements spec.md §4.4.6. The comparison itself claims no
// slot; it only leaves flag state behind for the branch that must
// immediately follow it.
func (p *Program) handleICmp(instr *ir.Instr) {
	lhs := p.resolveOperand(instr.LHS)
	rhs := p.resolveOperand(instr.RHS)
	p.Emit(LineSrcDst("movq", lhs, Reg("rax")))
	p.Emit(LineSrcDst("cmp", rhs, Reg("rax")))
}
