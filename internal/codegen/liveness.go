package codegen

import "github.com/cs257/x64cg/internal/ir"

// Sweep implements spec.md §4.3's liveness-termination policy: run after
// emitting every instruction, it releases the slot of any currently-used
// value that has no reachable use left, where "reachable" means either a
// later instruction in the same block, or some block reachable by walking
// control-flow successors from the block's terminator.
func Sweep(sa *SlotAllocator, block *ir.Block, idx int) {
	var candidates []ir.Value
	for v := range sa.usedValues() {
		candidates = append(candidates, v)
	}
	for _, v := range candidates {
		if sa.IsLive(v) && !hasReachableUses(block, idx, v) {
			sa.Release(v)
		}
	}
}

// usedValues exposes a snapshot of the values currently holding a slot, so
// Sweep can decide releases without mutating the map mid-iteration.
func (sa *SlotAllocator) usedValues() map[ir.Value]struct{} {
	out := make(map[ir.Value]struct{}, len(sa.used))
	for v := range sa.used {
		out[v] = struct{}{}
	}
	return out
}

// hasReachableUses reports whether value has any use strictly after the
// instruction at block.Instrs[idx]: either later in the same block, or in
// some block reachable from block's terminator successors. The starting
// block is deliberately not pre-marked visited, so a back edge correctly
// re-examines it in full.
func hasReachableUses(block *ir.Block, idx int, value ir.Value) bool {
	for j := idx + 1; j < len(block.Instrs); j++ {
		if instrUses(block.Instrs[j], value) {
			return true
		}
	}

	term := block.Terminator()
	if term == nil {
		return false
	}
	seen := map[*ir.Block]bool{}
	for _, succ := range term.Succs {
		if succ == nil || seen[succ] {
			continue
		}
		seen[succ] = true
		if reachableFrom(succ, value, seen) {
			return true
		}
	}
	return false
}

func reachableFrom(block *ir.Block, value ir.Value, seen map[*ir.Block]bool) bool {
	if blockUses(block, value) {
		return true
	}
	term := block.Terminator()
	if term == nil {
		return false
	}
	for _, succ := range term.Succs {
		if succ == nil || seen[succ] {
			continue
		}
		seen[succ] = true
		if reachableFrom(succ, value, seen) {
			return true
		}
	}
	return false
}

func blockUses(block *ir.Block, value ir.Value) bool {
	for _, in := range block.Instrs {
		if instrUses(in, value) {
			return true
		}
	}
	return false
}

// instrUses reports whether instr references value as an operand.
func instrUses(instr *ir.Instr, value ir.Value) bool {
	uses := func(op ir.Operand) bool { return !op.IsConst && op.Val == value }

	switch instr.Op {
	case ir.OpPhi:
		for _, inc := range instr.Incoming {
			if uses(inc.Value) {
				return true
			}
		}
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpICmp:
		return uses(instr.LHS) || uses(instr.RHS)
	case ir.OpCall:
		return instr.Arg != nil && uses(*instr.Arg)
	case ir.OpRet:
		return instr.RetVal != nil && uses(*instr.RetVal)
	case ir.OpBr:
		return instr.Cond != nil && uses(*instr.Cond)
	}
	return false
}
