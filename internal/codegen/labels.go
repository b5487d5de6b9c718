package codegen

import (
	"fmt"

	"github.com/cs257/x64cg/internal/ir"
)

// LabelRegistry holds the deterministic label names assigned to every
// block and phi-edge before any emission happens, per spec.md §4.2. Built
// once per module.
type LabelRegistry struct {
	blockLabels map[*ir.Block]Label
	phiEdge     map[phiEdgeKey]Label
}

type phiEdgeKey struct {
	pred, succ *ir.Block
}

// NewLabelRegistry walks the module's functions and blocks once, assigning
// the entry block of each function its symbol name, every other block the
// "__<function>_block_<n>" template, and a φ-edge label for every
// (predecessor, successor) pair that actually feeds a leading phi in the
// successor.
func NewLabelRegistry(mod *ir.Module) *LabelRegistry {
	reg := &LabelRegistry{
		blockLabels: map[*ir.Block]Label{},
		phiEdge:     map[phiEdgeKey]Label{},
	}

	for _, fn := range mod.Functions {
		for _, b := range fn.Blocks {
			if b.IsEntry() {
				reg.blockLabels[b] = Label(fn.Name)
			} else {
				reg.blockLabels[b] = Label(fmt.Sprintf("__%s_block_%d", fn.Name, b.ID))
			}
		}

		for _, b := range fn.Blocks {
			if !b.StartsWithPhi() {
				continue
			}
			preds := distinctPhiPreds(b)
			succLabel := reg.blockLabels[b]
			for _, pred := range preds {
				predLabel := reg.blockLabels[pred]
				key := phiEdgeKey{pred: pred, succ: b}
				reg.phiEdge[key] = Label(fmt.Sprintf("__PHI_FROM_%s_TO_%s", predLabel, succLabel))
			}
		}
	}

	return reg
}

// distinctPhiPreds returns the set of distinct predecessor blocks occurring
// among any of b's leading phi nodes, in first-seen order (deterministic).
func distinctPhiPreds(b *ir.Block) []*ir.Block {
	seen := map[*ir.Block]bool{}
	var preds []*ir.Block
	for _, phi := range b.Phis() {
		for _, inc := range phi.Incoming {
			if inc.Block == nil || seen[inc.Block] {
				continue
			}
			seen[inc.Block] = true
			preds = append(preds, inc.Block)
		}
	}
	return preds
}

// BlockLabel returns the label assigned to b.
func (r *LabelRegistry) BlockLabel(b *ir.Block) Label {
	return r.blockLabels[b]
}

// PhiEdgeLabel returns the φ-edge landing label for (pred, succ), and
// whether one was created (only true if succ begins with a phi that lists
// pred as an incoming block).
func (r *LabelRegistry) PhiEdgeLabel(pred, succ *ir.Block) (Label, bool) {
	l, ok := r.phiEdge[phiEdgeKey{pred: pred, succ: succ}]
	return l, ok
}

// EdgeTarget returns the effective label to jump to when transferring
// control from pred to succ: the φ-edge landing label if succ begins with a
// phi, otherwise succ's own block label.
func (r *LabelRegistry) EdgeTarget(pred, succ *ir.Block) Label {
	if succ.StartsWithPhi() {
		if l, ok := r.PhiEdgeLabel(pred, succ); ok {
			return l
		}
	}
	return r.BlockLabel(succ)
}
