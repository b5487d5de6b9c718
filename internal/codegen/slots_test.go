package codegen

import (
	"testing"

	"github.com/cs257/x64cg/internal/ir"
)

func newTestAllocator() (*SlotAllocator, *[]Line) {
	var lines []Line
	sa := NewSlotAllocator(func(l Line) { lines = append(lines, l) })
	sa.ResetFrame()
	return sa, &lines
}

func TestSlotAllocatorHandsOutHighestPriorityFirst(t *testing.T) {
	sa, _ := newTestAllocator()
	v1 := &ir.Param{Name: "a"}
	op := sa.Acquire(v1)
	if op != Reg("rbx") {
		t.Errorf("expected first acquire to hand out rbx (highest priority), got %v", op)
	}
}

func TestSlotAllocatorSpillsWhenExhausted(t *testing.T) {
	sa, lines := newTestAllocator()
	var vals []ir.Value
	for i := 0; i < 12; i++ {
		vals = append(vals, &ir.Param{Name: string(rune('a' + i))})
	}
	for _, v := range vals {
		sa.Acquire(v)
	}

	spillTop := sa.TopOfStack()

	extra := &ir.Param{Name: "spill1"}
	op := sa.Acquire(extra)
	if !op.IsMemory() {
		t.Fatalf("expected a spilled memory operand once registers are exhausted, got %v", op)
	}
	if sa.TopOfStack() != spillTop-8 {
		t.Errorf("top of stack should decrease by 8 on spill: got %d, want %d", sa.TopOfStack(), spillTop-8)
	}

	found := false
	for _, l := range *lines {
		if l.String() == "    sub $8, %rsp" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a 'sub $8, %%rsp' line to be emitted on spill, got lines: %v", *lines)
	}
}

func TestSlotAllocatorReleaseReturnsToFreePool(t *testing.T) {
	sa, _ := newTestAllocator()
	v := &ir.Param{Name: "a"}
	sa.Acquire(v)
	if !sa.IsLive(v) {
		t.Fatal("expected v to be live after acquire")
	}
	sa.Release(v)
	if sa.IsLive(v) {
		t.Fatal("expected v to no longer be live after release")
	}
	// The freed slot should be handed out again for a fresh acquire.
	v2 := &ir.Param{Name: "b"}
	op := sa.Acquire(v2)
	if op != Reg("rbx") {
		t.Errorf("expected released rbx to be reused, got %v", op)
	}
}

func TestSlotAllocatorSnapshotRestoreIndependence(t *testing.T) {
	sa, _ := newTestAllocator()
	v1 := &ir.Param{Name: "a"}
	sa.Acquire(v1)

	sa.Snapshot("L1")

	v2 := &ir.Param{Name: "b"}
	sa.Acquire(v2)
	if !sa.IsLive(v2) {
		t.Fatal("expected v2 live before restore")
	}

	sa.Restore("L1")
	if sa.IsLive(v2) {
		t.Error("expected snapshot restore to undo the acquire of v2")
	}
	if !sa.IsLive(v1) {
		t.Error("expected v1 to still be live after restore")
	}
	if sa.HasSnapshot("L1") {
		t.Error("expected the snapshot registration to be dropped after restore")
	}
}
