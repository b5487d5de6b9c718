package codegen

import (
	"container/heap"

	"github.com/cs257/x64cg/internal/ir"
)

// CalleeSaved is the fixed, ordered set of callee-saved registers: pushed
// in this order in the prologue, popped in reverse in the epilogue.
var CalleeSaved = []string{"rbx", "r12", "r13", "r14", "r15"}

// CallerSaved is the fixed, ordered set of caller-saved registers: pushed
// before every call site in this order, popped in reverse after.
var CallerSaved = []string{"rcx", "rdx", "rsi", "r8", "r9", "r10", "r11"}

// registerPriority lists the allocatable registers in priority order (most
// negative = handed out first). rax, rdi, rbp and rsp are reserved and
// never appear here.
var registerPriority = []struct {
	name     string
	priority int64
}{
	{"rbx", -12}, {"rcx", -11}, {"rdx", -10}, {"rsi", -9},
	{"r8", -8}, {"r9", -7}, {"r10", -6}, {"r11", -5},
	{"r12", -4}, {"r13", -3}, {"r14", -2}, {"r15", -1},
}

// slot pairs a priority with the Operand it grants.
type slot struct {
	priority int64
	operand  Operand
}

// slotHeap is a container/heap min-heap ordered by priority, giving the
// same behavior as the reference implementation's
// std::priority_queue<slot, ..., greater-than-comparator>.
type slotHeap []slot

func (h slotHeap) Len() int            { return len(h) }
func (h slotHeap) Less(i, j int) bool  { return h[i].priority < h[j].priority }
func (h slotHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *slotHeap) Push(x interface{}) { *h = append(*h, x.(slot)) }
func (h *slotHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// slotSnapshot is a deep, independent copy of the allocator's mutable
// state, taken at conditional-branch sites (spec.md §4.4.4) so that
// restoring one successor's view never aliases the other's.
type slotSnapshot struct {
	free slotHeap
	used map[ir.Value]slot
}

// SlotAllocator implements spec.md §4.3: a priority-ordered pool of free
// slots (registers, then stack spills), a table of currently-occupied
// slots, and a snapshot/restore mechanism for branch points. Its state is
// deliberately shared across functions (spec.md §3, "Lifecycles") — only
// topOfStack is reset on entry to a new function's entry block. Nothing
// else is cleared between functions: a slot still held when a function's
// last block has been lowered (for example by a value that stays live
// across a back edge out of that block) remains occupied in the next
// function.
type SlotAllocator struct {
	emit func(Line)

	free       slotHeap
	used       map[ir.Value]slot
	topOfStack int64
	backups    map[Label]slotSnapshot
}

// NewSlotAllocator seeds the free pool with the fixed register set and
// wires emit as the sink for the "sub $8, %rsp" lines that Acquire must
// insert when it spills.
func NewSlotAllocator(emit func(Line)) *SlotAllocator {
	sa := &SlotAllocator{
		emit: emit,
		used: map[ir.Value]slot{},
		backups: map[Label]slotSnapshot{},
	}
	for _, r := range registerPriority {
		sa.free = append(sa.free, slot{priority: r.priority, operand: Reg(r.name)})
	}
	heap.Init(&sa.free)
	return sa
}

// ResetFrame resets topOfStack for a new function's prologue. Called once
// per function-entry block, per spec.md §4.4.1.
func (sa *SlotAllocator) ResetFrame() {
	sa.topOfStack = -8 * int64(len(CalleeSaved))
}

// TopOfStack returns the current lowest-addressed used byte relative to
// %rbp for the function being lowered.
func (sa *SlotAllocator) TopOfStack() int64 { return sa.topOfStack }

// Acquire hands out the highest-priority free slot for v, spilling a fresh
// stack word (and emitting "sub $8, %rsp") if none is free.
func (sa *SlotAllocator) Acquire(v ir.Value) Operand {
	if len(sa.free) == 0 {
		sa.topOfStack -= 8
		s := slot{priority: -sa.topOfStack, operand: MemReg("rbp", sa.topOfStack)}
		heap.Push(&sa.free, s)
		sa.emit(LineSrcDst("sub", Imm(8), Reg("rsp")))
	}
	s := heap.Pop(&sa.free).(slot)
	sa.used[v] = s
	return s.operand
}

// Query returns the slot currently occupied by v. The caller must have
// already acquired one; querying an unacquired value returns the zero
// Operand, which is a programmer error in the lowerer, not a user-facing
// one.
func (sa *SlotAllocator) Query(v ir.Value) Operand {
	return sa.used[v].operand
}

// Release returns v's slot to the free pool at its original priority.
func (sa *SlotAllocator) Release(v ir.Value) {
	s, ok := sa.used[v]
	if !ok {
		return
	}
	delete(sa.used, v)
	heap.Push(&sa.free, s)
}

// IsLive reports whether v currently occupies a slot.
func (sa *SlotAllocator) IsLive(v ir.Value) bool {
	_, ok := sa.used[v]
	return ok
}

// Snapshot takes a deep copy of (free, used) under label, for later
// restoration on entry to the successor block that label names.
func (sa *SlotAllocator) Snapshot(label Label) {
	freeCopy := make(slotHeap, len(sa.free))
	copy(freeCopy, sa.free)
	usedCopy := make(map[ir.Value]slot, len(sa.used))
	for k, v := range sa.used {
		usedCopy[k] = v
	}
	sa.backups[label] = slotSnapshot{free: freeCopy, used: usedCopy}
}

// HasSnapshot reports whether a snapshot is registered under label.
func (sa *SlotAllocator) HasSnapshot(label Label) bool {
	_, ok := sa.backups[label]
	return ok
}

// Restore replaces (free, used) with the snapshot registered under label
// and drops the registration.
func (sa *SlotAllocator) Restore(label Label) {
	snap, ok := sa.backups[label]
	if !ok {
		return
	}
	freeCopy := make(slotHeap, len(snap.free))
	copy(freeCopy, snap.free)
	usedCopy := make(map[ir.Value]slot, len(snap.used))
	for k, v := range snap.used {
		usedCopy[k] = v
	}
	sa.free = freeCopy
	sa.used = usedCopy
	delete(sa.backups, label)
}
