// Package ir defines the structured intermediate representation that the
// code generator consumes: functions, basic blocks, instructions, and the
// operand references between them. It plays the role LLVM's in-memory IR
// plays for the reference implementation this system is modeled on — a
// use-def graph of pointer-identified values, not a textual format.
package ir

import "fmt"

// Predicate is a signed integer comparison predicate carried by an ICmp
// instruction and consumed by the branch that follows it.
type Predicate int

const (
	Eq Predicate = iota
	Ne
	Sgt
	Sge
	Slt
	Sle
)

func (p Predicate) String() string {
	switch p {
	case Eq:
		return "eq"
	case Ne:
		return "ne"
	case Sgt:
		return "sgt"
	case Sge:
		return "sge"
	case Slt:
		return "slt"
	case Sle:
		return "sle"
	default:
		return "invalid"
	}
}

// ParsePredicate maps the textual predicate spelling used in the IR
// surface syntax to a Predicate. ok is false for anything else; the parser
// reports that as a parse error, so such a module never reaches codegen.
func ParsePredicate(s string) (Predicate, bool) {
	switch s {
	case "eq":
		return Eq, true
	case "ne":
		return Ne, true
	case "sgt":
		return Sgt, true
	case "sge":
		return Sge, true
	case "slt":
		return Slt, true
	case "sle":
		return Sle, true
	default:
		return 0, false
	}
}

// Value is anything an Operand can reference by identity: a function
// parameter or a result-producing instruction. Constants are not Values —
// they carry no identity and never occupy a slot.
type Value interface {
	valueMarker()
}

// Param is a function's single formal argument, if it has one.
type Param struct {
	Name string
}

func (*Param) valueMarker() {}

// Op identifies the kind of an Instr.
type Op int

const (
	OpPhi Op = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpICmp
	OpCall
	OpBr
	OpRet
)

func (o Op) String() string {
	switch o {
	case OpPhi:
		return "phi"
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "sdiv"
	case OpICmp:
		return "icmp"
	case OpCall:
		return "call"
	case OpBr:
		return "br"
	case OpRet:
		return "ret"
	default:
		return "?"
	}
}

// Operand is a use of a Value at a particular point: either a constant
// integer immediate or a reference to a Value produced elsewhere.
type Operand struct {
	IsConst bool
	Const   int64
	Val     Value
}

// ConstOperand builds an immediate operand.
func ConstOperand(v int64) Operand { return Operand{IsConst: true, Const: v} }

// ValueOperand builds an operand referencing a Value.
func ValueOperand(v Value) Operand { return Operand{Val: v} }

func (o Operand) String() string {
	if o.IsConst {
		return fmt.Sprintf("%d", o.Const)
	}
	switch v := o.Val.(type) {
	case *Param:
		return "%" + v.Name
	case *Instr:
		return "%" + v.Name
	default:
		return "<invalid operand>"
	}
}

// PhiIncoming is one (predecessor, value) pair of a Phi instruction.
type PhiIncoming struct {
	Block *Block
	Value Operand
}

// Instr is a single SSA instruction. Which fields are meaningful depends
// on Op; see the comments on each field group.
type Instr struct {
	Op   Op
	Name string // SSA name, e.g. "1" for "%1"; empty for instructions with no result

	// OpPhi
	Incoming []PhiIncoming

	// OpAdd, OpSub, OpMul, OpDiv, OpICmp
	LHS, RHS Operand
	Pred     Predicate // OpICmp only

	// OpCall
	Callee *Function
	Arg    *Operand // nil if the callee takes no argument

	// OpBr
	Cond        *Operand // nil for an unconditional branch; otherwise references an OpICmp Instr
	Succs       []*Block // one entry if unconditional, two if conditional
	CondICmp    *Instr   // resolved OpICmp instruction feeding Cond, or nil if malformed
	CondInvalid bool     // true if Cond does not reference an immediately preceding icmp

	// OpRet
	RetVal *Operand // nil for a bare "ret"
}

func (*Instr) valueMarker() {}

// HasResult reports whether this instruction produces a value that other
// instructions might reference (as opposed to Br/Ret, which never do).
func (i *Instr) HasResult() bool {
	switch i.Op {
	case OpBr, OpRet:
		return false
	default:
		return true
	}
}

// Block is a basic block: an optional run of leading Phi instructions,
// followed by ordinary instructions, terminated by exactly one Br or Ret.
// Instrs holds the full ordered instruction list, phis included, matching
// how the reference implementation walks a block front to back.
type Block struct {
	Function *Function
	ID       int // declaration-order index within the function, 0 = entry
	Name     string
	Instrs   []*Instr
	Preds    []*Block
}

// StartsWithPhi reports whether the block's first instruction is a Phi.
func (b *Block) StartsWithPhi() bool {
	return len(b.Instrs) > 0 && b.Instrs[0].Op == OpPhi
}

// Phis returns the leading run of Phi instructions.
func (b *Block) Phis() []*Instr {
	var out []*Instr
	for _, in := range b.Instrs {
		if in.Op != OpPhi {
			break
		}
		out = append(out, in)
	}
	return out
}

// Terminator returns the block's final instruction (always Br or Ret for a
// well-formed block).
func (b *Block) Terminator() *Instr {
	if len(b.Instrs) == 0 {
		return nil
	}
	return b.Instrs[len(b.Instrs)-1]
}

// IsEntry reports whether this is the function's first block.
func (b *Block) IsEntry() bool {
	return b.Function != nil && len(b.Function.Blocks) > 0 && b.Function.Blocks[0] == b
}

// Function is a single IR function: a symbol name, at most one parameter,
// and an ordered list of basic blocks.
type Function struct {
	Name   string
	Param  *Param // nil if the function takes no argument
	Blocks []*Block

	uses map[Value]bool // computed by Finalize; nil until then
}

// Module is the top-level container for an entire compilation unit.
type Module struct {
	Functions []*Function
}

// FindFunction looks up a function by symbol name.
func (m *Module) FindFunction(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Finalize computes use information for every value in every function.
// Must be called once after the module is fully constructed and before
// codegen queries HasUse. This is the structural analogue of LLVM's
// use-list, computed once up front instead of maintained incrementally.
func (m *Module) Finalize() {
	for _, fn := range m.Functions {
		fn.uses = map[Value]bool{}
		mark := func(op Operand) {
			if !op.IsConst && op.Val != nil {
				fn.uses[op.Val] = true
			}
		}
		for _, b := range fn.Blocks {
			for _, in := range b.Instrs {
				switch in.Op {
				case OpPhi:
					for _, inc := range in.Incoming {
						mark(inc.Value)
					}
				case OpAdd, OpSub, OpMul, OpDiv, OpICmp:
					mark(in.LHS)
					mark(in.RHS)
				case OpCall:
					if in.Arg != nil {
						mark(*in.Arg)
					}
				case OpRet:
					if in.RetVal != nil {
						mark(*in.RetVal)
					}
				case OpBr:
					if in.Cond != nil {
						mark(*in.Cond)
					}
				}
			}
		}
	}
}

// HasUse reports whether v is referenced anywhere in its owning function.
// Finalize must have been called first.
func (fn *Function) HasUse(v Value) bool {
	return fn.uses[v]
}
