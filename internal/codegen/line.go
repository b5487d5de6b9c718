package codegen

import "fmt"

// ---------------------------------------------------------------------------
// Line — a single printable line of GAS assembly output.
//
// Line is a tagged variant covering labels, assembler directives, comments,
// and the fixed instruction arities the lowerer needs: no operands, one
// source, one destination, one immediate, one label reference, or a
// source/destination pair. Printing follows spec.md §6: labels and
// directives sit at column 0; comments and instructions are four-space
// indented.
// ---------------------------------------------------------------------------

// Label is the name of an assembly-level label.
type Label string

type lineKind int

const (
	lineLabel lineKind = iota
	lineDirective
	lineComment
	lineNoArg
	lineSrc
	lineDst
	lineImm
	lineLabelRef
	lineSrcDst
)

// Line is copied by value; its Operand fields are Operand values, not
// pointers, so instruction lines never share mutable operand state.
type Line struct {
	kind lineKind

	text   string // lineLabel (as Label), lineDirective, lineComment
	opcode string // lineNoArg, lineSrc, lineDst, lineImm, lineLabelRef, lineSrcDst

	src Operand // lineSrc, lineSrcDst
	dst Operand // lineDst, lineSrcDst
	imm Operand // lineImm (kindImmediate)

	target Label // lineLabelRef
}

func LineLabel(l Label) Line             { return Line{kind: lineLabel, text: string(l)} }
func LineDirective(text string) Line     { return Line{kind: lineDirective, text: text} }
func LineComment(text string) Line       { return Line{kind: lineComment, text: text} }
func LineNoArg(opcode string) Line       { return Line{kind: lineNoArg, opcode: opcode} }
func LineSrc(opcode string, s Operand) Line { return Line{kind: lineSrc, opcode: opcode, src: s} }
func LineDst(opcode string, d Operand) Line { return Line{kind: lineDst, opcode: opcode, dst: d} }
func LineImm(opcode string, i Operand) Line { return Line{kind: lineImm, opcode: opcode, imm: i} }
func LineLabelRef(opcode string, l Label) Line {
	return Line{kind: lineLabelRef, opcode: opcode, target: l}
}
func LineSrcDst(opcode string, s, d Operand) Line {
	return Line{kind: lineSrcDst, opcode: opcode, src: s, dst: d}
}

// String renders the line exactly as it appears in the output listing.
func (l Line) String() string {
	switch l.kind {
	case lineLabel:
		return l.text + ":"
	case lineDirective:
		return l.text
	case lineComment:
		return "    # " + l.text
	case lineNoArg:
		return "    " + l.opcode
	case lineSrc:
		return fmt.Sprintf("    %s %s", l.opcode, l.src)
	case lineDst:
		return fmt.Sprintf("    %s %s", l.opcode, l.dst)
	case lineImm:
		return fmt.Sprintf("    %s %s", l.opcode, l.imm)
	case lineLabelRef:
		return fmt.Sprintf("    %s %s", l.opcode, l.target)
	case lineSrcDst:
		return fmt.Sprintf("    %s %s, %s", l.opcode, l.src, l.dst)
	default:
		return "<invalid line>"
	}
}
