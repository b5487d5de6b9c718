package ir

import (
	"fmt"
	"io"
)

// Parse reads a textual IR module (the subset described in SPEC_FULL.md
// §4.5: functions of at most one i64 argument, blocks of signed binary
// arithmetic, icmp, phi, direct call, br and ret) and returns a structured
// Module. Errors are collected rather than returned fail-fast, mirroring
// the teacher's Lex/Parse split of (result, []error).
func Parse(r io.Reader) (*Module, []error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, []error{ParseError{Message: fmt.Sprintf("cannot read input: %s", err)}}
	}

	toks, lexErrs := lex(string(data))
	if len(lexErrs) > 0 {
		var out []error
		for _, e := range lexErrs {
			out = append(out, e)
		}
		return nil, out
	}

	// A numeric SSA name such as "%1" lexes as PERCENT INT; the digits are
	// the value's name, so they are read as an identifier from here on.
	for i := 1; i < len(toks); i++ {
		if toks[i].Type == tokInt && toks[i-1].Type == tokPercent {
			toks[i].Type = tokIdent
		}
	}

	p := &parser{toks: toks}
	mod := p.parseModule()
	if len(p.errs) > 0 {
		var out []error
		for _, e := range p.errs {
			out = append(out, e)
		}
		return nil, out
	}

	mod.Finalize()
	return mod, nil
}

type parser struct {
	toks []token
	pos  int
	errs []ParseError
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...interface{}) {
	p.errs = append(p.errs, ParseError{
		Message: fmt.Sprintf(format, args...),
		Line:    t.Line,
		Column:  t.Column,
	})
}

// expect consumes and returns the current token if it matches typ,
// otherwise records an error and returns the token anyway so the parser
// can attempt to keep going.
func (p *parser) expect(typ string) token {
	t := p.cur()
	if t.Type != typ {
		p.errorf(t, "expected %s, got %s %q", typ, t.Type, t.Value)
		return t
	}
	return p.advance()
}

// pendingFunc holds a parsed function signature plus its unparsed body,
// used so calls can reference functions declared later in the file.
type pendingFunc struct {
	fn   *Function
	body []token
}

func (p *parser) parseModule() *Module {
	mod := &Module{}
	var pending []pendingFunc

	for p.cur().Type != tokEOF {
		if p.cur().Type != tokDefine {
			p.errorf(p.cur(), "expected 'define', got %s %q", p.cur().Type, p.cur().Value)
			p.advance()
			continue
		}
		p.advance() // define
		p.expect(tokI64)
		p.expect(tokAt)
		nameTok := p.expect(tokIdent)
		fn := &Function{Name: nameTok.Value}

		p.expect(tokLParen)
		if p.cur().Type == tokI64 {
			p.advance()
			p.expect(tokPercent)
			paramTok := p.expect(tokIdent)
			fn.Param = &Param{Name: paramTok.Value}
		}
		p.expect(tokRParen)
		p.expect(tokLBrace)

		start := p.pos
		for p.cur().Type != tokRBrace && p.cur().Type != tokEOF {
			p.advance()
		}
		body := p.toks[start:p.pos]
		p.expect(tokRBrace)

		mod.Functions = append(mod.Functions, fn)
		pending = append(pending, pendingFunc{fn: fn, body: body})
	}

	for _, pf := range pending {
		p.parseFunctionBody(pf.fn, mod, pf.body)
	}

	if mod.FindFunction("main") == nil {
		p.errorf(token{}, "no 'main' function found")
	}

	return mod
}

// parseFunctionBody parses one function's body tokens (terminated by an
// implicit EOF appended for this sub-stream) in two internal sub-passes:
// first a structural scan that pre-creates Block and Instr stubs so
// forward references (branches to later blocks, phi incoming values from
// back edges) resolve to stable pointers, then a real parse that fills
// those stubs in.
func (p *parser) parseFunctionBody(fn *Function, mod *Module, body []token) {
	body = append(append([]token{}, body...), token{Type: tokEOF})
	sub := &parser{toks: body}

	blocksByName := map[string]*Block{}
	symbols := map[string]Value{}
	if fn.Param != nil {
		symbols[fn.Param.Name] = fn.Param
	}

	// Structural scan: block labels ("IDENT COLON") and result bindings
	// ("PERCENT IDENT ASSIGN").
	blockOrder := 0
	for i := 0; i < len(body)-1; i++ {
		t := body[i]
		if t.Type == tokIdent && body[i+1].Type == tokColon {
			b := &Block{Function: fn, ID: blockOrder, Name: t.Value}
			blockOrder++
			blocksByName[t.Value] = b
			fn.Blocks = append(fn.Blocks, b)
		}
		if t.Type == tokPercent && body[i+1].Type == tokIdent && i+2 < len(body) && body[i+2].Type == tokAssign {
			name := body[i+1].Value
			symbols[name] = &Instr{Name: name}
		}
	}

	if len(fn.Blocks) == 0 {
		p.errorf(token{}, "function %q has no blocks", fn.Name)
		return
	}

	// Real parse: walk the body again, filling in the pre-created stubs.
	var cur *Block
	for sub.cur().Type != tokEOF {
		t := sub.cur()

		if t.Type == tokIdent && sub.toks[sub.pos+1].Type == tokColon {
			cur = blocksByName[t.Value]
			sub.advance()
			sub.advance()
			continue
		}
		if cur == nil {
			sub.errorf(t, "instruction outside of any block")
			sub.advance()
			continue
		}

		instr := sub.parseInstr(mod, fn, symbols, blocksByName)
		if instr != nil {
			cur.Instrs = append(cur.Instrs, instr)
		}
	}

	for _, b := range fn.Blocks {
		linkPredecessors(b)
		term := b.Terminator()
		if term == nil {
			p.errorf(token{}, "block %q in function %q has no terminator", b.Name, fn.Name)
			continue
		}
		if term.Op != OpBr && term.Op != OpRet {
			p.errorf(token{}, "block %q in function %q does not end in br or ret", b.Name, fn.Name)
		}
		if term.Op == OpBr && term.Cond != nil {
			immediatePred := len(b.Instrs) >= 2 && b.Instrs[len(b.Instrs)-2] == term.CondICmp
			if !immediatePred {
				term.CondInvalid = true
				term.CondICmp = nil
			}
		}
	}

	p.errs = append(p.errs, sub.errs...)
}

func linkPredecessors(b *Block) {
	term := b.Terminator()
	if term == nil || term.Op != OpBr {
		return
	}
	for _, succ := range term.Succs {
		succ.Preds = append(succ.Preds, b)
	}
}

// parseInstr parses one instruction (optionally preceded by "%name =")
// and returns the filled-in Instr, or nil on unrecoverable local error.
func (p *parser) parseInstr(mod *Module, fn *Function, symbols map[string]Value, blocks map[string]*Block) *Instr {
	var resultName string
	var stub *Instr
	if p.cur().Type == tokPercent {
		p.advance()
		nameTok := p.expect(tokIdent)
		resultName = nameTok.Value
		p.expect(tokAssign)
		stub, _ = symbols[resultName].(*Instr)
	}

	op := p.cur()
	switch op.Type {
	case tokPhi:
		return p.parsePhi(stub, resultName, blocks, symbols)
	case tokAdd, tokSub, tokMul, tokSdiv:
		return p.parseBinOp(stub, resultName, op.Type, symbols)
	case tokICmp:
		return p.parseICmp(stub, resultName, symbols)
	case tokCall:
		return p.parseCall(stub, resultName, mod, symbols)
	case tokBr:
		return p.parseBr(blocks, symbols)
	case tokRet:
		return p.parseRet(symbols)
	default:
		p.errorf(op, "unexpected token %s %q at start of instruction", op.Type, op.Value)
		p.advance()
		return nil
	}
}

func binOpOp(t string) Op {
	switch t {
	case tokAdd:
		return OpAdd
	case tokSub:
		return OpSub
	case tokMul:
		return OpMul
	case tokSdiv:
		return OpDiv
	default:
		return OpAdd
	}
}

func (p *parser) parseOperand(symbols map[string]Value) Operand {
	t := p.cur()
	if t.Type == tokInt {
		p.advance()
		var v int64
		fmt.Sscanf(t.Value, "%d", &v)
		return ConstOperand(v)
	}
	if t.Type == tokPercent {
		p.advance()
		nameTok := p.expect(tokIdent)
		val, ok := symbols[nameTok.Value]
		if !ok {
			p.errorf(nameTok, "undefined value %%%s", nameTok.Value)
			return ConstOperand(0)
		}
		return ValueOperand(val)
	}
	p.errorf(t, "expected an operand, got %s %q", t.Type, t.Value)
	p.advance()
	return ConstOperand(0)
}

func (p *parser) parseBinOp(stub *Instr, name string, opTok string, symbols map[string]Value) *Instr {
	p.advance() // opcode
	p.expect(tokI64)
	lhs := p.parseOperand(symbols)
	p.expect(tokComma)
	rhs := p.parseOperand(symbols)

	if stub == nil {
		stub = &Instr{}
	}
	stub.Op = binOpOp(opTok)
	stub.Name = name
	stub.LHS = lhs
	stub.RHS = rhs
	return stub
}

func (p *parser) parseICmp(stub *Instr, name string, symbols map[string]Value) *Instr {
	p.advance() // icmp
	predTok := p.expect(tokIdent)
	pred, ok := ParsePredicate(predTok.Value)
	if !ok {
		p.errorf(predTok, "unsupported icmp predicate %q", predTok.Value)
	}
	p.expect(tokI64)
	lhs := p.parseOperand(symbols)
	p.expect(tokComma)
	rhs := p.parseOperand(symbols)

	if stub == nil {
		stub = &Instr{}
	}
	stub.Op = OpICmp
	stub.Name = name
	stub.Pred = pred
	stub.LHS = lhs
	stub.RHS = rhs
	return stub
}

func (p *parser) parsePhi(stub *Instr, name string, blocks map[string]*Block, symbols map[string]Value) *Instr {
	p.advance() // phi
	p.expect(tokI64)

	if stub == nil {
		stub = &Instr{}
	}
	stub.Op = OpPhi
	stub.Name = name

	for {
		p.expect(tokLBracket)
		val := p.parseOperand(symbols)
		p.expect(tokComma)
		p.expect(tokPercent)
		blockTok := p.expect(tokIdent)
		blk, ok := blocks[blockTok.Value]
		if !ok {
			p.errorf(blockTok, "undefined block %%%s", blockTok.Value)
		}
		p.expect(tokRBracket)
		stub.Incoming = append(stub.Incoming, PhiIncoming{Block: blk, Value: val})
		if p.cur().Type == tokComma {
			p.advance()
			continue
		}
		break
	}
	return stub
}

func (p *parser) parseCall(stub *Instr, name string, mod *Module, symbols map[string]Value) *Instr {
	p.advance() // call
	p.expect(tokI64)
	p.expect(tokAt)
	calleeTok := p.expect(tokIdent)
	callee := mod.FindFunction(calleeTok.Value)
	if callee == nil {
		p.errorf(calleeTok, "call to undefined function @%s", calleeTok.Value)
	}

	p.expect(tokLParen)
	var arg *Operand
	if p.cur().Type != tokRParen {
		p.expect(tokI64)
		a := p.parseOperand(symbols)
		arg = &a
	}
	p.expect(tokRParen)

	if stub == nil {
		stub = &Instr{}
	}
	stub.Op = OpCall
	stub.Name = name
	stub.Callee = callee
	stub.Arg = arg
	return stub
}

func (p *parser) parseBr(blocks map[string]*Block, symbols map[string]Value) *Instr {
	p.advance() // br
	instr := &Instr{Op: OpBr}

	if p.cur().Type == tokLabel {
		p.advance()
		p.expect(tokPercent)
		t := p.expect(tokIdent)
		blk, ok := blocks[t.Value]
		if !ok {
			p.errorf(t, "undefined block %%%s", t.Value)
		}
		instr.Succs = []*Block{blk}
		return instr
	}

	p.expect(tokI1)
	cond := p.parseOperand(symbols)
	instr.Cond = &cond
	if condInstr, ok := cond.Val.(*Instr); ok {
		instr.CondICmp = condInstr
		if condInstr.Op != OpICmp {
			instr.CondInvalid = true
		}
	} else {
		instr.CondInvalid = true
	}

	p.expect(tokComma)
	p.expect(tokLabel)
	p.expect(tokPercent)
	t1 := p.expect(tokIdent)
	blk1, ok1 := blocks[t1.Value]
	if !ok1 {
		p.errorf(t1, "undefined block %%%s", t1.Value)
	}

	p.expect(tokComma)
	p.expect(tokLabel)
	p.expect(tokPercent)
	t2 := p.expect(tokIdent)
	blk2, ok2 := blocks[t2.Value]
	if !ok2 {
		p.errorf(t2, "undefined block %%%s", t2.Value)
	}

	instr.Succs = []*Block{blk1, blk2}
	return instr
}

func (p *parser) parseRet(symbols map[string]Value) *Instr {
	p.advance() // ret
	instr := &Instr{Op: OpRet}
	if p.cur().Type == tokVoid {
		p.advance()
		return instr
	}
	p.expect(tokI64)
	v := p.parseOperand(symbols)
	instr.RetVal = &v
	return instr
}
