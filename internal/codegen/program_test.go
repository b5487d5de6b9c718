package codegen

import (
	"strings"
	"testing"
)

func generateOrFatal(t *testing.T, src string) (string, []Diagnostic) {
	t.Helper()
	mod := parseOrFatal(t, src)
	asm, diags := Generate(mod)
	return asm, diags
}

// Scenario 1: bare constant return.
func TestScenarioBareReturn(t *testing.T) {
	asm, diags := generateOrFatal(t, `
define i64 @main() {
entry:
  ret i64 0
}
`)
	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	for _, want := range []string{
		"main:",
		"    pushq %rbp",
		"    movq %rsp, %rbp",
		"    pushq %rbx",
		"    pushq %r12",
		"    pushq %r13",
		"    pushq %r14",
		"    pushq %r15",
		"    movq $0, %rax",
		"    movq -40(%rbp), %r15",
		"    movq -32(%rbp), %r14",
		"    movq -24(%rbp), %r13",
		"    movq -16(%rbp), %r12",
		"    movq -8(%rbp), %rbx",
		"    leaveq",
		"    retq",
	} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected output to contain %q; got:\n%s", want, asm)
		}
	}
}

// Scenario 2: the result of an add is used only by the immediately
// following return, which must still be able to query its slot.
func TestScenarioAddThenReturn(t *testing.T) {
	asm, diags := generateOrFatal(t, `
define i64 @main() {
entry:
  %1 = add i64 2, 3
  ret i64 %1
}
`)
	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	for _, want := range []string{
		"    movq $2, %rax",
		"    add $3, %rax",
		"    movq %rax, %rbx", // %1 acquires the first free register slot
		"    movq %rbx, %rax", // return queries %1's slot
	} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected output to contain %q; got:\n%s", want, asm)
		}
	}
}

// Scenario 3: a diamond merging two constants through a phi.
func TestScenarioDiamondPhi(t *testing.T) {
	asm, diags := generateOrFatal(t, `
define i64 @main() {
entry:
  %c = icmp eq i64 0, 0
  br i1 %c, label %a, label %b
a:
  br label %merge
b:
  br label %merge
merge:
  %p = phi i64 [1, %a], [2, %b]
  ret i64 %p
}
`)
	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if strings.Count(asm, "__PHI_FROM_") != 2 {
		t.Errorf("expected exactly two phi-edge labels, got asm:\n%s", asm)
	}
	if !strings.Contains(asm, "__PHI_DONE_") {
		t.Errorf("expected a phi-done label; got:\n%s", asm)
	}
	if !strings.Contains(asm, "    movq $1,") || !strings.Contains(asm, "    movq $2,") {
		t.Errorf("expected both phi incoming constants to be moved into the phi's slot; got:\n%s", asm)
	}
}

// Scenario 4: a loop whose header phi receives a constant from the entry
// and a computed value across the back edge.
func TestScenarioLoopBackEdgePhi(t *testing.T) {
	asm, diags := generateOrFatal(t, `
define i64 @main() {
entry:
  br label %header
header:
  %i = phi i64 [0, %entry], [%next, %header]
  %next = add i64 %i, 1
  %done = icmp eq i64 %next, 5
  br i1 %done, label %exit, label %header
exit:
  ret i64 %i
}
`)
	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if !strings.Contains(asm, "__PHI_FROM_") {
		t.Errorf("expected phi-edge labels for the loop header; got:\n%s", asm)
	}
	if !strings.Contains(asm, "    cmp $5, %rax") {
		t.Errorf("expected the loop condition compare; got:\n%s", asm)
	}
}

// Scenario 5: icmp slt followed by a conditional branch to two ordinary
// (non-phi) successors emits both a positive and complementary jump, and
// registers a snapshot for each successor.
func TestScenarioConditionalBranch(t *testing.T) {
	asm, diags := generateOrFatal(t, `
define i64 @main() {
entry:
  %c = icmp slt i64 1, 2
  br i1 %c, label %t, label %f
t:
  ret i64 1
f:
  ret i64 0
}
`)
	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if !strings.Contains(asm, "    cmp $2, %rax") {
		t.Errorf("expected the icmp compare; got:\n%s", asm)
	}
	if !strings.Contains(asm, "    jl ") || !strings.Contains(asm, "    jge ") {
		t.Errorf("expected jl/jge jump pair for slt, got:\n%s", asm)
	}
}

// Scenario 6: a call whose result is used, with caller-saved registers
// pushed and popped around the call site.
func TestScenarioCallResultUsedTwice(t *testing.T) {
	asm, diags := generateOrFatal(t, `
define i64 @f(i64 %x) {
entry:
  ret i64 %x
}
define i64 @main() {
entry:
  %1 = call i64 @f(i64 7)
  %2 = add i64 %1, %1
  ret i64 %2
}
`)
	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	for _, want := range []string{
		"    pushq %rcx",
		"    pushq %rdx",
		"    pushq %rsi",
		"    pushq %r8",
		"    pushq %r9",
		"    pushq %r10",
		"    pushq %r11",
		"    movq $7, %rdi",
		"    callq f",
		"    popq %r11",
		"    popq %r10",
		"    popq %r9",
		"    popq %r8",
		"    popq %rsi",
		"    popq %rdx",
		"    popq %rcx",
		"    movq %rax,",
	} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected output to contain %q; got:\n%s", want, asm)
		}
	}
}

func TestUnusedParamAcquiresNoSlotAndMovesNothing(t *testing.T) {
	asm, diags := generateOrFatal(t, `
define i64 @main(i64 %x) {
entry:
  ret i64 0
}
`)
	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if strings.Contains(asm, "movq %rdi") {
		t.Errorf("expected no %%rdi move for an unused parameter; got:\n%s", asm)
	}
}

func TestUsedParamMovedFromRdi(t *testing.T) {
	asm, diags := generateOrFatal(t, `
define i64 @main(i64 %x) {
entry:
  ret i64 %x
}
`)
	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if !strings.Contains(asm, "movq %rdi,") {
		t.Errorf("expected the used parameter to be moved out of %%rdi; got:\n%s", asm)
	}
}

func TestHeaderIsFixedPreamble(t *testing.T) {
	asm, _ := generateOrFatal(t, `
define i64 @main() {
entry:
  ret i64 0
}
`)
	for _, want := range []string{
		"# this assembly generated by the cs257 code generator",
		".globl _start",
		"_start:",
		"    callq main",
		"    movq %rax, %rbx",
		"    movq $1, %rax",
		"    int $0x80",
	} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected header to contain %q; got:\n%s", want, asm)
		}
	}
}

func TestMissingMainProducesDiagnostic(t *testing.T) {
	// ir.Parse itself refuses a module with no main function, so this
	// diagnostic path is only reachable if a module were constructed
	// without going through the textual parser. Generate must still
	// degrade gracefully rather than panicking on a nil FindFunction.
	mod := parseOrFatal(t, `
define i64 @main() {
entry:
  ret i64 0
}
`)
	// Renaming main away simulates a module that reached codegen without one.
	mod.Functions[0].Name = "renamed"
	_, diags := Generate(mod)
	if len(diags) == 0 {
		t.Error("expected a diagnostic when no main function is present")
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	src := `
define i64 @main() {
entry:
  %1 = add i64 2, 3
  ret i64 %1
}
`
	asm1, _ := generateOrFatal(t, src)
	asm2, _ := generateOrFatal(t, src)
	if asm1 != asm2 {
		t.Error("expected identical output across two independent runs on the same input")
	}
}
