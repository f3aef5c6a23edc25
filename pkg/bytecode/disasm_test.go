package bytecode

import (
	"strings"
	"testing"
)

func TestDisassembleHeader(t *testing.T) {
	prog, err := TranslateString("+[-]")
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}

	out := prog.DisassembleWithName("clear")
	for _, want := range []string{
		"; === clear ===",
		"; Tape Bytecode v1",
		"; Ops: 4, Loops: 1",
		"; Hash: ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

func TestDisassembleShowsJumpTargets(t *testing.T) {
	prog, err := TranslateString("+[-]")
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}

	out := prog.Disassemble()
	if strings.Contains(out, "; ===") {
		t.Error("unnamed disassembly should have no name header")
	}
	for _, want := range []string{
		"0000  INC        +",
		"0001  LOOP_OPEN  [ -> 0003",
		"0002  DEC        -",
		"0003  LOOP_CLOSE ] -> 0001",
		"; line 1:2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

func TestDisassembleWithoutDebugInfo(t *testing.T) {
	prog := programWithOps(nil, OpLoopOpen, OpOutput)

	out := prog.Disassemble()
	if !strings.Contains(out, "LOOP_OPEN  [ -> ????") {
		t.Errorf("dangling bracket should show an unknown target:\n%s", out)
	}
	if strings.Contains(out, "; line") {
		t.Errorf("program without a source map should not show lines:\n%s", out)
	}
}
