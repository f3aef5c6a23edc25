package bytecode

import (
	"strings"
	"testing"
)

func TestProgramValidate(t *testing.T) {
	prog, err := TranslateString("+[>[-]<-]")
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}
	if err := prog.Validate(); err != nil {
		t.Errorf("Validate on translated program: %v", err)
	}
}

func TestProgramValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		prog *Program
		want string
	}{
		{
			name: "missing partner",
			prog: programWithOps(nil, OpLoopOpen),
			want: "no matching bracket",
		},
		{
			name: "asymmetric",
			prog: programWithOps(JumpMap{0: 2, 2: 1, 1: 2}, OpLoopOpen, OpLoopOpen, OpLoopClose),
			want: "not symmetric",
		},
		{
			name: "jump on non-bracket",
			prog: programWithOps(JumpMap{0: 1}, OpIncrement, OpDecrement),
			want: "has a jump entry",
		},
		{
			name: "close before open",
			prog: programWithOps(JumpMap{0: 1, 1: 0}, OpLoopClose, OpLoopOpen),
			want: "paired with",
		},
		{
			name: "out of range",
			prog: programWithOps(JumpMap{0: 7, 7: 0}, OpLoopOpen),
			want: "out of range",
		},
		{
			name: "bad opcode",
			prog: programWithOps(nil, Opcode(0x77)),
			want: "invalid opcode",
		},
		{
			name: "crossing loops",
			prog: programWithOps(JumpMap{0: 2, 2: 0, 1: 3, 3: 1},
				OpLoopOpen, OpLoopOpen, OpLoopClose, OpLoopClose),
			want: "loops cross",
		},
		{
			name: "stray key",
			prog: programWithOps(JumpMap{-1: 3}, OpIncrement),
			want: "outside the program",
		},
	}

	for _, tt := range tests {
		err := tt.prog.Validate()
		if err == nil {
			t.Errorf("%s: Validate() = nil, want error", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: Validate() = %q, want it to contain %q", tt.name, err, tt.want)
		}
	}
}

func TestProgramSource(t *testing.T) {
	prog, err := TranslateString("hello [ world ] -> .")
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}
	if got := prog.Source(); got != "[]->." {
		t.Errorf("Source() = %q, want %q", got, "[]->.")
	}
}

func TestProgramContentHashDiffers(t *testing.T) {
	a, _ := TranslateString("+.")
	b, _ := TranslateString(".+")
	if a.ContentHash() == b.ContentHash() {
		t.Error("different op streams should hash differently")
	}
}
