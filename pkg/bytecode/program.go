package bytecode

import (
	"crypto/sha256"
	"fmt"
	"sort"
)

// ProgramVersion is the current program format version.
// Increment when making incompatible changes to the image format.
const ProgramVersion uint16 = 1

// TapeSize is the number of cells on the memory tape.
const TapeSize = 1024

// JumpMap pairs every loop bracket with its partner, keyed by op index.
// The map is symmetric: if m[i] == j then m[j] == i.
type JumpMap map[int]int

// Target returns the partner of the bracket at index i.
func (m JumpMap) Target(i int) (int, bool) {
	j, ok := m[i]
	return j, ok
}

// link records a symmetric bracket pair.
func (m JumpMap) link(open, close int) {
	m[open] = close
	m[close] = open
}

// SourceLocation maps an op index to where it came from in the source.
type SourceLocation struct {
	Offset uint32 // Byte offset in the source
	Line   uint32 // Source line number (1-based)
	Column uint32 // Source column number (1-based, in bytes)
}

func (l SourceLocation) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// Program is a translated source: an op sequence plus its jump map.
// A Program is never mutated by execution and may be shared between
// concurrent runs.
type Program struct {
	Version uint16
	Ops     []Opcode
	Jumps   JumpMap

	// Debug information; SourceMap[i] describes Ops[i] when present.
	SourceMap []SourceLocation
}

// NewProgram creates an empty program with the current version.
func NewProgram() *Program {
	return &Program{
		Version: ProgramVersion,
		Ops:     make([]Opcode, 0, 64),
		Jumps:   make(JumpMap),
	}
}

// Len returns the number of ops in the program.
func (p *Program) Len() int {
	return len(p.Ops)
}

// Location returns the source location of op i.
// The second result is false when the program carries no debug info for i.
func (p *Program) Location(i int) (SourceLocation, bool) {
	if i < 0 || i >= len(p.SourceMap) {
		return SourceLocation{}, false
	}
	return p.SourceMap[i], true
}

// OpAtOffset returns the index of the op translated from the given source
// byte offset, or -1 if that byte was a comment.
func (p *Program) OpAtOffset(offset int) int {
	i := sort.Search(len(p.SourceMap), func(i int) bool {
		return int(p.SourceMap[i].Offset) >= offset
	})
	if i < len(p.SourceMap) && int(p.SourceMap[i].Offset) == offset {
		return i
	}
	return -1
}

// Validate checks the structural invariants of a program: every bracket has
// exactly one partner of the opposite kind, opens precede their closes, the
// map is an involution, pairs nest without crossing and nothing but brackets
// has an entry.
func (p *Program) Validate() error {
	if p.Version != ProgramVersion {
		return fmt.Errorf("unsupported program version %d", p.Version)
	}
	if len(p.SourceMap) != 0 && len(p.SourceMap) != len(p.Ops) {
		return fmt.Errorf("source map has %d entries for %d ops", len(p.SourceMap), len(p.Ops))
	}
	var open []int
	for i, op := range p.Ops {
		if _, ok := opcodeInfoTable[op]; !ok {
			return fmt.Errorf("invalid opcode 0x%02X at %d", byte(op), i)
		}
		j, ok := p.Jumps.Target(i)
		if !op.IsLoop() {
			if ok {
				return fmt.Errorf("%s at %d has a jump entry", op, i)
			}
			continue
		}
		if !ok {
			return fmt.Errorf("%s at %d has no matching bracket", op, i)
		}
		if j < 0 || j >= len(p.Ops) {
			return fmt.Errorf("%s at %d jumps out of range to %d", op, i, j)
		}
		if back, ok := p.Jumps.Target(j); !ok || back != i {
			return fmt.Errorf("jump map is not symmetric at %d", i)
		}
		if op == OpLoopOpen && (p.Ops[j] != OpLoopClose || j <= i) {
			return fmt.Errorf("LOOP_OPEN at %d is paired with %s at %d", i, p.Ops[j], j)
		}
		if op == OpLoopClose && (p.Ops[j] != OpLoopOpen || j >= i) {
			return fmt.Errorf("LOOP_CLOSE at %d is paired with %s at %d", i, p.Ops[j], j)
		}

		if op == OpLoopOpen {
			open = append(open, i)
			continue
		}
		if top := open[len(open)-1]; top != j {
			return fmt.Errorf("LOOP_CLOSE at %d closes %d but %d is innermost: loops cross", i, j, top)
		}
		open = open[:len(open)-1]
	}
	for k := range p.Jumps {
		if k < 0 || k >= len(p.Ops) {
			return fmt.Errorf("jump map entry %d is outside the program", k)
		}
	}
	return nil
}

// ContentHash returns the SHA-256 of the op stream. Two sources that differ
// only in comments hash identically.
func (p *Program) ContentHash() [32]byte {
	buf := make([]byte, len(p.Ops))
	for i, op := range p.Ops {
		buf[i] = byte(op)
	}
	return sha256.Sum256(buf)
}

// Source renders the program back to its canonical source text, one
// character per op with comments stripped.
func (p *Program) Source() string {
	buf := make([]byte, len(p.Ops))
	for i, op := range p.Ops {
		buf[i] = op.Symbol()
	}
	return string(buf)
}
