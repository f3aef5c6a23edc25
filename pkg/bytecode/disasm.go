package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the program.
func (p *Program) Disassemble() string {
	return p.DisassembleWithName("")
}

// DisassembleWithName returns a human-readable listing with a name header.
func (p *Program) DisassembleWithName(name string) string {
	var sb strings.Builder

	// Header
	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; Tape Bytecode v%d\n", p.Version))
	sb.WriteString(fmt.Sprintf("; Ops: %d, Loops: %d\n", len(p.Ops), len(p.Jumps)/2))
	hash := p.ContentHash()
	sb.WriteString(fmt.Sprintf("; Hash: %x\n", hash[:8]))
	sb.WriteString("\n")

	for i := range p.Ops {
		line := p.disassembleOp(i)
		if loc, ok := p.Location(i); ok {
			sb.WriteString(fmt.Sprintf("%04d  %-24s ; line %d:%d\n", i, line, loc.Line, loc.Column))
		} else {
			sb.WriteString(fmt.Sprintf("%04d  %s\n", i, line))
		}
	}

	return sb.String()
}

// disassembleOp formats the op at index i.
func (p *Program) disassembleOp(i int) string {
	op := p.Ops[i]
	if !op.IsLoop() {
		return fmt.Sprintf("%-10s %c", op, op.Symbol())
	}
	target, ok := p.Jumps.Target(i)
	if !ok {
		return fmt.Sprintf("%-10s %c -> ????", op, op.Symbol())
	}
	return fmt.Sprintf("%-10s %c -> %04d", op, op.Symbol(), target)
}
