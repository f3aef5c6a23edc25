package bytecode

import "fmt"

// Opcode represents a single tape-machine instruction.
// Instructions carry no operands; the position of an instruction in the
// program is its only payload.
type Opcode byte

const (
	// ========================================================================
	// Pointer movement (0x01-0x02)
	// ========================================================================

	OpMoveRight Opcode = 0x01 // Move data pointer forward, wrapping at the tape end
	OpMoveLeft  Opcode = 0x02 // Move data pointer backward, wrapping at the tape start

	// ========================================================================
	// Cell arithmetic (0x10-0x11)
	// ========================================================================

	OpIncrement Opcode = 0x10 // Add one to the current cell (255+1 = 0)
	OpDecrement Opcode = 0x11 // Subtract one from the current cell (0-1 = 255)

	// ========================================================================
	// I/O (0x20-0x21)
	// ========================================================================

	OpOutput Opcode = 0x20 // Emit the current cell
	OpInput  Opcode = 0x21 // Read one byte into the current cell

	// ========================================================================
	// Control flow (0x80-0x81)
	// ========================================================================

	OpLoopOpen  Opcode = 0x80 // Jump past the matching close if the cell is zero
	OpLoopClose Opcode = 0x81 // Jump back to the matching open if the cell is non-zero
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name   string // Human-readable name
	Symbol byte   // Source character the opcode is translated from
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpMoveRight: {"MOVE_RIGHT", '>'},
	OpMoveLeft:  {"MOVE_LEFT", '<'},

	OpIncrement: {"INC", '+'},
	OpDecrement: {"DEC", '-'},

	OpOutput: {"OUTPUT", '.'},
	OpInput:  {"INPUT", ','},

	OpLoopOpen:  {"LOOP_OPEN", '['},
	OpLoopClose: {"LOOP_CLOSE", ']'},
}

// symbolTable is the reverse of opcodeInfoTable, indexed by source byte.
// A zero entry means the byte is a comment.
var symbolTable [256]Opcode

func init() {
	for op, info := range opcodeInfoTable {
		symbolTable[info.Symbol] = op
	}
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns an OpcodeInfo with name "UNKNOWN(..)" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op)), Symbol: '?'}
}

// OpcodeForSymbol returns the opcode a source byte translates to.
// The second result is false for comment bytes.
func OpcodeForSymbol(b byte) (Opcode, bool) {
	op := symbolTable[b]
	return op, op != 0
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Symbol returns the source character of an opcode.
func (op Opcode) Symbol() byte {
	return GetOpcodeInfo(op).Symbol
}

// IsLoop returns true for the two bracket opcodes.
func (op Opcode) IsLoop() bool {
	return op == OpLoopOpen || op == OpLoopClose
}

// IsIO returns true if this opcode touches the input or output stream.
func (op Opcode) IsIO() bool {
	return op == OpOutput || op == OpInput
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
