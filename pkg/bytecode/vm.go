package bytecode

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// cancelCheckInterval is how many steps run between context checks.
// Must be a power of two.
const cancelCheckInterval = 1 << 12

// VM executes programs against a fixed-size memory tape.
//
// A VM is not safe for concurrent use. Each call to Execute starts from a
// zeroed tape with the data pointer and program counter at zero, so one VM
// may run many programs in sequence; concurrent runs need one VM each.
type VM struct {
	// Current execution state
	prog *Program
	pc   int // Program counter
	ptr  int // Data pointer
	tape [TapeSize]byte

	steps    uint64
	maxSteps uint64 // 0 means unlimited

	input  io.Reader
	output io.Writer
	iobuf  [1]byte

	// Trace, when non-nil, receives one line per executed op.
	Trace io.Writer
}

// NewVM creates a new VM with no input stream and no live output sink.
func NewVM() *VM {
	return &VM{}
}

// SetInput sets the stream INPUT ops read from.
func (vm *VM) SetInput(r io.Reader) {
	vm.input = r
}

// SetOutput sets the live sink OUTPUT ops write to as they execute.
// The full output is returned by Execute regardless.
func (vm *VM) SetOutput(w io.Writer) {
	vm.output = w
}

// SetMaxSteps bounds the number of ops a single run may execute.
// Zero removes the bound.
func (vm *VM) SetMaxSteps(n uint64) {
	vm.maxSteps = n
}

// Pointer returns the data pointer.
func (vm *VM) Pointer() int {
	return vm.ptr
}

// PC returns the program counter.
func (vm *VM) PC() int {
	return vm.pc
}

// Cell returns the value of tape cell i, wrapping i onto the tape.
func (vm *VM) Cell(i int) byte {
	i %= TapeSize
	if i < 0 {
		i += TapeSize
	}
	return vm.tape[i]
}

// Steps returns how many ops the last run executed.
func (vm *VM) Steps() uint64 {
	return vm.steps
}

// Execute runs a program to completion and returns every byte it emitted.
func (vm *VM) Execute(prog *Program) ([]byte, error) {
	return vm.ExecuteContext(context.Background(), prog)
}

// ExecuteContext runs a program until it finishes, fails, exhausts the step
// budget or ctx is canceled. Any failure aborts the run and no output is
// returned; bytes already written to the live sink stay written.
func (vm *VM) ExecuteContext(ctx context.Context, prog *Program) ([]byte, error) {
	if prog == nil {
		return nil, errors.New("nil program")
	}

	vm.prog = prog
	vm.pc = 0
	vm.ptr = 0
	vm.tape = [TapeSize]byte{}
	vm.steps = 0

	out, err := vm.run(ctx.Done())
	if err != nil {
		if ee, ok := err.(*ExecutionError); ok && ee.Kind == ErrKindCanceled {
			ee.Err = ctx.Err()
		}
		return nil, err
	}
	return out, nil
}

// run is the main execution loop.
func (vm *VM) run(done <-chan struct{}) ([]byte, error) {
	ops := vm.prog.Ops
	jumps := vm.prog.Jumps
	var out []byte

	for vm.pc < len(ops) {
		op := ops[vm.pc]

		if vm.maxSteps > 0 && vm.steps >= vm.maxSteps {
			return nil, vm.fail(ErrKindStepLimit, op, ErrStepLimit)
		}
		if done != nil && vm.steps&(cancelCheckInterval-1) == 0 {
			select {
			case <-done:
				return nil, vm.fail(ErrKindCanceled, op, nil)
			default:
			}
		}

		if vm.Trace != nil {
			fmt.Fprintf(vm.Trace, "[%04d] %-10s ptr=%d cell=%d\n", vm.pc, op, vm.ptr, vm.tape[vm.ptr])
		}

		switch op {
		case OpMoveRight:
			vm.ptr++
			if vm.ptr == TapeSize {
				vm.ptr = 0
			}

		case OpMoveLeft:
			if vm.ptr == 0 {
				vm.ptr = TapeSize
			}
			vm.ptr--

		case OpIncrement:
			vm.tape[vm.ptr]++

		case OpDecrement:
			vm.tape[vm.ptr]--

		case OpOutput:
			b := vm.tape[vm.ptr]
			out = append(out, b)
			if vm.output != nil {
				vm.iobuf[0] = b
				if _, err := vm.output.Write(vm.iobuf[:]); err != nil {
					return nil, vm.fail(ErrKindIO, op, fmt.Errorf("write output: %w", err))
				}
			}

		case OpInput:
			if vm.input == nil {
				return nil, vm.fail(ErrKindIO, op, ErrNoInput)
			}
			if _, err := io.ReadFull(vm.input, vm.iobuf[:]); err != nil {
				return nil, vm.fail(ErrKindIO, op, fmt.Errorf("read input: %w", err))
			}
			vm.tape[vm.ptr] = vm.iobuf[0]

		case OpLoopOpen:
			if vm.tape[vm.ptr] == 0 {
				target, ok := jumps.Target(vm.pc)
				if !ok || target <= vm.pc || target >= len(ops) {
					return nil, vm.fail(ErrKindMissingJump, op, nil)
				}
				vm.pc = target
			}

		case OpLoopClose:
			if vm.tape[vm.ptr] != 0 {
				target, ok := jumps.Target(vm.pc)
				if !ok || target < 0 || target >= vm.pc {
					return nil, vm.fail(ErrKindMissingJump, op, nil)
				}
				vm.pc = target
			}

		default:
			return nil, fmt.Errorf("unknown opcode 0x%02X at %d", byte(op), vm.pc)
		}

		vm.steps++
		vm.pc++
	}

	return out, nil
}

func (vm *VM) fail(kind ErrorKind, op Opcode, err error) *ExecutionError {
	return &ExecutionError{Kind: kind, PC: vm.pc, Op: op, Err: err}
}
