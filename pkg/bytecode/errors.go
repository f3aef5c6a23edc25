package bytecode

import (
	"errors"
	"fmt"
)

// ErrStepLimit is returned (wrapped in an ExecutionError) when a run exceeds
// the VM's step budget.
var ErrStepLimit = errors.New("step limit exceeded")

// ErrNoInput is returned (wrapped in an ExecutionError) when a program reads
// but the VM has no input stream.
var ErrNoInput = errors.New("no input stream")

// BracketKind tells which side of a loop was left unmatched.
type BracketKind uint8

const (
	// UnmatchedClose is a ']' with no pending '['.
	UnmatchedClose BracketKind = iota
	// UnmatchedOpen is a '[' still pending at end of input.
	UnmatchedOpen
)

func (k BracketKind) String() string {
	switch k {
	case UnmatchedClose:
		return "closing"
	case UnmatchedOpen:
		return "opening"
	default:
		return fmt.Sprintf("BracketKind(%d)", k)
	}
}

// TranslationError reports an unmatched bracket found while translating.
// Pos is the op index (comments excluded); Location points into the source.
type TranslationError struct {
	Kind     BracketKind
	Pos      int
	Location SourceLocation
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("unmatched %s bracket at position %d (line %d, column %d)",
		e.Kind, e.Pos, e.Location.Line, e.Location.Column)
}

// ErrorKind classifies execution failures.
type ErrorKind uint8

const (
	// ErrKindIO is a failed read from the input or write to the output.
	ErrKindIO ErrorKind = iota
	// ErrKindMissingJump is a bracket with no jump map entry.
	ErrKindMissingJump
	// ErrKindStepLimit means the step budget ran out.
	ErrKindStepLimit
	// ErrKindCanceled means the run's context was canceled.
	ErrKindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindIO:
		return "io failure"
	case ErrKindMissingJump:
		return "missing jump"
	case ErrKindStepLimit:
		return "step limit"
	case ErrKindCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// ExecutionError aborts a run. PC and Op identify the failing instruction.
type ExecutionError struct {
	Kind ErrorKind
	PC   int
	Op   Opcode
	Err  error
}

func (e *ExecutionError) Error() string {
	if e.Kind == ErrKindMissingJump {
		return fmt.Sprintf("unmatched %q at %d: no jump target", e.Op.Symbol(), e.PC)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s at %d (%s)", e.Kind, e.PC, e.Op)
	}
	return fmt.Sprintf("%s at %d (%s): %v", e.Kind, e.PC, e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsTranslationError checks if an error is (or wraps) a TranslationError.
func IsTranslationError(err error) (*TranslationError, bool) {
	var te *TranslationError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsExecutionError checks if an error is (or wraps) an ExecutionError.
func IsExecutionError(err error) (*ExecutionError, bool) {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
