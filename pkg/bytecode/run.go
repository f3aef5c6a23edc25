package bytecode

import (
	"context"
	"io"
)

// Run translates src and executes it on a fresh VM, reading INPUT bytes from
// in and streaming OUTPUT bytes to out. Either stream may be nil. It returns
// the full output of the run.
func Run(ctx context.Context, src []byte, in io.Reader, out io.Writer) ([]byte, error) {
	prog, err := Translate(src)
	if err != nil {
		return nil, err
	}

	vm := NewVM()
	vm.SetInput(in)
	vm.SetOutput(out)
	return vm.ExecuteContext(ctx, prog)
}
