package bytecode

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// helloWorld is the classic program, written with commentary that the
// translator has to skip.
const helloWorld = `Hello World program
++++++++               set cell 0 to 8
[
    >++++              add 4 to cell 1
    [                  inner loop runs 4 times
        >++ >+++ >+++ >+
        <<<<-
    ]
    >+ >+ >- >>+
    [<]                back to the first zero cell
    <-
]
>>.                    H
>---.                  e
+++++++..+++.          llo
>>.                    space
<-.<.+++.------.--------.   World
>>+.                   !
>++.                   newline
`

const helloFragment = "++++++++[>++++[>++>+++>+++>+<<<<-]>+>+>->>+[<]<-]>>.>---.+++++++..+++."

func TestIntegrationHelloWorld(t *testing.T) {
	var sink bytes.Buffer
	out, err := Run(context.Background(), []byte(helloWorld), nil, &sink)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if string(out) != "Hello World!\n" {
		t.Errorf("output = %q, want %q", out, "Hello World!\n")
	}
	if sink.String() != string(out) {
		t.Errorf("sink = %q, want it to match the returned output", sink.String())
	}
}

func TestIntegrationHelloFragmentIsDeterministic(t *testing.T) {
	prog, err := TranslateString(helloFragment)
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}

	var first []byte
	for i := 0; i < 5; i++ {
		out, err := NewVM().Execute(prog)
		if err != nil {
			t.Fatalf("run %d: Execute error: %v", i, err)
		}
		if i == 0 {
			first = out
			continue
		}
		if !bytes.Equal(out, first) {
			t.Fatalf("run %d output %q differs from %q", i, out, first)
		}
	}
	if string(first) != "Hello" {
		t.Errorf("output = %q, want %q", first, "Hello")
	}
}

func TestIntegrationSharedProgramConcurrentRuns(t *testing.T) {
	prog, err := TranslateString(helloWorld)
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := NewVM().Execute(prog)
			if err != nil {
				errs <- err
				return
			}
			if string(out) != "Hello World!\n" {
				errs <- fmt.Errorf("output = %q", out)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent run: %v", err)
	}
}

func TestIntegrationRunReportsTranslationError(t *testing.T) {
	_, err := Run(context.Background(), []byte("+[.]]"), nil, nil)
	te, ok := IsTranslationError(err)
	if !ok {
		t.Fatalf("error = %v, want TranslationError", err)
	}
	if te.Pos != 4 {
		t.Errorf("Pos = %d, want 4", te.Pos)
	}
}

func TestIntegrationUpcase(t *testing.T) {
	// Read until a zero byte, subtracting 32 from each byte read.
	src := ",[" + strings.Repeat("-", 32) + ".,]"
	in := strings.NewReader("shout\x00")

	out, err := Run(context.Background(), []byte(src), in, nil)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if string(out) != "SHOUT" {
		t.Errorf("output = %q, want %q", out, "SHOUT")
	}
}
