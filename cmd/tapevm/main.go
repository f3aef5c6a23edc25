// tapevm CLI - translates and runs tape programs
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/tapevm/manifest"
	"github.com/chazu/tapevm/pkg/bytecode"
	"github.com/chazu/tapevm/server"
	"github.com/chazu/tapevm/store"

	_ "github.com/tliron/commonlog/simple"
)

const version = "0.1.0"

var log = commonlog.GetLogger("tapevm")

func main() {
	verbose := flag.Bool("v", false, "Verbose output (info logging and cache/run details)")
	configPath := flag.String("config", "", "Path to tapevm.toml (default: search upward from the program)")
	disasm := flag.Bool("disasm", false, "Print the disassembled program instead of running it")
	outPath := flag.String("o", "", "Write the translated program as a TVBC image to this path")
	maxSteps := flag.Uint64("max-steps", 0, "Abort after this many operations (0 = unlimited)")
	trace := flag.Bool("trace", false, "Trace every operation to stderr")
	inputPath := flag.String("input", "", "Read program input from this file instead of stdin")
	noCache := flag.Bool("no-cache", false, "Do not use the compiled-program cache")
	lspMode := flag.Bool("lsp", false, "Start the language server on stdio")
	history := flag.Int("history", 0, "Show the N most recent runs and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tapevm [options] <file>\n\n")
		fmt.Fprintf(os.Stderr, "Runs a tape program given as source text or as a TVBC image.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  tapevm hello.b                    # Run a program\n")
		fmt.Fprintf(os.Stderr, "  tapevm -input data.txt upcase.b   # Feed input from a file\n")
		fmt.Fprintf(os.Stderr, "  tapevm -disasm hello.b            # Show the op listing\n")
		fmt.Fprintf(os.Stderr, "  tapevm -o hello.tvbc hello.b      # Save a program image\n")
		fmt.Fprintf(os.Stderr, "  tapevm hello.tvbc                 # Run a saved image\n")
		fmt.Fprintf(os.Stderr, "  tapevm -history 10                # List recent runs\n")
		fmt.Fprintf(os.Stderr, "\nLanguage Server:\n")
		fmt.Fprintf(os.Stderr, "  tapevm -lsp                       # Serve LSP on stdio\n")
	}
	flag.Parse()

	args := flag.Args()

	m, err := loadConfig(*configPath, args)
	if err != nil {
		fatal(err)
	}

	// Flags given on the command line override tapevm.toml
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "max-steps":
			m.Run.MaxSteps = *maxSteps
		case "trace":
			m.Run.Trace = *trace
		case "input":
			m.Run.Input = *inputPath
		case "no-cache":
			enabled := !*noCache
			m.Cache.Enabled = &enabled
		}
	})
	if *verbose && m.Log.Verbosity < 1 {
		m.Log.Verbosity = 1
	}
	configureLogging(m)

	if *lspMode {
		if err := server.NewLSP(version).Run(); err != nil {
			fatal(err)
		}
		return
	}

	if *history > 0 {
		if err := showHistory(m, *history); err != nil {
			fatal(err)
		}
		return
	}

	if len(args) != 1 {
		flag.Usage()
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = runFile(ctx, args[0], m, fileOptions{
		disasm:  *disasm,
		outPath: *outPath,
		verbose: *verbose,
	})
	stop()
	if err != nil {
		fatal(err)
	}
}

// fileOptions selects what runFile does with a loaded program.
type fileOptions struct {
	disasm  bool
	outPath string
	verbose bool
}

// runFile loads the program at path and disassembles, saves or runs it.
// The store is closed before returning on every path.
func runFile(ctx context.Context, path string, m *manifest.Manifest, opts fileOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	st := openStore(m)
	if st != nil {
		defer st.Close()
	}

	prog, err := loadProgram(data, st)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if opts.disasm {
		fmt.Print(prog.DisassembleWithName(filepath.Base(path)))
		return nil
	}

	if opts.outPath != "" {
		image, err := bytecode.MarshalProgram(prog)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.outPath, image, 0644); err != nil {
			return err
		}
		if opts.verbose {
			fmt.Fprintf(os.Stderr, "Wrote %s (%d ops, %d bytes)\n", opts.outPath, prog.Len(), len(image))
		}
		return nil
	}

	return execute(ctx, prog, m, st)
}

// loadConfig loads an explicit config file, or searches upward from the
// program's directory (the working directory when no program is given).
func loadConfig(configPath string, args []string) (*manifest.Manifest, error) {
	if configPath != "" {
		return manifest.Load(configPath)
	}
	startDir := "."
	if len(args) > 0 {
		startDir = filepath.Dir(args[0])
	}
	return manifest.FindAndLoad(startDir)
}

func configureLogging(m *manifest.Manifest) {
	var path *string
	if m.Log.File != "" {
		path = &m.Log.File
	}
	commonlog.Configure(m.Log.Verbosity, path)
}

// openStore opens the program cache. A cache that cannot be opened only
// costs a retranslation, so failures are logged and nil is returned.
func openStore(m *manifest.Manifest) *store.Store {
	if !m.CacheEnabled() {
		return nil
	}
	dbPath, err := m.CachePath()
	if err != nil {
		log.Warningf("program cache disabled: %s", err)
		return nil
	}
	st, err := store.Open(dbPath)
	if err != nil {
		log.Warningf("program cache disabled: %s", err)
		return nil
	}
	return st
}

// loadProgram decodes a TVBC image or translates source text, going through
// the cache when st is non-nil.
func loadProgram(data []byte, st *store.Store) (*bytecode.Program, error) {
	if bytecode.IsImage(data) {
		return bytecode.UnmarshalProgram(data)
	}
	if st == nil {
		return bytecode.Translate(data)
	}
	prog, hit, err := st.Translate(data)
	if err != nil {
		return nil, err
	}
	log.Debugf("translated %d ops (cache hit: %t)", prog.Len(), hit)
	return prog, nil
}

// execute runs prog against stdin/stdout (or the configured input file),
// reports elapsed time and records the run in the store.
func execute(ctx context.Context, prog *bytecode.Program, m *manifest.Manifest, st *store.Store) error {
	vm := bytecode.NewVM()
	vm.SetOutput(os.Stdout)
	vm.SetMaxSteps(m.Run.MaxSteps)
	if m.Run.Trace {
		vm.Trace = os.Stderr
	}

	if m.Run.Input != "" {
		f, err := os.Open(m.Run.Input)
		if err != nil {
			return err
		}
		defer f.Close()
		vm.SetInput(f)
	} else {
		vm.SetInput(os.Stdin)
	}

	rec := store.NewRunRecord(prog)
	out, err := vm.ExecuteContext(ctx, prog)
	rec.Duration = time.Since(rec.StartedAt)
	rec.OutputLen = len(out)
	if err != nil {
		rec.Error = err.Error()
	}

	if st != nil {
		if rerr := st.RecordRun(rec); rerr != nil {
			log.Warningf("recording run %s: %s", rec.ID, rerr)
		}
	}
	log.Infof("run %s: %d steps in %s", rec.ID, vm.Steps(), rec.Duration)

	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "\n=== Code Execution Successful %s ===\n", rec.Duration)
	return nil
}

func showHistory(m *manifest.Manifest, limit int) error {
	dbPath, err := m.CachePath()
	if err != nil {
		return err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.RecentRuns(limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		status := "ok"
		if r.Error != "" {
			status = r.Error
		}
		fmt.Printf("%s  %s  %x  %10s  %6d bytes  %s\n",
			r.ID, r.StartedAt.Format(time.RFC3339), r.ProgramHash[:8], r.Duration, r.OutputLen, status)
	}
	return nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
