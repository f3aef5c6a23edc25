// Package server provides a language server for tape programs.
package server

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf16"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/tapevm/pkg/bytecode"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "tapevm-lsp"

var log = commonlog.GetLogger("tapevm.server")

// LspServer provides bracket diagnostics, hover and go-to-matching-bracket
// for tape programs.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server.
func NewLSP(version string) *LspServer {
	s := &LspServer{
		docs:    make(map[string]string),
		version: version,
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Infof("%s %s initializing", lspName, s.version)

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	log.Infof("%s shutting down", lspName)
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			text := whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return hover(text, params.Position), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	loc := matchingBracket(uri, text, params.Position)
	if loc == nil {
		return nil, nil
	}
	return loc, nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := diagnose(text)
	log.Debugf("%s: %d diagnostics", uri, len(diagnostics))

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnose reports an unmatched bracket as an error and every empty loop
// as a warning: "[]" entered with a non-zero cell never terminates.
func diagnose(text string) []protocol.Diagnostic {
	source := lspName
	diagnostics := []protocol.Diagnostic{}

	prog, err := bytecode.TranslateString(text)
	if err != nil {
		te, ok := bytecode.IsTranslationError(err)
		if !ok {
			return diagnostics
		}
		severity := protocol.DiagnosticSeverityError
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    charRange(text, te.Location),
			Severity: &severity,
			Source:   &source,
			Message:  err.Error(),
		})
		return diagnostics
	}

	for i, op := range prog.Ops {
		if op != bytecode.OpLoopOpen {
			continue
		}
		j, _ := prog.Jumps.Target(i)
		if j != i+1 {
			continue
		}
		openLoc, _ := prog.Location(i)
		closeLoc, _ := prog.Location(j)
		severity := protocol.DiagnosticSeverityWarning
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range: protocol.Range{
				Start: toPosition(text, openLoc),
				End:   charRange(text, closeLoc).End,
			},
			Severity: &severity,
			Source:   &source,
			Message:  "empty loop never terminates if entered with a non-zero cell",
		})
	}
	return diagnostics
}

// hover describes the command under the cursor.
func hover(text string, pos protocol.Position) *protocol.Hover {
	offset, ok := offsetAt(text, pos)
	if !ok {
		return nil
	}
	op, ok := bytecode.OpcodeForSymbol(text[offset])
	if !ok {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s** `%c`", op, op.Symbol())

	prog, err := bytecode.TranslateString(text)
	if err == nil {
		idx := prog.OpAtOffset(offset)
		fmt.Fprintf(&b, "\n\nop %d of %d", idx, prog.Len())
		if op.IsLoop() {
			if j, ok := prog.Jumps.Target(idx); ok {
				loc, _ := prog.Location(j)
				fmt.Fprintf(&b, "\n\nmatches `%c` at line %d, column %d (op %d)", prog.Ops[j].Symbol(), loc.Line, loc.Column, j)
			}
		}
	}

	r := charRange(text, locationAt(text, offset))
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
		Range: &r,
	}
}

// matchingBracket returns the location of the partner of the bracket under
// the cursor.
func matchingBracket(uri protocol.DocumentUri, text string, pos protocol.Position) *protocol.Location {
	offset, ok := offsetAt(text, pos)
	if !ok {
		return nil
	}
	if op, ok := bytecode.OpcodeForSymbol(text[offset]); !ok || !op.IsLoop() {
		return nil
	}

	prog, err := bytecode.TranslateString(text)
	if err != nil {
		return nil
	}
	j, ok := prog.Jumps.Target(prog.OpAtOffset(offset))
	if !ok {
		return nil
	}
	loc, _ := prog.Location(j)
	return &protocol.Location{
		URI:   uri,
		Range: charRange(text, loc),
	}
}

// --- Position helpers ---
//
// LSP 3.16 counts characters in UTF-16 code units. Source locations count
// bytes, so every conversion goes through the line's text.

// offsetAt converts an LSP position to a byte offset in text. It fails for
// positions past the end of the line or inside a surrogate pair.
func offsetAt(text string, pos protocol.Position) (int, bool) {
	start := 0
	for line := 0; line < int(pos.Line); line++ {
		nl := strings.IndexByte(text[start:], '\n')
		if nl < 0 {
			return 0, false
		}
		start += nl + 1
	}

	lineText := text[start:]
	if nl := strings.IndexByte(lineText, '\n'); nl >= 0 {
		lineText = lineText[:nl]
	}

	units := 0
	for i, r := range lineText {
		if units == int(pos.Character) {
			return start + i, true
		}
		if units > int(pos.Character) {
			return 0, false
		}
		units += utf16Len(r)
	}
	return 0, false
}

// locationAt computes the 1-based line and byte column of a byte offset.
func locationAt(text string, offset int) bytecode.SourceLocation {
	line := uint32(1 + strings.Count(text[:offset], "\n"))
	lineStart := strings.LastIndexByte(text[:offset], '\n') + 1
	return bytecode.SourceLocation{
		Offset: uint32(offset),
		Line:   line,
		Column: uint32(offset-lineStart) + 1,
	}
}

func toPosition(text string, loc bytecode.SourceLocation) protocol.Position {
	offset := int(loc.Offset)
	lineStart := offset - int(loc.Column-1)
	units := 0
	for _, r := range text[lineStart:offset] {
		units += utf16Len(r)
	}
	return protocol.Position{
		Line:      protocol.UInteger(loc.Line - 1),
		Character: protocol.UInteger(units),
	}
}

// charRange covers the single command character at loc.
func charRange(text string, loc bytecode.SourceLocation) protocol.Range {
	start := toPosition(text, loc)
	end := start
	end.Character++
	return protocol.Range{Start: start, End: end}
}

func utf16Len(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	// Invalid UTF-8 decodes to U+FFFD, one unit.
	return 1
}

func boolPtr(b bool) *bool {
	return &b
}
