// Package bytecode translates and executes programs for a minimal tape
// machine: eight single-character commands operating on a fixed tape of
// 1024 byte cells.
//
// # Architecture Overview
//
//   - Opcodes: one opcode per command character (pointer movement, cell
//     arithmetic, I/O and the two loop brackets). Opcodes carry no operands.
//
//   - Program: the translated op sequence together with its jump map, which
//     pairs every '[' with its ']' in both directions, and a source map for
//     diagnostics. A Program is immutable once translated and may be shared
//     by any number of runs.
//
//   - Translate: a single pass over the source bytes. Bytes that are not
//     commands are comments and take no op slot. Unmatched brackets on
//     either side are reported as a *TranslationError before anything runs.
//
//   - VM: a program-counter loop over the ops. The data pointer wraps at
//     both ends of the tape and cells wrap at 8 bits. Each run starts from a
//     zeroed tape. Failures are reported as *ExecutionError values.
//
//   - Images: programs serialize to a "TVBC" header followed by a canonical
//     CBOR body, so a translated program can be cached or shipped.
//
// # Loop Semantics
//
// After every op, including a taken jump, the program counter advances by
// one. A '[' over a zero cell therefore resumes just past its ']', and a ']'
// over a non-zero cell resumes at the first op of the loop body.
//
// An empty loop "[]" entered with a non-zero cell never terminates. Callers
// that run untrusted programs should bound them with SetMaxSteps or a
// cancelable context.
package bytecode
