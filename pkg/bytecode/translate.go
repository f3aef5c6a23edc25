package bytecode

// Translate converts raw source bytes into a Program.
//
// The eight command characters become one op each; every other byte is a
// comment and does not occupy an op slot. Brackets are paired with an
// auxiliary stack of pending open positions, so the jump map is complete
// when Translate returns. A ']' with no pending '[' fails immediately; a '['
// still pending at end of input fails after the last byte.
func Translate(src []byte) (*Program, error) {
	p := NewProgram()
	p.SourceMap = make([]SourceLocation, 0, 64)

	var pending []int
	line, col := uint32(1), uint32(1)

	for offset, b := range src {
		loc := SourceLocation{Offset: uint32(offset), Line: line, Column: col}
		if b == '\n' {
			line++
			col = 1
		} else {
			col++
		}

		op, ok := OpcodeForSymbol(b)
		if !ok {
			continue
		}

		pc := len(p.Ops)
		switch op {
		case OpLoopOpen:
			pending = append(pending, pc)
		case OpLoopClose:
			if len(pending) == 0 {
				return nil, &TranslationError{Kind: UnmatchedClose, Pos: pc, Location: loc}
			}
			open := pending[len(pending)-1]
			pending = pending[:len(pending)-1]
			p.Jumps.link(open, pc)
		}

		p.Ops = append(p.Ops, op)
		p.SourceMap = append(p.SourceMap, loc)
	}

	if len(pending) > 0 {
		open := pending[len(pending)-1]
		return nil, &TranslationError{Kind: UnmatchedOpen, Pos: open, Location: p.SourceMap[open]}
	}

	return p, nil
}

// TranslateString is a convenience wrapper for string sources.
func TranslateString(src string) (*Program, error) {
	return Translate([]byte(src))
}
