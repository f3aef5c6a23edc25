package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// ImageMagic starts every program image: "TVBC" (Tape VM ByteCode).
var ImageMagic = []byte{'T', 'V', 'B', 'C'}

// imageHeaderLen is the magic plus a big-endian u16 version.
const imageHeaderLen = 6

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	// The source map has one entry per op, so arrays are bounded only by
	// program size.
	dm, err := cbor.DecOptions{MaxArrayElements: math.MaxInt32}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

// programImage is the CBOR body of an image. Jumps are stored as sorted
// (open, close) pairs so equal programs encode to equal bytes.
type programImage struct {
	Ops       []byte           `cbor:"1,keyasint"`
	Loops     [][2]int         `cbor:"2,keyasint,omitempty"`
	SourceMap []SourceLocation `cbor:"3,keyasint,omitempty"`
}

// IsImage reports whether data starts with the image magic.
func IsImage(data []byte) bool {
	return len(data) >= len(ImageMagic) && bytes.Equal(data[:len(ImageMagic)], ImageMagic)
}

// MarshalProgram serializes a program to an image.
// Format:
//
//	[magic:4] [version:2] [cbor body...]
func MarshalProgram(p *Program) ([]byte, error) {
	img := programImage{
		Ops:       make([]byte, len(p.Ops)),
		SourceMap: p.SourceMap,
	}
	for i, op := range p.Ops {
		img.Ops[i] = byte(op)
	}
	for open, close := range p.Jumps {
		if open < close {
			img.Loops = append(img.Loops, [2]int{open, close})
		}
	}
	sort.Slice(img.Loops, func(i, j int) bool { return img.Loops[i][0] < img.Loops[j][0] })

	body, err := cborEncMode.Marshal(&img)
	if err != nil {
		return nil, fmt.Errorf("bytecode: marshal program: %w", err)
	}

	buf := make([]byte, 0, imageHeaderLen+len(body))
	buf = append(buf, ImageMagic...)
	buf = binary.BigEndian.AppendUint16(buf, p.Version)
	buf = append(buf, body...)
	return buf, nil
}

// UnmarshalProgram decodes and validates a program image.
func UnmarshalProgram(data []byte) (*Program, error) {
	if len(data) < imageHeaderLen {
		return nil, fmt.Errorf("bytecode: image too short: need at least %d bytes, got %d", imageHeaderLen, len(data))
	}
	if !IsImage(data) {
		return nil, fmt.Errorf("bytecode: invalid image magic: expected %q, got %q", ImageMagic, data[:4])
	}
	version := binary.BigEndian.Uint16(data[4:6])
	if version > ProgramVersion {
		return nil, fmt.Errorf("bytecode: image version %d is newer than supported version %d", version, ProgramVersion)
	}

	var img programImage
	if err := cborDecMode.Unmarshal(data[imageHeaderLen:], &img); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal program: %w", err)
	}

	p := &Program{
		Version:   version,
		Ops:       make([]Opcode, len(img.Ops)),
		Jumps:     make(JumpMap, 2*len(img.Loops)),
		SourceMap: img.SourceMap,
	}
	for i, b := range img.Ops {
		p.Ops[i] = Opcode(b)
	}
	for _, pair := range img.Loops {
		p.Jumps.link(pair[0], pair[1])
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("bytecode: invalid image: %w", err)
	}
	return p, nil
}
