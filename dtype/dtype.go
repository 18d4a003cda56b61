// Package dtype holds the closed DType and Modality enumerations shared by
// every slice and frame in the Resonant Protocol wire format.
package dtype

import "fmt"

// DType identifies the element encoding of a slice's payload bytes.
type DType uint8

// Fixed numeric identifiers from the wire format (§6).
const (
	F16       DType = 0x01
	I8        DType = 0x02
	Q4        DType = 0x03
	SparseCoo DType = 0x10
)

func (d DType) String() string {
	switch d {
	case F16:
		return "F16"
	case I8:
		return "I8"
	case Q4:
		return "Q4"
	case SparseCoo:
		return "SparseCoo"
	default:
		return fmt.Sprintf("DType(0x%02x)", uint8(d))
	}
}

// IsKnown reports whether val is a member of the closed DType set.
func IsKnown(val uint8) bool {
	switch DType(val) {
	case F16, I8, Q4, SparseCoo:
		return true
	default:
		return false
	}
}

// FixedWidth reports whether payload size for d is a pure function of its
// shape (true for F16/I8/Q4). SparseCoo's size depends on companion-slice
// layout and is never fixed-width.
func (d DType) FixedWidth() bool {
	return d == F16 || d == I8 || d == Q4
}

// ElementSize reports the payload size, in bytes, for count elements of d.
// Q4 packs two elements per byte; an odd count rounds up with a zero-padded
// trailing nibble. ok is false for dtypes without a fixed element size
// (SparseCoo), in which case callers must consult companion slices.
func ElementSize(d DType, count int) (size int, ok bool) {
	switch d {
	case F16:
		return count * 2, true
	case I8:
		return count, true
	case Q4:
		return (count + 1) / 2, true
	default:
		return 0, false
	}
}

// Modality identifies the kind of data a frame's slices represent.
type Modality uint8

// Fixed numeric identifiers from the wire format (§6).
const (
	Text  Modality = 0
	Image Modality = 1
	Audio Modality = 2
	Graph Modality = 3
	Mixed Modality = 4
)

func (m Modality) String() string {
	switch m {
	case Text:
		return "Text"
	case Image:
		return "Image"
	case Audio:
		return "Audio"
	case Graph:
		return "Graph"
	case Mixed:
		return "Mixed"
	default:
		return fmt.Sprintf("Modality(%d)", uint8(m))
	}
}

// IsKnownModality reports whether val is a member of the closed Modality set.
func IsKnownModality(val uint8) bool {
	return val <= uint8(Mixed)
}
