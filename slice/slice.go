// Package slice encodes and decodes the mini-tensor slices that make up a
// V-Frame's payload region (§4.2).
package slice

import (
	"encoding/binary"
	"fmt"

	"github.com/resonantproto/vframe/dtype"
)

// MaxShapeLen is the pragmatic ceiling on a slice's shape length (§4.2).
const MaxShapeLen = 8

// ErrKind enumerates the slice codec's fatal conditions.
type ErrKind int

const (
	BadShape ErrKind = iota
	DTypeUnknown
	SliceLengthMismatch
)

func (k ErrKind) String() string {
	switch k {
	case BadShape:
		return "BadShape"
	case DTypeUnknown:
		return "DTypeUnknown"
	case SliceLengthMismatch:
		return "SliceLengthMismatch"
	default:
		return "Unknown"
	}
}

// Error is a typed slice-codec error with an optional byte offset into the
// slice being parsed.
type Error struct {
	Kind   ErrKind
	Offset int
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("slice: %s at offset %d: %s", e.Kind, e.Offset, e.Msg)
}

// Slice is a typed tensor living inside a frame.
type Slice struct {
	DType   dtype.DType
	Shape   []uint32
	Payload []byte
}

// ElementCount returns ∏ Shape, with the empty shape (a scalar) by
// convention equal to 1.
func (s Slice) ElementCount() int {
	n := 1
	for _, d := range s.Shape {
		n *= int(d)
	}
	return n
}

// headerSize returns the byte length of dtype+shape_len+shape(+sparse length).
func headerSize(shapeLen int, sparse bool) int {
	n := 2 + 4*shapeLen
	if sparse {
		n += 4
	}
	return n
}

// Encode serialises s as dtype|shape_len|shape[]|[sparse: len]|payload.
//
// For SparseCoo, an explicit little-endian uint32 payload length is written
// immediately after the shape vector so the slice remains self-describing
// once it's been concatenated into a frame's transformed slice region,
// where per-slice lengths from the frame header are no longer available
// (see the vframe package's handling of merged regions).
func Encode(s Slice) ([]byte, error) {
	if len(s.Shape) > MaxShapeLen {
		return nil, &Error{Kind: BadShape, Msg: fmt.Sprintf("shape_len %d exceeds %d", len(s.Shape), MaxShapeLen)}
	}
	if !dtype.IsKnown(uint8(s.DType)) {
		return nil, &Error{Kind: DTypeUnknown, Msg: fmt.Sprintf("dtype 0x%02x", uint8(s.DType))}
	}

	sparse := s.DType == dtype.SparseCoo
	if !sparse {
		if expected, ok := dtype.ElementSize(s.DType, s.ElementCount()); ok && expected != len(s.Payload) {
			return nil, &Error{Kind: SliceLengthMismatch, Msg: fmt.Sprintf("dtype %s with shape %v expects %d bytes, got %d", s.DType, s.Shape, expected, len(s.Payload))}
		}
	}

	hdr := headerSize(len(s.Shape), sparse)
	buf := make([]byte, hdr+len(s.Payload))
	buf[0] = uint8(s.DType)
	buf[1] = uint8(len(s.Shape))
	off := 2
	for _, d := range s.Shape {
		binary.LittleEndian.PutUint32(buf[off:], d)
		off += 4
	}
	if sparse {
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(s.Payload)))
		off += 4
	}
	copy(buf[off:], s.Payload)
	return buf, nil
}

// Decode parses a single slice out of data, where declaredLen is the
// authoritative total byte length of this slice as given by the enclosing
// frame's slice_len[i] (§4.2). It returns the slice and the number of bytes
// consumed from data (equal to declaredLen on success).
func Decode(data []byte, declaredLen int) (Slice, int, error) {
	if declaredLen < 2 || declaredLen > len(data) {
		return Slice{}, 0, &Error{Kind: SliceLengthMismatch, Msg: fmt.Sprintf("declared length %d invalid for %d available bytes", declaredLen, len(data))}
	}
	d := dtype.DType(data[0])
	if !dtype.IsKnown(uint8(d)) {
		return Slice{}, 0, &Error{Kind: DTypeUnknown, Offset: 0, Msg: fmt.Sprintf("dtype 0x%02x", data[0])}
	}
	shapeLen := int(data[1])
	if shapeLen > MaxShapeLen {
		return Slice{}, 0, &Error{Kind: BadShape, Offset: 1, Msg: fmt.Sprintf("shape_len %d exceeds %d", shapeLen, MaxShapeLen)}
	}
	sparse := d == dtype.SparseCoo
	hdr := headerSize(shapeLen, sparse)
	if declaredLen < hdr {
		return Slice{}, 0, &Error{Kind: SliceLengthMismatch, Msg: fmt.Sprintf("declared length %d shorter than header %d", declaredLen, hdr)}
	}
	if hdr > len(data) {
		return Slice{}, 0, &Error{Kind: BadShape, Offset: 2, Msg: "shape vector truncated"}
	}

	shape := make([]uint32, shapeLen)
	off := 2
	for i := 0; i < shapeLen; i++ {
		shape[i] = binary.LittleEndian.Uint32(data[off:])
		off += 4
	}

	payloadLen := declaredLen - hdr
	if sparse {
		sparseLen := binary.LittleEndian.Uint32(data[off:])
		off += 4
		payloadLen = int(sparseLen)
		if hdr+payloadLen != declaredLen {
			return Slice{}, 0, &Error{Kind: SliceLengthMismatch, Msg: fmt.Sprintf("sparse payload length %d does not fill declared length %d", payloadLen, declaredLen)}
		}
	} else {
		elemCount := 1
		for _, dim := range shape {
			elemCount *= int(dim)
		}
		if expected, ok := dtype.ElementSize(d, elemCount); ok && expected != payloadLen {
			return Slice{}, 0, &Error{Kind: SliceLengthMismatch, Msg: fmt.Sprintf("dtype %s with shape %v expects %d bytes, declared length implies %d", d, shape, expected, payloadLen)}
		}
	}

	if off+payloadLen > len(data) {
		return Slice{}, 0, &Error{Kind: SliceLengthMismatch, Msg: "payload truncated"}
	}
	payload := make([]byte, payloadLen)
	copy(payload, data[off:off+payloadLen])

	return Slice{DType: d, Shape: shape, Payload: payload}, hdr + payloadLen, nil
}

// ScanOne parses one self-describing slice out of a merged (post-transform)
// region, where no authoritative slice_len is available. Non-sparse dtypes
// derive their payload length from dtype × shape; SparseCoo slices carry an
// explicit length (see Encode). It returns the slice and the number of
// bytes consumed.
func ScanOne(data []byte) (Slice, int, error) {
	if len(data) < 2 {
		return Slice{}, 0, &Error{Kind: SliceLengthMismatch, Msg: "merged region truncated before slice header"}
	}
	d := dtype.DType(data[0])
	if !dtype.IsKnown(uint8(d)) {
		return Slice{}, 0, &Error{Kind: DTypeUnknown, Msg: fmt.Sprintf("dtype 0x%02x", data[0])}
	}
	shapeLen := int(data[1])
	if shapeLen > MaxShapeLen {
		return Slice{}, 0, &Error{Kind: BadShape, Msg: fmt.Sprintf("shape_len %d exceeds %d", shapeLen, MaxShapeLen)}
	}
	sparse := d == dtype.SparseCoo
	hdr := headerSize(shapeLen, sparse)
	if hdr > len(data) {
		return Slice{}, 0, &Error{Kind: BadShape, Msg: "shape vector truncated in merged region"}
	}

	shape := make([]uint32, shapeLen)
	off := 2
	for i := 0; i < shapeLen; i++ {
		shape[i] = binary.LittleEndian.Uint32(data[off:])
		off += 4
	}

	var payloadLen int
	if sparse {
		payloadLen = int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
	} else {
		elemCount := 1
		for _, dim := range shape {
			elemCount *= int(dim)
		}
		size, ok := dtype.ElementSize(d, elemCount)
		if !ok {
			return Slice{}, 0, &Error{Kind: DTypeUnknown, Msg: fmt.Sprintf("dtype %s has no fixed element size", d)}
		}
		payloadLen = size
	}

	if off+payloadLen > len(data) {
		return Slice{}, 0, &Error{Kind: SliceLengthMismatch, Msg: "slice payload exceeds merged region"}
	}
	payload := make([]byte, payloadLen)
	copy(payload, data[off:off+payloadLen])

	return Slice{DType: d, Shape: shape, Payload: payload}, off + payloadLen, nil
}
