// Package stream layers multi-frame V-Stream semantics on top of vframe:
// HEAD announces length and checksums, HEART keeps the channel alive, and
// TAIL closes the stream and optionally carries a strong xxhash3-64 digest
// of the concatenated payload (§3 Stream, §4.5, §6).
package stream

import (
	"encoding/binary"
	"fmt"

	"github.com/resonantproto/vframe/dtype"
	"github.com/resonantproto/vframe/slice"
	"github.com/resonantproto/vframe/vframe"
)

// headMetaSize is the encoded size of HeadMeta: total_len(8) + md5(16) +
// xxhash3(8) + direction(1).
const headMetaSize = 8 + 16 + 8 + 1

// HeadMeta is the metadata a HEAD frame announces for its stream (§4.5).
// MD5 is legacy/advisory per §9 Open Questions and is not checked. A
// non-zero XXHash3 makes the Controller keep a running digest of DATA
// payloads, which a STRONG_TAIL-flagged TAIL's digest is compared against;
// the HEAD's XXHash3 value itself is not compared to anything.
type HeadMeta struct {
	TotalLen  uint64
	MD5       [16]byte
	XXHash3   uint64
	Direction uint8
}

func (h HeadMeta) encode() []byte {
	buf := make([]byte, headMetaSize)
	binary.LittleEndian.PutUint64(buf[0:], h.TotalLen)
	copy(buf[8:24], h.MD5[:])
	binary.LittleEndian.PutUint64(buf[24:], h.XXHash3)
	buf[32] = h.Direction
	return buf
}

func decodeHeadMeta(b []byte) (HeadMeta, error) {
	if len(b) != headMetaSize {
		return HeadMeta{}, fmt.Errorf("stream: HEAD metadata is %d bytes, want %d", len(b), headMetaSize)
	}
	var h HeadMeta
	h.TotalLen = binary.LittleEndian.Uint64(b[0:])
	copy(h.MD5[:], b[8:24])
	h.XXHash3 = binary.LittleEndian.Uint64(b[24:])
	h.Direction = b[32]
	return h, nil
}

// BuildHead constructs the HEAD frame (frame_seq=0) announcing a stream.
func BuildHead(streamID uint32, mtype vframe.MsgType, modality dtype.Modality, spaceHash32 uint32, meta HeadMeta) vframe.Frame {
	payload := meta.encode()
	return vframe.Frame{
		Type:        mtype,
		StreamID:    streamID,
		FrameSeq:    0,
		SpaceHash32: spaceHash32,
		Modality:    modality,
		Slices: []slice.Slice{
			{DType: dtype.I8, Shape: []uint32{uint32(len(payload))}, Payload: payload},
		},
	}
}

// ParseHead extracts HeadMeta from a HEAD frame built by BuildHead.
func ParseHead(f vframe.Frame) (HeadMeta, error) {
	if len(f.Slices) != 1 {
		return HeadMeta{}, fmt.Errorf("stream: HEAD frame carries %d slices, want 1", len(f.Slices))
	}
	return decodeHeadMeta(f.Slices[0].Payload)
}

// BuildHeart constructs a HEART frame: no slices, frame_seq advanced.
func BuildHeart(streamID uint32, seq uint64, mtype vframe.MsgType, modality dtype.Modality, spaceHash32 uint32) vframe.Frame {
	return vframe.Frame{
		Type:        mtype,
		StreamID:    streamID,
		FrameSeq:    seq,
		SpaceHash32: spaceHash32,
		Modality:    modality,
	}
}

// BuildTail constructs the final frame of a stream. When strongHash is
// non-nil, FlagStrongTail is set and the digest is carried in a single I8
// slice.
func BuildTail(streamID uint32, seq uint64, mtype vframe.MsgType, modality dtype.Modality, spaceHash32 uint32, strongHash *uint64) vframe.Frame {
	f := vframe.Frame{
		Type:        mtype,
		StreamID:    streamID,
		FrameSeq:    seq,
		SpaceHash32: spaceHash32,
		Modality:    modality,
	}
	if strongHash != nil {
		f.Flags |= vframe.FlagStrongTail
		payload := make([]byte, 8)
		binary.LittleEndian.PutUint64(payload, *strongHash)
		f.Slices = []slice.Slice{
			{DType: dtype.I8, Shape: []uint32{8}, Payload: payload},
		}
	}
	return f
}

// ParseTailHash extracts the strong-tail digest from a TAIL frame, if
// present.
func ParseTailHash(f vframe.Frame) (hash uint64, present bool, err error) {
	if !f.Flags.Has(vframe.FlagStrongTail) {
		return 0, false, nil
	}
	if len(f.Slices) != 1 || len(f.Slices[0].Payload) != 8 {
		return 0, false, fmt.Errorf("stream: TAIL strong-hash slice malformed")
	}
	return binary.LittleEndian.Uint64(f.Slices[0].Payload), true, nil
}
