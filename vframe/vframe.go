// Package vframe implements the V-Frame wire codec: header layout, slice
// region framing, CRC32 integrity, and flag-gated compression/AEAD (§4.3,
// §6). Encode and Decode are pure functions over byte slices — no I/O, no
// sockets, no goroutines (§9 Transport isolation).
package vframe

import (
	"fmt"

	"github.com/resonantproto/vframe/dtype"
	"github.com/resonantproto/vframe/slice"
)

// CurrentVersion is the only version this codec emits or accepts.
const CurrentVersion uint8 = 1

// MaxFrameSize is the hard ceiling on an encoded frame (§3, §8).
const MaxFrameSize = 65536

// MsgType is the frame's message kind.
type MsgType uint8

const (
	Think    MsgType = 0
	Cache    MsgType = 1
	Ask      MsgType = 2
	Sync     MsgType = 3
	Critique MsgType = 4
)

func (t MsgType) String() string {
	switch t {
	case Think:
		return "Think"
	case Cache:
		return "Cache"
	case Ask:
		return "Ask"
	case Sync:
		return "Sync"
	case Critique:
		return "Critique"
	default:
		return fmt.Sprintf("MsgType(%d)", uint8(t))
	}
}

func isKnownMsgType(v uint8) bool {
	return v <= uint8(Critique)
}

// Flags is the frame's 16-bit flag bitset.
type Flags uint16

const (
	FlagZstd       Flags = 1 << 0
	FlagXChaCha    Flags = 1 << 1
	FlagStrongTail Flags = 1 << 2
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// transformed reports whether any flag that merges the slice region into a
// single transport unit is set (§4.3 step 4).
func (f Flags) transformed() bool {
	return f.Has(FlagZstd) || f.Has(FlagXChaCha)
}

// Frame is the fully decoded, logical V-Frame (§3). Slices always holds the
// complete logical slice list, regardless of whether the wire form merged
// them under compression/encryption.
type Frame struct {
	Type        MsgType
	Flags       Flags
	StreamID    uint32
	FrameSeq    uint64
	SpaceHash32 uint32
	Modality    dtype.Modality
	Slices      []slice.Slice
}

const headerFixedSize = 1 + 1 + 2 + 4 + 8 + 8 // version..num_slices
const tailFixedSize = 4 + 1 + 4               // space_hash32 + modality + crc32

// MinFrameSize is the smallest possible encoded frame: fixed header, no
// slice_len entry, and no slice region (num_slices=0 with no transform flag,
// only legal for a HEART frame).
const MinFrameSize = headerFixedSize + tailFixedSize
