package vframe

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/resonantproto/vframe/dtype"
	"github.com/resonantproto/vframe/slice"
)

// Decode parses an encoded V-Frame (§4.3/§6). It verifies the CRC32 before
// doing any authentication or decompression work, so corruption is caught
// cheaply ahead of expensive cryptography.
func Decode(data []byte, opts DecodeOptions) (Frame, error) {
	if len(data) > MaxFrameSize {
		return Frame{}, newErr(FrameTooLarge, len(data), "encoded frame exceeds 65536 bytes")
	}
	if len(data) < headerFixedSize+4 {
		return Frame{}, newErr(TruncatedHeader, len(data), "shorter than mandatory header")
	}

	version := data[0]
	if version != CurrentVersion {
		return Frame{}, newErr(VersionUnsupported, 0, "decoders must reject unknown versions")
	}
	mtype := data[1]
	if !isKnownMsgType(mtype) {
		return Frame{}, newErr(TypeUnknown, 1, "unknown message type")
	}
	flags := Flags(binary.LittleEndian.Uint16(data[2:]))
	streamID := binary.LittleEndian.Uint32(data[4:])
	frameSeq := binary.LittleEndian.Uint64(data[8:])
	wireNumSlices := binary.LittleEndian.Uint64(data[16:])

	k := wireNumSlices
	if flags.transformed() {
		k = 1
	}
	// k is bounded by frame size in practice; guard against absurd values
	// before allocating.
	if k > uint64(MaxFrameSize/4) {
		return Frame{}, newErr(TruncatedHeader, 24, "slice_len count implausibly large")
	}

	off := 24
	if off+4*int(k) > len(data) {
		return Frame{}, newErr(TruncatedHeader, off, "slice_len array truncated")
	}
	sliceLen := make([]uint32, k)
	for i := range sliceLen {
		sliceLen[i] = binary.LittleEndian.Uint32(data[off:])
		off += 4
	}

	if off+4+1 > len(data) {
		return Frame{}, newErr(TruncatedHeader, off, "header truncated before space_hash32/modality")
	}
	spaceHash32 := binary.LittleEndian.Uint32(data[off:])
	off += 4
	modality := data[off]
	if !dtype.IsKnownModality(modality) {
		return Frame{}, newErr(ModalityUnknown, off, "unknown modality")
	}
	off++

	regionLen := 0
	for _, l := range sliceLen {
		regionLen += int(l)
	}
	if off+regionLen+4 > len(data) {
		return Frame{}, newErr(TruncatedSlices, off, "slice region shorter than declared")
	}
	region := data[off : off+regionLen]
	off += regionLen

	crcOffset := off
	gotCrc := binary.LittleEndian.Uint32(data[crcOffset:])
	wantCrc := crc32.ChecksumIEEE(data[:crcOffset])
	if gotCrc != wantCrc {
		return Frame{}, newErr(CrcMismatch, crcOffset, "CRC32 mismatch")
	}
	if crcOffset+4 != len(data) {
		return Frame{}, newErr(TruncatedSlices, crcOffset+4, "trailing bytes after CRC32")
	}

	f := Frame{
		Type:        MsgType(mtype),
		Flags:       flags,
		StreamID:    streamID,
		FrameSeq:    frameSeq,
		SpaceHash32: spaceHash32,
		Modality:    dtype.Modality(modality),
	}

	if flags.Has(FlagXChaCha) {
		if opts.AEAD == nil || len(opts.Nonce) == 0 {
			return Frame{}, newErr(OptionsInvalid, -1, "FlagXChaCha set but no AEAD/Nonce supplied")
		}
		ad := headerAD(f)
		opened, err := opts.AEAD.Open(opts.Nonce, ad, region)
		if err != nil {
			return Frame{}, wrapErr(AeadAuthFailure, off, "AEAD authentication failed", err)
		}
		region = opened
	}
	if flags.Has(FlagZstd) {
		if opts.Compressor == nil {
			return Frame{}, newErr(OptionsInvalid, -1, "FlagZstd set but no Compressor supplied")
		}
		decompressed, err := opts.Compressor.Decompress(region)
		if err != nil {
			return Frame{}, wrapErr(DecompressFailure, off, "decompressing slice region", err)
		}
		region = decompressed
	}

	slices, err := parseSlices(region, sliceLen, flags.transformed())
	if err != nil {
		return Frame{}, err
	}
	f.Slices = slices

	return f, nil
}

// parseSlices splits region into individual slices. When merged is false,
// sliceLen has one authoritative entry per slice (§4.2). When merged is
// true, the region was reconstituted by compression/encryption and must be
// walked self-describingly (§4.3 decode order, §9 Open Questions).
func parseSlices(region []byte, sliceLen []uint32, merged bool) ([]slice.Slice, error) {
	if !merged {
		slices := make([]slice.Slice, 0, len(sliceLen))
		pos := 0
		for _, l := range sliceLen {
			s, n, err := slice.Decode(region[pos:], int(l))
			if err != nil {
				return nil, wrapErr(SliceInvalid, pos, "decoding slice", err)
			}
			pos += n
			slices = append(slices, s)
		}
		return slices, nil
	}

	var slices []slice.Slice
	pos := 0
	for pos < len(region) {
		s, n, err := slice.ScanOne(region[pos:])
		if err != nil {
			return nil, wrapErr(SliceInvalid, pos, "scanning merged slice region", err)
		}
		slices = append(slices, s)
		pos += n
	}
	return slices, nil
}
