package vframe

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/resonantproto/vframe/dtype"
	"github.com/resonantproto/vframe/slice"
)

// Encode serialises f per §4.3/§6: slices are concatenated, optionally
// compressed then encrypted (in that order), framed with a header, and
// sealed with a trailing CRC32 over every preceding byte.
func Encode(f Frame, opts EncodeOptions) ([]byte, error) {
	if !isKnownMsgType(uint8(f.Type)) {
		return nil, newErr(TypeUnknown, -1, "unknown message type")
	}
	if !dtype.IsKnownModality(uint8(f.Modality)) {
		return nil, newErr(ModalityUnknown, -1, "unknown modality")
	}
	if f.Flags.Has(FlagZstd) && opts.Compressor == nil {
		return nil, newErr(OptionsInvalid, -1, "FlagZstd set but no Compressor supplied")
	}
	if f.Flags.Has(FlagXChaCha) && (opts.AEAD == nil || len(opts.Nonce) == 0) {
		return nil, newErr(OptionsInvalid, -1, "FlagXChaCha set but no AEAD/Nonce supplied")
	}

	sliceLens := make([]uint32, len(f.Slices))
	var region []byte
	for i, s := range f.Slices {
		raw, err := slice.Encode(s)
		if err != nil {
			return nil, wrapErr(SliceInvalid, -1, "encoding slice", err)
		}
		sliceLens[i] = uint32(len(raw))
		region = append(region, raw...)
	}

	if f.Flags.Has(FlagZstd) {
		compressed, err := opts.Compressor.Compress(region)
		if err != nil {
			return nil, wrapErr(DecompressFailure, -1, "compressing slice region", err)
		}
		region = compressed
	}
	if f.Flags.Has(FlagXChaCha) {
		header := headerAD(f)
		sealed, err := opts.AEAD.Seal(opts.Nonce, header, region)
		if err != nil {
			return nil, wrapErr(AeadAuthFailure, -1, "sealing slice region", err)
		}
		region = sealed
	}

	var wireSliceLen []uint32
	var wireNumSlices uint64
	if f.Flags.transformed() {
		wireSliceLen = []uint32{uint32(len(region))}
		wireNumSlices = 1
	} else {
		wireSliceLen = sliceLens
		wireNumSlices = uint64(len(f.Slices))
	}

	headerLen := headerFixedSize + 4*len(wireSliceLen) + 4 + 1
	total := headerLen + len(region) + 4
	if total > MaxFrameSize {
		return nil, newErr(FrameTooLarge, -1, "encoded frame exceeds 65536 bytes")
	}

	buf := make([]byte, total)
	buf[0] = CurrentVersion
	buf[1] = uint8(f.Type)
	binary.LittleEndian.PutUint16(buf[2:], uint16(f.Flags))
	binary.LittleEndian.PutUint32(buf[4:], f.StreamID)
	binary.LittleEndian.PutUint64(buf[8:], f.FrameSeq)
	binary.LittleEndian.PutUint64(buf[16:], wireNumSlices)
	off := 24
	for _, l := range wireSliceLen {
		binary.LittleEndian.PutUint32(buf[off:], l)
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:], f.SpaceHash32)
	off += 4
	buf[off] = uint8(f.Modality)
	off++
	copy(buf[off:], region)
	off += len(region)

	crc := crc32.ChecksumIEEE(buf[:off])
	binary.LittleEndian.PutUint32(buf[off:], crc)

	return buf, nil
}

// headerAD returns the first 16 header bytes (version through frame_seq;
// num_slices is not included) as additional authenticated data, binding the ciphertext to the frame's
// identity (stream, sequence, flags, type) without needing to re-derive it
// on decode.
func headerAD(f Frame) []byte {
	ad := make([]byte, 16)
	ad[0] = CurrentVersion
	ad[1] = uint8(f.Type)
	binary.LittleEndian.PutUint16(ad[2:], uint16(f.Flags))
	binary.LittleEndian.PutUint32(ad[4:], f.StreamID)
	binary.LittleEndian.PutUint64(ad[8:], f.FrameSeq)
	return ad
}
