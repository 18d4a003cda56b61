package vframe

// Compressor transforms the concatenated slice region under the ZSTD flag
// (§4.3). Key/dictionary management, if any, is the implementation's
// concern; the frame codec only calls Compress on encode and Decompress on
// decode.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// AEAD seals/opens the concatenated (possibly already-compressed) slice
// region under the XCHACHA flag (§4.3). Nonce provenance is the caller's
// policy (§6, §9 Open Questions) — the frame codec passes the nonce given
// in EncodeOptions/DecodeOptions straight through and never generates one
// itself.
type AEAD interface {
	Seal(nonce, additionalData, plaintext []byte) ([]byte, error)
	Open(nonce, additionalData, ciphertext []byte) ([]byte, error)
}

// EncodeOptions supplies the collaborators Encode needs when flags request
// compression and/or encryption.
type EncodeOptions struct {
	Compressor Compressor // required if Flags.Has(FlagZstd)
	AEAD       AEAD       // required if Flags.Has(FlagXChaCha)
	Nonce      []byte     // required if Flags.Has(FlagXChaCha); 24 bytes for XChaCha20-Poly1305
}

// DecodeOptions mirrors EncodeOptions for the decode path.
type DecodeOptions struct {
	Compressor Compressor
	AEAD       AEAD
	Nonce      []byte
}
