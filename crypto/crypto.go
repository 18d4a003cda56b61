// Package crypto provides the XChaCha20-Poly1305 AEAD implementation of the
// vframe codec's AEAD interface (§4.3, §6), plus a session key derivation
// helper for deployers who need one (§9 Open Questions: nonce/key
// management is a deploying-system concern, not the codec's).
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const keyLen = 32

// SessionCipher implements vframe.AEAD over XChaCha20-Poly1305. It is
// stateless beyond the key itself — sequencing and nonce construction are
// the caller's concern (see NonceFor) — so one SessionCipher may be shared
// by every frame in a connection's lifetime.
type SessionCipher struct {
	aead cipherAEAD
}

type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// NewSessionCipher constructs a SessionCipher from a 32-byte key.
func NewSessionCipher(key []byte) (*SessionCipher, error) {
	if len(key) != keyLen {
		return nil, errors.New("crypto: key must be 32 bytes")
	}
	a, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &SessionCipher{aead: a}, nil
}

// Seal implements vframe.AEAD.
func (c *SessionCipher) Seal(nonce, ad, plaintext []byte) ([]byte, error) {
	if len(nonce) != chacha20poly1305.NonceSizeX {
		return nil, errors.New("crypto: nonce must be 24 bytes")
	}
	return c.aead.Seal(nil, nonce, plaintext, ad), nil
}

// Open implements vframe.AEAD.
func (c *SessionCipher) Open(nonce, ad, ciphertext []byte) ([]byte, error) {
	if len(nonce) != chacha20poly1305.NonceSizeX {
		return nil, errors.New("crypto: nonce must be 24 bytes")
	}
	return c.aead.Open(nil, nonce, ciphertext, ad)
}

// NonceFor builds the 24-byte XChaCha nonce the Open Questions section
// suggests: stream_id || frame_seq, left-padded with a per-session random
// prefix supplied by the caller (so uniqueness only requires the prefix be
// generated once per session, not once per frame).
func NonceFor(randomPrefix [12]byte, streamID uint32, frameSeq uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	copy(nonce[:12], randomPrefix[:])
	binary.LittleEndian.PutUint32(nonce[12:16], streamID)
	binary.LittleEndian.PutUint64(nonce[16:24], frameSeq)
	return nonce
}

// RandomPrefix returns a fresh 12-byte random nonce prefix for NonceFor.
func RandomPrefix() ([12]byte, error) {
	var p [12]byte
	_, err := rand.Read(p[:])
	return p, err
}

// DeriveSessionKeys derives tx/rx keys using HKDF-SHA256 over a shared
// master key and the handshake's client/server nonces, adapted from the
// connection-oriented session-key derivation the teacher protocol used for
// its HELLO/ASSIGN exchange, generalized here to the capability handshake's
// ping/capability nonces.
func DeriveSessionKeys(master []byte, sessionID [8]byte, clientNonce, serverNonce []byte, isServer bool) (txKey, rxKey []byte, err error) {
	if len(master) != keyLen {
		return nil, nil, errors.New("crypto: master key must be 32 bytes")
	}
	salt := make([]byte, 8+len(clientNonce)+len(serverNonce))
	copy(salt, sessionID[:])
	copy(salt[8:], clientNonce)
	copy(salt[8+len(clientNonce):], serverNonce)

	infoTx := []byte("resonant-tx")
	infoRx := []byte("resonant-rx")
	if isServer {
		infoTx, infoRx = infoRx, infoTx
	}

	hkTx := hkdf.New(sha256.New, master, salt, infoTx)
	hkRx := hkdf.New(sha256.New, master, salt, infoRx)
	txKey = make([]byte, keyLen)
	rxKey = make([]byte, keyLen)
	if _, err = io.ReadFull(hkTx, txKey); err != nil {
		return nil, nil, err
	}
	if _, err = io.ReadFull(hkRx, rxKey); err != nil {
		return nil, nil, err
	}
	return txKey, rxKey, nil
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}
