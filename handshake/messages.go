// Package handshake implements the capability handshake (§4.4): the
// three-step Sync exchange (ping, capability, space-verified first data
// frame), the negotiation algorithm, and the canonical embedding-space hash.
package handshake

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Ping is the client's opening Sync payload: {"method":"ping","ts":<u64>}.
type Ping struct {
	Method string `json:"method"`
	TS     uint64 `json:"ts"`
}

// Supports carries the server's feature-support record. It is kept as raw
// JSON fields rather than a fixed struct because the record is open-ended
// (§4.4 shows "critique, dtype, ..."); callers that need a known field use
// the typed accessors below, and everything else round-trips untouched.
type Supports map[string]json.RawMessage

// Critique reports the support record's "critique" boolean, defaulting to
// false if absent or malformed.
func (s Supports) Critique() bool {
	raw, ok := s["critique"]
	if !ok {
		return false
	}
	var v bool
	_ = json.Unmarshal(raw, &v)
	return v
}

// DType reports the support record's "dtype" string list, or nil if absent.
func (s Supports) DType() []string {
	raw, ok := s["dtype"]
	if !ok {
		return nil
	}
	var v []string
	_ = json.Unmarshal(raw, &v)
	return v
}

// NewSupports builds a Supports record from a critique flag and dtype list,
// the two fields this codec itself negotiates on.
func NewSupports(critique bool, dtypes []string) Supports {
	s := make(Supports)
	if b, err := json.Marshal(critique); err == nil {
		s["critique"] = b
	}
	if b, err := json.Marshal(dtypes); err == nil {
		s["dtype"] = b
	}
	return s
}

// Capability is the server's Sync response, advertising the negotiated
// protocol version and its supported feature sets (§4.4).
type Capability struct {
	Method           string   `json:"method"`
	V                uint32   `json:"v"`
	AgreedProto      uint32   `json:"agreed_proto"`
	DModel           uint32   `json:"d_model"`
	EmbeddingSpaceID string   `json:"embedding_space_id"`
	SpaceHash32      uint32   `json:"space_hash32"`
	Compress         []string `json:"compress"`
	Crypto           []string `json:"crypto"`
	Supports         Supports `json:"supports"`
}

// ErrorCode enumerates the Sync error frame codes (§4.4, §7).
type ErrorCode string

const (
	SpaceMismatch       ErrorCode = "SPACE_MISMATCH"
	ProtocolUnsupported ErrorCode = "PROTOCOL_UNSUPPORTED"
	DecodeError         ErrorCode = "DECODE_ERROR"
	Internal            ErrorCode = "INTERNAL"
)

// SyncError is the Sync payload the server emits on a handshake failure.
type SyncError struct {
	Method   string    `json:"method"`
	Code     ErrorCode `json:"code"`
	Expected string    `json:"expected,omitempty"`
	Got      string    `json:"got,omitempty"`
}

func newSyncError(code ErrorCode, expected, got string) SyncError {
	return SyncError{Method: "error", Code: code, Expected: expected, Got: got}
}

// EncodePing marshals a Ping for a Sync frame payload.
func EncodePing(ts uint64) ([]byte, error) {
	return json.Marshal(Ping{Method: "ping", TS: ts})
}

// EncodeCapability marshals a Capability for a Sync frame payload.
func EncodeCapability(c Capability) ([]byte, error) {
	c.Method = "capability"
	return json.Marshal(c)
}

// EncodeSyncError marshals a SyncError for a Sync frame payload.
func EncodeSyncError(code ErrorCode, expected, got string) ([]byte, error) {
	return json.Marshal(newSyncError(code, expected, got))
}

// syncMethod peeks at a Sync payload's "method" field without committing to
// a full decode, mirroring how the server must branch before it knows which
// of the three message shapes it received.
func syncMethod(payload []byte) (string, error) {
	var probe struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return "", fmt.Errorf("handshake: malformed Sync payload: %w", err)
	}
	return probe.Method, nil
}

// DecodePing parses a Sync payload expected to be a ping.
func DecodePing(payload []byte) (Ping, error) {
	var p Ping
	if err := json.Unmarshal(payload, &p); err != nil {
		return Ping{}, fmt.Errorf("handshake: decode ping: %w", err)
	}
	return p, nil
}

// DecodeCapability parses a Sync payload expected to be a capability record.
func DecodeCapability(payload []byte) (Capability, error) {
	var c Capability
	if err := json.Unmarshal(payload, &c); err != nil {
		return Capability{}, fmt.Errorf("handshake: decode capability: %w", err)
	}
	return c, nil
}

// ComputeSpaceHash is the canonical embedding-space discriminator (§4.4):
// uint32_le(sha256(utf8(space_id + ":" + arch + ":" + data_sig))[0..4]).
func ComputeSpaceHash(spaceID, arch, dataSig string) uint32 {
	sum := sha256.Sum256([]byte(spaceID + ":" + arch + ":" + dataSig))
	return binary.LittleEndian.Uint32(sum[:4])
}

// Negotiate returns the first element of preferred that also appears in
// supported, matching the client's preference order against the server's
// advertised set (§4.4 negotiation algorithm). ok is false if no element of
// preferred is supported.
func Negotiate(preferred, supported []string) (pick string, ok bool) {
	set := make(map[string]struct{}, len(supported))
	for _, s := range supported {
		set[s] = struct{}{}
	}
	for _, p := range preferred {
		if _, found := set[p]; found {
			return p, true
		}
	}
	return "", false
}

// IntersectDTypes returns the dtypes present in both sets, preserving a's
// order, for the "intersection of dtype sets" clause of §4.4.
func IntersectDTypes(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, d := range b {
		set[d] = struct{}{}
	}
	var out []string
	for _, d := range a {
		if _, found := set[d]; found {
			out = append(out, d)
		}
	}
	return out
}
