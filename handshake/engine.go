package handshake

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/resonantproto/vframe/crypto"
)

// State is a handshake engine's lifecycle state (§4.4, §9 re-architecture
// guidance: "model Idle/AwaitingCapability/Established/Failed as explicit
// states with a transition function").
type State int

const (
	Idle State = iota
	AwaitingCapability
	Established
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case AwaitingCapability:
		return "AwaitingCapability"
	case Established:
		return "Established"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ServerOptions configures a ServerEngine's advertised capability record.
type ServerOptions struct {
	ProtocolVersion   uint32
	DModel            uint32
	EmbeddingSpaceID  string
	SpaceHash32       uint32
	CompressSupported []string
	CryptoSupported   []string
	DTypeSupported    []string
	Critique          bool
	// PingRateLimit and PingBurst bound capability-session creation per
	// peer. A non-positive PingRateLimit defaults to 1; a non-positive
	// PingBurst defaults to the (possibly defaulted) PingRateLimit.
	PingRateLimit int
	PingBurst     int
	Logger        zerolog.Logger
}

// ServerEngine drives one peer's handshake from the server side: Idle
// (awaiting ping) → AwaitingCapability (capability sent, awaiting the
// client's first space-verified data frame) → Established. It is
// single-threaded per connection (§9) and holds no blocking I/O; callers
// feed it decoded Sync payloads and send back what it returns.
type ServerEngine struct {
	mu             sync.Mutex
	state          State
	opts           ServerOptions
	limiter        *pingLimiter
	log            zerolog.Logger
	pingTS         uint64
	lastPing       []byte
	lastCapability []byte
}

// NewServer constructs a ServerEngine in the Idle state.
func NewServer(opts ServerOptions) *ServerEngine {
	return &ServerEngine{
		state:   Idle,
		opts:    opts,
		limiter: newPingLimiter(opts.PingRateLimit, opts.PingBurst),
		log:     opts.Logger,
	}
}

// State reports the engine's current state.
func (e *ServerEngine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// HandlePing processes a Sync ping payload and returns the Sync payload to
// send back: a capability record on success, or a Sync error frame (with a
// non-nil error) when the payload is malformed or not a ping. A ping in the
// wrong state, a rate-limited ping, or a failure to encode the capability
// record returns only an error, with a nil payload.
func (e *ServerEngine) HandlePing(payload []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Idle {
		return nil, newErr(WrongState, fmt.Sprintf("ping received in state %s", e.state))
	}
	if !e.limiter.allow() {
		return nil, newErr(RateLimited, "ping attempts exceeded the configured rate")
	}

	// A malformed or misdirected ping destroys this capability-session
	// attempt (§4.4) but leaves the engine at Idle: the peer may retry
	// with a well-formed ping, subject to the rate limiter above.
	method, err := syncMethod(payload)
	if err != nil {
		raw, _ := EncodeSyncError(DecodeError, "", "")
		return raw, wrapErr(DecodeErr, "malformed Sync payload", err)
	}
	if method != "ping" {
		raw, _ := EncodeSyncError(DecodeError, "ping", method)
		return raw, newErr(DecodeErr, "unexpected Sync method "+method)
	}
	ping, err := DecodePing(payload)
	if err != nil {
		raw, _ := EncodeSyncError(DecodeError, "", "")
		return raw, wrapErr(DecodeErr, "malformed ping", err)
	}

	cap := Capability{
		V:                e.opts.ProtocolVersion,
		AgreedProto:      e.opts.ProtocolVersion,
		DModel:           e.opts.DModel,
		EmbeddingSpaceID: e.opts.EmbeddingSpaceID,
		SpaceHash32:      e.opts.SpaceHash32,
		Compress:         e.opts.CompressSupported,
		Crypto:           e.opts.CryptoSupported,
		Supports:         NewSupports(e.opts.Critique, e.opts.DTypeSupported),
	}
	raw, err := EncodeCapability(cap)
	if err != nil {
		e.state = Failed
		return nil, wrapErr(DecodeErr, "failed to encode capability", err)
	}
	e.pingTS = ping.TS
	e.lastPing = payload
	e.lastCapability = raw
	e.state = AwaitingCapability
	e.log.Debug().Str("space_id", e.opts.EmbeddingSpaceID).Msg("capability sent")
	return raw, nil
}

// VerifyDataFrame checks the first post-capability data frame's
// space_hash32 against the advertised value (§4.4 Space verification),
// establishing the connection on a match or failing it (with a Sync error
// frame to send) on a mismatch.
func (e *ServerEngine) VerifyDataFrame(spaceHash32 uint32) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != AwaitingCapability {
		return nil, newErr(WrongState, fmt.Sprintf("data frame received in state %s", e.state))
	}
	if spaceHash32 != e.opts.SpaceHash32 {
		e.state = Failed
		raw, _ := EncodeSyncError(SpaceMismatch, e.opts.EmbeddingSpaceID, fmt.Sprintf("%d", spaceHash32))
		return raw, newErr(SpaceMismatchErr, "data frame space_hash32 does not match advertised value")
	}
	e.state = Established
	e.log.Debug().Msg("handshake established")
	return nil, nil
}

// SessionKeys derives this connection's tx/rx frame keys from a
// deployment-supplied master secret (§9 Open Questions: the handshake
// supplies session-unique nonces — the ping timestamp and the exchanged
// ping/capability payloads — but the master secret itself is a deploying-
// system concern, not the codec's).
func (e *ServerEngine) SessionKeys(master []byte) (tx, rx []byte, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Established {
		return nil, nil, newErr(WrongState, fmt.Sprintf("cannot derive session keys in state %s", e.state))
	}
	var sessionID [8]byte
	binary.LittleEndian.PutUint64(sessionID[:], e.pingTS)
	return crypto.DeriveSessionKeys(master, sessionID, e.lastPing, e.lastCapability, true)
}

// NegotiationResult is the outcome of reducing the server's advertised
// capability against a client's local preferences (§4.4 negotiation
// algorithm).
type NegotiationResult struct {
	Compress    string
	HasCompress bool
	Crypto      string
	HasCrypto   bool
	DTypes      []string
	SpaceHash32 uint32
	AgreedProto uint32
}

// ClientEngine drives one connection's handshake from the client side:
// Idle (about to send ping) → AwaitingCapability (ping sent) → Established
// (capability received and accepted).
type ClientEngine struct {
	mu             sync.Mutex
	state          State
	compressPref   []string
	cryptoPref     []string
	localDTypes    []string
	negotiated     NegotiationResult
	log            zerolog.Logger
	pingTS         uint64
	lastPing       []byte
	lastCapability []byte
}

// NewClient constructs a ClientEngine with the caller's preference-ordered
// compression and crypto lists and the set of dtypes it can emit.
func NewClient(compressPref, cryptoPref, localDTypes []string, logger zerolog.Logger) *ClientEngine {
	return &ClientEngine{
		state:        Idle,
		compressPref: compressPref,
		cryptoPref:   cryptoPref,
		localDTypes:  localDTypes,
		log:          logger,
	}
}

// State reports the engine's current state.
func (c *ClientEngine) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// BuildPing encodes the opening Sync ping payload and advances to
// AwaitingCapability.
func (c *ClientEngine) BuildPing(ts uint64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return nil, newErr(WrongState, fmt.Sprintf("cannot ping in state %s", c.state))
	}
	raw, err := EncodePing(ts)
	if err != nil {
		return nil, wrapErr(DecodeErr, "failed to encode ping", err)
	}
	c.pingTS = ts
	c.lastPing = raw
	c.state = AwaitingCapability
	return raw, nil
}

// HandleCapability processes the server's Sync response — a capability
// record or a Sync error frame — running the negotiation algorithm on
// success.
func (c *ClientEngine) HandleCapability(payload []byte) (NegotiationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != AwaitingCapability {
		return NegotiationResult{}, newErr(WrongState, fmt.Sprintf("capability received in state %s", c.state))
	}

	method, err := syncMethod(payload)
	if err != nil {
		c.state = Failed
		return NegotiationResult{}, wrapErr(DecodeErr, "malformed Sync payload", err)
	}

	switch method {
	case "capability":
		cap, err := DecodeCapability(payload)
		if err != nil {
			c.state = Failed
			return NegotiationResult{}, wrapErr(DecodeErr, "malformed capability", err)
		}
		compress, hasCompress := Negotiate(c.compressPref, cap.Compress)
		cryptoAlg, hasCrypto := Negotiate(c.cryptoPref, cap.Crypto)
		result := NegotiationResult{
			Compress:    compress,
			HasCompress: hasCompress,
			Crypto:      cryptoAlg,
			HasCrypto:   hasCrypto,
			DTypes:      IntersectDTypes(c.localDTypes, cap.Supports.DType()),
			SpaceHash32: cap.SpaceHash32,
			AgreedProto: cap.AgreedProto,
		}
		c.negotiated = result
		c.lastCapability = payload
		c.state = Established
		c.log.Debug().Str("compress", compress).Str("crypto", cryptoAlg).Msg("capability negotiated")
		return result, nil
	case "error":
		se, err := decodeSyncError(payload)
		if err != nil {
			c.state = Failed
			return NegotiationResult{}, wrapErr(DecodeErr, "malformed Sync error", err)
		}
		c.state = Failed
		return NegotiationResult{}, newErr(kindForCode(se.Code), fmt.Sprintf("server reported %s (expected=%q got=%q)", se.Code, se.Expected, se.Got))
	default:
		c.state = Failed
		return NegotiationResult{}, newErr(DecodeErr, "unexpected Sync method "+method)
	}
}

// Negotiated returns the last successful negotiation result.
func (c *ClientEngine) Negotiated() NegotiationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiated
}

// SessionKeys derives this connection's tx/rx frame keys from a
// deployment-supplied master secret, the mirror image of
// ServerEngine.SessionKeys (same nonces, swapped tx/rx assignment).
func (c *ClientEngine) SessionKeys(master []byte) (tx, rx []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Established {
		return nil, nil, newErr(WrongState, fmt.Sprintf("cannot derive session keys in state %s", c.state))
	}
	var sessionID [8]byte
	binary.LittleEndian.PutUint64(sessionID[:], c.pingTS)
	return crypto.DeriveSessionKeys(master, sessionID, c.lastPing, c.lastCapability, false)
}

func decodeSyncError(payload []byte) (SyncError, error) {
	var se SyncError
	if err := json.Unmarshal(payload, &se); err != nil {
		return SyncError{}, err
	}
	return se, nil
}

func kindForCode(code ErrorCode) ErrKind {
	switch code {
	case SpaceMismatch:
		return SpaceMismatchErr
	case ProtocolUnsupported:
		return ProtocolUnsupportedErr
	case Internal:
		return InternalErr
	default:
		return DecodeErr
	}
}
