package stream

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	"github.com/resonantproto/vframe/vframe"
)

// State is a stream's lifecycle state (§3, §4.5).
type State int

const (
	Idle State = iota
	Open
	Closed
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Open:
		return "Open"
	case Closed:
		return "Closed"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// streamState is a single stream's mutable bookkeeping, adapted from the
// teacher's mux.Session/Stream byte counters (pkg/mux), generalized from a
// multiplexer's per-echo-stream accounting to the V-Stream controller's
// per-stream_id lifecycle and running strong-tail digest.
type streamState struct {
	id           uint32
	state        State
	head         HeadMeta
	lastSeq      uint64
	bytesSeen    uint64
	lastSeenAt   time.Time
	strongTail   bool
	hasher       *xxh3.Hasher
}

// Controller maintains the stream_id → StreamState mapping for one
// connection (§5). It must not be shared across connections.
type Controller struct {
	mu      sync.Mutex
	streams map[uint32]*streamState
	log     zerolog.Logger
}

// New returns an empty Controller. A zero Logger discards all output,
// matching library (not daemon) ergonomics until a caller opts in.
func New(logger zerolog.Logger) *Controller {
	return &Controller{streams: make(map[uint32]*streamState), log: logger}
}

// HandleHead processes a HEAD frame (frame_seq=0), opening the stream.
func (c *Controller) HandleHead(f vframe.Frame) error {
	if f.FrameSeq != 0 {
		return newErr(OutOfOrder, f.StreamID, "HEAD frame must have frame_seq=0")
	}
	meta, err := ParseHead(f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.streams[f.StreamID]; ok && existing.state != Closed && existing.state != Aborted {
		return newErr(StateInvalid, f.StreamID, "stream already open")
	}
	st := &streamState{id: f.StreamID, state: Open, head: meta, lastSeq: 0, lastSeenAt: time.Now()}
	if meta.XXHash3 != 0 {
		st.strongTail = true
		st.hasher = xxh3.New()
	}
	c.streams[f.StreamID] = st
	c.log.Debug().Uint32("stream_id", f.StreamID).Uint64("total_len", meta.TotalLen).Msg("stream HEAD received")
	return nil
}

// HandleData processes a DATA frame's decoded slice payload bytes (already
// decompressed/decrypted), advancing frame_seq and feeding the running
// strong-tail digest.
func (c *Controller) HandleData(streamID uint32, seq uint64, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.requireOpen(streamID)
	if err != nil {
		return err
	}
	if seq <= st.lastSeq {
		return newErr(OutOfOrder, streamID, "frame_seq must strictly increase")
	}
	st.lastSeq = seq
	st.lastSeenAt = time.Now()
	st.bytesSeen += uint64(len(payload))
	if st.hasher != nil {
		st.hasher.Write(payload)
	}
	return nil
}

// HandleHeart processes a HEART frame: advances frame_seq and the
// last-seen timestamp only (§4.5).
func (c *Controller) HandleHeart(f vframe.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.requireOpen(f.StreamID)
	if err != nil {
		return err
	}
	if f.FrameSeq <= st.lastSeq {
		return newErr(OutOfOrder, f.StreamID, "frame_seq must strictly increase")
	}
	st.lastSeq = f.FrameSeq
	st.lastSeenAt = time.Now()
	return nil
}

// HandleTail processes the final frame, validating announced byte count and
// (when present) the strong-tail digest, then closes or aborts the stream.
func (c *Controller) HandleTail(f vframe.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.requireOpen(f.StreamID)
	if err != nil {
		return err
	}
	if f.FrameSeq <= st.lastSeq {
		return newErr(OutOfOrder, f.StreamID, "frame_seq must strictly increase")
	}

	if st.head.TotalLen != 0 && st.bytesSeen != st.head.TotalLen {
		st.state = Aborted
		return newErr(ByteCountMismatch, f.StreamID, "sum of DATA payload bytes does not match HEAD total_len")
	}

	hash, present, err := ParseTailHash(f)
	if err != nil {
		st.state = Aborted
		return err
	}
	if present {
		if st.hasher == nil {
			st.state = Aborted
			return newErr(StateInvalid, f.StreamID, "STRONG_TAIL present but HEAD did not request one")
		}
		if st.hasher.Sum64() != hash {
			st.state = Aborted
			return newErr(TailHashMismatch, f.StreamID, "xxhash3_64 digest mismatch")
		}
	}

	st.state = Closed
	st.lastSeq = f.FrameSeq
	st.hasher = nil // release the running digest; only Closed/Aborted + id is retained, for double-TAIL detection
	c.log.Debug().Uint32("stream_id", f.StreamID).Msg("stream closed")
	return nil
}

// State reports the current lifecycle state of a stream_id, or Idle if the
// controller has never seen it. Closed and Aborted streams stay in the
// table, so their state keeps being reported as Closed or Aborted.
func (c *Controller) State(streamID uint32) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.streams[streamID]
	if !ok {
		return Idle
	}
	return st.state
}

// BytesSeen reports the running DATA payload byte count for an open stream.
func (c *Controller) BytesSeen(streamID uint32) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.streams[streamID]; ok {
		return st.bytesSeen
	}
	return 0
}

func (c *Controller) requireOpen(streamID uint32) (*streamState, error) {
	st, ok := c.streams[streamID]
	if !ok {
		return nil, newErr(MissingHead, streamID, "no HEAD seen for this stream")
	}
	if st.state != Open {
		if st.state == Closed {
			return nil, newErr(DoubleTail, streamID, "stream already closed")
		}
		return nil, newErr(StateInvalid, streamID, "stream is not open")
	}
	return st, nil
}
