package stream_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	"github.com/resonantproto/vframe/dtype"
	"github.com/resonantproto/vframe/stream"
	"github.com/resonantproto/vframe/vframe"
)

func TestStrongTailStream(t *testing.T) {
	payloads := [][]byte{
		make([]byte, 1024),
		make([]byte, 1024),
		make([]byte, 1024),
	}
	for i := range payloads {
		for j := range payloads[i] {
			payloads[i][j] = byte(i*31 + j)
		}
	}
	h := xxh3.New()
	for _, p := range payloads {
		h.Write(p)
	}
	want := h.Sum64()

	ctrl := stream.New(zerolog.Nop())
	streamID := uint32(5)

	head := stream.BuildHead(streamID, vframe.Think, dtype.Text, 1, stream.HeadMeta{TotalLen: 3072, XXHash3: want})
	if err := ctrl.HandleHead(head); err != nil {
		t.Fatal(err)
	}
	for i, p := range payloads {
		if err := ctrl.HandleData(streamID, uint64(i+1), p); err != nil {
			t.Fatal(err)
		}
	}
	tail := stream.BuildTail(streamID, 4, vframe.Think, dtype.Text, 1, &want)
	if err := ctrl.HandleTail(tail); err != nil {
		t.Fatal(err)
	}
	if ctrl.State(streamID) != stream.Closed {
		t.Fatalf("state = %v, want Closed", ctrl.State(streamID))
	}
}

func TestStrongTailMismatchOnSwap(t *testing.T) {
	a := []byte("AAAA")
	b := []byte("BBBB")
	h := xxh3.New()
	h.Write(a)
	h.Write(b)
	want := h.Sum64()

	ctrl := stream.New(zerolog.Nop())
	streamID := uint32(1)
	head := stream.BuildHead(streamID, vframe.Think, dtype.Text, 1, stream.HeadMeta{TotalLen: 8, XXHash3: want})
	if err := ctrl.HandleHead(head); err != nil {
		t.Fatal(err)
	}
	// swapped order
	if err := ctrl.HandleData(streamID, 1, b); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.HandleData(streamID, 2, a); err != nil {
		t.Fatal(err)
	}
	tail := stream.BuildTail(streamID, 3, vframe.Think, dtype.Text, 1, &want)
	if err := ctrl.HandleTail(tail); err == nil {
		t.Fatal("expected TailHashMismatch on swapped payload order")
	}
}

func TestHeartAdvancesSeqOnly(t *testing.T) {
	ctrl := stream.New(zerolog.Nop())
	streamID := uint32(2)
	head := stream.BuildHead(streamID, vframe.Think, dtype.Text, 1, stream.HeadMeta{})
	if err := ctrl.HandleHead(head); err != nil {
		t.Fatal(err)
	}
	heart := stream.BuildHeart(streamID, 1, vframe.Think, dtype.Text, 1)
	if err := ctrl.HandleHeart(heart); err != nil {
		t.Fatal(err)
	}
	if ctrl.BytesSeen(streamID) != 0 {
		t.Fatalf("HEART must not change byte count")
	}
	tail := stream.BuildTail(streamID, 2, vframe.Think, dtype.Text, 1, nil)
	if err := ctrl.HandleTail(tail); err != nil {
		t.Fatal(err)
	}
}

func TestByteCountMismatch(t *testing.T) {
	ctrl := stream.New(zerolog.Nop())
	streamID := uint32(3)
	head := stream.BuildHead(streamID, vframe.Think, dtype.Text, 1, stream.HeadMeta{TotalLen: 100})
	if err := ctrl.HandleHead(head); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.HandleData(streamID, 1, make([]byte, 50)); err != nil {
		t.Fatal(err)
	}
	tail := stream.BuildTail(streamID, 2, vframe.Think, dtype.Text, 1, nil)
	if err := ctrl.HandleTail(tail); err == nil {
		t.Fatal("expected ByteCountMismatch")
	}
}

func TestOutOfOrderRejected(t *testing.T) {
	ctrl := stream.New(zerolog.Nop())
	streamID := uint32(4)
	head := stream.BuildHead(streamID, vframe.Think, dtype.Text, 1, stream.HeadMeta{})
	if err := ctrl.HandleHead(head); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.HandleData(streamID, 2, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.HandleData(streamID, 2, []byte("y")); err == nil {
		t.Fatal("expected OutOfOrder for a non-increasing frame_seq")
	}
}

func TestMissingHeadRejected(t *testing.T) {
	ctrl := stream.New(zerolog.Nop())
	if err := ctrl.HandleData(99, 1, []byte("x")); err == nil {
		t.Fatal("expected MissingHead")
	}
}

func TestDoubleTailRejected(t *testing.T) {
	ctrl := stream.New(zerolog.Nop())
	streamID := uint32(6)
	head := stream.BuildHead(streamID, vframe.Think, dtype.Text, 1, stream.HeadMeta{})
	if err := ctrl.HandleHead(head); err != nil {
		t.Fatal(err)
	}
	tail := stream.BuildTail(streamID, 1, vframe.Think, dtype.Text, 1, nil)
	if err := ctrl.HandleTail(tail); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.HandleTail(tail); err == nil {
		t.Fatal("expected DoubleTail on repeated TAIL")
	}
}
