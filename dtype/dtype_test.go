package dtype

import "testing"

func TestElementSize(t *testing.T) {
	cases := []struct {
		d     DType
		count int
		size  int
		ok    bool
	}{
		{F16, 2048, 4096, true},
		{I8, 16, 16, true},
		{Q4, 8, 4, true},
		{Q4, 7, 4, true}, // odd count rounds up, trailing nibble zero
		{SparseCoo, 10, 0, false},
	}
	for _, c := range cases {
		size, ok := ElementSize(c.d, c.count)
		if ok != c.ok || (ok && size != c.size) {
			t.Fatalf("ElementSize(%v, %d) = (%d, %v), want (%d, %v)", c.d, c.count, size, ok, c.size, c.ok)
		}
	}
}

func TestIsKnown(t *testing.T) {
	for _, v := range []uint8{0x01, 0x02, 0x03, 0x10} {
		if !IsKnown(v) {
			t.Fatalf("IsKnown(0x%02x) = false, want true", v)
		}
	}
	if IsKnown(0x99) {
		t.Fatalf("IsKnown(0x99) = true, want false")
	}
}

func TestIsKnownModality(t *testing.T) {
	if !IsKnownModality(uint8(Mixed)) {
		t.Fatalf("Mixed should be known")
	}
	if IsKnownModality(5) {
		t.Fatalf("5 should not be a known modality")
	}
}
