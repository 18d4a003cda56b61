package crypto

import "testing"

func TestSessionCipherSealOpen(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	c, err := NewSessionCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	prefix, err := RandomPrefix()
	if err != nil {
		t.Fatal(err)
	}
	nonce := NonceFor(prefix, 0x1234, 7)
	ad := []byte("frame-header")
	pt := []byte("latent state bytes")

	ct, err := c.Seal(nonce, ad, pt)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Open(nonce, ad, ct)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(pt) {
		t.Fatalf("roundtrip mismatch: got %q, want %q", got, pt)
	}
}

func TestSessionCipherRejectsTamperedAD(t *testing.T) {
	key := make([]byte, 32)
	c, _ := NewSessionCipher(key)
	prefix, _ := RandomPrefix()
	nonce := NonceFor(prefix, 1, 1)
	ct, err := c.Seal(nonce, []byte("ad-a"), []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Open(nonce, []byte("ad-b"), ct); err == nil {
		t.Fatal("expected AEAD authentication failure on mismatched AD")
	}
}

func TestDeriveSessionKeysDifferByRole(t *testing.T) {
	master := make([]byte, 32)
	var sid [8]byte
	sid[0] = 1
	cn := make([]byte, 16)
	sn := make([]byte, 16)
	tx, rx, err := DeriveSessionKeys(master, sid, cn, sn, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(tx) != 32 || len(rx) != 32 {
		t.Fatalf("bad key length")
	}
	tx2, rx2, err := DeriveSessionKeys(master, sid, cn, sn, true)
	if err != nil {
		t.Fatal(err)
	}
	if string(tx) == string(tx2) || string(rx) == string(rx2) {
		t.Fatalf("keys should differ by role")
	}
	if string(tx) != string(rx2) || string(rx) != string(tx2) {
		t.Fatalf("client tx should equal server rx and vice versa")
	}
}
