package handshake_test

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/resonantproto/vframe/handshake"
)

func serverOpts() handshake.ServerOptions {
	return handshake.ServerOptions{
		ProtocolVersion:   1,
		DModel:            4096,
		EmbeddingSpaceID:  "universal-llm-v3",
		SpaceHash32:       2451163210,
		CompressSupported: []string{"zstd"},
		CryptoSupported:   []string{"xchacha20poly1305"},
		DTypeSupported:    []string{"f16", "i8"},
		Critique:          true,
		PingRateLimit:     100,
		PingBurst:         100,
		Logger:            zerolog.Nop(),
	}
}

func TestPingCapabilityExchange(t *testing.T) {
	srv := handshake.NewServer(serverOpts())
	cli := handshake.NewClient([]string{"zstd"}, []string{"xchacha20poly1305"}, []string{"f16", "i8"}, zerolog.Nop())

	ping, err := cli.BuildPing(1730616000)
	if err != nil {
		t.Fatal(err)
	}
	capRaw, err := srv.HandlePing(ping)
	if err != nil {
		t.Fatalf("HandlePing: %v", err)
	}
	if srv.State() != handshake.AwaitingCapability {
		t.Fatalf("server state = %v, want AwaitingCapability", srv.State())
	}

	result, err := cli.HandleCapability(capRaw)
	if err != nil {
		t.Fatalf("HandleCapability: %v", err)
	}
	if cli.State() != handshake.Established {
		t.Fatalf("client state = %v, want Established", cli.State())
	}
	if !result.HasCompress || result.Compress != "zstd" {
		t.Fatalf("compress negotiation = %+v", result)
	}
	if !result.HasCrypto || result.Crypto != "xchacha20poly1305" {
		t.Fatalf("crypto negotiation = %+v", result)
	}
	if result.SpaceHash32 != 2451163210 {
		t.Fatalf("space_hash32 = %d, want 2451163210", result.SpaceHash32)
	}

	// first data frame, header space_hash32 matches
	if _, err := srv.VerifyDataFrame(2451163210); err != nil {
		t.Fatalf("VerifyDataFrame: %v", err)
	}
	if srv.State() != handshake.Established {
		t.Fatalf("server state = %v, want Established", srv.State())
	}

	master := make([]byte, 32)
	for i := range master {
		master[i] = byte(i)
	}
	serverTx, serverRx, err := srv.SessionKeys(master)
	if err != nil {
		t.Fatalf("server SessionKeys: %v", err)
	}
	clientTx, clientRx, err := cli.SessionKeys(master)
	if err != nil {
		t.Fatalf("client SessionKeys: %v", err)
	}
	if string(serverTx) != string(clientRx) || string(serverRx) != string(clientTx) {
		t.Fatalf("session keys do not match across roles: server(tx=%x rx=%x) client(tx=%x rx=%x)", serverTx, serverRx, clientTx, clientRx)
	}
}

func TestSpaceMismatch(t *testing.T) {
	srv := handshake.NewServer(serverOpts())
	cli := handshake.NewClient([]string{"zstd"}, []string{"xchacha20poly1305"}, []string{"f16"}, zerolog.Nop())

	ping, _ := cli.BuildPing(1)
	capRaw, err := srv.HandlePing(ping)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cli.HandleCapability(capRaw); err != nil {
		t.Fatal(err)
	}

	errRaw, err := srv.VerifyDataFrame(0xDEADBEEF)
	if err == nil {
		t.Fatal("expected SpaceMismatch error")
	}
	if !handshake.Is(err, handshake.SpaceMismatchErr) {
		t.Fatalf("err kind = %v, want SpaceMismatch", err)
	}
	if srv.State() != handshake.Failed {
		t.Fatalf("server state = %v, want Failed", srv.State())
	}
	if len(errRaw) == 0 {
		t.Fatal("expected a Sync error payload to send back")
	}
}

func TestCapabilityReduced(t *testing.T) {
	opts := serverOpts()
	opts.CompressSupported = []string{"zstd"}
	opts.CryptoSupported = nil // server cannot honor crypto at all
	srv := handshake.NewServer(opts)
	cli := handshake.NewClient(
		[]string{"lz4", "zstd"},           // lz4 preferred but unsupported
		[]string{"xchacha20poly1305"},     // not in server's (empty) set
		[]string{"f16", "i8", "sparse"},
		zerolog.Nop(),
	)

	ping, _ := cli.BuildPing(1)
	capRaw, err := srv.HandlePing(ping)
	if err != nil {
		t.Fatal(err)
	}
	result, err := cli.HandleCapability(capRaw)
	if err != nil {
		t.Fatal(err)
	}
	if !result.HasCompress || result.Compress != "zstd" {
		t.Fatalf("expected fallback to zstd, got %+v", result)
	}
	if result.HasCrypto {
		t.Fatalf("expected no crypto agreed, got %+v", result)
	}
	// server only advertises f16/i8 dtypes
	want := map[string]bool{"f16": true, "i8": true}
	if len(result.DTypes) != 2 {
		t.Fatalf("dtype intersection = %v, want f16,i8", result.DTypes)
	}
	for _, d := range result.DTypes {
		if !want[d] {
			t.Fatalf("unexpected dtype %q in intersection", d)
		}
	}
}

func TestUnknownMethodIsDecodeError(t *testing.T) {
	srv := handshake.NewServer(serverOpts())
	_, err := srv.HandlePing([]byte(`{"method":"bogus"}`))
	if !handshake.Is(err, handshake.DecodeErr) {
		t.Fatalf("expected DecodeError for unknown method, got %v", err)
	}
	// A misdirected ping destroys only this capability-session attempt;
	// the engine stays at Idle so a corrected ping can retry.
	if srv.State() != handshake.Idle {
		t.Fatalf("server state = %v, want Idle", srv.State())
	}
}

func TestPingRateLimited(t *testing.T) {
	opts := serverOpts()
	opts.PingRateLimit = 1
	opts.PingBurst = 1
	srv := handshake.NewServer(opts)

	// A malformed ping leaves the engine at Idle (so a legitimate retry is
	// possible) but still consumes a rate-limit token.
	bad := []byte(`{"method":"ping"`) // truncated JSON
	if _, err := srv.HandlePing(bad); !handshake.Is(err, handshake.DecodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if srv.State() != handshake.Idle {
		t.Fatalf("state = %v, want Idle after a malformed ping", srv.State())
	}

	good, _ := handshake.EncodePing(1)
	if _, err := srv.HandlePing(good); !handshake.Is(err, handshake.RateLimited) {
		t.Fatalf("expected RateLimited, got %v", err)
	}
}

func TestSpaceHashIsDeterministic(t *testing.T) {
	h1 := handshake.ComputeSpaceHash("universal-llm-v3", "transformer", "fp16")
	h2 := handshake.ComputeSpaceHash("universal-llm-v3", "transformer", "fp16")
	if h1 != h2 {
		t.Fatalf("ComputeSpaceHash is not deterministic: %d != %d", h1, h2)
	}
	h3 := handshake.ComputeSpaceHash("universal-llm-v3", "transformer", "fp32")
	if h1 == h3 {
		t.Fatalf("ComputeSpaceHash did not vary with data_sig")
	}
}
