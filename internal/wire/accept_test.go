package wire

import "testing"

func TestAcceptKeyKnownVector(t *testing.T) {
	got := AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("AcceptKey() = %q, want %q", got, want)
	}
}

func TestMaskRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")
	mask := [4]byte{0xAA, 0x55, 0x01, 0xFE}

	work := append([]byte(nil), payload...)
	MaskBytes(work, mask)
	MaskBytes(work, mask)

	if string(work) != string(payload) {
		t.Fatalf("double mask did not round-trip: got %q want %q", work, payload)
	}
}

func TestMaskRoundTripAllMaskValues(t *testing.T) {
	payload := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	for m := 0; m < 256; m++ {
		mask := [4]byte{byte(m), byte(m), byte(m), byte(m)}
		work := append([]byte(nil), payload...)
		MaskBytes(work, mask)
		MaskBytes(work, mask)
		for i := range payload {
			if work[i] != payload[i] {
				t.Fatalf("mask %d did not round-trip at index %d", m, i)
			}
		}
	}
}

func TestParseWSURL(t *testing.T) {
	ep, err := ParseWSURL("ws://0.0.0.0:8080/ws")
	if err != nil {
		t.Fatalf("ParseWSURL() error = %v", err)
	}
	if ep.Secure || ep.Host != "0.0.0.0" || ep.Port != 8080 || ep.Subpath != "/ws" {
		t.Fatalf("ParseWSURL() = %+v", ep)
	}

	ep, err = ParseWSURL("wss://example.com:443/ws")
	if err != nil {
		t.Fatalf("ParseWSURL() error = %v", err)
	}
	if !ep.Secure || ep.Host != "example.com" || ep.Port != 443 {
		t.Fatalf("ParseWSURL() = %+v", ep)
	}
}

func TestParseWSURLRejectsBadScheme(t *testing.T) {
	if _, err := ParseWSURL("http://example.com:80/ws"); err == nil {
		t.Fatal("expected error for non-ws scheme")
	}
}
