package core

import "testing"

func TestAddressRoundTrip(t *testing.T) {
	a, err := GenerateKeypairSigner()
	if err != nil {
		t.Fatal(err)
	}
	addr := a.PublicKey()
	s := addr.String()

	parsed, err := ParseAddress(s)
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if parsed != addr {
		t.Errorf("round trip mismatch: %v != %v", parsed, addr)
	}
}

func TestParseAddressWrongLength(t *testing.T) {
	if _, err := ParseAddress("2"); err == nil {
		t.Fatal("expected error for too-short base58 payload")
	}
}

func TestAddressShort(t *testing.T) {
	addr := ZeroAddress
	short := addr.Short()
	if len(short) == 0 {
		t.Fatal("Short() returned empty string")
	}
}

func TestAddressJSONRoundTrip(t *testing.T) {
	a, err := GenerateKeypairSigner()
	if err != nil {
		t.Fatal(err)
	}
	addr := a.PublicKey()

	data, err := addr.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	var decoded Address
	if err := decoded.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if decoded != addr {
		t.Errorf("JSON round trip mismatch: %v != %v", decoded, addr)
	}
}
