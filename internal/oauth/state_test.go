package oauth

import "testing"

func TestStateRoundTrip(t *testing.T) {
	codec, err := NewStateCodec("state-secret")
	if err != nil {
		t.Fatal(err)
	}

	encoded, err := codec.Encode(State{Provider: ProviderGoogle, RedirectTo: "/dashboard"})
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := codec.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Provider != ProviderGoogle || decoded.RedirectTo != "/dashboard" {
		t.Fatalf("state mismatch: %+v", decoded)
	}
}

func TestStateRejectsTampering(t *testing.T) {
	codec, err := NewStateCodec("state-secret")
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := codec.Encode(State{Provider: ProviderGitHub})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := codec.Decode("x" + encoded); err == nil {
		t.Fatal("expected error for tampered payload")
	}
	if _, err := codec.Decode("no-signature"); err == nil {
		t.Fatal("expected error for missing signature")
	}

	other, err := NewStateCodec("different-secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Decode(encoded); err == nil {
		t.Fatal("expected error for wrong key")
	}
}

func TestNewStateCodecRequiresSecret(t *testing.T) {
	if _, err := NewStateCodec(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
