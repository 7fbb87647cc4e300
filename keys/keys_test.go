package keys

import "testing"

func TestEd25519MultikeyRoundTrip(t *testing.T) {
	pub, _, err := NewEd25519Key()
	if err != nil {
		t.Fatal(err)
	}
	enc, err := EncodeMultikeyEd25519Public(pub)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := DecodeMultikeyEd25519Public(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Equal(pub) {
		t.Fatalf("round trip mismatch")
	}
}

func TestDidKeyRoundTrip(t *testing.T) {
	pub, _, err := NewEd25519Key()
	if err != nil {
		t.Fatal(err)
	}
	did, err := DidKeyFromEd25519(pub)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Ed25519PublicFromDid(did)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(pub) {
		t.Fatal("did:key round trip mismatch")
	}
}

func TestRSAPEMRoundTrip(t *testing.T) {
	k, err := NewRSAPrivateKey(1024)
	if err != nil {
		t.Fatal(err)
	}
	s, err := MarshalRSAPrivateKeyPEM(k)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := ParseRSAPrivateKeyPEM(s)
	if err != nil {
		t.Fatal(err)
	}
	if k2.N.Cmp(k.N) != 0 {
		t.Fatal("modulus mismatch after round trip")
	}
}

func TestNewRSAPrivateKeyRejectsSmall(t *testing.T) {
	if _, err := NewRSAPrivateKey(512); err == nil {
		t.Fatal("expected error for small RSA key")
	}
}
