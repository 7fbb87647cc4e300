package jsonsig

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"
)

func TestCanonicalizeKeyOrder(t *testing.T) {
	claim := map[string]interface{}{
		"type":       "VerifiableIdentityStatement",
		"subject":    "did:key:z6MkvUie7gDQugJmyDQQPhMCCBfKJo7aGvzQYF2BqvFvdwx6",
		"alsoKnownAs": "https://server.example/users/test",
	}
	got, err := CanonicalizeValue(claim)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"alsoKnownAs":"https://server.example/users/test","subject":"did:key:z6MkvUie7gDQugJmyDQQPhMCCBfKJo7aGvzQYF2BqvFvdwx6","type":"VerifiableIdentityStatement"}`
	if string(got) != want {
		t.Fatalf("canonical form mismatch:\n got: %s\nwant: %s", got, want)
	}
}

func testObject() map[string]interface{} {
	return map[string]interface{}{
		"type":   "Create",
		"actor":  "https://example.org/users/test",
		"id":     "https://example.org/objects/1",
		"to":     []string{"https://example.org/users/yyy", "https://example.org/users/xxx"},
		"object": map[string]interface{}{"type": "Note", "content": "test"},
	}
}

func TestRSASignVerifyRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatal(err)
	}
	keyID := "https://example.org/users/test#main-key"
	signed, err := SignRSA(priv, keyID, testObject(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	sig, err := Extract(signed)
	if err != nil {
		t.Fatal(err)
	}
	if sig.ProofType != JcsRsaSignature {
		t.Fatalf("proof type: got %v want JcsRsaSignature", sig.ProofType)
	}
	if sig.Signer.IsDid || sig.Signer.KeyID != keyID {
		t.Fatalf("signer: got %+v", sig.Signer)
	}
	if err := VerifyRSA(&priv.PublicKey, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestEdDSASignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	keyID := "https://example.org/users/test#main-key"
	signed, err := SignEdDSA(priv, keyID, testObject(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), false)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := Extract(signed)
	if err != nil {
		t.Fatal(err)
	}
	if sig.ProofType != JcsEddsaSignature {
		t.Fatalf("proof type: got %v want JcsEddsaSignature", sig.ProofType)
	}
	if err := VerifyEdDSA(pub, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestEdDSAAliasCryptosuite(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signed, err := SignEdDSA(priv, "https://example.org/users/test#main-key", testObject(), time.Now(), true)
	if err != nil {
		t.Fatal(err)
	}
	proof, _ := signed[ProofKey].(integrityProof)
	if proof.Cryptosuite != CryptosuiteEddsaJcs {
		t.Fatalf("cryptosuite: got %s want %s", proof.Cryptosuite, CryptosuiteEddsaJcs)
	}
	sig, err := Extract(signed)
	if err != nil {
		t.Fatal(err)
	}
	if sig.ProofType != EddsaJcsSignature {
		t.Fatalf("proof type: got %v want EddsaJcsSignature", sig.ProofType)
	}
}

func TestLegacyEip191ProofShape(t *testing.T) {
	raw := []byte(`{
		"type": "Test",
		"id": "https://example.org/objects/1",
		"proof": {
			"type": "JcsEip191Signature2022",
			"proofPurpose": "assertionMethod",
			"verificationMethod": "did:pkh:eip155:1:0xb9c5714089478a327f09197987f16f9e5d936e8a",
			"created": "2020-11-05T19:23:24Z",
			"proofValue": "zE5J"
		}
	}`)
	var object map[string]interface{}
	if err := json.Unmarshal(raw, &object); err != nil {
		t.Fatal(err)
	}
	sig, err := Extract(object)
	if err != nil {
		t.Fatal(err)
	}
	if sig.ProofType != JcsEip191Signature {
		t.Fatalf("proof type: got %v want JcsEip191Signature", sig.ProofType)
	}
	if !sig.Signer.IsDid || sig.Signer.Did.String() != "did:pkh:eip155:1:0xb9c5714089478a327f09197987f16f9e5d936e8a" {
		t.Fatalf("signer: got %+v", sig.Signer)
	}
	if hex.EncodeToString(sig.SignatureBytes) != "abcd" {
		t.Fatalf("signature bytes: got %x want abcd", sig.SignatureBytes)
	}
}

func TestInvalidProofPurposeRejected(t *testing.T) {
	object := map[string]interface{}{
		"type": "Test",
		"proof": map[string]interface{}{
			"type":                "DataIntegrityProof",
			"cryptosuite":         CryptosuiteJcsEddsa,
			"proofPurpose":        "capabilityInvocation",
			"verificationMethod":  "https://example.org/users/test#main-key",
			"proofValue":          "z1111",
		},
	}
	if _, err := Extract(object); err != ErrInvalidPurpose {
		t.Fatalf("expected ErrInvalidPurpose, got %v", err)
	}
}

func TestNoProofOrSignatureBlock(t *testing.T) {
	if _, err := Extract(map[string]interface{}{"type": "Test"}); err != ErrNoProof {
		t.Fatalf("expected ErrNoProof, got %v", err)
	}
}
