package jsonsig

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/relaysocial/apcore/urls"
)

func TestVerifyEIP191RoundTrip(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	addr := ethereumAddress(priv.PubKey())

	canonObj, err := CanonicalizeValue(testObject())
	if err != nil {
		t.Fatal(err)
	}
	hash := eip191Hash(canonObj)
	compact := ecdsa.SignCompact(priv, hash[:], false)

	// Decred's compact format is [27+recovery(+4 if compressed)] || r || s;
	// Ethereum's is r || s || v. Re-slice into the wire order VerifyEIP191
	// expects.
	ethSig := make([]byte, 65)
	copy(ethSig[0:32], compact[1:33])
	copy(ethSig[32:64], compact[33:65])
	ethSig[64] = compact[0] - 27

	signer := urls.Did{Kind: urls.DidPkh, Chain: "eip155:1", Address: string(addr)}
	sig := Signature{ProofType: JcsEip191Signature, CanonicalObject: canonObj, SignatureBytes: ethSig}

	if err := VerifyEIP191(signer, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyEIP191RejectsWrongAddress(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	canonObj, err := CanonicalizeValue(testObject())
	if err != nil {
		t.Fatal(err)
	}
	hash := eip191Hash(canonObj)
	compact := ecdsa.SignCompact(priv, hash[:], false)
	ethSig := make([]byte, 65)
	copy(ethSig[0:32], compact[1:33])
	copy(ethSig[32:64], compact[33:65])
	ethSig[64] = compact[0] - 27

	signer := urls.Did{Kind: urls.DidPkh, Chain: "eip155:1", Address: "0x0000000000000000000000000000000000dead"}
	sig := Signature{ProofType: JcsEip191Signature, CanonicalObject: canonObj, SignatureBytes: ethSig}

	if err := VerifyEIP191(signer, sig); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyEIP191RejectsNonPkhSigner(t *testing.T) {
	sig := Signature{ProofType: JcsEip191Signature, SignatureBytes: make([]byte, 65)}
	signer := urls.Did{Kind: urls.DidKey, Key: "z6Mk..."}
	if err := VerifyEIP191(signer, sig); err == nil {
		t.Fatal("expected an error for a non-did:pkh signer")
	}
}
