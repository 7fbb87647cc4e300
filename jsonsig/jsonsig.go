// apcore is a server framework for implementing an ActivityPub application.
// Copyright (C) 2019 Cory Slep
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package jsonsig implements JSON integrity proofs over activities: JCS
// canonicalization and both the legacy embedded "signature" block and the
// W3C Data-Integrity "proof" block, across the RSA, EdDSA, EIP-191 and
// blake2-Ed25519 (minisign) cryptosuites.
package jsonsig

import (
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
	"golang.org/x/crypto/blake2b"

	"github.com/relaysocial/apcore/urls"
)

// Well-known field names and constants of the proof formats.
const (
	ProofKey       = "proof"
	SignatureKey   = "signature"
	ProofPurpose   = "assertionMethod"
	dataIntegrity  = "DataIntegrityProof"
	legacyRsaType  = "MitraJcsRsaSignature2022"
	legacyEipType  = "JcsEip191Signature2022"
	legacyBlakeType = "MitraJcsSignature2022"
)

// Cryptosuite names carried in a Data-Integrity proof's "cryptosuite" field.
const (
	CryptosuiteJcsRsa    = "jcs-rsa-2022"
	CryptosuiteJcsEddsa  = "jcs-eddsa-2022"
	CryptosuiteEddsaJcs  = "eddsa-jcs-2022"
	CryptosuiteJcsEip191 = "jcs-eip191-2022"
)

// ProofType identifies which cryptosuite produced a proof, independent of
// whether it arrived as a legacy typed block or a Data-Integrity proof.
type ProofType int

const (
	UnknownProofType ProofType = iota
	JcsRsaSignature
	JcsEddsaSignature
	EddsaJcsSignature
	JcsEip191Signature
	JcsBlake2Ed25519Signature
)

func (p ProofType) String() string {
	switch p {
	case JcsRsaSignature:
		return "jcs-rsa-2022"
	case JcsEddsaSignature:
		return "jcs-eddsa-2022"
	case EddsaJcsSignature:
		return "eddsa-jcs-2022"
	case JcsEip191Signature:
		return "jcs-eip191-2022"
	case JcsBlake2Ed25519Signature:
		return "blake2-ed25519-minisign"
	default:
		return "unknown"
	}
}

var ErrUnsupportedProofType = errors.New("jsonsig: unsupported proof type")

func proofTypeFromCryptosuite(suite string) (ProofType, error) {
	switch suite {
	case CryptosuiteJcsRsa:
		return JcsRsaSignature, nil
	case CryptosuiteJcsEddsa:
		return JcsEddsaSignature, nil
	case CryptosuiteEddsaJcs:
		return EddsaJcsSignature, nil
	case CryptosuiteJcsEip191:
		return JcsEip191Signature, nil
	default:
		return UnknownProofType, fmt.Errorf("%w: cryptosuite %q", ErrUnsupportedProofType, suite)
	}
}

func proofTypeFromLegacyType(t string) (ProofType, error) {
	switch t {
	case legacyRsaType:
		return JcsRsaSignature, nil
	case legacyEipType:
		return JcsEip191Signature, nil
	case legacyBlakeType:
		return JcsBlake2Ed25519Signature, nil
	default:
		return UnknownProofType, fmt.Errorf("%w: legacy type %q", ErrUnsupportedProofType, t)
	}
}

// Canonicalize renders doc (already marshaled to JSON) in JCS (RFC 8785) form.
func Canonicalize(doc []byte) ([]byte, error) {
	out, err := jcs.Transform(doc)
	if err != nil {
		return nil, fmt.Errorf("jsonsig: canonicalize: %w", err)
	}
	return out, nil
}

// CanonicalizeValue marshals v to JSON and canonicalizes the result.
func CanonicalizeValue(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jsonsig: marshal: %w", err)
	}
	return Canonicalize(b)
}

// ProofConfig is the portion of a Data-Integrity (or legacy) proof that
// participates in the signing input, excluding the signature value itself.
type ProofConfig struct {
	Type                string `json:"type"`
	Cryptosuite         string `json:"cryptosuite,omitempty"`
	VerificationMethod  string `json:"verificationMethod"`
	ProofPurpose        string `json:"proofPurpose"`
	Created             string `json:"created,omitempty"`
}

// integrityProof is the full "proof" block: config fields plus proofValue.
type integrityProof struct {
	ProofConfig
	ProofValue string `json:"proofValue"`
}

// legacySignature is the full legacy "signature" block: LD-Signatures
// shaped, creator/signatureValue instead of verificationMethod/proofValue.
type legacySignature struct {
	Type           string `json:"type"`
	Creator        string `json:"creator"`
	Created        string `json:"created,omitempty"`
	SignatureValue string `json:"signatureValue"`
}

// Signer identifies who produced a proof: either an ordinary actor key URL
// (the legacy convention) or a portable DID (the Data-Integrity convention
// used alongside FEP-ef61 identities).
type Signer struct {
	KeyID string // set when the proof names an HTTP(S) key URL
	Did   urls.Did
	IsDid bool
}

// Signature is a verified or to-be-verified JSON signature, decomposed into
// the pieces each cryptosuite's Sign/Verify needs.
type Signature struct {
	ProofType      ProofType
	Signer         Signer
	CanonicalObject []byte // JCS(object without proof/signature)
	CanonicalConfig []byte // JCS(proof config without proofValue); empty for RSA proofs and legacy signature blocks
	SignatureBytes  []byte
}

var (
	ErrNoProof           = errors.New("jsonsig: object carries no proof or signature block")
	ErrInvalidProof      = errors.New("jsonsig: proof block is malformed")
	ErrInvalidPurpose    = errors.New("jsonsig: proof purpose is not assertionMethod")
	ErrInvalidSigner     = errors.New("jsonsig: verification method is neither a DID nor a URL")
	ErrInvalidSignature  = errors.New("jsonsig: signature does not verify")
)

// Extract removes the proof ("proof") or legacy signature ("signature")
// block from object and decomposes it into a Signature ready for
// verification. object is not mutated.
func Extract(object map[string]interface{}) (Signature, error) {
	cp := make(map[string]interface{}, len(object))
	for k, v := range object {
		cp[k] = v
	}
	if raw, ok := cp[ProofKey]; ok {
		delete(cp, ProofKey)
		return extractDataIntegrity(cp, raw)
	}
	if raw, ok := cp[SignatureKey]; ok {
		delete(cp, SignatureKey)
		return extractLegacy(cp, raw)
	}
	return Signature{}, ErrNoProof
}

func extractDataIntegrity(objectWithoutProof map[string]interface{}, raw interface{}) (Signature, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %s", ErrInvalidProof, err)
	}
	var p integrityProof
	if err := json.Unmarshal(b, &p); err != nil {
		return Signature{}, fmt.Errorf("%w: %s", ErrInvalidProof, err)
	}
	if p.ProofPurpose != ProofPurpose {
		return Signature{}, ErrInvalidPurpose
	}
	var pt ProofType
	if p.Type == dataIntegrity {
		if p.Cryptosuite == "" {
			return Signature{}, fmt.Errorf("%w: cryptosuite missing", ErrInvalidProof)
		}
		pt, err = proofTypeFromCryptosuite(p.Cryptosuite)
	} else {
		pt, err = proofTypeFromLegacyType(p.Type)
	}
	if err != nil {
		return Signature{}, err
	}

	signer, err := resolveSigner(p.VerificationMethod)
	if err != nil {
		return Signature{}, err
	}

	sigBytes, err := decodeMultibaseBase58btc(p.ProofValue)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %s", ErrInvalidProof, err)
	}

	canonObj, err := CanonicalizeValue(objectWithoutProof)
	if err != nil {
		return Signature{}, err
	}
	var canonConfig []byte
	if pt != JcsRsaSignature {
		canonConfig, err = CanonicalizeValue(p.ProofConfig)
		if err != nil {
			return Signature{}, err
		}
	}
	return Signature{
		ProofType:       pt,
		Signer:          signer,
		CanonicalObject: canonObj,
		CanonicalConfig: canonConfig,
		SignatureBytes:  sigBytes,
	}, nil
}

func extractLegacy(objectWithoutSignature map[string]interface{}, raw interface{}) (Signature, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %s", ErrInvalidProof, err)
	}
	var s legacySignature
	if err := json.Unmarshal(b, &s); err != nil {
		return Signature{}, fmt.Errorf("%w: %s", ErrInvalidProof, err)
	}
	pt, err := proofTypeFromLegacyType(s.Type)
	if err != nil {
		return Signature{}, err
	}
	signer, err := resolveSigner(s.Creator)
	if err != nil {
		return Signature{}, err
	}
	sigBytes, err := decodeMultibaseBase58btc(s.SignatureValue)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %s", ErrInvalidProof, err)
	}
	canonObj, err := CanonicalizeValue(objectWithoutSignature)
	if err != nil {
		return Signature{}, err
	}
	return Signature{
		ProofType:       pt,
		Signer:          signer,
		CanonicalObject: canonObj,
		SignatureBytes:  sigBytes,
	}, nil
}

func resolveSigner(verificationMethod string) (Signer, error) {
	if did, err := urls.ParseDid(verificationMethod); err == nil {
		return Signer{Did: did, IsDid: true}, nil
	}
	if _, err := urls.ParseHttpURL(verificationMethod); err == nil {
		return Signer{KeyID: verificationMethod}, nil
	}
	return Signer{}, ErrInvalidSigner
}

// VerifyRSA verifies a jcs-rsa-2022 (or legacy MitraJcsRsaSignature2022)
// proof: the signing input is the canonical object directly, RSA-SHA256
// PKCS#1 v1.5.
func VerifyRSA(pub *rsa.PublicKey, sig Signature) error {
	digest := sha256.Sum256(sig.CanonicalObject)
	if err := rsaVerify(pub, digest[:], sig.SignatureBytes); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyEdDSA verifies a jcs-eddsa-2022/eddsa-jcs-2022 Data-Integrity proof:
// the signing input is SHA-256(canonical config) || SHA-256(canonical
// object), concatenated and Ed25519-verified directly (no further hash).
func VerifyEdDSA(pub ed25519.PublicKey, sig Signature) error {
	objectHash := sha256.Sum256(sig.CanonicalObject)
	configHash := sha256.Sum256(sig.CanonicalConfig)
	signed := append(append([]byte{}, configHash[:]...), objectHash[:]...)
	if !ed25519.Verify(pub, signed, sig.SignatureBytes) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyBlake2Ed25519 verifies a legacy minisign-style proof: the signing
// input is blake2b-512(canonical object || "\n"), Ed25519-verified against
// the prehash directly.
func VerifyBlake2Ed25519(pub ed25519.PublicKey, sig Signature) error {
	if len(sig.SignatureBytes) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}
	h := blake2b.Sum512(append(append([]byte{}, sig.CanonicalObject...), '\n'))
	if !ed25519.Verify(pub, h[:], sig.SignatureBytes) {
		return ErrInvalidSignature
	}
	return nil
}

// SignRSA produces a Data-Integrity "proof" block for object using the
// jcs-rsa-2022 cryptosuite, returning a new map with "proof" set. object
// must not already carry a proof.
func SignRSA(priv *rsa.PrivateKey, verificationMethod string, object map[string]interface{}, created time.Time) (map[string]interface{}, error) {
	cfg := ProofConfig{
		Type:               dataIntegrity,
		Cryptosuite:        CryptosuiteJcsRsa,
		VerificationMethod: verificationMethod,
		ProofPurpose:       ProofPurpose,
		Created:            created.UTC().Format(time.RFC3339),
	}
	canonObj, err := CanonicalizeValue(object)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(canonObj)
	sigBytes, err := rsaSign(priv, digest[:])
	if err != nil {
		return nil, err
	}
	return withProof(object, cfg, sigBytes)
}

// SignEdDSA produces a Data-Integrity "proof" block for object using the
// jcs-eddsa-2022 cryptosuite (or eddsa-jcs-2022, when alias is true).
func SignEdDSA(priv ed25519.PrivateKey, verificationMethod string, object map[string]interface{}, created time.Time, alias bool) (map[string]interface{}, error) {
	suite := CryptosuiteJcsEddsa
	if alias {
		suite = CryptosuiteEddsaJcs
	}
	cfg := ProofConfig{
		Type:               dataIntegrity,
		Cryptosuite:        suite,
		VerificationMethod: verificationMethod,
		ProofPurpose:       ProofPurpose,
		Created:            created.UTC().Format(time.RFC3339),
	}
	canonObj, err := CanonicalizeValue(object)
	if err != nil {
		return nil, err
	}
	canonConfig, err := CanonicalizeValue(cfg)
	if err != nil {
		return nil, err
	}
	objectHash := sha256.Sum256(canonObj)
	configHash := sha256.Sum256(canonConfig)
	signed := append(append([]byte{}, configHash[:]...), objectHash[:]...)
	sigBytes := ed25519.Sign(priv, signed)
	return withProof(object, cfg, sigBytes)
}

func withProof(object map[string]interface{}, cfg ProofConfig, sigBytes []byte) (map[string]interface{}, error) {
	proofValue, err := encodeMultibaseBase58btc(sigBytes)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(object)+1)
	for k, v := range object {
		out[k] = v
	}
	out[ProofKey] = integrityProof{ProofConfig: cfg, ProofValue: proofValue}
	return out, nil
}
