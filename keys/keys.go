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

// Package keys handles the two key families this core speaks: RSA
// (PKCS#1 v1.5, SHA-256), used for HTTP signatures and the legacy JSON
// cryptosuites, and Ed25519, used for did:key identities, Data-Integrity
// proofs, and Multikey (FEP-521a) representation.
package keys

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/multiformats/go-multibase"
	"github.com/relaysocial/apcore/urls"
)

const minRSAKeySize = 1024

// KeyType identifies which algorithm a stored key uses.
type KeyType int

const (
	RsaPkcs1 KeyType = iota
	Ed25519Key
)

func (k KeyType) String() string {
	if k == Ed25519Key {
		return "Ed25519"
	}
	return "RsaSignature2017"
}

// NewRSAPrivateKey generates an RSA private key of at least 1024 bits.
func NewRSAPrivateKey(bits int) (*rsa.PrivateKey, error) {
	if bits < minRSAKeySize {
		return nil, fmt.Errorf("keys: rsa key size below %d is forbidden: %d", minRSAKeySize, bits)
	}
	return rsa.GenerateKey(rand.Reader, bits)
}

// NewEd25519Key generates a fresh Ed25519 keypair.
func NewEd25519Key() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// MarshalPublicKeyPEM renders a public key (RSA or Ed25519) as a PEM
// "PUBLIC KEY" block, the legacy publicKeyPem representation.
func MarshalPublicKeyPEM(p crypto.PublicKey) (string, error) {
	pkix, err := x509.MarshalPKIXPublicKey(p)
	if err != nil {
		return "", err
	}
	pb := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pkix})
	return string(pb), nil
}

// ParsePublicKeyPEM parses the legacy publicKeyPem representation.
func ParsePublicKeyPEM(s string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, fmt.Errorf("keys: not PEM encoded")
	}
	return x509.ParsePKIXPublicKey(block.Bytes)
}

// MarshalRSAPrivateKeyPEM renders an RSA private key as PKCS#8 PEM.
func MarshalRSAPrivateKeyPEM(k *rsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// MarshalEd25519PrivateKeyPEM renders an Ed25519 private key as PKCS#8 PEM.
func MarshalEd25519PrivateKeyPEM(k ed25519.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// ParseRSAPrivateKeyPEM parses a PKCS#8 or PKCS#1 PEM-encoded RSA private
// key.
func ParseRSAPrivateKeyPEM(s string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, fmt.Errorf("keys: not PEM encoded")
	}
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rk, ok := k.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("keys: PEM block is not an RSA private key")
	}
	return rk, nil
}

// Multikey (FEP-521a) multicodec prefixes.
const (
	multicodecEd25519Pub = 0xed
	multicodecEd25519Pri = 0x1300
)

// EncodeMultikeyEd25519Public renders an Ed25519 public key as a multibase
// (base58btc, 'z' prefix) Multikey string, e.g. "z6Mkf...".
func EncodeMultikeyEd25519Public(pub ed25519.PublicKey) (string, error) {
	prefixed := append(varintEncode(multicodecEd25519Pub), []byte(pub)...)
	return multibase.Encode(multibase.Base58BTC, prefixed)
}

// DecodeMultikeyEd25519Public parses a multibase Multikey string into an
// Ed25519 public key, validating the multicodec prefix.
func DecodeMultikeyEd25519Public(s string) (ed25519.PublicKey, error) {
	_, data, err := multibase.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("keys: multibase decode: %w", err)
	}
	code, n := varintDecode(data)
	if code != multicodecEd25519Pub {
		return nil, fmt.Errorf("keys: unexpected multicodec 0x%x, want ed25519-pub", code)
	}
	pub := data[n:]
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("keys: bad ed25519 public key length %d", len(pub))
	}
	return ed25519.PublicKey(pub), nil
}

// varintEncode writes an unsigned LEB128 varint, as used by multicodec
// prefixes.
func varintEncode(v uint64) []byte {
	var b []byte
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}

func varintDecode(b []byte) (uint64, int) {
	var v uint64
	var shift uint
	for i, c := range b {
		v |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
	}
	return v, len(b)
}

// DidKeyFromEd25519 derives the did:key identifier for an Ed25519 public
// key, per FEP-ef61's use of did:key as the actor's portable authority.
func DidKeyFromEd25519(pub ed25519.PublicKey) (urls.Did, error) {
	m, err := EncodeMultikeyEd25519Public(pub)
	if err != nil {
		return urls.Did{}, err
	}
	return urls.Did{Kind: urls.DidKey, Key: m}, nil
}

// Ed25519PublicFromDid resolves a did:key identifier back to its Ed25519
// public key.
func Ed25519PublicFromDid(d urls.Did) (ed25519.PublicKey, error) {
	if d.Kind != urls.DidKey {
		return nil, fmt.Errorf("keys: not a did:key: %s", d.String())
	}
	return DecodeMultikeyEd25519Public(d.Key)
}
