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

package jsonsig

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"

	"github.com/relaysocial/apcore/urls"
)

const eip191SignaturePrefix = "\x19Ethereum Signed Message:\n"

// VerifyEIP191 verifies a jcs-eip191-2022 (or legacy JcsEip191Signature2022)
// proof. Unlike the other cryptosuites there is no externally-resolved
// public key to check against: the 65-byte r||s||v signature recovers its
// own secp256k1 public key, which is hashed down to an Ethereum address and
// compared directly against the did:pkh signer's claimed address. A
// did:pkh:eip155:... signer is therefore self-certifying, the same way an
// HTTP signature's keyId is certified by fetching the actor that owns it.
func VerifyEIP191(signer urls.Did, sig Signature) error {
	if signer.Kind != urls.DidPkh || !strings.HasPrefix(signer.Chain, "eip155:") {
		return fmt.Errorf("jsonsig: eip191 verification requires a did:pkh:eip155 signer, got %s", signer.String())
	}
	if len(sig.SignatureBytes) != 65 {
		return ErrInvalidSignature
	}
	r := sig.SignatureBytes[0:32]
	s := sig.SignatureBytes[32:64]
	v := sig.SignatureBytes[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return ErrInvalidSignature
	}

	compact := make([]byte, 65)
	compact[0] = 27 + v
	copy(compact[1:33], r)
	copy(compact[33:65], s)

	hash := eip191Hash(sig.CanonicalObject)
	pub, _, err := ecdsa.RecoverCompact(compact, hash[:])
	if err != nil {
		return ErrInvalidSignature
	}
	if !ethereumAddress(pub).Equal(signer.Address) {
		return ErrInvalidSignature
	}
	return nil
}

// eip191Hash renders the EIP-191 "personal_sign" digest: keccak256 of the
// fixed prefix, the message's decimal byte length, and the message itself.
func eip191Hash(message []byte) [32]byte {
	prefixed := append([]byte(fmt.Sprintf("%s%d", eip191SignaturePrefix, len(message))), message...)
	var out [32]byte
	h := sha3.NewLegacyKeccak256()
	h.Write(prefixed)
	h.Sum(out[:0])
	return out
}

// addr is a lowercase-hex "0x..." Ethereum address with a case-insensitive
// Equal, since EIP-55 checksum casing is a display convention, not part of
// the address's identity.
type addr string

func (a addr) Equal(s string) bool {
	return strings.EqualFold(string(a), s)
}

func ethereumAddress(pub *secp256k1.PublicKey) addr {
	uncompressed := pub.SerializeUncompressed() // 0x04 || X(32) || Y(32)
	h := sha3.NewLegacyKeccak256()
	h.Write(uncompressed[1:])
	digest := h.Sum(nil)
	return addr("0x" + hex.EncodeToString(digest[len(digest)-20:]))
}
