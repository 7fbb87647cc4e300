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

// Package sig implements draft-cavage HTTP message signatures: creation
// and verification of the Signature header. The rsa-sha256 case, the one
// apcore's transport.go always configured (config.go's Algorithms field
// still defaults to "rsa-sha256,rsa-sha512"), is delegated to
// go-fed/httpsig's Signer/Verifier. The hs2019/Ed25519 case this copy of
// go-fed/httpsig predates builds and checks the signing string directly
// with crypto/ed25519.
package sig

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-fed/httpsig"
)

// Algorithm names carried in the Signature header's algorithm field.
const (
	AlgorithmRSASHA256 = "rsa-sha256"
	AlgorithmHS2019    = "hs2019" // used for Ed25519 signatures
)

const RequestTargetHeader = httpsig.RequestTarget

// Errors returned by Verify, named per spec §4.2.
var (
	ErrNoSignature      = errors.New("sig: no Signature header present")
	ErrMissingHeader    = errors.New("sig: a header listed in \"headers\" is missing from the request")
	ErrMalformedHeader  = errors.New("sig: Signature header is malformed")
	ErrUnknownAlgorithm = errors.New("sig: unknown signature algorithm")
	ErrKeyNotFound      = errors.New("sig: verification key not found")
	ErrInvalidDigest    = errors.New("sig: Digest header does not match body")
	ErrInvalidSignature = errors.New("sig: signature does not verify")
)

// SignRequest carries everything needed to compute a Signature header.
type SignRequest struct {
	KeyID  string
	Method string // will be lowercased
	Path   string // path + "?" + query, no scheme/host
	Host   string
	Date   time.Time
	Body   []byte // nil/empty for GET or bodyless requests: Digest is omitted
}

// HTTPDate formats t the way spec §6 requires: "Mon, 02 Jan 2006 15:04:05 GMT".
func HTTPDate(t time.Time) string {
	return t.UTC().Format("Mon, 02 Jan 2006 15:04:05") + " GMT"
}

// Digest computes the "SHA-256=<base64>" Digest header value for body.
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(sum[:])
}

// signingString builds the exact byte sequence to be signed: one header
// per line, "name: value", LF-separated, no trailing LF.
func signingString(headers []string, values map[string]string) string {
	lines := make([]string, len(headers))
	for i, h := range headers {
		lines[i] = h + ": " + values[h]
	}
	return strings.Join(lines, "\n")
}

// headersAndValues determines which headers participate in a signature for
// req and their signing-string values.
func headersAndValues(req SignRequest) ([]string, map[string]string) {
	method := strings.ToLower(req.Method)
	values := map[string]string{
		RequestTargetHeader: method + " " + req.Path,
		"host":              req.Host,
		"date":              HTTPDate(req.Date),
	}
	headers := []string{RequestTargetHeader, "host", "date"}
	if len(req.Body) > 0 && method != "get" {
		values["digest"] = Digest(req.Body)
		headers = append(headers, "digest")
	}
	return headers, values
}

// buildHTTPRequest assembles the *http.Request go-fed/httpsig needs to sign
// or verify against, carrying req's method/host/path/date/body.
func buildHTTPRequest(method, host, path string, date time.Time, body []byte) (*http.Request, error) {
	r, err := http.NewRequest(strings.ToUpper(method), "https://"+host+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("sig: build request: %w", err)
	}
	r.Host = host
	r.Header.Set("Date", HTTPDate(date))
	return r, nil
}

// Sign computes the Signature header value for req using priv, which must
// be *rsa.PrivateKey (algorithm "rsa-sha256") or ed25519.PrivateKey
// (algorithm "hs2019", raw-message Ed25519 signing).
func Sign(priv crypto.Signer, req SignRequest) (headerName, headerValue string, err error) {
	switch k := priv.(type) {
	case *rsa.PrivateKey:
		return signRSA(k, req)
	case ed25519.PrivateKey:
		return signEd25519(k, req)
	default:
		return "", "", fmt.Errorf("sig: unsupported private key type %T", priv)
	}
}

func signRSA(priv *rsa.PrivateKey, req SignRequest) (headerName, headerValue string, err error) {
	headers, _ := headersAndValues(req)
	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256}, httpsig.DigestSha256, headers, httpsig.Signature)
	if err != nil {
		return "", "", fmt.Errorf("sig: new signer: %w", err)
	}
	r, err := buildHTTPRequest(req.Method, req.Host, req.Path, req.Date, req.Body)
	if err != nil {
		return "", "", err
	}
	if err := signer.SignRequest(priv, req.KeyID, r, req.Body); err != nil {
		return "", "", fmt.Errorf("sig: sign request: %w", err)
	}
	return "Signature", r.Header.Get("Signature"), nil
}

func signEd25519(priv ed25519.PrivateKey, req SignRequest) (headerName, headerValue string, err error) {
	headers, values := headersAndValues(req)
	ss := signingString(headers, values)
	sigBytes := ed25519.Sign(priv, []byte(ss))
	sigB64 := base64.StdEncoding.EncodeToString(sigBytes)
	headerValue = fmt.Sprintf(
		`keyId="%s",algorithm="%s",headers="%s",signature="%s"`,
		req.KeyID, AlgorithmHS2019, strings.Join(headers, " "), sigB64)
	return "Signature", headerValue, nil
}

// ExtraHeaders returns the Host/Date/Digest header values a caller should
// set on the outgoing request alongside the Signature header, matching
// the values that were actually signed.
func ExtraHeaders(req SignRequest) map[string]string {
	h := map[string]string{
		"Host": req.Host,
		"Date": HTTPDate(req.Date),
	}
	if len(req.Body) > 0 && strings.ToLower(req.Method) != "get" {
		h["Digest"] = Digest(req.Body)
	}
	return h
}

// ParsedSignature is the decomposed content of a Signature header.
type ParsedSignature struct {
	KeyID     string
	Algorithm string
	Headers   []string
	Signature []byte
}

// ParseSignatureHeader parses a draft-cavage Signature header value into
// its component fields.
func ParseSignatureHeader(v string) (ParsedSignature, error) {
	if v == "" {
		return ParsedSignature{}, ErrNoSignature
	}
	fields := splitSignatureFields(v)
	out := ParsedSignature{}
	var sigB64 string
	for k, val := range fields {
		switch k {
		case "keyId":
			out.KeyID = val
		case "algorithm":
			out.Algorithm = val
		case "headers":
			out.Headers = strings.Fields(val)
		case "signature":
			sigB64 = val
		}
	}
	if out.KeyID == "" || sigB64 == "" {
		return ParsedSignature{}, ErrMalformedHeader
	}
	if len(out.Headers) == 0 {
		out.Headers = []string{"date"}
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return ParsedSignature{}, fmt.Errorf("%w: signature is not base64: %s", ErrMalformedHeader, err)
	}
	out.Signature = sig
	return out, nil
}

func splitSignatureFields(v string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			continue
		}
		key := part[:eq]
		val := strings.Trim(part[eq+1:], `"`)
		out[key] = val
	}
	return out
}

// VerifyRequest is the data a caller assembles from the incoming HTTP
// request to verify its Signature header.
type VerifyRequest struct {
	SignatureHeader string
	Method          string
	Path            string
	HeaderValue     func(lowerName string) (string, bool)
	Body            []byte
}

// KeyResolver looks up the verification key named by keyID, returning the
// key (either *rsa.PublicKey or ed25519.PublicKey).
type KeyResolver func(keyID string) (pub crypto.PublicKey, err error)

// Verify parses req's Signature header, checks the Digest against the
// body when Digest is listed, resolves the key via resolve, and verifies
// the signature: rsa-sha256 through go-fed/httpsig, hs2019/Ed25519 by
// rebuilding the signing string directly.
func Verify(req VerifyRequest, resolve KeyResolver) (keyID string, err error) {
	parsed, err := ParseSignatureHeader(req.SignatureHeader)
	if err != nil {
		return "", err
	}

	for _, h := range parsed.Headers {
		h = strings.ToLower(h)
		if h == RequestTargetHeader || h == "host" {
			continue
		}
		v, ok := req.HeaderValue(h)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrMissingHeader, h)
		}
		if h == "digest" {
			want := Digest(req.Body)
			if subtle.ConstantTimeCompare([]byte(v), []byte(want)) != 1 {
				return "", ErrInvalidDigest
			}
		}
	}

	pub, err := resolve(parsed.KeyID)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, err)
	}

	switch k := pub.(type) {
	case *rsa.PublicKey:
		if err := verifyRSA(k, req, parsed); err != nil {
			return "", err
		}
	case ed25519.PublicKey:
		if err := verifyEd25519(k, req, parsed); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("%w: resolved key is %T", ErrUnknownAlgorithm, pub)
	}
	return parsed.KeyID, nil
}

func verifyRSA(pub *rsa.PublicKey, req VerifyRequest, parsed ParsedSignature) error {
	r, err := http.NewRequest(strings.ToUpper(req.Method), "https://sig.invalid"+req.Path, bytes.NewReader(req.Body))
	if err != nil {
		return fmt.Errorf("sig: build request: %w", err)
	}
	r.Header.Set("Signature", req.SignatureHeader)
	for _, h := range parsed.Headers {
		lh := strings.ToLower(h)
		if lh == RequestTargetHeader {
			continue
		}
		v, ok := req.HeaderValue(lh)
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingHeader, lh)
		}
		if lh == "host" {
			r.Host = v
			continue
		}
		r.Header.Set(lh, v)
	}
	verifier, err := httpsig.NewVerifier(r)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedHeader, err)
	}
	if err := verifier.Verify(pub, httpsig.RSA_SHA256); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

func verifyEd25519(pub ed25519.PublicKey, req VerifyRequest, parsed ParsedSignature) error {
	values := make(map[string]string, len(parsed.Headers))
	for _, h := range parsed.Headers {
		h = strings.ToLower(h)
		if h == RequestTargetHeader {
			values[h] = strings.ToLower(req.Method) + " " + req.Path
			continue
		}
		v, _ := req.HeaderValue(h)
		values[h] = v
	}
	ss := signingString(normalizeHeaderOrder(parsed.Headers), values)
	if !ed25519.Verify(pub, []byte(ss), parsed.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// normalizeHeaderOrder lowercases header names while preserving the order
// they were listed in (the signing string must rebuild headers in exactly
// the listed order, not sorted order).
func normalizeHeaderOrder(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = strings.ToLower(h)
	}
	return out
}
