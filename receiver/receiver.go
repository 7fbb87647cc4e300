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

// Package receiver implements the ingress pipeline: an inbox POST is
// authenticated, filtered, and turned into an IncomingActivity queue
// job, or dropped, without ever running handler logic inline.
package receiver

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/relaysocial/apcore/filter"
	"github.com/relaysocial/apcore/jsonsig"
	"github.com/relaysocial/apcore/sig"
	"github.com/relaysocial/apcore/urls"
)

// Request carries everything receiver.Receive needs from the raw HTTP
// request: method/path for the signing string, a header lookup, and
// the raw body (for the Digest check).
type Request struct {
	Method          string
	Path            string
	HeaderValue     func(lowerName string) (string, bool)
	SignatureHeader string
	Body            []byte
}

// Dependencies are the collaborators Receive needs; callers wire these
// to the actual filter/key-store/queue instances.
type Dependencies struct {
	Filter *filter.Filter
	// ResolveHTTPSignerKey resolves an HTTP Signature keyId to a public key.
	ResolveHTTPSignerKey sig.KeyResolver
	// ResolveJSONSignerKey resolves a jsonsig.Signer (a did or an http
	// verificationMethod URL) to a public key.
	ResolveJSONSignerKey func(jsonsig.Signer) (crypto.PublicKey, error)
	// IsLocalOrigin reports whether u belongs to this instance.
	IsLocalOrigin func(u urls.Url) bool
	// Enqueue persists an IncomingActivity job, returning its id.
	Enqueue func(IncomingJob) (jobID string, err error)
}

// IncomingJob is the payload enqueued for the IncomingActivity queue.
type IncomingJob struct {
	Activity        map[string]interface{}
	Recipient       string
	Signer          string
	IsAuthenticated bool
}

// Kind distinguishes the two non-error outcomes of Receive; a returned
// error is the third.
type Kind int

const (
	// Enqueued: the activity was accepted and handed to the queue.
	Enqueued Kind = iota
	// Dropped: the activity was silently discarded (filter block, or a
	// self-delete whose signature could not be verified); the caller
	// still answers 202, since the wire contract promises no
	// information leak about why a given activity was ignored.
	Dropped
)

// Outcome is Receive's result: JobID is set only when Kind == Enqueued.
type Outcome struct {
	Kind       Kind
	JobID      string
	DropReason string
}

var (
	ErrMissingFields   = errors.New("receiver: activity is missing id, type, or actor")
	ErrLocalOrigin     = errors.New("receiver: activity id or actor claims local origin")
	ErrNoSignature     = errors.New("receiver: no HTTP signature and activity is not a tolerated self-delete")
	ErrInvalidSignature = errors.New("receiver: HTTP signature did not verify")
	ErrInvalidProof    = errors.New("receiver: JSON integrity proof did not verify")
)

// Receive runs the 8-step ingress pipeline of spec §4.4 against one
// already-JSON-decoded activity body.
func Receive(req Request, body map[string]interface{}, recipientID string, deps Dependencies) (Outcome, error) {
	// Step 1: extract id/type/actor, reject missing ones.
	id, _ := body["id"].(string)
	typ, _ := body["type"].(string)
	actor, ok := extractActor(body)
	if id == "" || typ == "" || !ok || actor == "" {
		return Outcome{}, ErrMissingFields
	}

	// Step 2: filter by actor hostname, drop silently when blocked.
	actorHost, err := hostOf(actor)
	if err != nil {
		return Outcome{}, fmt.Errorf("receiver: %w", err)
	}
	if deps.Filter != nil && deps.Filter.Blocked(actorHost, filter.RejectIncoming) {
		return Outcome{Kind: Dropped, DropReason: "actor host blocked"}, nil
	}

	// Step 3: canonicalize id and actor, reject local-origin impersonation.
	canonID, err := urls.CanonicalizeID(id)
	if err != nil {
		return Outcome{}, fmt.Errorf("receiver: canonicalizing id: %w", err)
	}
	canonActor, err := urls.CanonicalizeID(actor)
	if err != nil {
		return Outcome{}, fmt.Errorf("receiver: canonicalizing actor: %w", err)
	}
	if deps.IsLocalOrigin != nil && (deps.IsLocalOrigin(canonID.Url) || deps.IsLocalOrigin(canonActor.Url)) {
		return Outcome{}, ErrLocalOrigin
	}

	isSelfDelete := typ == "Delete" && isSelfDeleteActivity(body, actor)

	// Step 4: verify HTTP signature, tolerating its absence only for a
	// self-delete.
	var signerKeyID string
	if req.SignatureHeader != "" {
		signerKeyID, err = sig.Verify(sig.VerifyRequest{
			SignatureHeader: req.SignatureHeader,
			Method:          req.Method,
			Path:            req.Path,
			HeaderValue:     req.HeaderValue,
			Body:            req.Body,
		}, deps.ResolveHTTPSignerKey)
		if err != nil {
			if isSelfDelete {
				return Outcome{Kind: Dropped, DropReason: "self-delete with invalid signature"}, nil
			}
			return Outcome{}, fmt.Errorf("%w: %s", ErrInvalidSignature, err)
		}
	} else if isSelfDelete {
		return Outcome{Kind: Dropped, DropReason: "self-delete without signature"}, nil
	} else {
		return Outcome{}, ErrNoSignature
	}

	finalSigner := signerKeyID

	// Step 5: if the body carries an integrity proof, verify it; its
	// signer supersedes the HTTP signer on success.
	if sgn, err := jsonsig.Extract(body); err == nil {
		if sgn.ProofType == jsonsig.JcsEip191Signature {
			// A did:pkh:eip155 signer has no key to resolve: the
			// signature recovers its own address, checked directly
			// against the claimed signer.
			if err := jsonsig.VerifyEIP191(sgn.Signer.Did, sgn); err != nil {
				return Outcome{}, fmt.Errorf("%w: %s", ErrInvalidProof, err)
			}
		} else {
			if deps.ResolveJSONSignerKey == nil {
				return Outcome{}, fmt.Errorf("%w: no JSON signer key resolver configured", ErrInvalidProof)
			}
			pub, err := deps.ResolveJSONSignerKey(sgn.Signer)
			if err != nil {
				return Outcome{}, fmt.Errorf("%w: resolving signer key: %s", ErrInvalidProof, err)
			}
			if err := verifyJSONSignature(pub, sgn); err != nil {
				return Outcome{}, fmt.Errorf("%w: %s", ErrInvalidProof, err)
			}
		}
		finalSigner = sgn.Signer.KeyID
		if finalSigner == "" {
			finalSigner = sgn.Signer.Did.String()
		}
	} else if err != jsonsig.ErrNoProof {
		return Outcome{}, fmt.Errorf("%w: %s", ErrInvalidProof, err)
	}

	// Step 6: re-check the filter against the final signer's hostname.
	signerHost, err := hostOf(finalSigner)
	if err == nil && deps.Filter != nil && deps.Filter.Blocked(signerHost, filter.RejectIncoming) {
		return Outcome{Kind: Dropped, DropReason: "signer host blocked"}, nil
	}

	// Step 7: decide is_authenticated. The signer is identified by a key
	// id (actor id plus a "#fragment"), so the actor it speaks for is the
	// id with any fragment stripped.
	canonSigner, err := urls.CanonicalizeID(stripFragment(finalSigner))
	isAuthenticated := err == nil && canonSigner.String() == canonActor.String()

	// Step 8: enqueue.
	job := IncomingJob{
		Activity:        body,
		Recipient:       recipientID,
		Signer:          finalSigner,
		IsAuthenticated: isAuthenticated,
	}
	jobID, err := deps.Enqueue(job)
	if err != nil {
		return Outcome{}, fmt.Errorf("receiver: enqueue: %w", err)
	}
	return Outcome{Kind: Enqueued, JobID: jobID}, nil
}

func extractActor(body map[string]interface{}) (string, bool) {
	switch v := body["actor"].(type) {
	case string:
		return v, v != ""
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok {
			return id, id != ""
		}
	}
	return "", false
}

func isSelfDeleteActivity(body map[string]interface{}, actor string) bool {
	switch obj := body["object"].(type) {
	case string:
		return obj == actor
	case map[string]interface{}:
		id, _ := obj["id"].(string)
		return id == actor
	}
	return false
}

func hostOf(idOrKeyID string) (string, error) {
	c, err := urls.CanonicalizeID(stripFragment(idOrKeyID))
	if err != nil {
		return "", err
	}
	if c.Url.Kind == urls.HTTP {
		return c.Url.Http.Host, nil
	}
	return c.Url.Ap.Authority.String(), nil
}

func stripFragment(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '#' {
			return s[:i]
		}
	}
	return s
}

func verifyJSONSignature(pub crypto.PublicKey, sgn jsonsig.Signature) error {
	switch sgn.ProofType {
	case jsonsig.JcsRsaSignature:
		rpub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("jsonsig: expected an RSA key for %s, got %T", sgn.ProofType, pub)
		}
		return jsonsig.VerifyRSA(rpub, sgn)
	case jsonsig.JcsEddsaSignature, jsonsig.EddsaJcsSignature:
		epub, ok := pub.(ed25519.PublicKey)
		if !ok {
			return fmt.Errorf("jsonsig: expected an Ed25519 key for %s, got %T", sgn.ProofType, pub)
		}
		return jsonsig.VerifyEdDSA(epub, sgn)
	case jsonsig.JcsBlake2Ed25519Signature:
		epub, ok := pub.(ed25519.PublicKey)
		if !ok {
			return fmt.Errorf("jsonsig: expected an Ed25519 key for %s, got %T", sgn.ProofType, pub)
		}
		return jsonsig.VerifyBlake2Ed25519(epub, sgn)
	default:
		return fmt.Errorf("jsonsig: verification of %s is not supported here", sgn.ProofType)
	}
}
