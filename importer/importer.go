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

// Package importer implements spec §4.10's actor and object resolvers:
// fetch-or-reuse a remote entity, verify its integrity proof when it is
// portable (an ap:// identifier), upsert it, and walk its declared
// dependencies (inReplyTo, replies/context collections) up to a
// configurable bound. Callers invoke either resolver whenever they hit
// a reference they don't have a local copy of yet.
package importer

import (
	"fmt"
	"strings"
)

// DefaultMaxReplyDepth and DefaultMaxCollectionItems are the
// "configurable depth"/"configurable item count" spec §4.10 calls for;
// callers override them via Options.
const (
	DefaultMaxReplyDepth      = 20
	DefaultMaxCollectionItems = 200
)

// RecursionError is raised when resolving a chain of dependencies
// exceeds its configured bound. It does not wrap queue.ErrRecursion, so
// the IncomingActivity queue policy, which skips retries only for errors
// wrapping that value, does not recognise it.
type RecursionError struct {
	Id    string
	Depth int
}

func (e *RecursionError) Error() string {
	return fmt.Sprintf("importer: recursion depth %d exceeded resolving %s", e.Depth, e.Id)
}

// Options bounds one import call's recursion.
type Options struct {
	MaxReplyDepth      int
	MaxCollectionItems int
}

func (o Options) withDefaults() Options {
	if o.MaxReplyDepth <= 0 {
		o.MaxReplyDepth = DefaultMaxReplyDepth
	}
	if o.MaxCollectionItems <= 0 {
		o.MaxCollectionItems = DefaultMaxCollectionItems
	}
	return o
}

// Key is one of an actor's public keys, replacing its predecessor in
// full on every upsert per spec §4.10's "replace full key set on
// update".
type Key struct {
	ID        string
	Type      string // e.g. "Multikey", "RsaSignature2017" verificationMethod kind
	PublicKey string
}

// Actor is the subset of a profile importer upserts.
type Actor struct {
	ID          string
	Inbox       string
	SharedInbox string
	Keys        []Key
	Raw         map[string]interface{}
}

// Store is the persistence seam importer operates through.
type Store interface {
	GetActor(id string) (Actor, bool, error)
	UpsertActor(a Actor) error
	ReplaceActorKeys(actorID string, keys []Key) error
	// PropagateRelationships re-checks the relationship graph (pending
	// follows, reposts, reactions referencing actorID) now that its
	// profile is current; a no-op on first import.
	PropagateRelationships(actorID string) error

	GetObject(id string) (map[string]interface{}, bool, error)
	UpsertObject(id string, obj map[string]interface{}) error
}

// Fetcher is the subset of fetcher.Fetcher plus jsonsig verification
// importer needs, kept as an interface so tests don't need a network.
type Fetcher interface {
	FetchActor(id string) (map[string]interface{}, error)
	FetchObject(id string) (map[string]interface{}, error)
	// FetchCollectionPage returns the item ids on one page of a
	// replies/context collection and the next page's id, or "" when
	// there is no further page.
	FetchCollectionPage(id string) (items []string, nextPage string, err error)
}

// ProofVerifier verifies a portable (ap://) entity's embedded integrity
// proof; non-portable (http) entities skip this check entirely.
type ProofVerifier interface {
	VerifyPortableProof(entity map[string]interface{}) error
}

func isPortable(id string) bool {
	return strings.HasPrefix(id, "ap://")
}

func idFromBody(body map[string]interface{}) (string, bool) {
	id, ok := body["id"].(string)
	return id, ok && id != ""
}
