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

package importer

import "fmt"

// Actors resolves actor URLs into upserted profiles. A WebFinger
// address is resolved to an actor URL by the caller (package webfinger)
// before reaching ImportActor; this package only deals in the actor id
// itself, matching spec §4.10's "Given an actor URL or WebFinger
// address" split across two resolvers that compose.
type Actors struct {
	Store    Store
	Fetch    Fetcher
	Verify   ProofVerifier // nil is valid: skip portable proof checks
	Sanitize *Sanitizer    // nil is valid: leave the profile body untouched
}

// ImportActor always fetches id (GetOrImportActor is the variant that
// reuses a local copy), verifies its integrity proof when id is portable, upserts the
// profile and its full key set, and propagates into the relationship
// graph.
func (a Actors) ImportActor(id string) (Actor, error) {
	body, err := a.Fetch.FetchActor(id)
	if err != nil {
		return Actor{}, fmt.Errorf("importer: fetching actor %s: %w", id, err)
	}
	actualID, ok := idFromBody(body)
	if !ok {
		return Actor{}, fmt.Errorf("importer: actor document for %s has no id", id)
	}

	if isPortable(actualID) && a.Verify != nil {
		if err := a.Verify.VerifyPortableProof(body); err != nil {
			return Actor{}, fmt.Errorf("importer: actor %s failed proof verification: %w", actualID, err)
		}
	}

	body = a.Sanitize.Clean(body)

	keys := extractKeys(body)
	inbox, _ := body["inbox"].(string)
	sharedInbox := extractSharedInbox(body)

	actor := Actor{
		ID:          actualID,
		Inbox:       inbox,
		SharedInbox: sharedInbox,
		Keys:        keys,
		Raw:         body,
	}
	if err := a.Store.UpsertActor(actor); err != nil {
		return Actor{}, err
	}
	if err := a.Store.ReplaceActorKeys(actualID, keys); err != nil {
		return Actor{}, err
	}
	if err := a.Store.PropagateRelationships(actualID); err != nil {
		return Actor{}, err
	}
	return actor, nil
}

// GetOrImportActor reuses a locally-known profile when present,
// importing only on a miss; this is the common entry point handlers
// use when they encounter an actor id they haven't resolved yet.
func (a Actors) GetOrImportActor(id string) (Actor, error) {
	if existing, found, err := a.Store.GetActor(id); err != nil {
		return Actor{}, err
	} else if found {
		return existing, nil
	}
	return a.ImportActor(id)
}

func extractKeys(body map[string]interface{}) []Key {
	var keys []Key
	switch pk := body["publicKey"].(type) {
	case map[string]interface{}:
		if k, ok := keyFromDocument(pk); ok {
			keys = append(keys, k)
		}
	case []interface{}:
		for _, e := range pk {
			if m, ok := e.(map[string]interface{}); ok {
				if k, ok := keyFromDocument(m); ok {
					keys = append(keys, k)
				}
			}
		}
	}
	if assertions, ok := body["assertionMethod"].([]interface{}); ok {
		for _, e := range assertions {
			if m, ok := e.(map[string]interface{}); ok {
				if k, ok := keyFromDocument(m); ok {
					keys = append(keys, k)
				}
			}
		}
	}
	return keys
}

func keyFromDocument(doc map[string]interface{}) (Key, bool) {
	id, _ := doc["id"].(string)
	if id == "" {
		return Key{}, false
	}
	typ, _ := doc["type"].(string)
	pem, _ := doc["publicKeyPem"].(string)
	if pem == "" {
		pem, _ = doc["publicKeyMultibase"].(string)
	}
	return Key{ID: id, Type: typ, PublicKey: pem}, true
}

func extractSharedInbox(body map[string]interface{}) string {
	endpoints, ok := body["endpoints"].(map[string]interface{})
	if !ok {
		return ""
	}
	shared, _ := endpoints["sharedInbox"].(string)
	return shared
}
